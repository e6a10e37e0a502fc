package store

import (
	"sync"
)

// collection keeps its ids in insertion order, so entries sharing a
// timestamp (one ledger batch) list in the order they were projected.
type collection struct {
	byID  map[string]any
	order []string
}

// ReadStore is an in-memory read model store
type ReadStore struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

func NewReadStore() *ReadStore {
	return &ReadStore{collections: make(map[string]*collection)}
}

func (rs *ReadStore) collection(name string) *collection {
	c, ok := rs.collections[name]
	if !ok {
		c = &collection{byID: make(map[string]any)}
		rs.collections[name] = c
	}
	return c
}

// Set inserts or replaces a read model. A replaced model keeps its position.
func (rs *ReadStore) Set(collection, id string, data any) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	c := rs.collection(collection)
	if _, exists := c.byID[id]; !exists {
		c.order = append(c.order, id)
	}
	c.byID[id] = data
}

func (rs *ReadStore) Get(collection, id string) (any, bool) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	c, ok := rs.collections[collection]
	if !ok {
		return nil, false
	}
	data, ok := c.byID[id]
	return data, ok
}

// GetAll lists a collection in insertion order
func (rs *ReadStore) GetAll(collection string) []any {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	c, ok := rs.collections[collection]
	if !ok {
		return []any{}
	}
	items := make([]any, 0, len(c.order))
	for _, id := range c.order {
		items = append(items, c.byID[id])
	}
	return items
}

// Update applies updateFn under the write lock; it reports false for an
// unknown id without calling updateFn.
func (rs *ReadStore) Update(collection, id string, updateFn func(current any) any) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	c, ok := rs.collections[collection]
	if !ok {
		return false
	}
	current, ok := c.byID[id]
	if !ok {
		return false
	}
	c.byID[id] = updateFn(current)
	return true
}
