package mocks

import (
	"sync"

	"github.com/example/marketplace-ledger/internal/infrastructure/store"
)

// MockReadStore records calls made through store.ReadStoreInterface and keeps
// the data in an in-memory store.ReadStore.
type MockReadStore struct {
	data *store.ReadStore

	mu          sync.Mutex
	SetCalls    []SetCall
	GetCalls    []GetCall
	UpdateCalls []UpdateCall
}

type SetCall struct {
	Collection string
	ID         string
	Data       any
}

type GetCall struct {
	Collection string
	ID         string
}

type UpdateCall struct {
	Collection string
	ID         string
	Found      bool
}

func NewMockReadStore() *MockReadStore {
	return &MockReadStore{data: store.NewReadStore()}
}

func (m *MockReadStore) Set(collection, id string, data any) {
	m.mu.Lock()
	m.SetCalls = append(m.SetCalls, SetCall{Collection: collection, ID: id, Data: data})
	m.mu.Unlock()

	m.data.Set(collection, id, data)
}

func (m *MockReadStore) Get(collection, id string) (any, bool) {
	m.mu.Lock()
	m.GetCalls = append(m.GetCalls, GetCall{Collection: collection, ID: id})
	m.mu.Unlock()

	return m.data.Get(collection, id)
}

func (m *MockReadStore) GetAll(collection string) []any {
	return m.data.GetAll(collection)
}

func (m *MockReadStore) Update(collection, id string, updateFn func(current any) any) bool {
	found := m.data.Update(collection, id, updateFn)

	m.mu.Lock()
	m.UpdateCalls = append(m.UpdateCalls, UpdateCall{Collection: collection, ID: id, Found: found})
	m.mu.Unlock()
	return found
}

// SetData seeds a read model without recording a call
func (m *MockReadStore) SetData(collection, id string, data any) {
	m.data.Set(collection, id, data)
}

// GetData reads a read model without recording a call
func (m *MockReadStore) GetData(collection, id string) (any, bool) {
	return m.data.Get(collection, id)
}
