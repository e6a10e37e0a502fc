package locker

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sync/errgroup"
)

func TestKeyed_SerializesSameKey(t *testing.T) {
	k := NewKeyed()
	counter := 0

	var g errgroup.Group
	for i := 0; i < 100; i++ {
		g.Go(func() error {
			unlock := k.Lock("acct-1")
			defer unlock()
			v := counter
			time.Sleep(time.Microsecond)
			counter = v + 1
			return nil
		})
	}
	assert.NoError(t, g.Wait())

	assert.Equal(t, 100, counter)
	assert.Equal(t, 0, k.Len())
}

func TestKeyed_DifferentKeysDoNotBlock(t *testing.T) {
	k := NewKeyed()
	unlockA := k.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := k.Lock("b")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked behind a")
	}
}

func TestKeyed_LockManyOppositeOrderNoDeadlock(t *testing.T) {
	k := NewKeyed()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			unlock := k.LockMany("buyer", "producer")
			unlock()
		}()
		go func() {
			defer wg.Done()
			unlock := k.LockMany("producer", "buyer")
			unlock()
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("LockMany deadlocked")
	}
	assert.Equal(t, 0, k.Len())
}

func TestKeyed_LockManyDuplicateKeys(t *testing.T) {
	k := NewKeyed()

	unlock := k.LockMany("a", "a")
	assert.Equal(t, 1, k.Len())
	unlock()
	assert.Equal(t, 0, k.Len())
}
