package cacher

import "sync"

// Const defines a constant cacher which is lazy-loaded.
type Const[T any] struct {
	mu     sync.Mutex
	loaded bool
	value  T
	load   func() T
}

// NewConst returns a const cacher.
func NewConst[T any](load func() T) *Const[T] {
	if load == nil {
		panic("nil loader func")
	}
	return &Const[T]{load: load}
}

// IsLoaded returns if the const is loaded.
func (c *Const[T]) IsLoaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded
}

// Get returns the cached value, loading it on first use.
func (c *Const[T]) Get() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		c.value = c.load()
		c.loaded = true
	}
	return c.value
}

// Clear drops the cached value so the next Get loads again.
func (c *Const[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero T
	c.value = zero
	c.loaded = false
}
