package singleflight

import (
	"fmt"
	"sync"
)

// Group runs at most one call per key at a time. Callers arriving while a
// call is in flight wait for it and share its result.
type Group[T any] struct {
	mu sync.Mutex
	m  map[string]*call[T]
}

type call[T any] struct {
	wg   sync.WaitGroup
	val  T
	err  error
	dups int
}

// New creates an empty Group.
func New[T any]() *Group[T] {
	return &Group[T]{m: make(map[string]*call[T])}
}

// Do executes fn for key unless a call for key is already in flight, in
// which case it waits for that call. shared reports whether the result was
// handed to more than one caller. A panic in fn is returned as an error to
// every waiter.
func (g *Group[T]) Do(key string, fn func() (T, error)) (val T, err error, shared bool) {
	g.mu.Lock()
	if g.m == nil {
		g.m = make(map[string]*call[T])
	}
	if c, ok := g.m[key]; ok {
		c.dups++
		g.mu.Unlock()
		c.wg.Wait()
		return c.val, c.err, true
	}

	c := &call[T]{}
	c.wg.Add(1)
	g.m[key] = c
	g.mu.Unlock()

	g.run(key, c, fn)

	g.mu.Lock()
	shared = c.dups > 0
	g.mu.Unlock()
	return c.val, c.err, shared
}

// ForgetAll drops every in-flight key so later calls start fresh instead of
// joining calls that are still running. It returns how many were dropped.
func (g *Group[T]) ForgetAll() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := len(g.m)
	g.m = make(map[string]*call[T])
	return n
}

func (g *Group[T]) run(key string, c *call[T], fn func() (T, error)) {
	defer func() {
		if r := recover(); r != nil {
			c.err = fmt.Errorf("singleflight: call for %q panicked: %v", key, r)
		}

		g.mu.Lock()
		if g.m[key] == c {
			delete(g.m, key)
		}
		g.mu.Unlock()
		c.wg.Done()
	}()

	c.val, c.err = fn()
}
