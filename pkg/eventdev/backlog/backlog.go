/*
Copyright 2025 The Kubernetes Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package backlog provides the concurrent-safe FIFO that holds events a queue accepted but could not yet hand to a
// port, based on the standard library's `container/list`.
//
// # Behavioral Guarantees
//
// Items leave in strict physical insertion order unless a caller removes them out of band with `Cleanup`. `Cleanup`
// visits items front to back, so a retry pass that keeps whatever it cannot place preserves the relative
// order of the items left behind.
package backlog

import (
	"container/list"
	"sync"
)

// Queue is a FIFO of T.
type Queue[T any] struct {
	items *list.List
	mu    sync.RWMutex
}

// New creates an empty Queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{items: list.New()}
}

// Add appends an item to the back of the queue.
func (q *Queue[T]) Add(item T) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items.PushBack(item)
}

// Cleanup removes, front to back, every item for which predicate returns true and returns them in that order.
// predicate must not call back into the queue.
func (q *Queue[T]) Cleanup(predicate func(T) bool) []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	var removed []T
	var next *list.Element
	for e := q.items.Front(); e != nil; e = next {
		next = e.Next() // Get next before potentially removing e
		item := e.Value.(T)
		if predicate(item) {
			q.items.Remove(e)
			removed = append(removed, item)
		}
	}
	return removed
}

// Drain removes all items from the queue and returns them.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	removed := make([]T, 0, q.items.Len())
	for e := q.items.Front(); e != nil; e = e.Next() {
		removed = append(removed, e.Value.(T))
	}
	q.items.Init()
	return removed
}

// Snapshot copies the queue contents front to back without removing them.
func (q *Queue[T]) Snapshot() []T {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]T, 0, q.items.Len())
	for e := q.items.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(T))
	}
	return out
}

// Len returns the number of items in the queue.
func (q *Queue[T]) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.items.Len()
}

// PeekHead returns the item at the front of the queue without removing it.
func (q *Queue[T]) PeekHead() (T, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var zero T
	if q.items.Len() == 0 {
		return zero, false
	}
	return q.items.Front().Value.(T), true
}

// PopHead removes and returns the item at the front of the queue.
func (q *Queue[T]) PopHead() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	front := q.items.Front()
	if front == nil {
		return zero, false
	}
	return q.items.Remove(front).(T), true
}
