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

// Package ring adapts lfq queues to the bounded, burst-oriented rings behind port admission and delivery.
//
// lfq rounds capacities up to a power of two and does not report a length. A Ring keeps an occupancy count so that it
// holds exactly the configured number of elements and can answer Len and Full. Neither side ever blocks: a full ring
// rejects the element and an empty ring reports nothing.
package ring

import (
	"errors"
	"sync/atomic"

	"code.hybscloud.com/lfq"
)

// ErrInvalidCapacity is returned when the requested capacity is not positive.
var ErrInvalidCapacity = errors.New("ring capacity must be positive")

// minQueueCapacity is the smallest capacity lfq accepts.
const minQueueCapacity = 2

// Ring is a fixed-capacity FIFO.
type Ring[T any] struct {
	q        lfq.Queue[T]
	capacity int64
	// n counts claimed places. A producer claims before enqueuing and a consumer gives the place back after dequeuing,
	// so the backing queue never holds more than capacity elements.
	n atomic.Int64
}

// NewMPSC creates a ring for any number of producers and a single consumer.
func NewMPSC[T any](capacity int) (*Ring[T], error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	return &Ring[T]{
		q:        lfq.BuildMPSC[T](lfq.New(max(capacity, minQueueCapacity)).SingleConsumer().Compact()),
		capacity: int64(capacity),
	}, nil
}

// NewSPMC creates a ring for a single producer and any number of consumers.
func NewSPMC[T any](capacity int) (*Ring[T], error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	return &Ring[T]{
		q:        lfq.BuildSPMC[T](lfq.New(max(capacity, minQueueCapacity)).SingleProducer().Compact()),
		capacity: int64(capacity),
	}, nil
}

// Enqueue appends v. It returns false if the ring is full.
func (r *Ring[T]) Enqueue(v T) bool {
	if r.n.Add(1) > r.capacity {
		r.n.Add(-1)
		return false
	}
	if err := r.q.Enqueue(&v); err != nil {
		r.n.Add(-1)
		return false
	}
	return true
}

// Dequeue removes the oldest element. It returns false if the ring is empty.
func (r *Ring[T]) Dequeue() (T, bool) {
	v, err := r.q.Dequeue()
	if err != nil {
		var zero T
		return zero, false
	}
	r.n.Add(-1)
	return v, true
}

// EnqueueBurst appends elements of vs in order until the ring is full and returns how many were accepted.
func (r *Ring[T]) EnqueueBurst(vs []T) int {
	for i := range vs {
		if !r.Enqueue(vs[i]) {
			return i
		}
	}
	return len(vs)
}

// DequeueBurst fills out with up to len(out) elements and returns how many were written.
func (r *Ring[T]) DequeueBurst(out []T) int {
	for i := range out {
		v, ok := r.Dequeue()
		if !ok {
			return i
		}
		out[i] = v
	}
	return len(out)
}

// Drain removes and returns every element currently in the ring.
func (r *Ring[T]) Drain() []T {
	var drained []T
	for {
		v, ok := r.Dequeue()
		if !ok {
			return drained
		}
		drained = append(drained, v)
	}
}

// Len returns the element count, including places claimed by producers that are still enqueuing. It is exact when no
// producer or consumer is active.
func (r *Ring[T]) Len() int {
	return int(min(max(r.n.Load(), 0), r.capacity))
}

// Cap returns the ring capacity.
func (r *Ring[T]) Cap() int { return int(r.capacity) }

// Full reports whether the ring has no free place. The answer is stable only for the ring's sole producer.
func (r *Ring[T]) Full() bool {
	return r.n.Load() >= r.capacity
}
