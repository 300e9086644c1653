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

// Package reorder restores admission order for events that were fanned out across several consumers.
//
// A Buffer hands out monotonically increasing sequence numbers from a bounded window. Consumers finish their work in
// any order; each completion either carries a value to pass downstream or marks the sequence as skipped (the event
// was released instead of forwarded). Flush emits completed values strictly in sequence order and stops at the first
// gap, so a late completion holds back everything admitted after it.
//
// The window bounds memory: at most Cap sequences can be outstanding, and Reserve refuses new work until the oldest
// outstanding sequence completes. A Buffer is owned by the dispatch pass and is not safe for concurrent use.
package reorder

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCapacity is returned by New when the requested window is not positive.
	ErrInvalidCapacity = errors.New("reorder window capacity must be positive")
	// ErrWindowFull is returned by Reserve when Cap sequences are already outstanding.
	ErrWindowFull = errors.New("reorder window is full")
	// ErrOutOfWindow is returned when completing a sequence that was never reserved or was already flushed.
	ErrOutOfWindow = errors.New("sequence number outside the reorder window")
	// ErrAlreadyCompleted is returned when a sequence is completed twice.
	ErrAlreadyCompleted = errors.New("sequence number already completed")
)

type entryState uint8

const (
	statePending entryState = iota
	stateValue
	stateSkipped
)

type entry[T any] struct {
	state entryState
	val   T
}

// Buffer is a bounded reorder window.
type Buffer[T any] struct {
	entries []entry[T]
	// head is the next sequence Flush waits for; tail is the next sequence Reserve hands out.
	head uint64
	tail uint64
}

// New creates a buffer allowing capacity outstanding sequences.
func New[T any](capacity int) (*Buffer[T], error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	return &Buffer[T]{entries: make([]entry[T], capacity)}, nil
}

// Reserve assigns the next sequence number.
func (b *Buffer[T]) Reserve() (uint64, error) {
	if b.tail-b.head >= uint64(len(b.entries)) {
		return 0, ErrWindowFull
	}
	seq := b.tail
	b.tail++
	return seq, nil
}

// Complete records the value produced for seq.
func (b *Buffer[T]) Complete(seq uint64, v T) error {
	return b.complete(seq, stateValue, v)
}

// Skip records that seq finished without producing a value.
func (b *Buffer[T]) Skip(seq uint64) error {
	var zero T
	return b.complete(seq, stateSkipped, zero)
}

func (b *Buffer[T]) complete(seq uint64, state entryState, v T) error {
	if seq < b.head || seq >= b.tail {
		return fmt.Errorf("sequence %d not in [%d, %d): %w", seq, b.head, b.tail, ErrOutOfWindow)
	}
	e := &b.entries[seq%uint64(len(b.entries))]
	if e.state != statePending {
		return fmt.Errorf("sequence %d: %w", seq, ErrAlreadyCompleted)
	}
	e.state = state
	e.val = v
	return nil
}

// Flush emits every value whose predecessors have all completed, in sequence order, and returns how many values were
// emitted. emit may call Reserve on the same buffer.
func (b *Buffer[T]) Flush(emit func(seq uint64, v T)) int {
	emitted := 0
	for b.head != b.tail {
		e := &b.entries[b.head%uint64(len(b.entries))]
		if e.state == statePending {
			break
		}
		state, v, seq := e.state, e.val, b.head
		*e = entry[T]{}
		b.head++
		if state == stateValue {
			emit(seq, v)
			emitted++
		}
	}
	return emitted
}

// Drain abandons the window and returns the values that were completed but not yet flushed, in sequence order.
func (b *Buffer[T]) Drain() []T {
	var out []T
	for seq := b.head; seq != b.tail; seq++ {
		e := &b.entries[seq%uint64(len(b.entries))]
		if e.state == stateValue {
			out = append(out, e.val)
		}
	}
	b.Reset()
	return out
}

// Reset clears the window. Sequence numbering restarts at zero.
func (b *Buffer[T]) Reset() {
	clear(b.entries)
	b.head, b.tail = 0, 0
}

// Outstanding returns the number of reserved sequences not yet flushed.
func (b *Buffer[T]) Outstanding() int { return int(b.tail - b.head) }

// Buffered returns the number of completed sequences held back by a gap.
func (b *Buffer[T]) Buffered() int {
	n := 0
	for seq := b.head; seq != b.tail; seq++ {
		if b.entries[seq%uint64(len(b.entries))].state != statePending {
			n++
		}
	}
	return n
}

// NextExpected returns the sequence Flush is waiting for.
func (b *Buffer[T]) NextExpected() uint64 { return b.head }

// Cap returns the window size.
func (b *Buffer[T]) Cap() int { return len(b.entries) }
