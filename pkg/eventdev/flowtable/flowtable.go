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

// Package flowtable pins flow identifiers to consumer ports for atomic queues.
//
// A Table is a fixed arena of slots sized when the queue is set up. A flow id hashes to exactly one slot, so two flow
// ids that collide share a binding; this only widens serialization and never lets one flow reach two ports at once.
// Each slot counts the events of its flows that are still held by the bound port. The binding is evicted when that
// count returns to zero, after which the next event for the slot may be pinned to a different port.
//
// A Table is owned by the dispatch pass and is not safe for concurrent mutation.
package flowtable

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

var (
	// ErrInvalidCapacity is returned by New when the requested slot count is not positive.
	ErrInvalidCapacity = errors.New("flow table capacity must be positive")
	// ErrNotBound is returned by Release when the flow's slot holds no live binding.
	ErrNotBound = errors.New("flow has no live binding")
	// ErrPortMismatch is returned by Acquire when the flow is already pinned to another port.
	ErrPortMismatch = errors.New("flow is bound to a different port")
)

type slot struct {
	port int
	refs int32
	// flow is the most recent flow id that acquired the slot. It is kept for diagnostics only.
	flow uint32
}

// Binding describes one live slot.
type Binding struct {
	Slot int    `json:"slot"`
	Flow uint32 `json:"flow"`
	Port int    `json:"port"`
	Refs int32  `json:"refs"`
}

// Table maps flow ids to ports.
type Table struct {
	slots []slot
	live  int
}

// New creates a table with capacity slots.
func New(capacity int) (*Table, error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	return &Table{slots: make([]slot, capacity)}, nil
}

func (t *Table) index(flowID uint32) int {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], flowID)
	return int(xxhash.Sum64(b[:]) % uint64(len(t.slots)))
}

// Lookup returns the port the flow is currently pinned to.
func (t *Table) Lookup(flowID uint32) (port int, ok bool) {
	s := &t.slots[t.index(flowID)]
	if s.refs == 0 {
		return 0, false
	}
	return s.port, true
}

// Resolve returns the flow's current port, or asks pick for a new one when the flow is unbound. Resolve never binds;
// the binding is committed by Acquire once an event has actually been handed to the port. pick returns false when no
// port can take the flow right now.
func (t *Table) Resolve(flowID uint32, pick func() (int, bool)) (port int, ok bool) {
	if port, ok := t.Lookup(flowID); ok {
		return port, true
	}
	return pick()
}

// Acquire records one more held event for the flow on port, binding the flow if it was unbound.
func (t *Table) Acquire(flowID uint32, port int) error {
	s := &t.slots[t.index(flowID)]
	if s.refs > 0 && s.port != port {
		return fmt.Errorf("flow %d pinned to port %d, cannot acquire on port %d: %w", flowID, s.port, port, ErrPortMismatch)
	}
	if s.refs == 0 {
		s.port = port
		t.live++
	}
	s.refs++
	s.flow = flowID
	return nil
}

// Release drops one held event for the flow. It reports whether the binding was evicted as a result.
func (t *Table) Release(flowID uint32) (evicted bool, err error) {
	s := &t.slots[t.index(flowID)]
	if s.refs == 0 {
		return false, fmt.Errorf("release of flow %d: %w", flowID, ErrNotBound)
	}
	s.refs--
	if s.refs == 0 {
		t.live--
		return true, nil
	}
	return false, nil
}

// Live returns the number of slots with a live binding.
func (t *Table) Live() int { return t.live }

// Cap returns the number of slots.
func (t *Table) Cap() int { return len(t.slots) }

// Bindings returns every live binding ordered by slot.
func (t *Table) Bindings() []Binding {
	out := make([]Binding, 0, t.live)
	for i := range t.slots {
		s := &t.slots[i]
		if s.refs == 0 {
			continue
		}
		out = append(out, Binding{Slot: i, Flow: s.flow, Port: s.port, Refs: s.refs})
	}
	return out
}

// Reset evicts every binding.
func (t *Table) Reset() {
	clear(t.slots)
	t.live = 0
}
