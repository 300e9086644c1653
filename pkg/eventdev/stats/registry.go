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

// Package stats holds the counters of one event device.
//
// A Registry is owned by its device and handed to the dispatch engine at construction; there are no process-wide
// counters. Counter names are fixed by the device topology and enumerated in a stable order by Names:
//
//	dev_rx dev_tx dev_drop dev_inflight
//	port_<N>_rx port_<N>_drop port_<N>_inflight port_<N>_tx
//	qid_<N>_rx qid_<N>_drop qid_<N>_tx
//
// The dispatch engine accumulates a pass's changes in a Delta and publishes them with a single Apply, so readers
// never observe a half-applied pass for any one counter. In-flight values are not stored here; they are read live from
// an InflightSource.
package stats

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// ErrUnknownCounter is returned by ByName for a name the registry does not enumerate.
var ErrUnknownCounter = errors.New("unknown counter")

// InflightSource reports live in-flight slot counts.
type InflightSource interface {
	// Inflight returns the number of device-wide slots currently allocated.
	Inflight() int64
	// PortInflight returns the number of slots held by the port.
	PortInflight(port int) int64
}

type counterSet struct {
	rx   atomic.Uint64
	tx   atomic.Uint64
	drop atomic.Uint64
}

func (c *counterSet) add(d Counts) {
	if d.RX != 0 {
		c.rx.Add(d.RX)
	}
	if d.TX != 0 {
		c.tx.Add(d.TX)
	}
	if d.Drop != 0 {
		c.drop.Add(d.Drop)
	}
}

func (c *counterSet) load() Counts {
	return Counts{RX: c.rx.Load(), TX: c.tx.Load(), Drop: c.drop.Load()}
}

// Counts is a triple of event counters.
type Counts struct {
	RX   uint64 `json:"rx"`
	TX   uint64 `json:"tx"`
	Drop uint64 `json:"drop"`
}

// Delta accumulates counter changes for one dispatch pass.
type Delta struct {
	Dev    Counts
	Ports  []Counts
	Queues []Counts
}

// Reset zeroes the delta so it can be reused for the next pass.
func (d *Delta) Reset() {
	d.Dev = Counts{}
	clear(d.Ports)
	clear(d.Queues)
}

// IsZero reports whether the delta carries no change.
func (d *Delta) IsZero() bool {
	if d.Dev != (Counts{}) {
		return false
	}
	for _, c := range d.Ports {
		if c != (Counts{}) {
			return false
		}
	}
	for _, c := range d.Queues {
		if c != (Counts{}) {
			return false
		}
	}
	return true
}

type counterKind uint8

const (
	kindRX counterKind = iota
	kindTX
	kindDrop
	kindInflight
)

type scope uint8

const (
	scopeDevice scope = iota
	scopePort
	scopeQueue
)

type counterRef struct {
	scope scope
	index int
	kind  counterKind
}

// Registry holds the counters for a fixed number of ports and queues.
type Registry struct {
	dev      counterSet
	ports    []counterSet
	queues   []counterSet
	inflight InflightSource

	names []string
	index map[string]counterRef
}

// NewRegistry creates a registry for nbPorts ports and nbQueues queues.
func NewRegistry(nbPorts, nbQueues int, inflight InflightSource) *Registry {
	r := &Registry{
		ports:    make([]counterSet, nbPorts),
		queues:   make([]counterSet, nbQueues),
		inflight: inflight,
		index:    make(map[string]counterRef, 4+4*nbPorts+3*nbQueues),
	}
	r.register("dev_rx", counterRef{scopeDevice, 0, kindRX})
	r.register("dev_tx", counterRef{scopeDevice, 0, kindTX})
	r.register("dev_drop", counterRef{scopeDevice, 0, kindDrop})
	r.register("dev_inflight", counterRef{scopeDevice, 0, kindInflight})
	for p := range nbPorts {
		r.register(fmt.Sprintf("port_%d_rx", p), counterRef{scopePort, p, kindRX})
		r.register(fmt.Sprintf("port_%d_drop", p), counterRef{scopePort, p, kindDrop})
		r.register(fmt.Sprintf("port_%d_inflight", p), counterRef{scopePort, p, kindInflight})
		r.register(fmt.Sprintf("port_%d_tx", p), counterRef{scopePort, p, kindTX})
	}
	for q := range nbQueues {
		r.register(fmt.Sprintf("qid_%d_rx", q), counterRef{scopeQueue, q, kindRX})
		r.register(fmt.Sprintf("qid_%d_drop", q), counterRef{scopeQueue, q, kindDrop})
		r.register(fmt.Sprintf("qid_%d_tx", q), counterRef{scopeQueue, q, kindTX})
	}
	return r
}

func (r *Registry) register(name string, ref counterRef) {
	r.names = append(r.names, name)
	r.index[name] = ref
}

// Names returns every counter name in a stable order. The returned slice must not be modified.
func (r *Registry) Names() []string { return r.names }

// ByName returns the current value of the named counter.
func (r *Registry) ByName(name string) (uint64, error) {
	ref, ok := r.index[name]
	if !ok {
		return 0, fmt.Errorf("counter %q: %w", name, ErrUnknownCounter)
	}
	if ref.kind == kindInflight {
		var v int64
		if ref.scope == scopeDevice {
			v = r.inflight.Inflight()
		} else {
			v = r.inflight.PortInflight(ref.index)
		}
		return uint64(max(v, 0)), nil
	}

	var c Counts
	switch ref.scope {
	case scopeDevice:
		c = r.dev.load()
	case scopePort:
		c = r.ports[ref.index].load()
	case scopeQueue:
		c = r.queues[ref.index].load()
	}
	switch ref.kind {
	case kindRX:
		return c.RX, nil
	case kindTX:
		return c.TX, nil
	default:
		return c.Drop, nil
	}
}

// NewDelta returns an empty delta shaped for this registry.
func (r *Registry) NewDelta() *Delta {
	return &Delta{
		Ports:  make([]Counts, len(r.ports)),
		Queues: make([]Counts, len(r.queues)),
	}
}

// Apply publishes a delta produced by NewDelta on this registry.
func (r *Registry) Apply(d *Delta) {
	r.dev.add(d.Dev)
	for i, c := range d.Ports {
		r.ports[i].add(c)
	}
	for i, c := range d.Queues {
		r.queues[i].add(c)
	}
}

// Device returns the device-level counters.
func (r *Registry) Device() Counts { return r.dev.load() }

// Port returns the counters of one port.
func (r *Registry) Port(port int) Counts { return r.ports[port].load() }

// Queue returns the counters of one queue.
func (r *Registry) Queue(queue int) Counts { return r.queues[queue].load() }

// PortStats is one port's entry in a Snapshot.
type PortStats struct {
	Counts
	Inflight int64 `json:"inflight"`
}

// Snapshot is a point-in-time copy of every counter.
type Snapshot struct {
	Device   Counts      `json:"device"`
	Inflight int64       `json:"inflight"`
	Ports    []PortStats `json:"ports"`
	Queues   []Counts    `json:"queues"`
}

// Snapshot copies every counter. Counters are read one at a time, so a snapshot taken while a pass is being applied
// may mix values from before and after it.
func (r *Registry) Snapshot() Snapshot {
	s := Snapshot{
		Device:   r.dev.load(),
		Inflight: r.inflight.Inflight(),
		Ports:    make([]PortStats, len(r.ports)),
		Queues:   make([]Counts, len(r.queues)),
	}
	for i := range r.ports {
		s.Ports[i] = PortStats{Counts: r.ports[i].load(), Inflight: r.inflight.PortInflight(i)}
	}
	for i := range r.queues {
		s.Queues[i] = r.queues[i].load()
	}
	return s
}
