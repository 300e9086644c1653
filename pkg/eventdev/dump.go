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

package eventdev

import (
	"fmt"
	"io"

	"k8s.io/apimachinery/pkg/util/sets"
	"sigs.k8s.io/yaml"

	"github.com/zetxqx/eventsched/pkg/eventdev/flowtable"
)

type counterValue struct {
	Name  string `json:"name"`
	Value uint64 `json:"value"`
}

type ringState struct {
	Len int `json:"len"`
	Cap int `json:"cap"`
}

type reorderState struct {
	NextExpected uint64 `json:"nextExpected"`
	Outstanding  int    `json:"outstanding"`
	Buffered     int    `json:"buffered"`
	Cap          int    `json:"cap"`
}

type heldState struct {
	Queue    uint8  `json:"queue"`
	Flow     uint32 `json:"flow"`
	Sequence uint64 `json:"sequence,omitempty"`
	Orphaned bool   `json:"orphaned,omitempty"`
}

type queueState struct {
	ID      uint8               `json:"id"`
	SetUp   bool                `json:"setUp"`
	Config  *QueueConfig        `json:"config,omitempty"`
	Links   []int               `json:"links,omitempty"`
	Backlog int                 `json:"backlog"`
	Flows   []flowtable.Binding `json:"flows,omitempty"`
	Reorder *reorderState       `json:"reorder,omitempty"`
}

type portState struct {
	ID        uint8       `json:"id"`
	SetUp     bool        `json:"setUp"`
	Config    *PortConfig `json:"config,omitempty"`
	Links     []int       `json:"links,omitempty"`
	Inflight  int64       `json:"inflight"`
	Admission *ringState  `json:"admission,omitempty"`
	Delivery  *ringState  `json:"delivery,omitempty"`
	Held      []heldState `json:"held,omitempty"`
}

type deviceState struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	State    string         `json:"state"`
	Config   *DeviceConfig  `json:"config,omitempty"`
	Inflight int64          `json:"inflight"`
	Counters []counterValue `json:"counters,omitempty"`
	Queues   []queueState   `json:"queues,omitempty"`
	Ports    []portState    `json:"ports,omitempty"`
}

// Dump writes a YAML snapshot of the device: lifecycle state, configuration, every counter, and the state of each
// queue and port. It waits for a dispatch pass in progress to finish.
func (d *Device) Dump(w io.Writer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.passMu.Lock()
	defer d.passMu.Unlock()

	out, err := yaml.Marshal(d.snapshot())
	if err != nil {
		return fmt.Errorf("dump: %w", err)
	}
	if _, err := w.Write(out); err != nil {
		return fmt.Errorf("dump: %w", err)
	}
	return nil
}

func (d *Device) snapshot() deviceState {
	s := deviceState{
		ID:       d.id,
		Name:     d.name,
		State:    d.currentState().String(),
		Config:   d.config,
		Inflight: d.inflight.Load(),
	}
	if d.stats != nil {
		for _, name := range d.stats.Names() {
			v, _ := d.stats.ByName(name)
			s.Counters = append(s.Counters, counterValue{Name: name, Value: v})
		}
	}

	for id, q := range d.queues {
		qs := queueState{ID: uint8(id), SetUp: q != nil}
		if q != nil {
			qs.Config = &q.cfg
			qs.Links = intIDs(q.links)
			qs.Backlog = q.backlog.Len()
			if q.flows != nil {
				qs.Flows = q.flows.Bindings()
			}
			if q.order != nil {
				qs.Reorder = &reorderState{
					NextExpected: q.order.NextExpected(),
					Outstanding:  q.order.Outstanding(),
					Buffered:     q.order.Buffered(),
					Cap:          q.order.Cap(),
				}
			}
		}
		s.Queues = append(s.Queues, qs)
	}

	for id, p := range d.ports {
		ps := portState{ID: uint8(id), SetUp: p != nil}
		if p != nil {
			ps.Config = &p.cfg
			ps.Links = intIDs(sets.List(p.links))
			ps.Inflight = p.inflight.Load()
			ps.Admission = &ringState{Len: p.admission.Len(), Cap: p.admission.Cap()}
			ps.Delivery = &ringState{Len: p.delivery.Len(), Cap: p.delivery.Cap()}
			for _, h := range p.held.Snapshot() {
				ps.Held = append(ps.Held, heldState{Queue: h.queue, Flow: h.flow, Sequence: h.seq, Orphaned: h.orphaned})
			}
		}
		s.Ports = append(s.Ports, ps)
	}
	return s
}

func intIDs(ids []uint8) []int {
	if len(ids) == 0 {
		return nil
	}
	out := make([]int, len(ids))
	for i, id := range ids {
		out[i] = int(id)
	}
	return out
}
