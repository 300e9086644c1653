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
	"slices"

	logutil "github.com/zetxqx/eventsched/pkg/common/observability/logging"
	"github.com/zetxqx/eventsched/pkg/eventdev/backlog"
	"github.com/zetxqx/eventsched/pkg/eventdev/flowtable"
	"github.com/zetxqx/eventsched/pkg/eventdev/reorder"
)

type queue struct {
	id  uint8
	cfg QueueConfig

	// links holds linked ports in link order; cursor is the round-robin position within it.
	links  []uint8
	cursor int

	// flows is set for Atomic queues only.
	flows *flowtable.Table
	// order is set for Ordered queues only.
	order *reorder.Buffer[Event]
	// backlog holds accepted events that found no delivery ring with room.
	backlog *backlog.Queue[Event]
}

func newQueue(id uint8, cfg *QueueConfig) (*queue, error) {
	q := &queue{
		id:      id,
		cfg:     *cfg,
		backlog: backlog.New[Event](),
	}
	var err error
	switch cfg.Discipline {
	case Atomic:
		q.flows, err = flowtable.New(cfg.NbFlows)
	case Ordered:
		q.order, err = reorder.New[Event](cfg.NbOrderSequences)
	}
	if err != nil {
		return nil, err
	}
	return q, nil
}

func (q *queue) link(port uint8) error {
	if slices.Contains(q.links, port) {
		return nil
	}
	if q.cfg.Discipline == SingleLink && len(q.links) > 0 {
		return fmt.Errorf("linked to port %d: %w", q.links[0], ErrSingleLinkTaken)
	}
	q.links = append(q.links, port)
	return nil
}

func (q *queue) unlink(port uint8) {
	i := slices.Index(q.links, port)
	if i < 0 {
		return
	}
	q.links = slices.Delete(q.links, i, i+1)
	if i < q.cursor {
		q.cursor--
	}
	if q.cursor >= len(q.links) {
		q.cursor = 0
	}
}

// reclaim empties the queue. It returns the number of slots its waiting events held and the number of events
// discarded.
func (q *queue) reclaim() (slots int64, discarded int) {
	for _, ev := range q.backlog.Drain() {
		discarded++
		if ev.credited {
			slots++
		}
	}
	if q.order != nil {
		// Only forwarded events complete a sequence, and they always carry a slot.
		n := len(q.order.Drain())
		slots += int64(n)
		discarded += n
	}
	if q.flows != nil {
		q.flows.Reset()
	}
	return slots, discarded
}

// QueueSetup creates or recreates a queue. Recreating a queue unlinks every port from it and drops the events waiting
// in it. Events of the old queue that ports already hold keep their slots until they are forwarded or released; they
// no longer touch the new queue's flow table or reorder window.
func (d *Device) QueueSetup(id uint8, cfg QueueConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.checkMutable(); err != nil {
		return fmt.Errorf("queue %d setup: %w", id, err)
	}
	if int(id) >= len(d.queues) {
		return fmt.Errorf("queue %d setup: %w", id, ErrInvalidQueue)
	}
	validated, err := cfg.ValidateAndApplyDefaults(d.config)
	if err != nil {
		return fmt.Errorf("queue %d setup: %w", id, err)
	}
	q, err := newQueue(id, validated)
	if err != nil {
		return fmt.Errorf("queue %d setup: %w", id, err)
	}

	if old := d.queues[id]; old != nil {
		d.teardownQueue(old)
	}
	d.queues[id] = q
	d.logger.V(logutil.VERBOSE).Info("Queue set up", "queue", id, "config", validated)
	return nil
}

func (d *Device) teardownQueue(old *queue) {
	orphaned := 0
	for _, p := range d.ports {
		if p == nil {
			continue
		}
		p.links.Delete(old.id)
		orphaned += p.orphan(old.id)
	}

	freed, waiting := old.reclaim()
	d.inflight.Add(-freed)

	if waiting > 0 {
		delta := d.stats.NewDelta()
		delta.Dev.Drop += uint64(waiting)
		delta.Queues[old.id].Drop += uint64(waiting)
		d.stats.Apply(delta)
	}
	if freed > 0 || waiting > 0 || orphaned > 0 {
		d.logger.V(logutil.VERBOSE).Info("Reclaimed recreated queue", "queue", old.id, "slots", freed, "dropped", waiting,
			"orphaned", orphaned)
	}
}

func (d *Device) queueByID(id uint8) *queue {
	if int(id) >= len(d.queues) {
		return nil
	}
	return d.queues[id]
}
