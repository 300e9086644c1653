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
	logutil "github.com/zetxqx/eventsched/pkg/common/observability/logging"
	"github.com/zetxqx/eventsched/pkg/eventdev/stats"
)

// Dispatch runs one scheduling pass and returns the number of events delivered to ports during it.
//
// A pass first retries every queue backlog, then drains each port's admission ring in port order, taking at most one
// ring's worth of events per port. Counter changes are published once, when the pass ends. Dispatch does nothing and
// returns 0 unless the device is started, or when another pass is already running.
func (d *Device) Dispatch() int {
	if !d.passMu.TryLock() {
		return 0
	}
	defer d.passMu.Unlock()
	if d.currentState() != stateStarted {
		return 0
	}

	delta := d.delta
	delta.Reset()
	for _, p := range d.ports {
		p.blocked = false
	}

	delivered := 0
	for _, q := range d.queues {
		delivered += d.retryBacklog(q, delta)
	}
	admitted := 0
	for _, p := range d.ports {
		n := p.admission.DequeueBurst(d.scratch)
		admitted += n
		for i := range n {
			delivered += d.admit(p, d.scratch[i], delta)
		}
		clear(d.scratch[:n])
	}

	if !delta.IsZero() {
		d.stats.Apply(delta)
	}
	if admitted > 0 || delivered > 0 {
		d.logger.V(logutil.TRACE).Info("Dispatch pass", "admitted", admitted, "delivered", delivered,
			"inflight", d.inflight.Load())
	}
	return delivered
}

// admit processes one event taken from p's admission ring.
func (d *Device) admit(p *port, ev Event, delta *stats.Delta) int {
	ev.origin = p.id
	switch ev.Op {
	case OpNew:
		q := d.queueByID(ev.QueueID)
		if q == nil {
			delta.Ports[p.id].Drop++
			d.logger.V(logutil.DEBUG).Info("Dropping event for unknown queue", "port", p.id, "queue", ev.QueueID)
			return 0
		}
		delta.Ports[p.id].RX++
		ev.seq, ev.sequenced, ev.credited = 0, false, false
		return d.enqueue(q, ev, delta)

	case OpForward:
		slot, ok := p.held.PopHead()
		if !ok {
			delta.Ports[p.id].Drop++
			d.logger.V(logutil.DEBUG).Info("Dropping forward from port holding no event", "port", p.id)
			return 0
		}
		p.inflight.Add(-1)
		if d.queueByID(ev.QueueID) == nil {
			delta.Ports[p.id].Drop++
			d.inflight.Add(-1)
			d.logger.V(logutil.DEBUG).Info("Dropping forward to unknown queue", "port", p.id, "queue", ev.QueueID)
			return d.finishSlot(slot, nil, delta)
		}
		delta.Ports[p.id].RX++
		ev.credited = true
		return d.finishSlot(slot, &ev, delta)

	case OpRelease:
		slot, ok := p.held.PopHead()
		if !ok {
			d.logger.V(logutil.DEBUG).Info("Ignoring release from port holding no event", "port", p.id)
			return 0
		}
		p.inflight.Add(-1)
		d.inflight.Add(-1)
		return d.finishSlot(slot, nil, delta)

	default:
		delta.Ports[p.id].Drop++
		d.logger.V(logutil.DEBUG).Info("Dropping event with unknown op", "port", p.id, "op", ev.Op)
		return 0
	}
}

// finishSlot ends a slot a port held. fwd is the event that continues downstream, or nil when the slot was released.
// The caller has already settled the slot's credit.
func (d *Device) finishSlot(slot heldSlot, fwd *Event, delta *stats.Delta) int {
	q := d.queues[slot.queue]
	switch {
	case slot.orphaned:
	case slot.discipline == Atomic:
		if _, err := q.flows.Release(slot.flow); err != nil {
			d.logger.Error(err, "Flow table out of step with held slots", "queue", q.id)
		}
	case slot.discipline == Ordered:
		var err error
		if fwd != nil {
			err = q.order.Complete(slot.seq, *fwd)
		} else {
			err = q.order.Skip(slot.seq)
		}
		if err != nil {
			d.logger.Error(err, "Reorder window out of step with held slots", "queue", q.id)
		}
		return d.flushOrder(q, delta)
	}
	if fwd == nil {
		return 0
	}
	return d.enqueue(d.queues[fwd.QueueID], *fwd, delta)
}

// flushOrder routes every forwarded event of an ordered queue that is no longer waiting on an earlier sequence.
func (d *Device) flushOrder(q *queue, delta *stats.Delta) int {
	delivered := 0
	q.order.Flush(func(_ uint64, ev Event) {
		delivered += d.enqueue(d.queues[ev.QueueID], ev, delta)
	})
	return delivered
}

// enqueue accepts ev into q and tries to deliver it.
func (d *Device) enqueue(q *queue, ev Event, delta *stats.Delta) int {
	if q.cfg.Discipline == Ordered {
		seq, err := q.order.Reserve()
		if err != nil {
			delta.Dev.Drop++
			delta.Queues[q.id].Drop++
			if ev.credited {
				d.inflight.Add(-1)
			}
			d.logger.V(logutil.DEBUG).Info("Dropping event, reorder window full", "queue", q.id, "flow", ev.FlowID)
			return 0
		}
		ev.seq, ev.sequenced = seq, true
	}
	delta.Queues[q.id].RX++

	// Nothing may overtake events already waiting.
	if d.holdDelivery || q.backlog.Len() > 0 {
		q.backlog.Add(ev)
		return 0
	}
	delivered, consumed := d.place(q, &ev, delta)
	if !consumed {
		q.backlog.Add(ev)
		d.logger.V(logutil.DEBUG).Info("Deferring event, delivery ring full", "queue", q.id, "flow", ev.FlowID)
	}
	return delivered
}

// retryBacklog delivers what it can from q's backlog. Atomic queues let flows whose port has room pass flows whose port
// is full; the other disciplines stop at the first event that cannot be placed.
func (d *Device) retryBacklog(q *queue, delta *stats.Delta) int {
	if q.backlog.Len() == 0 {
		return 0
	}
	delivered := 0
	if q.cfg.Discipline == Atomic {
		q.backlog.Cleanup(func(ev Event) bool {
			n, consumed := d.place(q, &ev, delta)
			delivered += n
			return consumed
		})
		return delivered
	}
	for range q.backlog.Len() {
		ev, ok := q.backlog.PeekHead()
		if !ok {
			break
		}
		n, consumed := d.place(q, &ev, delta)
		delivered += n
		if !consumed {
			break
		}
		q.backlog.PopHead()
	}
	return delivered
}

// place schedules ev to a port of q. consumed is false when every candidate delivery ring is full and the event must
// wait; otherwise the event was delivered or dropped. delivered also counts events released from a reorder window as a
// consequence.
func (d *Device) place(q *queue, ev *Event, delta *stats.Delta) (delivered int, consumed bool) {
	p := d.selectPort(q, ev)
	if p == nil {
		return 0, false
	}

	if ev.credited {
		p.inflight.Add(1)
	} else if !d.charge(p) {
		delta.Dev.Drop++
		delta.Queues[q.id].Drop++
		d.logger.V(logutil.DEBUG).Info("Dropping event, no credit", "queue", q.id, "port", p.id, "flow", ev.FlowID)
		if q.cfg.Discipline == Ordered {
			if err := q.order.Skip(ev.seq); err != nil {
				d.logger.Error(err, "Reorder window out of step with dropped event", "queue", q.id)
			}
			return d.flushOrder(q, delta), true
		}
		return 0, true
	}

	if !p.delivery.Enqueue(*ev) {
		p.inflight.Add(-1)
		if !ev.credited {
			d.inflight.Add(-1)
		}
		p.blocked = true
		return 0, false
	}
	if q.cfg.Discipline == Atomic {
		if err := q.flows.Acquire(ev.FlowID, int(p.id)); err != nil {
			d.logger.Error(err, "Flow scheduled away from its pinned port", "queue", q.id)
		}
	}
	p.held.Add(heldSlot{queue: q.id, discipline: q.cfg.Discipline, flow: ev.FlowID, seq: ev.seq})

	delta.Dev.RX++
	delta.Dev.TX++
	delta.Ports[p.id].TX++
	delta.Queues[q.id].TX++
	p.signal()
	return 1, true
}

// selectPort picks the destination for ev, or nil when the port it must go to cannot take it in this pass.
func (d *Device) selectPort(q *queue, ev *Event) *port {
	if len(q.links) == 0 {
		return nil
	}
	switch q.cfg.Discipline {
	case SingleLink:
		return d.available(d.ports[q.links[0]])
	case Atomic:
		id, ok := q.flows.Resolve(ev.FlowID, func() (int, bool) {
			if p := d.nextPort(q); p != nil {
				return int(p.id), true
			}
			return 0, false
		})
		if !ok {
			return nil
		}
		p := d.ports[id]
		if !p.links.Has(q.id) {
			// Pinned to a port unlinked since. The flow waits until that port finishes its events.
			return nil
		}
		return d.available(p)
	default:
		return d.nextPort(q)
	}
}

// nextPort returns the next linked port in round-robin order that has room, advancing the cursor past it.
func (d *Device) nextPort(q *queue) *port {
	for i := range len(q.links) {
		idx := (q.cursor + i) % len(q.links)
		if p := d.available(d.ports[q.links[idx]]); p != nil {
			q.cursor = (idx + 1) % len(q.links)
			return p
		}
	}
	return nil
}

func (d *Device) available(p *port) *port {
	if p.blocked {
		return nil
	}
	if p.delivery.Full() {
		p.blocked = true
		return nil
	}
	return p
}

// charge takes one device slot and one slot of p, or neither.
func (d *Device) charge(p *port) bool {
	limit := int64(d.config.NbEventsLimit)
	for {
		cur := d.inflight.Load()
		if cur >= limit {
			return false
		}
		if d.inflight.CompareAndSwap(cur, cur+1) {
			break
		}
	}
	if p.inflight.Add(1) > int64(p.cfg.NewEventThreshold) {
		p.inflight.Add(-1)
		d.inflight.Add(-1)
		return false
	}
	return true
}
