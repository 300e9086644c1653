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
	"sync/atomic"
	"time"

	"k8s.io/apimachinery/pkg/util/sets"

	logutil "github.com/zetxqx/eventsched/pkg/common/observability/logging"
	"github.com/zetxqx/eventsched/pkg/eventdev/backlog"
	"github.com/zetxqx/eventsched/pkg/eventdev/internal/ring"
)

type port struct {
	id  uint8
	cfg PortConfig

	admission *ring.Ring[Event]
	delivery  *ring.Ring[Event]
	// ready is signalled, without blocking, whenever dispatch delivers to the port.
	ready chan struct{}

	// inflight equals held.Len() outside a pass; it is kept separately so readers never take the held lock. The counter
	// belongs to the device configuration and survives re-setup of the port.
	inflight *atomic.Int64
	// held lists the slots the port holds in delivery order. FORWARD and RELEASE consume from the front.
	held *backlog.Queue[heldSlot]

	links sets.Set[uint8]
	// blocked is set during a pass once the delivery ring was found full.
	blocked bool
}

func newPort(id uint8, cfg *PortConfig, inflight *atomic.Int64) (*port, error) {
	// Any goroutine may admit on a port; only the dispatch pass consumes admissions.
	admission, err := ring.NewMPSC[Event](cfg.EnqueueDepth)
	if err != nil {
		return nil, fmt.Errorf("admission ring: %w", err)
	}
	// Only the dispatch pass delivers; any goroutine may dequeue.
	delivery, err := ring.NewSPMC[Event](cfg.DequeueDepth)
	if err != nil {
		return nil, fmt.Errorf("delivery ring: %w", err)
	}
	return &port{
		id:        id,
		cfg:       *cfg,
		admission: admission,
		delivery:  delivery,
		inflight:  inflight,
		ready:     make(chan struct{}, 1),
		held:      backlog.New[heldSlot](),
		links:     sets.New[uint8](),
	}, nil
}

func (p *port) signal() {
	select {
	case p.ready <- struct{}{}:
	default:
	}
}

// orphan marks the slots p holds for queue qid and returns how many it marked.
func (p *port) orphan(qid uint8) int {
	marked := 0
	for _, slot := range p.held.Drain() {
		if slot.queue == qid && !slot.orphaned {
			slot.orphaned = true
			marked++
		}
		p.held.Add(slot)
	}
	return marked
}

// reclaim empties the port and returns the number of slots it held.
func (p *port) reclaim() int64 {
	n := int64(len(p.held.Drain()))
	p.inflight.Store(0)
	p.admission.Drain()
	p.delivery.Drain()
	return n
}

// PortSetup creates or recreates a port. Recreating a port unlinks it from every queue and frees every slot it held;
// events in its rings are discarded.
func (d *Device) PortSetup(id uint8, cfg PortConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.checkMutable(); err != nil {
		return fmt.Errorf("port %d setup: %w", id, err)
	}
	if int(id) >= len(d.ports) {
		return fmt.Errorf("port %d setup: %w", id, ErrInvalidPort)
	}
	validated, err := cfg.ValidateAndApplyDefaults(d.config)
	if err != nil {
		return fmt.Errorf("port %d setup: %w", id, err)
	}
	p, err := newPort(id, validated, &d.counters.ports[id])
	if err != nil {
		return fmt.Errorf("port %d setup: %w", id, err)
	}

	if old := d.ports[id]; old != nil {
		d.teardownPort(old)
	}
	d.ports[id] = p
	d.logger.V(logutil.VERBOSE).Info("Port set up", "port", id, "config", validated)
	return nil
}

// teardownPort unlinks old and returns its held slots to the device. Ordered sequences it held are skipped; events
// this releases from a reorder window wait in their next queue's backlog until the device is started again.
func (d *Device) teardownPort(old *port) {
	for qid := range old.links {
		if q := d.queues[qid]; q != nil {
			q.unlink(old.id)
		}
	}
	delta := d.stats.NewDelta()
	slots := old.held.Drain()
	d.holdDelivery = true
	for _, slot := range slots {
		d.inflight.Add(-1)
		d.finishSlot(slot, nil, delta)
	}
	d.holdDelivery = false
	old.inflight.Store(0)
	d.stats.Apply(delta)
	if len(slots) > 0 {
		d.logger.V(logutil.VERBOSE).Info("Reclaimed slots from recreated port", "port", old.id, "slots", len(slots))
	}
}

// PortLink links port to queues and returns how many links exist afterwards among those requested. A nil queues links
// every queue that is set up. Linking stops at the first queue that cannot be linked.
func (d *Device) PortLink(portID uint8, queues []uint8) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, err := d.mutablePort(portID)
	if err != nil {
		return 0, fmt.Errorf("port %d link: %w", portID, err)
	}
	if queues == nil {
		for id, q := range d.queues {
			if q != nil {
				queues = append(queues, uint8(id))
			}
		}
	}

	linked := 0
	for _, qid := range queues {
		if int(qid) >= len(d.queues) {
			return linked, fmt.Errorf("port %d link queue %d: %w", portID, qid, ErrInvalidQueue)
		}
		q := d.queues[qid]
		if q == nil {
			return linked, fmt.Errorf("port %d link queue %d: %w", portID, qid, ErrQueueNotSetup)
		}
		if err := q.link(p.id); err != nil {
			return linked, fmt.Errorf("port %d link queue %d: %w", portID, qid, err)
		}
		p.links.Insert(qid)
		linked++
	}
	d.logger.V(logutil.VERBOSE).Info("Port linked", "port", portID, "queues", queues, "linked", linked)
	return linked, nil
}

// PortUnlink removes links and returns how many were removed. A nil queues removes every link of the port. Queues that
// were not linked are skipped.
func (d *Device) PortUnlink(portID uint8, queues []uint8) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, err := d.mutablePort(portID)
	if err != nil {
		return 0, fmt.Errorf("port %d unlink: %w", portID, err)
	}
	if queues == nil {
		queues = sets.List(p.links)
	}

	unlinked := 0
	for _, qid := range queues {
		if int(qid) >= len(d.queues) {
			return unlinked, fmt.Errorf("port %d unlink queue %d: %w", portID, qid, ErrInvalidQueue)
		}
		if !p.links.Has(qid) {
			continue
		}
		if q := d.queues[qid]; q != nil {
			q.unlink(p.id)
		}
		p.links.Delete(qid)
		unlinked++
	}
	d.logger.V(logutil.VERBOSE).Info("Port unlinked", "port", portID, "queues", queues, "unlinked", unlinked)
	return unlinked, nil
}

// PortLinks returns the queues port is linked to, in ascending order.
func (d *Device) PortLinks(portID uint8) ([]uint8, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.config == nil {
		return nil, ErrDeviceNotConfigured
	}
	if int(portID) >= len(d.ports) {
		return nil, fmt.Errorf("port %d: %w", portID, ErrInvalidPort)
	}
	p := d.ports[portID]
	if p == nil {
		return nil, fmt.Errorf("port %d: %w", portID, ErrPortNotSetup)
	}
	return sets.List(p.links), nil
}

func (d *Device) mutablePort(portID uint8) (*port, error) {
	if err := d.checkMutable(); err != nil {
		return nil, err
	}
	if int(portID) >= len(d.ports) {
		return nil, ErrInvalidPort
	}
	p := d.ports[portID]
	if p == nil {
		return nil, ErrPortNotSetup
	}
	return p, nil
}

// EnqueueBurst admits events on a port and returns how many were accepted. Acceptance stops when the admission ring
// is full; the caller retries the rest. Credit is not checked here. Nothing is accepted unless the device is started.
func (d *Device) EnqueueBurst(portID uint8, events []Event) int {
	if d.currentState() != stateStarted || int(portID) >= len(d.ports) {
		return 0
	}
	p := d.ports[portID]
	if p == nil {
		return 0
	}
	return p.admission.EnqueueBurst(events)
}

// DequeueBurst moves up to len(out) delivered events into out and returns the count. With a positive timeout it waits
// up to that long for a delivery when none is ready; a zero timeout polls. Dequeuing never changes credit.
func (d *Device) DequeueBurst(portID uint8, out []Event, timeout time.Duration) int {
	if len(out) == 0 {
		return 0
	}
	switch d.currentState() {
	case stateUnconfigured, stateClosed:
		return 0
	}
	if int(portID) >= len(d.ports) {
		return 0
	}
	p := d.ports[portID]
	if p == nil {
		return 0
	}

	if n := p.delivery.DequeueBurst(out); n > 0 || timeout <= 0 {
		return n
	}
	timer := d.clock.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-p.ready:
			if n := p.delivery.DequeueBurst(out); n > 0 {
				return n
			}
		case <-timer.C():
			return p.delivery.DequeueBurst(out)
		}
	}
}
