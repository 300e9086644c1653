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
	"sync"
	"sync/atomic"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"k8s.io/utils/clock"

	logutil "github.com/zetxqx/eventsched/pkg/common/observability/logging"
	"github.com/zetxqx/eventsched/pkg/eventdev/stats"
)

type state int32

const (
	stateUnconfigured state = iota
	stateConfigured
	stateStarted
	stateStopped
	stateClosed
)

func (s state) String() string {
	switch s {
	case stateUnconfigured:
		return "Unconfigured"
	case stateConfigured:
		return "Configured"
	case stateStarted:
		return "Started"
	case stateStopped:
		return "Stopped"
	case stateClosed:
		return "Closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Device is an event scheduler instance. Create one with New, then Configure, set up every queue and port, link them
// and Start.
type Device struct {
	id     string
	name   string
	logger logr.Logger
	clock  clock.Clock

	// mu serializes configuration and lifecycle calls.
	mu sync.Mutex
	// passMu is held for the duration of a dispatch pass, and by callers that must not observe one half done.
	passMu sync.Mutex
	state  atomic.Int32

	config   *DeviceConfig
	queues   []*queue
	ports    []*port
	stats    *stats.Registry
	counters *slotCounters

	// inflight counts device-wide slots. It is shared between dispatch and readers and only updated atomically.
	inflight atomic.Int64

	// Owned by the dispatch pass.
	delta   *stats.Delta
	scratch []Event
	// holdDelivery sends every accepted event to its queue's backlog. It is set while a port is being torn down.
	holdDelivery bool
}

// Option configures a Device at construction.
type Option func(*Device)

// WithLogger sets the logger. Defaults to a discarding logger.
func WithLogger(logger logr.Logger) Option {
	return func(d *Device) {
		d.logger = logger
	}
}

// WithClock sets the clock used for dequeue timeouts.
func WithClock(c clock.Clock) Option {
	return func(d *Device) {
		d.clock = c
	}
}

// WithName sets a human-readable device name used in logs, dumps and metric labels.
func WithName(name string) Option {
	return func(d *Device) {
		d.name = name
	}
}

// New creates an unconfigured device.
func New(opts ...Option) *Device {
	d := &Device{
		id:     uuid.NewString(),
		logger: logr.Discard(),
		clock:  clock.RealClock{},
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.name == "" {
		d.name = "eventdev-" + d.id[:8]
	}
	d.logger = d.logger.WithName("eventdev").WithValues("device", d.name, "deviceID", d.id)
	return d
}

// ID returns the unique instance id.
func (d *Device) ID() string { return d.id }

// Name returns the device name.
func (d *Device) Name() string { return d.name }

func (d *Device) currentState() state { return state(d.state.Load()) }

// checkMutable reports whether the topology may be changed. The caller holds d.mu.
func (d *Device) checkMutable() error {
	switch d.currentState() {
	case stateUnconfigured:
		return ErrDeviceNotConfigured
	case stateStarted:
		return ErrDeviceStarted
	case stateClosed:
		return ErrDeviceClosed
	}
	return nil
}

// Configure sizes the device, discarding any previous topology and outstanding events. It is rejected while the
// device is started.
func (d *Device) Configure(cfg DeviceConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.currentState() {
	case stateStarted:
		return fmt.Errorf("configure: %w", ErrDeviceStarted)
	case stateClosed:
		return fmt.Errorf("configure: %w", ErrDeviceClosed)
	}
	validated, err := cfg.ValidateAndApplyDefaults()
	if err != nil {
		return err
	}

	d.config = validated
	d.queues = make([]*queue, validated.NbQueues)
	d.ports = make([]*port, validated.NbPorts)
	d.counters = &slotCounters{device: &d.inflight, ports: make([]atomic.Int64, validated.NbPorts)}
	d.stats = stats.NewRegistry(validated.NbPorts, validated.NbQueues, d.counters)
	d.delta = d.stats.NewDelta()
	d.scratch = make([]Event, validated.PortEnqueueDepth)
	d.inflight.Store(0)
	d.state.Store(int32(stateConfigured))

	d.logger.V(logutil.DEFAULT).Info("Device configured", "config", validated)
	return nil
}

// Config returns a copy of the validated device configuration.
func (d *Device) Config() (DeviceConfig, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.config == nil {
		return DeviceConfig{}, ErrDeviceNotConfigured
	}
	return *d.config, nil
}

// Start validates the topology and begins accepting events. Every queue and port must be set up and every queue must
// have a linked port; all violations are reported together.
func (d *Device) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.currentState() {
	case stateUnconfigured:
		return fmt.Errorf("start: %w", ErrDeviceNotConfigured)
	case stateStarted:
		return nil
	case stateClosed:
		return fmt.Errorf("start: %w", ErrDeviceClosed)
	}

	var errs error
	for id, q := range d.queues {
		switch {
		case q == nil:
			errs = multierr.Append(errs, fmt.Errorf("queue %d: %w", id, ErrQueueNotSetup))
		case len(q.links) == 0:
			errs = multierr.Append(errs, fmt.Errorf("queue %d: %w", id, ErrUnlinkedQueue))
		}
	}
	for id, p := range d.ports {
		if p == nil {
			errs = multierr.Append(errs, fmt.Errorf("port %d: %w", id, ErrPortNotSetup))
		}
	}
	if errs != nil {
		return fmt.Errorf("start: %w", errs)
	}

	d.state.Store(int32(stateStarted))
	d.logger.V(logutil.DEFAULT).Info("Device started")
	return nil
}

// Stop ends admission and dispatch. It waits for a dispatch pass in progress to finish. Events already in rings,
// backlogs and reorder windows are kept and resume on the next Start.
func (d *Device) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.currentState() != stateStarted {
		return
	}
	d.state.Store(int32(stateStopped))
	// Wait out a pass that began before the state change.
	d.passMu.Lock()
	d.passMu.Unlock() //nolint:staticcheck
	d.logger.V(logutil.DEFAULT).Info("Device stopped")
}

// Close stops the device, reclaims every outstanding slot and makes the device unusable. Close reports an error when
// the slots it found do not match the in-flight counter.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.currentState() == stateClosed {
		return ErrDeviceClosed
	}
	d.state.Store(int32(stateClosed))
	d.passMu.Lock()
	defer d.passMu.Unlock()

	if d.config == nil {
		d.logger.V(logutil.DEFAULT).Info("Device closed")
		return nil
	}

	var reclaimed int64
	for _, q := range d.queues {
		if q != nil {
			slots, _ := q.reclaim()
			reclaimed += slots
		}
	}
	for _, p := range d.ports {
		if p != nil {
			reclaimed += p.reclaim()
		}
	}
	counted := d.inflight.Swap(0)

	d.logger.V(logutil.DEFAULT).Info("Device closed", "reclaimedSlots", reclaimed)
	if reclaimed != counted {
		return fmt.Errorf("close: reclaimed %d slots but %d were counted in flight", reclaimed, counted)
	}
	return nil
}

// StatByName returns the value of one counter. See package stats for the names.
func (d *Device) StatByName(name string) (uint64, error) {
	reg := d.Stats()
	if reg == nil {
		return 0, ErrDeviceNotConfigured
	}
	return reg.ByName(name)
}

// Stats returns the counter registry, or nil before Configure. The registry is replaced by every Configure.
func (d *Device) Stats() *stats.Registry {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// Inflight returns the number of device-wide slots currently allocated.
func (d *Device) Inflight() int64 { return d.inflight.Load() }

// PortInflight returns the number of slots port holds, or 0 for a port that is not set up.
func (d *Device) PortInflight(port int) int64 {
	d.mu.Lock()
	c := d.counters
	d.mu.Unlock()
	if c == nil {
		return 0
	}
	return c.PortInflight(port)
}

// slotCounters are the in-flight counts one configuration publishes to its stats registry. Ports update them in
// place, so a registry reader never touches the port table while it is being set up.
type slotCounters struct {
	device *atomic.Int64
	ports  []atomic.Int64
}

func (c *slotCounters) Inflight() int64 { return c.device.Load() }

func (c *slotCounters) PortInflight(port int) int64 {
	if port < 0 || port >= len(c.ports) {
		return 0
	}
	return c.ports[port].Load()
}

var _ stats.InflightSource = &slotCounters{}
