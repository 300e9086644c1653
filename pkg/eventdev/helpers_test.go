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
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type linkSpec struct {
	port   uint8
	queues []uint8
}

// testTopology describes a device for a test. Ports without an entry in ports use PortConfig{}.
type testTopology struct {
	device DeviceConfig
	queues []QueueConfig
	ports  []PortConfig
	links  []linkSpec
}

func newConfiguredDevice(t *testing.T, topo testTopology, opts ...Option) *Device {
	t.Helper()
	d := New(append([]Option{WithLogger(logr.Discard())}, opts...)...)
	t.Cleanup(func() { _ = d.Close() })

	require.NoError(t, d.Configure(topo.device), "Test setup: Configure should succeed")
	for id, cfg := range topo.queues {
		require.NoError(t, d.QueueSetup(uint8(id), cfg), "Test setup: QueueSetup(%d) should succeed", id)
	}
	for id := range topo.device.NbPorts {
		var cfg PortConfig
		if id < len(topo.ports) {
			cfg = topo.ports[id]
		}
		require.NoError(t, d.PortSetup(uint8(id), cfg), "Test setup: PortSetup(%d) should succeed", id)
	}
	for _, l := range topo.links {
		n, err := d.PortLink(l.port, l.queues)
		require.NoError(t, err, "Test setup: PortLink(%d) should succeed", l.port)
		require.Equal(t, len(l.queues), n, "Test setup: PortLink(%d) should link every queue", l.port)
	}
	return d
}

func newStartedDevice(t *testing.T, topo testTopology, opts ...Option) *Device {
	t.Helper()
	d := newConfiguredDevice(t, topo, opts...)
	require.NoError(t, d.Start(), "Test setup: Start should succeed")
	return d
}

// singleLinkTopology is one single-link queue fed from port 0 and consumed by port 1.
func singleLinkTopology() testTopology {
	return testTopology{
		device: DeviceConfig{NbQueues: 1, NbPorts: 2},
		queues: []QueueConfig{{Discipline: SingleLink}},
		links:  []linkSpec{{port: 1, queues: []uint8{0}}},
	}
}

func newEvent(queue uint8, flow uint32, payload any) Event {
	return Event{Op: OpNew, QueueID: queue, FlowID: flow, Payload: payload}
}

func mustEnqueue(t *testing.T, d *Device, port uint8, events ...Event) {
	t.Helper()
	require.Equal(t, len(events), d.EnqueueBurst(port, events), "every event should be admitted on port %d", port)
}

func forward(ev Event, queue uint8) Event {
	ev.Op = OpForward
	ev.QueueID = queue
	return ev
}

func release() Event { return Event{Op: OpRelease} }

func releases(n int) []Event {
	out := make([]Event, n)
	for i := range out {
		out[i] = release()
	}
	return out
}

// drain dequeues everything currently delivered to port without waiting.
func drain(d *Device, port uint8) []Event {
	var all []Event
	out := make([]Event, 16)
	for {
		n := d.DequeueBurst(port, out, 0)
		if n == 0 {
			return all
		}
		all = append(all, out[:n]...)
	}
}

func payloads(events []Event) []any {
	out := make([]any, len(events))
	for i, ev := range events {
		out[i] = ev.Payload
	}
	return out
}

func counter(t *testing.T, d *Device, name string) uint64 {
	t.Helper()
	v, err := d.StatByName(name)
	require.NoError(t, err, "counter %q should exist", name)
	return v
}

// counters returns every counter of the device by name.
func counters(t *testing.T, d *Device) map[string]uint64 {
	t.Helper()
	reg := d.Stats()
	require.NotNil(t, reg)
	out := make(map[string]uint64, len(reg.Names()))
	for _, name := range reg.Names() {
		out[name] = counter(t, d, name)
	}
	return out
}

func assertCounters(t *testing.T, d *Device, want map[string]uint64) {
	t.Helper()
	for name, v := range want {
		assert.Equalf(t, v, counter(t, d, name), "counter %s", name)
	}
}
