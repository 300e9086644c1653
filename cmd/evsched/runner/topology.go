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

package runner

import (
	"errors"
	"fmt"
	"os"

	"go.uber.org/multierr"
	"sigs.k8s.io/yaml"

	"github.com/zetxqx/eventsched/pkg/eventdev"
)

// Topology describes a device and the pipeline the runner drives through it.
type Topology struct {
	Device eventdev.DeviceConfig `json:"device"`
	// Queues is indexed by queue id and must have Device.NbQueues entries.
	Queues []eventdev.QueueConfig `json:"queues"`
	// Ports is indexed by port id. Missing entries take defaults.
	Ports    []eventdev.PortConfig `json:"ports,omitempty"`
	Links    []Link                `json:"links"`
	Pipeline Pipeline              `json:"pipeline"`
}

// Link links one port to a set of queues. An empty Queues links every queue.
type Link struct {
	Port   uint8   `json:"port"`
	Queues []uint8 `json:"queues,omitempty"`
}

// Pipeline assigns roles to the ports and queues of a topology. Producers admit NEW events for StageQueue on
// ProducerPort; each worker port forwards what it receives to SinkQueue; SinkPort releases everything it receives.
type Pipeline struct {
	ProducerPort uint8   `json:"producerPort"`
	StageQueue   uint8   `json:"stageQueue"`
	WorkerPorts  []uint8 `json:"workerPorts"`
	SinkQueue    uint8   `json:"sinkQueue"`
	SinkPort     uint8   `json:"sinkPort"`
}

// DefaultTopology returns a producer, worker and sink topology: port 0 produces into queue 0 with the given
// discipline, ports 1..workers consume it and forward to single-link queue 1, and the last port drains that queue.
func DefaultTopology(stage eventdev.Discipline, workers int) *Topology {
	sink := uint8(workers + 1)
	t := &Topology{
		Device: eventdev.DeviceConfig{NbQueues: 2, NbPorts: workers + 2},
		Queues: []eventdev.QueueConfig{
			{Discipline: stage},
			{Discipline: eventdev.SingleLink},
		},
		Pipeline: Pipeline{ProducerPort: 0, StageQueue: 0, SinkQueue: 1, SinkPort: sink},
	}
	for i := 1; i <= workers; i++ {
		t.Links = append(t.Links, Link{Port: uint8(i), Queues: []uint8{0}})
		t.Pipeline.WorkerPorts = append(t.Pipeline.WorkerPorts, uint8(i))
	}
	t.Links = append(t.Links, Link{Port: sink, Queues: []uint8{1}})
	return t
}

// LoadTopology reads a YAML topology from path and validates it.
func LoadTopology(path string) (*Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read topology file %q: %w", path, err)
	}
	return ParseTopology(data)
}

// ParseTopology decodes a YAML topology and validates it. Unknown fields are rejected.
func ParseTopology(data []byte) (*Topology, error) {
	t := &Topology{}
	if err := yaml.UnmarshalStrict(data, t); err != nil {
		return nil, fmt.Errorf("failed to decode topology: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate checks that the pipeline roles refer to queues and ports the device has, and that the sink is reachable.
// Device, queue and port configurations are validated by the device itself.
func (t *Topology) Validate() error {
	var errs error
	if len(t.Queues) != t.Device.NbQueues {
		errs = multierr.Append(errs, fmt.Errorf("%d queues configured for a device of %d", len(t.Queues), t.Device.NbQueues))
	}
	if len(t.Ports) > t.Device.NbPorts {
		errs = multierr.Append(errs, fmt.Errorf("%d ports configured for a device of %d", len(t.Ports), t.Device.NbPorts))
	}
	checkPort := func(role string, id uint8) {
		if int(id) >= t.Device.NbPorts {
			errs = multierr.Append(errs, fmt.Errorf("pipeline %s port %d: %w", role, id, eventdev.ErrInvalidPort))
		}
	}
	checkQueue := func(role string, id uint8) {
		if int(id) >= t.Device.NbQueues {
			errs = multierr.Append(errs, fmt.Errorf("pipeline %s queue %d: %w", role, id, eventdev.ErrInvalidQueue))
		}
	}

	p := t.Pipeline
	checkPort("producer", p.ProducerPort)
	checkPort("sink", p.SinkPort)
	checkQueue("stage", p.StageQueue)
	checkQueue("sink", p.SinkQueue)
	if len(p.WorkerPorts) == 0 {
		errs = multierr.Append(errs, errors.New("pipeline has no worker ports"))
	}
	for _, w := range p.WorkerPorts {
		checkPort("worker", w)
		if w == p.SinkPort || w == p.ProducerPort {
			errs = multierr.Append(errs, fmt.Errorf("worker port %d also has another pipeline role", w))
		}
	}
	if p.StageQueue == p.SinkQueue {
		errs = multierr.Append(errs, fmt.Errorf("stage and sink share queue %d", p.StageQueue))
	}
	for _, l := range t.Links {
		checkPort("link", l.Port)
	}

	if errs != nil {
		return fmt.Errorf("%w: topology: %w", eventdev.ErrInvalidConfig, errs)
	}
	return nil
}

func (t *Topology) stageDiscipline() (eventdev.Discipline, error) {
	id := t.Pipeline.StageQueue
	if int(id) >= len(t.Queues) {
		return 0, fmt.Errorf("stage queue %d: %w", id, eventdev.ErrInvalidQueue)
	}
	return t.Queues[id].Discipline, nil
}

// Build configures, sets up and links a device according to the topology. The device is left configured but not
// started.
func (t *Topology) Build(d *eventdev.Device) error {
	if err := d.Configure(t.Device); err != nil {
		return err
	}
	for id, cfg := range t.Queues {
		if err := d.QueueSetup(uint8(id), cfg); err != nil {
			return err
		}
	}
	for id := range t.Device.NbPorts {
		var cfg eventdev.PortConfig
		if id < len(t.Ports) {
			cfg = t.Ports[id]
		}
		if err := d.PortSetup(uint8(id), cfg); err != nil {
			return err
		}
	}
	for _, l := range t.Links {
		queues := l.Queues
		if len(queues) == 0 {
			queues = nil
		}
		if _, err := d.PortLink(l.Port, queues); err != nil {
			return err
		}
	}
	return nil
}
