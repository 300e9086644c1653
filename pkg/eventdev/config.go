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

	"go.uber.org/multierr"
)

const (
	// MaxQueues is the largest queue count a device accepts; queue ids are uint8.
	MaxQueues = 256
	// MaxPorts is the largest port count a device accepts; port ids are uint8.
	MaxPorts = 256

	defaultNbQueueFlows     = 1024
	defaultNbEventsLimit    = 4096
	defaultPortDequeueDepth = 128
	defaultPortEnqueueDepth = 128
	defaultNbOrderSequences = 1024
)

// DeviceConfig sizes a device. Zero values take defaults.
type DeviceConfig struct {
	// NbQueues is the number of queues. Required.
	NbQueues int `json:"nbQueues"`
	// NbPorts is the number of ports. Required.
	NbPorts int `json:"nbPorts"`
	// NbQueueFlows is the default flow capacity of atomic queues.
	// Optional: Defaults to `defaultNbQueueFlows` (1024).
	NbQueueFlows int `json:"nbQueueFlows,omitempty"`
	// NbEventsLimit is the device-wide ceiling on in-flight event slots.
	// Optional: Defaults to `defaultNbEventsLimit` (4096).
	NbEventsLimit int `json:"nbEventsLimit,omitempty"`
	// PortDequeueDepth is the default and the maximum delivery ring size of a port.
	// Optional: Defaults to `defaultPortDequeueDepth` (128).
	PortDequeueDepth int `json:"portDequeueDepth,omitempty"`
	// PortEnqueueDepth is the default and the maximum admission ring size of a port.
	// Optional: Defaults to `defaultPortEnqueueDepth` (128).
	PortEnqueueDepth int `json:"portEnqueueDepth,omitempty"`
}

// QueueConfig describes one queue. Zero values take defaults from the device.
type QueueConfig struct {
	Discipline Discipline `json:"discipline"`
	// Priority is carried for diagnostics; it does not affect scheduling.
	Priority uint8 `json:"priority,omitempty"`
	// NbFlows is the flow-table size of an atomic queue.
	// Optional: Defaults to DeviceConfig.NbQueueFlows.
	NbFlows int `json:"nbFlows,omitempty"`
	// NbOrderSequences bounds the reorder window of an ordered queue.
	// Optional: Defaults to `defaultNbOrderSequences` (1024).
	NbOrderSequences int `json:"nbOrderSequences,omitempty"`
}

// PortConfig describes one port. Zero values take defaults from the device.
type PortConfig struct {
	// EnqueueDepth is the admission ring size. Must not exceed DeviceConfig.PortEnqueueDepth.
	EnqueueDepth int `json:"enqueueDepth,omitempty"`
	// DequeueDepth is the delivery ring size. Must not exceed DeviceConfig.PortDequeueDepth.
	DequeueDepth int `json:"dequeueDepth,omitempty"`
	// NewEventThreshold is the most slots the port may hold at once. Must not exceed DeviceConfig.NbEventsLimit.
	// Optional: Defaults to DeviceConfig.NbEventsLimit.
	NewEventThreshold int `json:"newEventThreshold,omitempty"`
}

// ValidateAndApplyDefaults returns a validated copy of the configuration with defaults filled in. The receiver is not
// modified. Every violation is reported, not only the first.
func (c DeviceConfig) ValidateAndApplyDefaults() (*DeviceConfig, error) {
	out := c
	var errs error
	if out.NbQueues <= 0 || out.NbQueues > MaxQueues {
		errs = multierr.Append(errs, fmt.Errorf("NbQueues must be in [1, %d], but got %d", MaxQueues, out.NbQueues))
	}
	if out.NbPorts <= 0 || out.NbPorts > MaxPorts {
		errs = multierr.Append(errs, fmt.Errorf("NbPorts must be in [1, %d], but got %d", MaxPorts, out.NbPorts))
	}
	errs = multierr.Append(errs, defaultPositive("NbQueueFlows", &out.NbQueueFlows, defaultNbQueueFlows))
	errs = multierr.Append(errs, defaultPositive("NbEventsLimit", &out.NbEventsLimit, defaultNbEventsLimit))
	errs = multierr.Append(errs, defaultPositive("PortDequeueDepth", &out.PortDequeueDepth, defaultPortDequeueDepth))
	errs = multierr.Append(errs, defaultPositive("PortEnqueueDepth", &out.PortEnqueueDepth, defaultPortEnqueueDepth))
	if errs != nil {
		return nil, fmt.Errorf("%w: device: %w", ErrInvalidConfig, errs)
	}
	return &out, nil
}

// ValidateAndApplyDefaults returns a validated copy of the queue configuration with defaults taken from dev, which
// must itself be validated.
func (c QueueConfig) ValidateAndApplyDefaults(dev *DeviceConfig) (*QueueConfig, error) {
	out := c
	var errs error
	if !out.Discipline.valid() {
		errs = multierr.Append(errs, fmt.Errorf("unknown discipline %d", uint8(out.Discipline)))
	}
	errs = multierr.Append(errs, defaultPositive("NbFlows", &out.NbFlows, dev.NbQueueFlows))
	errs = multierr.Append(errs, defaultPositive("NbOrderSequences", &out.NbOrderSequences, defaultNbOrderSequences))
	if errs != nil {
		return nil, fmt.Errorf("%w: queue: %w", ErrInvalidConfig, errs)
	}
	return &out, nil
}

// ValidateAndApplyDefaults returns a validated copy of the port configuration with defaults taken from dev, which
// must itself be validated.
func (c PortConfig) ValidateAndApplyDefaults(dev *DeviceConfig) (*PortConfig, error) {
	out := c
	var errs error
	errs = multierr.Append(errs, defaultBounded("EnqueueDepth", &out.EnqueueDepth, dev.PortEnqueueDepth))
	errs = multierr.Append(errs, defaultBounded("DequeueDepth", &out.DequeueDepth, dev.PortDequeueDepth))
	errs = multierr.Append(errs, defaultBounded("NewEventThreshold", &out.NewEventThreshold, dev.NbEventsLimit))
	if errs != nil {
		return nil, fmt.Errorf("%w: port: %w", ErrInvalidConfig, errs)
	}
	return &out, nil
}

func defaultPositive(name string, v *int, def int) error {
	switch {
	case *v < 0:
		return fmt.Errorf("%s cannot be negative, but got %d", name, *v)
	case *v == 0:
		*v = def
	}
	return nil
}

func defaultBounded(name string, v *int, limit int) error {
	if err := defaultPositive(name, v, limit); err != nil {
		return err
	}
	if *v > limit {
		return fmt.Errorf("%s must not exceed %d, but got %d", name, limit, *v)
	}
	return nil
}
