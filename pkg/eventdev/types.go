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
	"strings"
)

// Op is the operation an admitted event asks the scheduler to perform.
type Op uint8

const (
	// OpNew schedules a new event and charges it one slot.
	OpNew Op = iota
	// OpForward finishes the port's oldest held event and schedules this event onward, keeping the slot.
	OpForward
	// OpRelease finishes the port's oldest held event and frees its slot. Other fields are ignored.
	OpRelease
)

func (o Op) String() string {
	switch o {
	case OpNew:
		return "new"
	case OpForward:
		return "forward"
	case OpRelease:
		return "release"
	default:
		return fmt.Sprintf("op(%d)", uint8(o))
	}
}

// Discipline is the load-balancing policy of a queue.
type Discipline uint8

const (
	// Atomic pins each flow to one port while it has events held there.
	Atomic Discipline = iota
	// Ordered fans events out and restores admission order when they are forwarded.
	Ordered
	// Parallel fans events out with no ordering guarantee.
	Parallel
	// SingleLink delivers everything to the one linked port.
	SingleLink
)

var disciplineNames = [...]string{
	Atomic:     "atomic",
	Ordered:    "ordered",
	Parallel:   "parallel",
	SingleLink: "single_link",
}

func (d Discipline) String() string {
	if int(d) < len(disciplineNames) {
		return disciplineNames[d]
	}
	return fmt.Sprintf("discipline(%d)", uint8(d))
}

func (d Discipline) valid() bool { return int(d) < len(disciplineNames) }

// MarshalText implements encoding.TextMarshaler.
func (d Discipline) MarshalText() ([]byte, error) {
	if !d.valid() {
		return nil, fmt.Errorf("unknown discipline %d", uint8(d))
	}
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Names are matched case-insensitively.
func (d *Discipline) UnmarshalText(text []byte) error {
	name := strings.ToLower(string(text))
	for i, n := range disciplineNames {
		if n == name {
			*d = Discipline(i)
			return nil
		}
	}
	return fmt.Errorf("unknown discipline %q", text)
}

// Event is one unit of work. The payload is owned by the caller and passed through untouched.
type Event struct {
	Op       Op
	QueueID  uint8
	FlowID   uint32
	Priority uint8
	Payload  any

	// Set by the scheduler.
	origin    uint8
	seq       uint64
	sequenced bool
	credited  bool
}

// Origin returns the port the event was last admitted on.
func (e *Event) Origin() uint8 { return e.origin }

// Sequence returns the sequence number assigned by the ordered queue the event was last scheduled through.
func (e *Event) Sequence() (uint64, bool) { return e.seq, e.sequenced }

// heldSlot records one event a port holds, in delivery order.
type heldSlot struct {
	queue      uint8
	discipline Discipline
	flow       uint32
	seq        uint64
	// orphaned is set when the slot's queue was recreated while the port held the event. Finishing an orphaned slot
	// returns its credit and nothing else.
	orphaned bool
}
