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

// Package eventdev implements an in-memory event scheduler.
//
// Producers admit events on a port, a dispatch pass routes them through queues, and consumers dequeue them from the
// delivery ring of the port they were scheduled to. A consumer finishes an event by forwarding it to another queue or
// by releasing it. Both are themselves admitted on the consumer's port and take effect on the next pass.
//
// # Architecture
//
// A Device owns a fixed topology of queues and ports:
//
//   - Port: an admission ring, a delivery ring and a credit ceiling. The port counts the event slots it holds, one per
//     event scheduled to it that it has not yet forwarded or released.
//   - Queue: a routing point with a Discipline and an ordered list of linked ports.
//   - Dispatch: one synchronous pass over every port's admission ring. Passes never overlap; the caller decides when
//     to run one (see Device.Dispatch).
//
// # Disciplines
//
//   - Atomic: a flow id is pinned to one port while any of its events are held there (see package flowtable).
//   - Ordered: events fan out round robin. When they are forwarded, the original admission order is restored before
//     they reach the next queue (see package reorder).
//   - Parallel: events fan out round robin with no ordering guarantee.
//   - SingleLink: exactly one port is linked and receives everything.
//
// # Credits
//
// Every NEW event scheduled to a port takes one device-wide slot, bounded by DeviceConfig.NbEventsLimit, and one port
// slot, bounded by PortConfig.NewEventThreshold. A FORWARD moves the slot to the port the event is scheduled to next
// without charging again. A RELEASE frees it. Events that cannot get a slot are dropped and counted; events whose
// destination delivery ring is full wait in the queue's backlog for a later pass.
//
// # Concurrency
//
// EnqueueBurst and DequeueBurst are lock-free and may be called from any goroutine while the device is started.
// Dispatch must be driven by one goroutine at a time; a call that overlaps a running pass returns immediately.
// Configuration calls are only accepted while the device is not started, and callers must quiesce producers and
// consumers before reconfiguring.
package eventdev
