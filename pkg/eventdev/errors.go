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

import "errors"

var (
	// ErrInvalidConfig is returned when a device, queue or port configuration fails validation.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrInvalidQueue is returned for a queue id outside the configured range.
	ErrInvalidQueue = errors.New("invalid queue id")
	// ErrInvalidPort is returned for a port id outside the configured range.
	ErrInvalidPort = errors.New("invalid port id")
	// ErrQueueNotSetup is returned when a queue is used before QueueSetup.
	ErrQueueNotSetup = errors.New("queue not set up")
	// ErrPortNotSetup is returned when a port is used before PortSetup.
	ErrPortNotSetup = errors.New("port not set up")
	// ErrDeviceStarted is returned by topology changes while the device is started.
	ErrDeviceStarted = errors.New("device is started")
	// ErrDeviceNotConfigured is returned by calls that need Configure first.
	ErrDeviceNotConfigured = errors.New("device not configured")
	// ErrDeviceClosed is returned by every call after Close.
	ErrDeviceClosed = errors.New("device is closed")
	// ErrUnlinkedQueue is returned by Start when a queue has no linked port.
	ErrUnlinkedQueue = errors.New("queue has no linked port")
	// ErrSingleLinkTaken is returned when linking a second port to a single-link queue.
	ErrSingleLinkTaken = errors.New("single-link queue already linked to another port")
)
