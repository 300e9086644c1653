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

package logging

// Verbosity levels passed to logr's V(). Level 0 through 1 are reserved for messages that must always be seen.
const (
	// DEFAULT covers lifecycle transitions: configure, start, stop, close.
	DEFAULT = 2
	// VERBOSE covers topology changes such as links and port re-setup.
	VERBOSE = 3
	// DEBUG covers individual dropped or deferred events.
	DEBUG = 4
	// TRACE covers per-pass and per-call summaries on the hot path.
	TRACE = 5
)
