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
	"flag"
	"fmt"
	"time"

	"github.com/spf13/pflag"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/zetxqx/eventsched/pkg/common/observability/logging"
	"github.com/zetxqx/eventsched/pkg/eventdev"
)

const DefaultMetricsPort = 9090

// Options contains the command-line configuration for the scheduler runner.
type Options struct {
	//
	// Workload.
	//
	TopologyFile      string              // YAML topology; the built-in topology is used when empty.
	Stage             eventdev.Discipline // Discipline of the built-in topology's worker stage.
	Workers           int                 // Worker ports of the built-in topology.
	Producers         int                 // Producer goroutines.
	EventsPerProducer int                 // Events each producer admits.
	Flows             int                 // Distinct flow ids spread over the events.
	Timeout           time.Duration       // Upper bound on the whole run.
	//
	// Diagnostics.
	//
	LogVerbosity int         // Number for the log level verbosity; --zap-log-level overrides it.
	ZapOptions   zap.Options // Zap logging options.
	MetricsPort  int         // The metrics port; 0 disables the metrics server.
	EnablePprof  bool        // Enables pprof handlers on the metrics server.
	DumpFile     string      // Where the final device dump is written; "-" is stdout, empty disables it.
}

// NewOptions returns a new Options struct initialized with default values.
func NewOptions() *Options {
	return &Options{
		Stage:             eventdev.Atomic,
		Workers:           4,
		Producers:         2,
		EventsPerProducer: 10000,
		Flows:             64,
		Timeout:           time.Minute,
		LogVerbosity:      logging.DEFAULT,
		ZapOptions:        zap.Options{Development: true},
		MetricsPort:       DefaultMetricsPort,
		DumpFile:          "-",
	}
}

// AddFlags binds the Options fields to command-line flags on the given FlagSet.
func (opts *Options) AddFlags(fs *pflag.FlagSet) {
	if fs == nil {
		fs = pflag.CommandLine
	}

	fs.StringVar(&opts.TopologyFile, "topology", opts.TopologyFile,
		"Path to a YAML topology file. When empty a built-in producer, worker and sink topology is used.")
	fs.Var(disciplineValue{&opts.Stage}, "stage",
		"Discipline of the built-in topology's worker stage: atomic, ordered or parallel.")
	fs.IntVar(&opts.Workers, "workers", opts.Workers,
		"Number of worker ports in the built-in topology.")
	fs.IntVar(&opts.Producers, "producers", opts.Producers,
		"Number of producer goroutines.")
	fs.IntVar(&opts.EventsPerProducer, "events", opts.EventsPerProducer,
		"Number of events each producer admits.")
	fs.IntVar(&opts.Flows, "flows", opts.Flows,
		"Number of distinct flow ids the events are spread over.")
	fs.DurationVar(&opts.Timeout, "timeout", opts.Timeout,
		"Upper bound on the duration of the run.")
	fs.IntVarP(&opts.LogVerbosity, "v", "v", opts.LogVerbosity,
		"Number for the log level verbosity.")
	fs.IntVar(&opts.MetricsPort, "metrics-port", opts.MetricsPort,
		"The metrics port. 0 disables the metrics server.")
	fs.BoolVar(&opts.EnablePprof, "enable-pprof", opts.EnablePprof,
		"Enables pprof handlers on the metrics server.")
	fs.StringVar(&opts.DumpFile, "dump", opts.DumpFile,
		`File the final device dump is written to. "-" writes to stdout and an empty value disables the dump.`)

	// Bind zap flags (zap expects a standard Go FlagSet; pflag.FlagSet is not compatible).
	gofs := flag.NewFlagSet("zap", flag.ExitOnError)
	opts.ZapOptions.BindFlags(gofs)
	fs.AddGoFlagSet(gofs)
}

// Validate checks the Options for invalid or conflicting values.
func (opts *Options) Validate() error {
	for _, pc := range []struct {
		name  string
		value int
	}{
		{"workers", opts.Workers},
		{"producers", opts.Producers},
		{"events", opts.EventsPerProducer},
		{"flows", opts.Flows},
	} {
		if pc.value < 1 {
			return fmt.Errorf("invalid value %d for flag %q: must be positive", pc.value, pc.name)
		}
	}
	if opts.TopologyFile == "" && opts.Stage == eventdev.SingleLink {
		return fmt.Errorf("invalid value %q for flag %q: the worker stage must fan out", opts.Stage, "stage")
	}
	if opts.TopologyFile == "" && opts.Workers+2 > eventdev.MaxPorts {
		return fmt.Errorf("invalid value %d for flag %q: at most %d workers fit on a device", opts.Workers, "workers",
			eventdev.MaxPorts-2)
	}
	if opts.Timeout <= 0 {
		return fmt.Errorf("invalid value %v for flag %q: must be positive", opts.Timeout, "timeout")
	}
	if opts.MetricsPort < 0 || opts.MetricsPort > 65535 {
		return fmt.Errorf("invalid value %d for flag %q: must be between 0 and 65535", opts.MetricsPort, "metrics-port")
	}
	if opts.LogVerbosity < 0 {
		return fmt.Errorf("invalid value %d for flag %q: must be >= 0", opts.LogVerbosity, "v")
	}
	return nil
}

// disciplineValue adapts a Discipline to pflag.Value.
type disciplineValue struct {
	d *eventdev.Discipline
}

func (v disciplineValue) String() string {
	if v.d == nil {
		return ""
	}
	return v.d.String()
}

func (v disciplineValue) Set(s string) error {
	return v.d.UnmarshalText([]byte(s))
}

func (v disciplineValue) Type() string { return "discipline" }
