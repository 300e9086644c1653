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
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
	metricsserver "sigs.k8s.io/controller-runtime/pkg/metrics/server"

	logutil "github.com/zetxqx/eventsched/pkg/common/observability/logging"
	"github.com/zetxqx/eventsched/pkg/common/observability/profiling"
	"github.com/zetxqx/eventsched/pkg/eventdev"
	"github.com/zetxqx/eventsched/pkg/eventdev/stats"
	"github.com/zetxqx/eventsched/version"
)

// DumpPath is the metrics server path that serves a live device dump.
const DumpPath = "/debug/eventdev"

var setupLog = ctrl.Log.WithName("setup")

func NewRunner() *Runner {
	return &Runner{
		executableName: "evsched",
		clock:          clock.RealClock{},
		stdout:         os.Stdout,
	}
}

// Runner builds a device from a topology, drives a producer, worker and sink pipeline through it and reports the
// outcome.
type Runner struct {
	executableName string
	clock          clock.Clock
	stdout         io.Writer
}

// WithExecutableName sets the name of the executable containing the runner.
// The name is used in the version log upon startup and is otherwise opaque.
func (r *Runner) WithExecutableName(exeName string) *Runner {
	r.executableName = exeName
	return r
}

// Run parses the command line and runs the pipeline until it completes, times out or ctx ends.
func (r *Runner) Run(ctx context.Context) error {
	setupLog.Info(r.executableName+" build", "version", version.Version, "commit-sha", version.CommitSHA,
		"build-ref", version.BuildRef)

	opts := NewOptions()
	opts.AddFlags(pflag.CommandLine)
	pflag.Parse()
	if err := opts.Validate(); err != nil {
		setupLog.Error(err, "Failed to validate flags")
		return err
	}
	logutil.InitLogging(&opts.ZapOptions, opts.LogVerbosity)

	flags := make(map[string]any)
	pflag.VisitAll(func(f *pflag.Flag) {
		flags[f.Name] = f.Value
	})
	setupLog.Info("Flags processed", "flags", flags)

	return r.RunWithOptions(ctx, opts)
}

// RunWithOptions runs the pipeline with already parsed options.
func (r *Runner) RunWithOptions(ctx context.Context, opts *Options) error {
	topology := DefaultTopology(opts.Stage, opts.Workers)
	if opts.TopologyFile != "" {
		var err error
		if topology, err = LoadTopology(opts.TopologyFile); err != nil {
			setupLog.Error(err, "Failed to load topology", "path", opts.TopologyFile)
			return err
		}
	}

	d := eventdev.New(eventdev.WithLogger(ctrl.Log), eventdev.WithClock(r.clock))
	if err := topology.Build(d); err != nil {
		setupLog.Error(err, "Failed to build device from topology")
		return err
	}
	collector := stats.NewCollector(d.Stats(), d.Name())
	if err := metrics.Registry.Register(collector); err != nil {
		setupLog.Error(err, "Failed to register device metrics")
		return err
	}
	defer metrics.Registry.Unregister(collector)

	if err := d.Start(); err != nil {
		setupLog.Error(err, "Failed to start device")
		return err
	}

	stage, err := topology.stageDiscipline()
	if err != nil {
		return err
	}
	load := Load{
		Producers:         opts.Producers,
		EventsPerProducer: opts.EventsPerProducer,
		Flows:             opts.Flows,
		CheckOrder:        stage == eventdev.Atomic || stage == eventdev.Ordered,
	}

	runCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	if opts.MetricsPort > 0 {
		srv, err := newMetricsServer(d, opts)
		if err != nil {
			setupLog.Error(err, "Failed to create metrics server")
			return err
		}
		g.Go(func() error { return srv.Start(gctx) })
	}

	var result Result
	g.Go(func() error {
		defer cancel()
		var err error
		result, err = RunPipeline(log.IntoContext(gctx, ctrl.Log), r.clock, d, topology.Pipeline, load)
		return err
	})

	setupLog.Info("Pipeline starting", "device", d.Name(), "stage", stage, "producers", load.Producers,
		"events", load.Producers*load.EventsPerProducer)
	runErr := g.Wait()
	setupLog.Info("Pipeline finished", "result", result)
	d.Stop()

	if err := r.writeDump(d, opts.DumpFile); err != nil {
		setupLog.Error(err, "Failed to write device dump")
	}
	if err := d.Close(); err != nil {
		setupLog.Error(err, "Failed to close device")
		return err
	}

	if runErr != nil && ctx.Err() == nil {
		setupLog.Error(runErr, "Pipeline did not complete", "timeout", opts.Timeout)
		return runErr
	}
	if result.Duplicates > 0 || result.OutOfOrder > 0 {
		err := fmt.Errorf("sink observed %d duplicate and %d out-of-order events", result.Duplicates, result.OutOfOrder)
		setupLog.Error(err, "Pipeline violated delivery guarantees", "stage", stage)
		return err
	}
	return nil
}

// newMetricsServer serves the controller-runtime registry, a live device dump and, when enabled, pprof handlers.
func newMetricsServer(d *eventdev.Device, opts *Options) (metricsserver.Server, error) {
	handlers := map[string]http.Handler{
		DumpPath: dumpHandler(d),
	}
	if opts.EnablePprof {
		setupLog.Info("Setting pprof handlers")
		for path, h := range profiling.Handlers() {
			handlers[path] = h
		}
	}
	return metricsserver.NewServer(metricsserver.Options{
		BindAddress:   fmt.Sprintf(":%d", opts.MetricsPort),
		ExtraHandlers: handlers,
	}, nil, nil)
}

func dumpHandler(d *eventdev.Device) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		if err := d.Dump(w); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}

func (r *Runner) writeDump(d *eventdev.Device, path string) error {
	switch path {
	case "":
		return nil
	case "-":
		return d.Dump(r.stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := d.Dump(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
