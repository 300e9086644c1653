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
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/zetxqx/eventsched/pkg/eventdev"
)

func TestNewOptionsDefaults(t *testing.T) {
	t.Parallel()
	opts := NewOptions()

	assert.Equal(t, eventdev.Atomic, opts.Stage)
	assert.Equal(t, 4, opts.Workers)
	assert.Equal(t, DefaultMetricsPort, opts.MetricsPort)
	assert.Equal(t, 2, opts.LogVerbosity, "logging.DEFAULT")
	assert.Equal(t, "-", opts.DumpFile)
	assert.NoError(t, opts.Validate())
}

func TestAddFlagsOverridesDefaults(t *testing.T) {
	t.Parallel()
	opts := NewOptions()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	opts.AddFlags(fs)

	args := []string{
		"--topology", "/tmp/topology.yaml",
		"--stage", "ORDERED",
		"--workers", "8",
		"--producers", "3",
		"--events", "100",
		"--flows", "7",
		"--timeout", "5s",
		"--metrics-port", "0",
		"--enable-pprof",
		"--dump", "",
		"-v", "4",
	}
	require.NoError(t, fs.Parse(args))

	assert.Equal(t, "/tmp/topology.yaml", opts.TopologyFile)
	assert.Equal(t, eventdev.Ordered, opts.Stage)
	assert.Equal(t, 8, opts.Workers)
	assert.Equal(t, 3, opts.Producers)
	assert.Equal(t, 100, opts.EventsPerProducer)
	assert.Equal(t, 7, opts.Flows)
	assert.Equal(t, 5*time.Second, opts.Timeout)
	assert.Equal(t, 0, opts.MetricsPort)
	assert.True(t, opts.EnablePprof)
	assert.Empty(t, opts.DumpFile)
	assert.Equal(t, 4, opts.LogVerbosity)
}

func TestUnknownStageRejected(t *testing.T) {
	t.Parallel()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	NewOptions().AddFlags(fs)

	assert.Error(t, fs.Parse([]string{"--stage", "fifo"}))
}

func TestZapLevelFlag(t *testing.T) {
	t.Parallel()

	t.Run("VerbosityOnly", func(t *testing.T) {
		t.Parallel()
		opts := NewOptions()
		fs := pflag.NewFlagSet("test-verbosity", pflag.ContinueOnError)
		opts.AddFlags(fs)
		require.NoError(t, fs.Parse([]string{"-v", "5"}))

		assert.Equal(t, 5, opts.LogVerbosity)
		assert.Nil(t, opts.ZapOptions.Level, "without --zap-log-level the level comes from -v")
	})

	t.Run("ExplicitZapLevel", func(t *testing.T) {
		t.Parallel()
		opts := NewOptions()
		fs := pflag.NewFlagSet("test-explicit-zap", pflag.ContinueOnError)
		opts.AddFlags(fs)
		require.NoError(t, fs.Parse([]string{"-v", "5", "--zap-log-level", "error"}))

		require.NotNil(t, opts.ZapOptions.Level)
		assert.False(t, opts.ZapOptions.Level.Enabled(zapcore.InfoLevel), "--zap-log-level sets the level")
	})
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		mutate      func(*Options)
		expectError bool
	}{
		{
			name:   "defaults are valid",
			mutate: func(_ *Options) {},
		},
		{
			name:        "no workers",
			mutate:      func(o *Options) { o.Workers = 0 },
			expectError: true,
		},
		{
			name:        "negative producers",
			mutate:      func(o *Options) { o.Producers = -1 },
			expectError: true,
		},
		{
			name:        "no events",
			mutate:      func(o *Options) { o.EventsPerProducer = 0 },
			expectError: true,
		},
		{
			name:        "no flows",
			mutate:      func(o *Options) { o.Flows = 0 },
			expectError: true,
		},
		{
			name:        "single-link stage cannot fan out",
			mutate:      func(o *Options) { o.Stage = eventdev.SingleLink },
			expectError: true,
		},
		{
			name: "single-link stage allowed with a topology file",
			mutate: func(o *Options) {
				o.Stage = eventdev.SingleLink
				o.TopologyFile = "topology.yaml"
			},
		},
		{
			name:        "too many workers",
			mutate:      func(o *Options) { o.Workers = eventdev.MaxPorts },
			expectError: true,
		},
		{
			name:        "zero timeout",
			mutate:      func(o *Options) { o.Timeout = 0 },
			expectError: true,
		},
		{
			name:   "metrics disabled",
			mutate: func(o *Options) { o.MetricsPort = 0 },
		},
		{
			name:        "metrics port above 65535",
			mutate:      func(o *Options) { o.MetricsPort = 70000 },
			expectError: true,
		},
		{
			name:        "negative verbosity",
			mutate:      func(o *Options) { o.LogVerbosity = -1 },
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			opts := NewOptions()
			tt.mutate(opts)
			err := opts.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
