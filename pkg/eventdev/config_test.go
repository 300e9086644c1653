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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceConfig_ValidateAndApplyDefaults(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name        string
		cfg         DeviceConfig
		expectErr   bool
		errContains []string
		assertion   func(*testing.T, *DeviceConfig)
	}{
		{
			name: "ShouldApplyDefaults_WhenOnlyCountsProvided",
			cfg:  DeviceConfig{NbQueues: 2, NbPorts: 3},
			assertion: func(t *testing.T, cfg *DeviceConfig) {
				assert.Equal(t, defaultNbQueueFlows, cfg.NbQueueFlows)
				assert.Equal(t, defaultNbEventsLimit, cfg.NbEventsLimit)
				assert.Equal(t, defaultPortDequeueDepth, cfg.PortDequeueDepth)
				assert.Equal(t, defaultPortEnqueueDepth, cfg.PortEnqueueDepth)
			},
		},
		{
			name: "ShouldRespectOverrides",
			cfg: DeviceConfig{
				NbQueues: 1, NbPorts: 1, NbQueueFlows: 16, NbEventsLimit: 64, PortDequeueDepth: 8, PortEnqueueDepth: 4,
			},
			assertion: func(t *testing.T, cfg *DeviceConfig) {
				assert.Equal(t, 16, cfg.NbQueueFlows)
				assert.Equal(t, 64, cfg.NbEventsLimit)
				assert.Equal(t, 8, cfg.PortDequeueDepth)
				assert.Equal(t, 4, cfg.PortEnqueueDepth)
			},
		},
		{
			name: "ShouldAcceptMaximumCounts",
			cfg:  DeviceConfig{NbQueues: MaxQueues, NbPorts: MaxPorts},
		},
		{
			name:        "ShouldError_WhenCountsMissing",
			cfg:         DeviceConfig{},
			expectErr:   true,
			errContains: []string{"NbQueues", "NbPorts"},
		},
		{
			name:        "ShouldError_WhenCountsTooLarge",
			cfg:         DeviceConfig{NbQueues: MaxQueues + 1, NbPorts: 1},
			expectErr:   true,
			errContains: []string{"NbQueues"},
		},
		{
			name:        "ShouldReportEveryNegativeField",
			cfg:         DeviceConfig{NbQueues: 1, NbPorts: 1, NbEventsLimit: -1, PortDequeueDepth: -2},
			expectErr:   true,
			errContains: []string{"NbEventsLimit", "PortDequeueDepth"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			original := tc.cfg
			got, err := tc.cfg.ValidateAndApplyDefaults()
			assert.Equal(t, original, tc.cfg, "ValidateAndApplyDefaults must not mutate the receiver")

			if tc.expectErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidConfig)
				for _, s := range tc.errContains {
					assert.Contains(t, err.Error(), s)
				}
				return
			}
			require.NoError(t, err)
			if tc.assertion != nil {
				tc.assertion(t, got)
			}
		})
	}
}

func TestQueueConfig_ValidateAndApplyDefaults(t *testing.T) {
	t.Parallel()
	dev, err := DeviceConfig{NbQueues: 1, NbPorts: 1, NbQueueFlows: 32}.ValidateAndApplyDefaults()
	require.NoError(t, err, "Test setup: device config should be valid")

	t.Run("ShouldInheritDeviceFlows", func(t *testing.T) {
		t.Parallel()
		got, err := QueueConfig{Discipline: Atomic}.ValidateAndApplyDefaults(dev)
		require.NoError(t, err)
		assert.Equal(t, 32, got.NbFlows)
		assert.Equal(t, defaultNbOrderSequences, got.NbOrderSequences)
	})

	t.Run("ShouldError_WhenDisciplineUnknown", func(t *testing.T) {
		t.Parallel()
		_, err := QueueConfig{Discipline: Discipline(9), NbFlows: -1}.ValidateAndApplyDefaults(dev)
		require.ErrorIs(t, err, ErrInvalidConfig)
		assert.Contains(t, err.Error(), "discipline")
		assert.Contains(t, err.Error(), "NbFlows")
	})
}

func TestPortConfig_ValidateAndApplyDefaults(t *testing.T) {
	t.Parallel()
	dev, err := DeviceConfig{NbQueues: 1, NbPorts: 1, NbEventsLimit: 100, PortDequeueDepth: 16, PortEnqueueDepth: 8}.
		ValidateAndApplyDefaults()
	require.NoError(t, err, "Test setup: device config should be valid")

	testCases := []struct {
		name      string
		cfg       PortConfig
		want      *PortConfig
		errSubstr string
	}{
		{
			name: "ShouldDefaultToDeviceLimits",
			cfg:  PortConfig{},
			want: &PortConfig{EnqueueDepth: 8, DequeueDepth: 16, NewEventThreshold: 100},
		},
		{
			name: "ShouldKeepSmallerValues",
			cfg:  PortConfig{EnqueueDepth: 2, DequeueDepth: 3, NewEventThreshold: 4},
			want: &PortConfig{EnqueueDepth: 2, DequeueDepth: 3, NewEventThreshold: 4},
		},
		{
			name:      "ShouldError_WhenDequeueDepthExceedsDevice",
			cfg:       PortConfig{DequeueDepth: 17},
			errSubstr: "DequeueDepth",
		},
		{
			name:      "ShouldError_WhenThresholdExceedsEventsLimit",
			cfg:       PortConfig{NewEventThreshold: 101},
			errSubstr: "NewEventThreshold",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := tc.cfg.ValidateAndApplyDefaults(dev)
			if tc.errSubstr != "" {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidConfig), "error should wrap ErrInvalidConfig")
				assert.Contains(t, err.Error(), tc.errSubstr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDiscipline_Text(t *testing.T) {
	t.Parallel()

	for _, d := range []Discipline{Atomic, Ordered, Parallel, SingleLink} {
		text, err := d.MarshalText()
		require.NoError(t, err)
		var back Discipline
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, d, back)
	}

	var d Discipline
	require.NoError(t, d.UnmarshalText([]byte("SINGLE_LINK")), "names are case-insensitive")
	assert.Equal(t, SingleLink, d)
	assert.Error(t, d.UnmarshalText([]byte("fifo")))
	_, err := Discipline(7).MarshalText()
	assert.Error(t, err)
}
