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

package stats

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	compbasemetrics "k8s.io/component-base/metrics"

	metricsutil "github.com/zetxqx/eventsched/pkg/common/observability/metrics"
)

var (
	descDeviceEvents = prometheus.NewDesc(
		"eventdev_device_events_total",
		metricsutil.HelpMsgWithStability("Events received, transmitted and dropped by the scheduler.", compbasemetrics.ALPHA),
		[]string{"device", "direction"}, nil,
	)
	descDeviceInflight = prometheus.NewDesc(
		"eventdev_device_inflight",
		metricsutil.HelpMsgWithStability("Event slots currently allocated across the device.", compbasemetrics.ALPHA),
		[]string{"device"}, nil,
	)
	descPortEvents = prometheus.NewDesc(
		"eventdev_port_events_total",
		metricsutil.HelpMsgWithStability("Events accepted from, scheduled to and dropped on behalf of each port.", compbasemetrics.ALPHA),
		[]string{"device", "port", "direction"}, nil,
	)
	descPortInflight = prometheus.NewDesc(
		"eventdev_port_inflight",
		metricsutil.HelpMsgWithStability("Event slots currently held by each port.", compbasemetrics.ALPHA),
		[]string{"device", "port"}, nil,
	)
	descQueueEvents = prometheus.NewDesc(
		"eventdev_queue_events_total",
		metricsutil.HelpMsgWithStability("Events received, scheduled and dropped by each queue.", compbasemetrics.ALPHA),
		[]string{"device", "queue", "direction"}, nil,
	)
)

type registryCollector struct {
	reg    *Registry
	device string
}

// Check if registryCollector implements necessary interface
var _ prometheus.Collector = &registryCollector{}

// NewCollector implements the prometheus.Collector interface and exposes the counters of reg, labelled with device.
func NewCollector(reg *Registry, device string) prometheus.Collector {
	return &registryCollector{reg: reg, device: device}
}

// Describe implements the prometheus.Collector interface.
func (c *registryCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- descDeviceEvents
	ch <- descDeviceInflight
	ch <- descPortEvents
	ch <- descPortInflight
	ch <- descQueueEvents
}

// Collect implements the prometheus.Collector interface.
func (c *registryCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.reg.Snapshot()

	c.collectCounts(ch, descDeviceEvents, s.Device)
	ch <- prometheus.MustNewConstMetric(descDeviceInflight, prometheus.GaugeValue, float64(s.Inflight), c.device)
	for i, p := range s.Ports {
		port := strconv.Itoa(i)
		c.collectCounts(ch, descPortEvents, p.Counts, port)
		ch <- prometheus.MustNewConstMetric(descPortInflight, prometheus.GaugeValue, float64(p.Inflight), c.device, port)
	}
	for i, q := range s.Queues {
		c.collectCounts(ch, descQueueEvents, q, strconv.Itoa(i))
	}
}

func (c *registryCollector) collectCounts(ch chan<- prometheus.Metric, desc *prometheus.Desc, counts Counts, labels ...string) {
	for _, dv := range []struct {
		direction string
		value     uint64
	}{
		{"rx", counts.RX},
		{"tx", counts.TX},
		{"drop", counts.Drop},
	} {
		values := append([]string{c.device}, labels...)
		values = append(values, dv.direction)
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(dv.value), values...)
	}
}
