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
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"
	"sigs.k8s.io/controller-runtime/pkg/log"

	logutil "github.com/zetxqx/eventsched/pkg/common/observability/logging"
	"github.com/zetxqx/eventsched/pkg/eventdev"
)

const (
	burstSize   = 32
	pollTimeout = 10 * time.Millisecond
)

// Load describes the traffic a pipeline run generates.
type Load struct {
	Producers         int
	EventsPerProducer int
	Flows             int
	// CheckOrder makes the sink verify that each producer's events of one flow arrive in the order they were produced.
	CheckOrder bool
}

// Result summarizes one pipeline run.
type Result struct {
	Produced   int           `json:"produced"`
	Delivered  int           `json:"delivered"`
	Dropped    uint64        `json:"dropped"`
	Duplicates int           `json:"duplicates"`
	OutOfOrder int           `json:"outOfOrder"`
	Elapsed    time.Duration `json:"elapsed"`
}

// token is the payload carried by pipeline events.
type token struct {
	producer int
	seq      int
}

type flowKey struct {
	producer int
	flow     uint32
}

// RunPipeline drives load through a started device until every produced event has reached the sink or been dropped,
// and the device holds no slots. It returns early with ctx's error when ctx ends first. The logger is taken from ctx.
func RunPipeline(ctx context.Context, clk clock.Clock, d *eventdev.Device, p Pipeline, load Load) (Result, error) {
	logger := log.FromContext(ctx).WithName("pipeline")
	total := load.Producers * load.EventsPerProducer
	start := clk.Now()

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	g, gctx := errgroup.WithContext(runCtx)

	var produced, sunk atomic.Int64
	enqueueAll := func(port uint8, events []eventdev.Event) bool {
		for len(events) > 0 {
			if gctx.Err() != nil {
				return false
			}
			events = events[d.EnqueueBurst(port, events):]
			if len(events) > 0 {
				runtime.Gosched()
			}
		}
		return true
	}

	for i := range load.Producers {
		g.Go(func() error {
			batch := make([]eventdev.Event, 0, burstSize)
			for seq := range load.EventsPerProducer {
				batch = append(batch, eventdev.Event{
					Op:      eventdev.OpNew,
					QueueID: p.StageQueue,
					FlowID:  uint32((i*load.EventsPerProducer + seq) % load.Flows),
					Payload: token{producer: i, seq: seq},
				})
				if len(batch) == cap(batch) || seq == load.EventsPerProducer-1 {
					if !enqueueAll(p.ProducerPort, batch) {
						return nil
					}
					produced.Add(int64(len(batch)))
					batch = batch[:0]
				}
			}
			logger.V(logutil.VERBOSE).Info("Producer finished", "producer", i, "events", load.EventsPerProducer)
			return nil
		})
	}

	for _, worker := range p.WorkerPorts {
		g.Go(func() error {
			in := make([]eventdev.Event, burstSize)
			out := make([]eventdev.Event, 0, burstSize)
			for gctx.Err() == nil {
				n := d.DequeueBurst(worker, in, pollTimeout)
				out = out[:0]
				for _, ev := range in[:n] {
					ev.Op = eventdev.OpForward
					ev.QueueID = p.SinkQueue
					out = append(out, ev)
				}
				if !enqueueAll(worker, out) {
					return nil
				}
			}
			return nil
		})
	}

	var duplicates, outOfOrder int
	g.Go(func() error {
		in := make([]eventdev.Event, burstSize)
		releases := make([]eventdev.Event, burstSize)
		for i := range releases {
			releases[i].Op = eventdev.OpRelease
		}
		seen := make(map[token]struct{}, total)
		last := make(map[flowKey]int)
		for gctx.Err() == nil {
			n := d.DequeueBurst(p.SinkPort, in, pollTimeout)
			for _, ev := range in[:n] {
				tok, ok := ev.Payload.(token)
				if !ok {
					continue
				}
				if _, dup := seen[tok]; dup {
					duplicates++
				}
				seen[tok] = struct{}{}
				if load.CheckOrder {
					key := flowKey{producer: tok.producer, flow: ev.FlowID}
					if prev, ok := last[key]; ok && tok.seq < prev {
						outOfOrder++
					}
					last[key] = tok.seq
				}
			}
			if !enqueueAll(p.SinkPort, releases[:n]) {
				return nil
			}
			sunk.Add(int64(n))
		}
		return nil
	})

	var dropped uint64
	g.Go(func() error {
		for gctx.Err() == nil {
			d.Dispatch()
			var err error
			if dropped, err = d.StatByName("dev_drop"); err != nil {
				return err
			}
			if produced.Load() == int64(total) && sunk.Load()+int64(dropped) >= int64(total) && d.Inflight() == 0 {
				stop()
				return nil
			}
			runtime.Gosched()
		}
		return nil
	})

	err := g.Wait()
	res := Result{
		Produced:   int(produced.Load()),
		Delivered:  int(sunk.Load()),
		Dropped:    dropped,
		Duplicates: duplicates,
		OutOfOrder: outOfOrder,
		Elapsed:    clk.Since(start),
	}
	if err != nil {
		return res, err
	}
	return res, ctx.Err()
}
