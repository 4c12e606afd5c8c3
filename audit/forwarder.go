// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package audit mirrors journal appends to the admin log channel and,
// optionally, to a Kafka topic
package audit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/blinklabs-io/wilhelmina/event"
	"github.com/blinklabs-io/wilhelmina/eventlog"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

const (
	DefaultLimit     rate.Limit = 5
	DefaultBurst                = 10
	DefaultQueueSize            = 256
)

// Sink receives forwarded entries
type Sink interface {
	Name() string
	Forward(ctx context.Context, entry eventlog.Entry) error
	Close() error
}

type ForwarderConfig struct {
	EventBus     *event.EventBus
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
	Sinks        []Sink
	Limit        rate.Limit
	Burst        int
	QueueSize    int
}

// Forwarder pushes appended entries to its sinks at a bounded rate.
// Entries arriving while the queue is full are dropped; appends never wait
// on forwarding.
type Forwarder struct {
	eventBus *event.EventBus
	logger   *slog.Logger
	metrics  *forwarderMetrics
	limiter  *rate.Limiter
	queue    chan eventlog.Entry
	cancel   context.CancelFunc
	sinks    []Sink
	wg       sync.WaitGroup
	subId    event.EventSubscriberId
	mu       sync.Mutex
	started  bool
}

func NewForwarder(cfg ForwarderConfig) (*Forwarder, error) {
	if cfg.EventBus == nil {
		return nil, errors.New("audit: event bus is required")
	}
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultBurst
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	f := &Forwarder{
		eventBus: cfg.EventBus,
		logger:   cfg.Logger,
		metrics:  newForwarderMetrics(cfg.PromRegistry),
		limiter:  rate.NewLimiter(cfg.Limit, cfg.Burst),
		queue:    make(chan eventlog.Entry, cfg.QueueSize),
		sinks:    cfg.Sinks,
	}
	if f.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		f.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return f, nil
}

// Start subscribes to journal appends and launches the delivery worker
func (f *Forwarder) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started {
		return errors.New("audit forwarder already started")
	}
	f.started = true
	ctx, f.cancel = context.WithCancel(ctx)
	f.subId = f.eventBus.SubscribeFunc(
		eventlog.AppendedEventType,
		func(evt event.Event) {
			entry, ok := evt.Data.(eventlog.Entry)
			if !ok {
				return
			}
			f.Enqueue(entry)
		},
	)
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		f.deliver(ctx)
	}()
	return nil
}

// Enqueue queues an entry for forwarding. It reports false when the queue
// is full and the entry was dropped.
func (f *Forwarder) Enqueue(entry eventlog.Entry) bool {
	select {
	case f.queue <- entry:
		return true
	default:
		f.metrics.dropped.Inc()
		f.logger.Warn(
			"audit queue full, dropping entry",
			"component", "audit",
			"community", entry.CommunityID,
			"seq", entry.Seq,
		)
		return false
	}
}

func (f *Forwarder) deliver(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case entry := <-f.queue:
			if err := f.limiter.Wait(ctx); err != nil {
				return
			}
			for _, sink := range f.sinks {
				if err := sink.Forward(ctx, entry); err != nil {
					f.metrics.failures.WithLabelValues(sink.Name()).Inc()
					f.logger.Warn(
						"audit forward failed",
						"component", "audit",
						"sink", sink.Name(),
						"community", entry.CommunityID,
						"kind", string(entry.Kind),
						"error", err,
					)
					continue
				}
				f.metrics.forwarded.WithLabelValues(sink.Name()).Inc()
			}
		}
	}
}

// Stop unsubscribes, waits for the worker and closes every sink
func (f *Forwarder) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.started {
		return nil
	}
	f.started = false
	f.eventBus.Unsubscribe(eventlog.AppendedEventType, f.subId)
	f.cancel()
	f.wg.Wait()
	var errs []error
	for _, sink := range f.sinks {
		if err := sink.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
