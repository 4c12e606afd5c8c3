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

package ritual

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type engineMetrics struct {
	beats            prometheus.Counter
	deliveryFailures prometheus.Counter
	everyoneMentions prometheus.Counter
	memberMentions   prometheus.Counter
	snapshotRetries  prometheus.Counter
	terminalRetries  prometheus.Counter
	interruptions    prometheus.Counter
	active           prometheus.Gauge
}

func newEngineMetrics(promRegistry prometheus.Registerer) *engineMetrics {
	m := &engineMetrics{}
	promautoFactory := promauto.With(promRegistry)
	m.beats = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "wilhelmina_ritual_beats_total",
			Help: "ritual beats fired",
		},
	)
	m.deliveryFailures = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "wilhelmina_ritual_delivery_failures_total",
			Help: "ritual messages the platform rejected",
		},
	)
	m.everyoneMentions = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "wilhelmina_ritual_everyone_mentions_total",
			Help: "broad mentions allowed by the governor",
		},
	)
	m.memberMentions = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "wilhelmina_ritual_member_mentions_total",
			Help: "member mentions allowed by the governor",
		},
	)
	m.snapshotRetries = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "wilhelmina_ritual_snapshot_retries_total",
			Help: "ritual snapshot writes retried after a storage failure",
		},
	)
	m.terminalRetries = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "wilhelmina_ritual_terminal_retries_total",
			Help: "ritual end writes retried after a storage failure",
		},
	)
	m.interruptions = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "wilhelmina_ritual_circle_interruptions_total",
			Help: "messages removed from an active ritual channel",
		},
	)
	m.active = promautoFactory.NewGauge(
		prometheus.GaugeOpts{
			Name: "wilhelmina_ritual_active",
			Help: "rituals currently running",
		},
	)
	return m
}
