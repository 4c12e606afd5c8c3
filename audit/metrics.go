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

package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type forwarderMetrics struct {
	forwarded *prometheus.CounterVec
	failures  *prometheus.CounterVec
	dropped   prometheus.Counter
}

func newForwarderMetrics(promRegistry prometheus.Registerer) *forwarderMetrics {
	m := &forwarderMetrics{}
	promautoFactory := promauto.With(promRegistry)
	m.forwarded = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wilhelmina_audit_forwarded_total",
			Help: "journal entries forwarded by sink",
		},
		[]string{"sink"},
	)
	m.failures = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wilhelmina_audit_failures_total",
			Help: "journal entries a sink failed to accept",
		},
		[]string{"sink"},
	)
	m.dropped = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "wilhelmina_audit_dropped_total",
			Help: "journal entries dropped because the audit queue was full",
		},
	)
	return m
}
