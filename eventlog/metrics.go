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

package eventlog

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type logMetrics struct {
	appends        *prometheus.CounterVec
	appendFailures prometheus.Counter
}

func newLogMetrics(promRegistry prometheus.Registerer) *logMetrics {
	m := &logMetrics{}
	promautoFactory := promauto.With(promRegistry)
	m.appends = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wilhelmina_eventlog_appends_total",
			Help: "journal entries appended by kind",
		},
		[]string{"kind"},
	)
	m.appendFailures = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "wilhelmina_eventlog_append_failures_total",
			Help: "journal appends that failed to persist",
		},
	)
	return m
}
