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

package badger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type blobMetrics struct {
	allocations prometheus.Counter
	conflicts   prometheus.Counter
	wraps       prometheus.Counter
}

func newBlobMetrics(promRegistry prometheus.Registerer) *blobMetrics {
	promautoFactory := promauto.With(promRegistry)
	return &blobMetrics{
		allocations: promautoFactory.NewCounter(prometheus.CounterOpts{
			Name: "wilhelmina_blob_sequence_allocations_total",
			Help: "values handed out by badger sequences",
		}),
		conflicts: promautoFactory.NewCounter(prometheus.CounterOpts{
			Name: "wilhelmina_blob_sequence_conflicts_total",
			Help: "badger transaction conflicts retried while advancing a sequence",
		}),
		wraps: promautoFactory.NewCounter(prometheus.CounterOpts{
			Name: "wilhelmina_blob_sequence_wraps_total",
			Help: "sequences that reached their ceiling and wrapped to 1",
		}),
	}
}
