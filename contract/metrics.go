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

package contract

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type machineMetrics struct {
	transitions      *prometheus.CounterVec
	deliveryFailures *prometheus.CounterVec
}

func newMachineMetrics(promRegistry prometheus.Registerer) *machineMetrics {
	promautoFactory := promauto.With(promRegistry)
	return &machineMetrics{
		transitions: promautoFactory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wilhelmina_contract_transitions_total",
				Help: "contract state transitions by target state",
			},
			[]string{"state"},
		),
		deliveryFailures: promautoFactory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wilhelmina_contract_delivery_failures_total",
				Help: "failed best-effort platform calls in the contract flow",
			},
			[]string{"op"},
		),
	}
}
