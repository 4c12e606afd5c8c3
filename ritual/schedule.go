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
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// ScheduleConfig describes the beat layout of one ritual. Beats is the
// number of jittered beats; one terminal beat is always added after them.
type ScheduleConfig struct {
	Beats     int
	Duration  time.Duration
	JitterMin time.Duration
	JitterMax time.Duration
}

// DefaultScheduleConfig returns 12 beats over 13 minutes with 7-15s of jitter
func DefaultScheduleConfig() ScheduleConfig {
	return ScheduleConfig{
		Beats:     12,
		Duration:  780 * time.Second,
		JitterMin: 7 * time.Second,
		JitterMax: 15 * time.Second,
	}
}

var ErrInvalidSchedule = errors.New("invalid ritual schedule")

// ValidateScheduleConfig checks the schedule bounds. The terminal beat must
// leave at least a millisecond per beat so the compressed offsets stay
// distinct.
func ValidateScheduleConfig(cfg ScheduleConfig) error {
	if cfg.Beats < 1 {
		return fmt.Errorf("%w: beats must be at least 1", ErrInvalidSchedule)
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("%w: duration must be positive", ErrInvalidSchedule)
	}
	if cfg.JitterMin < 0 || cfg.JitterMin > cfg.JitterMax {
		return fmt.Errorf("%w: jitter range %s-%s", ErrInvalidSchedule, cfg.JitterMin, cfg.JitterMax)
	}
	if cfg.JitterMax >= cfg.Duration {
		return fmt.Errorf("%w: jitter must be shorter than the duration", ErrInvalidSchedule)
	}
	if cfg.Duration-cfg.JitterMax < time.Duration(cfg.Beats+1)*time.Millisecond {
		return fmt.Errorf("%w: duration too short for %d beats", ErrInvalidSchedule, cfg.Beats)
	}
	return nil
}

// NewSchedule lays out Beats jittered offsets plus a terminal offset at
// Duration minus jitter. Jittered beats that would reach the terminal beat
// are scaled down so the last of them sits at terminal*N/(N+1).
func NewSchedule(cfg ScheduleConfig, rng *rand.Rand) ([]time.Duration, error) {
	if err := ValidateScheduleConfig(cfg); err != nil {
		return nil, err
	}
	jitter := func() time.Duration {
		span := cfg.JitterMax - cfg.JitterMin
		if span == 0 {
			return cfg.JitterMin
		}
		return cfg.JitterMin + time.Duration(rng.Int64N(int64(span)+1))
	}
	n := cfg.Beats
	gap := cfg.Duration / time.Duration(n+1)
	ret := make([]time.Duration, 0, n+1)
	var acc time.Duration
	for range n {
		acc += gap + jitter()
		ret = append(ret, acc)
	}
	terminal := cfg.Duration - jitter()
	if last := ret[n-1]; last >= terminal {
		target := float64(terminal) * float64(n) / float64(n+1)
		scale := target / float64(last)
		for i := range ret {
			ret[i] = time.Duration(float64(ret[i]) * scale)
		}
	}
	ret = append(ret, terminal)
	return ret, nil
}
