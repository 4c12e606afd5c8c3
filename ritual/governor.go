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
	"math/rand/v2"
	"strings"
	"time"

	"github.com/blinklabs-io/wilhelmina/gateway"
)

const everyoneToken = "@everyone"

// Limits bound the mass notifications of one ritual
type Limits struct {
	EveryoneMaxTotal           int
	EveryoneMinGap             time.Duration
	PerBeatMemberMentions      int
	PerRitualMemberMentionsMax int
}

func DefaultLimits() Limits {
	return Limits{
		EveryoneMaxTotal:           6,
		EveryoneMinGap:             60 * time.Second,
		PerBeatMemberMentions:      6,
		PerRitualMemberMentionsMax: 36,
	}
}

// Decision is what the governor allows for one beat
type Decision struct {
	Mentions []string
	Everyone bool
}

// Governor applies Limits to each beat
type Governor struct {
	limits Limits
}

func NewGovernor(limits Limits) *Governor {
	return &Governor{limits: limits}
}

func (g *Governor) Limits() Limits {
	return g.limits
}

// Decide returns the notifications allowed for a beat carrying line. It
// does not change st; callers record the decision with State.Record.
func (g *Governor) Decide(
	st *State,
	line string,
	members []gateway.Member,
	now time.Time,
	rng *rand.Rand,
) Decision {
	var d Decision
	if strings.Contains(line, everyoneToken) &&
		st.EveryoneCount < g.limits.EveryoneMaxTotal &&
		(st.LastEveryoneAt == nil || now.Sub(*st.LastEveryoneAt) >= g.limits.EveryoneMinGap) {
		d.Everyone = true
	}
	want := min(
		g.limits.PerBeatMemberMentions,
		g.limits.PerRitualMemberMentionsMax-st.MemberMentionsDone,
	)
	if want <= 0 {
		return d
	}
	pool := make([]string, 0, len(members))
	seen := make(map[string]struct{}, len(members))
	for _, m := range members {
		if m.IsBot || m.IsAdmin {
			continue
		}
		if _, ok := seen[m.ID]; ok {
			continue
		}
		seen[m.ID] = struct{}{}
		pool = append(pool, m.ID)
	}
	rng.Shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})
	if len(pool) > want {
		pool = pool[:want]
	}
	if len(pool) > 0 {
		d.Mentions = pool
	}
	return d
}
