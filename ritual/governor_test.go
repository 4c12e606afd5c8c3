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

package ritual_test

import (
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"github.com/blinklabs-io/wilhelmina/gateway"
	"github.com/blinklabs-io/wilhelmina/ritual"
)

func testMembers(humans int, bots int, admins int) []gateway.Member {
	var ret []gateway.Member
	for i := range humans {
		ret = append(ret, gateway.Member{ID: fmt.Sprintf("h%d", i)})
	}
	for i := range bots {
		ret = append(ret, gateway.Member{ID: fmt.Sprintf("b%d", i), IsBot: true})
	}
	for i := range admins {
		ret = append(ret, gateway.Member{ID: fmt.Sprintf("a%d", i), IsAdmin: true})
	}
	return ret
}

func TestGovernorRespectsBudgets(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)
	properties.Property("budgets hold over a whole ritual", prop.ForAll(
		func(beats int, humans int, stepSec int, seed uint64) bool {
			limits := ritual.DefaultLimits()
			gov := ritual.NewGovernor(limits)
			rng := rand.New(rand.NewPCG(seed, 3))
			members := testMembers(humans, 3, 2)
			st := &ritual.State{}
			now := time.Date(2025, 10, 31, 0, 0, 0, 0, time.UTC)
			var lastEveryone *time.Time
			mentioned := 0
			for i := range beats {
				now = now.Add(time.Duration(stepSec) * time.Second)
				line := "plain line"
				if i%2 == 0 {
					line = "ACCESS OVERRIDE // @everyone : EYES FRONT."
				}
				d := gov.Decide(st, line, members, now, rng)
				if d.Everyone {
					if lastEveryone != nil && now.Sub(*lastEveryone) < limits.EveryoneMinGap {
						return false
					}
					at := now
					lastEveryone = &at
				}
				if len(d.Mentions) > limits.PerBeatMemberMentions {
					return false
				}
				seen := make(map[string]bool)
				for _, id := range d.Mentions {
					if id[0] != 'h' || seen[id] {
						return false
					}
					seen[id] = true
				}
				mentioned += len(d.Mentions)
				st.Record(d, now)
				st.NextIndex++
			}
			return st.EveryoneCount <= limits.EveryoneMaxTotal &&
				st.MemberMentionsDone <= limits.PerRitualMemberMentionsMax &&
				st.MemberMentionsDone == mentioned
		},
		gen.IntRange(1, 40),
		gen.IntRange(0, 20),
		gen.IntRange(1, 120),
		gen.UInt64(),
	))
	properties.TestingRun(t)
}

func TestGovernorEveryoneNeedsToken(t *testing.T) {
	gov := ritual.NewGovernor(ritual.DefaultLimits())
	rng := rand.New(rand.NewPCG(1, 1))
	st := &ritual.State{}
	d := gov.Decide(st, "no broad mention here", nil, time.Now(), rng)
	assert.False(t, d.Everyone)
	assert.Empty(t, d.Mentions)
}

func TestGovernorEveryoneGapAndTotal(t *testing.T) {
	limits := ritual.DefaultLimits()
	gov := ritual.NewGovernor(limits)
	rng := rand.New(rand.NewPCG(1, 1))
	now := time.Date(2025, 10, 31, 0, 0, 0, 0, time.UTC)
	st := &ritual.State{}
	line := "@everyone"

	d := gov.Decide(st, line, nil, now, rng)
	assert.True(t, d.Everyone)
	st.Record(d, now)

	d = gov.Decide(st, line, nil, now.Add(59*time.Second), rng)
	assert.False(t, d.Everyone)

	d = gov.Decide(st, line, nil, now.Add(60*time.Second), rng)
	assert.True(t, d.Everyone)

	st.EveryoneCount = limits.EveryoneMaxTotal
	d = gov.Decide(st, line, nil, now.Add(time.Hour), rng)
	assert.False(t, d.Everyone)
}

func TestGovernorMemberMentionRemainder(t *testing.T) {
	gov := ritual.NewGovernor(ritual.DefaultLimits())
	rng := rand.New(rand.NewPCG(1, 1))
	st := &ritual.State{MemberMentionsDone: 33}
	d := gov.Decide(st, "line", testMembers(10, 1, 1), time.Now(), rng)
	assert.Len(t, d.Mentions, 3)

	st.MemberMentionsDone = 36
	d = gov.Decide(st, "line", testMembers(10, 1, 1), time.Now(), rng)
	assert.Empty(t, d.Mentions)

	st.MemberMentionsDone = 0
	d = gov.Decide(st, "line", testMembers(2, 5, 5), time.Now(), rng)
	assert.ElementsMatch(t, []string{"h0", "h1"}, d.Mentions)
}
