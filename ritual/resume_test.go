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
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/wilhelmina/database"
	"github.com/blinklabs-io/wilhelmina/eventlog"
	"github.com/blinklabs-io/wilhelmina/internal/test/fakegw"
	"github.com/blinklabs-io/wilhelmina/internal/test/testutil"
	"github.com/blinklabs-io/wilhelmina/ritual"
)

type resumeFixture struct {
	db     *database.Database
	log    *eventlog.Log
	gw     *fakegw.Gateway
	engine *ritual.Engine
	coord  *ritual.Coordinator
}

func newResumeFixture(t *testing.T) *resumeFixture {
	t.Helper()
	db, l := testutil.NewJournal(t)
	gw := fakegw.New()
	gw.SetMembers("c1", testMembers(50, 2, 2))
	e, err := ritual.NewEngine(ritual.EngineConfig{
		Journal:      l,
		Platform:     gw,
		PromRegistry: prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	t.Cleanup(e.Stop)
	c, err := ritual.NewCoordinator(ritual.CoordinatorConfig{
		DB:     db,
		Log:    l,
		Engine: e,
	})
	require.NoError(t, err)
	return &resumeFixture{db: db, log: l, gw: gw, engine: e, coord: c}
}

// seed journals a ritual started startedAgo ago that crashed after
// nextIndex beats
func (f *resumeFixture) seed(t *testing.T, communityID string, startedAgo time.Duration, nextIndex int) *ritual.State {
	t.Helper()
	ctx := context.Background()
	beats, err := ritual.NewSchedule(ritual.DefaultScheduleConfig(), rand.New(rand.NewPCG(9, 9)))
	require.NoError(t, err)
	st := &ritual.State{
		CommunityID: communityID,
		RunID:       "run-" + communityID,
		ChannelRef:  "circle",
		StartedAt:   time.Now().Add(-startedAgo).UTC(),
		Beats:       beats,
	}
	_, err = f.log.Append(ctx, communityID, "admin", eventlog.RitualStart{RitualSnapshot: st.Snapshot()})
	require.NoError(t, err)
	for i := range nextIndex + 1 {
		snap := st.Clone()
		snap.NextIndex = i
		_, err = f.log.Append(ctx, communityID, "", eventlog.RitualState{RitualSnapshot: snap.Snapshot()})
		require.NoError(t, err)
	}
	st.NextIndex = nextIndex
	return st
}

func (f *resumeFixture) count(t *testing.T, communityID string, kind eventlog.Kind) int {
	t.Helper()
	entries, err := f.log.ListKinds(context.Background(), communityID, kind)
	require.NoError(t, err)
	return len(entries)
}

func TestFindResumable(t *testing.T) {
	now := time.Date(2025, 10, 31, 13, 0, 0, 0, time.UTC)
	start := func(seq uint64, run string, at time.Time) eventlog.Entry {
		return eventlog.Entry{Seq: seq, Kind: eventlog.KindRitualStart, Detail: eventlog.RitualStart{
			RitualSnapshot: eventlog.RitualSnapshot{RunID: run, StartedAt: at, BeatsNs: []int64{1, 2}},
		}}
	}
	state := func(seq uint64, run string, next int) eventlog.Entry {
		return eventlog.Entry{Seq: seq, Kind: eventlog.KindRitualState, Detail: eventlog.RitualState{
			RitualSnapshot: eventlog.RitualSnapshot{RunID: run, NextIndex: next, BeatsNs: []int64{1, 2}},
		}}
	}
	end := eventlog.Entry{Seq: 50, Kind: eventlog.KindRitualEnd, Detail: eventlog.RitualEnd{}}
	abort := eventlog.Entry{Seq: 50, Kind: eventlog.KindRitualAbort, Detail: eventlog.RitualAbort{}}

	found, ok := ritual.FindResumable([]eventlog.Entry{
		start(1, "a", now.Add(-10*time.Minute)),
		state(2, "a", 0),
		state(3, "a", 1),
	}, now, 30*time.Minute)
	require.True(t, ok)
	assert.Equal(t, uint64(3), found.SnapshotSeq)
	assert.Equal(t, 1, found.State.NextIndex)

	cases := map[string][]eventlog.Entry{
		"ended":        {start(1, "a", now), state(2, "a", 1), end},
		"aborted":      {start(1, "a", now), state(2, "a", 1), abort},
		"no snapshot":  {start(1, "a", now)},
		"expired":      {start(1, "a", now.Add(-31 * time.Minute)), state(2, "a", 1)},
		"stale run":    {start(1, "a", now), state(2, "a", 1), start(3, "b", now)},
		"nothing":      nil,
		"foreign runs": {start(1, "a", now), state(2, "z", 1)},
	}
	for name, entries := range cases {
		t.Run(name, func(t *testing.T) {
			_, ok := ritual.FindResumable(entries, now, 30*time.Minute)
			assert.False(t, ok)
		})
	}

	// A later start after a finished ritual is the one that counts
	found, ok = ritual.FindResumable([]eventlog.Entry{
		start(1, "a", now), state(2, "a", 1), end,
		start(60, "b", now.Add(-time.Minute)), state(61, "b", 0),
	}, now, 30*time.Minute)
	require.True(t, ok)
	assert.Equal(t, "b", found.State.RunID)
}

func TestResumeRunsToFinaleAndPrunes(t *testing.T) {
	f := newResumeFixture(t)
	ctx := context.Background()
	// Started 800s ago, so every remaining beat of the 780s ritual is due
	f.seed(t, "c1", 800*time.Second, 4)

	resumed, err := f.coord.ResumeCommunity(ctx, "c1")
	require.NoError(t, err)
	require.True(t, resumed)

	testutil.WaitForCondition(t, func() bool {
		return f.count(t, "c1", eventlog.KindRitualEnd) == 1
	}, 10*time.Second, "ritual did not finish")
	testutil.WaitForCondition(t, func() bool {
		return !f.engine.Active("c1")
	}, time.Second, "ritual still active")

	assert.Equal(t, 0, f.count(t, "c1", eventlog.KindRitualState))
	assert.Equal(t, 1, f.count(t, "c1", eventlog.KindRitualResume))
	assert.Equal(t, 9, countTitle(f.gw, "Ritual Beat"))
	assert.Equal(t, 1, countTitle(f.gw, "Finale"))
	assert.Equal(t, 0, countTitle(f.gw, "Summoning"))

	entries, err := f.log.ListKinds(ctx, "c1", eventlog.KindRitualResume)
	require.NoError(t, err)
	res := entries[0].Detail.(eventlog.RitualResume)
	assert.Equal(t, 4, res.NextIndex)
	assert.Equal(t, 9, res.Remaining)

	// A finished ritual is never resumed again
	resumed, err = f.coord.ResumeCommunity(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, resumed)
}

func TestResumeIsIdempotent(t *testing.T) {
	f := newResumeFixture(t)
	ctx := context.Background()
	f.seed(t, "c1", time.Minute, 2)
	require.NoError(t, f.coord.Run(ctx))
	require.NoError(t, f.coord.Run(ctx))
	assert.True(t, f.engine.Active("c1"))
	assert.Equal(t, 1, f.count(t, "c1", eventlog.KindRitualResume))
	st, ok := f.engine.Status("c1")
	require.True(t, ok)
	assert.Equal(t, 2, st.NextIndex)
	assert.Empty(t, f.gw.Sent())
}

func TestAbortedRitualIsNotRevived(t *testing.T) {
	f := newResumeFixture(t)
	ctx := context.Background()
	f.seed(t, "c1", time.Minute, 2)
	resumed, err := f.coord.ResumeCommunity(ctx, "c1")
	require.NoError(t, err)
	require.True(t, resumed)

	_, err = f.engine.Abort(ctx, "c1", "admin")
	require.NoError(t, err)
	resumed, err = f.coord.ResumeCommunity(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, resumed)
	assert.False(t, f.engine.Active("c1"))
}

func TestStoppedRitualIsResumable(t *testing.T) {
	f := newResumeFixture(t)
	ctx := context.Background()
	f.seed(t, "c1", time.Minute, 1)
	require.NoError(t, f.coord.Run(ctx))
	f.engine.Stop()
	assert.False(t, f.engine.Active("c1"))
	resumed, err := f.coord.ResumeCommunity(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, resumed)
}

func TestExpiredRitualIsAbandonedSilently(t *testing.T) {
	f := newResumeFixture(t)
	ctx := context.Background()
	f.seed(t, "c1", 31*time.Minute, 3)
	before, err := f.log.List(ctx, "c1")
	require.NoError(t, err)
	require.NoError(t, f.coord.Run(ctx))
	after, err := f.log.List(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, after, len(before))
	assert.False(t, f.engine.Active("c1"))
}
