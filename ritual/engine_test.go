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
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/blinklabs-io/wilhelmina/database"
	"github.com/blinklabs-io/wilhelmina/eventlog"
	"github.com/blinklabs-io/wilhelmina/internal/test/fakegw"
	"github.com/blinklabs-io/wilhelmina/internal/test/testutil"
	"github.com/blinklabs-io/wilhelmina/ritual"
)

// memJournal keeps entries in memory. failState, when set, decides whether
// a ritual_state append fails; fail does the same for any entry.
type memJournal struct {
	failState func(eventlog.RitualState) bool
	fail      func(eventlog.Detail) bool
	entries   []eventlog.Entry
	seq       uint64
	mu        sync.Mutex
}

func (j *memJournal) Append(
	_ context.Context,
	communityID string,
	actorID string,
	detail eventlog.Detail,
) (eventlog.Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if d, ok := detail.(eventlog.RitualState); ok && j.failState != nil && j.failState(d) {
		return eventlog.Entry{}, &database.StorageError{Op: "append event", Err: errors.New("disk on fire")}
	}
	if j.fail != nil && j.fail(detail) {
		return eventlog.Entry{}, &database.StorageError{Op: "append event", Err: errors.New("disk full")}
	}
	j.seq++
	entry := eventlog.Entry{
		Seq:         j.seq,
		CommunityID: communityID,
		ActorID:     actorID,
		Kind:        detail.Kind(),
		Detail:      detail,
		CreatedAt:   time.Now(),
	}
	j.entries = append(j.entries, entry)
	return entry, nil
}

func (j *memJournal) Prune(_ context.Context, communityID string, kind eventlog.Kind) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var n int64
	kept := j.entries[:0]
	for _, e := range j.entries {
		if e.CommunityID == communityID && e.Kind == kind {
			n++
			continue
		}
		kept = append(kept, e)
	}
	j.entries = kept
	return n, nil
}

func (j *memJournal) Entries() []eventlog.Entry {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]eventlog.Entry(nil), j.entries...)
}

func (j *memJournal) Count(kind eventlog.Kind) int {
	n := 0
	for _, e := range j.Entries() {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func shortSchedule() ritual.ScheduleConfig {
	return ritual.ScheduleConfig{
		Beats:     3,
		Duration:  300 * time.Millisecond,
		JitterMin: 0,
		JitterMax: 10 * time.Millisecond,
	}
}

func longSchedule() ritual.ScheduleConfig {
	return ritual.ScheduleConfig{
		Beats:     12,
		Duration:  time.Hour,
		JitterMin: time.Second,
		JitterMax: 2 * time.Second,
	}
}

func newEngine(t *testing.T, j ritual.Journal, gw *fakegw.Gateway, sched ritual.ScheduleConfig) *ritual.Engine {
	t.Helper()
	e, err := ritual.NewEngine(ritual.EngineConfig{
		Journal:              j,
		Platform:             gw,
		PromRegistry:         prometheus.NewRegistry(),
		Schedule:             sched,
		StorageRetryInterval: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(e.Stop)
	return e
}

func countTitle(gw *fakegw.Gateway, title string) int {
	n := 0
	for _, m := range gw.Sent() {
		if m.Title == title {
			n++
		}
	}
	return n
}

func TestStartRunsToFinale(t *testing.T) {
	defer goleak.VerifyNone(t)
	j := &memJournal{}
	gw := fakegw.New()
	gw.SetMembers("c1", testMembers(20, 2, 1))
	e := newEngine(t, j, gw, shortSchedule())

	st, err := e.Start(context.Background(), "c1", "circle", "admin")
	require.NoError(t, err)
	assert.Len(t, st.Beats, 4)
	assert.NotEmpty(t, st.RunID)

	testutil.WaitForCondition(t, func() bool {
		return j.Count(eventlog.KindRitualEnd) == 1
	}, 5*time.Second, "ritual did not finish")
	testutil.WaitForCondition(t, func() bool {
		return !e.Active("c1")
	}, time.Second, "ritual still active")

	sent := gw.Sent()
	require.Len(t, sent, 6)
	assert.Equal(t, "Summoning", sent[0].Title)
	for _, m := range sent[1:5] {
		assert.Equal(t, "Ritual Beat", m.Title)
		assert.Equal(t, "circle", m.ChannelRef)
	}
	assert.Equal(t, "Finale", sent[5].Title)
	assert.Equal(t, 0, j.Count(eventlog.KindRitualState))
	assert.Equal(t, 1, j.Count(eventlog.KindRitualStart))
	assert.Equal(t, "admin", j.Entries()[0].ActorID)

	end := j.Entries()[len(j.Entries())-1].Detail.(eventlog.RitualEnd)
	assert.Equal(t, 4, end.Beats)
	assert.Equal(t, st.RunID, end.RunID)
	assert.LessOrEqual(t, end.MemberMentionsDone, 24)
}

func TestStartTwiceIsRejected(t *testing.T) {
	defer goleak.VerifyNone(t)
	j := &memJournal{}
	gw := fakegw.New()
	e := newEngine(t, j, gw, longSchedule())
	_, err := e.Start(context.Background(), "c1", "circle", "")
	require.NoError(t, err)
	_, err = e.Start(context.Background(), "c1", "circle", "")
	assert.ErrorIs(t, err, ritual.ErrAlreadyActive)
	// Another community is independent
	_, err = e.Start(context.Background(), "c2", "circle", "")
	require.NoError(t, err)

	_, err = e.Abort(context.Background(), "c1", "admin")
	require.NoError(t, err)
	_, err = e.Abort(context.Background(), "c1", "admin")
	assert.ErrorIs(t, err, ritual.ErrNotActive)
	assert.True(t, e.Active("c2"))
	e.Stop()
	assert.False(t, e.Active("c2"))
}

func TestPreflightBlocksStart(t *testing.T) {
	j := &memJournal{}
	gw := fakegw.New()
	gw.Perms.ManageMessages = false
	gw.Perms.MentionEveryone = false
	e := newEngine(t, j, gw, longSchedule())
	_, err := e.Start(context.Background(), "c1", "circle", "admin")
	require.ErrorIs(t, err, ritual.ErrPreflight)
	assert.Contains(t, err.Error(), "manage_messages")
	assert.False(t, e.Active("c1"))
	entries := j.Entries()
	require.Len(t, entries, 1)
	failed := entries[0].Detail.(eventlog.PreflightFailed)
	assert.Equal(t, []string{"manage_messages", "mention_everyone"}, failed.Missing)
	assert.Empty(t, gw.Sent())
}

func TestAbortAtBeatFive(t *testing.T) {
	defer goleak.VerifyNone(t)
	j := &memJournal{}
	gw := fakegw.New()
	gw.SetMembers("c1", testMembers(5, 0, 0))
	e := newEngine(t, j, gw, longSchedule())

	beats := make([]time.Duration, 13)
	for i := range beats {
		if i < 5 {
			beats[i] = time.Duration(i+1) * time.Millisecond
		} else {
			beats[i] = time.Hour + time.Duration(i)*time.Minute
		}
	}
	require.NoError(t, e.Resume(&ritual.State{
		CommunityID: "c1",
		RunID:       "run-5",
		ChannelRef:  "circle",
		StartedAt:   time.Now().Add(-time.Second),
		Beats:       beats,
	}))
	testutil.WaitForCondition(t, func() bool {
		st, ok := e.Status("c1")
		return ok && st.NextIndex == 5
	}, 5*time.Second, "beats 1-5 did not fire")

	st, err := e.Abort(context.Background(), "c1", "admin")
	require.NoError(t, err)
	assert.True(t, st.Aborted)
	assert.Equal(t, 5, st.NextIndex)
	assert.False(t, e.Active("c1"))

	assert.Equal(t, 5, countTitle(gw, "Ritual Beat"))
	assert.Equal(t, 1, countTitle(gw, "Ritual Severed"))
	assert.Equal(t, 0, countTitle(gw, "Finale"))
	assert.Equal(t, 0, j.Count(eventlog.KindRitualState))
	entries := j.Entries()
	abort := entries[len(entries)-1]
	require.Equal(t, eventlog.KindRitualAbort, abort.Kind)
	assert.Equal(t, "admin", abort.ActorID)
	snap := abort.Detail.(eventlog.RitualAbort)
	assert.True(t, snap.Aborted)
	assert.Equal(t, 5, snap.NextIndex)

	// The runner is gone; nothing more is sent
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 5, countTitle(gw, "Ritual Beat"))
}

func TestAbortJournalFailureCanBeRetried(t *testing.T) {
	defer goleak.VerifyNone(t)
	var failAbort atomic.Bool
	failAbort.Store(true)
	j := &memJournal{
		fail: func(d eventlog.Detail) bool {
			_, ok := d.(eventlog.RitualAbort)
			return ok && failAbort.Load()
		},
	}
	gw := fakegw.New()
	e := newEngine(t, j, gw, longSchedule())
	_, err := e.Start(context.Background(), "c1", "circle", "admin")
	require.NoError(t, err)

	_, err = e.Abort(context.Background(), "c1", "admin")
	var storageErr *database.StorageError
	require.ErrorAs(t, err, &storageErr)
	// The journal still shows the ritual running, and so does the engine
	assert.True(t, e.Active("c1"))
	assert.Equal(t, 0, j.Count(eventlog.KindRitualAbort))
	assert.Positive(t, j.Count(eventlog.KindRitualState))
	assert.Equal(t, 0, countTitle(gw, "Ritual Severed"))
	_, err = e.Start(context.Background(), "c1", "circle", "admin")
	require.ErrorIs(t, err, ritual.ErrAlreadyActive)

	failAbort.Store(false)
	st, err := e.Abort(context.Background(), "c1", "admin")
	require.NoError(t, err)
	assert.True(t, st.Aborted)
	assert.False(t, e.Active("c1"))
	assert.Equal(t, 1, j.Count(eventlog.KindRitualAbort))
	assert.Equal(t, 0, j.Count(eventlog.KindRitualState))
	assert.Equal(t, 1, countTitle(gw, "Ritual Severed"))
	_, err = e.Abort(context.Background(), "c1", "admin")
	assert.ErrorIs(t, err, ritual.ErrNotActive)
}

func TestEndJournalFailureRetries(t *testing.T) {
	defer goleak.VerifyNone(t)
	var failures atomic.Int32
	j := &memJournal{
		fail: func(d eventlog.Detail) bool {
			if _, ok := d.(eventlog.RitualEnd); !ok {
				return false
			}
			return failures.Add(1) <= 3
		},
	}
	gw := fakegw.New()
	e := newEngine(t, j, gw, shortSchedule())
	_, err := e.Start(context.Background(), "c1", "circle", "")
	require.NoError(t, err)
	testutil.WaitForCondition(t, func() bool {
		return j.Count(eventlog.KindRitualEnd) == 1
	}, 5*time.Second, "ritual end was not recorded")
	testutil.WaitForCondition(t, func() bool {
		_, ok := e.Status("c1")
		return !ok
	}, time.Second, "ritual still registered")
	assert.Equal(t, int32(4), failures.Load())
	assert.Equal(t, 1, countTitle(gw, "Finale"))
	assert.Equal(t, 0, j.Count(eventlog.KindRitualState))
}

func TestStopInterruptsEndRetries(t *testing.T) {
	defer goleak.VerifyNone(t)
	var failures atomic.Int32
	j := &memJournal{
		fail: func(d eventlog.Detail) bool {
			_, ok := d.(eventlog.RitualEnd)
			if ok {
				failures.Add(1)
			}
			return ok
		},
	}
	gw := fakegw.New()
	e := newEngine(t, j, gw, shortSchedule())
	_, err := e.Start(context.Background(), "c1", "circle", "")
	require.NoError(t, err)
	testutil.WaitForCondition(t, func() bool {
		return failures.Load() >= 2
	}, 5*time.Second, "ritual end was not retried")
	e.Stop()
	_, ok := e.Status("c1")
	assert.False(t, ok)
	// Without an end entry the snapshots stay for the next resume
	assert.Equal(t, 0, j.Count(eventlog.KindRitualEnd))
	assert.Positive(t, j.Count(eventlog.KindRitualState))
	assert.Equal(t, 1, countTitle(gw, "Finale"))
}

func TestDeliveryFailureStillAdvances(t *testing.T) {
	defer goleak.VerifyNone(t)
	j := &memJournal{}
	gw := fakegw.New()
	gw.SetMembers("c1", testMembers(20, 0, 0))
	gw.SetSendErr(errors.New("platform down"))
	e := newEngine(t, j, gw, shortSchedule())
	_, err := e.Start(context.Background(), "c1", "circle", "")
	require.NoError(t, err)
	testutil.WaitForCondition(t, func() bool {
		return j.Count(eventlog.KindRitualEnd) == 1
	}, 5*time.Second, "ritual did not finish")
	end := j.Entries()[len(j.Entries())-1].Detail.(eventlog.RitualEnd)
	// Counters are not rolled back by failed sends
	assert.Equal(t, 24, end.MemberMentionsDone)
	assert.Equal(t, 5, countTitle(gw, "Ritual Beat")+countTitle(gw, "Summoning"))
}

func TestSnapshotFailureRetriesWithoutRefiring(t *testing.T) {
	defer goleak.VerifyNone(t)
	var failures int
	j := &memJournal{
		failState: func(d eventlog.RitualState) bool {
			if d.NextIndex == 1 && failures < 3 {
				failures++
				return true
			}
			return false
		},
	}
	gw := fakegw.New()
	e := newEngine(t, j, gw, ritual.ScheduleConfig{
		Beats:     1,
		Duration:  40 * time.Millisecond,
		JitterMax: 5 * time.Millisecond,
	})
	_, err := e.Start(context.Background(), "c1", "circle", "")
	require.NoError(t, err)
	testutil.WaitForCondition(t, func() bool {
		return j.Count(eventlog.KindRitualEnd) == 1
	}, 5*time.Second, "ritual did not finish")
	assert.Equal(t, 3, failures)
	assert.Equal(t, 2, countTitle(gw, "Ritual Beat"))
	assert.Equal(t, 1, countTitle(gw, "Finale"))
}

func TestCircleInterruption(t *testing.T) {
	defer goleak.VerifyNone(t)
	j := &memJournal{}
	gw := fakegw.New()
	e := newEngine(t, j, gw, longSchedule())
	ctx := context.Background()

	removed, err := e.HandleCircleMessage(ctx, "c1", "circle", "msg0", "m1", false)
	require.NoError(t, err)
	assert.False(t, removed)

	_, err = e.Start(ctx, "c1", "circle", "")
	require.NoError(t, err)
	removed, err = e.HandleCircleMessage(ctx, "c1", "circle", "msg1", "m1", false)
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = e.HandleCircleMessage(ctx, "c1", "circle", "msg2", "bot", true)
	require.NoError(t, err)
	assert.False(t, removed)
	removed, err = e.HandleCircleMessage(ctx, "c1", "lobby", "msg3", "m1", false)
	require.NoError(t, err)
	assert.False(t, removed)

	deletes := gw.Deletes()
	require.Len(t, deletes, 1)
	assert.Equal(t, "msg1", deletes[0].MessageRef)
	assert.Equal(t, 1, j.Count(eventlog.KindCircleInterruptionDeleted))

	gw.DeleteErr = errors.New("missing access")
	removed, err = e.HandleCircleMessage(ctx, "c1", "circle", "msg4", "m2", false)
	require.NoError(t, err)
	assert.False(t, removed)
	e.Stop()
}

func TestStatusIsACopy(t *testing.T) {
	defer goleak.VerifyNone(t)
	j := &memJournal{}
	e := newEngine(t, j, fakegw.New(), longSchedule())
	_, ok := e.Status("c1")
	assert.False(t, ok)
	_, err := e.Start(context.Background(), "c1", "circle", "")
	require.NoError(t, err)
	st, ok := e.Status("c1")
	require.True(t, ok)
	st.Beats[0] = 0
	st.NextIndex = 99
	again, _ := e.Status("c1")
	assert.NotEqual(t, time.Duration(0), again.Beats[0])
	assert.Equal(t, 0, again.NextIndex)
	e.Stop()
	assert.Zero(t, j.Count(eventlog.KindRitualAbort))
}
