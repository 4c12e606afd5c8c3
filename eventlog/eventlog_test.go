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

package eventlog_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/wilhelmina/database"
	"github.com/blinklabs-io/wilhelmina/database/models"
	"github.com/blinklabs-io/wilhelmina/event"
	"github.com/blinklabs-io/wilhelmina/eventlog"
	"github.com/blinklabs-io/wilhelmina/internal/test/testutil"
)

func newTestLog(t *testing.T, bus *event.EventBus) (*eventlog.Log, *database.Database) {
	t.Helper()
	db, err := database.New(&database.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	l, err := eventlog.New(eventlog.LogConfig{DB: db, EventBus: bus})
	require.NoError(t, err)
	return l, db
}

func TestAppendAndListInSequenceOrder(t *testing.T) {
	l, _ := newTestLog(t, nil)
	ctx := context.Background()
	first, err := l.Append(ctx, "c1", "admin", eventlog.ContractSent{MemberID: "m1", Via: "dm"})
	require.NoError(t, err)
	second, err := l.Append(ctx, "c1", "", eventlog.ContractSigned{
		MemberID:   "m1",
		ChosenName: "Lilith",
		SoulID:     "⛧WLMN-0001-AB25Ψ3⛧",
		Serial:     1,
	})
	require.NoError(t, err)
	assert.Greater(t, second.Seq, first.Seq)
	assert.Equal(t, "m1", second.SubjectID)

	entries, err := l.List(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "admin", entries[0].ActorID)
	assert.Empty(t, entries[1].ActorID)
	sent, ok := entries[0].Detail.(eventlog.ContractSent)
	require.True(t, ok)
	assert.Equal(t, "dm", sent.Via)
	signed, ok := entries[1].Detail.(eventlog.ContractSigned)
	require.True(t, ok)
	assert.Equal(t, uint64(1), signed.Serial)
}

func TestUnknownKindPreservesPayload(t *testing.T) {
	l, db := newTestLog(t, nil)
	ctx := context.Background()
	raw := `{"omen":"crow","count":3}`
	require.NoError(t, db.AppendEvent(ctx, &models.Event{
		CommunityID: "c1",
		Kind:        "future_omen",
		Detail:      raw,
	}))
	entries, err := l.List(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	unknown, ok := entries[0].Detail.(eventlog.Unknown)
	require.True(t, ok)
	assert.Equal(t, eventlog.Kind("future_omen"), unknown.Kind())
	assert.JSONEq(t, raw, string(unknown.Raw))
	assert.Equal(t, "future_omen: "+raw, eventlog.Render(entries[0]))
}

func TestMalformedKnownKindIsAnError(t *testing.T) {
	_, err := eventlog.Decode(eventlog.KindContractSent, []byte(`{"member_id":`))
	assert.Error(t, err)
}

func TestRitualSnapshotRoundTrip(t *testing.T) {
	l, _ := newTestLog(t, nil)
	ctx := context.Background()
	last := time.Date(2025, 1, 2, 3, 4, 5, 6, time.UTC)
	snap := eventlog.RitualSnapshot{
		StartedAt:          time.Date(2025, 1, 2, 3, 0, 0, 123456789, time.UTC),
		LastEveryoneAt:     &last,
		CommunityID:        "c1",
		RunID:              "run-1",
		ChannelRef:         "circle",
		BeatsNs:            []int64{int64(61 * time.Second), int64(122*time.Second + 5)},
		NextIndex:          1,
		EveryoneCount:      1,
		MemberMentionsDone: 6,
	}
	_, err := l.Append(ctx, "c1", "", eventlog.RitualState{RitualSnapshot: snap})
	require.NoError(t, err)
	entries, err := l.ListKinds(ctx, "c1", eventlog.KindRitualState)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	got, ok := entries[0].Detail.(eventlog.RitualState)
	require.True(t, ok)
	assert.True(t, snap.StartedAt.Equal(got.StartedAt))
	require.NotNil(t, got.LastEveryoneAt)
	assert.True(t, last.Equal(*got.LastEveryoneAt))
	assert.Equal(t, snap.BeatsNs, got.BeatsNs)
	assert.Equal(t, snap.NextIndex, got.NextIndex)
	assert.Equal(t, snap.MemberMentionsDone, got.MemberMentionsDone)
}

func TestLatestAndPrune(t *testing.T) {
	l, _ := newTestLog(t, nil)
	ctx := context.Background()
	_, err := l.Latest(ctx, "c1", "m1", eventlog.ContractKinds...)
	assert.ErrorIs(t, err, eventlog.ErrNotFound)

	_, err = l.Append(ctx, "c1", "", eventlog.ContractSent{MemberID: "m1", Via: "dm"})
	require.NoError(t, err)
	_, err = l.Append(ctx, "c1", "", eventlog.ContractDeclined{MemberID: "m1"})
	require.NoError(t, err)
	_, err = l.Append(ctx, "c1", "", eventlog.AdminBypass{MemberID: "m1"})
	require.NoError(t, err)
	latest, err := l.Latest(ctx, "c1", "m1", eventlog.ContractKinds...)
	require.NoError(t, err)
	assert.Equal(t, eventlog.KindContractDeclined, latest.Kind)

	for range 3 {
		_, err = l.Append(ctx, "c1", "", eventlog.RitualState{})
		require.NoError(t, err)
	}
	n, err := l.Prune(ctx, "c1", eventlog.KindRitualState)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	all, err := l.List(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestAppendPublishesOnBus(t *testing.T) {
	bus := event.NewEventBus(nil, nil)
	defer bus.Stop()
	_, ch := bus.Subscribe(eventlog.AppendedEventType)
	l, _ := newTestLog(t, bus)
	entry, err := l.Append(
		context.Background(),
		"c1",
		"",
		eventlog.LayoutUpdated{CircleChannelRef: "circle"},
	)
	require.NoError(t, err)
	evt := testutil.RequireReceive(t, ch, 2*time.Second, "appended event")
	got, ok := evt.Data.(eventlog.Entry)
	require.True(t, ok)
	assert.Equal(t, entry.Seq, got.Seq)
	assert.Equal(t, eventlog.KindLayoutUpdated, got.Kind)
}
