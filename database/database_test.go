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

package database_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/blinklabs-io/wilhelmina/database"
	"github.com/blinklabs-io/wilhelmina/database/models"
)

func newTestDatabase(t *testing.T) *database.Database {
	t.Helper()
	db, err := database.New(&database.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func ptr[T any](v T) *T {
	return &v
}

func TestAppendEventAssignsIncreasingIds(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()
	var last uint64
	for _, kind := range []string{"ritual_start", "ritual_state", "ritual_state", "ritual_end"} {
		evt := &models.Event{
			CommunityID: "c1",
			Kind:        kind,
			Detail:      "{}",
		}
		require.NoError(t, db.AppendEvent(ctx, evt))
		assert.Greater(t, evt.ID, last)
		assert.False(t, evt.CreatedAt.IsZero())
		last = evt.ID
	}
	events, err := db.ListEvents(ctx, "c1", database.EventQuery{})
	require.NoError(t, err)
	require.Len(t, events, 4)
	assert.Equal(t, "ritual_start", events[0].Kind)
	assert.Equal(t, "ritual_end", events[3].Kind)

	states, err := db.ListEvents(
		ctx,
		"c1",
		database.EventQuery{Kinds: []string{"ritual_state"}},
	)
	require.NoError(t, err)
	assert.Len(t, states, 2)

	after, err := db.ListEvents(
		ctx,
		"c1",
		database.EventQuery{AfterID: events[1].ID},
	)
	require.NoError(t, err)
	assert.Len(t, after, 2)

	other, err := db.ListEvents(ctx, "c2", database.EventQuery{})
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestDeleteEventsOnlyTouchesOneKind(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()
	for _, kind := range []string{"ritual_start", "ritual_state", "ritual_state"} {
		require.NoError(t, db.AppendEvent(ctx, &models.Event{
			CommunityID: "c1",
			Kind:        kind,
			Detail:      "{}",
		}))
	}
	require.NoError(t, db.AppendEvent(ctx, &models.Event{
		CommunityID: "c2",
		Kind:        "ritual_state",
		Detail:      "{}",
	}))
	n, err := db.DeleteEvents(ctx, "c1", "ritual_state")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	events, err := db.ListEvents(ctx, "c1", database.EventQuery{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "ritual_start", events[0].Kind)
	events, err = db.ListEvents(ctx, "c2", database.EventQuery{})
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestLatestEventBySubject(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()
	_, err := db.LatestEvent(ctx, "c1", database.EventQuery{SubjectID: "m1"})
	assert.ErrorIs(t, err, database.ErrNotFound)
	for _, kind := range []string{"contract_sent", "contract_signed", "contract_revoked"} {
		require.NoError(t, db.AppendEvent(ctx, &models.Event{
			CommunityID: "c1",
			SubjectID:   "m1",
			Kind:        kind,
			Detail:      "{}",
		}))
	}
	require.NoError(t, db.AppendEvent(ctx, &models.Event{
		CommunityID: "c1",
		SubjectID:   "m2",
		Kind:        "contract_declined",
		Detail:      "{}",
	}))
	evt, err := db.LatestEvent(ctx, "c1", database.EventQuery{SubjectID: "m1"})
	require.NoError(t, err)
	assert.Equal(t, "contract_revoked", evt.Kind)
	evt, err = db.LatestEvent(
		ctx,
		"c1",
		database.EventQuery{
			SubjectID: "m1",
			Kinds:     []string{"contract_sent"},
		},
	)
	require.NoError(t, err)
	assert.Equal(t, "contract_sent", evt.Kind)
}

func TestMemberLifecycle(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()
	_, err := db.GetMember(ctx, "c1", "m1")
	assert.ErrorIs(t, err, database.ErrNotFound)

	m, err := db.EnsureMember(ctx, "c1", "m1")
	require.NoError(t, err)
	assert.False(t, m.Signed())
	assert.Nil(t, m.SignedAt)

	// Ensuring again is a no-op
	_, err = db.EnsureMember(ctx, "c1", "m1")
	require.NoError(t, err)

	signedAt := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, db.UpsertMember(ctx, &models.Member{
		CommunityID: "c1",
		MemberID:    "m1",
		ChosenName:  "Lilith",
		Birthdate:   "1999-09-09",
		SignedAt:    &signedAt,
		SoulID:      ptr("⛧WLMN-0001-AB25Ψ3⛧"),
	}))
	m, err = db.GetMember(ctx, "c1", "m1")
	require.NoError(t, err)
	assert.True(t, m.Signed())
	assert.Equal(t, "Lilith", m.ChosenName)
	require.NotNil(t, m.SignedAt)
	assert.True(t, signedAt.Equal(*m.SignedAt))

	require.NoError(t, db.ClearMemberSignature(ctx, "c1", "m1"))
	m, err = db.GetMember(ctx, "c1", "m1")
	require.NoError(t, err)
	assert.False(t, m.Signed())
	assert.Nil(t, m.SignedAt)
	assert.Equal(t, "Lilith", m.ChosenName)

	assert.ErrorIs(
		t,
		db.ClearMemberSignature(ctx, "c1", "missing"),
		database.ErrNotFound,
	)

	_, err = db.EnsureMember(ctx, "c1", "m0")
	require.NoError(t, err)
	members, err := db.ListMembers(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "m0", members[0].MemberID)
}

func TestUpsertCommunityConfigPreservesCreatedAt(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()
	_, err := db.GetCommunityConfig(ctx, "c1")
	assert.ErrorIs(t, err, database.ErrNotFound)

	require.NoError(t, db.UpsertCommunityConfig(ctx, &models.CommunityConfig{
		CommunityID:      "c1",
		SignedRoleRef:    "role-1",
		CircleChannelRef: "chan-1",
	}))
	first, err := db.GetCommunityConfig(ctx, "c1")
	require.NoError(t, err)

	require.NoError(t, db.UpsertCommunityConfig(ctx, &models.CommunityConfig{
		CommunityID:        "c1",
		SignedRoleRef:      "role-2",
		CircleChannelRef:   "chan-1",
		AdminLogChannelRef: "log-1",
	}))
	second, err := db.GetCommunityConfig(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "role-2", second.SignedRoleRef)
	assert.Equal(t, "log-1", second.AdminLogChannelRef)
	assert.True(t, first.CreatedAt.Equal(second.CreatedAt))
}

func TestListCommunitiesUnion(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()
	require.NoError(t, db.UpsertCommunityConfig(ctx, &models.CommunityConfig{
		CommunityID: "b",
	}))
	require.NoError(t, db.AppendEvent(ctx, &models.Event{
		CommunityID: "a",
		Kind:        "ritual_start",
		Detail:      "{}",
	}))
	require.NoError(t, db.AppendEvent(ctx, &models.Event{
		CommunityID: "b",
		Kind:        "ritual_start",
		Detail:      "{}",
	}))
	ids, err := db.ListCommunities(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
	require.NoError(t, db.Ping(ctx))
}

func TestUnknownPlugin(t *testing.T) {
	_, err := database.New(&database.Config{MetadataPlugin: "nope"})
	assert.Error(t, err)
}

type gormStore struct {
	db *gorm.DB
}

func (s *gormStore) Start() error { return nil }
func (s *gormStore) Stop() error  { return nil }
func (s *gormStore) Close() error { return nil }
func (s *gormStore) DB() *gorm.DB { return s.db }

func TestStorageErrorWrapsDriverFailure(t *testing.T) {
	sqlDb, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDb.Close()
	gdb, err := gorm.Open(
		postgres.New(postgres.Config{Conn: sqlDb}),
		&gorm.Config{
			Logger:                 gormlogger.Discard,
			SkipDefaultTransaction: true,
		},
	)
	require.NoError(t, err)
	db := database.NewWithStores(nil, &gormStore{db: gdb}, nil)

	diskFull := errors.New("disk full")
	mock.ExpectQuery(`INSERT INTO "event"`).WillReturnError(diskFull)
	err = db.AppendEvent(context.Background(), &models.Event{
		CommunityID: "c1",
		Kind:        "ritual_state",
		Detail:      "{}",
	})
	require.Error(t, err)
	var storageErr *database.StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, "append event", storageErr.Op)
	assert.ErrorIs(t, err, diskFull)

	mock.ExpectQuery(`SELECT \* FROM "event"`).WillReturnError(diskFull)
	_, err = db.ListEvents(context.Background(), "c1", database.EventQuery{})
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, "list events", storageErr.Op)
	assert.NoError(t, mock.ExpectationsWereMet())
}
