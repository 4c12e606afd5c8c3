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

package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/wilhelmina/database"
	"github.com/blinklabs-io/wilhelmina/eventlog"
)

// NewDatabase opens in-memory metadata and blob stores that are closed
// when the test ends
func NewDatabase(t *testing.T) *database.Database {
	t.Helper()
	db, err := database.New(&database.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// NewJournal returns an in-memory database and a journal on top of it
func NewJournal(t *testing.T) (*database.Database, *eventlog.Log) {
	t.Helper()
	db := NewDatabase(t)
	l, err := eventlog.New(eventlog.LogConfig{DB: db})
	require.NoError(t, err)
	return db, l
}

// Kinds returns the kinds of the given entries in order
func Kinds(entries []eventlog.Entry) []eventlog.Kind {
	ret := make([]eventlog.Kind, len(entries))
	for i, e := range entries {
		ret[i] = e.Kind
	}
	return ret
}
