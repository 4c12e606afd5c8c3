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

package eventlog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/blinklabs-io/wilhelmina/database"
	"github.com/blinklabs-io/wilhelmina/database/models"
	"github.com/blinklabs-io/wilhelmina/event"
	"github.com/prometheus/client_golang/prometheus"
)

// AppendedEventType is published on the event bus after every append
const AppendedEventType event.EventType = "eventlog.appended"

// ErrNotFound is returned when no entry matches a lookup
var ErrNotFound = errors.New("no matching journal entry")

// Entry is one decoded journal row
type Entry struct {
	CreatedAt   time.Time
	Detail      Detail
	CommunityID string
	ActorID     string
	SubjectID   string
	Kind        Kind
	Seq         uint64
}

// LogConfig holds the journal's collaborators
type LogConfig struct {
	DB           *database.Database
	EventBus     *event.EventBus
	Logger       *slog.Logger
	PromRegistry prometheus.Registerer
}

// Log is the append-only community journal. Entries are ordered by their
// sequence id only.
type Log struct {
	db       *database.Database
	eventBus *event.EventBus
	logger   *slog.Logger
	metrics  *logMetrics
}

// New creates a journal on top of the database
func New(cfg LogConfig) (*Log, error) {
	if cfg.DB == nil {
		return nil, errors.New("eventlog: database is required")
	}
	l := &Log{
		db:       cfg.DB,
		eventBus: cfg.EventBus,
		logger:   cfg.Logger,
		metrics:  newLogMetrics(cfg.PromRegistry),
	}
	if l.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		l.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return l, nil
}

// Append writes a new entry and returns it with its sequence id. An empty
// actor marks a system action.
func (l *Log) Append(
	ctx context.Context,
	communityID string,
	actorID string,
	detail Detail,
) (Entry, error) {
	raw, err := Encode(detail)
	if err != nil {
		return Entry{}, err
	}
	row := &models.Event{
		CommunityID: communityID,
		Kind:        string(detail.Kind()),
		Detail:      raw,
		CreatedAt:   time.Now().UTC(),
	}
	if actorID != "" {
		row.ActorID = &actorID
	}
	if s, ok := detail.(subjecter); ok {
		row.SubjectID = s.Subject()
	}
	if err := l.db.AppendEvent(ctx, row); err != nil {
		l.metrics.appendFailures.Inc()
		return Entry{}, err
	}
	l.metrics.appends.WithLabelValues(row.Kind).Inc()
	entry := Entry{
		Seq:         row.ID,
		CommunityID: communityID,
		ActorID:     actorID,
		SubjectID:   row.SubjectID,
		Kind:        detail.Kind(),
		Detail:      detail,
		CreatedAt:   row.CreatedAt,
	}
	l.logger.Debug(
		"journal append",
		"component", "eventlog",
		"community", communityID,
		"kind", string(entry.Kind),
		"seq", entry.Seq,
	)
	if l.eventBus != nil {
		l.eventBus.PublishAsync(
			AppendedEventType,
			event.NewEvent(AppendedEventType, entry),
		)
	}
	return entry, nil
}

// List returns the whole journal of a community in sequence order
func (l *Log) List(ctx context.Context, communityID string) ([]Entry, error) {
	return l.query(ctx, communityID, database.EventQuery{})
}

// ListKinds returns the entries of the given kinds in sequence order
func (l *Log) ListKinds(
	ctx context.Context,
	communityID string,
	kinds ...Kind,
) ([]Entry, error) {
	return l.query(ctx, communityID, database.EventQuery{Kinds: kindStrings(kinds)})
}

// ListSubject returns every entry concerning one member in sequence order
func (l *Log) ListSubject(
	ctx context.Context,
	communityID string,
	subjectID string,
) ([]Entry, error) {
	return l.query(ctx, communityID, database.EventQuery{SubjectID: subjectID})
}

// Latest returns the newest entry concerning a member with one of the given
// kinds, or ErrNotFound
func (l *Log) Latest(
	ctx context.Context,
	communityID string,
	subjectID string,
	kinds ...Kind,
) (Entry, error) {
	row, err := l.db.LatestEvent(ctx, communityID, database.EventQuery{
		SubjectID: subjectID,
		Kinds:     kindStrings(kinds),
	})
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, err
	}
	return decodeRow(*row)
}

// Prune removes every entry of one kind for a community
func (l *Log) Prune(ctx context.Context, communityID string, kind Kind) (int64, error) {
	n, err := l.db.DeleteEvents(ctx, communityID, string(kind))
	if err != nil {
		return 0, err
	}
	l.logger.Debug(
		"journal pruned",
		"component", "eventlog",
		"community", communityID,
		"kind", string(kind),
		"removed", n,
	)
	return n, nil
}

func (l *Log) query(
	ctx context.Context,
	communityID string,
	query database.EventQuery,
) ([]Entry, error) {
	rows, err := l.db.ListEvents(ctx, communityID, query)
	if err != nil {
		return nil, err
	}
	ret := make([]Entry, 0, len(rows))
	for _, row := range rows {
		entry, err := decodeRow(row)
		if err != nil {
			return nil, err
		}
		ret = append(ret, entry)
	}
	return ret, nil
}

func decodeRow(row models.Event) (Entry, error) {
	detail, err := Decode(Kind(row.Kind), []byte(row.Detail))
	if err != nil {
		return Entry{}, fmt.Errorf("journal entry %d: %w", row.ID, err)
	}
	entry := Entry{
		Seq:         row.ID,
		CommunityID: row.CommunityID,
		SubjectID:   row.SubjectID,
		Kind:        Kind(row.Kind),
		Detail:      detail,
		CreatedAt:   row.CreatedAt,
	}
	if row.ActorID != nil {
		entry.ActorID = *row.ActorID
	}
	return entry, nil
}

// Render formats an entry as "kind: {detail json}" for audit channels
func Render(entry Entry) string {
	raw, err := Encode(entry.Detail)
	if err != nil {
		raw = "{}"
	}
	return fmt.Sprintf("%s: %s", entry.Kind, raw)
}

func kindStrings(kinds []Kind) []string {
	if len(kinds) == 0 {
		return nil
	}
	ret := make([]string, len(kinds))
	for i, k := range kinds {
		ret[i] = string(k)
	}
	return ret
}
