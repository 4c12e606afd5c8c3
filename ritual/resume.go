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
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/blinklabs-io/wilhelmina/database"
	"github.com/blinklabs-io/wilhelmina/eventlog"
)

const DefaultResumeWindow = 30 * time.Minute

var ritualKinds = []eventlog.Kind{
	eventlog.KindRitualStart,
	eventlog.KindRitualState,
	eventlog.KindRitualEnd,
	eventlog.KindRitualAbort,
}

// Resumable is an unfinished ritual found in the journal
type Resumable struct {
	State       *State
	SnapshotSeq uint64
}

// FindResumable looks for the latest ritual_start with no later end or
// abort, started no more than window before now, and returns the latest
// snapshot written after it. Entries must be in sequence order.
func FindResumable(entries []eventlog.Entry, now time.Time, window time.Duration) (Resumable, bool) {
	var (
		start    *eventlog.RitualStart
		snapshot *eventlog.RitualState
		seq      uint64
	)
	for _, entry := range entries {
		switch d := entry.Detail.(type) {
		case eventlog.RitualStart:
			start = &d
			snapshot = nil
		case eventlog.RitualEnd, eventlog.RitualAbort:
			start = nil
			snapshot = nil
		case eventlog.RitualState:
			if start == nil || d.RunID != start.RunID {
				continue
			}
			snapshot = &d
			seq = entry.Seq
		}
	}
	if start == nil || snapshot == nil {
		return Resumable{}, false
	}
	if now.Sub(start.StartedAt) > window {
		return Resumable{}, false
	}
	return Resumable{
		State:       StateFromSnapshot(snapshot.RitualSnapshot),
		SnapshotSeq: seq,
	}, true
}

type CoordinatorConfig struct {
	DB     *database.Database
	Log    *eventlog.Log
	Engine *Engine
	Logger *slog.Logger
	Now    func() time.Time
	Window time.Duration
}

// Coordinator restarts unfinished rituals after a process restart
type Coordinator struct {
	db     *database.Database
	log    *eventlog.Log
	engine *Engine
	logger *slog.Logger
	now    func() time.Time
	window time.Duration
}

func NewCoordinator(cfg CoordinatorConfig) (*Coordinator, error) {
	if cfg.DB == nil || cfg.Log == nil || cfg.Engine == nil {
		return nil, errors.New("ritual: database, journal and engine are required")
	}
	c := &Coordinator{
		db:     cfg.DB,
		log:    cfg.Log,
		engine: cfg.Engine,
		logger: cfg.Logger,
		now:    cfg.Now,
		window: cfg.Window,
	}
	if c.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		c.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.window <= 0 {
		c.window = DefaultResumeWindow
	}
	return c, nil
}

// Run checks every known community. A failure in one community is logged
// and does not stop the others.
func (c *Coordinator) Run(ctx context.Context) error {
	communities, err := c.db.ListCommunities(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, communityID := range communities {
		if _, err := c.ResumeCommunity(ctx, communityID); err != nil {
			c.logger.Error(
				"failed to resume ritual",
				"component", "ritual",
				"community", communityID,
				"error", err,
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ResumeCommunity resumes the community's unfinished ritual, if any. It
// does nothing when the ritual is already running.
func (c *Coordinator) ResumeCommunity(ctx context.Context, communityID string) (bool, error) {
	if c.engine.Active(communityID) {
		return false, nil
	}
	entries, err := c.log.ListKinds(ctx, communityID, ritualKinds...)
	if err != nil {
		return false, err
	}
	found, ok := FindResumable(entries, c.now(), c.window)
	if !ok {
		c.logger.Debug(
			"no resumable ritual",
			"component", "ritual",
			"community", communityID,
		)
		return false, nil
	}
	if err := c.engine.Resume(found.State); err != nil {
		if errors.Is(err, ErrAlreadyActive) {
			return false, nil
		}
		return false, err
	}
	if _, err := c.log.Append(ctx, communityID, "", eventlog.RitualResume{
		RunID:       found.State.RunID,
		NextIndex:   found.State.NextIndex,
		SnapshotSeq: found.SnapshotSeq,
		Remaining:   found.State.Remaining(),
	}); err != nil {
		return true, err
	}
	return true, nil
}
