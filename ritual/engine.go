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

// Package ritual runs the timed broadcast sequence of a community under
// the mass-notification governor, and resumes it after a restart.
package ritual

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/blinklabs-io/wilhelmina/eventlog"
	"github.com/blinklabs-io/wilhelmina/gateway"
	"github.com/blinklabs-io/wilhelmina/lang"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const DefaultStorageRetryInterval = 5 * time.Second

var (
	ErrAlreadyActive = errors.New("ritual already active")
	ErrNotActive     = errors.New("no active ritual")
	ErrPreflight     = errors.New("ritual preflight failed")
)

// Platform is the part of the gateway a ritual talks to
type Platform interface {
	gateway.Broadcaster
	gateway.Directory
	gateway.Moderator
}

// Journal is the part of the event log a ritual writes to
type Journal interface {
	Append(ctx context.Context, communityID string, actorID string, detail eventlog.Detail) (eventlog.Entry, error)
	Prune(ctx context.Context, communityID string, kind eventlog.Kind) (int64, error)
}

type EngineConfig struct {
	Journal              Journal
	Platform             Platform
	Lang                 *lang.Store
	Logger               *slog.Logger
	PromRegistry         prometheus.Registerer
	Now                  func() time.Time
	Schedule             ScheduleConfig
	Limits               Limits
	StorageRetryInterval time.Duration
}

// Engine owns every running ritual in the process
type Engine struct {
	journal       Journal
	platform      Platform
	lang          *lang.Store
	logger        *slog.Logger
	metrics       *engineMetrics
	now           func() time.Time
	governor      *Governor
	tasks         map[string]*task
	schedule      ScheduleConfig
	retryInterval time.Duration
	mu            sync.Mutex
}

type task struct {
	ctx     context.Context
	state   *State
	cancel  context.CancelFunc
	done    chan struct{}
	mu      sync.Mutex
	closing bool
}

func (t *task) snapshot() *State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.Clone()
}

// NewEngine creates a ritual engine. Zero schedule and limit values take
// their defaults.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Journal == nil || cfg.Platform == nil {
		return nil, errors.New("ritual: journal and platform are required")
	}
	if cfg.Schedule == (ScheduleConfig{}) {
		cfg.Schedule = DefaultScheduleConfig()
	}
	if err := ValidateScheduleConfig(cfg.Schedule); err != nil {
		return nil, err
	}
	if cfg.Limits == (Limits{}) {
		cfg.Limits = DefaultLimits()
	}
	e := &Engine{
		journal:       cfg.Journal,
		platform:      cfg.Platform,
		lang:          cfg.Lang,
		logger:        cfg.Logger,
		metrics:       newEngineMetrics(cfg.PromRegistry),
		now:           cfg.Now,
		governor:      NewGovernor(cfg.Limits),
		tasks:         make(map[string]*task),
		schedule:      cfg.Schedule,
		retryInterval: cfg.StorageRetryInterval,
	}
	if e.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		e.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if e.lang == nil {
		e.lang = lang.NewStore("", e.logger)
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.retryInterval <= 0 {
		e.retryInterval = DefaultStorageRetryInterval
	}
	return e, nil
}

// Limits returns the governor budgets in use
func (e *Engine) Limits() Limits {
	return e.governor.Limits()
}

// Preflight checks that the bot may post, moderate and mention everyone in
// the channel. A failure is journaled and returned as ErrPreflight.
func (e *Engine) Preflight(ctx context.Context, communityID string, channelRef string, actorID string) error {
	perms, err := e.platform.Permissions(ctx, communityID, channelRef)
	if err != nil {
		return fmt.Errorf("read channel permissions: %w", err)
	}
	missing := perms.Missing()
	if len(missing) == 0 {
		return nil
	}
	if _, err := e.journal.Append(ctx, communityID, actorID, eventlog.PreflightFailed{
		ChannelRef: channelRef,
		Missing:    missing,
	}); err != nil {
		return err
	}
	return fmt.Errorf("%w: missing %s", ErrPreflight, strings.Join(missing, ", "))
}

// Start lays out a new schedule and launches the runner
func (e *Engine) Start(
	ctx context.Context,
	communityID string,
	channelRef string,
	actorID string,
) (*State, error) {
	if e.Active(communityID) {
		return nil, ErrAlreadyActive
	}
	if err := e.Preflight(ctx, communityID, channelRef, actorID); err != nil {
		return nil, err
	}
	rng := newRand()
	beats, err := NewSchedule(e.schedule, rng)
	if err != nil {
		return nil, err
	}
	st := &State{
		CommunityID: communityID,
		RunID:       uuid.NewString(),
		ChannelRef:  channelRef,
		StartedAt:   e.now().UTC().Round(0),
		Beats:       beats,
	}
	t, err := e.reserve(st)
	if err != nil {
		return nil, err
	}
	if _, err := e.journal.Append(ctx, communityID, actorID, eventlog.RitualStart{RitualSnapshot: st.Snapshot()}); err != nil {
		e.release(communityID, t)
		t.cancel()
		close(t.done)
		return nil, err
	}
	// The initial snapshot makes a ritual resumable before its first beat
	if _, err := e.journal.Append(ctx, communityID, "", eventlog.RitualState{RitualSnapshot: st.Snapshot()}); err != nil {
		e.logger.Warn(
			"failed to persist initial ritual state",
			"component", "ritual",
			"community", communityID,
			"error", err,
		)
	}
	e.logger.Info(
		"ritual started",
		"component", "ritual",
		"community", communityID,
		"run_id", st.RunID,
		"beats", len(beats),
	)
	e.launch(t, true)
	return st.Clone(), nil
}

// Resume continues a ritual from a journal snapshot without announcing it
// again. A snapshot with no beats left goes straight to the finale.
func (e *Engine) Resume(st *State) error {
	st = st.Clone()
	st.Aborted = false
	t, err := e.reserve(st)
	if err != nil {
		return err
	}
	e.logger.Info(
		"ritual resumed",
		"component", "ritual",
		"community", st.CommunityID,
		"run_id", st.RunID,
		"next_index", st.NextIndex,
	)
	e.launch(t, false)
	return nil
}

func (e *Engine) reserve(st *State) (*task, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.tasks[st.CommunityID]; ok {
		return nil, ErrAlreadyActive
	}
	ctx, cancel := context.WithCancel(context.Background())
	t := &task{
		ctx:    ctx,
		state:  st,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	e.tasks[st.CommunityID] = t
	return t, nil
}

func (e *Engine) release(communityID string, t *task) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.tasks[communityID] == t {
		delete(e.tasks, communityID)
	}
}

// claim marks a task as closing. Only one of the runner finishing and an
// abort may close a task.
func (e *Engine) claim(t *task) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t.closing {
		return false
	}
	t.closing = true
	return true
}

func (e *Engine) launch(t *task, announce bool) {
	e.metrics.active.Inc()
	go func() {
		defer close(t.done)
		defer e.metrics.active.Dec()
		e.run(t.ctx, t, announce)
	}()
}

func (e *Engine) run(ctx context.Context, t *task, announce bool) {
	rng := newRand()
	communityID := t.state.CommunityID
	if announce {
		e.broadcast(ctx, communityID, gateway.Message{
			CommunityID: communityID,
			ChannelRef:  t.state.ChannelRef,
			Title:       "Summoning",
			Text:        e.lang.Get().Ritual.Start,
		})
	}
	for {
		st := t.snapshot()
		if st.Done() {
			break
		}
		if !e.sleepUntil(ctx, st.NextAt()) {
			return
		}
		e.beat(ctx, t, rng)
		if !e.persistBeat(ctx, t) {
			return
		}
	}
	if ctx.Err() != nil || !e.claim(t) {
		return
	}
	e.finish(context.WithoutCancel(ctx), t)
}

func (e *Engine) sleepUntil(ctx context.Context, target time.Time) bool {
	delay := target.Sub(e.now())
	if delay <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (e *Engine) beat(ctx context.Context, t *task, rng *rand.Rand) {
	st := t.snapshot()
	ctx, span := otel.Tracer("github.com/blinklabs-io/wilhelmina/ritual").Start(ctx, "ritual.beat")
	defer span.End()
	span.SetAttributes(
		attribute.String("community", st.CommunityID),
		attribute.String("run_id", st.RunID),
		attribute.Int("index", st.NextIndex),
	)
	line := e.lang.Get().BeatLine(rng)
	members, err := e.platform.ListMembers(ctx, st.CommunityID)
	if err != nil {
		e.logger.Warn(
			"failed to list members for ritual mentions",
			"component", "ritual",
			"community", st.CommunityID,
			"error", err,
		)
	}
	now := e.now()
	t.mu.Lock()
	decision := e.governor.Decide(t.state, line, members, now, rng)
	t.state.Record(decision, now)
	t.mu.Unlock()
	e.metrics.beats.Inc()
	if decision.Everyone {
		e.metrics.everyoneMentions.Inc()
	}
	e.metrics.memberMentions.Add(float64(len(decision.Mentions)))
	e.broadcast(ctx, st.CommunityID, gateway.Message{
		CommunityID: st.CommunityID,
		ChannelRef:  st.ChannelRef,
		Title:       "Ritual Beat",
		Text:        line,
		Mentions:    decision.Mentions,
		Everyone:    decision.Everyone,
	})
}

// persistBeat journals the state after the current beat and then advances
// NextIndex. A failed write is retried without firing the beat again.
func (e *Engine) persistBeat(ctx context.Context, t *task) bool {
	for {
		t.mu.Lock()
		next := t.state.Clone()
		t.mu.Unlock()
		next.NextIndex++
		_, err := e.journal.Append(ctx, next.CommunityID, "", eventlog.RitualState{RitualSnapshot: next.Snapshot()})
		if err == nil {
			t.mu.Lock()
			t.state.NextIndex = next.NextIndex
			t.mu.Unlock()
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		e.metrics.snapshotRetries.Inc()
		e.logger.Error(
			"failed to persist ritual state, retrying",
			"component", "ritual",
			"community", next.CommunityID,
			"next_index", next.NextIndex,
			"error", err,
		)
		if !e.sleepUntil(ctx, e.now().Add(e.retryInterval)) {
			return false
		}
	}
}

func (e *Engine) finish(ctx context.Context, t *task) {
	st := t.snapshot()
	defer e.release(st.CommunityID, t)
	e.broadcast(ctx, st.CommunityID, gateway.Message{
		CommunityID: st.CommunityID,
		ChannelRef:  st.ChannelRef,
		Title:       "Finale",
		Text:        e.lang.Get().Ritual.Finale,
	})
	end := eventlog.RitualEnd{
		RunID:              st.RunID,
		Beats:              len(st.Beats),
		EveryoneCount:      st.EveryoneCount,
		MemberMentionsDone: st.MemberMentionsDone,
	}
	// Stop interrupts the retries and leaves the ritual resumable
	if err := e.appendRetrying(ctx, t.ctx, st.CommunityID, "", end); err != nil {
		e.logger.Warn(
			"ritual end not recorded before stop",
			"component", "ritual",
			"community", st.CommunityID,
			"run_id", st.RunID,
			"error", err,
		)
		return
	}
	e.prune(ctx, st.CommunityID)
	e.logger.Info(
		"ritual complete",
		"component", "ritual",
		"community", st.CommunityID,
		"run_id", st.RunID,
	)
}

// appendRetrying journals a terminal entry, retrying a failed write every
// retry interval until it lands or stop is done
func (e *Engine) appendRetrying(
	ctx context.Context,
	stop context.Context,
	communityID string,
	actorID string,
	detail eventlog.Detail,
) error {
	for {
		_, err := e.journal.Append(ctx, communityID, actorID, detail)
		if err == nil {
			return nil
		}
		e.metrics.terminalRetries.Inc()
		e.logger.Error(
			"failed to record ritual "+string(detail.Kind())+", retrying",
			"component", "ritual",
			"community", communityID,
			"error", err,
		)
		if !e.sleepUntil(stop, e.now().Add(e.retryInterval)) {
			return err
		}
	}
}

func (e *Engine) prune(ctx context.Context, communityID string) {
	n, err := e.journal.Prune(ctx, communityID, eventlog.KindRitualState)
	if err != nil {
		e.logger.Error(
			"failed to prune ritual snapshots",
			"component", "ritual",
			"community", communityID,
			"error", err,
		)
		return
	}
	e.logger.Debug(
		"pruned ritual snapshots",
		"component", "ritual",
		"community", communityID,
		"count", n,
	)
}

func (e *Engine) broadcast(ctx context.Context, communityID string, msg gateway.Message) {
	if err := e.platform.Send(ctx, msg); err != nil {
		e.metrics.deliveryFailures.Inc()
		e.logger.Warn(
			"ritual message not delivered",
			"component", "ritual",
			"community", communityID,
			"title", msg.Title,
			"error", err,
		)
	}
}

// Abort cancels the runner, waits for it to exit, journals the final state
// and purges the snapshots. Until the abort is journaled the ritual stays
// registered, so a failed abort can be retried.
func (e *Engine) Abort(ctx context.Context, communityID string, actorID string) (*State, error) {
	e.mu.Lock()
	t, ok := e.tasks[communityID]
	if !ok || t.closing {
		e.mu.Unlock()
		return nil, ErrNotActive
	}
	t.closing = true
	e.mu.Unlock()
	t.cancel()
	select {
	case <-t.done:
	case <-ctx.Done():
		e.reopen(t)
		return nil, ctx.Err()
	}
	st := t.snapshot()
	st.Aborted = true
	if _, err := e.journal.Append(ctx, communityID, actorID, eventlog.RitualAbort{RitualSnapshot: st.Snapshot()}); err != nil {
		e.reopen(t)
		e.logger.Error(
			"failed to record ritual abort",
			"component", "ritual",
			"community", communityID,
			"run_id", st.RunID,
			"error", err,
		)
		return nil, err
	}
	e.release(communityID, t)
	e.prune(ctx, communityID)
	e.broadcast(ctx, communityID, gateway.Message{
		CommunityID: communityID,
		ChannelRef:  st.ChannelRef,
		Title:       "Ritual Severed",
		Text:        e.lang.Get().Admin.Abort,
	})
	e.logger.Info(
		"ritual aborted",
		"component", "ritual",
		"community", communityID,
		"run_id", st.RunID,
		"next_index", st.NextIndex,
	)
	return st, nil
}

// reopen lets a stopped runner whose abort was not journaled be aborted
// again. The runner is never restarted.
func (e *Engine) reopen(t *task) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t.closing = false
}

// Status returns a copy of the running ritual's state
func (e *Engine) Status(communityID string) (*State, bool) {
	e.mu.Lock()
	t, ok := e.tasks[communityID]
	e.mu.Unlock()
	if !ok {
		return nil, false
	}
	return t.snapshot(), true
}

// Active reports whether a ritual is running for the community
func (e *Engine) Active(communityID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.tasks[communityID]
	return ok && !t.closing
}

// HandleCircleMessage removes a non-bot message posted to the channel of an
// active ritual. It reports whether the message was removed.
func (e *Engine) HandleCircleMessage(
	ctx context.Context,
	communityID string,
	channelRef string,
	messageRef string,
	authorID string,
	authorIsBot bool,
) (bool, error) {
	if authorIsBot || !e.Active(communityID) {
		return false, nil
	}
	st, ok := e.Status(communityID)
	if !ok || st.ChannelRef != channelRef {
		return false, nil
	}
	if err := e.platform.DeleteMessage(ctx, communityID, channelRef, messageRef); err != nil {
		e.logger.Warn(
			"failed to remove circle interruption",
			"component", "ritual",
			"community", communityID,
			"message", messageRef,
			"error", err,
		)
		return false, nil
	}
	e.metrics.interruptions.Inc()
	if _, err := e.journal.Append(ctx, communityID, "", eventlog.CircleInterruptionDeleted{
		ChannelRef: channelRef,
		MessageRef: messageRef,
		AuthorID:   authorID,
	}); err != nil {
		return true, err
	}
	return true, nil
}

// Stop cancels every runner without journaling an abort, leaving the
// rituals resumable
func (e *Engine) Stop() {
	e.mu.Lock()
	tasks := make([]*task, 0, len(e.tasks))
	for _, t := range e.tasks {
		tasks = append(tasks, t)
	}
	e.mu.Unlock()
	for _, t := range tasks {
		t.cancel()
	}
	for _, t := range tasks {
		<-t.done
		e.release(t.state.CommunityID, t)
	}
}

func newRand() *rand.Rand {
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) //nolint:gosec
}
