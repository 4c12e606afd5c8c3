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
	"slices"
	"time"

	"github.com/blinklabs-io/wilhelmina/eventlog"
)

// State is the pacing state of one ritual. NextIndex only grows and Beats
// never changes after the ritual starts.
type State struct {
	StartedAt          time.Time
	LastEveryoneAt     *time.Time
	CommunityID        string
	RunID              string
	ChannelRef         string
	Beats              []time.Duration
	NextIndex          int
	EveryoneCount      int
	MemberMentionsDone int
	Aborted            bool
}

// BeatETA is one upcoming beat
type BeatETA struct {
	At    time.Time
	Index int
	In    time.Duration
}

// Done reports whether every beat has fired
func (s *State) Done() bool {
	return s.NextIndex >= len(s.Beats)
}

// Remaining returns the number of beats not yet fired
func (s *State) Remaining() int {
	return max(0, len(s.Beats)-s.NextIndex)
}

// NextAt returns the target time of the next beat
func (s *State) NextAt() time.Time {
	if s.Done() {
		return time.Time{}
	}
	return s.StartedAt.Add(s.Beats[s.NextIndex])
}

// Upcoming lists up to n pending beats with their distance from now.
// Overdue beats report zero.
func (s *State) Upcoming(now time.Time, n int) []BeatETA {
	var ret []BeatETA
	for i := s.NextIndex; i < len(s.Beats) && len(ret) < n; i++ {
		at := s.StartedAt.Add(s.Beats[i])
		ret = append(ret, BeatETA{
			Index: i,
			At:    at,
			In:    max(0, at.Sub(now)),
		})
	}
	return ret
}

// Record applies a governor decision made at now
func (s *State) Record(d Decision, now time.Time) {
	if d.Everyone {
		s.EveryoneCount++
		t := now.UTC().Round(0)
		s.LastEveryoneAt = &t
	}
	s.MemberMentionsDone += len(d.Mentions)
}

// Clone returns a deep copy
func (s *State) Clone() *State {
	ret := *s
	ret.Beats = slices.Clone(s.Beats)
	if s.LastEveryoneAt != nil {
		t := *s.LastEveryoneAt
		ret.LastEveryoneAt = &t
	}
	return &ret
}

// Snapshot encodes the state for the journal
func (s *State) Snapshot() eventlog.RitualSnapshot {
	snap := eventlog.RitualSnapshot{
		StartedAt:          s.StartedAt.UTC().Round(0),
		CommunityID:        s.CommunityID,
		RunID:              s.RunID,
		ChannelRef:         s.ChannelRef,
		BeatsNs:            make([]int64, len(s.Beats)),
		NextIndex:          s.NextIndex,
		EveryoneCount:      s.EveryoneCount,
		MemberMentionsDone: s.MemberMentionsDone,
		Aborted:            s.Aborted,
	}
	for i, b := range s.Beats {
		snap.BeatsNs[i] = int64(b)
	}
	if s.LastEveryoneAt != nil {
		t := s.LastEveryoneAt.UTC().Round(0)
		snap.LastEveryoneAt = &t
	}
	return snap
}

// StateFromSnapshot decodes a journal snapshot
func StateFromSnapshot(snap eventlog.RitualSnapshot) *State {
	s := &State{
		StartedAt:          snap.StartedAt.UTC(),
		CommunityID:        snap.CommunityID,
		RunID:              snap.RunID,
		ChannelRef:         snap.ChannelRef,
		Beats:              make([]time.Duration, len(snap.BeatsNs)),
		NextIndex:          snap.NextIndex,
		EveryoneCount:      snap.EveryoneCount,
		MemberMentionsDone: snap.MemberMentionsDone,
		Aborted:            snap.Aborted,
	}
	for i, b := range snap.BeatsNs {
		s.Beats[i] = time.Duration(b)
	}
	if snap.LastEveryoneAt != nil {
		t := snap.LastEveryoneAt.UTC()
		s.LastEveryoneAt = &t
	}
	return s
}
