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

package audit

import (
	"context"
	"errors"

	"github.com/blinklabs-io/wilhelmina/database"
	"github.com/blinklabs-io/wilhelmina/eventlog"
	"github.com/blinklabs-io/wilhelmina/gateway"
)

// AdminLogSink posts each entry to the community's admin log channel.
// Communities without one are skipped.
type AdminLogSink struct {
	db       *database.Database
	notifier gateway.Notifier
	exclude  map[eventlog.Kind]struct{}
}

// NewAdminLogSink creates the admin channel sink. Entries of the excluded
// kinds are not posted; with no kinds given, ritual snapshots are excluded.
func NewAdminLogSink(db *database.Database, notifier gateway.Notifier, exclude ...eventlog.Kind) *AdminLogSink {
	if len(exclude) == 0 {
		exclude = []eventlog.Kind{eventlog.KindRitualState}
	}
	s := &AdminLogSink{
		db:       db,
		notifier: notifier,
		exclude:  make(map[eventlog.Kind]struct{}, len(exclude)),
	}
	for _, k := range exclude {
		s.exclude[k] = struct{}{}
	}
	return s
}

func (s *AdminLogSink) Name() string {
	return "admin_log"
}

func (s *AdminLogSink) Forward(ctx context.Context, entry eventlog.Entry) error {
	if _, ok := s.exclude[entry.Kind]; ok {
		return nil
	}
	cfg, err := s.db.GetCommunityConfig(ctx, entry.CommunityID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil
		}
		return err
	}
	if cfg.AdminLogChannelRef == "" {
		return nil
	}
	return s.notifier.Notify(ctx, gateway.Notice{
		CommunityID: entry.CommunityID,
		ChannelRef:  cfg.AdminLogChannelRef,
		Kind:        string(entry.Kind),
		Text:        eventlog.Render(entry),
	})
}

func (s *AdminLogSink) Close() error {
	return nil
}
