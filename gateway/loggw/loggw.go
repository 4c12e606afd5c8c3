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

// Package loggw is a dry-run gateway that logs every call and reports
// success
package loggw

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/blinklabs-io/wilhelmina/gateway"
)

// Gateway implements gateway.Gateway by logging
type Gateway struct {
	logger  *slog.Logger
	members map[string][]gateway.Member
	mu      sync.RWMutex
}

// New creates a logging gateway
func New(logger *slog.Logger) *Gateway {
	if logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Gateway{
		logger:  logger,
		members: make(map[string][]gateway.Member),
	}
}

// SetMembers sets the directory listing returned for a community
func (g *Gateway) SetMembers(communityID string, members []gateway.Member) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.members[communityID] = append([]gateway.Member(nil), members...)
}

func (g *Gateway) Send(_ context.Context, msg gateway.Message) error {
	g.logger.Info(
		"send",
		"component", "gateway",
		"community", msg.CommunityID,
		"channel", msg.ChannelRef,
		"title", msg.Title,
		"text", msg.Text,
		"everyone", msg.Everyone,
		"mentions", len(msg.Mentions),
	)
	return nil
}

func (g *Gateway) ListMembers(_ context.Context, communityID string) ([]gateway.Member, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]gateway.Member(nil), g.members[communityID]...), nil
}

func (g *Gateway) Permissions(_ context.Context, communityID string, channelRef string) (gateway.Permissions, error) {
	g.logger.Info(
		"permissions",
		"component", "gateway",
		"community", communityID,
		"channel", channelRef,
	)
	return gateway.Permissions{
		SendMessages:    true,
		ManageMessages:  true,
		MentionEveryone: true,
	}, nil
}

func (g *Gateway) Grant(_ context.Context, communityID string, memberID string, roleRef string) error {
	g.logger.Info(
		"grant role",
		"component", "gateway",
		"community", communityID,
		"member", memberID,
		"role", roleRef,
	)
	return nil
}

func (g *Gateway) Revoke(_ context.Context, communityID string, memberID string, roleRef string) error {
	g.logger.Info(
		"revoke role",
		"component", "gateway",
		"community", communityID,
		"member", memberID,
		"role", roleRef,
	)
	return nil
}

func (g *Gateway) Notify(_ context.Context, notice gateway.Notice) error {
	g.logger.Info(
		"notify",
		"component", "gateway",
		"community", notice.CommunityID,
		"channel", notice.ChannelRef,
		"kind", notice.Kind,
		"text", notice.Text,
	)
	return nil
}

func (g *Gateway) DeliverContract(_ context.Context, prompt gateway.Prompt) (string, error) {
	g.logger.Info(
		"deliver contract",
		"component", "gateway",
		"community", prompt.CommunityID,
		"member", prompt.MemberID,
	)
	return "dm", nil
}

func (g *Gateway) DeleteMessage(_ context.Context, communityID string, channelRef string, messageRef string) error {
	g.logger.Info(
		"delete message",
		"component", "gateway",
		"community", communityID,
		"channel", channelRef,
		"message", messageRef,
	)
	return nil
}
