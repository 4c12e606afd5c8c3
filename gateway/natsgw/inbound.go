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

package natsgw

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
)

// InboundHandler receives platform signals published by the bridge
type InboundHandler interface {
	MemberJoined(ctx context.Context, communityID string, memberID string, isAdmin bool) error
	CircleMessage(ctx context.Context, msg InboundMessage) error
}

// MemberJoinedEvent is the payload of <prefix>.events.member_joined
type MemberJoinedEvent struct {
	CommunityID string `json:"community_id"`
	MemberID    string `json:"member_id"`
	IsAdmin     bool   `json:"is_admin"`
}

// InboundMessage is the payload of <prefix>.events.message
type InboundMessage struct {
	CommunityID string `json:"community_id"`
	ChannelRef  string `json:"channel_ref"`
	MessageRef  string `json:"message_ref"`
	AuthorID    string `json:"author_id"`
	AuthorIsBot bool   `json:"author_is_bot"`
}

// Listen subscribes to the bridge's event subjects and feeds handler until
// ctx is done or Close is called
func (g *Gateway) Listen(ctx context.Context, handler InboundHandler) error {
	if g.nc == nil {
		return errors.New("natsgw: listening requires a NATS connection")
	}
	for _, evt := range []string{eventMemberJoined, eventMessage} {
		subject := g.subject(evt)
		sub, err := g.nc.Subscribe(subject, func(msg *nats.Msg) {
			if err := g.dispatch(ctx, handler, msg.Subject, msg.Data); err != nil {
				g.logger.Warn(
					"failed to handle inbound event",
					"component", "gateway",
					"subject", msg.Subject,
					"error", err,
				)
			}
		})
		if err != nil {
			return fmt.Errorf("subscribe to %s: %w", subject, err)
		}
		g.subsMu.Lock()
		g.subs = append(g.subs, sub)
		g.subsMu.Unlock()
	}
	return nil
}

func (g *Gateway) dispatch(
	ctx context.Context,
	handler InboundHandler,
	subject string,
	data []byte,
) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	switch {
	case strings.HasSuffix(subject, "."+eventMemberJoined):
		var evt MemberJoinedEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			return fmt.Errorf("decode member joined: %w", err)
		}
		if evt.CommunityID == "" || evt.MemberID == "" {
			return errors.New("member joined event missing ids")
		}
		return handler.MemberJoined(ctx, evt.CommunityID, evt.MemberID, evt.IsAdmin)
	case strings.HasSuffix(subject, "."+eventMessage):
		var msg InboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return fmt.Errorf("decode message: %w", err)
		}
		return handler.CircleMessage(ctx, msg)
	default:
		return fmt.Errorf("unexpected subject %s", subject)
	}
}
