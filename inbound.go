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

package wilhelmina

import (
	"context"
	"log/slog"

	"github.com/blinklabs-io/wilhelmina/contract"
	"github.com/blinklabs-io/wilhelmina/gateway/natsgw"
	"github.com/blinklabs-io/wilhelmina/ritual"
)

// inboundHandler routes platform signals from the NATS bridge to the
// contract flow and circle moderation
type inboundHandler struct {
	machine *contract.Machine
	engine  *ritual.Engine
	logger  *slog.Logger
}

func (h *inboundHandler) MemberJoined(
	ctx context.Context,
	communityID string,
	memberID string,
	isAdmin bool,
) error {
	res, err := h.machine.MemberJoined(ctx, communityID, memberID, isAdmin)
	if err != nil {
		return err
	}
	h.logger.Debug(
		"member join handled",
		"component", "node",
		"community", communityID,
		"member", memberID,
		"delivered", res.Delivered,
		"via", res.Via,
	)
	return nil
}

func (h *inboundHandler) CircleMessage(ctx context.Context, msg natsgw.InboundMessage) error {
	_, err := h.engine.HandleCircleMessage(
		ctx,
		msg.CommunityID,
		msg.ChannelRef,
		msg.MessageRef,
		msg.AuthorID,
		msg.AuthorIsBot,
	)
	return err
}
