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

// Package gateway defines the narrow interfaces through which the
// scheduling engine and the contract flow reach the chat platform.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Message is one post to a channel
type Message struct {
	CommunityID string   `json:"community_id"`
	ChannelRef  string   `json:"channel_ref"`
	Title       string   `json:"title"`
	Text        string   `json:"text"`
	Mentions    []string `json:"mentions,omitempty"`
	// Everyone asks the platform to notify every member
	Everyone bool `json:"everyone"`
}

// Member is a community member as seen by the directory
type Member struct {
	ID      string `json:"id"`
	IsBot   bool   `json:"is_bot"`
	IsAdmin bool   `json:"is_admin"`
}

// Permissions are the bot's rights in one channel
type Permissions struct {
	SendMessages    bool `json:"send_messages"`
	ManageMessages  bool `json:"manage_messages"`
	MentionEveryone bool `json:"mention_everyone"`
}

// Missing lists the rights a ritual needs that are not granted
func (p Permissions) Missing() []string {
	var ret []string
	if !p.ManageMessages {
		ret = append(ret, "manage_messages")
	}
	if !p.SendMessages {
		ret = append(ret, "send_messages")
	}
	if !p.MentionEveryone {
		ret = append(ret, "mention_everyone")
	}
	return ret
}

// Notice is an admin audit line
type Notice struct {
	CommunityID string `json:"community_id"`
	ChannelRef  string `json:"channel_ref"`
	Kind        string `json:"kind"`
	Text        string `json:"text"`
}

// Prompt is the contract offer delivered to one member
type Prompt struct {
	CommunityID      string        `json:"community_id"`
	MemberID         string        `json:"member_id"`
	CircleChannelRef string        `json:"circle_channel_ref"`
	Title            string        `json:"title"`
	Text             string        `json:"text"`
	Timeout          time.Duration `json:"timeout_ns"`
}

type Broadcaster interface {
	Send(ctx context.Context, msg Message) error
}

type Directory interface {
	ListMembers(ctx context.Context, communityID string) ([]Member, error)
	Permissions(ctx context.Context, communityID string, channelRef string) (Permissions, error)
}

type Roles interface {
	Grant(ctx context.Context, communityID string, memberID string, roleRef string) error
	Revoke(ctx context.Context, communityID string, memberID string, roleRef string) error
}

type Notifier interface {
	Notify(ctx context.Context, notice Notice) error
}

// ContractCourier delivers a contract prompt and reports the route used
type ContractCourier interface {
	DeliverContract(ctx context.Context, prompt Prompt) (string, error)
}

type Moderator interface {
	DeleteMessage(ctx context.Context, communityID string, channelRef string, messageRef string) error
}

// Gateway is the full platform surface
type Gateway interface {
	Broadcaster
	Directory
	Roles
	Notifier
	ContractCourier
	Moderator
}

// ErrUndeliverable is returned by couriers when no route reached the member
var ErrUndeliverable = errors.New("no delivery route reached the member")

// DeliveryError is a failed send, grant or delete on the platform. Callers
// log it and carry on.
type DeliveryError struct {
	Err    error
	Op     string
	Target string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery %s to %s: %v", e.Op, e.Target, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// IsDeliveryError reports whether err is or wraps a DeliveryError
func IsDeliveryError(err error) bool {
	var de *DeliveryError
	return errors.As(err, &de)
}
