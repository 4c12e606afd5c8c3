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

// Package fakegw provides a recording gateway for tests
package fakegw

import (
	"context"
	"sync"

	"github.com/blinklabs-io/wilhelmina/gateway"
)

type RoleCall struct {
	CommunityID string
	MemberID    string
	RoleRef     string
}

type DeleteCall struct {
	CommunityID string
	ChannelRef  string
	MessageRef  string
}

// Gateway records every call. Error fields, when set, are returned wrapped
// in a DeliveryError.
type Gateway struct {
	SendErr    error
	GrantErr   error
	RevokeErr  error
	NotifyErr  error
	DeliverErr error
	DeleteErr  error
	PermsErr   error
	OnSend     func(gateway.Message)
	members    map[string][]gateway.Member
	sent       []gateway.Message
	notices    []gateway.Notice
	grants     []RoleCall
	revokes    []RoleCall
	prompts    []gateway.Prompt
	deletes    []DeleteCall
	Via        string
	Perms      gateway.Permissions
	mu         sync.Mutex
}

// New returns a gateway with full permissions that delivers contracts by dm
func New() *Gateway {
	return &Gateway{
		Via: "dm",
		Perms: gateway.Permissions{
			SendMessages:    true,
			ManageMessages:  true,
			MentionEveryone: true,
		},
		members: make(map[string][]gateway.Member),
	}
}

func fail(op string, target string, err error) error {
	return &gateway.DeliveryError{Op: op, Target: target, Err: err}
}

// SetMembers sets the directory listing for a community
func (g *Gateway) SetMembers(communityID string, members []gateway.Member) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.members[communityID] = members
}

func (g *Gateway) Send(_ context.Context, msg gateway.Message) error {
	g.mu.Lock()
	g.sent = append(g.sent, msg)
	err := g.SendErr
	hook := g.OnSend
	g.mu.Unlock()
	if hook != nil {
		hook(msg)
	}
	if err != nil {
		return fail("send", msg.ChannelRef, err)
	}
	return nil
}

func (g *Gateway) ListMembers(_ context.Context, communityID string) ([]gateway.Member, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]gateway.Member(nil), g.members[communityID]...), nil
}

func (g *Gateway) Permissions(_ context.Context, _ string, channelRef string) (gateway.Permissions, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.PermsErr != nil {
		return gateway.Permissions{}, fail("permissions", channelRef, g.PermsErr)
	}
	return g.Perms, nil
}

func (g *Gateway) Grant(_ context.Context, communityID string, memberID string, roleRef string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.grants = append(g.grants, RoleCall{CommunityID: communityID, MemberID: memberID, RoleRef: roleRef})
	if g.GrantErr != nil {
		return fail("grant", memberID, g.GrantErr)
	}
	return nil
}

func (g *Gateway) Revoke(_ context.Context, communityID string, memberID string, roleRef string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.revokes = append(g.revokes, RoleCall{CommunityID: communityID, MemberID: memberID, RoleRef: roleRef})
	if g.RevokeErr != nil {
		return fail("revoke", memberID, g.RevokeErr)
	}
	return nil
}

func (g *Gateway) Notify(_ context.Context, notice gateway.Notice) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.notices = append(g.notices, notice)
	if g.NotifyErr != nil {
		return fail("notify", notice.ChannelRef, g.NotifyErr)
	}
	return nil
}

func (g *Gateway) DeliverContract(_ context.Context, prompt gateway.Prompt) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	if g.DeliverErr != nil {
		return "", fail("contract", prompt.MemberID, g.DeliverErr)
	}
	return g.Via, nil
}

func (g *Gateway) DeleteMessage(_ context.Context, communityID string, channelRef string, messageRef string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deletes = append(g.deletes, DeleteCall{CommunityID: communityID, ChannelRef: channelRef, MessageRef: messageRef})
	if g.DeleteErr != nil {
		return fail("delete", messageRef, g.DeleteErr)
	}
	return nil
}

// Sent returns a copy of every message passed to Send
func (g *Gateway) Sent() []gateway.Message {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]gateway.Message(nil), g.sent...)
}

func (g *Gateway) Notices() []gateway.Notice {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]gateway.Notice(nil), g.notices...)
}

func (g *Gateway) Grants() []RoleCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]RoleCall(nil), g.grants...)
}

func (g *Gateway) Revokes() []RoleCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]RoleCall(nil), g.revokes...)
}

func (g *Gateway) Prompts() []gateway.Prompt {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]gateway.Prompt(nil), g.prompts...)
}

func (g *Gateway) Deletes() []DeleteCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]DeleteCall(nil), g.deletes...)
}

// SetSendErr changes the Send failure while runners may be sending
func (g *Gateway) SetSendErr(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.SendErr = err
}
