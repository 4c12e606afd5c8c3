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
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/wilhelmina/gateway"
)

type request struct {
	subject string
	data    []byte
}

type fakeRequester struct {
	replies  map[string]string
	err      error
	requests []request
	mu       sync.Mutex
}

func (f *fakeRequester) RequestWithContext(
	ctx context.Context,
	subj string,
	data []byte,
) (*nats.Msg, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, request{subject: subj, data: data})
	if f.err != nil {
		return nil, f.err
	}
	if _, ok := ctx.Deadline(); !ok {
		return nil, errors.New("request without deadline")
	}
	body, ok := f.replies[subj]
	if !ok {
		body = `{"ok":true}`
	}
	return &nats.Msg{Subject: subj, Data: []byte(body)}, nil
}

func TestSendUsesPrefixedSubject(t *testing.T) {
	f := &fakeRequester{}
	g := New(f, WithPrefix("test.gw"), WithRequestTimeout(time.Second))
	err := g.Send(context.Background(), gateway.Message{
		CommunityID: "c1",
		ChannelRef:  "circle",
		Text:        "hello",
		Everyone:    true,
	})
	require.NoError(t, err)
	require.Len(t, f.requests, 1)
	assert.Equal(t, "test.gw.broadcast.send", f.requests[0].subject)
	var msg gateway.Message
	require.NoError(t, json.Unmarshal(f.requests[0].data, &msg))
	assert.True(t, msg.Everyone)
	assert.Equal(t, "hello", msg.Text)
}

func TestRejectedReplyIsDeliveryError(t *testing.T) {
	f := &fakeRequester{
		replies: map[string]string{
			DefaultPrefix + ".roles.grant": `{"ok":false,"error":"missing access"}`,
		},
	}
	g := New(f)
	err := g.Grant(context.Background(), "c1", "m1", "role")
	require.Error(t, err)
	var de *gateway.DeliveryError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "roles.grant", de.Op)
	assert.Equal(t, "m1", de.Target)
	assert.ErrorContains(t, err, "missing access")
}

func TestTransportErrorIsDeliveryError(t *testing.T) {
	f := &fakeRequester{err: nats.ErrNoResponders}
	g := New(f)
	err := g.Notify(context.Background(), gateway.Notice{ChannelRef: "log"})
	assert.True(t, gateway.IsDeliveryError(err))
	assert.ErrorIs(t, err, nats.ErrNoResponders)
}

func TestDirectoryDecodesData(t *testing.T) {
	f := &fakeRequester{
		replies: map[string]string{
			DefaultPrefix + ".directory.members":     `{"ok":true,"data":[{"id":"a","is_bot":true},{"id":"b","is_admin":true},{"id":"c"}]}`,
			DefaultPrefix + ".directory.permissions": `{"ok":true,"data":{"send_messages":true,"manage_messages":false,"mention_everyone":true}}`,
		},
	}
	g := New(f)
	members, err := g.ListMembers(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, members, 3)
	assert.True(t, members[0].IsBot)
	assert.True(t, members[1].IsAdmin)
	perms, err := g.Permissions(context.Background(), "c1", "circle")
	require.NoError(t, err)
	assert.Equal(t, []string{"manage_messages"}, perms.Missing())
}

func TestDeliverContractVia(t *testing.T) {
	f := &fakeRequester{
		replies: map[string]string{
			DefaultPrefix + ".contract.deliver": `{"ok":true,"data":{"via":"private_thread"}}`,
		},
	}
	g := New(f)
	via, err := g.DeliverContract(context.Background(), gateway.Prompt{MemberID: "m1"})
	require.NoError(t, err)
	assert.Equal(t, "private_thread", via)

	f.replies[DefaultPrefix+".contract.deliver"] = `{"ok":true,"data":{}}`
	_, err = g.DeliverContract(context.Background(), gateway.Prompt{MemberID: "m1"})
	assert.ErrorIs(t, err, gateway.ErrUndeliverable)
}

type recordingHandler struct {
	joined   []MemberJoinedEvent
	messages []InboundMessage
}

func (h *recordingHandler) MemberJoined(_ context.Context, communityID string, memberID string, isAdmin bool) error {
	h.joined = append(h.joined, MemberJoinedEvent{CommunityID: communityID, MemberID: memberID, IsAdmin: isAdmin})
	return nil
}

func (h *recordingHandler) CircleMessage(_ context.Context, msg InboundMessage) error {
	h.messages = append(h.messages, msg)
	return nil
}

func TestDispatchInbound(t *testing.T) {
	g := New(&fakeRequester{})
	h := &recordingHandler{}
	ctx := context.Background()
	require.NoError(t, g.dispatch(
		ctx,
		h,
		DefaultPrefix+".events.member_joined",
		[]byte(`{"community_id":"c1","member_id":"m1","is_admin":true}`),
	))
	require.NoError(t, g.dispatch(
		ctx,
		h,
		DefaultPrefix+".events.message",
		[]byte(`{"community_id":"c1","channel_ref":"circle","message_ref":"x","author_id":"m2"}`),
	))
	require.Len(t, h.joined, 1)
	assert.True(t, h.joined[0].IsAdmin)
	require.Len(t, h.messages, 1)
	assert.Equal(t, "x", h.messages[0].MessageRef)

	assert.Error(t, g.dispatch(ctx, h, DefaultPrefix+".events.member_joined", []byte(`{}`)))
	assert.Error(t, g.dispatch(ctx, h, DefaultPrefix+".events.other", []byte(`{}`)))
	assert.Error(t, g.Listen(ctx, h))
}
