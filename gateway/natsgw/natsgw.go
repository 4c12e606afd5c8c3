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

// Package natsgw reaches the chat platform over NATS request/reply. Each
// operation is a JSON request on <prefix>.<op>; the platform bridge answers
// with {"ok":bool,"error":string,"data":...}.
package natsgw

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/blinklabs-io/wilhelmina/gateway"
	"github.com/nats-io/nats.go"
)

const (
	DefaultPrefix         = "wilhelmina.gateway"
	DefaultRequestTimeout = 10 * time.Second

	opSend        = "broadcast.send"
	opMembers     = "directory.members"
	opPermissions = "directory.permissions"
	opGrant       = "roles.grant"
	opRevoke      = "roles.revoke"
	opNotify      = "audit.notify"
	opContract    = "contract.deliver"
	opDelete      = "moderation.delete"

	eventMemberJoined = "events.member_joined"
	eventMessage      = "events.message"
)

// Requester is the part of *nats.Conn used for outbound calls
type Requester interface {
	RequestWithContext(ctx context.Context, subj string, data []byte) (*nats.Msg, error)
}

// Config holds the connection settings
type Config struct {
	URL             string
	Prefix          string
	CredentialsFile string
	RequestTimeout  time.Duration
}

// Gateway implements gateway.Gateway over NATS
type Gateway struct {
	conn    Requester
	nc      *nats.Conn
	logger  *slog.Logger
	prefix  string
	subs    []*nats.Subscription
	timeout time.Duration
	subsMu  sync.Mutex
}

type GatewayOptionFunc func(*Gateway)

// WithLogger specifies the logger object to use for logging messages
func WithLogger(logger *slog.Logger) GatewayOptionFunc {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// WithPrefix sets the subject prefix
func WithPrefix(prefix string) GatewayOptionFunc {
	return func(g *Gateway) {
		g.prefix = prefix
	}
}

// WithRequestTimeout bounds every request
func WithRequestTimeout(timeout time.Duration) GatewayOptionFunc {
	return func(g *Gateway) {
		g.timeout = timeout
	}
}

// New creates a gateway on top of an existing requester
func New(conn Requester, opts ...GatewayOptionFunc) *Gateway {
	g := &Gateway{
		conn:    conn,
		prefix:  DefaultPrefix,
		timeout: DefaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		g.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if g.prefix == "" {
		g.prefix = DefaultPrefix
	}
	if g.timeout <= 0 {
		g.timeout = DefaultRequestTimeout
	}
	if nc, ok := conn.(*nats.Conn); ok {
		g.nc = nc
	}
	return g
}

// Connect dials NATS and returns a gateway that owns the connection
func Connect(cfg Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}
	natsOpts := []nats.Option{
		nats.Name("wilhelmina"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn(
					"disconnected from nats",
					"component", "gateway",
					"error", err,
				)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info(
				"reconnected to nats",
				"component", "gateway",
				"url", nc.ConnectedUrl(),
			)
		}),
	}
	if cfg.CredentialsFile != "" {
		natsOpts = append(natsOpts, nats.UserCredentials(cfg.CredentialsFile))
	}
	nc, err := nats.Connect(url, natsOpts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	logger.Info(
		"connected to nats",
		"component", "gateway",
		"url", nc.ConnectedUrl(),
	)
	return New(
		nc,
		WithLogger(logger),
		WithPrefix(cfg.Prefix),
		WithRequestTimeout(cfg.RequestTimeout),
	), nil
}

// Close drops subscriptions and drains an owned connection
func (g *Gateway) Close() error {
	g.subsMu.Lock()
	subs := g.subs
	g.subs = nil
	g.subsMu.Unlock()
	var err error
	for _, sub := range subs {
		err = errors.Join(err, sub.Unsubscribe())
	}
	if g.nc != nil && !g.nc.IsClosed() {
		err = errors.Join(err, g.nc.Drain())
	}
	return err
}

func (g *Gateway) subject(op string) string {
	return g.prefix + "." + op
}

type reply struct {
	Error string          `json:"error"`
	Data  json.RawMessage `json:"data"`
	OK    bool            `json:"ok"`
}

// call sends one request. Every failure is reported as a DeliveryError.
func (g *Gateway) call(
	ctx context.Context,
	op string,
	target string,
	req any,
	resp any,
) error {
	fail := func(err error) error {
		return &gateway.DeliveryError{Op: op, Target: target, Err: err}
	}
	data, err := json.Marshal(req)
	if err != nil {
		return fail(err)
	}
	reqCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	msg, err := g.conn.RequestWithContext(reqCtx, g.subject(op), data)
	if err != nil {
		return fail(err)
	}
	var r reply
	if err := json.Unmarshal(msg.Data, &r); err != nil {
		return fail(fmt.Errorf("decode reply: %w", err))
	}
	if !r.OK {
		if r.Error == "" {
			r.Error = "request rejected"
		}
		return fail(errors.New(r.Error))
	}
	if resp != nil && len(r.Data) > 0 {
		if err := json.Unmarshal(r.Data, resp); err != nil {
			return fail(fmt.Errorf("decode reply data: %w", err))
		}
	}
	return nil
}

type memberRequest struct {
	CommunityID string `json:"community_id"`
	MemberID    string `json:"member_id,omitempty"`
	ChannelRef  string `json:"channel_ref,omitempty"`
	RoleRef     string `json:"role_ref,omitempty"`
	MessageRef  string `json:"message_ref,omitempty"`
}

func (g *Gateway) Send(ctx context.Context, msg gateway.Message) error {
	return g.call(ctx, opSend, msg.ChannelRef, msg, nil)
}

func (g *Gateway) ListMembers(ctx context.Context, communityID string) ([]gateway.Member, error) {
	var ret []gateway.Member
	err := g.call(
		ctx,
		opMembers,
		communityID,
		memberRequest{CommunityID: communityID},
		&ret,
	)
	if err != nil {
		return nil, err
	}
	return ret, nil
}

func (g *Gateway) Permissions(
	ctx context.Context,
	communityID string,
	channelRef string,
) (gateway.Permissions, error) {
	var ret gateway.Permissions
	err := g.call(
		ctx,
		opPermissions,
		channelRef,
		memberRequest{CommunityID: communityID, ChannelRef: channelRef},
		&ret,
	)
	return ret, err
}

func (g *Gateway) Grant(ctx context.Context, communityID string, memberID string, roleRef string) error {
	return g.call(
		ctx,
		opGrant,
		memberID,
		memberRequest{CommunityID: communityID, MemberID: memberID, RoleRef: roleRef},
		nil,
	)
}

func (g *Gateway) Revoke(ctx context.Context, communityID string, memberID string, roleRef string) error {
	return g.call(
		ctx,
		opRevoke,
		memberID,
		memberRequest{CommunityID: communityID, MemberID: memberID, RoleRef: roleRef},
		nil,
	)
}

func (g *Gateway) Notify(ctx context.Context, notice gateway.Notice) error {
	return g.call(ctx, opNotify, notice.ChannelRef, notice, nil)
}

func (g *Gateway) DeliverContract(ctx context.Context, prompt gateway.Prompt) (string, error) {
	var ret struct {
		Via string `json:"via"`
	}
	if err := g.call(ctx, opContract, prompt.MemberID, prompt, &ret); err != nil {
		return "", err
	}
	if ret.Via == "" {
		return "", &gateway.DeliveryError{
			Op:     opContract,
			Target: prompt.MemberID,
			Err:    gateway.ErrUndeliverable,
		}
	}
	return ret.Via, nil
}

func (g *Gateway) DeleteMessage(ctx context.Context, communityID string, channelRef string, messageRef string) error {
	return g.call(
		ctx,
		opDelete,
		messageRef,
		memberRequest{
			CommunityID: communityID,
			ChannelRef:  channelRef,
			MessageRef:  messageRef,
		},
		nil,
	)
}
