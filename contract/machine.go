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

// Package contract drives one member through prompt, signing or decline,
// and administrative revocation
package contract

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/blinklabs-io/wilhelmina/database"
	"github.com/blinklabs-io/wilhelmina/database/models"
	"github.com/blinklabs-io/wilhelmina/eventlog"
	"github.com/blinklabs-io/wilhelmina/gateway"
	"github.com/blinklabs-io/wilhelmina/lang"
	"github.com/blinklabs-io/wilhelmina/serial"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultPromptTimeout = 5 * time.Minute
	MaxNameLength        = 64
	birthdateLayout      = "2006-01-02"
)

// Platform is the part of the gateway the contract flow talks to
type Platform interface {
	gateway.Broadcaster
	gateway.Roles
	gateway.ContractCourier
}

// MachineConfig holds the contract flow's collaborators
type MachineConfig struct {
	DB            *database.Database
	Log           *eventlog.Log
	Serials       *serial.Allocator
	Platform      Platform
	Lang          *lang.Store
	Logger        *slog.Logger
	PromRegistry  prometheus.Registerer
	Now           func() time.Time
	Brand         string
	PromptTimeout time.Duration
}

// Machine is the contract state machine
type Machine struct {
	db       *database.Database
	log      *eventlog.Log
	serials  *serial.Allocator
	platform Platform
	lang     *lang.Store
	logger   *slog.Logger
	metrics  *machineMetrics
	now      func() time.Time
	minter   Minter
	timeout  time.Duration
}

// SendResult is the outcome of a contract delivery
type SendResult struct {
	Via       string
	Delivered bool
}

// SignResult is returned to the member after a successful signature
type SignResult struct {
	SignedAt time.Time
	SoulID   string
	DMText   string
	Serial   uint64
}

// NewMachine creates a contract state machine
func NewMachine(cfg MachineConfig) (*Machine, error) {
	if cfg.DB == nil || cfg.Log == nil || cfg.Serials == nil || cfg.Platform == nil {
		return nil, errors.New("contract: database, journal, serials and platform are required")
	}
	m := &Machine{
		db:       cfg.DB,
		log:      cfg.Log,
		serials:  cfg.Serials,
		platform: cfg.Platform,
		lang:     cfg.Lang,
		logger:   cfg.Logger,
		metrics:  newMachineMetrics(cfg.PromRegistry),
		now:      cfg.Now,
		timeout:  cfg.PromptTimeout,
		minter: Minter{
			Brand:   cfg.Brand,
			Ceiling: cfg.Serials.Ceiling(),
		},
	}
	if m.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		m.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if m.lang == nil {
		m.lang = lang.NewStore("", m.logger)
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.timeout <= 0 {
		m.timeout = DefaultPromptTimeout
	}
	return m, nil
}

// State derives a member's state from the record and the member's latest
// contract event. The record is nil for members never seen.
func (m *Machine) State(
	ctx context.Context,
	communityID string,
	memberID string,
) (State, *models.Member, error) {
	member, err := m.db.GetMember(ctx, communityID, memberID)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return StateNotContacted, nil, err
	}
	if member != nil && member.Signed() {
		return StateSigned, member, nil
	}
	latest, err := m.log.Latest(ctx, communityID, memberID, eventlog.ContractKinds...)
	if err != nil {
		if errors.Is(err, eventlog.ErrNotFound) {
			return StateNotContacted, member, nil
		}
		return StateNotContacted, member, err
	}
	switch latest.Kind {
	case eventlog.KindContractSent:
		return StateSent, member, nil
	case eventlog.KindContractDeclined:
		return StateDeclined, member, nil
	case eventlog.KindContractRevoked, eventlog.KindContractSigned:
		// A signed event without an identifier on record means it was cleared
		return StateRevoked, member, nil
	default:
		return StateNotContacted, member, nil
	}
}

// MemberJoined handles a join signal. Admins are recorded as bypassed and
// never receive a contract.
func (m *Machine) MemberJoined(
	ctx context.Context,
	communityID string,
	memberID string,
	isAdmin bool,
) (SendResult, error) {
	if isAdmin {
		if _, err := m.log.Append(ctx, communityID, memberID, eventlog.AdminBypass{MemberID: memberID}); err != nil {
			return SendResult{}, err
		}
		m.logger.Info(
			"admin bypassed contract",
			"component", "contract",
			"community", communityID,
			"member", memberID,
		)
		return SendResult{}, nil
	}
	state, _, err := m.State(ctx, communityID, memberID)
	if err != nil {
		return SendResult{}, err
	}
	// A member who signed, left and came back keeps the contract
	if state == StateSigned {
		m.logger.Debug(
			"member already signed",
			"component", "contract",
			"community", communityID,
			"member", memberID,
		)
		return SendResult{}, nil
	}
	return m.Send(ctx, communityID, memberID, "")
}

// Send delivers the contract prompt. An undeliverable prompt is journaled
// and reported in the result, not as an error.
func (m *Machine) Send(
	ctx context.Context,
	communityID string,
	memberID string,
	actorID string,
) (SendResult, error) {
	state, _, err := m.State(ctx, communityID, memberID)
	if err != nil {
		return SendResult{}, err
	}
	if state == StateSigned {
		return SendResult{}, ErrInvalidTransition
	}
	if _, err := m.db.EnsureMember(ctx, communityID, memberID); err != nil {
		return SendResult{}, err
	}
	var circleRef string
	if cfg, err := m.db.GetCommunityConfig(ctx, communityID); err == nil {
		circleRef = cfg.CircleChannelRef
	}
	dict := m.lang.Get()
	via, err := m.platform.DeliverContract(ctx, gateway.Prompt{
		CommunityID:      communityID,
		MemberID:         memberID,
		CircleChannelRef: circleRef,
		Title:            "Soul Contract",
		Text:             dict.Contract.PromptName + "\n" + dict.Contract.PromptBirthdate,
		Timeout:          m.timeout,
	})
	if err != nil {
		m.metrics.deliveryFailures.WithLabelValues("contract").Inc()
		m.logger.Warn(
			"contract undeliverable",
			"component", "contract",
			"community", communityID,
			"member", memberID,
			"error", err,
		)
		reason := err.Error()
		if _, err := m.log.Append(ctx, communityID, actorID, eventlog.ContractUndeliverable{
			MemberID: memberID,
			Reason:   reason,
		}); err != nil {
			return SendResult{}, err
		}
		return SendResult{}, nil
	}
	if _, err := m.log.Append(ctx, communityID, actorID, eventlog.ContractSent{
		MemberID: memberID,
		Via:      via,
	}); err != nil {
		return SendResult{}, err
	}
	m.metrics.transitions.WithLabelValues(StateSent.String()).Inc()
	return SendResult{Via: via, Delivered: true}, nil
}

func validateSignature(name string, birthdate string) error {
	if _, err := time.Parse(birthdateLayout, birthdate); err != nil {
		return &ValidationError{Field: "birthdate", Reason: "expected YYYY-MM-DD"}
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return &ValidationError{Field: "chosen_name", Reason: "must not be empty"}
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return &ValidationError{Field: "chosen_name", Reason: "longer than 64 characters"}
	}
	return nil
}

// Sign validates the input, mints an identifier, allocates its serial and
// stores the record. Role grant and the public notice are best-effort.
func (m *Machine) Sign(
	ctx context.Context,
	communityID string,
	memberID string,
	name string,
	birthdate string,
) (SignResult, error) {
	ctx, span := otel.Tracer("github.com/blinklabs-io/wilhelmina/contract").Start(ctx, "contract.sign")
	defer span.End()
	span.SetAttributes(
		attribute.String("community", communityID),
		attribute.String("member", memberID),
	)
	if err := validateSignature(name, birthdate); err != nil {
		return SignResult{}, err
	}
	name = strings.TrimSpace(name)
	signedAt := m.now().UTC().Round(0)
	shape := m.minter.Mint(name, signedAt)
	serialNum, err := m.serials.Next(ctx, communityID)
	if err != nil {
		span.RecordError(err)
		return SignResult{}, err
	}
	soulID, err := m.minter.WithSerial(shape, serialNum)
	if err != nil {
		return SignResult{}, err
	}
	if err := m.db.UpsertMember(ctx, &models.Member{
		CommunityID: communityID,
		MemberID:    memberID,
		ChosenName:  name,
		Birthdate:   birthdate,
		SignedAt:    &signedAt,
		SoulID:      &soulID,
	}); err != nil {
		span.RecordError(err)
		return SignResult{}, err
	}
	if _, err := m.log.Append(ctx, communityID, memberID, eventlog.ContractSigned{
		MemberID:   memberID,
		ChosenName: name,
		SoulID:     soulID,
		Serial:     serialNum,
	}); err != nil {
		span.RecordError(err)
		return SignResult{}, err
	}
	m.metrics.transitions.WithLabelValues(StateSigned.String()).Inc()
	dict := m.lang.Get()
	if cfg, err := m.db.GetCommunityConfig(ctx, communityID); err == nil {
		if cfg.SignedRoleRef != "" {
			if err := m.platform.Grant(ctx, communityID, memberID, cfg.SignedRoleRef); err != nil {
				m.bestEffortFailed("grant", communityID, memberID, err)
			}
		}
		if cfg.CircleChannelRef != "" {
			if err := m.platform.Send(ctx, gateway.Message{
				CommunityID: communityID,
				ChannelRef:  cfg.CircleChannelRef,
				Title:       "Seal Granted",
				Text:        dict.SignedPublic(memberID),
			}); err != nil {
				m.bestEffortFailed("seal_notice", communityID, memberID, err)
			}
		}
	}
	m.logger.Info(
		"contract signed",
		"component", "contract",
		"community", communityID,
		"member", memberID,
		"soul_id", soulID,
	)
	return SignResult{
		SignedAt: signedAt,
		SoulID:   soulID,
		Serial:   serialNum,
		DMText:   dict.SignedDM(soulID),
	}, nil
}

// Decline journals a refusal and returns one of the rude replies
func (m *Machine) Decline(
	ctx context.Context,
	communityID string,
	memberID string,
) (string, error) {
	state, _, err := m.State(ctx, communityID, memberID)
	if err != nil {
		return "", err
	}
	if state == StateSigned {
		return "", ErrInvalidTransition
	}
	if _, err := m.log.Append(ctx, communityID, memberID, eventlog.ContractDeclined{MemberID: memberID}); err != nil {
		return "", err
	}
	m.metrics.transitions.WithLabelValues(StateDeclined.String()).Inc()
	rng := rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) //nolint:gosec
	return m.lang.Get().RudeLine(rng), nil
}

// Revoke clears a signed member's identifier. The record and its history
// stay queryable.
func (m *Machine) Revoke(
	ctx context.Context,
	communityID string,
	memberID string,
	actorID string,
	reason string,
) error {
	member, err := m.db.GetMember(ctx, communityID, memberID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return ErrInvalidTransition
		}
		return err
	}
	if !member.Signed() {
		return ErrInvalidTransition
	}
	if cfg, err := m.db.GetCommunityConfig(ctx, communityID); err == nil && cfg.SignedRoleRef != "" {
		if err := m.platform.Revoke(ctx, communityID, memberID, cfg.SignedRoleRef); err != nil {
			m.bestEffortFailed("revoke", communityID, memberID, err)
		}
	}
	if err := m.db.ClearMemberSignature(ctx, communityID, memberID); err != nil {
		return err
	}
	if _, err := m.log.Append(ctx, communityID, actorID, eventlog.ContractRevoked{
		MemberID: memberID,
		SoulID:   *member.SoulID,
		Reason:   reason,
	}); err != nil {
		return err
	}
	m.metrics.transitions.WithLabelValues(StateRevoked.String()).Inc()
	return nil
}

func (m *Machine) bestEffortFailed(op string, communityID string, memberID string, err error) {
	m.metrics.deliveryFailures.WithLabelValues(op).Inc()
	m.logger.Warn(
		"platform call failed",
		"component", "contract",
		"op", op,
		"community", communityID,
		"member", memberID,
		"error", err,
	)
}
