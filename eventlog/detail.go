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

package eventlog

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind is the open tag of a journal entry
type Kind string

const (
	KindRitualStart               Kind = "ritual_start"
	KindRitualState               Kind = "ritual_state"
	KindRitualEnd                 Kind = "ritual_end"
	KindRitualAbort               Kind = "ritual_abort"
	KindRitualResume              Kind = "ritual_resume"
	KindContractSent              Kind = "contract_sent"
	KindContractUndeliverable     Kind = "contract_undeliverable"
	KindContractSigned            Kind = "contract_signed"
	KindContractDeclined          Kind = "contract_declined"
	KindContractRevoked           Kind = "contract_revoked"
	KindAdminBypass               Kind = "admin_bypass"
	KindCircleInterruptionDeleted Kind = "circle_interruption_deleted"
	KindPreflightFailed           Kind = "preflight_failed"
	KindLayoutUpdated             Kind = "layout_updated"
)

// ContractKinds are the kinds that move a member between contract states
var ContractKinds = []Kind{
	KindContractSent,
	KindContractUndeliverable,
	KindContractSigned,
	KindContractDeclined,
	KindContractRevoked,
}

// Detail is the payload of a journal entry. Every known kind has its own
// type and anything else decodes to Unknown.
type Detail interface {
	Kind() Kind
}

// subjecter is implemented by details that concern one member
type subjecter interface {
	Subject() string
}

// RitualSnapshot is the serialized form of a ritual's pacing state. Beat
// offsets are integer nanoseconds and times are UTC.
type RitualSnapshot struct {
	StartedAt          time.Time  `json:"started_at"`
	LastEveryoneAt     *time.Time `json:"last_everyone_at"`
	CommunityID        string     `json:"community_id"`
	RunID              string     `json:"run_id"`
	ChannelRef         string     `json:"channel_ref"`
	BeatsNs            []int64    `json:"beats_ns"`
	NextIndex          int        `json:"next_index"`
	EveryoneCount      int        `json:"everyone_count"`
	MemberMentionsDone int        `json:"member_mentions_done"`
	Aborted            bool       `json:"aborted"`
}

type RitualStart struct {
	RitualSnapshot
}

func (RitualStart) Kind() Kind { return KindRitualStart }

type RitualState struct {
	RitualSnapshot
}

func (RitualState) Kind() Kind { return KindRitualState }

type RitualAbort struct {
	RitualSnapshot
}

func (RitualAbort) Kind() Kind { return KindRitualAbort }

type RitualEnd struct {
	RunID              string `json:"run_id"`
	Beats              int    `json:"beats"`
	EveryoneCount      int    `json:"everyone_count"`
	MemberMentionsDone int    `json:"member_mentions_done"`
}

func (RitualEnd) Kind() Kind { return KindRitualEnd }

type RitualResume struct {
	RunID       string `json:"run_id"`
	NextIndex   int    `json:"next_index"`
	SnapshotSeq uint64 `json:"snapshot_seq"`
	Remaining   int    `json:"remaining"`
}

func (RitualResume) Kind() Kind { return KindRitualResume }

type ContractSent struct {
	MemberID string `json:"member_id"`
	Via      string `json:"via"`
}

func (ContractSent) Kind() Kind         { return KindContractSent }
func (d ContractSent) Subject() string { return d.MemberID }

type ContractUndeliverable struct {
	MemberID string `json:"member_id"`
	Reason   string `json:"reason"`
}

func (ContractUndeliverable) Kind() Kind         { return KindContractUndeliverable }
func (d ContractUndeliverable) Subject() string { return d.MemberID }

type ContractSigned struct {
	MemberID   string `json:"member_id"`
	ChosenName string `json:"chosen_name"`
	SoulID     string `json:"soul_id"`
	Serial     uint64 `json:"serial"`
}

func (ContractSigned) Kind() Kind         { return KindContractSigned }
func (d ContractSigned) Subject() string { return d.MemberID }

type ContractDeclined struct {
	MemberID string `json:"member_id"`
}

func (ContractDeclined) Kind() Kind         { return KindContractDeclined }
func (d ContractDeclined) Subject() string { return d.MemberID }

type ContractRevoked struct {
	MemberID string `json:"member_id"`
	SoulID   string `json:"soul_id"`
	Reason   string `json:"reason"`
}

func (ContractRevoked) Kind() Kind         { return KindContractRevoked }
func (d ContractRevoked) Subject() string { return d.MemberID }

type AdminBypass struct {
	MemberID string `json:"member_id"`
}

func (AdminBypass) Kind() Kind         { return KindAdminBypass }
func (d AdminBypass) Subject() string { return d.MemberID }

type CircleInterruptionDeleted struct {
	ChannelRef string `json:"channel_ref"`
	MessageRef string `json:"message_ref"`
	AuthorID   string `json:"author_id"`
}

func (CircleInterruptionDeleted) Kind() Kind         { return KindCircleInterruptionDeleted }
func (d CircleInterruptionDeleted) Subject() string { return d.AuthorID }

type PreflightFailed struct {
	ChannelRef string   `json:"channel_ref"`
	Missing    []string `json:"missing"`
}

func (PreflightFailed) Kind() Kind { return KindPreflightFailed }

type LayoutUpdated struct {
	SignedRoleRef      string `json:"signed_role_ref"`
	CircleChannelRef   string `json:"circle_channel_ref"`
	AdminLogChannelRef string `json:"admin_log_channel_ref"`
	Timezone           string `json:"timezone"`
}

func (LayoutUpdated) Kind() Kind { return KindLayoutUpdated }

// Unknown keeps the raw payload of a kind this build does not know about
type Unknown struct {
	Tag Kind
	Raw json.RawMessage
}

func (u Unknown) Kind() Kind { return u.Tag }

// MarshalJSON writes the original bytes back unchanged
func (u Unknown) MarshalJSON() ([]byte, error) {
	if len(u.Raw) == 0 {
		return []byte("null"), nil
	}
	return u.Raw, nil
}

// Encode serializes a detail for storage
func Encode(detail Detail) (string, error) {
	data, err := json.Marshal(detail)
	if err != nil {
		return "", fmt.Errorf("encode %s detail: %w", detail.Kind(), err)
	}
	return string(data), nil
}

// Decode parses a stored payload into the detail type of its kind
func Decode(kind Kind, raw []byte) (Detail, error) {
	var detail Detail
	switch kind {
	case KindRitualStart:
		detail = &RitualStart{}
	case KindRitualState:
		detail = &RitualState{}
	case KindRitualAbort:
		detail = &RitualAbort{}
	case KindRitualEnd:
		detail = &RitualEnd{}
	case KindRitualResume:
		detail = &RitualResume{}
	case KindContractSent:
		detail = &ContractSent{}
	case KindContractUndeliverable:
		detail = &ContractUndeliverable{}
	case KindContractSigned:
		detail = &ContractSigned{}
	case KindContractDeclined:
		detail = &ContractDeclined{}
	case KindContractRevoked:
		detail = &ContractRevoked{}
	case KindAdminBypass:
		detail = &AdminBypass{}
	case KindCircleInterruptionDeleted:
		detail = &CircleInterruptionDeleted{}
	case KindPreflightFailed:
		detail = &PreflightFailed{}
	case KindLayoutUpdated:
		detail = &LayoutUpdated{}
	default:
		return Unknown{
			Tag: kind,
			Raw: append(json.RawMessage(nil), raw...),
		}, nil
	}
	if err := json.Unmarshal(raw, detail); err != nil {
		return nil, fmt.Errorf("decode %s detail: %w", kind, err)
	}
	return deref(detail), nil
}

// deref returns the value form of a decoded detail so callers can type
// switch on values only
func deref(detail Detail) Detail {
	switch d := detail.(type) {
	case *RitualStart:
		return *d
	case *RitualState:
		return *d
	case *RitualAbort:
		return *d
	case *RitualEnd:
		return *d
	case *RitualResume:
		return *d
	case *ContractSent:
		return *d
	case *ContractUndeliverable:
		return *d
	case *ContractSigned:
		return *d
	case *ContractDeclined:
		return *d
	case *ContractRevoked:
		return *d
	case *AdminBypass:
		return *d
	case *CircleInterruptionDeleted:
		return *d
	case *PreflightFailed:
		return *d
	case *LayoutUpdated:
		return *d
	}
	return detail
}
