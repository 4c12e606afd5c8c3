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

package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/blinklabs-io/wilhelmina/contract"
	"github.com/blinklabs-io/wilhelmina/database"
	"github.com/blinklabs-io/wilhelmina/database/models"
	"github.com/blinklabs-io/wilhelmina/eventlog"
	"github.com/blinklabs-io/wilhelmina/export"
	"github.com/blinklabs-io/wilhelmina/ritual"
)

// statusBeats is the number of upcoming beats listed in a status
const statusBeats = 3

// decodeBody reads an optional JSON body into v. An empty body leaves v
// untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}
	return nil
}

type layoutRequest struct {
	SignedRoleRef      string `json:"signed_role_ref"`
	CircleChannelRef   string `json:"circle_channel_ref"`
	AdminLogChannelRef string `json:"admin_log_channel_ref"`
	Timezone           string `json:"timezone"`
}

type layoutResponse struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	layoutRequest
	CommunityID string `json:"community_id"`
}

func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	communityID := r.PathValue("community")
	var req layoutRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Timezone != "" {
		if _, err := time.LoadLocation(req.Timezone); err != nil {
			s.writeError(w, r, fmt.Errorf("%w: %w", errBadRequest, err))
			return
		}
	}
	cfg := &models.CommunityConfig{
		CommunityID:        communityID,
		SignedRoleRef:      req.SignedRoleRef,
		CircleChannelRef:   req.CircleChannelRef,
		AdminLogChannelRef: req.AdminLogChannelRef,
		Timezone:           req.Timezone,
	}
	if err := s.config.DB.UpsertCommunityConfig(r.Context(), cfg); err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, err := s.config.Log.Append(r.Context(), communityID, actorFrom(r.Context()), eventlog.LayoutUpdated{
		SignedRoleRef:      req.SignedRoleRef,
		CircleChannelRef:   req.CircleChannelRef,
		AdminLogChannelRef: req.AdminLogChannelRef,
		Timezone:           req.Timezone,
	}); err != nil {
		s.writeError(w, r, err)
		return
	}
	stored, err := s.config.DB.GetCommunityConfig(r.Context(), communityID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, layoutResponse{
		CommunityID: stored.CommunityID,
		CreatedAt:   stored.CreatedAt,
		UpdatedAt:   stored.UpdatedAt,
		layoutRequest: layoutRequest{
			SignedRoleRef:      stored.SignedRoleRef,
			CircleChannelRef:   stored.CircleChannelRef,
			AdminLogChannelRef: stored.AdminLogChannelRef,
			Timezone:           stored.Timezone,
		},
	})
}

type joinRequest struct {
	IsAdmin bool `json:"is_admin"`
}

type sendResponse struct {
	Via       string `json:"via,omitempty"`
	Delivered bool   `json:"delivered"`
	Bypassed  bool   `json:"bypassed,omitempty"`
}

func (s *Server) handleMemberJoin(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.config.Machine.MemberJoined(
		r.Context(),
		r.PathValue("community"),
		r.PathValue("member"),
		req.IsAdmin,
	)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sendResponse{
		Via:       res.Via,
		Delivered: res.Delivered,
		Bypassed:  req.IsAdmin,
	})
}

type memberResponse struct {
	SignedAt    *time.Time `json:"signed_at"`
	SoulID      *string    `json:"soul_id"`
	CommunityID string     `json:"community_id"`
	MemberID    string     `json:"member_id"`
	State       string     `json:"state"`
	ChosenName  string     `json:"chosen_name,omitempty"`
	Birthdate   string     `json:"birthdate,omitempty"`
}

func (s *Server) handleGetMember(w http.ResponseWriter, r *http.Request) {
	communityID := r.PathValue("community")
	memberID := r.PathValue("member")
	state, member, err := s.config.Machine.State(r.Context(), communityID, memberID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if member == nil && state == contract.StateNotContacted {
		s.writeError(w, r, database.ErrNotFound)
		return
	}
	resp := memberResponse{
		CommunityID: communityID,
		MemberID:    memberID,
		State:       state.String(),
	}
	if member != nil {
		resp.ChosenName = member.ChosenName
		resp.Birthdate = member.Birthdate
		resp.SignedAt = member.SignedAt
		resp.SoulID = member.SoulID
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleContractSend(w http.ResponseWriter, r *http.Request) {
	res, err := s.config.Machine.Send(
		r.Context(),
		r.PathValue("community"),
		r.PathValue("member"),
		actorFrom(r.Context()),
	)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sendResponse{Via: res.Via, Delivered: res.Delivered})
}

type signRequest struct {
	ChosenName string `json:"chosen_name"`
	Birthdate  string `json:"birthdate"`
}

type signResponse struct {
	SignedAt time.Time `json:"signed_at"`
	SoulID   string    `json:"soul_id"`
	Message  string    `json:"message"`
	Serial   uint64    `json:"serial"`
}

func (s *Server) handleContractSign(w http.ResponseWriter, r *http.Request) {
	var req signRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.config.Machine.Sign(
		r.Context(),
		r.PathValue("community"),
		r.PathValue("member"),
		req.ChosenName,
		req.Birthdate,
	)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, signResponse{
		SignedAt: res.SignedAt,
		SoulID:   res.SoulID,
		Serial:   res.Serial,
		Message:  res.DMText,
	})
}

func (s *Server) handleContractDecline(w http.ResponseWriter, r *http.Request) {
	reply, err := s.config.Machine.Decline(
		r.Context(),
		r.PathValue("community"),
		r.PathValue("member"),
	)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": reply})
}

type revokeRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleContractRevoke(w http.ResponseWriter, r *http.Request) {
	var req revokeRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.config.Machine.Revoke(
		r.Context(),
		r.PathValue("community"),
		r.PathValue("member"),
		actorFrom(r.Context()),
		req.Reason,
	); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type ritualStartRequest struct {
	ChannelRef string `json:"channel_ref"`
}

type beatStatus struct {
	At         string `json:"at"`
	Index      int    `json:"index"`
	EtaSeconds int64  `json:"eta_seconds"`
}

type budgetStatus struct {
	Used int `json:"used"`
	Max  int `json:"max"`
}

type ritualStatus struct {
	RunID          string       `json:"run_id"`
	ChannelRef     string       `json:"channel_ref"`
	StartedAt      string       `json:"started_at"`
	Timezone       string       `json:"timezone"`
	Message        string       `json:"message,omitempty"`
	Upcoming       []beatStatus `json:"upcoming"`
	Everyone       budgetStatus `json:"everyone"`
	MemberMentions budgetStatus `json:"member_mentions"`
	NextIndex      int          `json:"next_index"`
	TotalBeats     int          `json:"total_beats"`
	Aborted        bool         `json:"aborted,omitempty"`
}

// location resolves a community's zone. An unknown zone falls back to UTC.
func (s *Server) location(r *http.Request, communityID string) *time.Location {
	cfg, err := s.config.DB.GetCommunityConfig(r.Context(), communityID)
	if err != nil || cfg.Timezone == "" {
		return s.config.Location
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		s.logger.Warn(
			"invalid community timezone, using UTC",
			"community", communityID,
			"timezone", cfg.Timezone,
			"error", err,
		)
		return time.UTC
	}
	return loc
}

func (s *Server) ritualStatus(r *http.Request, st *ritual.State) ritualStatus {
	loc := s.location(r, st.CommunityID)
	limits := s.config.Engine.Limits()
	now := s.config.Now()
	ret := ritualStatus{
		RunID:      st.RunID,
		ChannelRef: st.ChannelRef,
		StartedAt:  st.StartedAt.In(loc).Format(time.RFC3339),
		Timezone:   loc.String(),
		NextIndex:  st.NextIndex,
		TotalBeats: len(st.Beats),
		Aborted:    st.Aborted,
		Upcoming:   []beatStatus{},
		Everyone: budgetStatus{
			Used: st.EveryoneCount,
			Max:  limits.EveryoneMaxTotal,
		},
		MemberMentions: budgetStatus{
			Used: st.MemberMentionsDone,
			Max:  limits.PerRitualMemberMentionsMax,
		},
	}
	if st.Aborted {
		return ret
	}
	for _, eta := range st.Upcoming(now, statusBeats) {
		ret.Upcoming = append(ret.Upcoming, beatStatus{
			Index:      eta.Index,
			At:         eta.At.In(loc).Format(time.RFC3339),
			EtaSeconds: int64(eta.In.Round(time.Second) / time.Second),
		})
	}
	return ret
}

func (s *Server) handleRitualStart(w http.ResponseWriter, r *http.Request) {
	communityID := r.PathValue("community")
	var req ritualStartRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.ChannelRef == "" {
		if cfg, err := s.config.DB.GetCommunityConfig(r.Context(), communityID); err == nil {
			req.ChannelRef = cfg.CircleChannelRef
		}
	}
	if req.ChannelRef == "" {
		s.writeError(w, r, fmt.Errorf("%w: no channel_ref and no circle channel configured", errBadRequest))
		return
	}
	st, err := s.config.Engine.Start(r.Context(), communityID, req.ChannelRef, actorFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.ritualStatus(r, st))
}

func (s *Server) handleRitualAbort(w http.ResponseWriter, r *http.Request) {
	st, err := s.config.Engine.Abort(r.Context(), r.PathValue("community"), actorFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := s.ritualStatus(r, st)
	resp.Message = s.config.Lang.Get().Admin.Abort
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRitualStatus(w http.ResponseWriter, r *http.Request) {
	st, ok := s.config.Engine.Status(r.PathValue("community"))
	if !ok {
		s.writeError(w, r, ritual.ErrNotActive)
		return
	}
	writeJSON(w, http.StatusOK, s.ritualStatus(r, st))
}

type circleMessageRequest struct {
	ChannelRef  string `json:"channel_ref"`
	MessageRef  string `json:"message_ref"`
	AuthorID    string `json:"author_id"`
	AuthorIsBot bool   `json:"author_is_bot"`
}

func (s *Server) handleCircleMessage(w http.ResponseWriter, r *http.Request) {
	var req circleMessageRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.ChannelRef == "" || req.MessageRef == "" {
		s.writeError(w, r, fmt.Errorf("%w: channel_ref and message_ref are required", errBadRequest))
		return
	}
	deleted, err := s.config.Engine.HandleCircleMessage(
		r.Context(),
		r.PathValue("community"),
		req.ChannelRef,
		req.MessageRef,
		req.AuthorID,
		req.AuthorIsBot,
	)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": deleted})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	communityID := r.PathValue("community")
	query := r.URL.Query()
	format, err := export.ParseFormat(query.Get("format"))
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}
	var audit bool
	if v := query.Get("audit"); v != "" {
		audit, err = strconv.ParseBool(v)
		if err != nil {
			s.writeError(w, r, fmt.Errorf("%w: audit: %w", errBadRequest, err))
			return
		}
	}
	records, err := export.Collect(r.Context(), s.config.DB, communityID, audit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	files, err := export.Render(records, format)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(files) == 1 {
		w.Header().Set("Content-Type", files[0].ContentType)
		w.Header().Set(
			"Content-Disposition",
			fmt.Sprintf("attachment; filename=%q", communityID+"-"+files[0].Name),
		)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(files[0].Data)
		return
	}
	var buf bytes.Buffer
	if err := export.WriteArchive(&buf, files); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set(
		"Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", communityID+"-records.zip"),
	)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
