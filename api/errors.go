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
	"encoding/json"
	"errors"
	"net/http"

	"github.com/blinklabs-io/wilhelmina/contract"
	"github.com/blinklabs-io/wilhelmina/database"
	"github.com/blinklabs-io/wilhelmina/ritual"
)

var (
	errUnauthorized = errors.New("unauthorized")
	errBadRequest   = errors.New("bad request")
)

type errorResponse struct {
	Error string `json:"error"`
}

// writeError renders a short themed message. Only errors the caller can act
// on are described; anything else is logged and reported generically.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	msgs := s.config.Lang.Get().Errors
	status := http.StatusInternalServerError
	msg := msgs.Generic
	var validationErr *contract.ValidationError
	switch {
	case errors.As(err, &validationErr):
		status = http.StatusBadRequest
		msg = msgs.InvalidName
		if validationErr.Field == "birthdate" {
			msg = msgs.InvalidDate
		}
	case errors.Is(err, errBadRequest):
		status = http.StatusBadRequest
		msg = msgs.BadRequest
	case errors.Is(err, errUnauthorized):
		status = http.StatusUnauthorized
		msg = msgs.Permission
	case errors.Is(err, contract.ErrInvalidTransition):
		status = http.StatusConflict
		msg = msgs.InvalidTransition
	case errors.Is(err, ritual.ErrAlreadyActive):
		status = http.StatusConflict
		msg = msgs.AlreadyActive
	case errors.Is(err, ritual.ErrNotActive):
		status = http.StatusNotFound
		msg = msgs.NotActive
	case errors.Is(err, ritual.ErrPreflight):
		status = http.StatusPreconditionFailed
		msg = msgs.Preflight
	case errors.Is(err, database.ErrNotFound):
		status = http.StatusNotFound
		msg = msgs.NotFound
	default:
		s.logger.Error(
			"request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
	}
	if status != http.StatusInternalServerError {
		s.logger.Debug(
			"request rejected",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
