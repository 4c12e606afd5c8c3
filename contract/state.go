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

package contract

import (
	"errors"
	"fmt"
)

// State is a member's position in the contract flow
type State int

const (
	StateNotContacted State = iota
	StateSent
	StateSigned
	StateDeclined
	StateRevoked
)

func (s State) String() string {
	switch s {
	case StateNotContacted:
		return "not_contacted"
	case StateSent:
		return "sent"
	case StateSigned:
		return "signed"
	case StateDeclined:
		return "declined"
	case StateRevoked:
		return "revoked"
	default:
		return "unknown"
	}
}

// ErrInvalidTransition is returned when the member's state forbids the action
var ErrInvalidTransition = errors.New("invalid contract transition")

// ValidationError is bad signing input. Nothing is stored when it is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
