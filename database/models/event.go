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

package models

import "time"

// Event is one append-only journal row. ID is the sequence id and is the
// only ordering the journal relies on. SubjectID names the member an event
// concerns, if any.
type Event struct {
	CreatedAt   time.Time `gorm:"not null"`
	ActorID     *string   `gorm:"size:64"`
	CommunityID string    `gorm:"size:64;not null;index:idx_event_community_kind,priority:1"`
	Kind        string    `gorm:"size:64;not null;index:idx_event_community_kind,priority:2"`
	SubjectID   string    `gorm:"size:64;index"`
	Detail      string    `gorm:"type:text;not null"`
	ID          uint64    `gorm:"primarykey;autoIncrement"`
}

// TableName returns the table name for Event.
func (Event) TableName() string {
	return "event"
}
