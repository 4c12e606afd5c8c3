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

// Member is the contract record for one member of a community. Rows are
// never deleted; revocation clears SoulID and SignedAt.
type Member struct {
	CreatedAt   time.Time
	UpdatedAt   time.Time
	SignedAt    *time.Time
	SoulID      *string `gorm:"size:64"`
	CommunityID string  `gorm:"size:64;not null;uniqueIndex:idx_member_community_member,priority:1"`
	MemberID    string  `gorm:"size:64;not null;uniqueIndex:idx_member_community_member,priority:2"`
	ChosenName  string  `gorm:"size:255"`
	Birthdate   string  `gorm:"size:10"`
	ID          uint    `gorm:"primarykey"`
}

// TableName returns the table name for Member.
func (Member) TableName() string {
	return "member"
}

// Signed reports whether the member currently holds an identifier
func (m *Member) Signed() bool {
	return m.SoulID != nil && *m.SoulID != ""
}
