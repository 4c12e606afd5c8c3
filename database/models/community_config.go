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

// CommunityConfig holds the layout references for one community
type CommunityConfig struct {
	CreatedAt          time.Time
	UpdatedAt          time.Time
	CommunityID        string `gorm:"primaryKey;size:64"`
	SignedRoleRef      string `gorm:"size:64"`
	CircleChannelRef   string `gorm:"size:64"`
	AdminLogChannelRef string `gorm:"size:64"`
	Timezone           string `gorm:"size:64"`
}

// TableName returns the table name for CommunityConfig.
func (CommunityConfig) TableName() string {
	return "community_config"
}
