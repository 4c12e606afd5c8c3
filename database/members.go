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

package database

import (
	"context"
	"errors"
	"time"

	"github.com/blinklabs-io/wilhelmina/database/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GetMember returns a member record, or ErrNotFound
func (d *Database) GetMember(
	ctx context.Context,
	communityID string,
	memberID string,
) (*models.Member, error) {
	var ret models.Member
	result := d.metadata.DB().WithContext(ctx).
		Where("community_id = ? AND member_id = ?", communityID, memberID).
		Take(&ret)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, storageError("get member", result.Error)
	}
	return &ret, nil
}

// EnsureMember creates an empty member record if none exists and returns
// the stored record
func (d *Database) EnsureMember(
	ctx context.Context,
	communityID string,
	memberID string,
) (*models.Member, error) {
	tmpMember := &models.Member{
		CommunityID: communityID,
		MemberID:    memberID,
	}
	result := d.metadata.DB().WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(tmpMember)
	if result.Error != nil {
		return nil, storageError("ensure member", result.Error)
	}
	return d.GetMember(ctx, communityID, memberID)
}

// UpsertMember writes the contract fields of a member record, creating the
// row if needed
func (d *Database) UpsertMember(ctx context.Context, member *models.Member) error {
	now := time.Now().UTC()
	if member.CreatedAt.IsZero() {
		member.CreatedAt = now
	}
	member.UpdatedAt = now
	result := d.metadata.DB().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "community_id"},
				{Name: "member_id"},
			},
			DoUpdates: clause.AssignmentColumns([]string{
				"chosen_name",
				"birthdate",
				"signed_at",
				"soul_id",
				"updated_at",
			}),
		}).
		Create(member)
	return storageError("upsert member", result.Error)
}

// ClearMemberSignature drops the identifier and signing time of a member.
// The row itself is kept.
func (d *Database) ClearMemberSignature(
	ctx context.Context,
	communityID string,
	memberID string,
) error {
	result := d.metadata.DB().WithContext(ctx).
		Model(&models.Member{}).
		Where("community_id = ? AND member_id = ?", communityID, memberID).
		Updates(map[string]any{
			"soul_id":    nil,
			"signed_at":  nil,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return storageError("clear member signature", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListMembers returns every member record of a community ordered by member id
func (d *Database) ListMembers(
	ctx context.Context,
	communityID string,
) ([]models.Member, error) {
	var ret []models.Member
	result := d.metadata.DB().WithContext(ctx).
		Where("community_id = ?", communityID).
		Order("member_id ASC").
		Find(&ret)
	if result.Error != nil {
		return nil, storageError("list members", result.Error)
	}
	return ret, nil
}
