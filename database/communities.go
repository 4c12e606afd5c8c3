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
	"slices"
	"time"

	"github.com/blinklabs-io/wilhelmina/database/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GetCommunityConfig returns the layout of a community, or ErrNotFound
func (d *Database) GetCommunityConfig(
	ctx context.Context,
	communityID string,
) (*models.CommunityConfig, error) {
	var ret models.CommunityConfig
	result := d.metadata.DB().WithContext(ctx).
		Where("community_id = ?", communityID).
		Take(&ret)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, storageError("get community config", result.Error)
	}
	return &ret, nil
}

// UpsertCommunityConfig stores the layout of a community. Repeating the
// same upsert leaves the row unchanged apart from UpdatedAt, and CreatedAt
// is never overwritten.
func (d *Database) UpsertCommunityConfig(
	ctx context.Context,
	cfg *models.CommunityConfig,
) error {
	now := time.Now().UTC()
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = now
	}
	cfg.UpdatedAt = now
	result := d.metadata.DB().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "community_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"signed_role_ref",
				"circle_channel_ref",
				"admin_log_channel_ref",
				"timezone",
				"updated_at",
			}),
		}).
		Create(cfg)
	return storageError("upsert community config", result.Error)
}

// ListCommunities returns every community with a stored layout or at least
// one journal event, sorted
func (d *Database) ListCommunities(ctx context.Context) ([]string, error) {
	var configured []string
	result := d.metadata.DB().WithContext(ctx).
		Model(&models.CommunityConfig{}).
		Pluck("community_id", &configured)
	if result.Error != nil {
		return nil, storageError("list communities", result.Error)
	}
	var journaled []string
	result = d.metadata.DB().WithContext(ctx).
		Model(&models.Event{}).
		Distinct("community_id").
		Pluck("community_id", &journaled)
	if result.Error != nil {
		return nil, storageError("list communities", result.Error)
	}
	ret := append(configured, journaled...)
	slices.Sort(ret)
	return slices.Compact(ret), nil
}

// Ping checks that the metadata store is reachable
func (d *Database) Ping(ctx context.Context) error {
	sqlDb, err := d.metadata.DB().DB()
	if err != nil {
		return storageError("ping", err)
	}
	return storageError("ping", sqlDb.PingContext(ctx))
}
