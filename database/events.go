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
)

// EventQuery narrows a journal listing. Zero values match everything.
type EventQuery struct {
	SubjectID string
	Kinds     []string
	AfterID   uint64
	Limit     int
}

// AppendEvent inserts a journal row. The assigned sequence id is written
// back into evt.ID.
func (d *Database) AppendEvent(ctx context.Context, evt *models.Event) error {
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = time.Now().UTC()
	}
	result := d.metadata.DB().WithContext(ctx).Create(evt)
	return storageError("append event", result.Error)
}

// ListEvents returns a community's journal ordered by sequence id
func (d *Database) ListEvents(
	ctx context.Context,
	communityID string,
	query EventQuery,
) ([]models.Event, error) {
	var ret []models.Event
	tx := d.metadata.DB().WithContext(ctx).
		Where("community_id = ?", communityID)
	if query.SubjectID != "" {
		tx = tx.Where("subject_id = ?", query.SubjectID)
	}
	if len(query.Kinds) > 0 {
		tx = tx.Where("kind IN ?", query.Kinds)
	}
	if query.AfterID > 0 {
		tx = tx.Where("id > ?", query.AfterID)
	}
	if query.Limit > 0 {
		tx = tx.Limit(query.Limit)
	}
	if result := tx.Order("id ASC").Find(&ret); result.Error != nil {
		return nil, storageError("list events", result.Error)
	}
	return ret, nil
}

// LatestEvent returns the newest event matching the query, or ErrNotFound
func (d *Database) LatestEvent(
	ctx context.Context,
	communityID string,
	query EventQuery,
) (*models.Event, error) {
	var ret models.Event
	tx := d.metadata.DB().WithContext(ctx).
		Where("community_id = ?", communityID)
	if query.SubjectID != "" {
		tx = tx.Where("subject_id = ?", query.SubjectID)
	}
	if len(query.Kinds) > 0 {
		tx = tx.Where("kind IN ?", query.Kinds)
	}
	result := tx.Order("id DESC").Limit(1).Take(&ret)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, storageError("latest event", result.Error)
	}
	return &ret, nil
}

// DeleteEvents removes every event of one kind for a community. It is only
// used to prune ritual snapshots once a ritual has ended.
func (d *Database) DeleteEvents(
	ctx context.Context,
	communityID string,
	kind string,
) (int64, error) {
	result := d.metadata.DB().WithContext(ctx).
		Where("community_id = ? AND kind = ?", communityID, kind).
		Delete(&models.Event{})
	if result.Error != nil {
		return 0, storageError("delete events", result.Error)
	}
	return result.RowsAffected, nil
}
