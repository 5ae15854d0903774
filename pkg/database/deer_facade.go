// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

package database

import (
	"context"
	"errors"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/wildsight/antler/pkg/database/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DeerFacadeInterface defines the database operation interface for individual profiles
type DeerFacadeInterface interface {
	// InsertProfile creates a new profile; callable from inside the Re-ID
	// transaction via WithDB
	InsertProfile(ctx context.Context, deer *model.Deer) error

	// Get retrieves a profile by ID; returns nil when absent
	Get(ctx context.Context, id string) (*model.Deer, error)

	// NearestProfiles returns the k profiles nearest to vec by cosine
	// similarity through the ANN index, restricted to the given sex when
	// it is a known value
	NearestProfiles(ctx context.Context, vec pgvector.Vector, sexFilter string, k int) ([]*model.DeerCandidate, error)

	// LockProfileForUpdate blocks until the caller holds the exclusive row
	// lock, then returns the current row. Must run inside a transaction.
	// Returns nil when the profile vanished before the lock was granted.
	LockProfileForUpdate(ctx context.Context, id string) (*model.Deer, error)

	// UpdateProfile applies a patch atomically; last writer wins under the
	// row lock
	UpdateProfile(ctx context.Context, id string, patch map[string]interface{}) error

	// RecordSighting widens the first/last seen window to include ts and
	// increments sighting_count
	RecordSighting(ctx context.Context, id string, ts time.Time) error

	// List returns profiles ordered by creation, newest last
	List(ctx context.Context, limit, offset int) ([]*model.Deer, error)

	// Count returns the number of profiles
	Count(ctx context.Context) (int64, error)

	// Delete removes a profile row (compaction path)
	Delete(ctx context.Context, id string) error

	// WithDB method
	WithDB(db *gorm.DB) DeerFacadeInterface
}

// DeerFacade implements DeerFacadeInterface
type DeerFacade struct {
	BaseFacade
}

// NewDeerFacade creates a new DeerFacade instance
func NewDeerFacade() DeerFacadeInterface {
	return &DeerFacade{}
}

func (f *DeerFacade) WithDB(db *gorm.DB) DeerFacadeInterface {
	return &DeerFacade{
		BaseFacade: f.withDB(db),
	}
}

// InsertProfile creates a new profile
func (f *DeerFacade) InsertProfile(ctx context.Context, deer *model.Deer) error {
	db := f.getDB().WithContext(ctx)
	return db.Create(deer).Error
}

// Get retrieves a profile by ID
func (f *DeerFacade) Get(ctx context.Context, id string) (*model.Deer, error) {
	db := f.getDB().WithContext(ctx)
	var deer model.Deer
	err := db.Where("id = ?", id).First(&deer).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &deer, nil
}

// NearestProfiles runs the first-pass candidate search. `<=>` is cosine
// distance, so similarity is its complement and ordering by the operator
// keeps the ANN index usable. A sexFilter of "" or unknown disables the
// restriction.
func (f *DeerFacade) NearestProfiles(ctx context.Context, vec pgvector.Vector, sexFilter string, k int) ([]*model.DeerCandidate, error) {
	db := f.getDB().WithContext(ctx)

	query := db.Model(&model.Deer{}).
		Select("deer.*, 1 - (embedding <=> ?) AS similarity", vec)

	if sexFilter != "" && sexFilter != model.SexUnknown {
		query = query.Where("sex = ?", sexFilter)
	}

	var candidates []*model.DeerCandidate
	err := query.
		Clauses(clause.OrderBy{
			Expression: clause.Expr{SQL: "embedding <=> ?", Vars: []interface{}{vec}},
		}).
		Limit(k).
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}
	return candidates, nil
}

// LockProfileForUpdate acquires the exclusive row lock on a profile
func (f *DeerFacade) LockProfileForUpdate(ctx context.Context, id string) (*model.Deer, error) {
	db := f.getDB().WithContext(ctx)

	var deer model.Deer
	err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&deer).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &deer, nil
}

// UpdateProfile applies a patch atomically
func (f *DeerFacade) UpdateProfile(ctx context.Context, id string, patch map[string]interface{}) error {
	db := f.getDB().WithContext(ctx)

	if _, ok := patch["updated_at"]; !ok {
		patch["updated_at"] = time.Now()
	}

	result := db.Model(&model.Deer{}).
		Where("id = ?", id).
		Updates(patch)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// RecordSighting widens the seen window and bumps the counter. LEAST and
// GREATEST keep the invariant first_seen <= last_seen even when a backfill
// assigns an image older than the profile.
func (f *DeerFacade) RecordSighting(ctx context.Context, id string, ts time.Time) error {
	db := f.getDB().WithContext(ctx)

	result := db.Model(&model.Deer{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"sighting_count": gorm.Expr("sighting_count + 1"),
			"first_seen":     gorm.Expr("LEAST(first_seen, ?)", ts),
			"last_seen":      gorm.Expr("GREATEST(last_seen, ?)", ts),
			"updated_at":     time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// List returns profiles ordered by creation
func (f *DeerFacade) List(ctx context.Context, limit, offset int) ([]*model.Deer, error) {
	db := f.getDB().WithContext(ctx)
	var deers []*model.Deer
	query := db.Order("created_at ASC, id ASC")
	if limit > 0 {
		query = query.Limit(limit).Offset(offset)
	}
	if err := query.Find(&deers).Error; err != nil {
		return nil, err
	}
	return deers, nil
}

// Count returns the number of profiles
func (f *DeerFacade) Count(ctx context.Context) (int64, error) {
	db := f.getDB().WithContext(ctx)
	var count int64
	err := db.Model(&model.Deer{}).Count(&count).Error
	return count, err
}

// Delete removes a profile row
func (f *DeerFacade) Delete(ctx context.Context, id string) error {
	db := f.getDB().WithContext(ctx)
	return db.Where("id = ?", id).Delete(&model.Deer{}).Error
}
