// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wildsight/antler/pkg/database/model"
	antlererrors "github.com/wildsight/antler/pkg/errors"
	"gorm.io/gorm"
)

// ErrAlreadyAssigned is returned when a deer assignment loses the
// deer_id-is-null compare-and-swap; the detection already belongs to a
// profile and the caller should treat its own work as done. It carries the
// status-conflict sentinel so the taxonomy files it with the lost races.
var ErrAlreadyAssigned = fmt.Errorf("detection already assigned to a profile: %w", antlererrors.ErrStatusConflict)

// DetectionFacadeInterface defines the database operation interface for detections
type DetectionFacadeInterface interface {
	// BulkInsert inserts all rows in one statement; atomic within the
	// caller's transaction
	BulkInsert(ctx context.Context, rows []*model.Detection) error

	// Get retrieves a detection by ID; returns nil when absent
	Get(ctx context.Context, id string) (*model.Detection, error)

	// ListByImage returns all detections of an image
	ListByImage(ctx context.Context, imageID string) ([]*model.Detection, error)

	// BurstWindow returns the non-duplicate deer-class detections whose
	// image sits at locationID within [center-delta, center+delta],
	// bounds inclusive
	BurstWindow(ctx context.Context, locationID string, center time.Time, delta time.Duration) ([]*model.Detection, error)

	// AssignBurstGroup stamps groupID on every listed detection that does
	// not already carry a burst group
	AssignBurstGroup(ctx context.Context, ids []string, groupID string) error

	// AssignDeer sets deer_id if and only if it is still null
	AssignDeer(ctx context.Context, detectionID, deerID string) error

	// ListUnassigned returns eligible detections of completed images that
	// still lack a profile, oldest first
	ListUnassigned(ctx context.Context, limit, offset int) ([]*model.Detection, error)

	// ListByDeer returns non-duplicate detections assigned to a profile
	ListByDeer(ctx context.Context, deerID string, limit int) ([]*model.Detection, error)

	// CountByDeer counts non-duplicate detections assigned to a profile
	CountByDeer(ctx context.Context, deerID string) (int64, error)

	// ReassignDeer moves every detection from one profile to another and
	// returns the number of rows moved
	ReassignDeer(ctx context.Context, fromDeerID, toDeerID string) (int64, error)

	// WithDB method
	WithDB(db *gorm.DB) DetectionFacadeInterface
}

// DetectionFacade implements DetectionFacadeInterface
type DetectionFacade struct {
	BaseFacade
}

// NewDetectionFacade creates a new DetectionFacade instance
func NewDetectionFacade() DetectionFacadeInterface {
	return &DetectionFacade{}
}

func (f *DetectionFacade) WithDB(db *gorm.DB) DetectionFacadeInterface {
	return &DetectionFacade{
		BaseFacade: f.withDB(db),
	}
}

// BulkInsert inserts all rows in one statement
func (f *DetectionFacade) BulkInsert(ctx context.Context, rows []*model.Detection) error {
	if len(rows) == 0 {
		return nil
	}
	db := f.getDB().WithContext(ctx)
	return db.Create(rows).Error
}

// Get retrieves a detection by ID
func (f *DetectionFacade) Get(ctx context.Context, id string) (*model.Detection, error) {
	db := f.getDB().WithContext(ctx)
	var det model.Detection
	err := db.Where("id = ?", id).First(&det).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &det, nil
}

// ListByImage returns all detections of an image, highest confidence first
func (f *DetectionFacade) ListByImage(ctx context.Context, imageID string) ([]*model.Detection, error) {
	db := f.getDB().WithContext(ctx)
	var dets []*model.Detection
	err := db.Where("image_id = ?", imageID).
		Order("confidence DESC, id ASC").
		Find(&dets).Error
	if err != nil {
		return nil, err
	}
	return dets, nil
}

// BurstWindow returns the non-duplicate deer-class detections around a
// timestamp at one camera site. Both window bounds are inclusive: a frame
// exactly delta away still belongs to the burst. Duplicates and `other`
// detections never join a burst because they never carry a deer_id.
func (f *DetectionFacade) BurstWindow(ctx context.Context, locationID string, center time.Time, delta time.Duration) ([]*model.Detection, error) {
	db := f.getDB().WithContext(ctx)

	var dets []*model.Detection
	err := db.Model(&model.Detection{}).
		Joins("JOIN image ON image.id = detection.image_id").
		Where("image.location_id = ?", locationID).
		Where("image.timestamp >= ? AND image.timestamp <= ?",
			center.Add(-delta), center.Add(delta)).
		Where("detection.is_duplicate = ?", false).
		Where("detection.class IN ?", model.DeerClassList).
		Order("image.timestamp ASC, detection.id ASC").
		Find(&dets).Error
	if err != nil {
		return nil, err
	}
	return dets, nil
}

// AssignBurstGroup stamps groupID onto the listed detections, skipping any
// that already carry one so an established group id is never overwritten.
func (f *DetectionFacade) AssignBurstGroup(ctx context.Context, ids []string, groupID string) error {
	if len(ids) == 0 {
		return nil
	}
	db := f.getDB().WithContext(ctx)
	return db.Model(&model.Detection{}).
		Where("id IN ? AND burst_group_id IS NULL", ids).
		Update("burst_group_id", groupID).Error
}

// AssignDeer sets deer_id under a null-guard so a detection is assigned at
// most once. Losing the guard means another worker finished first.
func (f *DetectionFacade) AssignDeer(ctx context.Context, detectionID, deerID string) error {
	db := f.getDB().WithContext(ctx)

	result := db.Model(&model.Detection{}).
		Where("id = ? AND deer_id IS NULL", detectionID).
		Update("deer_id", deerID)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAlreadyAssigned
	}
	return nil
}

// ListUnassigned returns eligible detections of completed images that still
// lack a profile, oldest first so backfills drain in arrival order.
func (f *DetectionFacade) ListUnassigned(ctx context.Context, limit, offset int) ([]*model.Detection, error) {
	db := f.getDB().WithContext(ctx)

	var dets []*model.Detection
	query := db.Model(&model.Detection{}).
		Joins("JOIN image ON image.id = detection.image_id").
		Where("image.processing_status = ?", model.ImageStatusCompleted).
		Where("detection.deer_id IS NULL").
		Where("detection.is_duplicate = ?", false).
		Where("detection.class IN ?", model.DeerClassList).
		Order("detection.created_at ASC, detection.id ASC")
	if limit > 0 {
		query = query.Limit(limit).Offset(offset)
	}
	if err := query.Find(&dets).Error; err != nil {
		return nil, err
	}
	return dets, nil
}

// ListByDeer returns non-duplicate detections assigned to a profile
func (f *DetectionFacade) ListByDeer(ctx context.Context, deerID string, limit int) ([]*model.Detection, error) {
	db := f.getDB().WithContext(ctx)
	var dets []*model.Detection
	query := db.Where("deer_id = ? AND is_duplicate = ?", deerID, false).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&dets).Error; err != nil {
		return nil, err
	}
	return dets, nil
}

// CountByDeer counts non-duplicate detections assigned to a profile
func (f *DetectionFacade) CountByDeer(ctx context.Context, deerID string) (int64, error) {
	db := f.getDB().WithContext(ctx)
	var count int64
	err := db.Model(&model.Detection{}).
		Where("deer_id = ? AND is_duplicate = ?", deerID, false).
		Count(&count).Error
	return count, err
}

// ReassignDeer moves every detection from one profile to another
func (f *DetectionFacade) ReassignDeer(ctx context.Context, fromDeerID, toDeerID string) (int64, error) {
	db := f.getDB().WithContext(ctx)
	result := db.Model(&model.Detection{}).
		Where("deer_id = ?", fromDeerID).
		Update("deer_id", toDeerID)
	return result.RowsAffected, result.Error
}
