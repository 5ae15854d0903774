// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

package database

import (
	"context"
	"errors"
	"time"

	"github.com/wildsight/antler/pkg/database/model"
	antlererrors "github.com/wildsight/antler/pkg/errors"
	"gorm.io/gorm"
)

// ImageFacadeInterface defines the database operation interface for images
type ImageFacadeInterface interface {
	// Create inserts a new image row
	Create(ctx context.Context, img *model.Image) error

	// Get retrieves an image by ID; returns nil when absent
	Get(ctx context.Context, id string) (*model.Image, error)

	// GetByLocationAndFilename resolves the ingest uniqueness key; returns nil when absent
	GetByLocationAndFilename(ctx context.Context, locationID, filename string) (*model.Image, error)

	// UpsertImageStatus performs a compare-and-swap on processing_status.
	// It fails with ErrStatusConflict when the row is no longer in `from`.
	UpsertImageStatus(ctx context.Context, id, from, to string) error

	// MarkFailed moves an image to failed with a short classification message,
	// regardless of its current non-terminal status
	MarkFailed(ctx context.Context, id, errorMessage string) error

	// ResetForReprocess forces a terminal image back to pending (operator path)
	ResetForReprocess(ctx context.Context, id string) error

	// ListByStatus returns up to limit images in the given status, oldest first
	ListByStatus(ctx context.Context, status string, limit, offset int) ([]*model.Image, error)

	// CountByStatus returns per-status row counts
	CountByStatus(ctx context.Context) (map[string]int64, error)

	// WithDB method
	WithDB(db *gorm.DB) ImageFacadeInterface
}

// ImageFacade implements ImageFacadeInterface
type ImageFacade struct {
	BaseFacade
}

// NewImageFacade creates a new ImageFacade instance
func NewImageFacade() ImageFacadeInterface {
	return &ImageFacade{}
}

func (f *ImageFacade) WithDB(db *gorm.DB) ImageFacadeInterface {
	return &ImageFacade{
		BaseFacade: f.withDB(db),
	}
}

// Create inserts a new image row
func (f *ImageFacade) Create(ctx context.Context, img *model.Image) error {
	db := f.getDB().WithContext(ctx)
	return db.Create(img).Error
}

// Get retrieves an image by ID
func (f *ImageFacade) Get(ctx context.Context, id string) (*model.Image, error) {
	db := f.getDB().WithContext(ctx)
	var img model.Image
	err := db.Where("id = ?", id).First(&img).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &img, nil
}

// GetByLocationAndFilename resolves the ingest uniqueness key
func (f *ImageFacade) GetByLocationAndFilename(ctx context.Context, locationID, filename string) (*model.Image, error) {
	db := f.getDB().WithContext(ctx)
	var img model.Image
	err := db.Where("location_id = ? AND filename = ?", locationID, filename).First(&img).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &img, nil
}

// UpsertImageStatus performs a compare-and-swap on processing_status. The
// WHERE clause carries the expected `from` status so concurrent consumers
// of the same image serialise here: exactly one swap wins, the rest see
// ErrStatusConflict and treat the image as already owned.
func (f *ImageFacade) UpsertImageStatus(ctx context.Context, id, from, to string) error {
	db := f.getDB().WithContext(ctx)

	result := db.Model(&model.Image{}).
		Where("id = ? AND processing_status = ?", id, from).
		Updates(map[string]interface{}{
			"processing_status": to,
			"updated_at":        time.Now(),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return antlererrors.ErrStatusConflict
	}
	return nil
}

// MarkFailed moves an image to failed with a short classification message.
// Terminal states are left alone so a late failure report cannot clobber a
// completed image.
func (f *ImageFacade) MarkFailed(ctx context.Context, id, errorMessage string) error {
	db := f.getDB().WithContext(ctx)

	result := db.Model(&model.Image{}).
		Where("id = ? AND processing_status IN ?", id,
			[]string{model.ImageStatusPending, model.ImageStatusProcessing}).
		Updates(map[string]interface{}{
			"processing_status": model.ImageStatusFailed,
			"error_message":     errorMessage,
			"updated_at":        time.Now(),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return antlererrors.ErrStatusConflict
	}
	return nil
}

// ResetForReprocess forces an image back to pending and clears its error.
// Operator path only; the pipeline itself never calls this.
func (f *ImageFacade) ResetForReprocess(ctx context.Context, id string) error {
	db := f.getDB().WithContext(ctx)

	result := db.Model(&model.Image{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"processing_status": model.ImageStatusPending,
			"error_message":     "",
			"updated_at":        time.Now(),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListByStatus returns up to limit images in the given status, oldest first
// so backfills drain in arrival order.
func (f *ImageFacade) ListByStatus(ctx context.Context, status string, limit, offset int) ([]*model.Image, error) {
	db := f.getDB().WithContext(ctx)
	var imgs []*model.Image
	query := db.Where("processing_status = ?", status).Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit).Offset(offset)
	}
	if err := query.Find(&imgs).Error; err != nil {
		return nil, err
	}
	return imgs, nil
}

// CountByStatus returns per-status row counts
func (f *ImageFacade) CountByStatus(ctx context.Context) (map[string]int64, error) {
	db := f.getDB().WithContext(ctx)

	type row struct {
		ProcessingStatus string
		Count            int64
	}
	var rows []row
	err := db.Model(&model.Image{}).
		Select("processing_status, COUNT(*) AS count").
		Group("processing_status").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.ProcessingStatus] = r.Count
	}
	return counts, nil
}
