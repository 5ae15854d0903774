// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

package database

import (
	"context"
	"errors"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/wildsight/antler/pkg/database/model"
	"gorm.io/gorm"
)

// Location rows are written out of band and read on every burst-window
// lookup, so reads go through a small in-process cache.
const (
	locationCacheTTL     = 5 * time.Minute
	locationCacheCleanup = 10 * time.Minute
)

// LocationFacadeInterface defines the database operation interface for camera sites
type LocationFacadeInterface interface {
	// Create creates a new location
	Create(ctx context.Context, loc *model.Location) error

	// Get retrieves a location by ID; returns nil when absent
	Get(ctx context.Context, id string) (*model.Location, error)

	// GetByName retrieves a location by its unique name; returns nil when absent
	GetByName(ctx context.Context, name string) (*model.Location, error)

	// List returns all locations
	List(ctx context.Context) ([]*model.Location, error)

	// Delete removes a location; refused while images still reference it
	Delete(ctx context.Context, id string) error

	// WithDB method
	WithDB(db *gorm.DB) LocationFacadeInterface
}

// ErrLocationInUse is returned by Delete while images still reference the row.
var ErrLocationInUse = errors.New("location still referenced by images")

// LocationFacade implements LocationFacadeInterface
type LocationFacade struct {
	BaseFacade
	cache *cache.Cache
}

// NewLocationFacade creates a new LocationFacade instance
func NewLocationFacade() LocationFacadeInterface {
	return &LocationFacade{
		cache: cache.New(locationCacheTTL, locationCacheCleanup),
	}
}

func (f *LocationFacade) WithDB(db *gorm.DB) LocationFacadeInterface {
	return &LocationFacade{
		BaseFacade: f.withDB(db),
		cache:      f.cache,
	}
}

// Create creates a new location
func (f *LocationFacade) Create(ctx context.Context, loc *model.Location) error {
	db := f.getDB().WithContext(ctx)
	if err := db.Create(loc).Error; err != nil {
		return err
	}
	f.cache.Set(loc.ID, loc, cache.DefaultExpiration)
	return nil
}

// Get retrieves a location by ID
func (f *LocationFacade) Get(ctx context.Context, id string) (*model.Location, error) {
	if cached, ok := f.cache.Get(id); ok {
		return cached.(*model.Location), nil
	}

	db := f.getDB().WithContext(ctx)
	var loc model.Location
	err := db.Where("id = ?", id).First(&loc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	f.cache.Set(id, &loc, cache.DefaultExpiration)
	return &loc, nil
}

// GetByName retrieves a location by its unique name
func (f *LocationFacade) GetByName(ctx context.Context, name string) (*model.Location, error) {
	db := f.getDB().WithContext(ctx)
	var loc model.Location
	err := db.Where("name = ?", name).First(&loc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &loc, nil
}

// List returns all locations ordered by name
func (f *LocationFacade) List(ctx context.Context) ([]*model.Location, error) {
	db := f.getDB().WithContext(ctx)
	var locs []*model.Location
	if err := db.Order("name ASC").Find(&locs).Error; err != nil {
		return nil, err
	}
	return locs, nil
}

// Delete removes a location unless images still reference it.
func (f *LocationFacade) Delete(ctx context.Context, id string) error {
	db := f.getDB().WithContext(ctx)

	var count int64
	if err := db.Model(&model.Image{}).Where("location_id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrLocationInUse
	}

	if err := db.Where("id = ?", id).Delete(&model.Location{}).Error; err != nil {
		return err
	}
	f.cache.Delete(id)
	return nil
}
