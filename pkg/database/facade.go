// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

package database

import (
	"context"

	"gorm.io/gorm"
)

// FacadeInterface defines the Facade interface for unit testing and mocking
type FacadeInterface interface {
	// GetLocation returns the Location Facade interface
	GetLocation() LocationFacadeInterface
	// GetImage returns the Image Facade interface
	GetImage() ImageFacadeInterface
	// GetDetection returns the Detection Facade interface
	GetDetection() DetectionFacadeInterface
	// GetDeer returns the Deer Facade interface
	GetDeer() DeerFacadeInterface
	// GetQueueTask returns the QueueTask Facade interface
	GetQueueTask() QueueTaskFacadeInterface
	// WithDB returns a new Facade instance pinned to the given handle
	WithDB(db *gorm.DB) FacadeInterface
	// Transaction runs fn inside one database transaction; every facade
	// reachable from the argument shares that transaction
	Transaction(ctx context.Context, fn func(tx FacadeInterface) error) error
}

// Facade is the unified entry point for database operations, aggregating all sub-Facades
type Facade struct {
	BaseFacade
	Location  LocationFacadeInterface
	Image     ImageFacadeInterface
	Detection DetectionFacadeInterface
	Deer      DeerFacadeInterface
	QueueTask QueueTaskFacadeInterface
}

// NewFacade creates a new Facade instance
func NewFacade() *Facade {
	return &Facade{
		Location:  NewLocationFacade(),
		Image:     NewImageFacade(),
		Detection: NewDetectionFacade(),
		Deer:      NewDeerFacade(),
		QueueTask: NewQueueTaskFacade(),
	}
}

// GetLocation returns the Location Facade interface
func (f *Facade) GetLocation() LocationFacadeInterface {
	return f.Location
}

// GetImage returns the Image Facade interface
func (f *Facade) GetImage() ImageFacadeInterface {
	return f.Image
}

// GetDetection returns the Detection Facade interface
func (f *Facade) GetDetection() DetectionFacadeInterface {
	return f.Detection
}

// GetDeer returns the Deer Facade interface
func (f *Facade) GetDeer() DeerFacadeInterface {
	return f.Deer
}

// GetQueueTask returns the QueueTask Facade interface
func (f *Facade) GetQueueTask() QueueTaskFacadeInterface {
	return f.QueueTask
}

// WithDB returns a new Facade instance, all sub-Facades pinned to db
func (f *Facade) WithDB(db *gorm.DB) FacadeInterface {
	return &Facade{
		BaseFacade: f.withDB(db),
		Location:   f.Location.WithDB(db),
		Image:      f.Image.WithDB(db),
		Detection:  f.Detection.WithDB(db),
		Deer:       f.Deer.WithDB(db),
		QueueTask:  f.QueueTask.WithDB(db),
	}
}

// Transaction runs fn inside a single database transaction. fn receives a
// Facade whose sub-Facades all write through the transaction handle, so a
// mixed detection/image/deer mutation commits or rolls back as one unit.
func (f *Facade) Transaction(ctx context.Context, fn func(tx FacadeInterface) error) error {
	return f.getDB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(f.WithDB(tx))
	})
}

// Global default Facade instance
var defaultFacade = NewFacade()

// GetFacade returns the default Facade instance
func GetFacade() FacadeInterface {
	return defaultFacade
}
