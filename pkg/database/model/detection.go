// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

package model

import (
	"time"

	"github.com/wildsight/antler/pkg/geometry"
)

const TableNameDetection = "detection"

// Detection is one detector box on one image. Duplicates, boxes that
// overlap a higher-confidence box in the same image, are persisted for
// audit but never re-identified.
type Detection struct {
	ID           string    `gorm:"column:id;primaryKey;size:64" json:"id"`
	ImageID      string    `gorm:"column:image_id;not null;size:64;index" json:"image_id"`
	BboxX        int       `gorm:"column:bbox_x;not null" json:"bbox_x"`
	BboxY        int       `gorm:"column:bbox_y;not null" json:"bbox_y"`
	BboxW        int       `gorm:"column:bbox_w;not null" json:"bbox_w"`
	BboxH        int       `gorm:"column:bbox_h;not null" json:"bbox_h"`
	Confidence   float64   `gorm:"column:confidence;not null" json:"confidence"`
	Class        string    `gorm:"column:class;not null;size:32" json:"class"`
	DeerID       *string   `gorm:"column:deer_id;size:64;index" json:"deer_id,omitempty"`
	BurstGroupID *string   `gorm:"column:burst_group_id;size:64;index" json:"burst_group_id,omitempty"`
	IsDuplicate  bool      `gorm:"column:is_duplicate;not null;default:false" json:"is_duplicate"`
	CreatedAt    time.Time `gorm:"column:created_at;not null;default:now()" json:"created_at"`
}

// TableName Detection's table name
func (*Detection) TableName() string {
	return TableNameDetection
}

// EligibleForReid reports whether this detection may enter, or re-enter,
// the Re-ID stage.
func (d *Detection) EligibleForReid() bool {
	return !d.IsDuplicate && d.DeerID == nil && IsDeerClass(d.Class)
}

// Box returns the bounding box as a rectangle in image pixels.
func (d *Detection) Box() geometry.Rect {
	return geometry.Rect{X: d.BboxX, Y: d.BboxY, W: d.BboxW, H: d.BboxH}
}
