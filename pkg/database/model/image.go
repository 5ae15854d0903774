// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

package model

import "time"

const TableNameImage = "image"

// Image is one captured trail-camera still. `(location_id, filename)` is
// unique; `path` is the absolute location of the stored bytes.
type Image struct {
	ID               string    `gorm:"column:id;primaryKey;size:64" json:"id"`
	LocationID       string    `gorm:"column:location_id;not null;size:64;index:idx_image_location_ts,priority:1;uniqueIndex:uniq_image_location_filename,priority:1" json:"location_id"`
	Path             string    `gorm:"column:path;not null;size:1024" json:"path"`
	Filename         string    `gorm:"column:filename;not null;size:512;uniqueIndex:uniq_image_location_filename,priority:2" json:"filename"`
	Timestamp        time.Time `gorm:"column:timestamp;not null;index:idx_image_location_ts,priority:2" json:"timestamp"`
	ProcessingStatus string    `gorm:"column:processing_status;not null;size:32;default:'pending';index" json:"processing_status"`
	ErrorMessage     string    `gorm:"column:error_message;size:1024" json:"error_message,omitempty"`
	CreatedAt        time.Time `gorm:"column:created_at;not null;default:now()" json:"created_at"`
	UpdatedAt        time.Time `gorm:"column:updated_at;not null;default:now()" json:"updated_at"`
}

// TableName Image's table name
func (*Image) TableName() string {
	return TableNameImage
}
