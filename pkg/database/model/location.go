// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

package model

import "time"

const TableNameLocation = "location"

// Location is a fixed camera site. Rows are created out of band and are
// immutable during pipeline operation.
type Location struct {
	ID        string    `gorm:"column:id;primaryKey;size:64" json:"id"`
	Name      string    `gorm:"column:name;not null;size:128;uniqueIndex" json:"name"`
	Lat       *float64  `gorm:"column:lat" json:"lat,omitempty"`
	Lon       *float64  `gorm:"column:lon" json:"lon,omitempty"`
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now()" json:"created_at"`
}

// TableName Location's table name
func (*Location) TableName() string {
	return TableNameLocation
}
