// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

package model

import (
	"time"

	"github.com/pgvector/pgvector-go"
)

const TableNameDeer = "deer"

// Deer is the persistent profile of one individual. Embeddings are stored
// L2-normalised; the primary embedding is the ANN search key, the alternate
// one only re-ranks the shortlist.
type Deer struct {
	ID               string           `gorm:"column:id;primaryKey;size:64" json:"id"`
	Sex              string           `gorm:"column:sex;not null;size:16;default:'unknown';index" json:"sex"`
	Embedding        pgvector.Vector  `gorm:"column:embedding;type:vector;not null" json:"-"`
	EmbeddingAlt     *pgvector.Vector `gorm:"column:embedding_alt;type:vector" json:"-"`
	EmbeddingVersion string           `gorm:"column:embedding_version;not null;size:64" json:"embedding_version"`
	FirstSeen        time.Time        `gorm:"column:first_seen;not null" json:"first_seen"`
	LastSeen         time.Time        `gorm:"column:last_seen;not null" json:"last_seen"`
	SightingCount    int              `gorm:"column:sighting_count;not null;default:0" json:"sighting_count"`
	CreatedAt        time.Time        `gorm:"column:created_at;not null;default:now()" json:"created_at"`
	UpdatedAt        time.Time        `gorm:"column:updated_at;not null;default:now()" json:"updated_at"`
}

// TableName Deer's table name
func (*Deer) TableName() string {
	return TableNameDeer
}

// DeerCandidate is a Deer row scored by the vector index.
type DeerCandidate struct {
	Deer
	Similarity float64 `gorm:"column:similarity" json:"similarity"`
}
