// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

package database

import (
	"github.com/wildsight/antler/pkg/sql"
	"gorm.io/gorm"
)

// BaseFacade is the base structure for all Facades, providing DB access
// capability. A zero BaseFacade resolves the process-wide default
// connection lazily; withDB pins a specific handle, which is how the
// transactional facades and the test facades are built.
type BaseFacade struct {
	db *gorm.DB
}

// getDB returns the pinned handle if one was injected, otherwise the
// default connection.
func (f *BaseFacade) getDB() *gorm.DB {
	if f.db != nil {
		return f.db
	}
	return sql.GetDefaultDB()
}

// withDB returns a new BaseFacade bound to the given handle.
func (f *BaseFacade) withDB(db *gorm.DB) BaseFacade {
	return BaseFacade{db: db}
}
