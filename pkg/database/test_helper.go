// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

package database

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	antlersql "github.com/wildsight/antler/pkg/sql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// TestHelper provides common test utilities for database tests. The
// production queries use postgres-only constructs (SKIP LOCKED, the vector
// operators), so tests run against sqlmock through the postgres dialector
// and assert on the generated SQL instead of an in-memory engine.
type TestHelper struct {
	DB   *gorm.DB
	Mock sqlmock.Sqlmock
	T    *testing.T
}

// NewTestHelper creates a new TestHelper backed by sqlmock
func NewTestHelper(t *testing.T) *TestHelper {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err, "Failed to open sqlmock database")
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		Logger: antlersql.NullLogger{},
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true,
		},
	})
	require.NoError(t, err, "Failed to open gorm over sqlmock")

	return &TestHelper{
		DB:   db,
		Mock: mock,
		T:    t,
	}
}

// Facade returns a Facade pinned to the mocked connection
func (h *TestHelper) Facade() *Facade {
	return NewFacade().WithDB(h.DB).(*Facade)
}

// CreateTestContext creates a test context
func (h *TestHelper) CreateTestContext() context.Context {
	return context.Background()
}

// ExpectationsWereMet asserts every queued expectation was consumed
func (h *TestHelper) ExpectationsWereMet() {
	require.NoError(h.T, h.Mock.ExpectationsWereMet())
}
