// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

package database

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wildsight/antler/pkg/database/model"
	antlererrors "github.com/wildsight/antler/pkg/errors"
)

func TestImageFacade_UpsertImageStatus(t *testing.T) {
	helper := NewTestHelper(t)
	facade := helper.Facade()
	ctx := helper.CreateTestContext()

	helper.Mock.ExpectBegin()
	helper.Mock.ExpectExec(`UPDATE "image" SET "processing_status"=\$1,"updated_at"=\$2 WHERE id = \$3 AND processing_status = \$4`).
		WithArgs(model.ImageStatusProcessing, sqlmock.AnyArg(), "img-1", model.ImageStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))
	helper.Mock.ExpectCommit()

	err := facade.GetImage().UpsertImageStatus(ctx, "img-1", model.ImageStatusPending, model.ImageStatusProcessing)
	require.NoError(t, err)
	helper.ExpectationsWereMet()
}

func TestImageFacade_UpsertImageStatusConflict(t *testing.T) {
	helper := NewTestHelper(t)
	facade := helper.Facade()
	ctx := helper.CreateTestContext()

	// Zero rows affected: the row is no longer in the expected status.
	helper.Mock.ExpectBegin()
	helper.Mock.ExpectExec(`UPDATE "image" SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	helper.Mock.ExpectCommit()

	err := facade.GetImage().UpsertImageStatus(ctx, "img-1", model.ImageStatusPending, model.ImageStatusProcessing)
	require.ErrorIs(t, err, antlererrors.ErrStatusConflict)
	helper.ExpectationsWereMet()
}

func TestImageFacade_GetNotFound(t *testing.T) {
	helper := NewTestHelper(t)
	facade := helper.Facade()
	ctx := helper.CreateTestContext()

	helper.Mock.ExpectQuery(`SELECT \* FROM "image" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	img, err := facade.GetImage().Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, img)
	helper.ExpectationsWereMet()
}

func TestImageFacade_GetByLocationAndFilename(t *testing.T) {
	helper := NewTestHelper(t)
	facade := helper.Facade()
	ctx := helper.CreateTestContext()

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "location_id", "path", "filename", "timestamp", "processing_status"}).
		AddRow("img-1", "loc-1", "/data/north/a.jpg", "a.jpg", now, model.ImageStatusPending)
	helper.Mock.ExpectQuery(`SELECT \* FROM "image" WHERE location_id = \$1 AND filename = \$2`).
		WithArgs("loc-1", "a.jpg", sqlmock.AnyArg()).
		WillReturnRows(rows)

	img, err := facade.GetImage().GetByLocationAndFilename(ctx, "loc-1", "a.jpg")
	require.NoError(t, err)
	require.NotNil(t, img)
	assert.Equal(t, "img-1", img.ID)
	assert.Equal(t, model.ImageStatusPending, img.ProcessingStatus)
	helper.ExpectationsWereMet()
}

func TestImageFacade_MarkFailedLeavesTerminalAlone(t *testing.T) {
	helper := NewTestHelper(t)
	facade := helper.Facade()
	ctx := helper.CreateTestContext()

	// The guard restricts the update to non-terminal statuses, so a late
	// failure report against a completed image affects zero rows.
	helper.Mock.ExpectBegin()
	helper.Mock.ExpectExec(`UPDATE "image" SET .* WHERE id = \$\d+ AND processing_status IN \(\$\d+,\$\d+\)`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	helper.Mock.ExpectCommit()

	err := facade.GetImage().MarkFailed(ctx, "img-1", "corrupt: bad magic")
	require.ErrorIs(t, err, antlererrors.ErrStatusConflict)
	helper.ExpectationsWereMet()
}

func TestImageFacade_CountByStatus(t *testing.T) {
	helper := NewTestHelper(t)
	facade := helper.Facade()
	ctx := helper.CreateTestContext()

	rows := sqlmock.NewRows([]string{"processing_status", "count"}).
		AddRow(model.ImageStatusPending, int64(3)).
		AddRow(model.ImageStatusCompleted, int64(12))
	helper.Mock.ExpectQuery(`SELECT processing_status, COUNT\(\*\) AS count FROM "image" GROUP BY`).
		WillReturnRows(rows)

	counts, err := facade.GetImage().CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), counts[model.ImageStatusPending])
	assert.Equal(t, int64(12), counts[model.ImageStatusCompleted])
	helper.ExpectationsWereMet()
}
