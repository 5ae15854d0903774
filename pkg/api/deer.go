// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wildsight/antler/pkg/errors"
	"github.com/wildsight/antler/pkg/model/rest"
)

// recentDetectionLimit bounds the detection sample on the profile detail.
const recentDetectionLimit = 10

// ListDeer handles GET /deer - paginated profile listing with sighting
// summaries (first/last seen, sighting count)
func (h *Handlers) ListDeer(c *gin.Context) {
	page, pageSize, ok := parsePage(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	total, err := h.facade.GetDeer().Count(ctx)
	if err != nil {
		_ = c.Error(errors.NewError().WithCode(errors.CodeDatabaseError).
			WithError(err).WithMessage("Failed to count profiles"))
		return
	}

	deer, err := h.facade.GetDeer().List(ctx, pageSize, (page-1)*pageSize)
	if err != nil {
		_ = c.Error(errors.NewError().WithCode(errors.CodeDatabaseError).
			WithError(err).WithMessage("Failed to list profiles"))
		return
	}

	c.JSON(http.StatusOK, rest.SuccessResp(ctx, rest.NewListData(deer, int(total))))
}

// GetDeer handles GET /deer/:id - one profile plus a sample of its most
// recent detections
func (h *Handlers) GetDeer(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	deer, err := h.facade.GetDeer().Get(ctx, id)
	if err != nil {
		_ = c.Error(errors.NewError().WithCode(errors.CodeDatabaseError).
			WithError(err).WithMessagef("Failed to get profile %s", id))
		return
	}
	if deer == nil {
		_ = c.Error(errors.NewError().WithCode(errors.RequestDataNotExisted).
			WithMessagef("Profile %s not found", id))
		return
	}

	detections, err := h.facade.GetDetection().ListByDeer(ctx, id, recentDetectionLimit)
	if err != nil {
		_ = c.Error(errors.NewError().WithCode(errors.CodeDatabaseError).
			WithError(err).WithMessagef("Failed to list detections of profile %s", id))
		return
	}
	count, err := h.facade.GetDetection().CountByDeer(ctx, id)
	if err != nil {
		_ = c.Error(errors.NewError().WithCode(errors.CodeDatabaseError).
			WithError(err).WithMessagef("Failed to count detections of profile %s", id))
		return
	}

	c.JSON(http.StatusOK, rest.SuccessResp(ctx, gin.H{
		"deer":              deer,
		"detection_count":   count,
		"recent_detections": detections,
	}))
}
