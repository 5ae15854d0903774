// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wildsight/antler/pkg/database/model"
	"github.com/wildsight/antler/pkg/errors"
	"github.com/wildsight/antler/pkg/model/rest"
)

// ListImageDetections handles GET /images/:id/detections - every detector
// box persisted for one image, duplicates included
func (h *Handlers) ListImageDetections(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	image, err := h.facade.GetImage().Get(ctx, id)
	if err != nil {
		_ = c.Error(errors.NewError().WithCode(errors.CodeDatabaseError).
			WithError(err).WithMessagef("Failed to get image %s", id))
		return
	}
	if image == nil {
		_ = c.Error(errors.NewError().WithCode(errors.RequestDataNotExisted).
			WithMessagef("Image %s not found", id))
		return
	}

	detections, err := h.facade.GetDetection().ListByImage(ctx, id)
	if err != nil {
		_ = c.Error(errors.NewError().WithCode(errors.CodeDatabaseError).
			WithError(err).WithMessagef("Failed to list detections of image %s", id))
		return
	}

	c.JSON(http.StatusOK, rest.SuccessResp(ctx, gin.H{
		"image":      image,
		"detections": detections,
	}))
}

// EnqueueImage handles POST /images/:id/enqueue - the ingest veneer. The
// gateway calls it right after committing a pending image row; operators
// call it to re-run a failed or completed image. A processing image is
// owned by a worker and is rejected rather than double-queued.
func (h *Handlers) EnqueueImage(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	image, err := h.facade.GetImage().Get(ctx, id)
	if err != nil {
		_ = c.Error(errors.NewError().WithCode(errors.CodeDatabaseError).
			WithError(err).WithMessagef("Failed to get image %s", id))
		return
	}
	if image == nil {
		_ = c.Error(errors.NewError().WithCode(errors.RequestDataNotExisted).
			WithMessagef("Image %s not found", id))
		return
	}

	reset := false
	switch image.ProcessingStatus {
	case model.ImageStatusPending:
		// fresh row, enqueue as-is
	case model.ImageStatusProcessing:
		_ = c.Error(errors.NewError().WithCode(errors.InvalidOperation).
			WithMessagef("Image %s is processing", id))
		return
	default:
		// terminal: put it back to pending before queueing again
		if err := h.facade.GetImage().ResetForReprocess(ctx, id); err != nil {
			_ = c.Error(errors.NewError().WithCode(errors.CodeDatabaseError).
				WithError(err).WithMessagef("Failed to reset image %s", id))
			return
		}
		reset = true
	}

	if err := h.queue.Enqueue(ctx, model.QueueDetect, id); err != nil {
		_ = c.Error(errors.NewError().WithCode(errors.CodeDatabaseError).
			WithError(err).WithMessagef("Failed to enqueue image %s", id))
		return
	}

	c.JSON(http.StatusOK, rest.SuccessResp(ctx, gin.H{
		"image_id": id,
		"enqueued": true,
		"reset":    reset,
	}))
}
