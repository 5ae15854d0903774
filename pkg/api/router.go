// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

// Package api serves the read and operator surface of the pipeline:
// queue depths and dead letters, profiles with their sighting summaries,
// per-image detections, and the enqueue veneer the upstream gateway calls
// after committing an image row. Handlers are thin over the facades and
// the queue; nothing here touches image bytes or vectors.
package api

import (
	"github.com/gin-gonic/gin"
	"github.com/wildsight/antler/pkg/database"
	"github.com/wildsight/antler/pkg/queue"
)

// Handlers carries the shared pipeline handles the endpoints read from.
type Handlers struct {
	facade database.FacadeInterface
	queue  queue.Queue
}

// NewHandlers creates a Handlers over the given facade and queue
func NewHandlers(facade database.FacadeInterface, q queue.Queue) *Handlers {
	return &Handlers{
		facade: facade,
		queue:  q,
	}
}

// RegisterRouter binds the endpoint set onto the versioned group. Matches
// router.GroupRegister so bootstrap can hand it to router.RegisterGroup.
func (h *Handlers) RegisterRouter(group *gin.RouterGroup) error {
	queueGroup := group.Group("/queues")
	{
		queueGroup.GET("/stats", h.GetQueueStats)
		queueGroup.GET("/:name/dead", h.ListDeadTasks)
		queueGroup.POST("/:name/dead/requeue", h.RequeueDeadTasks)
	}

	deerGroup := group.Group("/deer")
	{
		deerGroup.GET("", h.ListDeer)
		deerGroup.GET("/:id", h.GetDeer)
	}

	imageGroup := group.Group("/images")
	{
		imageGroup.GET("/:id/detections", h.ListImageDetections)
		imageGroup.POST("/:id/enqueue", h.EnqueueImage)
	}
	return nil
}
