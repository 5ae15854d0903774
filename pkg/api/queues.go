// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/wildsight/antler/pkg/database/model"
	"github.com/wildsight/antler/pkg/errors"
	"github.com/wildsight/antler/pkg/model/rest"
	"github.com/wildsight/antler/pkg/utils/sliceUtil"
	"github.com/wildsight/antler/pkg/utils/stringUtil"
)

// knownQueues is the closed set of queue names the API exposes.
var knownQueues = []string{model.QueueDetect, model.QueueReid}

func isKnownQueue(name string) bool {
	for _, q := range knownQueues {
		if q == name {
			return true
		}
	}
	return false
}

// GetQueueStats handles GET /queues/stats - per-status depth counts for
// every pipeline queue
func (h *Handlers) GetQueueStats(c *gin.Context) {
	stats := make(map[string]map[string]int64, len(knownQueues))
	for _, name := range knownQueues {
		counts, err := h.queue.Stats(c.Request.Context(), name)
		if err != nil {
			_ = c.Error(errors.NewError().WithCode(errors.CodeDatabaseError).
				WithError(err).WithMessagef("Failed to count queue %s", name))
			return
		}
		stats[name] = counts
	}
	c.JSON(http.StatusOK, rest.SuccessResp(c.Request.Context(), stats))
}

// ListDeadTasks handles GET /queues/:name/dead - paginated dead-letter
// listing for operator diagnosis
func (h *Handlers) ListDeadTasks(c *gin.Context) {
	name := c.Param("name")
	if !isKnownQueue(name) {
		_ = c.Error(errors.NewError().WithCode(errors.RequestParameterInvalid).
			WithMessagef("Unknown queue %s", name))
		return
	}

	page, pageSize, ok := parsePage(c)
	if !ok {
		return
	}

	tasks, err := h.queue.ListDead(c.Request.Context(), name, 0)
	if err != nil {
		_ = c.Error(errors.NewError().WithCode(errors.CodeDatabaseError).
			WithError(err).WithMessagef("Failed to list dead tasks of queue %s", name))
		return
	}

	rows, total := sliceUtil.Paginate(tasks, page, pageSize)
	c.JSON(http.StatusOK, rest.SuccessResp(c.Request.Context(), rest.NewListData(rows, total)))
}

// RequeueDeadTasks handles POST /queues/:name/dead/requeue - return every
// dead-lettered item of a queue to pending with a fresh retry budget
func (h *Handlers) RequeueDeadTasks(c *gin.Context) {
	name := c.Param("name")
	if !isKnownQueue(name) {
		_ = c.Error(errors.NewError().WithCode(errors.RequestParameterInvalid).
			WithMessagef("Unknown queue %s", name))
		return
	}

	n, err := h.queue.RequeueDead(c.Request.Context(), name)
	if err != nil {
		_ = c.Error(errors.NewError().WithCode(errors.CodeDatabaseError).
			WithError(err).WithMessagef("Failed to requeue dead tasks of queue %s", name))
		return
	}

	c.JSON(http.StatusOK, rest.SuccessResp(c.Request.Context(), gin.H{
		"queue":    name,
		"requeued": n,
	}))
}

// parsePage reads page_num/page_size query parameters, rejecting anything
// non-numeric. Reports false after writing the error.
func parsePage(c *gin.Context) (int, int, bool) {
	pageStr := c.DefaultQuery("page_num", "1")
	sizeStr := c.DefaultQuery("page_size", "20")
	if !stringUtil.IsNumeric(pageStr) || !stringUtil.IsNumeric(sizeStr) {
		_ = c.Error(errors.NewError().WithCode(errors.RequestParameterInvalid).
			WithMessagef("Invalid pagination parameters page_num=%s page_size=%s", pageStr, sizeStr))
		return 0, 0, false
	}
	page, _ := strconv.Atoi(pageStr)
	pageSize, _ := strconv.Atoi(sizeStr)
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 20
	}
	return page, pageSize, true
}
