// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

// Package clientsets holds typed clients for the service's own HTTP API.
// Operator tooling talks to a running pipeline through them instead of
// opening a second database connection next to the live workers.
package clientsets

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"

	"github.com/wildsight/antler/pkg/database/model"
	"github.com/wildsight/antler/pkg/model/rest"
)

const (
	queueStatsAPI      = "/api/v1/queues/stats"
	queueDeadAPI       = "/api/v1/queues/%s/dead"
	queueRequeueAPI    = "/api/v1/queues/%s/dead/requeue"
	deerListAPI        = "/api/v1/deer"
	imageEnqueueAPI    = "/api/v1/images/%s/enqueue"
	imageDetectionsAPI = "/api/v1/images/%s/detections"
)

// AntlerClient wraps the pipeline's admin/read API.
type AntlerClient struct {
	address string
	api     *resty.Client
}

func NewAntlerClient(address string) *AntlerClient {
	restyC := resty.New().SetBaseURL(address)
	return &AntlerClient{
		address: address,
		api:     restyC,
	}
}

func (c *AntlerClient) GetRestyClient() *resty.Client {
	return c.api.Clone()
}

// call runs a request and decodes the envelope's data into target. A nil
// target only checks the envelope code.
func (c *AntlerClient) call(ctx context.Context, method, path string, target interface{}) error {
	req := c.api.R().SetContext(ctx)
	var resp *resty.Response
	var err error
	switch method {
	case http.MethodPost:
		resp, err = req.Post(path)
	default:
		resp, err = req.Get(path)
	}
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", path, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d, response: %s", resp.StatusCode(), resp.String())
	}
	if target == nil {
		target = &map[string]interface{}{}
	}
	if _, _, err := rest.ParseResponse(bytes.NewReader(resp.Body()), target); err != nil {
		return fmt.Errorf("failed to parse response of %s: %w", path, err)
	}
	return nil
}

// GetQueueStats returns per-status depth counts keyed by queue name.
func (c *AntlerClient) GetQueueStats(ctx context.Context) (map[string]map[string]int64, error) {
	stats := map[string]map[string]int64{}
	if err := c.call(ctx, http.MethodGet, queueStatsAPI, &stats); err != nil {
		return nil, err
	}
	return stats, nil
}

// ListDeadTasks returns one page of a queue's dead-letter items plus the
// total dead count.
func (c *AntlerClient) ListDeadTasks(ctx context.Context, queueName string, page, pageSize int) ([]model.QueueTask, int, error) {
	var data struct {
		Rows       []model.QueueTask `json:"rows"`
		TotalCount int               `json:"total_count"`
	}
	path := fmt.Sprintf(queueDeadAPI, queueName) + fmt.Sprintf("?page_num=%d&page_size=%d", page, pageSize)
	if err := c.call(ctx, http.MethodGet, path, &data); err != nil {
		return nil, 0, err
	}
	return data.Rows, data.TotalCount, nil
}

// RequeueDead returns every dead-lettered item of a queue to pending and
// reports how many moved.
func (c *AntlerClient) RequeueDead(ctx context.Context, queueName string) (int, error) {
	var data struct {
		Queue    string `json:"queue"`
		Requeued int    `json:"requeued"`
	}
	if err := c.call(ctx, http.MethodPost, fmt.Sprintf(queueRequeueAPI, queueName), &data); err != nil {
		return 0, err
	}
	return data.Requeued, nil
}

// ListDeer returns one page of profiles plus the total profile count.
func (c *AntlerClient) ListDeer(ctx context.Context, page, pageSize int) ([]model.Deer, int, error) {
	var data struct {
		Rows       []model.Deer `json:"rows"`
		TotalCount int          `json:"total_count"`
	}
	path := deerListAPI + fmt.Sprintf("?page_num=%d&page_size=%d", page, pageSize)
	if err := c.call(ctx, http.MethodGet, path, &data); err != nil {
		return nil, 0, err
	}
	return data.Rows, data.TotalCount, nil
}

// ListImageDetections returns an image row together with every detection
// persisted for it, duplicates included.
func (c *AntlerClient) ListImageDetections(ctx context.Context, imageID string) (*model.Image, []model.Detection, error) {
	var data struct {
		Image      *model.Image      `json:"image"`
		Detections []model.Detection `json:"detections"`
	}
	if err := c.call(ctx, http.MethodGet, fmt.Sprintf(imageDetectionsAPI, imageID), &data); err != nil {
		return nil, nil, err
	}
	return data.Image, data.Detections, nil
}

// EnqueueImage queues an image for detection, resetting a terminal row to
// pending first. Reports whether the service had to reset it.
func (c *AntlerClient) EnqueueImage(ctx context.Context, imageID string) (bool, error) {
	var data struct {
		ImageID  string `json:"image_id"`
		Enqueued bool   `json:"enqueued"`
		Reset    bool   `json:"reset"`
	}
	if err := c.call(ctx, http.MethodPost, fmt.Sprintf(imageEnqueueAPI, imageID), &data); err != nil {
		return false, err
	}
	return data.Reset, nil
}
