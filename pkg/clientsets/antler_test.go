// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

package clientsets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wildsight/antler/pkg/model/rest"
)

func envelope(t *testing.T, data interface{}) []byte {
	t.Helper()
	body, err := json.Marshal(rest.Response{
		Meta: rest.Meta{Code: rest.CodeSuccess, Message: "Success"},
		Data: data,
	})
	require.NoError(t, err)
	return body
}

func TestAntlerClientGetQueueStats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/queues/stats", r.URL.Path)
		w.Write(envelope(t, map[string]map[string]int64{
			"detect": {"pending": 4, "dead": 1},
			"reid":   {"processing": 2},
		}))
	}))
	defer srv.Close()

	client := NewAntlerClient(srv.URL)
	stats, err := client.GetQueueStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats["detect"]["pending"])
	assert.Equal(t, int64(2), stats["reid"]["processing"])
}

func TestAntlerClientRequeueDead(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/queues/detect/dead/requeue", r.URL.Path)
		w.Write(envelope(t, map[string]interface{}{"queue": "detect", "requeued": 3}))
	}))
	defer srv.Close()

	client := NewAntlerClient(srv.URL)
	n, err := client.RequeueDead(context.Background(), "detect")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestAntlerClientListDeer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2", r.URL.Query().Get("page_num"))
		w.Write(envelope(t, rest.NewListData([]map[string]interface{}{
			{"id": "deer-7", "sex": "buck", "sighting_count": 12},
		}, 41)))
	}))
	defer srv.Close()

	client := NewAntlerClient(srv.URL)
	deer, total, err := client.ListDeer(context.Background(), 2, 20)
	require.NoError(t, err)
	assert.Equal(t, 41, total)
	require.Len(t, deer, 1)
	assert.Equal(t, "deer-7", deer[0].ID)
	assert.Equal(t, 12, deer[0].SightingCount)
}

func TestAntlerClientEnqueueImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/images/img-9/enqueue", r.URL.Path)
		w.Write(envelope(t, map[string]interface{}{"image_id": "img-9", "enqueued": true, "reset": true}))
	}))
	defer srv.Close()

	client := NewAntlerClient(srv.URL)
	reset, err := client.EnqueueImage(context.Background(), "img-9")
	require.NoError(t, err)
	assert.True(t, reset)
}

func TestAntlerClientRemoteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := json.Marshal(rest.Response{
			Meta: rest.Meta{Code: 4004, Message: "Image img-9 not found"},
		})
		w.Write(body)
	}))
	defer srv.Close()

	client := NewAntlerClient(srv.URL)
	_, err := client.EnqueueImage(context.Background(), "img-9")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestAntlerClientBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gateway timeout", http.StatusGatewayTimeout)
	}))
	defer srv.Close()

	client := NewAntlerClient(srv.URL)
	_, err := client.GetQueueStats(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status code: 504")
}
