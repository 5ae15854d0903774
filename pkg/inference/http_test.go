// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

package inference

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wildsight/antler/pkg/config"
	antlererrors "github.com/wildsight/antler/pkg/errors"
	"github.com/wildsight/antler/pkg/geometry"
)

func TestNewHTTPEngineRequiresEndpoint(t *testing.T) {
	_, err := NewHTTPEngine(RoleDetector, config.InferenceSettings{})
	require.Error(t, err)
	assert.Equal(t, antlererrors.KindFatal, antlererrors.Classify(err))
}

func TestHTTPEngineDetect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/detect", r.URL.Path)

		var req inferRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "detector", req.Model)
		assert.NotEmpty(t, req.Image)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":0,"data":{"detections":[
			{"x":10,"y":20,"w":100,"h":80,"confidence":0.87,"class":"doe"}
		]}}`))
	}))
	defer srv.Close()

	eng, err := NewHTTPEngine(RoleDetector, config.InferenceSettings{Endpoint: srv.URL})
	require.NoError(t, err)

	dets, err := eng.Detect(context.Background(), []byte("jpeg bytes"))
	require.NoError(t, err)
	require.Len(t, dets, 1)
	assert.Equal(t, geometry.Rect{X: 10, Y: 20, W: 100, H: 80}, dets[0].Box)
	assert.Equal(t, "doe", dets[0].Class)
	assert.InDelta(t, 0.87, dets[0].Confidence, 1e-9)
}

func TestHTTPEngineErrorMapping(t *testing.T) {
	t.Run("client error classifies as corrupt input", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"code":7,"msg":"undecodable image"}`))
		}))
		defer srv.Close()

		eng, err := NewHTTPEngine(RoleEmbedder, config.InferenceSettings{Endpoint: srv.URL})
		require.NoError(t, err)

		_, err = eng.Embed(context.Background(), []byte("x"))
		require.Error(t, err)
		assert.Equal(t, antlererrors.KindInputCorrupt, antlererrors.Classify(err))
	})

	t.Run("507 classifies as device memory", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInsufficientStorage)
			_, _ = w.Write([]byte(`{"code":12,"msg":"CUDA out of memory"}`))
		}))
		defer srv.Close()

		eng, err := NewHTTPEngine(RoleEmbedder, config.InferenceSettings{Endpoint: srv.URL})
		require.NoError(t, err)

		_, err = eng.Embed(context.Background(), []byte("x"))
		require.Error(t, err)
		assert.Equal(t, antlererrors.KindInferenceOOM, antlererrors.Classify(err))
	})
}

func TestHTTPEngineRetriesServerErrors(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`{"code":1,"msg":"warming up"}`))
			return
		}
		_, _ = w.Write([]byte(`{"code":0,"data":{"embedding":[0.6,0.8]}}`))
	}))
	defer srv.Close()

	eng, err := NewHTTPEngine(RoleEmbedder, config.InferenceSettings{Endpoint: srv.URL})
	require.NoError(t, err)

	vec, err := eng.Embed(context.Background(), []byte("crop"))
	require.NoError(t, err)
	assert.Equal(t, []float32{0.6, 0.8}, vec)
	assert.Equal(t, int64(2), hits.Load())
}

func TestHTTPEngineDimCachesSidecarAnswer(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/models/embedder", r.URL.Path)
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":0,"data":{"dim":256}}`))
	}))
	defer srv.Close()

	eng, err := NewHTTPEngine(RoleEmbedder, config.InferenceSettings{Endpoint: srv.URL})
	require.NoError(t, err)

	assert.Equal(t, 256, eng.Dim())
	assert.Equal(t, 256, eng.Dim())
	assert.Equal(t, int64(1), hits.Load())
}

func TestHTTPEngineDetectorHasNoDim(t *testing.T) {
	eng, err := NewHTTPEngine(RoleDetector, config.InferenceSettings{Endpoint: "http://127.0.0.1:1"})
	require.NoError(t, err)
	assert.Equal(t, 0, eng.Dim())
}
