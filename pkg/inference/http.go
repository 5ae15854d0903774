// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

package inference

import (
	"context"
	"encoding/base64"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"

	"github.com/wildsight/antler/pkg/config"
	antlererrors "github.com/wildsight/antler/pkg/errors"
	"github.com/wildsight/antler/pkg/geometry"
)

const (
	sidecarRetryCount = 2
	sidecarRetryWait  = 500 * time.Millisecond
	modelMetaTTL      = 5 * time.Minute
)

// httpEngine calls a local inference sidecar over JSON. The sidecar owns
// the device; resty retries cover its restarts, the envelope carries its
// failures.
type httpEngine struct {
	role   string
	client *resty.Client
	conf   config.InferenceSettings
	meta   *cache.Cache
}

// NewHTTPEngine builds a sidecar-backed engine for the role.
func NewHTTPEngine(role string, settings config.InferenceSettings) (Engine, error) {
	if settings.Endpoint == "" {
		return nil, errors.Wrap(antlererrors.ErrFatal, "inference endpoint not configured for http backend")
	}

	client := resty.New().
		SetBaseURL(settings.Endpoint).
		SetRetryCount(sidecarRetryCount).
		SetRetryWaitTime(sidecarRetryWait).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})

	return &httpEngine{
		role:   role,
		client: client,
		conf:   settings,
		meta:   cache.New(modelMetaTTL, 2*modelMetaTTL),
	}, nil
}

type inferRequest struct {
	Model string `json:"model"`
	Image string `json:"image"`
}

type detectionPayload struct {
	X          int     `json:"x"`
	Y          int     `json:"y"`
	W          int     `json:"w"`
	H          int     `json:"h"`
	Confidence float64 `json:"confidence"`
	Class      string  `json:"class"`
}

type detectResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg,omitempty"`
	Data struct {
		Detections []detectionPayload `json:"detections"`
	} `json:"data"`
}

type embedResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg,omitempty"`
	Data struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

type modelInfoResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg,omitempty"`
	Data struct {
		Dim int `json:"dim"`
	} `json:"data"`
}

func (e *httpEngine) Detect(ctx context.Context, imageBytes []byte) ([]Detection, error) {
	if e.role != RoleDetector {
		return nil, errors.Errorf("model role %s does not detect", e.role)
	}

	var out detectResponse
	resp, err := e.client.R().
		SetContext(ctx).
		SetBody(&inferRequest{Model: e.role, Image: base64.StdEncoding.EncodeToString(imageBytes)}).
		SetResult(&out).
		Post("/v1/detect")
	if err := e.checkResponse(resp, err, out.Code, out.Msg); err != nil {
		return nil, err
	}

	dets := make([]Detection, 0, len(out.Data.Detections))
	for _, d := range out.Data.Detections {
		dets = append(dets, Detection{
			Box:        geometry.Rect{X: d.X, Y: d.Y, W: d.W, H: d.H},
			Confidence: d.Confidence,
			Class:      d.Class,
		})
	}
	return dets, nil
}

func (e *httpEngine) Embed(ctx context.Context, cropBytes []byte) ([]float32, error) {
	if e.role == RoleDetector {
		return nil, errors.Errorf("model role %s does not embed", e.role)
	}

	var out embedResponse
	resp, err := e.client.R().
		SetContext(ctx).
		SetBody(&inferRequest{Model: e.role, Image: base64.StdEncoding.EncodeToString(cropBytes)}).
		SetResult(&out).
		Post("/v1/embed")
	if err := e.checkResponse(resp, err, out.Code, out.Msg); err != nil {
		return nil, err
	}
	if len(out.Data.Embedding) == 0 {
		return nil, errors.Errorf("sidecar returned empty embedding for %s", e.role)
	}
	return out.Data.Embedding, nil
}

// checkResponse folds transport, HTTP and envelope failures into the
// pipeline taxonomy: 507 means device memory, other 4xx means the input
// will never work, everything else stays retryable.
func (e *httpEngine) checkResponse(resp *resty.Response, err error, code int, msg string) error {
	if err != nil {
		return errors.Wrapf(err, "call inference sidecar for %s", e.role)
	}
	status := resp.StatusCode()
	switch {
	case status == http.StatusInsufficientStorage:
		return errors.Wrapf(antlererrors.ErrDeviceOOM, "sidecar %s: %s", resp.Status(), msg)
	case status >= 400 && status < 500:
		return errors.Wrapf(antlererrors.ErrCorruptInput, "sidecar rejected input: %s %s", resp.Status(), msg)
	case resp.IsError():
		return errors.Errorf("sidecar %s: %s", resp.Status(), resp.String())
	case code != 0:
		return errors.Errorf("sidecar returned code %d: %s", code, msg)
	}
	return nil
}

// Dim asks the sidecar for the model dimensionality and caches the answer;
// the configured value is the fallback when the sidecar is unreachable.
func (e *httpEngine) Dim() int {
	if e.role == RoleDetector {
		return 0
	}
	if v, ok := e.meta.Get(e.role); ok {
		return v.(int)
	}

	var out modelInfoResponse
	resp, err := e.client.R().
		SetResult(&out).
		Get("/v1/models/" + e.role)
	if err == nil && !resp.IsError() && out.Data.Dim > 0 {
		e.meta.Set(e.role, out.Data.Dim, cache.DefaultExpiration)
		return out.Data.Dim
	}
	return e.conf.GetEmbeddingDim()
}

func (e *httpEngine) Version() string {
	return e.conf.GetEmbeddingVersion()
}

func (e *httpEngine) Close() error {
	return nil
}
