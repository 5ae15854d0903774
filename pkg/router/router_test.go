// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wildsight/antler/pkg/config"
	"github.com/wildsight/antler/pkg/errors"
	"github.com/wildsight/antler/pkg/model/rest"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// withGroups swaps the package-level register list for the test and puts
// it back afterwards, so tests cannot leak routes into each other.
func withGroups(t *testing.T, groups ...GroupRegister) {
	t.Helper()
	saved := groupRegisters
	groupRegisters = groups
	t.Cleanup(func() { groupRegisters = saved })
}

func buildEngine(t *testing.T, cfg *config.Config) *gin.Engine {
	t.Helper()
	engine := gin.New()
	require.NoError(t, InitRouter(engine, cfg))
	return engine
}

func TestRegisteredGroupsMountUnderAPIV1(t *testing.T) {
	withGroups(t, func(group *gin.RouterGroup) error {
		group.GET("/probe", func(c *gin.Context) {
			c.JSON(http.StatusOK, rest.SuccessResp(c.Request.Context(), gin.H{"pong": true}))
		})
		return nil
	})
	engine := buildEngine(t, &config.Config{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/probe", nil)
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp rest.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, rest.CodeSuccess, resp.Meta.Code)

	// the same handler is not reachable outside the versioned group
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/probe", nil)
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestInitRouterStopsOnGroupError(t *testing.T) {
	withGroups(t,
		func(group *gin.RouterGroup) error { return assert.AnError },
		func(group *gin.RouterGroup) error {
			t.Fatal("second group register must not run after the first failed")
			return nil
		},
	)

	err := InitRouter(gin.New(), &config.Config{})
	assert.ErrorIs(t, err, assert.AnError)
}

func TestErrorsBecomeEnvelopes(t *testing.T) {
	withGroups(t, func(group *gin.RouterGroup) error {
		group.GET("/missing", func(c *gin.Context) {
			_ = c.Error(errors.NewError().
				WithCode(errors.RequestDataNotExisted).
				WithMessage("Deer deer-9 not found"))
		})
		group.GET("/broken", func(c *gin.Context) {
			_ = c.Error(assert.AnError)
		})
		return nil
	})
	engine := buildEngine(t, &config.Config{})

	t.Run("coded error keeps its code", func(t *testing.T) {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/missing", nil))

		require.Equal(t, http.StatusOK, w.Code, "failures ride the envelope, not the transport status")
		var resp rest.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, errors.RequestDataNotExisted, resp.Meta.Code)
		assert.Equal(t, "Deer deer-9 not found", resp.Meta.Message)
	})

	t.Run("uncoded error maps to internal", func(t *testing.T) {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/broken", nil))

		require.Equal(t, http.StatusOK, w.Code)
		var resp rest.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, errors.InternalError, resp.Meta.Code)
		assert.Equal(t, "Unknown error", resp.Meta.Message)
	})
}

func TestPreflightIsAnsweredByCORS(t *testing.T) {
	withGroups(t, func(group *gin.RouterGroup) error {
		group.POST("/images/:id/enqueue", func(c *gin.Context) {
			c.JSON(http.StatusOK, rest.SuccessResp(c.Request.Context(), nil))
		})
		return nil
	})
	engine := buildEngine(t, &config.Config{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/images/img-1/enqueue", nil)
	req.Header.Set("Origin", "http://dashboard.local")
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, w.Header().Get("Access-Control-Allow-Methods"))
}

func TestOptionalMiddlewareToggles(t *testing.T) {
	off := false
	cases := []struct {
		name string
		cfg  *config.Config
	}{
		{"defaults leave logging and tracing on", &config.Config{}},
		{"both disabled still serves", &config.Config{
			Middleware: config.MiddlewareConfig{EnableLogging: &off, EnableTracing: &off},
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			withGroups(t, func(group *gin.RouterGroup) error {
				group.GET("/probe", func(c *gin.Context) {
					c.JSON(http.StatusOK, rest.SuccessResp(c.Request.Context(), nil))
				})
				return nil
			})
			engine := buildEngine(t, tc.cfg)

			w := httptest.NewRecorder()
			engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/probe", nil))
			assert.Equal(t, http.StatusOK, w.Code)
		})
	}
}
