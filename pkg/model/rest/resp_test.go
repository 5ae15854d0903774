// Copyright (C) 2025-2026, Wildsight, Inc. All rights reserved.
// See LICENSE for license information.

package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuccessResp(t *testing.T) {
	resp := SuccessResp(context.Background(), map[string]string{"status": "ok"})

	assert.Equal(t, CodeSuccess, resp.Meta.Code)
	assert.Equal(t, "OK", resp.Meta.Message)
	assert.Equal(t, map[string]string{"status": "ok"}, resp.Data)
	assert.Nil(t, resp.Tracing, "no span on the context, no trace ids")
}

func TestErrorResp(t *testing.T) {
	resp := ErrorResp(context.Background(), 4004, "Image img-1 not found", nil)

	assert.Equal(t, 4004, resp.Meta.Code)
	assert.Equal(t, "Image img-1 not found", resp.Meta.Message)
	assert.Nil(t, resp.Data)
}

func TestEnvelopeWireShape(t *testing.T) {
	// clients decode this exact shape, so the field names are load bearing
	resp := SuccessResp(context.Background(), NewListData([]string{"a"}, 1))

	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"meta": {"code": 2000, "message": "OK"},
		"data": {"rows": ["a"], "total_count": 1},
		"tracing": null
	}`, string(raw))
}

func TestParseResponse(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
		Legs int    `json:"legs"`
	}

	t.Run("success decodes the payload", func(t *testing.T) {
		body := encode(t, Response{
			Meta: Meta{Code: CodeSuccess, Message: "OK"},
			Data: map[string]interface{}{"name": "doe", "legs": 4},
		})

		var got payload
		meta, tracing, err := ParseResponse(body, &got)
		require.NoError(t, err)
		assert.Equal(t, CodeSuccess, meta.Code)
		assert.Nil(t, tracing)
		assert.Equal(t, payload{Name: "doe", Legs: 4}, got)
	})

	t.Run("service error surfaces meta and trace ids", func(t *testing.T) {
		body := encode(t, Response{
			Meta:    Meta{Code: 4004, Message: "Image img-9 not found"},
			Tracing: &Trace{TraceId: "t-1", SpanId: "s-1"},
		})

		var got payload
		meta, tracing, err := ParseResponse(body, &got)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Image img-9 not found")
		require.NotNil(t, meta)
		assert.Equal(t, 4004, meta.Code)
		require.NotNil(t, tracing)
		assert.Equal(t, "t-1", tracing.TraceId)
		assert.Equal(t, "s-1", tracing.SpanId)
	})

	t.Run("zero code means the remote sent nothing", func(t *testing.T) {
		body := encode(t, Response{})

		_, _, err := ParseResponse(body, &payload{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no data")
	})

	t.Run("garbage body is an error, not a panic", func(t *testing.T) {
		meta, tracing, err := ParseResponse(strings.NewReader("not json"), &payload{})
		require.Error(t, err)
		assert.Nil(t, meta)
		assert.Nil(t, tracing)
	})
}

func encode(t *testing.T, resp Response) *bytes.Reader {
	t.Helper()
	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	return bytes.NewReader(raw)
}
