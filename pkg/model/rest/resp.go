// Package rest defines the JSON envelope every antler endpoint speaks:
// a meta block with the service code, the payload, and the ids of the
// span that handled the request when tracing is on.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"

	"github.com/wildsight/antler/pkg/errors"
	"github.com/wildsight/antler/pkg/trace"
	"github.com/wildsight/antler/pkg/utils/mapUtil"
)

// CodeSuccess is the service code of a successful response. Service
// codes travel in the envelope meta and are independent of HTTP status.
const CodeSuccess int = 2000

// Meta carries the service code and a human readable message.
type Meta struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Trace echoes the ids of the server side span so a client log line can
// be joined with the matching trace.
type Trace struct {
	TraceId string `json:"trace_id"`
	SpanId  string `json:"span_id"`
}

// Response is the envelope returned by every endpoint.
type Response struct {
	Meta    Meta        `json:"meta"`
	Data    interface{} `json:"data"`
	Tracing *Trace      `json:"tracing"`
}

// ListData is the payload shape shared by list endpoints.
type ListData struct {
	Rows       interface{} `json:"rows"`
	TotalCount int         `json:"total_count"`
}

var okMeta = Meta{Code: CodeSuccess, Message: "OK"}

func wrap(ctx context.Context, meta Meta, data interface{}) Response {
	resp := Response{Meta: meta, Data: data}
	if span, ok := trace.SpanFromContext(ctx); ok {
		if traceId, spanId, valid := trace.GetTraceIDAndSpanID(span); valid {
			resp.Tracing = &Trace{TraceId: traceId, SpanId: spanId}
		}
	}
	return resp
}

// SuccessResp wraps data in a success envelope.
func SuccessResp(ctx context.Context, data interface{}) Response {
	return wrap(ctx, okMeta, data)
}

// ErrorResp wraps a service code and message in an envelope.
func ErrorResp(ctx context.Context, code int, errMsg string, data interface{}) Response {
	return wrap(ctx, Meta{Code: code, Message: errMsg}, data)
}

// NewListData pairs one page of rows with the total row count.
func NewListData(rows interface{}, totalCount int) ListData {
	return ListData{Rows: rows, TotalCount: totalCount}
}

// ParseResponse decodes an envelope from bodyReader and, on CodeSuccess,
// decodes the payload into targetData. Any other code comes back as an
// error built from the meta, with the meta and trace ids returned
// alongside so the caller can log which remote span failed.
func ParseResponse(bodyReader io.Reader, targetData interface{}) (*Meta, *Trace, error) {
	buf := &bytes.Buffer{}
	if _, err := buf.ReadFrom(bodyReader); err != nil {
		return nil, nil, err
	}
	resp := &Response{}
	if err := json.Unmarshal(buf.Bytes(), resp); err != nil {
		return nil, nil, err
	}
	if resp.Meta.Code == 0 {
		return nil, nil, errors.NewError().WithCode(errors.ClientError).WithMessage("Remote side returned no data")
	}
	if resp.Meta.Code != CodeSuccess {
		return &resp.Meta, resp.Tracing, errors.NewError().WithCode(resp.Meta.Code).WithMessage(resp.Meta.Message)
	}
	if err := mapUtil.DecodeFromMap(resp.Data, targetData); err != nil {
		return &resp.Meta, resp.Tracing, errors.NewError().WithCode(errors.ClientError).WithError(err).WithMessage("Failed to parse body")
	}
	return &resp.Meta, resp.Tracing, nil
}
