package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/Atulx21/SevaConnect/pkg/errors"
	"github.com/Atulx21/SevaConnect/pkg/httpclient"
	"github.com/Atulx21/SevaConnect/pkg/tracing"
)

const (
	serviceName = "backend"
	tracerName  = "github.com/Atulx21/SevaConnect/internal/backend"

	authPath = "/auth/v1"
	restPath = "/rest/v1"

	// mediaSingleObject asks the data API for exactly one row; zero or
	// several rows fail with PGRST116.
	mediaSingleObject = "application/vnd.pgrst.object+json"
)

// call describes one request to the backend.
type call struct {
	op      string
	method  string
	path    string
	query   url.Values
	body    any
	headers http.Header
	bearer  string
}

// transport sends authenticated JSON requests to the backend and turns
// non-2xx responses into *apperrors.AppError values.
type transport struct {
	baseURL string
	anonKey string
	doer    httpclient.Doer
	tracer  trace.Tracer
}

func newTransport(baseURL, anonKey string, doer httpclient.Doer) *transport {
	return &transport{
		baseURL: strings.TrimRight(baseURL, "/"),
		anonKey: anonKey,
		doer:    doer,
		tracer:  tracing.Tracer(tracerName),
	}
}

// do executes c and decodes a 2xx JSON body into out when out is non-nil.
func (t *transport) do(ctx context.Context, c call, out any) (err error) {
	ctx, span := t.tracer.Start(ctx, "backend."+c.op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", c.method),
			attribute.String("url.path", c.path),
		),
	)
	defer func() { tracing.End(span, err) }()

	resp, err := t.send(ctx, c)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return apperrors.Unavailable("read backend response", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", c.op, err)
	}
	return nil
}

// send builds and executes the request. The caller owns the body of a
// successful response.
func (t *transport) send(ctx context.Context, c call) (*http.Response, error) {
	var payload []byte
	if c.body != nil {
		b, err := json.Marshal(c.body)
		if err != nil {
			return nil, fmt.Errorf("encode %s request: %w", c.op, err)
		}
		payload = b
	}

	target := t.baseURL + c.path
	if len(c.query) > 0 {
		target += "?" + c.query.Encode()
	}

	headers := c.headers.Clone()
	if headers == nil {
		headers = http.Header{}
	}
	bearer := c.bearer
	if bearer == "" {
		bearer = t.anonKey
	}
	headers.Set("apikey", t.anonKey)
	headers.Set("Authorization", "Bearer "+bearer)

	req, err := httpclient.NewJSONRequest(ctx, c.method, target, payload, headers)
	if err != nil {
		return nil, err
	}

	resp, err := t.doer.Do(ctx, req)
	if err != nil {
		var appErr *apperrors.AppError
		switch {
		case errors.As(err, &appErr):
			return nil, err
		case errors.Is(err, context.Canceled):
			return nil, err
		default:
			return nil, apperrors.Unavailable(fmt.Sprintf("%s request failed", c.op), err)
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, httpclient.ParseResponseError(resp, serviceName)
	}
	return resp, nil
}

// Ping checks that the auth API answers its health endpoint.
func (t *transport) Ping(ctx context.Context) error {
	return t.do(ctx, call{op: "health", method: http.MethodGet, path: authPath + "/health"}, nil)
}
