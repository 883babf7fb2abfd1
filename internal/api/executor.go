package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	nethttp "net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/handiism/soundcloud-offline/internal/common"
	"github.com/handiism/soundcloud-offline/internal/http"
	"github.com/handiism/soundcloud-offline/internal/logging"
	"github.com/handiism/soundcloud-offline/internal/metrics"
)

// HeaderProvider yields the Authorization header value for a request.
// The auth gateway implements it; resolving a header may refresh the token.
type HeaderProvider interface {
	AuthHeader(ctx context.Context) (string, error)
}

// Executor turns descriptors into transport requests and classifies the
// responses. It holds no mutable state and is safe for concurrent use.
type Executor struct {
	transport http.Transport
	baseURL   string
	headers   HeaderProvider
	metrics   metrics.RequestMetrics
	logger    *slog.Logger
}

// NewExecutor creates an Executor. headers may be nil for an executor that
// only issues unauthenticated calls (the token endpoint); authenticated
// descriptors then fail with ErrAuthRequired.
func NewExecutor(transport http.Transport, baseURL string, headers HeaderProvider, m metrics.RequestMetrics, logger *slog.Logger) *Executor {
	if m == nil {
		m = metrics.Noop{}
	}
	return &Executor{
		transport: transport,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		headers:   headers,
		metrics:   m,
		logger:    logging.OrDiscard(logger).With("component", "executor"),
	}
}

// Execute performs d and decodes the response into T.
//
// Error mapping:
//   - URL cannot be built: ErrInvalidURL
//   - header resolution failure: returned as is (ErrAuthRequired, ErrRefreshFailed)
//   - transport failure: *NetworkError with StatusCode 0
//   - 401: ErrAuthRequired, body not decoded
//   - other non-2xx: *NetworkError with the status
//   - undecodable or empty body: ErrDecoding
//
// An empty body yields the zero T only for a 204 or when d.AllowEmpty is
// set. There are no retries.
func Execute[T any](ctx context.Context, e *Executor, d Descriptor[T]) (T, error) {
	var zero T

	req, err := e.buildRequest(ctx, d.Method, d.Path, d.Query, d.Form, d.RequiresAuth && !d.IsRefreshCall)
	if err != nil {
		return zero, err
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := e.transport.Send(ctx, req)
	if err != nil {
		e.metrics.ObserveRequest(req.Method, "error", time.Since(start).Seconds())
		return zero, &common.NetworkError{Err: err}
	}
	e.metrics.ObserveRequest(req.Method, strconv.Itoa(resp.StatusCode), time.Since(start).Seconds())

	if err := classify(resp.StatusCode); err != nil {
		e.logger.Debug("request failed", "method", req.Method, "path", d.Path, "status", resp.StatusCode)
		return zero, err
	}

	if len(bytes.TrimSpace(resp.Body)) == 0 {
		if resp.StatusCode == nethttp.StatusNoContent || d.AllowEmpty {
			return zero, nil
		}
		return zero, fmt.Errorf("%w: empty body", common.ErrDecoding)
	}

	var out T
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return zero, fmt.Errorf("%w: %v", common.ErrDecoding, err)
	}
	return out, nil
}

// NewStreamingRequest builds an authorized GET for a streaming download.
// rawURL may be absolute or relative to the base URL.
func (e *Executor) NewStreamingRequest(ctx context.Context, rawURL, correlationKey string) (*http.Request, error) {
	req, err := e.buildRequest(ctx, nethttp.MethodGet, rawURL, nil, nil, true)
	if err != nil {
		return nil, err
	}
	req.CorrelationKey = correlationKey
	return req, nil
}

func (e *Executor) buildRequest(ctx context.Context, method, path string, query, form url.Values, auth bool) (*http.Request, error) {
	target, err := e.resolve(path, query)
	if err != nil {
		return nil, err
	}

	req := &http.Request{Method: method, URL: target, Header: nethttp.Header{}}
	if form != nil {
		req.Body = []byte(form.Encode())
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	if auth {
		if e.headers == nil {
			return nil, common.ErrAuthRequired
		}
		header, err := e.headers.AuthHeader(ctx)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", header)
	}
	return req, nil
}

func (e *Executor) resolve(path string, query url.Values) (string, error) {
	raw := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		if e.baseURL == "" {
			return "", fmt.Errorf("%w: %q has no base", common.ErrInvalidURL, path)
		}
		if !strings.HasPrefix(path, "/") {
			raw = e.baseURL + "/" + path
		} else {
			raw = e.baseURL + path
		}
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrInvalidURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%w: %q", common.ErrInvalidURL, raw)
	}

	// Cursors are used verbatim; only touch the query when adding to it.
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func classify(status int) error {
	switch {
	case status == nethttp.StatusUnauthorized:
		return common.ErrAuthRequired
	case status < 200 || status > 299:
		return &common.NetworkError{StatusCode: status}
	default:
		return nil
	}
}
