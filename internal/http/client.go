package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/handiism/soundcloud-offline/internal/logging"
)

// Config configures a Client.
type Config struct {
	// Timeout bounds a whole Send including the body. Streaming tasks are
	// not bounded as a whole; they fail with ErrStalled when no response
	// headers or body bytes arrive for Timeout. Zero means 60s.
	Timeout time.Duration

	// RequestsPerSecond paces outbound requests. Zero disables pacing.
	RequestsPerSecond float64

	// Burst is the limiter bucket size. Values below 1 are treated as 1.
	Burst int

	// UserAgent is sent with every request.
	UserAgent string
}

// Client is the net/http backed Transport.
//
// Client provides:
//   - Configured User-Agent header
//   - Timeout handling
//   - Request pacing with a token bucket
//   - Streaming downloads with progress events
//
// Example usage:
//
//	client := NewClient(Config{RequestsPerSecond: 10}, logger)
//
//	resp, err := client.Send(ctx, &Request{Method: "GET", URL: "https://api.soundcloud.com/me"})
//
//	task, err := client.SendStreaming(ctx, &Request{Method: "GET", URL: streamURL, CorrelationKey: key}, observer)
//	for ev := range task.Events() {
//	    if ev.Done {
//	        // ev.Response or ev.Err
//	    }
//	}
type Client struct {
	httpClient   *http.Client
	streamClient *http.Client
	stallTimeout time.Duration
	userAgent    string
	limiter    *rate.Limiter
	logger     *slog.Logger
}

var _ Transport = (*Client)(nil)

// NewClient creates a new HTTP client.
//
// The client is configured with:
//   - cfg.Timeout, or 60 seconds, per Send and per stall of a stream
//   - cfg.UserAgent, or "soundcloud-offline"
//   - a limiter of cfg.RequestsPerSecond when positive
func NewClient(cfg Config, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = "soundcloud-offline"
	}

	c := &Client{
		httpClient:   &http.Client{Timeout: timeout},
		streamClient: &http.Client{},
		stallTimeout: timeout,
		userAgent:    ua,
		logger:       logging.OrDiscard(logger).With("component", "transport"),
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), max(cfg.Burst, 1))
	}
	return c
}

// ProgressWriter wraps a writer to track download progress.
//
// Use this to monitor large downloads by providing an OnUpdate callback
// that receives the current bytes written and total expected bytes.
//
// Example:
//
//	pw := &ProgressWriter{
//	    Writer: &buf,
//	    Total:  contentLength,
//	    OnUpdate: func(written, total int64) {
//	        fmt.Printf("%d / %d bytes\n", written, total)
//	    },
//	}
//	io.Copy(pw, response.Body)
type ProgressWriter struct {
	// Writer is the underlying writer to write data to.
	Writer io.Writer

	// Total is the expected total bytes (from Content-Length header).
	// Non-positive when unknown.
	Total int64

	// Written is the current number of bytes written.
	Written int64

	// OnUpdate is called after each Write with current progress.
	// Parameters are (bytesWritten, totalExpected).
	OnUpdate func(written, total int64)
}

// Write implements io.Writer, tracking progress and calling OnUpdate.
func (pw *ProgressWriter) Write(p []byte) (int, error) {
	n, err := pw.Writer.Write(p)
	pw.Written += int64(n)
	if pw.OnUpdate != nil {
		pw.OnUpdate(pw.Written, pw.Total)
	}
	return n, err
}

// Send performs a request and reads the whole body.
//
// Returns an error only when the request could not be built or sent or the
// body could not be read; HTTP error statuses come back as a Response.
func (c *Client) Send(ctx context.Context, req *Request) (*Response, error) {
	httpReq, err := c.newRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("request",
		"method", httpReq.Method,
		"url", httpReq.URL.Redacted(),
		"status", resp.StatusCode,
		"duration", time.Since(start))

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// SendStreaming starts req on its own goroutine and reports it to observer
// before returning. The body is buffered in memory; progress fractions are
// emitted in steps of at least one percent when Content-Length is known.
func (c *Client) SendStreaming(ctx context.Context, req *Request, observer TaskObserver) (Task, error) {
	taskCtx, cancel := context.WithCancel(ctx)

	httpReq, err := c.newRequest(taskCtx, req)
	if err != nil {
		cancel()
		return nil, err
	}

	t := &task{
		key:    req.CorrelationKey,
		events: make(chan Event, 16),
		ctx:    taskCtx,
		cancel: cancel,
	}
	if observer != nil {
		observer.OnTaskCreated(t)
	}

	go c.run(t, httpReq)
	return t, nil
}

func (c *Client) run(t *task, httpReq *http.Request) {
	defer close(t.events)
	defer t.cancel()

	resp, err := c.stream(t, httpReq)
	if err != nil {
		t.finish(Event{Done: true, Err: err})
		return
	}
	t.finish(Event{Done: true, Fraction: 1, Response: resp})
}

func (c *Client) stream(t *task, httpReq *http.Request) (*Response, error) {
	if err := c.wait(t.ctx); err != nil {
		return nil, err
	}

	ctx, stall := context.WithCancelCause(t.ctx)
	defer stall(nil)
	timer := time.AfterFunc(c.stallTimeout, func() { stall(ErrStalled) })
	defer timer.Stop()

	resp, err := c.streamClient.Do(httpReq.WithContext(ctx))
	if err != nil {
		return nil, stallCause(ctx, err)
	}
	defer resp.Body.Close()
	timer.Reset(c.stallTimeout)

	var buf bytes.Buffer
	if resp.ContentLength > 0 {
		buf.Grow(int(resp.ContentLength))
	}

	lastReported := 0.0
	pw := &ProgressWriter{
		Writer: &buf,
		Total:  resp.ContentLength,
		OnUpdate: func(written, total int64) {
			timer.Reset(c.stallTimeout)
			if total <= 0 {
				return
			}
			fraction := float64(written) / float64(total)
			if fraction-lastReported >= 0.01 {
				lastReported = fraction
				t.progress(fraction)
			}
		},
	}

	if _, err := io.Copy(pw, resp.Body); err != nil {
		return nil, stallCause(ctx, err)
	}

	c.logger.Debug("stream finished",
		"correlation_key", t.key,
		"status", resp.StatusCode,
		"bytes", pw.Written)

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: buf.Bytes()}, nil
}

// Get performs a GET request and returns the response body as bytes.
//
// Use this for small files like cover art images.
//
// Returns an error if:
//   - The request fails
//   - The response status is not 200 OK
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	resp, err := c.Send(ctx, &Request{Method: http.MethodGet, URL: url})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	return resp.Body, nil
}

func (c *Client) newRequest(ctx context.Context, req *Request) (*http.Request, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, err
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("User-Agent", c.userAgent)
	if httpReq.Header.Get("X-Request-Id") == "" {
		httpReq.Header.Set("X-Request-Id", uuid.NewString())
	}
	return httpReq, nil
}

// stallCause reports ErrStalled instead of err when the stall timer ended
// ctx.
func stallCause(ctx context.Context, err error) error {
	if errors.Is(context.Cause(ctx), ErrStalled) {
		return fmt.Errorf("%w: %v", ErrStalled, err)
	}
	return err
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

type task struct {
	key    string
	events chan Event
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

func (t *task) CorrelationKey() string { return t.key }

func (t *task) Events() <-chan Event { return t.events }

func (t *task) Cancel() {
	t.once.Do(t.cancel)
}

// progress never blocks the download.
func (t *task) progress(fraction float64) {
	select {
	case t.events <- Event{Fraction: fraction}:
	default:
	}
}

func (t *task) finish(ev Event) {
	select {
	case t.events <- ev:
	case <-t.ctx.Done():
		// Canceled tasks may have no reader left.
		select {
		case t.events <- ev:
		default:
		}
	}
}
