package http

import (
	"context"
	"errors"
	"net/http"
)

// ErrStalled ends a streaming task that received no data for longer than
// the configured timeout.
var ErrStalled = errors.New("stream stalled")

// Request is a transport-level request. Body is sent as-is; callers set the
// matching Content-Type header.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte

	// CorrelationKey is echoed back by the streaming Task so an observer can
	// tie a task to the job that asked for it. Ignored by Send.
	CorrelationKey string
}

// Response is a fully read response. Non-2xx statuses are not errors at
// this layer.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Event is one observation of a streaming task. Progress events carry only
// Fraction; the final event has Done set and either Response or Err.
type Event struct {
	Fraction float64
	Done     bool
	Response *Response
	Err      error
}

// Task is a running streaming request.
type Task interface {
	// CorrelationKey returns the key of the request that created the task.
	CorrelationKey() string

	// Events yields progress events followed by exactly one terminal event,
	// then is closed. Progress events may be dropped when the reader is slow;
	// the terminal event never is unless the task was canceled.
	Events() <-chan Event

	// Cancel aborts the request. Safe to call more than once.
	Cancel()
}

// TaskObserver is told about a streaming task before any of its events are
// produced.
type TaskObserver interface {
	OnTaskCreated(task Task)
}

// TaskObserverFunc adapts a function to TaskObserver.
type TaskObserverFunc func(task Task)

// OnTaskCreated calls f(task).
func (f TaskObserverFunc) OnTaskCreated(task Task) { f(task) }

// Transport sends requests on behalf of the request executor and the
// download manager.
type Transport interface {
	// Send performs a one-shot request and returns the whole response.
	Send(ctx context.Context, req *Request) (*Response, error)

	// SendStreaming starts a download task. observer.OnTaskCreated is called
	// synchronously before SendStreaming returns and before the first event.
	SendStreaming(ctx context.Context, req *Request, observer TaskObserver) (Task, error)
}
