// Package http is the network transport of the client.
//
// The Client in this package handles:
//   - One-shot requests whose whole body is returned (Send)
//   - Streaming downloads that run as a Task with progress events (SendStreaming)
//   - User-Agent and request id headers
//   - Request pacing and timeout handling
//
// HTTP error statuses are not errors here: they are returned as a Response
// and classified by the request executor in package api.
//
// # Basic Usage
//
//	client := http.NewClient(http.Config{RequestsPerSecond: 10}, logger)
//
//	resp, err := client.Send(ctx, &http.Request{Method: "GET", URL: url})
//
// # Streaming
//
// A streaming request carries a correlation key that the resulting Task
// echoes back. The observer is told about the task synchronously, before any
// event can be produced, so it can never see progress for a task it does
// not know yet:
//
//	task, err := client.SendStreaming(ctx, req, http.TaskObserverFunc(func(t http.Task) {
//	    jobs.attach(t.CorrelationKey(), t)
//	}))
//	for ev := range task.Events() {
//	    if !ev.Done {
//	        fmt.Printf("%.0f%%\n", ev.Fraction*100)
//	    }
//	}
//
// # Progress Tracking
//
// The ProgressWriter type can be used to wrap any io.Writer for progress tracking:
//
//	pw := &http.ProgressWriter{
//	    Writer:   file,
//	    Total:    contentLength,
//	    OnUpdate: func(written, total int64) { /* update UI */ },
//	}
package http
