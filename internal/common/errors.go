// Package common holds the error taxonomy shared by every layer of the
// client: transport, request execution, authentication and downloads.
//
// Callers match with errors.Is / errors.As; every layer wraps with %w.
//
//	_, err := api.Execute(ctx, exec, desc)
//	if errors.Is(err, common.ErrAuthRequired) {
//	    // ask the user to log in again
//	}
//
//	var netErr *common.NetworkError
//	if errors.As(err, &netErr) {
//	    fmt.Println("HTTP", netErr.StatusCode)
//	}
package common

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthRequired is returned when no credential is stored or the server
	// answered 401.
	ErrAuthRequired = errors.New("authentication required")

	// ErrRefreshFailed is returned when an expired access token could not be
	// refreshed. The stored credential is left as it was.
	ErrRefreshFailed = errors.New("token refresh failed")

	// ErrInvalidURL is returned when a request URL cannot be built.
	ErrInvalidURL = errors.New("invalid url")

	// ErrNetwork is matched by every *NetworkError.
	ErrNetwork = errors.New("network error")

	// ErrDecoding is returned when a response body does not decode into the
	// expected type.
	ErrDecoding = errors.New("decoding error")

	ErrAlreadyDownloaded = errors.New("track already downloaded")
	ErrInProgress        = errors.New("download already in progress")
	ErrNotInProgress     = errors.New("no download in progress")
	ErrArtifactNotFound  = errors.New("artifact not found")

	// ErrCanceled is returned to a caller still waiting on a download that
	// was canceled.
	ErrCanceled = errors.New("download canceled")

	// ErrExhaustedPagination is returned when asking for the page after the
	// last one.
	ErrExhaustedPagination = errors.New("no more pages")

	// ErrCorruptArtifact reports a stored artifact that is missing its payload
	// or its metadata. Only produced during reconciliation.
	ErrCorruptArtifact = errors.New("corrupt artifact")
)

// NetworkError is a non-2xx HTTP status, or a transport failure when
// StatusCode is 0.
type NetworkError struct {
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode == 0 {
		if e.Err != nil {
			return fmt.Sprintf("network error: %v", e.Err)
		}
		return "network error"
	}
	return fmt.Sprintf("network error: HTTP %d", e.StatusCode)
}

// Unwrap returns the underlying transport error, if any.
func (e *NetworkError) Unwrap() error { return e.Err }

// Is reports ErrNetwork as a match so callers do not need errors.As for the
// common case.
func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

// StatusCode extracts the HTTP status from err, or 0 when err is not a
// *NetworkError.
func StatusCode(err error) int {
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return netErr.StatusCode
	}
	return 0
}
