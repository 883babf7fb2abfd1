package common

import (
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestNetworkError_Is(t *testing.T) {
	err := fmt.Errorf("fetch likes: %w", &NetworkError{StatusCode: 503})

	if !errors.Is(err, ErrNetwork) {
		t.Error("wrapped NetworkError should match ErrNetwork")
	}
	if errors.Is(err, ErrDecoding) {
		t.Error("NetworkError should not match ErrDecoding")
	}
	if got := StatusCode(err); got != 503 {
		t.Errorf("StatusCode() = %d, want 503", got)
	}
}

func TestNetworkError_Message(t *testing.T) {
	tests := []struct {
		err  *NetworkError
		want string
	}{
		{&NetworkError{StatusCode: 404}, "network error: HTTP 404"},
		{&NetworkError{Err: io.ErrUnexpectedEOF}, "network error: unexpected EOF"},
		{&NetworkError{}, "network error"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNetworkError_Unwrap(t *testing.T) {
	err := &NetworkError{Err: io.ErrUnexpectedEOF}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("NetworkError should unwrap to its cause")
	}
	if StatusCode(io.EOF) != 0 {
		t.Error("StatusCode of a plain error should be 0")
	}
}
