package download

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/handiism/soundcloud-offline/internal/http"
	"github.com/handiism/soundcloud-offline/internal/model"
)

// State is the lifecycle state of a download job.
type State int

const (
	// StatePending: registered, no transport task yet.
	StatePending State = iota + 1
	// StateRunning: transport task created, progress arriving.
	StateRunning
	StateCompleted
	StateCanceled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateCanceled:
		return "canceled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether s ends a job.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCanceled || s == StateFailed
}

// Job is a snapshot of one download.
type Job struct {
	TrackID        int64
	CorrelationKey string
	Progress       float64
	State          State
}

// job is the manager's mutable record behind a Job.
type job struct {
	Job
	track    *model.Track
	task     http.Task
	detached bool
	// committing is set once the payload is handed to the store; the job
	// can no longer be canceled.
	committing bool

	// done is closed once the job reaches a terminal state; err is set
	// before that.
	done chan struct{}
	err  error
}

func (j *job) snapshot() Job { return j.Job }

// ErrInvalidCorrelationKey is returned by ParseCorrelationKey.
var ErrInvalidCorrelationKey = errors.New("invalid correlation key")

// NewCorrelationKey returns a fresh key for a download of trackID, of the
// form "<trackID>:<ULID>". Two downloads of the same track never share a key.
func NewCorrelationKey(trackID int64) string {
	return strconv.FormatInt(trackID, 10) + ":" + ulid.Make().String()
}

// ParseCorrelationKey returns the track id embedded in key.
func ParseCorrelationKey(key string) (int64, error) {
	idPart, ulidPart, ok := strings.Cut(key, ":")
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCorrelationKey, key)
	}
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCorrelationKey, key)
	}
	if _, err := ulid.ParseStrict(ulidPart); err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCorrelationKey, key)
	}
	return id, nil
}
