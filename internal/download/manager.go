package download

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	nethttp "net/http"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/handiism/soundcloud-offline/internal/common"
	"github.com/handiism/soundcloud-offline/internal/http"
	"github.com/handiism/soundcloud-offline/internal/logging"
	"github.com/handiism/soundcloud-offline/internal/metrics"
	"github.com/handiism/soundcloud-offline/internal/model"
	"github.com/handiism/soundcloud-offline/internal/soundcloud"
)

// ArtifactStore persists downloaded tracks as a payload plus a metadata
// snapshot. Write and Delete treat the two halves as one unit.
type ArtifactStore interface {
	List(ctx context.Context) ([]model.ArtifactInfo, error)
	Write(ctx context.Context, track *model.Track, payload []byte) (*model.Artifact, error)
	Read(ctx context.Context, trackID int64) (*model.Artifact, error)
	Delete(ctx context.Context, trackID int64) error
	Exists(ctx context.Context, trackID int64) (bool, error)
}

// PayloadTagger rewrites a downloaded payload before it is stored.
type PayloadTagger interface {
	Tag(ctx context.Context, track *model.Track, payload []byte) ([]byte, error)
}

// RequestBuilder builds the authorized streaming request for a download.
// *api.Executor implements it.
type RequestBuilder interface {
	NewStreamingRequest(ctx context.Context, rawURL, correlationKey string) (*http.Request, error)
}

// Option configures a Manager.
type Option func(*Manager)

// WithTagger sets the tagger applied to every payload before it is stored.
func WithTagger(t PayloadTagger) Option {
	return func(m *Manager) { m.tagger = t }
}

// WithMetrics sets the download metrics sink.
func WithMetrics(dm metrics.DownloadMetrics) Option {
	return func(m *Manager) {
		if dm != nil {
			m.metrics = dm
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = logging.OrDiscard(l).With("component", "download") }
}

// Manager coordinates track downloads: one job per track, progress
// correlation from transport tasks, cancellation, persistence of completed
// downloads and the set of tracks available offline.
//
// All state lives behind mu, which is never held across a network or
// store call.
type Manager struct {
	transport http.Transport
	requests  RequestBuilder
	store     ArtifactStore
	tagger    PayloadTagger
	metrics   metrics.DownloadMetrics
	logger    *slog.Logger

	// Downloads run on ctx so a caller giving up on Start does not abort them.
	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu         sync.Mutex
	jobs       map[int64]*job
	keys       map[string]int64
	outcomes   map[int64]State
	downloaded map[int64]struct{}
	subs       map[*subscriber]struct{}
	closed     bool
}

// NewManager creates a Manager. Call Reconcile before trusting
// IsDownloaded and Downloaded.
func NewManager(transport http.Transport, requests RequestBuilder, store ArtifactStore, opts ...Option) *Manager {
	ctx, stop := context.WithCancel(context.Background())
	m := &Manager{
		transport:  transport,
		requests:   requests,
		store:      store,
		metrics:    metrics.Noop{},
		logger:     logging.Discard(),
		ctx:        ctx,
		stop:       stop,
		jobs:       map[int64]*job{},
		keys:       map[string]int64{},
		outcomes:   map[int64]State{},
		downloaded: map[int64]struct{}{},
		subs:       map[*subscriber]struct{}{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start downloads track and blocks until the download reaches a terminal
// state or ctx ends.
//
// It fails with ErrAlreadyDownloaded when a local artifact exists and with
// ErrInProgress when a job for the track is already registered, in both
// cases without any network call. If Cancel is called while Start waits,
// Start returns ErrCanceled. If ctx ends first, Start returns ctx.Err() and
// the download continues in the background; its outcome is then only
// visible through State and Subscribe.
func (m *Manager) Start(ctx context.Context, track *model.Track) error {
	if track == nil {
		return errors.New("download: nil track")
	}
	id := track.ID

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return errors.New("download: manager closed")
	}
	if _, ok := m.downloaded[id]; ok {
		m.mu.Unlock()
		return common.ErrAlreadyDownloaded
	}
	if _, ok := m.jobs[id]; ok {
		m.mu.Unlock()
		return common.ErrInProgress
	}
	j := &job{
		Job: Job{
			TrackID:        id,
			CorrelationKey: NewCorrelationKey(id),
			State:          StatePending,
		},
		track: track,
		done:  make(chan struct{}),
	}
	m.jobs[id] = j
	m.keys[j.CorrelationKey] = id
	delete(m.outcomes, id)
	m.mu.Unlock()

	exists, err := m.store.Exists(ctx, id)
	if err != nil {
		m.discard(j)
		return fmt.Errorf("check artifact %d: %w", id, err)
	}
	if exists {
		m.discard(j)
		m.mu.Lock()
		m.downloaded[id] = struct{}{}
		m.mu.Unlock()
		return common.ErrAlreadyDownloaded
	}

	m.metrics.IncDownloadsStarted()
	m.emit(Event{TrackID: id, State: StatePending, Level: LevelInfo, Message: "Queued: " + track.Title})

	req, err := m.requests.NewStreamingRequest(ctx, soundcloud.StreamURL(track), j.CorrelationKey)
	if err != nil {
		m.finish(j, StateFailed, err)
		return err
	}

	if !m.current(j) {
		<-j.done
		return j.err
	}

	if _, err := m.transport.SendStreaming(m.ctx, req, m); err != nil {
		err = &common.NetworkError{Err: err}
		m.finish(j, StateFailed, err)
		return err
	}

	select {
	case <-j.done:
		return j.err
	case <-ctx.Done():
		m.mu.Lock()
		j.detached = true
		m.mu.Unlock()
		return ctx.Err()
	}
}

// OnTaskCreated implements http.TaskObserver. It resolves the task's
// correlation key to its pending job, moves the job to Running and starts
// consuming the task's events. A task whose job no longer exists is
// canceled.
func (m *Manager) OnTaskCreated(task http.Task) {
	key := task.CorrelationKey()

	m.mu.Lock()
	id, ok := m.keys[key]
	j := m.jobs[id]
	if !ok || j == nil || j.CorrelationKey != key || j.State != StatePending {
		m.mu.Unlock()
		m.logger.Debug("canceling task without a pending job", "correlation_key", key)
		task.Cancel()
		return
	}
	j.task = task
	j.State = StateRunning
	m.wg.Add(1)
	m.emitLocked(Event{TrackID: id, State: StateRunning, Level: LevelVerbose, Message: "Downloading: " + j.track.Title})
	m.mu.Unlock()

	go m.consume(j, task)
}

// OnProgress records the progress of the job of trackID. Fractions are
// clamped to [0, 1]; they are not required to increase.
func (m *Manager) OnProgress(trackID int64, fraction float64) {
	fraction = min(max(fraction, 0), 1)

	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[trackID]
	if !ok {
		return
	}
	j.Progress = fraction
	m.emitLocked(Event{TrackID: trackID, State: j.State, Progress: fraction, Level: LevelVerbose})
}

// Cancel stops the download of trackID. It fails with ErrNotInProgress when
// no job is Pending or Running for it. Nothing is written for a canceled
// job.
func (m *Manager) Cancel(trackID int64) error {
	m.mu.Lock()
	j, ok := m.jobs[trackID]
	if !ok {
		m.mu.Unlock()
		return common.ErrNotInProgress
	}
	if j.committing {
		m.mu.Unlock()
		return common.ErrNotInProgress
	}
	task := j.task
	m.terminateLocked(j, StateCanceled, common.ErrCanceled)
	m.mu.Unlock()

	if task != nil {
		task.Cancel()
	}
	m.metrics.IncDownloadsFinished(StateCanceled.String())
	m.logger.Info("download canceled", "track_id", trackID)
	return nil
}

// RemoveArtifact deletes both halves of the local artifact of trackID and
// drops it from the downloaded set.
func (m *Manager) RemoveArtifact(ctx context.Context, trackID int64) error {
	exists, err := m.store.Exists(ctx, trackID)
	if err != nil {
		return fmt.Errorf("check artifact %d: %w", trackID, err)
	}

	m.mu.Lock()
	_, known := m.downloaded[trackID]
	m.mu.Unlock()

	if !exists && !known {
		return common.ErrArtifactNotFound
	}

	if err := m.store.Delete(ctx, trackID); err != nil {
		return fmt.Errorf("delete artifact %d: %w", trackID, err)
	}

	m.mu.Lock()
	delete(m.downloaded, trackID)
	m.emitLocked(Event{TrackID: trackID, Removed: true, Level: LevelInfo, Message: fmt.Sprintf("Removed track %d", trackID)})
	m.mu.Unlock()

	m.logger.Info("artifact removed", "track_id", trackID)
	return nil
}

// Reconcile rebuilds the downloaded set from the store. Entries missing
// their payload or their metadata are deleted unless a job for the track
// is live; each one is reported as ErrCorruptArtifact in the joined error.
// Complete entries are kept even when others fail. Downloads completed or
// removed while reconciling keep their outcome.
func (m *Manager) Reconcile(ctx context.Context) error {
	m.mu.Lock()
	before := maps.Clone(m.downloaded)
	live := m.liveLocked(nil)
	m.mu.Unlock()

	infos, err := m.store.List(ctx)
	if err != nil {
		return fmt.Errorf("list artifacts: %w", err)
	}

	// Entries of jobs that were live while listing may be mid-write.
	m.mu.Lock()
	live = m.liveLocked(live)
	m.mu.Unlock()

	var (
		mu       sync.Mutex
		problems []error
		complete = map[int64]struct{}{}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	var discarded int
	for _, info := range infos {
		info := info
		if info.Complete() {
			complete[info.TrackID] = struct{}{}
			continue
		}
		if _, ok := live[info.TrackID]; ok {
			continue
		}
		discarded++
		g.Go(func() error {
			m.logger.Warn("discarding corrupt artifact",
				"track_id", info.TrackID,
				"has_payload", info.HasPayload,
				"has_metadata", info.HasMetadata)

			errs := []error{fmt.Errorf("track %d: %w", info.TrackID, common.ErrCorruptArtifact)}
			if err := m.store.Delete(gctx, info.TrackID); err != nil {
				errs = append(errs, fmt.Errorf("delete corrupt artifact %d: %w", info.TrackID, err))
			}

			mu.Lock()
			problems = append(problems, errs...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	m.mu.Lock()
	next := make(map[int64]struct{}, len(complete))
	for id := range complete {
		_, was := before[id]
		_, is := m.downloaded[id]
		// Removed while reconciling.
		if was && !is {
			continue
		}
		next[id] = struct{}{}
	}
	for id := range m.downloaded {
		// Completed while reconciling.
		if _, was := before[id]; !was {
			next[id] = struct{}{}
		}
	}
	m.downloaded = next
	m.mu.Unlock()

	m.logger.Info("artifacts reconciled", "complete", len(complete), "corrupt", discarded)
	return errors.Join(problems...)
}

// Progress returns the progress of the job of trackID.
func (m *Manager) Progress(trackID int64) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[trackID]
	if !ok {
		return 0, false
	}
	return j.Progress, true
}

// State returns the state of trackID: the state of its job if one exists,
// StateCompleted if it is downloaded, or the terminal state of its last
// unsuccessful job. ok is false when none of these apply.
func (m *Manager) State(trackID int64) (state State, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if j, ok := m.jobs[trackID]; ok {
		return j.State, true
	}
	if _, ok := m.downloaded[trackID]; ok {
		return StateCompleted, true
	}
	state, ok = m.outcomes[trackID]
	return state, ok
}

// Jobs returns the live jobs ordered by track id.
func (m *Manager) Jobs() []Job {
	m.mu.Lock()
	out := make([]Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, j.snapshot())
	}
	m.mu.Unlock()

	slices.SortFunc(out, func(a, b Job) int { return cmp.Compare(a.TrackID, b.TrackID) })
	return out
}

// IsDownloaded reports whether trackID is in the downloaded set.
func (m *Manager) IsDownloaded(trackID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.downloaded[trackID]
	return ok
}

// Downloaded returns the downloaded track ids in ascending order.
func (m *Manager) Downloaded() []int64 {
	m.mu.Lock()
	out := make([]int64, 0, len(m.downloaded))
	for id := range m.downloaded {
		out = append(out, id)
	}
	m.mu.Unlock()

	slices.Sort(out)
	return out
}

// Subscribe returns a stream of events and a function that ends the
// subscription. Events are queued per subscriber, so a slow reader never
// holds up downloads.
func (m *Manager) Subscribe() (<-chan Event, func()) {
	s := newSubscriber()

	m.mu.Lock()
	if m.closed {
		s.close()
	} else {
		m.subs[s] = struct{}{}
	}
	m.mu.Unlock()

	return s.out, func() {
		m.mu.Lock()
		delete(m.subs, s)
		m.mu.Unlock()
		s.close()
	}
}

// Close cancels every running download, waits for their goroutines and
// ends all subscriptions.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	var tasks []http.Task
	for _, j := range m.jobs {
		if j.committing {
			continue
		}
		if j.task != nil {
			tasks = append(tasks, j.task)
		}
		m.terminateLocked(j, StateCanceled, common.ErrCanceled)
	}
	m.mu.Unlock()

	for _, t := range tasks {
		t.Cancel()
	}
	m.stop()
	m.wg.Wait()

	m.mu.Lock()
	for s := range m.subs {
		s.close()
		delete(m.subs, s)
	}
	m.mu.Unlock()
}

func (m *Manager) consume(j *job, task http.Task) {
	defer m.wg.Done()

	for ev := range task.Events() {
		if !ev.Done {
			m.OnProgress(j.TrackID, ev.Fraction)
			continue
		}
		m.complete(j, ev)
		return
	}
	// Closed without a terminal event: the task was canceled.
	m.finish(j, StateFailed, &common.NetworkError{Err: context.Canceled})
}

func (m *Manager) complete(j *job, ev http.Event) {
	if ev.Err != nil {
		m.finish(j, StateFailed, &common.NetworkError{Err: ev.Err})
		return
	}
	if err := classify(ev.Response); err != nil {
		m.finish(j, StateFailed, err)
		return
	}

	payload := ev.Response.Body
	if m.tagger != nil {
		tagged, err := m.tagger.Tag(m.ctx, j.track, payload)
		if err != nil {
			m.logger.Warn("tagging failed, keeping untagged payload", "track_id", j.TrackID, "error", err)
		} else {
			payload = tagged
		}
	}

	m.mu.Lock()
	if m.jobs[j.TrackID] != j {
		m.mu.Unlock()
		return
	}
	j.committing = true
	m.mu.Unlock()

	// A started write is finished even when the manager is closing.
	artifact, err := m.store.Write(context.WithoutCancel(m.ctx), j.track, payload)
	if err != nil {
		m.finish(j, StateFailed, fmt.Errorf("store artifact %d: %w", j.TrackID, err))
		return
	}
	m.metrics.AddBytesPersisted(len(payload))

	m.mu.Lock()
	if m.jobs[j.TrackID] != j {
		m.mu.Unlock()
		return
	}
	m.downloaded[j.TrackID] = struct{}{}
	j.Progress = 1
	m.terminateLocked(j, StateCompleted, nil)
	m.mu.Unlock()

	m.metrics.IncDownloadsFinished(StateCompleted.String())
	m.logger.Info("download completed",
		"track_id", j.TrackID,
		"location", artifact.PayloadLocation,
		"bytes", artifact.Size)
}

// finish ends j with state unless it already ended.
func (m *Manager) finish(j *job, state State, err error) {
	m.mu.Lock()
	if m.jobs[j.TrackID] != j {
		m.mu.Unlock()
		return
	}
	detached := j.detached
	m.terminateLocked(j, state, err)
	m.mu.Unlock()

	m.metrics.IncDownloadsFinished(state.String())
	if detached {
		m.logger.Warn("background download failed", "track_id", j.TrackID, "error", err)
	} else {
		m.logger.Debug("download failed", "track_id", j.TrackID, "error", err)
	}
}

// discard drops a job that never started, without recording an outcome.
func (m *Manager) discard(j *job) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.jobs[j.TrackID] == j {
		delete(m.jobs, j.TrackID)
		delete(m.keys, j.CorrelationKey)
	}
}

func (m *Manager) terminateLocked(j *job, state State, err error) {
	delete(m.jobs, j.TrackID)
	delete(m.keys, j.CorrelationKey)
	if state != StateCompleted {
		m.outcomes[j.TrackID] = state
	}

	j.State = state
	j.err = err
	close(j.done)

	ev := Event{TrackID: j.TrackID, State: state, Progress: j.Progress, Err: err}
	switch state {
	case StateCompleted:
		ev.Level, ev.Message = LevelSuccess, "Downloaded: "+j.track.Title
	case StateCanceled:
		ev.Level, ev.Message = LevelWarning, "Canceled: "+j.track.Title
	default:
		ev.Level, ev.Message = LevelError, fmt.Sprintf("Failed: %s: %v", j.track.Title, err)
	}
	m.emitLocked(ev)
}

// liveLocked adds the track ids of all current jobs to ids.
func (m *Manager) liveLocked(ids map[int64]struct{}) map[int64]struct{} {
	if ids == nil {
		ids = make(map[int64]struct{}, len(m.jobs))
	}
	for id := range m.jobs {
		ids[id] = struct{}{}
	}
	return ids
}

func (m *Manager) current(j *job) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.jobs[j.TrackID] == j
}

func (m *Manager) emit(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emitLocked(ev)
}

func (m *Manager) emitLocked(ev Event) {
	for s := range m.subs {
		s.push(ev)
	}
}

func classify(resp *http.Response) error {
	if resp == nil {
		return &common.NetworkError{}
	}
	switch {
	case resp.StatusCode == nethttp.StatusUnauthorized:
		return common.ErrAuthRequired
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &common.NetworkError{StatusCode: resp.StatusCode}
	}
	return nil
}
