package download

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/handiism/soundcloud-offline/internal/common"
	"github.com/handiism/soundcloud-offline/internal/http"
	"github.com/handiism/soundcloud-offline/internal/model"
)

type fakeTask struct {
	key      string
	events   chan http.Event
	mu       sync.Mutex
	canceled bool
	closed   bool
}

func (t *fakeTask) CorrelationKey() string     { return t.key }
func (t *fakeTask) Events() <-chan http.Event { return t.events }

func (t *fakeTask) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.canceled = true
	if !t.closed {
		t.closed = true
		close(t.events)
	}
}

func (t *fakeTask) isCanceled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.canceled
}

func (t *fakeTask) send(ev http.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.events <- ev
	}
}

func (t *fakeTask) finish(ev http.Event) {
	ev.Done = true
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.events <- ev
		t.closed = true
		close(t.events)
	}
}

type fakeTransport struct {
	// deferred keeps OnTaskCreated from being called by SendStreaming.
	deferred bool

	mu        sync.Mutex
	requests  []*http.Request
	observers []http.TaskObserver
	tasks     chan *fakeTask
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{tasks: make(chan *fakeTask, 8)}
}

func (f *fakeTransport) Send(context.Context, *http.Request) (*http.Response, error) {
	return nil, errors.New("not used")
}

func (f *fakeTransport) SendStreaming(ctx context.Context, req *http.Request, observer http.TaskObserver) (http.Task, error) {
	t := &fakeTask{key: req.CorrelationKey, events: make(chan http.Event, 16)}

	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.observers = append(f.observers, observer)
	f.mu.Unlock()

	if !f.deferred {
		observer.OnTaskCreated(t)
	}
	f.tasks <- t
	return t, nil
}

func (f *fakeTransport) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeTransport) nextTask(t *testing.T) *fakeTask {
	t.Helper()
	select {
	case task := <-f.tasks:
		return task
	case <-time.After(2 * time.Second):
		t.Fatal("no streaming task created")
		return nil
	}
}

type fakeRequests struct {
	err error
}

func (f fakeRequests) NewStreamingRequest(ctx context.Context, rawURL, key string) (*http.Request, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &http.Request{Method: "GET", URL: "https://api.example.com" + rawURL, CorrelationKey: key}, nil
}

type memStore struct {
	mu       sync.Mutex
	payloads map[int64][]byte
	meta     map[int64]model.Track
	writeErr error
	deletes  []int64
}

func newMemStore() *memStore {
	return &memStore{payloads: map[int64][]byte{}, meta: map[int64]model.Track{}}
}

func (s *memStore) List(context.Context) ([]model.ArtifactInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := map[int64]bool{}
	for id := range s.payloads {
		ids[id] = true
	}
	for id := range s.meta {
		ids[id] = true
	}
	var out []model.ArtifactInfo
	for id := range ids {
		_, p := s.payloads[id]
		_, m := s.meta[id]
		out = append(out, model.ArtifactInfo{TrackID: id, HasPayload: p, HasMetadata: m})
	}
	return out, nil
}

func (s *memStore) Write(_ context.Context, track *model.Track, payload []byte) (*model.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return nil, s.writeErr
	}
	s.payloads[track.ID] = payload
	s.meta[track.ID] = *track
	return &model.Artifact{TrackID: track.ID, PayloadLocation: "mem", Metadata: *track, Size: int64(len(payload))}, nil
}

func (s *memStore) Read(_ context.Context, id int64) (*model.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payloads[id]
	m, ok2 := s.meta[id]
	if !ok || !ok2 {
		return nil, common.ErrArtifactNotFound
	}
	return &model.Artifact{TrackID: id, Metadata: m, Size: int64(len(p))}, nil
}

func (s *memStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.payloads, id)
	delete(s.meta, id)
	s.deletes = append(s.deletes, id)
	return nil
}

func (s *memStore) Exists(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, p := s.payloads[id]
	_, m := s.meta[id]
	return p && m, nil
}

func (s *memStore) payload(id int64) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payloads[id]
	return p, ok
}

// gatedStore blocks Write and List until the matching gate is released.
type gatedStore struct {
	*memStore
	writeGate chan struct{}
	listGate  chan struct{}
	writing   chan struct{}
	listing   chan struct{}
}

func newGatedStore() *gatedStore {
	return &gatedStore{
		memStore: newMemStore(),
		writing:  make(chan struct{}, 1),
		listing:  make(chan struct{}, 1),
	}
}

func (s *gatedStore) Write(ctx context.Context, track *model.Track, payload []byte) (*model.Artifact, error) {
	if s.writeGate != nil {
		s.writing <- struct{}{}
		<-s.writeGate
	}
	return s.memStore.Write(ctx, track, payload)
}

func (s *gatedStore) List(ctx context.Context) ([]model.ArtifactInfo, error) {
	infos, err := s.memStore.List(ctx)
	if s.listGate != nil {
		s.listing <- struct{}{}
		<-s.listGate
	}
	return infos, err
}

func waitSignal(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("store was not called")
	}
}

type upperTagger struct {
	err error
}

func (u upperTagger) Tag(_ context.Context, _ *model.Track, payload []byte) ([]byte, error) {
	if u.err != nil {
		return nil, u.err
	}
	return append([]byte("ID3"), payload...), nil
}

func track(id int64) *model.Track {
	return &model.Track{ID: id, Title: "Track", Artist: "Artist"}
}

func newManager(t *testing.T, opts ...Option) (*Manager, *fakeTransport, *memStore) {
	t.Helper()
	ft := newFakeTransport()
	store := newMemStore()
	m := NewManager(ft, fakeRequests{}, store, opts...)
	t.Cleanup(m.Close)
	return m, ft, store
}

func startAsync(m *Manager, ctx context.Context, tr *model.Track) <-chan error {
	done := make(chan error, 1)
	go func() { done <- m.Start(ctx, tr) }()
	return done
}

func waitErr(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return")
		return nil
	}
}

func TestStart_Completes(t *testing.T) {
	m, ft, store := newManager(t)

	done := startAsync(m, context.Background(), track(1))
	task := ft.nextTask(t)

	id, err := ParseCorrelationKey(task.CorrelationKey())
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
	assert.Equal(t, "https://api.example.com/tracks/1/stream", ft.requests[0].URL)

	require.Eventually(t, func() bool {
		s, _ := m.State(1)
		return s == StateRunning
	}, time.Second, 5*time.Millisecond)

	task.send(http.Event{Fraction: 0.5})
	require.Eventually(t, func() bool {
		p, ok := m.Progress(1)
		return ok && p == 0.5
	}, time.Second, 5*time.Millisecond)

	task.finish(http.Event{Response: &http.Response{StatusCode: 200, Body: []byte("audio")}})
	require.NoError(t, waitErr(t, done))

	payload, ok := store.payload(1)
	require.True(t, ok)
	assert.Equal(t, "audio", string(payload))
	assert.True(t, m.IsDownloaded(1))
	assert.Equal(t, []int64{1}, m.Downloaded())
	assert.Empty(t, m.Jobs())

	_, ok = m.Progress(1)
	assert.False(t, ok)

	err = m.Start(context.Background(), track(1))
	assert.ErrorIs(t, err, common.ErrAlreadyDownloaded)
	assert.Equal(t, 1, ft.calls())
}

func TestStart_AlreadyDownloadedInStore(t *testing.T) {
	m, ft, store := newManager(t)
	_, err := store.Write(context.Background(), track(2), []byte("x"))
	require.NoError(t, err)

	err = m.Start(context.Background(), track(2))
	assert.ErrorIs(t, err, common.ErrAlreadyDownloaded)
	assert.Equal(t, 0, ft.calls())
	assert.Empty(t, m.Jobs())
	assert.True(t, m.IsDownloaded(2))
}

func TestStart_InProgress(t *testing.T) {
	m, ft, _ := newManager(t)

	done := startAsync(m, context.Background(), track(3))
	task := ft.nextTask(t)

	err := m.Start(context.Background(), track(3))
	assert.ErrorIs(t, err, common.ErrInProgress)
	assert.Equal(t, 1, ft.calls())

	task.finish(http.Event{Response: &http.Response{StatusCode: 200}})
	require.NoError(t, waitErr(t, done))
}

func TestCancel_Running(t *testing.T) {
	m, ft, store := newManager(t)

	done := startAsync(m, context.Background(), track(4))
	task := ft.nextTask(t)
	require.Eventually(t, func() bool {
		s, _ := m.State(4)
		return s == StateRunning
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, m.Cancel(4))
	assert.ErrorIs(t, waitErr(t, done), common.ErrCanceled)
	assert.True(t, task.isCanceled())

	_, ok := m.Progress(4)
	assert.False(t, ok)
	_, ok = store.payload(4)
	assert.False(t, ok)

	s, ok := m.State(4)
	assert.True(t, ok)
	assert.Equal(t, StateCanceled, s)
}

func TestCancel_PendingCancelsLateTask(t *testing.T) {
	m, ft, _ := newManager(t)
	ft.deferred = true

	done := startAsync(m, context.Background(), track(5))
	task := ft.nextTask(t)

	s, _ := m.State(5)
	assert.Equal(t, StatePending, s)

	require.NoError(t, m.Cancel(5))
	assert.ErrorIs(t, waitErr(t, done), common.ErrCanceled)

	ft.mu.Lock()
	observer := ft.observers[0]
	ft.mu.Unlock()
	observer.OnTaskCreated(task)
	assert.True(t, task.isCanceled())
}

func TestCancel_NotInProgress(t *testing.T) {
	m, _, _ := newManager(t)
	assert.ErrorIs(t, m.Cancel(99), common.ErrNotInProgress)
}

func TestOnTaskCreated_UnknownKey(t *testing.T) {
	m, _, _ := newManager(t)
	task := &fakeTask{key: NewCorrelationKey(7), events: make(chan http.Event)}

	m.OnTaskCreated(task)
	assert.True(t, task.isCanceled())
}

func TestStart_ResponseErrors(t *testing.T) {
	tests := []struct {
		name   string
		event  http.Event
		target error
		status int
	}{
		{"unauthorized", http.Event{Response: &http.Response{StatusCode: 401, Body: []byte("{bad")}}, common.ErrAuthRequired, 0},
		{"server error", http.Event{Response: &http.Response{StatusCode: 503}}, common.ErrNetwork, 503},
		{"transport error", http.Event{Err: errors.New("connection reset")}, common.ErrNetwork, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ft, store := newManager(t)

			done := startAsync(m, context.Background(), track(6))
			ft.nextTask(t).finish(tt.event)

			err := waitErr(t, done)
			require.ErrorIs(t, err, tt.target)
			assert.Equal(t, tt.status, common.StatusCode(err))

			_, ok := store.payload(6)
			assert.False(t, ok)
			assert.False(t, m.IsDownloaded(6))
			s, _ := m.State(6)
			assert.Equal(t, StateFailed, s)
		})
	}
}

func TestStart_RequestBuildFailure(t *testing.T) {
	ft := newFakeTransport()
	m := NewManager(ft, fakeRequests{err: common.ErrAuthRequired}, newMemStore())
	defer m.Close()

	err := m.Start(context.Background(), track(8))
	assert.ErrorIs(t, err, common.ErrAuthRequired)
	assert.Equal(t, 0, ft.calls())
	assert.Empty(t, m.Jobs())
}

func TestStart_StoreFailure(t *testing.T) {
	m, ft, store := newManager(t)
	store.writeErr = errors.New("disk full")

	done := startAsync(m, context.Background(), track(9))
	ft.nextTask(t).finish(http.Event{Response: &http.Response{StatusCode: 200, Body: []byte("a")}})

	err := waitErr(t, done)
	assert.ErrorContains(t, err, "disk full")
	assert.False(t, m.IsDownloaded(9))
}

func TestStart_DetachedFailureIsObservable(t *testing.T) {
	m, ft, _ := newManager(t)
	events, stop := m.Subscribe()
	defer stop()

	ctx, cancel := context.WithCancel(context.Background())
	done := startAsync(m, ctx, track(10))
	task := ft.nextTask(t)

	cancel()
	assert.ErrorIs(t, waitErr(t, done), context.Canceled)

	s, _ := m.State(10)
	assert.Equal(t, StateRunning, s)
	assert.False(t, task.isCanceled())

	task.finish(http.Event{Response: &http.Response{StatusCode: 500}})

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.TrackID == 10 && ev.State == StateFailed {
				assert.ErrorIs(t, ev.Err, common.ErrNetwork)
				s, _ := m.State(10)
				assert.Equal(t, StateFailed, s)
				return
			}
		case <-deadline:
			t.Fatal("no Failed event")
		}
	}
}

func TestStart_Tagging(t *testing.T) {
	t.Run("tagged payload stored", func(t *testing.T) {
		m, ft, store := newManager(t, WithTagger(upperTagger{}))
		done := startAsync(m, context.Background(), track(11))
		ft.nextTask(t).finish(http.Event{Response: &http.Response{StatusCode: 200, Body: []byte("a")}})
		require.NoError(t, waitErr(t, done))

		p, _ := store.payload(11)
		assert.Equal(t, "ID3a", string(p))
	})

	t.Run("tagging failure keeps payload", func(t *testing.T) {
		m, ft, store := newManager(t, WithTagger(upperTagger{err: errors.New("bad mp3")}))
		done := startAsync(m, context.Background(), track(12))
		ft.nextTask(t).finish(http.Event{Response: &http.Response{StatusCode: 200, Body: []byte("a")}})
		require.NoError(t, waitErr(t, done))

		p, _ := store.payload(12)
		assert.Equal(t, "a", string(p))
	})
}

func TestOnProgress_Clamps(t *testing.T) {
	m, ft, _ := newManager(t)
	ft.deferred = true

	done := startAsync(m, context.Background(), track(13))
	ft.nextTask(t)

	m.OnProgress(13, 1.7)
	p, _ := m.Progress(13)
	assert.Equal(t, 1.0, p)

	m.OnProgress(13, 0.2)
	p, _ = m.Progress(13)
	assert.Equal(t, 0.2, p)

	m.OnProgress(13, -1)
	p, _ = m.Progress(13)
	assert.Equal(t, 0.0, p)

	m.OnProgress(404, 0.5)
	_, ok := m.Progress(404)
	assert.False(t, ok)

	require.NoError(t, m.Cancel(13))
	waitErr(t, done)
}

func TestRemoveArtifact(t *testing.T) {
	m, _, store := newManager(t)

	assert.ErrorIs(t, m.RemoveArtifact(context.Background(), 20), common.ErrArtifactNotFound)

	_, err := store.Write(context.Background(), track(20), []byte("x"))
	require.NoError(t, err)
	require.NoError(t, m.Reconcile(context.Background()))
	require.True(t, m.IsDownloaded(20))

	require.NoError(t, m.RemoveArtifact(context.Background(), 20))
	assert.False(t, m.IsDownloaded(20))
	ok, _ := store.Exists(context.Background(), 20)
	assert.False(t, ok)
}

func TestReconcile_DiscardsCorrupt(t *testing.T) {
	m, _, store := newManager(t)
	ctx := context.Background()

	_, err := store.Write(ctx, track(1), []byte("x"))
	require.NoError(t, err)
	store.payloads[2] = []byte("orphan")
	store.meta[3] = *track(3)

	err = m.Reconcile(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrCorruptArtifact)
	assert.Contains(t, err.Error(), "track 2")
	assert.Contains(t, err.Error(), "track 3")

	assert.Equal(t, []int64{1}, m.Downloaded())
	assert.ElementsMatch(t, []int64{2, 3}, store.deletes)

	infos, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.True(t, infos[0].Complete())
}

func TestCancel_DuringWriteIsRejected(t *testing.T) {
	ft := newFakeTransport()
	store := newGatedStore()
	store.writeGate = make(chan struct{})
	m := NewManager(ft, fakeRequests{}, store)
	t.Cleanup(m.Close)

	done := startAsync(m, context.Background(), track(9))
	task := ft.nextTask(t)
	task.finish(http.Event{Response: &http.Response{StatusCode: 200, Body: []byte("audio")}})
	waitSignal(t, store.writing)

	assert.ErrorIs(t, m.Cancel(9), common.ErrNotInProgress)
	close(store.writeGate)

	require.NoError(t, waitErr(t, done))
	assert.False(t, task.isCanceled())
	assert.True(t, m.IsDownloaded(9))
	s, ok := m.State(9)
	require.True(t, ok)
	assert.Equal(t, StateCompleted, s)
	_, ok = store.payload(9)
	assert.True(t, ok)
}

func TestReconcile_SkipsLiveJobs(t *testing.T) {
	m, ft, store := newManager(t)
	ctx := context.Background()

	done := startAsync(m, ctx, track(40))
	task := ft.nextTask(t)

	// Half-written entry of the running job.
	store.mu.Lock()
	store.payloads[40] = []byte("partial")
	store.mu.Unlock()

	require.NoError(t, m.Reconcile(ctx))
	assert.Empty(t, store.deletes)

	task.finish(http.Event{Response: &http.Response{StatusCode: 200, Body: []byte("audio")}})
	require.NoError(t, waitErr(t, done))
	assert.True(t, m.IsDownloaded(40))
}

func TestReconcile_KeepsConcurrentCompletion(t *testing.T) {
	ft := newFakeTransport()
	store := newGatedStore()
	store.listGate = make(chan struct{})
	m := NewManager(ft, fakeRequests{}, store)
	t.Cleanup(m.Close)
	ctx := context.Background()

	_, err := store.memStore.Write(ctx, track(1), []byte("x"))
	require.NoError(t, err)

	reconciled := make(chan error, 1)
	go func() { reconciled <- m.Reconcile(ctx) }()
	waitSignal(t, store.listing)

	done := startAsync(m, ctx, track(2))
	task := ft.nextTask(t)
	task.finish(http.Event{Response: &http.Response{StatusCode: 200, Body: []byte("audio")}})
	require.NoError(t, waitErr(t, done))

	close(store.listGate)
	require.NoError(t, waitErr(t, reconciled))

	assert.Equal(t, []int64{1, 2}, m.Downloaded())
}

func TestReconcile_Clean(t *testing.T) {
	m, _, _ := newManager(t)
	assert.NoError(t, m.Reconcile(context.Background()))
	assert.Empty(t, m.Downloaded())
}

func TestSubscribe_EventSequence(t *testing.T) {
	m, ft, _ := newManager(t)
	events, stop := m.Subscribe()
	defer stop()

	done := startAsync(m, context.Background(), track(30))
	task := ft.nextTask(t)
	task.send(http.Event{Fraction: 0.25})
	task.finish(http.Event{Response: &http.Response{StatusCode: 200, Body: []byte("a")}})
	require.NoError(t, waitErr(t, done))

	var states []State
	for len(states) < 4 {
		select {
		case ev := <-events:
			states = append(states, ev.State)
		case <-time.After(2 * time.Second):
			t.Fatalf("got %v", states)
		}
	}
	assert.Equal(t, []State{StatePending, StateRunning, StateRunning, StateCompleted}, states)
}

func TestSubscribe_StopClosesStream(t *testing.T) {
	m, _, _ := newManager(t)
	events, stop := m.Subscribe()
	stop()

	select {
	case _, ok := <-events:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("stream not closed")
	}
}

func TestCorrelationKey(t *testing.T) {
	a := NewCorrelationKey(42)
	b := NewCorrelationKey(42)
	assert.NotEqual(t, a, b)

	id, err := ParseCorrelationKey(a)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	for _, bad := range []string{"", "42", "x:01ARZ3NDEKTSV4RRFFQ69G5FAV", "42:not-a-ulid"} {
		_, err := ParseCorrelationKey(bad)
		assert.ErrorIs(t, err, ErrInvalidCorrelationKey, bad)
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "running", StateRunning.String())
	assert.True(t, StateFailed.Terminal())
	assert.False(t, StatePending.Terminal())
}
