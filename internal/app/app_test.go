package app

import (
	"context"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/handiism/soundcloud-offline/internal/auth"
	"github.com/handiism/soundcloud-offline/internal/common"
	"github.com/handiism/soundcloud-offline/internal/config"
	"github.com/handiism/soundcloud-offline/internal/model"
)

func fakeSoundCloud(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.URL.Path == "/oauth/token" {
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
			_, _ = w.Write([]byte(`{"access_token":"tok","refresh_token":"ref","expires_in":3600,"token_type":"bearer"}`))
			return
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(nethttp.StatusUnauthorized)
			return
		}
		switch {
		case r.URL.Path == "/me/likes/tracks":
			_, _ = w.Write([]byte(`{"collection":[
				{"id":1,"title":"One","user":{"id":9,"username":"dj"},"duration":1000},
				{"id":2,"title":"Two","user":{"id":9,"username":"dj"},"duration":2000}
			],"next_href":null}`))
		case strings.HasSuffix(r.URL.Path, "/stream"):
			_, _ = w.Write([]byte("not really an mp3"))
		default:
			nethttp.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestApp(t *testing.T, srv *httptest.Server) *App {
	t.Helper()
	dir := t.TempDir()

	s := config.DefaultSettings()
	s.APIBaseURL = srv.URL
	s.TokenURL = srv.URL + "/oauth/token"
	s.ClientID = "client"
	s.DatabasePath = filepath.Join(dir, "library.db")
	s.DownloadsPath = filepath.Join(dir, "tracks")
	s.SaveCoverArtInTags = false
	s.RequestsPerSecond = 0
	s.LogLevel = "error"

	a, err := New(context.Background(), s, Options{LogOutput: io.Discard, Registerer: prometheus.NewRegistry()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestApp_LoginLikesDownloadExport(t *testing.T) {
	srv := fakeSoundCloud(t)
	a := newTestApp(t, srv)
	ctx := context.Background()

	state, err := a.Auth.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, auth.StateUnauthenticated, state)

	_, err = a.SoundCloud.Likes(ctx)
	require.ErrorIs(t, err, common.ErrAuthRequired)

	_, err = a.Auth.Login(ctx, "code")
	require.NoError(t, err)

	page, err := a.SoundCloud.Likes(ctx)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.False(t, page.HasNextPage())

	require.NoError(t, a.Downloads.Reconcile(ctx))
	res, err := a.DownloadTracks(ctx, page.Items, 2)
	require.NoError(t, err)
	assert.Equal(t, BatchResult{Downloaded: 2}, res)
	assert.Equal(t, []int64{1, 2}, a.Downloads.Downloaded())

	res, err = a.DownloadTracks(ctx, page.Items, 2)
	require.NoError(t, err)
	assert.Equal(t, BatchResult{Skipped: 2}, res)

	artifact, err := a.Artifacts.Read(ctx, 1)
	require.NoError(t, err)
	data, err := os.ReadFile(artifact.PayloadLocation)
	require.NoError(t, err)
	assert.Contains(t, string(data), "not really an mp3")

	playlist := &model.Playlist{ID: 5, Title: "Likes", Tracks: append(page.Items, &model.Track{ID: 3, Title: "Missing"})}
	path, err := a.ExportPlaylist(ctx, playlist, a.Settings.DownloadsPath)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(a.Settings.DownloadsPath, "Likes.m3u"), path)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "1/dj - One.mp3")
	assert.Contains(t, string(content), "2/dj - Two.mp3")
	assert.NotContains(t, string(content), "Missing")

	require.NoError(t, a.Downloads.RemoveArtifact(ctx, 2))
	assert.Equal(t, []int64{1}, a.Downloads.Downloaded())

	require.NoError(t, a.Auth.Logout(ctx))
	state, err = a.Auth.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, auth.StateUnauthenticated, state)
}

func TestApp_DownloadRequiresLogin(t *testing.T) {
	a := newTestApp(t, fakeSoundCloud(t))

	res, err := a.DownloadTracks(context.Background(), []*model.Track{{ID: 1, Title: "One"}}, 1)
	assert.ErrorIs(t, err, common.ErrAuthRequired)
	assert.Equal(t, 1, res.Failed)
}

func TestNew_UnknownBackend(t *testing.T) {
	s := config.DefaultSettings()
	s.DatabasePath = ":memory:"
	s.ArtifactBackend = "s3"

	_, err := New(context.Background(), s, Options{LogOutput: io.Discard, Registerer: prometheus.NewRegistry()})
	assert.ErrorContains(t, err, "unknown artifact backend")
}
