// Package app builds the client from one Settings value and offers the
// operations shared by the command line and terminal front ends.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/handiism/soundcloud-offline/internal/api"
	"github.com/handiism/soundcloud-offline/internal/audio"
	"github.com/handiism/soundcloud-offline/internal/auth"
	"github.com/handiism/soundcloud-offline/internal/common"
	"github.com/handiism/soundcloud-offline/internal/config"
	"github.com/handiism/soundcloud-offline/internal/download"
	"github.com/handiism/soundcloud-offline/internal/http"
	ioutils "github.com/handiism/soundcloud-offline/internal/io"
	"github.com/handiism/soundcloud-offline/internal/logging"
	"github.com/handiism/soundcloud-offline/internal/metrics"
	"github.com/handiism/soundcloud-offline/internal/model"
	"github.com/handiism/soundcloud-offline/internal/soundcloud"
	redisstore "github.com/handiism/soundcloud-offline/internal/store/redis"
	"github.com/handiism/soundcloud-offline/internal/store/sqlite"
)

// Options are the process-level dependencies of an App.
type Options struct {
	// LogOutput receives log lines. Nil means os.Stderr.
	LogOutput io.Writer

	// Registerer receives the metrics. Nil means the default registry.
	Registerer prometheus.Registerer
}

// App holds every constructed component.
type App struct {
	Settings   *config.Settings
	Logger     *slog.Logger
	Metrics    *metrics.Prom
	Transport  *http.Client
	DB         *sqlite.Store
	Auth       *auth.Gateway
	Executor   *api.Executor
	SoundCloud *soundcloud.Service
	Artifacts  download.ArtifactStore
	Downloads  *download.Manager

	playlists *audio.PlaylistCreator
	closers   []func() error
}

// New wires the components described by settings. The database schema is
// migrated; reconciliation is left to the caller.
func New(ctx context.Context, settings *config.Settings, opts Options) (*App, error) {
	if settings == nil {
		settings = config.DefaultSettings()
	}
	out := opts.LogOutput
	if out == nil {
		out = os.Stderr
	}

	a := &App{Settings: settings}
	a.Logger = logging.New(settings.LogLevel, settings.LogFormat, out)
	a.Metrics = metrics.NewProm(settings.MetricsNamespace, opts.Registerer)
	a.Transport = http.NewClient(settings.ToTransportConfig(), a.Logger)

	db, err := sqlite.Open(ctx, settings.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a.DB = db
	a.closers = append(a.closers, db.Close)
	if err := db.ApplyMigrations(); err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	a.Auth = auth.NewGateway(settings.ToAuthConfig(), db.Credentials(), a.Transport, a.Metrics, a.Logger)
	a.Executor = api.NewExecutor(a.Transport, settings.APIBaseURL, a.Auth, a.Metrics, a.Logger)
	a.SoundCloud = soundcloud.NewService(a.Executor, settings.PageSize, a.Logger)

	switch settings.ArtifactBackend {
	case "redis":
		rs, err := redisstore.NewStore(ctx, settings.RedisURL, a.Logger)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.Artifacts = rs
		a.closers = append(a.closers, rs.Close)
	case "", "file":
		a.Artifacts = db.Artifacts(settings.DownloadsPath, settings.ToTrackConfig(), a.Logger)
	default:
		_ = a.Close()
		return nil, fmt.Errorf("unknown artifact backend %q", settings.ArtifactBackend)
	}

	tagCfg := audio.DefaultTagConfig()
	tagCfg.ModifyTags = settings.ModifyTags
	tagger := audio.NewArtworkTagger(audio.NewTagger(tagCfg), a.Transport, ioutils.NewImageService(), audio.ArtworkOptions{
		Embed:     settings.SaveCoverArtInTags,
		Cover:     coverOptions(settings),
		CacheSize: settings.ArtworkCacheSize,
	}, a.Logger)

	a.Downloads = download.NewManager(a.Transport, a.Executor, a.Artifacts,
		download.WithTagger(tagger),
		download.WithMetrics(a.Metrics),
		download.WithLogger(a.Logger),
	)
	a.closers = append(a.closers, func() error { a.Downloads.Close(); return nil })

	a.playlists = audio.NewPlaylistCreator(settings.ToPlaylistFormat(), settings.M3UExtended)
	return a, nil
}

// Close releases everything New opened, in reverse order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// BatchResult counts the outcomes of DownloadTracks.
type BatchResult struct {
	Downloaded int
	Skipped    int
	Failed     int
}

// DownloadTracks downloads tracks with at most concurrency downloads in
// flight. Tracks already downloaded or in progress are skipped. Failures
// of single tracks are logged and counted; an error is only returned when
// ctx ends or authentication is required.
func (a *App) DownloadTracks(ctx context.Context, tracks []*model.Track, concurrency int) (BatchResult, error) {
	if concurrency < 1 {
		concurrency = 1
	}

	logger := logging.FromContextOr(ctx, a.Logger)

	var downloaded, skipped, failed atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, track := range tracks {
		track := track
		g.Go(func() error {
			err := a.Downloads.Start(gctx, track)
			switch {
			case err == nil:
				downloaded.Add(1)
			case errors.Is(err, common.ErrAlreadyDownloaded), errors.Is(err, common.ErrInProgress):
				skipped.Add(1)
			case errors.Is(err, common.ErrAuthRequired):
				failed.Add(1)
				return err
			case gctx.Err() != nil:
				return gctx.Err()
			default:
				failed.Add(1)
				logger.Warn("download failed", "track_id", track.ID, "title", track.Title, "error", err)
			}
			return nil
		})
	}

	err := g.Wait()
	return BatchResult{
		Downloaded: int(downloaded.Load()),
		Skipped:    int(skipped.Load()),
		Failed:     int(failed.Load()),
	}, err
}

// payloadSource is implemented by stores that do not keep payloads as
// files.
type payloadSource interface {
	Payload(ctx context.Context, trackID int64) ([]byte, error)
}

// ExportPlaylist writes a playlist file for the downloaded tracks of
// playlist into dir and returns its path. Tracks that are not downloaded
// are left out. When the store keeps payloads outside the filesystem they
// are copied next to the playlist file.
func (a *App) ExportPlaylist(ctx context.Context, playlist *model.Playlist, dir string) (string, error) {
	trackCfg := a.Settings.ToTrackConfig()
	source, copyPayloads := a.Artifacts.(payloadSource)

	var entries []audio.Entry
	for _, track := range playlist.Tracks {
		artifact, err := a.Artifacts.Read(ctx, track.ID)
		if errors.Is(err, common.ErrArtifactNotFound) {
			continue
		}
		if err != nil {
			return "", err
		}

		location := artifact.PayloadLocation
		if copyPayloads {
			data, err := source.Payload(ctx, track.ID)
			if err != nil {
				return "", err
			}
			location = filepath.Join(dir, artifact.Metadata.FileName(trackCfg))
			if err := ioutils.WriteFileAtomic(ctx, location, data); err != nil {
				return "", err
			}
		}
		entries = append(entries, audio.Entry{Track: &artifact.Metadata, Location: location})
	}

	path := playlist.PlaylistPath(dir, a.Settings.PlaylistFileNameFormat, a.playlists.Format())
	content := a.playlists.CreatePlaylist(playlist, audio.RelativeEntries(filepath.Dir(path), entries))
	if err := ioutils.WriteFileAtomic(ctx, path, []byte(content)); err != nil {
		return "", fmt.Errorf("write playlist: %w", err)
	}

	logging.FromContextOr(ctx, a.Logger).Info("playlist exported", "playlist_id", playlist.ID, "tracks", len(entries), "path", path)
	return path, nil
}

func coverOptions(s *config.Settings) ioutils.CoverOptions {
	opts := ioutils.CoverOptions{ToJPEG: s.ConvertCoverArtToJPG}
	if s.CoverArtInTagsResize {
		opts.MaxSize = s.CoverArtInTagsMaxSize
	}
	return opts
}
