package soundcloud

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/handiism/soundcloud-offline/internal/api"
	"github.com/handiism/soundcloud-offline/internal/logging"
	"github.com/handiism/soundcloud-offline/internal/model"
	"github.com/handiism/soundcloud-offline/internal/soundcloud/dto"
)

var (
	meDescriptor        = api.Get[dto.JSONUser]("/me", nil)
	likesDescriptor     = api.Get[api.Collection[dto.JSONTrack]]("/me/likes/tracks", paged())
	playlistsDescriptor = api.Get[api.Collection[dto.JSONPlaylist]]("/me/playlists", paged())
)

func paged() url.Values {
	return url.Values{"linked_partitioning": {"true"}}
}

// Service exposes the SoundCloud endpoints used by the client.
type Service struct {
	exec     *api.Executor
	pageSize int
	logger   *slog.Logger
}

// NewService creates a Service. pageSize is sent as limit on list calls;
// zero leaves the server default.
func NewService(exec *api.Executor, pageSize int, logger *slog.Logger) *Service {
	return &Service{
		exec:     exec,
		pageSize: pageSize,
		logger:   logging.OrDiscard(logger).With("component", "soundcloud"),
	}
}

// Me returns the logged in user.
func (s *Service) Me(ctx context.Context) (*model.User, error) {
	u, err := api.Execute(ctx, s.exec, meDescriptor)
	if err != nil {
		return nil, fmt.Errorf("fetch me: %w", err)
	}
	return u.ToUser(), nil
}

// Track returns a single track.
func (s *Service) Track(ctx context.Context, id int64) (*model.Track, error) {
	t, err := api.Execute(ctx, s.exec, api.Get[dto.JSONTrack](trackPath(id), nil))
	if err != nil {
		return nil, fmt.Errorf("fetch track %d: %w", id, err)
	}
	return t.ToTrack(), nil
}

// Likes returns the first page of the user's liked tracks.
func (s *Service) Likes(ctx context.Context) (api.Page[*model.Track], error) {
	return s.trackPage(ctx, withLimit(likesDescriptor, s.pageSize))
}

// Playlists returns the first page of the user's playlists.
func (s *Service) Playlists(ctx context.Context) (api.Page[*model.Playlist], error) {
	p, err := api.FetchPage(ctx, s.exec, withLimit(playlistsDescriptor, s.pageSize))
	if err != nil {
		return api.Page[*model.Playlist]{}, fmt.Errorf("fetch playlists: %w", err)
	}
	return api.MapPage(p, toPlaylist), nil
}

// Playlist returns a playlist with its embedded tracks.
func (s *Service) Playlist(ctx context.Context, id int64) (*model.Playlist, error) {
	p, err := api.Execute(ctx, s.exec, api.Get[dto.JSONPlaylist]("/playlists/"+strconv.FormatInt(id, 10), nil))
	if err != nil {
		return nil, fmt.Errorf("fetch playlist %d: %w", id, err)
	}
	return p.ToPlaylist(), nil
}

// PlaylistTracks returns the first page of a playlist's tracks.
func (s *Service) PlaylistTracks(ctx context.Context, id int64) (api.Page[*model.Track], error) {
	d := api.Get[api.Collection[dto.JSONTrack]]("/playlists/"+strconv.FormatInt(id, 10)+"/tracks", paged())
	return s.trackPage(ctx, withLimit(d, s.pageSize))
}

// SearchTracks returns the first page of tracks matching q.
func (s *Service) SearchTracks(ctx context.Context, q string) (api.Page[*model.Track], error) {
	d := api.Get[api.Collection[dto.JSONTrack]]("/tracks", paged()).WithQuery("q", q)
	return s.trackPage(ctx, withLimit(d, s.pageSize))
}

// NextTracks fetches the page after page. It fails with
// ErrExhaustedPagination, without a request, on the last page.
func (s *Service) NextTracks(ctx context.Context, page api.Page[*model.Track]) (api.Page[*model.Track], error) {
	next, err := api.FetchNextPage(ctx, s.exec, api.Page[dto.JSONTrack]{NextHref: page.NextHref})
	if err != nil {
		return api.Page[*model.Track]{}, err
	}
	return api.MapPage(next, toTrack), nil
}

// NextPlaylists is NextTracks for playlist pages.
func (s *Service) NextPlaylists(ctx context.Context, page api.Page[*model.Playlist]) (api.Page[*model.Playlist], error) {
	next, err := api.FetchNextPage(ctx, s.exec, api.Page[dto.JSONPlaylist]{NextHref: page.NextHref})
	if err != nil {
		return api.Page[*model.Playlist]{}, err
	}
	return api.MapPage(next, toPlaylist), nil
}

// CollectTracks follows cursors from first, merging pages until there are
// none left or at least max tracks are loaded (max <= 0 means all).
func (s *Service) CollectTracks(ctx context.Context, first api.Page[*model.Track], max int) (api.Page[*model.Track], error) {
	page := first
	for page.HasNextPage() && (max <= 0 || len(page.Items) < max) {
		next, err := s.NextTracks(ctx, page)
		if err != nil {
			return page, err
		}
		page = page.Merge(next)
	}
	if max > 0 && len(page.Items) > max {
		page.Items = page.Items[:max]
	}
	return page, nil
}

// LikeTrack adds a track to the user's likes.
func (s *Service) LikeTrack(ctx context.Context, id int64) error {
	_, err := api.Execute(ctx, s.exec, api.Post[struct{}]("/likes/tracks/"+strconv.FormatInt(id, 10), nil))
	if err != nil {
		return fmt.Errorf("like track %d: %w", id, err)
	}
	return nil
}

// UnlikeTrack removes a track from the user's likes.
func (s *Service) UnlikeTrack(ctx context.Context, id int64) error {
	_, err := api.Execute(ctx, s.exec, api.Delete[struct{}]("/likes/tracks/"+strconv.FormatInt(id, 10)))
	if err != nil {
		return fmt.Errorf("unlike track %d: %w", id, err)
	}
	return nil
}

// StreamURL returns where the audio of track is streamed from.
func StreamURL(track *model.Track) string {
	if track.StreamURL != "" {
		return track.StreamURL
	}
	return trackPath(track.ID) + "/stream"
}

func (s *Service) trackPage(ctx context.Context, d api.Descriptor[api.Collection[dto.JSONTrack]]) (api.Page[*model.Track], error) {
	p, err := api.FetchPage(ctx, s.exec, d)
	if err != nil {
		return api.Page[*model.Track]{}, fmt.Errorf("fetch %s: %w", d.Path, err)
	}
	s.logger.Debug("page fetched", "path", d.Path, "items", len(p.Items), "has_next", p.HasNextPage())
	return api.MapPage(p, toTrack), nil
}

func withLimit[T any](d api.Descriptor[T], n int) api.Descriptor[T] {
	if n <= 0 {
		return d
	}
	return d.WithQuery("limit", strconv.Itoa(n))
}

func trackPath(id int64) string {
	return "/tracks/" + strconv.FormatInt(id, 10)
}

func toTrack(jt dto.JSONTrack) *model.Track { return jt.ToTrack() }

func toPlaylist(jp dto.JSONPlaylist) *model.Playlist { return jp.ToPlaylist() }
