package audio

import (
	"context"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	ioutils "github.com/handiism/soundcloud-offline/internal/io"
	"github.com/handiism/soundcloud-offline/internal/logging"
	"github.com/handiism/soundcloud-offline/internal/model"
)

// ArtworkFetcher downloads artwork bytes. *http.Client implements it.
type ArtworkFetcher interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// ArtworkOptions controls artwork handling in ArtworkTagger.
type ArtworkOptions struct {
	// Embed turns artwork embedding on.
	Embed bool

	// Cover is passed to ImageService.Prepare.
	Cover ioutils.CoverOptions

	// CacheSize is the number of prepared covers kept in memory.
	CacheSize int

	// CacheTTL is how long a cached cover is kept. Zero means one hour.
	CacheTTL time.Duration
}

// ArtworkTagger tags downloaded payloads with metadata and cover art.
//
// Covers are fetched once per URL and kept in an expiring LRU cache, since
// tracks of the same uploader or playlist often share artwork. A cover that
// cannot be fetched or decoded is skipped; the text frames are still
// written.
type ArtworkTagger struct {
	tagger  *Tagger
	fetcher ArtworkFetcher
	images  *ioutils.ImageService
	opts    ArtworkOptions
	cache   *expirable.LRU[string, *Artwork]
	logger  *slog.Logger
}

// NewArtworkTagger creates an ArtworkTagger.
func NewArtworkTagger(tagger *Tagger, fetcher ArtworkFetcher, images *ioutils.ImageService, opts ArtworkOptions, logger *slog.Logger) *ArtworkTagger {
	size := opts.CacheSize
	if size <= 0 {
		size = 32
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	if images == nil {
		images = ioutils.NewImageService()
	}
	return &ArtworkTagger{
		tagger:  tagger,
		fetcher: fetcher,
		images:  images,
		opts:    opts,
		cache:   expirable.NewLRU[string, *Artwork](size, nil, ttl),
		logger:  logging.OrDiscard(logger).With("component", "tagger"),
	}
}

// Tag returns payload with ID3 tags for track.
func (a *ArtworkTagger) Tag(ctx context.Context, track *model.Track, payload []byte) ([]byte, error) {
	var artwork *Artwork
	if a.opts.Embed && track.HasArtwork() && a.fetcher != nil {
		artwork = a.artwork(ctx, track.ArtworkURL)
	}
	return a.tagger.TagPayload(payload, track, artwork)
}

func (a *ArtworkTagger) artwork(ctx context.Context, url string) *Artwork {
	if cached, ok := a.cache.Get(url); ok {
		return cached
	}

	data, err := a.fetcher.Get(ctx, url)
	if err != nil {
		a.logger.Warn("artwork download failed", "url", url, "error", err)
		return nil
	}
	prepared, mime, err := a.images.Prepare(ctx, data, a.opts.Cover)
	if err != nil {
		a.logger.Warn("artwork processing failed", "url", url, "error", err)
		return nil
	}

	art := &Artwork{Data: prepared, MimeType: mime}
	a.cache.Add(url, art)
	return art
}
