// Package redis is an ArtifactStore that keeps payloads and metadata in
// Redis. Both halves of an artifact are written in one MULTI/EXEC
// transaction, so a reader never sees one without the other.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/handiism/soundcloud-offline/internal/common"
	"github.com/handiism/soundcloud-offline/internal/logging"
	"github.com/handiism/soundcloud-offline/internal/model"
)

const (
	defaultRedisURL = "redis://localhost:6379"
	keyPrefix       = "sc:artifact:"
	payloadSuffix   = ":payload"
	metaSuffix      = ":meta"
	scanCount       = 256
)

// metadata is the JSON document stored under the meta key.
type metadata struct {
	Track     model.Track `json:"track"`
	Size      int64       `json:"size"`
	CreatedAt time.Time   `json:"created_at"`
}

// Store implements download.ArtifactStore on Redis.
type Store struct {
	client redis.UniversalClient
	logger *slog.Logger
	now    func() time.Time
}

// NewStore connects to the Redis server at url and checks it answers.
func NewStore(ctx context.Context, url string, logger *slog.Logger) (*Store, error) {
	if url == "" {
		url = defaultRedisURL
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return New(client, logger), nil
}

// New wraps an existing client.
func New(client redis.UniversalClient, logger *slog.Logger) *Store {
	return &Store{
		client: client,
		logger: logging.OrDiscard(logger).With("component", "artifacts", "backend", "redis"),
		now:    time.Now,
	}
}

// Close closes the underlying client.
func (s *Store) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

// Write stores payload and the metadata of track atomically.
func (s *Store) Write(ctx context.Context, track *model.Track, payload []byte) (*model.Artifact, error) {
	created := s.now().UTC()
	meta, err := json.Marshal(metadata{Track: *track, Size: int64(len(payload)), CreatedAt: created})
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, payloadKey(track.ID), payload, 0)
	pipe.Set(ctx, metaKey(track.ID), meta, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("write artifact %d: %w", track.ID, err)
	}

	return &model.Artifact{
		TrackID:         track.ID,
		PayloadLocation: payloadKey(track.ID),
		Metadata:        *track,
		Size:            int64(len(payload)),
		CreatedAt:       created,
	}, nil
}

// Read returns the artifact of trackID, or ErrArtifactNotFound when either
// half is missing.
func (s *Store) Read(ctx context.Context, trackID int64) (*model.Artifact, error) {
	pipe := s.client.Pipeline()
	exists := pipe.Exists(ctx, payloadKey(trackID))
	metaCmd := pipe.Get(ctx, metaKey(trackID))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("read artifact %d: %w", trackID, err)
	}

	data, err := metaCmd.Bytes()
	if errors.Is(err, redis.Nil) || exists.Val() == 0 {
		return nil, common.ErrArtifactNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read artifact %d: %w", trackID, err)
	}

	var meta metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDecoding, err)
	}
	return &model.Artifact{
		TrackID:         trackID,
		PayloadLocation: payloadKey(trackID),
		Metadata:        meta.Track,
		Size:            meta.Size,
		CreatedAt:       meta.CreatedAt,
	}, nil
}

// Payload returns the stored payload bytes of trackID.
func (s *Store) Payload(ctx context.Context, trackID int64) ([]byte, error) {
	data, err := s.client.Get(ctx, payloadKey(trackID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, common.ErrArtifactNotFound
	}
	return data, err
}

// Exists reports whether both halves are present.
func (s *Store) Exists(ctx context.Context, trackID int64) (bool, error) {
	n, err := s.client.Exists(ctx, payloadKey(trackID), metaKey(trackID)).Result()
	if err != nil {
		return false, fmt.Errorf("check artifact %d: %w", trackID, err)
	}
	return n == 2, nil
}

// Delete removes both halves. Deleting a missing artifact is not an error.
func (s *Store) Delete(ctx context.Context, trackID int64) error {
	if err := s.client.Del(ctx, payloadKey(trackID), metaKey(trackID)).Err(); err != nil {
		return fmt.Errorf("delete artifact %d: %w", trackID, err)
	}
	return nil
}

// List scans the artifact keyspace and reports which halves exist per
// track.
func (s *Store) List(ctx context.Context) ([]model.ArtifactInfo, error) {
	infos := map[int64]*model.ArtifactInfo{}

	iter := s.client.Scan(ctx, 0, keyPrefix+"*", scanCount).Iterator()
	for iter.Next(ctx) {
		id, half, ok := parseKey(iter.Val())
		if !ok {
			s.logger.Debug("skipping unknown key", "key", iter.Val())
			continue
		}
		info, found := infos[id]
		if !found {
			info = &model.ArtifactInfo{TrackID: id}
			infos[id] = info
		}
		switch half {
		case payloadSuffix:
			info.HasPayload = true
		case metaSuffix:
			info.HasMetadata = true
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan artifacts: %w", err)
	}

	out := make([]model.ArtifactInfo, 0, len(infos))
	for _, info := range infos {
		out = append(out, *info)
	}
	return out, nil
}

func payloadKey(trackID int64) string {
	return keyPrefix + strconv.FormatInt(trackID, 10) + payloadSuffix
}

func metaKey(trackID int64) string {
	return keyPrefix + strconv.FormatInt(trackID, 10) + metaSuffix
}

func parseKey(key string) (int64, string, bool) {
	rest, ok := strings.CutPrefix(key, keyPrefix)
	if !ok {
		return 0, "", false
	}
	i := strings.IndexByte(rest, ':')
	if i < 0 {
		return 0, "", false
	}
	id, err := strconv.ParseInt(rest[:i], 10, 64)
	if err != nil {
		return 0, "", false
	}
	half := rest[i:]
	if half != payloadSuffix && half != metaSuffix {
		return 0, "", false
	}
	return id, half, true
}
