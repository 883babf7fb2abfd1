package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/handiism/soundcloud-offline/internal/common"
	ioutils "github.com/handiism/soundcloud-offline/internal/io"
	"github.com/handiism/soundcloud-offline/internal/logging"
	"github.com/handiism/soundcloud-offline/internal/model"
)

// ArtifactRepository stores payloads as files under dir/<trackID>/ and the
// metadata snapshots as rows in the artifacts table.
//
// Write stages the payload in a hidden directory, writes the row, and only
// then swaps the staged directory into place. A failed row write leaves
// the previous artifact, if any, untouched. A crash between the steps can
// still leave a half pair; List reports such entries and reconciliation
// removes them.
type ArtifactRepository struct {
	db       *sql.DB
	dir      string
	trackCfg *model.TrackConfig
	logger   *slog.Logger
	now      func() time.Time
}

// NewArtifactRepository creates an ArtifactRepository.
func NewArtifactRepository(db *sql.DB, dir string, trackCfg *model.TrackConfig, logger *slog.Logger) *ArtifactRepository {
	return &ArtifactRepository{
		db:       db,
		dir:      dir,
		trackCfg: trackCfg,
		logger:   logging.OrDiscard(logger).With("component", "artifacts"),
		now:      time.Now,
	}
}

// Artifacts returns an artifact repository keeping payloads under dir.
func (s *Store) Artifacts(dir string, trackCfg *model.TrackConfig, logger *slog.Logger) *ArtifactRepository {
	return NewArtifactRepository(s.db, dir, trackCfg, logger)
}

// Write persists payload and the metadata of track.
func (r *ArtifactRepository) Write(ctx context.Context, track *model.Track, payload []byte) (*model.Artifact, error) {
	meta, err := json.Marshal(track)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}

	trackDir := r.trackDir(track.ID)
	name := track.FileName(r.trackCfg)
	location := filepath.Join(trackDir, name)

	if err := ioutils.EnsureDir(r.dir); err != nil {
		return nil, fmt.Errorf("create payload dir: %w", err)
	}
	staging, err := os.MkdirTemp(r.dir, fmt.Sprintf(".staging-%d-", track.ID))
	if err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	defer func() {
		if rmErr := ioutils.RemoveDir(staging); rmErr != nil {
			r.logger.Warn("failed to remove staging dir", "path", staging, "error", rmErr)
		}
	}()

	if err := ioutils.WriteFileAtomic(ctx, filepath.Join(staging, name), payload); err != nil {
		return nil, fmt.Errorf("write payload: %w", err)
	}

	created := r.now().UTC()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO artifacts (track_id, location, size, metadata, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(track_id) DO UPDATE SET
			location = excluded.location,
			size = excluded.size,
			metadata = excluded.metadata,
			created_at = excluded.created_at
	`, track.ID, location, len(payload), string(meta), created.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to insert artifact %d: %w", track.ID, err)
	}

	// A rewrite may change the file name; replace the whole directory.
	if err := ioutils.RemoveDir(trackDir); err == nil {
		err = os.Rename(staging, trackDir)
	}
	if err != nil {
		if _, delErr := r.db.ExecContext(ctx, `DELETE FROM artifacts WHERE track_id = ?`, track.ID); delErr != nil {
			r.logger.Warn("failed to remove metadata after payload error", "track_id", track.ID, "error", delErr)
		}
		return nil, fmt.Errorf("move payload into place: %w", err)
	}

	return &model.Artifact{
		TrackID:         track.ID,
		PayloadLocation: location,
		Metadata:        *track,
		Size:            int64(len(payload)),
		CreatedAt:       created,
	}, nil
}

// Read returns the artifact of trackID. Missing either half yields
// ErrArtifactNotFound.
func (r *ArtifactRepository) Read(ctx context.Context, trackID int64) (*model.Artifact, error) {
	var (
		a       model.Artifact
		meta    string
		created int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT track_id, location, size, metadata, created_at FROM artifacts WHERE track_id = ?`, trackID,
	).Scan(&a.TrackID, &a.PayloadLocation, &a.Size, &meta, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrArtifactNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact %d: %w", trackID, err)
	}

	ok, err := ioutils.Exists(a.PayloadLocation)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, common.ErrArtifactNotFound
	}

	if err := json.Unmarshal([]byte(meta), &a.Metadata); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDecoding, err)
	}
	a.CreatedAt = time.Unix(0, created).UTC()
	return &a, nil
}

// Exists reports whether both halves of the artifact are present.
func (r *ArtifactRepository) Exists(ctx context.Context, trackID int64) (bool, error) {
	var location string
	err := r.db.QueryRowContext(ctx, `SELECT location FROM artifacts WHERE track_id = ?`, trackID).Scan(&location)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check artifact %d: %w", trackID, err)
	}
	return ioutils.Exists(location)
}

// Delete removes both halves. The row is only deleted when the payload
// could be removed. Deleting a missing artifact is not an error.
func (r *ArtifactRepository) Delete(ctx context.Context, trackID int64) error {
	return WithTx(ctx, r.db, func(ctx context.Context, tx DBTX) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM artifacts WHERE track_id = ?`, trackID); err != nil {
			return fmt.Errorf("failed to delete artifact %d: %w", trackID, err)
		}
		if err := ioutils.RemoveDir(r.trackDir(trackID)); err != nil {
			return fmt.Errorf("remove payload %d: %w", trackID, err)
		}
		return nil
	})
}

// List reports every track id that has a metadata row, a payload, or both.
func (r *ArtifactRepository) List(ctx context.Context) ([]model.ArtifactInfo, error) {
	infos := map[int64]*model.ArtifactInfo{}
	get := func(id int64) *model.ArtifactInfo {
		info, ok := infos[id]
		if !ok {
			info = &model.ArtifactInfo{TrackID: id}
			infos[id] = info
		}
		return info
	}

	rows, err := r.db.QueryContext(ctx, `SELECT track_id FROM artifacts`)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan artifact row: %w", err)
		}
		get(id).HasMetadata = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate artifact rows: %w", err)
	}

	entries, err := os.ReadDir(r.dir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id, err := strconv.ParseInt(e.Name(), 10, 64)
		if err != nil {
			continue
		}
		has, err := hasPayload(filepath.Join(r.dir, e.Name()))
		if err != nil {
			return nil, err
		}
		// A dir holding only temp files is still listed so it gets cleaned up.
		get(id).HasPayload = has
	}

	out := make([]model.ArtifactInfo, 0, len(infos))
	for _, info := range infos {
		out = append(out, *info)
	}
	return out, nil
}

func (r *ArtifactRepository) trackDir(trackID int64) string {
	return filepath.Join(r.dir, strconv.FormatInt(trackID, 10))
}

func hasPayload(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if !e.IsDir() && !ioutils.IsTempFile(e.Name()) {
			return true, nil
		}
	}
	return false, nil
}
