package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/handiism/soundcloud-offline/internal/common"
	"github.com/handiism/soundcloud-offline/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.ApplyMigrations())
	return s
}

func TestApplyMigrations_Idempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.ApplyMigrations())
	require.NoError(t, s.Ping(context.Background()))
}

func TestOpen_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "library.db")

	s, err := Open(context.Background(), path)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.ApplyMigrations())

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestCredentialRepository(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t).Credentials()

	got, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	issued := time.Date(2024, 6, 1, 10, 0, 0, 123, time.UTC)
	cred := model.NewCredential("access", "refresh", "bearer", "*", 3600, issued)
	require.NoError(t, repo.Save(ctx, cred))

	got, err = repo.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "access", got.AccessToken)
	assert.Equal(t, "refresh", got.RefreshToken)
	assert.Equal(t, "bearer", got.TokenType)
	assert.Equal(t, "*", got.Scope)
	assert.Equal(t, int64(3600), got.ExpiresIn)
	assert.True(t, got.IssuedAt.Equal(issued))
	assert.True(t, got.ExpiresAt.Equal(cred.ExpiresAt))

	next := model.NewCredential("access2", "refresh", "bearer", "", 60, issued.Add(time.Hour))
	require.NoError(t, repo.Save(ctx, next))
	got, err = repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "access2", got.AccessToken)

	require.NoError(t, repo.Delete(ctx))
	require.NoError(t, repo.Delete(ctx))
	got, err = repo.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func newArtifactRepo(t *testing.T) (*ArtifactRepository, string) {
	t.Helper()
	dir := t.TempDir()
	s := newTestStore(t)
	return s.Artifacts(dir, nil, nil), dir
}

func testTrack(id int64) *model.Track {
	return &model.Track{ID: id, Title: "Song", Artist: "Artist", Duration: 180}
}

func TestArtifactRepository_WriteRead(t *testing.T) {
	ctx := context.Background()
	repo, dir := newArtifactRepo(t)

	a, err := repo.Write(ctx, testTrack(5), []byte("audio"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), a.TrackID)
	assert.Equal(t, int64(5), a.Size)
	assert.Equal(t, filepath.Join(dir, "5", "Artist - Song.mp3"), a.PayloadLocation)

	data, err := os.ReadFile(a.PayloadLocation)
	require.NoError(t, err)
	assert.Equal(t, "audio", string(data))

	got, err := repo.Read(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, a.PayloadLocation, got.PayloadLocation)
	assert.Equal(t, "Song", got.Metadata.Title)
	assert.Equal(t, 180.0, got.Metadata.Duration)

	ok, err := repo.Exists(ctx, 5)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestArtifactRepository_ReadMissing(t *testing.T) {
	repo, _ := newArtifactRepo(t)

	_, err := repo.Read(context.Background(), 99)
	assert.ErrorIs(t, err, common.ErrArtifactNotFound)

	ok, err := repo.Exists(context.Background(), 99)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestArtifactRepository_PayloadRemovedOutOfBand(t *testing.T) {
	ctx := context.Background()
	repo, dir := newArtifactRepo(t)

	_, err := repo.Write(ctx, testTrack(3), []byte("x"))
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(filepath.Join(dir, "3")))

	ok, err := repo.Exists(ctx, 3)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = repo.Read(ctx, 3)
	assert.ErrorIs(t, err, common.ErrArtifactNotFound)

	infos, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, model.ArtifactInfo{TrackID: 3, HasMetadata: true}, infos[0])
}

func TestArtifactRepository_Delete(t *testing.T) {
	ctx := context.Background()
	repo, dir := newArtifactRepo(t)

	_, err := repo.Write(ctx, testTrack(8), []byte("x"))
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, 8))
	_, err = os.Stat(filepath.Join(dir, "8"))
	assert.True(t, os.IsNotExist(err))

	infos, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, infos)

	require.NoError(t, repo.Delete(ctx, 8))
}

func TestArtifactRepository_ListReportsOrphans(t *testing.T) {
	ctx := context.Background()
	repo, dir := newArtifactRepo(t)

	_, err := repo.Write(ctx, testTrack(1), []byte("x"))
	require.NoError(t, err)

	// Payload without a row.
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "2"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "2", "a.mp3"), []byte("x"), 0o644))
	// Only a leftover temp file.
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "4"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "4", "a.mp3.abc.part"), []byte("x"), 0o644))
	// Unrelated entries are ignored.
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "covers"), 0o755))

	infos, err := repo.List(ctx)
	require.NoError(t, err)

	byID := map[int64]model.ArtifactInfo{}
	for _, info := range infos {
		byID[info.TrackID] = info
	}
	assert.Len(t, byID, 3)
	assert.True(t, byID[1].Complete())
	assert.Equal(t, model.ArtifactInfo{TrackID: 2, HasPayload: true}, byID[2])
	assert.False(t, byID[4].Complete())
}

func TestArtifactRepository_RewriteReplacesPayload(t *testing.T) {
	ctx := context.Background()
	repo, dir := newArtifactRepo(t)

	_, err := repo.Write(ctx, testTrack(6), []byte("old"))
	require.NoError(t, err)

	renamed := testTrack(6)
	renamed.Title = "Renamed"
	a, err := repo.Write(ctx, renamed, []byte("new"))
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(dir, "6"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, filepath.Base(a.PayloadLocation), entries[0].Name())
}

func TestArtifactRepository_InsertFailureRemovesPayload(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	dir := t.TempDir()
	repo := NewArtifactRepository(db, dir, nil, nil)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO artifacts")).
		WillReturnError(errors.New("disk full"))

	_, err = repo.Write(context.Background(), testTrack(9), []byte("audio"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	_, statErr := os.Stat(filepath.Join(dir, "9"))
	assert.True(t, os.IsNotExist(statErr))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestArtifactRepository_FailedRewriteKeepsPrevious(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	dir := t.TempDir()
	repo := NewArtifactRepository(db, dir, nil, nil)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO artifacts")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO artifacts")).
		WillReturnError(errors.New("disk full"))

	first, err := repo.Write(ctx, testTrack(8), []byte("old"))
	require.NoError(t, err)

	renamed := testTrack(8)
	renamed.Title = "Renamed"
	_, err = repo.Write(ctx, renamed, []byte("new"))
	require.Error(t, err)

	data, err := os.ReadFile(first.PayloadLocation)
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "8", entries[0].Name())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestArtifactRepository_DeleteRollsBackOnQueryError(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	repo := NewArtifactRepository(db, t.TempDir(), nil, nil)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM artifacts")).
		WithArgs(int64(4)).
		WillReturnError(errors.New("locked"))
	mock.ExpectRollback()

	err = repo.Delete(context.Background(), 4)
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_PanicRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	assert.Panics(t, func() {
		_ = WithTx(context.Background(), db, func(ctx context.Context, tx DBTX) error {
			panic("boom")
		})
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}
