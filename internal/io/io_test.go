package ioutils

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "42", "track.mp3")

	require.NoError(t, WriteFileAtomic(context.Background(), path, []byte("first")))
	require.NoError(t, WriteFileAtomic(context.Background(), path, []byte("second")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files should be left behind")
}

func TestWriteFileAtomic_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	path := filepath.Join(t.TempDir(), "x.mp3")
	assert.ErrorIs(t, WriteFileAtomic(ctx, path, []byte("x")), context.Canceled)

	ok, err := Exists(path)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIsTempFile(t *testing.T) {
	assert.True(t, IsTempFile("a.mp3.123.part"))
	assert.False(t, IsTempFile("a.mp3"))
}

func TestRemoveDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "7")
	require.NoError(t, EnsureDir(dir))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "f"), []byte("x"), 0644))

	require.NoError(t, RemoveDir(dir))
	require.NoError(t, RemoveDir(dir))

	ok, err := Exists(dir)
	require.NoError(t, err)
	assert.False(t, ok)
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestImageService_ResizeImage(t *testing.T) {
	svc := NewImageService()

	out, err := svc.ResizeImage(context.Background(), testPNG(t, 300, 200), 150, 150)
	require.NoError(t, err)

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 150, cfg.Width)
	assert.Equal(t, 100, cfg.Height)
}

func TestImageService_Prepare(t *testing.T) {
	svc := NewImageService()
	src := testPNG(t, 20, 20)

	out, mime, err := svc.Prepare(context.Background(), src, CoverOptions{})
	require.NoError(t, err)
	assert.Equal(t, "image/png", mime)
	assert.Equal(t, src, out)

	out, mime, err = svc.Prepare(context.Background(), src, CoverOptions{ToJPEG: true})
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", mime)
	_, err = jpeg.Decode(bytes.NewReader(out))
	assert.NoError(t, err)

	_, _, err = svc.Prepare(context.Background(), []byte("not an image"), CoverOptions{MaxSize: 10})
	assert.Error(t, err)
}
