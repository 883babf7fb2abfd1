package ioutils

import (
	"bytes"
	"context"
	"image"
	_ "image/gif" // GIF decoder registration
	"image/jpeg"
	_ "image/png" // PNG decoder registration

	"golang.org/x/image/draw"
)

// ImageService prepares artwork for embedding in ID3 tags.
//
// ImageService is used to:
//   - Resize artwork to fit maximum dimensions
//   - Convert artwork to JPEG format (for better compatibility)
//
// Example usage:
//
//	svc := NewImageService()
//	cover, err := svc.Prepare(ctx, artwork, CoverOptions{MaxSize: 500, ToJPEG: true})
type ImageService struct{}

// CoverOptions tells Prepare what to do with the artwork.
type CoverOptions struct {
	// MaxSize is the maximum width and height. Zero disables resizing.
	MaxSize int

	// ToJPEG re-encodes the image as JPEG even when no resize is needed.
	ToJPEG bool
}

// NewImageService creates a new ImageService.
func NewImageService() *ImageService {
	return &ImageService{}
}

// Prepare applies opts to data and returns the image bytes with their MIME
// type. With zero options the input is returned untouched.
func (s *ImageService) Prepare(ctx context.Context, data []byte, opts CoverOptions) ([]byte, string, error) {
	if opts.MaxSize > 0 {
		out, err := s.ResizeImage(ctx, data, opts.MaxSize, opts.MaxSize)
		return out, "image/jpeg", err
	}
	if opts.ToJPEG {
		out, err := s.ConvertToJPEG(ctx, data)
		return out, "image/jpeg", err
	}
	return data, mimeType(data), nil
}

// ResizeImage resizes an image to fit within the specified maximum dimensions.
//
// The aspect ratio is preserved. Images already within the bounds keep their
// size but are re-encoded. The Catmull-Rom kernel is used for scaling and the
// result is JPEG-encoded.
//
// Example:
//
//	// A 1500x1000 image becomes 1000x666
//	resized, err := svc.ResizeImage(ctx, imageData, 1000, 1000)
func (s *ImageService) ResizeImage(ctx context.Context, data []byte, maxWidth, maxHeight int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	width, height := fit(bounds.Dx(), bounds.Dy(), maxWidth, maxHeight)

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)

	return encodeJPEG(dst)
}

// ConvertToJPEG re-encodes an image (JPEG, PNG or GIF) as JPEG at quality 90.
func (s *ImageService) ConvertToJPEG(ctx context.Context, data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return encodeJPEG(img)
}

func fit(width, height, maxWidth, maxHeight int) (int, int) {
	if width <= maxWidth && height <= maxHeight {
		return width, height
	}
	ratio := float64(width) / float64(height)
	if float64(maxWidth)/float64(maxHeight) > ratio {
		return max(int(float64(maxHeight)*ratio), 1), maxHeight
	}
	return maxWidth, max(int(float64(maxWidth)/ratio), 1)
}

func encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func mimeType(data []byte) string {
	switch {
	case bytes.HasPrefix(data, []byte("\x89PNG")):
		return "image/png"
	case bytes.HasPrefix(data, []byte("GIF8")):
		return "image/gif"
	default:
		return "image/jpeg"
	}
}
