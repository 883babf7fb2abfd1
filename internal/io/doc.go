// Package ioutils provides file system and image processing utilities.
//
// This package contains functions for:
//   - Atomic file writes (temp file + rename)
//   - Directory creation and removal
//   - Artwork resizing and format conversion
//
// # File Operations
//
//	// Write a payload without exposing partial content
//	err := ioutils.WriteFileAtomic(ctx, "/library/123/track.mp3", payload)
//
//	// Ensure directory exists
//	err := ioutils.EnsureDir("/path/to/new/directory")
//
// Interrupted writes leave "*.part" files behind; IsTempFile recognises them
// so listings can skip them.
//
// # Image Processing
//
// The ImageService handles cover art manipulation:
//
//	svc := ioutils.NewImageService()
//
//	// Resize image to fit within 500x500
//	resized, _ := svc.ResizeImage(ctx, imageData, 500, 500)
//
//	// Convert to JPEG
//	jpeg, _ := svc.ConvertToJPEG(ctx, pngData)
package ioutils
