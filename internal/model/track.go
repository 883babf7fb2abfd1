package model

import (
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Track is a single SoundCloud track.
//
// Only the fields the client needs for downloading, tagging and file naming
// are kept; the wire format carries many more.
type Track struct {
	// ID is the SoundCloud track id.
	ID int64 `json:"id"`

	// Title is the track title.
	Title string `json:"title"`

	// Artist is the username of the uploader.
	Artist string `json:"artist"`

	// ArtistID is the user id of the uploader.
	ArtistID int64 `json:"artist_id"`

	// Genre is the free-form genre string, possibly empty.
	Genre string `json:"genre,omitempty"`

	// Description is the track description, possibly empty.
	Description string `json:"description,omitempty"`

	// Duration is the track length in seconds.
	Duration float64 `json:"duration"`

	// ArtworkURL is the URL of the cover art. Empty means no artwork.
	ArtworkURL string `json:"artwork_url,omitempty"`

	// StreamURL is the URL the audio is streamed from. Empty means the
	// default /tracks/{id}/stream endpoint is used.
	StreamURL string `json:"stream_url,omitempty"`

	// PermalinkURL is the public web page of the track.
	PermalinkURL string `json:"permalink_url,omitempty"`

	// Streamable reports whether the track can be streamed at all.
	Streamable bool `json:"streamable"`

	// CreatedAt is when the track was uploaded.
	CreatedAt time.Time `json:"created_at"`
}

// TrackConfig holds track file naming settings.
//
// The FileNameFormat supports placeholders that are replaced with actual values:
//   - {id} - Track id
//   - {title} - Track title
//   - {artist} - Uploader username
//   - {genre} - Genre
//   - {year}, {month}, {day} - Upload date components
//
// Example:
//
//	cfg := &TrackConfig{
//	    FileNameFormat: "{artist} - {title}.mp3",
//	}
//	// Results in filenames like "Some DJ - Summer Mix.mp3"
type TrackConfig struct {
	// FileNameFormat is the template for track filenames.
	// Must include the file extension (typically ".mp3").
	FileNameFormat string
}

// HasArtwork returns true if the track has cover art available for download.
func (t *Track) HasArtwork() bool {
	return t.ArtworkURL != ""
}

// Key returns the track id as a decimal string, used as a storage key.
func (t *Track) Key() string {
	return strconv.FormatInt(t.ID, 10)
}

// FileName computes the sanitized filename from the config template.
//
// Names longer than the Windows MAX_PATH component budget are truncated,
// keeping the extension.
func (t *Track) FileName(cfg *TrackConfig) string {
	format := "{artist} - {title}.mp3"
	if cfg != nil && cfg.FileNameFormat != "" {
		format = cfg.FileNameFormat
	}

	fileName := format
	fileName = strings.ReplaceAll(fileName, "{year}", t.CreatedAt.Format("2006"))
	fileName = strings.ReplaceAll(fileName, "{month}", t.CreatedAt.Format("01"))
	fileName = strings.ReplaceAll(fileName, "{day}", t.CreatedAt.Format("02"))
	fileName = strings.ReplaceAll(fileName, "{id}", t.Key())
	fileName = strings.ReplaceAll(fileName, "{artist}", t.Artist)
	fileName = strings.ReplaceAll(fileName, "{title}", t.Title)
	fileName = strings.ReplaceAll(fileName, "{genre}", t.Genre)
	fileName = sanitizeFileName(fileName)

	if len(fileName) > 200 {
		ext := filepath.Ext(fileName)
		fileName = strings.TrimRight(fileName[:200-len(ext)], " ") + ext
	}

	return fileName
}
