package model

import (
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Playlist is a SoundCloud playlist (a "set").
//
// Tracks may be empty when the playlist was fetched as part of a listing;
// use the playlist tracks endpoint to page through them.
type Playlist struct {
	// ID is the SoundCloud playlist id.
	ID int64

	// Title is the playlist title.
	Title string

	// Owner is the username of the playlist creator.
	Owner string

	// ArtworkURL is the URL of the playlist cover art, possibly empty.
	ArtworkURL string

	// TrackCount is the number of tracks as reported by the server.
	TrackCount int

	// Duration is the total length in seconds.
	Duration float64

	// CreatedAt is when the playlist was created.
	CreatedAt time.Time

	// Tracks contains the tracks that have been loaded so far.
	Tracks []*Track
}

// PlaylistFormat represents supported playlist file formats.
type PlaylistFormat int

const (
	// PlaylistFormatM3U creates .m3u playlist files (most widely supported).
	PlaylistFormatM3U PlaylistFormat = iota

	// PlaylistFormatPLS creates .pls playlist files (used by Winamp).
	PlaylistFormatPLS

	// PlaylistFormatWPL creates .wpl playlist files (Windows Media Player).
	PlaylistFormatWPL

	// PlaylistFormatZPL creates .zpl playlist files (Zune Media Player).
	PlaylistFormatZPL
)

// ParsePlaylistFormat maps a settings string ("m3u", "pls", "wpl", "zpl")
// to a PlaylistFormat. Unknown values fall back to M3U.
func ParsePlaylistFormat(s string) PlaylistFormat {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pls":
		return PlaylistFormatPLS
	case "wpl":
		return PlaylistFormatWPL
	case "zpl":
		return PlaylistFormatZPL
	default:
		return PlaylistFormatM3U
	}
}

// Extension returns the file extension for the playlist format, including the dot.
//
// Returns:
//   - ".m3u" for PlaylistFormatM3U
//   - ".pls" for PlaylistFormatPLS
//   - ".wpl" for PlaylistFormatWPL
//   - ".zpl" for PlaylistFormatZPL
func (pf PlaylistFormat) Extension() string {
	switch pf {
	case PlaylistFormatM3U:
		return ".m3u"
	case PlaylistFormatPLS:
		return ".pls"
	case PlaylistFormatWPL:
		return ".wpl"
	case PlaylistFormatZPL:
		return ".zpl"
	default:
		return ".m3u"
	}
}

// PlaylistPath computes the full path of the exported playlist file inside
// dir. fileNameFormat supports {title}, {owner}, {id}, {year}, {month}, {day}.
func (p *Playlist) PlaylistPath(dir, fileNameFormat string, format PlaylistFormat) string {
	fileName := p.parsePlaylistFileName(fileNameFormat)
	ext := format.Extension()
	filePath := filepath.Join(dir, fileName+ext)

	// Limit total path length for Windows compatibility
	if len(filePath) >= 260 {
		maxLen := 11 - len(ext)
		if maxLen > 0 && maxLen < len(fileName) {
			filePath = filepath.Join(dir, fileName[:maxLen]+ext)
		}
	}

	return filePath
}

// parsePlaylistFileName computes the playlist filename from the config template.
func (p *Playlist) parsePlaylistFileName(format string) string {
	if format == "" {
		format = "{title}"
	}
	fileName := format
	fileName = strings.ReplaceAll(fileName, "{year}", p.CreatedAt.Format("2006"))
	fileName = strings.ReplaceAll(fileName, "{month}", p.CreatedAt.Format("01"))
	fileName = strings.ReplaceAll(fileName, "{day}", p.CreatedAt.Format("02"))
	fileName = strings.ReplaceAll(fileName, "{title}", p.Title)
	fileName = strings.ReplaceAll(fileName, "{owner}", p.Owner)
	fileName = strings.ReplaceAll(fileName, "{id}", formatID(p.ID))
	return sanitizeFileName(fileName)
}

var (
	invalidFileChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
	trailingDots     = regexp.MustCompile(`\.+$`)
	multiSpace       = regexp.MustCompile(`\s+`)
)

// sanitizeFileName removes or replaces characters that are invalid in file/folder names.
//
// The following transformations are applied:
//   - Invalid characters (<>:"/\|?* and control chars) are replaced with underscore
//   - Trailing dots are removed (Windows limitation)
//   - Multiple whitespace is collapsed to single space
//   - Trailing whitespace is removed
//
// Example:
//
//	sanitizeFileName("Song: Part 1/2") // Returns "Song_ Part 1_2"
func sanitizeFileName(name string) string {
	name = invalidFileChars.ReplaceAllString(name, "_")
	name = trailingDots.ReplaceAllString(name, "")
	name = multiSpace.ReplaceAllString(name, " ")
	return strings.TrimRight(name, " ")
}
