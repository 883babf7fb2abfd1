package dto

import (
	"strings"

	"github.com/handiism/soundcloud-offline/internal/model"
)

// JSONPlaylist is a playlist as returned by the API. Tracks is only filled
// by the single playlist endpoint.
type JSONPlaylist struct {
	ID         int64          `json:"id"`
	Title      string         `json:"title"`
	ArtworkURL *string        `json:"artwork_url"`
	TrackCount int            `json:"track_count"`
	DurationMs int64          `json:"duration"`
	CreatedAt  SoundCloudTime `json:"created_at"`
	User       *JSONUser      `json:"user"`
	Tracks     []JSONTrack    `json:"tracks"`
}

// ToPlaylist converts JSONPlaylist to a model.Playlist.
func (jp *JSONPlaylist) ToPlaylist() *model.Playlist {
	p := &model.Playlist{
		ID:         jp.ID,
		Title:      jp.Title,
		TrackCount: jp.TrackCount,
		Duration:   float64(jp.DurationMs) / 1000,
		CreatedAt:  jp.CreatedAt.Time,
		Tracks:     make([]*model.Track, 0, len(jp.Tracks)),
	}
	if jp.ArtworkURL != nil {
		p.ArtworkURL = strings.Replace(*jp.ArtworkURL, "-large.", "-t500x500.", 1)
	}
	if jp.User != nil {
		p.Owner = jp.User.Username
	}
	for i := range jp.Tracks {
		p.Tracks = append(p.Tracks, jp.Tracks[i].ToTrack())
	}
	return p
}
