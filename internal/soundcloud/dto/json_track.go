package dto

import (
	"strings"

	"github.com/handiism/soundcloud-offline/internal/model"
)

// JSONTrack is a track as returned by the API.
type JSONTrack struct {
	ID           int64          `json:"id"`
	Title        string         `json:"title"`
	Genre        string         `json:"genre"`
	Description  string         `json:"description"`
	DurationMs   int64          `json:"duration"`
	ArtworkURL   *string        `json:"artwork_url"`
	StreamURL    string         `json:"stream_url"`
	PermalinkURL string         `json:"permalink_url"`
	Streamable   bool           `json:"streamable"`
	CreatedAt    SoundCloudTime `json:"created_at"`
	User         *JSONUser      `json:"user"`
}

// ToTrack converts JSONTrack to a model.Track.
//
// The duration is converted from milliseconds to seconds and the artwork
// URL is switched from the 100x100 "large" variant to 500x500.
func (jt *JSONTrack) ToTrack() *model.Track {
	t := &model.Track{
		ID:           jt.ID,
		Title:        jt.Title,
		Genre:        jt.Genre,
		Description:  jt.Description,
		Duration:     float64(jt.DurationMs) / 1000,
		StreamURL:    jt.StreamURL,
		PermalinkURL: jt.PermalinkURL,
		Streamable:   jt.Streamable,
		CreatedAt:    jt.CreatedAt.Time,
	}
	if jt.ArtworkURL != nil {
		t.ArtworkURL = strings.Replace(*jt.ArtworkURL, "-large.", "-t500x500.", 1)
	}
	if jt.User != nil {
		t.Artist = jt.User.Username
		t.ArtistID = jt.User.ID
	}
	return t
}
