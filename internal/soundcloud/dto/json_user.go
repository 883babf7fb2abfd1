package dto

import "github.com/handiism/soundcloud-offline/internal/model"

// JSONUser is a user as returned by /me and embedded in tracks.
type JSONUser struct {
	ID             int64  `json:"id"`
	Username       string `json:"username"`
	FullName       string `json:"full_name"`
	AvatarURL      string `json:"avatar_url"`
	PermalinkURL   string `json:"permalink_url"`
	TrackCount     int    `json:"track_count"`
	PlaylistCount  int    `json:"playlist_count"`
	FollowersCount int    `json:"followers_count"`
}

// ToUser converts JSONUser to a model.User.
func (ju *JSONUser) ToUser() *model.User {
	return &model.User{
		ID:             ju.ID,
		Username:       ju.Username,
		FullName:       ju.FullName,
		AvatarURL:      ju.AvatarURL,
		PermalinkURL:   ju.PermalinkURL,
		TrackCount:     ju.TrackCount,
		PlaylistCount:  ju.PlaylistCount,
		FollowersCount: ju.FollowersCount,
	}
}
