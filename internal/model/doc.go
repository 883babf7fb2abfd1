// Package model defines the core data structures used throughout
// soundcloud-offline.
//
// # Track
//
// Track is the catalog entry the download manager works with. Its file name
// on disk is computed from a TrackConfig template:
//
//	cfg := &model.TrackConfig{FileNameFormat: "{artist} - {title}.mp3"}
//	name := track.FileName(cfg) // "Artist - Song Title.mp3"
//
// # Playlist
//
// Playlist groups tracks and knows where its exported playlist file goes:
//
//	path := playlist.PlaylistPath("/music/SoundCloud", "{title}", model.PlaylistFormatM3U)
//
// # Credential
//
// Credential is the OAuth2 token set. Its expiry is computed once, when the
// credential is created from a token response, and stored with it:
//
//	cred := model.NewCredential("access", "refresh", "bearer", "", 3600, time.Now())
//	cred.IsExpired(time.Now()) // false for the next hour
//
// # Artifact
//
// Artifact is a downloaded track: its payload location plus the metadata
// snapshot taken at download time. ArtifactInfo is what a store reports when
// listing, so incomplete pairs can be discarded.
//
// Available file name placeholders: {id}, {artist}, {title}, {genre}, {year}, {month}, {day}
package model
