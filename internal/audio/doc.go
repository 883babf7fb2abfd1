// Package audio post-processes downloaded tracks: ID3 tagging of the MP3
// payload and playlist file generation.
//
// # ID3 Tagging
//
// The Tagger works on the payload bytes before they are persisted, so a
// stored artifact is always either untagged or fully tagged:
//
//	tagger := audio.NewTagger(audio.DefaultTagConfig())
//	tagged, err := tagger.TagPayload(payload, track, artwork)
//
// ArtworkTagger adds cover art fetched from the track's artwork URL and is
// what the download manager is wired with.
//
// The tagger supports:
//   - Artist, Title, Genre
//   - Year and Date from the upload time
//   - Length
//   - Description as comment
//   - Cover Art (embedded in MP3)
//
// # Playlist Generation
//
// Generate playlists in various formats from downloaded tracks:
//
//	creator := audio.NewPlaylistCreator(model.PlaylistFormatM3U, true) // extended M3U
//	content := creator.CreatePlaylist(playlist, entries)
//
// Supported formats:
//   - M3U (with optional extended info)
//   - PLS
//   - WPL (Windows Media Player)
//   - ZPL (Zune Media Player)
package audio
