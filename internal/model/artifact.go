package model

import "time"

// Artifact is a downloaded track as held by an artifact store: the payload
// location and the metadata snapshot taken when the download completed.
type Artifact struct {
	TrackID int64

	// PayloadLocation is a file path for disk-backed stores or a store
	// specific URI (e.g. redis://key) otherwise.
	PayloadLocation string

	// Metadata is the track as it was when downloaded.
	Metadata Track

	// Size is the payload size in bytes.
	Size int64

	CreatedAt time.Time
}

// ArtifactInfo is one entry of an artifact store listing.
type ArtifactInfo struct {
	TrackID     int64
	HasPayload  bool
	HasMetadata bool
}

// Complete reports whether both halves of the artifact are present.
func (i ArtifactInfo) Complete() bool {
	return i.HasPayload && i.HasMetadata
}
