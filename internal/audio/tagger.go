package audio

import (
	"bytes"
	"strconv"

	"github.com/bogem/id3v2"

	"github.com/handiism/soundcloud-offline/internal/model"
)

// TagEditAction defines how to handle individual ID3 tags.
//
// Each tag field can be configured independently to determine whether
// it should be modified, cleared, or left unchanged.
type TagEditAction int

const (
	// TagEmpty clears the tag value.
	TagEmpty TagEditAction = iota

	// TagModify updates the tag with the value from the track metadata.
	TagModify

	// TagDoNotModify leaves the existing tag value unchanged.
	TagDoNotModify
)

// TagConfig holds tagging configuration for each ID3 field.
//
// Example:
//
//	cfg := &TagConfig{
//	    ModifyTags: true,
//	    Artist:     TagModify,      // uploader username
//	    TrackTitle: TagModify,      // track title
//	    Genre:      TagModify,      // free-form genre
//	    Comments:   TagEmpty,       // clear any existing comments
//	    Album:      TagDoNotModify, // keep whatever the uploader set
//	}
type TagConfig struct {
	// ModifyTags is a master switch. If false, no text frames are modified.
	ModifyTags bool

	// Artist controls the TPE1 (Lead artist) frame.
	Artist TagEditAction

	// Album controls the TALB frame. SoundCloud has no albums; TagModify
	// writes AlbumName.
	Album TagEditAction

	// AlbumName is written to TALB when Album is TagModify.
	AlbumName string

	// Year controls the TYER (Year) frame.
	Year TagEditAction

	// Date controls the TDRC (Recording time) frame.
	Date TagEditAction

	// TrackTitle controls the TIT2 (Title) frame.
	TrackTitle TagEditAction

	// Genre controls the TCON frame.
	Genre TagEditAction

	// Length controls the TLEN frame (milliseconds).
	Length TagEditAction

	// Comments controls the COMM frame; TagModify writes the description.
	Comments TagEditAction
}

// DefaultTagConfig returns the default tag configuration.
//
// Artist, title, dates, genre and length are written from the track
// metadata. Comments are cleared and the album frame is left alone.
func DefaultTagConfig() *TagConfig {
	return &TagConfig{
		ModifyTags: true,
		Artist:     TagModify,
		Album:      TagDoNotModify,
		Year:       TagModify,
		Date:       TagModify,
		TrackTitle: TagModify,
		Genre:      TagModify,
		Length:     TagModify,
		Comments:   TagEmpty,
	}
}

// Artwork is an image ready to embed as the front cover.
type Artwork struct {
	Data     []byte
	MimeType string
}

// Tagger writes ID3v2 tags onto in-memory MP3 payloads.
//
// Example:
//
//	tagger := NewTagger(DefaultTagConfig())
//	tagged, err := tagger.TagPayload(payload, track, &Artwork{Data: jpeg, MimeType: "image/jpeg"})
type Tagger struct {
	config *TagConfig
}

// NewTagger creates a new Tagger with the given configuration.
//
// If config is nil, DefaultTagConfig() is used.
func NewTagger(config *TagConfig) *Tagger {
	if config == nil {
		config = DefaultTagConfig()
	}
	return &Tagger{config: config}
}

// TagPayload returns payload with its ID3v2 tag replaced.
//
// An existing tag is parsed so frames marked TagDoNotModify survive; the
// audio frames after the tag are copied unchanged. artwork may be nil.
func (t *Tagger) TagPayload(payload []byte, track *model.Track, artwork *Artwork) ([]byte, error) {
	tag, err := id3v2.ParseReader(bytes.NewReader(payload), id3v2.Options{Parse: true})
	if err != nil {
		return nil, err
	}

	if t.config.ModifyTags {
		t.updateStringTags(tag, track)
	}
	if artwork != nil && len(artwork.Data) > 0 {
		t.updateArtwork(tag, artwork)
	}

	var buf bytes.Buffer
	buf.Grow(len(payload) + 1024)
	if _, err := tag.WriteTo(&buf); err != nil {
		return nil, err
	}
	buf.Write(payload[tagLength(payload):])
	return buf.Bytes(), nil
}

// updateStringTags updates text-based ID3 frames based on configuration.
func (t *Tagger) updateStringTags(tag *id3v2.Tag, track *model.Track) {
	// Artist (TPE1)
	switch t.config.Artist {
	case TagEmpty:
		tag.SetArtist("")
	case TagModify:
		tag.SetArtist(track.Artist)
	}

	// Album (TALB)
	switch t.config.Album {
	case TagEmpty:
		tag.SetAlbum("")
	case TagModify:
		tag.SetAlbum(t.config.AlbumName)
	}

	// Year (TYER)
	switch t.config.Year {
	case TagEmpty:
		tag.DeleteFrames("TYER")
	case TagModify:
		if !track.CreatedAt.IsZero() {
			tag.AddTextFrame("TYER", id3v2.EncodingUTF8, track.CreatedAt.Format("2006"))
		}
	}

	// Date (TDRC)
	switch t.config.Date {
	case TagEmpty:
		tag.DeleteFrames("TDRC")
	case TagModify:
		if !track.CreatedAt.IsZero() {
			tag.AddTextFrame("TDRC", id3v2.EncodingUTF8, track.CreatedAt.Format("2006-01-02"))
		}
	}

	// Title (TIT2)
	switch t.config.TrackTitle {
	case TagEmpty:
		tag.SetTitle("")
	case TagModify:
		tag.SetTitle(track.Title)
	}

	// Genre (TCON)
	switch t.config.Genre {
	case TagEmpty:
		tag.SetGenre("")
	case TagModify:
		tag.SetGenre(track.Genre)
	}

	// Length (TLEN)
	switch t.config.Length {
	case TagEmpty:
		tag.DeleteFrames("TLEN")
	case TagModify:
		if track.Duration > 0 {
			tag.AddTextFrame("TLEN", id3v2.EncodingUTF8, strconv.FormatInt(int64(track.Duration*1000), 10))
		}
	}

	// Comments (COMM)
	switch t.config.Comments {
	case TagEmpty:
		tag.DeleteFrames(tag.CommonID("Comments"))
	case TagModify:
		tag.DeleteFrames(tag.CommonID("Comments"))
		if track.Description != "" {
			tag.AddCommentFrame(id3v2.CommentFrame{
				Encoding:    id3v2.EncodingUTF8,
				Language:    "eng",
				Description: "",
				Text:        track.Description,
			})
		}
	}
}

// updateArtwork embeds cover art as an attached picture frame.
func (t *Tagger) updateArtwork(tag *id3v2.Tag, artwork *Artwork) {
	tag.DeleteFrames(tag.CommonID("Attached picture"))

	mime := artwork.MimeType
	if mime == "" {
		mime = "image/jpeg"
	}
	tag.AddAttachedPicture(id3v2.PictureFrame{
		Encoding:    id3v2.EncodingUTF8,
		MimeType:    mime,
		PictureType: id3v2.PTFrontCover,
		Description: "Cover",
		Picture:     artwork.Data,
	})
}

// tagLength returns the size in bytes of the ID3v2 tag at the start of
// payload, header and footer included, or 0 when there is none.
func tagLength(payload []byte) int {
	if len(payload) < 10 || string(payload[:3]) != "ID3" {
		return 0
	}
	size := int(payload[6]&0x7f)<<21 | int(payload[7]&0x7f)<<14 | int(payload[8]&0x7f)<<7 | int(payload[9]&0x7f)
	n := 10 + size
	if payload[5]&0x10 != 0 {
		n += 10
	}
	return min(n, len(payload))
}
