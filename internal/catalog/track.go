// Package catalog enumerates the audio files available to the player.
package catalog

import (
	"encoding/json"
	"time"
)

// Fallback values for absent metadata.
const (
	UnknownArtist = "Unknown Artist"
	UnknownAlbum  = "Unknown Album"
)

// Track is an immutable catalog record.
// Optional fields are empty when the media index has no value for them;
// read them through the Display accessors to get the fallbacks.
type Track struct {
	ID          string
	SourceURI   string
	DisplayName string
	Title       string
	Artist      string
	Album       string
	ArtworkURI  string
	Duration    time.Duration
}

// DisplayTitle returns the title, or the display name when the track has none.
func (t Track) DisplayTitle() string {
	if t.Title != "" {
		return t.Title
	}
	return t.DisplayName
}

// DisplayArtist returns the artist or UnknownArtist.
func (t Track) DisplayArtist() string {
	if t.Artist != "" {
		return t.Artist
	}
	return UnknownArtist
}

// DisplayAlbum returns the album or UnknownAlbum.
func (t Track) DisplayAlbum() string {
	if t.Album != "" {
		return t.Album
	}
	return UnknownAlbum
}

// trackJSON is the serialized form shared with the playlist record.
type trackJSON struct {
	ID          string `json:"id"`
	SourceURI   string `json:"sourceURI"`
	DisplayName string `json:"displayName"`
	Title       string `json:"title,omitempty"`
	Artist      string `json:"artist,omitempty"`
	Album       string `json:"album,omitempty"`
	ArtworkURI  string `json:"artworkURI,omitempty"`
	DurationMs  int64  `json:"durationMs,omitempty"`
}

// MarshalJSON encodes the duration as milliseconds.
func (t Track) MarshalJSON() ([]byte, error) {
	return json.Marshal(trackJSON{
		ID:          t.ID,
		SourceURI:   t.SourceURI,
		DisplayName: t.DisplayName,
		Title:       t.Title,
		Artist:      t.Artist,
		Album:       t.Album,
		ArtworkURI:  t.ArtworkURI,
		DurationMs:  t.Duration.Milliseconds(),
	})
}

// UnmarshalJSON decodes a track written by MarshalJSON.
func (t *Track) UnmarshalJSON(data []byte) error {
	var j trackJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	*t = Track{
		ID:          j.ID,
		SourceURI:   j.SourceURI,
		DisplayName: j.DisplayName,
		Title:       j.Title,
		Artist:      j.Artist,
		Album:       j.Album,
		ArtworkURI:  j.ArtworkURI,
		Duration:    time.Duration(j.DurationMs) * time.Millisecond,
	}
	return nil
}
