// Package playlists owns the user's named playlists and their persistence.
package playlists

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/llehouerou/wavelet/internal/catalog"
	"github.com/llehouerou/wavelet/internal/errmsg"
	"github.com/llehouerou/wavelet/internal/kv"
)

// DefaultKey is the key-value key holding the serialized collection.
const DefaultKey = "playlists"

var (
	// ErrNotFound is returned for an unknown playlist id.
	ErrNotFound = errors.New("playlist not found")
	// ErrEmptyTitle is returned when creating or renaming with a blank title.
	ErrEmptyTitle = errors.New("playlist title is empty")
)

// Playlist is a named, ordered collection of tracks.
// Track ids are unique within one playlist.
type Playlist struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	CreatedAt int64           `json:"createdAt"`
	Tracks    []catalog.Track `json:"tracks"`
}

// Contains reports whether the playlist holds a track with the given id.
func (p Playlist) Contains(trackID string) bool {
	return p.indexOf(trackID) >= 0
}

func (p Playlist) indexOf(trackID string) int {
	return slices.IndexFunc(p.Tracks, func(t catalog.Track) bool { return t.ID == trackID })
}

func (p Playlist) clone() Playlist {
	p.Tracks = slices.Clone(p.Tracks)
	return p
}

// Store keeps playlists in memory and mirrors them to a kv.Store.
// In-memory state is authoritative; a failed save leaves the durable copy
// stale until the next successful one.
type Store struct {
	mu        sync.Mutex
	kv        kv.Store
	key       string
	playlists []Playlist
	stale     bool

	log   *zap.Logger
	now   func() time.Time
	newID func() string
}

// NewStore creates a store persisting under key (DefaultKey when empty).
func NewStore(store kv.Store, key string, log *zap.Logger) *Store {
	if key == "" {
		key = DefaultKey
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		kv:    store,
		key:   key,
		log:   log,
		now:   time.Now,
		newID: newPlaylistID,
	}
}

// newPlaylistID returns a time-ordered UUIDv7.
func newPlaylistID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Load reads the collection from durable storage and replaces the in-memory
// copy. On failure the in-memory collection is kept and the error returned.
func (s *Store) Load(ctx context.Context) ([]Playlist, error) {
	raw, ok, err := s.kv.Get(ctx, s.key)
	if err != nil {
		s.log.Error("load playlists", zap.Error(err))
		return s.List(), fmt.Errorf("read %s: %w", s.key, err)
	}

	var loaded []Playlist
	if ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &loaded); err != nil {
			s.log.Error("decode playlists", zap.Error(err))
			return s.List(), fmt.Errorf("decode %s: %w", s.key, err)
		}
	}

	s.mu.Lock()
	s.playlists = loaded
	s.stale = false
	s.mu.Unlock()

	s.log.Debug("playlists loaded", zap.Int("count", len(loaded)))
	return s.List(), nil
}

// Save replaces both the in-memory and the durable collection.
func (s *Store) Save(ctx context.Context, playlists []Playlist) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.playlists = make([]Playlist, len(playlists))
	for i, p := range playlists {
		s.playlists[i] = p.clone()
	}
	return s.persistLocked(ctx)
}

// List returns a copy of all playlists in creation order.
func (s *Store) List() []Playlist {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Playlist, len(s.playlists))
	for i, p := range s.playlists {
		out[i] = p.clone()
	}
	return out
}

// Get returns a copy of the playlist with the given id.
func (s *Store) Get(id string) (Playlist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return Playlist{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.playlists[i].clone(), nil
}

// Stale reports whether the last save failed.
func (s *Store) Stale() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stale
}

// Create appends a new empty playlist.
func (s *Store) Create(ctx context.Context, title string) (Playlist, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Playlist{}, ErrEmptyTitle
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := Playlist{
		ID:        s.newID(),
		Title:     title,
		CreatedAt: s.now().Unix(),
		Tracks:    []catalog.Track{},
	}
	s.playlists = append(s.playlists, p)
	s.persistBestEffortLocked(ctx)
	return p.clone(), nil
}

// AddTrack appends track to the playlist. It is a no-op returning false
// when the playlist already holds a track with the same id.
func (s *Store) AddTrack(ctx context.Context, playlistID string, track catalog.Track) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(playlistID)
	if i < 0 {
		return false, fmt.Errorf("%w: %s", ErrNotFound, playlistID)
	}
	if s.playlists[i].Contains(track.ID) {
		return false, nil
	}

	s.playlists[i].Tracks = append(s.playlists[i].Tracks, track)
	s.persistBestEffortLocked(ctx)
	return true, nil
}

// RemoveTrack removes the track with trackID from the playlist and reports
// whether it was present. Stopping a session that plays the removed track is
// the caller's job.
func (s *Store) RemoveTrack(ctx context.Context, playlistID, trackID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(playlistID)
	if i < 0 {
		return false, fmt.Errorf("%w: %s", ErrNotFound, playlistID)
	}
	j := s.playlists[i].indexOf(trackID)
	if j < 0 {
		return false, nil
	}

	s.playlists[i].Tracks = slices.Delete(s.playlists[i].Tracks, j, j+1)
	s.persistBestEffortLocked(ctx)
	return true, nil
}

// Rename changes the title of a playlist.
func (s *Store) Rename(ctx context.Context, playlistID, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrEmptyTitle
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(playlistID)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, playlistID)
	}
	s.playlists[i].Title = title
	s.persistBestEffortLocked(ctx)
	return nil
}

// Delete removes a playlist. Stopping a session playing it is the caller's job.
func (s *Store) Delete(ctx context.Context, playlistID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(playlistID)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, playlistID)
	}
	s.playlists = slices.Delete(s.playlists, i, i+1)
	s.persistBestEffortLocked(ctx)
	return nil
}

func (s *Store) indexLocked(id string) int {
	return slices.IndexFunc(s.playlists, func(p Playlist) bool { return p.ID == id })
}

// persistBestEffortLocked saves and swallows the error; the mutation already
// happened in memory.
func (s *Store) persistBestEffortLocked(ctx context.Context) {
	_ = s.persistLocked(ctx)
}

func (s *Store) persistLocked(ctx context.Context) error {
	data, err := json.Marshal(s.collectionLocked())
	if err != nil {
		s.stale = true
		s.log.Error("encode playlists", zap.Error(err))
		return err
	}
	if err := s.kv.Set(ctx, s.key, string(data)); err != nil {
		s.stale = true
		s.log.Error(errmsg.Format(errmsg.OpPlaylistSave, err))
		return fmt.Errorf("write %s: %w", s.key, err)
	}
	s.stale = false
	return nil
}

// collectionLocked never returns nil so an empty collection encodes as [].
func (s *Store) collectionLocked() []Playlist {
	if s.playlists == nil {
		return []Playlist{}
	}
	return s.playlists
}
