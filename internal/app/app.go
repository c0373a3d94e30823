// Package app ties the catalog, playlists and playback session together.
package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/llehouerou/wavelet/internal/catalog"
	"github.com/llehouerou/wavelet/internal/errmsg"
	"github.com/llehouerou/wavelet/internal/playback"
	"github.com/llehouerou/wavelet/internal/playlists"
)

// CatalogSource is the queue source of catalog playback.
const CatalogSource = ""

// ErrTrackNotFound is returned for a track id missing from the catalog.
var ErrTrackNotFound = errors.New("track not found in catalog")

// ErrNoSession is returned by playback calls on an App without a session.
var ErrNoSession = errors.New("no playback session")

// CatalogLoader loads the device catalog.
type CatalogLoader interface {
	Load(ctx context.Context) ([]catalog.Track, error)
}

// Player is the part of the playback session the app drives.
type Player interface {
	Play(ctx context.Context, queue playback.Queue, index int, opts ...playback.PlayOption) error
	StopIf(ctx context.Context, match func(playback.Snapshot) bool) (bool, error)
}

// App sequences playlist mutations with the playback session so a removed
// track or playlist never keeps playing.
type App struct {
	loader  CatalogLoader
	store   *playlists.Store
	session Player
	log     *zap.Logger

	mu      sync.RWMutex
	catalog []catalog.Track
}

// New creates an App. Call Start to load the catalog and playlists.
// A nil session makes an App that only edits playlists.
func New(loader CatalogLoader, store *playlists.Store, session Player, log *zap.Logger) *App {
	if log == nil {
		log = zap.NewNop()
	}
	return &App{
		loader:  loader,
		store:   store,
		session: session,
		log:     log,
	}
}

// Start loads the catalog and the saved playlists. Neither failure is fatal:
// a denied or failing catalog leaves it empty, and a failed playlist load
// keeps the in-memory collection.
func (a *App) Start(ctx context.Context) error {
	if err := a.LoadCatalog(ctx); err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	if err := a.LoadPlaylists(ctx); err != nil {
		a.log.Error(errmsg.Format(errmsg.OpPlaylistLoad, err))
	}
	return nil
}

// LoadCatalog replaces the catalog with what the loader finds. On failure
// the catalog is empty and the error is returned.
func (a *App) LoadCatalog(ctx context.Context) error {
	tracks, err := a.loader.Load(ctx)
	switch {
	case errors.Is(err, catalog.ErrPermissionDenied):
		a.log.Warn(errmsg.Format(errmsg.OpCatalogAccess, err))
	case err != nil:
		if ctx.Err() != nil {
			return ctx.Err()
		}
		a.log.Error(errmsg.Format(errmsg.OpCatalogLoad, err))
	}

	a.mu.Lock()
	a.catalog = tracks
	a.mu.Unlock()
	a.log.Info("catalog loaded", zap.Int("tracks", len(tracks)))
	return err
}

// LoadPlaylists reads the saved playlists. On failure the in-memory
// collection is kept.
func (a *App) LoadPlaylists(ctx context.Context) error {
	loaded, err := a.store.Load(ctx)
	if err != nil {
		return err
	}
	a.log.Info("playlists loaded", zap.Int("playlists", len(loaded)))
	return nil
}

// Unsaved reports whether the last playlist change failed to reach storage.
func (a *App) Unsaved() bool {
	return a.store.Stale()
}

// Catalog returns a copy of the loaded catalog.
func (a *App) Catalog() []catalog.Track {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return slices.Clone(a.catalog)
}

// FindTrack looks up a catalog track by id.
func (a *App) FindTrack(id string) (catalog.Track, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	i := slices.IndexFunc(a.catalog, func(t catalog.Track) bool { return t.ID == id })
	if i < 0 {
		return catalog.Track{}, fmt.Errorf("%w: %s", ErrTrackNotFound, id)
	}
	return a.catalog[i], nil
}

// LookupTrack resolves ref as an index into tracks first, then as a track id.
func LookupTrack(tracks []catalog.Track, ref string) (catalog.Track, error) {
	if i, err := strconv.Atoi(ref); err == nil && i >= 0 && i < len(tracks) {
		return tracks[i], nil
	}
	i := slices.IndexFunc(tracks, func(t catalog.Track) bool { return t.ID == ref })
	if i < 0 {
		return catalog.Track{}, fmt.Errorf("%w: %s", ErrTrackNotFound, ref)
	}
	return tracks[i], nil
}

// Playlists returns a copy of all playlists.
func (a *App) Playlists() []playlists.Playlist {
	return a.store.List()
}

// Playlist returns one playlist by id.
func (a *App) Playlist(id string) (playlists.Playlist, error) {
	return a.store.Get(id)
}

// PlayCatalog plays the catalog starting at index.
func (a *App) PlayCatalog(ctx context.Context, index int, opts ...playback.PlayOption) error {
	if a.session == nil {
		return ErrNoSession
	}
	q := playback.Queue{Source: CatalogSource, Tracks: a.Catalog()}
	return a.session.Play(ctx, q, index, opts...)
}

// PlayPlaylist plays a playlist starting at index.
func (a *App) PlayPlaylist(ctx context.Context, playlistID string, index int, opts ...playback.PlayOption) error {
	if a.session == nil {
		return ErrNoSession
	}
	p, err := a.store.Get(playlistID)
	if err != nil {
		return err
	}
	q := playback.Queue{Source: p.ID, Tracks: p.Tracks}
	return a.session.Play(ctx, q, index, opts...)
}

// CreatePlaylist creates an empty playlist.
func (a *App) CreatePlaylist(ctx context.Context, title string) (playlists.Playlist, error) {
	return a.store.Create(ctx, title)
}

// AddTrack adds a catalog track to a playlist. It reports false when the
// playlist already holds the track.
func (a *App) AddTrack(ctx context.Context, playlistID, trackID string) (bool, error) {
	t, err := a.FindTrack(trackID)
	if err != nil {
		return false, err
	}
	return a.store.AddTrack(ctx, playlistID, t)
}

// RenamePlaylist changes a playlist title.
func (a *App) RenamePlaylist(ctx context.Context, playlistID, title string) error {
	return a.store.Rename(ctx, playlistID, title)
}

// RemoveTrack removes a track from a playlist and stops playback when that
// exact track of that playlist is loaded or loading.
func (a *App) RemoveTrack(ctx context.Context, playlistID, trackID string) (bool, error) {
	removed, err := a.store.RemoveTrack(ctx, playlistID, trackID)
	if err != nil || !removed || a.session == nil {
		return removed, err
	}

	stopped, err := a.session.StopIf(ctx, func(s playback.Snapshot) bool {
		t := s.Current()
		return s.Queue.Source == playlistID && t != nil && t.ID == trackID
	})
	if err != nil {
		return true, fmt.Errorf("%s for removed track: %w", errmsg.OpPlaybackStop, err)
	}
	if stopped {
		a.log.Info("stopped removed track",
			zap.String("playlist_id", playlistID),
			zap.String("track_id", trackID))
	}
	return true, nil
}

// DeletePlaylist deletes a playlist and stops playback from it.
func (a *App) DeletePlaylist(ctx context.Context, playlistID string) error {
	if err := a.store.Delete(ctx, playlistID); err != nil {
		return err
	}
	if a.session == nil {
		return nil
	}

	stopped, err := a.session.StopIf(ctx, func(s playback.Snapshot) bool {
		return s.Queue.Source == playlistID && s.State != playback.StateIdle
	})
	if err != nil {
		return fmt.Errorf("%s for deleted playlist: %w", errmsg.OpPlaybackStop, err)
	}
	if stopped {
		a.log.Info("stopped deleted playlist", zap.String("playlist_id", playlistID))
	}
	return nil
}
