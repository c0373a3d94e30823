//go:build linux

package mpris

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/quarckster/go-mpris-server/pkg/server"
	"github.com/quarckster/go-mpris-server/pkg/types"
	"go.uber.org/zap"

	"github.com/llehouerou/wavelet/internal/catalog"
	"github.com/llehouerou/wavelet/internal/errmsg"
	"github.com/llehouerou/wavelet/internal/playback"
)

// callTimeout bounds each session call made for a D-Bus request.
const callTimeout = 5 * time.Second

// Adapter connects the playback session to MPRIS over D-Bus.
type Adapter struct {
	server *server.Server
}

// New creates and starts a new MPRIS adapter.
func New(session playback.Controls, policy playback.Policy, log *zap.Logger) (*Adapter, error) {
	if log == nil {
		log = zap.NewNop()
	}

	// Create adapters that delegate to the session
	rootAdapter := &rootAdapter{}
	playerAdapter := &playerAdapter{session: session, policy: policy, log: log}

	a := &Adapter{
		server: server.NewServer("wavelet", rootAdapter, playerAdapter),
	}

	// Start the server in background
	go func() {
		if err := a.server.Listen(); err != nil {
			log.Warn("mpris server stopped", zap.Error(err))
		}
	}()

	return a, nil
}

// Close stops the adapter and releases D-Bus resources.
func (a *Adapter) Close() error {
	return a.server.Stop()
}

// rootAdapter implements OrgMprisMediaPlayer2Adapter.
type rootAdapter struct{}

func (r *rootAdapter) Raise() error {
	return nil // Not supported
}

func (r *rootAdapter) Quit() error {
	return nil // Not supported - app manages its own lifecycle
}

func (r *rootAdapter) CanQuit() (bool, error) {
	return false, nil
}

func (r *rootAdapter) CanRaise() (bool, error) {
	return false, nil
}

func (r *rootAdapter) HasTrackList() (bool, error) {
	return false, nil // Track list interface not implemented
}

func (r *rootAdapter) Identity() (string, error) {
	return "Wavelet", nil
}

//nolint:revive // Method name required by interface.
func (r *rootAdapter) SupportedUriSchemes() ([]string, error) {
	return []string{"file"}, nil
}

func (r *rootAdapter) SupportedMimeTypes() ([]string, error) {
	return []string{"audio/mpeg", "audio/flac", "audio/ogg", "audio/wav"}, nil
}

// playerAdapter implements OrgMprisMediaPlayer2PlayerAdapter and optional interfaces.
type playerAdapter struct {
	session playback.Controls
	policy  playback.Policy
	log     *zap.Logger
}

func (p *playerAdapter) do(op errmsg.Op, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		p.log.Warn(errmsg.Format(op, err), zap.String("source", "mpris"))
		return err
	}
	return nil
}

func (p *playerAdapter) snapshot() playback.Snapshot {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	snap, err := p.session.Snapshot(ctx)
	if err != nil {
		return playback.Snapshot{State: playback.StateIdle, Position: playback.NoPosition, Pending: playback.NoPosition}
	}
	return snap
}

func (p *playerAdapter) Next() error {
	return p.do(errmsg.OpPlaybackNext, p.session.Next)
}

func (p *playerAdapter) Previous() error {
	return p.do(errmsg.OpPlaybackPrev, p.session.Previous)
}

func (p *playerAdapter) Pause() error {
	return p.do(errmsg.OpPlaybackToggle, p.session.Pause)
}

func (p *playerAdapter) PlayPause() error {
	return p.do(errmsg.OpPlaybackToggle, p.session.TogglePlayPause)
}

func (p *playerAdapter) Stop() error {
	return p.do(errmsg.OpPlaybackStop, p.session.Stop)
}

// Play resumes a paused track. When stopped it starts the queue again.
func (p *playerAdapter) Play() error {
	snap := p.snapshot()
	if snap.State == playback.StateIdle {
		return p.do(errmsg.OpPlaybackStart, p.session.Next)
	}
	return p.do(errmsg.OpPlaybackToggle, p.session.Resume)
}

func (p *playerAdapter) Seek(_ types.Microseconds) error {
	return nil // Not supported
}

func (p *playerAdapter) SetPosition(_ string, _ types.Microseconds) error {
	return nil // Not supported
}

//nolint:revive // Method name required by interface.
func (p *playerAdapter) OpenUri(_ string) error {
	return nil // Not supported
}

func (p *playerAdapter) PlaybackStatus() (types.PlaybackStatus, error) {
	return playbackStatus(p.snapshot().State), nil
}

func playbackStatus(s playback.State) types.PlaybackStatus {
	switch s {
	case playback.StatePlaying:
		return types.PlaybackStatusPlaying
	case playback.StatePaused:
		return types.PlaybackStatusPaused
	case playback.StateIdle, playback.StateLoading:
		return types.PlaybackStatusStopped
	}
	return types.PlaybackStatusStopped
}

func (p *playerAdapter) Rate() (float64, error) {
	return 1.0, nil
}

func (p *playerAdapter) SetRate(_ float64) error {
	return nil // Not supported
}

func (p *playerAdapter) Metadata() (types.Metadata, error) {
	return metadata(p.snapshot().Track()), nil
}

func metadata(track *catalog.Track) types.Metadata {
	if track == nil {
		return types.Metadata{}
	}

	return types.Metadata{
		TrackId: dbus.ObjectPath(formatTrackID(track.ID)),
		Length:  types.Microseconds(track.Duration.Microseconds()),
		Title:   track.DisplayTitle(),
		Artist:  []string{track.DisplayArtist()},
		Album:   track.DisplayAlbum(),
		ArtUrl:  track.ArtworkURI,
	}
}

func (p *playerAdapter) Volume() (float64, error) {
	return 1.0, nil // Volume control not exposed via session
}

func (p *playerAdapter) SetVolume(_ float64) error {
	return nil // Not supported
}

func (p *playerAdapter) Position() (int64, error) {
	return 0, nil
}

func (p *playerAdapter) MinimumRate() (float64, error) {
	return 1.0, nil
}

func (p *playerAdapter) MaximumRate() (float64, error) {
	return 1.0, nil
}

// Next and Previous wrap, so any non-empty queue can move both ways.
func (p *playerAdapter) CanGoNext() (bool, error) {
	return p.snapshot().Queue.Len() > 0, nil
}

func (p *playerAdapter) CanGoPrevious() (bool, error) {
	return p.snapshot().Queue.Len() > 0, nil
}

func (p *playerAdapter) CanPlay() (bool, error) {
	return p.snapshot().Queue.Len() > 0, nil
}

func (p *playerAdapter) CanPause() (bool, error) {
	return true, nil
}

func (p *playerAdapter) CanSeek() (bool, error) {
	return false, nil
}

func (p *playerAdapter) CanControl() (bool, error) {
	return true, nil
}

// LoopStatus implements OrgMprisMediaPlayer2PlayerAdapterLoopStatus.
func (p *playerAdapter) LoopStatus() (types.LoopStatus, error) {
	if p.policy.WrapQueue {
		return types.LoopStatusPlaylist, nil
	}
	return types.LoopStatusNone, nil
}

// SetLoopStatus implements OrgMprisMediaPlayer2PlayerAdapterLoopStatus.
// The loop policy comes from config and cannot be changed at runtime.
func (p *playerAdapter) SetLoopStatus(_ types.LoopStatus) error {
	return nil
}

func formatTrackID(id string) string {
	h := fnv.New64a()
	h.Write([]byte(id))
	return fmt.Sprintf("/org/mpris/MediaPlayer2/Track/%x", h.Sum64())
}
