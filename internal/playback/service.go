// Package playback owns the single active audio handle and the queue it plays from.
package playback

import (
	"context"
	"errors"
	"slices"

	"github.com/llehouerou/wavelet/internal/catalog"
)

// NoPosition is the queue position when nothing is loaded.
const NoPosition = -1

var (
	// ErrIndexOutOfRange is returned by Play for an index outside the queue.
	ErrIndexOutOfRange = errors.New("track index out of range")
	// ErrSuperseded is returned by a play request whose load was overtaken by a
	// later request or by Stop.
	ErrSuperseded = errors.New("playback request superseded")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("playback session closed")
)

// Controls is the transport surface shared by notifications and MPRIS.
type Controls interface {
	TogglePlayPause(ctx context.Context) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Next(ctx context.Context) error
	Previous(ctx context.Context) error
	Stop(ctx context.Context) error
	Snapshot(ctx context.Context) (Snapshot, error)
}

// Presenter shows the now-playing notification.
// The session calls it from its own goroutine; implementations must not call
// back into the session synchronously.
type Presenter interface {
	Refresh(ctx context.Context, np NowPlaying) error
	Dismiss(ctx context.Context) error
}

// NowPlaying is what the presenter displays.
type NowPlaying struct {
	Track   catalog.Track
	Index   int
	Playing bool
}

// Policy selects auto-advance behavior.
type Policy struct {
	// ManualAutoAdvance makes a track picked with Play advance to the next one
	// when it ends.
	ManualAutoAdvance bool
	// WrapQueue makes natural completion of the last track continue at the first.
	WrapQueue bool
}

// Queue is the ordered list the session plays from.
type Queue struct {
	Source string // playlist id, empty for the catalog
	Tracks []catalog.Track
}

// Len returns the number of tracks.
func (q Queue) Len() int { return len(q.Tracks) }

func (q Queue) clone() Queue {
	q.Tracks = slices.Clone(q.Tracks)
	return q
}

// Snapshot is a copy of the session state.
type Snapshot struct {
	State       State
	Queue       Queue
	Position    int
	// Pending is the queue index being loaded, or NoPosition.
	Pending     int
	Playing     bool
	AutoAdvance bool
}

// Track returns the track at Position, or nil when nothing is loaded.
func (s Snapshot) Track() *catalog.Track {
	if s.Position < 0 || s.Position >= len(s.Queue.Tracks) {
		return nil
	}
	t := s.Queue.Tracks[s.Position]
	return &t
}

// Current returns the track being loaded, else the loaded one, else nil.
func (s Snapshot) Current() *catalog.Track {
	if s.Pending >= 0 && s.Pending < len(s.Queue.Tracks) {
		t := s.Queue.Tracks[s.Pending]
		return &t
	}
	return s.Track()
}

// PlayOption adjusts a single Play call.
type PlayOption func(*playOptions)

type playOptions struct {
	autoAdvance *bool
}

// WithAutoAdvance overrides Policy.ManualAutoAdvance for one Play call.
func WithAutoAdvance(enabled bool) PlayOption {
	return func(o *playOptions) {
		o.autoAdvance = &enabled
	}
}
