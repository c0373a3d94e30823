// Package player defines the audio collaborator used by the playback session.
package player

import (
	"context"
	"errors"
)

var (
	// ErrUnsupportedFormat is returned by Open for unknown file types.
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	// ErrReleased is returned when using a handle after Release.
	ErrReleased = errors.New("audio handle released")
)

// AudioMode is the global audio configuration applied before each acquisition.
type AudioMode struct {
	Background       bool // keep playing when the app is not in front
	PlayInSilentMode bool // ignore the device silent switch
	DuckOthers       bool // lower other apps' audio instead of interrupting it
}

// Opener acquires decoder handles.
type Opener interface {
	SetAudioMode(mode AudioMode) error
	Open(ctx context.Context, uri string) (Handle, error)
}

// Handle is one acquired decoder bound to a single source.
// A handle starts paused; Play starts or resumes it.
type Handle interface {
	Play() error
	Pause() error
	Stop() error
	// Release frees the decoder. It must be called exactly once, after Stop.
	Release() error
	// OnCompletion registers fn to run when the source plays to its end.
	// fn may be called from any goroutine and is not called after Stop.
	OnCompletion(fn func())
}
