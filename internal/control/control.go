// Package control lets one-shot commands edit playlists through a running
// daemon over the D-Bus session bus, so the daemon sees every change and can
// stop what it plays.
package control

import (
	"context"
	"errors"

	"github.com/godbus/dbus/v5"

	"github.com/llehouerou/wavelet/internal/app"
	"github.com/llehouerou/wavelet/internal/playlists"
)

const (
	BusName    = "org.llehouerou.Wavelet"
	ObjectPath = dbus.ObjectPath("/org/llehouerou/Wavelet")
	Interface  = "org.llehouerou.Wavelet.Playlists"

	errorPrefix = Interface + ".Error."
)

var (
	// ErrNoDaemon is returned by Dial when no daemon serves BusName.
	ErrNoDaemon = errors.New("no wavelet daemon on the session bus")
	// ErrNameTaken is returned by Serve when another daemon owns BusName.
	ErrNameTaken = errors.New("another wavelet daemon owns " + BusName)
	// ErrNotSaved is returned when a change was applied in memory but could
	// not be written to storage.
	ErrNotSaved = errors.New("change was not saved to storage")
)

// Editor edits playlists. Tracks are referenced by position or id.
type Editor interface {
	CreatePlaylist(ctx context.Context, title string) (id, created string, err error)
	AddTrack(ctx context.Context, playlistID, ref string) (title string, added bool, err error)
	RemoveTrack(ctx context.Context, playlistID, ref string) (title string, removed bool, err error)
	RenamePlaylist(ctx context.Context, playlistID, title string) error
	DeletePlaylist(ctx context.Context, playlistID string) error
}

// errorNames maps sentinel errors to D-Bus error names so callers can still
// match them with errors.Is.
var errorNames = []struct {
	name string
	err  error
}{
	{"PlaylistNotFound", playlists.ErrNotFound},
	{"EmptyTitle", playlists.ErrEmptyTitle},
	{"TrackNotFound", app.ErrTrackNotFound},
	{"NotSaved", ErrNotSaved},
}

func toDBus(err error) *dbus.Error {
	name := errorPrefix + "Failed"
	for _, e := range errorNames {
		if errors.Is(err, e.err) {
			name = errorPrefix + e.name
			break
		}
	}
	return dbus.NewError(name, []any{err.Error()})
}

// remoteError is an error reported by the daemon.
type remoteError struct {
	msg    string
	target error
}

func (e *remoteError) Error() string { return e.msg }
func (e *remoteError) Unwrap() error { return e.target }

func fromDBus(err error) error {
	var de dbus.Error
	if !errors.As(err, &de) {
		return err
	}
	for _, e := range errorNames {
		if de.Name == errorPrefix+e.name {
			return &remoteError{msg: de.Error(), target: e.err}
		}
	}
	return &remoteError{msg: de.Error()}
}
