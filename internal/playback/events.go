package playback

import "github.com/llehouerou/wavelet/internal/catalog"

// StateChange is emitted when the session state changes.
type StateChange struct {
	Previous State
	Current  State
}

// TrackChange is emitted when a track starts playing.
//
// Emitted by:
//   - Play/Next/Previous once the new handle is installed
//   - natural completion that advances to the next track
//
// NOT emitted by:
//   - TogglePlayPause/Pause/Resume/Stop: state changes do not emit TrackChange
//   - superseded loads that never installed a handle
type TrackChange struct {
	Previous *catalog.Track
	Current  *catalog.Track
	Index    int
}

// ErrorEvent is emitted when an operation fails without a caller to report to,
// and for every failed track open.
type ErrorEvent struct {
	Operation string // e.g., "play", "pause"
	TrackID   string // track id if applicable
	Err       error
}
