// internal/playback/state.go
package playback

// State is the observable state of the session.
//
//	           play            open ok
//	┌──────┐ ───────▶ ┌─────────┐ ─────▶ ┌─────────┐
//	│ Idle │          │ Loading │        │ Playing │ ◀─┐
//	└──────┘ ◀─────── └─────────┘        └─────────┘   │ toggle
//	    ▲    open err                        │ toggle  │
//	    │                                    ▼         │
//	    │              stop             ┌─────────┐ ───┘
//	    └────────────────────────────── │ Paused  │
//	                                    └─────────┘
//
// Stop returns to Idle from any state. Play from any state releases the
// current handle before entering Loading.
type State int

const (
	StateIdle State = iota
	StateLoading
	StatePlaying
	StatePaused
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateLoading:
		return "Loading"
	case StatePlaying:
		return "Playing"
	case StatePaused:
		return "Paused"
	default:
		return "Unknown"
	}
}

// IsActive returns true if a track is loaded (playing or paused).
func (s State) IsActive() bool {
	return s == StatePlaying || s == StatePaused
}
