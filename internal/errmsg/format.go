// Package errmsg provides consistent error formatting for user-facing messages.
package errmsg

import "fmt"

// Op represents an operation that can fail.
type Op string

// Operation constants - grouped by domain.
const (
	// Catalog operations
	OpCatalogAccess Op = "access media library"
	OpCatalogLoad   Op = "load catalog"

	// Playlist operations
	OpPlaylistLoad     Op = "load playlists"
	OpPlaylistSave     Op = "save playlists"
	OpPlaylistCreate   Op = "create playlist"
	OpPlaylistRename   Op = "rename playlist"
	OpPlaylistDelete   Op = "delete playlist"
	OpPlaylistAddTrack Op = "add track to playlist"
	OpPlaylistRemove   Op = "remove track from playlist"

	// Playback operations
	OpPlaybackStart  Op = "start playback"
	OpPlaybackToggle Op = "toggle playback"
	OpPlaybackNext   Op = "skip to next track"
	OpPlaybackPrev   Op = "skip to previous track"
	OpPlaybackStop   Op = "stop playback"

	// Notifications
	OpNotifyShow    Op = "show notification"
	OpNotifyDismiss Op = "dismiss notification"

	// Initialization
	OpInitialize Op = "initialize application"
	OpConfigLoad Op = "load configuration"
	OpStorage    Op = "open storage"
)

// Format creates a user-friendly error message.
func Format(op Op, err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("Failed to %s: %v", op, err)
}

// FormatWith creates an error message with additional context.
func FormatWith(op Op, context string, err error) string {
	if err == nil {
		return ""
	}
	if context == "" {
		return Format(op, err)
	}
	return fmt.Sprintf("Failed to %s '%s': %v", op, context, err)
}
