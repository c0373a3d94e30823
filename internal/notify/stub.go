//go:build !linux

package notify

import "go.uber.org/zap"

// New returns a no-op notifier on non-Linux platforms.
func New(_ string, _ *zap.Logger) (Notifier, error) {
	return Nop{}, nil
}
