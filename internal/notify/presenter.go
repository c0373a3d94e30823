package notify

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/llehouerou/wavelet/internal/errmsg"
	"github.com/llehouerou/wavelet/internal/playback"
)

// CategoryPlayback is the category of now-playing notifications.
const CategoryPlayback = "playback"

// Playback action ids.
const (
	ActionPlayPause = "play-pause"
	ActionPlay      = "play"
	ActionPause     = "pause"
	ActionNext      = "next"
	ActionPrevious  = "previous"
)

// DefaultAction selects what clicking the notification body does.
type DefaultAction string

const (
	DefaultActionResume DefaultAction = "resume"
	DefaultActionIgnore DefaultAction = "ignore"
)

// ParseDefaultAction parses a config value. Empty means resume.
func ParseDefaultAction(s string) (DefaultAction, error) {
	switch DefaultAction(s) {
	case "", DefaultActionResume:
		return DefaultActionResume, nil
	case DefaultActionIgnore:
		return DefaultActionIgnore, nil
	}
	return "", fmt.Errorf("unknown default notification action %q", s)
}

// PresenterOptions configures a Presenter.
type PresenterOptions struct {
	// SplitPlayPause shows separate play and pause buttons instead of a toggle.
	SplitPlayPause bool
	DefaultAction  DefaultAction
	Timeout        int32 // ms, 0 = never expire
	Logger         *zap.Logger
}

// Presenter keeps one now-playing notification in sync with the session and
// turns its buttons into transport commands.
type Presenter struct {
	notifier Notifier
	opts     PresenterOptions
	log      *zap.Logger

	mu          sync.Mutex
	outstanding uint32
	shown       bool
	controls    playback.Controls
}

// NewPresenter registers the playback category on notifier.
func NewPresenter(notifier Notifier, opts PresenterOptions) (*Presenter, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.DefaultAction == "" {
		opts.DefaultAction = DefaultActionResume
	}

	if err := notifier.RegisterCategory(PlaybackCategory(opts.SplitPlayPause)); err != nil {
		return nil, fmt.Errorf("register notification category: %w", err)
	}
	return &Presenter{
		notifier: notifier,
		opts:     opts,
		log:      opts.Logger,
	}, nil
}

// PlaybackCategory returns the playback category's actions.
func PlaybackCategory(split bool) Category {
	c := Category{ID: CategoryPlayback}
	if split {
		c.Actions = []Action{
			{ID: ActionPrevious, Title: "Previous"},
			{ID: ActionPlay, Title: "Play"},
			{ID: ActionPause, Title: "Pause"},
			{ID: ActionNext, Title: "Next"},
		}
	} else {
		c.Actions = []Action{
			{ID: ActionPrevious, Title: "Previous"},
			{ID: ActionPlayPause, Title: "Pause"},
			{ID: ActionNext, Title: "Next"},
		}
	}
	return c
}

// Attach sets the session that actions are forwarded to.
func (p *Presenter) Attach(c playback.Controls) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.controls = c
}

// Refresh replaces the outstanding notification with one for np.
func (p *Presenter) Refresh(ctx context.Context, np playback.NowPlaying) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.dismissLocked(ctx)

	id, err := p.notifier.Notify(ctx, p.notification(np))
	if err != nil {
		return fmt.Errorf("show notification: %w", err)
	}
	p.outstanding = id
	p.shown = true
	return nil
}

func (p *Presenter) notification(np playback.NowPlaying) Notification {
	t := np.Track
	status := "Paused"
	toggle := "Play"
	if np.Playing {
		status = "Playing"
		toggle = "Pause"
	}

	n := Notification{
		Title:    t.DisplayTitle(),
		Body:     fmt.Sprintf("%s - %s\n%s", t.DisplayArtist(), t.DisplayAlbum(), status),
		Icon:     t.ArtworkURI,
		Timeout:  p.opts.Timeout,
		Urgency:  UrgencyLow,
		Category: CategoryPlayback,
		Payload: map[string]string{
			"trackId": t.ID,
			"index":   strconv.Itoa(np.Index),
		},
	}
	if !p.opts.SplitPlayPause {
		n.ActionTitles = map[string]string{ActionPlayPause: toggle}
	}
	return n
}

// Dismiss closes the outstanding notification, if any.
func (p *Presenter) Dismiss(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.shown {
		return nil
	}
	id := p.outstanding
	p.shown = false
	p.outstanding = 0
	return p.notifier.Close(ctx, id)
}

// dismissLocked clears the outstanding id even when closing fails so a stale
// notification never blocks the next one.
func (p *Presenter) dismissLocked(ctx context.Context) {
	if !p.shown {
		return
	}
	id := p.outstanding
	p.shown = false
	p.outstanding = 0
	if err := p.notifier.Close(ctx, id); err != nil {
		p.log.Warn("close notification", zap.Uint32("id", id), zap.Error(err))
	}
}

// HandleAction runs the transport command for a notification response.
// It does not hold the presenter lock while calling the session, which calls
// back into Refresh.
func (p *Presenter) HandleAction(ctx context.Context, r ActionResponse) error {
	p.mu.Lock()
	c := p.controls
	p.mu.Unlock()

	if c == nil {
		return errors.New("no session attached")
	}

	p.log.Debug("notification action",
		zap.String("action", r.ActionID),
		zap.Uint32("id", r.NotificationID))

	switch r.ActionID {
	case ActionPlayPause:
		return c.TogglePlayPause(ctx)
	case ActionPlay:
		return c.Resume(ctx)
	case ActionPause:
		return c.Pause(ctx)
	case ActionNext:
		return c.Next(ctx)
	case ActionPrevious:
		return c.Previous(ctx)
	}

	// Body click or an action this version does not know.
	if p.opts.DefaultAction == DefaultActionResume {
		return c.Resume(ctx)
	}
	return nil
}

// Run handles actions from the notifier until ctx is done.
func (p *Presenter) Run(ctx context.Context) error {
	actions := p.notifier.Actions()
	for {
		select {
		case <-ctx.Done():
			return nil
		case r, ok := <-actions:
			if !ok {
				return nil
			}
			if err := p.HandleAction(ctx, r); err != nil {
				p.log.Warn(errmsg.Format(actionOp(r.ActionID), err),
					zap.String("action", r.ActionID))
			}
		}
	}
}

func actionOp(id string) errmsg.Op {
	switch id {
	case ActionNext:
		return errmsg.OpPlaybackNext
	case ActionPrevious:
		return errmsg.OpPlaybackPrev
	}
	return errmsg.OpPlaybackToggle
}

// Verify Presenter implements playback.Presenter at compile time.
var _ playback.Presenter = (*Presenter)(nil)
