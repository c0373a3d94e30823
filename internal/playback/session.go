package playback

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/llehouerou/wavelet/internal/catalog"
	"github.com/llehouerou/wavelet/internal/errmsg"
	"github.com/llehouerou/wavelet/internal/player"
)

// DefaultPresenterTimeout bounds each Refresh/Dismiss call.
const DefaultPresenterTimeout = 2 * time.Second

// Options configures a Session.
type Options struct {
	Policy           Policy
	AudioMode        player.AudioMode
	Presenter        Presenter
	PresenterTimeout time.Duration
	Logger           *zap.Logger
}

// DefaultAudioMode keeps audio running in the background, ignores the silent
// switch and ducks other apps.
var DefaultAudioMode = player.AudioMode{
	Background:       true,
	PlayInSilentMode: true,
	DuckOthers:       true,
}

// Session serializes every playback operation on one goroutine.
// Only that goroutine reads or writes the fields below the loop marker.
type Session struct {
	opener    player.Opener
	presenter Presenter
	policy    Policy
	mode      player.AudioMode
	timeout   time.Duration
	log       *zap.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	ops       chan func()
	done      chan struct{}
	loopDone  chan struct{}
	closeOnce sync.Once

	subsMu     sync.Mutex
	subs       []*Subscription
	subsClosed bool

	// loop
	queue       Queue
	position    int
	playing     bool
	autoAdvance bool
	handle      player.Handle
	gen         uint64
	loading     bool
	loadIndex   int
	cancelLoad  context.CancelFunc
	lastAcquire chan struct{}
	lastTrack   *catalog.Track
}

// New starts a session. Close must be called to stop it.
func New(opener player.Opener, opts Options) *Session {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	presenter := opts.Presenter
	if presenter == nil {
		presenter = nopPresenter{}
	}
	timeout := opts.PresenterTimeout
	if timeout <= 0 {
		timeout = DefaultPresenterTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	idle := make(chan struct{})
	close(idle)

	s := &Session{
		opener:      opener,
		presenter:   presenter,
		policy:      opts.Policy,
		mode:        opts.AudioMode,
		timeout:     timeout,
		log:         log,
		ctx:         ctx,
		cancel:      cancel,
		ops:         make(chan func()),
		done:        make(chan struct{}),
		loopDone:    make(chan struct{}),
		position:    NoPosition,
		loadIndex:   NoPosition,
		lastAcquire: idle,
	}
	go s.run()
	return s
}

func (s *Session) run() {
	defer close(s.loopDone)
	for {
		select {
		case op := <-s.ops:
			op()
		case <-s.done:
			s.shutdown()
			return
		}
	}
}

// Close stops the active track, dismisses the notification and ends the
// session goroutine. It is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		<-s.loopDone
	})
	return nil
}

// Subscribe returns a subscription for playback events.
func (s *Session) Subscribe() *Subscription {
	sub := newSubscription()

	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	if s.subsClosed {
		sub.close()
		return sub
	}
	s.subs = append(s.subs, sub)
	return sub
}

// post hands op to the loop. The ops channel is unbuffered, so a successful
// send means the loop runs op.
func (s *Session) post(op func()) bool {
	select {
	case s.ops <- op:
		return true
	case <-s.done:
		return false
	}
}

// call posts fn and waits for the error it sends on reply. fn may keep reply
// and answer later; reply is buffered so a late answer never blocks.
func (s *Session) call(ctx context.Context, fn func(reply chan<- error)) error {
	reply := make(chan error, 1)
	select {
	case s.ops <- func() { fn(reply) }:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrClosed
	}

	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.loopDone:
		return ErrClosed
	}
}

func (s *Session) exec(ctx context.Context, fn func() error) error {
	return s.call(ctx, func(reply chan<- error) { reply <- fn() })
}

// Play loads queue.Tracks[index] and starts it. It returns once the track is
// playing, the load failed, or a later request superseded it.
func (s *Session) Play(ctx context.Context, queue Queue, index int, opts ...PlayOption) error {
	if index < 0 || index >= queue.Len() {
		return fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, index, queue.Len())
	}
	o := playOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	queue = queue.clone()

	return s.call(ctx, func(reply chan<- error) {
		auto := s.policy.ManualAutoAdvance
		if o.autoAdvance != nil {
			auto = *o.autoAdvance
		}
		s.startLoad(queue, index, auto, reply)
	})
}

// Next plays the following track, wrapping to the first.
func (s *Session) Next(ctx context.Context) error {
	return s.call(ctx, func(reply chan<- error) {
		n := s.queue.Len()
		if n == 0 {
			reply <- nil
			return
		}
		next := 0
		if cur := s.cursor(); cur != NoPosition {
			next = (cur + 1) % n
		}
		s.startLoad(s.queue, next, true, reply)
	})
}

// Previous plays the preceding track, wrapping to the last.
func (s *Session) Previous(ctx context.Context) error {
	return s.call(ctx, func(reply chan<- error) {
		n := s.queue.Len()
		if n == 0 {
			reply <- nil
			return
		}
		prev := n - 1
		if cur := s.cursor(); cur != NoPosition {
			prev = (cur - 1 + n) % n
		}
		s.startLoad(s.queue, prev, true, reply)
	})
}

// TogglePlayPause flips between Playing and Paused. No-op without a loaded track.
func (s *Session) TogglePlayPause(ctx context.Context) error {
	return s.exec(ctx, func() error {
		if s.handle == nil {
			return nil
		}
		return s.setPlaying(!s.playing)
	})
}

// Pause pauses the loaded track. No-op when not playing.
func (s *Session) Pause(ctx context.Context) error {
	return s.exec(ctx, func() error {
		if s.handle == nil || !s.playing {
			return nil
		}
		return s.setPlaying(false)
	})
}

// Resume resumes the loaded track. No-op when not paused.
func (s *Session) Resume(ctx context.Context) error {
	return s.exec(ctx, func() error {
		if s.handle == nil || s.playing {
			return nil
		}
		return s.setPlaying(true)
	})
}

// Stop releases the active handle and cancels any pending load.
// The queue is kept so Next and Previous still work.
func (s *Session) Stop(ctx context.Context) error {
	return s.exec(ctx, func() error {
		s.stop()
		return nil
	})
}

// StopIf stops the session when match returns true for the current state,
// including a track still being loaded. The check and the stop happen in one
// step. Unlike Stop it also clears the queue, so Next and Previous cannot bring
// back a track whose source was edited.
func (s *Session) StopIf(ctx context.Context, match func(Snapshot) bool) (bool, error) {
	var stopped bool
	err := s.exec(ctx, func() error {
		if !match(s.snapshot()) {
			return nil
		}
		s.stop()
		s.queue = Queue{}
		stopped = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return stopped, nil
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.exec(ctx, func() error {
		snap = s.snapshot()
		return nil
	})
	if err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// Everything below runs on the loop goroutine.

func (s *Session) state() State {
	switch {
	case s.loading:
		return StateLoading
	case s.handle == nil:
		return StateIdle
	case s.playing:
		return StatePlaying
	default:
		return StatePaused
	}
}

func (s *Session) snapshot() Snapshot {
	return Snapshot{
		State:       s.state(),
		Queue:       s.queue.clone(),
		Position:    s.position,
		Pending:     s.loadIndex,
		Playing:     s.playing,
		AutoAdvance: s.autoAdvance,
	}
}

// cursor is the index Next and Previous move from: the track being loaded,
// or the loaded one.
func (s *Session) cursor() int {
	if s.loading {
		return s.loadIndex
	}
	return s.position
}

func (s *Session) currentTrack() *catalog.Track {
	if s.position == NoPosition {
		return nil
	}
	t := s.queue.Tracks[s.position]
	return &t
}

// startLoad tears down the active track and starts acquiring queue.Tracks[index].
// reply receives the outcome once the acquisition re-enters the loop.
func (s *Session) startLoad(queue Queue, index int, auto bool, reply chan<- error) {
	prev := s.state()

	s.invalidate()
	s.releaseHandle()
	s.queue = queue
	s.position = NoPosition
	s.playing = false
	s.loading = true
	s.loadIndex = index

	ctx, cancel := context.WithCancel(s.ctx)
	s.cancelLoad = cancel

	after := s.lastAcquire
	done := make(chan struct{})
	s.lastAcquire = done

	track := queue.Tracks[index]
	s.log.Debug("loading track",
		zap.String("track_id", track.ID),
		zap.Int("index", index),
		zap.Uint64("generation", s.gen))
	s.emitState(prev)

	go s.acquire(ctx, acquisition{
		gen:   s.gen,
		index: index,
		auto:  auto,
		track: track,
		after: after,
		done:  done,
		reply: reply,
	})
}

type acquisition struct {
	gen   uint64
	index int
	auto  bool
	track catalog.Track
	after <-chan struct{}
	done  chan struct{}
	reply chan<- error
}

// acquire opens the handle off the loop. It waits for the previous
// acquisition to settle so at most one handle is ever open.
func (s *Session) acquire(ctx context.Context, a acquisition) {
	<-a.after

	var h player.Handle
	err := ctx.Err()
	if err == nil {
		if merr := s.opener.SetAudioMode(s.mode); merr != nil {
			s.log.Warn("set audio mode", zap.Error(merr))
		}
		h, err = s.opener.Open(ctx, a.track.SourceURI)
	}

	if !s.post(func() { s.install(a, h, err) }) {
		if h != nil {
			s.release(h)
		}
		close(a.done)
		a.reply <- ErrClosed
	}
}

func (s *Session) install(a acquisition, h player.Handle, openErr error) {
	defer close(a.done)

	if a.gen != s.gen {
		if h != nil {
			s.log.Debug("releasing superseded handle",
				zap.String("track_id", a.track.ID),
				zap.Uint64("generation", a.gen))
			s.release(h)
		}
		a.reply <- ErrSuperseded
		return
	}

	prev := s.state()
	s.loading = false
	s.loadIndex = NoPosition
	s.cancelLoad = nil

	if openErr == nil {
		gen := a.gen
		h.OnCompletion(func() {
			// May run on an audio goroutine; never block it.
			go s.post(func() { s.complete(gen) })
		})
		if perr := h.Play(); perr != nil {
			s.release(h)
			openErr = perr
		}
	}
	if openErr != nil {
		s.log.Warn("open track failed",
			zap.String("track_id", a.track.ID),
			zap.String("uri", a.track.SourceURI),
			zap.Error(openErr))
		s.emitState(prev)
		s.emitError(ErrorEvent{Operation: "play", TrackID: a.track.ID, Err: openErr})
		s.dismiss()
		a.reply <- fmt.Errorf("open %s: %w", a.track.SourceURI, openErr)
		return
	}

	previous := s.lastTrack
	s.handle = h
	s.position = a.index
	s.playing = true
	s.autoAdvance = a.auto

	s.log.Info("playing",
		zap.String("track_id", a.track.ID),
		zap.Int("index", a.index),
		zap.Bool("auto_advance", a.auto))
	s.emitState(prev)
	s.lastTrack = s.currentTrack()
	s.emitTrack(TrackChange{Previous: previous, Current: s.currentTrack(), Index: a.index})
	s.refresh()
	a.reply <- nil
}

// complete handles natural end of the handle installed under gen.
func (s *Session) complete(gen uint64) {
	if gen != s.gen || s.handle == nil {
		s.log.Debug("ignoring stale completion", zap.Uint64("generation", gen))
		return
	}

	n := s.queue.Len()
	if s.autoAdvance && (s.position < n-1 || s.policy.WrapQueue) {
		next := (s.position + 1) % n
		s.startLoad(s.queue, next, true, make(chan error, 1))
		return
	}
	s.log.Debug("queue finished")
	s.stop()
}

func (s *Session) setPlaying(playing bool) error {
	prev := s.state()
	op := "pause"
	do := s.handle.Pause
	if playing {
		op = "resume"
		do = s.handle.Play
	}
	if err := do(); err != nil {
		s.log.Warn(op+" failed", zap.Error(err))
		s.emitError(ErrorEvent{Operation: op, TrackID: s.currentTrackID(), Err: err})
		return fmt.Errorf("%s: %w", op, err)
	}
	s.playing = playing
	s.emitState(prev)
	s.refresh()
	return nil
}

func (s *Session) stop() {
	prev := s.state()
	s.invalidate()
	s.releaseHandle()
	s.position = NoPosition
	s.playing = false
	s.loading = false
	s.loadIndex = NoPosition
	s.emitState(prev)
	s.dismiss()
}

// invalidate makes pending loads and completion callbacks stale.
func (s *Session) invalidate() {
	s.gen++
	if s.cancelLoad != nil {
		s.cancelLoad()
		s.cancelLoad = nil
	}
}

func (s *Session) releaseHandle() {
	if s.handle == nil {
		return
	}
	h := s.handle
	s.handle = nil
	s.release(h)
}

// release stops and releases h. Release runs even when Stop fails.
func (s *Session) release(h player.Handle) {
	if err := h.Stop(); err != nil {
		s.log.Warn("stop handle", zap.Error(err))
	}
	if err := h.Release(); err != nil {
		s.log.Warn("release handle", zap.Error(err))
	}
}

func (s *Session) shutdown() {
	s.invalidate()
	s.releaseHandle()
	s.position = NoPosition
	s.playing = false
	s.loading = false
	s.loadIndex = NoPosition
	s.dismiss()
	s.cancel()

	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, sub := range s.subs {
		sub.close()
	}
	s.subs = nil
	s.subsClosed = true
}

func (s *Session) currentTrackID() string {
	if t := s.currentTrack(); t != nil {
		return t.ID
	}
	return ""
}

func (s *Session) refresh() {
	t := s.currentTrack()
	if t == nil {
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()
	np := NowPlaying{Track: *t, Index: s.position, Playing: s.playing}
	if err := s.presenter.Refresh(ctx, np); err != nil {
		s.log.Warn(errmsg.Format(errmsg.OpNotifyShow, err))
	}
}

func (s *Session) dismiss() {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()
	if err := s.presenter.Dismiss(ctx); err != nil {
		s.log.Warn(errmsg.Format(errmsg.OpNotifyDismiss, err))
	}
}

func (s *Session) emitState(prev State) {
	cur := s.state()
	if cur == prev {
		return
	}
	e := StateChange{Previous: prev, Current: cur}
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, sub := range s.subs {
		sub.sendState(e)
	}
}

func (s *Session) emitTrack(e TrackChange) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, sub := range s.subs {
		sub.sendTrack(e)
	}
}

func (s *Session) emitError(e ErrorEvent) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, sub := range s.subs {
		sub.sendError(e)
	}
}

type nopPresenter struct{}

func (nopPresenter) Refresh(context.Context, NowPlaying) error { return nil }
func (nopPresenter) Dismiss(context.Context) error             { return nil }

// Verify Session implements Controls at compile time.
var _ Controls = (*Session)(nil)
