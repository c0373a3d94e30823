package playback

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"testing/synctest"

	"go.uber.org/zap/zaptest"

	"github.com/llehouerou/wavelet/internal/catalog"
	"github.com/llehouerou/wavelet/internal/player"
)

type fakePresenter struct {
	mu        sync.Mutex
	refreshes []NowPlaying
	dismisses int
	current   *NowPlaying
}

func (p *fakePresenter) Refresh(_ context.Context, np NowPlaying) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshes = append(p.refreshes, np)
	p.current = &np
	return nil
}

func (p *fakePresenter) Dismiss(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dismisses++
	p.current = nil
	return nil
}

func (p *fakePresenter) Current() *NowPlaying {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return nil
	}
	np := *p.current
	return &np
}

// ignoreCancelOpener opens even after the load was canceled, like a decoder
// that cannot be interrupted.
type ignoreCancelOpener struct {
	*player.Mock
}

func (o ignoreCancelOpener) Open(_ context.Context, uri string) (player.Handle, error) {
	return o.Mock.Open(context.Background(), uri)
}

func testQueue(ids ...string) Queue {
	q := Queue{Source: "pl-1"}
	for _, id := range ids {
		q.Tracks = append(q.Tracks, catalog.Track{
			ID:          id,
			SourceURI:   "/music/" + id + ".mp3",
			DisplayName: id + ".mp3",
			Title:       "Song " + id,
		})
	}
	return q
}

func newTestSession(t *testing.T, opener player.Opener, policy Policy) (*Session, *fakePresenter) {
	t.Helper()
	presenter := &fakePresenter{}
	s := New(opener, Options{
		Policy:    policy,
		AudioMode: DefaultAudioMode,
		Presenter: presenter,
		Logger:    zaptest.NewLogger(t),
	})
	return s, presenter
}

func mustSnapshot(t *testing.T, s *Session) Snapshot {
	t.Helper()
	snap, err := s.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	return snap
}

// checkInvariants verifies a handle is held iff a position is set.
func checkInvariants(t *testing.T, s *Session, mock *player.Mock) {
	t.Helper()
	snap := mustSnapshot(t, s)
	hasPosition := snap.Position != NoPosition
	if hasPosition != (mock.Live() == 1) {
		t.Fatalf("position = %d but live handles = %d", snap.Position, mock.Live())
	}
	if mock.MaxLive() > 1 {
		t.Fatalf("MaxLive = %d, want <= 1", mock.MaxLive())
	}
	if hasPosition != snap.State.IsActive() {
		t.Fatalf("position = %d but state = %v", snap.Position, snap.State)
	}
}

func TestSession_Play_StartsTrack(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		mock := player.NewMock()
		s, presenter := newTestSession(t, mock, Policy{})
		defer s.Close()

		if err := s.Play(context.Background(), testQueue("a", "b", "c"), 1); err != nil {
			t.Fatalf("Play() error = %v", err)
		}

		snap := mustSnapshot(t, s)
		if snap.State != StatePlaying {
			t.Errorf("State = %v, want Playing", snap.State)
		}
		if snap.Position != 1 {
			t.Errorf("Position = %d, want 1", snap.Position)
		}
		if snap.AutoAdvance {
			t.Error("manual selection should not auto-advance by default")
		}
		if got := snap.Track(); got == nil || got.ID != "b" {
			t.Errorf("Track() = %v, want b", got)
		}
		if !mock.Last().IsPlaying() {
			t.Error("handle should be playing")
		}
		if modes := mock.Modes(); len(modes) != 1 || modes[0] != DefaultAudioMode {
			t.Errorf("Modes() = %v, want [DefaultAudioMode]", modes)
		}

		np := presenter.Current()
		if np == nil || np.Track.ID != "b" || !np.Playing {
			t.Errorf("presenter shows %+v, want b playing", np)
		}
		checkInvariants(t, s, mock)
	})
}

func TestSession_Play_IndexOutOfRange(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		mock := player.NewMock()
		s, _ := newTestSession(t, mock, Policy{})
		defer s.Close()

		for _, idx := range []int{-1, 3} {
			err := s.Play(context.Background(), testQueue("a", "b", "c"), idx)
			if !errors.Is(err, ErrIndexOutOfRange) {
				t.Errorf("Play(%d) error = %v, want ErrIndexOutOfRange", idx, err)
			}
		}
		if len(mock.Opens()) != 0 {
			t.Errorf("Opens() = %v, want none", mock.Opens())
		}
		if snap := mustSnapshot(t, s); snap.State != StateIdle {
			t.Errorf("State = %v, want Idle", snap.State)
		}
	})
}

func TestSession_Play_ReleasesPreviousHandle(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		mock := player.NewMock()
		s, _ := newTestSession(t, mock, Policy{})
		defer s.Close()
		ctx := context.Background()
		q := testQueue("a", "b", "c")

		for i := range 3 {
			if err := s.Play(ctx, q, i); err != nil {
				t.Fatalf("Play(%d) error = %v", i, err)
			}
			checkInvariants(t, s, mock)
		}

		handles := mock.Handles()
		if len(handles) != 3 {
			t.Fatalf("opened %d handles, want 3", len(handles))
		}
		for _, h := range handles[:2] {
			if !h.IsStopped() || !h.IsReleased() {
				t.Errorf("handle %s: stopped=%v released=%v, want both", h.URI, h.IsStopped(), h.IsReleased())
			}
		}
		if mock.MaxLive() != 1 {
			t.Errorf("MaxLive = %d, want 1", mock.MaxLive())
		}
	})
}

func TestSession_Completion_AdvancesToNext(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		mock := player.NewMock()
		s, presenter := newTestSession(t, mock, Policy{})
		defer s.Close()
		ctx := context.Background()

		if err := s.Play(ctx, testQueue("a", "b", "c"), 0, WithAutoAdvance(true)); err != nil {
			t.Fatalf("Play() error = %v", err)
		}
		first := mock.Last()

		first.SimulateCompletion()
		synctest.Wait()

		snap := mustSnapshot(t, s)
		if snap.State != StatePlaying || snap.Position != 1 {
			t.Fatalf("after completion: state=%v position=%d, want Playing at 1", snap.State, snap.Position)
		}
		if !first.IsReleased() {
			t.Error("finished handle should be released")
		}
		np := presenter.Current()
		if np == nil || np.Track.ID != "b" || !np.Playing {
			t.Errorf("presenter shows %+v, want b playing", np)
		}
		checkInvariants(t, s, mock)
	})
}

func TestSession_Completion_Policies(t *testing.T) {
	tests := []struct {
		name       string
		policy     Policy
		index      int
		opts       []PlayOption
		wantState  State
		wantPos    int
		wantOpened int
	}{
		{
			name:       "manual selection stops by default",
			index:      0,
			wantState:  StateIdle,
			wantPos:    NoPosition,
			wantOpened: 1,
		},
		{
			name:       "manual selection advances when configured",
			policy:     Policy{ManualAutoAdvance: true},
			index:      0,
			wantState:  StatePlaying,
			wantPos:    1,
			wantOpened: 2,
		},
		{
			name:       "manual selection of last track stops",
			index:      2,
			wantState:  StateIdle,
			wantPos:    NoPosition,
			wantOpened: 1,
		},
		{
			name:       "auto-advance stops at last track",
			index:      2,
			opts:       []PlayOption{WithAutoAdvance(true)},
			wantState:  StateIdle,
			wantPos:    NoPosition,
			wantOpened: 1,
		},
		{
			name:       "auto-advance wraps when configured",
			policy:     Policy{WrapQueue: true},
			index:      2,
			opts:       []PlayOption{WithAutoAdvance(true)},
			wantState:  StatePlaying,
			wantPos:    0,
			wantOpened: 2,
		},
		{
			name:       "option overrides policy",
			policy:     Policy{ManualAutoAdvance: true},
			index:      0,
			opts:       []PlayOption{WithAutoAdvance(false)},
			wantState:  StateIdle,
			wantPos:    NoPosition,
			wantOpened: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			synctest.Test(t, func(t *testing.T) {
				mock := player.NewMock()
				s, presenter := newTestSession(t, mock, tt.policy)
				defer s.Close()

				if err := s.Play(context.Background(), testQueue("a", "b", "c"), tt.index, tt.opts...); err != nil {
					t.Fatalf("Play() error = %v", err)
				}
				mock.Last().SimulateCompletion()
				synctest.Wait()

				snap := mustSnapshot(t, s)
				if snap.State != tt.wantState {
					t.Errorf("State = %v, want %v", snap.State, tt.wantState)
				}
				if snap.Position != tt.wantPos {
					t.Errorf("Position = %d, want %d", snap.Position, tt.wantPos)
				}
				if got := len(mock.Opens()); got != tt.wantOpened {
					t.Errorf("opened %d tracks, want %d", got, tt.wantOpened)
				}
				if tt.wantState == StateIdle && presenter.Current() != nil {
					t.Error("notification should be dismissed when idle")
				}
				checkInvariants(t, s, mock)
			})
		})
	}
}

func TestSession_StaleCompletionIgnored(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		mock := player.NewMock()
		s, _ := newTestSession(t, mock, Policy{ManualAutoAdvance: true})
		defer s.Close()
		ctx := context.Background()
		q := testQueue("a", "b", "c")

		if err := s.Play(ctx, q, 0); err != nil {
			t.Fatal(err)
		}
		stale := mock.Last()
		if err := s.Play(ctx, q, 2); err != nil {
			t.Fatal(err)
		}

		stale.SimulateCompletion()
		synctest.Wait()

		snap := mustSnapshot(t, s)
		if snap.State != StatePlaying || snap.Position != 2 {
			t.Errorf("state=%v position=%d, want Playing at 2", snap.State, snap.Position)
		}
		if got := len(mock.Opens()); got != 2 {
			t.Errorf("opened %d tracks, want 2", got)
		}
	})
}

func TestSession_CompletionAfterStopIgnored(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		mock := player.NewMock()
		s, _ := newTestSession(t, mock, Policy{ManualAutoAdvance: true})
		defer s.Close()
		ctx := context.Background()

		if err := s.Play(ctx, testQueue("a", "b"), 0); err != nil {
			t.Fatal(err)
		}
		h := mock.Last()
		if err := s.Stop(ctx); err != nil {
			t.Fatal(err)
		}

		h.SimulateCompletion()
		synctest.Wait()

		if snap := mustSnapshot(t, s); snap.State != StateIdle {
			t.Errorf("State = %v, want Idle", snap.State)
		}
		if got := len(mock.Opens()); got != 1 {
			t.Errorf("opened %d tracks, want 1", got)
		}
	})
}

func TestSession_NextPrevious_Wrap(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		mock := player.NewMock()
		s, _ := newTestSession(t, mock, Policy{})
		defer s.Close()
		ctx := context.Background()

		if err := s.Play(ctx, testQueue("a", "b", "c"), 2); err != nil {
			t.Fatal(err)
		}

		steps := []struct {
			name string
			op   func(context.Context) error
			want int
		}{
			{"next from last wraps", s.Next, 0},
			{"previous from first wraps", s.Previous, 2},
			{"previous", s.Previous, 1},
			{"next", s.Next, 2},
		}
		for _, step := range steps {
			if err := step.op(ctx); err != nil {
				t.Fatalf("%s: error = %v", step.name, err)
			}
			snap := mustSnapshot(t, s)
			if snap.Position != step.want {
				t.Errorf("%s: Position = %d, want %d", step.name, snap.Position, step.want)
			}
			if !snap.AutoAdvance {
				t.Errorf("%s: AutoAdvance = false, want true", step.name)
			}
			checkInvariants(t, s, mock)
		}
	})
}

func TestSession_NextPrevious_FromIdle(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		mock := player.NewMock()
		s, _ := newTestSession(t, mock, Policy{})
		defer s.Close()
		ctx := context.Background()

		// Empty queue is a no-op.
		if err := s.Next(ctx); err != nil {
			t.Fatalf("Next() on empty queue error = %v", err)
		}
		if err := s.Previous(ctx); err != nil {
			t.Fatalf("Previous() on empty queue error = %v", err)
		}
		if len(mock.Opens()) != 0 {
			t.Fatalf("Opens() = %v, want none", mock.Opens())
		}

		if err := s.Play(ctx, testQueue("a", "b", "c"), 1); err != nil {
			t.Fatal(err)
		}
		if err := s.Stop(ctx); err != nil {
			t.Fatal(err)
		}
		if err := s.Next(ctx); err != nil {
			t.Fatal(err)
		}
		if snap := mustSnapshot(t, s); snap.Position != 0 {
			t.Errorf("Next from stopped: Position = %d, want 0", snap.Position)
		}

		if err := s.Stop(ctx); err != nil {
			t.Fatal(err)
		}
		if err := s.Previous(ctx); err != nil {
			t.Fatal(err)
		}
		if snap := mustSnapshot(t, s); snap.Position != 2 {
			t.Errorf("Previous from stopped: Position = %d, want 2", snap.Position)
		}
	})
}

func TestSession_TogglePlayPause(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		mock := player.NewMock()
		s, presenter := newTestSession(t, mock, Policy{})
		defer s.Close()
		ctx := context.Background()

		// No track loaded: no-op.
		if err := s.TogglePlayPause(ctx); err != nil {
			t.Fatalf("TogglePlayPause() idle error = %v", err)
		}
		if snap := mustSnapshot(t, s); snap.State != StateIdle {
			t.Fatalf("State = %v, want Idle", snap.State)
		}

		if err := s.Play(ctx, testQueue("a"), 0); err != nil {
			t.Fatal(err)
		}
		h := mock.Last()

		if err := s.TogglePlayPause(ctx); err != nil {
			t.Fatal(err)
		}
		if snap := mustSnapshot(t, s); snap.State != StatePaused {
			t.Errorf("State = %v, want Paused", snap.State)
		}
		if h.IsPlaying() {
			t.Error("handle should be paused")
		}
		if np := presenter.Current(); np == nil || np.Playing {
			t.Errorf("presenter shows %+v, want paused", np)
		}

		if err := s.TogglePlayPause(ctx); err != nil {
			t.Fatal(err)
		}
		if snap := mustSnapshot(t, s); snap.State != StatePlaying {
			t.Errorf("State = %v, want Playing", snap.State)
		}
		if np := presenter.Current(); np == nil || !np.Playing {
			t.Errorf("presenter shows %+v, want playing", np)
		}
	})
}

func TestSession_PauseResume_NoOps(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		mock := player.NewMock()
		s, _ := newTestSession(t, mock, Policy{})
		defer s.Close()
		ctx := context.Background()

		if err := s.Pause(ctx); err != nil {
			t.Fatalf("Pause() idle error = %v", err)
		}
		if err := s.Play(ctx, testQueue("a"), 0); err != nil {
			t.Fatal(err)
		}
		h := mock.Last()

		if err := s.Resume(ctx); err != nil {
			t.Fatal(err)
		}
		if err := s.Pause(ctx); err != nil {
			t.Fatal(err)
		}
		if err := s.Pause(ctx); err != nil {
			t.Fatal(err)
		}
		if got := h.PauseCalls(); got != 1 {
			t.Errorf("PauseCalls = %d, want 1", got)
		}
		if err := s.Resume(ctx); err != nil {
			t.Fatal(err)
		}
		if snap := mustSnapshot(t, s); snap.State != StatePlaying {
			t.Errorf("State = %v, want Playing", snap.State)
		}
	})
}

func TestSession_Stop_ReleasesEvenWhenStopFails(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		mock := player.NewMock()
		s, presenter := newTestSession(t, mock, Policy{})
		defer s.Close()
		ctx := context.Background()

		if err := s.Play(ctx, testQueue("a", "b"), 1); err != nil {
			t.Fatal(err)
		}
		h := mock.Last()
		h.SetStopError(errors.New("device gone"))

		if err := s.Stop(ctx); err != nil {
			t.Fatalf("Stop() error = %v", err)
		}

		if !h.IsReleased() {
			t.Error("handle should be released even when Stop fails")
		}
		snap := mustSnapshot(t, s)
		if snap.State != StateIdle || snap.Position != NoPosition || snap.Playing {
			t.Errorf("snapshot = %+v, want idle", snap)
		}
		if snap.Queue.Len() != 2 {
			t.Errorf("queue length = %d, want 2 (kept)", snap.Queue.Len())
		}
		if presenter.Current() != nil {
			t.Error("notification should be dismissed")
		}
		checkInvariants(t, s, mock)
	})
}

func TestSession_StopDuringLoading(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		mock := player.NewMock()
		s, _ := newTestSession(t, mock, Policy{})
		defer s.Close()
		ctx := context.Background()
		q := testQueue("a")

		release := mock.Hold(q.Tracks[0].SourceURI)
		defer release()

		errCh := make(chan error, 1)
		go func() { errCh <- s.Play(ctx, q, 0) }()
		synctest.Wait()

		if snap := mustSnapshot(t, s); snap.State != StateLoading {
			t.Fatalf("State = %v, want Loading", snap.State)
		}

		if err := s.Stop(ctx); err != nil {
			t.Fatal(err)
		}
		if err := <-errCh; !errors.Is(err, ErrSuperseded) {
			t.Errorf("Play() error = %v, want ErrSuperseded", err)
		}
		if snap := mustSnapshot(t, s); snap.State != StateIdle {
			t.Errorf("State = %v, want Idle", snap.State)
		}
		if mock.Live() != 0 {
			t.Errorf("Live = %d, want 0", mock.Live())
		}
	})
}

func TestSession_SupersededAcquisitionReleased(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		mock := player.NewMock()
		s, presenter := newTestSession(t, ignoreCancelOpener{mock}, Policy{})
		defer s.Close()
		ctx := context.Background()
		q := testQueue("a", "b")

		release := mock.Hold(q.Tracks[0].SourceURI)

		firstErr := make(chan error, 1)
		go func() { firstErr <- s.Play(ctx, q, 0) }()
		synctest.Wait()

		secondErr := make(chan error, 1)
		go func() { secondErr <- s.Play(ctx, q, 1) }()
		synctest.Wait()

		release()

		if err := <-firstErr; !errors.Is(err, ErrSuperseded) {
			t.Errorf("first Play() error = %v, want ErrSuperseded", err)
		}
		if err := <-secondErr; err != nil {
			t.Errorf("second Play() error = %v", err)
		}

		handles := mock.Handles()
		if len(handles) != 2 {
			t.Fatalf("opened %d handles, want 2", len(handles))
		}
		if !handles[0].IsReleased() {
			t.Error("superseded handle should be released")
		}
		if mock.MaxLive() != 1 {
			t.Errorf("MaxLive = %d, want 1", mock.MaxLive())
		}
		snap := mustSnapshot(t, s)
		if snap.Position != 1 || snap.State != StatePlaying {
			t.Errorf("state=%v position=%d, want Playing at 1", snap.State, snap.Position)
		}
		if np := presenter.Current(); np == nil || np.Track.ID != "b" {
			t.Errorf("presenter shows %+v, want b", np)
		}
	})
}

func TestSession_NextWhileLoading_MovesFromPendingTrack(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		mock := player.NewMock()
		s, _ := newTestSession(t, mock, Policy{})
		defer s.Close()
		ctx := context.Background()
		q := testQueue("a", "b", "c")

		release := mock.Hold(q.Tracks[1].SourceURI)
		defer release()

		errCh := make(chan error, 1)
		go func() { errCh <- s.Play(ctx, q, 1) }()
		synctest.Wait()

		if err := s.Next(ctx); err != nil {
			t.Fatal(err)
		}
		if err := <-errCh; !errors.Is(err, ErrSuperseded) {
			t.Errorf("Play() error = %v, want ErrSuperseded", err)
		}
		if snap := mustSnapshot(t, s); snap.Position != 2 {
			t.Errorf("Position = %d, want 2", snap.Position)
		}
	})
}

func TestSession_OpenFailure(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		mock := player.NewMock()
		s, presenter := newTestSession(t, mock, Policy{})
		defer s.Close()
		ctx := context.Background()
		q := testQueue("a", "b")
		openErr := errors.New("corrupt file")
		mock.SetOpenError(q.Tracks[1].SourceURI, openErr)

		sub := s.Subscribe()
		if err := s.Play(ctx, q, 0); err != nil {
			t.Fatal(err)
		}

		err := s.Play(ctx, q, 1)
		if !errors.Is(err, openErr) {
			t.Fatalf("Play() error = %v, want %v", err, openErr)
		}

		snap := mustSnapshot(t, s)
		if snap.State != StateIdle || snap.Position != NoPosition {
			t.Errorf("state=%v position=%d, want Idle", snap.State, snap.Position)
		}
		if presenter.Current() != nil {
			t.Error("notification should be dismissed after failed open")
		}

		select {
		case e := <-sub.Error:
			if e.Operation != "play" || e.TrackID != "b" || !errors.Is(e.Err, openErr) {
				t.Errorf("ErrorEvent = %+v", e)
			}
		default:
			t.Error("expected an error event")
		}
		checkInvariants(t, s, mock)
	})
}

func TestSession_Events(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		mock := player.NewMock()
		s, _ := newTestSession(t, mock, Policy{})
		defer s.Close()
		ctx := context.Background()
		sub := s.Subscribe()

		q := testQueue("a", "b")
		if err := s.Play(ctx, q, 0); err != nil {
			t.Fatal(err)
		}
		if err := s.Next(ctx); err != nil {
			t.Fatal(err)
		}

		wantStates := []StateChange{
			{StateIdle, StateLoading},
			{StateLoading, StatePlaying},
			{StatePlaying, StateLoading},
			{StateLoading, StatePlaying},
		}
		for i, want := range wantStates {
			got := <-sub.StateChanged
			if got != want {
				t.Errorf("state event %d = %+v, want %+v", i, got, want)
			}
		}

		first := <-sub.TrackChanged
		if first.Previous != nil || first.Current.ID != "a" {
			t.Errorf("first track event = %+v", first)
		}
		second := <-sub.TrackChanged
		if second.Previous == nil || second.Previous.ID != "a" || second.Current.ID != "b" || second.Index != 1 {
			t.Errorf("second track event = %+v", second)
		}
	})
}

func TestSession_StopIf(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		mock := player.NewMock()
		s, _ := newTestSession(t, mock, Policy{})
		defer s.Close()
		ctx := context.Background()

		if err := s.Play(ctx, testQueue("a", "b"), 1); err != nil {
			t.Fatal(err)
		}

		playing := func(id string) func(Snapshot) bool {
			return func(snap Snapshot) bool {
				tr := snap.Track()
				return tr != nil && tr.ID == id
			}
		}

		stopped, err := s.StopIf(ctx, playing("a"))
		if err != nil || stopped {
			t.Fatalf("StopIf(a) = %v, %v; want false, nil", stopped, err)
		}
		stopped, err = s.StopIf(ctx, playing("b"))
		if err != nil || !stopped {
			t.Fatalf("StopIf(b) = %v, %v; want true, nil", stopped, err)
		}
		if snap := mustSnapshot(t, s); snap.State != StateIdle {
			t.Errorf("State = %v, want Idle", snap.State)
		}
	})
}

func TestSession_StopIf_MatchesPendingTrack(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		mock := player.NewMock()
		s, _ := newTestSession(t, mock, Policy{})
		defer s.Close()
		ctx := context.Background()
		q := testQueue("a", "b")

		release := mock.Hold(q.Tracks[1].SourceURI)
		defer release()
		done := make(chan error, 1)
		go func() { done <- s.Play(ctx, q, 1) }()
		synctest.Wait()

		snap := mustSnapshot(t, s)
		if snap.Track() != nil {
			t.Fatalf("Track() = %v while loading, want nil", snap.Track())
		}
		if snap.Pending != 1 || snap.Current() == nil || snap.Current().ID != "b" {
			t.Fatalf("Pending = %d, Current() = %v; want 1, b", snap.Pending, snap.Current())
		}

		stopped, err := s.StopIf(ctx, func(snap Snapshot) bool {
			c := snap.Current()
			return c != nil && c.ID == "b"
		})
		if err != nil || !stopped {
			t.Fatalf("StopIf = %v, %v; want true, nil", stopped, err)
		}
		if err := <-done; !errors.Is(err, ErrSuperseded) {
			t.Errorf("Play() error = %v, want ErrSuperseded", err)
		}
		snap = mustSnapshot(t, s)
		if snap.State != StateIdle || snap.Pending != NoPosition || snap.Queue.Len() != 0 {
			t.Errorf("after StopIf: state %v, pending %d, queue %d", snap.State, snap.Pending, snap.Queue.Len())
		}
		if mock.Live() != 0 {
			t.Errorf("Live() = %d, want 0", mock.Live())
		}
	})
}

func TestSession_Close(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		mock := player.NewMock()
		s, presenter := newTestSession(t, mock, Policy{})
		ctx := context.Background()
		sub := s.Subscribe()

		if err := s.Play(ctx, testQueue("a"), 0); err != nil {
			t.Fatal(err)
		}
		if err := s.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
		if err := s.Close(); err != nil {
			t.Fatalf("second Close() error = %v", err)
		}

		<-sub.Done
		if mock.Live() != 0 {
			t.Errorf("Live = %d, want 0", mock.Live())
		}
		if presenter.Current() != nil {
			t.Error("notification should be dismissed on close")
		}
		if err := s.Play(ctx, testQueue("a"), 0); !errors.Is(err, ErrClosed) {
			t.Errorf("Play() after Close error = %v, want ErrClosed", err)
		}
		if _, err := s.Snapshot(ctx); !errors.Is(err, ErrClosed) {
			t.Errorf("Snapshot() after Close error = %v, want ErrClosed", err)
		}
		<-s.Subscribe().Done
	})
}

func TestSession_CanceledContext(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		mock := player.NewMock()
		s, _ := newTestSession(t, mock, Policy{})
		defer s.Close()
		q := testQueue("a")

		release := mock.Hold(q.Tracks[0].SourceURI)
		defer release()

		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		go func() { errCh <- s.Play(ctx, q, 0) }()
		synctest.Wait()
		cancel()

		if err := <-errCh; !errors.Is(err, context.Canceled) {
			t.Errorf("Play() error = %v, want context.Canceled", err)
		}
		// The load keeps going without the caller.
		release()
		synctest.Wait()
		if snap := mustSnapshot(t, s); snap.State != StatePlaying {
			t.Errorf("State = %v, want Playing", snap.State)
		}
	})
}

func TestSession_RandomOperations_KeepInvariants(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		mock := player.NewMock()
		s, presenter := newTestSession(t, mock, Policy{ManualAutoAdvance: true})
		defer s.Close()
		ctx := context.Background()
		q := testQueue("a", "b", "c", "d")
		rng := rand.New(rand.NewPCG(1, 2))

		for i := range 500 {
			switch rng.IntN(7) {
			case 0:
				_ = s.Play(ctx, q, rng.IntN(q.Len()))
			case 1:
				_ = s.Next(ctx)
			case 2:
				_ = s.Previous(ctx)
			case 3:
				_ = s.TogglePlayPause(ctx)
			case 4:
				_ = s.Stop(ctx)
			case 5:
				// Completion of the current or a stale handle.
				if hs := mock.Handles(); len(hs) > 0 {
					hs[rng.IntN(len(hs))].SimulateCompletion()
				}
				synctest.Wait()
			case 6:
				if h := mock.Last(); h != nil {
					h.SimulateCompletion()
				}
				synctest.Wait()
			}

			checkInvariants(t, s, mock)
			snap := mustSnapshot(t, s)
			np := presenter.Current()
			if snap.State.IsActive() {
				if np == nil || np.Track.ID != snap.Track().ID || np.Playing != snap.Playing {
					t.Fatalf("step %d: presenter %+v does not match %+v", i, np, snap)
				}
			} else if np != nil {
				t.Fatalf("step %d: notification outstanding while %v", i, snap.State)
			}
		}
	})
}
