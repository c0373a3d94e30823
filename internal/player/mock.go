package player

import (
	"context"
	"sync"
)

// Mock is a test double for Opener. It tracks every handle it hands out so
// tests can check that handles are released.
type Mock struct {
	mu      sync.Mutex
	openErr map[string]error
	holds   map[string]chan struct{}
	modes   []AudioMode
	opens   []string
	handles []*MockHandle
	live    int
	maxLive int
}

// NewMock creates a new mock opener for testing.
func NewMock() *Mock {
	return &Mock{
		openErr: make(map[string]error),
		holds:   make(map[string]chan struct{}),
	}
}

func (m *Mock) SetAudioMode(mode AudioMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modes = append(m.modes, mode)
	return nil
}

func (m *Mock) Open(ctx context.Context, uri string) (Handle, error) {
	m.mu.Lock()
	m.opens = append(m.opens, uri)
	hold := m.holds[uri]
	err := m.openErr[uri]
	m.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	h := &MockHandle{URI: uri, mock: m}
	m.handles = append(m.handles, h)
	m.live++
	m.maxLive = max(m.maxLive, m.live)
	return h, nil
}

// Test helpers

// SetOpenError makes Open fail for uri.
func (m *Mock) SetOpenError(uri string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openErr[uri] = err
}

// Hold blocks Open for uri until the returned function is called.
func (m *Mock) Hold(uri string) (release func()) {
	ch := make(chan struct{})
	m.mu.Lock()
	m.holds[uri] = ch
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.holds, uri)
			m.mu.Unlock()
			close(ch)
		})
	}
}

// Opens returns the URIs passed to Open, in order.
func (m *Mock) Opens() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.opens...)
}

// Modes returns every audio mode that was set.
func (m *Mock) Modes() []AudioMode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]AudioMode(nil), m.modes...)
}

// Handles returns every handle successfully opened, in order.
func (m *Mock) Handles() []*MockHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*MockHandle(nil), m.handles...)
}

// Last returns the most recently opened handle, or nil.
func (m *Mock) Last() *MockHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.handles) == 0 {
		return nil
	}
	return m.handles[len(m.handles)-1]
}

// Live returns the number of opened, unreleased handles.
func (m *Mock) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live
}

// MaxLive returns the highest Live value ever observed.
func (m *Mock) MaxLive() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxLive
}

// MockHandle is the handle returned by Mock.Open.
type MockHandle struct {
	URI string

	mock       *Mock
	mu         sync.Mutex
	playing    bool
	stopped    bool
	released   bool
	playCalls  int
	pauseCalls int
	stopErr    error
	onComplete func()
}

func (h *MockHandle) Play() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return ErrReleased
	}
	h.playing = true
	h.playCalls++
	return nil
}

func (h *MockHandle) Pause() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return ErrReleased
	}
	h.playing = false
	h.pauseCalls++
	return nil
}

func (h *MockHandle) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return ErrReleased
	}
	h.playing = false
	h.stopped = true
	return h.stopErr
}

func (h *MockHandle) Release() error {
	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		return nil
	}
	h.released = true
	h.playing = false
	h.mu.Unlock()

	h.mock.mu.Lock()
	h.mock.live--
	h.mock.mu.Unlock()
	return nil
}

func (h *MockHandle) OnCompletion(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onComplete = fn
}

// SetStopError makes Stop return err.
func (h *MockHandle) SetStopError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopErr = err
}

// SimulateCompletion fires the completion callback as if the source ended,
// even if the handle was already superseded.
func (h *MockHandle) SimulateCompletion() {
	h.mu.Lock()
	fn := h.onComplete
	h.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (h *MockHandle) IsPlaying() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.playing
}

func (h *MockHandle) IsStopped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped
}

func (h *MockHandle) IsReleased() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.released
}

func (h *MockHandle) PauseCalls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pauseCalls
}

// Verify Mock implements Opener at compile time.
var (
	_ Opener = (*Mock)(nil)
	_ Handle = (*MockHandle)(nil)
)
