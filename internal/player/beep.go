package player

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
	"go.uber.org/zap"
)

// DefaultSampleRate is the speaker rate every stream is resampled to.
const DefaultSampleRate = beep.SampleRate(44100)

const resampleQuality = 4

// BeepOpener opens local files and plays them through the beep speaker.
type BeepOpener struct {
	mu          sync.Mutex
	sampleRate  beep.SampleRate
	initialized bool
	mode        AudioMode
	log         *zap.Logger
}

// NewBeepOpener creates an opener. The speaker is initialized on first use.
func NewBeepOpener(log *zap.Logger) *BeepOpener {
	if log == nil {
		log = zap.NewNop()
	}
	return &BeepOpener{sampleRate: DefaultSampleRate, log: log}
}

// SetAudioMode records the mode and makes sure the speaker is running.
// Desktop output has no silent switch or focus ducking, so the flags are
// informational.
func (o *BeepOpener) SetAudioMode(mode AudioMode) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if mode != o.mode {
		o.log.Debug("audio mode changed",
			zap.Bool("background", mode.Background),
			zap.Bool("silent_mode", mode.PlayInSilentMode),
			zap.Bool("duck_others", mode.DuckOthers))
	}
	o.mode = mode
	return o.initSpeakerLocked()
}

func (o *BeepOpener) initSpeakerLocked() error {
	if o.initialized {
		return nil
	}
	if err := speaker.Init(o.sampleRate, o.sampleRate.N(time.Second/10)); err != nil {
		return fmt.Errorf("init speaker: %w", err)
	}
	o.initialized = true
	return nil
}

// Open decodes the file at uri (a path or file:// URI). The handle is paused.
func (o *BeepOpener) Open(ctx context.Context, uri string) (Handle, error) {
	path := strings.TrimPrefix(uri, "file://")
	ext := strings.ToLower(filepath.Ext(path))

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	streamer, format, err := decode(f, ext)
	if err != nil {
		f.Close()
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		streamer.Close()
		f.Close()
		return nil, err
	}

	o.mu.Lock()
	err = o.initSpeakerLocked()
	rate := o.sampleRate
	o.mu.Unlock()
	if err != nil {
		streamer.Close()
		f.Close()
		return nil, err
	}

	var s beep.Streamer = streamer
	if format.SampleRate != rate {
		s = beep.Resample(resampleQuality, format.SampleRate, rate, streamer)
	}

	return &beepHandle{
		file:     f,
		streamer: streamer,
		ctrl:     &beep.Ctrl{Streamer: s, Paused: true},
	}, nil
}

func decode(f *os.File, ext string) (beep.StreamSeekCloser, beep.Format, error) {
	switch ext {
	case ".mp3":
		return mp3.Decode(f)
	case ".flac":
		return flac.Decode(f)
	case ".ogg":
		return vorbis.Decode(f)
	case ".wav":
		return wav.Decode(f)
	}
	return nil, beep.Format{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
}

// beepHandle wraps one decoded stream.
// The completion path runs on the speaker goroutine with the speaker locked,
// so it only touches atomics.
type beepHandle struct {
	mu       sync.Mutex
	file     *os.File
	streamer beep.StreamSeekCloser
	ctrl     *beep.Ctrl
	started  bool
	released bool

	stopped      atomic.Bool
	onCompletion atomic.Pointer[func()]
}

func (h *beepHandle) Play() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		return ErrReleased
	}
	if h.stopped.Load() {
		return errors.New("audio handle stopped")
	}

	speaker.Lock()
	h.ctrl.Paused = false
	speaker.Unlock()

	if !h.started {
		h.started = true
		speaker.Play(beep.Seq(h.ctrl, beep.Callback(h.finished)))
	}
	return nil
}

func (h *beepHandle) Pause() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		return ErrReleased
	}
	speaker.Lock()
	h.ctrl.Paused = true
	speaker.Unlock()
	return nil
}

// Stop removes the stream from the speaker. Only one handle is active at a
// time, so clearing the speaker is enough.
func (h *beepHandle) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		return ErrReleased
	}
	if h.stopped.Swap(true) {
		return nil
	}
	if h.started {
		speaker.Clear()
	}
	return nil
}

func (h *beepHandle) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		return nil
	}
	h.released = true
	h.stopped.Store(true)

	err := h.streamer.Close()
	// Some decoders close the file themselves
	if cerr := h.file.Close(); cerr != nil && !errors.Is(cerr, os.ErrClosed) {
		err = errors.Join(err, cerr)
	}
	return err
}

func (h *beepHandle) OnCompletion(fn func()) {
	h.onCompletion.Store(&fn)
}

func (h *beepHandle) finished() {
	if h.stopped.Load() {
		return
	}
	if fn := h.onCompletion.Load(); fn != nil && *fn != nil {
		(*fn)()
	}
}
