package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
)

// readDuration decodes the stream header of a music file and returns its
// length.
func readDuration(path string) (time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var (
		s      beep.StreamSeekCloser
		format beep.Format
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ExtMP3:
		s, format, err = mp3.Decode(f)
	case ExtFLAC:
		s, format, err = flac.Decode(f)
	case ExtOGG:
		s, format, err = vorbis.Decode(f)
	case ExtWAV:
		s, format, err = wav.Decode(f)
	default:
		return 0, fmt.Errorf("unsupported format: %s", ext)
	}
	if err != nil {
		return 0, err
	}
	defer s.Close()

	if format.SampleRate <= 0 {
		return 0, fmt.Errorf("invalid sample rate %d", format.SampleRate)
	}
	return format.SampleRate.D(s.Len()), nil
}
