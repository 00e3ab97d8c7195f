package sound

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
)

// ErrUnsupportedFormat is returned by Probe for formats it cannot decode.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Probe decodes the header of a wav, mp3 or ogg/vorbis file and returns its
// playback duration. Other formats return ErrUnsupportedFormat.
func Probe(path string) (time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open sound file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var streamer beep.StreamSeekCloser
	var format beep.Format

	switch Ext(path) {
	case "wav":
		streamer, format, err = wav.Decode(f)
	case "ogg":
		streamer, format, err = vorbis.Decode(f)
	case "mp3":
		streamer, format, err = mp3.Decode(f)
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, Ext(path))
	}
	if err != nil {
		return 0, fmt.Errorf("failed to decode sound: %w", err)
	}
	defer func() { _ = streamer.Close() }()

	if format.SampleRate <= 0 {
		return 0, fmt.Errorf("failed to decode sound: invalid sample rate %d", format.SampleRate)
	}
	return format.SampleRate.D(streamer.Len()), nil
}
