package transcribe

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/orcaman/writerseeker"
)

// PCM is a fully decoded waveform with interleaved integer samples.
type PCM struct {
	SampleRate int
	Channels   int
	BitDepth   int
	Data       []int
}

// Frames returns the number of sample frames (samples per channel).
func (p PCM) Frames() int {
	if p.Channels == 0 {
		return 0
	}
	return len(p.Data) / p.Channels
}

// Duration returns the playback length of the waveform.
func (p PCM) Duration() time.Duration {
	if p.SampleRate == 0 {
		return 0
	}
	return time.Duration(float64(p.Frames()) / float64(p.SampleRate) * float64(time.Second))
}

// Seconds returns the playback length in seconds without rounding to
// nanoseconds, for cost computation.
func (p PCM) Seconds() float64 {
	if p.SampleRate == 0 {
		return 0
	}
	return float64(p.Frames()) / float64(p.SampleRate)
}

// ReadWav decodes a whole RIFF WAV file into memory.
func ReadWav(path string) (PCM, error) {
	f, err := os.Open(path)
	if err != nil {
		return PCM{}, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return PCM{}, fmt.Errorf("%s: not a valid wav file", path)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return PCM{}, fmt.Errorf("decode wav: %w", err)
	}
	return PCM{
		SampleRate: int(d.SampleRate),
		Channels:   int(d.NumChans),
		BitDepth:   int(d.BitDepth),
		Data:       buf.Data,
	}, nil
}

// Window is a half-open [Start, End) range of sample frames.
type Window struct {
	Index int
	Start int
	End   int
}

// SplitFrames partitions total frames into consecutive windows of size frames.
// The last window holds the remainder and is never dropped.
func SplitFrames(total, size int) []Window {
	if total <= 0 || size <= 0 {
		return nil
	}
	n := (total + size - 1) / size
	windows := make([]Window, 0, n)
	for i := 0; i < n; i++ {
		start := i * size
		end := start + size
		if end > total {
			end = total
		}
		windows = append(windows, Window{Index: i, Start: start, End: end})
	}
	return windows
}

// framesFor converts a duration to a frame count at rate, at least one frame.
func framesFor(d time.Duration, rate int) int {
	n := int(d.Seconds() * float64(rate))
	if n < 1 {
		n = 1
	}
	return n
}

// EncodeWindow encodes the frames of w as an in-memory WAV container.
func (p PCM) EncodeWindow(w Window) (io.Reader, error) {
	ws := &writerseeker.WriterSeeker{}
	enc := wav.NewEncoder(ws, p.SampleRate, p.BitDepth, p.Channels, 1)

	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: p.Channels, SampleRate: p.SampleRate},
		Data:           p.Data[w.Start*p.Channels : w.End*p.Channels],
		SourceBitDepth: p.BitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("encoder write buffer: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoder close: %w", err)
	}
	return ws.Reader(), nil
}

// MonoPCM16 downmixes to one channel and returns little-endian signed 16-bit
// samples, the body format speech services accept as audio/l16.
func (p PCM) MonoPCM16() []byte {
	frames := p.Frames()
	out := make([]byte, frames*2)
	shift := p.BitDepth - 16
	for i := 0; i < frames; i++ {
		sum := 0
		for c := 0; c < p.Channels; c++ {
			sum += p.Data[i*p.Channels+c]
		}
		v := sum / p.Channels
		switch {
		case shift > 0:
			v >>= shift
		case shift < 0:
			v <<= -shift
		}
		if p.BitDepth == 8 {
			// 8-bit WAV is unsigned
			v -= 128 << 8
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}
