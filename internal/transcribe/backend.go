package transcribe

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Backend selects the recognition strategy for an Engine. The set is closed;
// values outside it are rejected by New.
type Backend int

const (
	CloudAPI Backend = iota
	GenericSpeechService
	OfflineAcousticModel
)

// String returns the selector name used in config, logs and metrics.
func (b Backend) String() string {
	switch b {
	case CloudAPI:
		return "openai"
	case GenericSpeechService:
		return "google"
	case OfflineAcousticModel:
		return "vosk"
	default:
		return fmt.Sprintf("backend(%d)", int(b))
	}
}

// Valid reports whether b is one of the recognized backends.
func (b Backend) Valid() bool {
	return b >= CloudAPI && b <= OfflineAcousticModel
}

// ParseBackend maps a selector string to a Backend. An empty selector
// means CloudAPI.
func ParseBackend(s string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "openai", "cloud":
		return CloudAPI, nil
	case "google", "speech":
		return GenericSpeechService, nil
	case "vosk", "offline":
		return OfflineAcousticModel, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidBackend, s)
	}
}

// CloudTranscriber submits one encoded WAV chunk to a metered cloud API.
// name carries the file name (with extension) the API uses to sniff the format.
type CloudTranscriber interface {
	TranscribeChunk(ctx context.Context, name string, wav io.Reader) (string, error)
}

// SpeechRecognizer transcribes a whole waveform in one request.
type SpeechRecognizer interface {
	Recognize(ctx context.Context, pcm PCM) (string, error)
}

// Recognizer is a streaming acoustic-model recognizer. AcceptWaveform reports
// true when an utterance boundary was reached and Result is ready.
type Recognizer interface {
	AcceptWaveform(data []byte) (bool, error)
	Result() string
	FinalResult() string
	Close()
}

// ModelLoader acquires a recognizer for the offline backend. Implementations
// load the acoustic model from disk on every call.
type ModelLoader interface {
	Load(sampleRate float64) (Recognizer, error)
}
