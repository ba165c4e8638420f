//go:build !vosk

package transcribe

import (
	"errors"
	"os"
)

// VoskLoader is the stub used when the binary is built without the vosk tag.
// It still reports a missing model directory first.
type VoskLoader struct {
	ModelPath string
}

// NewVoskLoader returns a loader for the model directory at path.
func NewVoskLoader(path string) *VoskLoader {
	return &VoskLoader{ModelPath: path}
}

// Load always fails; rebuild with -tags vosk and libvosk installed.
func (l *VoskLoader) Load(sampleRate float64) (Recognizer, error) {
	if _, err := os.Stat(l.ModelPath); err != nil {
		return nil, &ModelLoadError{ModelPath: l.ModelPath, Err: err}
	}
	return nil, &ModelLoadError{ModelPath: l.ModelPath, Err: errors.New("built without vosk support (rebuild with -tags vosk)")}
}
