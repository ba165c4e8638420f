//go:build vosk

package transcribe

import (
	"fmt"
	"os"

	vosk "github.com/alphacep/vosk-api/go"
)

// VoskLoader loads a Vosk model directory. Implements ModelLoader.
type VoskLoader struct {
	ModelPath string
}

// NewVoskLoader returns a loader for the model directory at path.
func NewVoskLoader(path string) *VoskLoader {
	return &VoskLoader{ModelPath: path}
}

// Load reads the model from disk and creates a recognizer for sampleRate.
func (l *VoskLoader) Load(sampleRate float64) (Recognizer, error) {
	if _, err := os.Stat(l.ModelPath); err != nil {
		return nil, &ModelLoadError{ModelPath: l.ModelPath, Err: err}
	}
	model, err := vosk.NewModel(l.ModelPath)
	if err != nil {
		return nil, &ModelLoadError{ModelPath: l.ModelPath, Err: err}
	}
	rec, err := vosk.NewRecognizer(model, sampleRate)
	if err != nil {
		model.Free()
		return nil, &ModelLoadError{ModelPath: l.ModelPath, Err: err}
	}
	return &voskRecognizer{model: model, rec: rec}, nil
}

type voskRecognizer struct {
	model *vosk.VoskModel
	rec   *vosk.VoskRecognizer
}

func (r *voskRecognizer) AcceptWaveform(data []byte) (bool, error) {
	switch code := r.rec.AcceptWaveform(data); code {
	case 1:
		return true, nil
	case 0:
		return false, nil
	default:
		return false, fmt.Errorf("vosk rejected waveform (code %d)", code)
	}
}

func (r *voskRecognizer) Result() string      { return r.rec.Result() }
func (r *voskRecognizer) FinalResult() string { return r.rec.FinalResult() }

func (r *voskRecognizer) Close() {
	r.rec.Free()
	r.model.Free()
}
