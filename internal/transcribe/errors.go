package transcribe

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidBackend       = errors.New("invalid backend")
	ErrInvalidInputFormat   = errors.New("invalid input format")
	ErrConversion           = errors.New("audio conversion failed")
	ErrTranscriptionService = errors.New("transcription service error")
	ErrModelLoad            = errors.New("model load failed")

	// ErrSpeechUnrecognized is returned by speech services that could not
	// recognize any speech in the submitted audio.
	ErrSpeechUnrecognized = errors.New("speech not recognized")
)

// NoChunk marks a ServiceError that does not belong to a chunked dispatch.
const NoChunk = -1

// ConversionError reports a failed container conversion.
type ConversionError struct {
	Path   string
	Stderr string
	Err    error
}

func (e *ConversionError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("convert %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("convert %s: %v: %s", e.Path, e.Err, e.Stderr)
}

func (e *ConversionError) Unwrap() error        { return e.Err }
func (e *ConversionError) Is(target error) bool { return target == ErrConversion }

// ServiceError reports a failed recognition call. Chunk is the zero-based
// window index for cloud dispatch, NoChunk otherwise.
type ServiceError struct {
	Backend Backend
	Chunk   int
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Chunk == NoChunk {
		return fmt.Sprintf("%s: %v", e.Backend, e.Err)
	}
	return fmt.Sprintf("%s: chunk %d: %v", e.Backend, e.Chunk, e.Err)
}

func (e *ServiceError) Unwrap() error        { return e.Err }
func (e *ServiceError) Is(target error) bool { return target == ErrTranscriptionService }

// ModelLoadError reports a missing or unreadable offline model.
type ModelLoadError struct {
	ModelPath string
	Err       error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("load model %s: %v", e.ModelPath, e.Err)
}

func (e *ModelLoadError) Unwrap() error        { return e.Err }
func (e *ModelLoadError) Is(target error) bool { return target == ErrModelLoad }
