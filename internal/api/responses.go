package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/snarg/scribe/internal/ingest"
	"github.com/snarg/scribe/internal/transcribe"
)

// Machine-readable error codes.
const (
	ErrBadRequest         = "bad_request"
	ErrInvalidBody        = "invalid_body"
	ErrInvalidBackend     = "invalid_backend"
	ErrUnsupportedFormat  = "unsupported_format"
	ErrConversionFailed   = "conversion_failed"
	ErrDocumentNotAudio   = "document_not_audio"
	ErrServiceUnavailable = "transcription_service_error"
	ErrModelUnavailable   = "model_load_failed"
	ErrNotFound           = "not_found"
	ErrInternal           = "internal_error"
)

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ErrorResponse is the standard error response body.
type ErrorResponse struct {
	Error  string `json:"error"`
	Code   string `json:"code,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// WriteError writes a JSON error response.
func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, ErrorResponse{Error: msg})
}

// WriteErrorWithCode writes a JSON error response with a machine-readable code.
func WriteErrorWithCode(w http.ResponseWriter, status int, code, msg string) {
	WriteJSON(w, status, ErrorResponse{Error: msg, Code: code})
}

// WriteErrorDetail writes a JSON error response with detail.
func WriteErrorDetail(w http.ResponseWriter, status int, msg, detail string) {
	WriteJSON(w, status, ErrorResponse{Error: msg, Detail: detail})
}

// classifyError maps a transcription failure to an HTTP status and code.
func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, transcribe.ErrInvalidBackend):
		return http.StatusBadRequest, ErrInvalidBackend
	case errors.Is(err, transcribe.ErrInvalidInputFormat):
		return http.StatusBadRequest, ErrUnsupportedFormat
	case errors.Is(err, ingest.ErrChatUnsupported):
		return http.StatusUnprocessableEntity, ErrDocumentNotAudio
	case errors.Is(err, transcribe.ErrConversion):
		return http.StatusUnprocessableEntity, ErrConversionFailed
	case errors.Is(err, transcribe.ErrTranscriptionService):
		return http.StatusBadGateway, ErrServiceUnavailable
	case errors.Is(err, transcribe.ErrModelLoad):
		return http.StatusInternalServerError, ErrModelUnavailable
	default:
		return http.StatusInternalServerError, ErrInternal
	}
}

// QueryInt extracts an integer query parameter. Returns 0, false if missing or invalid.
func QueryInt(r *http.Request, name string) (int, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
