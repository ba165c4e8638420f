package api

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/snarg/scribe/internal/database"
	"github.com/snarg/scribe/internal/ingest"
	"github.com/snarg/scribe/internal/storage"
	"github.com/snarg/scribe/internal/transcribe"
)

// Transcriber runs one uploaded file through transcription.
type Transcriber interface {
	Process(ctx context.Context, job ingest.Job) (*ingest.Result, error)
}

// TranscriptionLister reads recent rows from the cost ledger.
type TranscriptionLister interface {
	ListTranscriptions(ctx context.Context, limit int) ([]database.TranscriptionRow, error)
}

// TranscriptionsHandler serves uploads, the ledger listing and stored
// transcripts.
type TranscriptionsHandler struct {
	pipeline       Transcriber
	store          storage.TranscriptStore
	ledger         TranscriptionLister
	uploadDir      string
	defaultBackend transcribe.Backend
	log            zerolog.Logger
}

// NewTranscriptionsHandler creates the handler. ledger may be nil; uploadDir
// empty means the system temp dir.
func NewTranscriptionsHandler(pipeline Transcriber, store storage.TranscriptStore, ledger TranscriptionLister, uploadDir string, defaultBackend transcribe.Backend, log zerolog.Logger) *TranscriptionsHandler {
	return &TranscriptionsHandler{
		pipeline:       pipeline,
		store:          store,
		ledger:         ledger,
		uploadDir:      uploadDir,
		defaultBackend: defaultBackend,
		log:            log.With().Str("handler", "transcriptions").Logger(),
	}
}

// Routes registers the transcription endpoints.
func (h *TranscriptionsHandler) Routes(r chi.Router) {
	r.Post("/transcriptions", h.Create)
	r.Get("/transcriptions", h.List)
	r.Get("/transcripts/*", h.Download)
}

// Create handles POST /api/v1/transcriptions.
// Multipart form: "file" (required) and "backend" (optional selector).
func (h *TranscriptionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteErrorWithCode(w, http.StatusRequestEntityTooLarge, ErrInvalidBody, "upload exceeds size limit")
			return
		}
		WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidBody, "invalid multipart form: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	backend := h.defaultBackend
	if v := r.FormValue("backend"); v != "" {
		b, err := transcribe.ParseBackend(v)
		if err != nil {
			WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidBackend, err.Error())
			return
		}
		backend = b
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrBadRequest, "missing file field")
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if ingest.Route(name) == ingest.KindDocument {
		WriteErrorWithCode(w, http.StatusUnprocessableEntity, ErrDocumentNotAudio,
			name+" is a document; send it to the chat service")
		return
	}

	// The temp file keeps the original extension; format detection is by suffix.
	tmp, err := os.CreateTemp(h.uploadDir, "upload-*"+filepath.Ext(name))
	if err != nil {
		h.log.Error().Err(err).Msg("create upload file failed")
		WriteErrorWithCode(w, http.StatusInternalServerError, ErrInternal, "failed to store upload")
		return
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	_, err = io.Copy(tmp, file)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		h.log.Error().Err(err).Msg("write upload file failed")
		WriteErrorWithCode(w, http.StatusInternalServerError, ErrInternal, "failed to store upload")
		return
	}

	result, err := h.pipeline.Process(r.Context(), ingest.Job{Path: tmpPath, Name: name, Backend: backend})
	if err != nil {
		status, code := classifyError(err)
		ev := h.log.Warn()
		if status >= http.StatusInternalServerError {
			ev = h.log.Error()
		}
		ev.Err(err).Str("file", name).Str("backend", backend.String()).Msg("transcription failed")
		WriteErrorWithCode(w, status, code, err.Error())
		return
	}

	WriteJSON(w, http.StatusCreated, result)
}

// TranscriptionEntry is one ledger row in API form.
type TranscriptionEntry struct {
	ID            uuid.UUID `json:"id"`
	Source        string    `json:"source"`
	Backend       string    `json:"backend"`
	TranscriptKey string    `json:"transcript_key"`
	Language      string    `json:"language,omitempty"`
	Chars         int       `json:"chars"`
	CostUSD       float64   `json:"cost_usd"`
	DurationMs    int       `json:"duration_ms"`
	CreatedAt     time.Time `json:"created_at"`
}

// TranscriptionList is the response of GET /api/v1/transcriptions.
type TranscriptionList struct {
	Transcriptions []TranscriptionEntry `json:"transcriptions"`
	Count          int                  `json:"count"`
	CostUSD        float64              `json:"cost_usd"`
}

// List handles GET /api/v1/transcriptions?limit=N.
func (h *TranscriptionsHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.ledger == nil {
		WriteErrorWithCode(w, http.StatusNotFound, ErrNotFound, "transcription ledger is not configured")
		return
	}

	limit := 50
	if n, ok := QueryInt(r, "limit"); ok {
		if n < 1 || n > 500 {
			WriteErrorWithCode(w, http.StatusBadRequest, ErrBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	rows, err := h.ledger.ListTranscriptions(r.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("list transcriptions failed")
		WriteErrorWithCode(w, http.StatusInternalServerError, ErrInternal, "failed to list transcriptions")
		return
	}

	resp := TranscriptionList{Transcriptions: make([]TranscriptionEntry, 0, len(rows))}
	for _, row := range rows {
		resp.Transcriptions = append(resp.Transcriptions, TranscriptionEntry(row))
		resp.CostUSD += row.CostUSD
	}
	resp.Count = len(resp.Transcriptions)
	WriteJSON(w, http.StatusOK, resp)
}

// Download handles GET /api/v1/transcripts/{key}.
func (h *TranscriptionsHandler) Download(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	if !validKey(key) {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrBadRequest, "invalid transcript key")
		return
	}

	rc, err := h.store.Open(r.Context(), key)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || !h.store.Exists(r.Context(), key) {
			WriteErrorWithCode(w, http.StatusNotFound, ErrNotFound, "transcript not found")
			return
		}
		h.log.Error().Err(err).Str("key", key).Msg("open transcript failed")
		WriteErrorWithCode(w, http.StatusInternalServerError, ErrInternal, "failed to read transcript")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+path.Base(key)+`"`)
	w.WriteHeader(http.StatusOK)
	io.Copy(w, rc)
}

func validKey(key string) bool {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, `\`) {
		return false
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return false
		}
	}
	return true
}
