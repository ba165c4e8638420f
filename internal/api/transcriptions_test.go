package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/snarg/scribe/internal/database"
	"github.com/snarg/scribe/internal/ingest"
	"github.com/snarg/scribe/internal/storage"
	"github.com/snarg/scribe/internal/transcribe"
)

// mockPipeline implements Pipeline for testing.
type mockPipeline struct {
	lastJob   ingest.Job
	lastBytes []byte
	result    *ingest.Result
	err       error
}

func (m *mockPipeline) Process(ctx context.Context, job ingest.Job) (*ingest.Result, error) {
	m.lastJob = job
	m.lastBytes, _ = os.ReadFile(job.Path)
	if m.err != nil {
		return nil, m.err
	}
	if m.result != nil {
		return m.result, nil
	}
	return &ingest.Result{
		ID:            uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8"),
		Source:        job.Name,
		Backend:       job.Backend.String(),
		Text:          "olá mundo",
		CostUSD:       0.006,
		TotalCostUSD:  0.006,
		TranscriptKey: ingest.TranscriptKey(job.Name),
	}, nil
}

func (m *mockPipeline) InFlight() int { return 0 }

func (m *mockPipeline) TotalCostUSD() float64 { return 0.006 }

func (m *mockPipeline) Stats() (completed, failed int64) { return 1, 0 }

type mockLedger struct {
	rows  []database.TranscriptionRow
	limit int
	err   error
}

func (m *mockLedger) ListTranscriptions(ctx context.Context, limit int) ([]database.TranscriptionRow, error) {
	m.limit = limit
	return m.rows, m.err
}

func newTestTranscriptionsHandler(t *testing.T, mock *mockPipeline, ledger TranscriptionLister) (*TranscriptionsHandler, *storage.LocalStore) {
	t.Helper()
	store := storage.NewLocalStore(t.TempDir())
	return NewTranscriptionsHandler(mock, store, ledger, t.TempDir(), transcribe.CloudAPI, zerolog.Nop()), store
}

func buildMultipartForm(t *testing.T, fields map[string]string, fileField string, fileData []byte, fileName string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for k, v := range fields {
		writer.WriteField(k, v)
	}
	if fileData != nil && fileField != "" {
		part, err := writer.CreateFormFile(fileField, fileName)
		if err != nil {
			t.Fatal(err)
		}
		part.Write(fileData)
	}
	writer.Close()
	return body, writer.FormDataContentType()
}

func postUpload(h *TranscriptionsHandler, body io.Reader, ct string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/api/v1/transcriptions", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.Create(rec, req)
	return rec
}

func TestCreate_Success(t *testing.T) {
	mock := &mockPipeline{}
	h, _ := newTestTranscriptionsHandler(t, mock, nil)

	body, ct := buildMultipartForm(t, nil, "file", []byte("ID3-fake-mp3"), "meeting.mp3")
	rec := postUpload(h, body, ct)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d; body = %s", rec.Code, http.StatusCreated, rec.Body.String())
	}
	if mock.lastJob.Name != "meeting.mp3" {
		t.Errorf("Name = %q, want meeting.mp3", mock.lastJob.Name)
	}
	if mock.lastJob.Backend != transcribe.CloudAPI {
		t.Errorf("Backend = %s, want openai", mock.lastJob.Backend)
	}
	if filepath.Ext(mock.lastJob.Path) != ".mp3" {
		t.Errorf("temp path %q lost the .mp3 extension", mock.lastJob.Path)
	}
	if string(mock.lastBytes) != "ID3-fake-mp3" {
		t.Errorf("upload bytes = %q", mock.lastBytes)
	}
	if _, err := os.Stat(mock.lastJob.Path); !os.IsNotExist(err) {
		t.Errorf("temp upload not removed: %v", err)
	}

	var result ingest.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if result.Text != "olá mundo" || result.TranscriptKey != "meeting_transcription.txt" {
		t.Errorf("result = %+v", result)
	}
}

func TestCreate_BackendField(t *testing.T) {
	mock := &mockPipeline{}
	h, _ := newTestTranscriptionsHandler(t, mock, nil)

	body, ct := buildMultipartForm(t, map[string]string{"backend": "vosk"}, "file", []byte("RIFF"), "call.wav")
	rec := postUpload(h, body, ct)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d; body = %s", rec.Code, rec.Body.String())
	}
	if mock.lastJob.Backend != transcribe.OfflineAcousticModel {
		t.Errorf("Backend = %s, want vosk", mock.lastJob.Backend)
	}
}

func TestCreate_InvalidBackend(t *testing.T) {
	mock := &mockPipeline{}
	h, _ := newTestTranscriptionsHandler(t, mock, nil)

	body, ct := buildMultipartForm(t, map[string]string{"backend": "whisper.cpp"}, "file", []byte("RIFF"), "call.wav")
	rec := postUpload(h, body, ct)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if mock.lastJob.Path != "" {
		t.Error("pipeline should not be called")
	}
}

func TestCreate_MissingFile(t *testing.T) {
	h, _ := newTestTranscriptionsHandler(t, &mockPipeline{}, nil)
	body, ct := buildMultipartForm(t, map[string]string{"backend": "google"}, "", nil, "")
	rec := postUpload(h, body, ct)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestCreate_NotMultipart(t *testing.T) {
	h, _ := newTestTranscriptionsHandler(t, &mockPipeline{}, nil)
	rec := postUpload(h, bytes.NewBufferString(`{"file":"x"}`), "application/json")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestCreate_DocumentRouted(t *testing.T) {
	mock := &mockPipeline{}
	h, _ := newTestTranscriptionsHandler(t, mock, nil)

	body, ct := buildMultipartForm(t, nil, "file", []byte("a,b\n1,2\n"), "sheet.csv")
	rec := postUpload(h, body, ct)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	var resp ErrorResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Code != ErrDocumentNotAudio {
		t.Errorf("code = %q, want %q", resp.Code, ErrDocumentNotAudio)
	}
	if mock.lastJob.Path != "" {
		t.Error("pipeline should not be called for documents")
	}
}

func TestCreate_PipelineErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"unsupported format", fmt.Errorf("%w: x.flac", transcribe.ErrInvalidInputFormat), http.StatusBadRequest},
		{"conversion", &transcribe.ConversionError{Path: "x.mp3", Err: errors.New("exit 1")}, http.StatusUnprocessableEntity},
		{"service", &transcribe.ServiceError{Backend: transcribe.CloudAPI, Chunk: 1, Err: errors.New("429")}, http.StatusBadGateway},
		{"model", &transcribe.ModelLoadError{ModelPath: "m", Err: errors.New("missing")}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestTranscriptionsHandler(t, &mockPipeline{err: tt.err}, nil)
			body, ct := buildMultipartForm(t, nil, "file", []byte("data"), "x.mp3")
			rec := postUpload(h, body, ct)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d; body = %s", rec.Code, tt.status, rec.Body.String())
			}
		})
	}
}

func TestList(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ledger := &mockLedger{rows: []database.TranscriptionRow{
		{ID: uuid.New(), Source: "a.mp3", Backend: "openai", TranscriptKey: "a_transcription.txt", Chars: 10, CostUSD: 0.012, CreatedAt: created},
		{ID: uuid.New(), Source: "b.wav", Backend: "google", Language: "pt-BR", Chars: 4, CreatedAt: created},
	}}
	h, _ := newTestTranscriptionsHandler(t, &mockPipeline{}, ledger)

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest("GET", "/api/v1/transcriptions?limit=10", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rec.Code, rec.Body.String())
	}
	if ledger.limit != 10 {
		t.Errorf("limit = %d, want 10", ledger.limit)
	}
	var resp TranscriptionList
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Count != 2 || resp.Transcriptions[1].Language != "pt-BR" {
		t.Errorf("resp = %+v", resp)
	}
	if resp.CostUSD != 0.012 {
		t.Errorf("CostUSD = %v, want 0.012", resp.CostUSD)
	}
}

func TestList_Errors(t *testing.T) {
	t.Run("no_ledger", func(t *testing.T) {
		h, _ := newTestTranscriptionsHandler(t, &mockPipeline{}, nil)
		rec := httptest.NewRecorder()
		h.List(rec, httptest.NewRequest("GET", "/api/v1/transcriptions", nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})
	t.Run("bad_limit", func(t *testing.T) {
		h, _ := newTestTranscriptionsHandler(t, &mockPipeline{}, &mockLedger{})
		rec := httptest.NewRecorder()
		h.List(rec, httptest.NewRequest("GET", "/api/v1/transcriptions?limit=0", nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
	t.Run("ledger_error", func(t *testing.T) {
		h, _ := newTestTranscriptionsHandler(t, &mockPipeline{}, &mockLedger{err: errors.New("conn refused")})
		rec := httptest.NewRecorder()
		h.List(rec, httptest.NewRequest("GET", "/api/v1/transcriptions", nil))
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", rec.Code)
		}
	})
}

func TestDownload(t *testing.T) {
	h, store := newTestTranscriptionsHandler(t, &mockPipeline{}, nil)
	key := "2026-03-01/abc_meeting_transcription.txt"
	if err := store.Save(context.Background(), key, []byte("bom dia"), "text/plain"); err != nil {
		t.Fatal(err)
	}

	r := chi.NewRouter()
	h.Routes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/transcripts/"+key, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != "bom dia" {
		t.Errorf("body = %q", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/transcripts/missing.txt", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing: status = %d, want 404", rec.Code)
	}
}

func TestValidKey(t *testing.T) {
	tests := map[string]bool{
		"a_transcription.txt":    true,
		"2026-03-01/id_a.txt":    true,
		"":                       false,
		"/etc/passwd":            false,
		"../secret.txt":          false,
		"inbox/../../secret.txt": false,
		"inbox//a.txt":           false,
		`inbox\a.txt`:            false,
	}
	for key, want := range tests {
		if got := validKey(key); got != want {
			t.Errorf("validKey(%q) = %v, want %v", key, got, want)
		}
	}
}
