package ingest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/snarg/scribe/internal/database"
	"github.com/snarg/scribe/internal/metrics"
	"github.com/snarg/scribe/internal/storage"
	"github.com/snarg/scribe/internal/transcribe"
)

// ErrChatUnsupported is returned for documents that belong to the chat
// subsystem rather than transcription.
var ErrChatUnsupported = errors.New("documents are handled by the chat subsystem, not transcription")

// Kind is the subsystem a file is routed to.
type Kind int

const (
	KindUnknown Kind = iota
	KindAudio
	KindDocument
)

// Route classifies path by its (case-sensitive) extension.
func Route(path string) Kind {
	switch filepath.Ext(path) {
	case ".mp3", ".wav":
		return KindAudio
	case ".txt", ".csv", ".xlsx":
		return KindDocument
	default:
		return KindUnknown
	}
}

// TranscriptKey is the storage key for the transcript of name:
// "meeting.mp3" → "meeting_transcription.txt".
func TranscriptKey(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base)) + "_transcription.txt"
}

// DatedKey prefixes TranscriptKey with the UTC date and the transcription id
// so uploads with the same file name never collide.
func DatedKey(id uuid.UUID, name string, now time.Time) string {
	return now.UTC().Format("2006-01-02") + "/" + id.String() + "_" + TranscriptKey(name)
}

// EngineFactory builds a transcription engine for one file.
type EngineFactory func(path string, backend transcribe.Backend) (*transcribe.Engine, error)

// Ledger records finished transcriptions.
type Ledger interface {
	InsertTranscription(ctx context.Context, row *database.TranscriptionRow) error
}

// EventPublisher announces finished transcriptions.
type EventPublisher interface {
	Publish(v any) error
}

// Job is one transcription request.
type Job struct {
	Path    string             // audio file on disk
	Name    string             // original file name; defaults to base of Path
	Backend transcribe.Backend // recognition backend
	Key     string             // transcript key; KeyFunc picks one when empty
}

// Result is the outcome of a processed job.
type Result struct {
	ID            uuid.UUID `json:"id"`
	Source        string    `json:"source"`
	Backend       string    `json:"backend"`
	Text          string    `json:"text"`
	CostUSD       float64   `json:"cost_usd"`
	TotalCostUSD  float64   `json:"total_cost_usd"`
	TranscriptKey string    `json:"transcript_key"`
	DurationMs    int       `json:"duration_ms"`
}

// Event is the payload published for each finished transcription.
type Event struct {
	ID         uuid.UUID `json:"id"`
	Source     string    `json:"source"`
	Backend    string    `json:"backend"`
	Key        string    `json:"transcript_key"`
	CostUSD    float64   `json:"cost_usd"`
	Chars      int       `json:"chars"`
	DurationMs int       `json:"duration_ms"`
}

type PipelineOptions struct {
	NewEngine      EngineFactory
	Store          storage.TranscriptStore
	Ledger         Ledger         // optional
	Events         EventPublisher // optional
	SpeechLanguage string         // recorded in the ledger for the google backend
	KeyFunc        func(id uuid.UUID, name string) string
	Log            zerolog.Logger
}

// Pipeline runs jobs through a transcription engine and persists the
// transcript. It is safe for concurrent use; each job gets its own engine.
type Pipeline struct {
	opts PipelineOptions
	log  zerolog.Logger

	mu        sync.Mutex
	totalCost float64

	inFlight  atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

// NewPipeline creates a pipeline. KeyFunc defaults to TranscriptKey.
func NewPipeline(opts PipelineOptions) *Pipeline {
	if opts.KeyFunc == nil {
		opts.KeyFunc = func(_ uuid.UUID, name string) string { return TranscriptKey(name) }
	}
	return &Pipeline{
		opts: opts,
		log:  opts.Log.With().Str("component", "pipeline").Logger(),
	}
}

// Process transcribes one job, stores the transcript and records it.
func (p *Pipeline) Process(ctx context.Context, job Job) (*Result, error) {
	name := job.Name
	if name == "" {
		name = filepath.Base(job.Path)
	}
	if Route(name) == KindDocument {
		return nil, fmt.Errorf("%w: %s", ErrChatUnsupported, name)
	}

	p.inFlight.Add(1)
	defer p.inFlight.Add(-1)

	backend := job.Backend.String()
	start := time.Now()
	res, err := p.process(ctx, job, name)
	metrics.TranscriptionDuration.WithLabelValues(backend).Observe(time.Since(start).Seconds())
	if err != nil {
		p.failed.Add(1)
		metrics.TranscriptionsTotal.WithLabelValues(backend, "error").Inc()
		return nil, err
	}
	p.completed.Add(1)
	metrics.TranscriptionsTotal.WithLabelValues(backend, "ok").Inc()
	return res, nil
}

func (p *Pipeline) process(ctx context.Context, job Job, name string) (*Result, error) {
	start := time.Now()
	engine, err := p.opts.NewEngine(job.Path, job.Backend)
	if err != nil {
		return nil, err
	}

	text, err := engine.Transcribe(ctx)
	if err != nil {
		return nil, err
	}

	id := uuid.New()
	key := job.Key
	if key == "" {
		key = p.opts.KeyFunc(id, name)
	}
	if err := p.opts.Store.Save(ctx, key, []byte(text), "text/plain; charset=utf-8"); err != nil {
		return nil, fmt.Errorf("save transcript: %w", err)
	}

	cost := engine.LastCostUSD()
	p.mu.Lock()
	p.totalCost += cost
	total := p.totalCost
	p.mu.Unlock()

	chars := utf8.RuneCountInString(text)
	durationMs := int(time.Since(start).Milliseconds())
	metrics.TranscriptChars.Observe(float64(chars))

	if p.opts.Ledger != nil {
		row := &database.TranscriptionRow{
			ID:            id,
			Source:        name,
			Backend:       job.Backend.String(),
			TranscriptKey: key,
			Chars:         chars,
			CostUSD:       cost,
			DurationMs:    durationMs,
		}
		if job.Backend == transcribe.GenericSpeechService {
			row.Language = p.opts.SpeechLanguage
		}
		if err := p.opts.Ledger.InsertTranscription(ctx, row); err != nil {
			p.log.Warn().Err(err).Str("id", id.String()).Msg("ledger insert failed")
		}
	}

	if p.opts.Events != nil {
		err := p.opts.Events.Publish(Event{
			ID:         id,
			Source:     name,
			Backend:    job.Backend.String(),
			Key:        key,
			CostUSD:    cost,
			Chars:      chars,
			DurationMs: durationMs,
		})
		if err != nil {
			p.log.Warn().Err(err).Str("id", id.String()).Msg("event publish failed")
		}
	}

	p.log.Info().
		Str("id", id.String()).
		Str("source", name).
		Str("backend", job.Backend.String()).
		Str("key", key).
		Int("chars", chars).
		Float64("cost_usd", cost).
		Int("duration_ms", durationMs).
		Msg("transcription stored")

	return &Result{
		ID:            id,
		Source:        name,
		Backend:       job.Backend.String(),
		Text:          text,
		CostUSD:       cost,
		TotalCostUSD:  total,
		TranscriptKey: key,
		DurationMs:    durationMs,
	}, nil
}

// Store returns the transcript store.
func (p *Pipeline) Store() storage.TranscriptStore { return p.opts.Store }

// InFlight returns the number of jobs currently transcribing.
func (p *Pipeline) InFlight() int { return int(p.inFlight.Load()) }

// TotalCostUSD returns the cloud cost accrued by this pipeline.
func (p *Pipeline) TotalCostUSD() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totalCost
}

// Stats returns completed and failed job counts.
func (p *Pipeline) Stats() (completed, failed int64) {
	return p.completed.Load(), p.failed.Load()
}
