package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/snarg/scribe/internal/metrics"
)

const (
	DefaultChunkDuration        = 3 * time.Minute
	DefaultPricePerMinuteUSD    = 0.006
	DefaultRecognizerSampleRate = 16000
	DefaultBlockSize            = 4000

	// UnrecognizedToken is what the offline recognizer emits for audio it
	// could not match to any word.
	UnrecognizedToken = "<UNK>"

	extMp3 = ".mp3"
	extWav = ".wav"
)

// Options configures an Engine. Only the collaborator for the selected
// backend is required.
type Options struct {
	Cloud     CloudTranscriber
	Speech    SpeechRecognizer
	Models    ModelLoader
	Converter Converter // nil = ffmpeg from PATH

	ChunkDuration     time.Duration // 0 = DefaultChunkDuration
	PricePerMinuteUSD float64       // 0 = DefaultPricePerMinuteUSD
	ChunkConcurrency  int           // <= 1 submits chunks one at a time

	RecognizerSampleRate float64 // 0 = DefaultRecognizerSampleRate
	BlockSize            int     // 0 = DefaultBlockSize

	Log zerolog.Logger
}

// Engine transcribes one source file with a fixed backend. It keeps the cost
// of cloud transcriptions across repeated Transcribe calls. An Engine must not
// be used from more than one goroutine at a time.
type Engine struct {
	sourcePath string
	backend    Backend
	opts       Options
	log        zerolog.Logger
	dispatch   func(ctx context.Context, wavPath string) (string, error)

	lastCost  float64
	totalCost float64
}

// New creates an engine for sourcePath. The path is not checked until
// Transcribe runs.
func New(sourcePath string, backend Backend, opts Options) (*Engine, error) {
	if !backend.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidBackend, backend)
	}
	if opts.Converter == nil {
		opts.Converter = NewFFmpegConverter("")
	}
	if opts.ChunkDuration <= 0 {
		opts.ChunkDuration = DefaultChunkDuration
	}
	if opts.PricePerMinuteUSD <= 0 {
		opts.PricePerMinuteUSD = DefaultPricePerMinuteUSD
	}
	if opts.RecognizerSampleRate <= 0 {
		opts.RecognizerSampleRate = DefaultRecognizerSampleRate
	}
	if opts.BlockSize <= 0 {
		opts.BlockSize = DefaultBlockSize
	}

	e := &Engine{
		sourcePath: sourcePath,
		backend:    backend,
		opts:       opts,
		log:        opts.Log.With().Str("backend", backend.String()).Str("source", sourcePath).Logger(),
	}

	switch backend {
	case CloudAPI:
		if opts.Cloud == nil {
			return nil, errors.New("openai backend requires a cloud transcriber")
		}
		e.dispatch = e.transcribeCloud
	case GenericSpeechService:
		if opts.Speech == nil {
			return nil, errors.New("google backend requires a speech recognizer")
		}
		e.dispatch = e.transcribeSpeech
	case OfflineAcousticModel:
		if opts.Models == nil {
			return nil, errors.New("vosk backend requires a model loader")
		}
		e.dispatch = e.transcribeOffline
	}
	return e, nil
}

func (e *Engine) SourcePath() string { return e.sourcePath }
func (e *Engine) Backend() Backend   { return e.backend }

// LastCostUSD is the cost of the most recent successful cloud transcription.
func (e *Engine) LastCostUSD() float64 { return e.lastCost }

// TotalCostUSD is the sum of all cloud transcription costs of this engine.
func (e *Engine) TotalCostUSD() float64 { return e.totalCost }

// Transcribe normalizes the source to a waveform, runs the backend and
// returns the full transcript. Temporary files are removed before it returns.
func (e *Engine) Transcribe(ctx context.Context) (string, error) {
	wavPath, cleanup, err := e.normalize(ctx)
	if err != nil {
		return "", err
	}
	defer cleanup()

	return e.dispatch(ctx, wavPath)
}

// normalize matches the suffix case-sensitively: "x.MP3" is rejected.
func (e *Engine) normalize(ctx context.Context) (string, func(), error) {
	switch {
	case strings.HasSuffix(e.sourcePath, extMp3):
		e.log.Info().Msg("converting to wav")
		start := time.Now()
		wavPath, cleanup, err := e.opts.Converter.ToWav(ctx, e.sourcePath)
		if err != nil {
			return "", nil, err
		}
		e.log.Info().Str("wav", wavPath).Dur("took", time.Since(start)).Msg("converted to wav")
		return wavPath, cleanup, nil
	case strings.HasSuffix(e.sourcePath, extWav):
		return e.sourcePath, func() {}, nil
	default:
		return "", nil, fmt.Errorf("%w: %s", ErrInvalidInputFormat, e.sourcePath)
	}
}

func readWaveform(path string) (PCM, error) {
	pcm, err := ReadWav(path)
	if err != nil {
		return PCM{}, &ConversionError{Path: path, Err: err}
	}
	return pcm, nil
}

func (e *Engine) transcribeCloud(ctx context.Context, wavPath string) (string, error) {
	pcm, err := readWaveform(wavPath)
	if err != nil {
		return "", err
	}

	windows := SplitFrames(pcm.Frames(), framesFor(e.opts.ChunkDuration, pcm.SampleRate))
	parts := make([]string, len(windows))
	e.log.Info().
		Int("chunks", len(windows)).
		Dur("duration", pcm.Duration()).
		Dur("chunk_duration", e.opts.ChunkDuration).
		Msg("cloud transcription started")

	if e.opts.ChunkConcurrency <= 1 {
		for _, w := range windows {
			text, err := e.transcribeWindow(ctx, pcm, w)
			if err != nil {
				return "", err
			}
			parts[w.Index] = text
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.opts.ChunkConcurrency)
		for _, w := range windows {
			if gctx.Err() != nil {
				break
			}
			w := w
			g.Go(func() error {
				text, err := e.transcribeWindow(gctx, pcm, w)
				if err != nil {
					return err
				}
				parts[w.Index] = text
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return "", err
		}
	}

	e.lastCost = pcm.Seconds() / 60 * e.opts.PricePerMinuteUSD
	e.totalCost += e.lastCost
	metrics.TranscriptionCostUSD.Add(e.lastCost)

	e.log.Info().
		Float64("cost_usd", e.lastCost).
		Float64("total_cost_usd", e.totalCost).
		Msg("cloud transcription complete")

	return strings.Join(parts, ""), nil
}

func (e *Engine) transcribeWindow(ctx context.Context, pcm PCM, w Window) (string, error) {
	body, err := pcm.EncodeWindow(w)
	if err != nil {
		return "", fmt.Errorf("encode chunk %d: %w", w.Index, err)
	}
	startMs := int64(w.Start) * 1000 / int64(pcm.SampleRate)
	text, err := e.opts.Cloud.TranscribeChunk(ctx, fmt.Sprintf("chunk%d.wav", startMs), body)
	if err != nil {
		metrics.ChunksTotal.WithLabelValues("error").Inc()
		return "", &ServiceError{Backend: CloudAPI, Chunk: w.Index, Err: err}
	}
	metrics.ChunksTotal.WithLabelValues("ok").Inc()
	e.log.Debug().Int("chunk", w.Index).Str("text", text).Msg("chunk transcribed")
	return text, nil
}

func (e *Engine) transcribeSpeech(ctx context.Context, wavPath string) (string, error) {
	pcm, err := readWaveform(wavPath)
	if err != nil {
		return "", err
	}
	if pcm.Frames() == 0 {
		return "", nil
	}
	text, err := e.opts.Speech.Recognize(ctx, pcm)
	if err != nil {
		return "", &ServiceError{Backend: GenericSpeechService, Chunk: NoChunk, Err: err}
	}
	return text, nil
}

// recognizerResult is the JSON payload of a recognizer result.
type recognizerResult struct {
	Text string `json:"text"`
}

func parseResult(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}
	var r recognizerResult
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return "", fmt.Errorf("decode recognizer result: %w", err)
	}
	return r.Text, nil
}

// transcribeOffline appends utterance results except the unrecognized token.
// The final result is appended unfiltered.
func (e *Engine) transcribeOffline(ctx context.Context, wavPath string) (string, error) {
	rec, err := e.opts.Models.Load(e.opts.RecognizerSampleRate)
	if err != nil {
		var mle *ModelLoadError
		if errors.As(err, &mle) {
			return "", err
		}
		return "", &ModelLoadError{Err: err}
	}
	defer rec.Close()

	f, err := os.Open(wavPath)
	if err != nil {
		return "", fmt.Errorf("open waveform: %w", err)
	}
	defer f.Close()

	fail := func(err error) (string, error) {
		return "", &ServiceError{Backend: OfflineAcousticModel, Chunk: NoChunk, Err: err}
	}

	var sb strings.Builder
	block := make([]byte, e.opts.BlockSize)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		n, rerr := f.Read(block)
		if n > 0 {
			done, err := rec.AcceptWaveform(block[:n])
			if err != nil {
				return fail(err)
			}
			if done {
				text, err := parseResult(rec.Result())
				if err != nil {
					return fail(err)
				}
				if text != "" && text != UnrecognizedToken {
					e.log.Debug().Str("text", text).Msg("utterance recognized")
					sb.WriteString(text)
				}
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return "", fmt.Errorf("read waveform: %w", rerr)
		}
	}

	text, err := parseResult(rec.FinalResult())
	if err != nil {
		return fail(err)
	}
	sb.WriteString(text)
	return sb.String(), nil
}
