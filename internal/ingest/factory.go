package ingest

import (
	"github.com/rs/zerolog"

	"github.com/snarg/scribe/internal/config"
	"github.com/snarg/scribe/internal/transcribe"
)

// NewEngineFactory builds engines from cfg. The backend clients are created
// once and shared; none of them connects until a transcription runs.
func NewEngineFactory(cfg *config.Config, log zerolog.Logger) EngineFactory {
	opts := transcribe.Options{
		Cloud:                transcribe.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel),
		Speech:               transcribe.NewSpeechClient(cfg.SpeechURL, cfg.SpeechAPIKey, cfg.SpeechLanguage, cfg.SpeechTimeout),
		Models:               transcribe.NewVoskLoader(cfg.VoskModelPath),
		Converter:            transcribe.NewFFmpegConverter(cfg.FFmpegPath),
		ChunkDuration:        cfg.ChunkDuration,
		PricePerMinuteUSD:    cfg.PricePerMinuteUSD,
		ChunkConcurrency:     cfg.ChunkConcurrency,
		RecognizerSampleRate: cfg.VoskSampleRate,
		Log:                  log.With().Str("component", "engine").Logger(),
	}
	return func(path string, backend transcribe.Backend) (*transcribe.Engine, error) {
		return transcribe.New(path, backend, opts)
	}
}
