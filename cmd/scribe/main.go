package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/snarg/scribe/internal/config"
	"github.com/snarg/scribe/internal/ingest"
	"github.com/snarg/scribe/internal/storage"
	"github.com/snarg/scribe/internal/transcribe"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	var overrides config.Overrides
	flag.StringVar(&overrides.EnvFile, "env-file", "", "path to .env file (default .env)")
	flag.StringVar(&overrides.Backend, "backend", "", "openai, google or vosk (default from TRANSCRIBE_BACKEND)")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "log level")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: scribe [flags] <audio.mp3|audio.wav>\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Println("scribe", version)
		return 0
	}
	if flag.NArg() != 1 {
		flag.Usage()
		return 2
	}

	cfg, err := config.Load(overrides)
	if err != nil {
		fmt.Fprintln(os.Stderr, "scribe: config:", err)
		return 1
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger().Level(level)

	backend, err := transcribe.ParseBackend(cfg.Backend)
	if err != nil {
		log.Error().Err(err).Msg("invalid backend")
		return 2
	}

	src := flag.Arg(0)
	if _, err := os.Stat(src); err != nil {
		log.Error().Err(err).Msg("input file not found")
		return 1
	}
	if ingest.Route(src) == ingest.KindDocument {
		log.Error().Str("file", src).Msg("documents are answered by the chat service; only .mp3 and .wav are transcribed")
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The transcript lands next to the source file.
	pipeline := ingest.NewPipeline(ingest.PipelineOptions{
		NewEngine:      ingest.NewEngineFactory(cfg, log),
		Store:          storage.NewLocalStore(filepath.Dir(src)),
		SpeechLanguage: cfg.SpeechLanguage,
		Log:            log,
	})

	res, err := pipeline.Process(ctx, ingest.Job{Path: src, Backend: backend})
	if err != nil {
		log.Error().Err(err).Str("file", src).Str("backend", backend.String()).Msg("transcription failed")
		if errors.Is(err, transcribe.ErrInvalidInputFormat) {
			return 2
		}
		return 1
	}

	fmt.Println(filepath.Join(filepath.Dir(src), res.TranscriptKey))
	if backend == transcribe.CloudAPI {
		fmt.Printf("cost: $%.4f\n", res.CostUSD)
	}
	return 0
}
