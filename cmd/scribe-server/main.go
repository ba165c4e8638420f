package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/snarg/scribe/internal/api"
	"github.com/snarg/scribe/internal/config"
	"github.com/snarg/scribe/internal/database"
	"github.com/snarg/scribe/internal/ingest"
	"github.com/snarg/scribe/internal/metrics"
	"github.com/snarg/scribe/internal/mqttclient"
	"github.com/snarg/scribe/internal/storage"
	"github.com/snarg/scribe/internal/transcribe"
)

var version = "dev"

func main() {
	startTime := time.Now()

	var overrides config.Overrides
	var backfill bool
	flag.StringVar(&overrides.EnvFile, "env-file", "", "path to .env file (default .env)")
	flag.StringVar(&overrides.Backend, "backend", "", "default backend: openai, google or vosk")
	flag.StringVar(&overrides.HTTPAddr, "listen", "", "HTTP listen address")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "log level")
	flag.StringVar(&overrides.WatchDir, "watch-dir", "", "inbox directory to watch for audio files")
	flag.BoolVar(&backfill, "backfill", false, "transcribe audio already in the watch dir on startup")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("scribe-server", version)
		return
	}

	// Config
	cfg, err := config.Load(overrides)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	// Logger
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().Str("version", version).Msg("scribe-server starting")

	backend, err := transcribe.ParseBackend(cfg.Backend)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid TRANSCRIBE_BACKEND")
	}

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Transcript store
	storeLog := log.With().Str("component", "storage").Logger()
	store, err := storage.New(cfg.S3, cfg.TranscriptDir, storeLog)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize transcript store")
	}

	pipelineOpts := ingest.PipelineOptions{
		NewEngine:      ingest.NewEngineFactory(cfg, log),
		Store:          store,
		SpeechLanguage: cfg.SpeechLanguage,
		KeyFunc: func(id uuid.UUID, name string) string {
			return ingest.DatedKey(id, name, time.Now())
		},
		Log: log,
	}
	serverOpts := api.ServerOptions{
		Config:    cfg,
		Store:     store,
		Backend:   backend,
		Version:   version,
		StartTime: startTime,
		Log:       log.With().Str("component", "http").Logger(),
	}

	// Cost ledger (optional)
	var db *database.DB
	if cfg.DatabaseURL != "" {
		dbLog := log.With().Str("component", "database").Logger()
		db, err = database.Connect(ctx, cfg.DatabaseURL, dbLog)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()
		if err := db.InitSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to initialize schema")
		}
		if total, err := db.TotalCost(ctx); err == nil {
			log.Info().Float64("ledger_cost_usd", total).Msg("cost ledger ready")
		}
		pipelineOpts.Ledger = db
		serverOpts.Ledger = db
		serverOpts.DB = db
	}

	// MQTT events (optional)
	if cfg.MQTTBrokerURL != "" {
		mqtt, err := mqttclient.Connect(mqttclient.Options{
			BrokerURL: cfg.MQTTBrokerURL,
			ClientID:  cfg.MQTTClientID,
			Topic:     cfg.MQTTTopic,
			Username:  cfg.MQTTUsername,
			Password:  cfg.MQTTPassword,
			Log:       log.With().Str("component", "mqtt").Logger(),
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to mqtt broker")
		}
		defer mqtt.Close()
		pipelineOpts.Events = mqtt
		serverOpts.MQTT = mqtt
	}

	pipeline := ingest.NewPipeline(pipelineOpts)
	serverOpts.Pipeline = pipeline

	var pool *pgxpool.Pool
	if db != nil {
		pool = db.Pool
	}
	prometheus.MustRegister(metrics.NewCollector(pool, pipeline))

	// Inbox watcher (optional)
	if cfg.WatchDir != "" {
		watcher := ingest.NewFileWatcher(pipeline, cfg.WatchDir, backend, backfill, log)
		if err := watcher.Start(ctx); err != nil {
			log.Fatal().Err(err).Str("dir", cfg.WatchDir).Msg("failed to start file watcher")
		}
		defer watcher.Stop()
		serverOpts.Watcher = watcher
	}

	// HTTP Server
	srv := api.NewServer(serverOpts)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// Wait for shutdown signal or server error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	// Graceful shutdown with 10s timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	log.Info().
		Float64("session_cost_usd", pipeline.TotalCostUSD()).
		Msg("scribe-server stopped")
}
