package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/snarg/scribe/internal/config"
	"github.com/snarg/scribe/internal/metrics"
	"github.com/snarg/scribe/internal/storage"
	"github.com/snarg/scribe/internal/transcribe"
)

// Pipeline is the transcription pipeline as seen by the HTTP layer.
type Pipeline interface {
	Transcriber
	PipelineStats
}

// ServerOptions wires the HTTP server. Ledger, DB, MQTT and Watcher are
// optional and must be left nil (not typed nil) when disabled.
type ServerOptions struct {
	Config    *config.Config
	Pipeline  Pipeline
	Store     storage.TranscriptStore
	Backend   transcribe.Backend
	Ledger    TranscriptionLister
	DB        HealthChecker
	MQTT      ConnectionChecker
	Watcher   WatcherStatusSource
	Version   string
	StartTime time.Time
	Log       zerolog.Logger
}

type Server struct {
	http *http.Server
	log  zerolog.Logger
}

func NewServer(opts ServerOptions) *Server {
	cfg := opts.Config
	r := NewRouter(opts)
	return &Server{
		http: &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      r,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		log: opts.Log,
	}
}

// NewRouter builds the chi router with all routes and middleware.
func NewRouter(opts ServerOptions) chi.Router {
	cfg := opts.Config
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(Recoverer)
	r.Use(Logger(opts.Log))
	r.Use(metrics.InstrumentHandler)
	r.Use(CORS)

	r.Handle("/metrics", promhttp.Handler())

	health := NewHealthHandler(opts.DB, opts.MQTT, opts.Watcher, opts.Pipeline,
		opts.Backend.String(), opts.Store.Type(), opts.Version, opts.StartTime)
	transcriptions := NewTranscriptionsHandler(opts.Pipeline, opts.Store, opts.Ledger,
		cfg.UploadDir, opts.Backend, opts.Log)

	r.Route("/api/v1", func(r chi.Router) {
		// Health endpoint: no auth
		r.Get("/health", health.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(BearerAuth(cfg.AuthToken))
			r.Use(MaxBodySize(cfg.MaxUploadMB << 20))
			transcriptions.Routes(r)
		})
	})

	return r
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}
