package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/scribe/internal/config"
)

// TranscriptStore abstracts transcript storage backends.
type TranscriptStore interface {
	// Save stores data under key, e.g. "meeting_transcription.txt".
	Save(ctx context.Context, key string, data []byte, contentType string) error

	// Open returns a reader for a stored transcript.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists checks if a transcript exists in any backend.
	Exists(ctx context.Context, key string) bool

	// Type returns "local", "s3", or "tiered".
	Type() string
}

// New creates a TranscriptStore. Without S3 configured transcripts live only
// in dir; with S3 they are written to dir and backed up to the bucket.
// Returns an error if S3 is configured but unreachable.
func New(cfg config.S3Config, dir string, log zerolog.Logger) (TranscriptStore, error) {
	local := NewLocalStore(dir)
	if !cfg.Enabled() {
		return local, nil
	}

	s3store, err := NewS3Store(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("S3 init failed: %w", err)
	}

	// Startup validation: verify credentials and bucket access
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s3store.HeadBucket(ctx); err != nil {
		return nil, fmt.Errorf("S3 startup check failed (bucket=%q endpoint=%q): %w",
			cfg.Bucket, cfg.Endpoint, err)
	}
	log.Info().Str("bucket", cfg.Bucket).Str("endpoint", cfg.Endpoint).Msg("S3 connection verified")

	return NewTieredStore(s3store, local, log), nil
}
