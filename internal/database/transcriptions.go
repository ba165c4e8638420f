package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TranscriptionRow is one finished transcription in the ledger.
type TranscriptionRow struct {
	ID            uuid.UUID
	Source        string
	Backend       string
	TranscriptKey string
	Language      string
	Chars         int
	CostUSD       float64
	DurationMs    int
	CreatedAt     time.Time
}

// InsertTranscription records a finished transcription.
func (db *DB) InsertTranscription(ctx context.Context, row *TranscriptionRow) error {
	var lang *string
	if row.Language != "" {
		lang = &row.Language
	}
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO transcriptions (id, source, backend, transcript_key, language, chars, cost_usd, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		row.ID, row.Source, row.Backend, row.TranscriptKey, lang,
		row.Chars, row.CostUSD, row.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("insert transcription: %w", err)
	}
	return nil
}

// TotalCost returns the summed cost of every recorded transcription.
func (db *DB) TotalCost(ctx context.Context) (float64, error) {
	var total float64
	err := db.Pool.QueryRow(ctx, `SELECT COALESCE(SUM(cost_usd), 0) FROM transcriptions`).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum cost: %w", err)
	}
	return total, nil
}

// ListTranscriptions returns the most recent ledger rows, newest first.
func (db *DB) ListTranscriptions(ctx context.Context, limit int) ([]TranscriptionRow, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, source, backend, transcript_key, COALESCE(language, ''), chars, cost_usd, duration_ms, created_at
		FROM transcriptions
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list transcriptions: %w", err)
	}
	defer rows.Close()

	var out []TranscriptionRow
	for rows.Next() {
		var r TranscriptionRow
		if err := rows.Scan(&r.ID, &r.Source, &r.Backend, &r.TranscriptKey, &r.Language,
			&r.Chars, &r.CostUSD, &r.DurationMs, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
