// Package postgres provides a PostgreSQL-backed Sink for the gateway
// usage log.
//
// Records are upserted by ID, so re-persisting the same snapshot is safe.
// Durability across restarts makes the log usable for dashboards that
// outlive a single gateway process.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumenlab/aigateway"
)

// Store is a PostgreSQL-backed usage Sink.
type Store struct {
	pool        *pgxpool.Pool
	tablePrefix string
}

var _ aigateway.Sink = (*Store)(nil)

// Option configures Store.
type Option func(*Store)

// WithTablePrefix sets the table name prefix (default "aigateway_").
func WithTablePrefix(prefix string) Option {
	return func(s *Store) { s.tablePrefix = prefix }
}

// New creates a PostgreSQL-backed usage sink.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{
		pool:        pool,
		tablePrefix: "aigateway_",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) usageTable() string { return s.tablePrefix + "usage" }

// EnsureSchema creates the required table if it doesn't exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	q := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			ts TIMESTAMPTZ NOT NULL,
			provider TEXT NOT NULL,
			operation TEXT NOT NULL,
			success BOOLEAN NOT NULL,
			latency_ms BIGINT NOT NULL,
			tokens BIGINT NOT NULL DEFAULT 0,
			error_kind TEXT,
			error_message TEXT
		);
		CREATE INDEX IF NOT EXISTS %s_ts_idx ON %s (ts);
	`, s.usageTable(), s.usageTable(), s.usageTable())
	if _, err := s.pool.Exec(ctx, q); err != nil {
		return fmt.Errorf("aigateway/postgres: ensure schema: %w", err)
	}
	return nil
}

// Persist upserts the snapshot and prunes rows older than the oldest record
// in it. The tracker already trims the snapshot to the retention window, so
// the table converges to the same window.
func (s *Store) Persist(ctx context.Context, records []aigateway.UsageRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	insert := fmt.Sprintf(`INSERT INTO %s (id, ts, provider, operation, success, latency_ms, tokens, error_kind, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`, s.usageTable())

	oldest := records[0].Timestamp
	for _, rec := range records {
		if rec.Timestamp.Before(oldest) {
			oldest = rec.Timestamp
		}
		var errKind, errMsg *string
		if rec.Err != nil {
			k := rec.Err.Kind.String()
			errKind = &k
			errMsg = &rec.Err.Message
		}
		batch.Queue(insert,
			rec.ID, rec.Timestamp.UTC(), rec.Provider, rec.Operation,
			rec.Success, rec.Latency.Milliseconds(), rec.Tokens, errKind, errMsg,
		)
	}
	batch.Queue(fmt.Sprintf(`DELETE FROM %s WHERE ts < $1`, s.usageTable()), oldest.UTC())

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("aigateway/postgres: persist usage: %w", err)
		}
	}
	return nil
}

// Load reads back all persisted records within the timeframe, oldest first.
// Useful for warming the in-memory log after a restart.
func (s *Store) Load(ctx context.Context, timeframe time.Duration) ([]aigateway.UsageRecord, error) {
	cutoff := time.Now().UTC().Add(-timeframe)
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT id, ts, provider, operation, success, latency_ms, tokens, error_kind, error_message
			FROM %s WHERE ts >= $1 ORDER BY ts ASC`, s.usageTable()),
		cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("aigateway/postgres: load usage: %w", err)
	}
	defer rows.Close()

	var records []aigateway.UsageRecord
	for rows.Next() {
		var rec aigateway.UsageRecord
		var latencyMs int64
		var errKind, errMsg *string
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &rec.Provider, &rec.Operation,
			&rec.Success, &latencyMs, &rec.Tokens, &errKind, &errMsg); err != nil {
			return nil, fmt.Errorf("aigateway/postgres: scan usage row: %w", err)
		}
		rec.Latency = time.Duration(latencyMs) * time.Millisecond
		if errKind != nil {
			rec.Err = &aigateway.Error{Message: derefString(errMsg), Kind: parseKind(*errKind)}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("aigateway/postgres: load usage: %w", err)
	}
	return records, nil
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func parseKind(s string) aigateway.Kind {
	switch s {
	case "invalid_api_key":
		return aigateway.KindInvalidAPIKey
	case "rate_limit_exceeded":
		return aigateway.KindRateLimitExceeded
	case "model_overloaded":
		return aigateway.KindModelOverloaded
	case "invalid_request":
		return aigateway.KindInvalidRequest
	case "timeout":
		return aigateway.KindTimeout
	default:
		return aigateway.KindProcessingError
	}
}
