package persist

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/canopylog/canopy/pkg/types"
)

// PostgresPersister writes log batches into a Postgres table using a single
// pipelined pgx batch per flush.
//
// Expected table shape:
//
//	CREATE TABLE log_entries (
//	    id          BIGSERIAL PRIMARY KEY,
//	    ts          TIMESTAMPTZ NOT NULL,
//	    level       TEXT        NOT NULL,
//	    service     TEXT        NOT NULL,
//	    session_id  TEXT        NOT NULL,
//	    fingerprint TEXT,
//	    entry       JSONB       NOT NULL
//	);
type PostgresPersister struct {
	pool      *pgxpool.Pool
	insertSQL string
}

// NewPostgresPersister creates a persister writing to the given table.
func NewPostgresPersister(pool *pgxpool.Pool, table string) (*PostgresPersister, error) {
	if pool == nil {
		return nil, errors.New("postgres persister: nil pool")
	}
	if table == "" {
		table = "log_entries"
	}

	insertSQL := fmt.Sprintf(
		"INSERT INTO %s (ts, level, service, session_id, fingerprint, entry) VALUES ($1, $2, $3, $4, $5, $6)",
		pgx.Identifier{table}.Sanitize(),
	)

	return &PostgresPersister{pool: pool, insertSQL: insertSQL}, nil
}

// Name implements Persister.
func (p *PostgresPersister) Name() string { return "postgres" }

// Persist implements Persister. Marshal failures are permanent; transport
// failures are transient and left to the caller's retry policy.
func (p *PostgresPersister) Persist(ctx context.Context, batch []*types.LogEntry) error {
	if len(batch) == 0 {
		return nil
	}

	pgBatch := &pgx.Batch{}
	for _, entry := range batch {
		payload, err := json.Marshal(entry)
		if err != nil {
			return Permanent(errors.Wrap(err, "marshal log entry"))
		}
		pgBatch.Queue(p.insertSQL,
			entry.Timestamp,
			entry.Level.String(),
			entry.Service,
			entry.SessionID,
			entry.ErrorFingerprint,
			payload,
		)
	}

	results := p.pool.SendBatch(ctx, pgBatch)
	defer results.Close()

	for range batch {
		if _, err := results.Exec(); err != nil {
			return errors.Wrap(err, "insert log entry")
		}
	}
	return nil
}
