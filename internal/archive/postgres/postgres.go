// Package postgres provides the PostgreSQL-backed verdict archive.
//
// The schema is a single append-only verdicts table; [New] migrates it on
// start (CREATE TABLE IF NOT EXISTS, safe on every boot). Evidence and
// recommendations are stored as JSONB so reviews can filter on indicators
// without schema churn.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ringguard/ringguard/internal/archive"
	"github.com/ringguard/ringguard/pkg/types"
)

var _ archive.Store = (*Store)(nil)

const ddlVerdicts = `
CREATE TABLE IF NOT EXISTS verdicts (
    id                  TEXT         PRIMARY KEY,
    call_id             TEXT         NOT NULL,
    chunk_sequence      INTEGER      NOT NULL,
    risk_level          TEXT         NOT NULL,
    degraded            BOOLEAN      NOT NULL DEFAULT FALSE,
    evidence            JSONB        NOT NULL DEFAULT '[]',
    recommended_actions JSONB        NOT NULL DEFAULT '[]',
    scam_type           TEXT         NOT NULL DEFAULT 'none',
    rationale           TEXT         NOT NULL DEFAULT '',
    produced_at         TIMESTAMPTZ  NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_verdicts_call_id
    ON verdicts (call_id);

CREATE INDEX IF NOT EXISTS idx_verdicts_produced_at
    ON verdicts (produced_at);

CREATE INDEX IF NOT EXISTS idx_verdicts_risk_level
    ON verdicts (risk_level);
`

// Store is the PostgreSQL verdict archive. All methods are safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to the database at dsn and ensures the schema exists. The
// first ping retries with exponential backoff so the service survives a
// database that comes up slower than it does.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("verdict archive: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("verdict archive: create pool: %w", err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second
	ping := func() error {
		return pool.Ping(ctx)
	}
	if err := backoff.Retry(ping, backoff.WithContext(bo, ctx)); err != nil {
		pool.Close()
		return nil, fmt.Errorf("verdict archive: ping: %w", err)
	}

	if _, err := pool.Exec(ctx, ddlVerdicts); err != nil {
		pool.Close()
		return nil, fmt.Errorf("verdict archive: migrate: %w", err)
	}
	return &Store{pool: pool}, nil
}

// SaveVerdict implements [archive.Store]. Replays of the same verdict ID
// are idempotent.
func (s *Store) SaveVerdict(ctx context.Context, v types.RiskVerdict) error {
	const q = `
		INSERT INTO verdicts
		    (id, call_id, chunk_sequence, risk_level, degraded,
		     evidence, recommended_actions, scam_type, rationale, produced_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING`

	evidence := v.Evidence
	if evidence == nil {
		evidence = []string{}
	}
	actions := v.RecommendedActions
	if actions == nil {
		actions = []string{}
	}

	_, err := s.pool.Exec(ctx, q,
		v.ID,
		v.CallID,
		v.ChunkSequence,
		v.Level.String(),
		v.Degraded,
		evidence,
		actions,
		v.ScamType,
		v.Rationale,
		v.ProducedAt,
	)
	if err != nil {
		return fmt.Errorf("verdict archive: save verdict %s: %w", v.ID, err)
	}
	return nil
}

// VerdictsByCall implements [archive.Store].
func (s *Store) VerdictsByCall(ctx context.Context, callID string) ([]types.RiskVerdict, error) {
	const q = `
		SELECT id, call_id, chunk_sequence, risk_level, degraded,
		       evidence, recommended_actions, scam_type, rationale, produced_at
		FROM   verdicts
		WHERE  call_id = $1
		ORDER  BY produced_at`

	rows, err := s.pool.Query(ctx, q, callID)
	if err != nil {
		return nil, fmt.Errorf("verdict archive: verdicts by call: %w", err)
	}
	defer rows.Close()

	var out []types.RiskVerdict
	for rows.Next() {
		var v types.RiskVerdict
		var level string
		if err := rows.Scan(
			&v.ID, &v.CallID, &v.ChunkSequence, &level, &v.Degraded,
			&v.Evidence, &v.RecommendedActions, &v.ScamType, &v.Rationale, &v.ProducedAt,
		); err != nil {
			return nil, fmt.Errorf("verdict archive: scan verdict: %w", err)
		}
		if v.Level, err = types.ParseRiskLevel(level); err != nil {
			return nil, fmt.Errorf("verdict archive: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("verdict archive: verdicts by call: %w", err)
	}
	return out, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}
