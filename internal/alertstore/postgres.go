// Package alertstore durably audits every alert the core emits, a
// supplement (SPEC_FULL.md) beyond spec.md's bounded in-memory ring: the
// ring answers "what fired recently", this answers "what fired, ever".
//
// Grounded on the alerting/internal/repository postgres
// repository: pgxpool.ParseConfig + NewWithConfig + Ping on construction,
// one struct wrapping a *pgxpool.Pool, parameterized queries returning
// wrapped errors.
package alertstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/telhawk-systems/logiccorrelator/internal/alert"
)

// ErrNotFound is returned when a lookup by ID matches no row.
var ErrNotFound = errors.New("alertstore: not found")

// Store durably records alerts in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to connString, applying the same pool sizing the
// PostgresRepository uses, and verifies connectivity with a Ping before
// returning.
func New(ctx context.Context, connString string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	cfg.MaxConns = 25
	cfg.MinConns = 5
	cfg.MaxConnLifetime = 5 * time.Minute
	cfg.MaxConnIdleTime = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Insert persists one alert. Safe to call from the engine's emit phase;
// a failure here is logged by the caller and never blocks sink delivery
// (the audit trail is best-effort relative to the §4.5 fanout).
func (s *Store) Insert(ctx context.Context, a *alert.Alert) error {
	trigger, err := json.Marshal(a.TriggerEvent)
	if err != nil {
		return fmt.Errorf("marshal trigger event: %w", err)
	}
	bound, err := json.Marshal(a.BoundEvents)
	if err != nil {
		return fmt.Errorf("marshal bound events: %w", err)
	}

	const query = `
		INSERT INTO alerts (
			id, rule_id, rule_name, message, severity, confidence,
			mitre_techniques, tags, decision_graph_id,
			trigger_event, bound_events, occurred_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = s.pool.Exec(ctx, query,
		a.ID, a.RuleID, a.RuleName, a.Message, string(a.Severity), a.Confidence,
		a.MitreTechniques, a.Tags, a.DecisionGraphID,
		trigger, bound, a.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

// Record is a row read back from the audit table.
type Record struct {
	ID              string
	RuleID          string
	RuleName        string
	Message         string
	Severity        string
	Confidence      float64
	MitreTechniques []string
	Tags            []string
	DecisionGraphID string
	OccurredAt      time.Time
	RecordedAt      time.Time
}

// Get retrieves one alert by ID.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	const query = `
		SELECT id, rule_id, rule_name, message, severity, confidence,
		       mitre_techniques, tags, coalesce(decision_graph_id::text, ''),
		       occurred_at, recorded_at
		FROM alerts WHERE id = $1
	`
	r := &Record{}
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&r.ID, &r.RuleID, &r.RuleName, &r.Message, &r.Severity, &r.Confidence,
		&r.MitreTechniques, &r.Tags, &r.DecisionGraphID,
		&r.OccurredAt, &r.RecordedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get alert: %w", err)
	}
	return r, nil
}

// ListSince returns every alert whose occurred_at is at or after since,
// newest occurred_at first, capped at limit rows.
func (s *Store) ListSince(ctx context.Context, since time.Time, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 100
	}

	const query = `
		SELECT id, rule_id, rule_name, message, severity, confidence,
		       mitre_techniques, tags, coalesce(decision_graph_id::text, ''),
		       occurred_at, recorded_at
		FROM alerts
		WHERE occurred_at >= $1
		ORDER BY occurred_at DESC
		LIMIT $2
	`
	rows, err := s.pool.Query(ctx, query, since, limit)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		r := &Record{}
		if err := rows.Scan(
			&r.ID, &r.RuleID, &r.RuleName, &r.Message, &r.Severity, &r.Confidence,
			&r.MitreTechniques, &r.Tags, &r.DecisionGraphID,
			&r.OccurredAt, &r.RecordedAt,
		); err != nil {
			return nil, fmt.Errorf("scan alert row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alert rows: %w", err)
	}
	return out, nil
}
