package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/XavierBriggs/fortuna/services/tip-relay/internal/retry"
	"github.com/XavierBriggs/fortuna/services/tip-relay/pkg/models"
	_ "github.com/lib/pq"
)

const schema = `
	CREATE TABLE IF NOT EXISTS tip_relay_outcomes (
		id          BIGSERIAL PRIMARY KEY,
		message_id  BIGINT NOT NULL,
		source      TEXT NOT NULL,
		status      TEXT NOT NULL,
		reason      TEXT,
		team_a      TEXT,
		team_b      TEXT,
		command_id  TEXT,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)
`

// Journal logs pipeline outcomes to the tip_relay_outcomes table
type Journal struct {
	db *sql.DB
}

// New wraps an open database handle
func New(db *sql.DB) *Journal {
	return &Journal{db: db}
}

// Open connects to Postgres, retrying the initial ping with policy
func Open(ctx context.Context, dsn string, policy *retry.Policy) (*Journal, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal db: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	err = policy.Do(ctx, func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return db.PingContext(pingCtx)
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping journal db: %w", err)
	}

	return New(db), nil
}

// EnsureSchema creates the outcomes table if it does not exist
func (j *Journal) EnsureSchema(ctx context.Context) error {
	if _, err := j.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create outcomes table: %w", err)
	}
	return nil
}

// Record inserts one outcome
func (j *Journal) Record(ctx context.Context, outcome models.Outcome) error {
	query := `
		INSERT INTO tip_relay_outcomes (
			message_id, source, status, reason, team_a, team_b, command_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	if _, err := j.db.ExecContext(ctx, query, recordArgs(outcome)...); err != nil {
		return fmt.Errorf("failed to record outcome: %w", err)
	}
	return nil
}

// Close closes the database handle
func (j *Journal) Close() error {
	return j.db.Close()
}

// recordArgs maps an outcome onto the insert parameters. Empty optional
// fields are stored as NULL.
func recordArgs(o models.Outcome) []interface{} {
	var teamA, teamB sql.NullString
	if o.Match != nil {
		teamA = sql.NullString{String: o.Match[0], Valid: true}
		teamB = sql.NullString{String: o.Match[1], Valid: true}
	}

	createdAt := o.At
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	return []interface{}{
		o.MessageID,
		o.Source,
		string(o.Status),
		nullString(o.Reason),
		teamA,
		teamB,
		nullString(o.CommandID),
		createdAt,
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
