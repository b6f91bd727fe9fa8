// Package audit persists dispatch outcomes so operators can query sync
// history instead of scraping logs. It is optional; the processor runs
// without a database.
package audit

import (
	"context"

	"github.com/challenge-forums/processor/internal/app/dispatch"
	"github.com/jackc/pgx/v5/pgxpool"
)

const createOutcomesTableSQL = `
CREATE TABLE IF NOT EXISTS forum_sync_outcomes (
  outcome_id text PRIMARY KEY,
  topic text NOT NULL,
  service text NOT NULL DEFAULT '',
  kind text NOT NULL DEFAULT '',
  challenge_id text NOT NULL DEFAULT '',
  skipped boolean NOT NULL DEFAULT false,
  error text NOT NULL DEFAULT '',
  occurred_at timestamptz NOT NULL,
  inserted_at timestamptz NOT NULL DEFAULT now()
)`

const insertOutcomeSQL = `
INSERT INTO forum_sync_outcomes (
  outcome_id, topic, service, kind, challenge_id, skipped, error, occurred_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (outcome_id) DO NOTHING
`

type Repository struct {
	Pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{Pool: pool}
}

func (r *Repository) EnsureSchema(ctx context.Context) error {
	_, err := r.Pool.Exec(ctx, createOutcomesTableSQL)
	return err
}

func (r *Repository) Record(ctx context.Context, outcome dispatch.Outcome) error {
	errText := ""
	if outcome.Err != nil {
		errText = outcome.Err.Error()
	}
	_, err := r.Pool.Exec(ctx, insertOutcomeSQL,
		outcome.ID,
		outcome.Topic,
		outcome.Service,
		outcome.Kind,
		outcome.ChallengeID,
		outcome.Skipped,
		errText,
		outcome.At,
	)
	return err
}
