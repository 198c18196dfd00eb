package experiments

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"voiceops-platform/pkg/utils"
)

// PostgresRepo persists experiments in Postgres.
//
// Assumed tables:
// - experiments
// - experiment_variants (FK experiment_id, cascade delete)
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

// Create inserts the experiment and all variants in one transaction; a failed
// variant insert rolls back the experiment row.
func (r *PostgresRepo) Create(ctx context.Context, exp Experiment, variants []Variant) error {
	return utils.WithTx(ctx, r.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		const insExp = `
INSERT INTO experiments (id, tenant_id, agent_id, name, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`
		if _, err := tx.ExecContext(ctx, insExp,
			exp.ID, exp.TenantID, exp.AgentID, exp.Name, exp.Status, exp.CreatedAt, exp.UpdatedAt,
		); err != nil {
			return err
		}

		const insVar = `
INSERT INTO experiment_variants (id, experiment_id, name, prompt, traffic_weight, is_control, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`
		for _, v := range variants {
			if _, err := tx.ExecContext(ctx, insVar,
				v.ID, v.ExperimentID, v.Name, v.Prompt, v.TrafficWeight, v.IsControl, v.CreatedAt,
			); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *PostgresRepo) FindRunning(ctx context.Context, tenantID, agentID string) (Experiment, bool, error) {
	const q = `
SELECT id, tenant_id, agent_id, name, status, COALESCE(winner_variant_id, ''), created_at, updated_at
FROM experiments
WHERE tenant_id = $1 AND agent_id = $2 AND status = 'running'
LIMIT 1
`
	var e Experiment
	err := r.db.QueryRowContext(ctx, q, tenantID, agentID).Scan(
		&e.ID, &e.TenantID, &e.AgentID, &e.Name, &e.Status, &e.WinnerVariantID, &e.CreatedAt, &e.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Experiment{}, false, nil
	}
	if err != nil {
		return Experiment{}, false, err
	}
	return e, true, nil
}

func (r *PostgresRepo) ListVariants(ctx context.Context, tenantID, experimentID string) ([]Variant, error) {
	// Control rows order first so selection traversal is deterministic for a
	// fixed random draw.
	const q = `
SELECT v.id, v.experiment_id, v.name, COALESCE(v.prompt, ''), v.traffic_weight, v.is_control, v.created_at
FROM experiment_variants v
JOIN experiments e ON e.id = v.experiment_id
WHERE e.tenant_id = $1 AND v.experiment_id = $2
ORDER BY v.is_control DESC, v.created_at ASC
`
	rows, err := r.db.QueryContext(ctx, q, tenantID, experimentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Variant
	for rows.Next() {
		var v Variant
		if err := rows.Scan(&v.ID, &v.ExperimentID, &v.Name, &v.Prompt, &v.TrafficWeight, &v.IsControl, &v.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) SetStatus(ctx context.Context, tenantID, experimentID string, to Status, at time.Time) error {
	// Guards live in the predicate so the transition and its check are one
	// statement; the single-running-per-agent rule rides on the same update.
	const qStart = `
UPDATE experiments e
SET status = 'running', updated_at = $3
WHERE e.tenant_id = $1 AND e.id = $2 AND e.status IN ('draft', 'paused')
  AND NOT EXISTS (
    SELECT 1 FROM experiments o
    WHERE o.tenant_id = e.tenant_id AND o.agent_id = e.agent_id
      AND o.status = 'running' AND o.id <> e.id
  )
`
	const qPause = `
UPDATE experiments
SET status = 'paused', updated_at = $3
WHERE tenant_id = $1 AND id = $2 AND status = 'running'
`
	var q string
	switch to {
	case StatusRunning:
		q = qStart
	case StatusPaused:
		q = qPause
	default:
		return ErrInvalidArgument
	}
	res, err := r.db.ExecContext(ctx, q, tenantID, experimentID, at)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) Complete(ctx context.Context, tenantID, experimentID, winnerVariantID string, at time.Time) error {
	const q = `
UPDATE experiments
SET status = 'completed', winner_variant_id = $3, updated_at = $4
WHERE tenant_id = $1 AND id = $2 AND status <> 'completed'
`
	res, err := r.db.ExecContext(ctx, q, tenantID, experimentID, winnerVariantID, at)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
