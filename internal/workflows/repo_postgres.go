package workflows

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"voiceops-platform/internal/calls"
)

// PostgresRepo persists workflows and execution logs in Postgres.
//
// Assumed tables:
// - workflows (conditions and actions stored as JSONB)
// - workflow_execution_logs (INSERT-only; action_results as JSONB)
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Save(ctx context.Context, w Workflow) error {
	conds, err := json.Marshal(w.Conditions)
	if err != nil {
		return err
	}
	actions, err := json.Marshal(w.Actions)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO workflows (id, tenant_id, agent_id, name, trigger, conditions, actions, is_active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id) DO UPDATE SET
  agent_id = EXCLUDED.agent_id,
  name = EXCLUDED.name,
  trigger = EXCLUDED.trigger,
  conditions = EXCLUDED.conditions,
  actions = EXCLUDED.actions,
  is_active = EXCLUDED.is_active,
  updated_at = EXCLUDED.updated_at
WHERE workflows.tenant_id = EXCLUDED.tenant_id
`
	_, err = r.db.ExecContext(ctx, q,
		w.ID, w.TenantID, nullIfEmpty(w.AgentID), w.Name, w.Trigger,
		conds, actions, w.IsActive, w.CreatedAt, w.UpdatedAt,
	)
	return err
}

func (r *PostgresRepo) GetByID(ctx context.Context, tenantID, id string) (Workflow, error) {
	const q = `
SELECT id, tenant_id, COALESCE(agent_id, ''), name, trigger, conditions, actions, is_active, created_at, updated_at
FROM workflows
WHERE tenant_id = $1 AND id = $2
`
	w, err := scanWorkflow(r.db.QueryRowContext(ctx, q, tenantID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Workflow{}, ErrNotFound
	}
	return w, err
}

func (r *PostgresRepo) ListByTenant(ctx context.Context, tenantID string) ([]Workflow, error) {
	const q = `
SELECT id, tenant_id, COALESCE(agent_id, ''), name, trigger, conditions, actions, is_active, created_at, updated_at
FROM workflows
WHERE tenant_id = $1
ORDER BY created_at ASC
`
	rows, err := r.db.QueryContext(ctx, q, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Workflow
	for rows.Next() {
		w, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) ListByTrigger(ctx context.Context, tenantID string, trigger calls.EventType) ([]Workflow, error) {
	const q = `
SELECT id, tenant_id, COALESCE(agent_id, ''), name, trigger, conditions, actions, is_active, created_at, updated_at
FROM workflows
WHERE tenant_id = $1 AND trigger = $2 AND is_active
ORDER BY created_at ASC
`
	rows, err := r.db.QueryContext(ctx, q, tenantID, trigger)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Workflow
	for rows.Next() {
		w, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) AppendLog(ctx context.Context, l ExecutionLog) error {
	results, err := json.Marshal(l.ActionResults)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO workflow_execution_logs (id, tenant_id, workflow_id, call_id, status, action_results, executed_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`
	_, err = r.db.ExecContext(ctx, q, l.ID, l.TenantID, l.WorkflowID, l.CallID, l.Status, results, l.ExecutedAt)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row rowScanner) (Workflow, error) {
	var w Workflow
	var conds, actions []byte
	err := row.Scan(&w.ID, &w.TenantID, &w.AgentID, &w.Name, &w.Trigger,
		&conds, &actions, &w.IsActive, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return Workflow{}, err
	}
	if len(conds) > 0 {
		if err := json.Unmarshal(conds, &w.Conditions); err != nil {
			return Workflow{}, err
		}
	}
	if len(actions) > 0 {
		if err := json.Unmarshal(actions, &w.Actions); err != nil {
			return Workflow{}, err
		}
	}
	return w, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
