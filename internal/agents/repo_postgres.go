package agents

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"voiceops-platform/internal/callwindow"
)

// PostgresRepo persists agents in Postgres. The calling window is stored as
// JSONB; NULL means no window policy.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Save(ctx context.Context, a Agent) error {
	var window any
	if a.Window != nil {
		b, err := json.Marshal(a.Window)
		if err != nil {
			return err
		}
		window = b
	}
	const q = `
INSERT INTO agents (id, tenant_id, name, provider, external_agent_id, from_number, call_window, default_timezone, analysis_enabled, is_active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (id) DO UPDATE SET
  name = EXCLUDED.name,
  provider = EXCLUDED.provider,
  external_agent_id = EXCLUDED.external_agent_id,
  from_number = EXCLUDED.from_number,
  call_window = EXCLUDED.call_window,
  default_timezone = EXCLUDED.default_timezone,
  analysis_enabled = EXCLUDED.analysis_enabled,
  is_active = EXCLUDED.is_active,
  updated_at = EXCLUDED.updated_at
WHERE agents.tenant_id = EXCLUDED.tenant_id
`
	_, err := r.db.ExecContext(ctx, q,
		a.ID, a.TenantID, a.Name, a.Provider, a.ExternalAgentID, a.FromNumber,
		window, a.DefaultTimezone, a.AnalysisEnabled, a.IsActive, a.CreatedAt, a.UpdatedAt,
	)
	return err
}

const agentColumns = `id, tenant_id, name, provider, external_agent_id, COALESCE(from_number, ''), call_window, COALESCE(default_timezone, ''), analysis_enabled, is_active, created_at, updated_at`

func (r *PostgresRepo) GetByID(ctx context.Context, tenantID, id string) (Agent, error) {
	const q = `SELECT ` + agentColumns + ` FROM agents WHERE tenant_id = $1 AND id = $2`
	a, err := scanAgent(r.db.QueryRowContext(ctx, q, tenantID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Agent{}, ErrNotFound
	}
	return a, err
}

func (r *PostgresRepo) ListByTenant(ctx context.Context, tenantID string) ([]Agent, error) {
	const q = `SELECT ` + agentColumns + ` FROM agents WHERE tenant_id = $1 ORDER BY created_at ASC`
	rows, err := r.db.QueryContext(ctx, q, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner) (Agent, error) {
	var a Agent
	var window []byte
	err := row.Scan(&a.ID, &a.TenantID, &a.Name, &a.Provider, &a.ExternalAgentID, &a.FromNumber,
		&window, &a.DefaultTimezone, &a.AnalysisEnabled, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return Agent{}, err
	}
	if len(window) > 0 {
		var w callwindow.Window
		if err := json.Unmarshal(window, &w); err != nil {
			return Agent{}, err
		}
		a.Window = &w
	}
	return a, nil
}
