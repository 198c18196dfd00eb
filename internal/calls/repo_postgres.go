package calls

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// PostgresRepo persists call records in Postgres. Metadata is stored as
// JSONB; the unique key is (tenant_id, external_call_id).
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Upsert(ctx context.Context, c Call) error {
	md, err := json.Marshal(c.Metadata)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO calls (call_id, tenant_id, agent_id, external_call_id, from_number, to_number, direction, status,
  contact_name, duration_seconds, transcript, recording_url, ended_reason, metadata, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
ON CONFLICT (tenant_id, external_call_id) DO UPDATE SET
  status = EXCLUDED.status,
  duration_seconds = EXCLUDED.duration_seconds,
  transcript = EXCLUDED.transcript,
  recording_url = EXCLUDED.recording_url,
  ended_reason = EXCLUDED.ended_reason,
  metadata = EXCLUDED.metadata,
  updated_at = EXCLUDED.updated_at
`
	_, err = r.db.ExecContext(ctx, q,
		c.CallID, c.TenantID, c.AgentID, c.ExternalCallID, c.From, c.To, c.Direction, c.Status,
		c.ContactName, c.DurationSeconds, c.Transcript, c.RecordingURL, c.EndedReason, md,
		c.CreatedAt, c.UpdatedAt,
	)
	return err
}

const callColumns = `call_id, tenant_id, COALESCE(agent_id, ''), external_call_id, COALESCE(from_number, ''), to_number,
  direction, status, COALESCE(contact_name, ''), duration_seconds, COALESCE(transcript, ''),
  COALESCE(recording_url, ''), COALESCE(ended_reason, ''), metadata, created_at, updated_at`

func (r *PostgresRepo) GetByExternalID(ctx context.Context, tenantID, externalCallID string) (Call, error) {
	const q = `SELECT ` + callColumns + ` FROM calls WHERE tenant_id = $1 AND external_call_id = $2`
	c, err := scanCall(r.db.QueryRowContext(ctx, q, tenantID, externalCallID))
	if errors.Is(err, sql.ErrNoRows) {
		return Call{}, ErrNotFound
	}
	return c, err
}

func (r *PostgresRepo) ListByTenant(ctx context.Context, tenantID string, limit int) ([]Call, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + callColumns + ` FROM calls WHERE tenant_id = $1 ORDER BY created_at DESC LIMIT $2`
	rows, err := r.db.QueryContext(ctx, q, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Call
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) ListByRange(ctx context.Context, tenantID string, from, to time.Time) ([]Call, error) {
	const q = `SELECT ` + callColumns + ` FROM calls WHERE tenant_id = $1 AND created_at >= $2 AND created_at < $3 ORDER BY created_at ASC`
	rows, err := r.db.QueryContext(ctx, q, tenantID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Call
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(row rowScanner) (Call, error) {
	var c Call
	var md []byte
	err := row.Scan(&c.CallID, &c.TenantID, &c.AgentID, &c.ExternalCallID, &c.From, &c.To,
		&c.Direction, &c.Status, &c.ContactName, &c.DurationSeconds, &c.Transcript,
		&c.RecordingURL, &c.EndedReason, &md, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Call{}, err
	}
	if len(md) > 0 {
		if err := json.Unmarshal(md, &c.Metadata); err != nil {
			return Call{}, err
		}
	}
	return c, nil
}
