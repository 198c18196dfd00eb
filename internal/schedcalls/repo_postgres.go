package schedcalls

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// PostgresRepo persists scheduled calls in Postgres.
//
// Assumed table: scheduled_calls, with metadata stored as JSONB.
// Terminal-status protection and single-writer promotion are enforced in the
// UPDATE predicates, not in application reads.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const scheduledCallColumns = `
id, tenant_id, agent_id, to_number, COALESCE(contact_name, ''),
scheduled_at, original_scheduled_at, timezone_delayed, COALESCE(lead_timezone, ''),
status, COALESCE(external_call_id, ''), COALESCE(trigger_source, ''),
COALESCE(failure_reason, ''), metadata, completed_at, created_at, updated_at
`

func (r *PostgresRepo) Create(ctx context.Context, sc ScheduledCall) error {
	md, err := json.Marshal(sc.Metadata)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO scheduled_calls (
  id, tenant_id, agent_id, to_number, contact_name,
  scheduled_at, original_scheduled_at, timezone_delayed, lead_timezone,
  status, external_call_id, trigger_source, failure_reason, metadata,
  completed_at, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
`
	_, err = r.db.ExecContext(ctx, q,
		sc.ID, sc.TenantID, sc.AgentID, sc.ToNumber, nullIfEmpty(sc.ContactName),
		sc.ScheduledAt, sc.OriginalScheduledAt, sc.TimezoneDelayed, nullIfEmpty(sc.LeadTimezone),
		sc.Status, nullIfEmpty(sc.ExternalCallID), nullIfEmpty(sc.TriggerSource),
		nullIfEmpty(sc.FailureReason), md, sc.CompletedAt, sc.CreatedAt, sc.UpdatedAt,
	)
	return err
}

func (r *PostgresRepo) GetByID(ctx context.Context, tenantID, id string) (ScheduledCall, error) {
	const q = `
SELECT ` + scheduledCallColumns + `
FROM scheduled_calls
WHERE tenant_id = $1 AND id = $2
`
	sc, err := scanScheduledCall(r.db.QueryRowContext(ctx, q, tenantID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return ScheduledCall{}, ErrNotFound
	}
	return sc, err
}

func (r *PostgresRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]ScheduledCall, error) {
	const q = `
SELECT ` + scheduledCallColumns + `
FROM scheduled_calls
WHERE status = 'scheduled' AND scheduled_at <= $1
ORDER BY scheduled_at ASC
LIMIT $2
`
	rows, err := r.db.QueryContext(ctx, q, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ScheduledCall
	for rows.Next() {
		sc, err := scanScheduledCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) MarkInitiated(ctx context.Context, tenantID, id, externalCallID string, at time.Time) (bool, error) {
	const q = `
UPDATE scheduled_calls
SET status = 'initiated', external_call_id = $3, updated_at = $4
WHERE tenant_id = $1 AND id = $2 AND status IN ('pending', 'scheduled')
`
	return r.exec(ctx, q, tenantID, id, externalCallID, at)
}

func (r *PostgresRepo) MarkFailed(ctx context.Context, tenantID, id, reason string, at time.Time) (bool, error) {
	const q = `
UPDATE scheduled_calls
SET status = 'failed', failure_reason = $3, completed_at = $4, updated_at = $4
WHERE tenant_id = $1 AND id = $2 AND status NOT IN ('completed', 'failed', 'canceled')
`
	return r.exec(ctx, q, tenantID, id, reason, at)
}

func (r *PostgresRepo) Reschedule(ctx context.Context, tenantID, id string, scheduledAt, at time.Time) (bool, error) {
	const q = `
UPDATE scheduled_calls
SET status = 'scheduled', scheduled_at = $3, updated_at = $4
WHERE tenant_id = $1 AND id = $2 AND status IN ('pending', 'scheduled')
`
	return r.exec(ctx, q, tenantID, id, scheduledAt, at)
}

func (r *PostgresRepo) CompleteByExternalID(ctx context.Context, tenantID, externalCallID string, status Status, at time.Time) (bool, error) {
	// Replayed webhooks match zero rows here and surface as (false, nil).
	const q = `
UPDATE scheduled_calls
SET status = $3, completed_at = $4, updated_at = $4
WHERE tenant_id = $1 AND external_call_id = $2 AND status = 'initiated'
`
	return r.exec(ctx, q, tenantID, externalCallID, status, at)
}

func (r *PostgresRepo) Cancel(ctx context.Context, tenantID, id string, at time.Time) (bool, error) {
	const q = `
UPDATE scheduled_calls
SET status = 'canceled', updated_at = $3
WHERE tenant_id = $1 AND id = $2 AND status IN ('pending', 'scheduled')
`
	return r.exec(ctx, q, tenantID, id, at)
}

func (r *PostgresRepo) exec(ctx context.Context, q string, args ...any) (bool, error) {
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanScheduledCall(row rowScanner) (ScheduledCall, error) {
	var sc ScheduledCall
	var md []byte
	err := row.Scan(
		&sc.ID, &sc.TenantID, &sc.AgentID, &sc.ToNumber, &sc.ContactName,
		&sc.ScheduledAt, &sc.OriginalScheduledAt, &sc.TimezoneDelayed, &sc.LeadTimezone,
		&sc.Status, &sc.ExternalCallID, &sc.TriggerSource,
		&sc.FailureReason, &md, &sc.CompletedAt, &sc.CreatedAt, &sc.UpdatedAt,
	)
	if err != nil {
		return ScheduledCall{}, err
	}
	if len(md) > 0 {
		if err := json.Unmarshal(md, &sc.Metadata); err != nil {
			return ScheduledCall{}, err
		}
	}
	return sc, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
