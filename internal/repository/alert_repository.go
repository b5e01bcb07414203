package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"oncall-platform/internal/models"
)

// ErrNotFound is returned by repository lookups that find no row.
var ErrNotFound = errors.New("not found")

// AlertRepository is the storage boundary Alert Ingestion depends on,
// kept as an interface (unlike the teacher's concrete structs) so
// internal/services can be unit-tested against an in-memory fake
// instead of requiring a real pgx pool.
type AlertRepository interface {
	Insert(ctx context.Context, a *models.Alert) error
	GetByID(ctx context.Context, id string) (*models.Alert, error)
	List(ctx context.Context, f models.AlertFilter) ([]models.Alert, int64, error)
	// FindCorrelatingIncident serializes the correlation decision for a
	// (service, severity) pair via a transactional advisory lock, per the
	// "at most one new incident per (service,severity) per window"
	// contract. fn runs inside the transaction holding that lock and
	// reports whether it attached to an existing incident or created one;
	// its return values become FindCorrelatingIncident's own.
	FindCorrelatingIncident(ctx context.Context, service string, severity models.Severity, window time.Duration, fn func(ctx context.Context, tx pgx.Tx, existing *models.Incident) (id string, wasNew bool, err error)) (incidentID string, wasNew bool, err error)
	// IncrementAlertCount bumps an existing incident's alert_count inside
	// the correlation transaction FindCorrelatingIncident's fn is running in.
	IncrementAlertCount(ctx context.Context, tx pgx.Tx, incidentID string) error
}

type pgxAlertRepository struct {
	db *Database
}

func NewAlertRepository(db *Database) AlertRepository {
	return &pgxAlertRepository{db: db}
}

func (r *pgxAlertRepository) Insert(ctx context.Context, a *models.Alert) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	labels, err := json.Marshal(a.Labels)
	if err != nil {
		return fmt.Errorf("marshal labels: %w", err)
	}
	_, err = r.db.Pool.Exec(ctx, `
		INSERT INTO alerts (id, service, severity, message, labels, source, fingerprint, timestamp, incident_id, received_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		a.ID, a.Service, a.Severity, a.Message, labels, nullString(a.Source), a.Fingerprint, a.Timestamp, a.IncidentID, a.ReceivedAt)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

func (r *pgxAlertRepository) GetByID(ctx context.Context, id string) (*models.Alert, error) {
	row := r.db.Pool.QueryRow(ctx, `
		SELECT id, service, severity, message, labels, source, fingerprint, timestamp, incident_id, received_at
		FROM alerts WHERE id = $1`, id)
	return scanAlert(row)
}

func (r *pgxAlertRepository) List(ctx context.Context, f models.AlertFilter) ([]models.Alert, int64, error) {
	where := "WHERE 1=1"
	args := []interface{}{}
	argN := 0
	addArg := func(v interface{}) int {
		args = append(args, v)
		argN++
		return argN
	}
	if f.Service != "" {
		where += fmt.Sprintf(" AND service = $%d", addArg(f.Service))
	}
	if f.Severity != "" {
		where += fmt.Sprintf(" AND severity = $%d", addArg(f.Severity))
	}
	if f.IncidentID != "" {
		where += fmt.Sprintf(" AND incident_id = $%d", addArg(f.IncidentID))
	}

	var total int64
	if err := r.db.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM alerts "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count alerts: %w", err)
	}

	page, pageSize := f.Page, f.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	limitArg := addArg(pageSize)
	offsetArg := addArg((page - 1) * pageSize)
	query := fmt.Sprintf(`
		SELECT id, service, severity, message, labels, source, fingerprint, timestamp, incident_id, received_at
		FROM alerts %s ORDER BY received_at DESC LIMIT $%d OFFSET $%d`, where, limitArg, offsetArg)

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var out []models.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *a)
	}
	return out, total, rows.Err()
}

// FindCorrelatingIncident takes a transaction-scoped advisory lock keyed
// on the (service, severity) pair so two concurrent ingests for the same
// pair serialize their correlation decision, then looks up the newest
// open-window incident under that lock and hands it to fn.
func (r *pgxAlertRepository) FindCorrelatingIncident(ctx context.Context, service string, severity models.Severity, window time.Duration, fn func(ctx context.Context, tx pgx.Tx, existing *models.Incident) (string, bool, error)) (string, bool, error) {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return "", false, fmt.Errorf("begin correlation tx: %w", err)
	}
	defer tx.Rollback(ctx)

	lockKey := correlationLockKey(service, severity)
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, lockKey); err != nil {
		return "", false, fmt.Errorf("acquire correlation lock: %w", err)
	}

	cutoff := time.Now().Add(-window)
	row := tx.QueryRow(ctx, `
		SELECT id, title, service, severity, status, assigned_to, alert_count,
		       created_at, updated_at, acknowledged_at, resolved_at, mtta_seconds, mttr_seconds
		FROM incidents
		WHERE service = $1 AND severity = $2 AND status != 'resolved' AND created_at > $3
		ORDER BY created_at DESC
		LIMIT 1`, service, severity, cutoff)

	existing, err := scanIncident(row)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return "", false, fmt.Errorf("query correlating incident: %w", err)
	}
	if errors.Is(err, ErrNotFound) {
		existing = nil
	}

	incidentID, wasNew, err := fn(ctx, tx, existing)
	if err != nil {
		return "", false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return "", false, fmt.Errorf("commit correlation tx: %w", err)
	}
	return incidentID, wasNew, nil
}

func (r *pgxAlertRepository) IncrementAlertCount(ctx context.Context, tx pgx.Tx, incidentID string) error {
	_, err := tx.Exec(ctx, `UPDATE incidents SET alert_count = alert_count + 1 WHERE id = $1`, incidentID)
	if err != nil {
		return fmt.Errorf("increment alert count: %w", err)
	}
	return nil
}

// correlationLockKey derives a stable int64 advisory-lock key from a
// (service, severity) pair: a 64-bit FNV-1a hash of "service|severity",
// reinterpreted as an int64.
func correlationLockKey(service string, severity models.Severity) int64 {
	h := fnv64a(service + "|" + string(severity))
	return int64(h)
}

func fnv64a(s string) uint64 {
	const offset64 = 14695981039346656037
	const prime64 = 1099511628211
	hash := uint64(offset64)
	for i := 0; i < len(s); i++ {
		hash ^= uint64(s[i])
		hash *= prime64
	}
	return hash
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAlert(row rowScanner) (*models.Alert, error) {
	var a models.Alert
	var labels []byte
	var source, incidentID *string
	if err := row.Scan(&a.ID, &a.Service, &a.Severity, &a.Message, &labels, &source, &a.Fingerprint, &a.Timestamp, &incidentID, &a.ReceivedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan alert: %w", err)
	}
	if source != nil {
		a.Source = *source
	}
	a.IncidentID = incidentID
	if len(labels) > 0 {
		_ = json.Unmarshal(labels, &a.Labels)
	}
	return &a, nil
}
