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

// IncidentRepository is the storage boundary Incident Management depends
// on. Alert Ingestion's local-fallback path does not use it; it writes
// through CreateIncidentInTx and AddTimelineEventInTx below.
type IncidentRepository interface {
	Create(ctx context.Context, inc *models.Incident) error
	GetByID(ctx context.Context, id string) (*models.Incident, error)
	List(ctx context.Context, f models.IncidentFilter) ([]models.Incident, int64, error)
	// Update runs fn inside a single transaction holding a row lock on
	// the incident, so PATCH is atomic: read, validate, mutate, and
	// append timeline are one transaction with no interleaving.
	Update(ctx context.Context, id string, fn func(ctx context.Context, tx pgx.Tx, current *models.Incident) error) error
	AddNote(ctx context.Context, tx pgx.Tx, note *models.IncidentNote) error
	AddTimelineEvent(ctx context.Context, tx pgx.Tx, ev *models.TimelineEvent) error
	Notes(ctx context.Context, incidentID string) ([]models.IncidentNote, error)
	Timeline(ctx context.Context, incidentID string) ([]models.TimelineEvent, error)
	Stats(ctx context.Context) (*models.IncidentStats, error)
	IncrementAlertCount(ctx context.Context, tx pgx.Tx, incidentID string) error
}

type pgxIncidentRepository struct {
	db *Database
}

func NewIncidentRepository(db *Database) IncidentRepository {
	return &pgxIncidentRepository{db: db}
}

func (r *pgxIncidentRepository) Create(ctx context.Context, inc *models.Incident) error {
	if inc.ID == "" {
		inc.ID = uuid.NewString()
	}
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO incidents (id, title, service, severity, status, assigned_to, alert_count, created_at, updated_at, acknowledged_at, resolved_at, mtta_seconds, mttr_seconds)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		inc.ID, inc.Title, inc.Service, inc.Severity, inc.Status, inc.AssignedTo, inc.AlertCount,
		inc.CreatedAt, inc.UpdatedAt, inc.AcknowledgedAt, inc.ResolvedAt, inc.MTTASeconds, inc.MTTRSeconds)
	if err != nil {
		return fmt.Errorf("insert incident: %w", err)
	}
	return nil
}

func (r *pgxIncidentRepository) GetByID(ctx context.Context, id string) (*models.Incident, error) {
	row := r.db.Pool.QueryRow(ctx, incidentSelectSQL+" WHERE id = $1", id)
	return scanIncident(row)
}

const incidentSelectSQL = `
	SELECT id, title, service, severity, status, assigned_to, alert_count,
	       created_at, updated_at, acknowledged_at, resolved_at, mtta_seconds, mttr_seconds
	FROM incidents`

func scanIncident(row rowScanner) (*models.Incident, error) {
	var inc models.Incident
	var assignedTo *string
	if err := row.Scan(&inc.ID, &inc.Title, &inc.Service, &inc.Severity, &inc.Status, &assignedTo, &inc.AlertCount,
		&inc.CreatedAt, &inc.UpdatedAt, &inc.AcknowledgedAt, &inc.ResolvedAt, &inc.MTTASeconds, &inc.MTTRSeconds); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan incident: %w", err)
	}
	inc.AssignedTo = assignedTo
	return &inc, nil
}

func (r *pgxIncidentRepository) List(ctx context.Context, f models.IncidentFilter) ([]models.Incident, int64, error) {
	where := "WHERE 1=1"
	args := []interface{}{}
	argN := 0
	addArg := func(v interface{}) int {
		args = append(args, v)
		argN++
		return argN
	}
	if f.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", addArg(f.Status))
	}
	if f.Severity != "" {
		where += fmt.Sprintf(" AND severity = $%d", addArg(f.Severity))
	}
	if f.Service != "" {
		where += fmt.Sprintf(" AND service = $%d", addArg(f.Service))
	}

	var total int64
	if err := r.db.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM incidents "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count incidents: %w", err)
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
	query := fmt.Sprintf("%s %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d", incidentSelectSQL, where, limitArg, offsetArg)

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list incidents: %w", err)
	}
	defer rows.Close()

	var out []models.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *inc)
	}
	return out, total, rows.Err()
}

func (r *pgxIncidentRepository) Update(ctx context.Context, id string, fn func(ctx context.Context, tx pgx.Tx, current *models.Incident) error) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin update tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, incidentSelectSQL+" WHERE id = $1 FOR UPDATE", id)
	current, err := scanIncident(row)
	if err != nil {
		return err
	}

	if err := fn(ctx, tx, current); err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		UPDATE incidents SET title=$2, status=$3, assigned_to=$4, alert_count=$5,
			acknowledged_at=$6, resolved_at=$7, mtta_seconds=$8, mttr_seconds=$9
		WHERE id=$1`,
		current.ID, current.Title, current.Status, current.AssignedTo, current.AlertCount,
		current.AcknowledgedAt, current.ResolvedAt, current.MTTASeconds, current.MTTRSeconds)
	if err != nil {
		return fmt.Errorf("update incident: %w", err)
	}

	return tx.Commit(ctx)
}

func (r *pgxIncidentRepository) IncrementAlertCount(ctx context.Context, tx pgx.Tx, incidentID string) error {
	_, err := tx.Exec(ctx, `UPDATE incidents SET alert_count = alert_count + 1 WHERE id = $1`, incidentID)
	if err != nil {
		return fmt.Errorf("increment alert count: %w", err)
	}
	return nil
}

func (r *pgxIncidentRepository) AddNote(ctx context.Context, tx pgx.Tx, note *models.IncidentNote) error {
	if note.ID == "" {
		note.ID = uuid.NewString()
	}
	if note.CreatedAt.IsZero() {
		note.CreatedAt = time.Now().UTC()
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO incident_notes (id, incident_id, author, content, created_at)
		VALUES ($1,$2,$3,$4,$5)`, note.ID, note.IncidentID, note.Author, note.Content, note.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert note: %w", err)
	}
	return nil
}

func (r *pgxIncidentRepository) AddTimelineEvent(ctx context.Context, tx pgx.Tx, ev *models.TimelineEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	detail, err := json.Marshal(ev.Detail)
	if err != nil {
		return fmt.Errorf("marshal timeline detail: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO incident_timeline (id, incident_id, event_type, actor, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`, ev.ID, ev.IncidentID, ev.EventType, ev.Actor, detail, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert timeline event: %w", err)
	}
	return nil
}

func (r *pgxIncidentRepository) Notes(ctx context.Context, incidentID string) ([]models.IncidentNote, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, incident_id, author, content, created_at FROM incident_notes
		WHERE incident_id = $1 ORDER BY created_at ASC`, incidentID)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	var out []models.IncidentNote
	for rows.Next() {
		var n models.IncidentNote
		if err := rows.Scan(&n.ID, &n.IncidentID, &n.Author, &n.Content, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *pgxIncidentRepository) Timeline(ctx context.Context, incidentID string) ([]models.TimelineEvent, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, incident_id, event_type, actor, detail, created_at FROM incident_timeline
		WHERE incident_id = $1 ORDER BY created_at ASC`, incidentID)
	if err != nil {
		return nil, fmt.Errorf("list timeline: %w", err)
	}
	defer rows.Close()

	var out []models.TimelineEvent
	for rows.Next() {
		var ev models.TimelineEvent
		var detail []byte
		if err := rows.Scan(&ev.ID, &ev.IncidentID, &ev.EventType, &ev.Actor, &detail, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan timeline event: %w", err)
		}
		if len(detail) > 0 {
			_ = json.Unmarshal(detail, &ev.Detail)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (r *pgxIncidentRepository) Stats(ctx context.Context) (*models.IncidentStats, error) {
	stats := &models.IncidentStats{CountsByStatus: map[models.IncidentStatus]int{}}

	rows, err := r.db.Pool.Query(ctx, `SELECT status, COUNT(*) FROM incidents GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	for rows.Next() {
		var status models.IncidentStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		stats.CountsByStatus[status] = count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var meanMTTA, meanMTTR *float64
	err = r.db.Pool.QueryRow(ctx, `SELECT AVG(mtta_seconds), AVG(mttr_seconds) FROM incidents`).Scan(&meanMTTA, &meanMTTR)
	if err != nil {
		return nil, fmt.Errorf("average mtta/mttr: %w", err)
	}
	stats.MeanMTTA = meanMTTA
	stats.MeanMTTR = meanMTTR

	return stats, nil
}

// CreateIncidentInTx inserts an incident using the given transaction,
// for Alert Ingestion's local-fallback path which must write the
// incident inside the same advisory-locked transaction that made the
// correlation decision.
func CreateIncidentInTx(ctx context.Context, tx pgx.Tx, inc *models.Incident) error {
	if inc.ID == "" {
		inc.ID = uuid.NewString()
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO incidents (id, title, service, severity, status, assigned_to, alert_count, created_at, updated_at, acknowledged_at, resolved_at, mtta_seconds, mttr_seconds)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		inc.ID, inc.Title, inc.Service, inc.Severity, inc.Status, inc.AssignedTo, inc.AlertCount,
		inc.CreatedAt, inc.UpdatedAt, inc.AcknowledgedAt, inc.ResolvedAt, inc.MTTASeconds, inc.MTTRSeconds)
	if err != nil {
		return fmt.Errorf("insert incident (fallback): %w", err)
	}
	return nil
}

// AddTimelineEventInTx appends a timeline event using the given
// transaction, for the same fallback path.
func AddTimelineEventInTx(ctx context.Context, tx pgx.Tx, ev *models.TimelineEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	detail, err := json.Marshal(ev.Detail)
	if err != nil {
		return fmt.Errorf("marshal timeline detail: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO incident_timeline (id, incident_id, event_type, actor, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`, ev.ID, ev.IncidentID, ev.EventType, ev.Actor, detail, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert timeline event (fallback): %w", err)
	}
	return nil
}
