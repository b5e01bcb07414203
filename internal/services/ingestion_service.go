package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"oncall-platform/internal/crossclient"
	"oncall-platform/internal/metrics"
	"oncall-platform/internal/models"
	"oncall-platform/internal/repository"
	"oncall-platform/pkg/apierror"
)

// IngestionService implements Alert Ingestion's validation, fingerprint,
// correlation-window, and create/fallback algorithms.
type IngestionService struct {
	alerts    repository.AlertRepository
	incidents *crossclient.IncidentClient
	window    time.Duration
	logger    *zap.Logger
	metrics   *metrics.IngestionMetrics
}

func NewIngestionService(alerts repository.AlertRepository, incidents *crossclient.IncidentClient, window time.Duration, logger *zap.Logger, m *metrics.IngestionMetrics) *IngestionService {
	return &IngestionService{alerts: alerts, incidents: incidents, window: window, logger: logger, metrics: m}
}

// IngestRequest is the validated input to Ingest.
type IngestRequest struct {
	Service   string
	Severity  models.Severity
	Message   string
	Labels    map[string]string
	Source    string
	Timestamp *time.Time
}

// IngestResult is what the handler renders back to the caller.
type IngestResult struct {
	AlertID    string
	IncidentID string
	Action     string // "new_incident" | "attached_to_existing_incident"
}

const (
	actionNewIncident        = "new_incident"
	actionAttachedToExisting = "attached_to_existing_incident"
)

var retryBackoffs = []time.Duration{50 * time.Millisecond, 150 * time.Millisecond, 400 * time.Millisecond}

// Ingest validates, fingerprints, and correlates an incoming alert,
// creating or attaching to an incident as the correlation-window
// algorithm dictates.
func (s *IngestionService) Ingest(ctx context.Context, requestID string, req IngestRequest) (*IngestResult, error) {
	start := time.Now()
	defer func() { s.metrics.ProcessingSeconds.Observe(time.Since(start).Seconds()) }()

	if err := validateIngestRequest(req); err != nil {
		return nil, err
	}

	ts := time.Now().UTC()
	if req.Timestamp != nil {
		ts = *req.Timestamp
	}

	alert := &models.Alert{
		Service:     req.Service,
		Severity:    req.Severity,
		Message:     req.Message,
		Labels:      req.Labels,
		Source:      req.Source,
		Fingerprint: Fingerprint(req.Service, req.Severity, req.Message),
		Timestamp:   ts,
		ReceivedAt:  time.Now().UTC(),
	}

	incidentID, wasNew, err := s.alerts.FindCorrelatingIncident(ctx, req.Service, req.Severity, s.window,
		func(txCtx context.Context, tx pgx.Tx, existing *models.Incident) (string, bool, error) {
			if existing != nil {
				if err := s.alerts.IncrementAlertCount(txCtx, tx, existing.ID); err != nil {
					return "", false, err
				}
				return existing.ID, false, nil
			}
			id, err := s.createOrFallback(txCtx, tx, requestID, req)
			if err != nil {
				return "", false, err
			}
			return id, true, nil
		})
	if err != nil {
		s.logger.Error("correlation failed", zap.Error(err), zap.String("service", req.Service))
		return nil, apierror.Persistence("could not correlate alert", err)
	}

	action := actionAttachedToExisting
	if wasNew {
		action = actionNewIncident
	}

	alert.IncidentID = &incidentID
	if err := s.alerts.Insert(ctx, alert); err != nil {
		return nil, apierror.Persistence("could not store alert", err)
	}

	s.metrics.AlertsReceivedTotal.WithLabelValues(string(req.Severity)).Inc()
	s.metrics.AlertsCorrelatedTotal.WithLabelValues(action).Inc()

	return &IngestResult{AlertID: alert.ID, IncidentID: incidentID, Action: action}, nil
}

// createOrFallback runs inside the correlation-serializing transaction:
// it first tries the remote create path (bounded retries with short
// backoff), and on exhaustion falls back to inserting the incident
// directly using the same transaction.
func (s *IngestionService) createOrFallback(ctx context.Context, tx pgx.Tx, requestID string, req IngestRequest) (string, error) {
	title := synthesizeTitle(req.Message)

	var lastErr error
	for attempt := 0; attempt <= len(retryBackoffs); attempt++ {
		id, err := s.incidents.Create(ctx, requestID, crossclient.CreateIncidentRequest{
			Title:    title,
			Service:  req.Service,
			Severity: string(req.Severity),
		})
		if err == nil {
			return id, nil
		}
		lastErr = err
		if attempt < len(retryBackoffs) {
			select {
			case <-time.After(retryBackoffs[attempt]):
			case <-ctx.Done():
				lastErr = ctx.Err()
				attempt = len(retryBackoffs)
			}
		}
	}

	s.logger.Warn("incident management unreachable, falling back to local creation",
		zap.Error(lastErr), zap.String("service", req.Service))

	now := time.Now().UTC()
	inc := &models.Incident{
		Title:      title,
		Service:    req.Service,
		Severity:   req.Severity,
		Status:     models.StatusOpen,
		AlertCount: 1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := repository.CreateIncidentInTx(ctx, tx, inc); err != nil {
		return "", err
	}
	if err := repository.AddTimelineEventInTx(ctx, tx, &models.TimelineEvent{
		IncidentID: inc.ID,
		EventType:  models.EventCreated,
		Actor:      "alert-ingestion-fallback",
		Detail:     map[string]interface{}{"reason": "incident-management unreachable"},
	}); err != nil {
		return "", err
	}
	return inc.ID, nil
}

// Get returns a single alert by id.
func (s *IngestionService) Get(ctx context.Context, id string) (*models.Alert, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apierror.BadRequest("alert id must be a valid uuid")
	}
	a, err := s.alerts.GetByID(ctx, id)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, apierror.NotFound("alert not found")
		}
		return nil, apierror.Persistence("could not load alert", err)
	}
	return a, nil
}

// List returns a paginated, filtered alert listing.
func (s *IngestionService) List(ctx context.Context, f models.AlertFilter) ([]models.Alert, int64, error) {
	items, total, err := s.alerts.List(ctx, f)
	if err != nil {
		return nil, 0, apierror.Persistence("could not list alerts", err)
	}
	return items, total, nil
}

func synthesizeTitle(message string) string {
	words := strings.Fields(message)
	if len(words) > 8 {
		words = words[:8]
	}
	title := strings.Join(words, " ")
	if title == "" {
		title = "Untitled alert"
	}
	return title
}

func validateIngestRequest(req IngestRequest) error {
	if strings.TrimSpace(req.Service) == "" {
		return apierror.Validation("service is required")
	}
	if strings.TrimSpace(req.Message) == "" {
		return apierror.Validation("message is required")
	}
	if !req.Severity.Valid() {
		return apierror.Validation("severity must be one of critical, high, medium, low")
	}
	return nil
}
