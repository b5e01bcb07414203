package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"oncall-platform/internal/crossclient"
	"oncall-platform/internal/metrics"
	"oncall-platform/internal/models"
	"oncall-platform/internal/repository"
	"oncall-platform/pkg/apierror"
)

// IncidentService implements the lifecycle state machine, MTTA/MTTR
// derivation, and the fire-and-forget cross-service calls Incident
// Management makes on creation.
type IncidentService struct {
	incidents repository.IncidentRepository
	oncall    *crossclient.OnCallClient
	notify    *crossclient.NotificationClient
	logger    *zap.Logger
	metrics   *metrics.IncidentMetrics

	idempotency   map[string]idempotencyEntry
	idempotencyMu sync.Mutex
	idempotencyTTL time.Duration
}

type idempotencyEntry struct {
	incident  models.Incident
	expiresAt time.Time
}

// NewIncidentService wires the idempotency window from the caller's
// config rather than hardcoding it, so deployments can tune how long a
// repeated Idempotency-Key still short-circuits to the cached incident.
func NewIncidentService(incidents repository.IncidentRepository, oncall *crossclient.OnCallClient, notify *crossclient.NotificationClient, logger *zap.Logger, m *metrics.IncidentMetrics, idempotencyTTL time.Duration) *IncidentService {
	if idempotencyTTL <= 0 {
		idempotencyTTL = 5 * time.Minute
	}
	return &IncidentService{
		incidents:      incidents,
		oncall:         oncall,
		notify:         notify,
		logger:         logger,
		metrics:        m,
		idempotency:    make(map[string]idempotencyEntry),
		idempotencyTTL: idempotencyTTL,
	}
}

// CreateRequest is the validated input to Create.
type CreateRequest struct {
	Title      string
	Service    string
	Severity   models.Severity
	AssignedTo string
}

// Create inserts a new incident, then makes two independent,
// best-effort cross-service calls concurrently: an on-call lookup to
// assign a responder, and a notification dispatch. Neither failure is
// fatal to the creation itself.
func (s *IncidentService) Create(ctx context.Context, requestID, idempotencyKey string, req CreateRequest) (*models.Incident, error) {
	if req.Title == "" || req.Service == "" {
		return nil, apierror.Validation("title and service are required")
	}
	if !req.Severity.Valid() {
		return nil, apierror.Validation("severity must be one of critical, high, medium, low")
	}

	if idempotencyKey != "" {
		if cached, ok := s.lookupIdempotent(idempotencyKey); ok {
			return &cached, nil
		}
	}

	now := time.Now().UTC()
	inc := &models.Incident{
		Title:      req.Title,
		Service:    req.Service,
		Severity:   req.Severity,
		Status:     models.StatusOpen,
		AlertCount: 1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if req.AssignedTo != "" {
		inc.AssignedTo = &req.AssignedTo
	}

	if err := s.incidents.Create(ctx, inc); err != nil {
		return nil, apierror.Persistence("could not create incident", err)
	}
	s.metrics.IncidentsCreatedTotal.WithLabelValues(string(inc.Severity)).Inc()
	s.metrics.IncidentsByStatus.WithLabelValues(string(models.StatusOpen)).Inc()

	s.assignAndNotify(ctx, requestID, inc)

	if idempotencyKey != "" {
		s.storeIdempotent(idempotencyKey, *inc)
	}

	return inc, nil
}

// assignAndNotify runs the on-call lookup and notification dispatch
// concurrently via errgroup; it waits for both, so the whole fan-out is
// bounded by the longer of the two per-call deadlines already embedded in
// each client.
func (s *IncidentService) assignAndNotify(ctx context.Context, requestID string, inc *models.Incident) {
	team := ResolveTeam(inc.Service)

	g, gctx := errgroup.WithContext(context.Background())
	g.Go(func() error {
		resp, err := s.oncall.Current(gctx, requestID, team)
		if err != nil {
			s.logger.Warn("dependency_degraded: oncall lookup failed", zap.Error(err), zap.String("team", team))
			return nil
		}
		if resp.Primary != nil {
			if err := s.incidents.Update(ctx, inc.ID, func(_ context.Context, _ pgx.Tx, current *models.Incident) error {
				current.AssignedTo = &resp.Primary.Email
				return nil
			}); err != nil {
				s.logger.Warn("failed to persist on-call assignment", zap.Error(err))
			} else {
				inc.AssignedTo = &resp.Primary.Email
			}
		}
		return nil
	})
	g.Go(func() error {
		_, err := s.notify.Notify(gctx, requestID, crossclient.NotifyRequest{
			IncidentID: inc.ID,
			Channel:    "mock",
			Recipient:  team,
			Message:    fmt.Sprintf("New %s incident: %s", inc.Severity, inc.Title),
			Severity:   string(inc.Severity),
		})
		if err != nil {
			s.logger.Warn("dependency_degraded: notification dispatch failed", zap.Error(err), zap.String("incident_id", inc.ID))
		}
		return nil
	})
	_ = g.Wait()
}

func (s *IncidentService) lookupIdempotent(key string) (models.Incident, bool) {
	s.idempotencyMu.Lock()
	defer s.idempotencyMu.Unlock()
	entry, ok := s.idempotency[key]
	if !ok || time.Now().After(entry.expiresAt) {
		delete(s.idempotency, key)
		return models.Incident{}, false
	}
	return entry.incident, true
}

func (s *IncidentService) storeIdempotent(key string, inc models.Incident) {
	s.idempotencyMu.Lock()
	defer s.idempotencyMu.Unlock()
	s.idempotency[key] = idempotencyEntry{incident: inc, expiresAt: time.Now().Add(s.idempotencyTTL)}
}

// Get returns an incident plus its notes and timeline. Linked alerts are
// not loaded, so the detail's Alerts field is left empty.
func (s *IncidentService) Get(ctx context.Context, id string) (*models.IncidentDetail, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apierror.BadRequest("incident id must be a valid uuid")
	}
	inc, err := s.incidents.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOrPersistence(err, "incident")
	}
	notes, err := s.incidents.Notes(ctx, id)
	if err != nil {
		return nil, apierror.Persistence("could not load notes", err)
	}
	timeline, err := s.incidents.Timeline(ctx, id)
	if err != nil {
		return nil, apierror.Persistence("could not load timeline", err)
	}
	return &models.IncidentDetail{Incident: *inc, Notes: notes, Timeline: timeline}, nil
}

func (s *IncidentService) List(ctx context.Context, f models.IncidentFilter) ([]models.Incident, int64, error) {
	items, total, err := s.incidents.List(ctx, f)
	if err != nil {
		return nil, 0, apierror.Persistence("could not list incidents", err)
	}
	return items, total, nil
}

func (s *IncidentService) Metrics(ctx context.Context, id string) (*models.Incident, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apierror.BadRequest("incident id must be a valid uuid")
	}
	inc, err := s.incidents.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOrPersistence(err, "incident")
	}
	return inc, nil
}

func (s *IncidentService) Stats(ctx context.Context) (*models.IncidentStats, error) {
	stats, err := s.incidents.Stats(ctx)
	if err != nil {
		return nil, apierror.Persistence("could not compute stats", err)
	}
	return stats, nil
}

// PatchRequest carries the independently-optional fields a PATCH may set.
type PatchRequest struct {
	Status      *models.IncidentStatus
	AssignedTo  *string
	NoteAuthor  string
	NoteContent string
	HasNote     bool
}

// Patch applies every present field in a single transaction: status
// read, validation, mutation, derived-field computation, and timeline
// append happen atomically, so no interleaved PATCH observes partial
// state.
func (s *IncidentService) Patch(ctx context.Context, id string, req PatchRequest) (*models.Incident, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apierror.BadRequest("incident id must be a valid uuid")
	}

	var result models.Incident
	var noteToAdd *models.IncidentNote
	var timelineEvents []*models.TimelineEvent
	var statusChanged bool
	var previousStatus models.IncidentStatus

	err := s.incidents.Update(ctx, id, func(txCtx context.Context, tx pgx.Tx, current *models.Incident) error {
		now := time.Now().UTC()

		if req.Status != nil && *req.Status != current.Status {
			if !models.CanTransition(current.Status, *req.Status) {
				return apierror.Conflict(fmt.Sprintf("illegal transition from %s to %s", current.Status, *req.Status))
			}
			oldStatus := current.Status
			statusChanged = true
			previousStatus = oldStatus
			current.Status = *req.Status

			if (current.Status == models.StatusAcknowledged || current.Status == models.StatusInProgress) && current.AcknowledgedAt == nil {
				current.AcknowledgedAt = &now
				mtta := now.Sub(current.CreatedAt).Seconds()
				current.MTTASeconds = &mtta
			}
			if current.Status == models.StatusResolved {
				current.ResolvedAt = &now
				mttr := now.Sub(current.CreatedAt).Seconds()
				current.MTTRSeconds = &mttr
				if current.AcknowledgedAt == nil {
					current.AcknowledgedAt = &now
					current.MTTASeconds = &mttr
				}
			}
			timelineEvents = append(timelineEvents, &models.TimelineEvent{
				IncidentID: id,
				EventType:  models.EventStatusChanged,
				Actor:      "operator",
				Detail:     map[string]interface{}{"old_status": oldStatus, "new_status": current.Status},
			})
		}

		if req.AssignedTo != nil && (current.AssignedTo == nil || *current.AssignedTo != *req.AssignedTo) {
			current.AssignedTo = req.AssignedTo
			timelineEvents = append(timelineEvents, &models.TimelineEvent{
				IncidentID: id,
				EventType:  models.EventAssigned,
				Actor:      "operator",
				Detail:     map[string]interface{}{"assigned_to": *req.AssignedTo},
			})
		}

		if req.HasNote {
			author := req.NoteAuthor
			if author == "" {
				author = "operator"
			}
			noteToAdd = &models.IncidentNote{IncidentID: id, Author: author, Content: req.NoteContent, CreatedAt: now}
			timelineEvents = append(timelineEvents, &models.TimelineEvent{
				IncidentID: id,
				EventType:  models.EventNoteAdded,
				Actor:      author,
			})
		}

		current.UpdatedAt = now
		result = *current

		if noteToAdd != nil {
			if err := s.incidents.AddNote(txCtx, tx, noteToAdd); err != nil {
				return err
			}
		}
		for _, ev := range timelineEvents {
			if err := s.incidents.AddTimelineEvent(txCtx, tx, ev); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if apiErr, ok := err.(*apierror.Error); ok {
			return nil, apiErr
		}
		return nil, notFoundOrPersistence(err, "incident")
	}

	if statusChanged {
		s.metrics.IncidentsByStatus.WithLabelValues(string(previousStatus)).Dec()
		s.metrics.IncidentsByStatus.WithLabelValues(string(result.Status)).Inc()
		if result.MTTASeconds != nil {
			s.metrics.MTTASeconds.Observe(*result.MTTASeconds)
		}
		if result.MTTRSeconds != nil {
			s.metrics.MTTRSeconds.Observe(*result.MTTRSeconds)
		}
	}

	return &result, nil
}

func notFoundOrPersistence(err error, what string) error {
	if err == repository.ErrNotFound {
		return apierror.NotFound(what + " not found")
	}
	return apierror.Persistence("could not load "+what, err)
}
