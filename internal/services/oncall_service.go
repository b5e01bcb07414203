package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"oncall-platform/internal/crossclient"
	"oncall-platform/internal/metrics"
	"oncall-platform/internal/models"
	"oncall-platform/internal/store"
	"oncall-platform/pkg/apierror"
)

// OnCallService implements schedule CRUD, the rotation algorithm,
// override lifecycle, and escalation — all against the in-memory store,
// per the spec's allowance for non-durable on-call state.
type OnCallService struct {
	store                *store.OnCallStore
	notify               *crossclient.NotificationClient
	defaultOverrideHours int
	logger               *zap.Logger
	metrics              *metrics.OnCallMetrics
}

func NewOnCallService(s *store.OnCallStore, notify *crossclient.NotificationClient, defaultOverrideHours int, logger *zap.Logger, m *metrics.OnCallMetrics) *OnCallService {
	return &OnCallService{store: s, notify: notify, defaultOverrideHours: defaultOverrideHours, logger: logger, metrics: m}
}

// CreateSchedule creates or replaces a team's schedule. Rejects with a
// bad-request error when no primary member is present.
func (s *OnCallService) CreateSchedule(ctx context.Context, team string, rotationType models.RotationType, members []models.Member) (*models.Schedule, error) {
	if team == "" {
		return nil, apierror.Validation("team is required")
	}
	if !rotationType.Valid() {
		return nil, apierror.Validation("rotation_type must be one of daily, weekly, biweekly")
	}
	if !hasPrimary(members) {
		return nil, apierror.BadRequest("schedule must have at least one primary member")
	}

	now := time.Now().UTC()
	sch := &models.Schedule{
		ID:           uuid.NewString(),
		Team:         team,
		RotationType: rotationType,
		Members:      members,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.store.PutSchedule(sch)
	s.store.PushHistory(models.HistoryEntry{
		ID: uuid.NewString(), Team: team, EventType: models.HistoryScheduleCreated, CreatedAt: now,
	})
	s.metrics.ActiveSchedules.Set(float64(s.store.ScheduleCount()))
	return sch, nil
}

func hasPrimary(members []models.Member) bool {
	for _, m := range members {
		if m.Role == models.RolePrimary {
			return true
		}
	}
	return false
}

func (s *OnCallService) GetSchedule(team string) (*models.Schedule, error) {
	sch, ok := s.store.GetSchedule(team)
	if !ok {
		return nil, apierror.NotFound("schedule not found")
	}
	return sch, nil
}

func (s *OnCallService) ListSchedules() []*models.Schedule {
	return s.store.ListSchedules()
}

// PatchSchedule applies a partial update: rotation type and/or member
// add/remove. Removing the last primary is rejected.
func (s *OnCallService) PatchSchedule(team string, rotationType *models.RotationType, addMembers []models.Member, removeEmails []string) (*models.Schedule, error) {
	sch, err := s.GetSchedule(team)
	if err != nil {
		return nil, err
	}

	updated := *sch
	members := make([]models.Member, len(sch.Members))
	copy(members, sch.Members)

	if len(removeEmails) > 0 {
		removeSet := make(map[string]bool, len(removeEmails))
		for _, e := range removeEmails {
			removeSet[e] = true
		}
		kept := members[:0]
		for _, m := range members {
			if !removeSet[m.Email] {
				kept = append(kept, m)
			}
		}
		members = kept
	}
	members = append(members, addMembers...)

	if !hasPrimary(members) {
		return nil, apierror.BadRequest("cannot remove the last primary member")
	}
	if rotationType != nil {
		if !rotationType.Valid() {
			return nil, apierror.Validation("rotation_type must be one of daily, weekly, biweekly")
		}
		updated.RotationType = *rotationType
	}
	updated.Members = members
	updated.UpdatedAt = time.Now().UTC()

	s.store.PutSchedule(&updated)
	s.store.PushHistory(models.HistoryEntry{ID: uuid.NewString(), Team: team, EventType: models.HistoryScheduleUpdated, CreatedAt: updated.UpdatedAt})
	return &updated, nil
}

func (s *OnCallService) DeleteSchedule(team string) error {
	if _, ok := s.store.GetSchedule(team); !ok {
		return apierror.NotFound("schedule not found")
	}
	s.store.DeleteSchedule(team)
	s.store.PushHistory(models.HistoryEntry{ID: uuid.NewString(), Team: team, EventType: models.HistoryScheduleDeleted, CreatedAt: time.Now().UTC()})
	s.metrics.ActiveSchedules.Set(float64(s.store.ScheduleCount()))
	return nil
}

// rotationIndex derives the time index for a rotation type, per the
// day-of-year / ISO-week / biweek algorithm.
func rotationIndex(rotationType models.RotationType, t time.Time) int {
	switch rotationType {
	case models.RotationDaily:
		return t.YearDay()
	case models.RotationWeekly:
		_, week := t.ISOWeek()
		return week
	case models.RotationBiweekly:
		_, week := t.ISOWeek()
		return week / 2
	default:
		return 0
	}
}

// Current computes the current primary/secondary for a team, applying
// any active override and detecting rotation changes for the
// process-local, best-effort notification optimization.
func (s *OnCallService) Current(ctx context.Context, requestID, team string) (*models.CurrentOnCall, error) {
	sch, ok := s.store.GetSchedule(team)
	if !ok {
		return nil, apierror.NotFound("schedule not found")
	}

	s.metrics.LookupsTotal.WithLabelValues(team).Inc()

	now := time.Now().UTC()
	primaries := sch.Primaries()
	secondaries := sch.Secondaries()

	var primary *models.ResolvedResponder
	if len(primaries) > 0 {
		idx := rotationIndex(sch.RotationType, now) % len(primaries)
		m := primaries[idx]
		primary = &models.ResolvedResponder{Name: m.Name, Email: m.Email}
	}

	var secondary *models.ResolvedResponder
	if len(secondaries) > 0 {
		idx := rotationIndex(sch.RotationType, now) % len(secondaries)
		m := secondaries[idx]
		secondary = &models.ResolvedResponder{Name: m.Name, Email: m.Email}
	}

	override, justExpired := s.store.GetActiveOverride(team, func(o *models.Override) bool { return o.Expired(now) })
	if justExpired {
		s.store.PushHistory(models.HistoryEntry{ID: uuid.NewString(), Team: team, EventType: models.HistoryOverrideExpired, CreatedAt: now})
	}
	if override != nil {
		expires := override.ExpiresAt
		primary = &models.ResolvedResponder{
			Name: override.Name, Email: override.Email, Override: true, Reason: override.Reason, ExpiresAt: &expires,
		}
	}

	if primary != nil {
		if s.store.ObserveLastPrimary(team, primary.Email) {
			s.metrics.RotationChanges.WithLabelValues(team).Inc()
			s.store.PushHistory(models.HistoryEntry{ID: uuid.NewString(), Team: team, EventType: models.HistoryRotationChange, CreatedAt: now})
			s.notifyBestEffort(ctx, requestID, team, fmt.Sprintf("%s is now on-call for %s", primary.Name, team))
		}
	}

	return &models.CurrentOnCall{
		Team: team, Primary: primary, Secondary: secondary, ScheduleID: sch.ID, RotationType: sch.RotationType,
	}, nil
}

func (s *OnCallService) notifyBestEffort(ctx context.Context, requestID, team, message string) {
	_, err := s.notify.Notify(ctx, requestID, crossclient.NotifyRequest{
		Channel:   "mock",
		Recipient: team,
		Message:   message,
	})
	if err != nil {
		s.logger.Warn("dependency_degraded: rotation-change notification failed", zap.Error(err), zap.String("team", team))
	}
}

// SetOverride eagerly cleans expired overrides, then overwrites any
// existing override for the team with the new one.
func (s *OnCallService) SetOverride(team, name, email, reason string, durationHours int) (*models.Override, error) {
	if team == "" || name == "" || email == "" {
		return nil, apierror.Validation("team, user_name, and user_email are required")
	}
	if durationHours == 0 {
		durationHours = s.defaultOverrideHours
	}
	if durationHours < 1 || durationHours > 168 {
		return nil, apierror.Validation("duration_hours must be between 1 and 168")
	}

	now := time.Now().UTC()
	_, expiredTeams := s.store.ListActiveOverrides(func(o *models.Override) bool { return o.Expired(now) })
	for _, expiredTeam := range expiredTeams {
		s.store.PushHistory(models.HistoryEntry{ID: uuid.NewString(), Team: expiredTeam, EventType: models.HistoryOverrideExpired, CreatedAt: now})
	}
	o := &models.Override{
		Team: team, Name: name, Email: email, Reason: reason,
		CreatedAt: now, ExpiresAt: now.Add(time.Duration(durationHours) * time.Hour),
	}
	s.store.PutOverride(o)
	s.store.PushHistory(models.HistoryEntry{
		ID: uuid.NewString(), Team: team, EventType: models.HistoryOverrideSet,
		Detail:    map[string]interface{}{"name": name, "expires_at": o.ExpiresAt},
		CreatedAt: now,
	})
	return o, nil
}

func (s *OnCallService) DeleteOverride(team string) {
	s.store.DeleteOverride(team)
	s.store.PushHistory(models.HistoryEntry{ID: uuid.NewString(), Team: team, EventType: models.HistoryOverrideDeleted, CreatedAt: time.Now().UTC()})
}

func (s *OnCallService) ListActiveOverrides() []*models.Override {
	now := time.Now().UTC()
	active, evictedTeams := s.store.ListActiveOverrides(func(o *models.Override) bool { return o.Expired(now) })
	for _, team := range evictedTeams {
		s.store.PushHistory(models.HistoryEntry{ID: uuid.NewString(), Team: team, EventType: models.HistoryOverrideExpired, CreatedAt: now})
	}
	return active
}

// Escalate resolves the secondary for a team via the rotation algorithm,
// records an escalation entry, and emits a best-effort notification.
func (s *OnCallService) Escalate(ctx context.Context, requestID, team, incidentID, reason string) (*models.Escalation, error) {
	sch, ok := s.store.GetSchedule(team)
	if !ok {
		return nil, apierror.NotFound("schedule not found")
	}
	s.metrics.EscalationsTotal.WithLabelValues(team).Inc()

	secondaries := sch.Secondaries()
	var escalatedTo *models.Member
	if len(secondaries) > 0 {
		idx := rotationIndex(sch.RotationType, time.Now().UTC()) % len(secondaries)
		m := secondaries[idx]
		escalatedTo = &m
	}

	e := models.Escalation{
		ID: uuid.NewString(), Team: team, IncidentID: incidentID, Reason: reason,
		EscalatedTo: escalatedTo, CreatedAt: time.Now().UTC(),
	}
	s.store.PushEscalation(e)
	s.store.PushHistory(models.HistoryEntry{ID: uuid.NewString(), Team: team, EventType: models.HistoryEscalation, CreatedAt: e.CreatedAt})

	if escalatedTo != nil {
		if _, err := s.notify.Notify(ctx, requestID, crossclient.NotifyRequest{
			IncidentID: incidentID,
			Channel:    "mock",
			Recipient:  escalatedTo.Email,
			Message:    fmt.Sprintf("Escalated incident %s to %s", incidentID, escalatedTo.Name),
		}); err != nil {
			s.logger.Warn("dependency_degraded: escalation notification failed", zap.Error(err), zap.String("team", team))
		}
	}

	return &e, nil
}

func (s *OnCallService) Escalations(team string, limit int) []models.Escalation {
	return s.store.Escalations(team, limit)
}

func (s *OnCallService) History(team string, eventType models.HistoryEventType) []models.HistoryEntry {
	return s.store.History(team, eventType)
}

func (s *OnCallService) Teams() []string {
	schedules := s.store.ListSchedules()
	teams := make([]string, 0, len(schedules))
	for _, sch := range schedules {
		teams = append(teams, sch.Team)
	}
	return teams
}

func (s *OnCallService) Stats() models.OnCallStats {
	now := time.Now().UTC()
	active, _ := s.store.ListActiveOverrides(func(o *models.Override) bool { return o.Expired(now) })
	return models.OnCallStats{
		TotalSchedules:   s.store.ScheduleCount(),
		ActiveOverrides:  len(active),
		TotalEscalations: s.store.EscalationCount(),
	}
}
