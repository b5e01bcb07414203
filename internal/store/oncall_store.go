package store

import (
	"sync"

	"oncall-platform/internal/models"
)

// OnCallStore holds every piece of on-call state: schedules keyed by
// team, at most one override per team, a bounded escalation ring, a
// bounded audit-history ring, and the process-local "last observed
// primary" map used only to detect rotation changes (lossy, not a
// source of truth, per the design notes).
type OnCallStore struct {
	mu            sync.RWMutex
	schedules     map[string]*models.Schedule
	overrides     map[string]*models.Override
	lastPrimary   map[string]string
	escalations   *Ring[models.Escalation]
	history       *Ring[models.HistoryEntry]
}

func NewOnCallStore(maxEscalations, maxHistory int) *OnCallStore {
	return &OnCallStore{
		schedules:   make(map[string]*models.Schedule),
		overrides:   make(map[string]*models.Override),
		lastPrimary: make(map[string]string),
		escalations: NewRing[models.Escalation](maxEscalations),
		history:     NewRing[models.HistoryEntry](maxHistory),
	}
}

func (s *OnCallStore) PutSchedule(sch *models.Schedule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules[sch.Team] = sch
}

func (s *OnCallStore) GetSchedule(team string) (*models.Schedule, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sch, ok := s.schedules[team]
	return sch, ok
}

func (s *OnCallStore) DeleteSchedule(team string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.schedules, team)
	delete(s.overrides, team)
	delete(s.lastPrimary, team)
}

func (s *OnCallStore) ListSchedules() []*models.Schedule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Schedule, 0, len(s.schedules))
	for _, sch := range s.schedules {
		out = append(out, sch)
	}
	return out
}

func (s *OnCallStore) ScheduleCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.schedules)
}

// PutOverride eagerly overwrites any existing override for the team.
func (s *OnCallStore) PutOverride(o *models.Override) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[o.Team] = o
}

func (s *OnCallStore) DeleteOverride(team string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.overrides, team)
}

// GetActiveOverride returns the team's override if present and not
// expired; an expired override is lazily evicted, and the second return
// value tells the caller so it can append an override_expired history
// entry.
func (s *OnCallStore) GetActiveOverride(team string, expired func(*models.Override) bool) (o *models.Override, justExpired bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.overrides[team]
	if !ok {
		return nil, false
	}
	if expired(o) {
		delete(s.overrides, team)
		return nil, true
	}
	return o, false
}

// ListActiveOverrides returns all overrides not expired, lazily evicting
// any expired ones found along the way.
func (s *OnCallStore) ListActiveOverrides(expired func(*models.Override) bool) (active []*models.Override, evictedTeams []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for team, o := range s.overrides {
		if expired(o) {
			delete(s.overrides, team)
			evictedTeams = append(evictedTeams, team)
			continue
		}
		active = append(active, o)
	}
	return active, evictedTeams
}

func (s *OnCallStore) ActiveOverrideCount(expired func(*models.Override) bool) int {
	active, _ := s.ListActiveOverrides(expired)
	return len(active)
}

// ObserveLastPrimary records the given primary as the last one observed
// for the team and reports whether it differs from what was recorded
// before (a rotation change).
func (s *OnCallStore) ObserveLastPrimary(team, primaryKey string) (changed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.lastPrimary[team]
	s.lastPrimary[team] = primaryKey
	return ok && prev != primaryKey
}

func (s *OnCallStore) PushEscalation(e models.Escalation) {
	s.escalations.Push(e)
}

func (s *OnCallStore) Escalations(team string, limit int) []models.Escalation {
	items := s.escalations.Filter(func(e models.Escalation) bool {
		return team == "" || e.Team == team
	})
	if limit > 0 && len(items) > limit {
		items = items[len(items)-limit:]
	}
	return items
}

func (s *OnCallStore) EscalationCount() int {
	return s.escalations.Len()
}

func (s *OnCallStore) PushHistory(h models.HistoryEntry) {
	s.history.Push(h)
}

func (s *OnCallStore) History(team string, eventType models.HistoryEventType) []models.HistoryEntry {
	return s.history.Filter(func(h models.HistoryEntry) bool {
		if team != "" && h.Team != team {
			return false
		}
		if eventType != "" && h.EventType != eventType {
			return false
		}
		return true
	})
}
