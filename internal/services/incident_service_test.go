package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"oncall-platform/internal/crossclient"
	"oncall-platform/internal/metrics"
	"oncall-platform/internal/models"
	"oncall-platform/internal/repository"
	"oncall-platform/pkg/apierror"
)

// fakeIncidentRepository is an in-memory stand-in for
// repository.IncidentRepository. Update loads the current row, runs fn
// against a working copy under a nil pgx.Tx (fn never touches the tx
// directly in this service), and persists the result only on success.
type fakeIncidentRepository struct {
	mu        sync.Mutex
	incidents map[string]models.Incident
	notes     map[string][]models.IncidentNote
	timeline  map[string][]models.TimelineEvent
}

func newFakeIncidentRepository() *fakeIncidentRepository {
	return &fakeIncidentRepository{
		incidents: make(map[string]models.Incident),
		notes:     make(map[string][]models.IncidentNote),
		timeline:  make(map[string][]models.TimelineEvent),
	}
}

func (f *fakeIncidentRepository) Create(ctx context.Context, inc *models.Incident) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if inc.ID == "" {
		inc.ID = uuid.NewString()
	}
	f.incidents[inc.ID] = *inc
	return nil
}

func (f *fakeIncidentRepository) GetByID(ctx context.Context, id string) (*models.Incident, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inc, ok := f.incidents[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := inc
	return &cp, nil
}

func (f *fakeIncidentRepository) List(ctx context.Context, filter models.IncidentFilter) ([]models.Incident, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Incident, 0, len(f.incidents))
	for _, inc := range f.incidents {
		out = append(out, inc)
	}
	return out, int64(len(out)), nil
}

func (f *fakeIncidentRepository) Update(ctx context.Context, id string, fn func(ctx context.Context, tx pgx.Tx, current *models.Incident) error) error {
	f.mu.Lock()
	inc, ok := f.incidents[id]
	f.mu.Unlock()
	if !ok {
		return repository.ErrNotFound
	}
	working := inc
	if err := fn(ctx, nil, &working); err != nil {
		return err
	}
	f.mu.Lock()
	f.incidents[id] = working
	f.mu.Unlock()
	return nil
}

func (f *fakeIncidentRepository) AddNote(ctx context.Context, tx pgx.Tx, note *models.IncidentNote) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if note.ID == "" {
		note.ID = uuid.NewString()
	}
	f.notes[note.IncidentID] = append(f.notes[note.IncidentID], *note)
	return nil
}

func (f *fakeIncidentRepository) AddTimelineEvent(ctx context.Context, tx pgx.Tx, ev *models.TimelineEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	f.timeline[ev.IncidentID] = append(f.timeline[ev.IncidentID], *ev)
	return nil
}

func (f *fakeIncidentRepository) Notes(ctx context.Context, incidentID string) ([]models.IncidentNote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.IncidentNote(nil), f.notes[incidentID]...), nil
}

func (f *fakeIncidentRepository) Timeline(ctx context.Context, incidentID string) ([]models.TimelineEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.TimelineEvent(nil), f.timeline[incidentID]...), nil
}

func (f *fakeIncidentRepository) Stats(ctx context.Context) (*models.IncidentStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[models.IncidentStatus]int)
	for _, inc := range f.incidents {
		counts[inc.Status]++
	}
	return &models.IncidentStats{CountsByStatus: counts}, nil
}

func (f *fakeIncidentRepository) IncrementAlertCount(ctx context.Context, tx pgx.Tx, incidentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	inc := f.incidents[incidentID]
	inc.AlertCount++
	f.incidents[incidentID] = inc
	return nil
}

// newTestIncidentService points the on-call and notification clients at a
// single stub server so assignAndNotify's concurrent fan-out exercises a
// real HTTP round trip rather than swallowing every call as "unreachable".
func newTestIncidentService(t *testing.T, repo *fakeIncidentRepository) *IncidentService {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == "GET" && r.URL.Path == "/api/v1/oncall/current":
			json.NewEncoder(w).Encode(crossclient.CurrentOnCallResponse{
				Team: "default",
				Primary: &struct {
					Name  string `json:"name"`
					Email string `json:"email"`
				}{Name: "Primary On-Call", Email: "primary@example.com"},
			})
		case r.Method == "POST" && r.URL.Path == "/api/v1/notify":
			json.NewEncoder(w).Encode(crossclient.NotifyResponse{ID: "notif-1", Status: "sent"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)

	reg := prometheus.NewRegistry()
	oncall := crossclient.NewOnCallClient(server.URL, time.Second)
	notify := crossclient.NewNotificationClient(server.URL, time.Second)
	return NewIncidentService(repo, oncall, notify, zap.NewNop(), metrics.NewIncidentMetrics(reg), time.Minute)
}

func TestCreateAssignsOnCallPrimaryFromCrossServiceLookup(t *testing.T) {
	repo := newFakeIncidentRepository()
	svc := newTestIncidentService(t, repo)

	inc, err := svc.Create(context.Background(), "req-1", "", CreateRequest{
		Title: "db down", Service: "checkout", Severity: models.SeverityCritical,
	})
	require.NoError(t, err)

	// assignAndNotify races with the return of Create only via its own
	// internal errgroup.Wait(), which Create blocks on, so the assignment
	// is already visible on the returned pointer.
	require.NotNil(t, inc.AssignedTo)
	assert.Equal(t, "primary@example.com", *inc.AssignedTo)
}

func TestCreateIsIdempotentOnRepeatedKey(t *testing.T) {
	repo := newFakeIncidentRepository()
	svc := newTestIncidentService(t, repo)

	first, err := svc.Create(context.Background(), "req-1", "idem-key-1", CreateRequest{
		Title: "db down", Service: "checkout", Severity: models.SeverityHigh,
	})
	require.NoError(t, err)
	second, err := svc.Create(context.Background(), "req-2", "idem-key-1", CreateRequest{
		Title: "different title", Service: "checkout", Severity: models.SeverityHigh,
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "expected the same incident to be returned for a repeated idempotency key")
	assert.Len(t, repo.incidents, 1)
}

func TestCreateRejectsInvalidSeverity(t *testing.T) {
	repo := newFakeIncidentRepository()
	svc := newTestIncidentService(t, repo)

	_, err := svc.Create(context.Background(), "req-1", "", CreateRequest{
		Title: "x", Service: "checkout", Severity: models.Severity("urgent"),
	})
	apiErr, ok := err.(*apierror.Error)
	require.True(t, ok, "expected *apierror.Error, got %T", err)
	assert.Equal(t, apierror.KindValidation, apiErr.Kind)
}

func TestPatchResolveFromOpenSetsAcknowledgedAtToResolvedAt(t *testing.T) {
	repo := newFakeIncidentRepository()
	svc := newTestIncidentService(t, repo)

	inc, err := svc.Create(context.Background(), "req-1", "", CreateRequest{
		Title: "db down", Service: "checkout", Severity: models.SeverityCritical,
	})
	require.NoError(t, err)

	resolved := models.StatusResolved
	patched, err := svc.Patch(context.Background(), inc.ID, PatchRequest{Status: &resolved})
	require.NoError(t, err)
	require.NotNil(t, patched.AcknowledgedAt)
	require.NotNil(t, patched.ResolvedAt)
	assert.True(t, patched.AcknowledgedAt.Equal(*patched.ResolvedAt), "acknowledged_at = %v, resolved_at = %v, want equal", patched.AcknowledgedAt, patched.ResolvedAt)

	require.NotNil(t, patched.MTTASeconds)
	require.NotNil(t, patched.MTTRSeconds)
	assert.Equal(t, *patched.MTTASeconds, *patched.MTTRSeconds, "expected MTTA and MTTR to match on a same-instant resolve")
}

func TestPatchRejectsIllegalTransitionFromResolved(t *testing.T) {
	repo := newFakeIncidentRepository()
	svc := newTestIncidentService(t, repo)

	inc, err := svc.Create(context.Background(), "req-1", "", CreateRequest{
		Title: "db down", Service: "checkout", Severity: models.SeverityCritical,
	})
	require.NoError(t, err)
	resolved := models.StatusResolved
	_, err = svc.Patch(context.Background(), inc.ID, PatchRequest{Status: &resolved})
	require.NoError(t, err)

	open := models.StatusOpen
	_, err = svc.Patch(context.Background(), inc.ID, PatchRequest{Status: &open})
	apiErr, ok := err.(*apierror.Error)
	require.True(t, ok, "expected *apierror.Error, got %T", err)
	assert.Equal(t, apierror.KindConflict, apiErr.Kind)

	timeline, _ := repo.Timeline(context.Background(), inc.ID)
	changed := 0
	for _, ev := range timeline {
		if ev.EventType == models.EventStatusChanged {
			changed++
		}
	}
	assert.Equal(t, 1, changed, "expected exactly one status_changed timeline event")
}

func TestGetRejectsMalformedIncidentID(t *testing.T) {
	repo := newFakeIncidentRepository()
	svc := newTestIncidentService(t, repo)

	_, err := svc.Get(context.Background(), "not-a-uuid")
	apiErr, ok := err.(*apierror.Error)
	require.True(t, ok, "expected *apierror.Error, got %T", err)
	assert.Equal(t, apierror.KindBadRequest, apiErr.Kind)
}

func TestPatchAppendsNoteAndTimelineEvent(t *testing.T) {
	repo := newFakeIncidentRepository()
	svc := newTestIncidentService(t, repo)

	inc, err := svc.Create(context.Background(), "req-1", "", CreateRequest{
		Title: "db down", Service: "checkout", Severity: models.SeverityLow,
	})
	require.NoError(t, err)

	_, err = svc.Patch(context.Background(), inc.ID, PatchRequest{
		HasNote: true, NoteAuthor: "jane", NoteContent: "investigating",
	})
	require.NoError(t, err)

	notes, _ := repo.Notes(context.Background(), inc.ID)
	require.Len(t, notes, 1)
	assert.Equal(t, "investigating", notes[0].Content)

	timeline, _ := repo.Timeline(context.Background(), inc.ID)
	require.Len(t, timeline, 1)
	assert.Equal(t, models.EventNoteAdded, timeline[0].EventType)
}
