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

// fakeAlertRepository is an in-memory stand-in for repository.AlertRepository.
// FindCorrelatingIncident never exercises a real transaction: it hands fn a
// nil pgx.Tx, which is safe as long as fn's path never calls a method on it
// (true whenever IncrementAlertCount is faked, or Create succeeds remotely).
type fakeAlertRepository struct {
	mu             sync.Mutex
	inserted       []models.Alert
	existing       *models.Incident
	incrementCalls int
}

func (f *fakeAlertRepository) Insert(ctx context.Context, a *models.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a.ID = uuid.NewString()
	f.inserted = append(f.inserted, *a)
	return nil
}

func (f *fakeAlertRepository) GetByID(ctx context.Context, id string) (*models.Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.inserted {
		if a.ID == id {
			cp := a
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeAlertRepository) List(ctx context.Context, filter models.AlertFilter) ([]models.Alert, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Alert(nil), f.inserted...), int64(len(f.inserted)), nil
}

func (f *fakeAlertRepository) FindCorrelatingIncident(ctx context.Context, service string, severity models.Severity, window time.Duration, fn func(ctx context.Context, tx pgx.Tx, existing *models.Incident) (string, bool, error)) (string, bool, error) {
	return fn(ctx, nil, f.existing)
}

func (f *fakeAlertRepository) IncrementAlertCount(ctx context.Context, tx pgx.Tx, incidentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.incrementCalls++
	return nil
}

func newTestIngestionService(t *testing.T, repo *fakeAlertRepository, incidentServerURL string) *IngestionService {
	t.Helper()
	reg := prometheus.NewRegistry()
	client := crossclient.NewIncidentClient(incidentServerURL, time.Second)
	return NewIngestionService(repo, client, 5*time.Minute, zap.NewNop(), metrics.NewIngestionMetrics(reg))
}

func TestIngestCreatesNewIncidentWhenNoneCorrelates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(crossclient.CreateIncidentResponse{ID: "new-incident-1"})
	}))
	defer server.Close()

	repo := &fakeAlertRepository{}
	svc := newTestIngestionService(t, repo, server.URL)

	result, err := svc.Ingest(context.Background(), "req-1", IngestRequest{
		Service: "checkout", Severity: models.SeverityCritical, Message: "database timeout",
	})
	require.NoError(t, err)
	assert.Equal(t, actionNewIncident, result.Action)
	assert.Equal(t, "new-incident-1", result.IncidentID)
	assert.Len(t, repo.inserted, 1)
}

func TestIngestAttachesToExistingCorrelatingIncident(t *testing.T) {
	repo := &fakeAlertRepository{existing: &models.Incident{ID: "existing-incident", AlertCount: 1}}
	svc := newTestIngestionService(t, repo, "http://unused.invalid")

	result, err := svc.Ingest(context.Background(), "req-1", IngestRequest{
		Service: "checkout", Severity: models.SeverityCritical, Message: "database timeout",
	})
	require.NoError(t, err)
	assert.Equal(t, actionAttachedToExisting, result.Action)
	assert.Equal(t, "existing-incident", result.IncidentID)
	assert.Equal(t, 1, repo.incrementCalls)
}

func TestIngestRejectsInvalidSeverity(t *testing.T) {
	repo := &fakeAlertRepository{}
	svc := newTestIngestionService(t, repo, "http://unused.invalid")

	_, err := svc.Ingest(context.Background(), "req-1", IngestRequest{
		Service: "checkout", Severity: models.Severity("catastrophic"), Message: "oops",
	})
	apiErr, ok := err.(*apierror.Error)
	require.True(t, ok, "expected *apierror.Error, got %T", err)
	assert.Equal(t, apierror.KindValidation, apiErr.Kind)
	assert.Empty(t, repo.inserted, "invalid request must not reach storage")
}

func TestIngestRejectsMissingMessage(t *testing.T) {
	repo := &fakeAlertRepository{}
	svc := newTestIngestionService(t, repo, "http://unused.invalid")

	_, err := svc.Ingest(context.Background(), "req-1", IngestRequest{
		Service: "checkout", Severity: models.SeverityLow, Message: "   ",
	})
	apiErr, ok := err.(*apierror.Error)
	require.True(t, ok, "expected *apierror.Error, got %T", err)
	assert.Equal(t, apierror.KindValidation, apiErr.Kind)
}

func TestIngestionServiceGetAndList(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(crossclient.CreateIncidentResponse{ID: "inc-1"})
	}))
	defer server.Close()

	repo := &fakeAlertRepository{}
	svc := newTestIngestionService(t, repo, server.URL)

	_, err := svc.Ingest(context.Background(), "req-1", IngestRequest{
		Service: "checkout", Severity: models.SeverityHigh, Message: "slow responses",
	})
	require.NoError(t, err)

	items, total, err := svc.List(context.Background(), models.AlertFilter{})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Len(t, items, 1)

	got, err := svc.Get(context.Background(), items[0].ID)
	require.NoError(t, err)
	assert.Equal(t, items[0].ID, got.ID)

	_, err = svc.Get(context.Background(), "missing")
	assert.Error(t, err)
}

func TestIngestionServiceGetRejectsMalformedID(t *testing.T) {
	repo := &fakeAlertRepository{}
	svc := newTestIngestionService(t, repo, "http://unused.invalid")

	_, err := svc.Get(context.Background(), "not-a-uuid")
	apiErr, ok := err.(*apierror.Error)
	require.True(t, ok, "expected *apierror.Error, got %T", err)
	assert.Equal(t, apierror.KindBadRequest, apiErr.Kind)
}
