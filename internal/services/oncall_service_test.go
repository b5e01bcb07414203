package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"oncall-platform/internal/crossclient"
	"oncall-platform/internal/metrics"
	"oncall-platform/internal/models"
	"oncall-platform/internal/store"
	"oncall-platform/pkg/apierror"
)

func newTestOnCallService(t *testing.T, notifyURL string) *OnCallService {
	t.Helper()
	reg := prometheus.NewRegistry()
	notify := crossclient.NewNotificationClient(notifyURL, time.Second)
	return NewOnCallService(store.NewOnCallStore(50, 50), notify, 4, zap.NewNop(), metrics.NewOnCallMetrics(reg))
}

func TestCreateScheduleRejectsWithoutPrimary(t *testing.T) {
	svc := newTestOnCallService(t, "http://unused.invalid")
	_, err := svc.CreateSchedule(context.Background(), "platform", models.RotationWeekly, []models.Member{
		{Name: "Ella", Email: "ella@example.com", Role: models.RoleSecondary},
	})
	apiErr, ok := err.(*apierror.Error)
	require.True(t, ok, "expected *apierror.Error, got %T", err)
	assert.Equal(t, apierror.KindBadRequest, apiErr.Kind)
}

func TestCreateScheduleRejectsInvalidRotationType(t *testing.T) {
	svc := newTestOnCallService(t, "http://unused.invalid")
	_, err := svc.CreateSchedule(context.Background(), "platform", models.RotationType("monthly"), []models.Member{
		{Name: "Dan", Email: "dan@example.com", Role: models.RolePrimary},
	})
	apiErr, ok := err.(*apierror.Error)
	require.True(t, ok, "expected *apierror.Error, got %T", err)
	assert.Equal(t, apierror.KindValidation, apiErr.Kind)
}

func TestCurrentAppliesActiveOverrideOverRotation(t *testing.T) {
	svc := newTestOnCallService(t, "http://unused.invalid")
	_, err := svc.CreateSchedule(context.Background(), "platform", models.RotationWeekly, []models.Member{
		{Name: "Dan", Email: "dan@example.com", Role: models.RolePrimary},
	})
	require.NoError(t, err)

	_, err = svc.SetOverride("platform", "Override Person", "override@example.com", "on leave", 2)
	require.NoError(t, err)

	current, err := svc.Current(context.Background(), "req-1", "platform")
	require.NoError(t, err)
	require.NotNil(t, current.Primary)
	assert.True(t, current.Primary.Override)
	assert.Equal(t, "override@example.com", current.Primary.Email)
}

func TestCurrentIgnoresExpiredOverride(t *testing.T) {
	svc := newTestOnCallService(t, "http://unused.invalid")
	_, err := svc.CreateSchedule(context.Background(), "platform", models.RotationWeekly, []models.Member{
		{Name: "Dan", Email: "dan@example.com", Role: models.RolePrimary},
	})
	require.NoError(t, err)
	svc.store.PutOverride(&models.Override{
		Team: "platform", Name: "Stale", Email: "stale@example.com", ExpiresAt: time.Now().Add(-time.Hour),
	})

	current, err := svc.Current(context.Background(), "req-1", "platform")
	require.NoError(t, err)
	require.NotNil(t, current.Primary)
	assert.False(t, current.Primary.Override)
	assert.Equal(t, "dan@example.com", current.Primary.Email)
}

func TestPatchScheduleRejectsRemovingLastPrimary(t *testing.T) {
	svc := newTestOnCallService(t, "http://unused.invalid")
	_, err := svc.CreateSchedule(context.Background(), "platform", models.RotationWeekly, []models.Member{
		{Name: "Dan", Email: "dan@example.com", Role: models.RolePrimary},
	})
	require.NoError(t, err)

	_, err = svc.PatchSchedule("platform", nil, nil, []string{"dan@example.com"})
	apiErr, ok := err.(*apierror.Error)
	require.True(t, ok, "expected *apierror.Error, got %T", err)
	assert.Equal(t, apierror.KindBadRequest, apiErr.Kind)
}

func TestEscalateNotifiesSecondaryResponder(t *testing.T) {
	var notified bool
	var notifiedRecipient string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		notified = true
		var req crossclient.NotifyRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		notifiedRecipient = req.Recipient
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"notif-1","status":"sent"}`))
	}))
	defer server.Close()

	svc := newTestOnCallService(t, server.URL)
	_, err := svc.CreateSchedule(context.Background(), "platform", models.RotationWeekly, []models.Member{
		{Name: "Dan", Email: "dan@example.com", Role: models.RolePrimary},
		{Name: "Ella", Email: "ella@example.com", Role: models.RoleSecondary},
	})
	require.NoError(t, err)

	esc, err := svc.Escalate(context.Background(), "req-1", "platform", "inc-1", "primary unresponsive")
	require.NoError(t, err)
	require.NotNil(t, esc.EscalatedTo)
	assert.Equal(t, "ella@example.com", esc.EscalatedTo.Email)
	assert.True(t, notified, "expected a best-effort notification to be sent on escalation")
	assert.Equal(t, "ella@example.com", notifiedRecipient, "expected the escalation notice to go to the secondary")

	escalations := svc.Escalations("platform", 10)
	assert.Len(t, escalations, 1)
}

func TestEscalateWithoutSecondaryStillRecordsEscalation(t *testing.T) {
	svc := newTestOnCallService(t, "http://unused.invalid")
	_, err := svc.CreateSchedule(context.Background(), "platform", models.RotationWeekly, []models.Member{
		{Name: "Dan", Email: "dan@example.com", Role: models.RolePrimary},
	})
	require.NoError(t, err)

	esc, err := svc.Escalate(context.Background(), "req-1", "platform", "inc-1", "no secondary configured")
	require.NoError(t, err)
	assert.Nil(t, esc.EscalatedTo)
}

func TestRotationIndexAcrossTypes(t *testing.T) {
	day1 := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)  // Monday, ISO week 2
	day2 := time.Date(2026, 1, 12, 12, 0, 0, 0, time.UTC) // next Monday, ISO week 3

	assert.NotEqual(t, rotationIndex(models.RotationDaily, day1), rotationIndex(models.RotationDaily, day2))
	assert.NotEqual(t, rotationIndex(models.RotationWeekly, day1), rotationIndex(models.RotationWeekly, day2))
}
