package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"oncall-platform/internal/metrics"
	"oncall-platform/internal/models"
	"oncall-platform/internal/store"
	"oncall-platform/pkg/apierror"
)

func newTestNotificationService(emailEndpoint, slackEndpoint, webhookURL string) *NotificationService {
	reg := prometheus.NewRegistry()
	return NewNotificationService(store.NewNotificationStore(100), emailEndpoint, slackEndpoint, webhookURL, zap.NewNop(), metrics.NewNotificationMetrics(reg))
}

func TestNotifyMockChannelAlwaysSent(t *testing.T) {
	svc := newTestNotificationService("", "", "")
	n, err := svc.Notify(context.Background(), NotifyRequest{
		IncidentID: "inc-1", Channel: "mock", Recipient: "oncall@example.com", Message: "new incident",
	})
	require.NoError(t, err)
	assert.Equal(t, models.NotificationSent, n.Status)
}

func TestNotifyUnconfiguredEmailBehavesAsMock(t *testing.T) {
	svc := newTestNotificationService("", "", "")
	n, err := svc.Notify(context.Background(), NotifyRequest{
		IncidentID: "inc-1", Channel: "email", Recipient: "a@example.com", Message: "hello",
	})
	require.NoError(t, err)
	assert.Equal(t, models.NotificationSent, n.Status)
}

func TestNotifyUnconfiguredWebhookBehavesAsMock(t *testing.T) {
	svc := newTestNotificationService("", "", "")
	n, err := svc.Notify(context.Background(), NotifyRequest{
		IncidentID: "inc-1", Channel: "webhook", Recipient: "https://example.com/hook", Message: "hello",
	})
	require.NoError(t, err)
	assert.Equal(t, models.NotificationSent, n.Status)
}

func TestNotifyWebhookUnreachableStoresFailedButReturnsNoError(t *testing.T) {
	svc := newTestNotificationService("", "", "http://127.0.0.1:1")
	n, err := svc.Notify(context.Background(), NotifyRequest{
		IncidentID: "inc-1", Channel: "webhook", Recipient: "team", Message: "hello",
	})
	require.NoError(t, err, "handler errors must never propagate to the caller")
	assert.Equal(t, models.NotificationFailed, n.Status)

	stored, err := svc.Get(n.ID)
	require.NoError(t, err)
	assert.Equal(t, models.NotificationFailed, stored.Status)
}

func TestNotifyRejectsInvalidChannel(t *testing.T) {
	svc := newTestNotificationService("", "", "")
	_, err := svc.Notify(context.Background(), NotifyRequest{
		IncidentID: "inc-1", Channel: "pager", Recipient: "a", Message: "hello",
	})
	apiErr, ok := err.(*apierror.Error)
	require.True(t, ok, "expected *apierror.Error, got %T", err)
	assert.Equal(t, apierror.KindValidation, apiErr.Kind)
}

func TestGetUnknownNotificationReturnsNotFound(t *testing.T) {
	svc := newTestNotificationService("", "", "")
	_, err := svc.Get(uuid.NewString())
	apiErr, ok := err.(*apierror.Error)
	require.True(t, ok, "expected *apierror.Error, got %T", err)
	assert.Equal(t, apierror.KindNotFound, apiErr.Kind)
}

func TestGetMalformedIDReturnsBadRequest(t *testing.T) {
	svc := newTestNotificationService("", "", "")
	_, err := svc.Get("not-a-uuid")
	apiErr, ok := err.(*apierror.Error)
	require.True(t, ok, "expected *apierror.Error, got %T", err)
	assert.Equal(t, apierror.KindBadRequest, apiErr.Kind)
}

func TestListFiltersByChannelAndPaginates(t *testing.T) {
	svc := newTestNotificationService("", "", "")
	for i := 0; i < 3; i++ {
		svc.Notify(context.Background(), NotifyRequest{IncidentID: "inc-1", Channel: "mock", Recipient: "a", Message: "m"})
	}
	svc.Notify(context.Background(), NotifyRequest{IncidentID: "inc-1", Channel: "webhook", Recipient: "a", Message: "m"})

	items, total := svc.List(models.NotificationFilter{Channel: models.ChannelMock, Page: 1, PageSize: 2})
	assert.EqualValues(t, 3, total)
	assert.Len(t, items, 2, "page size not respected")
}
