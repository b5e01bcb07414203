package services

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"oncall-platform/internal/metrics"
	"oncall-platform/internal/models"
	"oncall-platform/internal/store"
	"oncall-platform/pkg/apierror"
)

// channelHandler is the uniform capability every channel implements:
// attempt delivery and report sent/failed. Exceptions never propagate;
// callers translate any error into NotificationFailed.
type channelHandler interface {
	deliver(ctx context.Context, n models.Notification) (models.NotificationStatus, error)
}

type mockChannel struct{ logger *zap.Logger }

func (c mockChannel) deliver(ctx context.Context, n models.Notification) (models.NotificationStatus, error) {
	c.logger.Info("mock notification delivered", zap.String("recipient", n.Recipient), zap.String("incident_id", n.IncidentID))
	return models.NotificationSent, nil
}

// passthroughChannel models email/slack: sent unless a real outbound
// endpoint is configured and rejects; absent an endpoint it behaves as
// mock, exactly as the channel-handler contract specifies.
type passthroughChannel struct {
	endpoint string
	logger   *zap.Logger
}

func (c passthroughChannel) deliver(ctx context.Context, n models.Notification) (models.NotificationStatus, error) {
	if c.endpoint == "" {
		return models.NotificationSent, nil
	}
	status, err := postJSON(ctx, c.endpoint, n)
	if err != nil || status >= 300 {
		return models.NotificationFailed, err
	}
	return models.NotificationSent, nil
}

type webhookChannel struct {
	url string
}

func (c webhookChannel) deliver(ctx context.Context, n models.Notification) (models.NotificationStatus, error) {
	if c.url == "" {
		return models.NotificationSent, nil
	}
	status, err := postJSON(ctx, c.url, n)
	if err != nil || status >= 300 {
		return models.NotificationFailed, nil
	}
	return models.NotificationSent, nil
}

func postJSON(ctx context.Context, url string, payload interface{}) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

// NotificationService implements channel dispatch with at-most-once
// delivery per request, plus the bounded, id-indexed log.
type NotificationService struct {
	log      *store.NotificationStore
	handlers map[models.Channel]channelHandler
	logger   *zap.Logger
	metrics  *metrics.NotificationMetrics
}

func NewNotificationService(log *store.NotificationStore, emailEndpoint, slackEndpoint, webhookURL string, logger *zap.Logger, m *metrics.NotificationMetrics) *NotificationService {
	return &NotificationService{
		log: log,
		handlers: map[models.Channel]channelHandler{
			models.ChannelMock:    mockChannel{logger: logger},
			models.ChannelEmail:   passthroughChannel{endpoint: emailEndpoint, logger: logger},
			models.ChannelSlack:   passthroughChannel{endpoint: slackEndpoint, logger: logger},
			models.ChannelWebhook: webhookChannel{url: webhookURL},
		},
		logger:  logger,
		metrics: m,
	}
}

// NotifyRequest is the validated input to Notify.
type NotifyRequest struct {
	IncidentID string
	Channel    string
	Recipient  string
	Message    string
	Severity   string
	Metadata   map[string]interface{}
}

// Notify dispatches through the requested channel's handler, recording
// the outcome in the bounded log regardless of success or failure — a
// handler error is captured and surfaced as status:failed, never
// propagated to the caller.
func (s *NotificationService) Notify(ctx context.Context, req NotifyRequest) (*models.Notification, error) {
	channel := models.Channel(strings.ToLower(strings.TrimSpace(req.Channel)))
	recipient := strings.TrimSpace(req.Recipient)

	if !channel.Valid() {
		return nil, apierror.Validation("channel must be one of mock, email, slack, webhook")
	}
	if recipient == "" {
		return nil, apierror.Validation("recipient is required")
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, apierror.Validation("message is required")
	}
	if strings.TrimSpace(req.IncidentID) == "" {
		return nil, apierror.Validation("incident_id is required")
	}

	n := models.Notification{
		ID: uuid.NewString(), IncidentID: req.IncidentID, Channel: channel, Recipient: recipient,
		Message: req.Message, Severity: req.Severity, Metadata: req.Metadata, CreatedAt: time.Now().UTC(),
	}

	handler := s.handlers[channel]
	status, err := handler.deliver(ctx, n)
	if err != nil {
		s.logger.Warn("notification delivery failed", zap.Error(err), zap.String("channel", string(channel)))
		status = models.NotificationFailed
	}
	n.Status = status

	s.log.Put(n)
	s.metrics.SentTotal.WithLabelValues(string(channel), string(status)).Inc()

	return &n, nil
}

func (s *NotificationService) Get(id string) (*models.Notification, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apierror.BadRequest("notification id must be a valid uuid")
	}
	n, ok := s.log.Get(id)
	if !ok {
		return nil, apierror.NotFound("notification not found")
	}
	return &n, nil
}

func (s *NotificationService) List(f models.NotificationFilter) ([]models.Notification, int64) {
	all := s.log.List()
	filtered := make([]models.Notification, 0, len(all))
	for _, n := range all {
		if f.Channel != "" && n.Channel != f.Channel {
			continue
		}
		if f.Status != "" && n.Status != f.Status {
			continue
		}
		if f.IncidentID != "" && n.IncidentID != f.IncidentID {
			continue
		}
		if f.Recipient != "" && n.Recipient != f.Recipient {
			continue
		}
		filtered = append(filtered, n)
	}
	total := int64(len(filtered))

	page, pageSize := f.Page, f.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	start := (page - 1) * pageSize
	if start >= len(filtered) {
		return []models.Notification{}, total
	}
	end := start + pageSize
	if end > len(filtered) {
		end = len(filtered)
	}
	return filtered[start:end], total
}

func (s *NotificationService) Stats() models.NotificationStats {
	all := s.log.List()
	stats := models.NotificationStats{
		ByChannel:  map[string]int{},
		BySeverity: map[string]int{},
	}
	for _, n := range all {
		stats.Total++
		if n.Status == models.NotificationSent {
			stats.Sent++
		} else {
			stats.Failed++
		}
		stats.ByChannel[string(n.Channel)]++
		severity := n.Severity
		if severity == "" {
			severity = "unknown"
		}
		stats.BySeverity[severity]++
	}
	return stats
}
