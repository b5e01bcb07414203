package crossclient

import (
	"context"
	"time"
)

// NotificationClient is the dependency Incident Management and On-Call
// both have on the Notification service: POST /api/v1/notify,
// fire-and-forget with a bounded timeout.
type NotificationClient struct {
	client *Client
}

func NewNotificationClient(baseURL string, timeout time.Duration) *NotificationClient {
	return &NotificationClient{client: New(baseURL, timeout)}
}

type NotifyRequest struct {
	IncidentID string                 `json:"incident_id"`
	Channel    string                 `json:"channel"`
	Recipient  string                 `json:"recipient"`
	Message    string                 `json:"message"`
	Severity   string                 `json:"severity,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

type NotifyResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (c *NotificationClient) Notify(ctx context.Context, requestID string, req NotifyRequest) (*NotifyResponse, error) {
	var resp NotifyResponse
	_, err := c.client.Do(ctx, "POST", "/api/v1/notify", requestID, req, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}
