package crossclient

import (
	"context"
	"time"
)

// IncidentClient is Alert Ingestion's dependency on Incident Management:
// POST /api/v1/incidents to create an incident on the non-correlated path.
type IncidentClient struct {
	client *Client
}

func NewIncidentClient(baseURL string, timeout time.Duration) *IncidentClient {
	return &IncidentClient{client: New(baseURL, timeout)}
}

type CreateIncidentRequest struct {
	Title      string `json:"title"`
	Service    string `json:"service"`
	Severity   string `json:"severity"`
	AssignedTo string `json:"assigned_to,omitempty"`
}

type CreateIncidentResponse struct {
	ID string `json:"id"`
}

// Create asks Incident Management to create an incident, returning its
// id. The caller applies the retry/backoff and local-fallback policy;
// this client performs exactly one attempt per call.
func (c *IncidentClient) Create(ctx context.Context, requestID string, req CreateIncidentRequest) (string, error) {
	var resp CreateIncidentResponse
	_, err := c.client.Do(ctx, "POST", "/api/v1/incidents", requestID, req, &resp)
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}
