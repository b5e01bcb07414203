package crossclient

import (
	"context"
	"net/url"
	"time"
)

// OnCallClient is Incident Management's dependency on the On-Call
// service: GET /api/v1/oncall/current?team=X on incident creation.
type OnCallClient struct {
	client *Client
}

func NewOnCallClient(baseURL string, timeout time.Duration) *OnCallClient {
	return &OnCallClient{client: New(baseURL, timeout)}
}

type CurrentOnCallResponse struct {
	Team    string `json:"team"`
	Primary *struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"primary"`
}

// Current looks up the current primary on-call responder for a team.
// Failure is the caller's to handle as "not fatal"; this client returns
// the raw error for the caller to classify.
func (c *OnCallClient) Current(ctx context.Context, requestID, team string) (*CurrentOnCallResponse, error) {
	var resp CurrentOnCallResponse
	path := "/api/v1/oncall/current?team=" + url.QueryEscape(team)
	_, err := c.client.Do(ctx, "GET", path, requestID, nil, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}
