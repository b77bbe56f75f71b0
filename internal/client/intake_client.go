package client

import (
	"context"
	"fmt"
)

// IntakeClient talks to the Request Intake service, which owns the
// per-module forms whose submitted values feed rule evaluation.
type IntakeClient struct {
	c *httpClient
}

// NewIntakeClient creates a client for the given intake base URL.
func NewIntakeClient(baseURL string) *IntakeClient {
	return &IntakeClient{c: newHTTPClient(baseURL)}
}

// GetRequestData returns the flat key/value dictionary for a submitted
// request. Keys are used verbatim as rule fields; no renaming happens on
// either side of this boundary.
func (i *IntakeClient) GetRequestData(ctx context.Context, requestID string) (map[string]any, error) {
	var resp requestDataResponse
	err := retryTransient(ctx, func() error {
		return i.c.Get(ctx, fmt.Sprintf("/api/v1/requests/%s/data", requestID), &resp)
	})
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}
