package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pesio-ai/be-plt-approvals/internal/errors"
)

// httpClient is a small JSON-over-HTTP client shared by the directory and
// intake clients. Non-2xx responses are converted to coded errors so the
// callers can tell transient integration failures from hard misses.
type httpClient struct {
	baseURL string
	client  *http.Client
}

func newHTTPClient(baseURL string) *httpClient {
	return &httpClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Get performs a GET and decodes the JSON response into out (when non-nil).
func (c *httpClient) Get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "build request")
	}
	return c.do(req, out)
}

// Post performs a POST with a JSON body and decodes the response into out.
func (c *httpClient) Post(ctx context.Context, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "marshal request body")
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *httpClient) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeUnavailable, fmt.Sprintf("%s %s failed", req.Method, req.URL.Path))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "decode response body")
		}
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return errors.Newf(errors.ErrCodeNotFound, "%s %s: not found", req.Method, req.URL.Path)
	case resp.StatusCode >= 500:
		return errors.Newf(errors.ErrCodeUnavailable, "%s %s: upstream returned %d", req.Method, req.URL.Path, resp.StatusCode)
	default:
		return errors.Newf(errors.ErrCodeInternal, "%s %s: unexpected status %d", req.Method, req.URL.Path, resp.StatusCode)
	}
}
