// Package transport posts identity requests to the identity service.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/idsync/internal/common"
)

// Poster sends one JSON request and returns the raw response.
type Poster interface {
	Post(ctx context.Context, path string, body any) (*Response, error)
}

// Response is the status line and body of an identity service reply.
type Response struct {
	Status     int
	StatusText string
	Body       []byte
}

// HTTP is a Poster over net/http.
type HTTP struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// New builds a transport for baseURL. A zero timeout leaves the client
// without one; the caller's context still applies.
func New(baseURL, apiKey string, timeout time.Duration) *HTTP {
	return &HTTP{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// WithClient swaps the underlying HTTP client.
func (t *HTTP) WithClient(c *http.Client) *HTTP {
	t.client = c
	return t
}

// Post marshals body and POSTs it to baseURL/path. Any non-nil response is
// returned together with a nil error, whatever its status; only failures to
// reach the service are errors, and they wrap common.ErrTransport.
func (t *HTTP) Post(ctx context.Context, path string, body any) (*Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	url := t.baseURL + "/" + strings.TrimLeft(path, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(common.APIKeyHeaderName, t.apiKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrTransport, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", common.ErrTransport, err)
	}
	return &Response{
		Status:     resp.StatusCode,
		StatusText: http.StatusText(resp.StatusCode),
		Body:       b,
	}, nil
}
