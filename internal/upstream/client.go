// Package upstream implements the single operation the batch dispatcher
// needs from an upstream JSON-RPC node: POST a batch, get a batch back.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rpccache/gateway/internal/jsonrpc"
)

// DefaultTimeout bounds every upstream round-trip; on expiry the
// dispatcher treats the call as a transport error, per spec.
const DefaultTimeout = 10 * time.Second

// Client POSTs JSON-RPC batches to upstream URLs. A single Client is
// shared across all chains and all concurrent requests - *http.Client is
// safe for concurrent use and pools its own connections.
type Client struct {
	http *http.Client
}

// New builds a Client with connection reuse and a bounded default
// timeout; callers may still impose a tighter deadline via ctx.
func New() *Client {
	return &Client{http: &http.Client{Timeout: DefaultTimeout}}
}

// NewWithHTTPClient wraps an existing *http.Client, e.g. one instrumented
// for tracing or metrics in tests.
func NewWithHTTPClient(c *http.Client) *Client {
	return &Client{http: c}
}

// Send POSTs requests as a single JSON array to url and parses the body
// as a JSON array of responses. A non-array body is reported as an error
// distinct from a transport failure so the dispatcher can attach the
// right reason string to its InternalError responses.
func (c *Client) Send(ctx context.Context, url string, requests []jsonrpc.OutgoingRequest) ([]json.RawMessage, error) {
	payload, err := json.Marshal(requests)
	if err != nil {
		return nil, fmt.Errorf("upstream: failed to encode batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("upstream: failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fail to make rpc request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fail to make rpc request: failed to read response body: %w", err)
	}

	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("array is expected: upstream returned %s", truncate(body, 200))
	}
	return items, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
