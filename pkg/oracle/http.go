package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/jdziat/agent-escrow/pkg/core"
)

// maxGatewayResponse bounds how much of a gateway reply is read.
const maxGatewayResponse = 1 << 20

// HTTPClient submits requests to an oracle gateway over HTTP. The gateway
// answers with a JSON document carrying the assigned "requestId".
type HTTPClient struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// HTTPOption configures an HTTPClient.
type HTTPOption interface {
	applyHTTP(*HTTPClient)
}

type httpOptionFunc func(*HTTPClient)

func (f httpOptionFunc) applyHTTP(c *HTTPClient) { f(c) }

// WithAPIKey sets a bearer token sent with every request.
func WithAPIKey(key string) HTTPOption {
	return httpOptionFunc(func(c *HTTPClient) {
		c.apiKey = key
	})
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) HTTPOption {
	return httpOptionFunc(func(c *HTTPClient) {
		c.client = hc
	})
}

// NewHTTPClient creates a gateway client for endpoint.
func NewHTTPClient(endpoint string, opts ...HTTPOption) *HTTPClient {
	c := &HTTPClient{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt.applyHTTP(c)
	}
	return c
}

// Submit implements core.Oracle.
func (c *HTTPClient) Submit(ctx context.Context, req core.OracleRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/requests", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", "escrowd/1.0")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	res, err := c.client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	reply, err := io.ReadAll(io.LimitReader(res.Body, maxGatewayResponse))
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if res.StatusCode/100 != 2 {
		msg := gjson.GetBytes(reply, "error").String()
		if msg == "" {
			msg = http.StatusText(res.StatusCode)
		}
		return "", fmt.Errorf("gateway returned %d: %s", res.StatusCode, msg)
	}

	id := gjson.GetBytes(reply, "requestId")
	if !id.Exists() || id.String() == "" {
		return "", fmt.Errorf("gateway response has no requestId")
	}
	return id.String(), nil
}
