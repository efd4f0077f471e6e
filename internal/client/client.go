// Package client implements the GraphQL transport against the store admin
// endpoint. Exactly two operations travel over it: the bulk operation
// submission mutation and the job status query.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/effluo/internal/models"
)

const (
	// DefaultAPIVersion is the pinned admin API version used when the caller
	// does not select one.
	DefaultAPIVersion = "2025-07"

	// DefaultTimeout is the default HTTP timeout for one GraphQL call.
	DefaultTimeout = 30 * time.Second

	// DefaultRateLimit is the default request rate (requests per second).
	// The admin API throttles aggressive clients; one status poll every
	// twenty seconds sits far below this ceiling.
	DefaultRateLimit = 2

	endpointFormat = "https://%s.myshopify.com/admin/api/%s/graphql.json"
	tokenHeader    = "X-Shopify-Access-Token"
)

// Client is a GraphQL admin API client for a single store.
type Client struct {
	endpoint   string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     arbor.ILogger
}

// Option configures the Client.
type Option func(*Client)

// WithEndpoint overrides the derived admin endpoint URL.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		c.endpoint = endpoint
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a logger.
func WithLogger(logger arbor.ILogger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets a custom rate limit.
func WithRateLimit(requestsPerSecond int) Option {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// New creates a client for the given store and API version. An empty version
// selects DefaultAPIVersion.
func New(storeName, apiVersion, accessToken string, opts ...Option) *Client {
	if apiVersion == "" {
		apiVersion = DefaultAPIVersion
	}

	c := &Client{
		endpoint: fmt.Sprintf(endpointFormat, storeName, apiVersion),
		token:    accessToken,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// graphqlRequest is the standard GraphQL POST body.
type graphqlRequest struct {
	Query string `json:"query"`
}

// graphqlResponse is the standard GraphQL response envelope.
type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Execute sends one GraphQL operation and returns the data payload.
// Top-level GraphQL errors are returned as *models.RemoteUserError.
func (c *Client) Execute(ctx context.Context, query string) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(graphqlRequest{Query: query})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(tokenHeader, c.token)

	if c.logger != nil {
		c.logger.Debug().
			Str("endpoint", c.endpoint).
			Msg("Admin API request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("graphql request failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var gqlResp graphqlResponse
	if err := json.Unmarshal(respBody, &gqlResp); err != nil {
		return nil, &models.ProtocolError{Reason: fmt.Sprintf("response is not valid JSON: %v", err)}
	}

	if len(gqlResp.Errors) > 0 {
		messages := make([]string, 0, len(gqlResp.Errors))
		for _, e := range gqlResp.Errors {
			messages = append(messages, e.Message)
		}
		return nil, &models.RemoteUserError{Messages: messages}
	}

	return gqlResp.Data, nil
}
