package api

import (
	"log/slog"
	"net/http"
	"time"
)

// Client fetches series data from a data source URL.
type Client struct {
	dataURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger

	// Retries inside a single fetch. Zero keeps the poller's fixed-interval
	// retry as the only retry.
	maxRetries   int
	retryBackoff time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a new data source client. apiKey may be empty.
func NewClient(dataURL, apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		dataURL: dataURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger:       slog.Default(),
		maxRetries:   0,
		retryBackoff: time.Second,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// DataURL returns the configured data source URL.
func (c *Client) DataURL() string {
	return c.dataURL
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRetries sets the per-fetch retry configuration.
func WithRetries(max int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = max
		c.retryBackoff = backoff
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}
