// Package configstore implements the PolicyStore port as an HTTP client of
// the policy REST resource.
package configstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/ericfisherdev/prharmony/internal/domain/model"
	"github.com/ericfisherdev/prharmony/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.PolicyStore = (*Client)(nil)

// ConfigPath is the resource prefix the store serves policies under.
const ConfigPath = "/rest/prharmony/1.0/config/"

// maxBodyBytes bounds how much of a response is read.
const maxBodyBytes = 1 << 20

// StatusError is a non-2xx response from the store.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("config store: HTTP %d", e.Status)
	}
	return fmt.Sprintf("config store: HTTP %d: %s", e.Status, e.Message)
}

// Client loads and saves policies over HTTP. Transient failures (connection
// errors, 429 and 5xx) are retried.
type Client struct {
	http    *retryablehttp.Client
	baseURL string
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying transport client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http.HTTPClient = hc }
}

// WithRetryWait sets the backoff bounds between attempts.
func WithRetryWait(minWait, maxWait time.Duration) Option {
	return func(c *Client) {
		c.http.RetryWaitMin = minWait
		c.http.RetryWaitMax = maxWait
	}
}

// NewClient creates a store client for baseURL retrying up to retries times.
func NewClient(baseURL string, retries int, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient = cleanhttp.DefaultPooledClient()
	rc.RetryMax = retries
	rc.Logger = logger
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	c := &Client{
		http:    rc,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) url(scope model.ScopeKey) string {
	return c.baseURL + ConfigPath + scope.Path()
}

// Load fetches the policy stored for scope.
func (c *Client) Load(ctx context.Context, scope model.ScopeKey) (model.Policy, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.url(scope), nil)
	if err != nil {
		return model.Policy{}, fmt.Errorf("create load request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	// With the passthrough error handler the last response is returned
	// alongside the error once retries are exhausted.
	resp, err := c.http.Do(req)
	if resp == nil {
		return model.Policy{}, fmt.Errorf("load policy for %s: %w", scope, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return model.Policy{}, fmt.Errorf("read policy for %s: %w", scope, err)
	}

	if resp.StatusCode != http.StatusOK {
		return model.Policy{}, fmt.Errorf("load policy for %s: %w", scope, statusError(resp.StatusCode, body))
	}

	c.logger.Debug("policy loaded from store", "scope", scope.String(), "bytes", len(body))
	return model.DecodePolicy(body), nil
}

// Save replaces the policy stored for scope.
func (c *Client) Save(ctx context.Context, scope model.ScopeKey, policy model.Policy) error {
	doc, err := model.EncodePolicy(policy)
	if err != nil {
		return fmt.Errorf("encode policy for %s: %w", scope, err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPut, c.url(scope), doc)
	if err != nil {
		return fmt.Errorf("create save request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if resp == nil {
		return fmt.Errorf("save policy for %s: %w", scope, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("save policy for %s: %w", scope, statusError(resp.StatusCode, body))
	}

	c.logger.Debug("policy saved to store", "scope", scope.String())
	return nil
}

// statusError builds a StatusError, taking the message from an
// {"error": "..."} body when present.
func statusError(status int, body []byte) *StatusError {
	se := &StatusError{Status: status}

	var eb struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &eb) == nil && eb.Error != "" {
		se.Message = eb.Error
	} else {
		se.Message = strings.TrimSpace(string(body))
	}
	return se
}
