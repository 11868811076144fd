// Package bitbucket implements the Directory and MergeChecker ports against
// the Bitbucket Server REST API.
package bitbucket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gregjones/httpcache"
	"github.com/hashicorp/go-cleanhttp"
)

// ErrNotFound is returned when the server answers 404.
var ErrNotFound = errors.New("bitbucket resource not found")

// ErrPagingStalled is returned when a paged response claims more pages but
// its nextPageStart does not advance.
var ErrPagingStalled = errors.New("bitbucket paging did not advance")

// requestTimeout bounds every API call alongside context cancellation.
const requestTimeout = 30 * time.Second

// APIError is a non-2xx response from Bitbucket.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("bitbucket: HTTP %d", e.Status)
	}
	return fmt.Sprintf("bitbucket: HTTP %d: %s", e.Status, e.Message)
}

// errorBody is Bitbucket's error envelope.
type errorBody struct {
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// page is Bitbucket's paged response envelope.
type page[T any] struct {
	Values        []T  `json:"values"`
	IsLastPage    bool `json:"isLastPage"`
	NextPageStart int  `json:"nextPageStart"`
}

// Client talks to one Bitbucket Server instance.
type Client struct {
	http    *http.Client
	baseURL *url.URL
	token   string
	logger  *slog.Logger
}

// NewClient creates a client for baseURL with the following transport stack:
//  1. httpcache (ETag-based conditional request caching)
//  2. cleanhttp pooled transport
func NewClient(baseURL, token string, logger *slog.Logger) (*Client, error) {
	cacheTransport := &httpcache.Transport{
		Transport:           cleanhttp.DefaultPooledTransport(),
		Cache:               httpcache.NewMemoryCache(),
		MarkCachedResponses: true,
	}
	return NewClientWithHTTPClient(&http.Client{Transport: cacheTransport, Timeout: requestTimeout}, baseURL, token, logger)
}

// NewClientWithHTTPClient creates a Client with a custom http.Client.
// Tests use it to point the client at an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL, token string, logger *slog.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{http: httpClient, baseURL: u, token: token, logger: logger}, nil
}

// getJSON issues GET path?query and decodes the JSON body into out.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	target := c.baseURL.String() + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.logger.Debug("bitbucket api call",
		"path", path,
		"status", resp.StatusCode,
		"cached", resp.Header.Get(httpcache.XFromCache) != "",
		"duration", time.Since(start),
	)

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	// httpcache stores the response once the body reaches EOF.
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var eb errorBody
	if json.Unmarshal(body, &eb) == nil && len(eb.Errors) > 0 {
		apiErr.Message = eb.Errors[0].Message
	}
	return apiErr
}
