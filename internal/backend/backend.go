// Package backend is an HTTP client for the hosted backend that provides
// identity and object storage REST APIs.
package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to the hosted backend. It is safe for concurrent use.
type Client struct {
	parsedURL  *url.URL
	apiKey     string
	httpClient *http.Client
}

// New creates a backend client for the given base URL and project API key.
func New(rawURL, apiKey string) (*Client, error) {
	if rawURL == "" {
		return nil, errors.New("backend URL is required")
	}
	parsed, err := url.Parse(strings.TrimRight(rawURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid backend URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid backend URL %q: scheme and host are required", rawURL)
	}
	return &Client{
		parsedURL:  parsed,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}, nil
}

// ResolveURL builds a full URL from the base URL and the given path segments.
// If the last segment contains a query string (e.g. "token?grant_type=id_token"), it is
// split so JoinPath only receives the path portion and the query is appended.
func (c *Client) ResolveURL(pathSegments ...string) string {
	if len(pathSegments) == 0 {
		return c.parsedURL.String()
	}
	segments := append([]string(nil), pathSegments...)
	last := segments[len(segments)-1]
	if pathPart, query, ok := strings.Cut(last, "?"); ok {
		segments[len(segments)-1] = pathPart
		result := c.parsedURL.JoinPath(segments...)
		result.RawQuery = query
		return result.String()
	}
	return c.parsedURL.JoinPath(segments...).String()
}

// newRequest creates a request carrying the project key. The bearer token is the
// user's access token when given, otherwise the project key itself.
func (c *Client) newRequest(ctx context.Context, method, endpoint, token string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.ResolveURL(endpoint), body)
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	if token == "" {
		token = c.apiKey
	}
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// StatusError is returned when the backend answers with an unexpected status code.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.Code, e.Body)
}

// IsNotFoundError returns true if the error indicates a 404 Not Found response.
func IsNotFoundError(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound
}

// IsUnauthorizedError returns true if the backend rejected the credentials.
func IsUnauthorizedError(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) &&
		(statusErr.Code == http.StatusUnauthorized || statusErr.Code == http.StatusForbidden)
}

// readErrorBody reads the response body for error messages.
// Returns empty string if reading fails (we're already in an error path).
func readErrorBody(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil {
		return "(could not read error body)"
	}
	return string(body)
}
