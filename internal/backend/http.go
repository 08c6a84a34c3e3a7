package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
)

// GetJSON performs a GET request and unmarshals the JSON response into the result type.
// The endpoint is the path after the base URL (e.g., "auth/v1/user").
func GetJSON[T any](ctx context.Context, c *Client, endpoint, token string) (*T, error) {
	return DoJSON[T](ctx, c, http.MethodGet, endpoint, token, nil, http.StatusOK)
}

// PostJSON performs a POST request with a JSON body and unmarshals the JSON response.
func PostJSON[T any](ctx context.Context, c *Client, endpoint, token string, requestBody any) (*T, error) {
	return DoJSON[T](ctx, c, http.MethodPost, endpoint, token, requestBody, http.StatusOK, http.StatusCreated)
}

// DoJSON performs a request with an optional JSON body and unmarshals the JSON response.
// It accepts one or more valid status codes. If the response status doesn't match any, a *StatusError is returned.
func DoJSON[T any](ctx context.Context, c *Client, method, endpoint, token string, requestBody any, expectedStatuses ...int) (*T, error) {
	var bodyReader io.Reader
	if requestBody != nil {
		jsonBody, err := json.Marshal(requestBody)
		if err != nil {
			return nil, fmt.Errorf("could not marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := c.newRequest(ctx, method, endpoint, token, bodyReader)
	if err != nil {
		return nil, err
	}
	if requestBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	body, err := c.do(req, expectedStatuses)
	if err != nil {
		return nil, err
	}

	var result T
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("could not unmarshal response: %w", err)
	}

	return &result, nil
}

// PutObject sends raw bytes to the endpoint. Extra headers are added as given.
func (c *Client) PutObject(ctx context.Context, method, endpoint string, data []byte, contentType string, headers map[string]string) error {
	req, err := c.newRequest(ctx, method, endpoint, "", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	req.ContentLength = int64(len(data))

	_, err = c.do(req, []int{http.StatusOK, http.StatusCreated})
	return err
}

func (c *Client) do(req *http.Request, expectedStatuses []int) ([]byte, error) {
	resp, err := c.httpClient.Do(req) //nolint:gosec // URL constructed from validated parsedURL via ResolveURL
	if err != nil {
		return nil, fmt.Errorf("could not send request: %w", err)
	}
	defer resp.Body.Close()

	if !slices.Contains(expectedStatuses, resp.StatusCode) {
		return nil, &StatusError{Code: resp.StatusCode, Body: readErrorBody(resp.Body)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("could not read response body: %w", err)
	}
	return body, nil
}
