// Package api is the HTTP client for the treasury REST API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"treasury/internal/report"
)

// ErrMissingDate is returned when a report is requested without a date.
var ErrMissingDate = errors.New("report date is required")

// ErrUnauthorized is wrapped by every 401 response.
var ErrUnauthorized = errors.New("unauthorized")

// ErrResponseTooLarge is returned when a response body exceeds the
// client's limit.
var ErrResponseTooLarge = errors.New("response too large")

// defaultMaxBodyBytes caps how much of a response body is read.
const defaultMaxBodyBytes = 16 << 20

// Error is a non-2xx response from the API.
type Error struct {
	Status int
	Body   string
}

func (e *Error) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("api: status %d: %s", e.Status, body)
}

// Unwrap lets errors.Is match ErrUnauthorized on 401 responses.
func (e *Error) Unwrap() error {
	if e.Status == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

// Config configures a Client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	// MaxBodyBytes defaults to 16 MiB.
	MaxBodyBytes int64
}

// Client calls the treasury API on behalf of a signed-in user.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	maxBodyBytes int64
}

// NewClient creates a client for the API rooted at cfg.BaseURL.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("api base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid api base URL: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}

	return &Client{
		httpClient:   httpClient,
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		maxBodyBytes: maxBody,
	}, nil
}

// FetchReport returns the raw body of a report for the given date.
func (c *Client) FetchReport(ctx context.Context, def report.Definition, date, token string) ([]byte, error) {
	if strings.TrimSpace(date) == "" {
		return nil, ErrMissingDate
	}
	q := url.Values{}
	q.Set(def.DateParam, date)
	return c.do(ctx, http.MethodGet, def.Endpoint+"?"+q.Encode(), token, nil)
}

// SignIn exchanges credentials for a token.
func (c *Client) SignIn(ctx context.Context, username, password string) (*SignInResponse, error) {
	body := SignInRequest{Username: username, Password: password}
	return doJSON[SignInResponse](ctx, c, http.MethodPost, "api/auth/login", "", body)
}

func doJSON[Resp any](ctx context.Context, c *Client, method, path, token string, reqBody any) (*Resp, error) {
	raw, err := c.do(ctx, method, path, token, reqBody)
	if err != nil {
		return nil, err
	}

	var result Resp
	if len(bytes.TrimSpace(raw)) == 0 {
		return &result, nil
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return &result, nil
}

func (c *Client) do(ctx context.Context, method, path, token string, reqBody any) ([]byte, error) {
	var body io.Reader
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+strings.TrimLeft(path, "/"), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(raw)) > c.maxBodyBytes {
		return nil, fmt.Errorf("api: %s %s: %w (limit %d bytes)", method, path, ErrResponseTooLarge, c.maxBodyBytes)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{Status: resp.StatusCode, Body: string(raw)}
	}
	return raw, nil
}
