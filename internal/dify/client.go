// Package dify is the client for the upstream Dify workflow API.
package dify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// defaultUser is the fixed end-user identifier sent with every workflow run.
const defaultUser = "default_user"

// StatusError reports a non-200 response from the Dify API.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("Dify API returned %d: %s", e.Code, e.Body)
}

// ErrReadTimeout reports that the upstream went silent for longer than the
// configured per-chunk read timeout.
var ErrReadTimeout = errors.New("Dify API read timeout")

// Client executes workflows against a Dify instance.
type Client struct {
	baseURL     string
	apiKey      string
	endpoint    string
	readTimeout time.Duration
	httpClient  *http.Client
}

func NewClient(baseURL, apiKey, endpoint string, readTimeout time.Duration) *Client {
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		endpoint:    endpoint,
		readTimeout: readTimeout,
		httpClient: &http.Client{
			// No overall timeout: streaming responses are long-lived. The
			// per-chunk watchdog bounds silence instead.
			Timeout: 0,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

type workflowPayload struct {
	Inputs       map[string]string `json:"inputs"`
	ResponseMode string            `json:"response_mode"`
	User         string            `json:"user"`
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
}

// ExecuteWorkflowStream starts a streaming workflow run and returns the raw
// SSE body. A non-200 upstream status surfaces as *StatusError; a silence
// longer than the read timeout surfaces from Read as ErrReadTimeout. Callers
// must close the returned body on every path.
func (c *Client) ExecuteWorkflowStream(ctx context.Context, userQuery string) (io.ReadCloser, error) {
	payload, err := json.Marshal(workflowPayload{
		Inputs:       map[string]string{"user_query": userQuery},
		ResponseMode: "streaming",
		User:         defaultUser,
	})
	if err != nil {
		return nil, fmt.Errorf("encode workflow request: %w", err)
	}

	reqCtx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+c.endpoint, bytes.NewReader(payload))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create workflow request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("Dify API connection error: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		cancel()
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	log.Debug().Str("url", c.baseURL+c.endpoint).Msg("connected to Dify API, streaming")
	return newTimeoutBody(resp.Body, c.readTimeout, cancel), nil
}

// ExecuteWorkflowBlocking runs the workflow in blocking mode and returns the
// decoded response. Used for diagnostics rather than the serving path.
func (c *Client) ExecuteWorkflowBlocking(ctx context.Context, userQuery string) (map[string]any, error) {
	payload, err := json.Marshal(workflowPayload{
		Inputs:       map[string]string{"user_query": userQuery},
		ResponseMode: "blocking",
		User:         defaultUser,
	})
	if err != nil {
		return nil, fmt.Errorf("encode workflow request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.readTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create workflow request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Dify API connection error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode workflow response: %w", err)
	}
	return out, nil
}

// HealthCheck reports whether the Dify API is reachable. Any response short
// of a server error counts as healthy.
func (c *Client) HealthCheck(ctx context.Context) bool {
	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodHead, c.baseURL, nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Error().Err(err).Msg("Dify API health check failed")
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}
