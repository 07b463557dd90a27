package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"transitions-api-go/services/transitions"
	"transitions-api-go/status"

	log "github.com/sirupsen/logrus"
)

// rateLimitedCode is what the server's own limiter answers with
const rateLimitedCode = "RATE_LIMIT_EXCEEDED"

const maxBackoff = 2 * time.Minute

// APIError is a failure envelope returned by the server
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// Retryable reports whether the same request may succeed later
func (e *APIError) Retryable() bool {
	if e.Code == rateLimitedCode {
		return true
	}
	return transitions.Kind(e.Code).Retryable()
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Client talks to a transitions server
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client

	retries int
	backoff time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
}

// ClientOptions configures a Client
type ClientOptions struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Retries int
	Backoff time.Duration
}

// NewClient creates a client for the server at opts.BaseURL
func NewClient(opts ClientOptions) *Client {
	if opts.Backoff <= 0 {
		opts.Backoff = time.Second
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		apiKey:  opts.APIKey,
		http:    &http.Client{Timeout: opts.Timeout},
		retries: opts.Retries,
		backoff: opts.Backoff,
		sleep:   sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Generate requests a transition, retrying retryable failures
func (c *Client) Generate(ctx context.Context, req transitions.Request) (transitions.Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return transitions.Result{}, err
	}

	var result transitions.Result
	for attempt := 0; ; attempt++ {
		err = c.do(ctx, http.MethodPost, "/transitions/generate", body, &result)
		if err == nil {
			return result, nil
		}

		apiErr, ok := err.(*APIError)
		if ok && !apiErr.Retryable() {
			return transitions.Result{}, err
		}
		if attempt >= c.retries {
			return transitions.Result{}, fmt.Errorf("giving up after %d attempts: %w", attempt+1, err)
		}

		wait := c.delay(attempt, apiErr)
		log.WithField("attempt", attempt+1).Warnf("Generate failed (%v), retrying in %v", err, wait)
		if err := c.sleep(ctx, wait); err != nil {
			return transitions.Result{}, err
		}
	}
}

// delay honors the server's Retry-After when it sent one, otherwise backs off exponentially
func (c *Client) delay(attempt int, apiErr *APIError) time.Duration {
	if apiErr != nil && apiErr.RetryAfter > 0 {
		return apiErr.RetryAfter
	}
	d := c.backoff << attempt
	if d <= 0 || d > maxBackoff {
		d = maxBackoff
	}
	return d
}

// Status fetches the tracked status of a transition
func (c *Client) Status(ctx context.Context, id string) (*status.Status, error) {
	var st status.Status
	if err := c.do(ctx, http.MethodGet, "/transitions/status/"+id, nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Download streams the transition audio into w and returns the byte count
func (c *Client) Download(ctx context.Context, id string, w io.Writer) (int64, error) {
	resp, err := c.send(ctx, http.MethodGet, "/transitions/"+id, nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, decodeError(resp)
	}
	return io.Copy(w, resp.Body)
}

func (c *Client) send(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	return c.http.Do(req)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	resp, err := c.send(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return json.Unmarshal(env.Data, out)
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Code:       string(transitions.KindInternal),
		Message:    resp.Status,
	}
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
		apiErr.RetryAfter = time.Duration(secs) * time.Second
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err == nil && env.Error != nil {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
	}
	return apiErr
}
