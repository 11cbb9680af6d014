// Package client talks to the terminology server's search and FHIR endpoints.
package client

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

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// ErrUnavailable is returned without a network call while the breaker is open.
var ErrUnavailable = errors.New("terminology service unavailable")

// StatusError reports a non-2xx response.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(string(e.Body))
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	if body == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, body)
}

// Options tunes a Client. Zero values mean no request timeout, a breaker that
// opens after 5 consecutive failures, and a 30s cooldown.
type Options struct {
	HTTPClient      *http.Client
	Timeout         time.Duration
	BreakerFailures uint32
	BreakerCooldown time.Duration
	Logger          zerolog.Logger
}

// Client is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	cb      *gobreaker.CircuitBreaker
	logger  zerolog.Logger
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts Options) *Client {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 5
	}
	if opts.BreakerCooldown <= 0 {
		opts.BreakerCooldown = 30 * time.Second
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    opts.HTTPClient,
		timeout: opts.Timeout,
		logger:  opts.Logger,
	}

	failures := opts.BreakerFailures
	c.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "terminology-api",
		MaxRequests: 1,
		Timeout:     opts.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
		IsSuccessful: isSuccessful,
	})

	return c
}

// isSuccessful counts only outages against the breaker. Client errors and
// requests the caller abandoned say nothing about the server's health.
func isSuccessful(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode < http.StatusInternalServerError
	}
	return false
}

// BaseURL returns the server root the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// Search returns the terms whose NAMASTE name contains query. Each term keeps
// the object the server sent.
func (c *Client) Search(ctx context.Context, query string) ([]Term, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/search?q="+url.QueryEscape(query), nil)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}

	var terms []Term
	if err := json.Unmarshal(body, &terms); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	if terms == nil {
		terms = []Term{}
	}
	return terms, nil
}

// GenerateFHIR posts the term's original object byte for byte and returns the
// server's FHIR resource as received, so key order survives for display.
func (c *Client) GenerateFHIR(ctx context.Context, term *Term) (json.RawMessage, error) {
	if term == nil || len(term.Raw) == 0 {
		return nil, errors.New("generate fhir: term has no JSON object")
	}
	payload := []byte(term.Raw)

	body, err := c.do(ctx, http.MethodPost, "/api/generate_fhir", payload)
	if err != nil {
		return nil, fmt.Errorf("generate fhir for %q: %w", term.NamasteTerm, err)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("generate fhir for %q: response is not JSON", term.NamasteTerm)
	}
	return json.RawMessage(body), nil
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	out, err := c.cb.Execute(func() (interface{}, error) {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		start := time.Now()
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}

		c.logger.Debug().
			Str("method", method).
			Str("path", path).
			Int("status", resp.StatusCode).
			Dur("latency", time.Since(start)).
			Msg("api call")

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, &StatusError{StatusCode: resp.StatusCode, Body: data}
		}
		return data, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrUnavailable
		}
		return nil, err
	}
	return out.([]byte), nil
}

// PrettyJSON re-indents raw JSON with two spaces, preserving key order.
func PrettyJSON(raw []byte) (string, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return "", err
	}
	return buf.String(), nil
}
