// Package history is the client of the practice history service.
package history

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/okian/posture/internal/domain/model"
	"github.com/okian/posture/pkg/metrics"
)

// API paths of the history service.
const (
	SessionsPath = "/ai-practice/sessions"
	HistoryPath  = "/ai-practice/history"
	StatsPath    = "/ai-practice/stats"
)

const (
	defaultBaseURL   = "127.0.0.1:8080"
	defaultUserAgent = "posture/0.1"
	requestTimeout   = 5 * time.Second
)

// StatusError reports a non-2xx response.
type StatusError struct {
	Path string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api %s returned status %d", e.Path, e.Code)
}

// Client talks to the history HTTP API on behalf of one bearer token per call.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	userAgent string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// NewClient builds a Client for a host:port or URL.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	base, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	c := &Client{
		baseURL:   base,
		http:      &http.Client{Timeout: requestTimeout},
		userAgent: defaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// CreateSession saves rec for the token's user.
func (c *Client) CreateSession(ctx context.Context, token string, rec model.SessionRecord) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	defer observe("client_create", time.Now())
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return c.do(ctx, http.MethodPost, &url.URL{Path: SessionsPath}, token, bytes.NewReader(body), nil)
}

// History returns up to limit sessions for the token's user, newest first.
func (c *Client) History(ctx context.Context, token string, limit int) ([]model.PracticeSession, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	defer observe("client_history", time.Now())
	values := url.Values{}
	if limit > 0 {
		values.Set("limit", strconv.Itoa(limit))
	}
	var payload []model.PracticeSession
	if err := c.do(ctx, http.MethodGet, &url.URL{Path: HistoryPath, RawQuery: values.Encode()}, token, nil, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// Stats returns the aggregates for the token's user.
func (c *Client) Stats(ctx context.Context, token string) (model.PracticeStats, error) {
	if c == nil {
		return model.PracticeStats{}, fmt.Errorf("client is nil")
	}
	defer observe("client_stats", time.Now())
	var payload model.PracticeStats
	if err := c.do(ctx, http.MethodGet, &url.URL{Path: StatsPath}, token, nil, &payload); err != nil {
		return model.PracticeStats{}, err
	}
	return payload, nil
}

func (c *Client) do(ctx context.Context, method string, rel *url.URL, token string, body io.Reader, dest any) error {
	reqURL := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return &StatusError{Path: rel.Path, Code: resp.StatusCode}
	}
	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func parseBaseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		trimmed = defaultBaseURL
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse history url %q: %w", raw, err)
	}
	u.Path = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}

func observe(op string, start time.Time) {
	metrics.RecordHistoryLatency(op, float64(time.Since(start).Microseconds())/1000)
}

// TokenRecorder saves finished sessions through the client with a fixed
// bearer token.
type TokenRecorder struct {
	Client *Client
	Token  string
}

// CreateSession implements the session recorder port.
func (r TokenRecorder) CreateSession(ctx context.Context, rec model.SessionRecord) error {
	return r.Client.CreateSession(ctx, r.Token, rec)
}
