package simulate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/posture/internal/domain/model"
	"github.com/okian/posture/pkg/logger"
)

// HTTPClient wraps http.Client with a timeout.
type HTTPClient struct {
	client *http.Client
}

func newHTTPClient(timeout time.Duration) *HTTPClient {
	return &HTTPClient{client: &http.Client{Timeout: timeout}}
}

// Get performs a GET request bound to ctx.
func (c *HTTPClient) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.client.Do(req)
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, cfg *Config) error {
	logger.Get().Info(ctx, "checking service health")

	resp, err := newHTTPClient(cfg.Timeout).Get(ctx, cfg.BaseURL+HealthPath)
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("service health check failed with status: %d", resp.StatusCode)
	}
	logger.Get().Info(ctx, "service is healthy")
	return nil
}

// fetchPoses lists the poses the service offers.
func fetchPoses(ctx context.Context, cfg *Config) ([]model.PoseInfo, error) {
	resp, err := newHTTPClient(cfg.Timeout).Get(ctx, cfg.BaseURL+PosesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to list poses: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pose listing failed with status: %d", resp.StatusCode)
	}
	var poses []model.PoseInfo
	if err := json.NewDecoder(resp.Body).Decode(&poses); err != nil {
		return nil, fmt.Errorf("failed to decode poses: %w", err)
	}
	return poses, nil
}

// practiceURL turns the service base URL into the websocket endpoint.
func practiceURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base url %q: %w", base, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + PracticePath
	return u.String(), nil
}

// dial opens one practice connection, authenticated when token is set.
func dial(ctx context.Context, cfg *Config) (*websocket.Conn, error) {
	target, err := practiceURL(cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	if cfg.Token != "" {
		header.Set("Authorization", "Bearer "+cfg.Token)
	}
	dialer := websocket.Dialer{HandshakeTimeout: cfg.Timeout}
	conn, resp, err := dialer.DialContext(ctx, target, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", target, err)
	}
	return conn, nil
}
