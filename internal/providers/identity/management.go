package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const defaultTimeout = 5 * time.Second

type Config struct {
	Domain          string
	ManagementToken string
	Timeout         time.Duration
}

// ManagementClient talks to an Auth0-compatible management API.
type ManagementClient struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewManagementClient(cfg Config) *ManagementClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.Domain), "/")
	if baseURL != "" && !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "https://" + baseURL
	}
	return &ManagementClient{
		baseURL: baseURL,
		token:   cfg.ManagementToken,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (c *ManagementClient) UpdateAppMetadata(ctx context.Context, userID string, metadata map[string]any) error {
	body, err := json.Marshal(map[string]any{"app_metadata": metadata})
	if err != nil {
		return err
	}
	resp, err := c.do(ctx, http.MethodPatch, userID, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *ManagementClient) GetUser(ctx context.Context, userID string) (User, error) {
	resp, err := c.do(ctx, http.MethodGet, userID, nil)
	if err != nil {
		return User{}, err
	}
	defer resp.Body.Close()

	var user User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return User{}, fmt.Errorf("%w: decode user: %v", ErrUnavailable, err)
	}
	return user, nil
}

func (c *ManagementClient) do(ctx context.Context, method, userID string, body []byte) (*http.Response, error) {
	endpoint := c.baseURL + "/api/v2/users/" + url.PathEscape(userID)

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, ErrUserNotFound
	case resp.StatusCode >= 300:
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, strings.TrimSpace(string(payload)))
	}
	return resp, nil
}
