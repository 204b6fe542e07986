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

	"github.com/gorilla/websocket"
	"github.com/pscheid92/worldsync/internal/domain"
	apperrors "github.com/pscheid92/worldsync/internal/platform/errors"
	"github.com/pscheid92/worldsync/internal/platform/retry"
	"github.com/pscheid92/worldsync/internal/platform/version"
	"github.com/pscheid92/worldsync/internal/protocol"
)

const (
	defaultTimeout   = 10 * time.Second
	maxResponseBytes = 1 << 20
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Type       apperrors.ErrorType
	Message    string
}

func (e *APIError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("server returned %d (%s): %s", e.StatusCode, e.Type, e.Message)
}

// Client is safe for concurrent use.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	dialer     *websocket.Dialer
	userAgent  string
	retry      retry.Policy
	parser     *protocol.Parser
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Client) { c.retry = p }
}

func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// DefaultRetryPolicy reconnects for about a minute before giving up.
func DefaultRetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:      8,
		InitialBackoff:   250 * time.Millisecond,
		MaxBackoff:       10 * time.Second,
		RateLimitBackoff: 5 * time.Second,
	}
}

// New creates a client for the server at baseURL, e.g. http://localhost:8080.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("server URL must be http or https, got %q", baseURL)
	}

	parser, err := protocol.NewParser()
	if err != nil {
		return nil, fmt.Errorf("build packet parser: %w", err)
	}

	c := &Client{
		baseURL:    u,
		httpClient: &http.Client{Timeout: defaultTimeout},
		dialer:     websocket.DefaultDialer,
		userAgent:  version.UserAgent("worldsync-client"),
		retry:      DefaultRetryPolicy(),
		parser:     parser,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// World returns the whole world.
func (c *Client) World(ctx context.Context) (domain.World, error) {
	var w domain.World
	if err := c.do(ctx, http.MethodGet, "/world", nil, &w); err != nil {
		return nil, err
	}
	return w, nil
}

// Get returns the entity's properties; an absent entity yields an empty map.
func (c *Client) Get(ctx context.Context, entity string) (domain.Properties, error) {
	var props domain.Properties
	if err := c.do(ctx, http.MethodGet, entityPath("/entity/", entity), nil, &props); err != nil {
		return nil, err
	}
	return props, nil
}

// Update merges props into the entity and returns the resolved properties.
// Subscribers are not notified.
func (c *Client) Update(ctx context.Context, entity string, props domain.Properties) (domain.Properties, error) {
	var resolved domain.Properties
	if err := c.do(ctx, http.MethodPost, entityPath("/entity/", entity), props, &resolved); err != nil {
		return nil, err
	}
	return resolved, nil
}

// Replace sets the entity to exactly props. Subscribers receive the new state.
func (c *Client) Replace(ctx context.Context, entity string, props domain.Properties) (domain.Properties, error) {
	var resolved domain.Properties
	if err := c.do(ctx, http.MethodPut, entityPath("/world/", entity), props, &resolved); err != nil {
		return nil, err
	}
	return resolved, nil
}

// Clear empties the world and returns it.
func (c *Client) Clear(ctx context.Context) (domain.World, error) {
	var w domain.World
	if err := c.do(ctx, http.MethodPost, "/clear", nil, &w); err != nil {
		return nil, err
	}
	return w, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp.StatusCode, data)
	}

	if err := protocol.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Message: http.StatusText(status)}

	var structured apperrors.ErrorResponse
	if err := json.Unmarshal(body, &structured); err == nil && structured.Error != "" {
		apiErr.Type = structured.Type
		apiErr.Message = structured.Error
		return apiErr
	}

	// echo's own errors use {"message": "..."}
	var plain struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &plain); err == nil && plain.Message != "" {
		apiErr.Message = plain.Message
	}
	return apiErr
}

func entityPath(prefix, entity string) string {
	return prefix + url.PathEscape(entity)
}

// IsStatus reports whether err is an APIError with the given status code.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}
