package viewer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ernie/hostlog/internal/domain"
	"github.com/ernie/hostlog/internal/logquery"
)

// SessionHeader carries the view session id between client and server
const SessionHeader = "X-Log-Session"

const (
	defaultAPIAddr   = "127.0.0.1:8080"
	defaultUserAgent = "hostlog/1.0"
	requestTimeout   = 15 * time.Second
)

// Ensure Client implements Fetcher at compile time.
var _ Fetcher = (*Client)(nil)

// Client talks to the hostlog HTTP API. It keeps the view session the
// server hands out so repeated reads reuse the server's line index.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	token     string
	userAgent string

	mu      sync.Mutex
	session string
}

// NewClient builds a Client for the API at addr (host:port or URL),
// authenticating with token when it is non-empty.
func NewClient(addr, token string) (*Client, error) {
	base, err := parseBaseURL(addr)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL:   base,
		http:      &http.Client{Timeout: requestTimeout},
		token:     token,
		userAgent: defaultUserAgent,
	}, nil
}

// BaseURL returns the API root
func (c *Client) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

// Token returns the bearer token the client sends
func (c *Client) Token() string {
	return c.token
}

// Session returns the current view session id, empty before the first read
func (c *Client) Session() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// FetchWindow reads count lines around percent of a server's log
func (c *Client) FetchWindow(ctx context.Context, serverID int64, req logquery.PercentRequest) (*logquery.Window, error) {
	values := url.Values{}
	values.Set("percent", strconv.FormatFloat(req.Percent, 'f', -1, 64))
	if req.Count > 0 {
		values.Set("count", strconv.Itoa(req.Count))
	}
	if q := strings.TrimSpace(req.Query); q != "" {
		values.Set("q", q)
	}
	rel := &url.URL{Path: fmt.Sprintf("/api/servers/%d/logs", serverID), RawQuery: values.Encode()}

	var payload logquery.Window
	if err := c.doURL(ctx, rel, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// FetchChunk reads one forward or reverse page of a server's log
func (c *Client) FetchChunk(ctx context.Context, serverID int64, req logquery.ChunkRequest) (*logquery.Result, error) {
	direction := "forward"
	if req.Reverse {
		direction = "reverse"
	}
	values := url.Values{}
	values.Set("offset", strconv.Itoa(req.Offset))
	if req.ChunkSize > 0 {
		values.Set("chunk_size", strconv.Itoa(req.ChunkSize))
	}
	if q := strings.TrimSpace(req.Query); q != "" {
		values.Set("q", q)
	}
	rel := &url.URL{Path: fmt.Sprintf("/api/servers/%d/logs/%s", serverID, direction), RawQuery: values.Encode()}

	var payload logquery.Result
	if err := c.doURL(ctx, rel, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// Servers lists the registered game servers
func (c *Client) Servers(ctx context.Context) ([]domain.Server, error) {
	var payload []domain.Server
	if err := c.doURL(ctx, &url.URL{Path: "/api/servers"}, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// LogStatus describes a server's log file
func (c *Client) LogStatus(ctx context.Context, serverID int64) (*domain.LogStatus, error) {
	var payload domain.LogStatus
	rel := &url.URL{Path: fmt.Sprintf("/api/servers/%d/log-status", serverID)}
	if err := c.doURL(ctx, rel, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// APIError is a non-2xx answer from the server
type APIError struct {
	Path    string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api %s returned status %d: %s", e.Path, e.Status, e.Message)
	}
	return fmt.Sprintf("api %s returned status %d", e.Path, e.Status)
}

func (c *Client) doURL(ctx context.Context, rel *url.URL, dest any) error {
	if session := c.Session(); session != "" {
		q := rel.Query()
		q.Set("session", session)
		rel.RawQuery = q.Encode()
	}
	reqURL := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if session := resp.Header.Get(SessionHeader); session != "" {
		c.mu.Lock()
		c.session = session
		c.mu.Unlock()
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Path: rel.Path, Status: resp.StatusCode}
		var body struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&body) == nil {
			apiErr.Message = body.Error
		}
		return apiErr
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func parseBaseURL(addr string) (*url.URL, error) {
	trimmed := strings.TrimSpace(addr)
	if trimmed == "" {
		trimmed = defaultAPIAddr
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse server address %q: %w", addr, err)
	}
	u.Path = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
