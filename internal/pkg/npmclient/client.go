// Package npmclient is a small client for the public npm downloads API
// (https://api.npmjs.org). Each call makes exactly one HTTP request; there
// are no retries. A circuit breaker stops calls while the API keeps failing.
package npmclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"uikits/internal/core"
	"uikits/internal/httpclient"
)

const (
	// DefaultBaseURL is the public npm downloads API.
	DefaultBaseURL = "https://api.npmjs.org"

	// DefaultTimeout bounds a single range request.
	DefaultTimeout = 10 * time.Second

	sourceName = "npm"

	// A 30-day range is a few KB; anything near this is not a downloads payload.
	maxBodySize = 2 * 1024 * 1024
)

// ErrCircuitOpen is returned without a request while the breaker is open.
var ErrCircuitOpen = errors.New("npm downloads API temporarily unavailable")

// Config holds client settings.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string

	// CircuitBreaker is disabled when nil.
	CircuitBreaker *CircuitBreakerConfig
}

// CircuitBreakerConfig holds circuit breaker settings.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that open the circuit
	FailureThreshold int
	// SuccessThreshold is the number of half-open successes that close it again
	SuccessThreshold int
	// Timeout is how long the circuit stays open before a probe is let through
	Timeout time.Duration
}

// DefaultConfig returns the public API with a 10s timeout and a breaker that
// opens after 5 consecutive failures for 1 minute.
func DefaultConfig() Config {
	return Config{
		BaseURL:   DefaultBaseURL,
		Timeout:   DefaultTimeout,
		UserAgent: "uikits-npm-stats/1.0",
		CircuitBreaker: &CircuitBreakerConfig{
			FailureThreshold: 5,
			SuccessThreshold: 1,
			Timeout:          time.Minute,
		},
	}
}

// Client calls the npm downloads API.
type Client struct {
	httpClient     *http.Client
	config         Config
	circuitBreaker *circuitBreaker
}

// New creates a client with a tuned transport.
func New(config Config) *Client {
	httpCfg := httpclient.DefaultConfig()
	if config.Timeout > 0 {
		httpCfg.Timeout = config.Timeout
		httpCfg.ResponseHeaderTimeout = config.Timeout
	}
	return NewWithHTTPClient(httpclient.NewHTTPClient(&httpCfg), config)
}

// NewWithHTTPClient creates a client around an existing *http.Client.
func NewWithHTTPClient(httpClient *http.Client, config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	c := &Client{httpClient: httpClient, config: config}
	if config.CircuitBreaker != nil {
		c.circuitBreaker = newCircuitBreaker(
			config.CircuitBreaker.FailureThreshold,
			config.CircuitBreaker.SuccessThreshold,
			config.CircuitBreaker.Timeout,
		)
	}
	return c
}

// BaseURL returns the configured API root.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// CircuitState reports "closed", "open", "half-open", or "disabled".
func (c *Client) CircuitState() string {
	if c.circuitBreaker == nil {
		return "disabled"
	}
	return c.circuitBreaker.State()
}

// FetchRange returns daily downloads for pkg between start and end inclusive.
// Only the calendar date of start and end is used.
func (c *Client) FetchRange(ctx context.Context, pkg string, start, end time.Time) (*RangeResponse, error) {
	endpoint, err := RangePath(pkg, start, end)
	if err != nil {
		return nil, core.NewInvalidRequestError(err.Error(), err)
	}

	if c.circuitBreaker != nil && !c.circuitBreaker.Allow() {
		return nil, core.NewUpstreamError(sourceName, http.StatusServiceUnavailable, ErrCircuitOpen.Error(), ErrCircuitOpen)
	}

	body, status, err := c.doRequest(ctx, endpoint)
	if err != nil {
		// A caller that gave up says nothing about the API's health.
		if ctx.Err() == nil {
			c.recordFailure()
		}
		return nil, err
	}
	if status != http.StatusOK {
		// 404 means the package does not exist; the API itself is healthy.
		if status >= 500 || status == http.StatusTooManyRequests {
			c.recordFailure()
		} else {
			c.recordSuccess()
		}
		return nil, core.ParseUpstreamError(sourceName, status, body)
	}

	resp, err := ParseRange(body)
	if err != nil {
		c.recordFailure()
		return nil, core.NewUpstreamError(sourceName, http.StatusBadGateway, "invalid downloads payload: "+err.Error(), err)
	}
	c.recordSuccess()
	return resp, nil
}

// ValidatePackageName checks that pkg is a plain or scoped (@scope/name)
// npm package name usable in a URL path.
func ValidatePackageName(pkg string) error {
	if pkg == "" {
		return fmt.Errorf("package name is required")
	}
	if strings.ContainsAny(pkg, " \t\r\n?#") {
		return fmt.Errorf("invalid package name %q", pkg)
	}
	segments := strings.Split(pkg, "/")
	if len(segments) > 2 || (len(segments) == 2 && !strings.HasPrefix(segments[0], "@")) {
		return fmt.Errorf("invalid package name %q", pkg)
	}
	for _, s := range segments {
		if s == "" || s == "@" || s == "." || s == ".." {
			return fmt.Errorf("invalid package name %q", pkg)
		}
	}
	return nil
}

// RangePath builds /downloads/range/{start}:{end}/{pkg}. Scoped names keep
// their slash; each segment is escaped.
func RangePath(pkg string, start, end time.Time) (string, error) {
	pkg = strings.TrimSpace(pkg)
	if err := ValidatePackageName(pkg); err != nil {
		return "", err
	}
	if end.Before(start) {
		return "", fmt.Errorf("range end %s is before start %s", end.Format(dayLayout), start.Format(dayLayout))
	}

	segments := strings.Split(pkg, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}

	return fmt.Sprintf("/downloads/range/%s:%s/%s",
		start.UTC().Format(dayLayout), end.UTC().Format(dayLayout), strings.Join(segments, "/")), nil
}

func (c *Client) doRequest(ctx context.Context, endpoint string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+endpoint, nil)
	if err != nil {
		return nil, 0, core.NewInvalidRequestError("failed to create request", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "br, gzip, deflate")
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, core.NewUpstreamError(sourceName, http.StatusBadGateway, "failed to send request: "+err.Error(), err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return nil, 0, core.NewUpstreamError(sourceName, http.StatusBadGateway, "failed to read response: "+err.Error(), err)
	}
	if len(raw) > maxBodySize {
		return nil, 0, core.NewUpstreamError(sourceName, http.StatusBadGateway,
			fmt.Sprintf("response body too large (exceeds %d bytes)", maxBodySize), nil)
	}

	body, err := decodeBody(raw, resp.Header.Get("Content-Encoding"))
	if err != nil {
		return nil, 0, core.NewUpstreamError(sourceName, http.StatusBadGateway, "failed to decode response: "+err.Error(), err)
	}
	return body, resp.StatusCode, nil
}

func (c *Client) recordFailure() {
	if c.circuitBreaker != nil {
		c.circuitBreaker.RecordFailure()
	}
}

func (c *Client) recordSuccess() {
	if c.circuitBreaker != nil {
		c.circuitBreaker.RecordSuccess()
	}
}
