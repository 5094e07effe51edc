package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

var (
	// ErrNetwork marks transient failures: connection errors, timeouts, 5xx and 429.
	ErrNetwork = errors.New("network error")
	// ErrAuth marks 401 and 403 responses. Retrying will not help.
	ErrAuth = errors.New("authentication failed")
	// ErrNotFound marks 404 responses. Retrying will not help.
	ErrNotFound = errors.New("not found")
	// ErrUnexpectedStatus marks any other non-200 response.
	ErrUnexpectedStatus = errors.New("unexpected http status")
)

const (
	// DefaultTimeout bounds connecting and waiting for response headers.
	DefaultTimeout = 30 * time.Second
	// errorBodyLimit caps how much of an error body is quoted.
	errorBodyLimit = 512
)

// Client issues GET requests against release hosts and repositories.
type Client struct {
	// http performs the requests.
	http *http.Client
	// token is sent as a bearer token when not empty.
	token string
	// userAgent identifies the updater.
	userAgent string
	// callTimeout bounds connecting and waiting for headers; bodies stream without a deadline.
	callTimeout time.Duration
}

// Option configures the client.
type Option func(*Client)

// WithTimeout sets the connect and response-header timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.callTimeout = timeout
		}
	}
}

// WithToken attaches "Authorization: Bearer <token>" to requests.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

// WithHTTPClient replaces the underlying client, mostly for tests.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.http = httpClient
		}
	}
}

// New builds a client. Without options it uses DefaultTimeout and no token.
func New(opts ...Option) *Client {
	c := &Client{
		callTimeout: DefaultTimeout,
		userAgent:   "auto-updater",
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.http == nil {
		c.http = &http.Client{
			Transport: newTransport(c.callTimeout),
		}
	}

	return c
}

// newTransport bounds each phase of a request but not the body download.
func newTransport(timeout time.Duration) *http.Transport {
	dialer := &net.Dialer{Timeout: timeout}

	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   timeout,
		ResponseHeaderTimeout: timeout,
		IdleConnTimeout:       90 * time.Second, //nolint:mnd // Matches net/http's default transport.
		ForceAttemptHTTP2:     true,
	}
}

// Authenticated reports whether a bearer token is configured.
func (c *Client) Authenticated() bool {
	return c.token != ""
}

// Get performs a GET and returns the response when the status is 200.
// Any other status closes the body and returns an error wrapping one of
// the package sentinels. The caller must close the returned body.
func (c *Client) Get(ctx context.Context, url, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build request %s: %w", url, err)
	}

	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("get %s: %w", url, ctxErr)
		}

		return nil, fmt.Errorf("get %s: %w: %w", url, ErrNetwork, err)
	}

	if err = CheckStatus(resp); err != nil {
		_ = resp.Body.Close()

		return nil, fmt.Errorf("get %s: %w", url, err)
	}

	return resp, nil
}

// GetJSON performs a GET and decodes a JSON body into v.
func (c *Client) GetJSON(ctx context.Context, url, accept string, v any) error {
	resp, err := c.Get(ctx, url, accept)
	if err != nil {
		return err
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if err = json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}

	return nil
}

// CheckStatus maps a response status onto the package errors.
// It reads at most a short prefix of the body for the message.
func CheckStatus(resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}

	var sentinel error

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		sentinel = ErrAuth
	case resp.StatusCode == http.StatusNotFound:
		sentinel = ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= http.StatusInternalServerError:
		sentinel = ErrNetwork
	default:
		sentinel = ErrUnexpectedStatus
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
	if len(body) == 0 {
		return fmt.Errorf("%w: %s", sentinel, resp.Status)
	}

	return fmt.Errorf("%w: %s: %s", sentinel, resp.Status, body)
}

// IsTransient reports whether retrying err may succeed: only network
// failures qualify, and never once the caller gave up.
func IsTransient(err error) bool {
	return errors.Is(err, ErrNetwork) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}
