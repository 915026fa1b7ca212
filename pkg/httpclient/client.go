package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"time"
)

// ErrNilContext is returned by Do when called without a context.
var ErrNilContext = errors.New("httpclient: nil context")

// Config defines the setup for the HTTP Client.
type Config struct {
	Timeout time.Duration
	// MaxRedirects caps followed redirects; a negative value disables them.
	MaxRedirects int
	// UseCookieJar gives every session its own cookie jar.
	UseCookieJar bool
	// Transport is shared by every session, e.g. a proxy or uTLS round tripper.
	Transport http.RoundTripper
}

// Client wraps a standard http.Client. Sessions derived from it share the
// transport, and therefore its connection pool, but not cookies.
type Client struct {
	*http.Client
	cfg Config
}

// New creates a new HTTP client based on the provided configuration.
func New(cfg Config) (*Client, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	c, err := build(cfg)
	if err != nil {
		return nil, err
	}
	return &Client{Client: c, cfg: cfg}, nil
}

// Session returns a client with a fresh cookie jar over the same transport.
func (c *Client) Session() (*Client, error) {
	hc, err := build(c.cfg)
	if err != nil {
		return nil, err
	}
	return &Client{Client: hc, cfg: c.cfg}, nil
}

func build(cfg Config) (*http.Client, error) {
	c := &http.Client{Timeout: cfg.Timeout}

	if cfg.MaxRedirects >= 0 {
		limit := cfg.MaxRedirects
		c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			if len(via) >= limit {
				return fmt.Errorf("stopped after %d redirects", limit)
			}
			return nil
		}
	} else {
		c.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	if cfg.UseCookieJar {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("cookie jar: %w", err)
		}
		c.Jar = jar
	}

	if cfg.Transport != nil {
		c.Transport = cfg.Transport
	}
	return c, nil
}

// Do executes req under ctx, which bounds the request independently of the
// client timeout.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	resp, err := c.Client.Do(req.Clone(ctx))
	if err != nil {
		return nil, fmt.Errorf("http do: %w", err)
	}
	return resp, nil
}
