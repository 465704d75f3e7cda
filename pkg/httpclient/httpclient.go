// Package httpclient provides a shared, pooled HTTP client factory for
// probe execution. All probing packages should obtain clients here so
// that connections to a target are reused across probes.
package httpclient

import (
	"crypto/tls"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/exploitprobe/exploitprobe/pkg/defaults"
)

// Config holds HTTP client configuration options.
type Config struct {
	// Timeout is the total per-request timeout (default: defaults.ProbeTimeout).
	// Enforced client-side so a hanging target can never block a caller
	// beyond this bound.
	Timeout time.Duration

	// InsecureSkipVerify skips TLS certificate verification
	// (default: true — probe targets routinely present broken certs).
	InsecureSkipVerify bool

	// Proxy is an optional HTTP/HTTPS proxy URL.
	Proxy string

	// FollowRedirects makes the client follow redirect chains.
	// When false (the default) the client returns the redirect response
	// itself, which is what fingerprinting wants to see.
	FollowRedirects bool

	// MaxIdleConns is the idle connection ceiling across all hosts.
	MaxIdleConns int

	// MaxConnsPerHost bounds concurrent connections to a single host.
	MaxConnsPerHost int

	// IdleConnTimeout is how long idle connections stay in the pool.
	IdleConnTimeout time.Duration

	// DialTimeout is the timeout for establishing connections.
	DialTimeout time.Duration

	// TLSHandshakeTimeout is the timeout for the TLS handshake.
	TLSHandshakeTimeout time.Duration
}

// DefaultConfig returns defaults tuned for probing workloads:
// pooled connections, bounded per-host fan-out, no redirect following.
func DefaultConfig() Config {
	return Config{
		Timeout:             defaults.ProbeTimeout,
		InsecureSkipVerify:  true,
		MaxIdleConns:        defaults.MaxIdleConns,
		MaxConnsPerHost:     defaults.MaxConnsPerHost,
		IdleConnTimeout:     defaults.IdleConnTimeout,
		DialTimeout:         defaults.DialTimeout,
		TLSHandshakeTimeout: defaults.TLSHandshakeTimeout,
	}
}

var (
	defaultClient *http.Client
	defaultOnce   sync.Once
)

// Default returns a shared, pre-configured HTTP client.
// Safe for concurrent use; all probing paths should prefer Default()
// over building their own clients so pooling actually pays off.
func Default() *http.Client {
	defaultOnce.Do(func() {
		defaultClient = New(DefaultConfig())
	})
	return defaultClient
}

// New creates an HTTP client from cfg. Zero values fall back to the
// package defaults.
func New(cfg Config) *http.Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaults.ProbeTimeout
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = defaults.MaxIdleConns
	}
	if cfg.MaxConnsPerHost == 0 {
		cfg.MaxConnsPerHost = defaults.MaxConnsPerHost
	}
	if cfg.IdleConnTimeout == 0 {
		cfg.IdleConnTimeout = defaults.IdleConnTimeout
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaults.DialTimeout
	}
	if cfg.TLSHandshakeTimeout == 0 {
		cfg.TLSHandshakeTimeout = defaults.TLSHandshakeTimeout
	}

	dialer := &net.Dialer{
		Timeout:   cfg.DialTimeout,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,

		ForceAttemptHTTP2:     true,
		ExpectContinueTimeout: 1 * time.Second,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,

		DialContext: dialer.DialContext,

		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		},
	}

	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err == nil && proxyURL != nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
		// Malformed proxy URLs are ignored; probing continues direct.
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
	}
	if !cfg.FollowRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return client
}

// WithTimeout returns DefaultConfig with only the timeout changed.
func WithTimeout(timeout time.Duration) Config {
	cfg := DefaultConfig()
	cfg.Timeout = timeout
	return cfg
}
