package upstream

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/agentbridge/agentbridge/internal/auth"
	"github.com/agentbridge/agentbridge/internal/state"
	"github.com/agentbridge/agentbridge/internal/wire"
)

// Client sends encoded envelopes to the upstream agent endpoint and consumes
// its event stream.
type Client struct {
	URL    string // full URL of the agent send endpoint
	Codec  wire.Codec
	Tokens auth.TokenSource

	// Identification headers the upstream requires on every request.
	ClientVersion string
	OSCategory    string
	OSVersion     string

	// Message-type tags handed to the codec.
	RequestType  string
	ResponseType string

	Session    *state.Session // optional, fed from init events
	HTTPClient *http.Client   // defaults to NewHTTPClient(nil)

	// test seam
	sleep func(ctx context.Context, d time.Duration) error
}

// sleepFn returns the backoff clock, a real timed wait unless a test
// installed one.
func (c *Client) sleepFn() func(ctx context.Context, d time.Duration) error {
	if c.sleep != nil {
		return c.sleep
	}
	return func(ctx context.Context, d time.Duration) error {
		select {
		case <-time.After(d):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// NewHTTPClient returns a client tuned for long-lived event streams: quick
// connects, generous read window, pooled keep-alive connections. No overall
// client timeout — streams regularly outlive any sane value; cancellation
// comes from the request context.
func NewHTTPClient(dns *DNSCache) *http.Client {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		Proxy:                 ProxyFunc,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       120 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 300 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if dns != nil {
		transport.DialContext = dns.DialContext(dialer)
	}
	return &http.Client{Transport: transport}
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	c.HTTPClient = NewHTTPClient(nil)
	return c.HTTPClient
}
