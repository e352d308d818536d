package upstream

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// dnsTTL bounds how long a resolved address may be reused.
const dnsTTL = 300 * time.Second

// DNSCache memoizes hostname lookups for dialing. It only affects which
// address the TCP connection targets; TLS verification still runs against
// the hostname, so a stale entry can fail but never mislead.
type DNSCache struct {
	mu      sync.Mutex
	entries map[string]dnsEntry

	// test seams
	lookup func(ctx context.Context, host string) ([]string, error)
	now    func() time.Time
}

type dnsEntry struct {
	addrs   []string
	expires time.Time
}

func NewDNSCache() *DNSCache {
	return &DNSCache{
		entries: make(map[string]dnsEntry),
		lookup: func(ctx context.Context, host string) ([]string, error) {
			return net.DefaultResolver.LookupHost(ctx, host)
		},
		now: time.Now,
	}
}

// Resolve returns cached addresses for host, refreshing on expiry.
func (c *DNSCache) Resolve(ctx context.Context, host string) ([]string, error) {
	c.mu.Lock()
	if e, ok := c.entries[host]; ok && c.now().Before(e.expires) {
		addrs := e.addrs
		c.mu.Unlock()
		return addrs, nil
	}
	c.mu.Unlock()

	addrs, err := c.lookup(ctx, host)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.entries[host] = dnsEntry{addrs: addrs, expires: c.now().Add(dnsTTL)}
	c.mu.Unlock()
	log.Debug().Str("host", host).Strs("addrs", addrs).Msg("dns cache refresh")
	return addrs, nil
}

// DialContext wraps a dialer so connections reuse cached lookups. Literal
// IPs and lookup failures fall back to the plain dialer.
func (c *DNSCache) DialContext(base *net.Dialer) func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil || net.ParseIP(host) != nil {
			return base.DialContext(ctx, network, addr)
		}
		addrs, err := c.Resolve(ctx, host)
		if err != nil || len(addrs) == 0 {
			return base.DialContext(ctx, network, addr)
		}
		var lastErr error
		for _, ip := range addrs {
			conn, err := base.DialContext(ctx, network, net.JoinHostPort(ip, port))
			if err == nil {
				return conn, nil
			}
			lastErr = err
		}
		return nil, lastErr
	}
}
