package upstream

import (
	"net/http"
	"net/url"
	"os"
	"strings"
)

// Hostnames that never go through a proxy, regardless of environment.
var alwaysDirect = []string{
	"localhost",
	"127.0.0.1",
	"0.0.0.0",
	"::1",
	"host.docker.internal",
}

// ShouldBypassProxy reports whether requests to rawURL must skip any
// configured proxy. Loopback and docker-internal hosts always bypass;
// NO_PROXY entries are honored with suffix matching.
func ShouldBypassProxy(rawURL string) bool {
	host := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	host = strings.ToLower(strings.Trim(host, "[]"))

	for _, h := range alwaysDirect {
		if host == h {
			return true
		}
	}

	noProxy := os.Getenv("NO_PROXY")
	if noProxy == "" {
		noProxy = os.Getenv("no_proxy")
	}
	for _, entry := range strings.Split(noProxy, ",") {
		entry = strings.ToLower(strings.TrimSpace(entry))
		if entry == "" {
			continue
		}
		if host == entry || strings.HasSuffix(host, "."+strings.TrimPrefix(entry, ".")) {
			return true
		}
	}
	return false
}

// ProxyFunc is an http.Transport proxy selector that applies the bypass
// rules before deferring to the environment.
func ProxyFunc(req *http.Request) (*url.URL, error) {
	if ShouldBypassProxy(req.URL.String()) {
		return nil, nil
	}
	return http.ProxyFromEnvironment(req)
}
