// Package auth supplies bearer tokens for the upstream connection. Token
// acquisition lives outside the translation core; the streamer only ever
// asks for a usable token and, on quota exhaustion, for a fresh one.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// TokenSource yields bearer tokens for upstream requests.
type TokenSource interface {
	// Token returns the current usable token.
	Token(ctx context.Context) (string, error)
	// Refresh obtains a fresh token after a quota-exhaustion signal and
	// makes it the current one.
	Refresh(ctx context.Context) (string, error)
}

// Static is a TokenSource with a fixed value. Refresh hands back the same
// token, which suits deployments where an intercepting proxy injects real
// credentials.
type Static struct {
	Value string
}

func (s Static) Token(context.Context) (string, error)   { return s.Value, nil }
func (s Static) Refresh(context.Context) (string, error) { return s.Value, nil }

// Refresher obtains tokens from an HTTP refresh endpoint. The endpoint is
// POSTed with no body and answers {"token": "..."} (or {"access_token"}).
type Refresher struct {
	URL        string
	APIKey     string // optional, forwarded as X-API-Key
	HTTPClient *http.Client

	mu      sync.Mutex
	current string
}

// NewRefresher seeds the source with an initial token; the first Refresh
// replaces it.
func NewRefresher(url, initial string) *Refresher {
	return &Refresher{URL: url, current: initial}
}

func (r *Refresher) Token(ctx context.Context) (string, error) {
	r.mu.Lock()
	tok := r.current
	r.mu.Unlock()
	if tok != "" {
		return tok, nil
	}
	return r.Refresh(ctx)
}

func (r *Refresher) Refresh(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL, nil)
	if err != nil {
		return "", err
	}
	if r.APIKey != "" {
		req.Header.Set("X-API-Key", r.APIKey)
	}
	hc := r.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("token refresh: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("token refresh status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	var out struct {
		Token       string `json:"token"`
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("token refresh decode: %w", err)
	}
	tok := out.Token
	if tok == "" {
		tok = out.AccessToken
	}
	if tok == "" {
		return "", fmt.Errorf("token refresh: empty token in response")
	}
	r.mu.Lock()
	r.current = tok
	r.mu.Unlock()
	log.Debug().Msg("refreshed upstream bearer token")
	return tok, nil
}
