package upstream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/agentbridge/agentbridge/internal/smd"
)

// Quota-exhaustion phrases the upstream puts in 429 bodies. Only these
// trigger a token refresh; any other 429 is terminal.
var quotaPhrases = []string{
	"No remaining quota",
	"No AI requests remaining",
}

const (
	transportAttempts = 3
	backoffBase       = 2 * time.Second
)

// StatusError is a terminal non-200 upstream response with its body
// preserved for the caller.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.Status, e.Body)
}

// ErrQuotaExhausted marks a recognized 429 that survived the one allowed
// token refresh.
var ErrQuotaExhausted = errors.New("upstream quota exhausted")

// Stream posts the encoded envelope and invokes fn for every decoded event
// in arrival order until the [DONE] sentinel or stream close. Transient
// connection failures before any event is delivered are retried with
// exponential backoff; a recognized quota 429 triggers exactly one token
// refresh and resend.
func (c *Client) Stream(ctx context.Context, payload []byte, fn func(Event) error) error {
	var lastErr error
	for attempt := 0; attempt < transportAttempts; attempt++ {
		if attempt > 0 {
			wait := backoffBase << (attempt - 1)
			log.Warn().Err(lastErr).Dur("wait", wait).Int("attempt", attempt+1).
				Msg("upstream connect failed, backing off")
			if err := c.sleepFn()(ctx, wait); err != nil {
				return err
			}
		}
		delivered, err := c.streamOnce(ctx, payload, fn)
		if err == nil {
			return nil
		}
		if delivered || !isTransient(err) || ctx.Err() != nil {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("upstream unreachable after %d attempts: %w", transportAttempts, lastErr)
}

// streamOnce runs one send cycle, including the single quota-refresh retry.
// delivered reports whether any event reached fn, in which case the caller
// must not retry.
func (c *Client) streamOnce(ctx context.Context, payload []byte, fn func(Event) error) (delivered bool, err error) {
	token, err := c.Tokens.Token(ctx)
	if err != nil {
		return false, fmt.Errorf("bearer token: %w", err)
	}
	for quotaAttempt := 0; quotaAttempt < 2; quotaAttempt++ {
		resp, err := c.send(ctx, payload, token)
		if err != nil {
			return false, err
		}
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
			resp.Body.Close()
			text := string(bytes.TrimSpace(body))
			if resp.StatusCode == http.StatusTooManyRequests && quotaAttempt == 0 && isQuotaBody(text) {
				log.Warn().Msg("upstream quota exhausted, refreshing token for one retry")
				fresh, rerr := c.Tokens.Refresh(ctx)
				if rerr != nil || fresh == "" {
					return false, fmt.Errorf("%w: token refresh failed: %v", ErrQuotaExhausted, rerr)
				}
				token = fresh
				continue
			}
			if resp.StatusCode == http.StatusTooManyRequests && isQuotaBody(text) {
				return false, fmt.Errorf("%w: %s", ErrQuotaExhausted, text)
			}
			return false, &StatusError{Status: resp.StatusCode, Body: text}
		}
		defer resp.Body.Close()
		return c.consume(ctx, resp.Body, fn)
	}
	return false, fmt.Errorf("unreachable")
}

func (c *Client) send(ctx context.Context, payload []byte, token string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Content-Type", "application/x-protobuf")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Client-Version", c.ClientVersion)
	req.Header.Set("X-OS-Category", c.OSCategory)
	req.Header.Set("X-OS-Version", c.OSVersion)
	log.Debug().Int("bytes", len(payload)).Str("url", c.URL).Msg("sending envelope upstream")
	return c.httpClient().Do(req)
}

// consume reads SSE frames until [DONE] or EOF. Payload lines within a
// frame are concatenated and decoded only once the blank separator line
// arrives; frames that fail to decode are skipped.
func (c *Client) consume(ctx context.Context, body io.Reader, fn func(Event) error) (delivered bool, err error) {
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var frame strings.Builder
	flush := func() error {
		if frame.Len() == 0 {
			return nil
		}
		data := frame.String()
		frame.Reset()
		ev, ok := c.decodeFrame(ctx, data)
		if !ok {
			return nil
		}
		if init, isInit := ev.(*Init); isInit && c.Session != nil {
			c.Session.ObserveInit(init.ConversationID, init.TaskID)
		}
		delivered = true
		return fn(ev)
	}

	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "data:") {
			payload := strings.TrimSpace(line[len("data:"):])
			if payload == "" {
				continue
			}
			if payload == "[DONE]" {
				return delivered, nil
			}
			frame.WriteString(payload)
			continue
		}
		if strings.TrimSpace(line) == "" {
			if err := flush(); err != nil {
				return delivered, err
			}
		}
	}
	// Stream closed without a trailing separator; decode what is buffered.
	if err := flush(); err != nil {
		return delivered, err
	}
	if serr := sc.Err(); serr != nil {
		if ctx.Err() != nil {
			return delivered, ctx.Err()
		}
		return delivered, fmt.Errorf("read event stream: %w", serr)
	}
	return delivered, nil
}

func (c *Client) decodeFrame(ctx context.Context, data string) (Event, bool) {
	raw := decodePayload(data)
	if raw == nil {
		log.Debug().Str("frame", truncate(data, 80)).Msg("skipping undecodable frame payload")
		return nil, false
	}
	decoded, err := c.Codec.Decode(ctx, c.ResponseType, raw)
	if err != nil {
		log.Debug().Err(err).Msg("skipping frame the codec rejected")
		return nil, false
	}
	decoded, _ = smd.DecodeEnvelope(decoded).(map[string]any)
	ev := ParseEvent(decoded)
	log.Debug().Str("event", Kind(ev)).Msg("upstream event")
	return ev, true
}

// decodePayload accepts hex or base64url (padded or not) frame payloads.
// Whitespace within the frame is insignificant.
func decodePayload(s string) []byte {
	s = strings.Map(func(r rune) rune {
		if r == ' ' || r == '\t' || r == '\r' || r == '\n' {
			return -1
		}
		return r
	}, s)
	if s == "" {
		return nil
	}
	if len(s)%2 == 0 && isHex(s) {
		if b, err := hex.DecodeString(s); err == nil {
			return b
		}
	}
	trimmed := strings.TrimRight(s, "=")
	if b, err := base64.RawURLEncoding.DecodeString(trimmed); err == nil {
		return b
	}
	if b, err := base64.RawStdEncoding.DecodeString(trimmed); err == nil {
		return b
	}
	return nil
}

func isHex(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

func isQuotaBody(body string) bool {
	for _, p := range quotaPhrases {
		if strings.Contains(body, p) {
			return true
		}
	}
	return false
}

// isTransient classifies errors worth a backoff retry: connection and
// timeout failures. Anything the upstream answered is terminal.
func isTransient(err error) bool {
	var se *StatusError
	if errors.As(err, &se) || errors.Is(err, ErrQuotaExhausted) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	// url.Error wraps dial failures; treat the rest of the transport
	// surface as retryable too.
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset") ||
		strings.Contains(err.Error(), "EOF") ||
		strings.Contains(err.Error(), "no such host")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
