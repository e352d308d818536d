// Package openaiapi serves the OpenAI-compatible inbound surface and drives
// the translation pipeline behind it.
package openaiapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/agentbridge/agentbridge/internal/observe"
	"github.com/agentbridge/agentbridge/internal/packet"
	"github.com/agentbridge/agentbridge/internal/upstream"
)

// Server holds the wired pipeline pieces behind the HTTP surface.
type Server struct {
	// APIKey, when set, must accompany every /v1 request.
	APIKey string

	Builder  *packet.Builder
	Upstream *upstream.Client
	Hub      *observe.Hub

	// ModelsURL optionally proxies /v1/models to a catalog endpoint; the
	// static fallback list answers when it is unset or unreachable.
	ModelsURL    string
	ModelsClient *http.Client

	// Build identification reported by the root probe.
	Version string
	Commit  string
	Built   string
}

// Routes builds the full handler tree.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/v1/models", s.requireKey(s.handleModels))
	mux.HandleFunc("/v1/chat/completions", s.requireKey(s.handleChatCompletions))
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/packets/history", s.handlePacketHistory)
	return mux
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeDetail(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"service":   "agentbridge",
		"status":    "ok",
		"version":   s.Version,
		"commit":    s.Commit,
		"built":     s.Built,
		"endpoints": []string{"/v1/models", "/v1/chat/completions"},
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.Hub == nil {
		writeDetail(w, http.StatusNotFound, "not found")
		return
	}
	s.Hub.HandleWS(w, r)
}

func (s *Server) handlePacketHistory(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"packets": s.Hub.History(limit),
	})
}

// requireKey enforces the configured API key. Callers may present it as an
// X-API-Key header, an api_key query parameter, or a bearer token.
func (s *Server) requireKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.APIKey == "" {
			next(w, r)
			return
		}
		if presentedKey(r) != s.APIKey {
			writeDetail(w, http.StatusUnauthorized, "Invalid API key")
			return
		}
		next(w, r)
	}
}

func presentedKey(r *http.Request) string {
	if k := r.Header.Get("X-API-Key"); k != "" {
		return k
	}
	if k := r.URL.Query().Get("api_key"); k != "" {
		return k
	}
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(authz, "Bearer ") {
		return strings.TrimPrefix(authz, "Bearer ")
	}
	return ""
}

// writeDetail emits the {"detail": ...} error body the surface promises.
func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]any{"detail": detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("writing response body")
	}
}
