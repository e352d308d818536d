package openaiapi

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// fallbackModelIDs answers the catalog when no upstream catalog endpoint is
// configured or the configured one is unreachable.
var fallbackModelIDs = []string{
	"claude-4.1-opus",
	"claude-4-opus",
	"claude-4-sonnet",
	"claude-4.5-sonnet",
	"gpt-5",
	"gpt-4o",
	"o3",
	"gemini-2.5-pro",
}

type modelEntry struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

type modelList struct {
	Object string       `json:"object"`
	Data   []modelEntry `json:"data"`
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	if s.ModelsURL != "" {
		if body, ok := s.fetchModels(r); ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(body)
			return
		}
	}
	writeJSON(w, http.StatusOK, staticModels())
}

// fetchModels proxies the catalog request. Any failure falls back to the
// static list rather than surfacing an error for a read-only endpoint.
func (s *Server) fetchModels(r *http.Request) ([]byte, bool) {
	client := s.ModelsClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, s.ModelsURL, nil)
	if err != nil {
		return nil, false
	}
	resp, err := client.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("url", s.ModelsURL).Msg("model catalog unreachable, using fallback list")
		return nil, false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Warn().Int("status", resp.StatusCode).Msg("model catalog refused, using fallback list")
		return nil, false
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil || !json.Valid(body) {
		return nil, false
	}
	return body, true
}

func staticModels() modelList {
	now := time.Now().Unix()
	list := modelList{Object: "list", Data: make([]modelEntry, 0, len(fallbackModelIDs))}
	for _, id := range fallbackModelIDs {
		list.Data = append(list.Data, modelEntry{
			ID:      id,
			Object:  "model",
			Created: now,
			OwnedBy: "agentbridge",
		})
	}
	return list
}
