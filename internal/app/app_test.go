package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewServerRejectsInvalidConfig(t *testing.T) {
	if _, err := NewServer(Config{}); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestNewServerWiresRoutes(t *testing.T) {
	srv, err := NewServer(Config{
		UpstreamURL: "https://upstream.example/agents",
		BearerToken: "tok",
	})
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" {
		t.Fatalf("body = %+v", body)
	}
}

func TestNewServerAuthWired(t *testing.T) {
	srv, err := NewServer(Config{
		UpstreamURL: "https://upstream.example/agents",
		BearerToken: "tok",
		APIKey:      "secret",
	})
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("models without key = %d, want 401", rec.Code)
	}
}
