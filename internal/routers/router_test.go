package routers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"codeshare/internal/api"
	"codeshare/internal/session"
	"codeshare/internal/utils"
)

func newTestServer(t *testing.T, origins ...string) *httptest.Server {
	t.Helper()
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	logger := utils.NewNopLogger()
	hub := session.NewHub(session.NewStore(), logger, nil, session.Options{})
	server := httptest.NewServer(New(logger, hub, api.Options{AllowedOrigins: origins}))
	t.Cleanup(server.Close)
	return server
}

func TestNewRouterHealthEndpoints(t *testing.T) {
	server := newTestServer(t)
	for _, path := range []string{"/healthz", "/api/v1/healthz"} {
		resp, err := http.Get(server.URL + path)
		if err != nil {
			t.Fatalf("health request failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, resp.StatusCode)
		}
	}
}

func TestNewRouterSessionRoutes(t *testing.T) {
	server := newTestServer(t)

	resp, err := http.Post(server.URL+"/api/sessions", "application/json", strings.NewReader(`{"language":"python"}`))
	if err != nil {
		t.Fatalf("create request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	resp, err = http.Get(server.URL + "/api/sessions/nonexistent")
	if err != nil {
		t.Fatalf("get request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestNewRouterMetricsEndpoint(t *testing.T) {
	server := newTestServer(t)
	_, _ = http.Get(server.URL + "/healthz")

	resp, err := http.Get(server.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestNewRouterCORSPreflight(t *testing.T) {
	server := newTestServer(t, "http://localhost:5173")

	req, _ := http.NewRequest(http.MethodOptions, server.URL+"/api/sessions", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("preflight failed: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Fatalf("expected allowed origin echoed, got %q", got)
	}
}
