package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
}

func TestReady(t *testing.T) {
	ok := func(ctx context.Context) error { return nil }
	down := func(ctx context.Context) error { return errors.New("connection refused") }

	tests := []struct {
		name           string
		checks         map[string]Pinger
		wantStatusCode int
		wantStatus     string
		wantChecks     map[string]string
	}{
		{
			name:           "all dependencies up",
			checks:         map[string]Pinger{"postgres": ok, "redis": ok},
			wantStatusCode: http.StatusOK,
			wantStatus:     "ok",
			wantChecks:     map[string]string{"postgres": "ok", "redis": "ok"},
		},
		{
			name:           "one dependency down",
			checks:         map[string]Pinger{"postgres": ok, "redis": down},
			wantStatusCode: http.StatusServiceUnavailable,
			wantStatus:     "degraded",
			wantChecks:     map[string]string{"postgres": "ok", "redis": "unavailable"},
		},
		{
			name:           "no dependencies",
			checks:         nil,
			wantStatusCode: http.StatusOK,
			wantStatus:     "ok",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			Ready(tt.checks)(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

			if rec.Code != tt.wantStatusCode {
				t.Errorf("expected status %d, got %d", tt.wantStatusCode, rec.Code)
			}

			var resp HealthResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("failed to unmarshal response: %v", err)
			}
			if resp.Status != tt.wantStatus {
				t.Errorf("expected status %q, got %q", tt.wantStatus, resp.Status)
			}
			for name, want := range tt.wantChecks {
				if got := resp.Checks[name]; got != want {
					t.Errorf("check %s = %q, want %q", name, got, want)
				}
			}
		})
	}
}
