package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sellerhub/marking/common/logger"
)

func TestHealthHandlerReportsOK(t *testing.T) {
	handler := HealthHandler(func(_ context.Context) error { return nil })

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestHealthHandlerReportsBackingStoreOutage(t *testing.T) {
	handler := HealthHandler(func(_ context.Context) error {
		return errors.New("database unhealthy")
	})

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "database unhealthy") {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestHealthHandlerWithoutCheck(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthHandler(nil)(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestServerStopsOnContextCancel(t *testing.T) {
	srv := New("probe-listener", 0, http.NewServeMux(), logger.New("error", "json"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	cancel()
	if err := <-done; err != context.Canceled {
		t.Fatalf("Start returned %v, want context.Canceled", err)
	}
}
