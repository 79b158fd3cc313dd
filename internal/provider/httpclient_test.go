package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sony/gobreaker"

	"github.com/electrolux-oss/infrawallet-sub000/internal/resilience"
)

func failingRetryConfig() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxRetries:       0,
		BaseDelay:        time.Millisecond,
		MaxDelay:         time.Millisecond,
		RateLimitDefault: time.Millisecond,
	}
}

func TestDoJSONOpensBreakerAfterRepeatedFailures(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	req := HTTPRequest{Method: http.MethodGet, URL: server.URL + "/costs"}
	for i := 0; i < 10; i++ {
		if _, err := DoJSON(context.Background(), server.Client(), failingRetryConfig(), req); err == nil {
			t.Fatal("expected error from 500 response")
		}
	}
	if hits != 10 {
		t.Fatalf("expected 10 upstream hits, got %d", hits)
	}

	_, err := DoJSON(context.Background(), server.Client(), failingRetryConfig(), req)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open breaker, got %v", err)
	}
	if hits != 10 {
		t.Errorf("open breaker must not reach the backend, got %d hits", hits)
	}
}

func TestDoJSONAuthFailureDoesNotTripBreaker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	req := HTTPRequest{Method: http.MethodGet, URL: server.URL + "/costs"}
	for i := 0; i < 15; i++ {
		_, err := DoJSON(context.Background(), server.Client(), failingRetryConfig(), req)
		var authErr *resilience.AuthError
		if !errors.As(err, &authErr) {
			t.Fatalf("expected AuthError on every call, got %v", err)
		}
	}
}
