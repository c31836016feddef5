package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func newIdempotencyEngine(seen *string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.POST("/orders/reserve", IdempotencyKey(), func(c *gin.Context) {
		*seen = IdempotencyKeyFrom(c.Request)
		c.Status(http.StatusOK)
	})
	engine.GET("/orders", IdempotencyKey(), func(c *gin.Context) {
		*seen = IdempotencyKeyFrom(c.Request)
		c.Status(http.StatusOK)
	})
	return engine
}

func TestIdempotencyKey_PassesClientKeyThrough(t *testing.T) {
	var seen string
	engine := newIdempotencyEngine(&seen)

	req := httptest.NewRequest(http.MethodPost, "/orders/reserve", nil)
	req.Header.Set(IdempotencyKeyHeader, "client-key-1")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	if seen != "client-key-1" {
		t.Fatalf("handler saw idempotency key %q, want client-key-1", seen)
	}
	if got := rec.Header().Get(IdempotencyKeyHeader); got != "client-key-1" {
		t.Fatalf("response echoed %q, want client-key-1", got)
	}
}

func TestIdempotencyKey_GeneratesFallbackKey(t *testing.T) {
	var seen string
	engine := newIdempotencyEngine(&seen)

	req := httptest.NewRequest(http.MethodPost, "/orders/reserve", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	if seen == "" {
		t.Fatal("handler must see a generated idempotency key")
	}
	if seen[:5] != "auto_" {
		t.Fatalf("generated key %q must carry the auto_ prefix", seen)
	}
	if got := rec.Header().Get(IdempotencyKeyHeader); got != seen {
		t.Fatalf("response header %q differs from downstream key %q", got, seen)
	}

	// the same request retried in the same minute resolves to the same key
	req2 := httptest.NewRequest(http.MethodPost, "/orders/reserve", nil)
	rec2 := httptest.NewRecorder()
	first := seen
	engine.ServeHTTP(rec2, req2)
	if seen != first {
		t.Fatalf("retry generated a different key: %q vs %q", seen, first)
	}
}

func TestIdempotencyKey_SkipsReadOnlyMethods(t *testing.T) {
	seen := "sentinel"
	engine := newIdempotencyEngine(&seen)

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	if seen != "" {
		t.Fatalf("GET must not carry an idempotency key, got %q", seen)
	}
	if got := rec.Header().Get(IdempotencyKeyHeader); got != "" {
		t.Fatalf("GET response must not echo a key, got %q", got)
	}
}
