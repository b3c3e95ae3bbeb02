package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompositeHealthChecker(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	t.Run("no checks", func(t *testing.T) {
		status := NewCompositeHealthChecker("test").Check(context.Background())
		assert.True(t, status.Healthy)
		assert.True(t, status.Ready)
	})

	t.Run("all pass", func(t *testing.T) {
		c := NewCompositeHealthChecker("test")
		c.AddCheck("postgres", ok)
		c.AddNonCriticalCheck("redis", ok)

		status := c.Check(context.Background())
		assert.True(t, status.Healthy)
		assert.False(t, status.Degraded)
		assert.Len(t, status.Checks, 2)
		assert.Equal(t, "test", status.Version)
	})

	t.Run("non-critical failure degrades", func(t *testing.T) {
		c := NewCompositeHealthChecker("test")
		c.AddCheck("postgres", ok)
		c.AddNonCriticalCheck("redis", down)

		status := c.Check(context.Background())
		assert.True(t, status.Healthy)
		assert.True(t, status.Ready)
		assert.True(t, status.Degraded)
		assert.Equal(t, "degraded: redis", status.Message)
		assert.Equal(t, "connection refused", status.Checks["redis"].Message)
	})

	t.Run("critical failure", func(t *testing.T) {
		c := NewCompositeHealthChecker("test")
		c.AddCheck("postgres", down)
		c.AddNonCriticalCheck("redis", ok)

		status := c.Check(context.Background())
		assert.False(t, status.Healthy)
		assert.False(t, status.Ready)
		assert.Contains(t, status.Message, "postgres")
	})

	t.Run("timeout", func(t *testing.T) {
		c := NewCompositeHealthChecker("test")
		c.SetTimeout(10 * time.Millisecond)
		c.AddCheck("slow", func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})

		status := c.Check(context.Background())
		assert.False(t, status.Healthy)
		assert.Equal(t, context.DeadlineExceeded.Error(), status.Checks["slow"].Message)
	})

	t.Run("detailed check reports details", func(t *testing.T) {
		c := NewCompositeHealthChecker("test")
		c.AddDetailedCheck("postgres", func(context.Context) (map[string]any, error) {
			return map[string]any{"total_conns": int32(4)}, nil
		})

		status := c.Check(context.Background())
		assert.True(t, status.Healthy)
		assert.Equal(t, int32(4), status.Checks["postgres"].Details["total_conns"])
		assert.True(t, status.Checks["postgres"].Critical)
	})

	t.Run("detailed check failure is critical", func(t *testing.T) {
		c := NewCompositeHealthChecker("test")
		c.AddDetailedCheck("postgres", func(context.Context) (map[string]any, error) {
			return nil, errors.New("pool closed")
		})

		status := c.Check(context.Background())
		assert.False(t, status.Ready)
		assert.Equal(t, "pool closed", status.Checks["postgres"].Message)
	})

	t.Run("remove", func(t *testing.T) {
		c := NewCompositeHealthChecker("test")
		c.AddCheck("postgres", down)
		c.RemoveCheck("postgres")
		assert.True(t, c.Check(context.Background()).Healthy)
	})
}

func TestAPIKeyAuth(t *testing.T) {
	hash, err := HashAPIKey("s3cret")
	require.NoError(t, err)

	auth, err := NewAPIKeyAuth("X-API-Key", []string{hash, ""})
	require.NoError(t, err)
	require.True(t, auth.Enabled())

	protected := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name    string
		headers map[string]string
		status  int
		code    string
	}{
		{"missing", nil, http.StatusUnauthorized, "MISSING_API_KEY"},
		{"wrong", map[string]string{"X-API-Key": "nope"}, http.StatusUnauthorized, "INVALID_API_KEY"},
		{"header", map[string]string{"X-API-Key": "s3cret"}, http.StatusNoContent, ""},
		{"bearer", map[string]string{"Authorization": "Bearer s3cret"}, http.StatusNoContent, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/admissions", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			protected.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.code != "" {
				assert.Contains(t, rec.Body.String(), tt.code)
				assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
			}
		})
	}
}

func TestAPIKeyAuth_DisabledPassesThrough(t *testing.T) {
	auth, err := NewAPIKeyAuth("X-API-Key", nil)
	require.NoError(t, err)
	assert.False(t, auth.Enabled())

	rec := httptest.NewRecorder()
	auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNewAPIKeyAuth_RejectsPlainKeys(t *testing.T) {
	_, err := NewAPIKeyAuth("X-API-Key", []string{"not-a-hash"})
	assert.ErrorIs(t, err, ErrInvalidKeyHash)

	_, err = HashAPIKey("  ")
	assert.Error(t, err)
}

func TestRequestSizeLimit(t *testing.T) {
	h := RequestSizeLimit(8)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("ok")))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestTimeoutSetsDeadline(t *testing.T) {
	var deadline bool
	h := RequestTimeout(time.Second)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		_, deadline = r.Context().Deadline()
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, deadline)
}

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) MiddlewareFunc {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { order = append(order, "handler") }),
		mark("outer"), mark("inner"), SecurityHeaders)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}
