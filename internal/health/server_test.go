package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func get(t *testing.T, s *Server, path string) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body Response
	if path == "/healthz" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestHealthz(t *testing.T) {
	t.Run("healthy without pinger", func(t *testing.T) {
		s := NewServer(0, nil, nil, func() string { return "idle" })
		rec, body := get(t, s, "/healthz")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		assert.Equal(t, Response{Status: "healthy", State: "idle"}, body)
	})

	t.Run("unhealthy when ping fails", func(t *testing.T) {
		s := NewServer(0, nil, pingFunc(func(context.Context) error { return errors.New("connection refused") }), nil)
		rec, body := get(t, s, "/healthz")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "unhealthy", body.Status)
		assert.Equal(t, "connection refused", body.Error)
	})

	t.Run("pings redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer rdb.Close()

		s := NewServer(0, nil, pingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() }), nil)
		rec, _ := get(t, s, "/healthz")
		assert.Equal(t, http.StatusOK, rec.Code)

		mr.Close()
		rec, _ = get(t, s, "/healthz")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "ptp_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Add(4)

	rec, _ := get(t, NewServer(0, reg, nil, nil), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ptp_test_total 4")

	rec, _ = get(t, NewServer(0, nil, nil, nil), "/metrics")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
