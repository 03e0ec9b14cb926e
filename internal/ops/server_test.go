package ops

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evtrade/auctioncore/pkg/logger"
)

type stubPinger struct {
	err error
}

func (s stubPinger) Ping(context.Context) error { return s.err }

func newTestServer(t *testing.T, readiness map[string]Pinger) *Server {
	t.Helper()
	srv, err := NewServer(ServerParams{
		Logger:    logger.New(logger.Options{ServiceName: "ops-test"}),
		Port:      "0",
		Service:   "scheduler",
		Readiness: readiness,
	})
	require.NoError(t, err)
	return srv
}

func TestHealthzAlwaysOK(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "scheduler")
}

func TestReadyzReflectsDependencyHealth(t *testing.T) {
	srv := newTestServer(t, map[string]Pinger{
		"db":    stubPinger{},
		"redis": stubPinger{},
	})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzFailsWhenDependencyDown(t *testing.T) {
	srv := newTestServer(t, map[string]Pinger{
		"db":    stubPinger{},
		"redis": stubPinger{err: fmt.Errorf("connection refused")},
	})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestMetricsEndpointServes(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
