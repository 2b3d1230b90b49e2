package healthcheckController

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/kpizzy812/TMAMARKET/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

type staticHealth []domain.NetworkHealth

func (s staticHealth) Snapshot() []domain.NetworkHealth {
	return s
}

func serve(c *HealthCheckController, path string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	c.RegisterRoutes(router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestReady(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	degraded := staticHealth{{Network: domain.NetworkTON, Degraded: true}}

	ok := New(pingerFunc(func(context.Context) error { return nil }), degraded, log)
	assert.Equal(t, http.StatusOK, serve(ok, "/ready").Code)
	assert.Equal(t, http.StatusOK, serve(ok, "/health").Code)

	down := New(pingerFunc(func(context.Context) error { return errors.New("connection refused") }), degraded, log)
	rec := serve(down, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
	assert.Equal(t, http.StatusOK, serve(down, "/health").Code)
}

func TestNetworks(t *testing.T) {
	health := staticHealth{
		{Network: domain.NetworkBEP20},
		{Network: domain.NetworkTON, Degraded: true, ConsecutiveFailures: 5},
	}
	c := New(pingerFunc(func(context.Context) error { return nil }), health, slog.New(slog.NewTextHandler(io.Discard, nil)))

	rec := serve(c, "/api/v1/networks/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Networks []domain.NetworkHealth `json:"networks"`
		Degraded int                    `json:"degraded"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Networks, 2)
	assert.Equal(t, 1, resp.Degraded)
}
