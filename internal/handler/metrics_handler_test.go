package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/sma-entry-sync/internal/service"
)

func TestOpsEndpoints(t *testing.T) {
	gin.SetMode(gin.TestMode)
	healthy := PingFunc(func(context.Context) error { return nil })
	down := PingFunc(func(context.Context) error { return errors.New("connection refused") })

	tests := []struct {
		name   string
		checks map[string]Pinger
		path   string
		status int
		body   string
	}{
		{name: "health", path: "/health", status: http.StatusOK, body: `"ok"`},
		{name: "ready", checks: map[string]Pinger{"postgres": healthy}, path: "/ready", status: http.StatusOK, body: `"ready"`},
		{name: "degraded", checks: map[string]Pinger{"postgres": healthy, "redis": down}, path: "/ready", status: http.StatusServiceUnavailable, body: "connection refused"},
		{name: "metrics", path: "/metrics", status: http.StatusOK, body: "goroutines_total"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			NewMetricsHandler(service.NewMetricsService(), tt.checks).Register(r)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), tt.body)
		})
	}
}
