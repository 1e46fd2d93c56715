package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"proxy-healer/healer/implementations"
	"proxy-healer/healer/interfaces"
	"proxy-healer/models"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func createTestLogger() *zap.Logger {
	config := zap.NewDevelopmentConfig()
	config.Level = zap.NewAtomicLevelAt(zap.FatalLevel) // Suppress logs during tests
	logger, _ := config.Build()
	return logger
}

func createTestRouter(t *testing.T) (*gin.Engine, interfaces.Registry) {
	t.Helper()
	logger := createTestLogger()
	dir := t.TempDir()

	registry := implementations.NewRegistry(logger, &implementations.RegistryConfig{
		Monitor: implementations.HealthMonitorConfig{
			Interval: time.Hour, // Keep pollers idle
			Prober:   implementations.NewHTTPProber(implementations.HTTPProberConfig{}, logger),
			Policy: implementations.NewThresholdPolicy(implementations.ThresholdPolicyConfig{
				QuarantineAfter: 2,
			}),
			RestartHandler: implementations.NewRestartHandler(implementations.RestartHandlerConfig{
				DeadLetterFile: filepath.Join(dir, "failed_restarts.json"),
			}, logger),
		},
		Selector:           implementations.NewProxySelector(logger),
		PersistenceMgr:     implementations.NewPersistenceManager(filepath.Join(dir, "state.json.gz"), logger),
		CheckpointSchedule: "@every 1h",
	})
	require.NoError(t, registry.Start())
	t.Cleanup(func() { _ = registry.Stop() })

	return NewHandler(registry, logger).SetupRoutes(), registry
}

func doRequest(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandler_RegisterAndGetProxy(t *testing.T) {
	router, _ := createTestRouter(t)

	w := doRequest(router, http.MethodPost, "/api/v1/proxies", models.Proxy{
		ID:  "node-1",
		URL: "http://127.0.0.1:5555/",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var status models.ProxyStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "node-1", status.Proxy.ID)
	assert.Equal(t, "http://127.0.0.1:5555", status.Proxy.URL)
	assert.Equal(t, models.PollingRunning, status.Polling)
	assert.Equal(t, models.HealthHealthy, status.Health.State)

	w = doRequest(router, http.MethodGet, "/api/v1/proxies/node-1", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, http.MethodPost, "/api/v1/proxies", models.Proxy{ID: "node-1", URL: "http://127.0.0.1:5555"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doRequest(router, http.MethodGet, "/api/v1/proxies", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total_count":1`)
}

func TestHandler_RegisterInvalidProxy(t *testing.T) {
	router, _ := createTestRouter(t)

	w := doRequest(router, http.MethodPost, "/api/v1/proxies", models.Proxy{ID: "node-1", URL: "not a url"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/proxies", bytes.NewBufferString("{"))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_UnknownProxy(t *testing.T) {
	router, _ := createTestRouter(t)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/v1/proxies/missing"},
		{http.MethodDelete, "/api/v1/proxies/missing"},
		{http.MethodGet, "/api/v1/proxies/missing/events"},
		{http.MethodPost, "/api/v1/proxies/missing/polling/start"},
	} {
		w := doRequest(router, tc.method, tc.path, nil)
		assert.Equal(t, http.StatusNotFound, w.Code, "%s %s", tc.method, tc.path)
	}
}

func TestHandler_AddEventRunsPolicy(t *testing.T) {
	router, registry := createTestRouter(t)
	require.NoError(t, registry.Register(models.Proxy{ID: "node-1", URL: "http://127.0.0.1:5555"}))

	w := doRequest(router, http.MethodPost, "/api/v1/proxies/node-1/events", gin.H{"kind": "timeout", "detail": "slow session"})
	require.Equal(t, http.StatusAccepted, w.Code)

	monitor, err := registry.Get("node-1")
	require.NoError(t, err)
	assert.Equal(t, models.HealthDegraded, monitor.Health().State)

	w = doRequest(router, http.MethodPost, "/api/v1/proxies/node-1/events", gin.H{"kind": "timeout"})
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, models.HealthQuarantined, monitor.Health().State)

	w = doRequest(router, http.MethodGet, "/api/v1/proxies/node-1/events", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Count  int                         `json:"count"`
		Events []models.RemoteFailureEvent `json:"events"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, "slow session", body.Events[0].Detail)

	// Only quarantined proxies are registered, so nothing can be selected
	w = doRequest(router, http.MethodGet, "/api/v1/proxies/next", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHandler_AddEventRejectsUnknownKind(t *testing.T) {
	router, registry := createTestRouter(t)
	require.NoError(t, registry.Register(models.Proxy{ID: "node-1", URL: "http://127.0.0.1:5555"}))

	w := doRequest(router, http.MethodPost, "/api/v1/proxies/node-1/events", gin.H{"kind": "meltdown"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	monitor, err := registry.Get("node-1")
	require.NoError(t, err)
	assert.Empty(t, monitor.History())
}

func TestHandler_PollingControl(t *testing.T) {
	router, registry := createTestRouter(t)
	require.NoError(t, registry.Register(models.Proxy{ID: "node-1", URL: "http://127.0.0.1:5555"}))

	w := doRequest(router, http.MethodPost, "/api/v1/proxies/node-1/polling/stop", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"polling":"stopped"`)

	w = doRequest(router, http.MethodPost, "/api/v1/proxies/node-1/polling/start", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"polling":"running"`)
}

func TestHandler_SelectAndDeregister(t *testing.T) {
	router, registry := createTestRouter(t)
	require.NoError(t, registry.Register(models.Proxy{ID: "node-1", URL: "http://127.0.0.1:5555"}))

	w := doRequest(router, http.MethodGet, "/api/v1/proxies/next", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var proxy models.Proxy
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &proxy))
	assert.Equal(t, "node-1", proxy.ID)

	w = doRequest(router, http.MethodDelete, "/api/v1/proxies/node-1", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, http.MethodGet, "/api/v1/proxies/next", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHandler_HealthAndStats(t *testing.T) {
	router, registry := createTestRouter(t)

	w := doRequest(router, http.MethodGet, "/api/v1/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"healthy"`)

	require.NoError(t, registry.Register(models.Proxy{ID: "node-1", URL: "http://127.0.0.1:5555"}))
	w = doRequest(router, http.MethodPost, "/api/v1/proxies/node-1/events", gin.H{"kind": "protocol"})
	require.Equal(t, http.StatusAccepted, w.Code)

	w = doRequest(router, http.MethodGet, "/api/v1/health", nil)
	assert.Contains(t, w.Body.String(), `"status":"degraded"`)

	w = doRequest(router, http.MethodGet, "/api/v1/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total_events":1`)

	w = doRequest(router, http.MethodGet, "/api/v1/dead-letter", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":0`)
}
