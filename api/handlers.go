package api

import (
	"errors"
	"fmt"
	"net/http"
	"proxy-healer/config"
	"proxy-healer/healer/interfaces"
	"proxy-healer/models"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// maxDeadLetterResponse limits how many dead letter entries are returned
const maxDeadLetterResponse = 100

type Handler struct {
	registry interfaces.Registry
	logger   *zap.Logger
}

func NewHandler(r interfaces.Registry, logger *zap.Logger) *Handler {
	return &Handler{
		registry: r,
		logger:   logger,
	}
}

// SetupRoutes configures all API routes
func (h *Handler) SetupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(h.loggingMiddleware())
	r.Use(h.corsMiddleware())

	api := r.Group("/api/v1")
	{
		api.GET("/health", h.HealthCheck)
		api.GET("/stats", h.GetStats)
		api.GET("/dead-letter", h.GetFailedRestarts)

		api.GET("/proxies", h.ListProxies)
		api.POST("/proxies", h.RegisterProxy)
		api.GET("/proxies/next", h.SelectProxy)
		api.GET("/proxies/:id", h.GetProxy)
		api.DELETE("/proxies/:id", h.DeregisterProxy)
		api.GET("/proxies/:id/events", h.GetEvents)
		api.POST("/proxies/:id/events", h.AddEvent)
		api.POST("/proxies/:id/polling/start", h.StartPolling)
		api.POST("/proxies/:id/polling/stop", h.StopPolling)
	}

	return r
}

// HealthCheck returns the health status of the healer
func (h *Handler) HealthCheck(c *gin.Context) {
	stats := h.registry.GetStats()

	status := "healthy"
	available := stats.TotalProxies - stats.QuarantinedProxies
	if stats.TotalProxies > 0 && available == 0 {
		status = "unhealthy"
	} else if stats.QuarantinedProxies > 0 || stats.DegradedProxies > 0 {
		status = "degraded"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":              status,
		"uptime":              stats.Uptime.String(),
		"total_proxies":       stats.TotalProxies,
		"polling_proxies":     stats.PollingProxies,
		"healthy_proxies":     stats.HealthyProxies,
		"degraded_proxies":    stats.DegradedProxies,
		"quarantined_proxies": stats.QuarantinedProxies,
		"timestamp":           time.Now(),
	})
}

// GetStats returns detailed registry statistics
func (h *Handler) GetStats(c *gin.Context) {
	stats := h.registry.GetStats()

	proxySummary := make(map[string]interface{})
	for id, status := range stats.ProxyStats {
		proxySummary[id] = gin.H{
			"name":        status.Proxy.Name,
			"polling":     status.Polling,
			"health":      status.Health.State,
			"event_count": status.EventCount,
			"probe_count": status.ProbeCount,
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"total_proxies":       stats.TotalProxies,
		"polling_proxies":     stats.PollingProxies,
		"healthy_proxies":     stats.HealthyProxies,
		"degraded_proxies":    stats.DegradedProxies,
		"quarantined_proxies": stats.QuarantinedProxies,
		"total_events":        stats.TotalEvents,
		"uptime":              stats.Uptime.String(),
		"proxies":             proxySummary,
		"timestamp":           time.Now(),
	})
}

// ListProxies returns the status of every registered proxy
func (h *Handler) ListProxies(c *gin.Context) {
	statuses := h.registry.List()

	c.JSON(http.StatusOK, gin.H{
		"proxies":     statuses,
		"total_count": len(statuses),
		"timestamp":   time.Now(),
	})
}

// RegisterProxy registers a proxy and starts polling it
func (h *Handler) RegisterProxy(c *gin.Context) {
	var proxy models.Proxy
	if err := c.ShouldBindJSON(&proxy); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request format - expected a proxy object",
		})
		return
	}

	// Normalize here so the derived ID is known for the response
	proxyCfg := config.ProxyConfigOf(proxy)
	config.NormalizeProxy(&proxyCfg)
	proxy = proxyCfg.ToProxy()

	if err := h.registry.Register(proxy); err != nil {
		h.logger.Error("Failed to register proxy",
			zap.String("url", proxy.URL),
			zap.Error(err),
			zap.String("client_ip", c.ClientIP()),
		)
		h.respondError(c, err)
		return
	}

	monitor, err := h.registry.Get(proxy.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, monitor.Status())
}

// GetProxy returns the status of one proxy
func (h *Handler) GetProxy(c *gin.Context) {
	monitor, err := h.registry.Get(c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, monitor.Status())
}

// DeregisterProxy stops polling a proxy and removes it
func (h *Handler) DeregisterProxy(c *gin.Context) {
	proxyID := c.Param("id")
	if err := h.registry.Deregister(proxyID); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   "Proxy deregistered",
		"proxy_id":  proxyID,
		"timestamp": time.Now(),
	})
}

// SelectProxy returns the next proxy chosen by weighted selection
func (h *Handler) SelectProxy(c *gin.Context) {
	proxy := h.registry.SelectProxy()
	if proxy == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "No available proxies",
		})
		return
	}
	c.JSON(http.StatusOK, proxy)
}

// GetEvents returns the failure history of a proxy
func (h *Handler) GetEvents(c *gin.Context) {
	monitor, err := h.registry.Get(c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	events := monitor.History()
	c.JSON(http.StatusOK, gin.H{
		"proxy_id":  monitor.Proxy().ID,
		"count":     len(events),
		"events":    events,
		"health":    monitor.Health(),
		"timestamp": time.Now(),
	})
}

// AddEvent records an externally observed failure, then runs the reaction policy
func (h *Handler) AddEvent(c *gin.Context) {
	monitor, err := h.registry.Get(c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	var req struct {
		Kind   models.FailureKind `json:"kind"`
		Detail string             `json:"detail"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request format",
		})
		return
	}

	event := models.NewRemoteFailureEvent(monitor.Proxy().ID, req.Kind, req.Detail)
	if err := monitor.AddNewEvent(event); err != nil {
		h.respondError(c, err)
		return
	}
	if err := monitor.OnEvent(monitor.History(), event); err != nil {
		h.respondError(c, err)
		return
	}

	h.logger.Info("Failure event recorded",
		zap.String("proxy", event.ProxyID),
		zap.String("kind", string(event.Kind)),
		zap.String("client_ip", c.ClientIP()),
	)

	c.JSON(http.StatusAccepted, gin.H{
		"event":  event,
		"health": monitor.Health(),
	})
}

// StartPolling starts polling a proxy
func (h *Handler) StartPolling(c *gin.Context) {
	monitor, err := h.registry.Get(c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	monitor.StartPolling()
	c.JSON(http.StatusOK, gin.H{
		"proxy_id": monitor.Proxy().ID,
		"polling":  monitor.PollingState(),
	})
}

// StopPolling puts polling of a proxy on hold
func (h *Handler) StopPolling(c *gin.Context) {
	monitor, err := h.registry.Get(c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	monitor.StopPolling()
	c.JSON(http.StatusOK, gin.H{
		"proxy_id": monitor.Proxy().ID,
		"polling":  monitor.PollingState(),
	})
}

// GetFailedRestarts returns restarts that ran out of retries
func (h *Handler) GetFailedRestarts(c *gin.Context) {
	entries, err := h.registry.GetFailedRestarts()
	if err != nil {
		h.logger.Error("Failed to read dead letter file", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to read dead letter file",
		})
		return
	}

	total := len(entries)
	if total > maxDeadLetterResponse {
		entries = entries[total-maxDeadLetterResponse:]
	}

	c.JSON(http.StatusOK, gin.H{
		"count":     len(entries),
		"total":     total,
		"restarts":  entries,
		"timestamp": time.Now(),
		"note":      fmt.Sprintf("Showing last %d entries", len(entries)),
	})
}

// respondError maps registry and monitor errors to HTTP status codes
func (h *Handler) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrProxyNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrProxyExists):
		status = http.StatusConflict
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// loggingMiddleware logs HTTP requests
func (h *Handler) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		// Skip logging for health checks to avoid spam
		if path != "/api/v1/health" {
			latency := time.Since(start)

			logLevel := zap.InfoLevel
			if c.Writer.Status() >= 400 {
				logLevel = zap.ErrorLevel
			}

			if ce := h.logger.Check(logLevel, "HTTP Request"); ce != nil {
				ce.Write(
					zap.String("method", c.Request.Method),
					zap.String("path", path),
					zap.Int("status", c.Writer.Status()),
					zap.Duration("latency", latency),
					zap.String("client_ip", c.ClientIP()),
				)
			}
		}
	}
}

// corsMiddleware handles CORS headers
func (h *Handler) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
