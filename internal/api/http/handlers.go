package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/domain/surface"
	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/AgentOS/surfacehost/internal/shared/resources"
)

// Version is reported by the root endpoint
const Version = "1.0.0"

// statsTimeout bounds how long a handler waits for the multiplexer loop
const statsTimeout = 2 * time.Second

// Handlers contains all HTTP handlers
type Handlers struct {
	mux      *surface.Multiplexer
	metrics  *monitoring.Metrics
	breaker  *resilience.Breaker
	provider string

	resourceRoot string
	allowLocal   []string
}

// NewHandlers creates a new handler set. metrics and breaker may be nil.
func NewHandlers(mux *surface.Multiplexer, metrics *monitoring.Metrics, breaker *resilience.Breaker, provider string) *Handlers {
	return &Handlers{
		mux:      mux,
		metrics:  metrics,
		breaker:  breaker,
		provider: provider,
	}
}

// WithResources exposes the local targets under root that match allow
func (h *Handlers) WithResources(root string, allow []string) *Handlers {
	h.resourceRoot = root
	h.allowLocal = allow
	return h
}

// Register mounts the handlers on router
func (h *Handlers) Register(router gin.IRouter) {
	router.GET("/", h.Root)
	router.GET("/health", h.Health)
	router.GET("/surfaces/stats", h.SurfaceStats)
	if h.resourceRoot != "" {
		router.GET("/surfaces/resources", h.Resources)
	}
	if h.metrics != nil {
		router.GET("/metrics", gin.WrapH(h.metrics.Handler()))
	}
}

// Root reports the service identity
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "online",
		"service":  "Surface Host (Go)",
		"version":  Version,
		"provider": h.provider,
	})
}

// Health reports whether the multiplexer loop answers and providers can be
// built
func (h *Handlers) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), statsTimeout)
	defer cancel()

	stats, err := h.mux.Stats(ctx)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	status := "healthy"
	body := gin.H{"surfaces": stats}
	if h.breaker != nil {
		state := h.breaker.State()
		body["provider_factory"] = gin.H{
			"state":  state.String(),
			"counts": h.breaker.Counts(),
		}
		if state == resilience.StateOpen {
			status = "degraded"
		}
	}
	body["status"] = status
	c.JSON(http.StatusOK, body)
}

// SurfaceStats reports registry, pool and traffic statistics
func (h *Handlers) SurfaceStats(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), statsTimeout)
	defer cancel()

	stats, err := h.mux.Stats(ctx)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	body := gin.H{"surfaces": stats}
	if h.metrics != nil {
		body["traffic"] = h.metrics.Snapshot()
	}
	c.JSON(http.StatusOK, body)
}

// Resources lists the local navigation targets under the resource root
func (h *Handlers) Resources(c *gin.Context) {
	files, err := resources.List(c.Request.Context(), h.resourceRoot, h.allowLocal)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"resources": files, "count": len(files)})
}
