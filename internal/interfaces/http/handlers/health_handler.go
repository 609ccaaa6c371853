package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fairclaim/protest-engine/pkg/types/common"
)

// HealthChecker reports whether one backing dependency is reachable.
type HealthChecker interface {
	Name() string
	HealthCheck(ctx context.Context) error
}

// CheckerFunc adapts a function to HealthChecker.
type CheckerFunc struct {
	CheckName string
	Check     func(ctx context.Context) error
}

func (f CheckerFunc) Name() string                          { return f.CheckName }
func (f CheckerFunc) HealthCheck(ctx context.Context) error { return f.Check(ctx) }

// HealthHandler serves the liveness and readiness probes.
type HealthHandler struct {
	checkers []HealthChecker
	timeout  time.Duration
}

func NewHealthHandler(checkers ...HealthChecker) *HealthHandler {
	return &HealthHandler{checkers: checkers, timeout: 5 * time.Second}
}

// Liveness answers as long as the process is serving requests.
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readiness pings every registered dependency and reports per-component
// status.  Any failure makes the probe return 503.
func (h *HealthHandler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	components := make([]common.ComponentHealth, 0, len(h.checkers))
	healthy := true
	for _, checker := range h.checkers {
		start := time.Now()
		err := checker.HealthCheck(ctx)
		component := common.ComponentHealth{
			Name:    checker.Name(),
			Status:  common.HealthUp,
			Latency: time.Since(start),
		}
		if err != nil {
			component.Status = common.HealthDown
			component.Message = err.Error()
			healthy = false
		}
		components = append(components, component)
	}

	status := http.StatusOK
	overall := "ready"
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = "degraded"
	}
	c.JSON(status, gin.H{"status": overall, "components": components})
}
