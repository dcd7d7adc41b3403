package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/pvebackup/internal/orchestrator"
)

// StatusProvider exposes the orchestrator state.
type StatusProvider interface {
	Status() orchestrator.Status
}

// StatusHandler serves health and status endpoints
type StatusHandler struct {
	provider  StatusProvider
	startedAt time.Time
	version   string
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(provider StatusProvider, version string) *StatusHandler {
	return &StatusHandler{
		provider:  provider,
		startedAt: time.Now(),
		version:   version,
	}
}

// Health reports liveness. A stopped orchestrator is unhealthy.
func (h *StatusHandler) Health(c *gin.Context) {
	status := h.provider.Status()
	if status.State == orchestrator.StateStopped.String() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "stopped",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": h.version,
		"uptime":  time.Since(h.startedAt).Round(time.Second).String(),
	})
}

// Status returns the scheduler state and the last cycle report
func (h *StatusHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.provider.Status())
}
