package api

import (
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"nexus/internal/logging"
)

func (h *handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"service":   "nexus",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *handler) healthDB(c *gin.Context) {
	if err := h.store.Ping(c.Request.Context()); err != nil {
		h.logger.Warn("database health check failed",
			logging.String(logging.FieldEventType, "health_db_failed"),
			logging.Error(err),
		)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "database": "disconnected", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "database": "connected", "driver": h.store.Driver()})
}

func (h *handler) daemonStatus(c *gin.Context) {
	if h.status != nil {
		c.JSON(http.StatusOK, h.status(c.Request.Context()))
		return
	}
	stats, err := h.store.Stats(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, DaemonStatus{
		PID:       os.Getpid(),
		Driver:    h.store.Driver(),
		StorePath: h.store.Path(),
		Workflow:  WorkflowStatus{Stats: stats},
	})
}
