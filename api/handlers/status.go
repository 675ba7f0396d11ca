// Package handlers provides the HTTP surface: health, read-only session
// status, and the WebSocket attach endpoint.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/andyk/termmux/internal/session"
)

// StatusHandler serves read-only daemon state. All mutation goes through the
// socket protocol.
type StatusHandler struct {
	registry *session.Registry
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(registry *session.Registry) *StatusHandler {
	return &StatusHandler{registry: registry}
}

// Health handles GET /health.
func (h *StatusHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ListSessions handles GET /api/sessions: metadata snapshots in creation
// order, plus the active session id.
func (h *StatusHandler) ListSessions(c *gin.Context) {
	activeID, _ := h.registry.ActiveID()
	c.JSON(http.StatusOK, gin.H{
		"sessions": h.registry.Infos(),
		"activeId": activeID,
	})
}

// RegisterRoutes registers the status routes on a Gin router group.
func (h *StatusHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/sessions", h.ListSessions)
}
