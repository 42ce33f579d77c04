package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// BasicHandler serves health and liveness endpoints
type BasicHandler struct {
	db *gorm.DB
}

// NewBasicHandler creates a new BasicHandler instance. db may be nil when
// persistence is disabled.
func NewBasicHandler(db *gorm.DB) *BasicHandler {
	return &BasicHandler{db: db}
}

// PingHandler handles GET /ping
func (h *BasicHandler) PingHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}

// HealthHandler handles GET /health
func (h *BasicHandler) HealthHandler(c *gin.Context) {
	dbStatus := "disabled"
	if h.db != nil {
		dbStatus = "ok"
		if sqlDB, err := h.db.DB(); err != nil || sqlDB.Ping() != nil {
			dbStatus = "unreachable"
		}
	}
	status := http.StatusOK
	if dbStatus == "unreachable" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"status":   "up",
		"database": dbStatus,
	})
}
