package handler

import (
	"context"
	"net/http"
	"time"

	"chatio/internal/cache"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type HealthHandler struct {
	db    *gorm.DB
	store cache.Store
	log   *zap.Logger
}

func NewHealthHandler(db *gorm.DB, store cache.Store, log *zap.Logger) *HealthHandler {
	return &HealthHandler{db: db, store: store, log: log.Named("health")}
}

// Check pings the database and the presence store.
func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := gin.H{"database": "ok", "cache": "ok"}
	healthy := true
	if sqlDB, err := h.db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
		status["database"] = "unavailable"
		healthy = false
	}
	if err := h.store.Ping(ctx); err != nil {
		h.log.Warn("cache ping", zap.Error(err))
		status["cache"] = "unavailable"
		healthy = false
	}
	if !healthy {
		c.JSON(http.StatusServiceUnavailable, status)
		return
	}
	c.JSON(http.StatusOK, status)
}
