package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mirovand/licensehub-api/internal/domain/license"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type HealthHandler struct {
	repo   license.Repository
	redis  *redis.Client
	logger *zap.Logger
}

func NewHealthHandler(repo license.Repository, redis *redis.Client, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		repo:   repo,
		redis:  redis,
		logger: logger,
	}
}

func (h *HealthHandler) Check(c *gin.Context) {
	storageStatus := "ok"
	if _, err := h.repo.Stats(c.Request.Context()); err != nil {
		storageStatus = "error"
		h.logger.Error("Health check: license store read failed", zap.Error(err))
	}

	redisStatus := "ok"
	if _, err := h.redis.Ping(c.Request.Context()).Result(); err != nil {
		redisStatus = "error"
		h.logger.Error("Health check: Redis ping failed", zap.Error(err))
	}

	status := http.StatusOK
	overall := "ok"
	if storageStatus == "error" || redisStatus == "error" {
		status = http.StatusServiceUnavailable
		overall = "unhealthy"
	}

	c.JSON(status, gin.H{
		"status": overall,
		"dependencies": gin.H{
			"storage": storageStatus,
			"redis":   redisStatus,
		},
	})
}
