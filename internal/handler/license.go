package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mirovand/licensehub-api/internal/domain/license"
	"github.com/mirovand/licensehub-api/internal/handler/dto"
	"github.com/mirovand/licensehub-api/internal/ierr"
	"github.com/mirovand/licensehub-api/internal/service"
	"github.com/mirovand/licensehub-api/internal/tasks"
	"go.uber.org/zap"
)

type LicenseHandler struct {
	service    *service.LicenseService
	dispatcher *tasks.Dispatcher
	logger     *zap.Logger
}

func NewLicenseHandler(service *service.LicenseService, dispatcher *tasks.Dispatcher, logger *zap.Logger) *LicenseHandler {
	return &LicenseHandler{
		service:    service,
		dispatcher: dispatcher,
		logger:     logger.Named("LicenseHandler"),
	}
}

func (h *LicenseHandler) Create(c *gin.Context) {
	h.logger.Debug("Received request to create license")
	var req dto.IssueLicenseRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Failed to bind or validate request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	issued, err := h.service.Issue(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, ierr.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if errors.Is(err, ierr.ErrKeyGeneration) {
			h.logger.Error("Key generation exhausted", zap.Error(err))
			c.JSON(http.StatusConflict, gin.H{"error": "Failed to generate a unique license key"})
			return
		}

		h.logger.Error("Service failed to issue license", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue license"})
		return
	}

	// Notification is strictly downstream: a failed enqueue is logged by
	// the dispatcher and never rolls back the issued license.
	h.dispatcher.LicenseIssued(c.Request.Context(), issued)

	h.logger.Info("License issued via handler", zap.String("key", issued.Key))
	c.JSON(http.StatusCreated, dto.NewLicenseResponse(issued))
}

func (h *LicenseHandler) List(c *gin.Context) {
	h.logger.Debug("Received request to list licenses")
	var req dto.ListLicensesRequest

	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Warn("Failed to bind or validate query parameters", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters: " + err.Error()})
		return
	}

	licenses, err := h.service.ListLicenses(c.Request.Context(), &req)
	if err != nil {
		h.logger.Error("Service failed to list licenses", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve licenses"})
		return
	}

	responses := make([]*dto.LicenseResponse, len(licenses))
	for i, lic := range licenses {
		responses[i] = dto.NewLicenseResponse(lic)
	}

	c.JSON(http.StatusOK, dto.ListLicensesResponse{
		Licenses:   responses,
		TotalCount: len(responses),
	})
}

func (h *LicenseHandler) GetByKey(c *gin.Context) {
	key := c.Param("key")
	h.logger.Debug("Received request to get license by key", zap.String("key", key))

	lic, err := h.service.GetLicenseByKey(c.Request.Context(), key)
	if err != nil {
		if errors.Is(err, license.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "License not found"})
			return
		}

		h.logger.Error("Service failed to get license", zap.String("key", key), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve license"})
		return
	}

	c.JSON(http.StatusOK, dto.NewLicenseResponse(lic))
}

func (h *LicenseHandler) Revoke(c *gin.Context) {
	key := c.Param("key")
	h.logger.Debug("Received request to revoke license", zap.String("key", key))

	var req dto.RevokeLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Failed to bind revoke request body", zap.String("key", key), zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	revoked, err := h.service.Revoke(c.Request.Context(), key, req.Reason)
	if err != nil {
		if errors.Is(err, license.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "License not found"})
			return
		}

		h.logger.Error("Service failed to revoke license", zap.String("key", key), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to revoke license"})
		return
	}

	h.dispatcher.LicenseRevoked(c.Request.Context(), revoked)

	h.logger.Info("License revoked via handler", zap.String("key", key))
	c.JSON(http.StatusOK, dto.NewLicenseResponse(revoked))
}

func (h *LicenseHandler) Delete(c *gin.Context) {
	key := c.Param("key")
	h.logger.Debug("Received request to delete license", zap.String("key", key))

	if err := h.service.Delete(c.Request.Context(), key); err != nil {
		if errors.Is(err, license.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "License not found"})
			return
		}

		h.logger.Error("Service failed to delete license", zap.String("key", key), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete license"})
		return
	}

	h.logger.Info("License deleted via handler", zap.String("key", key))
	c.JSON(http.StatusOK, gin.H{"message": "License deleted"})
}

func (h *LicenseHandler) Validate(c *gin.Context) {
	var req dto.ValidateLicenseRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Failed to bind or validate validation request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	result, err := h.service.Verify(c.Request.Context(), req.LicenseKey, req.ProductName)
	if err != nil {
		h.logger.Error("Service failed to verify license", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to verify license"})
		return
	}

	resp := dto.ValidateLicenseResponse{
		IsValid: result.Valid,
		Reason:  result.Reason,
	}
	if result.Valid {
		resp.Email = result.License.Email
		resp.Plan = result.License.Plan
		resp.ProductID = result.License.ProductID
		expiresAt := result.License.ExpiresAt
		resp.ExpiresAt = &expiresAt
	}

	c.JSON(http.StatusOK, resp)
}
