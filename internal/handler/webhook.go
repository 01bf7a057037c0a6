package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mirovand/licensehub-api/internal/handler/dto"
	"github.com/mirovand/licensehub-api/internal/ierr"
	"github.com/mirovand/licensehub-api/internal/service"
	"github.com/mirovand/licensehub-api/internal/tasks"
	"go.uber.org/zap"
)

// WebhookHandler receives normalized payment-provider events. Signature
// verification and provider-specific payload parsing happen upstream; by
// the time a request lands here it is the flat event shape the lifecycle
// engine consumes.
type WebhookHandler struct {
	service    *service.LicenseService
	dispatcher *tasks.Dispatcher
	logger     *zap.Logger
}

func NewWebhookHandler(service *service.LicenseService, dispatcher *tasks.Dispatcher, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		service:    service,
		dispatcher: dispatcher,
		logger:     logger.Named("WebhookHandler"),
	}
}

func (h *WebhookHandler) HandlePaymentEvent(c *gin.Context) {
	var ev dto.PaymentEventRequest

	if err := c.ShouldBindJSON(&ev); err != nil {
		h.logger.Warn("Failed to bind payment event body", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid event body: " + err.Error()})
		return
	}

	h.logger.Info("Received payment event",
		zap.String("event_kind", ev.EventKind),
		zap.String("reference_id", ev.ReferenceID),
	)

	issued, err := h.service.HandlePaymentEvent(c.Request.Context(), &ev)
	if err != nil {
		if errors.Is(err, ierr.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		h.logger.Error("Service failed to process payment event", zap.Error(err))
		// Non-2xx tells the provider to redeliver; the mutation never
		// half-applied, so a retry is safe.
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process payment event"})
		return
	}

	if issued != nil {
		h.dispatcher.LicenseIssued(c.Request.Context(), issued)
		c.JSON(http.StatusCreated, dto.NewLicenseResponse(issued))
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Event processed"})
}
