package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Notifier delivers license lifecycle notifications to the owner. Message
// content and transport (SMTP, provider API) live behind this interface;
// the worker only cares that delivery either succeeded or should be
// retried by asynq.
type Notifier interface {
	LicenseIssued(ctx context.Context, p *LicenseNotifyPayload) error
	LicenseRevoked(ctx context.Context, p *LicenseNotifyPayload) error
}

// LogNotifier records the notification intent and nothing else. It stands
// in until a real delivery backend is configured.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.Named("LogNotifier")}
}

func (n *LogNotifier) LicenseIssued(ctx context.Context, p *LicenseNotifyPayload) error {
	n.logger.Info("Would notify owner about issued license",
		zap.String("email", p.Email),
		zap.String("key", p.Key),
		zap.String("product", p.ProductName),
	)
	return nil
}

func (n *LogNotifier) LicenseRevoked(ctx context.Context, p *LicenseNotifyPayload) error {
	n.logger.Info("Would notify owner about revoked license",
		zap.String("email", p.Email),
		zap.String("key", p.Key),
		zap.String("reason", p.RevokeReason),
	)
	return nil
}

type NotificationHandler struct {
	notifier Notifier
	logger   *zap.Logger
}

func NewNotificationHandler(notifier Notifier, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{
		notifier: notifier,
		logger:   logger.Named("NotificationHandler"),
	}
}

func (h *NotificationHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p LicenseNotifyPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		h.logger.Error("Failed to unmarshal notification payload", zap.Error(err), zap.ByteString("payload", t.Payload()))
		return fmt.Errorf("invalid payload: %v", err)
	}

	switch t.Type() {
	case TypeNotifyLicenseIssued:
		return h.notifier.LicenseIssued(ctx, &p)
	case TypeNotifyLicenseRevoked:
		return h.notifier.LicenseRevoked(ctx, &p)
	default:
		return fmt.Errorf("unexpected task type: %s", t.Type())
	}
}
