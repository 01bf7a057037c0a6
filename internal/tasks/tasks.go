package tasks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
	"github.com/mirovand/licensehub-api/internal/domain/license"
	"go.uber.org/zap"
)

const (
	TypeNotifyLicenseIssued  = "notify:license:issued"
	TypeNotifyLicenseRevoked = "notify:license:revoked"
	TypeStatsAudit           = "stats:audit"
)

type LicenseNotifyPayload struct {
	Key          string       `json:"key"`
	Email        string       `json:"email"`
	ProductName  string       `json:"product_name"`
	Plan         license.Plan `json:"plan"`
	ExpiresAt    time.Time    `json:"expires_at"`
	RevokeReason string       `json:"revoke_reason,omitempty"`
}

func newLicenseNotifyTask(taskType string, lic *license.License, opts ...asynq.Option) (*asynq.Task, error) {
	payload := LicenseNotifyPayload{
		Key:          lic.Key,
		Email:        lic.Email,
		ProductName:  lic.ProductName,
		Plan:         lic.Plan,
		ExpiresAt:    lic.ExpiresAt,
		RevokeReason: lic.RevokeReason,
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, payloadBytes, opts...), nil
}

func NewLicenseIssuedTask(lic *license.License, opts ...asynq.Option) (*asynq.Task, error) {
	return newLicenseNotifyTask(TypeNotifyLicenseIssued, lic, opts...)
}

func NewLicenseRevokedTask(lic *license.License, opts ...asynq.Option) (*asynq.Task, error) {
	return newLicenseNotifyTask(TypeNotifyLicenseRevoked, lic, opts...)
}

type StatsAuditPayload struct{}

func NewStatsAuditTask(opts ...asynq.Option) (*asynq.Task, error) {
	payloadBytes, err := json.Marshal(StatsAuditPayload{})
	if err != nil {
		return nil, err
	}

	uniqueOpt := asynq.Unique(1 * time.Hour)
	allOpts := append(opts, uniqueOpt)

	return asynq.NewTask(TypeStatsAudit, payloadBytes, allOpts...), nil
}

// Dispatcher enqueues downstream work after a successful core operation.
// Enqueue failures are logged and swallowed: notification must never fail
// or roll back the license mutation it follows.
type Dispatcher struct {
	client *asynq.Client
	logger *zap.Logger
}

func NewDispatcher(client *asynq.Client, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		client: client,
		logger: logger.Named("TaskDispatcher"),
	}
}

func (d *Dispatcher) LicenseIssued(ctx context.Context, lic *license.License) {
	d.enqueue(ctx, func() (*asynq.Task, error) { return NewLicenseIssuedTask(lic) })
}

func (d *Dispatcher) LicenseRevoked(ctx context.Context, lic *license.License) {
	d.enqueue(ctx, func() (*asynq.Task, error) { return NewLicenseRevokedTask(lic) })
}

func (d *Dispatcher) enqueue(ctx context.Context, build func() (*asynq.Task, error)) {
	if d == nil || d.client == nil {
		return
	}

	task, err := build()
	if err != nil {
		d.logger.Error("Failed to build notification task", zap.Error(err))
		return
	}

	info, err := d.client.EnqueueContext(ctx, task, asynq.Queue("default"))
	if err != nil {
		d.logger.Error("Failed to enqueue notification task",
			zap.String("task_type", task.Type()),
			zap.Error(err),
		)
		return
	}
	d.logger.Debug("Notification task enqueued",
		zap.String("task_type", task.Type()),
		zap.String("task_id", info.ID),
	)
}
