package tasks

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/mirovand/licensehub-api/internal/domain/license"
	"github.com/mirovand/licensehub-api/internal/storage/filestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newAuditFixture(t *testing.T) (*StatsAuditHandler, *filestore.LicenseRepository, *observer.ObservedLogs) {
	t.Helper()
	repo, err := filestore.NewLicenseRepository(filepath.Join(t.TempDir(), "licenses.json"), zap.NewNop())
	require.NoError(t, err)
	core, logs := observer.New(zapcore.DebugLevel)
	return NewStatsAuditHandler(repo, zap.New(core)), repo, logs
}

func seedLicense(t *testing.T, repo *filestore.LicenseRepository, key string, status license.Status) {
	t.Helper()
	err := repo.Mutate(context.Background(), func(st *license.State) error {
		st.Licenses[key] = &license.License{
			Key:       key,
			Email:     "a@x.com",
			ProductID: "my-extension",
			Plan:      license.PlanMonthly,
			Status:    status,
			IssuedAt:  time.Now().UTC(),
			ExpiresAt: time.Now().UTC().AddDate(0, 1, 0),
		}
		st.Stats.TotalIssued++
		if status == license.StatusActive {
			st.Stats.ActiveCount++
		}
		return nil
	})
	require.NoError(t, err)
}

func TestStatsAuditPassesOnConsistentState(t *testing.T) {
	handler, repo, logs := newAuditFixture(t)
	seedLicense(t, repo, "LH-1111-2222-3333-4444", license.StatusActive)
	seedLicense(t, repo, "LH-5555-6666-7777-8888", license.StatusRevoked)

	task, err := NewStatsAuditTask()
	require.NoError(t, err)

	require.NoError(t, handler.ProcessTask(context.Background(), task))
	assert.Zero(t, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
}

func TestStatsAuditReportsDrift(t *testing.T) {
	handler, repo, logs := newAuditFixture(t)
	seedLicense(t, repo, "LH-1111-2222-3333-4444", license.StatusActive)

	// Force the counters out of step with the collection.
	err := repo.Mutate(context.Background(), func(st *license.State) error {
		st.Stats.ActiveCount += 3
		return nil
	})
	require.NoError(t, err)

	task, err := NewStatsAuditTask()
	require.NoError(t, err)

	// Drift is reported, not repaired, and not retried.
	require.NoError(t, handler.ProcessTask(context.Background(), task))

	errorLogs := logs.FilterLevelExact(zapcore.ErrorLevel)
	require.Equal(t, 1, errorLogs.Len())
	assert.Contains(t, errorLogs.All()[0].Message, "drifted")
}

func TestStatsAuditRejectsForeignTaskType(t *testing.T) {
	handler, _, _ := newAuditFixture(t)

	err := handler.ProcessTask(context.Background(), asynq.NewTask("other:task", nil))
	assert.Error(t, err)
}
