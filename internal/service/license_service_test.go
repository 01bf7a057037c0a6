package service

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mirovand/licensehub-api/internal/config"
	"github.com/mirovand/licensehub-api/internal/domain/license"
	"github.com/mirovand/licensehub-api/internal/handler/dto"
	"github.com/mirovand/licensehub-api/internal/ierr"
	"github.com/mirovand/licensehub-api/internal/storage/filestore"
	"github.com/mirovand/licensehub-api/internal/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testPricing = config.PricingConfig{
	MonthlyCents:  500,
	AnnualCents:   4800,
	LifetimeCents: 9900,
}

func newTestService(t *testing.T) (*LicenseService, license.Repository) {
	t.Helper()
	repo, err := filestore.NewLicenseRepository(filepath.Join(t.TempDir(), "licenses.json"), zap.NewNop())
	require.NoError(t, err)
	svc := NewLicenseService(repo, testPricing, "LicenseHub Desktop", zap.NewNop())
	return svc, repo
}

func issueRequest(plan string) *dto.IssueLicenseRequest {
	return &dto.IssueLicenseRequest{
		Email:       "a@x.com",
		ProductName: "My Extension",
		Plan:        plan,
	}
}

func requireActiveCountMatches(t *testing.T, repo license.Repository) {
	t.Helper()
	stats, err := repo.Stats(context.Background())
	require.NoError(t, err)
	licenses, err := repo.List(context.Background())
	require.NoError(t, err)

	var active int64
	for _, lic := range licenses {
		if lic.Status == license.StatusActive {
			active++
		}
	}
	require.Equal(t, active, stats.ActiveCount, "active count must track the license set")
	require.Equal(t, int64(len(licenses)), stats.TotalIssued)
}

func TestIssueThenVerifyAllPlans(t *testing.T) {
	for _, plan := range []string{"monthly", "annual", "lifetime"} {
		t.Run(plan, func(t *testing.T) {
			svc, repo := newTestService(t)

			issued, err := svc.Issue(context.Background(), issueRequest(plan))
			require.NoError(t, err)
			assert.True(t, util.ValidLicenseKeyFormat(issued.Key))
			assert.Equal(t, license.StatusActive, issued.Status)
			assert.Equal(t, license.OriginManual, issued.Origin)
			assert.Equal(t, "my-extension", issued.ProductID)

			result, err := svc.Verify(context.Background(), issued.Key, "My Extension")
			require.NoError(t, err)
			require.True(t, result.Valid)
			assert.Empty(t, result.Reason)
			assert.Equal(t, "a@x.com", result.License.Email)
			assert.Equal(t, license.Plan(plan), result.License.Plan)

			requireActiveCountMatches(t, repo)
		})
	}
}

func TestIssueLifetimeExpiryFarFuture(t *testing.T) {
	svc, _ := newTestService(t)

	issued, err := svc.Issue(context.Background(), issueRequest("lifetime"))
	require.NoError(t, err)
	assert.True(t, issued.ExpiresAt.After(time.Now().AddDate(99, 0, 0)))

	result, err := svc.Verify(context.Background(), issued.Key, "my-extension")
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, license.PlanLifetime, result.License.Plan)
}

func TestIssueRejectsUnknownPlan(t *testing.T) {
	svc, repo := newTestService(t)

	_, err := svc.Issue(context.Background(), issueRequest("weekly"))
	require.ErrorIs(t, err, ierr.ErrValidation)

	stats, err := repo.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.TotalIssued, "rejected issuance must not touch stats")
}

func TestIssueRequiresEmail(t *testing.T) {
	svc, _ := newTestService(t)

	req := issueRequest("monthly")
	req.Email = "   "
	_, err := svc.Issue(context.Background(), req)
	require.ErrorIs(t, err, ierr.ErrValidation)
}

func TestIssueRecordsRevenue(t *testing.T) {
	svc, repo := newTestService(t)

	_, err := svc.Issue(context.Background(), issueRequest("monthly"))
	require.NoError(t, err)
	_, err = svc.Issue(context.Background(), issueRequest("annual"))
	require.NoError(t, err)

	stats, err := repo.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testPricing.MonthlyCents+testPricing.AnnualCents, stats.RevenueCents)
}

func TestVerifyUnknownKey(t *testing.T) {
	svc, _ := newTestService(t)

	result, err := svc.Verify(context.Background(), "LH-0000-0000-0000-0000", "my-extension")
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, ReasonUnknownKey, result.Reason)
}

func TestVerifyProductMismatch(t *testing.T) {
	svc, _ := newTestService(t)

	issued, err := svc.Issue(context.Background(), issueRequest("monthly"))
	require.NoError(t, err)

	result, err := svc.Verify(context.Background(), issued.Key, "Other Extension")
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, ReasonProductMismatch, result.Reason)

	// The binding holds regardless of status: even a revoked license
	// reports the mismatch first.
	_, err = svc.Revoke(context.Background(), issued.Key, "abuse")
	require.NoError(t, err)

	result, err = svc.Verify(context.Background(), issued.Key, "other-extension")
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, ReasonProductMismatch, result.Reason)
}

func TestVerifyLazyExpiry(t *testing.T) {
	svc, repo := newTestService(t)

	start := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return start }

	issued, err := svc.Issue(context.Background(), issueRequest("monthly"))
	require.NoError(t, err)

	// Still inside the term.
	svc.now = func() time.Time { return start.AddDate(0, 0, 20) }
	result, err := svc.Verify(context.Background(), issued.Key, "my-extension")
	require.NoError(t, err)
	assert.True(t, result.Valid)

	// Past expiry the license stops verifying, but its stored status is
	// left alone: expiry is a read-time comparison, not a transition.
	svc.now = func() time.Time { return start.AddDate(0, 2, 0) }
	result, err = svc.Verify(context.Background(), issued.Key, "my-extension")
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, ReasonExpired, result.Reason)

	stored, err := repo.FindByKey(context.Background(), issued.Key)
	require.NoError(t, err)
	assert.Equal(t, license.StatusActive, stored.Status)
	requireActiveCountMatches(t, repo)
}

func TestCancelByPaymentRef(t *testing.T) {
	svc, repo := newTestService(t)

	req := issueRequest("monthly")
	req.PaymentRef = "sub_123"
	issued, err := svc.Issue(context.Background(), req)
	require.NoError(t, err)

	require.NoError(t, svc.Cancel(context.Background(), "sub_123"))

	stored, err := repo.FindByKey(context.Background(), issued.Key)
	require.NoError(t, err)
	assert.Equal(t, license.StatusCancelled, stored.Status)
	require.NotNil(t, stored.CancelledAt)
	requireActiveCountMatches(t, repo)

	result, err := svc.Verify(context.Background(), issued.Key, "my-extension")
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, ReasonCancelled, result.Reason)
}

func TestCancelUnknownRefIsNoOp(t *testing.T) {
	svc, repo := newTestService(t)

	_, err := svc.Issue(context.Background(), issueRequest("monthly"))
	require.NoError(t, err)

	require.NoError(t, svc.Cancel(context.Background(), "sub_never_seen"))
	requireActiveCountMatches(t, repo)
}

func TestCancelIdempotentOnDuplicateDelivery(t *testing.T) {
	svc, repo := newTestService(t)

	req := issueRequest("monthly")
	req.PaymentRef = "sub_dup"
	_, err := svc.Issue(context.Background(), req)
	require.NoError(t, err)

	require.NoError(t, svc.Cancel(context.Background(), "sub_dup"))
	require.NoError(t, svc.Cancel(context.Background(), "sub_dup"))

	stats, err := repo.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.ActiveCount, "duplicate cancel must decrement exactly once")
}

func TestRevokeIdempotent(t *testing.T) {
	svc, repo := newTestService(t)

	issued, err := svc.Issue(context.Background(), issueRequest("monthly"))
	require.NoError(t, err)

	first, err := svc.Revoke(context.Background(), issued.Key, "chargeback")
	require.NoError(t, err)
	assert.Equal(t, license.StatusRevoked, first.Status)
	assert.Equal(t, "chargeback", first.RevokeReason)

	second, err := svc.Revoke(context.Background(), issued.Key, "fraud confirmed")
	require.NoError(t, err)
	assert.Equal(t, license.StatusRevoked, second.Status)
	assert.Equal(t, "fraud confirmed", second.RevokeReason, "last write wins")

	stats, err := repo.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.ActiveCount, "double revoke must decrement exactly once")
	requireActiveCountMatches(t, repo)
}

func TestRevokeUnknownKey(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Revoke(context.Background(), "LH-0000-0000-0000-0000", "nope")
	assert.ErrorIs(t, err, license.ErrNotFound)
}

func TestDelete(t *testing.T) {
	svc, repo := newTestService(t)

	issued, err := svc.Issue(context.Background(), issueRequest("monthly"))
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), issued.Key))

	_, err = repo.FindByKey(context.Background(), issued.Key)
	assert.ErrorIs(t, err, license.ErrNotFound)

	stats, err := repo.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.TotalIssued)
	assert.Zero(t, stats.ActiveCount)
}

func TestDeleteUnknownKeyLeavesStats(t *testing.T) {
	svc, repo := newTestService(t)

	_, err := svc.Issue(context.Background(), issueRequest("monthly"))
	require.NoError(t, err)
	before, err := repo.Stats(context.Background())
	require.NoError(t, err)

	err = svc.Delete(context.Background(), "LH-0000-0000-0000-0000")
	require.ErrorIs(t, err, license.ErrNotFound)

	after, err := repo.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestDeleteNonActiveLeavesActiveCount(t *testing.T) {
	svc, repo := newTestService(t)

	issued, err := svc.Issue(context.Background(), issueRequest("monthly"))
	require.NoError(t, err)
	_, err = svc.Revoke(context.Background(), issued.Key, "abuse")
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), issued.Key))

	stats, err := repo.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.TotalIssued)
	assert.Zero(t, stats.ActiveCount)
}

func TestConcurrentIssuance(t *testing.T) {
	svc, repo := newTestService(t)

	const n = 20
	keys := make(chan string, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			req := &dto.IssueLicenseRequest{
				Email:       fmt.Sprintf("user%d@x.com", i),
				ProductName: "My Extension",
				Plan:        "monthly",
			}
			issued, issueErr := svc.Issue(context.Background(), req)
			if assert.NoError(t, issueErr) {
				keys <- issued.Key
			}
		}(i)
	}
	wg.Wait()
	close(keys)

	seen := make(map[string]struct{})
	for key := range keys {
		_, dup := seen[key]
		require.False(t, dup, "duplicate key issued: %s", key)
		seen[key] = struct{}{}
	}
	require.Len(t, seen, n)

	stats, err := repo.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(n), stats.TotalIssued)
	assert.Equal(t, int64(n), stats.ActiveCount)
	requireActiveCountMatches(t, repo)
}

func TestHandlePaymentEventSale(t *testing.T) {
	svc, repo := newTestService(t)

	issued, err := svc.HandlePaymentEvent(context.Background(), &dto.PaymentEventRequest{
		EventKind:   PaymentEventSale,
		Email:       "buyer@x.com",
		ReferenceID: "sub_777",
		PlanID:      "annual",
		AmountCents: 4500,
	})
	require.NoError(t, err)
	require.NotNil(t, issued)
	assert.Equal(t, license.OriginAutomated, issued.Origin)
	assert.Equal(t, "sub_777", issued.PaymentRef)
	assert.Equal(t, "license-hub-desktop", issued.ProductID, "sale without a product falls back to the configured one")

	stats, err := repo.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4500), stats.RevenueCents, "paid amount wins over configured pricing")
}

func TestHandlePaymentEventSaleUnknownPlan(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.HandlePaymentEvent(context.Background(), &dto.PaymentEventRequest{
		EventKind: PaymentEventSale,
		Email:     "buyer@x.com",
		PlanID:    "quarterly",
	})
	assert.ErrorIs(t, err, ierr.ErrValidation)
}

func TestHandlePaymentEventCancellation(t *testing.T) {
	svc, repo := newTestService(t)

	_, err := svc.HandlePaymentEvent(context.Background(), &dto.PaymentEventRequest{
		EventKind:   PaymentEventSale,
		Email:       "buyer@x.com",
		ReferenceID: "sub_888",
		PlanID:      "monthly",
	})
	require.NoError(t, err)

	issued, err := svc.HandlePaymentEvent(context.Background(), &dto.PaymentEventRequest{
		EventKind:   PaymentEventCancellation,
		ReferenceID: "sub_888",
	})
	require.NoError(t, err)
	assert.Nil(t, issued)

	stats, err := repo.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.ActiveCount)
}

func TestHandlePaymentEventUnknownKindIgnored(t *testing.T) {
	svc, repo := newTestService(t)

	issued, err := svc.HandlePaymentEvent(context.Background(), &dto.PaymentEventRequest{
		EventKind: "refund.requested",
	})
	require.NoError(t, err)
	assert.Nil(t, issued)

	stats, err := repo.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.TotalIssued)
}

func TestListLicensesFilters(t *testing.T) {
	svc, _ := newTestService(t)

	a, err := svc.Issue(context.Background(), &dto.IssueLicenseRequest{
		Email: "a@x.com", ProductName: "My Extension", Plan: "monthly",
	})
	require.NoError(t, err)
	_, err = svc.Issue(context.Background(), &dto.IssueLicenseRequest{
		Email: "b@x.com", ProductName: "Other Tool", Plan: "annual",
	})
	require.NoError(t, err)
	_, err = svc.Revoke(context.Background(), a.Key, "test")
	require.NoError(t, err)

	all, err := svc.ListLicenses(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	revoked := license.StatusRevoked
	filtered, err := svc.ListLicenses(context.Background(), &dto.ListLicensesRequest{Status: &revoked})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, a.Key, filtered[0].Key)

	product := "Other Tool"
	filtered, err = svc.ListLicenses(context.Background(), &dto.ListLicensesRequest{ProductName: &product})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "other-tool", filtered[0].ProductID)
}

func TestGetDashboardSummary(t *testing.T) {
	svc, _ := newTestService(t)

	// February keeps the monthly expiry (28 days out) inside the 30-day
	// expiring-soon horizon.
	start := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return start }

	monthly, err := svc.Issue(context.Background(), issueRequest("monthly"))
	require.NoError(t, err)
	_, err = svc.Issue(context.Background(), issueRequest("lifetime"))
	require.NoError(t, err)
	annual, err := svc.Issue(context.Background(), issueRequest("annual"))
	require.NoError(t, err)
	_, err = svc.Revoke(context.Background(), annual.Key, "test")
	require.NoError(t, err)

	summary, err := svc.GetDashboardSummary(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(3), summary.TotalIssued)
	assert.Equal(t, int64(2), summary.ActiveCount)
	assert.Equal(t, int64(2), summary.StatusCounts[license.StatusActive])
	assert.Equal(t, int64(1), summary.StatusCounts[license.StatusRevoked])
	assert.Equal(t, int64(1), summary.PlanCounts[license.PlanMonthly])
	assert.Equal(t, int64(3), summary.ProductCounts["my-extension"])

	// Only the monthly license expires within the 30-day horizon.
	assert.Equal(t, int64(1), summary.ExpiringSoon.Count)
	require.NotNil(t, summary.ExpiringSoon.NextToExpire)
	assert.Equal(t, monthly.Key, summary.ExpiringSoon.NextToExpire.LicenseKey)
}
