package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mirovand/licensehub-api/internal/config"
	"github.com/mirovand/licensehub-api/internal/domain/license"
	"github.com/mirovand/licensehub-api/internal/handler/dto"
	"github.com/mirovand/licensehub-api/internal/ierr"
	"github.com/mirovand/licensehub-api/internal/util"
	"go.uber.org/zap"
)

// Bounded defence against the astronomically unlikely key collision.
const maxKeyGenerationAttempts = 5

const (
	PaymentEventSale         = "sale"
	PaymentEventCancellation = "cancellation"
)

// Verification reason codes. Verification never fails with an error for an
// invalid license; it always reports a structured result with one of these.
const (
	ReasonUnknownKey      = "unknown_key"
	ReasonProductMismatch = "product_mismatch"
	ReasonCancelled       = "cancelled"
	ReasonRevoked         = "revoked"
	ReasonExpired         = "expired"
)

type VerificationResult struct {
	Valid   bool
	Reason  string
	License *license.License
}

type LicenseService struct {
	repo           license.Repository
	pricing        config.PricingConfig
	defaultProduct string
	logger         *zap.Logger
	now            func() time.Time
}

func NewLicenseService(repo license.Repository, pricing config.PricingConfig, defaultProduct string, logger *zap.Logger) *LicenseService {
	return &LicenseService{
		repo:           repo,
		pricing:        pricing,
		defaultProduct: defaultProduct,
		logger:         logger.Named("LicenseService"),
		now:            time.Now,
	}
}

func (s *LicenseService) planPrice(plan license.Plan) int64 {
	switch plan {
	case license.PlanMonthly:
		return s.pricing.MonthlyCents
	case license.PlanAnnual:
		return s.pricing.AnnualCents
	default:
		return s.pricing.LifetimeCents
	}
}

// Issue creates a manually-originated license priced from config.
func (s *LicenseService) Issue(ctx context.Context, req *dto.IssueLicenseRequest) (*license.License, error) {
	plan, err := license.ParsePlan(req.Plan)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ierr.ErrValidation, err)
	}
	return s.issue(ctx, req.Email, req.ProductName, plan, req.PaymentRef, license.OriginManual, s.planPrice(plan))
}

func (s *LicenseService) issue(ctx context.Context, email, productName string, plan license.Plan, paymentRef string, origin license.Origin, amountCents int64) (*license.License, error) {
	if strings.TrimSpace(email) == "" {
		return nil, fmt.Errorf("%w: email is required", ierr.ErrValidation)
	}
	if strings.TrimSpace(productName) == "" {
		return nil, fmt.Errorf("%w: product name is required", ierr.ErrValidation)
	}

	productID := license.SlugifyProduct(productName)
	s.logger.Info("Attempting to issue a new license",
		zap.String("product_id", productID),
		zap.String("plan", string(plan)),
		zap.String("origin", string(origin)),
	)

	var issued *license.License
	err := s.repo.Mutate(ctx, func(st *license.State) error {
		var key string
		for attempt := 0; attempt < maxKeyGenerationAttempts; attempt++ {
			candidate, err := util.GenerateLicenseKey()
			if err != nil {
				return fmt.Errorf("%w: %v", ierr.ErrKeyGeneration, err)
			}
			if !util.ValidLicenseKeyFormat(candidate) {
				return fmt.Errorf("%w: generated key has invalid format", ierr.ErrKeyGeneration)
			}
			if _, exists := st.Licenses[candidate]; exists {
				s.logger.Warn("License key collision, regenerating", zap.String("key", candidate))
				continue
			}
			key = candidate
			break
		}
		if key == "" {
			return fmt.Errorf("%w: %d attempts produced only colliding keys", ierr.ErrKeyGeneration, maxKeyGenerationAttempts)
		}

		now := s.now().UTC()
		lic := &license.License{
			Key:         key,
			Email:       email,
			ProductName: productName,
			ProductID:   productID,
			Plan:        plan,
			Status:      license.StatusActive,
			IssuedAt:    now,
			ExpiresAt:   plan.ExpiryFrom(now),
			PaymentRef:  paymentRef,
			Origin:      origin,
		}

		st.Licenses[key] = lic
		st.Stats.TotalIssued++
		st.Stats.ActiveCount++
		st.Stats.RevenueCents += amountCents

		issued = lic.Clone()
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to issue license", zap.Error(err))
		return nil, err
	}

	s.logger.Info("License issued", zap.String("key", issued.Key), zap.Time("expires_at", issued.ExpiresAt))
	return issued, nil
}

// Verify decides validity purely from stored state and the current clock.
// Expiry is lazy: an elapsed license keeps its stored status and simply
// stops verifying.
func (s *LicenseService) Verify(ctx context.Context, licenseKey, productName string) (*VerificationResult, error) {
	productID := license.SlugifyProduct(productName)

	lic, err := s.repo.FindByKey(ctx, licenseKey)
	if err != nil {
		if errors.Is(err, license.ErrNotFound) {
			s.logger.Debug("Verification for unknown key", zap.String("key", licenseKey))
			return &VerificationResult{Valid: false, Reason: ReasonUnknownKey}, nil
		}
		return nil, fmt.Errorf("repository error during verification: %w", err)
	}

	if lic.ProductID != productID {
		s.logger.Info("Verification product mismatch",
			zap.String("key", licenseKey),
			zap.String("bound_product", lic.ProductID),
			zap.String("presented_product", productID),
		)
		return &VerificationResult{Valid: false, Reason: ReasonProductMismatch, License: lic}, nil
	}

	switch lic.Status {
	case license.StatusCancelled:
		return &VerificationResult{Valid: false, Reason: ReasonCancelled, License: lic}, nil
	case license.StatusRevoked:
		return &VerificationResult{Valid: false, Reason: ReasonRevoked, License: lic}, nil
	}

	if lic.Expired(s.now().UTC()) {
		return &VerificationResult{Valid: false, Reason: ReasonExpired, License: lic}, nil
	}

	return &VerificationResult{Valid: true, License: lic}, nil
}

// Cancel handles an upstream subscription-cancel signal. An unknown payment
// reference is not an error: the subscription may never have produced a
// license here. Duplicate delivery is a no-op.
func (s *LicenseService) Cancel(ctx context.Context, paymentRef string) error {
	if strings.TrimSpace(paymentRef) == "" {
		return fmt.Errorf("%w: payment reference is required", ierr.ErrValidation)
	}

	return s.repo.Mutate(ctx, func(st *license.State) error {
		var target *license.License
		for _, lic := range st.Licenses {
			if lic.PaymentRef == paymentRef {
				target = lic
				break
			}
		}
		if target == nil {
			s.logger.Info("Cancellation for unknown payment reference, ignoring", zap.String("payment_ref", paymentRef))
			return nil
		}
		if target.Status != license.StatusActive {
			s.logger.Debug("Cancellation for non-active license, leaving status untouched",
				zap.String("key", target.Key),
				zap.String("status", string(target.Status)),
			)
			return nil
		}

		now := s.now().UTC()
		target.Status = license.StatusCancelled
		target.CancelledAt = &now
		st.Stats.ActiveCount--

		s.logger.Info("License cancelled", zap.String("key", target.Key), zap.String("payment_ref", paymentRef))
		return nil
	})
}

// Revoke is idempotent: revoking an already-revoked license succeeds and
// re-stamps the reason and timestamp. The active-count is decremented only
// on the transition out of the active status, captured inside the same
// critical section as the write.
func (s *LicenseService) Revoke(ctx context.Context, licenseKey, reason string) (*license.License, error) {
	var revoked *license.License
	err := s.repo.Mutate(ctx, func(st *license.State) error {
		lic, ok := st.Licenses[licenseKey]
		if !ok {
			return license.ErrNotFound
		}

		wasActive := lic.Status == license.StatusActive
		now := s.now().UTC()
		lic.Status = license.StatusRevoked
		lic.RevokedAt = &now
		lic.RevokeReason = reason
		if wasActive {
			st.Stats.ActiveCount--
		}

		revoked = lic.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("License revoked", zap.String("key", licenseKey), zap.String("reason", reason))
	return revoked, nil
}

// Delete permanently erases a license and rolls its contribution out of the
// totals. No tombstone is kept.
func (s *LicenseService) Delete(ctx context.Context, licenseKey string) error {
	err := s.repo.Mutate(ctx, func(st *license.State) error {
		lic, ok := st.Licenses[licenseKey]
		if !ok {
			return license.ErrNotFound
		}

		wasActive := lic.Status == license.StatusActive
		delete(st.Licenses, licenseKey)
		st.Stats.TotalIssued--
		if wasActive {
			st.Stats.ActiveCount--
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("License deleted", zap.String("key", licenseKey))
	return nil
}

// HandlePaymentEvent dispatches a normalized payment-provider event. Sales
// issue an automated license; cancellations close the matching one. Kinds
// this service does not care about are acknowledged and dropped.
func (s *LicenseService) HandlePaymentEvent(ctx context.Context, ev *dto.PaymentEventRequest) (*license.License, error) {
	switch ev.EventKind {
	case PaymentEventSale:
		plan, err := license.ParsePlan(ev.PlanID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ierr.ErrValidation, err)
		}
		productName := ev.ProductName
		if productName == "" {
			productName = s.defaultProduct
		}
		amount := ev.AmountCents
		if amount == 0 {
			amount = s.planPrice(plan)
		}
		return s.issue(ctx, ev.Email, productName, plan, ev.ReferenceID, license.OriginAutomated, amount)
	case PaymentEventCancellation:
		return nil, s.Cancel(ctx, ev.ReferenceID)
	default:
		s.logger.Info("Ignoring payment event of unhandled kind", zap.String("event_kind", ev.EventKind))
		return nil, nil
	}
}

func (s *LicenseService) GetLicenseByKey(ctx context.Context, licenseKey string) (*license.License, error) {
	return s.repo.FindByKey(ctx, licenseKey)
}

func (s *LicenseService) ListLicenses(ctx context.Context, req *dto.ListLicensesRequest) ([]*license.License, error) {
	licenses, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("repository error during list: %w", err)
	}

	if req == nil || (req.Status == nil && req.ProductName == nil && req.Email == nil) {
		return licenses, nil
	}

	filtered := make([]*license.License, 0, len(licenses))
	for _, lic := range licenses {
		if req.Status != nil && lic.Status != *req.Status {
			continue
		}
		if req.ProductName != nil && lic.ProductID != license.SlugifyProduct(*req.ProductName) {
			continue
		}
		if req.Email != nil && !strings.EqualFold(lic.Email, *req.Email) {
			continue
		}
		filtered = append(filtered, lic)
	}
	return filtered, nil
}

const expiringSoonPeriodDays = 30

func (s *LicenseService) GetDashboardSummary(ctx context.Context) (*dto.DashboardSummaryResponse, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("repository error fetching stats: %w", err)
	}
	licenses, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("repository error during list: %w", err)
	}

	summary := &dto.DashboardSummaryResponse{
		TotalIssued:   stats.TotalIssued,
		ActiveCount:   stats.ActiveCount,
		RevenueCents:  stats.RevenueCents,
		StatusCounts:  make(map[license.Status]int64),
		PlanCounts:    make(map[license.Plan]int64),
		ProductCounts: make(map[string]int64),
		ExpiringSoon: dto.ExpiringSoonSummary{
			PeriodDays: expiringSoonPeriodDays,
		},
	}

	now := s.now().UTC()
	horizon := now.AddDate(0, 0, expiringSoonPeriodDays)
	for _, lic := range licenses {
		summary.StatusCounts[lic.Status]++
		summary.PlanCounts[lic.Plan]++
		summary.ProductCounts[lic.ProductID]++

		if lic.Status != license.StatusActive || lic.Expired(now) {
			continue
		}
		if lic.ExpiresAt.After(horizon) {
			continue
		}
		summary.ExpiringSoon.Count++
		if summary.ExpiringSoon.NextToExpire == nil || lic.ExpiresAt.Before(summary.ExpiringSoon.NextToExpire.ExpiresAt) {
			summary.ExpiringSoon.NextToExpire = &dto.LicenseInfo{
				LicenseKey:  lic.Key,
				ExpiresAt:   lic.ExpiresAt,
				ProductName: lic.ProductName,
			}
		}
	}

	return summary, nil
}
