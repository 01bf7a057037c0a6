package dto

import (
	"time"

	"github.com/mirovand/licensehub-api/internal/domain/license"
)

type IssueLicenseRequest struct {
	Email       string `json:"email" binding:"required,email"`
	ProductName string `json:"product_name" binding:"required"`
	Plan        string `json:"plan" binding:"required"`
	PaymentRef  string `json:"payment_ref"`
}

type LicenseResponse struct {
	Key          string         `json:"key"`
	Email        string         `json:"email"`
	ProductName  string         `json:"product_name"`
	ProductID    string         `json:"product_id"`
	Plan         license.Plan   `json:"plan"`
	Status       license.Status `json:"status"`
	IssuedAt     time.Time      `json:"issued_at"`
	ExpiresAt    time.Time      `json:"expires_at"`
	PaymentRef   string         `json:"payment_ref,omitempty"`
	CancelledAt  *time.Time     `json:"cancelled_at,omitempty"`
	RevokedAt    *time.Time     `json:"revoked_at,omitempty"`
	RevokeReason string         `json:"revoke_reason,omitempty"`
	Origin       license.Origin `json:"origin"`
}

func NewLicenseResponse(lic *license.License) *LicenseResponse {
	return &LicenseResponse{
		Key:          lic.Key,
		Email:        lic.Email,
		ProductName:  lic.ProductName,
		ProductID:    lic.ProductID,
		Plan:         lic.Plan,
		Status:       lic.Status,
		IssuedAt:     lic.IssuedAt,
		ExpiresAt:    lic.ExpiresAt,
		PaymentRef:   lic.PaymentRef,
		CancelledAt:  lic.CancelledAt,
		RevokedAt:    lic.RevokedAt,
		RevokeReason: lic.RevokeReason,
		Origin:       lic.Origin,
	}
}

type ListLicensesRequest struct {
	Status      *license.Status `form:"status" binding:"omitempty,oneof=active cancelled revoked"`
	ProductName *string         `form:"product_name"`
	Email       *string         `form:"email" binding:"omitempty,email"`
}

type ListLicensesResponse struct {
	Licenses   []*LicenseResponse `json:"licenses"`
	TotalCount int                `json:"totalCount"`
}

type ValidateLicenseRequest struct {
	LicenseKey  string `json:"license_key" binding:"required"`
	ProductName string `json:"product_name" binding:"required"`
}

type ValidateLicenseResponse struct {
	IsValid bool `json:"is_valid"`

	Reason    string       `json:"reason,omitempty"`
	Email     string       `json:"email,omitempty"`
	Plan      license.Plan `json:"plan,omitempty"`
	ProductID string       `json:"product_id,omitempty"`
	ExpiresAt *time.Time   `json:"expires_at,omitempty"`
}

type RevokeLicenseRequest struct {
	Reason string `json:"reason"`
}

// PaymentEventRequest is the normalized payment-provider event shape. The
// transport layer is expected to have already parsed and authenticated the
// provider payload; the core never sees raw webhook bodies.
type PaymentEventRequest struct {
	EventKind   string `json:"event_kind" binding:"required"`
	Email       string `json:"email"`
	ReferenceID string `json:"reference_id"`
	PlanID      string `json:"plan_id"`
	AmountCents int64  `json:"amount_cents"`
	ProductName string `json:"product_name"`
}
