package license

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
	StatusRevoked   Status = "revoked"
)

type Plan string

const (
	PlanMonthly  Plan = "monthly"
	PlanAnnual   Plan = "annual"
	PlanLifetime Plan = "lifetime"
)

// ParsePlan rejects anything outside the closed plan set. There is no
// default plan; an unknown value is a caller error.
func ParsePlan(s string) (Plan, error) {
	switch Plan(s) {
	case PlanMonthly, PlanAnnual, PlanLifetime:
		return Plan(s), nil
	default:
		return "", fmt.Errorf("unknown subscription plan %q", s)
	}
}

// ExpiryFrom computes the expiry timestamp for a license issued at the
// given instant. Lifetime licenses get a far-future sentinel that compares
// greater than any realistic clock reading.
func (p Plan) ExpiryFrom(issued time.Time) time.Time {
	switch p {
	case PlanMonthly:
		return issued.AddDate(0, 1, 0)
	case PlanAnnual:
		return issued.AddDate(1, 0, 0)
	default:
		return issued.AddDate(100, 0, 0)
	}
}

type Origin string

const (
	OriginAutomated Origin = "automated"
	OriginManual    Origin = "manual"
)

type License struct {
	Key          string     `json:"key"`
	Email        string     `json:"email"`
	ProductName  string     `json:"product_name"`
	ProductID    string     `json:"product_id"`
	Plan         Plan       `json:"plan"`
	Status       Status     `json:"status"`
	IssuedAt     time.Time  `json:"issued_at"`
	ExpiresAt    time.Time  `json:"expires_at"`
	PaymentRef   string     `json:"payment_ref,omitempty"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty"`
	RevokeReason string     `json:"revoke_reason,omitempty"`
	Origin       Origin     `json:"origin"`
}

// Expired reports whether the license term has lapsed at the given instant.
// Status is never rewritten on expiry; validity is recomputed per call.
func (l *License) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}

func (l *License) Clone() *License {
	if l == nil {
		return nil
	}
	clone := *l
	if l.CancelledAt != nil {
		t := *l.CancelledAt
		clone.CancelledAt = &t
	}
	if l.RevokedAt != nil {
		t := *l.RevokedAt
		clone.RevokedAt = &t
	}
	return &clone
}

// Stats is the aggregate record kept in lock-step with every license
// lifecycle transition. ActiveCount must equal the number of licenses
// whose status is StatusActive at every quiescent point.
type Stats struct {
	TotalIssued  int64 `json:"total_issued"`
	ActiveCount  int64 `json:"active_count"`
	RevenueCents int64 `json:"revenue_cents"`
}

// SlugifyProduct canonicalizes a product name into the identifier a license
// is bound to. Lowercase; camel-case boundaries and whitespace runs become
// single hyphens. Pure and deterministic: the same name always yields the
// same slug, so verification with a raw product name reproduces the
// identifier byte-for-byte.
func SlugifyProduct(name string) string {
	var b strings.Builder
	b.Grow(len(name) + 4)

	prevLowerOrDigit := false
	prevHyphen := true // suppress a leading hyphen
	for _, r := range name {
		switch {
		case unicode.IsSpace(r) || r == '-' || r == '_':
			if !prevHyphen {
				b.WriteByte('-')
				prevHyphen = true
			}
			prevLowerOrDigit = false
		case unicode.IsUpper(r):
			if prevLowerOrDigit && !prevHyphen {
				b.WriteByte('-')
			}
			b.WriteRune(unicode.ToLower(r))
			prevHyphen = false
			prevLowerOrDigit = false
		default:
			b.WriteRune(unicode.ToLower(r))
			prevHyphen = false
			prevLowerOrDigit = unicode.IsLower(r) || unicode.IsDigit(r)
		}
	}

	return strings.TrimRight(b.String(), "-")
}
