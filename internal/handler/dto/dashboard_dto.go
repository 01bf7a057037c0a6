package dto

import (
	"time"

	"github.com/mirovand/licensehub-api/internal/domain/license"
)

type DashboardSummaryResponse struct {
	TotalIssued   int64                    `json:"totalIssued"`
	ActiveCount   int64                    `json:"activeCount"`
	RevenueCents  int64                    `json:"revenueCents"`
	StatusCounts  map[license.Status]int64 `json:"statusCounts"`
	PlanCounts    map[license.Plan]int64   `json:"planCounts"`
	ProductCounts map[string]int64         `json:"productCounts"`
	ExpiringSoon  ExpiringSoonSummary      `json:"expiringSoon"`
}

type ExpiringSoonSummary struct {
	Count        int64        `json:"count"`
	PeriodDays   int          `json:"periodDays"`
	NextToExpire *LicenseInfo `json:"nextToExpire,omitempty"`
}

type LicenseInfo struct {
	LicenseKey  string    `json:"licenseKey"`
	ExpiresAt   time.Time `json:"expiresAt"`
	ProductName string    `json:"productName"`
}
