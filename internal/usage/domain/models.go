// Package domain contains the per-period usage ledger model and its derived views.
package domain

import (
	"math"
	"time"

	"github.com/bwmarrin/snowflake"
	plandomain "github.com/smallbiznis/mediavault/internal/plan/domain"
)

// UsageTracking is one user's counters for one (month, year) period.
// StorageUsed is always in bytes.
type UsageTracking struct {
	ID                  snowflake.ID `json:"id" gorm:"primaryKey"`
	UserID              string       `json:"user_id" gorm:"type:text;not null"`
	Month               int          `json:"month" gorm:"not null"`
	Year                int          `json:"year" gorm:"not null"`
	StorageUsed         int64        `json:"storage_used" gorm:"not null;default:0"`
	TransformationsUsed int64        `json:"transformations_used" gorm:"not null;default:0"`
	UploadsCount        int64        `json:"uploads_count" gorm:"not null;default:0"`
	CreatedAt           time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt           time.Time    `json:"updated_at" gorm:"not null"`
}

func (UsageTracking) TableName() string { return "usage_tracking" }

func (u UsageTracking) Period() Period {
	return Period{Month: u.Month, Year: u.Year}
}

// Period is a calendar month bucket in UTC.
type Period struct {
	Month int `json:"month"`
	Year  int `json:"year"`
}

func PeriodOf(t time.Time) Period {
	t = t.UTC()
	return Period{Month: int(t.Month()), Year: t.Year()}
}

// Index orders periods on a single axis so ranges can be compared in SQL.
func (p Period) Index() int {
	return p.Year*12 + p.Month - 1
}

// AddMonths shifts the period by n months, n may be negative.
func (p Period) AddMonths(n int) Period {
	idx := p.Index() + n
	return Period{Month: idx%12 + 1, Year: idx / 12}
}

// Percentage is used/limit*100 rounded to two decimals. Unlimited or zero limits yield 0.
func Percentage(used, limit int64) float64 {
	if limit <= 0 {
		return 0
	}
	pct := float64(used) / float64(limit) * 100
	return math.Round(pct*100) / 100
}

// Remaining is max(0, limit-used), or Unlimited when limit is unlimited.
func Remaining(used, limit int64) int64 {
	if limit < 0 {
		return plandomain.Unlimited
	}
	if used >= limit {
		return 0
	}
	return limit - used
}

// BytesToMB converts bytes to MB with two decimals for display.
func BytesToMB(bytes int64) float64 {
	return math.Round(float64(bytes)/float64(plandomain.BytesPerMB)*100) / 100
}

type Meter struct {
	Used       int64   `json:"used"`
	Limit      int64   `json:"limit"`
	Remaining  int64   `json:"remaining"`
	Percentage float64 `json:"percentage"`
	Unlimited  bool    `json:"unlimited"`
}

func NewMeter(used, limit int64) Meter {
	return Meter{
		Used:       used,
		Limit:      limit,
		Remaining:  Remaining(used, limit),
		Percentage: Percentage(used, limit),
		Unlimited:  limit < 0,
	}
}

// Snapshot is the caller-facing view of a usage row against plan limits.
type Snapshot struct {
	UserID          string                `json:"userId"`
	Period          Period                `json:"period"`
	StorageUsed     int64                 `json:"storageUsedBytes"`
	StorageUsedMB   float64               `json:"storageUsedMB"`
	UploadsCount    int64                 `json:"uploadsCount"`
	Storage         Meter                 `json:"storage"`
	Transformations Meter                 `json:"transformations"`
	Limits          plandomain.PlanLimits `json:"limits"`
}

func NewSnapshot(row UsageTracking, limits plandomain.PlanLimits) Snapshot {
	return Snapshot{
		UserID:          row.UserID,
		Period:          row.Period(),
		StorageUsed:     row.StorageUsed,
		StorageUsedMB:   BytesToMB(row.StorageUsed),
		UploadsCount:    row.UploadsCount,
		Storage:         NewMeter(row.StorageUsed, limits.StorageLimitBytes()),
		Transformations: NewMeter(row.TransformationsUsed, limits.TransformationsLimit),
		Limits:          limits,
	}
}

// Analytics is a newest-first rollup of past periods.
type Analytics struct {
	Months  int           `json:"months"`
	Periods []PeriodUsage `json:"periods"`
	Totals  Totals        `json:"totals"`
}

type PeriodUsage struct {
	Period              Period  `json:"period"`
	StorageUsed         int64   `json:"storageUsedBytes"`
	StorageUsedMB       float64 `json:"storageUsedMB"`
	TransformationsUsed int64   `json:"transformationsUsed"`
	UploadsCount        int64   `json:"uploadsCount"`
}

type Totals struct {
	TransformationsUsed int64   `json:"transformationsUsed"`
	UploadsCount        int64   `json:"uploadsCount"`
	PeakStorageUsed     int64   `json:"peakStorageUsedBytes"`
	PeakStorageUsedMB   float64 `json:"peakStorageUsedMB"`
}
