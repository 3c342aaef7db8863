// Package domain contains plan reference data and the limits derived from it.
package domain

import "time"

// Unlimited marks a limit that is never enforced.
const Unlimited = -1

// BytesPerMB fixes the storage unit conversion used across the quota core.
const BytesPerMB int64 = 1024 * 1024

// FreePlanID is the plan every user without an active subscription falls back to.
const FreePlanID = "free"

type Plan struct {
	ID                   string    `json:"id" gorm:"primaryKey;type:text"`
	Name                 string    `json:"name" gorm:"type:text;not null"`
	Price                int64     `json:"price" gorm:"not null"`
	Currency             string    `json:"currency" gorm:"type:text;not null"`
	StorageLimitMB       int64     `json:"storage_limit_mb" gorm:"not null"`
	MaxUploadSizeMB      int64     `json:"max_upload_size_mb" gorm:"not null"`
	TransformationsLimit int64     `json:"transformations_limit" gorm:"not null"`
	TeamMembers          int       `json:"team_members" gorm:"not null"`
	SortOrder            int       `json:"sort_order" gorm:"not null;default:0"`
	CreatedAt            time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt            time.Time `json:"updated_at" gorm:"not null"`
}

func (Plan) TableName() string { return "plans" }

// IsFree reports whether the plan can be held without a payment.
func (p Plan) IsFree() bool {
	return p.Price == 0
}

func (p Plan) Limits() PlanLimits {
	return PlanLimits{
		PlanID:               p.ID,
		PlanName:             p.Name,
		StorageLimitMB:       p.StorageLimitMB,
		MaxUploadSizeMB:      p.MaxUploadSizeMB,
		TransformationsLimit: p.TransformationsLimit,
		TeamMembers:          p.TeamMembers,
	}
}

// PlanLimits is the enforcement view of a plan. Storage limits are stored in MB.
type PlanLimits struct {
	PlanID               string `json:"planId"`
	PlanName             string `json:"planName"`
	StorageLimitMB       int64  `json:"storageLimitMB"`
	MaxUploadSizeMB      int64  `json:"maxUploadSizeMB"`
	TransformationsLimit int64  `json:"transformationsLimit"`
	TeamMembers          int    `json:"teamMembers"`
}

func (l PlanLimits) UnlimitedStorage() bool {
	return l.StorageLimitMB < 0
}

func (l PlanLimits) UnlimitedTransformations() bool {
	return l.TransformationsLimit < 0
}

// StorageLimitBytes returns Unlimited when the plan has no storage ceiling.
func (l PlanLimits) StorageLimitBytes() int64 {
	if l.UnlimitedStorage() {
		return Unlimited
	}
	return l.StorageLimitMB * BytesPerMB
}

// MaxUploadSizeBytes returns Unlimited when the plan has no per-file ceiling.
func (l PlanLimits) MaxUploadSizeBytes() int64 {
	if l.MaxUploadSizeMB < 0 {
		return Unlimited
	}
	return l.MaxUploadSizeMB * BytesPerMB
}
