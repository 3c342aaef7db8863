// Package seed writes the configured plan catalog into the plans table.
package seed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/mediavault/internal/config"
	plandomain "github.com/smallbiznis/mediavault/internal/plan/domain"
	"gorm.io/gorm"
)

var ErrFreePlanMissing = errors.New("free_plan_missing")

// PlansFromCatalog converts catalog entries into plan rows. Entries without a
// currency take defaultCurrency.
func PlansFromCatalog(catalog config.PlanCatalog, defaultCurrency string, now time.Time) ([]plandomain.Plan, error) {
	plans := make([]plandomain.Plan, 0, len(catalog.Plans))
	hasFree := false
	for i, spec := range catalog.Plans {
		currency := strings.ToUpper(strings.TrimSpace(spec.Currency))
		if currency == "" {
			currency = strings.ToUpper(strings.TrimSpace(defaultCurrency))
		}
		plan := plandomain.Plan{
			ID:                   spec.Identifier(),
			Name:                 strings.TrimSpace(spec.Name),
			Price:                spec.Price,
			Currency:             currency,
			StorageLimitMB:       spec.StorageLimitMB,
			MaxUploadSizeMB:      spec.MaxUploadSizeMB,
			TransformationsLimit: spec.TransformationsLimit,
			TeamMembers:          spec.TeamMembers,
			SortOrder:            i,
			CreatedAt:            now,
			UpdatedAt:            now,
		}
		if plan.ID == plandomain.FreePlanID {
			hasFree = true
		}
		plans = append(plans, plan)
	}
	if !hasFree {
		return nil, ErrFreePlanMissing
	}
	return plans, nil
}

// EnsurePlans upserts every catalog plan in one transaction. Plans dropped
// from the catalog stay in the table so existing payments keep resolving.
func EnsurePlans(ctx context.Context, db *gorm.DB, repo plandomain.Repository, catalog config.PlanCatalog, defaultCurrency string, now time.Time) (int, error) {
	if db == nil {
		return 0, errors.New("seed database handle is required")
	}
	plans, err := PlansFromCatalog(catalog, defaultCurrency, now)
	if err != nil {
		return 0, err
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range plans {
			if err := repo.Upsert(ctx, tx, &plans[i]); err != nil {
				return fmt.Errorf("upsert plan %s: %w", plans[i].ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(plans), nil
}
