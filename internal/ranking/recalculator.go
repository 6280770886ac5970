package ranking

import (
	"context"
	"fmt"
	"log"

	"catalog-ranking-service/internal/store"
)

// Recalculator walks ranking indexes owner kind by owner kind and applies the
// weekly decay rotation to each.
type Recalculator struct {
	store  store.RankingStorer
	logger *log.Logger
}

// NewRecalculator creates a Recalculator on top of a ranking store.
func NewRecalculator(s store.RankingStorer, logger *log.Logger) *Recalculator {
	return &Recalculator{store: s, logger: logger}
}

// RecomputeOwner rotates every index of one owner kind and returns how many
// were rotated. A failing index is logged and skipped so one broken row never
// stalls the whole weekly run.
func (r *Recalculator) RecomputeOwner(ctx context.Context, owner store.IndexOwner) (int, error) {
	ids, err := r.store.ListRankingIndexIDs(ctx, owner)
	if err != nil {
		return 0, fmt.Errorf("ranking: listing %s indexes: %w", owner, err)
	}

	rotated := 0
	for _, id := range ids {
		if err := r.store.UpdateIndex(ctx, id); err != nil {
			r.logger.Printf("ERROR: Failed to update %s index %d: %v", owner, id, err)
			continue
		}
		rotated++
	}
	r.logger.Printf("INFO: Recomputed %d of %d %s indexes", rotated, len(ids), owner)
	return rotated, nil
}

// RecomputeAllPopularity runs the weekly decay over every owner kind except
// product sales, whose rotation belongs to the bestsellers job so that the
// section is rebuilt from the freshly decayed values.
func (r *Recalculator) RecomputeAllPopularity(ctx context.Context) error {
	owners := []store.IndexOwner{
		store.OwnerProductPopular,
		store.OwnerProductOftenSearch,
		store.OwnerCatalog,
		store.OwnerListingAttribute,
		store.OwnerSearchQuery,
	}
	for _, owner := range owners {
		if _, err := r.RecomputeOwner(ctx, owner); err != nil {
			return err
		}
	}
	return nil
}
