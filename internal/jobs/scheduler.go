package jobs

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"catalog-ranking-service/internal/cache"
	"catalog-ranking-service/internal/catalog"
	"catalog-ranking-service/internal/config"
	"catalog-ranking-service/internal/ranking"
	"catalog-ranking-service/internal/sections"
)

// CacheInvalidator drops cached listing responses after a job rewrites
// section membership or popularity indexes. A nil invalidator disables it.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, keys ...string) error
}

// jobTimeout bounds a single scheduled run so a stuck database cannot pile
// up overlapping executions.
const jobTimeout = 30 * time.Minute

// Scheduler drives the periodic maintenance jobs:
//
//   - weekly: rotate the sales indexes into the bestsellers section, then
//     rotate every popularity index
//   - daily: refresh products of the day, the promo and best-price sections,
//     and drop the new-arrival tag from stale products
type Scheduler struct {
	cron         *cron.Cron
	curator      *sections.Curator
	recalculator *ranking.Recalculator
	cache        CacheInvalidator
	cfg          config.JobsConfig
	logger       *log.Logger
}

func NewScheduler(curator *sections.Curator, recalculator *ranking.Recalculator, invalidator CacheInvalidator, cfg config.JobsConfig, logger *log.Logger) *Scheduler {
	return &Scheduler{
		cron:         cron.New(),
		curator:      curator,
		recalculator: recalculator,
		cache:        invalidator,
		cfg:          cfg,
		logger:       logger,
	}
}

// Start registers the weekly and daily entries and launches the cron loop.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.cfg.WeeklySpec, s.runWeekly); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(s.cfg.DailySpec, s.runDaily); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Printf("INFO: Job scheduler started (weekly %q, daily %q)", s.cfg.WeeklySpec, s.cfg.DailySpec)
	return nil
}

// Stop halts the cron loop and waits for any running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Println("INFO: Job scheduler stopped")
}

// RunWeekly executes the weekly maintenance pass once. Bestsellers run first:
// that job rotates the sales indexes itself, so the popularity recomputation
// afterwards must not touch them again.
func (s *Scheduler) RunWeekly(ctx context.Context) {
	start := time.Now()
	s.logger.Println("INFO: Weekly maintenance started")

	if err := s.curator.UpdateBestsellers(ctx); err != nil {
		s.logger.Printf("ERROR: Weekly bestsellers update failed: %v", err)
	}
	if err := s.recalculator.RecomputeAllPopularity(ctx); err != nil {
		s.logger.Printf("ERROR: Weekly popularity recomputation failed: %v", err)
	}
	s.invalidateListingCaches(ctx)

	s.logger.Printf("INFO: Weekly maintenance finished in %s", time.Since(start).Round(time.Millisecond))
}

// RunDaily executes the daily curation pass once. Each job is independent;
// one failing does not stop the rest.
func (s *Scheduler) RunDaily(ctx context.Context) {
	start := time.Now()
	s.logger.Println("INFO: Daily curation started")

	if err := s.curator.UpdateProductsOfDay(ctx); err != nil {
		s.logger.Printf("ERROR: Daily products-of-day update failed: %v", err)
	}
	if err := s.curator.UpdatePromoTag(ctx); err != nil {
		s.logger.Printf("ERROR: Daily promo tag update failed: %v", err)
	}
	if err := s.curator.UpdateBestPrices(ctx); err != nil {
		s.logger.Printf("ERROR: Daily best-price update failed: %v", err)
	}
	if err := s.curator.CleanupNewArrivals(ctx); err != nil {
		s.logger.Printf("ERROR: Daily new-arrival cleanup failed: %v", err)
	}
	s.invalidateListingCaches(ctx)

	s.logger.Printf("INFO: Daily curation finished in %s", time.Since(start).Round(time.Millisecond))
}

// invalidateListingCaches drops the cached listing pages of every displayed
// listing, in all sort modes, after a job changed what those pages show.
func (s *Scheduler) invalidateListingCaches(ctx context.Context) {
	if s.cache == nil {
		return
	}
	modes := []string{"", catalog.SortDefault, catalog.SortCheap, catalog.SortExpensive, catalog.SortDiscount}
	keys := make([]string, 0, len(sections.DisplayListings)*len(modes))
	for _, slug := range sections.DisplayListings {
		for _, mode := range modes {
			keys = append(keys, cache.Key("listing", slug, "sort", mode))
		}
	}
	if err := s.cache.Invalidate(ctx, keys...); err != nil {
		s.logger.Printf("WARN: Failed to invalidate listing caches: %v", err)
	}
}

func (s *Scheduler) runWeekly() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	s.RunWeekly(ctx)
}

func (s *Scheduler) runDaily() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	s.RunDaily(ctx)
}
