package domain

import "errors"

// Weekly weights for the decayed popularity index. They sum to 1.0, giving an
// exponentially-weighted trailing three-week average.
const (
	FirstWeekWeight  = 0.5
	SecondWeekWeight = 0.3
	ThirdWeekWeight  = 0.2
)

// ErrInvalidIncrement is returned when Increment is called with an amount below 1.
var ErrInvalidIncrement = errors.New("domain: increment amount must be >= 1")

// Counter holds the rolling weekly view/usage buckets of a RankingIndex.
// Only FirstWeek is ever incremented directly; the other buckets are filled
// by rotation inside UpdateIndex.
type Counter struct {
	FirstWeek  int `json:"first_week"`
	SecondWeek int `json:"second_week"`
	ThirdWeek  int `json:"third_week"`
}

// RankingIndex is a rolling three-week popularity counter plus the decayed
// scalar derived from it. Every ranked entity (product, catalog, search query,
// listing attribute) owns its RankingIndex exclusively; it is created together
// with its owner and removed with it.
//
// Index is derived state: callers must never set it directly, only through
// UpdateIndex.
type RankingIndex struct {
	ID      int64   `json:"id"`
	Index   float64 `json:"index"`
	Counter Counter `json:"counter"`
}

// Increment adds the given amount to the current week's bucket.
// Amounts below 1 are rejected.
func (r *RankingIndex) Increment(amount int) error {
	if amount < 1 {
		return ErrInvalidIncrement
	}
	r.Counter.FirstWeek += amount
	return nil
}

// UpdateIndex recomputes the decayed index from the weekly counters and then
// rotates the buckets (first → second, second → third, first reset to zero).
//
// The method carries no per-period guard: calling it twice within one
// scheduling period double-rotates the counters. Running it exactly once per
// period is the scheduler's contract, not this type's.
func (r *RankingIndex) UpdateIndex() {
	r.Index = float64(r.Counter.FirstWeek)*FirstWeekWeight +
		float64(r.Counter.SecondWeek)*SecondWeekWeight +
		float64(r.Counter.ThirdWeek)*ThirdWeekWeight
	r.rotateCounters()
}

// rotateCounters shifts the weekly buckets. Rotation happens only as part of
// UpdateIndex, never standalone.
func (r *RankingIndex) rotateCounters() {
	r.Counter.ThirdWeek = r.Counter.SecondWeek
	r.Counter.SecondWeek = r.Counter.FirstWeek
	r.Counter.FirstWeek = 0
}
