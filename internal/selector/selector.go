// Package selector chooses the subset of candidates that maximizes total
// score mass under a duration budget.
//
// Candidates coming out of the builder are pairwise disjoint, so the only
// coupling constraint is total duration and the problem reduces to a 0/1
// knapsack over durations discretized into fixed-width buckets. Weights are
// rounded up to whole buckets and the budget, Target × (1+Tolerance), is
// rounded down, so any plan the table admits stays inside the tolerance.
package selector

import (
	"math"
	"sort"

	"github.com/keagan/reelforge/internal/clips"
)

const epsilon = 1e-9

// MaxBuckets caps the budget resolution. Finer buckets are widened so the
// table stays bounded for long targets.
const MaxBuckets = 1 << 16

// Config configures the selector
type Config struct {
	// Target is the output duration budget in seconds.
	Target float64
	// BucketSeconds is the DP time resolution.
	BucketSeconds float64
	// Tolerance is the allowed relative overrun of Target.
	Tolerance float64
	// MinFillRatio flags plans shorter than this fraction of Target.
	MinFillRatio float64
	MinLength    float64
	// MaxLength of 0 leaves segment length unbounded.
	MaxLength float64
}

// DefaultConfig returns the selector defaults for a target duration
func DefaultConfig(target float64) Config {
	return Config{
		Target:        target,
		BucketSeconds: 1.0,
		Tolerance:     0.05,
		MinFillRatio:  0.9,
		MinLength:     2.0,
		MaxLength:     15.0,
	}
}

// Plan is a chronologically ordered, non-overlapping selection
type Plan struct {
	Segments []clips.Candidate
	Duration float64
	Score    float64
	Target   float64

	// FullSet is set when every eligible candidate fit the budget.
	FullSet bool
	// Underfilled is set when Duration < MinFillRatio × Target.
	Underfilled bool
}

// Empty reports whether the plan selected nothing
func (p Plan) Empty() bool {
	return len(p.Segments) == 0
}

// Select picks the best subset of candidates for cfg.Target. It never
// returns an error: an empty plan is returned for a non-positive target or
// when nothing is eligible.
func Select(cands []clips.Candidate, cfg Config) Plan {
	plan := Plan{Target: cfg.Target}
	if cfg.Target <= 0 || len(cands) == 0 {
		return plan
	}

	eligible := filterEligible(cands, cfg)
	if len(eligible) == 0 {
		return plan
	}

	bucket := cfg.BucketSeconds
	if bucket <= 0 {
		bucket = 1.0
	}
	limit := cfg.Target * (1 + cfg.Tolerance)
	if limit/bucket > MaxBuckets {
		bucket = limit / MaxBuckets
	}
	budget := int(math.Floor(limit/bucket + epsilon))
	weights := make([]int, len(eligible))
	total := 0
	for i, c := range eligible {
		weights[i] = max(1, int(math.Ceil(c.Duration()/bucket-epsilon)))
		total += weights[i]
	}

	var chosen []clips.Candidate
	if total <= budget {
		// Scarce candidate mass: everything fits, nothing to optimize.
		chosen = eligible
		plan.FullSet = true
	} else {
		chosen = knapsack(eligible, weights, budget)
	}

	plan.Segments = chosen
	for _, c := range chosen {
		plan.Duration += c.Duration()
		plan.Score += c.Value()
	}
	plan.Underfilled = plan.Duration < cfg.MinFillRatio*cfg.Target-epsilon
	return plan
}

// filterEligible sorts by start and removes candidates that violate the
// length bounds or overlap an earlier candidate, then drops those longer than
// the whole target. Overlaps are resolved before the target filter so the
// eligible set only grows as the target grows.
func filterEligible(cands []clips.Candidate, cfg Config) []clips.Candidate {
	sorted := make([]clips.Candidate, len(cands))
	copy(sorted, cands)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start < sorted[j].Start
	})

	valid := make([]clips.Candidate, 0, len(sorted))
	for _, c := range sorted {
		d := c.Duration()
		switch {
		case d <= 0:
			continue
		case d < cfg.MinLength-epsilon:
			continue
		case cfg.MaxLength > 0 && d > cfg.MaxLength+epsilon:
			continue
		case c.Value() < 0:
			continue
		}
		if n := len(valid); n > 0 && valid[n-1].Overlaps(c) {
			continue
		}
		valid = append(valid, c)
	}

	out := valid[:0]
	for _, c := range valid {
		if c.Duration() <= cfg.Target+epsilon {
			out = append(out, c)
		}
	}
	return out
}

// knapsack solves the discretized 0/1 knapsack exactly and backtracks the
// chosen set. An item is only taken when strictly better than skipping it,
// so among equal-valued plans the chronologically earlier candidates win.
// One rolling value row is kept; the per-item take decisions are bitsets.
func knapsack(items []clips.Candidate, weights []int, budget int) []clips.Candidate {
	if budget <= 0 {
		return nil
	}

	n := len(items)
	words := budget/64 + 1
	dp := make([]float64, budget+1)
	take := make([][]uint64, n)

	for i := 0; i < n; i++ {
		take[i] = make([]uint64, words)
		w, v := weights[i], items[i].Value()
		for b := budget; b >= w; b-- {
			if cand := dp[b-w] + v; cand > dp[b]+epsilon {
				dp[b] = cand
				take[i][b/64] |= 1 << (b % 64)
			}
		}
	}

	var chosen []clips.Candidate
	b := budget
	for i := n - 1; i >= 0; i-- {
		if take[i][b/64]&(1<<(b%64)) != 0 {
			chosen = append(chosen, items[i])
			b -= weights[i]
		}
	}

	for l, r := 0, len(chosen)-1; l < r; l, r = l+1, r-1 {
		chosen[l], chosen[r] = chosen[r], chosen[l]
	}
	return chosen
}
