package clips

import (
	"math"
	"sort"

	"github.com/keagan/reelforge/internal/signals"
)

// BuilderConfig configures candidate clustering and scoring
type BuilderConfig struct {
	// ClusterGap merges intervals whose gap is strictly below it.
	ClusterGap float64
	MinLength  float64
	// MaxLength splits longer clusters into chunks; 0 disables splitting.
	MaxLength float64
	// MaxExtension caps how far a short candidate may be grown to MinLength.
	MaxExtension   float64
	Weights        map[signals.Source]float64
	AgreementBonus float64
	// SourceDuration clamps extensions; 0 means unknown.
	SourceDuration float64
}

// DefaultBuilderConfig returns the clustering defaults
func DefaultBuilderConfig() BuilderConfig {
	return BuilderConfig{
		ClusterGap:     1.0,
		MinLength:      2.0,
		MaxLength:      15.0,
		MaxExtension:   2.0,
		AgreementBonus: 0.25,
	}
}

// weight returns the configured weight for src, defaulting to 1.
func (c BuilderConfig) weight(src signals.Source) float64 {
	if w, ok := c.Weights[src]; ok {
		return w
	}
	return 1.0
}

// span is a contiguous region with the intervals that fall inside it.
type span struct {
	start, end float64
	members    []signals.NormalizedInterval
}

// Build clusters normalized intervals from every source into disjoint,
// scored candidates sorted by start. Output is deterministic for identical
// input.
func Build(intervals []signals.NormalizedInterval, cfg BuilderConfig) []Candidate {
	if len(intervals) == 0 {
		return nil
	}

	sorted := sortIntervals(intervals)
	clusters := clusterIntervals(sorted, cfg.ClusterGap)

	var cands []Candidate
	for _, cl := range clusters {
		for _, part := range splitSpan(cl, cfg.MinLength, cfg.MaxLength) {
			if len(part.members) == 0 {
				continue
			}
			cands = append(cands, scoreSpan(part, cfg))
		}
	}

	return fitMinLength(cands, cfg)
}

// sortIntervals orders by start, then source priority, then end.
func sortIntervals(in []signals.NormalizedInterval) []signals.NormalizedInterval {
	out := make([]signals.NormalizedInterval, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		ri, rj := signals.Rank(out[i].Source), signals.Rank(out[j].Source)
		if ri != rj {
			return ri < rj
		}
		return out[i].End < out[j].End
	})
	return out
}

func clusterIntervals(sorted []signals.NormalizedInterval, gap float64) []span {
	var clusters []span
	for _, iv := range sorted {
		if n := len(clusters); n > 0 && iv.Start-clusters[n-1].end < gap {
			cur := &clusters[n-1]
			cur.end = math.Max(cur.end, iv.End)
			cur.members = append(cur.members, iv)
			continue
		}
		clusters = append(clusters, span{start: iv.Start, end: iv.End, members: []signals.NormalizedInterval{iv}})
	}
	return clusters
}

// splitSpan cuts spans longer than maxLen into equal chunks. When equal
// chunks would fall below minLen, fixed maxLen chunks are used instead and a
// remainder shorter than minLen is trimmed.
func splitSpan(s span, minLen, maxLen float64) []span {
	length := s.end - s.start
	if maxLen <= 0 || length <= maxLen {
		return []span{s}
	}

	n := math.Ceil(length / maxLen)
	size := length / n
	if size < minLen {
		size = maxLen
	}

	var parts []span
	for start := s.start; start < s.end; start += size {
		end := math.Min(start+size, s.end)
		if end-start < minLen && len(parts) > 0 {
			break
		}
		parts = append(parts, span{start: start, end: end, members: overlapping(s.members, start, end)})
	}
	return parts
}

func overlapping(members []signals.NormalizedInterval, start, end float64) []signals.NormalizedInterval {
	var out []signals.NormalizedInterval
	for _, m := range members {
		if m.Start < end && m.End > start {
			out = append(out, m)
		}
	}
	return out
}

// scoreSpan computes Σ(weight·score) × (1 + bonus·(distinct−1)).
func scoreSpan(s span, cfg BuilderConfig) Candidate {
	var sum float64
	seen := make(map[signals.Source]bool)
	for _, m := range s.members {
		sum += cfg.weight(m.Source) * m.Score
		seen[m.Source] = true
	}

	sources := make([]signals.Source, 0, len(seen))
	for src := range seen {
		sources = append(sources, src)
	}
	sort.Slice(sources, func(i, j int) bool {
		ri, rj := signals.Rank(sources[i]), signals.Rank(sources[j])
		if ri != rj {
			return ri < rj
		}
		return sources[i] < sources[j]
	})

	score := sum * (1 + cfg.AgreementBonus*float64(len(sources)-1))
	return Candidate{Start: s.start, End: s.end, Score: score, Sources: sources}
}

// fitMinLength grows short candidates symmetrically to MinLength when the
// missing length is within MaxExtension and the grown range stays clear of
// its neighbours; otherwise the candidate is dropped.
func fitMinLength(cands []Candidate, cfg BuilderConfig) []Candidate {
	out := make([]Candidate, 0, len(cands))
	prevEnd := math.Inf(-1)

	for i, c := range cands {
		if c.Duration() >= cfg.MinLength {
			out = append(out, c)
			prevEnd = c.End
			continue
		}

		need := cfg.MinLength - c.Duration()
		if need > cfg.MaxExtension {
			continue
		}

		start := math.Max(0, c.Start-need/2)
		end := start + cfg.MinLength
		if cfg.SourceDuration > 0 && end > cfg.SourceDuration {
			end = cfg.SourceDuration
			start = end - cfg.MinLength
		}
		if start < 0 || start < prevEnd {
			continue
		}
		if i+1 < len(cands) && end > cands[i+1].Start {
			continue
		}

		c.Start, c.End = start, end
		out = append(out, c)
		prevEnd = c.End
	}

	return out
}
