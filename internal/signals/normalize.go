// Package signals holds the shared time-axis representation of detector
// output and the normalizer that maps every detector onto a common [0,1]
// score scale.
package signals

import "math"

// Normalize rescales each signal's scores to [0,1] using that signal's own
// min and max. When every score in a signal is equal the intervals map to
// 1.0. Empty signals contribute nothing, and intervals with non-finite
// values or end <= start are skipped. Output preserves input order.
func Normalize(sigs ...TimeSignal) []NormalizedInterval {
	var out []NormalizedInterval

	for _, sig := range sigs {
		valid := make([]Interval, 0, len(sig.Intervals))
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, iv := range sig.Intervals {
			if !finite(iv.Start) || !finite(iv.End) || !finite(iv.Score) {
				continue
			}
			if iv.End <= iv.Start || iv.Start < 0 {
				continue
			}
			valid = append(valid, iv)
			lo = math.Min(lo, iv.Score)
			hi = math.Max(hi, iv.Score)
		}

		span := hi - lo
		for _, iv := range valid {
			score := 1.0
			if span > 0 {
				score = (iv.Score - lo) / span
			}
			out = append(out, NormalizedInterval{
				Start:  iv.Start,
				End:    iv.End,
				Score:  score,
				Source: sig.Source,
			})
		}
	}

	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
