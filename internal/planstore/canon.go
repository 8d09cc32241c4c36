package planstore

import (
	"math"
	"sort"
)

// Canonicalize produces the stable internal representation of a plan: goals
// ordered by (tier, target date, id), targets within a goal ordered by
// (kind, id), and every numeric field normalized with round-half-to-even at
// the given decimal precision. Permuting the input order never changes the
// result. Pure function; the input is not mutated.
func Canonicalize(p Plan, decimals int) Plan {
	out := Plan{Config: p.Config}
	out.Goals = make([]Goal, len(p.Goals))
	for i, g := range p.Goals {
		out.Goals[i] = canonicalGoal(g, decimals)
	}
	sort.SliceStable(out.Goals, func(i, j int) bool {
		a, b := out.Goals[i], out.Goals[j]
		if a.Tier != b.Tier {
			return a.Tier.rank() < b.Tier.rank()
		}
		if !a.TargetDate.Equal(b.TargetDate) {
			return a.TargetDate.Before(b.TargetDate)
		}
		return a.ID < b.ID
	})
	return out
}

func canonicalGoal(g Goal, decimals int) Goal {
	out := g
	out.Weight = RoundHalfEven(g.Weight, decimals)
	out.Targets = make([]GoalTarget, len(g.Targets))
	for i, t := range g.Targets {
		ct := t
		ct.Value = RoundHalfEven(t.Value, decimals)
		ct.DistanceMeters = RoundHalfEven(t.DistanceMeters, decimals)
		if t.Tolerance != nil {
			v := RoundHalfEven(*t.Tolerance, decimals)
			ct.Tolerance = &v
		}
		if t.Weight != nil {
			v := RoundHalfEven(*t.Weight, decimals)
			ct.Weight = &v
		}
		out.Targets[i] = ct
	}
	sort.SliceStable(out.Targets, func(i, j int) bool {
		a, b := out.Targets[i], out.Targets[j]
		if a.Kind != b.Kind {
			return a.Kind.kindOrder() < b.Kind.kindOrder()
		}
		return a.ID < b.ID
	})
	return out
}

// RoundHalfEven rounds v to the given number of decimals using banker's
// rounding, the single normalization rule applied before any downstream
// computation or hashing.
func RoundHalfEven(v float64, decimals int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	scale := math.Pow(10, float64(decimals))
	return math.RoundToEven(v*scale) / scale
}

// SortSamples orders load samples by (date, category) without mutating the
// caller's slice.
func SortSamples(samples []LoadSample) []LoadSample {
	out := make([]LoadSample, len(samples))
	copy(out, samples)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Category < out[j].Category
	})
	return out
}

// SortEfforts orders effort evidence by (category, date, duration) without
// mutating the caller's slice.
func SortEfforts(efforts []Effort) []Effort {
	out := make([]Effort, len(efforts))
	copy(out, efforts)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].DurationSeconds < out[j].DurationSeconds
	})
	return out
}
