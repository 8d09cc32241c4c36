// Package adherence scores how closely realized training followed the plan.
// The score blends two ratio terms: actual-versus-scheduled (did the athlete
// do the work that was planned) and scheduled-versus-ideal (was the plan
// itself still on the ideal trajectory). Ratios are symmetric, so doing
// double the plan scores the same as doing half of it.
package adherence

import (
	"math"
	"time"

	"traincast/internal/policy"
)

// Labels attached to scored periods.
const (
	LabelOnTrack    = "on-track"
	LabelSlightMiss = "slight-miss"
	LabelMajorMiss  = "major-miss"
	LabelOverload   = "overload"
)

// Day is one scored calendar day.
type Day struct {
	Date      time.Time `json:"date"`
	Actual    float64   `json:"actual"`
	Scheduled float64   `json:"scheduled"`
	Ideal     float64   `json:"ideal"`
	Score     float64   `json:"score"`
	Label     string    `json:"label"`
}

// Week is the mean of its days' scores, labeled the same way.
type Week struct {
	Start time.Time `json:"start"`
	Score float64   `json:"score"`
	Label string    `json:"label"`
}

// Summary is the full adherence picture over a window.
type Summary struct {
	Days  []Day   `json:"days"`
	Weeks []Week  `json:"weeks"`
	Score float64 `json:"score"`
	Label string  `json:"label"`
}

// Score blends the two ratio terms into a 0-100 adherence score.
func Score(actual, scheduled, ideal float64, pol policy.AdherencePolicy) float64 {
	s := pol.ActualWeight*ratioScore(actual, scheduled, pol.RatioExponent) +
		pol.ScheduledWeight*ratioScore(scheduled, ideal, pol.RatioExponent)
	return math.Round(clamp(s, 0, 100))
}

// ratioScore maps a load ratio to 0-100, symmetric around 1: the score for
// ratio r equals the score for 1/r. Both sides zero scores 100 (nothing
// planned, nothing done); one side zero scores 0.
func ratioScore(got, want, exponent float64) float64 {
	if want <= 0 && got <= 0 {
		return 100
	}
	if want <= 0 || got <= 0 {
		return 0
	}
	r := got / want
	if r > 1 {
		r = 1 / r
	}
	return 100 * math.Pow(r, exponent)
}

// Label classifies a score, with overload taking precedence when realized
// load ran well past the plan regardless of how the ratio blend landed.
func Label(score, actual, scheduled float64, pol policy.AdherencePolicy) string {
	if scheduled > 0 && actual/scheduled > pol.OverloadRatio {
		return LabelOverload
	}
	switch {
	case score >= pol.OnTrackMin:
		return LabelOnTrack
	case score >= pol.SlightMissMin:
		return LabelSlightMiss
	default:
		return LabelMajorMiss
	}
}

// Assess scores every day of the window and rolls days into weeks. The
// three slices are parallel daily stress series; short slices read as zero.
func Assess(start time.Time, actual, scheduled, ideal []float64, pol policy.AdherencePolicy) Summary {
	n := len(actual)
	if len(scheduled) > n {
		n = len(scheduled)
	}
	if len(ideal) > n {
		n = len(ideal)
	}

	days := make([]Day, n)
	for i := 0; i < n; i++ {
		a := at(actual, i)
		s := at(scheduled, i)
		id := at(ideal, i)
		score := Score(a, s, id, pol)
		days[i] = Day{
			Date:      start.AddDate(0, 0, i),
			Actual:    a,
			Scheduled: s,
			Ideal:     id,
			Score:     score,
			Label:     Label(score, a, s, pol),
		}
	}

	var weeks []Week
	for w := 0; w*7 < n; w++ {
		lo, hi := w*7, (w+1)*7
		if hi > n {
			hi = n
		}
		var sum, actSum, schedSum float64
		for i := lo; i < hi; i++ {
			sum += days[i].Score
			actSum += days[i].Actual
			schedSum += days[i].Scheduled
		}
		mean := math.Round(sum / float64(hi-lo))
		weeks = append(weeks, Week{
			Start: start.AddDate(0, 0, lo),
			Score: mean,
			Label: Label(mean, actSum, schedSum, pol),
		})
	}

	var total, actTotal, schedTotal float64
	for _, d := range days {
		total += d.Score
		actTotal += d.Actual
		schedTotal += d.Scheduled
	}
	overall := 0.0
	if n > 0 {
		overall = math.Round(total / float64(n))
	}

	return Summary{
		Days:  days,
		Weeks: weeks,
		Score: overall,
		Label: Label(overall, actTotal, schedTotal, pol),
	}
}

func at(xs []float64, i int) float64 {
	if i < len(xs) {
		return xs[i]
	}
	return 0
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
