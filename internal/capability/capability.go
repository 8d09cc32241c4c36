// Package capability fits two-parameter critical-power / critical-speed
// models from best-effort evidence. Power categories use the hyperbolic
// form output(t) = CP + W'/t; speed categories use its distance-time dual
// d(t) = CS*t + D'. Both are linear in their transformed coordinates, so
// the fit is closed-form weighted least squares.
package capability

import (
	"math"
	"sort"
	"time"

	"traincast/internal/planstore"
	"traincast/internal/policy"
)

// Model is the fitted capability estimate for one activity category.
type Model struct {
	Category   string
	Basis      planstore.Basis
	Asymptote  float64 // CP (watts) or CS (m/s)
	Capacity   float64 // W' (joules) or D' (meters)
	FitQuality float64 // 0-1, weighted R^2 against the final fit
	Recency    float64 // 0-1, weighted mean evidence freshness
	Confidence float64 // 0-1
	Evidence   int     // points used after outlier rejection
	Outliers   int     // points discarded
	FromPrior  bool    // true when the profile-derived prior was used
}

// PredictOutput returns the sustainable output for a duration in seconds.
func (m Model) PredictOutput(durationSeconds float64) float64 {
	if durationSeconds <= 0 {
		return 0
	}
	switch m.Basis {
	case planstore.BasisPower:
		return m.Asymptote + m.Capacity/durationSeconds
	default:
		// Mean speed over t from d = CS*t + D' is CS + D'/t.
		return m.Asymptote + m.Capacity/durationSeconds
	}
}

// PredictTime returns the predicted time in seconds to cover a distance for
// speed-basis models. Returns +Inf when the distance is unreachable.
func (m Model) PredictTime(distanceMeters float64) float64 {
	if m.Basis != planstore.BasisSpeed || m.Asymptote <= 0 {
		return math.Inf(1)
	}
	t := (distanceMeters - m.Capacity) / m.Asymptote
	if t <= 0 {
		// Shorter than the anaerobic distance reserve; bound by a sprint.
		return distanceMeters / (m.Asymptote * 2)
	}
	return t
}

// Estimate fits the capability model for one category from its evidence.
// Sparse evidence never errors: with fewer than two duration bands covered
// the model falls back to a conservative prior derived from body weight and
// LTHR, with confidence marked low.
func Estimate(category string, efforts []planstore.Effort, profile planstore.Profile, asOf time.Time, pol policy.CapabilityPolicy) Model {
	basis := planstore.CategoryBasis(category)

	recent := filterRecent(category, efforts, asOf, pol)
	short, long := bandCoverage(recent, pol)

	if len(recent) < 2 || !short || !long {
		return priorModel(category, basis, profile, recent, asOf, pol)
	}

	points := toFitPoints(recent, basis, asOf, pol)
	fit := weightedFit(points)

	// One round of robust outlier rejection against the athlete's own
	// evidence spread, then a single refit.
	kept, dropped := rejectOutliers(points, fit, pol.OutlierMADMultiple)
	if dropped > 0 && len(kept) >= 2 {
		if s, l := fitBandCoverage(kept, pol); s && l {
			points = kept
			fit = weightedFit(points)
		} else {
			dropped = 0
		}
	}

	model := Model{
		Category:   category,
		Basis:      basis,
		Asymptote:  fit.slopeOrIntercept(basis),
		Capacity:   fit.capacity(basis),
		FitQuality: fitQuality(points, fit),
		Recency:    meanRecency(points),
		Evidence:   len(points),
		Outliers:   dropped,
	}
	model = clampModel(model, profile, pol)
	model.Confidence = confidence(model, len(points), true, true, pol)
	return model
}

// fitPoint is one effort in fit coordinates: x, y, and a recency weight.
type fitPoint struct {
	x        float64
	y        float64
	weight   float64
	duration float64
	recency  float64
}

type fitResult struct {
	slope     float64
	intercept float64
}

// For power basis: y = P, x = 1/t, so intercept = CP and slope = W'.
// For speed basis: y = d, x = t, so slope = CS and intercept = D'.
func (f fitResult) slopeOrIntercept(basis planstore.Basis) float64 {
	if basis == planstore.BasisPower {
		return f.intercept
	}
	return f.slope
}

func (f fitResult) capacity(basis planstore.Basis) float64 {
	if basis == planstore.BasisPower {
		return f.slope
	}
	return f.intercept
}

func filterRecent(category string, efforts []planstore.Effort, asOf time.Time, pol policy.CapabilityPolicy) []planstore.Effort {
	cutoff := asOf.AddDate(0, 0, -pol.RecencyWindowDays)
	var out []planstore.Effort
	for _, e := range efforts {
		if e.Category != category {
			continue
		}
		if e.Date.Before(cutoff) || e.Date.After(asOf) {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].DurationSeconds < out[j].DurationSeconds
	})
	return out
}

func bandCoverage(efforts []planstore.Effort, pol policy.CapabilityPolicy) (short, long bool) {
	for _, e := range efforts {
		if e.DurationSeconds <= pol.ShortMaxSeconds {
			short = true
		}
		if e.DurationSeconds >= pol.LongMinSeconds {
			long = true
		}
	}
	return short, long
}

func fitBandCoverage(points []fitPoint, pol policy.CapabilityPolicy) (short, long bool) {
	for _, p := range points {
		if p.duration <= pol.ShortMaxSeconds {
			short = true
		}
		if p.duration >= pol.LongMinSeconds {
			long = true
		}
	}
	return short, long
}

func toFitPoints(efforts []planstore.Effort, basis planstore.Basis, asOf time.Time, pol policy.CapabilityPolicy) []fitPoint {
	points := make([]fitPoint, 0, len(efforts))
	for _, e := range efforts {
		ageDays := asOf.Sub(e.Date).Hours() / 24
		recency := math.Pow(0.5, ageDays/pol.RecencyHalfLife)
		p := fitPoint{weight: recency, duration: e.DurationSeconds, recency: recency}
		if basis == planstore.BasisPower {
			p.x = 1 / e.DurationSeconds
			p.y = e.Output
		} else {
			p.x = e.DurationSeconds
			p.y = e.Output * e.DurationSeconds // distance covered
		}
		points = append(points, p)
	}
	return points
}

func weightedFit(points []fitPoint) fitResult {
	var sw, sx, sy, sxx, sxy float64
	for _, p := range points {
		sw += p.weight
		sx += p.weight * p.x
		sy += p.weight * p.y
		sxx += p.weight * p.x * p.x
		sxy += p.weight * p.x * p.y
	}
	denom := sw*sxx - sx*sx
	if denom == 0 || sw == 0 {
		return fitResult{}
	}
	slope := (sw*sxy - sx*sy) / denom
	intercept := (sy - slope*sx) / sw
	return fitResult{slope: slope, intercept: intercept}
}

func rejectOutliers(points []fitPoint, fit fitResult, madMultiple float64) ([]fitPoint, int) {
	residuals := make([]float64, len(points))
	for i, p := range points {
		residuals[i] = p.y - (fit.intercept + fit.slope*p.x)
	}
	mad := medianAbsDeviation(residuals)
	if mad == 0 {
		return points, 0
	}
	var kept []fitPoint
	dropped := 0
	for i, p := range points {
		if math.Abs(residuals[i]) > madMultiple*mad {
			dropped++
			continue
		}
		kept = append(kept, p)
	}
	return kept, dropped
}

func medianAbsDeviation(residuals []float64) float64 {
	abs := make([]float64, len(residuals))
	for i, r := range residuals {
		abs[i] = math.Abs(r)
	}
	sort.Float64s(abs)
	n := len(abs)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return abs[n/2]
	}
	return (abs[n/2-1] + abs[n/2]) / 2
}

func fitQuality(points []fitPoint, fit fitResult) float64 {
	var sw, sy float64
	for _, p := range points {
		sw += p.weight
		sy += p.weight * p.y
	}
	if sw == 0 {
		return 0
	}
	mean := sy / sw
	var ssRes, ssTot float64
	for _, p := range points {
		pred := fit.intercept + fit.slope*p.x
		ssRes += p.weight * (p.y - pred) * (p.y - pred)
		ssTot += p.weight * (p.y - mean) * (p.y - mean)
	}
	if ssTot == 0 {
		return 1
	}
	r2 := 1 - ssRes/ssTot
	return clamp01(r2)
}

func meanRecency(points []fitPoint) float64 {
	if len(points) == 0 {
		return 0
	}
	var sum float64
	for _, p := range points {
		sum += p.recency
	}
	return clamp01(sum / float64(len(points)))
}

// priorModel builds the conservative fallback from weight and LTHR only.
func priorModel(category string, basis planstore.Basis, profile planstore.Profile, recent []planstore.Effort, asOf time.Time, pol policy.CapabilityPolicy) Model {
	lthrScale := 1.0
	if pol.LTHRReference > 0 && profile.LTHR > 0 {
		lthrScale = clamp(profile.LTHR/pol.LTHRReference, 0.8, 1.1)
	}

	model := Model{
		Category:  category,
		Basis:     basis,
		FromPrior: true,
		Evidence:  len(recent),
	}
	if basis == planstore.BasisPower {
		model.Asymptote = profile.WeightKG * pol.PriorPowerPerKG * lthrScale
		model.Capacity = profile.WeightKG * pol.PriorCapacityPerKG
	} else {
		model.Asymptote = pol.PriorSpeed * lthrScale
		model.Capacity = pol.PriorSpeedCapacity
	}

	// A single band of real evidence nudges the prior toward the athlete but
	// cannot dominate it.
	if len(recent) > 0 {
		points := toFitPoints(recent, basis, asOf, pol)
		var implied, sw float64
		for _, p := range points {
			var est float64
			if basis == planstore.BasisPower {
				// Solve CP from the prior capacity: P = CP + W'/t.
				est = p.y - model.Capacity*p.x
			} else {
				est = (p.y - model.Capacity) / math.Max(p.x, 1)
			}
			implied += p.weight * est
			sw += p.weight
		}
		if sw > 0 {
			implied /= sw
			if implied > 0 {
				model.Asymptote = 0.7*model.Asymptote + 0.3*implied
			}
		}
		model.Recency = meanRecency(points)
	}

	model.Confidence = confidence(model, len(recent), false, false, pol)
	return model
}

// confidence is monotone in evidence count, band coverage, and recency, and
// always lands in [0,1]. Prior fallbacks sit at or below FallbackConfidence.
func confidence(m Model, count int, short, long bool, pol policy.CapabilityPolicy) float64 {
	if m.FromPrior {
		c := pol.FallbackConfidence * (0.5 + 0.5*clamp01(float64(count)/4))
		if c > pol.FallbackConfidence {
			c = pol.FallbackConfidence
		}
		return clamp01(c)
	}
	countScore := clamp01(float64(count) / 6)
	coverage := 0.0
	if short {
		coverage += 0.5
	}
	if long {
		coverage += 0.5
	}
	c := 0.4*countScore + 0.25*coverage + 0.2*m.Recency + 0.15*m.FitQuality
	return clamp01(c)
}

// clampModel bounds the fitted parameters to physiologically sane ranges so
// a degenerate fit cannot leak a negative or absurd capability downstream.
func clampModel(m Model, profile planstore.Profile, pol policy.CapabilityPolicy) Model {
	if m.Basis == planstore.BasisPower {
		floor := profile.WeightKG * 0.8
		ceil := profile.WeightKG * 7.5
		m.Asymptote = clamp(m.Asymptote, floor, ceil)
		m.Capacity = clamp(m.Capacity, 0, profile.WeightKG*600)
	} else {
		m.Asymptote = clamp(m.Asymptote, 0.8, 12)
		m.Capacity = clamp(m.Capacity, 0, 600)
	}
	return m
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clamp01(v float64) float64 {
	return clamp(v, 0, 1)
}
