package capability

import (
	"math"
	"testing"
	"time"

	"traincast/internal/planstore"
	"traincast/internal/policy"
)

var asOf = time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)

func powerEfforts(cp, wprime float64, durations []float64, daysAgo int) []planstore.Effort {
	var out []planstore.Effort
	for _, d := range durations {
		out = append(out, planstore.Effort{
			Category:        "bike",
			DurationSeconds: d,
			Output:          cp + wprime/d,
			Date:            asOf.AddDate(0, 0, -daysAgo),
		})
	}
	return out
}

func TestEstimateRecoversCriticalPower(t *testing.T) {
	pol := policy.Default().Capability
	profile := planstore.Profile{WeightKG: 70, LTHR: 170}
	efforts := powerEfforts(250, 20000, []float64{180, 300, 900, 1800}, 7)

	m := Estimate("bike", efforts, profile, asOf, pol)
	if m.FromPrior {
		t.Fatal("four clean points across both bands should fit, not fall back")
	}
	if math.Abs(m.Asymptote-250) > 1 {
		t.Fatalf("CP = %v, want ~250", m.Asymptote)
	}
	if math.Abs(m.Capacity-20000) > 200 {
		t.Fatalf("W' = %v, want ~20000", m.Capacity)
	}
	if m.FitQuality < 0.99 {
		t.Fatalf("noise-free fit quality = %v, want ~1", m.FitQuality)
	}
	if m.Evidence != 4 || m.Outliers != 0 {
		t.Fatalf("evidence/outliers = %d/%d, want 4/0", m.Evidence, m.Outliers)
	}

	// Predictions follow the hyperbola.
	if got, want := m.PredictOutput(600), m.Asymptote+m.Capacity/600; math.Abs(got-want) > 1e-9 {
		t.Fatalf("PredictOutput(600) = %v, want %v", got, want)
	}
}

func TestEstimateRecoversCriticalSpeed(t *testing.T) {
	pol := policy.Default().Capability
	profile := planstore.Profile{WeightKG: 65, LTHR: 165}
	// Mean speed from d = CS*t + D': v = CS + D'/t, with CS=4.0, D'=200.
	var efforts []planstore.Effort
	for _, d := range []float64{200, 280, 800, 1600} {
		efforts = append(efforts, planstore.Effort{
			Category:        "run",
			DurationSeconds: d,
			Output:          4.0 + 200/d,
			Date:            asOf.AddDate(0, 0, -10),
		})
	}

	m := Estimate("run", efforts, profile, asOf, pol)
	if m.FromPrior {
		t.Fatal("expected a real fit")
	}
	if m.Basis != planstore.BasisSpeed {
		t.Fatalf("basis = %v, want speed", m.Basis)
	}
	if math.Abs(m.Asymptote-4.0) > 0.05 {
		t.Fatalf("CS = %v, want ~4.0", m.Asymptote)
	}
	if math.Abs(m.Capacity-200) > 20 {
		t.Fatalf("D' = %v, want ~200", m.Capacity)
	}

	// 5000m at CS=4, D'=200: t = (5000-200)/4 = 1200s.
	if got := m.PredictTime(5000); math.Abs(got-(5000-m.Capacity)/m.Asymptote) > 1e-9 {
		t.Fatalf("PredictTime(5000) = %v", got)
	}
}

func TestEstimateFallsBackToPriorWhenSparse(t *testing.T) {
	pol := policy.Default().Capability
	profile := planstore.Profile{WeightKG: 70, LTHR: 170}

	m := Estimate("bike", nil, profile, asOf, pol)
	if !m.FromPrior {
		t.Fatal("no evidence must use the prior")
	}
	if m.Confidence > pol.FallbackConfidence {
		t.Fatalf("prior confidence = %v, must not exceed %v", m.Confidence, pol.FallbackConfidence)
	}
	if m.Asymptote <= 0 || m.Capacity <= 0 {
		t.Fatalf("prior model degenerate: %+v", m)
	}

	// Single-band evidence still falls back: no long efforts.
	shortOnly := powerEfforts(250, 20000, []float64{120, 200, 280}, 5)
	m2 := Estimate("bike", shortOnly, profile, asOf, pol)
	if !m2.FromPrior {
		t.Fatal("single-band evidence must use the prior")
	}
	if m2.Confidence > pol.FallbackConfidence {
		t.Fatalf("confidence = %v above fallback ceiling", m2.Confidence)
	}
}

func TestEstimateIgnoresStaleAndForeignEfforts(t *testing.T) {
	pol := policy.Default().Capability
	profile := planstore.Profile{WeightKG: 70, LTHR: 170}

	efforts := powerEfforts(250, 20000, []float64{180, 900}, pol.RecencyWindowDays+30)
	efforts = append(efforts, planstore.Effort{
		Category: "run", DurationSeconds: 240, Output: 5, Date: asOf.AddDate(0, 0, -3),
	})

	m := Estimate("bike", efforts, profile, asOf, pol)
	if !m.FromPrior {
		t.Fatal("stale evidence outside the recency window must not feed the fit")
	}
}

func TestOutlierRejectedOnce(t *testing.T) {
	pol := policy.Default().Capability
	profile := planstore.Profile{WeightKG: 70, LTHR: 170}
	efforts := powerEfforts(250, 20000, []float64{150, 240, 300, 800, 1200, 1800}, 7)
	// One wildly wrong point, e.g. a mislabeled sprint.
	efforts = append(efforts, planstore.Effort{
		Category: "bike", DurationSeconds: 600, Output: 900, Date: asOf.AddDate(0, 0, -7),
	})

	m := Estimate("bike", efforts, profile, asOf, pol)
	if m.Outliers != 1 {
		t.Fatalf("outliers = %d, want 1", m.Outliers)
	}
	if math.Abs(m.Asymptote-250) > 5 {
		t.Fatalf("CP after rejection = %v, want ~250", m.Asymptote)
	}
}

func TestConfidenceMonotoneInEvidence(t *testing.T) {
	pol := policy.Default().Capability
	profile := planstore.Profile{WeightKG: 70, LTHR: 170}

	few := Estimate("bike", powerEfforts(250, 20000, []float64{200, 900}, 7), profile, asOf, pol)
	many := Estimate("bike", powerEfforts(250, 20000, []float64{120, 180, 240, 300, 900, 1200, 1800}, 7), profile, asOf, pol)
	if many.Confidence <= few.Confidence {
		t.Fatalf("more evidence should not lower confidence: %v vs %v", many.Confidence, few.Confidence)
	}

	fresh := Estimate("bike", powerEfforts(250, 20000, []float64{200, 900}, 2), profile, asOf, pol)
	stale := Estimate("bike", powerEfforts(250, 20000, []float64{200, 900}, 80), profile, asOf, pol)
	if fresh.Confidence <= stale.Confidence {
		t.Fatalf("fresher evidence should score higher: %v vs %v", fresh.Confidence, stale.Confidence)
	}
}

func TestEstimateDeterministic(t *testing.T) {
	pol := policy.Default().Capability
	profile := planstore.Profile{WeightKG: 70, LTHR: 170}
	efforts := powerEfforts(260, 18000, []float64{150, 280, 900, 1500}, 12)

	a := Estimate("bike", efforts, profile, asOf, pol)
	b := Estimate("bike", efforts, profile, asOf, pol)
	if a != b {
		t.Fatalf("estimates differ: %+v vs %+v", a, b)
	}
}
