// Package feasibility computes the Goal Difficulty Index: a fixed weighted
// blend of performance gap, load gap, and timeline pressure, plus an
// additive data-sparsity penalty, mapped onto contiguous feasibility bands.
package feasibility

import (
	"math"
	"time"

	"traincast/internal/capability"
	"traincast/internal/loadstate"
	"traincast/internal/planstore"
	"traincast/internal/policy"
)

// Band is the feasibility classification for a goal or plan.
type Band string

const (
	BandFeasible         Band = "feasible"
	BandStretch          Band = "stretch"
	BandAggressive       Band = "aggressive"
	BandNearlyImpossible Band = "nearly_impossible"
	BandInfeasible       Band = "infeasible"
)

// Assessment is one goal's difficulty breakdown.
type Assessment struct {
	GoalID           string  `json:"goal_id"`
	Index            float64 `json:"index"`
	Band             Band    `json:"band"`
	PerfGap          float64 `json:"perf_gap"`
	LoadGap          float64 `json:"load_gap"`
	TimelinePressure float64 `json:"timeline_pressure"`
	SparsityPenalty  float64 `json:"sparsity_penalty"`
	// RequiredWeeklyLoad is the extra sustained weekly stress the goal's
	// demanded chronic level implies over today's, consumed by the conflict
	// scan. Goals already within reach demand nothing.
	RequiredWeeklyLoad float64 `json:"required_weekly_load"`
}

// PlanAssessment is the plan-level index: the priority-weighted mean across
// goals, floored by the worst top-tier goal so a single unsafe A goal cannot
// be diluted by easy lower-tier goals.
type PlanAssessment struct {
	Index float64 `json:"index"`
	Band  Band    `json:"band"`
}

// AssessGoal computes the Goal Difficulty Index for one goal at asOf.
func AssessGoal(goal planstore.Goal, model capability.Model, state loadstate.State, asOf time.Time, boundaryPol policy.BoundaryPolicy, pol policy.FeasibilityPolicy) Assessment {
	perfGap := performanceGap(goal, model, pol)
	loadGap, requiredWeekly := loadGapScore(goal, state, asOf, boundaryPol, perfGap)
	timeline := timelinePressure(goal, asOf, perfGap)

	// Sparsity is additive: sparse data can only make the goal look harder,
	// never easier.
	sparsity := pol.SparsityMax * (1 - model.Confidence)

	index := pol.PerfWeight*perfGap + pol.LoadWeight*loadGap + pol.TimelineWeight*timeline + sparsity
	if math.IsNaN(index) || math.IsInf(index, 0) {
		index = pol.NearlyImpossibleMax
	}

	return Assessment{
		GoalID:             goal.ID,
		Index:              index,
		Band:               BandFor(index, pol),
		PerfGap:            perfGap,
		LoadGap:            loadGap,
		TimelinePressure:   timeline,
		SparsityPenalty:    sparsity,
		RequiredWeeklyLoad: requiredWeekly,
	}
}

// BandFor maps an index onto its band. Bounds are contiguous and
// non-overlapping; each upper bound is exclusive.
func BandFor(index float64, pol policy.FeasibilityPolicy) Band {
	switch {
	case index < pol.FeasibleMax:
		return BandFeasible
	case index < pol.StretchMax:
		return BandStretch
	case index < pol.AggressiveMax:
		return BandAggressive
	case index < pol.NearlyImpossibleMax:
		return BandNearlyImpossible
	default:
		return BandInfeasible
	}
}

// Severity orders bands from easiest to hardest.
func Severity(b Band) int {
	switch b {
	case BandFeasible:
		return 0
	case BandStretch:
		return 1
	case BandAggressive:
		return 2
	case BandNearlyImpossible:
		return 3
	default:
		return 4
	}
}

// AssessPlan combines goal assessments into the plan-level index, weighted
// by tier and floored by the worst tier-A goal.
func AssessPlan(goals []planstore.Goal, assessments []Assessment, tiers policy.TierWeights, pol policy.FeasibilityPolicy) PlanAssessment {
	byID := make(map[string]Assessment, len(assessments))
	for _, a := range assessments {
		byID[a.GoalID] = a
	}

	var weightSum, indexSum float64
	worstTopTier := 0.0
	hasTopTier := false
	for _, g := range goals {
		a, ok := byID[g.ID]
		if !ok {
			continue
		}
		w := tierWeight(g.Tier, tiers)
		weightSum += w
		indexSum += w * a.Index
		if g.Tier == planstore.TierA {
			hasTopTier = true
			if a.Index > worstTopTier {
				worstTopTier = a.Index
			}
		}
	}

	index := 0.0
	if weightSum > 0 {
		index = indexSum / weightSum
	}
	if hasTopTier && worstTopTier > index {
		index = worstTopTier
	}

	return PlanAssessment{Index: index, Band: BandFor(index, pol)}
}

func tierWeight(t planstore.Tier, tiers policy.TierWeights) float64 {
	switch t {
	case planstore.TierA:
		return tiers.A
	case planstore.TierB:
		return tiers.B
	default:
		return tiers.C
	}
}

// performanceGap is the relative shortfall between the goal's hardest
// concrete demand and current fitted capability, measured against the
// plausible training ceiling and clamped to [0,1]: a shortfall at or past
// PerfGapScale saturates the component.
func performanceGap(goal planstore.Goal, model capability.Model, pol policy.FeasibilityPolicy) float64 {
	worst := 0.0
	for _, t := range goal.Targets {
		var required, projected float64
		switch t.Kind {
		case planstore.KindFinishTime, planstore.KindSplit:
			if t.Value <= 0 {
				continue
			}
			required = t.DistanceMeters / t.Value
			projected = model.PredictOutput(t.Value)
		case planstore.KindPace, planstore.KindPower:
			required = t.Value
			projected = model.Asymptote
		case planstore.KindCompletionProbability:
			continue
		default:
			continue
		}
		if required <= 0 {
			continue
		}
		gap := (required - projected) / required
		if gap > worst {
			worst = gap
		}
	}
	scale := pol.PerfGapScale
	if scale <= 0 {
		scale = 1
	}
	return clamp01(worst / scale)
}

// loadGapScore compares the chronic load the goal demands against what can
// be safely built in the remaining weeks at the ramp cap. Returns the
// normalized gap and the extra weekly stress the demanded chronic level
// implies, in the same units the conflict scan budgets in (seven daily
// stress points per chronic point).
func loadGapScore(goal planstore.Goal, state loadstate.State, asOf time.Time, boundaryPol policy.BoundaryPolicy, perfGap float64) (float64, float64) {
	weeks := weeksUntil(goal.TargetDate, asOf)
	if weeks <= 0 {
		if perfGap > 0 {
			return 1, 0
		}
		return 0, 0
	}

	// Demand scales with how far capability has to move.
	current := state.Chronic
	requiredChronic := current * (1 + perfGap)
	if requiredChronic < 10 {
		requiredChronic = 10 * (1 + perfGap)
	}

	achievable := current
	if achievable < 10 {
		achievable = 10
	}
	for i := 0; i < weeks; i++ {
		achievable *= 1 + boundaryPol.RampHardPct
	}

	requiredWeekly := 7 * (requiredChronic - current)
	if requiredWeekly < 0 {
		requiredWeekly = 0
	}

	if requiredChronic <= achievable {
		return 0, requiredWeekly
	}
	return clamp01((requiredChronic - achievable) / requiredChronic), requiredWeekly
}

// timelinePressure compares available preparation time with the minimum
// safe preparation the demand implies: roughly one week per two points of
// performance gap, floored at two weeks for any non-trivial goal.
func timelinePressure(goal planstore.Goal, asOf time.Time, perfGap float64) float64 {
	weeks := weeksUntil(goal.TargetDate, asOf)
	if weeks <= 0 {
		return 1
	}
	minWeeks := 2 + perfGap*50
	if perfGap == 0 {
		minWeeks = 1
	}
	pressure := 1 - float64(weeks)/minWeeks
	return clamp01(pressure)
}

func weeksUntil(target, asOf time.Time) int {
	days := int(target.Sub(asOf).Hours() / 24)
	if days <= 0 {
		return 0
	}
	return days / 7
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
