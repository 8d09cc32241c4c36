package scoring

import (
	"traincast/internal/planstore"
	"traincast/internal/policy"
)

// GoalScore is the weighted aggregate of a goal's target scores.
type GoalScore struct {
	GoalID  string        `json:"goal_id"`
	Tier    string        `json:"tier"`
	Score   float64       `json:"score"`
	Targets []TargetScore `json:"targets"`
}

// PlanScore combines per-goal scores with fixed tier weights, renormalized
// over the tiers actually present.
type PlanScore struct {
	Score     float64     `json:"score"`
	Goals     []GoalScore `json:"goals"`
	Conflicts []Conflict  `json:"conflicts,omitempty"`
}

// AggregateGoal blends a goal's target scores. Declared target weights are
// normalized to sum to 1 within the goal; targets without a declared weight
// share the unclaimed remainder equally.
func AggregateGoal(goal planstore.Goal, targets []TargetScore) GoalScore {
	weights := targetWeights(goal.Targets)
	var score float64
	for i, t := range targets {
		if i < len(weights) {
			score += weights[i] * t.Satisfaction
		}
	}
	return GoalScore{
		GoalID:  goal.ID,
		Tier:    string(goal.Tier),
		Score:   score,
		Targets: targets,
	}
}

// targetWeights resolves per-target weights in canonical target order.
func targetWeights(targets []planstore.GoalTarget) []float64 {
	weights := make([]float64, len(targets))
	if len(targets) == 0 {
		return weights
	}

	var declared float64
	unweighted := 0
	for _, t := range targets {
		if t.Weight != nil {
			declared += *t.Weight
		} else {
			unweighted++
		}
	}

	if unweighted == 0 {
		// All declared: normalize to sum 1.
		if declared <= 0 {
			for i := range weights {
				weights[i] = 1 / float64(len(targets))
			}
			return weights
		}
		for i, t := range targets {
			weights[i] = *t.Weight / declared
		}
		return weights
	}

	scale := 1.0
	remainder := 1 - declared
	if remainder < 0 {
		// Declared weights overflow: scale them down and leave nothing for
		// the unweighted targets.
		scale = 1 / declared
		remainder = 0
	}
	share := remainder / float64(unweighted)
	for i, t := range targets {
		if t.Weight != nil {
			weights[i] = *t.Weight * scale
		} else {
			weights[i] = share
		}
	}
	return weights
}

// AggregatePlan computes the tier-weighted plan score. Empty tiers
// contribute nothing and their weight is dropped from the normalization.
func AggregatePlan(goals []GoalScore, tiers policy.TierWeights) PlanScore {
	byTier := map[string][]float64{}
	for _, g := range goals {
		byTier[g.Tier] = append(byTier[g.Tier], g.Score)
	}

	type tierTerm struct {
		weight float64
		mean   float64
	}
	var terms []tierTerm
	for _, tier := range []struct {
		name   string
		weight float64
	}{
		{string(planstore.TierA), tiers.A},
		{string(planstore.TierB), tiers.B},
		{string(planstore.TierC), tiers.C},
	} {
		scores := byTier[tier.name]
		if len(scores) == 0 {
			continue
		}
		var sum float64
		for _, s := range scores {
			sum += s
		}
		terms = append(terms, tierTerm{weight: tier.weight, mean: sum / float64(len(scores))})
	}

	var weightSum, score float64
	for _, t := range terms {
		weightSum += t.weight
		score += t.weight * t.mean
	}
	if weightSum > 0 {
		score /= weightSum
	}

	// Goals arrive in canonical plan order and leave in the same order.
	kept := make([]GoalScore, len(goals))
	copy(kept, goals)

	return PlanScore{Score: score, Goals: kept}
}
