// Package scoring maps goal targets to deterministic satisfaction values
// and aggregates them into goal and plan scores with priority-tier weights.
package scoring

import (
	"fmt"
	"math"

	"traincast/internal/capability"
	"traincast/internal/planstore"
	"traincast/internal/policy"
)

// Rationale codes attached to target scores, naming the dominant driver.
const (
	ReasonTargetMet           = "target_met"
	ReasonWithinTolerance     = "within_tolerance"
	ReasonInsufficientMargin  = "insufficient_capability_margin"
	ReasonFatigueUnfavorable  = "fatigue_state_unfavorable"
	ReasonLowEvidence         = "low_evidence_confidence"
)

// ProjectedState is the capability and fatigue picture at a goal's date.
type ProjectedState struct {
	Model   capability.Model
	Balance float64 // chronic - acute at the goal date
}

// TargetScore is one target's evaluation: satisfaction in (0,1], the signed
// distance from satisfied, and rationale codes. Finish-time and split
// targets on speed-basis models also carry the model's predicted time over
// the target distance.
type TargetScore struct {
	TargetID         string   `json:"target_id"`
	Kind             string   `json:"kind"`
	Satisfaction     float64  `json:"satisfaction"`
	UnmetGap         float64  `json:"unmet_gap"`
	PredictedSeconds float64  `json:"predicted_seconds,omitempty"`
	Rationale        []string `json:"rationale"`
}

// ScoreTarget evaluates a single target against the projected state. The
// switch over kinds is exhaustive; an unknown kind is a programming error
// surfaced to the caller, never silently scored.
func ScoreTarget(goal planstore.Goal, target planstore.GoalTarget, state ProjectedState, pol policy.SatisfactionPolicy) (TargetScore, error) {
	var gap float64
	switch target.Kind {
	case planstore.KindFinishTime:
		gap = outputShortfall(state.Model, target.DistanceMeters, target.Value)
	case planstore.KindSplit:
		gap = outputShortfall(state.Model, target.DistanceMeters, target.Value)
	case planstore.KindPace:
		gap = relativeShortfall(target.Value, state.Model.Asymptote)
	case planstore.KindPower:
		gap = relativeShortfall(target.Value, state.Model.Asymptote)
	case planstore.KindCompletionProbability:
		likelihood := CompletionLikelihood(goal, state, pol)
		gap = relativeShortfall(target.Value, likelihood)
	default:
		return TargetScore{}, fmt.Errorf("unknown target kind %q", target.Kind)
	}

	tol := pol.DefaultTolerance
	if target.Tolerance != nil {
		tol = *target.Tolerance
	}
	if tol <= 0 {
		tol = pol.DefaultTolerance
	}

	sat := Curve(gap, tol, pol)
	score := TargetScore{
		TargetID:     target.ID,
		Kind:         string(target.Kind),
		Satisfaction: sat,
		UnmetGap:     gap,
		Rationale:    rationale(target.Kind, gap, tol, state, pol),
	}
	if target.Kind == planstore.KindFinishTime || target.Kind == planstore.KindSplit {
		if predicted := state.Model.PredictTime(target.DistanceMeters); !math.IsInf(predicted, 1) {
			score.PredictedSeconds = predicted
		}
	}
	return score, nil
}

// Curve is the shared satisfaction shape: exactly 1 at or beyond the target
// (gap <= 0), a smooth quadratic decay to EdgeValue across the tolerance
// band, and a continuous exponential tail beyond it that asymptotes toward
// zero without reaching it for finite gaps.
func Curve(gap, tol float64, pol policy.SatisfactionPolicy) float64 {
	if math.IsNaN(gap) {
		return 0
	}
	if gap <= 0 {
		return 1
	}
	if gap <= tol {
		x := gap / tol
		return 1 - (1-pol.EdgeValue)*x*x
	}
	return pol.EdgeValue * math.Exp(-pol.BeyondDecay*(gap-tol)/tol)
}

// CompletionLikelihood derives a completion probability from the capability
// margin against the goal's primary demand, discounted by fatigue state.
func CompletionLikelihood(goal planstore.Goal, state ProjectedState, pol policy.SatisfactionPolicy) float64 {
	margin := primaryMargin(goal, state.Model)
	base := 1 / (1 + math.Exp(-margin/pol.ProbabilitySigma))
	fatigue := fatigueFactor(state.Balance, pol)
	return clamp01(base * fatigue)
}

// primaryMargin is the relative capability surplus against the goal's first
// concrete (non-probability) target, zero when the goal has none.
func primaryMargin(goal planstore.Goal, model capability.Model) float64 {
	for _, t := range goal.Targets {
		switch t.Kind {
		case planstore.KindFinishTime, planstore.KindSplit:
			required := requiredOutput(t.DistanceMeters, t.Value)
			if required > 0 {
				return (model.PredictOutput(t.Value) - required) / required
			}
		case planstore.KindPace, planstore.KindPower:
			if t.Value > 0 {
				return (model.Asymptote - t.Value) / t.Value
			}
		case planstore.KindCompletionProbability:
			continue
		}
	}
	return 0
}

func fatigueFactor(balance float64, pol policy.SatisfactionPolicy) float64 {
	if balance >= 0 {
		return 1
	}
	f := 1 + balance/pol.FatigueBalanceScale
	if f < 0.6 {
		f = 0.6
	}
	return f
}

// outputShortfall compares the capability model's sustainable output at the
// target duration against the mean output the target time demands over the
// distance. Positive means the target is currently out of reach.
func outputShortfall(model capability.Model, distanceMeters, targetSeconds float64) float64 {
	required := requiredOutput(distanceMeters, targetSeconds)
	if required <= 0 {
		return 0
	}
	projected := model.PredictOutput(targetSeconds)
	return relativeShortfall(required, projected)
}

func requiredOutput(distanceMeters, targetSeconds float64) float64 {
	if targetSeconds <= 0 {
		return 0
	}
	return distanceMeters / targetSeconds
}

// relativeShortfall is the signed gap (required - projected) / required:
// positive when unmet, negative when capability exceeds the requirement.
func relativeShortfall(required, projected float64) float64 {
	if required == 0 {
		return 0
	}
	gap := (required - projected) / math.Abs(required)
	if math.IsNaN(gap) || math.IsInf(gap, 0) {
		return 1
	}
	return gap
}

func rationale(kind planstore.TargetKind, gap, tol float64, state ProjectedState, pol policy.SatisfactionPolicy) []string {
	var codes []string
	switch {
	case gap <= 0:
		codes = append(codes, ReasonTargetMet)
	case gap <= tol:
		codes = append(codes, ReasonWithinTolerance)
	default:
		codes = append(codes, ReasonInsufficientMargin)
	}
	if kind == planstore.KindCompletionProbability && fatigueFactor(state.Balance, pol) < 1 {
		codes = append(codes, ReasonFatigueUnfavorable)
	}
	if state.Model.Confidence < pol.LowConfidence {
		codes = append(codes, ReasonLowEvidence)
	}
	return codes
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
