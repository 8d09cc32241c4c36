package scoring

import (
	"math"
	"testing"
	"time"

	"traincast/internal/capability"
	"traincast/internal/planstore"
	"traincast/internal/policy"
)

func fitModel(asymptote, capacity float64) capability.Model {
	return capability.Model{
		Category:   "bike",
		Basis:      planstore.BasisPower,
		Asymptote:  asymptote,
		Capacity:   capacity,
		Confidence: 0.8,
	}
}

func TestCurveShape(t *testing.T) {
	pol := policy.Default().Satisfaction
	tol := 0.05

	if got := Curve(-0.2, tol, pol); got != 1 {
		t.Fatalf("exceeded target should score 1, got %v", got)
	}
	if got := Curve(0, tol, pol); got != 1 {
		t.Fatalf("exact target should score 1, got %v", got)
	}
	if got := Curve(tol, tol, pol); math.Abs(got-pol.EdgeValue) > 1e-9 {
		t.Fatalf("band edge = %v, want %v", got, pol.EdgeValue)
	}

	// Strictly decreasing and never zero past the edge.
	prev := 1.0
	for gap := 0.01; gap < 0.5; gap += 0.01 {
		v := Curve(gap, tol, pol)
		if v >= prev {
			t.Fatalf("curve not decreasing at gap %v: %v >= %v", gap, v, prev)
		}
		if v <= 0 {
			t.Fatalf("curve hit zero at finite gap %v", gap)
		}
		prev = v
	}

	// Continuous across the band edge.
	inside := Curve(tol-1e-9, tol, pol)
	outside := Curve(tol+1e-9, tol, pol)
	if math.Abs(inside-outside) > 1e-6 {
		t.Fatalf("discontinuity at band edge: %v vs %v", inside, outside)
	}
}

func TestScoreTargetMet(t *testing.T) {
	pol := policy.Default().Satisfaction
	goal := planstore.Goal{ID: "g", Category: "bike"}
	target := planstore.GoalTarget{ID: "t", Kind: planstore.KindPower, Value: 200}
	state := ProjectedState{Model: fitModel(260, 20000)}

	score, err := ScoreTarget(goal, target, state, pol)
	if err != nil {
		t.Fatal(err)
	}
	if score.Satisfaction != 1 {
		t.Fatalf("satisfaction = %v, want 1", score.Satisfaction)
	}
	if score.UnmetGap > 0 {
		t.Fatalf("unmet gap = %v, want <= 0", score.UnmetGap)
	}
	if len(score.Rationale) == 0 || score.Rationale[0] != ReasonTargetMet {
		t.Fatalf("rationale = %v, want target_met first", score.Rationale)
	}
}

func TestScoreTargetHarderScoresLower(t *testing.T) {
	pol := policy.Default().Satisfaction
	goal := planstore.Goal{ID: "g", Category: "bike"}
	state := ProjectedState{Model: fitModel(250, 20000)}

	easy := planstore.GoalTarget{ID: "a", Kind: planstore.KindPower, Value: 255}
	hard := planstore.GoalTarget{ID: "b", Kind: planstore.KindPower, Value: 320}

	se, err := ScoreTarget(goal, easy, state, pol)
	if err != nil {
		t.Fatal(err)
	}
	sh, err := ScoreTarget(goal, hard, state, pol)
	if err != nil {
		t.Fatal(err)
	}
	if sh.Satisfaction >= se.Satisfaction {
		t.Fatalf("harder target must score lower: %v vs %v", sh.Satisfaction, se.Satisfaction)
	}
	if sh.Satisfaction <= 0 {
		t.Fatal("satisfaction must stay positive")
	}
}

func TestScoreTargetPredictedSeconds(t *testing.T) {
	pol := policy.Default().Satisfaction
	goal := planstore.Goal{ID: "g", Category: "run"}
	target := planstore.GoalTarget{
		ID: "t", Kind: planstore.KindFinishTime, Value: 1250, DistanceMeters: 5000,
	}
	state := ProjectedState{Model: capability.Model{
		Category:   "run",
		Basis:      planstore.BasisSpeed,
		Asymptote:  4,
		Capacity:   200,
		Confidence: 0.8,
	}}

	score, err := ScoreTarget(goal, target, state, pol)
	if err != nil {
		t.Fatal(err)
	}
	// (5000 - 200) / 4 from the critical-speed model.
	if math.Abs(score.PredictedSeconds-1200) > 1e-9 {
		t.Fatalf("predicted seconds = %v, want 1200", score.PredictedSeconds)
	}

	// A power-basis model has no closed-form time; the field stays empty.
	score, err = ScoreTarget(goal, target, ProjectedState{Model: fitModel(250, 20000)}, pol)
	if err != nil {
		t.Fatal(err)
	}
	if score.PredictedSeconds != 0 {
		t.Fatalf("power basis should not predict a time, got %v", score.PredictedSeconds)
	}
}

func TestScoreTargetUnknownKind(t *testing.T) {
	pol := policy.Default().Satisfaction
	goal := planstore.Goal{ID: "g"}
	target := planstore.GoalTarget{ID: "t", Kind: planstore.TargetKind("vertical_meters"), Value: 1}
	if _, err := ScoreTarget(goal, target, ProjectedState{Model: fitModel(250, 20000)}, pol); err == nil {
		t.Fatal("unknown kind must error, not score")
	}
}

func TestScoreTargetLowConfidenceRationale(t *testing.T) {
	pol := policy.Default().Satisfaction
	goal := planstore.Goal{ID: "g"}
	target := planstore.GoalTarget{ID: "t", Kind: planstore.KindPower, Value: 240}
	model := fitModel(250, 20000)
	model.Confidence = 0.1

	score, err := ScoreTarget(goal, target, ProjectedState{Model: model}, pol)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, r := range score.Rationale {
		if r == ReasonLowEvidence {
			found = true
		}
	}
	if !found {
		t.Fatalf("rationale = %v, want low_evidence_confidence present", score.Rationale)
	}
}

func TestCompletionLikelihoodFatigueDiscount(t *testing.T) {
	pol := policy.Default().Satisfaction
	goal := planstore.Goal{ID: "g", Targets: []planstore.GoalTarget{
		{ID: "p", Kind: planstore.KindPower, Value: 240},
	}}
	model := fitModel(260, 20000)

	fresh := CompletionLikelihood(goal, ProjectedState{Model: model, Balance: 5}, pol)
	tired := CompletionLikelihood(goal, ProjectedState{Model: model, Balance: -25}, pol)
	if tired >= fresh {
		t.Fatalf("fatigue should discount likelihood: %v vs %v", tired, fresh)
	}
	if fresh <= 0 || fresh > 1 || tired <= 0 {
		t.Fatalf("likelihoods out of range: %v, %v", fresh, tired)
	}
}

func TestAggregateGoalWeights(t *testing.T) {
	w := 0.6
	goal := planstore.Goal{ID: "g", Tier: planstore.TierA, Targets: []planstore.GoalTarget{
		{ID: "a", Kind: planstore.KindPower, Weight: &w},
		{ID: "b", Kind: planstore.KindPace},
	}}
	targets := []TargetScore{
		{TargetID: "a", Satisfaction: 1},
		{TargetID: "b", Satisfaction: 0.5},
	}
	got := AggregateGoal(goal, targets)
	// Declared 0.6, remainder 0.4 to the unweighted target.
	want := 0.6*1 + 0.4*0.5
	if math.Abs(got.Score-want) > 1e-9 {
		t.Fatalf("score = %v, want %v", got.Score, want)
	}
}

func TestAggregateGoalEqualWhenUndeclared(t *testing.T) {
	goal := planstore.Goal{ID: "g", Targets: []planstore.GoalTarget{
		{ID: "a", Kind: planstore.KindPower},
		{ID: "b", Kind: planstore.KindPace},
	}}
	targets := []TargetScore{
		{TargetID: "a", Satisfaction: 1},
		{TargetID: "b", Satisfaction: 0},
	}
	if got := AggregateGoal(goal, targets).Score; math.Abs(got-0.5) > 1e-9 {
		t.Fatalf("score = %v, want 0.5", got)
	}
}

func TestAggregatePlanTierRenormalization(t *testing.T) {
	tiers := policy.Default().Tier
	goals := []GoalScore{
		{GoalID: "a1", Tier: "A", Score: 0.8},
		{GoalID: "c1", Tier: "C", Score: 0.2},
	}
	got := AggregatePlan(goals, tiers)
	// B absent: weights renormalize over A and C.
	want := (tiers.A*0.8 + tiers.C*0.2) / (tiers.A + tiers.C)
	if math.Abs(got.Score-want) > 1e-9 {
		t.Fatalf("plan score = %v, want %v", got.Score, want)
	}
	if got.Goals[0].GoalID != "a1" || got.Goals[1].GoalID != "c1" {
		t.Fatal("goal order must be preserved")
	}
}

func TestDetectConflicts(t *testing.T) {
	date := func(s string) time.Time {
		d, _ := time.Parse(planstore.DateFormat, s)
		return d
	}
	goals := []planstore.Goal{
		{ID: "a", Tier: planstore.TierA, TargetDate: date("2026-10-01")},
		{ID: "b", Tier: planstore.TierB, TargetDate: date("2026-10-15")},
	}
	demands := []LoadDemand{{GoalID: "a", Weekly: 60}, {GoalID: "b", Weekly: 50}}

	conflicts := DetectConflicts(goals, demands, 80, 0.05)
	if len(conflicts) != 1 {
		t.Fatalf("got %d conflicts, want 1", len(conflicts))
	}
	c := conflicts[0]
	if c.GoalA != "a" || c.GoalB != "b" {
		t.Fatalf("conflict pair = %s/%s", c.GoalA, c.GoalB)
	}
	if c.Reason != ConflictReasonPriority {
		t.Fatalf("reason = %q, want priority", c.Reason)
	}
	if c.DeltaToB <= 0 || c.DeltaToA <= 0 {
		t.Fatalf("deltas = %v/%v, want positive", c.DeltaToA, c.DeltaToB)
	}

	// Plenty of budget: no conflict recorded.
	if got := DetectConflicts(goals, demands, 200, 0.05); len(got) != 0 {
		t.Fatalf("expected no conflicts under a loose budget, got %d", len(got))
	}
}

func TestDetectConflictsMaterialityFloor(t *testing.T) {
	date := func(s string) time.Time {
		d, _ := time.Parse(planstore.DateFormat, s)
		return d
	}
	goals := []planstore.Goal{
		{ID: "a", Tier: planstore.TierA, TargetDate: date("2026-10-01")},
		{ID: "b", Tier: planstore.TierA, TargetDate: date("2026-10-01")},
	}
	demands := []LoadDemand{{GoalID: "a", Weekly: 50}, {GoalID: "b", Weekly: 50.4}}
	// Shortfall 0.4 against demands of ~50: deltas below 5% materiality.
	if got := DetectConflicts(goals, demands, 100, 0.05); len(got) != 0 {
		t.Fatalf("immaterial deltas must not be recorded, got %d", len(got))
	}
}
