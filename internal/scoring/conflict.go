package scoring

import (
	"math"
	"sort"

	"traincast/internal/planstore"
)

// Precedence reasons recorded on conflict entries.
const (
	ConflictReasonPriority   = "priority"
	ConflictReasonEventDate  = "event_date"
	ConflictReasonHardSafety = "hard_safety_constraint"
)

// Conflict records one cross-goal load contention: two goal identifiers,
// the estimated score delta each way, and the deterministic precedence
// reason. Goals stay simple immutable values; influence lives here.
type Conflict struct {
	GoalA    string  `json:"goal_a"`
	GoalB    string  `json:"goal_b"`
	DeltaToB float64 `json:"delta_to_b"` // estimated score loss to B when A takes precedence
	DeltaToA float64 `json:"delta_to_a"` // and the reverse
	Reason   string  `json:"reason"`
}

// LoadDemand is the extra weekly stress a goal's preparation demands,
// estimated by the feasibility pass.
type LoadDemand struct {
	GoalID string
	Weekly float64
}

// DetectConflicts scans goal pairs whose preparation windows overlap and
// whose combined weekly load demand exceeds the safe budget. Deltas below
// the materiality threshold are not recorded. Pairs are scanned in
// canonical goal order, so the entry list is deterministic.
func DetectConflicts(goals []planstore.Goal, demands []LoadDemand, weeklyBudget, materiality float64) []Conflict {
	byID := make(map[string]float64, len(demands))
	for _, d := range demands {
		byID[d.GoalID] = d.Weekly
	}

	var conflicts []Conflict
	for i := 0; i < len(goals); i++ {
		for j := i + 1; j < len(goals); j++ {
			a, b := goals[i], goals[j]
			da, db := byID[a.ID], byID[b.ID]
			if da <= 0 || db <= 0 {
				continue
			}
			if !prepWindowsOverlap(a, b) {
				continue
			}
			shortfall := da + db - weeklyBudget
			if shortfall <= 0 {
				continue
			}

			deltaToB := clampDelta(shortfall / db)
			deltaToA := clampDelta(shortfall / da)
			if deltaToB < materiality && deltaToA < materiality {
				continue
			}

			conflicts = append(conflicts, Conflict{
				GoalA:    a.ID,
				GoalB:    b.ID,
				DeltaToB: deltaToB,
				DeltaToA: deltaToA,
				Reason:   precedenceReason(a, b, weeklyBudget, da, db),
			})
		}
	}

	sort.SliceStable(conflicts, func(i, j int) bool {
		if conflicts[i].GoalA != conflicts[j].GoalA {
			return conflicts[i].GoalA < conflicts[j].GoalA
		}
		return conflicts[i].GoalB < conflicts[j].GoalB
	})
	return conflicts
}

// prepWindowsOverlap treats a goal's preparation window as the eight weeks
// before its target date.
func prepWindowsOverlap(a, b planstore.Goal) bool {
	const prepDays = 56
	aStart := a.TargetDate.AddDate(0, 0, -prepDays)
	bStart := b.TargetDate.AddDate(0, 0, -prepDays)
	return !aStart.After(b.TargetDate) && !bStart.After(a.TargetDate)
}

func precedenceReason(a, b planstore.Goal, weeklyBudget, da, db float64) string {
	// A single goal that alone exceeds the safe budget is a safety problem
	// before it is a priority problem.
	if da > weeklyBudget || db > weeklyBudget {
		return ConflictReasonHardSafety
	}
	if a.Tier != b.Tier {
		return ConflictReasonPriority
	}
	if !a.TargetDate.Equal(b.TargetDate) {
		return ConflictReasonEventDate
	}
	return ConflictReasonHardSafety
}

func clampDelta(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
