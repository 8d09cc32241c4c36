package boundary

import (
	"testing"
	"time"

	"traincast/internal/loadstate"
	"traincast/internal/planstore"
	"traincast/internal/policy"
)

var start = time.Date(2026, 8, 3, 0, 0, 0, 0, time.UTC)

// trajectory builds daily points from weekly stress totals spread evenly.
func trajectory(weekly ...float64) []loadstate.Point {
	var points []loadstate.Point
	for w, total := range weekly {
		for d := 0; d < 7; d++ {
			points = append(points, loadstate.Point{
				Date:   start.AddDate(0, 0, w*7+d),
				Stress: total / 7,
			})
		}
	}
	return points
}

func TestEvaluateSafeWithinCaps(t *testing.T) {
	pol := policy.Default().Boundary
	r := Evaluate(trajectory(300, 315, 330), pol, 90, nil)
	if r.Status != StatusSafe {
		t.Fatalf("status = %s (%v), want safe", r.Status, r.Reasons)
	}
}

func TestEvaluateRampHardBreach(t *testing.T) {
	pol := policy.Default().Boundary
	r := Evaluate(trajectory(300, 400), pol, 90, nil)
	if r.Status != StatusExceeded {
		t.Fatalf("status = %s, want exceeded for a 33%% weekly jump", r.Status)
	}
	if len(r.Reasons) != 1 || r.Reasons[0] != CapWeeklyRamp {
		t.Fatalf("reasons = %v, want [weekly_ramp]", r.Reasons)
	}
}

func TestEvaluateRampCaution(t *testing.T) {
	pol := policy.Default().Boundary
	// +9%: past the 8% caution mark, under the 10% hard cap.
	r := Evaluate(trajectory(300, 327), pol, 90, nil)
	if r.Status != StatusCaution {
		t.Fatalf("status = %s, want caution", r.Status)
	}
	if len(r.Reasons) != 1 || r.Reasons[0] != ReasonNearBoundary {
		t.Fatalf("reasons = %v, want [near_boundary]", r.Reasons)
	}
}

func TestEvaluateHighLoadStreak(t *testing.T) {
	pol := policy.Default().Boundary
	var points []loadstate.Point
	for d := 0; d < 5; d++ {
		points = append(points, loadstate.Point{Date: start.AddDate(0, 0, d), Stress: 100})
	}
	r := Evaluate(points, pol, 90, nil)
	if r.Status != StatusExceeded {
		t.Fatalf("status = %s, want exceeded after %d high days", r.Status, 5)
	}
	if len(r.Reasons) != 1 || r.Reasons[0] != CapHighLoadStreak {
		t.Fatalf("reasons = %v, want [high_load_streak]", r.Reasons)
	}
}

func TestEvaluateAllBreachedCapsListed(t *testing.T) {
	pol := policy.Default().Boundary
	// Week jump plus a deep negative balance plus a high-load streak.
	points := trajectory(300, 450)
	for i := range points {
		points[i].Balance = -40
		if i >= 7 {
			points[i].Stress = 450.0 / 7 * 2 // well above the high-load mark
		}
	}
	r := Evaluate(points, pol, 90, nil)
	if r.Status != StatusExceeded {
		t.Fatalf("status = %s, want exceeded", r.Status)
	}
	want := map[string]bool{CapWeeklyRamp: true, CapBalanceFloor: true, CapHighLoadStreak: true}
	if len(r.Reasons) != len(want) {
		t.Fatalf("reasons = %v, want all three breached caps", r.Reasons)
	}
	for _, reason := range r.Reasons {
		if !want[reason] {
			t.Fatalf("unexpected reason %q", reason)
		}
	}
}

func TestEvaluateDisabledCapSkipped(t *testing.T) {
	pol := policy.Default().Boundary
	disabled := map[string]bool{CapWeeklyRamp: true}
	r := Evaluate(trajectory(300, 450), pol, 90, disabled)
	if r.Status != StatusSafe {
		t.Fatalf("status = %s, want safe with the ramp cap disabled", r.Status)
	}
}

func TestEvaluatePairSafeModeIdenticalViews(t *testing.T) {
	pol := policy.Default().Boundary
	cfg := planstore.Config{Mode: planstore.ModeSafeDefault}
	pair := EvaluatePair(trajectory(300, 400), pol, 90, cfg)
	if pair.Safe.Status != pair.Adjusted.Status {
		t.Fatalf("safe mode views differ: %s vs %s", pair.Safe.Status, pair.Adjusted.Status)
	}
	if pair.Safe.Status != StatusExceeded {
		t.Fatalf("safe view = %s, want exceeded", pair.Safe.Status)
	}
}

func TestEvaluatePairOverridesOnlyAdjustedView(t *testing.T) {
	pol := policy.Default().Boundary
	cfg := planstore.Config{
		Mode: planstore.ModeRiskAccepted,
		Overrides: []planstore.CapOverride{
			{Cap: CapWeeklyRamp, Action: planstore.OverrideDisable},
		},
	}
	pair := EvaluatePair(trajectory(300, 400), pol, 90, cfg)
	if pair.Safe.Status != StatusExceeded {
		t.Fatalf("safe view = %s, must keep the unadjusted verdict", pair.Safe.Status)
	}
	if pair.Adjusted.Status != StatusSafe {
		t.Fatalf("adjusted view = %s, want safe with the ramp cap disabled", pair.Adjusted.Status)
	}
}

func TestApplyOverridesSoften(t *testing.T) {
	pol := policy.Default().Boundary
	adjusted, disabled := ApplyOverrides(pol, []planstore.CapOverride{
		{Cap: CapWeeklyRamp, Action: planstore.OverrideSoften},
	})
	if len(disabled) != 0 {
		t.Fatalf("soften must not disable: %v", disabled)
	}
	if adjusted.RampHardPct <= pol.RampHardPct {
		t.Fatalf("softened ramp cap %v should exceed base %v", adjusted.RampHardPct, pol.RampHardPct)
	}
	if pol.RampHardPct != policy.Default().Boundary.RampHardPct {
		t.Fatal("base policy mutated")
	}
}

func TestAllowsRamp(t *testing.T) {
	pol := policy.Default().Boundary
	if !AllowsRamp(300, 330, pol) {
		t.Fatal("+10% should be admissible at the cap")
	}
	if AllowsRamp(300, 335, pol) {
		t.Fatal("+11.7% should be rejected")
	}
	if !AllowsRamp(0, 100, pol) {
		t.Fatal("cold start has no ramp baseline")
	}
}
