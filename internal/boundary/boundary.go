// Package boundary classifies load trajectories against the safety caps:
// weekly ramp rate, consecutive high-load days, and the fatigue-balance
// floor. A hard breach marks the trajectory exceeded and lists every
// contributing reason; approaching a cap without crossing it yields caution.
package boundary

import (
	"fmt"
	"sort"
	"time"

	"traincast/internal/loadstate"
	"traincast/internal/planstore"
	"traincast/internal/policy"
)

// Status is the trajectory-level safety classification.
type Status string

const (
	StatusSafe     Status = "safe"
	StatusCaution  Status = "caution"
	StatusExceeded Status = "exceeded"
)

// Cap names, used both in reasons and in config cap overrides.
const (
	CapWeeklyRamp     = "weekly_ramp"
	CapHighLoadStreak = "high_load_streak"
	CapBalanceFloor   = "balance_floor"
)

// ReasonNearBoundary marks a caution-only finding.
const ReasonNearBoundary = "near_boundary"

// Finding is one cap evaluation that fired, with the day it fired on.
type Finding struct {
	Cap    string    `json:"cap"`
	Status Status    `json:"status"`
	Date   time.Time `json:"date"`
	Detail string    `json:"detail"`
}

// Report is the classification of one trajectory. Reasons carries every
// breached cap name when exceeded, or near_boundary when caution; it is
// never a single arbitrary pick.
type Report struct {
	Status   Status    `json:"status"`
	Reasons  []string  `json:"reasons,omitempty"`
	Findings []Finding `json:"findings,omitempty"`
}

// Pair is the dual view: the safe-default classification alongside the
// classification under the plan's accepted cap overrides. Both are always
// computed so the output can show what the overrides changed.
type Pair struct {
	Safe     Report `json:"safe"`
	Adjusted Report `json:"adjusted"`
}

// Evaluate classifies a daily trajectory against the caps. Disabled caps
// (by name) are skipped entirely.
func Evaluate(points []loadstate.Point, pol policy.BoundaryPolicy, highLoad float64, disabled map[string]bool) Report {
	var findings []Finding
	if !disabled[CapWeeklyRamp] {
		findings = append(findings, rampFindings(points, pol)...)
	}
	if !disabled[CapHighLoadStreak] {
		findings = append(findings, streakFindings(points, pol, highLoad)...)
	}
	if !disabled[CapBalanceFloor] {
		findings = append(findings, balanceFindings(points, pol)...)
	}
	return summarize(findings)
}

// EvaluatePair computes the safe-default report and the report under the
// plan's cap overrides. Overrides only take effect in risk-accepted mode;
// in safe mode both views are identical.
func EvaluatePair(points []loadstate.Point, pol policy.BoundaryPolicy, highLoad float64, cfg planstore.Config) Pair {
	safe := Evaluate(points, pol, highLoad, nil)
	if cfg.Mode != planstore.ModeRiskAccepted || len(cfg.Overrides) == 0 {
		return Pair{Safe: safe, Adjusted: safe}
	}
	adjusted, disabled := ApplyOverrides(pol, cfg.Overrides)
	return Pair{Safe: safe, Adjusted: Evaluate(points, adjusted, highLoad, disabled)}
}

// ApplyOverrides softens or disables caps per the accepted overrides.
// Softening widens hard thresholds by half again; disabling removes the cap
// from evaluation. The base policy is not mutated.
func ApplyOverrides(pol policy.BoundaryPolicy, overrides []planstore.CapOverride) (policy.BoundaryPolicy, map[string]bool) {
	out := pol
	disabled := make(map[string]bool)
	for _, o := range overrides {
		if o.Action == planstore.OverrideDisable {
			disabled[o.Cap] = true
			continue
		}
		switch o.Cap {
		case CapWeeklyRamp:
			out.RampHardPct *= 1.5
		case CapHighLoadStreak:
			out.MaxConsecutiveHighDays += 2
		case CapBalanceFloor:
			out.BalanceHardFloor *= 1.5
		}
	}
	return out, disabled
}

// AllowsRamp is the solver's constraint predicate: whether a candidate
// weekly load respects the hard ramp cap relative to the previous week.
func AllowsRamp(prevWeekly, candidateWeekly float64, pol policy.BoundaryPolicy) bool {
	if prevWeekly <= 0 {
		return true
	}
	return candidateWeekly <= prevWeekly*(1+pol.RampHardPct)
}

func summarize(findings []Finding) Report {
	if len(findings) == 0 {
		return Report{Status: StatusSafe}
	}
	sort.SliceStable(findings, func(i, j int) bool {
		if !findings[i].Date.Equal(findings[j].Date) {
			return findings[i].Date.Before(findings[j].Date)
		}
		return findings[i].Cap < findings[j].Cap
	})

	hard := map[string]bool{}
	caution := false
	for _, f := range findings {
		if f.Status == StatusExceeded {
			hard[f.Cap] = true
		} else {
			caution = true
		}
	}

	if len(hard) > 0 {
		reasons := make([]string, 0, len(hard))
		for name := range hard {
			reasons = append(reasons, name)
		}
		sort.Strings(reasons)
		return Report{Status: StatusExceeded, Reasons: reasons, Findings: findings}
	}
	if caution {
		return Report{Status: StatusCaution, Reasons: []string{ReasonNearBoundary}, Findings: findings}
	}
	return Report{Status: StatusSafe, Findings: findings}
}

// rampFindings compares consecutive calendar-week stress totals. The first
// week has no predecessor and cannot breach.
func rampFindings(points []loadstate.Point, pol policy.BoundaryPolicy) []Finding {
	weeks := weeklyTotals(points)
	var findings []Finding
	for i := 1; i < len(weeks); i++ {
		prev := weeks[i-1].total
		if prev <= 0 {
			continue
		}
		ramp := (weeks[i].total - prev) / prev
		switch {
		case ramp > pol.RampHardPct:
			findings = append(findings, Finding{
				Cap:    CapWeeklyRamp,
				Status: StatusExceeded,
				Date:   weeks[i].start,
				Detail: fmt.Sprintf("weekly load up %.0f%%, cap %.0f%%", ramp*100, pol.RampHardPct*100),
			})
		case ramp > pol.RampCautionPct:
			findings = append(findings, Finding{
				Cap:    CapWeeklyRamp,
				Status: StatusCaution,
				Date:   weeks[i].start,
				Detail: fmt.Sprintf("weekly load up %.0f%%, approaching %.0f%% cap", ramp*100, pol.RampHardPct*100),
			})
		}
	}
	return findings
}

func streakFindings(points []loadstate.Point, pol policy.BoundaryPolicy, highLoad float64) []Finding {
	var findings []Finding
	streak := 0
	for _, p := range points {
		if p.Stress < highLoad {
			streak = 0
			continue
		}
		streak++
		switch {
		case streak == pol.MaxConsecutiveHighDays+1:
			// Report once, on the day the streak crosses the cap.
			findings = append(findings, Finding{
				Cap:    CapHighLoadStreak,
				Status: StatusExceeded,
				Date:   p.Date,
				Detail: fmt.Sprintf("%d consecutive high-load days, cap %d", streak, pol.MaxConsecutiveHighDays),
			})
		case streak == pol.MaxConsecutiveHighDays:
			findings = append(findings, Finding{
				Cap:    CapHighLoadStreak,
				Status: StatusCaution,
				Date:   p.Date,
				Detail: fmt.Sprintf("%d consecutive high-load days at the cap", streak),
			})
		}
	}
	return findings
}

func balanceFindings(points []loadstate.Point, pol policy.BoundaryPolicy) []Finding {
	var findings []Finding
	inHard, inCaution := false, false
	for _, p := range points {
		switch {
		case p.Balance < pol.BalanceHardFloor:
			if !inHard {
				findings = append(findings, Finding{
					Cap:    CapBalanceFloor,
					Status: StatusExceeded,
					Date:   p.Date,
					Detail: fmt.Sprintf("balance %.1f below floor %.1f", p.Balance, pol.BalanceHardFloor),
				})
			}
			inHard, inCaution = true, true
		case p.Balance < pol.BalanceCautionFloor:
			if !inCaution {
				findings = append(findings, Finding{
					Cap:    CapBalanceFloor,
					Status: StatusCaution,
					Date:   p.Date,
					Detail: fmt.Sprintf("balance %.1f approaching floor %.1f", p.Balance, pol.BalanceHardFloor),
				})
			}
			inHard, inCaution = false, true
		default:
			inHard, inCaution = false, false
		}
	}
	return findings
}

type weekTotal struct {
	start time.Time
	total float64
}

func weeklyTotals(points []loadstate.Point) []weekTotal {
	var weeks []weekTotal
	for i, p := range points {
		w := i / 7
		if w == len(weeks) {
			weeks = append(weeks, weekTotal{start: p.Date})
		}
		weeks[w].total += p.Stress
	}
	return weeks
}
