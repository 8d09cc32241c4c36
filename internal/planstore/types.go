package planstore

import "time"

// Tier is a goal priority tier, highest precedence first.
type Tier string

const (
	TierA Tier = "A"
	TierB Tier = "B"
	TierC Tier = "C"
)

// rank orders tiers for canonical sorting; lower is higher precedence.
func (t Tier) rank() int {
	switch t {
	case TierA:
		return 0
	case TierB:
		return 1
	case TierC:
		return 2
	default:
		return 3
	}
}

// TargetKind discriminates the goal-target variants. Every switch over a
// TargetKind must handle all five cases and reject anything else.
type TargetKind string

const (
	KindFinishTime            TargetKind = "finish_time"
	KindPace                  TargetKind = "pace"
	KindPower                 TargetKind = "power"
	KindSplit                 TargetKind = "split"
	KindCompletionProbability TargetKind = "completion_probability"
)

// kindOrder fixes the canonical sort position of each kind within a goal.
func (k TargetKind) kindOrder() int {
	switch k {
	case KindFinishTime:
		return 0
	case KindPace:
		return 1
	case KindPower:
		return 2
	case KindSplit:
		return 3
	case KindCompletionProbability:
		return 4
	default:
		return 5
	}
}

// Basis says which capability model applies to an activity category.
type Basis string

const (
	BasisPower Basis = "power"
	BasisSpeed Basis = "speed"
)

// CategoryBasis maps known activity categories to their capability basis.
// Unknown categories default to speed.
func CategoryBasis(category string) Basis {
	switch category {
	case "bike", "row", "ski_erg":
		return BasisPower
	default:
		return BasisSpeed
	}
}

// GoalTarget is one tagged target variant inside a goal.
//
// Value units by kind: finish_time and split in seconds, pace in m/s, power
// in watts, completion_probability in [0,1]. DistanceMeters scopes
// finish_time and split targets to a course or sub-segment length.
type GoalTarget struct {
	ID             string
	Kind           TargetKind
	Value          float64
	Tolerance      *float64 // relative, e.g. 0.03 = 3%; nil uses the policy default
	Weight         *float64 // nil targets share the unclaimed remainder equally
	SplitID        string   // required for split targets
	DistanceMeters float64  // required for finish_time and split targets
}

// Goal is an immutable plan goal. Edits supersede; they never mutate a goal
// a projection run has seen.
type Goal struct {
	ID         string
	Name       string
	TargetDate time.Time
	Tier       Tier
	Weight     float64 // normalized within tier by the aggregator
	Category   string
	Targets    []GoalTarget
}

// Mode selects the constraint regime for a plan.
type Mode string

const (
	ModeSafeDefault  Mode = "safe_default"
	ModeRiskAccepted Mode = "risk_accepted"
)

// RiskAcceptance is the explicit opt-in record required by risk_accepted
// mode. It must be affirmed; its presence is validated, never assumed.
type RiskAcceptance struct {
	Affirmed   bool
	AffirmedBy string
	AffirmedAt time.Time
	Note       string
}

// CapOverride softens or disables one named safety cap in risk_accepted
// mode. Cap names match the boundary reason codes.
type CapOverride struct {
	Cap    string
	Action string // OverrideSoften or OverrideDisable
}

// Cap override actions.
const (
	OverrideSoften  = "soften"
	OverrideDisable = "disable"
)

// Config is the plan-level configuration.
type Config struct {
	Mode               Mode
	RiskAcceptance     *RiskAcceptance
	Style              string // optimization style; see policy.Style*
	Overrides          []CapOverride
	MinSessionsPerWeek int
	HardRestDays       []string // lowercase weekday names
}

// Plan is the canonicalized input: configuration plus the ordered goal list.
type Plan struct {
	Config Config
	Goals  []Goal
}

// LoadSample is one day of realized training stress, owned by the caller.
type LoadSample struct {
	Date     time.Time
	Stress   float64
	Category string
}

// Effort is one best-effort evidence point for capability fitting.
type Effort struct {
	Category        string
	DurationSeconds float64
	Output          float64 // watts for power categories, m/s for speed
	Date            time.Time
}

// Profile carries the only two profile metrics the engine consumes.
type Profile struct {
	WeightKG float64
	LTHR     float64
}

// Window is the requested projection window. Dates are already resolved to
// the caller's local calendar; the engine does no timezone conversion.
type Window struct {
	Start    time.Time
	End      time.Time
	Timezone string // label only, echoed into the output
}

// Days returns the number of calendar days in the window, inclusive.
func (w Window) Days() int {
	if w.End.Before(w.Start) {
		return 0
	}
	return int(w.End.Sub(w.Start).Hours()/24) + 1
}

// DateFormat is the canonical calendar-day encoding used across documents
// and output payloads.
const DateFormat = "2006-01-02"
