package policy

// Version identifies the constant-table schema carried by Table.
const Version = 1

// Table bundles every tunable constant the engine consumes. Components take a
// Table explicitly; nothing in the engine reads package-level mutable state,
// so tests can run alternate tables side by side.
type Table struct {
	Version int

	// Decimals is the fixed precision for canonical numeric normalization
	// (round half to even).
	Decimals int

	Tier         TierWeights
	Load         LoadPolicy
	Capability   CapabilityPolicy
	Satisfaction SatisfactionPolicy
	Feasibility  FeasibilityPolicy
	Boundary     BoundaryPolicy
	Objective    ObjectiveWeights
	Solver       SolverPolicy
	Readiness    ReadinessPolicy
	Adherence    AdherencePolicy

	// ConflictMateriality is the minimum cross-goal score delta that is
	// recorded as a conflict entry.
	ConflictMateriality float64
}

// TierWeights are the fixed plan-level weights for priority tiers A, B, C.
type TierWeights struct {
	A float64
	B float64
	C float64
}

// LoadPolicy holds the exponential-decay constants for chronic and acute
// training load, and the daily-stress level that counts as a high-load day.
type LoadPolicy struct {
	ChronicDays       float64
	AcuteDays         float64
	HighLoadThreshold float64
}

// CapabilityPolicy controls the critical-power / critical-speed fit.
type CapabilityPolicy struct {
	RecencyWindowDays  int
	RecencyHalfLife    float64 // days
	OutlierMADMultiple float64
	ShortMaxSeconds    float64
	LongMinSeconds     float64
	LowConfidence      float64

	// Conservative prior constants, used when evidence covers fewer than two
	// duration bands. Derived from body weight and LTHR only.
	PriorPowerPerKG   float64 // watts per kg at the LTHR reference
	PriorCapacityPerKG float64 // joules per kg above critical power
	PriorSpeed        float64 // m/s at the LTHR reference
	PriorSpeedCapacity float64 // meters above critical speed
	LTHRReference     float64 // bpm
	FallbackConfidence float64

	// TrainingGain scales projected capability with relative chronic-load
	// change: doubling chronic load lifts sustainable output by this fraction.
	TrainingGain float64
}

// SatisfactionPolicy shapes the per-target satisfaction curve.
type SatisfactionPolicy struct {
	// DefaultTolerance is the relative tolerance band applied when a target
	// declares none.
	DefaultTolerance float64
	// EdgeValue is the satisfaction at the tolerance-band edge.
	EdgeValue float64
	// BeyondDecay is the exponential steepness past the tolerance band.
	BeyondDecay float64
	// ProbabilitySigma scales the capability margin in the completion
	// likelihood logistic.
	ProbabilitySigma float64
	// FatigueBalanceScale converts negative load balance into a likelihood
	// discount.
	FatigueBalanceScale float64
	// LowConfidence marks capability estimates whose confidence earns a
	// low-evidence rationale code.
	LowConfidence float64
}

// FeasibilityPolicy fixes the Goal Difficulty Index sub-weights and the band
// boundaries over the composite index.
type FeasibilityPolicy struct {
	PerfWeight     float64
	LoadWeight     float64
	TimelineWeight float64
	SparsityMax    float64 // additive penalty ceiling

	// PerfGapScale is the relative capability improvement treated as the
	// plausible training ceiling; shortfalls at or past it saturate the
	// performance-gap component.
	PerfGapScale float64

	// Band upper bounds, contiguous and non-overlapping. An index below
	// FeasibleMax is feasible, below StretchMax is stretch, and so on;
	// anything at or above NearlyImpossibleMax is infeasible.
	FeasibleMax         float64
	StretchMax          float64
	AggressiveMax       float64
	NearlyImpossibleMax float64
}

// BoundaryPolicy holds the safety caps evaluated per time bucket.
type BoundaryPolicy struct {
	RampHardPct            float64 // weekly ramp hard cap, e.g. 0.10 = +10%
	RampCautionPct         float64
	MaxConsecutiveHighDays int
	BalanceHardFloor       float64 // fatigue balance hard floor (negative)
	BalanceCautionFloor    float64
}

// ObjectiveWeights are the fixed weights of the solver objective terms.
type ObjectiveWeights struct {
	Goal       float64
	Readiness  float64
	Risk       float64
	Volatility float64
	Churn      float64
	Monotony   float64
	Strain     float64
}

// SolverProfile bounds a single optimization style: lattice width, horizon
// length, and the logical candidate-evaluation budget.
type SolverProfile struct {
	HorizonWeeks int
	LatticeSize  int
	EvalBudget   int
}

// SolverPolicy maps optimization styles to their fixed profiles.
type SolverPolicy struct {
	Profiles map[string]SolverProfile
	// LatticeFloorFactor and LatticeCeilFactor bound candidate weekly loads
	// relative to the previous week's action.
	LatticeFloorFactor float64
	LatticeCeilFactor  float64
}

// ReadinessPolicy caps the reported readiness per feasibility band in
// safe-default mode.
type ReadinessPolicy struct {
	CapFeasible         float64
	CapStretch          float64
	CapAggressive       float64
	CapNearlyImpossible float64
	CapInfeasible       float64
}

// AdherencePolicy fixes the adherence score blend and label bands.
type AdherencePolicy struct {
	ActualWeight    float64 // weight of actual-vs-scheduled ratio score
	ScheduledWeight float64 // weight of scheduled-vs-ideal ratio score
	RatioExponent   float64
	OnTrackMin      float64
	SlightMissMin   float64
	OverloadRatio   float64 // actual/scheduled ratio that flags overload
}

// Default returns the version-1 constant table.
func Default() Table {
	return Table{
		Version:  Version,
		Decimals: 4,
		Tier:     TierWeights{A: 0.6, B: 0.3, C: 0.1},
		Load: LoadPolicy{
			ChronicDays:       42,
			AcuteDays:         7,
			HighLoadThreshold: 90,
		},
		Capability: CapabilityPolicy{
			RecencyWindowDays:  90,
			RecencyHalfLife:    21,
			OutlierMADMultiple: 3.5,
			ShortMaxSeconds:    300,
			LongMinSeconds:     720,
			LowConfidence:      0.4,
			PriorPowerPerKG:    2.6,
			PriorCapacityPerKG: 230,
			PriorSpeed:         2.9,
			PriorSpeedCapacity: 150,
			LTHRReference:      170,
			FallbackConfidence: 0.2,
			TrainingGain:       0.15,
		},
		Satisfaction: SatisfactionPolicy{
			DefaultTolerance:    0.05,
			EdgeValue:           0.7,
			BeyondDecay:         4,
			ProbabilitySigma:    0.08,
			FatigueBalanceScale: 60,
			LowConfidence:       0.4,
		},
		Feasibility: FeasibilityPolicy{
			PerfWeight:          0.45,
			LoadWeight:          0.35,
			TimelineWeight:      0.20,
			SparsityMax:         0.25,
			PerfGapScale:        0.25,
			FeasibleMax:         0.35,
			StretchMax:          0.55,
			AggressiveMax:       0.75,
			NearlyImpossibleMax: 0.95,
		},
		Boundary: BoundaryPolicy{
			RampHardPct:            0.10,
			RampCautionPct:         0.08,
			MaxConsecutiveHighDays: 3,
			BalanceHardFloor:       -30,
			BalanceCautionFloor:    -20,
		},
		Objective: ObjectiveWeights{
			Goal:       1.0,
			Readiness:  0.4,
			Risk:       0.8,
			Volatility: 0.15,
			Churn:      0.1,
			Monotony:   0.1,
			Strain:     0.2,
		},
		Solver: SolverPolicy{
			Profiles: map[string]SolverProfile{
				StyleConservative: {HorizonWeeks: 4, LatticeSize: 7, EvalBudget: 600},
				StyleBalanced:     {HorizonWeeks: 6, LatticeSize: 9, EvalBudget: 1200},
				StyleOutcomeFirst: {HorizonWeeks: 8, LatticeSize: 13, EvalBudget: 2400},
			},
			LatticeFloorFactor: 0.6,
			LatticeCeilFactor:  1.1,
		},
		Readiness: ReadinessPolicy{
			CapFeasible:         100,
			CapStretch:          85,
			CapAggressive:       70,
			CapNearlyImpossible: 50,
			CapInfeasible:       35,
		},
		Adherence: AdherencePolicy{
			ActualWeight:    0.7,
			ScheduledWeight: 0.3,
			RatioExponent:   1.5,
			OnTrackMin:      85,
			SlightMissMin:   65,
			OverloadRatio:   1.2,
		},
		ConflictMateriality: 0.05,
	}
}

// Optimization styles understood by the solver policy.
const (
	StyleConservative = "conservative"
	StyleBalanced     = "balanced"
	StyleOutcomeFirst = "outcome_first"
)

// Profile returns the solver profile for a style, falling back to balanced
// for unknown styles.
func (t Table) Profile(style string) SolverProfile {
	if p, ok := t.Solver.Profiles[style]; ok {
		return p
	}
	return t.Solver.Profiles[StyleBalanced]
}
