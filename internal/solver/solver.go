// Package solver plans weekly training loads over a receding horizon. Each
// step commits one week's action from a candidate lattice around the previous
// week's load, re-simulating the remaining horizon for every candidate, then
// advances. Work is bounded by a logical evaluation budget with a fixed
// degradation chain, so runtime never depends on luck.
package solver

import (
	"errors"
	"fmt"
	"math"

	"traincast/internal/boundary"
	"traincast/internal/loadstate"
	"traincast/internal/planstore"
	"traincast/internal/policy"
)

// Phase is the solver's lifecycle state. Transitions are explicit and only
// move forward.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseSolving   Phase = "solving"
	PhaseCommitted Phase = "committed"
	PhaseDone      Phase = "done"
)

// Fallback tiers, from full search to the guaranteed-cheap baseline.
const (
	TierFullLattice    = "full_lattice"
	TierReducedLattice = "reduced_lattice"
	TierHeuristic      = "heuristic"
	TierBaseline       = "baseline"
)

// Tie-break links recorded on committed actions.
const (
	TieObjective      = "objective"
	TieActionDistance = "action_distance"
	TieGoalDate       = "goal_date"
	TieCandidateID    = "candidate_id"
)

// Evaluator scores the goal-attainment term of a simulated horizon: the
// candidate weekly loads and the end-of-week load states they produce.
// Higher is better. A nil evaluator contributes zero.
type Evaluator func(weekly []float64, states []loadstate.State) float64

// Input fixes everything a solve depends on. Config carries the plan's
// constraint regime: in safe mode every cap eliminates candidates outright;
// in risk-accepted mode the accepted overrides soften or disable specific
// caps, demoting them to the risk penalty term.
type Input struct {
	Initial    loadstate.State
	PrevWeekly float64
	Style      string
	Config     planstore.Config
	GoalEval   Evaluator
	// EarliestGoal scores attainment of the earliest-dated goal alone. It is
	// consulted only to break ties after objective and action distance, and
	// reuses the states the objective already simulated.
	EarliestGoal Evaluator
}

// Action is one committed week.
type Action struct {
	Week       int     `json:"week"`
	WeeklyLoad float64 `json:"weekly_load"`
	Objective  float64 `json:"objective"`
	// TieBreak records how deep the deterministic tie-break chain had to go
	// to separate this action from the runner-up.
	TieBreak  string `json:"tie_break"`
	Evaluated int    `json:"evaluated"`
}

// Result is the committed plan plus solve diagnostics.
type Result struct {
	Actions     []Action `json:"actions"`
	Tier        string   `json:"tier"`
	Evaluations int      `json:"evaluations"`
	Feasible    bool     `json:"feasible"`
}

// Solver carries the receding-horizon state machine. Create with New, then
// call Advance until Done, or Run to completion.
type Solver struct {
	input   Input
	table   policy.Table
	profile policy.SolverProfile
	bound   policy.BoundaryPolicy
	lifted  map[string]bool // caps disabled by accepted overrides

	phase    Phase
	week     int
	state    loadstate.State
	prev     float64
	tier     string
	evals    int
	baseline float64
	actions  []Action
}

// New prepares a solve in the idle phase. The fallback tier is chosen up
// front from the style's evaluation budget, so the work bound is known
// before any candidate is scored.
func New(input Input, table policy.Table) *Solver {
	profile := table.Profile(input.Style)
	bound := table.Boundary
	var lifted map[string]bool
	if input.Config.Mode == planstore.ModeRiskAccepted && len(input.Config.Overrides) > 0 {
		bound, lifted = boundary.ApplyOverrides(table.Boundary, input.Config.Overrides)
	}
	s := &Solver{
		input:   input,
		table:   table,
		profile: profile,
		bound:   bound,
		lifted:  lifted,
		phase:   PhaseIdle,
		state:   input.Initial,
		prev:    input.PrevWeekly,
	}
	s.tier = selectTier(profile)
	s.baseline = baselineLoad(input, bound)
	return s
}

// baselineLoad is the flat weekly load the cap-only baseline tier commits:
// the previous week lifted to the ramp ceiling, or the chronic level when
// there is no previous week.
func baselineLoad(input Input, bound policy.BoundaryPolicy) float64 {
	if input.PrevWeekly > 0 {
		return input.PrevWeekly * (1 + bound.RampHardPct)
	}
	if base := input.Initial.Chronic * 7; base > 0 {
		return base
	}
	return 70
}

// Phase reports the current lifecycle phase.
func (s *Solver) Phase() Phase { return s.phase }

// Advance performs exactly one transition: idle begins solving, solving
// commits the current week's action, committed either resumes solving the
// next week or finishes.
func (s *Solver) Advance() error {
	switch s.phase {
	case PhaseIdle:
		s.phase = PhaseSolving
		return nil
	case PhaseSolving:
		action, err := s.solveWeek()
		if err != nil {
			return err
		}
		s.actions = append(s.actions, action)
		s.state = simulateWeek(s.state, action.WeeklyLoad, s.table.Load)
		s.prev = action.WeeklyLoad
		s.week++
		s.phase = PhaseCommitted
		return nil
	case PhaseCommitted:
		if s.week >= s.profile.HorizonWeeks {
			s.phase = PhaseDone
			return nil
		}
		s.phase = PhaseSolving
		return nil
	default:
		return errors.New("solver already done")
	}
}

// Run drives the machine to completion.
func (s *Solver) Run() (Result, error) {
	for s.phase != PhaseDone {
		if err := s.Advance(); err != nil {
			return Result{}, err
		}
	}
	return Result{
		Actions:     s.actions,
		Tier:        s.tier,
		Evaluations: s.evals,
		Feasible:    true,
	}, nil
}

// selectTier picks the deepest search the evaluation budget can afford.
// Scoring one candidate in week w costs the remaining-horizon weeks it
// simulates, so a lattice of n candidates costs n times the horizon sum.
// The heuristic scores a single candidate per week; the baseline performs
// no search at all and always fits.
func selectTier(p policy.SolverProfile) string {
	horizonCost := 0
	for w := 0; w < p.HorizonWeeks; w++ {
		horizonCost += p.HorizonWeeks - w
	}
	switch {
	case p.LatticeSize*horizonCost <= p.EvalBudget:
		return TierFullLattice
	case reducedSize(p.LatticeSize)*horizonCost <= p.EvalBudget:
		return TierReducedLattice
	case horizonCost <= p.EvalBudget:
		return TierHeuristic
	default:
		return TierBaseline
	}
}

func reducedSize(n int) int {
	r := (n + 1) / 2
	if r < 3 {
		r = 3
	}
	return r
}

// candidateEval is one scored candidate: its action, objective, and the
// earliest-goal tie score derived from the same simulation.
type candidateEval struct {
	action float64
	obj    float64
	tie    float64
}

// solveWeek commits the current week's action for the active tier: the
// lattice tiers search, the heuristic scores one proportional candidate,
// and the baseline holds its precomputed ceiling without evaluating.
func (s *Solver) solveWeek() (Action, error) {
	remaining := s.profile.HorizonWeeks - s.week

	switch s.tier {
	case TierBaseline:
		return Action{Week: s.week, WeeklyLoad: s.baseline, TieBreak: TieObjective}, nil
	case TierHeuristic:
		return s.solveHeuristic(remaining), nil
	}

	candidates := s.lattice()
	if len(candidates) == 0 {
		return Action{}, fmt.Errorf("week %d: empty candidate lattice", s.week)
	}

	best := -1
	var bestEval candidateEval
	tieBreak := TieObjective
	evaluated := 0

	for id, action := range candidates {
		if !s.allowsRamp(action) {
			continue
		}
		if s.evals+remaining > s.profile.EvalBudget && evaluated > 0 {
			// Budget exhausted mid-week: keep what has been scored so far
			// rather than overrunning the bound.
			break
		}
		eval, states := s.evaluate(action, remaining)
		s.evals += remaining
		evaluated++
		if !s.admissible(action, states) {
			continue
		}

		if best == -1 {
			best, bestEval = id, eval
			continue
		}
		verdict, link := compare(eval, bestEval, s.prev)
		switch verdict {
		case 1:
			best, bestEval = id, eval
			tieBreak = link
		case 0:
			// Equal all the way down: lower candidate id already held.
			tieBreak = TieCandidateID
		case -1:
			if link != TieObjective {
				tieBreak = link
			}
		}
	}

	if best == -1 {
		// Every candidate breached a hard cap. Holding the previous load is
		// the least-bad deterministic action; score it only when the budget
		// still allows.
		hold := s.prev
		obj := 0.0
		scored := 0
		if s.evals+remaining <= s.profile.EvalBudget {
			eval, _ := s.evaluate(hold, remaining)
			s.evals += remaining
			obj = eval.obj
			scored = 1
		}
		return Action{Week: s.week, WeeklyLoad: hold, Objective: obj, TieBreak: TieObjective, Evaluated: scored}, nil
	}

	return Action{
		Week:       s.week,
		WeeklyLoad: bestEval.action,
		Objective:  bestEval.obj,
		TieBreak:   tieBreak,
		Evaluated:  evaluated,
	}, nil
}

// solveHeuristic scores a single cap-constrained candidate: the previous
// load scaled proportionally at the caution ramp. No search happens.
func (s *Solver) solveHeuristic(remaining int) Action {
	cand := s.prev * (1 + s.bound.RampCautionPct)
	if s.prev <= 0 {
		cand = s.coldStartBase()
	}

	obj := 0.0
	scored := 0
	if s.evals+remaining <= s.profile.EvalBudget {
		eval, _ := s.evaluate(cand, remaining)
		s.evals += remaining
		obj = eval.obj
		scored = 1
	}
	return Action{Week: s.week, WeeklyLoad: cand, Objective: obj, TieBreak: TieObjective, Evaluated: scored}
}

// allowsRamp applies the weekly ramp cap under the effective policy, unless
// the cap was disabled by an accepted override.
func (s *Solver) allowsRamp(action float64) bool {
	if s.lifted[boundary.CapWeeklyRamp] {
		return true
	}
	return boundary.AllowsRamp(s.prev, action, s.bound)
}

// admissible rejects candidates whose simulated horizon breaches a hard cap:
// the fatigue-balance floor, or a daily load at the high-load threshold that
// an even weekly spread would sustain past the streak cap. Caps disabled by
// accepted overrides do not eliminate; their risk stays in the penalty term.
func (s *Solver) admissible(action float64, states []loadstate.State) bool {
	if !s.lifted[boundary.CapBalanceFloor] {
		for _, st := range states {
			if st.Balance() < s.bound.BalanceHardFloor {
				return false
			}
		}
	}
	if !s.lifted[boundary.CapHighLoadStreak] {
		if action/7 >= s.table.Load.HighLoadThreshold {
			return false
		}
	}
	return true
}

// compare ranks candidate a against the incumbent b through the fixed chain:
// objective, then distance to the previous action, then attainment of the
// earliest-dated goal, then lower candidate id (0 means b holds by id). The
// second return names the link that decided.
func compare(a, b candidateEval, prev float64) (int, string) {
	if !nearlyEqual(a.obj, b.obj) {
		if a.obj > b.obj {
			return 1, TieObjective
		}
		return -1, TieObjective
	}
	distA := math.Abs(a.action - prev)
	distB := math.Abs(b.action - prev)
	if !nearlyEqual(distA, distB) {
		if distA < distB {
			return 1, TieActionDistance
		}
		return -1, TieActionDistance
	}
	if !nearlyEqual(a.tie, b.tie) {
		if a.tie > b.tie {
			return 1, TieGoalDate
		}
		return -1, TieGoalDate
	}
	return 0, TieCandidateID
}

func nearlyEqual(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9
}

// lattice builds the candidate weekly loads for the current week: evenly
// spaced points between floor and ceiling factors of the previous week,
// thinned per the active tier.
func (s *Solver) lattice() []float64 {
	base := s.prev
	if base <= 0 {
		base = s.coldStartBase()
	}

	size := s.profile.LatticeSize
	if s.tier == TierReducedLattice {
		size = reducedSize(size)
	}
	if size < 2 {
		return []float64{s.prev}
	}

	lo := base * s.table.Solver.LatticeFloorFactor
	hi := base * s.table.Solver.LatticeCeilFactor
	out := make([]float64, size)
	for i := 0; i < size; i++ {
		out[i] = lo + (hi-lo)*float64(i)/float64(size-1)
	}
	return out
}

// coldStartBase seeds the candidate level when there is no previous week:
// the chronic level, or a small fixed floor with no history at all.
func (s *Solver) coldStartBase() float64 {
	if base := s.state.Chronic * 7; base > 0 {
		return base
	}
	return 70
}

// evaluate scores one candidate action followed by a constant continuation
// over the remaining horizon, returning the objective, the earliest-goal
// tie score, and the simulated states for admissibility checks.
func (s *Solver) evaluate(action float64, remaining int) (candidateEval, []loadstate.State) {
	weekly := make([]float64, remaining)
	states := make([]loadstate.State, remaining)
	state := s.state
	for i := 0; i < remaining; i++ {
		weekly[i] = action
		state = simulateWeek(state, action, s.table.Load)
		states[i] = state
	}

	var goal float64
	if s.input.GoalEval != nil {
		goal = s.input.GoalEval(weekly, states)
	}
	var tie float64
	if s.input.EarliestGoal != nil {
		tie = s.input.EarliestGoal(weekly, states)
	}

	final := states[remaining-1]
	readiness := clamp01(0.5 + final.Balance()/60)
	risk := s.riskPenalty(states)
	volatility := relChange(action, s.prev)
	churn := 0.0
	if len(s.actions) > 0 {
		churn = relChange(action, s.actions[len(s.actions)-1].WeeklyLoad)
	}
	monotony, strain := monotonyStrain(weekly, s.prev)

	w := s.table.Objective
	obj := w.Goal*goal + w.Readiness*readiness -
		w.Risk*risk - w.Volatility*volatility - w.Churn*churn -
		w.Monotony*monotony - w.Strain*strain
	return candidateEval{action: action, obj: obj, tie: tie}, states
}

// riskPenalty grows as the simulated balance approaches the caution floor
// and saturates at the hard floor of the effective policy.
func (s *Solver) riskPenalty(states []loadstate.State) float64 {
	pol := s.bound
	span := pol.BalanceCautionFloor - pol.BalanceHardFloor
	if span <= 0 {
		span = 1
	}
	worst := 0.0
	for _, st := range states {
		b := st.Balance()
		if b >= pol.BalanceCautionFloor {
			continue
		}
		p := (pol.BalanceCautionFloor - b) / span
		if p > worst {
			worst = p
		}
	}
	return clamp01(worst)
}

// monotonyStrain penalizes flat nonzero load weeks and the strain of
// sustained volume. Both terms stay in [0,1].
func monotonyStrain(weekly []float64, prev float64) (float64, float64) {
	if len(weekly) == 0 {
		return 0, 0
	}
	var sum float64
	for _, w := range weekly {
		sum += w
	}
	mean := sum / float64(len(weekly))
	if mean <= 0 {
		return 0, 0
	}
	var varsum float64
	for _, w := range weekly {
		d := w - mean
		varsum += d * d
	}
	// Include the transition from the previous week so a held load still
	// shows some spread when the plan changed level.
	d := weekly[0] - prev
	varsum += d * d
	sd := math.Sqrt(varsum / float64(len(weekly)+1))
	monotony := clamp01(1 - sd/(0.1*mean))
	strain := clamp01(mean / 1400 * monotony)
	return monotony, strain
}

func relChange(a, b float64) float64 {
	base := math.Abs(b)
	if base < 1 {
		base = 1
	}
	return clamp01(math.Abs(a-b) / base)
}

// simulateWeek spreads a weekly load evenly over seven daily steps.
func simulateWeek(state loadstate.State, weekly float64, pol policy.LoadPolicy) loadstate.State {
	daily := weekly / 7
	for d := 0; d < 7; d++ {
		state = loadstate.Step(state, daily, pol)
	}
	return state
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
