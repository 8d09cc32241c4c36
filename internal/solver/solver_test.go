package solver

import (
	"testing"

	"traincast/internal/boundary"
	"traincast/internal/loadstate"
	"traincast/internal/planstore"
	"traincast/internal/policy"
)

func solveInput(style string) Input {
	return Input{
		Initial:    loadstate.State{Chronic: 45, Acute: 45},
		PrevWeekly: 320,
		Style:      style,
		GoalEval: func(weekly []float64, states []loadstate.State) float64 {
			// Reward built fitness, the usual shape of the goal term.
			final := states[len(states)-1]
			return final.Chronic / 100
		},
	}
}

func TestRunCommitsFullHorizon(t *testing.T) {
	table := policy.Default()
	s := New(solveInput(policy.StyleBalanced), table)
	res, err := s.Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	want := table.Profile(policy.StyleBalanced).HorizonWeeks
	if len(res.Actions) != want {
		t.Fatalf("committed %d weeks, want %d", len(res.Actions), want)
	}
	for i, a := range res.Actions {
		if a.Week != i {
			t.Fatalf("action %d has week %d", i, a.Week)
		}
		if a.WeeklyLoad < 0 {
			t.Fatalf("negative weekly load at week %d", i)
		}
	}
	if s.Phase() != PhaseDone {
		t.Fatalf("phase = %s, want done", s.Phase())
	}
}

func TestAdvancePhaseSequence(t *testing.T) {
	table := policy.Default()
	s := New(solveInput(policy.StyleConservative), table)
	if s.Phase() != PhaseIdle {
		t.Fatalf("initial phase = %s, want idle", s.Phase())
	}
	if err := s.Advance(); err != nil {
		t.Fatal(err)
	}
	if s.Phase() != PhaseSolving {
		t.Fatalf("phase = %s, want solving", s.Phase())
	}
	if err := s.Advance(); err != nil {
		t.Fatal(err)
	}
	if s.Phase() != PhaseCommitted {
		t.Fatalf("phase = %s, want committed", s.Phase())
	}
	for s.Phase() != PhaseDone {
		if err := s.Advance(); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Advance(); err == nil {
		t.Fatal("advancing past done must error")
	}
}

func TestRunDeterministic(t *testing.T) {
	table := policy.Default()
	a, err := New(solveInput(policy.StyleOutcomeFirst), table).Run()
	if err != nil {
		t.Fatal(err)
	}
	b, err := New(solveInput(policy.StyleOutcomeFirst), table).Run()
	if err != nil {
		t.Fatal(err)
	}
	if a.Tier != b.Tier || a.Evaluations != b.Evaluations || len(a.Actions) != len(b.Actions) {
		t.Fatalf("runs differ: %+v vs %+v", a, b)
	}
	for i := range a.Actions {
		if a.Actions[i] != b.Actions[i] {
			t.Fatalf("action %d differs: %+v vs %+v", i, a.Actions[i], b.Actions[i])
		}
	}
}

func TestRunRespectsEvalBudget(t *testing.T) {
	table := policy.Default()
	for _, style := range []string{policy.StyleConservative, policy.StyleBalanced, policy.StyleOutcomeFirst} {
		res, err := New(solveInput(style), table).Run()
		if err != nil {
			t.Fatalf("%s: %v", style, err)
		}
		budget := table.Profile(style).EvalBudget
		if res.Evaluations > budget {
			t.Fatalf("%s used %d evaluations, budget %d", style, res.Evaluations, budget)
		}
	}
}

func TestRunRespectsRampCap(t *testing.T) {
	table := policy.Default()
	res, err := New(solveInput(policy.StyleBalanced), table).Run()
	if err != nil {
		t.Fatal(err)
	}
	prev := 320.0
	for _, a := range res.Actions {
		if prev > 0 && a.WeeklyLoad > prev*(1+table.Boundary.RampHardPct)+1e-9 {
			t.Fatalf("week %d load %v breaches ramp cap from %v", a.Week, a.WeeklyLoad, prev)
		}
		prev = a.WeeklyLoad
	}
}

func TestTinyBudgetFallsBackToBaseline(t *testing.T) {
	table := policy.Default()
	table.Solver.Profiles = map[string]policy.SolverProfile{
		policy.StyleBalanced: {HorizonWeeks: 4, LatticeSize: 9, EvalBudget: 3},
	}
	s := New(solveInput(policy.StyleBalanced), table)
	if s.tier != TierBaseline {
		t.Fatalf("tier = %s, want baseline under a 3-eval budget", s.tier)
	}
	res, err := s.Run()
	if err != nil {
		t.Fatal(err)
	}
	if res.Tier != TierBaseline {
		t.Fatalf("result tier = %s, want baseline", res.Tier)
	}
	// The baseline is search-free: it must never report more evaluations
	// than the budget, and under any budget it reports none at all.
	if res.Evaluations != 0 {
		t.Fatalf("baseline reported %d evaluations against a budget of 3", res.Evaluations)
	}
	// Baseline commits a flat load at the ramp ceiling over the previous week.
	want := 320 * (1 + table.Boundary.RampHardPct)
	for _, a := range res.Actions {
		if a.WeeklyLoad != want {
			t.Fatalf("baseline should hold the %v ceiling, got %v", want, a.WeeklyLoad)
		}
		if a.Evaluated != 0 {
			t.Fatalf("baseline action reports %d scored candidates", a.Evaluated)
		}
	}
}

func TestHeuristicTierScalesProportionally(t *testing.T) {
	table := policy.Default()
	// Reduced lattice would cost 5*21=105; leave room for one candidate per
	// week (21) only.
	table.Solver.Profiles = map[string]policy.SolverProfile{
		policy.StyleBalanced: {HorizonWeeks: 6, LatticeSize: 9, EvalBudget: 30},
	}
	s := New(solveInput(policy.StyleBalanced), table)
	if s.tier != TierHeuristic {
		t.Fatalf("tier = %s, want heuristic at a 30-eval budget", s.tier)
	}
	res, err := s.Run()
	if err != nil {
		t.Fatal(err)
	}
	if res.Evaluations != 21 {
		t.Fatalf("heuristic used %d evaluations, want exactly one candidate per week (21)", res.Evaluations)
	}
	prev := 320.0
	for _, a := range res.Actions {
		want := prev * (1 + table.Boundary.RampCautionPct)
		if a.WeeklyLoad != want {
			t.Fatalf("week %d load %v, want proportional %v", a.Week, a.WeeklyLoad, want)
		}
		if a.Evaluated != 1 {
			t.Fatalf("week %d scored %d candidates, want 1", a.Week, a.Evaluated)
		}
		prev = a.WeeklyLoad
	}
}

func TestReducedTierSelection(t *testing.T) {
	table := policy.Default()
	// Full lattice costs 9*(6+5+4+3+2+1)=189 for balanced; squeeze below it.
	table.Solver.Profiles = map[string]policy.SolverProfile{
		policy.StyleBalanced: {HorizonWeeks: 6, LatticeSize: 9, EvalBudget: 120},
	}
	s := New(solveInput(policy.StyleBalanced), table)
	if s.tier != TierReducedLattice {
		t.Fatalf("tier = %s, want reduced_lattice at a 120-eval budget", s.tier)
	}
}

func TestColdStartWithoutHistory(t *testing.T) {
	table := policy.Default()
	in := Input{Style: policy.StyleConservative}
	res, err := New(in, table).Run()
	if err != nil {
		t.Fatalf("cold start: %v", err)
	}
	if len(res.Actions) == 0 {
		t.Fatal("cold start must still commit a plan")
	}
}

// fatiguedInput starts from a low chronic base with a big previous week, so
// the upper lattice candidates drive simulated balance through the floor.
func fatiguedInput() Input {
	return Input{
		Initial:    loadstate.State{Chronic: 20, Acute: 20},
		PrevWeekly: 600,
		Style:      policy.StyleBalanced,
		// A goal term strong enough to dominate the risk penalty, so only the
		// hard caps stand between the solver and the top of the lattice.
		GoalEval: func(weekly []float64, states []loadstate.State) float64 {
			return states[len(states)-1].Chronic / 10
		},
	}
}

func TestSafeModeEliminatesBalanceFloorBreaches(t *testing.T) {
	table := policy.Default()
	res, err := New(fatiguedInput(), table).Run()
	if err != nil {
		t.Fatal(err)
	}
	// Replay the committed plan: no simulated week may end past the hard
	// floor, even though the goal term rewards the heaviest candidates.
	state := loadstate.State{Chronic: 20, Acute: 20}
	for _, a := range res.Actions {
		daily := a.WeeklyLoad / 7
		for d := 0; d < 7; d++ {
			state = loadstate.Step(state, daily, table.Load)
		}
		if state.Balance() < table.Boundary.BalanceHardFloor {
			t.Fatalf("week %d load %v drives balance to %v, below the %v floor",
				a.Week, a.WeeklyLoad, state.Balance(), table.Boundary.BalanceHardFloor)
		}
	}
}

func TestDisabledBalanceFloorAdmitsHeavierLoad(t *testing.T) {
	table := policy.Default()
	safe, err := New(fatiguedInput(), table).Run()
	if err != nil {
		t.Fatal(err)
	}

	in := fatiguedInput()
	in.Config = planstore.Config{
		Mode: planstore.ModeRiskAccepted,
		Overrides: []planstore.CapOverride{
			{Cap: boundary.CapBalanceFloor, Action: planstore.OverrideDisable},
		},
	}
	accepted, err := New(in, table).Run()
	if err != nil {
		t.Fatal(err)
	}
	if accepted.Actions[0].WeeklyLoad <= safe.Actions[0].WeeklyLoad {
		t.Fatalf("disabling the floor should admit heavier loads: %v vs safe %v",
			accepted.Actions[0].WeeklyLoad, safe.Actions[0].WeeklyLoad)
	}
}

func TestSafeModeEliminatesSustainedHighLoad(t *testing.T) {
	table := policy.Default()
	// A fit athlete: the balance floor is no obstacle, but the top lattice
	// candidates spread to daily loads at the high-load threshold.
	in := Input{
		Initial:    loadstate.State{Chronic: 90, Acute: 90},
		PrevWeekly: 640,
		Style:      policy.StyleBalanced,
		GoalEval: func(weekly []float64, states []loadstate.State) float64 {
			return states[len(states)-1].Chronic / 10
		},
	}
	res, err := New(in, table).Run()
	if err != nil {
		t.Fatal(err)
	}
	for _, a := range res.Actions {
		if a.WeeklyLoad/7 >= table.Load.HighLoadThreshold {
			t.Fatalf("week %d daily load %v would sustain a high-load streak",
				a.Week, a.WeeklyLoad/7)
		}
	}
}

func TestCompareTieBreakChain(t *testing.T) {
	a := candidateEval{action: 300, obj: 1.0, tie: 0.5}
	b := candidateEval{action: 310, obj: 0.9, tie: 0.9}
	if v, link := compare(a, b, 305); v != 1 || link != TieObjective {
		t.Fatalf("higher objective must win outright: %d %s", v, link)
	}

	// Equal objective: the action closer to the previous week wins.
	b.obj = 1.0
	if v, link := compare(a, b, 301); v != 1 || link != TieActionDistance {
		t.Fatalf("closer action must win: %d %s", v, link)
	}

	// Equal distance too: the candidate serving the earliest-dated goal wins.
	if v, link := compare(a, b, 305); v != -1 || link != TieGoalDate {
		t.Fatalf("earliest-goal attainment must decide: %d %s", v, link)
	}

	// Full tie: the incumbent holds by lower candidate id.
	b.tie = 0.5
	if v, link := compare(a, b, 305); v != 0 || link != TieCandidateID {
		t.Fatalf("full tie must fall to candidate id: %d %s", v, link)
	}
}
