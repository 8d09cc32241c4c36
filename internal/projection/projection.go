// Package projection assembles the full forecast: load trajectories,
// capability estimates, goal scores, feasibility bands, safety boundaries,
// the committed weekly plan, adherence, and the readiness verdict, in one
// deterministic pass over canonical inputs.
package projection

import (
	"fmt"
	"math"
	"sort"
	"time"

	"traincast/internal/adherence"
	"traincast/internal/boundary"
	"traincast/internal/capability"
	"traincast/internal/feasibility"
	"traincast/internal/loadstate"
	"traincast/internal/planstore"
	"traincast/internal/policy"
	"traincast/internal/scoring"
	"traincast/internal/solver"
)

// SchemaVersion identifies the output payload layout.
const SchemaVersion = 1

// Input is everything a projection run consumes. All slices are read only.
type Input struct {
	Plan      planstore.Plan
	Samples   []planstore.LoadSample // realized daily stress
	Scheduled []planstore.LoadSample // planned sessions; empty means follow ideal
	Efforts   []planstore.Effort
	Profile   planstore.Profile
	Window    planstore.Window
}

// SeriesPoint is one day of one load trajectory in the output payload.
type SeriesPoint struct {
	Date    string  `json:"date"`
	Stress  float64 `json:"stress"`
	Chronic float64 `json:"chronic"`
	Acute   float64 `json:"acute"`
	Balance float64 `json:"balance"`
}

// GoalReport bundles one goal's score and feasibility assessment.
type GoalReport struct {
	GoalID      string                 `json:"goal_id"`
	Name        string                 `json:"name"`
	Tier        string                 `json:"tier"`
	TargetDate  string                 `json:"target_date"`
	Score       scoring.GoalScore      `json:"score"`
	Feasibility feasibility.Assessment `json:"feasibility"`
}

// Readiness is the headline verdict. Capped records whether the safety cap
// for the feasibility band bound the score.
type Readiness struct {
	Score     float64 `json:"score"`
	Uncapped  float64 `json:"uncapped"`
	Capped    bool    `json:"capped"`
	CapLifted bool    `json:"cap_lifted"`
}

// ClampNote records a numeric guard that fired during assembly.
type ClampNote struct {
	Field  string  `json:"field"`
	Value  float64 `json:"value"`
	Bound  float64 `json:"bound"`
	Detail string  `json:"detail"`
}

// Output is the canonical projection payload. Field values are rounded to
// the policy precision before marshaling, so byte-identical inputs produce
// byte-identical payloads.
type Output struct {
	SchemaVersion int    `json:"schema_version"`
	PolicyVersion int    `json:"policy_version"`
	WindowStart   string `json:"window_start"`
	WindowEnd     string `json:"window_end"`
	Timezone      string `json:"timezone,omitempty"`
	Mode          string `json:"mode"`
	Style         string `json:"style"`

	Readiness       Readiness                  `json:"readiness"`
	RiskFlags       []string                   `json:"risk_flags,omitempty"`
	PlanScore       float64                    `json:"plan_score"`
	PlanFeasibility feasibility.PlanAssessment `json:"plan_feasibility"`
	Goals           []GoalReport               `json:"goals"`
	Conflicts       []scoring.Conflict         `json:"conflicts,omitempty"`

	Ideal     []SeriesPoint `json:"ideal"`
	Scheduled []SeriesPoint `json:"scheduled"`
	Actual    []SeriesPoint `json:"actual"`

	Boundary       boundary.Pair   `json:"boundary"`
	ActualBoundary boundary.Report `json:"actual_boundary"`

	Plan      solver.Result     `json:"plan"`
	Adherence adherence.Summary `json:"adherence"`

	Clamps []ClampNote `json:"clamps,omitempty"`
}

// Project runs the full pipeline. The window start is the projection's
// "now": capability recency, feasibility horizons, and the solver all
// anchor there.
func Project(in Input, table policy.Table) (Output, error) {
	if in.Window.Days() == 0 {
		return Output{}, fmt.Errorf("projection window %s..%s is empty",
			in.Window.Start.Format(planstore.DateFormat), in.Window.End.Format(planstore.DateFormat))
	}

	asOf := in.Window.Start
	samples := planstore.SortSamples(in.Samples)
	efforts := planstore.SortEfforts(in.Efforts)
	style := in.Plan.Config.Style
	if style == "" {
		style = policy.StyleBalanced
	}

	var clamps []ClampNote

	// Load state entering the window, and the realized trajectory inside it.
	stateNow := loadstate.Seed(samples, asOf, table.Load)
	actualDaily := loadstate.DailyStress(samples, in.Window)
	actualTrace := loadstate.Trace(actualDaily, stateNow, in.Window, table.Load)

	// One capability model per category the plan references.
	models := estimateModels(in.Plan, efforts, in.Profile, asOf, table.Capability)

	// Plan the ideal weekly loads.
	prevWeekly := trailingWeekly(samples, asOf)
	sol := solver.New(solver.Input{
		Initial:      stateNow,
		PrevWeekly:   prevWeekly,
		Style:        style,
		Config:       in.Plan.Config,
		GoalEval:     goalEvaluator(in.Plan, models, stateNow, table),
		EarliestGoal: earliestGoalEvaluator(in.Plan, models, stateNow, table),
	}, table)
	plan, err := sol.Run()
	if err != nil {
		return Output{}, fmt.Errorf("solve weekly plan: %w", err)
	}

	idealDaily := spreadActions(plan.Actions, in.Window, in.Plan.Config)
	idealTrace := loadstate.Trace(idealDaily, stateNow, in.Window, table.Load)

	scheduledDaily := idealDaily
	if len(in.Scheduled) > 0 {
		scheduledDaily = loadstate.DailyStress(planstore.SortSamples(in.Scheduled), in.Window)
	}
	scheduledTrace := loadstate.Trace(scheduledDaily, stateNow, in.Window, table.Load)

	// Score each goal against its projected state at the goal date.
	reports, demands, err := scoreGoals(in.Plan, models, idealTrace, stateNow, asOf, table, &clamps)
	if err != nil {
		return Output{}, err
	}

	assessments := make([]feasibility.Assessment, len(reports))
	goalScores := make([]scoring.GoalScore, len(reports))
	for i, r := range reports {
		assessments[i] = r.Feasibility
		goalScores[i] = r.Score
	}
	planFeas := feasibility.AssessPlan(in.Plan.Goals, assessments, table.Tier, table.Feasibility)
	planScore := scoring.AggregatePlan(goalScores, table.Tier)

	weeklyBudget := prevWeekly * (1 + table.Boundary.RampHardPct)
	if weeklyBudget <= 0 {
		weeklyBudget = 70
	}
	planScore.Conflicts = scoring.DetectConflicts(in.Plan.Goals, demands, weeklyBudget, table.ConflictMateriality)

	// Safety views: the ideal plan under both cap regimes, plus what the
	// realized trajectory already did.
	pair := boundary.EvaluatePair(idealTrace, table.Boundary, table.Load.HighLoadThreshold, in.Plan.Config)
	actualReport := boundary.Evaluate(actualTrace, table.Boundary, table.Load.HighLoadThreshold, nil)

	adh := adherence.Assess(in.Window.Start, actualDaily, scheduledDaily, idealDaily, table.Adherence)

	readiness, flags := readinessVerdict(planScore.Score, finalBalance(actualTrace, stateNow), planFeas.Band, in.Plan.Config, table, &clamps)

	out := Output{
		SchemaVersion:   SchemaVersion,
		PolicyVersion:   table.Version,
		WindowStart:     in.Window.Start.Format(planstore.DateFormat),
		WindowEnd:       in.Window.End.Format(planstore.DateFormat),
		Timezone:        in.Window.Timezone,
		Mode:            string(in.Plan.Config.Mode),
		Style:           style,
		Readiness:       readiness,
		RiskFlags:       flags,
		PlanScore:       planScore.Score,
		PlanFeasibility: planFeas,
		Goals:           reports,
		Conflicts:       planScore.Conflicts,
		Ideal:           toSeries(idealTrace),
		Scheduled:       toSeries(scheduledTrace),
		Actual:          toSeries(actualTrace),
		Boundary:        pair,
		ActualBoundary:  actualReport,
		Plan:            plan,
		Adherence:       adh,
		Clamps:          clamps,
	}
	roundOutput(&out, table.Decimals)
	return out, nil
}

// estimateModels fits one capability model per plan category, in sorted
// category order so map iteration never leaks into the output.
func estimateModels(plan planstore.Plan, efforts []planstore.Effort, profile planstore.Profile, asOf time.Time, pol policy.CapabilityPolicy) map[string]capability.Model {
	categories := map[string]bool{}
	for _, g := range plan.Goals {
		categories[g.Category] = true
	}
	names := make([]string, 0, len(categories))
	for c := range categories {
		names = append(names, c)
	}
	sort.Strings(names)

	models := make(map[string]capability.Model, len(names))
	for _, c := range names {
		models[c] = capability.Estimate(c, efforts, profile, asOf, pol)
	}
	return models
}

// goalEvaluator builds the solver's goal-attainment term: rescore the plan
// assuming the simulated horizon's final chronic load.
func goalEvaluator(plan planstore.Plan, models map[string]capability.Model, now loadstate.State, table policy.Table) solver.Evaluator {
	return func(weekly []float64, states []loadstate.State) float64 {
		if len(states) == 0 {
			return 0
		}
		final := states[len(states)-1]
		var goalScores []scoring.GoalScore
		for _, g := range plan.Goals {
			model := projectedModel(models[g.Category], now.Chronic, final.Chronic, table.Capability)
			state := scoring.ProjectedState{Model: model, Balance: final.Balance()}
			var targets []scoring.TargetScore
			for _, t := range g.Targets {
				ts, err := scoring.ScoreTarget(g, t, state, table.Satisfaction)
				if err != nil {
					continue
				}
				targets = append(targets, ts)
			}
			goalScores = append(goalScores, scoring.AggregateGoal(g, targets))
		}
		return scoring.AggregatePlan(goalScores, table.Tier).Score
	}
}

// earliestGoalEvaluator scores attainment of the earliest-dated goal alone,
// for the solver's goal-date tie-break. Date ties resolve by goal id so the
// pick is deterministic.
func earliestGoalEvaluator(plan planstore.Plan, models map[string]capability.Model, now loadstate.State, table policy.Table) solver.Evaluator {
	var pick *planstore.Goal
	for i := range plan.Goals {
		g := &plan.Goals[i]
		if pick == nil || g.TargetDate.Before(pick.TargetDate) ||
			(g.TargetDate.Equal(pick.TargetDate) && g.ID < pick.ID) {
			pick = g
		}
	}
	if pick == nil {
		return nil
	}
	goal := *pick
	return func(weekly []float64, states []loadstate.State) float64 {
		if len(states) == 0 {
			return 0
		}
		final := states[len(states)-1]
		model := projectedModel(models[goal.Category], now.Chronic, final.Chronic, table.Capability)
		state := scoring.ProjectedState{Model: model, Balance: final.Balance()}
		var targets []scoring.TargetScore
		for _, t := range goal.Targets {
			ts, err := scoring.ScoreTarget(goal, t, state, table.Satisfaction)
			if err != nil {
				continue
			}
			targets = append(targets, ts)
		}
		return scoring.AggregateGoal(goal, targets).Score
	}
}

// scoreGoals evaluates every goal at its target date against the ideal
// trajectory, and collects feasibility assessments and load demands.
func scoreGoals(plan planstore.Plan, models map[string]capability.Model, ideal []loadstate.Point, now loadstate.State, asOf time.Time, table policy.Table, clamps *[]ClampNote) ([]GoalReport, []scoring.LoadDemand, error) {
	reports := make([]GoalReport, 0, len(plan.Goals))
	demands := make([]scoring.LoadDemand, 0, len(plan.Goals))

	for _, g := range plan.Goals {
		base := models[g.Category]
		at := stateAt(ideal, now, g.TargetDate)
		model := projectedModel(base, now.Chronic, at.Chronic, table.Capability)
		projected := scoring.ProjectedState{Model: model, Balance: at.Balance()}

		var targets []scoring.TargetScore
		for _, t := range g.Targets {
			ts, err := scoring.ScoreTarget(g, t, projected, table.Satisfaction)
			if err != nil {
				return nil, nil, fmt.Errorf("goal %s: %w", g.ID, err)
			}
			if ts.UnmetGap > 1 {
				*clamps = append(*clamps, ClampNote{
					Field:  fmt.Sprintf("goals.%s.targets.%s.unmet_gap", g.ID, t.ID),
					Value:  ts.UnmetGap,
					Bound:  1,
					Detail: "relative gap capped for display",
				})
				ts.UnmetGap = 1
			}
			targets = append(targets, ts)
		}

		assess := feasibility.AssessGoal(g, base, now, asOf, table.Boundary, table.Feasibility)
		reports = append(reports, GoalReport{
			GoalID:      g.ID,
			Name:        g.Name,
			Tier:        string(g.Tier),
			TargetDate:  g.TargetDate.Format(planstore.DateFormat),
			Score:       scoring.AggregateGoal(g, targets),
			Feasibility: assess,
		})
		demands = append(demands, scoring.LoadDemand{GoalID: g.ID, Weekly: assess.RequiredWeeklyLoad})
	}
	return reports, demands, nil
}

// CapReadiness names the feasibility-band readiness cap in config cap
// overrides. Only an explicit disable of this cap lifts it; risk-accepted
// mode alone keeps the cap in force.
const CapReadiness = "readiness_cap"

// readinessVerdict blends plan score and current freshness into 0-100, then
// applies the feasibility-band cap. The cap is lifted only by an accepted
// override disabling it by name, and the lift is always flagged; the flags
// list is never empty when a cap would have bound.
func readinessVerdict(planScore, bal float64, band feasibility.Band, cfg planstore.Config, table policy.Table, clamps *[]ClampNote) (Readiness, []string) {
	fresh := clamp01(0.5 + bal/60)
	uncapped := math.Round(100 * (0.7*clamp01(planScore) + 0.3*fresh))
	limit := bandCap(band, table.Readiness)

	capDisabled := false
	var flags []string
	if cfg.Mode == planstore.ModeRiskAccepted {
		flags = append(flags, "risk_accepted_mode")
		for _, o := range cfg.Overrides {
			flags = append(flags, fmt.Sprintf("cap_%s_%s", o.Cap, o.Action))
			if o.Cap == CapReadiness && o.Action == planstore.OverrideDisable {
				capDisabled = true
			}
		}
		if feasibility.Severity(band) >= feasibility.Severity(feasibility.BandAggressive) {
			flags = append(flags, "feasibility_"+string(band))
		}
	}

	r := Readiness{Score: uncapped, Uncapped: uncapped}
	if uncapped > limit {
		if capDisabled {
			r.CapLifted = true
			flags = append(flags, "readiness_cap_lifted")
		} else {
			r.Score = limit
			r.Capped = true
			*clamps = append(*clamps, ClampNote{
				Field:  "readiness.score",
				Value:  uncapped,
				Bound:  limit,
				Detail: "capped by feasibility band " + string(band),
			})
		}
	}
	sort.Strings(flags)
	return r, flags
}

func bandCap(band feasibility.Band, pol policy.ReadinessPolicy) float64 {
	switch band {
	case feasibility.BandFeasible:
		return pol.CapFeasible
	case feasibility.BandStretch:
		return pol.CapStretch
	case feasibility.BandAggressive:
		return pol.CapAggressive
	case feasibility.BandNearlyImpossible:
		return pol.CapNearlyImpossible
	default:
		return pol.CapInfeasible
	}
}

// spreadActions turns the committed weekly loads into a daily series over
// the window, skipping hard rest days. Weeks past the solver horizon hold
// the last committed load.
func spreadActions(actions []solver.Action, window planstore.Window, cfg planstore.Config) []float64 {
	days := window.Days()
	out := make([]float64, days)
	if len(actions) == 0 {
		return out
	}

	rest := map[time.Weekday]bool{}
	for _, name := range cfg.HardRestDays {
		if wd, ok := weekdayByName(name); ok {
			rest[wd] = true
		}
	}

	for d := 0; d < days; d++ {
		week := d / 7
		if week >= len(actions) {
			week = len(actions) - 1
		}
		weekly := actions[week].WeeklyLoad

		// Count active days in this calendar week slice of the window.
		lo := (d / 7) * 7
		hi := lo + 7
		if hi > days {
			hi = days
		}
		active := 0
		for i := lo; i < hi; i++ {
			if !rest[window.Start.AddDate(0, 0, i).Weekday()] {
				active++
			}
		}
		if active == 0 {
			continue
		}
		if !rest[window.Start.AddDate(0, 0, d).Weekday()] {
			out[d] = weekly * float64(hi-lo) / 7 / float64(active)
		}
	}
	return out
}

func weekdayByName(name string) (time.Weekday, bool) {
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if name == wdLower(wd) {
			return wd, true
		}
	}
	return time.Sunday, false
}

func wdLower(wd time.Weekday) string {
	switch wd {
	case time.Sunday:
		return "sunday"
	case time.Monday:
		return "monday"
	case time.Tuesday:
		return "tuesday"
	case time.Wednesday:
		return "wednesday"
	case time.Thursday:
		return "thursday"
	case time.Friday:
		return "friday"
	default:
		return "saturday"
	}
}

// projectedModel scales a capability model by the relative chronic-load
// change between now and the projected date.
func projectedModel(m capability.Model, chronicNow, chronicFuture float64, pol policy.CapabilityPolicy) capability.Model {
	base := chronicNow
	if base < 20 {
		base = 20
	}
	rel := (chronicFuture - chronicNow) / base
	if rel > 1 {
		rel = 1
	}
	if rel < -0.5 {
		rel = -0.5
	}
	factor := 1 + pol.TrainingGain*rel
	out := m
	out.Asymptote *= factor
	out.Capacity *= factor
	return out
}

// stateAt reads the trajectory state on a calendar date: the last point at
// or before the date, the entry state before the window, the final point
// after it.
func stateAt(points []loadstate.Point, entry loadstate.State, date time.Time) loadstate.State {
	state := entry
	for _, p := range points {
		if p.Date.After(date) {
			break
		}
		state = loadstate.State{Chronic: p.Chronic, Acute: p.Acute}
	}
	return state
}

func finalBalance(points []loadstate.Point, entry loadstate.State) float64 {
	if len(points) == 0 {
		return entry.Balance()
	}
	return points[len(points)-1].Balance
}

// trailingWeekly sums realized stress over the seven days before asOf.
func trailingWeekly(samples []planstore.LoadSample, asOf time.Time) float64 {
	start := asOf.AddDate(0, 0, -7)
	var sum float64
	for _, s := range samples {
		if s.Date.Before(start) || !s.Date.Before(asOf) {
			continue
		}
		sum += s.Stress
	}
	return sum
}

func toSeries(points []loadstate.Point) []SeriesPoint {
	out := make([]SeriesPoint, len(points))
	for i, p := range points {
		out[i] = SeriesPoint{
			Date:    p.Date.Format(planstore.DateFormat),
			Stress:  p.Stress,
			Chronic: p.Chronic,
			Acute:   p.Acute,
			Balance: p.Balance,
		}
	}
	return out
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
