package planstore

import (
	"fmt"
	"math"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidationError captures a single field-specific validation issue.
type ValidationError struct {
	File    string
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.File, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.File, e.Field, e.Message)
}

// ValidationErrors aggregates multiple validation problems. Validation never
// partially applies: any entry here means no computation started.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, e.Error())
	}
	return strings.Join(parts, "\n")
}

type rawGoalDocument struct {
	Goals []rawGoal `yaml:"goals"`
}

type rawGoal struct {
	ID         string      `yaml:"goal_id"`
	Name       string      `yaml:"name"`
	TargetDate string      `yaml:"target_date"`
	Tier       string      `yaml:"tier"`
	Weight     *float64    `yaml:"weight"`
	Category   string      `yaml:"category"`
	Targets    []rawTarget `yaml:"targets"`
}

type rawTarget struct {
	ID             string   `yaml:"target_id"`
	Kind           string   `yaml:"kind"`
	Value          *float64 `yaml:"value"`
	Tolerance      *float64 `yaml:"tolerance"`
	Weight         *float64 `yaml:"weight"`
	SplitID        string   `yaml:"split_id"`
	DistanceMeters *float64 `yaml:"distance_meters"`
}

type rawConfig struct {
	Mode               string             `yaml:"mode"`
	RiskAcceptance     *rawRiskAcceptance `yaml:"risk_acceptance"`
	Style              string             `yaml:"style"`
	Overrides          []rawCapOverride   `yaml:"cap_overrides"`
	MinSessionsPerWeek *int               `yaml:"min_sessions_per_week"`
	HardRestDays       []string           `yaml:"hard_rest_days"`
}

type rawRiskAcceptance struct {
	Affirmed   *bool  `yaml:"affirmed"`
	AffirmedBy string `yaml:"affirmed_by"`
	AffirmedAt string `yaml:"affirmed_at"`
	Note       string `yaml:"note"`
}

type rawCapOverride struct {
	Cap    string `yaml:"cap"`
	Action string `yaml:"action"`
}

// Bounds for numeric target values, by kind. Values outside these are
// rejected, never silently clamped.
const (
	maxFinishTimeSeconds = 48 * 3600
	maxPaceMPS           = 15
	maxPowerWatts        = 2500
	maxDistanceMeters    = 500_000
	maxDailyStress       = 1000
	maxEffortSeconds     = 12 * 3600
)

// ParseGoalDocument unmarshals and validates a YAML goal document.
func ParseGoalDocument(data []byte, source string) ([]Goal, error) {
	var raw rawGoalDocument
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, ValidationErrors{{File: source, Field: "yaml", Message: err.Error()}}
	}

	var errs ValidationErrors
	if len(raw.Goals) == 0 {
		errs = append(errs, ValidationError{File: source, Field: "goals", Message: "must contain at least one goal"})
	}

	seen := make(map[string]struct{})
	var goals []Goal
	for idx, rg := range raw.Goals {
		path := fmt.Sprintf("goals[%d]", idx)
		goal, goalErrs := validateGoal(rg, path, source)
		errs = append(errs, goalErrs...)
		if goal.ID != "" {
			if _, dup := seen[goal.ID]; dup {
				errs = append(errs, ValidationError{
					File:    source,
					Field:   path + ".goal_id",
					Message: fmt.Sprintf("duplicate goal_id %q", goal.ID),
				})
			} else {
				seen[goal.ID] = struct{}{}
			}
		}
		goals = append(goals, goal)
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return goals, nil
}

func validateGoal(raw rawGoal, fieldPath, source string) (Goal, ValidationErrors) {
	var errs ValidationErrors

	if strings.TrimSpace(raw.ID) == "" {
		errs = append(errs, ValidationError{File: source, Field: fieldPath + ".goal_id", Message: "goal_id is required"})
	}
	if strings.TrimSpace(raw.Name) == "" {
		errs = append(errs, ValidationError{File: source, Field: fieldPath + ".name", Message: "name is required"})
	}

	tier := Tier(strings.TrimSpace(raw.Tier))
	switch tier {
	case TierA, TierB, TierC:
	default:
		errs = append(errs, ValidationError{
			File:    source,
			Field:   fieldPath + ".tier",
			Message: fmt.Sprintf("invalid tier %q (expected A, B, or C)", raw.Tier),
		})
	}

	var targetDate time.Time
	if strings.TrimSpace(raw.TargetDate) == "" {
		errs = append(errs, ValidationError{File: source, Field: fieldPath + ".target_date", Message: "target_date is required"})
	} else {
		parsed, err := time.Parse(DateFormat, strings.TrimSpace(raw.TargetDate))
		if err != nil {
			errs = append(errs, ValidationError{File: source, Field: fieldPath + ".target_date", Message: "must be a YYYY-MM-DD date"})
		} else {
			targetDate = parsed
		}
	}

	weight := 1.0
	if raw.Weight != nil {
		weight = *raw.Weight
		if !isFinite(weight) || weight <= 0 {
			errs = append(errs, ValidationError{File: source, Field: fieldPath + ".weight", Message: "must be a finite positive number"})
		}
	}

	if strings.TrimSpace(raw.Category) == "" {
		errs = append(errs, ValidationError{File: source, Field: fieldPath + ".category", Message: "category is required"})
	}

	if len(raw.Targets) == 0 {
		errs = append(errs, ValidationError{File: source, Field: fieldPath + ".targets", Message: "must contain at least one target"})
	}

	seen := make(map[string]struct{})
	var targets []GoalTarget
	for tIdx, rt := range raw.Targets {
		tPath := fmt.Sprintf("%s.targets[%d]", fieldPath, tIdx)
		target, tErrs := validateTarget(rt, tPath, source)
		errs = append(errs, tErrs...)
		if target.ID != "" {
			if _, dup := seen[target.ID]; dup {
				errs = append(errs, ValidationError{
					File:    source,
					Field:   tPath + ".target_id",
					Message: fmt.Sprintf("duplicate target_id %q within goal", target.ID),
				})
			} else {
				seen[target.ID] = struct{}{}
			}
		}
		targets = append(targets, target)
	}

	return Goal{
		ID:         strings.TrimSpace(raw.ID),
		Name:       strings.TrimSpace(raw.Name),
		TargetDate: targetDate,
		Tier:       tier,
		Weight:     weight,
		Category:   strings.TrimSpace(raw.Category),
		Targets:    targets,
	}, errs
}

func validateTarget(raw rawTarget, fieldPath, source string) (GoalTarget, ValidationErrors) {
	var errs ValidationErrors

	if strings.TrimSpace(raw.ID) == "" {
		errs = append(errs, ValidationError{File: source, Field: fieldPath + ".target_id", Message: "target_id is required"})
	}

	kind := TargetKind(strings.TrimSpace(raw.Kind))
	switch kind {
	case KindFinishTime, KindPace, KindPower, KindSplit, KindCompletionProbability:
	default:
		errs = append(errs, ValidationError{
			File:    source,
			Field:   fieldPath + ".kind",
			Message: fmt.Sprintf("invalid kind %q", raw.Kind),
		})
		return GoalTarget{ID: strings.TrimSpace(raw.ID), Kind: kind}, errs
	}

	var value float64
	if raw.Value == nil {
		errs = append(errs, ValidationError{File: source, Field: fieldPath + ".value", Message: "value is required"})
	} else {
		value = *raw.Value
		if !isFinite(value) {
			errs = append(errs, ValidationError{File: source, Field: fieldPath + ".value", Message: "must be finite"})
		} else if msg := valueBoundError(kind, value); msg != "" {
			errs = append(errs, ValidationError{File: source, Field: fieldPath + ".value", Message: msg})
		}
	}

	if raw.Tolerance != nil {
		tol := *raw.Tolerance
		if !isFinite(tol) || tol < 0 || tol > 0.5 {
			errs = append(errs, ValidationError{File: source, Field: fieldPath + ".tolerance", Message: "must be between 0 and 0.5"})
		}
	}
	if raw.Weight != nil {
		w := *raw.Weight
		if !isFinite(w) || w <= 0 {
			errs = append(errs, ValidationError{File: source, Field: fieldPath + ".weight", Message: "must be a finite positive number"})
		}
	}

	var distance float64
	if raw.DistanceMeters != nil {
		distance = *raw.DistanceMeters
		if !isFinite(distance) || distance <= 0 || distance > maxDistanceMeters {
			errs = append(errs, ValidationError{File: source, Field: fieldPath + ".distance_meters", Message: "must be a positive distance within bounds"})
		}
	}

	switch kind {
	case KindFinishTime:
		if raw.DistanceMeters == nil {
			errs = append(errs, ValidationError{File: source, Field: fieldPath + ".distance_meters", Message: "finish_time targets require distance_meters"})
		}
	case KindSplit:
		if strings.TrimSpace(raw.SplitID) == "" {
			errs = append(errs, ValidationError{File: source, Field: fieldPath + ".split_id", Message: "split targets require split_id"})
		}
		if raw.DistanceMeters == nil {
			errs = append(errs, ValidationError{File: source, Field: fieldPath + ".distance_meters", Message: "split targets require distance_meters"})
		}
	}

	return GoalTarget{
		ID:             strings.TrimSpace(raw.ID),
		Kind:           kind,
		Value:          value,
		Tolerance:      raw.Tolerance,
		Weight:         raw.Weight,
		SplitID:        strings.TrimSpace(raw.SplitID),
		DistanceMeters: distance,
	}, errs
}

func valueBoundError(kind TargetKind, value float64) string {
	switch kind {
	case KindFinishTime, KindSplit:
		if value <= 0 || value > maxFinishTimeSeconds {
			return fmt.Sprintf("must be between 0 and %d seconds", maxFinishTimeSeconds)
		}
	case KindPace:
		if value <= 0 || value > maxPaceMPS {
			return fmt.Sprintf("must be between 0 and %d m/s", maxPaceMPS)
		}
	case KindPower:
		if value <= 0 || value > maxPowerWatts {
			return fmt.Sprintf("must be between 0 and %d watts", maxPowerWatts)
		}
	case KindCompletionProbability:
		if value <= 0 || value > 1 {
			return "must be between 0 and 1"
		}
	}
	return ""
}

// ParseConfig unmarshals and validates a plan configuration document.
func ParseConfig(data []byte, source string) (Config, error) {
	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Config{}, ValidationErrors{{File: source, Field: "yaml", Message: err.Error()}}
	}

	var errs ValidationErrors

	mode := Mode(strings.TrimSpace(raw.Mode))
	switch mode {
	case "":
		mode = ModeSafeDefault
	case ModeSafeDefault, ModeRiskAccepted:
	default:
		errs = append(errs, ValidationError{
			File:    source,
			Field:   "mode",
			Message: fmt.Sprintf("invalid mode %q (expected safe_default or risk_accepted)", raw.Mode),
		})
	}

	var acceptance *RiskAcceptance
	if raw.RiskAcceptance != nil {
		ra := RiskAcceptance{
			AffirmedBy: strings.TrimSpace(raw.RiskAcceptance.AffirmedBy),
			Note:       strings.TrimSpace(raw.RiskAcceptance.Note),
		}
		if raw.RiskAcceptance.Affirmed != nil {
			ra.Affirmed = *raw.RiskAcceptance.Affirmed
		}
		if ts := strings.TrimSpace(raw.RiskAcceptance.AffirmedAt); ts != "" {
			parsed, err := time.Parse(time.RFC3339, ts)
			if err != nil {
				parsed, err = time.Parse(DateFormat, ts)
			}
			if err != nil {
				errs = append(errs, ValidationError{File: source, Field: "risk_acceptance.affirmed_at", Message: "must be ISO-8601 date or datetime"})
			} else {
				ra.AffirmedAt = parsed
			}
		}
		acceptance = &ra
	}

	// risk_accepted without an affirmed record is a validation error, never a
	// silent downgrade to safe mode.
	if mode == ModeRiskAccepted {
		if acceptance == nil {
			errs = append(errs, ValidationError{File: source, Field: "risk_acceptance", Message: "risk_accepted mode requires a risk_acceptance record"})
		} else if !acceptance.Affirmed {
			errs = append(errs, ValidationError{File: source, Field: "risk_acceptance.affirmed", Message: "risk_accepted mode requires an affirmed acceptance"})
		}
	}

	var overrides []CapOverride
	for i, ro := range raw.Overrides {
		path := fmt.Sprintf("cap_overrides[%d]", i)
		capName := strings.TrimSpace(ro.Cap)
		action := strings.TrimSpace(ro.Action)
		if capName == "" {
			errs = append(errs, ValidationError{File: source, Field: path + ".cap", Message: "cap is required"})
		}
		if action != OverrideSoften && action != OverrideDisable {
			errs = append(errs, ValidationError{File: source, Field: path + ".action", Message: "action must be soften or disable"})
		}
		if mode != ModeRiskAccepted {
			errs = append(errs, ValidationError{File: source, Field: path, Message: "cap overrides require risk_accepted mode"})
		}
		overrides = append(overrides, CapOverride{Cap: capName, Action: action})
	}

	minSessions := 0
	if raw.MinSessionsPerWeek != nil {
		minSessions = *raw.MinSessionsPerWeek
		if minSessions < 0 || minSessions > 7 {
			errs = append(errs, ValidationError{File: source, Field: "min_sessions_per_week", Message: "must be between 0 and 7"})
		}
	}

	var restDays []string
	restSeen := make(map[string]struct{})
	for i, d := range raw.HardRestDays {
		day := strings.ToLower(strings.TrimSpace(d))
		if !validWeekday(day) {
			errs = append(errs, ValidationError{
				File:    source,
				Field:   fmt.Sprintf("hard_rest_days[%d]", i),
				Message: fmt.Sprintf("invalid weekday %q", d),
			})
			continue
		}
		if _, dup := restSeen[day]; dup {
			continue
		}
		restSeen[day] = struct{}{}
		restDays = append(restDays, day)
	}

	// Contradictory availability: sessions cannot outnumber trainable days.
	if minSessions > 7-len(restDays) {
		errs = append(errs, ValidationError{
			File:    source,
			Field:   "min_sessions_per_week",
			Message: fmt.Sprintf("%d sessions cannot fit into %d non-rest days", minSessions, 7-len(restDays)),
		})
	}

	if len(errs) > 0 {
		return Config{}, errs
	}

	return Config{
		Mode:               mode,
		RiskAcceptance:     acceptance,
		Style:              strings.TrimSpace(raw.Style),
		Overrides:          overrides,
		MinSessionsPerWeek: minSessions,
		HardRestDays:       restDays,
	}, nil
}

func validWeekday(day string) bool {
	switch day {
	case "monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday":
		return true
	}
	return false
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
