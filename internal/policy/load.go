package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// rawTable mirrors the YAML override document. Every field is optional;
// absent fields keep their Default() value.
type rawTable struct {
	Version  *int `yaml:"version"`
	Decimals *int `yaml:"decimals"`

	Tier struct {
		A *float64 `yaml:"a"`
		B *float64 `yaml:"b"`
		C *float64 `yaml:"c"`
	} `yaml:"tier_weights"`

	Load struct {
		ChronicDays       *float64 `yaml:"chronic_days"`
		AcuteDays         *float64 `yaml:"acute_days"`
		HighLoadThreshold *float64 `yaml:"high_load_threshold"`
	} `yaml:"load"`

	Feasibility struct {
		PerfWeight          *float64 `yaml:"perf_weight"`
		LoadWeight          *float64 `yaml:"load_weight"`
		TimelineWeight      *float64 `yaml:"timeline_weight"`
		SparsityMax         *float64 `yaml:"sparsity_max"`
		FeasibleMax         *float64 `yaml:"feasible_max"`
		StretchMax          *float64 `yaml:"stretch_max"`
		AggressiveMax       *float64 `yaml:"aggressive_max"`
		NearlyImpossibleMax *float64 `yaml:"nearly_impossible_max"`
	} `yaml:"feasibility"`

	Boundary struct {
		RampHardPct            *float64 `yaml:"ramp_hard_pct"`
		RampCautionPct         *float64 `yaml:"ramp_caution_pct"`
		MaxConsecutiveHighDays *int     `yaml:"max_consecutive_high_days"`
		BalanceHardFloor       *float64 `yaml:"balance_hard_floor"`
		BalanceCautionFloor    *float64 `yaml:"balance_caution_floor"`
	} `yaml:"boundary"`

	Objective struct {
		Goal       *float64 `yaml:"goal"`
		Readiness  *float64 `yaml:"readiness"`
		Risk       *float64 `yaml:"risk"`
		Volatility *float64 `yaml:"volatility"`
		Churn      *float64 `yaml:"churn"`
		Monotony   *float64 `yaml:"monotony"`
		Strain     *float64 `yaml:"strain"`
	} `yaml:"objective"`

	ConflictMateriality *float64 `yaml:"conflict_materiality"`
}

// LoadFile reads a YAML policy override and applies it on top of Default().
// An empty path returns the defaults unchanged.
func LoadFile(path string) (Table, error) {
	table := Default()
	if path == "" {
		return table, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Table{}, fmt.Errorf("read policy file: %w", err)
	}
	return Apply(table, data, path)
}

// Apply overlays a YAML override document onto a base table.
func Apply(base Table, data []byte, source string) (Table, error) {
	var raw rawTable
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Table{}, fmt.Errorf("%s: parse policy overrides: %w", source, err)
	}
	if raw.Version != nil && *raw.Version != Version {
		return Table{}, fmt.Errorf("%s: unsupported policy version %d (engine speaks %d)", source, *raw.Version, Version)
	}

	setInt(&base.Decimals, raw.Decimals)

	setFloat(&base.Tier.A, raw.Tier.A)
	setFloat(&base.Tier.B, raw.Tier.B)
	setFloat(&base.Tier.C, raw.Tier.C)

	setFloat(&base.Load.ChronicDays, raw.Load.ChronicDays)
	setFloat(&base.Load.AcuteDays, raw.Load.AcuteDays)
	setFloat(&base.Load.HighLoadThreshold, raw.Load.HighLoadThreshold)

	setFloat(&base.Feasibility.PerfWeight, raw.Feasibility.PerfWeight)
	setFloat(&base.Feasibility.LoadWeight, raw.Feasibility.LoadWeight)
	setFloat(&base.Feasibility.TimelineWeight, raw.Feasibility.TimelineWeight)
	setFloat(&base.Feasibility.SparsityMax, raw.Feasibility.SparsityMax)
	setFloat(&base.Feasibility.FeasibleMax, raw.Feasibility.FeasibleMax)
	setFloat(&base.Feasibility.StretchMax, raw.Feasibility.StretchMax)
	setFloat(&base.Feasibility.AggressiveMax, raw.Feasibility.AggressiveMax)
	setFloat(&base.Feasibility.NearlyImpossibleMax, raw.Feasibility.NearlyImpossibleMax)

	setFloat(&base.Boundary.RampHardPct, raw.Boundary.RampHardPct)
	setFloat(&base.Boundary.RampCautionPct, raw.Boundary.RampCautionPct)
	setInt(&base.Boundary.MaxConsecutiveHighDays, raw.Boundary.MaxConsecutiveHighDays)
	setFloat(&base.Boundary.BalanceHardFloor, raw.Boundary.BalanceHardFloor)
	setFloat(&base.Boundary.BalanceCautionFloor, raw.Boundary.BalanceCautionFloor)

	setFloat(&base.Objective.Goal, raw.Objective.Goal)
	setFloat(&base.Objective.Readiness, raw.Objective.Readiness)
	setFloat(&base.Objective.Risk, raw.Objective.Risk)
	setFloat(&base.Objective.Volatility, raw.Objective.Volatility)
	setFloat(&base.Objective.Churn, raw.Objective.Churn)
	setFloat(&base.Objective.Monotony, raw.Objective.Monotony)
	setFloat(&base.Objective.Strain, raw.Objective.Strain)

	setFloat(&base.ConflictMateriality, raw.ConflictMateriality)

	if err := validate(base, source); err != nil {
		return Table{}, err
	}
	return base, nil
}

func validate(t Table, source string) error {
	if t.Decimals < 0 || t.Decimals > 12 {
		return fmt.Errorf("%s: decimals must be between 0 and 12", source)
	}
	if !(t.Tier.A > t.Tier.B && t.Tier.B > t.Tier.C && t.Tier.C > 0) {
		return fmt.Errorf("%s: tier weights must satisfy a > b > c > 0", source)
	}
	if t.Load.ChronicDays <= t.Load.AcuteDays {
		return fmt.Errorf("%s: chronic_days must exceed acute_days", source)
	}
	if !(t.Feasibility.FeasibleMax < t.Feasibility.StretchMax &&
		t.Feasibility.StretchMax < t.Feasibility.AggressiveMax &&
		t.Feasibility.AggressiveMax < t.Feasibility.NearlyImpossibleMax) {
		return fmt.Errorf("%s: feasibility band boundaries must be strictly increasing", source)
	}
	if t.Boundary.RampCautionPct > t.Boundary.RampHardPct {
		return fmt.Errorf("%s: ramp_caution_pct cannot exceed ramp_hard_pct", source)
	}
	if t.Boundary.BalanceCautionFloor < t.Boundary.BalanceHardFloor {
		return fmt.Errorf("%s: balance_caution_floor cannot be below balance_hard_floor", source)
	}
	return nil
}

func setFloat(dst *float64, src *float64) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}
