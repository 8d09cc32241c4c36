package planstore

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type rawActivityDocument struct {
	Activities []rawActivity `yaml:"activities"`
}

type rawActivity struct {
	Date     string   `yaml:"date"`
	Stress   *float64 `yaml:"stress"`
	Category string   `yaml:"category"`
}

type rawEffortDocument struct {
	Efforts []rawEffort `yaml:"efforts"`
}

type rawEffort struct {
	Category        string   `yaml:"category"`
	DurationSeconds *float64 `yaml:"duration_seconds"`
	Output          *float64 `yaml:"output"`
	Date            string   `yaml:"date"`
}

type rawProfile struct {
	WeightKG *float64 `yaml:"weight_kg"`
	LTHR     *float64 `yaml:"lthr"`
}

// ParseActivityDocument unmarshals and validates a realized-activity
// document. The engine reads the resulting sequence; it never mutates it.
func ParseActivityDocument(data []byte, source string) ([]LoadSample, error) {
	var raw rawActivityDocument
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, ValidationErrors{{File: source, Field: "yaml", Message: err.Error()}}
	}

	var errs ValidationErrors
	var samples []LoadSample
	for i, ra := range raw.Activities {
		path := fmt.Sprintf("activities[%d]", i)
		var sample LoadSample

		date, err := time.Parse(DateFormat, strings.TrimSpace(ra.Date))
		if err != nil {
			errs = append(errs, ValidationError{File: source, Field: path + ".date", Message: "must be a YYYY-MM-DD date"})
		} else {
			sample.Date = date
		}

		if ra.Stress == nil {
			errs = append(errs, ValidationError{File: source, Field: path + ".stress", Message: "stress is required"})
		} else if !isFinite(*ra.Stress) || *ra.Stress < 0 || *ra.Stress > maxDailyStress {
			errs = append(errs, ValidationError{
				File:    source,
				Field:   path + ".stress",
				Message: fmt.Sprintf("must be between 0 and %d", maxDailyStress),
			})
		} else {
			sample.Stress = *ra.Stress
		}

		if strings.TrimSpace(ra.Category) == "" {
			errs = append(errs, ValidationError{File: source, Field: path + ".category", Message: "category is required"})
		}
		sample.Category = strings.TrimSpace(ra.Category)

		samples = append(samples, sample)
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return samples, nil
}

// ParseEffortDocument unmarshals and validates best-effort evidence.
// Sparse coverage is not an error here; sparsity is handled downstream by
// confidence degradation.
func ParseEffortDocument(data []byte, source string) ([]Effort, error) {
	var raw rawEffortDocument
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, ValidationErrors{{File: source, Field: "yaml", Message: err.Error()}}
	}

	var errs ValidationErrors
	var efforts []Effort
	for i, re := range raw.Efforts {
		path := fmt.Sprintf("efforts[%d]", i)
		var effort Effort

		if strings.TrimSpace(re.Category) == "" {
			errs = append(errs, ValidationError{File: source, Field: path + ".category", Message: "category is required"})
		}
		effort.Category = strings.TrimSpace(re.Category)

		if re.DurationSeconds == nil {
			errs = append(errs, ValidationError{File: source, Field: path + ".duration_seconds", Message: "duration_seconds is required"})
		} else if !isFinite(*re.DurationSeconds) || *re.DurationSeconds <= 0 || *re.DurationSeconds > maxEffortSeconds {
			errs = append(errs, ValidationError{
				File:    source,
				Field:   path + ".duration_seconds",
				Message: fmt.Sprintf("must be between 0 and %d seconds", maxEffortSeconds),
			})
		} else {
			effort.DurationSeconds = *re.DurationSeconds
		}

		if re.Output == nil {
			errs = append(errs, ValidationError{File: source, Field: path + ".output", Message: "output is required"})
		} else if !isFinite(*re.Output) || *re.Output <= 0 {
			errs = append(errs, ValidationError{File: source, Field: path + ".output", Message: "must be a finite positive number"})
		} else {
			effort.Output = *re.Output
		}

		date, err := time.Parse(DateFormat, strings.TrimSpace(re.Date))
		if err != nil {
			errs = append(errs, ValidationError{File: source, Field: path + ".date", Message: "must be a YYYY-MM-DD date"})
		} else {
			effort.Date = date
		}

		efforts = append(efforts, effort)
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return efforts, nil
}

// ParseProfile unmarshals and validates the profile metric document. Only
// body weight and LTHR are read; no other profile fields exist here.
func ParseProfile(data []byte, source string) (Profile, error) {
	var raw rawProfile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Profile{}, ValidationErrors{{File: source, Field: "yaml", Message: err.Error()}}
	}

	var errs ValidationErrors
	var profile Profile

	if raw.WeightKG == nil {
		errs = append(errs, ValidationError{File: source, Field: "weight_kg", Message: "weight_kg is required"})
	} else if !isFinite(*raw.WeightKG) || *raw.WeightKG < 30 || *raw.WeightKG > 250 {
		errs = append(errs, ValidationError{File: source, Field: "weight_kg", Message: "must be between 30 and 250"})
	} else {
		profile.WeightKG = *raw.WeightKG
	}

	if raw.LTHR == nil {
		errs = append(errs, ValidationError{File: source, Field: "lthr", Message: "lthr is required"})
	} else if !isFinite(*raw.LTHR) || *raw.LTHR < 80 || *raw.LTHR > 220 {
		errs = append(errs, ValidationError{File: source, Field: "lthr", Message: "must be between 80 and 220"})
	} else {
		profile.LTHR = *raw.LTHR
	}

	if len(errs) > 0 {
		return Profile{}, errs
	}
	return profile, nil
}
