package planstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// LoadPlanDir loads and validates a plan directory: config.yml plus one or
// more goal documents (*.yml). The returned plan is already canonicalized.
func LoadPlanDir(planDir string, decimals int) (Plan, error) {
	if planDir == "" {
		planDir = "plan"
	}

	configPath := filepath.Join(planDir, "config.yml")
	configData, err := os.ReadFile(configPath)
	if err != nil {
		return Plan{}, fmt.Errorf("read %s: %w", configPath, err)
	}
	config, err := ParseConfig(configData, configPath)
	if err != nil {
		return Plan{}, err
	}

	files, err := filepath.Glob(filepath.Join(planDir, "*.yml"))
	if err != nil {
		return Plan{}, fmt.Errorf("scan plan dir: %w", err)
	}
	sort.Strings(files)

	var errs ValidationErrors
	var goals []Goal
	for _, path := range files {
		// config.yml is configuration and scheduled.yml is the optional
		// planned-session document; neither holds goals.
		switch filepath.Base(path) {
		case "config.yml", "scheduled.yml":
			continue
		}
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return Plan{}, fmt.Errorf("read %s: %w", path, readErr)
		}
		docGoals, parseErr := ParseGoalDocument(data, path)
		if parseErr != nil {
			if ve, ok := parseErr.(ValidationErrors); ok {
				errs = append(errs, ve...)
				continue
			}
			return Plan{}, parseErr
		}
		goals = append(goals, docGoals...)
	}
	if len(errs) > 0 {
		return Plan{}, errs
	}
	if len(goals) == 0 {
		return Plan{}, fmt.Errorf("no goal documents found in %s", planDir)
	}

	if dupErrs := validateCrossDocumentGoalIDs(goals); len(dupErrs) > 0 {
		return Plan{}, dupErrs
	}

	plan := Plan{Config: config, Goals: goals}
	return Canonicalize(plan, decimals), nil
}

func validateCrossDocumentGoalIDs(goals []Goal) ValidationErrors {
	var errs ValidationErrors
	seen := make(map[string]struct{})
	for _, g := range goals {
		if g.ID == "" {
			continue
		}
		if _, dup := seen[g.ID]; dup {
			errs = append(errs, ValidationError{
				Field:   "goal_id",
				Message: fmt.Sprintf("goal_id %q defined in more than one document", g.ID),
			})
			continue
		}
		seen[g.ID] = struct{}{}
	}
	return errs
}

// LoadHistoryDir loads activities.yml, efforts.yml, and profile.yml from a
// history directory. Activities and efforts may be absent; the profile is
// required because it seeds the capability prior.
func LoadHistoryDir(historyDir string) ([]LoadSample, []Effort, Profile, error) {
	if historyDir == "" {
		historyDir = "history"
	}

	var samples []LoadSample
	activitiesPath := filepath.Join(historyDir, "activities.yml")
	if data, err := os.ReadFile(activitiesPath); err == nil {
		samples, err = ParseActivityDocument(data, activitiesPath)
		if err != nil {
			return nil, nil, Profile{}, err
		}
	} else if !os.IsNotExist(err) {
		return nil, nil, Profile{}, fmt.Errorf("read %s: %w", activitiesPath, err)
	}

	var efforts []Effort
	effortsPath := filepath.Join(historyDir, "efforts.yml")
	if data, err := os.ReadFile(effortsPath); err == nil {
		efforts, err = ParseEffortDocument(data, effortsPath)
		if err != nil {
			return nil, nil, Profile{}, err
		}
	} else if !os.IsNotExist(err) {
		return nil, nil, Profile{}, fmt.Errorf("read %s: %w", effortsPath, err)
	}

	profilePath := filepath.Join(historyDir, "profile.yml")
	data, err := os.ReadFile(profilePath)
	if err != nil {
		return nil, nil, Profile{}, fmt.Errorf("read %s: %w", profilePath, err)
	}
	profile, err := ParseProfile(data, profilePath)
	if err != nil {
		return nil, nil, Profile{}, err
	}

	return SortSamples(samples), SortEfforts(efforts), profile, nil
}
