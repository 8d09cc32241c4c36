package policy

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultTableIsValid(t *testing.T) {
	table := Default()
	if err := validate(table, "defaults"); err != nil {
		t.Fatalf("default table invalid: %v", err)
	}
	if table.Version != Version {
		t.Fatalf("version = %d, want %d", table.Version, Version)
	}
	if table.Load.ChronicDays <= table.Load.AcuteDays {
		t.Fatalf("chronic %v must exceed acute %v", table.Load.ChronicDays, table.Load.AcuteDays)
	}
}

func TestProfileFallsBackToBalanced(t *testing.T) {
	table := Default()
	got := table.Profile("no-such-style")
	want := table.Solver.Profiles[StyleBalanced]
	if got != want {
		t.Fatalf("unknown style profile = %+v, want balanced %+v", got, want)
	}
	if table.Profile(StyleOutcomeFirst).HorizonWeeks <= want.HorizonWeeks {
		t.Fatal("outcome_first should plan a longer horizon than balanced")
	}
}

func TestApplyOverridesSingleField(t *testing.T) {
	base := Default()
	table, err := Apply(base, []byte("boundary:\n  ramp_hard_pct: 0.2\n"), "test")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if table.Boundary.RampHardPct != 0.2 {
		t.Fatalf("ramp_hard_pct = %v, want 0.2", table.Boundary.RampHardPct)
	}
	if table.Boundary.RampCautionPct != base.Boundary.RampCautionPct {
		t.Fatal("untouched field changed")
	}
	if table.Tier != base.Tier {
		t.Fatal("tier weights changed without an override")
	}
}

func TestApplyRejectsUnsupportedVersion(t *testing.T) {
	if _, err := Apply(Default(), []byte("version: 99\n"), "test"); err == nil {
		t.Fatal("expected version mismatch error")
	}
}

func TestApplyRejectsInvalidBands(t *testing.T) {
	doc := "feasibility:\n  stretch_max: 0.1\n"
	if _, err := Apply(Default(), []byte(doc), "test"); err == nil {
		t.Fatal("expected error for non-increasing band boundaries")
	}
}

func TestApplyRejectsCautionAboveHard(t *testing.T) {
	doc := "boundary:\n  ramp_caution_pct: 0.5\n"
	if _, err := Apply(Default(), []byte(doc), "test"); err == nil {
		t.Fatal("expected error for caution above hard ramp")
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yml")
	if err := os.WriteFile(path, []byte("conflict_materiality: 0.1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	table, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if table.ConflictMateriality != 0.1 {
		t.Fatalf("conflict_materiality = %v, want 0.1", table.ConflictMateriality)
	}

	empty, err := LoadFile("")
	if err != nil {
		t.Fatalf("load empty path: %v", err)
	}
	if empty.ConflictMateriality != Default().ConflictMateriality {
		t.Fatal("empty path should return defaults")
	}
}
