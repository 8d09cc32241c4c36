package audit

import (
	"path/filepath"
	"testing"
)

func TestRecordAndTail(t *testing.T) {
	logger := NewLogger(filepath.Join(t.TempDir(), "audit.sqlite"))

	id1, err := logger.Record(Run{
		InputHash: "aaa", PolicyVer: 1, Mode: "safe_default", Style: "balanced",
		Band: "feasible", Readiness: 88, SolverTier: "full_lattice", Evaluations: 54,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if id1 == "" {
		t.Fatal("record must assign an id")
	}
	id2, err := logger.Record(Run{
		InputHash: "bbb", PolicyVer: 1, Mode: "risk_accepted", Style: "outcome_first",
		Band: "aggressive", Readiness: 72, SolverTier: "reduced_lattice", Evaluations: 105,
	})
	if err != nil {
		t.Fatalf("record second: %v", err)
	}

	runs, err := logger.Tail(10)
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	if runs[0].InputHash != "bbb" && runs[0].ID != id2 {
		t.Fatalf("newest first, got %+v", runs[0])
	}
	if runs[1].Mode != "safe_default" || runs[1].Readiness != 88 {
		t.Fatalf("round trip lost fields: %+v", runs[1])
	}
}

func TestTailLimit(t *testing.T) {
	logger := NewLogger(filepath.Join(t.TempDir(), "audit.sqlite"))
	for i := 0; i < 5; i++ {
		if _, err := logger.Record(Run{InputHash: "h", Mode: "safe_default", Style: "balanced", Band: "feasible", SolverTier: "full_lattice"}); err != nil {
			t.Fatal(err)
		}
	}
	runs, err := logger.Tail(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
}
