package projection

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"traincast/internal/planstore"
)

// Encode marshals the payload in its canonical byte form: indented JSON,
// struct field order, trailing newline. Two runs over identical inputs
// produce identical bytes.
func Encode(out Output) ([]byte, error) {
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode projection: %w", err)
	}
	return append(data, '\n'), nil
}

// Hash is the hex SHA-256 of the canonical payload bytes, used as the run
// fingerprint in the audit log.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Diff renders a unified diff between two canonical payloads, empty when
// they match.
func Diff(fromName string, from []byte, toName string, to []byte) (string, error) {
	diff := difflib.UnifiedDiff{
		A:        strings.Split(string(from), "\n"),
		B:        strings.Split(string(to), "\n"),
		FromFile: fromName,
		ToFile:   toName,
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return "", fmt.Errorf("diff %s %s: %w", fromName, toName, err)
	}
	return text, nil
}

// roundOutput normalizes every float in the payload to the canonical
// precision before encoding.
func roundOutput(out *Output, decimals int) {
	r := func(v float64) float64 { return planstore.RoundHalfEven(v, decimals) }

	out.Readiness.Score = r(out.Readiness.Score)
	out.Readiness.Uncapped = r(out.Readiness.Uncapped)
	out.PlanScore = r(out.PlanScore)
	out.PlanFeasibility.Index = r(out.PlanFeasibility.Index)

	for i := range out.Goals {
		g := &out.Goals[i]
		g.Score.Score = r(g.Score.Score)
		for j := range g.Score.Targets {
			t := &g.Score.Targets[j]
			t.Satisfaction = r(t.Satisfaction)
			t.UnmetGap = r(t.UnmetGap)
			t.PredictedSeconds = r(t.PredictedSeconds)
		}
		f := &g.Feasibility
		f.Index = r(f.Index)
		f.PerfGap = r(f.PerfGap)
		f.LoadGap = r(f.LoadGap)
		f.TimelinePressure = r(f.TimelinePressure)
		f.SparsityPenalty = r(f.SparsityPenalty)
		f.RequiredWeeklyLoad = r(f.RequiredWeeklyLoad)
	}
	for i := range out.Conflicts {
		out.Conflicts[i].DeltaToA = r(out.Conflicts[i].DeltaToA)
		out.Conflicts[i].DeltaToB = r(out.Conflicts[i].DeltaToB)
	}

	roundSeries(out.Ideal, r)
	roundSeries(out.Scheduled, r)
	roundSeries(out.Actual, r)

	for i := range out.Plan.Actions {
		out.Plan.Actions[i].WeeklyLoad = r(out.Plan.Actions[i].WeeklyLoad)
		out.Plan.Actions[i].Objective = r(out.Plan.Actions[i].Objective)
	}

	for i := range out.Adherence.Days {
		d := &out.Adherence.Days[i]
		d.Actual = r(d.Actual)
		d.Scheduled = r(d.Scheduled)
		d.Ideal = r(d.Ideal)
		d.Score = r(d.Score)
	}
	for i := range out.Adherence.Weeks {
		out.Adherence.Weeks[i].Score = r(out.Adherence.Weeks[i].Score)
	}
	out.Adherence.Score = r(out.Adherence.Score)

	for i := range out.Clamps {
		out.Clamps[i].Value = r(out.Clamps[i].Value)
		out.Clamps[i].Bound = r(out.Clamps[i].Bound)
	}
}

func roundSeries(points []SeriesPoint, r func(float64) float64) {
	for i := range points {
		points[i].Stress = r(points[i].Stress)
		points[i].Chronic = r(points[i].Chronic)
		points[i].Acute = r(points[i].Acute)
		points[i].Balance = r(points[i].Balance)
	}
}
