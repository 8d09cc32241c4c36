// Package loadstate tracks chronic and acute training load as
// exponentially-weighted moving averages over daily stress, following the
// usual CTL/ATL/TSB convention: a long chronic time constant against a short
// acute one, with balance = chronic - acute.
package loadstate

import (
	"time"

	"traincast/internal/planstore"
	"traincast/internal/policy"
)

// Series names the three parallel load trajectories.
type Series string

const (
	SeriesIdeal     Series = "ideal"
	SeriesScheduled Series = "scheduled"
	SeriesActual    Series = "actual"
)

// State is the pair of exponential accumulators carried day to day.
type State struct {
	Chronic float64
	Acute   float64
}

// Balance is the fatigue/fitness proxy: positive means fresh.
func (s State) Balance() float64 {
	return s.Chronic - s.Acute
}

// Point is one calendar day of a load trajectory.
type Point struct {
	Date    time.Time
	Chronic float64
	Acute   float64
	Balance float64
	Stress  float64
}

// Step advances the accumulators by one day of stress. Missing days are a
// Step with zero stress: decay continues.
func Step(s State, stress float64, pol policy.LoadPolicy) State {
	chronicDecay := 2.0 / (pol.ChronicDays + 1.0)
	acuteDecay := 2.0 / (pol.AcuteDays + 1.0)
	return State{
		Chronic: s.Chronic + chronicDecay*(stress-s.Chronic),
		Acute:   s.Acute + acuteDecay*(stress-s.Acute),
	}
}

// DailyStress collapses load samples onto calendar days within the window,
// summing multiple activities on the same day. Days without samples are
// zero. The sample slice is read only.
func DailyStress(samples []planstore.LoadSample, window planstore.Window) []float64 {
	days := window.Days()
	out := make([]float64, days)
	if days == 0 {
		return out
	}
	for _, s := range samples {
		idx := dayIndex(window.Start, s.Date)
		if idx < 0 || idx >= days {
			continue
		}
		out[idx] += s.Stress
	}
	return out
}

// Seed replays samples that predate the window so the trajectory enters the
// window with warmed-up accumulators. Zero-length history yields the zero
// state, not an error.
func Seed(samples []planstore.LoadSample, windowStart time.Time, pol policy.LoadPolicy) State {
	var state State
	pre := make(map[int]float64)
	earliest := 0
	for _, s := range samples {
		if !s.Date.Before(windowStart) {
			continue
		}
		idx := dayIndex(windowStart, s.Date) // negative
		pre[idx] += s.Stress
		if idx < earliest {
			earliest = idx
		}
	}
	if len(pre) == 0 {
		return state
	}
	for d := earliest; d <= -1; d++ {
		state = Step(state, pre[d], pol)
	}
	return state
}

// Trace produces one Point per day of the window from a daily stress series,
// starting from the given seed state.
func Trace(daily []float64, seed State, window planstore.Window, pol policy.LoadPolicy) []Point {
	points := make([]Point, len(daily))
	state := seed
	for i, stress := range daily {
		state = Step(state, stress, pol)
		points[i] = Point{
			Date:    window.Start.AddDate(0, 0, i),
			Chronic: state.Chronic,
			Acute:   state.Acute,
			Balance: state.Balance(),
			Stress:  stress,
		}
	}
	return points
}

// Track is the common path: seed from pre-window samples, collapse to daily
// stress, and trace through the window.
func Track(samples []planstore.LoadSample, window planstore.Window, pol policy.LoadPolicy) []Point {
	seed := Seed(samples, window.Start, pol)
	daily := DailyStress(samples, window)
	return Trace(daily, seed, window, pol)
}

func dayIndex(start, date time.Time) int {
	return int(date.Sub(start).Hours() / 24)
}
