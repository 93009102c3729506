// Package pipeline runs a complete verification: one-step graph, k-step
// relation, invariant and coverage check, in that order.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bits-and-blooms/bitset"

	"github.com/banshee-data/mkverify/internal/abstraction"
	"github.com/banshee-data/mkverify/internal/config"
	"github.com/banshee-data/mkverify/internal/coverage"
	"github.com/banshee-data/mkverify/internal/db"
	"github.com/banshee-data/mkverify/internal/grid"
	"github.com/banshee-data/mkverify/internal/monitoring"
	"github.com/banshee-data/mkverify/internal/oracle"
	"github.com/banshee-data/mkverify/internal/render"
	"github.com/banshee-data/mkverify/internal/timeutil"
)

// Verifier holds every input of a run. All phases read from it; none of
// them keeps state between runs.
type Verifier struct {
	Name    string
	Labels  []string
	Grid    *grid.Grid
	Oracle  oracle.Oracle
	Misses  int
	Window  int
	Initial grid.Box

	Tolerance float64
	Workers   int
	Progress  monitoring.Progress

	// Settings is recorded with the run; it does not affect Run.
	Settings *config.Settings
	// Clock times the run; nil means the wall clock.
	Clock    timeutil.Clock
}

// Report is the outcome of Run.
type Report struct {
	OneStep   *abstraction.OneStepGraph
	KStep     *abstraction.KStep
	Invariant *bitset.BitSet
	Coverage  coverage.Result
	Duration  time.Duration
}

// Verdict returns SAFE or UNSAFE.
func (r *Report) Verdict() coverage.Verdict { return r.Coverage.Verdict() }

// FromModel validates m and s and builds a Verifier backed by the linear
// Taylor oracle.
func FromModel(m *config.Model, s *config.Settings) (*Verifier, error) {
	if s == nil {
		s = config.EmptySettings()
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrMalformedModel, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}

	g, err := grid.New(m.Dims(), m.Divisions, m.SafeDistance, s.GetEpsilon())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrMalformedModel, err)
	}
	lin, err := oracle.NewLinear(oracle.LinearSystem{
		A:        m.Dynamics.A,
		B:        m.Dynamics.B,
		K:        m.Control.Gain,
		Period:   m.Period,
		StepSize: m.StepSize,
	}, oracle.TaylorSettings{
		Order:               s.GetOrder(),
		CutoffThreshold:     s.GetCutoffThreshold(),
		RemainderEstimation: s.GetRemainderEstimation(),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrMalformedModel, err)
	}

	return &Verifier{
		Name:      m.Name,
		Labels:    m.State,
		Grid:      g,
		Oracle:    lin,
		Misses:    m.Misses,
		Window:    m.Window,
		Initial:   m.InitialRegion(),
		Tolerance: s.GetCoverageTolerance(),
		Workers:   s.GetWorkers(),
		Settings:  s,
	}, nil
}

// Run executes every phase. The first oracle failure or cancellation of
// ctx aborts the run with no partial report.
func (v *Verifier) Run(ctx context.Context) (*Report, error) {
	if v.Grid == nil || v.Oracle == nil {
		return nil, errors.New("verifier needs a grid and an oracle")
	}
	clock := v.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	began := clock.Now()
	monitoring.Infof("Verifying %s: %d cells, m=%d, k=%d", v.Name, v.Grid.NumCells(), v.Misses, v.Window)

	one, err := abstraction.BuildOneStep(ctx, v.Grid, v.Oracle, abstraction.BuildOptions{
		Workers:  v.Workers,
		Progress: v.Progress,
	})
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ks, err := abstraction.BuildKStep(one, v.Misses, v.Window)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	inv := abstraction.ExtractInvariant(ks)
	cov, err := coverage.Check(v.Grid, inv, v.Initial, v.Grid.Eps, v.Tolerance)
	if err != nil {
		return nil, err
	}

	return &Report{
		OneStep:   one,
		KStep:     ks,
		Invariant: inv,
		Coverage:  cov,
		Duration:  clock.Since(began),
	}, nil
}

// Scene packages a report for the renderers.
func (v *Verifier) Scene(r *Report) render.Scene {
	return render.Scene{
		Title:     v.Name,
		Labels:    v.Labels,
		Grid:      v.Grid,
		Start:     r.KStep.Start,
		Invariant: r.Invariant,
		Initial:   v.Initial,
	}
}

// Record converts a report into a run row for the store.
func (v *Verifier) Record(r *Report) (*db.Run, error) {
	run := &db.Run{
		ModelName:     v.Name,
		Dims:          v.Grid.Dims,
		Divisions:     v.Grid.Divisions,
		Misses:        v.Misses,
		Window:        v.Window,
		OneStepEdges:  r.OneStep.Edges(),
		KStepEdges:    r.KStep.Edges,
		StartSize:     int(r.KStep.Start.Count()),
		EndSize:       r.KStep.EndSize,
		InvariantSize: int(r.Invariant.Count()),
		InitialVolume: r.Coverage.InitialVolume,
		CoveredVolume: r.Coverage.CoveredVolume,
		Verdict:       string(r.Verdict()),
		DurationMs:    r.Duration.Milliseconds(),
	}
	if v.Settings != nil {
		data, err := json.Marshal(v.Settings)
		if err != nil {
			return nil, fmt.Errorf("failed to encode settings: %w", err)
		}
		run.SettingsJSON = data
	}
	return run, nil
}
