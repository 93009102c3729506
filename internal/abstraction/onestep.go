package abstraction

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/mkverify/internal/grid"
	"github.com/banshee-data/mkverify/internal/monitoring"
	"github.com/banshee-data/mkverify/internal/oracle"
)

// Entry is the one-step relation for one (cell, mode) pair. An unsafe entry
// has no successors. A safe entry may also have none, when the reachable
// region overlaps no cell by more than the grid tolerance; that case does
// not make the cell unsafe.
type Entry struct {
	Safe bool
	Succ []int
}

// OneStepGraph holds the one-step relation of every cell, indexed by cell id
// and then by oracle.Mode. It is not modified after BuildOneStep returns.
type OneStepGraph struct {
	entries [][2]Entry
	edges   int
}

// NewOneStepGraph wraps precomputed entries. It is used by tests and by
// callers that obtain the relation from somewhere other than an oracle.
func NewOneStepGraph(entries [][2]Entry) *OneStepGraph {
	g := &OneStepGraph{entries: entries}
	for _, e := range entries {
		g.edges += len(e[oracle.Missed].Succ) + len(e[oracle.Met].Succ)
	}
	return g
}

// NumCells returns the number of cells in the relation.
func (g *OneStepGraph) NumCells() int { return len(g.entries) }

// Edges returns the total number of successor links over both modes.
func (g *OneStepGraph) Edges() int { return g.edges }

// Entry returns the relation for one cell and mode.
func (g *OneStepGraph) Entry(id int, mode oracle.Mode) Entry {
	return g.entries[id][mode]
}

// BuildOptions tunes BuildOneStep.
type BuildOptions struct {
	// Workers bounds the number of concurrent oracle queries; values below 1
	// mean one.
	Workers int
	// Progress, if set, receives the number of finished queries.
	Progress monitoring.Progress
}

// BuildOneStep queries the oracle once for every cell and mode and records
// the cells overlapped by each contained reachable region. Queries run
// concurrently; each writes only its own slot. The first oracle failure
// cancels the remaining queries and is returned.
func BuildOneStep(ctx context.Context, g *grid.Grid, o oracle.Oracle, opts BuildOptions) (*OneStepGraph, error) {
	monitoring.Infof("Building one-step graph.")
	n := g.NumCells()
	total := n * len(oracle.Modes)
	progress := opts.Progress
	if progress == nil {
		progress = monitoring.NopProgress
	}
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}

	entries := make([][2]Entry, n)
	bounds := g.Bounds()
	var done atomic.Int64

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
submit:
	for id := 0; id < n; id++ {
		for _, mode := range oracle.Modes {
			if egCtx.Err() != nil {
				break submit
			}
			eg.Go(func() error {
				cell, err := g.CellBounds(id)
				if err != nil {
					return err
				}
				res, err := oracle.Query(egCtx, o, id, cell, bounds, mode, g.Eps)
				if err != nil {
					return err
				}
				if res.Safe {
					entries[id][mode] = Entry{Safe: true, Succ: g.IntersectingCells(res.Region)}
				}
				progress(int(done.Add(1)), total)
				return nil
			})
		}
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	graph := NewOneStepGraph(entries)
	monitoring.Successf("Number of edges: %d", graph.Edges())
	return graph, nil
}
