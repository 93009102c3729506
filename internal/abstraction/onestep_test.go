package abstraction

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/mkverify/internal/grid"
	"github.com/banshee-data/mkverify/internal/oracle"
)

// lineGrid is the 1-D grid of four cells spanning [-2, 2].
func lineGrid(t *testing.T) *grid.Grid {
	t.Helper()
	g, err := grid.New(1, 4, 2, 0)
	require.NoError(t, err)
	return g
}

// stepOracle keeps every cell in place when the deadline is met; a missed
// deadline moves cell 0 into cell 1 and pushes every other cell out of the
// safe region.
func stepOracle(g *grid.Grid) oracle.Oracle {
	return oracle.Func(func(_ context.Context, cell grid.Box, mode oracle.Mode) (oracle.Result, error) {
		if mode == oracle.Met {
			return oracle.Result{Safe: true, Region: cell}, nil
		}
		first, _ := g.CellBounds(0)
		if cell[0] == first[0] {
			next, _ := g.CellBounds(1)
			return oracle.Result{Safe: true, Region: next}, nil
		}
		return oracle.Result{Safe: true, Region: grid.Box{{Lo: cell[0].Lo + 3, Hi: cell[0].Hi + 3}}}, nil
	})
}

func TestBuildOneStep_Relation(t *testing.T) {
	t.Parallel()
	g := lineGrid(t)

	var mu sync.Mutex
	var seen []int
	graph, err := BuildOneStep(context.Background(), g, stepOracle(g), BuildOptions{
		Workers: 3,
		Progress: func(done, total int) {
			mu.Lock()
			defer mu.Unlock()
			assert.Equal(t, 8, total)
			seen = append(seen, done)
		},
	})
	require.NoError(t, err)
	require.Equal(t, 4, graph.NumCells())

	for id := 0; id < 4; id++ {
		met := graph.Entry(id, oracle.Met)
		assert.True(t, met.Safe)
		assert.Equal(t, []int{id}, met.Succ)
	}
	assert.Equal(t, Entry{Safe: true, Succ: []int{1}}, graph.Entry(0, oracle.Missed))
	for id := 1; id < 4; id++ {
		assert.False(t, graph.Entry(id, oracle.Missed).Safe, "cell %d", id)
		assert.Empty(t, graph.Entry(id, oracle.Missed).Succ)
	}
	assert.Equal(t, 5, graph.Edges())
	slices.Sort(seen)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8}, seen)
}

func TestBuildOneStep_SafeButEmpty(t *testing.T) {
	t.Parallel()
	g := lineGrid(t)
	// A point sitting on a grid line overlaps no cell by more than eps.
	o := oracle.Func(func(context.Context, grid.Box, oracle.Mode) (oracle.Result, error) {
		return oracle.Result{Safe: true, Region: grid.Box{{Lo: 0, Hi: 0}}}, nil
	})
	graph, err := BuildOneStep(context.Background(), g, o, BuildOptions{})
	require.NoError(t, err)
	for id := 0; id < 4; id++ {
		for _, mode := range oracle.Modes {
			e := graph.Entry(id, mode)
			assert.True(t, e.Safe)
			assert.Empty(t, e.Succ)
		}
	}
	assert.Zero(t, graph.Edges())
}

func TestBuildOneStep_OracleFailure(t *testing.T) {
	t.Parallel()
	g := lineGrid(t)
	boom := errors.New("flowpipe diverged")
	o := oracle.Func(func(_ context.Context, cell grid.Box, mode oracle.Mode) (oracle.Result, error) {
		if cell[0].Lo == 0 && mode == oracle.Missed {
			return oracle.Result{}, boom
		}
		return oracle.Result{Safe: true, Region: cell}, nil
	})
	graph, err := BuildOneStep(context.Background(), g, o, BuildOptions{Workers: 2})
	require.Error(t, err)
	assert.Nil(t, graph)
	assert.ErrorIs(t, err, oracle.ErrOracleFailure)
	assert.ErrorIs(t, err, boom)
	var fe *oracle.FailureError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 2, fe.Cell)
}

func TestBuildOneStep_Cancelled(t *testing.T) {
	t.Parallel()
	g := lineGrid(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := BuildOneStep(ctx, g, stepOracle(g), BuildOptions{Workers: 2})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewOneStepGraph_CountsEdges(t *testing.T) {
	t.Parallel()
	graph := NewOneStepGraph([][2]Entry{
		{{Safe: true, Succ: []int{0, 1}}, {Safe: true, Succ: []int{1}}},
		{{}, {Safe: true}},
	})
	assert.Equal(t, 2, graph.NumCells())
	assert.Equal(t, 3, graph.Edges())
}
