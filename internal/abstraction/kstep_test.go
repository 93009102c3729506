package abstraction

import (
	"context"
	"math/bits"
	"math/rand/v2"
	"testing"

	"github.com/bits-and-blooms/bitset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/mkverify/internal/grid"
	"github.com/banshee-data/mkverify/internal/oracle"
)

func cells(n int, ids ...int) *bitset.BitSet {
	b := bitset.New(uint(n))
	for _, id := range ids {
		b.Set(uint(id))
	}
	return b
}

func members(b *bitset.BitSet) []int {
	var out []int
	for i, ok := b.NextSet(0); ok; i, ok = b.NextSet(i + 1) {
		out = append(out, int(i))
	}
	return out
}

func safeTo(succ ...int) Entry { return Entry{Safe: true, Succ: succ} }

var blocked = Entry{}

// entries builds a relation from per-cell (missed, met) pairs.
func entries(pairs ...[2]Entry) *OneStepGraph {
	return NewOneStepGraph(pairs)
}

func TestBuildKStep_OneMissThenRecover(t *testing.T) {
	t.Parallel()
	g := lineGrid(t)
	one, err := BuildOneStep(context.Background(), g, stepOracle(g), BuildOptions{Workers: 2})
	require.NoError(t, err)

	ks, err := BuildKStep(one, 1, 2)
	require.NoError(t, err)

	assert.Equal(t, []int{0}, members(ks.Start))
	assert.Equal(t, []int{0, 1}, members(ks.Reach[0]))
	for id := 1; id < 4; id++ {
		assert.Zero(t, ks.Reach[id].Count(), "cell %d", id)
	}
	assert.Equal(t, 2, ks.Edges)
	assert.Equal(t, 2, ks.EndSize)
	assert.Equal(t, 4, ks.NumCells())

	// Cell 0 reaches cell 1, which has no safe k-step extension.
	assert.Zero(t, ExtractInvariant(ks).Count())

	// Without a miss budget every self-loop is safe.
	ks0, err := BuildKStep(one, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3}, members(ks0.Start))
	assert.Equal(t, []int{0, 1, 2, 3}, members(ExtractInvariant(ks0)))
}

func TestBuildKStep_AlwaysUnsafe(t *testing.T) {
	t.Parallel()
	one := entries([2]Entry{blocked, blocked}, [2]Entry{blocked, blocked}, [2]Entry{blocked, blocked})
	for _, m := range []int{0, 1, 2} {
		ks, err := BuildKStep(one, m, 3)
		require.NoError(t, err)
		assert.Zero(t, ks.Start.Count())
		assert.Zero(t, ks.Edges)
		assert.Zero(t, ExtractInvariant(ks).Count())
	}
}

func TestBuildKStep_ZeroSteps(t *testing.T) {
	t.Parallel()
	one := entries([2]Entry{blocked, blocked}, [2]Entry{blocked, blocked})
	ks, err := BuildKStep(one, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, members(ks.Start))
	assert.Equal(t, []int{1}, members(ks.Reach[1]))
}

func TestBuildKStep_UnsafeSuccessorPoisonsParent(t *testing.T) {
	t.Parallel()
	// Cell 0 may land in 1 or 2 when met; cell 2 has no safe met step.
	one := entries(
		[2]Entry{blocked, safeTo(1, 2)},
		[2]Entry{blocked, safeTo(1)},
		[2]Entry{blocked, blocked},
	)
	ks, err := BuildKStep(one, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, members(ks.Start))
	assert.Equal(t, []int{1, 2}, members(ks.Reach[0]))

	ks, err = BuildKStep(one, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, members(ks.Start))
}

func TestBuildKStep_EmptyButSafeDoesNotPoison(t *testing.T) {
	t.Parallel()
	one := entries(
		[2]Entry{safeTo(), safeTo()}, // lands nowhere measurable, still safe
		[2]Entry{blocked, blocked},    // truly unsafe
		[2]Entry{safeTo(0), safeTo(0)},
	)
	ks, err := BuildKStep(one, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, members(ks.Start))
	assert.Zero(t, ks.Reach[0].Count())
	assert.Zero(t, ks.Reach[2].Count())
	assert.Equal(t, []int{0, 2}, members(ExtractInvariant(ks)))
}

func TestBuildKStep_MissOnlyWithBudget(t *testing.T) {
	t.Parallel()
	// The missed step of cell 0 is unsafe, so it survives only with m = 0.
	one := entries([2]Entry{blocked, safeTo(0)})
	ks, err := BuildKStep(one, 0, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, members(ks.Start))

	ks, err = BuildKStep(one, 1, 3)
	require.NoError(t, err)
	assert.Zero(t, ks.Start.Count())
}

func TestBuildKStep_Validation(t *testing.T) {
	t.Parallel()
	one := entries([2]Entry{safeTo(0), safeTo(0)})
	_, err := BuildKStep(one, -1, 1)
	assert.Error(t, err)
	_, err = BuildKStep(one, 0, -1)
	assert.Error(t, err)
}

// randomRelation draws a relation where roughly one entry in six is unsafe.
func randomRelation(r *rand.Rand, n int) *OneStepGraph {
	pairs := make([][2]Entry, n)
	for id := range pairs {
		for _, mode := range oracle.Modes {
			if r.IntN(6) == 0 {
				continue
			}
			seen := map[int]bool{}
			var succ []int
			for j := r.IntN(3); j >= 0; j-- {
				s := r.IntN(n)
				if !seen[s] {
					seen[s] = true
					succ = append(succ, s)
				}
			}
			pairs[id][mode] = Entry{Safe: true, Succ: succ}
		}
	}
	return NewOneStepGraph(pairs)
}

// bruteForce enumerates every k-long met/missed pattern with at most m
// misses and follows every successor branch.
func bruteForce(one *OneStepGraph, m, k int) (*bitset.BitSet, []*bitset.BitSet) {
	n := one.NumCells()
	start := bitset.New(uint(n))
	reach := make([]*bitset.BitSet, n)
	for id := 0; id < n; id++ {
		reach[id] = bitset.New(uint(n))
		ok := true
		for mask := 0; mask < 1<<k && ok; mask++ {
			if bits.OnesCount(uint(mask)) > m {
				continue
			}
			frontier := cells(n, id)
			for step := 0; step < k && ok; step++ {
				mode := oracle.Met
				if mask&(1<<step) != 0 {
					mode = oracle.Missed
				}
				next := bitset.New(uint(n))
				for _, c := range members(frontier) {
					e := one.Entry(c, mode)
					if !e.Safe {
						ok = false
						break
					}
					for _, s := range e.Succ {
						next.Set(uint(s))
					}
				}
				frontier = next
			}
			reach[id].InPlaceUnion(frontier)
		}
		if ok {
			start.Set(uint(id))
		} else {
			reach[id].ClearAll()
		}
	}
	return start, reach
}

func TestBuildKStep_MatchesPatternEnumeration(t *testing.T) {
	t.Parallel()
	r := rand.New(rand.NewPCG(7, 11))
	for trial := 0; trial < 40; trial++ {
		n := 3 + r.IntN(10)
		one := randomRelation(r, n)
		k := 1 + r.IntN(4)
		m := r.IntN(k + 1)

		ks, err := BuildKStep(one, m, k)
		require.NoError(t, err)
		wantStart, wantReach := bruteForce(one, m, k)
		require.True(t, wantStart.Equal(ks.Start), "trial %d: start %v want %v", trial, members(ks.Start), members(wantStart))
		for id := 0; id < n; id++ {
			assert.True(t, wantReach[id].Equal(ks.Reach[id]), "trial %d cell %d: reach %v want %v",
				trial, id, members(ks.Reach[id]), members(wantReach[id]))
		}
	}
}

func TestSolve_MoreBudgetNeverShrinksReach(t *testing.T) {
	t.Parallel()
	r := rand.New(rand.NewPCG(3, 5))
	for trial := 0; trial < 30; trial++ {
		n := 4 + r.IntN(8)
		one := randomRelation(r, n)
		m := 1 + r.IntN(3)
		for k := 0; k <= 4; k++ {
			table := solve(one, m, k)
			for id := 0; id < n; id++ {
				for b := 1; b <= m; b++ {
					if !table.safe[b].Test(uint(id)) {
						continue
					}
					// Safe with more budget implies safe with less.
					require.True(t, table.safe[b-1].Test(uint(id)), "trial %d k %d cell %d b %d", trial, k, id, b)
					assert.True(t, table.reach[id][b].IsSuperSet(table.reach[id][b-1]),
						"trial %d k %d cell %d b %d", trial, k, id, b)
				}
			}
		}
	}
}

func TestBuildKStep_FromGrid(t *testing.T) {
	t.Parallel()
	g, err := grid.New(2, 3, 1.5, 0)
	require.NoError(t, err)
	// Met contracts towards the origin cell; missed stays put.
	o := oracle.Func(func(_ context.Context, cell grid.Box, mode oracle.Mode) (oracle.Result, error) {
		if mode == oracle.Missed {
			return oracle.Result{Safe: true, Region: cell}, nil
		}
		out := make(grid.Box, len(cell))
		for i, iv := range cell {
			out[i] = grid.Interval{Lo: iv.Lo / 2, Hi: iv.Hi / 2}
		}
		return oracle.Result{Safe: true, Region: out}, nil
	})
	one, err := BuildOneStep(context.Background(), g, o, BuildOptions{Workers: 4})
	require.NoError(t, err)
	ks, err := BuildKStep(one, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, uint(9), ks.Start.Count())
	assert.Equal(t, uint(9), ExtractInvariant(ks).Count())
}
