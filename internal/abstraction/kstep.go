package abstraction

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"

	"github.com/banshee-data/mkverify/internal/monitoring"
	"github.com/banshee-data/mkverify/internal/oracle"
)

// KStep is the bounded-miss k-step relation: from each start cell, the cells
// reachable after exactly k periods with a fresh budget of m misses.
type KStep struct {
	// Start holds every cell with a safe k-step extension under every
	// admissible miss pattern.
	Start *bitset.BitSet
	// Reach[id] is the k-step successor set of a start cell; it is empty for
	// cells outside Start.
	Reach []*bitset.BitSet

	// Edges counts successor links over all start cells.
	Edges int
	// EndSize counts cells reachable from any start cell.
	EndSize int
}

// NumCells returns the number of cells in the relation.
func (ks *KStep) NumCells() int { return len(ks.Reach) }

// budgetTable is one DP snapshot. reach[id][b] is the set of cells reachable
// from id with b misses left; safe[b] marks the cells whose entry at budget b
// is safe.
type budgetTable struct {
	reach [][]*bitset.BitSet
	safe  []*bitset.BitSet
}

func newBudgetTable(n, m int) *budgetTable {
	t := &budgetTable{
		reach: make([][]*bitset.BitSet, n),
		safe:  make([]*bitset.BitSet, m+1),
	}
	for b := range t.safe {
		t.safe[b] = bitset.New(uint(n))
	}
	for id := range t.reach {
		t.reach[id] = make([]*bitset.BitSet, m+1)
		for b := range t.reach[id] {
			t.reach[id][b] = bitset.New(uint(n))
		}
	}
	return t
}

// resetBase fills the zero-steps-remaining table: every cell reaches only
// itself, whatever the budget.
func (t *budgetTable) resetBase() {
	for id, row := range t.reach {
		for b, set := range row {
			set.ClearAll()
			set.Set(uint(id))
			t.safe[b].Set(uint(id))
		}
	}
}

// BuildKStep runs the bounded-miss DP for k periods with at most m misses.
func BuildKStep(one *OneStepGraph, m, k int) (*KStep, error) {
	if m < 0 {
		return nil, fmt.Errorf("miss budget must be non-negative, got %d", m)
	}
	if k < 0 {
		return nil, fmt.Errorf("window must be non-negative, got %d", k)
	}
	monitoring.Infof("Building K-step graph.")
	final := solve(one, m, k)

	n := one.NumCells()
	ks := &KStep{
		Start: final.safe[m],
		Reach: make([]*bitset.BitSet, n),
	}
	end := bitset.New(uint(n))
	for id := 0; id < n; id++ {
		// The table is discarded, so its sets can be handed over as is.
		ks.Reach[id] = final.reach[id][m]
		if ks.Start.Test(uint(id)) {
			ks.Edges += int(ks.Reach[id].Count())
			end.InPlaceUnion(ks.Reach[id])
		}
	}
	ks.EndSize = int(end.Count())

	monitoring.Successf("Start Region Size: %d", ks.Start.Count())
	monitoring.Successf("End Region: %d", ks.EndSize)
	monitoring.Successf("Number of Edges: %d", ks.Edges)
	return ks, nil
}

// solve returns the table with k steps remaining. Two tables are allocated;
// each step computes cur from prev and the two swap roles.
func solve(one *OneStepGraph, m, k int) *budgetTable {
	n := one.NumCells()
	cur := newBudgetTable(n, m)
	prev := newBudgetTable(n, m)
	cur.resetBase()

	for step := 1; step <= k; step++ {
		cur, prev = prev, cur
		for id := 0; id < n; id++ {
			for b := 0; b <= m; b++ {
				set := cur.reach[id][b]
				set.ClearAll()
				safe := true
				// A miss spends one unit of budget.
				if b > 0 {
					safe = extend(set, one.Entry(id, oracle.Missed), prev, b-1)
				}
				if safe {
					safe = extend(set, one.Entry(id, oracle.Met), prev, b)
				}
				if safe {
					cur.safe[b].Set(uint(id))
				} else {
					set.ClearAll()
					cur.safe[b].Clear(uint(id))
				}
			}
		}
	}
	return cur
}

// extend unions into set the budget-b entries of every successor in e and
// reports whether the entry and all of those successors are safe.
func extend(set *bitset.BitSet, e Entry, prev *budgetTable, b int) bool {
	if !e.Safe {
		return false
	}
	for _, s := range e.Succ {
		if !prev.safe[b].Test(uint(s)) {
			return false
		}
		set.InPlaceUnion(prev.reach[s][b])
	}
	return true
}
