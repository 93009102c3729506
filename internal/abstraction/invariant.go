package abstraction

import (
	"github.com/bits-and-blooms/bitset"

	"github.com/banshee-data/mkverify/internal/monitoring"
)

// ExtractInvariant returns the largest subset of ks.Start that is closed
// under ks.Reach.
func ExtractInvariant(ks *KStep) *bitset.BitSet {
	monitoring.Infof("Finding the largest closed subgraph.")
	inv := Extract(ks.Start, ks.Reach)
	monitoring.Successf("Safe Initial Region Size: %d", inv.Count())
	return inv
}

// Extract propagates unsafety backwards over reach. Every cell outside
// start seeds the queue; each popped cell excludes all of its unvisited
// predecessors. The cells of start never visited form the invariant. Only
// edges leaving start cells are considered. Runs in O(V+E).
func Extract(start *bitset.BitSet, reach []*bitset.BitSet) *bitset.BitSet {
	n := len(reach)
	rev := make([][]int, n)
	for id, ok := start.NextSet(0); ok && int(id) < n; id, ok = start.NextSet(id + 1) {
		for next, ok := reach[id].NextSet(0); ok; next, ok = reach[id].NextSet(next + 1) {
			rev[next] = append(rev[next], int(id))
		}
	}

	visit := bitset.New(uint(n))
	queue := make([]int, 0, n)
	for id := 0; id < n; id++ {
		if !start.Test(uint(id)) {
			visit.Set(uint(id))
			queue = append(queue, id)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, pred := range rev[id] {
			if visit.Test(uint(pred)) {
				continue
			}
			visit.Set(uint(pred))
			queue = append(queue, pred)
		}
	}

	inv := bitset.New(uint(n))
	for id := 0; id < n; id++ {
		if !visit.Test(uint(id)) {
			inv.Set(uint(id))
		}
	}
	return inv
}
