// Package abstraction builds the discrete model of a weakly-hard control
// loop and extracts its safe invariant.
//
// Responsibilities: the one-step transition relation between grid cells
// for both control modes, the bounded-miss k-step relation computed by
// dynamic programming over cell bitsets, and the largest subset of the
// start region closed under that relation.
// Key types: OneStepGraph, KStep.
//
// Dependency rule: abstraction may depend on grid and oracle, never on
// rendering, persistence or configuration.
package abstraction
