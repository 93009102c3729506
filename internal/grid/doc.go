// Package grid owns the uniform discretisation of the safety region.
//
// Responsibilities: interval and box arithmetic, cell id encoding
// (mixed-radix base-d), cell bounds, and enumeration of the cells a
// continuous region overlaps.
// Key types: Interval, Box, Grid.
//
// Dependency rule: grid depends on nothing else in this module.
package grid
