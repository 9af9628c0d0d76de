// Package scheduler computes the build order of a dependency graph: a
// topological order in which every producer precedes its consumers, with
// ties broken by recipe name and then by variant so repeated runs over the
// same input produce the same order.
//
// The order is what drives the executor and what build logs are written in,
// so it must not depend on map iteration or on the order files were loaded.
package scheduler
