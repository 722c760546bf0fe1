// Package detect implements the graph pattern detectors. Each detector is a
// read-only consumer of a built graph and returns private results.
package detect

// CapacityLimits bounds the graph size cycle enumeration will attempt.
type CapacityLimits struct {
	MaxNodes int
	MaxEdges int
}

// DefaultCapacityLimits returns the standard density guard.
func DefaultCapacityLimits() CapacityLimits {
	return CapacityLimits{MaxNodes: 5000, MaxEdges: 20000}
}

// ShouldSkipCycles reports whether a graph with the given node count and
// distinct-edge count is too dense for cycle enumeration. Both limits must
// be exceeded. A non-positive limit disables the guard.
func ShouldSkipCycles(nodes, edges int, limits CapacityLimits) bool {
	if limits.MaxNodes <= 0 || limits.MaxEdges <= 0 {
		return false
	}
	return nodes > limits.MaxNodes && edges > limits.MaxEdges
}
