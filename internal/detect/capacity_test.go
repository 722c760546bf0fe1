package detect

import "testing"

func TestShouldSkipCycles(t *testing.T) {
	limits := CapacityLimits{MaxNodes: 100, MaxEdges: 400}

	tests := []struct {
		name         string
		nodes, edges int
		limits       CapacityLimits
		want         bool
	}{
		{"BothBelow", 50, 100, limits, false},
		{"AtLimits", 100, 400, limits, false},
		{"OnlyNodesOver", 101, 400, limits, false},
		{"OnlyEdgesOver", 100, 401, limits, false},
		{"BothOver", 101, 401, limits, true},
		{"Disabled", 1 << 20, 1 << 22, CapacityLimits{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldSkipCycles(tt.nodes, tt.edges, tt.limits); got != tt.want {
				t.Errorf("ShouldSkipCycles(%d, %d) = %v, want %v", tt.nodes, tt.edges, got, tt.want)
			}
		})
	}
}
