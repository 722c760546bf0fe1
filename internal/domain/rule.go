package domain

// RoleRule maps a CEL expression over member features to a ring role.
// Rules are evaluated in Priority order; the first one that yields true wins.
type RoleRule struct {
	ID          string `json:"id" yaml:"id"`
	Role        Role   `json:"role" yaml:"role"`
	Description string `json:"description" yaml:"description"`
	Priority    int    `json:"priority" yaml:"priority"`

	// CEL expression returning bool
	Expression string `json:"expression" yaml:"expression"`
}

// DefaultRoleRules returns the built-in role heuristics.
func DefaultRoleRules() []RoleRule {
	return []RoleRule{
		{
			ID:          "recruiter-fan-out",
			Role:        RoleRecruiter,
			Description: "seeds many mules from few sources",
			Priority:    10,
			Expression:  "out_degree >= 5 && in_degree <= 2",
		},
		{
			ID:          "collector-fan-in",
			Role:        RoleCollector,
			Description: "aggregates funds from many sources",
			Priority:    20,
			Expression:  "in_degree >= 5 && out_degree <= 2",
		},
		{
			ID:          "orchestrator-hub",
			Role:        RoleOrchestrator,
			Description: "balanced high-degree hub passing most funds on",
			Priority:    30,
			Expression:  "out_degree >= 3 && in_degree >= 3 && passthrough > 0.8",
		},
		{
			ID:          "orchestrator-first-mover",
			Role:        RoleOrchestrator,
			Description: "starts the ring timeline and sends at least as much as it receives inside the ring",
			Priority:    40,
			Expression:  "is_entry && ring_out_degree > 0 && ring_out_degree >= ring_in_degree",
		},
		{
			ID:          "shell-pass-through",
			Role:        RoleShell,
			Description: "low activity account forwarding nearly everything it receives",
			Priority:    50,
			Expression:  "is_shell || (in_degree >= 1 && out_degree >= 1 && passthrough > 0.9 && total_transactions <= 4)",
		},
		{
			ID:          "exit-terminal",
			Role:        RoleExitPoint,
			Description: "ends the ring timeline or only receives",
			Priority:    60,
			Expression:  "is_exit || (out_degree == 0 && in_degree >= 1)",
		},
	}
}
