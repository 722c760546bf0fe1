package domain

import "time"

// RingPattern is the detection family a fraud ring was assembled from.
type RingPattern string

const (
	RingPatternCycle    RingPattern = "cycle"
	RingPatternSmurfing RingPattern = "smurfing"
	RingPatternShell    RingPattern = "shell_network"
)

// Role is a heuristic label for an account's function inside a ring.
// It is derived from timeline position and degree balance, not ground truth.
type Role string

const (
	RoleOrchestrator Role = "ORCHESTRATOR"
	RoleCollector    Role = "COLLECTOR"
	RoleShell        Role = "SHELL"
	RoleMule         Role = "MULE"
	RoleExitPoint    Role = "EXIT_POINT"
	RoleRecruiter    Role = "RECRUITER"
)

// AllRoles lists roles in report order.
var AllRoles = []Role{RoleOrchestrator, RoleCollector, RoleShell, RoleMule, RoleExitPoint, RoleRecruiter}

// FraudRing is a named cluster of accounts sharing one detected pattern.
type FraudRing struct {
	RingID           string             `json:"ring_id"`
	PatternType      RingPattern        `json:"pattern_type"`
	MemberAccounts   []string           `json:"member_accounts"`
	RiskScore        float64            `json:"risk_score"`
	ShellInterior    []string           `json:"shell_interior,omitempty"`
	Hub              string             `json:"hub,omitempty"`
	FinancialSummary FinancialSummary   `json:"financial_summary"`
	NetworkSummary   NetworkSummary     `json:"network_summary"`
	AccountProfiles  []AccountProfile   `json:"account_profiles"`
	Actions          []InvestigatorStep `json:"investigator_actions,omitempty"`
	Timeline         []TrailStep        `json:"timeline"`
}

// TrailStep is one internal transfer of a ring's reconstructed money trail,
// labelled with the roles of both sides.
type TrailStep struct {
	Step          int       `json:"step"`
	Timestamp     time.Time `json:"timestamp"`
	Sender        string    `json:"sender"`
	SenderRole    Role      `json:"sender_role"`
	Receiver      string    `json:"receiver"`
	ReceiverRole  Role      `json:"receiver_role"`
	Amount        float64   `json:"amount"`
	TransactionID string    `json:"txn_id"`
}

// FinancialSummary holds money and time aggregates of a ring.
type FinancialSummary struct {
	TotalInternalFlow  float64   `json:"total_internal_flow"`
	ExternalInflow     float64   `json:"external_inflow"`
	EstimatedLaundered float64   `json:"estimated_laundered"`
	TransactionCount   int       `json:"num_transactions"`
	AvgTransactionSize float64   `json:"avg_transaction_size"`
	OperationStart     time.Time `json:"operation_start"`
	OperationEnd       time.Time `json:"operation_end"`
	DurationHours      float64   `json:"duration_hours"`
}

// NetworkSummary describes the structure of a ring.
type NetworkSummary struct {
	MemberCount   int               `json:"member_count"`
	EntryPoint    string            `json:"entry_point"`
	ExitPoint     string            `json:"exit_point"`
	RoleBreakdown map[Role][]string `json:"role_breakdown"`
}

// AccountProfile summarises one member of a ring.
type AccountProfile struct {
	AccountID             string  `json:"account_id"`
	Role                  Role    `json:"role"`
	SuspicionScore        float64 `json:"suspicion_score"`
	TotalSent             float64 `json:"total_sent"`
	TotalReceived         float64 `json:"total_received"`
	TransactionCount      int     `json:"num_transactions"`
	UniqueCounterparties  int     `json:"unique_counterparties"`
	PassthroughPercentage float64 `json:"passthrough_pct"`
}

// InvestigatorStep is a suggested follow-up for a ring.
type InvestigatorStep struct {
	Priority int    `json:"priority"`
	Urgency  string `json:"urgency"`
	Action   string `json:"action"`
}

// Severity grades a cross-ring relationship.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
)

// Cross-ring relationship kinds, in descending severity.
const (
	CrossRingSharedAccounts = "SHARED_ACCOUNTS"
	CrossRingFundFlow       = "FUND_FLOW"
	CrossRingConcurrent     = "CONCURRENT_OPERATIONS"
	CrossRingSequential     = "SEQUENTIAL_OPERATIONS"
)

// CrossRingPattern is a relationship discovered between distinct rings.
type CrossRingPattern struct {
	PatternName    string   `json:"pattern_name"`
	Severity       Severity `json:"severity"`
	RingIDs        []string `json:"ring_ids"`
	SharedAccounts []string `json:"shared_accounts,omitempty"`
	LinkAmount     float64  `json:"link_amount,omitempty"`
	GapHours       float64  `json:"gap_hours,omitempty"`
	Description    string   `json:"description"`
}
