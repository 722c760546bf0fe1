package domain

import (
	"time"
)

// Report is the complete result of one analysis run. It is the only
// structure presentation, export and persistence layers consume.
type Report struct {
	ID                 string              `json:"id"`
	TenantID           string              `json:"tenantId"`
	Fingerprint        string              `json:"fingerprint"`
	CreatedAt          time.Time           `json:"createdAt"`
	Summary            Summary             `json:"summary"`
	FraudRings         []FraudRing         `json:"fraud_rings"`
	SuspiciousAccounts []SuspiciousAccount `json:"suspicious_accounts"`
	CrossRingPatterns  []CrossRingPattern  `json:"cross_ring_patterns"`
	Diagnostics        []Diagnostic        `json:"diagnostics"`
}

// Summary holds the headline counts of a run.
type Summary struct {
	TotalAccountsAnalyzed     int            `json:"total_accounts_analyzed"`
	SuspiciousAccountsFlagged int            `json:"suspicious_accounts_flagged"`
	FraudRingsDetected        int            `json:"fraud_rings_detected"`
	TransactionsAccepted      int            `json:"transactions_accepted"`
	TransactionsRejected      int            `json:"transactions_rejected"`
	RejectedByReason          map[string]int `json:"rejected_by_reason,omitempty"`
	TotalEstimatedLaundered   float64        `json:"total_estimated_laundered"`
	ProcessingTimeSeconds     float64        `json:"processing_time_seconds"`
}

// DiagnosticSeverity grades a diagnostic note.
type DiagnosticSeverity string

const (
	DiagnosticInfo    DiagnosticSeverity = "info"
	DiagnosticWarning DiagnosticSeverity = "warning"
)

// Diagnostic codes recorded by the pipeline.
const (
	DiagCycleSkipped       = "cycle_detection_skipped"
	DiagCycleTruncated     = "cycle_detection_truncated"
	DiagShellTruncated     = "shell_detection_truncated"
	DiagCrossRingTruncated = "cross_ring_truncated"
	DiagRowsRejected       = "rows_rejected"
	DiagDetectorFailed     = "detector_failed"
	DiagNoTransactionsKept = "no_transactions_kept"
)

// Diagnostic is a non-fatal note about how a run degraded.
type Diagnostic struct {
	Stage    string             `json:"stage"`
	Code     string             `json:"code"`
	Severity DiagnosticSeverity `json:"severity"`
	Message  string             `json:"message"`
}

// ReportSummary is the listing view of a stored report.
type ReportSummary struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenantId"`
	Fingerprint string    `json:"fingerprint"`
	CreatedAt   time.Time `json:"createdAt"`
	Summary     Summary   `json:"summary"`
}
