package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/ringwatch/internal/domain"
)

// DefaultBatchSize is the number of rows sent per UNWIND statement.
const DefaultBatchSize = 500

const (
	constraintAccountCypher = `CREATE CONSTRAINT ringwatch_account IF NOT EXISTS
FOR (a:Account) REQUIRE (a.tenant_id, a.id) IS UNIQUE`

	constraintRingCypher = `CREATE CONSTRAINT ringwatch_ring IF NOT EXISTS
FOR (r:FraudRing) REQUIRE (r.report_id, r.id) IS UNIQUE`

	upsertAccountsCypher = `UNWIND $rows AS row
MERGE (a:Account {tenant_id: $tenant_id, id: row.id})
SET a.suspicion_score = row.score,
    a.detected_patterns = row.patterns,
    a.last_report_id = $report_id`

	upsertTransfersCypher = `UNWIND $rows AS row
MERGE (s:Account {tenant_id: $tenant_id, id: row.sender})
MERGE (r:Account {tenant_id: $tenant_id, id: row.receiver})
MERGE (s)-[t:TRANSFER {id: row.id}]->(r)
SET t.amount = row.amount,
    t.timestamp = datetime(row.timestamp)`

	upsertRingCypher = `MERGE (g:FraudRing {report_id: $report_id, id: $ring_id})
SET g.tenant_id = $tenant_id,
    g.pattern_type = $pattern_type,
    g.risk_score = $risk_score,
    g.estimated_laundered = $estimated_laundered
WITH g
UNWIND $members AS m
MATCH (a:Account {tenant_id: $tenant_id, id: m.id})
MERGE (a)-[rel:MEMBER_OF]->(g)
SET rel.role = m.role`

	linkRingsCypher = `MATCH (a:FraudRing {report_id: $report_id, id: $from})
MATCH (b:FraudRing {report_id: $report_id, id: $to})
MERGE (a)-[l:LINKED {pattern: $pattern}]->(b)
SET l.severity = $severity`
)

// Exporter writes one report and its ledger into the graph.
type Exporter struct {
	client    Client
	batchSize int
	timeout   time.Duration
}

// NewExporter creates an exporter. A zero timeout disables the deadline.
func NewExporter(client Client, timeout time.Duration) *Exporter {
	return &Exporter{client: client, batchSize: DefaultBatchSize, timeout: timeout}
}

// Export MERGEs accounts, transfers, rings and cross-ring links. Only
// accounts touched by the ledger are written; repeated exports of the same
// report are idempotent.
func (e *Exporter) Export(ctx context.Context, report *domain.Report, txs []domain.Transaction) error {
	if report == nil {
		return fmt.Errorf("report is required")
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	start := time.Now()

	for _, stmt := range []string{constraintAccountCypher, constraintRingCypher} {
		if _, err := e.client.ExecuteWrite(ctx, stmt, nil); err != nil {
			return fmt.Errorf("failed to ensure constraint: %w", err)
		}
	}

	base := map[string]any{
		"tenant_id": report.TenantID,
		"report_id": report.ID,
	}

	transfers := make([]map[string]any, 0, len(txs))
	for _, tx := range txs {
		transfers = append(transfers, map[string]any{
			"id":        tx.ID,
			"sender":    tx.SenderID,
			"receiver":  tx.ReceiverID,
			"amount":    tx.Amount,
			"timestamp": tx.Timestamp.UTC().Format(time.RFC3339),
		})
	}
	if err := e.writeBatches(ctx, upsertTransfersCypher, base, transfers); err != nil {
		return fmt.Errorf("failed to export transfers: %w", err)
	}

	accounts := make([]map[string]any, 0, len(report.SuspiciousAccounts))
	for _, a := range report.SuspiciousAccounts {
		patterns := make([]string, len(a.DetectedPatterns))
		for i, p := range a.DetectedPatterns {
			patterns[i] = string(p)
		}
		accounts = append(accounts, map[string]any{
			"id":       a.AccountID,
			"score":    a.SuspicionScore,
			"patterns": patterns,
		})
	}
	if err := e.writeBatches(ctx, upsertAccountsCypher, base, accounts); err != nil {
		return fmt.Errorf("failed to export accounts: %w", err)
	}

	for i := range report.FraudRings {
		ring := &report.FraudRings[i]
		members := make([]map[string]any, 0, len(ring.AccountProfiles))
		for _, p := range ring.AccountProfiles {
			members = append(members, map[string]any{"id": p.AccountID, "role": string(p.Role)})
		}
		params := merge(base, map[string]any{
			"ring_id":             ring.RingID,
			"pattern_type":        string(ring.PatternType),
			"risk_score":          ring.RiskScore,
			"estimated_laundered": ring.FinancialSummary.EstimatedLaundered,
			"members":             members,
		})
		if _, err := e.client.ExecuteWrite(ctx, upsertRingCypher, params); err != nil {
			return fmt.Errorf("failed to export ring %s: %w", ring.RingID, err)
		}
	}

	for _, link := range report.CrossRingPatterns {
		if len(link.RingIDs) != 2 {
			continue
		}
		params := merge(base, map[string]any{
			"from":     link.RingIDs[0],
			"to":       link.RingIDs[1],
			"pattern":  link.PatternName,
			"severity": string(link.Severity),
		})
		if _, err := e.client.ExecuteWrite(ctx, linkRingsCypher, params); err != nil {
			return fmt.Errorf("failed to link rings %s/%s: %w", link.RingIDs[0], link.RingIDs[1], err)
		}
	}

	slog.Info("report exported to graph",
		"report_id", report.ID,
		"transfers", len(transfers),
		"accounts", len(accounts),
		"rings", len(report.FraudRings),
		"duration", time.Since(start),
	)
	return nil
}

func (e *Exporter) writeBatches(ctx context.Context, cypher string, base map[string]any, rows []map[string]any) error {
	for start := 0; start < len(rows); start += e.batchSize {
		end := start + e.batchSize
		if end > len(rows) {
			end = len(rows)
		}
		params := merge(base, map[string]any{"rows": rows[start:end]})
		if _, err := e.client.ExecuteWrite(ctx, cypher, params); err != nil {
			return err
		}
	}
	return nil
}

func merge(a, b map[string]any) map[string]any {
	out := make(map[string]any, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}
