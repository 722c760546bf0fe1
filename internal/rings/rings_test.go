package rings

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/opensource-finance/ringwatch/internal/domain"
	"github.com/opensource-finance/ringwatch/internal/graph"
	"github.com/opensource-finance/ringwatch/internal/rules"
)

var base = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

type ledger struct {
	txs []domain.Transaction
}

func (l *ledger) add(from, to string, amount float64, hour float64) {
	l.txs = append(l.txs, domain.Transaction{
		ID:         fmt.Sprintf("t%03d", len(l.txs)+1),
		SenderID:   from,
		ReceiverID: to,
		Amount:     amount,
		Timestamp:  base.Add(time.Duration(hour * float64(time.Hour))),
	})
}

// cycle adds one transfer per member, one hour apart, starting at hour.
func (l *ledger) cycle(hour float64, members ...string) domain.Cycle {
	for i, m := range members {
		l.add(m, members[(i+1)%len(members)], 1000, hour+float64(i))
	}
	return domain.Cycle{Members: members}
}

func assemble(t *testing.T, l *ledger, d Detections, scores map[string]float64) *Result {
	t.Helper()
	g, _ := graph.Build(l.txs)
	roles, err := rules.NewDefaultClassifier()
	if err != nil {
		t.Fatalf("failed to create classifier: %v", err)
	}
	res, err := NewAssembler(g, roles, DefaultOptions()).Assemble(context.Background(), d, scores)
	if err != nil {
		t.Fatalf("assemble failed: %v", err)
	}
	return res
}

func TestCycleRing(t *testing.T) {
	l := &ledger{}
	c := l.cycle(0, "A", "B", "C")
	l.add("C", "X", 500, 3)
	l.add("Y", "A", 250, -1)

	res := assemble(t, l, Detections{Cycles: []domain.Cycle{c}}, map[string]float64{"A": 40, "B": 45, "C": 40})
	if len(res.Rings) != 1 {
		t.Fatalf("expected 1 ring, got %d", len(res.Rings))
	}
	r := res.Rings[0]

	if r.RingID != "RING_001" || r.PatternType != domain.RingPatternCycle {
		t.Errorf("unexpected ring header %s/%s", r.RingID, r.PatternType)
	}
	if len(r.MemberAccounts) != 3 || r.MemberAccounts[0] != "A" || r.MemberAccounts[2] != "C" {
		t.Errorf("unexpected members %v", r.MemberAccounts)
	}
	if r.RiskScore != 45 {
		t.Errorf("expected risk score = max member score 45, got %v", r.RiskScore)
	}

	fs := r.FinancialSummary
	if fs.TotalInternalFlow != 3000 || fs.TransactionCount != 3 || fs.AvgTransactionSize != 1000 {
		t.Errorf("unexpected internal flow %+v", fs)
	}
	if fs.EstimatedLaundered != 500 {
		t.Errorf("expected 500 laundered out of the ring, got %v", fs.EstimatedLaundered)
	}
	if fs.ExternalInflow != 250 {
		t.Errorf("expected 250 external inflow, got %v", fs.ExternalInflow)
	}
	if fs.DurationHours != 2 {
		t.Errorf("expected 2h duration, got %v", fs.DurationHours)
	}

	ns := r.NetworkSummary
	if ns.EntryPoint != "A" || ns.ExitPoint != "A" || ns.MemberCount != 3 {
		t.Errorf("unexpected network summary %+v", ns)
	}
	if len(ns.RoleBreakdown) != len(domain.AllRoles) {
		t.Errorf("expected every role listed, got %v", ns.RoleBreakdown)
	}
	if len(r.AccountProfiles) != 3 {
		t.Errorf("expected 3 profiles, got %d", len(r.AccountProfiles))
	}
	if len(res.CrossRingPatterns) != 0 {
		t.Errorf("expected no cross-ring patterns, got %v", res.CrossRingPatterns)
	}
}

func TestRingOrderAndStableIDs(t *testing.T) {
	l := &ledger{}
	late := l.cycle(50, "A", "B", "C")
	early := l.cycle(0, "X", "Y", "Z")

	forward := assemble(t, l, Detections{Cycles: []domain.Cycle{late, early}}, nil)
	backward := assemble(t, l, Detections{Cycles: []domain.Cycle{early, late}}, nil)

	if forward.Rings[0].MemberAccounts[0] != "X" {
		t.Errorf("expected earliest cycle first, got %v", forward.Rings[0].MemberAccounts)
	}
	for i := range forward.Rings {
		f, b := forward.Rings[i], backward.Rings[i]
		if f.RingID != b.RingID || f.MemberAccounts[0] != b.MemberAccounts[0] {
			t.Errorf("ring %d differs with detection order: %s/%v vs %s/%v",
				i, f.RingID, f.MemberAccounts, b.RingID, b.MemberAccounts)
		}
	}
}

func TestSharedMemberYieldsOneCrossRingPattern(t *testing.T) {
	l := &ledger{}
	c1 := l.cycle(0, "A", "B", "C")
	c2 := l.cycle(1, "A", "D", "E")

	res := assemble(t, l, Detections{Cycles: []domain.Cycle{c1, c2}}, nil)
	if len(res.Rings) != 2 {
		t.Fatalf("expected overlapping cycles to stay separate rings, got %d", len(res.Rings))
	}
	if len(res.CrossRingPatterns) != 1 {
		t.Fatalf("expected exactly 1 cross-ring pattern, got %d: %+v", len(res.CrossRingPatterns), res.CrossRingPatterns)
	}
	p := res.CrossRingPatterns[0]
	if p.PatternName != domain.CrossRingSharedAccounts || p.Severity != domain.SeverityCritical {
		t.Errorf("unexpected pattern %s/%s", p.PatternName, p.Severity)
	}
	if len(p.SharedAccounts) != 1 || p.SharedAccounts[0] != "A" {
		t.Errorf("expected shared [A], got %v", p.SharedAccounts)
	}
}

func TestCrossRingKinds(t *testing.T) {
	tests := []struct {
		name      string
		secondAt  float64
		link      bool
		wantName  string
		wantGapHr float64
	}{
		{"FundFlow", 100, true, domain.CrossRingFundFlow, 0},
		{"Concurrent", 1, false, domain.CrossRingConcurrent, 0},
		{"Sequential", 10, false, domain.CrossRingSequential, 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := &ledger{}
			c1 := l.cycle(0, "A", "B", "C")
			c2 := l.cycle(tt.secondAt, "D", "E", "F")
			if tt.link {
				l.add("C", "D", 750, 50)
			}

			res := assemble(t, l, Detections{Cycles: []domain.Cycle{c1, c2}}, nil)
			if len(res.CrossRingPatterns) != 1 {
				t.Fatalf("expected 1 pattern, got %+v", res.CrossRingPatterns)
			}
			p := res.CrossRingPatterns[0]
			if p.PatternName != tt.wantName {
				t.Errorf("expected %s, got %s", tt.wantName, p.PatternName)
			}
			if tt.link && p.LinkAmount != 750 {
				t.Errorf("expected link amount 750, got %v", p.LinkAmount)
			}
			if p.GapHours != tt.wantGapHr {
				t.Errorf("expected gap %v, got %v", tt.wantGapHr, p.GapHours)
			}
		})
	}

	t.Run("InstantRingInsideWindow", func(t *testing.T) {
		l := &ledger{}
		c1 := l.cycle(0, "A", "B", "C")
		l.add("D", "E", 1000, 1)
		l.add("E", "F", 1000, 1)
		l.add("F", "D", 1000, 1)
		c2 := domain.Cycle{Members: []string{"D", "E", "F"}}

		res := assemble(t, l, Detections{Cycles: []domain.Cycle{c1, c2}}, nil)
		if len(res.CrossRingPatterns) != 1 {
			t.Fatalf("expected 1 pattern, got %+v", res.CrossRingPatterns)
		}
		p := res.CrossRingPatterns[0]
		if p.PatternName != domain.CrossRingConcurrent || p.Severity != domain.SeverityHigh {
			t.Errorf("expected HIGH concurrent link, got %s/%s", p.PatternName, p.Severity)
		}
	})

	t.Run("FarApartUnrelated", func(t *testing.T) {
		l := &ledger{}
		c1 := l.cycle(0, "A", "B", "C")
		c2 := l.cycle(200, "D", "E", "F")
		res := assemble(t, l, Detections{Cycles: []domain.Cycle{c1, c2}}, nil)
		if len(res.CrossRingPatterns) != 0 {
			t.Errorf("expected no patterns, got %+v", res.CrossRingPatterns)
		}
	})
}

func TestCrossRingCapAppliesToSharedAccounts(t *testing.T) {
	l := &ledger{}
	var cycles []domain.Cycle
	for i := 0; i < 150; i++ {
		cycles = append(cycles, l.cycle(float64(i)*100, "H", fmt.Sprintf("a%03d", i), fmt.Sprintf("b%03d", i)))
	}

	res := assemble(t, l, Detections{Cycles: cycles}, nil)
	if len(res.Rings) != 150 {
		t.Fatalf("expected 150 rings, got %d", len(res.Rings))
	}
	limit := DefaultOptions().MaxCrossRingPatterns
	if len(res.CrossRingPatterns) != limit {
		t.Errorf("expected %d patterns, got %d", limit, len(res.CrossRingPatterns))
	}
	if !res.CrossRingTruncated {
		t.Error("expected truncation when shared-account pairs exceed the cap")
	}
	for _, p := range res.CrossRingPatterns {
		if p.PatternName != domain.CrossRingSharedAccounts {
			t.Fatalf("expected only shared-account links, got %s", p.PatternName)
		}
	}
	// pairs are kept in ring order
	if first := res.CrossRingPatterns[0].RingIDs; first[0] != "RING_001" || first[1] != "RING_002" {
		t.Errorf("expected first link RING_001/RING_002, got %v", first)
	}
}

func TestShellRingRoles(t *testing.T) {
	l := &ledger{}
	l.add("A", "B", 5000, 0)
	l.add("B", "C", 4900, 1)
	l.add("C", "D", 4800, 2)
	chain := domain.ShellChain{Path: []string{"A", "B", "C", "D"}}

	res := assemble(t, l, Detections{Shells: []domain.ShellChain{chain}}, map[string]float64{"B": 20, "C": 20})
	r := res.Rings[0]
	if r.PatternType != domain.RingPatternShell {
		t.Fatalf("expected shell ring, got %s", r.PatternType)
	}
	if len(r.ShellInterior) != 2 || r.ShellInterior[0] != "B" || r.ShellInterior[1] != "C" {
		t.Errorf("unexpected interior %v", r.ShellInterior)
	}

	roles := map[string]domain.Role{}
	for _, p := range r.AccountProfiles {
		roles[p.AccountID] = p.Role
	}
	want := map[string]domain.Role{
		"A": domain.RoleOrchestrator,
		"B": domain.RoleShell,
		"C": domain.RoleShell,
		"D": domain.RoleExitPoint,
	}
	for id, role := range want {
		if roles[id] != role {
			t.Errorf("%s: expected %s, got %s", id, role, roles[id])
		}
	}

	if r.FinancialSummary.EstimatedLaundered != 0 {
		t.Errorf("expected nothing to leave the chain, got %v", r.FinancialSummary.EstimatedLaundered)
	}

	t.Run("MoneyTrail", func(t *testing.T) {
		wantSteps := []domain.TrailStep{
			{Step: 1, Timestamp: base, Sender: "A", SenderRole: domain.RoleOrchestrator, Receiver: "B", ReceiverRole: domain.RoleShell, Amount: 5000, TransactionID: "t001"},
			{Step: 2, Timestamp: base.Add(time.Hour), Sender: "B", SenderRole: domain.RoleShell, Receiver: "C", ReceiverRole: domain.RoleShell, Amount: 4900, TransactionID: "t002"},
			{Step: 3, Timestamp: base.Add(2 * time.Hour), Sender: "C", SenderRole: domain.RoleShell, Receiver: "D", ReceiverRole: domain.RoleExitPoint, Amount: 4800, TransactionID: "t003"},
		}
		if len(r.Timeline) != len(wantSteps) {
			t.Fatalf("expected %d trail steps, got %+v", len(wantSteps), r.Timeline)
		}
		for i, w := range wantSteps {
			if r.Timeline[i] != w {
				t.Errorf("step %d: expected %+v, got %+v", i+1, w, r.Timeline[i])
			}
		}
	})

	actions := r.Actions
	if len(actions) != 5 {
		t.Fatalf("expected 5 investigator actions, got %+v", actions)
	}
	if actions[0].Action != "Freeze accounts: A" || actions[0].Urgency != "IMMEDIATE" {
		t.Errorf("unexpected first action %+v", actions[0])
	}
	for i, a := range actions {
		if a.Priority != i+1 {
			t.Errorf("action %d has priority %d", i, a.Priority)
		}
	}
}

func TestSmurfingClusters(t *testing.T) {
	t.Run("HandOffMerges", func(t *testing.T) {
		l := &ledger{}
		var in, out []string
		for i := 0; i < 10; i++ {
			s := fmt.Sprintf("S%02d", i)
			l.add(s, "COL", 900, float64(i))
			in = append(in, s)
		}
		l.add("COL", "DIS", 9000, 12)
		for i := 0; i < 11; i++ {
			r := fmt.Sprintf("R%02d", i)
			l.add("DIS", r, 800, 13+float64(i))
			out = append(out, r)
		}
		flags := []domain.SmurfingFlag{
			{Account: "COL", Direction: domain.DirectionFanIn, WindowStart: base, DistinctCounterparties: 10, Counterparties: in},
			{Account: "DIS", Direction: domain.DirectionFanOut, WindowStart: base.Add(13 * time.Hour), DistinctCounterparties: 11, Counterparties: out},
		}

		res := assemble(t, l, Detections{Smurfing: flags}, nil)
		if len(res.Rings) != 1 {
			t.Fatalf("expected hand-off to merge into 1 ring, got %d", len(res.Rings))
		}
		r := res.Rings[0]
		if r.Hub != "DIS" {
			t.Errorf("expected hub DIS, got %s", r.Hub)
		}
		if len(r.MemberAccounts) != 23 {
			t.Errorf("expected 23 members, got %d", len(r.MemberAccounts))
		}
	})

	t.Run("SharedCounterpartiesStaySeparate", func(t *testing.T) {
		l := &ledger{}
		var senders []string
		for i := 0; i < 10; i++ {
			s := fmt.Sprintf("S%02d", i)
			l.add(s, "H1", 900, float64(i))
			l.add(s, "H2", 900, float64(i)+0.5)
			senders = append(senders, s)
		}
		flags := []domain.SmurfingFlag{
			{Account: "H1", Direction: domain.DirectionFanIn, WindowStart: base, DistinctCounterparties: 10, Counterparties: senders},
			{Account: "H2", Direction: domain.DirectionFanIn, WindowStart: base.Add(30 * time.Minute), DistinctCounterparties: 10, Counterparties: senders},
		}

		res := assemble(t, l, Detections{Smurfing: flags}, nil)
		if len(res.Rings) != 2 {
			t.Fatalf("expected 2 rings, got %d", len(res.Rings))
		}
		if res.Rings[0].Hub != "H1" || res.Rings[1].Hub != "H2" {
			t.Errorf("expected rings ordered by window start, got %s, %s", res.Rings[0].Hub, res.Rings[1].Hub)
		}
		if len(res.CrossRingPatterns) != 1 || res.CrossRingPatterns[0].PatternName != domain.CrossRingSharedAccounts {
			t.Errorf("expected one shared-accounts link, got %+v", res.CrossRingPatterns)
		}
	})
}

func TestMixedOrdering(t *testing.T) {
	l := &ledger{}
	l.add("P", "Q", 100, 0)
	l.add("Q", "R", 100, 1)
	l.add("R", "S", 100, 2)
	c := l.cycle(30, "A", "B", "C")

	res := assemble(t, l, Detections{
		Cycles: []domain.Cycle{c},
		Shells: []domain.ShellChain{{Path: []string{"P", "Q", "R", "S"}}},
	}, nil)
	if len(res.Rings) != 2 {
		t.Fatalf("expected 2 rings, got %d", len(res.Rings))
	}
	if res.Rings[0].PatternType != domain.RingPatternCycle || res.Rings[0].RingID != "RING_001" {
		t.Errorf("cycles must come first regardless of time, got %s", res.Rings[0].PatternType)
	}
	if res.Rings[1].RingID != "RING_002" {
		t.Errorf("expected RING_002, got %s", res.Rings[1].RingID)
	}
}
