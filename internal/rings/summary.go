package rings

import (
	"context"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/ringwatch/internal/domain"
	"github.com/opensource-finance/ringwatch/internal/rules"
)

const unknownAccount = "UNKNOWN"

// build turns a candidate into a ring with its id, summaries and roles.
func (a *Assembler) build(ctx context.Context, c *candidate, scores map[string]float64) (domain.FraudRing, error) {
	members := sortedKeys(c.members)
	internal := a.g.Between(c.members)

	ring := domain.FraudRing{
		RingID:         a.nextID(),
		PatternType:    c.pattern,
		MemberAccounts: members,
		ShellInterior:  c.interior,
		Hub:            c.hub,
	}

	for _, m := range members {
		ring.RiskScore = math.Max(ring.RiskScore, scores[m])
	}

	// Financial summary
	fs := &ring.FinancialSummary
	var flow, inflow, outflow decimal.Decimal
	ringIn := make(map[string]int)
	ringOut := make(map[string]int)
	for _, tx := range internal {
		flow = flow.Add(decimal.NewFromFloat(tx.Amount))
		ringOut[tx.SenderID]++
		ringIn[tx.ReceiverID]++
	}
	for _, m := range members {
		n := a.g.Node(m)
		if n == nil {
			continue
		}
		for _, tx := range n.In {
			if _, ok := c.members[tx.SenderID]; !ok {
				inflow = inflow.Add(decimal.NewFromFloat(tx.Amount))
			}
		}
		for _, tx := range n.Out {
			if _, ok := c.members[tx.ReceiverID]; !ok {
				outflow = outflow.Add(decimal.NewFromFloat(tx.Amount))
			}
		}
	}
	fs.TotalInternalFlow = money(flow)
	fs.ExternalInflow = money(inflow)
	fs.EstimatedLaundered = money(outflow)
	fs.TransactionCount = len(internal)

	ns := &ring.NetworkSummary
	ns.MemberCount = len(members)
	ns.EntryPoint, ns.ExitPoint = unknownAccount, unknownAccount
	if len(internal) > 0 {
		fs.AvgTransactionSize = money(flow.Div(decimal.NewFromInt(int64(len(internal)))))
		first, last := internal[0], internal[len(internal)-1]
		fs.OperationStart = first.Timestamp
		fs.OperationEnd = last.Timestamp
		fs.DurationHours = round(last.Timestamp.Sub(first.Timestamp).Hours(), 1)
		ns.EntryPoint = first.SenderID
		ns.ExitPoint = last.ReceiverID
	}

	// Roles
	interior := toSet(c.interior)
	features := make([]rules.Features, 0, len(members))
	for _, m := range members {
		n := a.g.Node(m)
		if n == nil {
			return ring, fmt.Errorf("ring member %s missing from graph", m)
		}
		_, shell := interior[m]
		features = append(features, rules.Features{
			AccountID:         m,
			InDegree:          n.InDegree,
			OutDegree:         n.OutDegree,
			RingInDegree:      ringIn[m],
			RingOutDegree:     ringOut[m],
			TotalTransactions: n.TotalTransactions,
			Passthrough:       n.PassthroughRatio(),
			IsEntry:           m == ns.EntryPoint,
			IsExit:            m == ns.ExitPoint,
			IsShell:           shell,
		})
	}
	assigned, err := a.roles.ClassifyAll(ctx, features)
	if err != nil {
		return ring, err
	}

	roleOf := make(map[string]domain.Role, len(assigned))
	ns.RoleBreakdown = make(map[domain.Role][]string, len(domain.AllRoles))
	for _, r := range domain.AllRoles {
		ns.RoleBreakdown[r] = []string{}
	}
	ring.AccountProfiles = make([]domain.AccountProfile, 0, len(members))
	for i, as := range assigned {
		n := a.g.Node(as.AccountID)
		roleOf[as.AccountID] = as.Role
		ns.RoleBreakdown[as.Role] = append(ns.RoleBreakdown[as.Role], as.AccountID)
		ring.AccountProfiles = append(ring.AccountProfiles, domain.AccountProfile{
			AccountID:             as.AccountID,
			Role:                  as.Role,
			SuspicionScore:        scores[as.AccountID],
			TotalSent:             round(n.TotalSent, 2),
			TotalReceived:         round(n.TotalReceived, 2),
			TransactionCount:      n.TotalTransactions,
			UniqueCounterparties:  n.UniqueCounterparties,
			PassthroughPercentage: round(features[i].Passthrough*100, 1),
		})
	}

	ring.Timeline = trail(internal, roleOf)
	return ring, nil
}

// trail lists the ring's internal transfers in time order as numbered steps.
func trail(internal []domain.Transaction, roleOf map[string]domain.Role) []domain.TrailStep {
	steps := make([]domain.TrailStep, 0, len(internal))
	for _, tx := range internal {
		steps = append(steps, domain.TrailStep{
			Step:          len(steps) + 1,
			Timestamp:     tx.Timestamp,
			Sender:        tx.SenderID,
			SenderRole:    roleOf[tx.SenderID],
			Receiver:      tx.ReceiverID,
			ReceiverRole:  roleOf[tx.ReceiverID],
			Amount:        round(tx.Amount, 2),
			TransactionID: tx.ID,
		})
	}
	return steps
}

// addActions attaches prioritised investigator steps to every ring.
func addActions(rings []domain.FraudRing, links []domain.CrossRingPattern) {
	linked := make(map[string][]string)
	for _, l := range links {
		if len(l.RingIDs) != 2 {
			continue
		}
		linked[l.RingIDs[0]] = append(linked[l.RingIDs[0]], l.RingIDs[1])
		linked[l.RingIDs[1]] = append(linked[l.RingIDs[1]], l.RingIDs[0])
	}

	for i := range rings {
		r := &rings[i]
		var steps []domain.InvestigatorStep
		add := func(urgency, action string) {
			steps = append(steps, domain.InvestigatorStep{Priority: len(steps) + 1, Urgency: urgency, Action: action})
		}

		roles := r.NetworkSummary.RoleBreakdown
		if accs := roles[domain.RoleOrchestrator]; len(accs) > 0 {
			add("IMMEDIATE", "Freeze accounts: "+joinIDs(accs))
		}
		if accs := roles[domain.RoleExitPoint]; len(accs) > 0 {
			add("IMMEDIATE", "Trace withdrawals from: "+joinIDs(accs))
		}
		if accs := roles[domain.RoleCollector]; len(accs) > 0 {
			add("URGENT", "Block outbound transfers from: "+joinIDs(accs))
		}
		add("URGENT", "Subpoena KYC for entry point: "+r.NetworkSummary.EntryPoint)
		add("URGENT", fmt.Sprintf("Pull full transaction history for all %d member accounts", r.NetworkSummary.MemberCount))
		if others := linked[r.RingID]; len(others) > 0 {
			add("HIGH", "Investigate connections to: "+joinIDs(others))
		}
		add("MEDIUM", "File SAR (Suspicious Activity Report)")
		r.Actions = steps
	}
}

func money(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

func round(v float64, places int) float64 {
	return decimal.NewFromFloat(v).Round(int32(places)).InexactFloat64()
}
