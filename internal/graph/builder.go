package graph

import (
	"math"
	"sort"

	"github.com/opensource-finance/ringwatch/internal/domain"
)

// RejectReason names why a ledger row was not added to the graph.
type RejectReason string

const (
	RejectMissingID         RejectReason = "missing_id"
	RejectDuplicateID       RejectReason = "duplicate_id"
	RejectMissingSender     RejectReason = "missing_sender"
	RejectMissingReceiver   RejectReason = "missing_receiver"
	RejectSelfTransfer      RejectReason = "self_transfer"
	RejectNonPositiveAmount RejectReason = "non_positive_amount"
	RejectInvalidTimestamp  RejectReason = "invalid_timestamp"
)

// BuildStats tallies accepted and rejected rows.
type BuildStats struct {
	Accepted         int
	Rejected         int
	RejectedByReason map[RejectReason]int
}

func (s *BuildStats) reject(r RejectReason) {
	s.Rejected++
	s.RejectedByReason[r]++
}

// Validate returns the reason tx cannot enter the graph, or "" if it can.
// Duplicate ids are checked by Build.
func Validate(tx domain.Transaction) RejectReason {
	switch {
	case tx.ID == "":
		return RejectMissingID
	case tx.SenderID == "":
		return RejectMissingSender
	case tx.ReceiverID == "":
		return RejectMissingReceiver
	case tx.SenderID == tx.ReceiverID:
		return RejectSelfTransfer
	case !(tx.Amount > 0) || math.IsInf(tx.Amount, 0):
		return RejectNonPositiveAmount
	case tx.Timestamp.IsZero():
		return RejectInvalidTimestamp
	}
	return ""
}

// Build constructs the graph from a flat transfer list. Invalid rows are
// tallied and skipped; Build never fails. Rows sharing an id are resolved
// independently of input order: the row ordered first by sender, receiver,
// amount and timestamp is kept and the others are rejected as duplicates.
func Build(txs []domain.Transaction) (*Graph, *BuildStats) {
	stats := &BuildStats{RejectedByReason: make(map[RejectReason]int)}
	g := &Graph{nodes: make(map[string]*Node)}

	rows := make([]domain.Transaction, len(txs))
	copy(rows, txs)
	sort.Slice(rows, func(i, j int) bool { return canonicalLess(rows[i], rows[j]) })

	seen := make(map[string]struct{}, len(rows))
	for _, tx := range rows {
		if r := Validate(tx); r != "" {
			stats.reject(r)
			continue
		}
		if _, dup := seen[tx.ID]; dup {
			stats.reject(RejectDuplicateID)
			continue
		}
		seen[tx.ID] = struct{}{}
		g.txs = append(g.txs, tx)
	}
	stats.Accepted = len(g.txs)
	sortTransactions(g.txs)

	pairs := make(map[[2]string]struct{})
	for _, tx := range g.txs {
		s := g.node(tx.SenderID)
		r := g.node(tx.ReceiverID)

		s.OutDegree++
		s.TotalSent += tx.Amount
		s.Out = append(s.Out, tx)
		s.All = append(s.All, tx)
		s.counterparties[r.ID] = struct{}{}
		if _, ok := s.successorSet[r.ID]; !ok {
			s.successorSet[r.ID] = struct{}{}
			s.Successors = append(s.Successors, r.ID)
		}

		r.InDegree++
		r.TotalReceived += tx.Amount
		r.In = append(r.In, tx)
		r.All = append(r.All, tx)
		r.counterparties[s.ID] = struct{}{}
		if _, ok := r.predecessorSet[s.ID]; !ok {
			r.predecessorSet[s.ID] = struct{}{}
			r.Predecessors = append(r.Predecessors, s.ID)
		}

		pairs[[2]string{s.ID, r.ID}] = struct{}{}
	}
	g.distinctEdges = len(pairs)

	g.ids = make([]string, 0, len(g.nodes))
	for id, n := range g.nodes {
		n.TotalTransactions = n.InDegree + n.OutDegree
		n.UniqueCounterparties = len(n.counterparties)
		g.ids = append(g.ids, id)
	}
	sort.Strings(g.ids)

	return g, stats
}

func (g *Graph) node(id string) *Node {
	n, ok := g.nodes[id]
	if !ok {
		n = &Node{
			ID:             id,
			counterparties: make(map[string]struct{}),
			successorSet:   make(map[string]struct{}),
			predecessorSet: make(map[string]struct{}),
		}
		g.nodes[id] = n
	}
	return n
}

// canonicalLess is a total order over every field of a row.
func canonicalLess(a, b domain.Transaction) bool {
	switch {
	case a.ID != b.ID:
		return a.ID < b.ID
	case a.SenderID != b.SenderID:
		return a.SenderID < b.SenderID
	case a.ReceiverID != b.ReceiverID:
		return a.ReceiverID < b.ReceiverID
	case a.Amount != b.Amount:
		return a.Amount < b.Amount
	}
	return a.Timestamp.Before(b.Timestamp)
}
