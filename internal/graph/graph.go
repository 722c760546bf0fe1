// Package graph builds the immutable transaction multigraph a run is
// analysed over.
package graph

import (
	"math"
	"sort"

	"github.com/opensource-finance/ringwatch/internal/domain"
)

// Node holds the per-account adjacency and statistics of the graph.
type Node struct {
	ID string

	InDegree          int
	OutDegree         int
	TotalTransactions int

	TotalSent     float64
	TotalReceived float64

	// UniqueCounterparties counts distinct accounts seen in either direction.
	UniqueCounterparties int

	// Adjacency, sorted by timestamp then transaction id.
	Out []domain.Transaction
	In  []domain.Transaction
	All []domain.Transaction

	// Successors holds distinct receivers of this account's transfers,
	// ordered by the first transfer to each.
	Successors []string

	// Predecessors holds distinct senders to this account, ordered by the
	// first transfer from each.
	Predecessors []string

	counterparties map[string]struct{}
	successorSet   map[string]struct{}
	predecessorSet map[string]struct{}
}

// PassthroughRatio returns the share of received money that was sent on,
// capped at 1. Receipts below one unit are treated as one.
func (n *Node) PassthroughRatio() float64 {
	return math.Min(n.TotalSent/math.Max(n.TotalReceived, 1), 1)
}

// Graph is a directed multigraph of accepted transactions. It is
// read-only once Build returns and is safe for concurrent readers.
type Graph struct {
	nodes         map[string]*Node
	ids           []string
	txs           []domain.Transaction
	distinctEdges int
}

// NodeCount returns the number of accounts.
func (g *Graph) NodeCount() int { return len(g.ids) }

// EdgeCount returns the number of accepted transactions.
func (g *Graph) EdgeCount() int { return len(g.txs) }

// DistinctEdgeCount returns the number of distinct ordered account pairs.
func (g *Graph) DistinctEdgeCount() int { return g.distinctEdges }

// AccountIDs returns account ids in lexicographic order.
func (g *Graph) AccountIDs() []string { return g.ids }

// Node returns the node for id, or nil.
func (g *Graph) Node(id string) *Node { return g.nodes[id] }

// HasAccount reports whether id appears in the graph.
func (g *Graph) HasAccount(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// Transactions returns all accepted transactions sorted by timestamp.
func (g *Graph) Transactions() []domain.Transaction { return g.txs }

// Between returns every transaction whose sender and receiver are both in
// members, sorted by timestamp.
func (g *Graph) Between(members map[string]struct{}) []domain.Transaction {
	var out []domain.Transaction
	for id := range members {
		n := g.nodes[id]
		if n == nil {
			continue
		}
		for _, tx := range n.Out {
			if _, ok := members[tx.ReceiverID]; ok {
				out = append(out, tx)
			}
		}
	}
	sortTransactions(out)
	return out
}

func sortTransactions(txs []domain.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		if !txs[i].Timestamp.Equal(txs[j].Timestamp) {
			return txs[i].Timestamp.Before(txs[j].Timestamp)
		}
		return txs[i].ID < txs[j].ID
	})
}
