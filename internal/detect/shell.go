package detect

import (
	"context"

	"github.com/opensource-finance/ringwatch/internal/domain"
	"github.com/opensource-finance/ringwatch/internal/graph"
)

// Shell chain bounds. Chain lengths count accounts, origin included.
const (
	ShellMaxTransactions = 3
	ShellMinChainLength  = 3
	ShellMaxChainLength  = 5
)

// ShellOptions configures FindShellChains.
type ShellOptions struct {
	MaxChains int // 0 means unbounded
}

// DefaultShellOptions returns the standard shell options.
func DefaultShellOptions() ShellOptions {
	return ShellOptions{MaxChains: 2000}
}

// ShellResult is the output of FindShellChains.
type ShellResult struct {
	Chains    []domain.ShellChain
	Truncated bool
}

// IsShellCandidate reports whether n looks like a low-activity pass-through.
func IsShellCandidate(n *graph.Node) bool {
	return n != nil && n.TotalTransactions <= ShellMaxTransactions && n.InDegree >= 1 && n.OutDegree >= 1
}

// FindShellChains finds maximal paths whose interior accounts are all shell
// candidates. Search starts at every non-candidate account that pays into a
// candidate and follows successors in order of first transfer. A path is
// emitted once it cannot be extended or reaches ShellMaxChainLength
// accounts, and holds at least three accounts.
func FindShellChains(ctx context.Context, g *graph.Graph, opts ShellOptions) (ShellResult, error) {
	var res ShellResult
	s := &shellSearch{g: g, max: opts.MaxChains, onPath: make(map[string]bool)}

	for _, id := range g.AccountIDs() {
		n := g.Node(id)
		if IsShellCandidate(n) || !paysIntoShell(g, n) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		s.path = append(s.path[:0], id)
		s.onPath[id] = true
		s.walk()
		delete(s.onPath, id)
		if s.full() {
			res.Truncated = true
			break
		}
	}

	res.Chains = s.found
	return res, nil
}

func paysIntoShell(g *graph.Graph, n *graph.Node) bool {
	for _, succ := range n.Successors {
		if IsShellCandidate(g.Node(succ)) {
			return true
		}
	}
	return false
}

type shellSearch struct {
	g      *graph.Graph
	max    int
	path   []string
	onPath map[string]bool
	found  []domain.ShellChain
}

func (s *shellSearch) full() bool {
	return s.max > 0 && len(s.found) >= s.max
}

func (s *shellSearch) walk() {
	last := s.g.Node(s.path[len(s.path)-1])
	terminal := len(s.path) > 1 && !IsShellCandidate(last)

	extended := false
	if !terminal && len(s.path) < ShellMaxChainLength {
		for _, next := range last.Successors {
			if s.full() {
				return
			}
			if s.onPath[next] {
				continue
			}
			// the first hop must enter shell territory
			if len(s.path) == 1 && !IsShellCandidate(s.g.Node(next)) {
				continue
			}
			extended = true
			s.path = append(s.path, next)
			s.onPath[next] = true
			s.walk()
			s.onPath[next] = false
			s.path = s.path[:len(s.path)-1]
		}
	}

	if !extended && len(s.path) >= ShellMinChainLength && !s.full() {
		p := make([]string, len(s.path))
		copy(p, s.path)
		s.found = append(s.found, domain.ShellChain{Path: p})
	}
}
