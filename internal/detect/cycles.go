package detect

import (
	"context"
	"sort"

	"github.com/opensource-finance/ringwatch/internal/domain"
	"github.com/opensource-finance/ringwatch/internal/graph"
)

// Cycle length bounds, in accounts.
const (
	MinCycleLength = 3
	MaxCycleLength = 5
)

// CycleOptions configures FindCycles.
type CycleOptions struct {
	Limits    CapacityLimits
	MaxCycles int // 0 means unbounded
}

// DefaultCycleOptions returns the standard cycle options.
func DefaultCycleOptions() CycleOptions {
	return CycleOptions{Limits: DefaultCapacityLimits(), MaxCycles: 5000}
}

// CycleResult is the output of FindCycles.
type CycleResult struct {
	Cycles    []domain.Cycle
	Skipped   bool // density guard tripped, nothing enumerated
	Truncated bool // MaxCycles reached
}

// FindCycles enumerates every elementary directed cycle of 3 to 5 accounts.
//
// The search is restricted to strongly connected components of at least
// three accounts. Each cycle is rooted at its smallest member s and only
// extended through members of s's component that sort after s, so every
// cycle is produced once and already rotated to canonical form. Before
// searching from s, a reverse breadth-first pass measures how far each
// eligible account is from s; the search never steps onto an account that
// cannot close a cycle within MaxCycleLength. Cycles are returned sorted by
// key.
func FindCycles(ctx context.Context, g *graph.Graph, opts CycleOptions) (CycleResult, error) {
	var res CycleResult
	if ShouldSkipCycles(g.NodeCount(), g.DistinctEdgeCount(), opts.Limits) {
		res.Skipped = true
		return res, nil
	}

	comp := stronglyConnected(g)
	size := make(map[int]int)
	for _, c := range comp {
		size[c]++
	}

	f := &cycleFinder{
		ctx:    ctx,
		g:      g,
		comp:   comp,
		max:    opts.MaxCycles,
		onPath: make(map[string]bool),
		dist:   make(map[string]int),
	}
	for _, s := range g.AccountIDs() {
		if size[comp[s]] < MinCycleLength {
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		f.root = s
		f.distancesToRoot()
		f.path = append(f.path[:0], s)
		f.onPath[s] = true
		f.extend(s)
		delete(f.onPath, s)
		if f.err != nil {
			return res, f.err
		}
		if f.full() {
			res.Truncated = true
			break
		}
	}

	sort.Slice(f.found, func(i, j int) bool { return f.found[i].Key() < f.found[j].Key() })
	res.Cycles = f.found
	return res, nil
}

// cancelCheckInterval is how many search steps run between context checks.
const cancelCheckInterval = 1024

type cycleFinder struct {
	ctx    context.Context
	g      *graph.Graph
	comp   map[string]int
	max    int
	root   string
	path   []string
	onPath map[string]bool
	found  []domain.Cycle

	// dist holds, per eligible account, the fewest transfers back to root.
	dist  map[string]int
	queue []string
	steps int
	err   error
}

func (f *cycleFinder) full() bool {
	return f.max > 0 && len(f.found) >= f.max
}

func (f *cycleFinder) eligible(w string) bool {
	return w >= f.root && f.comp[w] == f.comp[f.root]
}

// tick counts one unit of search work and reports whether to stop.
func (f *cycleFinder) tick() bool {
	if f.err != nil {
		return true
	}
	f.steps++
	if f.steps%cancelCheckInterval == 0 {
		f.err = f.ctx.Err()
	}
	return f.err != nil
}

// distancesToRoot walks predecessors from the root, depth-limited to the
// longest useful distance.
func (f *cycleFinder) distancesToRoot() {
	clear(f.dist)
	f.dist[f.root] = 0
	f.queue = append(f.queue[:0], f.root)
	for i := 0; i < len(f.queue); i++ {
		v := f.queue[i]
		d := f.dist[v]
		if d >= MaxCycleLength-1 {
			continue
		}
		for _, u := range f.g.Node(v).Predecessors {
			if f.tick() {
				return
			}
			if _, seen := f.dist[u]; seen || !f.eligible(u) {
				continue
			}
			f.dist[u] = d + 1
			f.queue = append(f.queue, u)
		}
	}
}

func (f *cycleFinder) extend(v string) {
	for _, w := range sortedSuccessors(f.g.Node(v)) {
		if f.full() || f.tick() {
			return
		}
		if w == f.root {
			if len(f.path) >= MinCycleLength {
				members := make([]string, len(f.path))
				copy(members, f.path)
				f.found = append(f.found, domain.Cycle{Members: members})
			}
			continue
		}
		if f.onPath[w] || !f.eligible(w) {
			continue
		}
		// stepping onto w makes the shortest closing cycle len(path)+dist[w]
		d, ok := f.dist[w]
		if !ok || len(f.path)+d > MaxCycleLength {
			continue
		}
		f.path = append(f.path, w)
		f.onPath[w] = true
		f.extend(w)
		f.onPath[w] = false
		f.path = f.path[:len(f.path)-1]
	}
}

func sortedSuccessors(n *graph.Node) []string {
	out := make([]string, len(n.Successors))
	copy(out, n.Successors)
	sort.Strings(out)
	return out
}

// stronglyConnected labels every account with its Tarjan component index.
func stronglyConnected(g *graph.Graph) map[string]int {
	t := &tarjan{
		g:     g,
		index: make(map[string]int),
		low:   make(map[string]int),
		on:    make(map[string]bool),
		comp:  make(map[string]int),
	}
	for _, id := range g.AccountIDs() {
		if _, seen := t.index[id]; !seen {
			t.visit(id)
		}
	}
	return t.comp
}

type tarjan struct {
	g     *graph.Graph
	next  int
	index map[string]int
	low   map[string]int
	on    map[string]bool
	stack []string
	comp  map[string]int
	count int
}

func (t *tarjan) visit(v string) {
	t.index[v] = t.next
	t.low[v] = t.next
	t.next++
	t.stack = append(t.stack, v)
	t.on[v] = true

	for _, w := range t.g.Node(v).Successors {
		if _, seen := t.index[w]; !seen {
			t.visit(w)
			t.low[v] = min(t.low[v], t.low[w])
		} else if t.on[w] {
			t.low[v] = min(t.low[v], t.index[w])
		}
	}

	if t.low[v] == t.index[v] {
		for {
			w := t.stack[len(t.stack)-1]
			t.stack = t.stack[:len(t.stack)-1]
			t.on[w] = false
			t.comp[w] = t.count
			if w == v {
				break
			}
		}
		t.count++
	}
}
