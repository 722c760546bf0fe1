// Package rings groups raw detections into named fraud rings with
// financial, network and role summaries.
package rings

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/opensource-finance/ringwatch/internal/detect"
	"github.com/opensource-finance/ringwatch/internal/domain"
	"github.com/opensource-finance/ringwatch/internal/graph"
	"github.com/opensource-finance/ringwatch/internal/rules"
)

// Detections are the raw outputs of the detectors for one run.
type Detections struct {
	Cycles   []domain.Cycle
	Smurfing []domain.SmurfingFlag
	Shells   []domain.ShellChain
}

// Result is the output of Assemble.
type Result struct {
	Rings             []domain.FraudRing
	CrossRingPatterns []domain.CrossRingPattern

	// CrossRingTruncated is set when links hit MaxCrossRingPatterns.
	CrossRingTruncated bool
}

// Options bounds assembly work.
type Options struct {
	MaxCrossRingPatterns int // 0 means unbounded
}

// DefaultOptions returns the standard assembly options.
func DefaultOptions() Options {
	return Options{MaxCrossRingPatterns: 5000}
}

// Assembler turns detections into rings. It is built per run and owns the
// ring id counter, so ids depend only on the detections it is given.
type Assembler struct {
	g     *graph.Graph
	roles *rules.RoleClassifier
	opts  Options
	next  int
}

// NewAssembler creates an assembler over g.
func NewAssembler(g *graph.Graph, roles *rules.RoleClassifier, opts Options) *Assembler {
	return &Assembler{g: g, roles: roles, opts: opts}
}

type candidate struct {
	pattern  domain.RingPattern
	members  map[string]struct{}
	interior []string
	hub      string
	first    time.Time
	key      string
}

// Assemble builds rings in a fixed order: cycles by earliest internal
// transaction, smurfing clusters by earliest window start, shell chains by
// earliest transaction. Ties break on the ring's member key or hub id.
func (a *Assembler) Assemble(ctx context.Context, d Detections, scores map[string]float64) (*Result, error) {
	var ordered []*candidate
	ordered = append(ordered, sortCandidates(a.cycleCandidates(d.Cycles))...)
	ordered = append(ordered, sortCandidates(a.smurfCandidates(d.Smurfing))...)
	ordered = append(ordered, sortCandidates(a.shellCandidates(d.Shells))...)

	res := &Result{Rings: make([]domain.FraudRing, 0, len(ordered))}
	for _, c := range ordered {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ring, err := a.build(ctx, c, scores)
		if err != nil {
			return nil, err
		}
		res.Rings = append(res.Rings, ring)
	}

	res.CrossRingPatterns, res.CrossRingTruncated = a.crossRing(res.Rings)
	addActions(res.Rings, res.CrossRingPatterns)
	return res, nil
}

func (a *Assembler) nextID() string {
	a.next++
	return fmt.Sprintf("RING_%03d", a.next)
}

func (a *Assembler) cycleCandidates(cycles []domain.Cycle) []*candidate {
	out := make([]*candidate, 0, len(cycles))
	for _, c := range cycles {
		members := toSet(c.Members)
		out = append(out, &candidate{
			pattern: domain.RingPatternCycle,
			members: members,
			first:   a.firstInternal(members),
			key:     c.Key(),
		})
	}
	return out
}

// smurfCandidates clusters flags. Two flagged accounts share a cluster
// when one appears among the other's window counterparties or one paid the
// other directly. Shared counterparties alone do not merge clusters.
func (a *Assembler) smurfCandidates(flags []domain.SmurfingFlag) []*candidate {
	if len(flags) == 0 {
		return nil
	}

	byAccount := make(map[string][]domain.SmurfingFlag)
	var flagged []string
	for _, f := range flags {
		if _, ok := byAccount[f.Account]; !ok {
			flagged = append(flagged, f.Account)
		}
		byAccount[f.Account] = append(byAccount[f.Account], f)
	}
	sort.Strings(flagged)

	uf := newUnionFind(flagged)
	for _, acc := range flagged {
		for _, f := range byAccount[acc] {
			for _, cp := range f.Counterparties {
				if _, ok := byAccount[cp]; ok {
					uf.union(acc, cp)
				}
			}
		}
		// direct hand-off between two flagged accounts
		for _, tx := range a.g.Node(acc).Out {
			if _, ok := byAccount[tx.ReceiverID]; ok {
				uf.union(acc, tx.ReceiverID)
			}
		}
	}

	groups := make(map[string][]string)
	for _, acc := range flagged {
		root := uf.find(acc)
		groups[root] = append(groups[root], acc)
	}

	out := make([]*candidate, 0, len(groups))
	for _, accs := range groups {
		c := &candidate{pattern: domain.RingPatternSmurfing, members: make(map[string]struct{})}
		best := -1
		for _, acc := range accs {
			c.members[acc] = struct{}{}
			for _, f := range byAccount[acc] {
				for _, cp := range f.Counterparties {
					if !detect.IsHighVolume(a.g.Node(cp)) {
						c.members[cp] = struct{}{}
					}
				}
				if c.first.IsZero() || f.WindowStart.Before(c.first) {
					c.first = f.WindowStart
				}
				if f.DistinctCounterparties > best || (f.DistinctCounterparties == best && acc < c.hub) {
					best = f.DistinctCounterparties
					c.hub = acc
				}
			}
		}
		c.key = c.hub
		out = append(out, c)
	}
	return out
}

func (a *Assembler) shellCandidates(chains []domain.ShellChain) []*candidate {
	out := make([]*candidate, 0, len(chains))
	for _, ch := range chains {
		members := toSet(ch.Path)
		interior := make([]string, len(ch.Interior()))
		copy(interior, ch.Interior())
		out = append(out, &candidate{
			pattern:  domain.RingPatternShell,
			members:  members,
			interior: interior,
			first:    a.firstInternal(members),
			key:      ch.Key(),
		})
	}
	return out
}

func (a *Assembler) firstInternal(members map[string]struct{}) time.Time {
	internal := a.g.Between(members)
	if len(internal) == 0 {
		return time.Time{}
	}
	return internal[0].Timestamp
}

func sortCandidates(cs []*candidate) []*candidate {
	sort.SliceStable(cs, func(i, j int) bool {
		if !cs[i].first.Equal(cs[j].first) {
			return cs[i].first.Before(cs[j].first)
		}
		return cs[i].key < cs[j].key
	})
	return cs
}

func toSet(ids []string) map[string]struct{} {
	s := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func sortedKeys(s map[string]struct{}) []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func joinIDs(ids []string) string {
	return strings.Join(ids, ", ")
}

type unionFind struct {
	parent map[string]string
}

func newUnionFind(ids []string) *unionFind {
	uf := &unionFind{parent: make(map[string]string, len(ids))}
	for _, id := range ids {
		uf.parent[id] = id
	}
	return uf
}

func (u *unionFind) find(x string) string {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

// union keeps the smaller id as root so grouping is order independent.
func (u *unionFind) union(a, b string) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if rb < ra {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
}
