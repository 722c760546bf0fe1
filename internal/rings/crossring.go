package rings

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/ringwatch/internal/domain"
)

// SequentialGap is the largest pause between two rings still reported as
// one operation continuing the other.
const SequentialGap = 24 * time.Hour

type ringPair struct{ i, j int }

var severityRank = map[domain.Severity]int{
	domain.SeverityCritical: 0,
	domain.SeverityHigh:     1,
	domain.SeverityMedium:   2,
}

// crossRing finds at most one relationship per ring pair, choosing the most
// severe: shared accounts, then fund flow, then concurrent or sequential
// operation windows. At most MaxCrossRingPatterns links are kept across all
// kinds; the second return reports that the cap cut the search short.
// Output is ordered by severity, then ring ids.
func (a *Assembler) crossRing(rings []domain.FraudRing) ([]domain.CrossRingPattern, bool) {
	links := make(map[ringPair]*domain.CrossRingPattern)

	ringsOf := make(map[string][]int)
	for idx, r := range rings {
		for _, m := range r.MemberAccounts {
			ringsOf[m] = append(ringsOf[m], idx)
		}
	}

	truncated := false
	limit := a.opts.MaxCrossRingPatterns
	full := func() bool {
		if limit > 0 && len(links) >= limit {
			truncated = true
		}
		return truncated
	}

	// Shared accounts
	shared := make(map[ringPair][]string)
	for acc, idxs := range ringsOf {
		for x := 0; x < len(idxs); x++ {
			for y := x + 1; y < len(idxs); y++ {
				p := ringPair{idxs[x], idxs[y]}
				shared[p] = append(shared[p], acc)
			}
		}
	}
	for _, p := range sortedPairs(shared) {
		if full() {
			break
		}
		accs := shared[p]
		sort.Strings(accs)
		links[p] = &domain.CrossRingPattern{
			PatternName:    domain.CrossRingSharedAccounts,
			Severity:       domain.SeverityCritical,
			RingIDs:        []string{rings[p.i].RingID, rings[p.j].RingID},
			SharedAccounts: accs,
			Description: fmt.Sprintf("%s and %s share %d account(s): %s",
				rings[p.i].RingID, rings[p.j].RingID, len(accs), joinIDs(accs)),
		}
	}

	// Fund flow between members of otherwise disjoint rings
	flows := make(map[ringPair]decimal.Decimal)
	if !truncated {
		for _, tx := range a.g.Transactions() {
			for _, i := range ringsOf[tx.SenderID] {
				for _, j := range ringsOf[tx.ReceiverID] {
					if i == j {
						continue
					}
					p := ringPair{min(i, j), max(i, j)}
					if _, ok := shared[p]; ok {
						continue
					}
					flows[p] = flows[p].Add(decimal.NewFromFloat(tx.Amount))
				}
			}
		}
	}
	for _, p := range sortedPairs(flows) {
		if full() {
			break
		}
		amt := flows[p]
		links[p] = &domain.CrossRingPattern{
			PatternName: domain.CrossRingFundFlow,
			Severity:    domain.SeverityHigh,
			RingIDs:     []string{rings[p.i].RingID, rings[p.j].RingID},
			LinkAmount:  money(amt),
			Description: fmt.Sprintf("%s in transfers flowed between members of %s and %s",
				amt.StringFixed(2), rings[p.i].RingID, rings[p.j].RingID),
		}
	}

	// Temporal links, swept in order of operation start
	timed := make([]int, 0, len(rings))
	for idx, r := range rings {
		if !r.FinancialSummary.OperationStart.IsZero() {
			timed = append(timed, idx)
		}
	}
	sort.SliceStable(timed, func(x, y int) bool {
		return rings[timed[x]].FinancialSummary.OperationStart.Before(rings[timed[y]].FinancialSummary.OperationStart)
	})

sweep:
	for x, ai := range timed {
		if truncated {
			break
		}
		ra := rings[ai].FinancialSummary
		for _, bi := range timed[x+1:] {
			rb := rings[bi].FinancialSummary
			if rb.OperationStart.After(ra.OperationEnd.Add(SequentialGap)) {
				break
			}
			p := ringPair{min(ai, bi), max(ai, bi)}
			if _, ok := links[p]; ok {
				continue
			}
			if full() {
				break sweep
			}

			overlapEnd := ra.OperationEnd
			if rb.OperationEnd.Before(overlapEnd) {
				overlapEnd = rb.OperationEnd
			}
			first, second := rings[ai].RingID, rings[bi].RingID
			if !rb.OperationStart.After(overlapEnd) {
				hours := round(overlapEnd.Sub(rb.OperationStart).Hours(), 1)
				links[p] = &domain.CrossRingPattern{
					PatternName: domain.CrossRingConcurrent,
					Severity:    domain.SeverityHigh,
					RingIDs:     []string{rings[p.i].RingID, rings[p.j].RingID},
					Description: fmt.Sprintf("%s and %s operated simultaneously for %.1f hours", first, second, hours),
				}
				continue
			}
			gap := round(rb.OperationStart.Sub(ra.OperationEnd).Hours(), 1)
			links[p] = &domain.CrossRingPattern{
				PatternName: domain.CrossRingSequential,
				Severity:    domain.SeverityMedium,
				RingIDs:     []string{rings[p.i].RingID, rings[p.j].RingID},
				GapHours:    gap,
				Description: fmt.Sprintf("%s started %.1f hours after %s ended", second, gap, first),
			}
		}
	}

	keys := make([]ringPair, 0, len(links))
	for p := range links {
		keys = append(keys, p)
	}
	sort.Slice(keys, func(x, y int) bool {
		kx, ky := keys[x], keys[y]
		sx, sy := severityRank[links[kx].Severity], severityRank[links[ky].Severity]
		if sx != sy {
			return sx < sy
		}
		if kx.i != ky.i {
			return kx.i < ky.i
		}
		return kx.j < ky.j
	})

	out := make([]domain.CrossRingPattern, 0, len(keys))
	for _, p := range keys {
		out = append(out, *links[p])
	}
	return out, truncated
}

func sortedPairs[V any](m map[ringPair]V) []ringPair {
	out := make([]ringPair, 0, len(m))
	for p := range m {
		out = append(out, p)
	}
	sort.Slice(out, func(x, y int) bool {
		if out[x].i != out[y].i {
			return out[x].i < out[y].i
		}
		return out[x].j < out[y].j
	})
	return out
}
