package detect

import (
	"context"
	"sort"
	"time"

	"github.com/opensource-finance/ringwatch/internal/domain"
	"github.com/opensource-finance/ringwatch/internal/graph"
)

// Smurfing thresholds.
const (
	FanThreshold = 10
	FanWindow    = 72 * time.Hour

	// Accounts with this many lifetime counterparties are treated as
	// legitimate high-volume businesses (payroll, merchants) and never flagged.
	HighVolumeCounterparties = 50
)

// IsHighVolume reports whether n is exempt from smurfing flags.
func IsHighVolume(n *graph.Node) bool {
	return n != nil && n.UniqueCounterparties >= HighVolumeCounterparties
}

// FindSmurfing flags accounts that received from (fan-in) or sent to
// (fan-out) at least FanThreshold distinct counterparties inside one
// inclusive 72-hour window. Flags are returned ordered by account, fan-in
// before fan-out.
func FindSmurfing(ctx context.Context, g *graph.Graph) ([]domain.SmurfingFlag, error) {
	var flags []domain.SmurfingFlag
	for _, id := range g.AccountIDs() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n := g.Node(id)
		if IsHighVolume(n) {
			continue
		}
		if f, ok := sweep(id, domain.DirectionFanIn, n.In); ok {
			flags = append(flags, f)
		}
		if f, ok := sweep(id, domain.DirectionFanOut, n.Out); ok {
			flags = append(flags, f)
		}
	}
	return flags, nil
}

// sweep runs a two-pointer pass over timestamp-sorted transactions and
// keeps the earliest window with the most distinct counterparties.
func sweep(account string, dir domain.Direction, txs []domain.Transaction) (domain.SmurfingFlag, bool) {
	if len(txs) < FanThreshold {
		return domain.SmurfingFlag{}, false
	}

	other := func(tx domain.Transaction) string {
		if dir == domain.DirectionFanIn {
			return tx.SenderID
		}
		return tx.ReceiverID
	}

	counts := make(map[string]int)
	var best domain.SmurfingFlag
	j := 0
	for i := range txs {
		limit := txs[i].Timestamp.Add(FanWindow)
		for j < len(txs) && !txs[j].Timestamp.After(limit) {
			counts[other(txs[j])]++
			j++
		}
		if len(counts) > best.DistinctCounterparties {
			best = domain.SmurfingFlag{
				Account:                account,
				Direction:              dir,
				WindowStart:            txs[i].Timestamp,
				WindowEnd:              txs[j-1].Timestamp,
				DistinctCounterparties: len(counts),
				Counterparties:         keys(counts),
			}
		}
		c := other(txs[i])
		if counts[c]--; counts[c] == 0 {
			delete(counts, c)
		}
	}

	return best, best.DistinctCounterparties >= FanThreshold
}

func keys(m map[string]int) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
