package detect

import (
	"fmt"
	"time"

	"github.com/opensource-finance/ringwatch/internal/domain"
	"github.com/opensource-finance/ringwatch/internal/graph"
)

var base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type ledger struct {
	txs []domain.Transaction
}

func (l *ledger) add(from, to string, amount float64, at time.Duration) {
	l.txs = append(l.txs, domain.Transaction{
		ID:         fmt.Sprintf("t%03d", len(l.txs)+1),
		SenderID:   from,
		ReceiverID: to,
		Amount:     amount,
		Timestamp:  base.Add(at),
	})
}

func (l *ledger) ring(members ...string) {
	for i, m := range members {
		l.add(m, members[(i+1)%len(members)], 1000, time.Duration(i)*time.Hour)
	}
}

func (l *ledger) graph() *graph.Graph {
	g, _ := graph.Build(l.txs)
	return g
}
