package velocity

import (
	"fmt"
	"testing"
	"time"

	"github.com/opensource-finance/ringwatch/internal/domain"
	"github.com/opensource-finance/ringwatch/internal/graph"
)

var base = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func burst(from, to string, n int, step time.Duration, offset int) []domain.Transaction {
	out := make([]domain.Transaction, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, domain.Transaction{
			ID:         fmt.Sprintf("%s-%s-%d", from, to, offset+i),
			SenderID:   from,
			ReceiverID: to,
			Amount:     100,
			Timestamp:  base.Add(time.Duration(offset+i) * step),
		})
	}
	return out
}

func TestVelocityService(t *testing.T) {
	txs := burst("user-001", "user-002", 6, time.Hour, 0)
	txs = append(txs, burst("slow", "user-003", 6, 10*time.Hour, 0)...)
	g, _ := graph.Build(txs)
	svc := NewService(g)

	t.Run("PeakInWindow", func(t *testing.T) {
		if count := PeakCount(g.Node("user-001").All, 24*time.Hour); count != 6 {
			t.Errorf("expected count 6, got %d", count)
		}

		// receiving side counts too
		if count := PeakCount(g.Node("user-002").All, 24*time.Hour); count != 6 {
			t.Errorf("expected count 6 for receiver, got %d", count)
		}
	})

	t.Run("NarrowWindow", func(t *testing.T) {
		if count := PeakCount(g.Node("user-001").All, time.Hour); count != 2 {
			t.Errorf("expected 2 transactions within one inclusive hour, got %d", count)
		}
	})

	t.Run("HighVelocity", func(t *testing.T) {
		if !svc.IsHighVelocity("user-001") {
			t.Error("expected user-001 to be high velocity")
		}
		if !svc.IsHighVelocity("user-002") {
			t.Error("expected receiver user-002 to be high velocity")
		}
		if svc.IsHighVelocity("slow") {
			t.Error("expected slow sender not to be high velocity")
		}
	})

	t.Run("UnknownAccount", func(t *testing.T) {
		if svc.IsHighVelocity("unknown-user") {
			t.Error("expected unknown account not to be high velocity")
		}
	})
}

func TestPeakCountThreshold(t *testing.T) {
	// exactly five inside 24h is not high velocity
	g, _ := graph.Build(burst("a", "b", 5, time.Hour, 0))
	if NewService(g).IsHighVelocity("a") {
		t.Error("five transactions must not trip the signal")
	}
	if PeakCount(nil, time.Hour) != 0 {
		t.Error("expected zero for no transactions")
	}
}
