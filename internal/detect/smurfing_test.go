package detect

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/opensource-finance/ringwatch/internal/domain"
)

func TestFindSmurfing(t *testing.T) {
	ctx := context.Background()

	t.Run("FanInTruePositive", func(t *testing.T) {
		l := &ledger{}
		for i := 0; i < 12; i++ {
			l.add(fmt.Sprintf("S%02d", i), "HUB", 900, time.Duration(i)*time.Hour)
		}
		flags, err := FindSmurfing(ctx, l.graph())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(flags) != 1 {
			t.Fatalf("expected 1 flag, got %d", len(flags))
		}
		f := flags[0]
		if f.Account != "HUB" || f.Direction != domain.DirectionFanIn {
			t.Errorf("unexpected flag %+v", f)
		}
		if f.DistinctCounterparties != 12 || len(f.Counterparties) != 12 {
			t.Errorf("expected 12 counterparties, got %d", f.DistinctCounterparties)
		}
		if !f.WindowStart.Equal(base) || !f.WindowEnd.Equal(base.Add(11*time.Hour)) {
			t.Errorf("unexpected window %v..%v", f.WindowStart, f.WindowEnd)
		}
	})

	t.Run("FanOut", func(t *testing.T) {
		l := &ledger{}
		for i := 0; i < 10; i++ {
			l.add("SRC", fmt.Sprintf("R%02d", i), 500, time.Duration(i)*time.Hour)
		}
		flags, _ := FindSmurfing(ctx, l.graph())
		if len(flags) != 1 || flags[0].Direction != domain.DirectionFanOut {
			t.Fatalf("expected one fan-out flag, got %+v", flags)
		}
	})

	t.Run("BelowThreshold", func(t *testing.T) {
		l := &ledger{}
		for i := 0; i < 9; i++ {
			l.add(fmt.Sprintf("S%02d", i), "HUB", 900, time.Duration(i)*time.Hour)
		}
		// repeats from the same senders do not add distinct counterparties
		for i := 0; i < 9; i++ {
			l.add(fmt.Sprintf("S%02d", i), "HUB", 900, time.Duration(10+i)*time.Hour)
		}
		flags, _ := FindSmurfing(ctx, l.graph())
		if len(flags) != 0 {
			t.Errorf("expected no flags, got %+v", flags)
		}
	})

	t.Run("WindowBoundaryInclusive", func(t *testing.T) {
		l := &ledger{}
		for i := 0; i < 9; i++ {
			l.add(fmt.Sprintf("S%02d", i), "HUB", 900, 0)
		}
		l.add("S09", "HUB", 900, 72*time.Hour)
		flags, _ := FindSmurfing(ctx, l.graph())
		if len(flags) != 1 {
			t.Errorf("expected transaction at exactly 72h to count, got %d flags", len(flags))
		}
	})

	t.Run("SpreadBeyondWindow", func(t *testing.T) {
		l := &ledger{}
		for i := 0; i < 12; i++ {
			l.add(fmt.Sprintf("S%02d", i), "HUB", 900, time.Duration(i)*10*time.Hour)
		}
		flags, _ := FindSmurfing(ctx, l.graph())
		if len(flags) != 0 {
			t.Errorf("expected no flags for senders spread over 110h, got %+v", flags)
		}
	})

	t.Run("HighVolumeGuard", func(t *testing.T) {
		l := &ledger{}
		for i := 0; i < 60; i++ {
			l.add(fmt.Sprintf("S%02d", i), "MERCHANT", 25, time.Duration(i)*time.Minute)
		}
		flags, _ := FindSmurfing(ctx, l.graph())
		if len(flags) != 0 {
			t.Errorf("expected merchant to be exempt, got %+v", flags)
		}
	})
}
