package detect

import (
	"context"
	"testing"
	"time"
)

func TestFindShellChains(t *testing.T) {
	ctx := context.Background()

	t.Run("SingleMaximalChain", func(t *testing.T) {
		l := &ledger{}
		l.add("A", "B", 5000, 0)
		l.add("B", "C", 4900, time.Hour)
		l.add("C", "D", 4800, 2*time.Hour)
		res, err := FindShellChains(ctx, l.graph(), DefaultShellOptions())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(res.Chains) != 1 {
			t.Fatalf("expected exactly 1 chain, got %d: %v", len(res.Chains), res.Chains)
		}
		if key := res.Chains[0].Key(); key != "A>B>C>D" {
			t.Errorf("expected A>B>C>D, got %s", key)
		}
		interior := res.Chains[0].Interior()
		if len(interior) != 2 || interior[0] != "B" || interior[1] != "C" {
			t.Errorf("expected interior [B C], got %v", interior)
		}
	})

	t.Run("ActiveIntermediaryBreaksChain", func(t *testing.T) {
		l := &ledger{}
		l.add("A", "B", 5000, 0)
		l.add("B", "C", 4900, time.Hour)
		// B is busy: 5 transactions in total
		l.add("X", "B", 10, 0)
		l.add("Y", "B", 10, 0)
		l.add("B", "Z", 10, 0)
		res, _ := FindShellChains(ctx, l.graph(), DefaultShellOptions())
		if len(res.Chains) != 0 {
			t.Errorf("expected no chains, got %v", res.Chains)
		}
	})

	t.Run("TwoHopMinimum", func(t *testing.T) {
		l := &ledger{}
		l.add("A", "B", 100, 0)
		res, _ := FindShellChains(ctx, l.graph(), DefaultShellOptions())
		if len(res.Chains) != 0 {
			t.Errorf("expected no chains, got %v", res.Chains)
		}
	})

	t.Run("DepthCap", func(t *testing.T) {
		l := &ledger{}
		path := []string{"O", "S1", "S2", "S3", "S4", "S5", "S6", "T"}
		for i := 0; i+1 < len(path); i++ {
			l.add(path[i], path[i+1], 100, time.Duration(i)*time.Hour)
		}
		res, _ := FindShellChains(ctx, l.graph(), DefaultShellOptions())
		if len(res.Chains) != 1 {
			t.Fatalf("expected 1 chain, got %d", len(res.Chains))
		}
		want := "O>S1>S2>S3>S4"
		if got := res.Chains[0].Key(); got != want {
			t.Errorf("expected %s (%d accounts), got %s", want, ShellMaxChainLength, got)
		}
	})

	t.Run("Branching", func(t *testing.T) {
		l := &ledger{}
		l.add("A", "B", 100, 0)
		l.add("B", "C", 50, time.Hour)
		l.add("B", "D", 50, 2*time.Hour)
		res, _ := FindShellChains(ctx, l.graph(), DefaultShellOptions())
		if len(res.Chains) != 2 {
			t.Fatalf("expected 2 chains, got %v", res.Chains)
		}
		if res.Chains[0].Key() != "A>B>C" || res.Chains[1].Key() != "A>B>D" {
			t.Errorf("expected successors in first-transfer order, got %v", res.Chains)
		}
	})

	t.Run("Truncated", func(t *testing.T) {
		l := &ledger{}
		l.add("A", "B", 100, 0)
		l.add("B", "C", 50, time.Hour)
		l.add("B", "D", 50, 2*time.Hour)
		res, _ := FindShellChains(ctx, l.graph(), ShellOptions{MaxChains: 1})
		if !res.Truncated || len(res.Chains) != 1 {
			t.Errorf("expected truncation at 1 chain, got %d truncated=%v", len(res.Chains), res.Truncated)
		}
	})
}
