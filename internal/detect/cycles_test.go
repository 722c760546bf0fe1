package detect

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// layeredLedger links a through four layers of the given width and back
// via z. Every cycle in it has six accounts.
func layeredLedger(width int) *ledger {
	l := &ledger{}
	layer := func(n int) []string {
		ids := make([]string, width)
		for i := range ids {
			ids[i] = fmt.Sprintf("L%d-%03d", n, i)
		}
		return ids
	}
	prev := []string{"a"}
	for n := 1; n <= 4; n++ {
		cur := layer(n)
		for _, from := range prev {
			for _, to := range cur {
				l.add(from, to, 1, 0)
			}
		}
		prev = cur
	}
	for _, from := range prev {
		l.add(from, "0z", 1, 0)
	}
	l.add("0z", "a", 1, 0)
	return l
}

func TestFindCycles(t *testing.T) {
	ctx := context.Background()

	t.Run("TriangleCanonicalRotation", func(t *testing.T) {
		l := &ledger{}
		l.ring("C", "A", "B")
		res, err := FindCycles(ctx, l.graph(), DefaultCycleOptions())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(res.Cycles) != 1 {
			t.Fatalf("expected 1 cycle, got %d", len(res.Cycles))
		}
		if key := res.Cycles[0].Key(); key != "A>B>C" {
			t.Errorf("expected A>B>C, got %s", key)
		}
	})

	t.Run("LengthBoundaries", func(t *testing.T) {
		l := &ledger{}
		l.ring("a1", "a2")
		l.ring("b1", "b2", "b3")
		l.ring("c1", "c2", "c3", "c4", "c5")
		l.ring("d1", "d2", "d3", "d4", "d5", "d6")
		res, err := FindCycles(ctx, l.graph(), DefaultCycleOptions())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(res.Cycles) != 2 {
			t.Fatalf("expected 2 cycles, got %d: %v", len(res.Cycles), res.Cycles)
		}
		if res.Cycles[0].Key() != "b1>b2>b3" || res.Cycles[1].Key() != "c1>c2>c3>c4>c5" {
			t.Errorf("unexpected cycles: %v", res.Cycles)
		}
	})

	t.Run("ParallelEdgesCountOnce", func(t *testing.T) {
		l := &ledger{}
		l.ring("A", "B", "C")
		l.ring("A", "B", "C")
		res, _ := FindCycles(ctx, l.graph(), DefaultCycleOptions())
		if len(res.Cycles) != 1 {
			t.Errorf("expected 1 cycle, got %d", len(res.Cycles))
		}
	})

	t.Run("OverlappingCyclesBothReported", func(t *testing.T) {
		l := &ledger{}
		l.ring("A", "B", "C")
		l.ring("A", "D", "E")
		res, _ := FindCycles(ctx, l.graph(), DefaultCycleOptions())
		if len(res.Cycles) != 2 {
			t.Fatalf("expected 2 cycles, got %d", len(res.Cycles))
		}
		if res.Cycles[0].Key() != "A>B>C" || res.Cycles[1].Key() != "A>D>E" {
			t.Errorf("unexpected cycles: %v", res.Cycles)
		}
	})

	t.Run("Acyclic", func(t *testing.T) {
		l := &ledger{}
		l.add("A", "B", 1, 0)
		l.add("B", "C", 1, 0)
		l.add("A", "C", 1, 0)
		res, _ := FindCycles(ctx, l.graph(), DefaultCycleOptions())
		if len(res.Cycles) != 0 {
			t.Errorf("expected no cycles, got %v", res.Cycles)
		}
	})

	t.Run("DensityGuard", func(t *testing.T) {
		l := &ledger{}
		l.ring("A", "B", "C")
		opts := CycleOptions{Limits: CapacityLimits{MaxNodes: 2, MaxEdges: 2}}
		res, _ := FindCycles(ctx, l.graph(), opts)
		if !res.Skipped {
			t.Error("expected enumeration to be skipped")
		}
		if len(res.Cycles) != 0 {
			t.Errorf("expected no cycles when skipped, got %d", len(res.Cycles))
		}
	})

	t.Run("Truncated", func(t *testing.T) {
		l := &ledger{}
		l.ring("A", "B", "C")
		l.ring("D", "E", "F")
		l.ring("G", "H", "I")
		opts := DefaultCycleOptions()
		opts.MaxCycles = 2
		res, _ := FindCycles(ctx, l.graph(), opts)
		if !res.Truncated {
			t.Error("expected truncation")
		}
		if len(res.Cycles) != 2 {
			t.Errorf("expected 2 cycles, got %d", len(res.Cycles))
		}
	})

	t.Run("CompleteGraphOfFive", func(t *testing.T) {
		l := &ledger{}
		ids := []string{"A", "B", "C", "D", "E"}
		for _, a := range ids {
			for _, b := range ids {
				if a != b {
					l.add(a, b, 1, 0)
				}
			}
		}
		res, _ := FindCycles(ctx, l.graph(), DefaultCycleOptions())
		// directed circuits in K5: C(5,3)*2 + C(5,4)*6 + 24
		if want := 20 + 30 + 24; len(res.Cycles) != want {
			t.Errorf("expected %d cycles, got %d", want, len(res.Cycles))
		}
		seen := make(map[string]bool)
		for _, c := range res.Cycles {
			if seen[c.Key()] {
				t.Errorf("duplicate cycle %s", c.Key())
			}
			seen[c.Key()] = true
			if c.Members[0] != "A" && c.Members[0] != "B" && c.Members[0] != "C" {
				t.Errorf("cycle %s not rooted at its smallest member", c.Key())
			}
		}
	})

	t.Run("LongCyclesOnlyFinishQuickly", func(t *testing.T) {
		g := layeredLedger(100).graph()
		if g.DistinctEdgeCount() != 30201 {
			t.Fatalf("expected 30201 edges, got %d", g.DistinctEdgeCount())
		}
		dctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		start := time.Now()
		res, err := FindCycles(dctx, g, DefaultCycleOptions())
		if err != nil {
			t.Fatalf("unexpected error after %v: %v", time.Since(start), err)
		}
		if len(res.Cycles) != 0 || res.Truncated {
			t.Errorf("expected no cycles of at most five accounts, got %d", len(res.Cycles))
		}
	})

	t.Run("DeadlineStopsSearch", func(t *testing.T) {
		l := &ledger{}
		for i := 0; i < 40; i++ {
			for j := 0; j < 40; j++ {
				if i != j {
					l.add(fmt.Sprintf("k%02d", i), fmt.Sprintf("k%02d", j), 1, 0)
				}
			}
		}
		g := l.graph()
		opts := DefaultCycleOptions()
		opts.MaxCycles = 0

		dctx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
		defer cancel()
		start := time.Now()
		_, err := FindCycles(dctx, g, opts)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected deadline error, got %v", err)
		}
		if elapsed := time.Since(start); elapsed > 2*time.Second {
			t.Errorf("search ignored the deadline for %v", elapsed)
		}
	})

	t.Run("Cancelled", func(t *testing.T) {
		l := &ledger{}
		l.ring("A", "B", "C")
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		if _, err := FindCycles(cctx, l.graph(), DefaultCycleOptions()); err == nil {
			t.Error("expected context error")
		}
	})
}
