package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/opensource-finance/ringwatch/internal/domain"
)

func TestCollector(t *testing.T) {
	c := New()

	c.StageCompleted("cycles", 5*time.Millisecond)
	c.RunCompleted(&domain.Report{
		Summary: domain.Summary{
			ProcessingTimeSeconds: 0.2,
			RejectedByReason:      map[string]int{"self_transfer": 2},
		},
		FraudRings: []domain.FraudRing{
			{PatternType: domain.RingPatternCycle},
			{PatternType: domain.RingPatternCycle},
			{PatternType: domain.RingPatternShell},
		},
		SuspiciousAccounts: make([]domain.SuspiciousAccount, 4),
		Diagnostics:        []domain.Diagnostic{{Code: domain.DiagRowsRejected}},
	})
	c.RunFailed(errors.New("boom"))

	if got := testutil.ToFloat64(c.runsTotal); got != 1 {
		t.Errorf("expected 1 run, got %v", got)
	}
	if got := testutil.ToFloat64(c.runFailures); got != 1 {
		t.Errorf("expected 1 failure, got %v", got)
	}
	if got := testutil.ToFloat64(c.ringsDetected.WithLabelValues("cycle")); got != 2 {
		t.Errorf("expected 2 cycle rings, got %v", got)
	}
	if got := testutil.ToFloat64(c.accountsFlagged); got != 4 {
		t.Errorf("expected 4 flagged accounts, got %v", got)
	}
	if got := testutil.ToFloat64(c.rowsRejected.WithLabelValues("self_transfer")); got != 2 {
		t.Errorf("expected 2 rejected rows, got %v", got)
	}
}

func TestHandler(t *testing.T) {
	c := New()
	c.RunFailed(errors.New("boom"))

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if !strings.Contains(string(body), "ringwatch_analysis_failures_total 1") {
		t.Errorf("expected failure counter in output, got %s", body)
	}
}
