// Benchmark tool for measuring RingWatch detection quality on a synthetic
// ledger with planted rings.
//
// Usage:
//
//	go run ./cmd/benchmark -local
//	go run ./cmd/benchmark -url http://localhost:8080
//
// This tool:
//  1. Generates background transfers and plants cycles, fan-in collectors
//     and shell chains in them
//  2. Analyzes the ledger in-process or through POST /analyze
//  3. Compares flagged accounts with the planted ones
//  4. Reports precision, recall and F1 per planted pattern and overall
package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/opensource-finance/ringwatch/internal/domain"
	"github.com/opensource-finance/ringwatch/internal/pipeline"
	"github.com/opensource-finance/ringwatch/internal/rules"
)

// Metrics tracks account-level results.
type Metrics struct {
	TruePositives  int
	FalsePositives int
	FalseNegatives int

	// Planted accounts recovered, keyed by planted pattern
	Recovered map[string]int
	Planted   map[string]int
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "RingWatch base URL")
	local := flag.Bool("local", false, "Run the pipeline in-process instead of over HTTP")
	tenantID := flag.String("tenant", "benchmark-test", "Tenant ID for requests")
	seed := flag.Uint64("seed", 42, "Random seed")
	accounts := flag.Int("accounts", 2000, "Background accounts")
	txs := flag.Int("txs", 6000, "Background transfers")
	cycles := flag.Int("cycles", 25, "Planted cycles")
	fanIns := flag.Int("fan-ins", 10, "Planted fan-in collectors")
	shells := flag.Int("shells", 15, "Planted shell chains")
	verbose := flag.Bool("verbose", false, "Print missed and spurious accounts")
	flag.Parse()

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║        RINGWATCH BENCHMARK - Planted Ring Detection           ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nSeed:        %d\n", *seed)
	fmt.Printf("Accounts:    %d\n", *accounts)
	fmt.Printf("Transfers:   %d\n", *txs)
	fmt.Printf("Planted:     %d cycles, %d fan-ins, %d shell chains\n", *cycles, *fanIns, *shells)
	if *local {
		fmt.Println("Mode:        in-process")
	} else {
		fmt.Printf("Mode:        %s\n", *baseURL)
	}
	fmt.Println()

	synth := Generate(GenerateOptions{
		Seed:          *seed,
		NoiseAccounts: *accounts,
		NoiseTxs:      *txs,
		Cycles:        *cycles,
		FanIns:        *fanIns,
		ShellChains:   *shells,
	})
	fmt.Printf("✓ Generated %d transactions, %d planted accounts\n", len(synth.Transactions), len(synth.Planted))

	startTime := time.Now()
	var report *domain.Report
	var err error
	if *local {
		report, err = analyzeLocal(synth.Transactions)
	} else {
		if err := checkHealth(*baseURL); err != nil {
			fmt.Printf("ERROR: RingWatch not reachable at %s: %v\n", *baseURL, err)
			fmt.Println("\nMake sure RingWatch is running:")
			fmt.Println("  go run ./cmd/ringwatch")
			os.Exit(1)
		}
		report, err = analyzeRemote(*baseURL, *tenantID, synth.Transactions)
	}
	if err != nil {
		fmt.Printf("ERROR: analysis failed: %v\n", err)
		os.Exit(1)
	}
	duration := time.Since(startTime)

	m := score(synth, report, *verbose)
	printResults(m, report, duration)
}

func analyzeLocal(txs []domain.Transaction) (*domain.Report, error) {
	roles, err := rules.NewDefaultClassifier()
	if err != nil {
		return nil, err
	}
	return pipeline.NewAnalyzer(roles, pipeline.DefaultOptions()).Run(context.Background(), txs)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func analyzeRemote(baseURL, tenantID string, txs []domain.Transaction) (*domain.Report, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Write([]string{"transaction_id", "sender_id", "receiver_id", "amount", "timestamp"})
	for _, tx := range txs {
		w.Write([]string{
			tx.ID,
			tx.SenderID,
			tx.ReceiverID,
			strconv.FormatFloat(tx.Amount, 'f', 2, 64),
			tx.Timestamp.Format("2006-01-02 15:04:05"),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+"/analyze", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "text/csv")
	req.Header.Set("X-Tenant-ID", tenantID)

	client := &http.Client{Timeout: 5 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var report domain.Report
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, err
	}
	return &report, nil
}

func score(synth *Synthetic, report *domain.Report, verbose bool) *Metrics {
	m := &Metrics{Recovered: make(map[string]int), Planted: make(map[string]int)}
	for _, p := range synth.Planted {
		m.Planted[p]++
	}

	flagged := make(map[string]bool, len(report.SuspiciousAccounts))
	for _, a := range report.SuspiciousAccounts {
		flagged[a.AccountID] = true
		if p, ok := synth.Planted[a.AccountID]; ok {
			m.TruePositives++
			m.Recovered[p]++
		} else {
			m.FalsePositives++
			if verbose {
				fmt.Printf("✗ spurious %-16s score %.1f %v\n", a.AccountID, a.SuspicionScore, a.DetectedPatterns)
			}
		}
	}

	var missed []string
	for id := range synth.Planted {
		if !flagged[id] {
			m.FalseNegatives++
			missed = append(missed, id)
		}
	}
	if verbose {
		sort.Strings(missed)
		for _, id := range missed {
			fmt.Printf("✗ missed   %-16s (%s)\n", id, synth.Planted[id])
		}
	}
	return m
}

func printResults(m *Metrics, report *domain.Report, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 REPORT\n")
	fmt.Printf("   Accounts Analyzed:  %d\n", report.Summary.TotalAccountsAnalyzed)
	fmt.Printf("   Accounts Flagged:   %d\n", report.Summary.SuspiciousAccountsFlagged)
	fmt.Printf("   Rings Detected:     %d\n", report.Summary.FraudRingsDetected)
	fmt.Printf("   Diagnostics:        %d\n", len(report.Diagnostics))

	precision := float64(0)
	if m.TruePositives+m.FalsePositives > 0 {
		precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}

	recall := float64(0)
	if m.TruePositives+m.FalseNegatives > 0 {
		recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
	}

	f1 := float64(0)
	if precision+recall > 0 {
		f1 = 2 * (precision * recall) / (precision + recall)
	}

	fmt.Printf("\n🎯 DETECTION METRICS\n")
	fmt.Printf("   True Positives:   %d\n", m.TruePositives)
	fmt.Printf("   False Positives:  %d\n", m.FalsePositives)
	fmt.Printf("   False Negatives:  %d\n", m.FalseNegatives)
	fmt.Printf("   Precision:  %.4f  (of flagged accounts, how many were planted)\n", precision)
	fmt.Printf("   Recall:     %.4f  (of planted accounts, how many were flagged)\n", recall)
	fmt.Printf("   F1-Score:   %.4f\n", f1)

	fmt.Printf("\n🔍 RECALL BY PATTERN\n")
	patterns := make([]string, 0, len(m.Planted))
	for p := range m.Planted {
		patterns = append(patterns, p)
	}
	sort.Strings(patterns)
	for _, p := range patterns {
		fmt.Printf("   %-14s %4d / %4d (%.2f%%)\n", p, m.Recovered[p], m.Planted[p],
			100*float64(m.Recovered[p])/float64(m.Planted[p]))
	}

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	fmt.Printf("   Pipeline Time:    %.3fs\n", report.Summary.ProcessingTimeSeconds)

	fmt.Printf("\n💡 INTERPRETATION\n")
	if recall >= 0.9 {
		fmt.Println("   ✅ Excellent recall - most planted accounts flagged")
	} else if recall >= 0.7 {
		fmt.Println("   ⚠️  Good recall - but missing some planted accounts")
	} else {
		fmt.Println("   ❌ Poor recall - planted rings are being missed")
	}

	if precision >= 0.5 {
		fmt.Println("   ✅ Good precision - flags are meaningful")
	} else {
		fmt.Println("   ⚠️  Low precision - many background accounts flagged")
	}

	fmt.Println()
}
