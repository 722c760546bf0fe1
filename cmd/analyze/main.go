// Command analyze runs the detection pipeline over a CSV ledger and
// writes the JSON report.
//
// Usage:
//
//	analyze -in ledger.csv -out report.json
//	cat ledger.csv | analyze > report.json
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/opensource-finance/ringwatch/internal/config"
	"github.com/opensource-finance/ringwatch/internal/ingest"
	"github.com/opensource-finance/ringwatch/internal/logging"
	"github.com/opensource-finance/ringwatch/internal/pipeline"
	"github.com/opensource-finance/ringwatch/internal/rules"
)

func main() {
	in := flag.String("in", "", "CSV ledger to read (default stdin)")
	out := flag.String("out", "", "Report file to write (default stdout)")
	configPath := flag.String("config", "", "Optional YAML config for detection limits")
	pretty := flag.Bool("pretty", true, "Indent JSON output")
	flag.Parse()

	if err := run(*in, *out, *configPath, *pretty); err != nil {
		fmt.Fprintf(os.Stderr, "analyze: %v\n", err)
		os.Exit(1)
	}
}

func run(in, out, configPath string, pretty bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	// Logs go to stderr so the report can be piped.
	slog.SetDefault(logging.NewWithWriter(cfg.Logging, os.Stderr))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var r io.Reader = os.Stdin
	if in != "" {
		f, err := os.Open(in)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	parsed, err := ingest.ReadCSV(r)
	if err != nil {
		return err
	}
	for _, rowErr := range parsed.Errors {
		slog.Warn("row rejected", "line", rowErr.Line, "reason", rowErr.Reason, "error", rowErr.Err)
	}

	roles, err := rules.NewDefaultClassifier()
	if err != nil {
		return err
	}
	if path := cfg.Detection.RoleRulesPath; path != "" {
		loaded, err := rules.LoadRoleRules(path)
		if err != nil {
			return err
		}
		if err := roles.Reload(loaded); err != nil {
			return err
		}
	}

	analyzer := pipeline.NewAnalyzer(roles, pipeline.OptionsFromConfig(cfg.Detection))
	report, err := analyzer.RunLedger(ctx, pipeline.Ledger{
		Transactions: parsed.Transactions,
		Rejected:     parsed.Rejected,
	})
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if out != "" {
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	slog.Info("analysis complete",
		"accounts", report.Summary.TotalAccountsAnalyzed,
		"flagged", report.Summary.SuspiciousAccountsFlagged,
		"rings", report.Summary.FraudRingsDetected,
	)
	return nil
}
