// Package pipeline orchestrates one analysis run: graph construction,
// parallel detection, scoring and ring assembly.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/opensource-finance/ringwatch/internal/detect"
	"github.com/opensource-finance/ringwatch/internal/domain"
	"github.com/opensource-finance/ringwatch/internal/graph"
	"github.com/opensource-finance/ringwatch/internal/rings"
	"github.com/opensource-finance/ringwatch/internal/rules"
	"github.com/opensource-finance/ringwatch/internal/scoring"
)

var (
	// ErrInvariantViolation aborts a run whose assembled output is inconsistent.
	ErrInvariantViolation = errors.New("internal invariant violation")

	// ErrEmptyLedger is returned when a run is given no rows at all.
	ErrEmptyLedger = errors.New("ledger has no transactions")
)

var tracer = otel.Tracer("ringwatch-pipeline")

// Stage names used for spans, diagnostics and metrics.
const (
	StageBuild    = "build"
	StageCycles   = "cycles"
	StageSmurfing = "smurfing"
	StageShell    = "shell"
	StageScore    = "score"
	StageAssemble = "assemble"
)

// Observer receives run telemetry. Implementations must be safe for
// concurrent use.
type Observer interface {
	StageCompleted(stage string, d time.Duration)
	RunCompleted(report *domain.Report)
	RunFailed(err error)
}

// Options configures detection limits.
type Options struct {
	Cycles detect.CycleOptions
	Shells detect.ShellOptions
	Rings  rings.Options
}

// DefaultOptions returns the standard limits.
func DefaultOptions() Options {
	return Options{
		Cycles: detect.DefaultCycleOptions(),
		Shells: detect.DefaultShellOptions(),
		Rings:  rings.DefaultOptions(),
	}
}

// OptionsFromConfig maps detection config onto pipeline options.
func OptionsFromConfig(cfg domain.DetectionConfig) Options {
	opts := DefaultOptions()
	opts.Cycles.Limits = detect.CapacityLimits{MaxNodes: cfg.CycleMaxNodes, MaxEdges: cfg.CycleMaxEdges}
	opts.Cycles.MaxCycles = cfg.MaxCycles
	opts.Shells.MaxChains = cfg.MaxShellChains
	return opts
}

// Ledger is the input of a run: accepted-for-parsing rows plus rows the
// ingest layer already rejected, by reason. RunID, when set, becomes the
// report id.
type Ledger struct {
	RunID        string
	Transactions []domain.Transaction
	Rejected     map[string]int
}

// Analyzer runs the detection pipeline. It holds no per-run state and is
// safe for concurrent use.
type Analyzer struct {
	opts     Options
	roles    *rules.RoleClassifier
	scorer   *scoring.Scorer
	observer Observer
}

// NewAnalyzer creates an analyzer.
func NewAnalyzer(roles *rules.RoleClassifier, opts Options) *Analyzer {
	return &Analyzer{
		opts:   opts,
		roles:  roles,
		scorer: scoring.NewScorer(),
	}
}

// SetObserver attaches run telemetry.
func (a *Analyzer) SetObserver(o Observer) {
	a.observer = o
}

// Run analyses a list of transactions.
func (a *Analyzer) Run(ctx context.Context, txs []domain.Transaction) (*domain.Report, error) {
	return a.RunLedger(ctx, Ledger{Transactions: txs})
}

type detections struct {
	cycles      detect.CycleResult
	smurfing    []domain.SmurfingFlag
	shells      detect.ShellResult
	diagnostics []domain.Diagnostic
}

// RunLedger analyses a ledger and returns the report.
func (a *Analyzer) RunLedger(ctx context.Context, ledger Ledger) (*domain.Report, error) {
	report, err := a.run(ctx, ledger)
	if a.observer != nil {
		if err != nil {
			a.observer.RunFailed(err)
		} else {
			a.observer.RunCompleted(report)
		}
	}
	return report, err
}

func (a *Analyzer) run(ctx context.Context, ledger Ledger) (*domain.Report, error) {
	start := time.Now()
	preRejected := 0
	for _, n := range ledger.Rejected {
		preRejected += n
	}
	if len(ledger.Transactions) == 0 && preRejected == 0 {
		return nil, ErrEmptyLedger
	}

	runID := ledger.RunID
	if runID == "" {
		runID = uuid.New().String()
	}
	ctx, span := tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("run.id", runID),
		attribute.Int("ledger.rows", len(ledger.Transactions)+preRejected),
	))
	defer span.End()

	// Build
	stageStart := time.Now()
	_, buildSpan := tracer.Start(ctx, "pipeline."+StageBuild)
	g, stats := graph.Build(ledger.Transactions)
	buildSpan.SetAttributes(
		attribute.Int("graph.nodes", g.NodeCount()),
		attribute.Int("graph.edges", g.EdgeCount()),
	)
	buildSpan.End()
	a.stageDone(StageBuild, stageStart)

	// Detect
	det, err := a.detect(ctx, g)
	if err != nil {
		return nil, fmt.Errorf("detection cancelled: %w", err)
	}

	// Merge detector tags, single-threaded
	tags := mergeTags(det)

	// Score
	stageStart = time.Now()
	_, scoreSpan := tracer.Start(ctx, "pipeline."+StageScore)
	assessed := a.scorer.Assess(&scoring.Input{Graph: g, Tags: tags})
	scoreSpan.End()
	a.stageDone(StageScore, stageStart)

	scores := make(map[string]float64, len(assessed))
	for id, as := range assessed {
		scores[id] = as.Score
	}

	// Assemble
	stageStart = time.Now()
	actx, asmSpan := tracer.Start(ctx, "pipeline."+StageAssemble)
	assembled, err := rings.NewAssembler(g, a.roles, a.opts.Rings).Assemble(actx, rings.Detections{
		Cycles:   det.cycles.Cycles,
		Smurfing: det.smurfing,
		Shells:   det.shells.Chains,
	}, scores)
	asmSpan.End()
	if err != nil {
		return nil, fmt.Errorf("ring assembly failed: %w", err)
	}
	a.stageDone(StageAssemble, stageStart)

	if err := checkInvariants(g, assembled.Rings, assessed); err != nil {
		span.RecordError(err)
		return nil, err
	}

	accounts := buildAccounts(g, assessed, assembled.Rings)

	report := &domain.Report{
		ID:                 runID,
		Fingerprint:        ledger.Fingerprint(),
		CreatedAt:          time.Now().UTC(),
		FraudRings:         assembled.Rings,
		SuspiciousAccounts: accounts,
		CrossRingPatterns:  assembled.CrossRingPatterns,
		Diagnostics:        det.diagnostics,
	}

	rejected := make(map[string]int, len(stats.RejectedByReason)+len(ledger.Rejected))
	for reason, n := range stats.RejectedByReason {
		rejected[string(reason)] += n
	}
	for reason, n := range ledger.Rejected {
		rejected[reason] += n
	}

	var laundered decimal.Decimal
	for _, r := range assembled.Rings {
		laundered = laundered.Add(decimal.NewFromFloat(r.FinancialSummary.EstimatedLaundered))
	}

	report.Summary = domain.Summary{
		TotalAccountsAnalyzed:     g.NodeCount(),
		SuspiciousAccountsFlagged: len(accounts),
		FraudRingsDetected:        len(assembled.Rings),
		TransactionsAccepted:      stats.Accepted,
		TransactionsRejected:      stats.Rejected + preRejected,
		RejectedByReason:          rejected,
		TotalEstimatedLaundered:   laundered.Round(2).InexactFloat64(),
	}

	if n := report.Summary.TransactionsRejected; n > 0 {
		report.Diagnostics = append(report.Diagnostics, domain.Diagnostic{
			Stage:    StageBuild,
			Code:     domain.DiagRowsRejected,
			Severity: domain.DiagnosticInfo,
			Message:  fmt.Sprintf("%d rows rejected during ingestion", n),
		})
	}
	if stats.Accepted == 0 {
		report.Diagnostics = append(report.Diagnostics, domain.Diagnostic{
			Stage:    StageBuild,
			Code:     domain.DiagNoTransactionsKept,
			Severity: domain.DiagnosticWarning,
			Message:  "no valid transactions remained after validation",
		})
	}
	if assembled.CrossRingTruncated {
		report.Diagnostics = append(report.Diagnostics, domain.Diagnostic{
			Stage:    StageAssemble,
			Code:     domain.DiagCrossRingTruncated,
			Severity: domain.DiagnosticWarning,
			Message:  fmt.Sprintf("cross-ring patterns capped at %d", a.opts.Rings.MaxCrossRingPatterns),
		})
	}
	if report.Diagnostics == nil {
		report.Diagnostics = []domain.Diagnostic{}
	}

	report.Summary.ProcessingTimeSeconds = decimal.NewFromFloat(time.Since(start).Seconds()).Round(3).InexactFloat64()

	span.SetAttributes(
		attribute.Int("report.rings", len(report.FraudRings)),
		attribute.Int("report.suspicious", len(report.SuspiciousAccounts)),
	)
	slog.Debug("analysis run completed",
		"run_id", runID,
		"accounts", report.Summary.TotalAccountsAnalyzed,
		"rings", report.Summary.FraudRingsDetected,
		"suspicious", report.Summary.SuspiciousAccountsFlagged,
		"rejected", report.Summary.TransactionsRejected,
		"duration_s", report.Summary.ProcessingTimeSeconds,
	)

	return report, nil
}

// detect runs the three detectors in parallel. Each writes only its own
// result; a panicking detector degrades to a diagnostic.
func (a *Analyzer) detect(ctx context.Context, g *graph.Graph) (*detections, error) {
	det := &detections{}
	var cycleDiag, smurfDiag, shellDiag []domain.Diagnostic

	eg, gctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		defer a.stageDone(StageCycles, time.Now())
		return guard(StageCycles, &cycleDiag, func() error {
			sctx, span := tracer.Start(gctx, "pipeline."+StageCycles)
			defer span.End()
			res, err := detect.FindCycles(sctx, g, a.opts.Cycles)
			if err != nil {
				return err
			}
			det.cycles = res
			span.SetAttributes(attribute.Int("cycles.found", len(res.Cycles)))
			return nil
		})
	})
	eg.Go(func() error {
		defer a.stageDone(StageSmurfing, time.Now())
		return guard(StageSmurfing, &smurfDiag, func() error {
			sctx, span := tracer.Start(gctx, "pipeline."+StageSmurfing)
			defer span.End()
			flags, err := detect.FindSmurfing(sctx, g)
			if err != nil {
				return err
			}
			det.smurfing = flags
			span.SetAttributes(attribute.Int("smurfing.flags", len(flags)))
			return nil
		})
	})
	eg.Go(func() error {
		defer a.stageDone(StageShell, time.Now())
		return guard(StageShell, &shellDiag, func() error {
			sctx, span := tracer.Start(gctx, "pipeline."+StageShell)
			defer span.End()
			res, err := detect.FindShellChains(sctx, g, a.opts.Shells)
			if err != nil {
				return err
			}
			det.shells = res
			span.SetAttributes(attribute.Int("shell.chains", len(res.Chains)))
			return nil
		})
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	det.diagnostics = append(det.diagnostics, cycleDiag...)
	det.diagnostics = append(det.diagnostics, smurfDiag...)
	det.diagnostics = append(det.diagnostics, shellDiag...)

	if det.cycles.Skipped {
		det.diagnostics = append(det.diagnostics, domain.Diagnostic{
			Stage:    StageCycles,
			Code:     domain.DiagCycleSkipped,
			Severity: domain.DiagnosticWarning,
			Message: fmt.Sprintf("cycle detection skipped: graph too dense (%d accounts, %d distinct edges)",
				g.NodeCount(), g.DistinctEdgeCount()),
		})
	}
	if det.cycles.Truncated {
		det.diagnostics = append(det.diagnostics, domain.Diagnostic{
			Stage:    StageCycles,
			Code:     domain.DiagCycleTruncated,
			Severity: domain.DiagnosticWarning,
			Message:  fmt.Sprintf("cycle enumeration stopped at %d cycles", len(det.cycles.Cycles)),
		})
	}
	if det.shells.Truncated {
		det.diagnostics = append(det.diagnostics, domain.Diagnostic{
			Stage:    StageShell,
			Code:     domain.DiagShellTruncated,
			Severity: domain.DiagnosticWarning,
			Message:  fmt.Sprintf("shell chain search stopped at %d chains", len(det.shells.Chains)),
		})
	}
	return det, nil
}

// guard turns a detector panic into a diagnostic. Errors are returned
// unchanged so cancellation still stops the run.
func guard(stage string, diags *[]domain.Diagnostic, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("detector panic recovered", "stage", stage, "error", r)
			*diags = append(*diags, domain.Diagnostic{
				Stage:    stage,
				Code:     domain.DiagDetectorFailed,
				Severity: domain.DiagnosticWarning,
				Message:  fmt.Sprintf("%s detector failed: %v", stage, r),
			})
			err = nil
		}
	}()
	return fn()
}

func (a *Analyzer) stageDone(stage string, start time.Time) {
	if a.observer != nil {
		a.observer.StageCompleted(stage, time.Since(start))
	}
}

func mergeTags(det *detections) map[string]domain.PatternSet {
	tags := make(map[string]domain.PatternSet)
	tag := func(id string, p domain.Pattern) {
		s, ok := tags[id]
		if !ok {
			s = make(domain.PatternSet)
			tags[id] = s
		}
		s.Add(p)
	}

	for _, c := range det.cycles.Cycles {
		for _, m := range c.Members {
			tag(m, domain.PatternCycle)
		}
	}
	for _, f := range det.smurfing {
		tag(f.Account, f.Direction.Pattern())
	}
	for _, ch := range det.shells.Chains {
		for _, m := range ch.Interior() {
			tag(m, domain.PatternShellChain)
		}
	}
	return tags
}

// buildAccounts produces the suspicious account list sorted by descending
// score, ties by account id.
func buildAccounts(g *graph.Graph, assessed map[string]*scoring.Assessment, rs []domain.FraudRing) []domain.SuspiciousAccount {
	accounts := make(map[string]*domain.Account, len(assessed))
	for id, as := range assessed {
		n := g.Node(id)
		accounts[id] = &domain.Account{
			ID:                id,
			InDegree:          n.InDegree,
			OutDegree:         n.OutDegree,
			TotalTransactions: n.TotalTransactions,
			DetectedPatterns:  as.Patterns,
			SuspicionScore:    as.Score,
		}
	}

	for _, r := range rs {
		for _, m := range r.MemberAccounts {
			acc, ok := accounts[m]
			if !ok {
				continue
			}
			if acc.RingID == "" {
				acc.RingID = r.RingID
			}
			acc.RingIDs = append(acc.RingIDs, r.RingID)
		}
	}

	out := make([]domain.SuspiciousAccount, 0, len(accounts))
	for _, acc := range accounts {
		if acc.SuspicionScore <= 0 {
			continue
		}
		out = append(out, acc.ToSuspicious())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SuspicionScore != out[j].SuspicionScore {
			return out[i].SuspicionScore > out[j].SuspicionScore
		}
		return out[i].AccountID < out[j].AccountID
	})
	return out
}

func checkInvariants(g *graph.Graph, rs []domain.FraudRing, assessed map[string]*scoring.Assessment) error {
	ids := make(map[string]struct{}, len(rs))
	for _, r := range rs {
		if _, dup := ids[r.RingID]; dup {
			return fmt.Errorf("%w: duplicate ring id %s", ErrInvariantViolation, r.RingID)
		}
		ids[r.RingID] = struct{}{}

		if r.PatternType == domain.RingPatternCycle {
			if n := len(r.MemberAccounts); n < detect.MinCycleLength || n > detect.MaxCycleLength {
				return fmt.Errorf("%w: cycle ring %s has %d members", ErrInvariantViolation, r.RingID, n)
			}
		}
		for _, m := range r.MemberAccounts {
			if !g.HasAccount(m) {
				return fmt.Errorf("%w: ring %s member %s not in graph", ErrInvariantViolation, r.RingID, m)
			}
		}
		for _, m := range r.ShellInterior {
			if n := g.Node(m); n == nil || n.TotalTransactions > detect.ShellMaxTransactions {
				return fmt.Errorf("%w: ring %s interior %s is not a shell", ErrInvariantViolation, r.RingID, m)
			}
		}
	}
	for id, as := range assessed {
		if !g.HasAccount(id) {
			return fmt.Errorf("%w: scored account %s not in graph", ErrInvariantViolation, id)
		}
		if as.Score < 0 || as.Score > scoring.MaxScore {
			return fmt.Errorf("%w: account %s score %v out of range", ErrInvariantViolation, id, as.Score)
		}
	}
	return nil
}
