// Package analysis runs a ledger through the pipeline and takes care of
// everything around it: report reuse, persistence, events and export.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/ringwatch/internal/domain"
	"github.com/opensource-finance/ringwatch/internal/export"
	"github.com/opensource-finance/ringwatch/internal/pipeline"
	"github.com/opensource-finance/ringwatch/internal/repository"
)

// ErrNoRepository is returned by lookups on a service without storage.
var ErrNoRepository = errors.New("no repository configured")

// Request is one analysis submission.
type Request struct {
	TenantID string
	Ledger   pipeline.Ledger
}

// Result is a finished analysis.
type Result struct {
	Report *domain.Report
	Cached bool
}

// Service coordinates the pipeline with storage. Repo, cache, bus and
// exporter are all optional.
type Service struct {
	analyzer  *pipeline.Analyzer
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	exporter  *export.Exporter
	reportTTL time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithRepository persists every report.
func WithRepository(repo domain.Repository) Option {
	return func(s *Service) { s.repo = repo }
}

// WithCache reuses reports for identical ledgers for ttl.
func WithCache(cache domain.Cache, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = cache
		s.reportTTL = ttl
	}
}

// WithEventBus publishes completion and ring events.
func WithEventBus(bus domain.EventBus) Option {
	return func(s *Service) { s.bus = bus }
}

// WithExporter writes every new report to the graph database.
func WithExporter(e *export.Exporter) Option {
	return func(s *Service) { s.exporter = e }
}

// NewService creates a service around an analyzer.
func NewService(analyzer *pipeline.Analyzer, opts ...Option) *Service {
	s := &Service{analyzer: analyzer}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Analyze returns the report for the ledger. An identical ledger seen
// before is answered from the cache. When the request carries a run id the
// cached report is re-stored under that id so the run can be fetched.
func (s *Service) Analyze(ctx context.Context, req Request) (*Result, error) {
	if req.TenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}
	fingerprint := req.Ledger.Fingerprint()

	if cached := s.lookup(ctx, req.TenantID, fingerprint); cached != nil {
		if req.Ledger.RunID == "" || req.Ledger.RunID == cached.ID {
			return &Result{Report: cached, Cached: true}, nil
		}
		rerun := *cached
		rerun.ID = req.Ledger.RunID
		rerun.CreatedAt = time.Now().UTC()
		if err := s.save(ctx, req.TenantID, &rerun); err != nil {
			return nil, err
		}
		s.publishCompleted(ctx, &rerun)
		return &Result{Report: &rerun, Cached: true}, nil
	}

	report, err := s.analyzer.RunLedger(ctx, req.Ledger)
	if err != nil {
		s.publishFailed(ctx, req.TenantID, req.Ledger.RunID, err)
		return nil, err
	}
	report.TenantID = req.TenantID

	if err := s.save(ctx, req.TenantID, report); err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.SetReport(ctx, req.TenantID, fingerprint, report, s.reportTTL); err != nil {
			slog.Warn("failed to cache report", "report_id", report.ID, "error", err)
		}
	}

	s.publishCompleted(ctx, report)
	s.publishRings(ctx, report)

	if s.exporter != nil {
		if err := s.exporter.Export(ctx, report, req.Ledger.Transactions); err != nil {
			slog.Error("graph export failed", "report_id", report.ID, "error", err)
		}
	}

	return &Result{Report: report}, nil
}

// lookup finds an earlier report for the fingerprint. Reuse is enabled by
// the cache; a cache miss falls back to the newest stored report, which is
// then put back in the cache.
func (s *Service) lookup(ctx context.Context, tenantID, fingerprint string) *domain.Report {
	if s.cache == nil {
		return nil
	}
	report, err := s.cache.GetReport(ctx, tenantID, fingerprint)
	if err != nil {
		slog.Warn("report cache lookup failed", "fingerprint", fingerprint, "error", err)
		return nil
	}
	if report != nil || s.repo == nil {
		return report
	}

	report, err = s.repo.FindReportByFingerprint(ctx, tenantID, fingerprint)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		slog.Warn("stored report lookup failed", "fingerprint", fingerprint, "error", err)
		return nil
	}
	if err := s.cache.SetReport(ctx, tenantID, fingerprint, report, s.reportTTL); err != nil {
		slog.Warn("failed to cache report", "report_id", report.ID, "error", err)
	}
	return report
}

func (s *Service) save(ctx context.Context, tenantID string, report *domain.Report) error {
	if s.repo == nil {
		return nil
	}
	if err := s.repo.SaveReport(ctx, tenantID, report); err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	return nil
}

// Report fetches a stored report.
func (s *Service) Report(ctx context.Context, tenantID, reportID string) (*domain.Report, error) {
	if s.repo == nil {
		return nil, ErrNoRepository
	}
	return s.repo.GetReport(ctx, tenantID, reportID)
}

func (s *Service) publishCompleted(ctx context.Context, report *domain.Report) {
	summary := report.Summary
	s.publish(ctx, report.TenantID, domain.TopicAnalysisCompleted, domain.AnalysisEvent{
		RunID:    report.ID,
		TenantID: report.TenantID,
		ReportID: report.ID,
		Summary:  &summary,
	})
}

func (s *Service) publishFailed(ctx context.Context, tenantID, runID string, runErr error) {
	s.publish(ctx, tenantID, domain.TopicAnalysisFailed, domain.AnalysisEvent{
		RunID:    runID,
		TenantID: tenantID,
		Error:    runErr.Error(),
	})
}

// publishRings emits one event per ring so downstream case management can
// open an investigation without fetching the whole report.
func (s *Service) publishRings(ctx context.Context, report *domain.Report) {
	for i := range report.FraudRings {
		s.publish(ctx, report.TenantID, domain.TopicRingDetected, domain.RingEvent{
			ReportID: report.ID,
			Ring:     &report.FraudRings[i],
		})
	}
}

func (s *Service) publish(ctx context.Context, tenantID, topic string, v any) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to encode event", "topic", topic, "error", err)
		return
	}
	if err := s.bus.Publish(ctx, tenantID, topic, payload); err != nil {
		slog.Error("failed to publish event", "topic", topic, "error", err)
	}
}
