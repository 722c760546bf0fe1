// Package worker runs dataset submissions taken from the event bus.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/ringwatch/internal/analysis"
	"github.com/opensource-finance/ringwatch/internal/domain"
	"github.com/opensource-finance/ringwatch/internal/pipeline"
)

// Worker consumes TopicDatasetSubmitted and analyses each dataset.
type Worker struct {
	bus     domain.EventBus
	service *analysis.Service

	mu            sync.Mutex
	subscriptions []domain.Subscription
	sem           chan struct{}
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process. Empty subscribes for
	// every tenant.
	TenantIDs []string

	// Concurrency bounds how many datasets are analysed at once.
	Concurrency int
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, service *analysis.Service) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:     bus,
		service: service,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start subscribes to dataset submissions.
func (w *Worker) Start(cfg Config) error {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	w.sem = make(chan struct{}, cfg.Concurrency)

	tenants := cfg.TenantIDs
	if len(tenants) == 0 {
		tenants = []string{domain.AllTenants}
	}

	for _, tenantID := range tenants {
		sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicDatasetSubmitted, w.handleMessage)
		if err != nil {
			return fmt.Errorf("failed to subscribe for tenant %s: %w", tenantID, err)
		}
		w.mu.Lock()
		w.subscriptions = append(w.subscriptions, sub)
		w.mu.Unlock()
	}

	slog.Info("workers started",
		"tenants", tenants,
		"concurrency", cfg.Concurrency,
	)
	return nil
}

// handleMessage decodes a dataset and hands it to a pool slot. It blocks
// while every slot is busy, which pushes back on the bus.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	var ds domain.DatasetMessage
	if err := json.Unmarshal(msg.Payload, &ds); err != nil {
		slog.Error("failed to parse dataset message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}
	if ds.TenantID == "" {
		ds.TenantID = msg.TenantID
	}
	if ds.RunID == "" {
		ds.RunID = msg.ID
	}

	select {
	case w.sem <- struct{}{}:
	case <-w.ctx.Done():
		return w.ctx.Err()
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer func() { <-w.sem }()
		w.process(&ds)
	}()
	return nil
}

func (w *Worker) process(ds *domain.DatasetMessage) {
	start := time.Now()

	res, err := w.service.Analyze(w.ctx, analysis.Request{
		TenantID: ds.TenantID,
		Ledger: pipeline.Ledger{
			RunID:        ds.RunID,
			Transactions: ds.Transactions,
			Rejected:     ds.RejectedByReason,
		},
	})
	if err != nil {
		slog.Error("dataset analysis failed",
			"run_id", ds.RunID,
			"tenant_id", ds.TenantID,
			"trace_id", ds.TraceID,
			"error", err,
		)
		return
	}

	slog.Info("dataset analysed",
		"run_id", ds.RunID,
		"tenant_id", ds.TenantID,
		"trace_id", ds.TraceID,
		"rings", res.Report.Summary.FraudRingsDetected,
		"cached", res.Cached,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// Stop unsubscribes and waits for in-flight runs. Runs still going are
// cancelled.
func (w *Worker) Stop() error {
	w.mu.Lock()
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil
	w.mu.Unlock()

	w.cancel()
	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
	InFlight          int      `json:"inFlight"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
		InFlight:          len(w.sem),
	}
}
