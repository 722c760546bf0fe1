package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/opensource-finance/ringwatch/internal/analysis"
	"github.com/opensource-finance/ringwatch/internal/bus"
	"github.com/opensource-finance/ringwatch/internal/domain"
	"github.com/opensource-finance/ringwatch/internal/pipeline"
	"github.com/opensource-finance/ringwatch/internal/rules"
)

func newTestService(t *testing.T, eventBus domain.EventBus) *analysis.Service {
	t.Helper()
	roles, err := rules.NewDefaultClassifier()
	if err != nil {
		t.Fatalf("failed to create classifier: %v", err)
	}
	return analysis.NewService(
		pipeline.NewAnalyzer(roles, pipeline.DefaultOptions()),
		analysis.WithEventBus(eventBus),
	)
}

func datasetPayload(t *testing.T, runID string, txs []domain.Transaction) []byte {
	t.Helper()
	payload, err := json.Marshal(domain.DatasetMessage{RunID: runID, Transactions: txs})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	return payload
}

func cycle() []domain.Transaction {
	base := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	return []domain.Transaction{
		{ID: "T1", SenderID: "A", ReceiverID: "B", Amount: 510, Timestamp: base},
		{ID: "T2", SenderID: "B", ReceiverID: "C", Amount: 495, Timestamp: base.Add(time.Hour)},
		{ID: "T3", SenderID: "C", ReceiverID: "A", Amount: 480, Timestamp: base.Add(2 * time.Hour)},
	}
}

func TestWorker(t *testing.T) {
	t.Run("StartAndStop", func(t *testing.T) {
		eventBus := bus.NewChannelBus(8)
		defer eventBus.Close()

		w := NewWorker(eventBus, newTestService(t, eventBus))
		if err := w.Start(Config{TenantIDs: []string{"tenant-001", "tenant-002"}}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		stats := w.GetStats()
		if stats.SubscriptionCount != 2 {
			t.Errorf("expected 2 subscriptions, got %d", stats.SubscriptionCount)
		}
		if stats.Topics[0] != domain.TopicDatasetSubmitted {
			t.Errorf("unexpected topic %s", stats.Topics[0])
		}

		if err := w.Stop(); err != nil {
			t.Errorf("Stop failed: %v", err)
		}
		if w.GetStats().SubscriptionCount != 0 {
			t.Error("expected 0 subscriptions after stop")
		}
	})

	t.Run("ProcessDataset", func(t *testing.T) {
		eventBus := bus.NewChannelBus(8)
		defer eventBus.Close()

		completed := make(chan domain.AnalysisEvent, 1)
		eventBus.Subscribe(context.Background(), "tenant-001", domain.TopicAnalysisCompleted, func(ctx context.Context, msg *domain.Message) error {
			var ev domain.AnalysisEvent
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				return err
			}
			completed <- ev
			return nil
		})

		w := NewWorker(eventBus, newTestService(t, eventBus))
		if err := w.Start(Config{}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer w.Stop()

		if err := eventBus.Publish(context.Background(), "tenant-001", domain.TopicDatasetSubmitted, datasetPayload(t, "run-7", cycle())); err != nil {
			t.Fatalf("publish failed: %v", err)
		}

		select {
		case ev := <-completed:
			if ev.RunID != "run-7" || ev.TenantID != "tenant-001" {
				t.Errorf("unexpected event %+v", ev)
			}
			if ev.Summary == nil || ev.Summary.FraudRingsDetected != 1 {
				t.Errorf("expected one ring in summary, got %+v", ev.Summary)
			}
		case <-time.After(3 * time.Second):
			t.Fatal("timeout waiting for completion event")
		}
	})

	t.Run("FailedDataset", func(t *testing.T) {
		eventBus := bus.NewChannelBus(8)
		defer eventBus.Close()

		failed := make(chan domain.AnalysisEvent, 1)
		eventBus.Subscribe(context.Background(), "tenant-001", domain.TopicAnalysisFailed, func(ctx context.Context, msg *domain.Message) error {
			var ev domain.AnalysisEvent
			json.Unmarshal(msg.Payload, &ev)
			failed <- ev
			return nil
		})

		w := NewWorker(eventBus, newTestService(t, eventBus))
		if err := w.Start(Config{TenantIDs: []string{"tenant-001"}}); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer w.Stop()

		eventBus.Publish(context.Background(), "tenant-001", domain.TopicDatasetSubmitted, datasetPayload(t, "run-empty", nil))

		select {
		case ev := <-failed:
			if ev.RunID != "run-empty" || ev.Error == "" {
				t.Errorf("unexpected failure event %+v", ev)
			}
		case <-time.After(3 * time.Second):
			t.Fatal("timeout waiting for failure event")
		}
	})

	t.Run("MalformedPayload", func(t *testing.T) {
		w := NewWorker(bus.NewChannelBus(1), nil)
		err := w.handleMessage(context.Background(), &domain.Message{ID: "m1", Payload: []byte("{broken")})
		if err == nil {
			t.Error("expected parse error")
		}
	})
}
