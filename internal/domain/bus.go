package domain

import (
	"context"
)

// EventBus defines the interface for event-driven communication.
// Supports Go channels (Community) or NATS (Pro).
// All methods require tenantID for strict multi-tenancy isolation.
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, tenantID string, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, tenantID string, topic string, handler MessageHandler) (Subscription, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	TenantID  string            `json:"tenantId"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string `yaml:"type"`

	// Channel settings (Community tier)
	ChannelBufferSize int `yaml:"channelBufferSize"`

	// NATS settings (Pro tier)
	NATSUrl           string `yaml:"natsUrl"`
	NATSToken         string `yaml:"natsToken"`
	NATSMaxReconnects int    `yaml:"natsMaxReconnects"`
	NATSReconnectWait int    `yaml:"natsReconnectWait"` // seconds

	// NATSQueueGroup load-balances deliveries across replicas when set.
	NATSQueueGroup string `yaml:"natsQueueGroup"`
}

// AllTenants subscribes to a topic for every tenant.
const AllTenants = "*"

// Standard topic names for the analysis pipeline.
const (
	TopicDatasetSubmitted  = "ringwatch.dataset.submitted"
	TopicAnalysisCompleted = "ringwatch.analysis.completed"
	TopicAnalysisFailed    = "ringwatch.analysis.failed"
	TopicRingDetected      = "ringwatch.ring.detected"
)

// DatasetMessage is the payload published on TopicDatasetSubmitted.
type DatasetMessage struct {
	RunID            string         `json:"runId"`
	TenantID         string         `json:"tenantId"`
	TraceID          string         `json:"traceId,omitempty"`
	Transactions     []Transaction  `json:"transactions"`
	RejectedByReason map[string]int `json:"rejectedByReason,omitempty"`
}

// AnalysisEvent is the payload published when a run completes or fails.
type AnalysisEvent struct {
	RunID    string   `json:"runId"`
	TenantID string   `json:"tenantId"`
	ReportID string   `json:"reportId,omitempty"`
	Summary  *Summary `json:"summary,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// RingEvent is the payload published on TopicRingDetected.
type RingEvent struct {
	ReportID string     `json:"reportId"`
	Ring     *FraudRing `json:"ring"`
}
