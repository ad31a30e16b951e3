package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/acme/campaign-dialer/internal/domain"
)

// CallEvent is emitted on every call status transition. Downstream consumers
// (analytics, CRM sync) subscribe to the feed; the dialer itself never reads
// it back.
type CallEvent struct {
	CallID         int64              `json:"call_id"`
	ProviderCallID string             `json:"provider_call_id,omitempty"`
	OrganizationID uuid.UUID          `json:"organization_id"`
	CampaignID     *uuid.UUID         `json:"campaign_id,omitempty"`
	Phone          string             `json:"phone"`
	FromStatus     domain.CallStatus  `json:"from_status"`
	ToStatus       domain.CallStatus  `json:"to_status"`
	Outcome        domain.CallOutcome `json:"outcome,omitempty"`
	Source         string             `json:"source"`
	Message        string             `json:"message,omitempty"`
	OccurredAt     time.Time          `json:"occurred_at"`
}

// EventPublisher publishes call lifecycle events.
type EventPublisher struct {
	writer *kafka.Writer
}

// NewEventPublisher constructs a publisher for the given topic.
func NewEventPublisher(k *Kafka, topic string) *EventPublisher {
	return &EventPublisher{writer: k.NewWriter(topic)}
}

// Publish emits a call event, keyed by call id so per-call ordering holds.
func (p *EventPublisher) Publish(ctx context.Context, event CallEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("event publisher: marshal event: %w", err)
	}
	record := kafka.Message{
		Key:   []byte(strconv.FormatInt(event.CallID, 10)),
		Value: value,
		Time:  time.Now().UTC(),
	}
	if err := p.writer.WriteMessages(ctx, record); err != nil {
		return fmt.Errorf("event publisher: write message: %w", err)
	}
	return nil
}

// Close closes the underlying writer.
func (p *EventPublisher) Close() error {
	return p.writer.Close()
}
