package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/acme/parallel-dialer/internal/domain"
	"github.com/acme/parallel-dialer/pkg/backoff"
)

// OutcomePublisher writes CallAttemptOutcome records to the outcome topic.
type OutcomePublisher struct {
	writer *kafka.Writer
	policy backoff.Policy
}

// NewOutcomePublisher constructs the publisher.
func NewOutcomePublisher(k *Kafka, topic string) *OutcomePublisher {
	return &OutcomePublisher{writer: k.NewWriter(topic), policy: backoff.DefaultPolicy()}
}

// PublishOutcome delivers the outcome at-least-once.
func (p *OutcomePublisher) PublishOutcome(ctx context.Context, outcome domain.CallAttemptOutcome) error {
	msg := OutcomeMessage{
		CampaignID:  outcome.CampaignID,
		ContactID:   outcome.ContactID,
		LineID:      outcome.LineID,
		Phone:       outcome.Phone,
		Disposition: outcome.Disposition,
		DurationMs:  outcome.Duration.Milliseconds(),
		Attempt:     outcome.Attempt,
		OccurredAt:  outcome.Timestamp,
	}
	return p.publish(ctx, outcome.ContactID[:], msg)
}

func (p *OutcomePublisher) publish(ctx context.Context, key []byte, payload any) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("outcome publisher: marshal: %w", err)
	}
	record := kafka.Message{Key: key, Value: value, Time: time.Now().UTC()}
	return backoff.Retry(ctx, p.policy, func() error {
		return p.writer.WriteMessages(ctx, record)
	})
}

// Close closes the writer.
func (p *OutcomePublisher) Close() error { return p.writer.Close() }

// EventPublisher mirrors campaign lifecycle events to Kafka.
type EventPublisher struct {
	writer *kafka.Writer
	policy backoff.Policy
}

// NewEventPublisher constructs the publisher.
func NewEventPublisher(k *Kafka, topic string) *EventPublisher {
	return &EventPublisher{writer: k.NewWriter(topic), policy: backoff.DefaultPolicy()}
}

// PublishEvent delivers a campaign event.
func (p *EventPublisher) PublishEvent(ctx context.Context, msg CampaignEventMessage) error {
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("event publisher: marshal: %w", err)
	}
	record := kafka.Message{Key: msg.CampaignID[:], Value: value, Time: time.Now().UTC()}
	return backoff.Retry(ctx, p.policy, func() error {
		return p.writer.WriteMessages(ctx, record)
	})
}

// Close closes the writer.
func (p *EventPublisher) Close() error { return p.writer.Close() }

// CallbackPublisher enqueues callback tasks for the scheduling collaborator.
// It satisfies amd.CallbackScheduler.
type CallbackPublisher struct {
	writer *kafka.Writer
	policy backoff.Policy
}

// NewCallbackPublisher constructs the publisher.
func NewCallbackPublisher(k *Kafka, topic string) *CallbackPublisher {
	return &CallbackPublisher{writer: k.NewWriter(topic), policy: backoff.DefaultPolicy()}
}

// ScheduleCallback publishes a callback task.
func (p *CallbackPublisher) ScheduleCallback(ctx context.Context, campaignID, contactID uuid.UUID, phone string) error {
	msg := CallbackTaskMessage{
		CampaignID:  campaignID,
		ContactID:   contactID,
		Phone:       phone,
		RequestedAt: time.Now().UTC(),
	}
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("callback publisher: marshal: %w", err)
	}
	record := kafka.Message{Key: contactID[:], Value: value, Time: msg.RequestedAt}
	return backoff.Retry(ctx, p.policy, func() error {
		return p.writer.WriteMessages(ctx, record)
	})
}

// Close closes the writer.
func (p *CallbackPublisher) Close() error { return p.writer.Close() }
