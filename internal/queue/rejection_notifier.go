package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/acme/parallel-dialer/internal/telephony"
)

// RejectionMessage tells downstream consumers that a connected human was
// dropped because every agent slot was taken.
type RejectionMessage struct {
	CampaignID uuid.UUID `json:"campaign_id"`
	LineID     int       `json:"line_id"`
	Handle     string    `json:"call_handle"`
	OccurredAt time.Time `json:"occurred_at"`
}

// RejectionNotifier publishes agent-capacity rejections. It satisfies
// conflict.Notifier; the resolver owns the retry policy, so a single write
// attempt per call is enough here.
type RejectionNotifier struct {
	writer *kafka.Writer
}

// NewRejectionNotifier constructs the notifier.
func NewRejectionNotifier(k *Kafka, topic string) *RejectionNotifier {
	return &RejectionNotifier{writer: k.NewWriter(topic)}
}

// NotifyRejected publishes one rejection record.
func (n *RejectionNotifier) NotifyRejected(ctx context.Context, campaignID uuid.UUID, lineID int, handle telephony.CallHandle) error {
	msg := RejectionMessage{
		CampaignID: campaignID,
		LineID:     lineID,
		Handle:     string(handle),
		OccurredAt: time.Now().UTC(),
	}
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("rejection notifier: marshal: %w", err)
	}
	return n.writer.WriteMessages(ctx, kafka.Message{
		Key:   campaignID[:],
		Value: value,
		Time:  msg.OccurredAt,
	})
}

// Close closes the writer.
func (n *RejectionNotifier) Close() error { return n.writer.Close() }
