package callback

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/acme/parallel-dialer/internal/app"
	"github.com/acme/parallel-dialer/internal/queue"
	"github.com/acme/parallel-dialer/internal/repository"
	apperrors "github.com/acme/parallel-dialer/pkg/errors"
)

// Worker consumes callback tasks emitted when an answering machine picked up
// and the campaign asked for a human follow-up. Each task reopens the contact
// with a priority boost so the next campaign start dials it early.
type Worker struct {
	container *app.Container
}

// New creates a callback worker instance.
func New(container *app.Container) *Worker {
	return &Worker{container: container}
}

// Run consumes the callback topic until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	cfg := w.container.Config
	if cfg.Kafka.CallbackTopic == "" {
		<-ctx.Done()
		return ctx.Err()
	}

	groupID := cfg.Kafka.ConsumerGroup
	if groupID == "" {
		groupID = fmt.Sprintf("%s-callbacks", cfg.Kafka.ClientID)
	}

	reader := w.container.Kafka.NewReader(cfg.Kafka.CallbackTopic, groupID)
	defer reader.Close()

	contacts := w.container.Repositories().Contacts
	logger := w.container.Logger
	tracer := otel.Tracer("dialer.callbackworker")

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Error("callback worker: fetch", zap.Error(err))
			continue
		}

		var task queue.CallbackTaskMessage
		if err := json.Unmarshal(msg.Value, &task); err != nil {
			logger.Error("callback worker: unmarshal", zap.Error(err))
			_ = reader.CommitMessages(ctx, msg)
			continue
		}

		sctx, span := tracer.Start(ctx, "callback.reopen", trace.WithAttributes(
			attribute.String("campaign.id", task.CampaignID.String()),
			attribute.String("contact.id", task.ContactID.String()),
		))

		if err := w.reopen(sctx, contacts, task); err != nil {
			span.RecordError(err)
			span.End()
			logger.Error("callback worker: reopen",
				zap.String("contact", task.ContactID.String()), zap.Error(err))
			continue
		}

		if err := reader.CommitMessages(sctx, msg); err != nil {
			span.RecordError(err)
			logger.Error("callback worker: commit", zap.Error(err))
		}
		span.End()
	}
}

func (w *Worker) reopen(ctx context.Context, contacts repository.ContactRepository, task queue.CallbackTaskMessage) error {
	err := contacts.MarkForCallback(ctx, task.ContactID)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		// The contact was deleted or moved to the DNC registry since the
		// voicemail was detected. Nothing left to reopen.
		w.container.Logger.Warn("callback worker: contact gone",
			zap.String("contact", task.ContactID.String()))
		return nil
	}
	return err
}
