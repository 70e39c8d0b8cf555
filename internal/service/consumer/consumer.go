// Package consumer feeds the org spools from a Kafka corpus-ingest topic,
// so batch producers can push documents without going through HTTP.
package consumer

import (
	"context"
	"log/slog"

	"github.com/ProgrammerXX1/plagio/internal/service"
	"github.com/ProgrammerXX1/plagio/pkg/kafka"
)

// IngestConsumer wraps a Kafka consumer to drive document ingestion.
type IngestConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

// New creates an IngestConsumer backed by the given Kafka consumer.
func New(kafkaConsumer *kafka.Consumer) *IngestConsumer {
	return &IngestConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "ingest-consumer"),
	}
}

// Start begins consuming Kafka messages. It blocks until ctx is cancelled.
func (ic *IngestConsumer) Start(ctx context.Context) error {
	ic.logger.Info("ingest consumer starting")
	return ic.consumer.Start(ctx)
}

// HandleMessage returns a Kafka MessageHandler that spools every ingest
// message through the service. Undecodable or invalid messages are logged
// and skipped so the topic keeps draining.
func HandleMessage(svc *service.Service) kafka.MessageHandler {
	logger := slog.Default().With("component", "ingest-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		msg, err := kafka.DecodeJSON[service.IngestMessage](value)
		if err != nil {
			logger.Error("failed to decode ingest message",
				"error", err,
				"key", string(key),
			)
			return nil
		}

		res, err := svc.IngestDocument(ctx, msg.OrgID, service.UploadRequest{
			Text:             msg.Text,
			ExternalID:       msg.ExternalID,
			SourceName:       msg.SourceName,
			TextIsNormalized: msg.TextIsNormalized,
		})
		if err != nil {
			logger.Error("failed to spool ingest message",
				"org_id", msg.OrgID,
				"error", err,
			)
			return nil
		}

		logger.Debug("document spooled",
			"org_id", msg.OrgID,
			"doc_id", res.DocID,
		)
		return nil
	}
}
