// Package eventbridge publishes domain events to an AWS EventBridge bus so
// downstream collaborators (ingestion, teaching, analytics) can react to
// graph and mastery changes without coupling to this service.
package eventbridge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"go.uber.org/zap"

	"curricula/domain/events"
)

const source = "curricula.engine"

// Publisher is an EventBridge-backed ports.EventPublisher
type Publisher struct {
	client  *eventbridge.Client
	busName string
	logger  *zap.Logger
}

func NewPublisher(cfg aws.Config, busName string, logger *zap.Logger) *Publisher {
	return &Publisher{
		client:  eventbridge.NewFromConfig(cfg),
		busName: busName,
		logger:  logger,
	}
}

// Publish sends a single event
func (p *Publisher) Publish(ctx context.Context, event events.DomainEvent) error {
	return p.PublishBatch(ctx, []events.DomainEvent{event})
}

// PublishBatch sends multiple events in one PutEvents call. EventBridge
// accepts at most 10 entries per call, so larger batches are chunked.
func (p *Publisher) PublishBatch(ctx context.Context, batch []events.DomainEvent) error {
	const maxEntries = 10

	for start := 0; start < len(batch); start += maxEntries {
		end := start + maxEntries
		if end > len(batch) {
			end = len(batch)
		}

		entries := make([]types.PutEventsRequestEntry, 0, end-start)
		for _, event := range batch[start:end] {
			detail, err := json.Marshal(event)
			if err != nil {
				return fmt.Errorf("encoding event %s: %w", event.GetEventType(), err)
			}
			entries = append(entries, types.PutEventsRequestEntry{
				EventBusName: aws.String(p.busName),
				Source:       aws.String(source),
				DetailType:   aws.String(event.GetEventType()),
				Detail:       aws.String(string(detail)),
			})
		}

		out, err := p.client.PutEvents(ctx, &eventbridge.PutEventsInput{Entries: entries})
		if err != nil {
			return fmt.Errorf("publishing events: %w", err)
		}
		if out.FailedEntryCount > 0 {
			for _, entry := range out.Entries {
				if entry.ErrorCode != nil {
					p.logger.Warn("event entry rejected",
						zap.String("error_code", aws.ToString(entry.ErrorCode)),
						zap.String("error_message", aws.ToString(entry.ErrorMessage)))
				}
			}
			return fmt.Errorf("%d event entries rejected", out.FailedEntryCount)
		}
	}
	return nil
}
