package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/waggytails/pawsched/libs/kafkax"
)

const topicResolutionCompleted = "availability.resolution.completed.v1"

// ResolutionCompleted is published after each availability resolution so the
// marketing/analytics side can see demand per pattern and date range.
type ResolutionCompleted struct {
	OwnerID        string `json:"owner_id"`
	ServiceType    string `json:"service_type"`
	Pattern        string `json:"pattern"`
	RequestedDates int    `json:"requested_dates"`
	Available      int    `json:"available"`
	Conflicting    int    `json:"conflicting"`
	Blocked        int    `json:"blocked"`
	Incomplete     bool   `json:"incomplete"`
	ResolvedAt     string `json:"resolved_at"`
}

// Publisher writes resolution events directly to Kafka. Events are advisory:
// publish failures are logged and never surfaced to the caller. A nil
// Publisher (no brokers configured) drops everything silently.
type Publisher struct {
	writer *kafka.Writer
	logger *slog.Logger
}

func NewPublisher(brokers string, logger *slog.Logger) *Publisher {
	list := kafkax.SplitBrokers(brokers)
	if len(list) == 0 {
		logger.Warn("resolution event publisher disabled (no kafka brokers configured)")
		return nil
	}
	return &Publisher{
		writer: kafka.NewWriter(kafka.WriterConfig{
			Brokers:  list,
			Topic:    topicResolutionCompleted,
			Balancer: &kafka.Hash{},
		}),
		logger: logger,
	}
}

func (p *Publisher) PublishResolutionCompleted(ctx context.Context, ev ResolutionCompleted) {
	if p == nil {
		return
	}
	if ev.ResolvedAt == "" {
		ev.ResolvedAt = time.Now().UTC().Format(time.RFC3339)
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error("marshal resolution event failed", "err", err)
		return
	}
	msg := kafka.Message{
		Key:   []byte(ev.OwnerID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(uuid.NewString())},
			{Key: "event_type", Value: []byte(topicResolutionCompleted)},
		},
	}
	msg.Headers = kafkax.InjectTraceHeaders(ctx, msg.Headers)
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("publish resolution event failed", "err", err)
	}
}

func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	return p.writer.Close()
}
