// Package kafka publishes the outbreak-risk summary for downstream
// consumers. Publishing is feature-flagged and best-effort: the dashboard
// reads the cache artifact directly and does not depend on the topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/outbreak-forecast-service/internal/domain"
)

// Writer produces risk-summary messages to a Kafka topic.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a producer for the configured summary topic.
func NewWriter(brokers []string, topic string, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// summaryMessage is the wire form of one ranked location.
type summaryMessage struct {
	Location    string    `json:"location"`
	Rank        int       `json:"rank"`
	GrowthRatio float64   `json:"growth_ratio"`
	Bucket      int       `json:"bucket"`
	Label       string    `json:"label"`
	GeneratedAt time.Time `json:"generated_at"`
}

// PublishTopRisk writes one message per top-ranked location in a single
// WriteMessages call, keyed by location for log compaction.
func (w *Writer) PublishTopRisk(ctx context.Context, payload *domain.Payload) error {
	msgs, err := buildMessages(payload)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}
	return w.writer.WriteMessages(ctx, msgs...)
}

func buildMessages(payload *domain.Payload) ([]kafkago.Message, error) {
	n := len(payload.TopLocations)
	if n == 0 {
		return nil, nil
	}
	msgs := make([]kafkago.Message, 0, n)
	for rank, loc := range payload.Ranked {
		if rank >= n {
			break
		}
		value, err := json.Marshal(summaryMessage{
			Location:    loc.Location,
			Rank:        rank + 1,
			GrowthRatio: loc.GrowthRatio,
			Bucket:      loc.Bucket,
			Label:       loc.Label,
			GeneratedAt: payload.GeneratedAt,
		})
		if err != nil {
			return nil, fmt.Errorf("serialize risk summary: %w", err)
		}
		msgs = append(msgs, kafkago.Message{
			Key:   []byte(loc.Location),
			Value: value,
			Headers: []kafkago.Header{
				{Key: "generated_at", Value: []byte(payload.GeneratedAt.Format(time.RFC3339))},
			},
		})
	}
	return msgs, nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}
