package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/crossfire-map/internal/config"
	"github.com/couchcryptid/crossfire-map/internal/domain"
	"github.com/couchcryptid/crossfire-map/internal/observability"
	kafkago "github.com/segmentio/kafka-go"
)

// messageWriter is the subset of *kafkago.Writer the Writer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer publishes flat rows and per-boundary counts to two Kafka topics.
// It implements pipeline.Loader.
type Writer struct {
	rows         messageWriter
	counts       messageWriter
	rowsTopic    string
	countsTopic  string
	victimPolicy domain.VictimPolicy
	logger       *slog.Logger
	metrics      *observability.Metrics
}

// NewWriter creates Kafka producers for the configured rows and counts topics.
func NewWriter(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Writer {
	return &Writer{
		rows:         newProducer(cfg.KafkaBrokers, cfg.KafkaRowsTopic),
		counts:       newProducer(cfg.KafkaBrokers, cfg.KafkaCountsTopic),
		rowsTopic:    cfg.KafkaRowsTopic,
		countsTopic:  cfg.KafkaCountsTopic,
		victimPolicy: cfg.VictimPolicy,
		logger:       logger,
		metrics:      metrics,
	}
}

func newProducer(brokers []string, topic string) *kafkago.Writer {
	return &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

// LoadRows publishes one message per flat row, keyed by incident id, in a
// single WriteMessages call.
func (w *Writer) LoadRows(ctx context.Context, rows []domain.FlatIncident) error {
	if len(rows) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(rows))
	for i := range rows {
		msg, err := rowMessage(rows[i], w.victimPolicy)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	return w.write(ctx, w.rows, w.rowsTopic, msgs)
}

// LoadCounts publishes one message per boundary, keyed by boundary name.
func (w *Writer) LoadCounts(ctx context.Context, regions []domain.RegionCount) error {
	if len(regions) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(regions))
	for i := range regions {
		msg, err := countMessage(regions[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	return w.write(ctx, w.counts, w.countsTopic, msgs)
}

func (w *Writer) write(ctx context.Context, mw messageWriter, topic string, msgs []kafkago.Message) error {
	if err := mw.WriteMessages(ctx, msgs...); err != nil {
		w.metrics.PublishErrors.WithLabelValues(topic).Inc()
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	w.metrics.RowsPublished.WithLabelValues(topic).Add(float64(len(msgs)))
	w.logger.Info("published", "topic", topic, "messages", len(msgs))
	return nil
}

// Close flushes and closes both producers.
func (w *Writer) Close() error {
	return errors.Join(w.rows.Close(), w.counts.Close())
}

// rowMessage marshals a FlatIncident into a Kafka message.
func rowMessage(row domain.FlatIncident, policy domain.VictimPolicy) (kafkago.Message, error) {
	data, err := json.Marshal(row)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize flat incident: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(row.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "state_name", Value: []byte(row.StateName)},
			{Key: "victim_policy", Value: []byte(policy.String())},
		},
	}, nil
}

// countPayload is the wire shape of a per-boundary count.
type countPayload struct {
	Boundary    string  `json:"boundary"`
	MatchedName *string `json:"matched_name"`
	Count       int     `json:"count"`
}

func countMessage(rc domain.RegionCount) (kafkago.Message, error) {
	data, err := json.Marshal(countPayload{
		Boundary:    rc.Boundary.Name,
		MatchedName: rc.MatchedName,
		Count:       rc.Count,
	})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize region count: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(rc.Boundary.Name),
		Value: data,
	}, nil
}
