// Package kafka publishes built datasets to a Kafka topic for downstream
// consumers.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"covidboard/internal/config"
	"covidboard/internal/domain"
	"covidboard/internal/observability"
)

// Messages per WriteMessages call. The full derived dataset runs to
// hundreds of thousands of rows; a single call that size would exceed
// broker batch limits.
const writeChunkSize = 5000

// Writer produces derived records to a Kafka topic.
// It implements pipeline.Exporter.
type Writer struct {
	writer  *kafkago.Writer
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewWriter creates a Kafka producer for the configured topic.
func NewWriter(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger, metrics: metrics}
}

// ExportDataset publishes every derived record of the dataset, keyed by
// dataset, country and date so downstream compaction keeps the latest
// revision of each row.
func (w *Writer) ExportDataset(ctx context.Context, ds *domain.Dataset) error {
	builtAt := ds.BuiltAt.Format(time.RFC3339)

	sets := []struct {
		name    string
		records []domain.Record
	}{
		{"cases", ds.Cases},
		{"deaths", ds.Deaths},
		{"vaccinations", ds.Vaccinations},
	}

	var published int
	for _, set := range sets {
		n, err := w.publishRecords(ctx, set.name, builtAt, set.records)
		published += n
		if err != nil {
			return fmt.Errorf("publish %s: %w", set.name, err)
		}
	}

	w.metrics.RecordsExported.Add(float64(published))
	w.logger.Info("dataset exported", "records", published, "built_at", builtAt)
	return nil
}

func (w *Writer) publishRecords(ctx context.Context, dataset, builtAt string, records []domain.Record) (int, error) {
	var published int
	for start := 0; start < len(records); start += writeChunkSize {
		end := start + writeChunkSize
		if end > len(records) {
			end = len(records)
		}

		msgs := make([]kafkago.Message, 0, end-start)
		for _, rec := range records[start:end] {
			msg, err := serializeToMessage(dataset, builtAt, rec)
			if err != nil {
				return published, err
			}
			msgs = append(msgs, msg)
		}

		if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
			return published, err
		}
		published += len(msgs)
	}
	return published, nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a derived record into a Kafka message.
func serializeToMessage(dataset, builtAt string, rec domain.Record) (kafkago.Message, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize record: %w", err)
	}
	key := fmt.Sprintf("%s|%s|%s", dataset, rec.ISO3, rec.Date.Format("2006-01-02"))
	return kafkago.Message{
		Key:   []byte(key),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "dataset", Value: []byte(dataset)},
			{Key: "built_at", Value: []byte(builtAt)},
		},
	}, nil
}
