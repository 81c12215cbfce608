package ingest

import (
	"context"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"vibroscope/internal/config"
	"vibroscope/internal/model"
)

// StartKafka consumes codec frames from a topic. Each message value holds
// exactly one frame.
func StartKafka(ctx context.Context, cfg *config.Manager, out Submitter, logger *slog.Logger) {
	current := cfg.Get().Ingest.Kafka
	if !current.Enabled {
		if logger != nil {
			logger.Info("kafka ingest disabled")
		}
		return
	}
	if logger != nil {
		logger.Info("kafka ingest enabled", "brokers", current.Brokers, "topic", current.Topic, "group_id", current.GroupID)
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  current.Brokers,
		Topic:    current.Topic,
		GroupID:  current.GroupID,
		MinBytes: 1e3,
		MaxBytes: MaxFrameBytes + frameHeaderSize,
	})
	go func() {
		defer reader.Close()
		for {
			m, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if logger != nil {
					logger.Warn("kafka read error", "err", err)
				}
				if !BackoffSleep(ctx, 0) {
					return
				}
				continue
			}
			frame, err := UnmarshalFrame(m.Value)
			if err != nil {
				if logger != nil {
					logger.Warn("kafka frame decode error", "partition", m.Partition, "offset", m.Offset, "err", err)
				}
				continue
			}
			if !submit(out, frame, "kafka", logger) {
				return
			}
		}
	}()
}

// FrameMessage wraps a frame for producers writing to the ingest topic.
func FrameMessage(f model.Frame) (kafka.Message, error) {
	value, err := AppendFrame(nil, f)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{Value: value, Time: f.Timestamp}, nil
}
