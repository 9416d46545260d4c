package live

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/jgoulah/ampdash/internal/config"
)

// messageReader is the part of *kafka.Reader the feed uses
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// KafkaFeed consumes JSON sensor messages from a Kafka topic
type KafkaFeed struct {
	reader messageReader
	log    zerolog.Logger
}

// NewKafkaFeed creates a consumer for cfg.Topic
func NewKafkaFeed(cfg config.KafkaConfig, log zerolog.Logger) (*KafkaFeed, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("Kafka brokers are required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("Kafka topic is required")
	}

	groupID := cfg.GroupID
	if groupID == "" {
		groupID = "ampdash-live"
	}

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     groupID,
		MinBytes:    1,
		MaxBytes:    1 << 20,
		StartOffset: kafka.LastOffset,
	})

	return &KafkaFeed{
		reader: r,
		log:    log.With().Str("component", "kafka-feed").Str("topic", cfg.Topic).Logger(),
	}, nil
}

// Run implements Feed
func (f *KafkaFeed) Run(ctx context.Context, handle Handler) error {
	defer f.reader.Close()

	for {
		msg, err := f.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("reading kafka message: %w", err)
		}

		r, err := Decode(msg.Value, msg.Time.UTC())
		if err != nil {
			f.log.Debug().Err(err).Int64("offset", msg.Offset).Msg("skipping message")
			continue
		}
		handle(r)
	}
}
