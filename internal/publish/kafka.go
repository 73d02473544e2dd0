package publish

import (
	"context"
	"time"

	"codeberg.org/mutker/hrvmon/internal/errors"
	"codeberg.org/mutker/hrvmon/internal/logger"
	"codeberg.org/mutker/hrvmon/internal/measurement"
	"github.com/segmentio/kafka-go"
)

const kafkaWriteTimeout = 5 * time.Second

type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes snapshots keyed by recording ID, so every snapshot
// of one recording lands on the same partition.
type KafkaPublisher struct {
	writer kafkaMessageWriter
	log    logger.Logger
}

// NewKafkaPublisher creates a publisher for topic. The connection is made
// lazily on the first write.
func NewKafkaPublisher(brokers []string, topic string, log logger.Logger) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		WriteTimeout:           kafkaWriteTimeout,
		AllowAutoTopicCreation: true,
	}

	log.Info().Strs("brokers", brokers).Str("topic", topic).Msg("Kafka publisher created")

	return newKafkaPublisher(w, log)
}

func newKafkaPublisher(w kafkaMessageWriter, log logger.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: w, log: log}
}

// Publish writes one snapshot.
func (p *KafkaPublisher) Publish(ctx context.Context, snap measurement.Snapshot) error {
	now := time.Now()
	payload, err := FormatPayload(now, snap)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, kafkaWriteTimeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(snap.ID.String()),
		Value: payload,
		Time:  now,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return errors.New().Wrap(ErrPublish, err)
	}
	return nil
}

// Close flushes pending writes and closes the writer.
func (p *KafkaPublisher) Close() error {
	if err := p.writer.Close(); err != nil {
		return errors.New().Wrap(errors.ErrShutdownFailed, err)
	}
	return nil
}
