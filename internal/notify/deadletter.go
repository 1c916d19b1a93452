package notify

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the part of *kafka.Writer used for dead letters.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// DeadLetter forwards alerts to a primary notifier and parks the ones that
// fail on a Kafka topic for manual replay.
type DeadLetter struct {
	primary Notifier
	writer  MessageWriter
	log     *slog.Logger
}

// NewDeadLetter wraps primary.
func NewDeadLetter(primary Notifier, writer MessageWriter, log *slog.Logger) *DeadLetter {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &DeadLetter{primary: primary, writer: writer, log: log}
}

// Notify returns the primary's error, if any, after trying to park the
// message.
func (d *DeadLetter) Notify(ctx context.Context, message string) error {
	err := d.primary.Notify(ctx, message)
	if err == nil {
		return nil
	}

	msg := kafka.Message{
		Value: []byte(message),
		Headers: []kafka.Header{
			{Key: "error", Value: []byte(err.Error())},
			{Key: "timestamp", Value: []byte(time.Now().UTC().Format(time.RFC3339))},
		},
	}
	if dlqErr := d.writer.WriteMessages(ctx, msg); dlqErr != nil {
		d.log.Error("dead letter write failed, alert lost", slog.Any("err", dlqErr))
	} else {
		d.log.Info("alert parked on dead letter topic")
	}
	return err
}

// NewKafkaWriter builds the dead letter producer.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		MaxAttempts:            3,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
}
