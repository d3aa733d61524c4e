package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the part of *kafka.Writer the sink needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// NewKafkaWriter returns a synchronous writer so delivery errors reach the
// dispatcher.
func NewKafkaWriter(l *slog.Logger, brokers []string) *kafka.Writer {
	if l == nil {
		l = slog.Default()
	}
	l = l.WithGroup("kafka")
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.LeastBytes{},
		Logger:                 &kafkaLogger{l: l, level: slog.LevelDebug},
		ErrorLogger:            &kafkaLogger{l: l, level: slog.LevelError},
		AllowAutoTopicCreation: true,
	}
}

type kafkaLogger struct {
	l     *slog.Logger
	level slog.Level
}

func (k *kafkaLogger) Printf(format string, v ...any) {
	k.l.Log(context.Background(), k.level, fmt.Sprintf(format, v...))
}

// KafkaSink publishes submission payloads as events on topic.
type KafkaSink struct {
	writer MessageWriter
	topic  string
}

// NewKafkaSink returns a sink writing to topic.
func NewKafkaSink(writer MessageWriter, topic string) *KafkaSink {
	return &KafkaSink{writer: writer, topic: topic}
}

// Name implements Sink.
func (s *KafkaSink) Name() string { return "kafka" }

// Send implements Sink.
func (s *KafkaSink) Send(ctx context.Context, n Notification) error {
	if len(n.Payload) == 0 {
		return ErrSkipped
	}
	err := s.writer.WriteMessages(ctx, kafka.Message{
		Topic: s.topic,
		Key:   []byte(n.Kind),
		Value: n.Payload,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(n.Kind)},
		},
	})
	if err != nil {
		return fmt.Errorf("write kafka message: %w", err)
	}
	return nil
}
