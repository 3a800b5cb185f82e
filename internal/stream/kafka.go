package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaOptions configures the Kafka transport.
type KafkaOptions struct {
	Brokers       string
	ConsumerGroup string
	Requests      string
	Results       string
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// TopicName maps a stream name onto a legal Kafka topic name.
// Characters outside [a-zA-Z0-9._-] become dots, so discord:requests is discord.requests.
func TopicName(stream string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '_', r == '-':
			return r
		}
		return '.'
	}, stream)
}

// KafkaSource consumes JSON requests as a member of a consumer group.
// Offsets are committed only after the worker finished a request.
type KafkaSource struct {
	reader messageReader
	topic  string
}

// NewKafkaSource creates a consumer-group reader on opts.Requests.
func NewKafkaSource(opts KafkaOptions) *KafkaSource {
	topic := opts.Requests
	if topic == "" {
		topic = DefaultRequestsStream
	}
	topic = TopicName(topic)
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  strings.Split(opts.Brokers, ","),
		Topic:    topic,
		GroupID:  opts.ConsumerGroup,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &KafkaSource{reader: reader, topic: topic}
}

// Next fetches the next decodable request. Undecodable messages are logged and committed.
func (s *KafkaSource) Next(ctx context.Context) (*Request, error) {
	for {
		msg, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("fetch %s: %w", s.topic, err)
		}
		req, err := DecodeRequest(msg.Value)
		if err != nil {
			slog.Warn("KafkaSource: dropping undecodable message", "topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "error", err)
			if cerr := s.reader.CommitMessages(ctx, msg); cerr != nil {
				return nil, fmt.Errorf("commit %s: %w", s.topic, cerr)
			}
			continue
		}
		req.ID = fmt.Sprintf("%d/%d", msg.Partition, msg.Offset)
		req.commit = msg
		return req, nil
	}
}

// Commit acknowledges the message that carried req.
func (s *KafkaSource) Commit(ctx context.Context, req *Request) error {
	msg, ok := req.commit.(kafka.Message)
	if !ok {
		return nil
	}
	if err := s.reader.CommitMessages(ctx, msg); err != nil {
		return fmt.Errorf("commit %s %s: %w", s.topic, req.ID, err)
	}
	return nil
}

// Close stops the reader.
func (s *KafkaSource) Close() error {
	return s.reader.Close()
}

// KafkaSink produces JSON results keyed by request id.
type KafkaSink struct {
	writer messageWriter
	topic  string
}

// NewKafkaSink creates a synchronous writer on opts.Results.
func NewKafkaSink(opts KafkaOptions) *KafkaSink {
	topic := opts.Results
	if topic == "" {
		topic = DefaultResultsStream
	}
	topic = TopicName(topic)
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(strings.Split(opts.Brokers, ",")...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			Async:        false,
		},
		topic: topic,
	}
}

// Publish writes res to the results topic.
func (s *KafkaSink) Publish(ctx context.Context, res *Result) error {
	value, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(res.RequestID),
		Value: value,
		Time:  time.Now(),
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("produce %s: %w", s.topic, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
