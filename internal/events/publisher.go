package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Publisher emits session events.
type Publisher interface {
	Publish(ctx context.Context, event SessionEvent) error
	Close() error
}

// PublisherConfig selects the backing pub/sub. With no brokers an in-process
// gochannel is used.
type PublisherConfig struct {
	KafkaBrokers []string
	TopicName    string
	Logger       *slog.Logger
}

// WatermillPublisher sends session events through any watermill publisher.
type WatermillPublisher struct {
	publisher message.Publisher
	logger    *slog.Logger
	topic     string
}

// NewPublisher builds a Kafka publisher when brokers are configured and an
// in-process gochannel otherwise.
func NewPublisher(cfg PublisherConfig) (*WatermillPublisher, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.TopicName == "" {
		cfg.TopicName = DefaultTopic
	}
	logger := watermill.NewSlogLogger(cfg.Logger)

	var pub message.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		kp, err := kafka.NewPublisher(kafka.PublisherConfig{
			Brokers:   cfg.KafkaBrokers,
			Marshaler: kafka.DefaultMarshaler{},
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("create kafka publisher: %w", err)
		}
		pub = kp
	} else {
		pub = gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, logger)
	}
	return NewWatermillPublisher(pub, cfg.TopicName, cfg.Logger), nil
}

// NewWatermillPublisher wraps an existing watermill publisher.
func NewWatermillPublisher(pub message.Publisher, topic string, logger *slog.Logger) *WatermillPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &WatermillPublisher{publisher: pub, logger: logger, topic: topic}
}

func (p *WatermillPublisher) Publish(ctx context.Context, event SessionEvent) error {
	if event.ID == "" {
		event.ID = watermill.NewUUID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal session event: %w", err)
	}

	msg := message.NewMessage(event.ID, body)
	msg.SetContext(ctx)
	msg.Metadata.Set("event_type", string(event.Type))
	msg.Metadata.Set("room_code", event.RoomCode)
	msg.Metadata.Set("source", sourceName)
	msg.Metadata.Set("version", eventVersion)
	msg.Metadata.Set("timestamp", event.Timestamp.Format(time.RFC3339))

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		p.logger.Error("publish session event failed",
			"event_id", event.ID,
			"event_type", event.Type,
			"error", err)
		return fmt.Errorf("publish session event: %w", err)
	}
	p.logger.Debug("published session event",
		"event_id", event.ID,
		"event_type", event.Type,
		"topic", p.topic)
	return nil
}

func (p *WatermillPublisher) Close() error {
	return p.publisher.Close()
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, SessionEvent) error { return nil }
func (Nop) Close() error { return nil }

// MockPublisher records events in memory for tests.
type MockPublisher struct {
	mu     sync.Mutex
	events []SessionEvent
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) Publish(_ context.Context, event SessionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *MockPublisher) Close() error { return nil }

// Events returns a copy of everything published so far.
func (m *MockPublisher) Events() []SessionEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SessionEvent(nil), m.events...)
}

// Types returns the event types in publish order.
func (m *MockPublisher) Types() []EventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EventType, len(m.events))
	for i, e := range m.events {
		out[i] = e.Type
	}
	return out
}
