package publisher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
)

type publisherSource interface {
	Publisher(name string) *pubsub.Publisher
}

// PubSubSink publishes through one cached, ordered publisher per topic.
type PubSubSink struct {
	source publisherSource

	mu         sync.Mutex
	publishers map[string]*pubsub.Publisher
}

func NewPubSubSink(source publisherSource) *PubSubSink {
	return &PubSubSink{source: source, publishers: map[string]*pubsub.Publisher{}}
}

func (s *PubSubSink) Send(ctx context.Context, topic string, msg Message) error {
	pub, err := s.publisher(topic)
	if err != nil {
		return err
	}

	result := pub.Publish(ctx, &pubsub.Message{
		Data:        msg.Data,
		Attributes:  msg.Attributes,
		OrderingKey: msg.OrderingKey,
	})
	if _, err := result.Get(ctx); err != nil {
		// A failed ordered publish pauses the key until resumed.
		if msg.OrderingKey != "" {
			pub.ResumePublish(msg.OrderingKey)
		}
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Stop flushes and stops every cached publisher.
func (s *PubSubSink) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, pub := range s.publishers {
		pub.Stop()
		delete(s.publishers, name)
	}
}

func (s *PubSubSink) publisher(topic string) (*pubsub.Publisher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pub, ok := s.publishers[topic]; ok {
		return pub, nil
	}
	if s.source == nil {
		return nil, errors.New("pubsub client not configured")
	}
	pub := s.source.Publisher(topic)
	if pub == nil {
		return nil, fmt.Errorf("topic %q not configured", topic)
	}
	pub.EnableMessageOrdering = true
	s.publishers[topic] = pub
	return pub, nil
}
