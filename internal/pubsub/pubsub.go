package pubsub

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
)

// Publisher publishes messages to a topic
type Publisher interface {
	Publish(ctx context.Context, topic string, msg *message.Message) error
	Close() error
}

// Subscriber streams the messages of a topic until ctx is done
type Subscriber interface {
	Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error)
	Close() error
}

// PubSub combines both Publisher and Subscriber interfaces
type PubSub interface {
	Publisher
	Subscriber
}

// watermillPublisher exposes a Publisher to watermill middleware, which
// publishes without a context
type watermillPublisher struct {
	publisher Publisher
}

// AsWatermillPublisher adapts p to message.Publisher
func AsWatermillPublisher(p Publisher) message.Publisher {
	return &watermillPublisher{publisher: p}
}

func (w *watermillPublisher) Publish(topic string, messages ...*message.Message) error {
	for _, msg := range messages {
		if err := w.publisher.Publish(msg.Context(), topic, msg); err != nil {
			return err
		}
	}
	return nil
}

func (w *watermillPublisher) Close() error {
	return w.publisher.Close()
}
