package observability

import (
	"context"
)

// Publisher is the subset of the broker client used for domain events.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error
}

var defaultPublisher Publisher

// SetPublisher installs the broker used by PublishEvent. nil disables events.
func SetPublisher(publisher Publisher) {
	defaultPublisher = publisher
}

// PublishEvent sends a domain event envelope with routing key "chat.<name>".
func PublishEvent(ctx context.Context, name string, payload any, headers map[string]string) error {
	if defaultPublisher == nil {
		return nil
	}

	envelope := EventEnvelope{EventType: "chat_event", EventName: name, Payload: payload}
	err := defaultPublisher.Publish(ctx, "chat."+name, envelope, headers)
	if err != nil {
		IncAMQPPublishError()
	}
	return err
}
