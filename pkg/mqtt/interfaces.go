package mqtt

import "context"

// Publisher sends payloads to topics.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// Subscriber registers handlers for topics. Subscriptions survive reconnects.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler MessageHandler) error
}

// Client is the broker connection used by the light agent
type Client interface {
	Publisher
	Subscriber

	// Connect blocks until the first connection succeeds or ctx ends
	Connect(ctx context.Context) error

	// Disconnect publishes the offline availability and closes the connection
	Disconnect()

	IsConnected() bool
}

// MessageHandler is called on the paho router goroutine; it must not block.
type MessageHandler func(Message)

// Message is an inbound MQTT message
type Message interface {
	Topic() string
	Payload() []byte
	Ack()
}
