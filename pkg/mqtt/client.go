package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/Kaiede/RPiLight-sub000/pkg/config"
)

const (
	// operationTimeout bounds publish and subscribe round trips so a dead
	// broker cannot stall the telemetry loop.
	operationTimeout  = 5 * time.Second
	disconnectQuiesce = 250 // milliseconds

	// DefaultConnectTimeout bounds Connect. Paho keeps retrying in the
	// background after it returns.
	DefaultConnectTimeout = 10 * time.Second
)

type subscription struct {
	qos     byte
	handler MessageHandler
}

// pahoClient implements Client on top of the Paho MQTT client
type pahoClient struct {
	client         pahomqtt.Client
	broker         string
	availability   string
	connectTimeout time.Duration
	logger         *slog.Logger

	mu            sync.Mutex
	subscriptions map[string]subscription
}

// NewClient creates a client for the configured broker. The client id is
// generated from the service name when not configured.
func NewClient(cfg *config.Config, logger *slog.Logger) Client {
	clientID := cfg.MQTTClientID
	if clientID == "" {
		clientID = fmt.Sprintf("%s-%s", cfg.ServiceName, uuid.NewString()[:8])
	}

	c := &pahoClient{
		broker:         cfg.MQTTAddress(),
		availability:   AvailabilityTopic(cfg.ServiceName),
		connectTimeout: DefaultConnectTimeout,
		logger:         logger.With("component", "mqtt", "client_id", clientID),
		subscriptions:  make(map[string]subscription),
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(c.broker).
		SetClientID(clientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetMaxReconnectInterval(30 * time.Second).
		SetWill(c.availability, PayloadOffline, 1, true).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			c.logger.Warn("MQTT connection lost", "error", err)
		}).
		SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
			c.logger.Info("MQTT reconnecting")
		})
	if cfg.MQTTUser != "" {
		opts.SetUsername(cfg.MQTTUser)
	}
	if cfg.MQTTPassword != "" {
		opts.SetPassword(cfg.MQTTPassword)
	}

	c.client = pahomqtt.NewClient(opts)
	return c
}

// onConnect marks the service online and restores subscriptions, which a
// clean session drops on every reconnect.
func (c *pahoClient) onConnect(client pahomqtt.Client) {
	c.logger.Info("Connected to MQTT broker", "broker", c.broker)
	client.Publish(c.availability, 1, true, PayloadOnline)

	c.mu.Lock()
	defer c.mu.Unlock()
	for topic, sub := range c.subscriptions {
		client.Subscribe(topic, sub.qos, wrap(sub.handler))
	}
}

// Connect waits for the first connection at most connectTimeout. On timeout
// the client stays in its retry loop and onConnect finishes the setup later.
func (c *pahoClient) Connect(ctx context.Context) error {
	c.logger.Info("Connecting to MQTT broker", "broker", c.broker)

	ctx, cancel := context.WithTimeout(ctx, c.connectTimeout)
	defer cancel()

	token := c.client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("failed to connect to MQTT broker %s: %w", c.broker, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("connecting to MQTT broker %s: %w", c.broker, ctx.Err())
	}
}

func (c *pahoClient) Disconnect() {
	c.logger.Info("Disconnecting from MQTT broker")
	if c.client.IsConnected() {
		c.client.Publish(c.availability, 1, true, PayloadOffline).WaitTimeout(time.Second)
	}
	c.client.Disconnect(disconnectQuiesce)
}

// Subscribe records the subscription and sends it now when connected.
// Otherwise it is sent by onConnect.
func (c *pahoClient) Subscribe(topic string, qos byte, handler MessageHandler) error {
	c.mu.Lock()
	c.subscriptions[topic] = subscription{qos: qos, handler: handler}
	c.mu.Unlock()

	if !c.client.IsConnected() {
		c.logger.Info("Subscription deferred until connected", "topic", topic)
		return nil
	}
	if err := wait(c.client.Subscribe(topic, qos, wrap(handler))); err != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", topic, err)
	}
	c.logger.Info("Subscribed to MQTT topic", "topic", topic, "qos", qos)
	return nil
}

func (c *pahoClient) Publish(topic string, qos byte, retained bool, payload []byte) error {
	if err := wait(c.client.Publish(topic, qos, retained, payload)); err != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, err)
	}
	c.logger.Debug("Published message", "topic", topic, "size", len(payload))
	return nil
}

func (c *pahoClient) IsConnected() bool {
	return c.client.IsConnected()
}

func wait(token pahomqtt.Token) error {
	if !token.WaitTimeout(operationTimeout) {
		return fmt.Errorf("timed out after %s", operationTimeout)
	}
	return token.Error()
}

func wrap(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		handler(msg)
	}
}
