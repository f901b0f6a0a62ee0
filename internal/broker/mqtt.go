// Package broker connects the gateway to the MQTT broker the boats talk
// to. It delivers inbound (topic, payload) pairs to a handler and publishes
// outbound messages without waiting for delivery.
package broker

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// ErrNotConnected is returned by Publish while the client is offline.
var ErrNotConnected = errors.New("mqtt client not connected")

// Handler receives one inbound message. paho calls it sequentially in
// delivery order.
type Handler func(topic string, payload []byte)

type subscription struct {
	topic   string
	qos     byte
	handler Handler
}

// Client wraps a paho client. Subscriptions are remembered and renewed on
// every (re)connect, because a clean session loses them.
type Client struct {
	client         mqtt.Client
	publishTimeout time.Duration

	mu     sync.Mutex
	logger *slog.Logger
	subs   []subscription
}

// New prepares a client for brokerURL (e.g. tcp://mosquitto:1883). It
// does not connect.
func New(brokerURL, clientID string) *Client {
	c := &Client{
		publishTimeout: 5 * time.Second,
		logger:         slog.Default(),
	}

	opts := mqtt.NewClientOptions().AddBroker(brokerURL).SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.log().Warn("MQTT connection lost", "error", err)
	})

	c.client = mqtt.NewClient(opts)
	return c
}

// newWithClient is used by tests to inject a fake paho client.
func newWithClient(client mqtt.Client) *Client {
	return &Client{client: client, publishTimeout: time.Second, logger: slog.Default()}
}

// SetLogger replaces the logger. The logger usually publishes through this
// very client, so it can only be attached after Connect.
func (c *Client) SetLogger(logger *slog.Logger) {
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

func (c *Client) log() *slog.Logger {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.logger
}

// Connect blocks until the first connection succeeds or fails.
func (c *Client) Connect(timeout time.Duration) error {
	token := c.client.Connect()
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("mqtt connect: timed out after %s", timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	return nil
}

// MQTT exposes the underlying paho client (for the log writer).
func (c *Client) MQTT() mqtt.Client {
	return c.client
}

// IsConnected reports the current connection state.
func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

// Subscribe registers handler for topic and subscribes right away if
// connected. The subscription is renewed after reconnects.
func (c *Client) Subscribe(topic string, qos byte, handler Handler) error {
	sub := subscription{topic: topic, qos: qos, handler: handler}

	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()

	if !c.client.IsConnected() {
		return nil
	}
	return c.subscribe(c.client, sub)
}

func (c *Client) subscribe(client mqtt.Client, sub subscription) error {
	token := client.Subscribe(sub.topic, sub.qos, func(_ mqtt.Client, msg mqtt.Message) {
		sub.handler(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(c.publishTimeout) {
		return fmt.Errorf("subscribe %s: timed out", sub.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", sub.topic, err)
	}
	return nil
}

func (c *Client) onConnect(client mqtt.Client) {
	c.mu.Lock()
	subs := append([]subscription(nil), c.subs...)
	c.mu.Unlock()

	c.log().Info("MQTT connected", "subscriptions", len(subs))
	for _, sub := range subs {
		// Runs on paho's connect goroutine; a failure is logged and the
		// next reconnect retries.
		if err := c.subscribe(client, sub); err != nil {
			c.log().Error("Resubscribe failed", "topic", sub.topic, "error", err)
		}
	}
}

// Publish sends payload with QoS 0, not retained. It returns as soon as
// the message is handed to paho; a delivery failure is only logged.
func (c *Client) Publish(topic string, payload []byte) error {
	if !c.client.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, 0, false, payload)
	go func() {
		if !token.WaitTimeout(c.publishTimeout) {
			c.log().Error("MQTT publish timed out", "topic", topic)
			return
		}
		if err := token.Error(); err != nil {
			c.log().Error("MQTT publish failed", "topic", topic, "error", err)
		}
	}()
	return nil
}

// Disconnect waits up to quiesce milliseconds for in-flight work.
func (c *Client) Disconnect(quiesce uint) {
	c.client.Disconnect(quiesce)
}
