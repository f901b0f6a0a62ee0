package broker

import (
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// TokenPublisher is the part of mqtt.Client the log writer needs.
type TokenPublisher interface {
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// LogWriter is an io.Writer that publishes every write to logs/<service>.
// Teed with stdout it lets a log collector pick up the gateway's logs.
type LogWriter struct {
	client TokenPublisher
	topic  string
}

// NewLogWriter creates a writer publishing on logs/<serviceName>.
func NewLogWriter(client TokenPublisher, serviceName string) *LogWriter {
	return &LogWriter{
		client: client,
		topic:  "logs/" + serviceName,
	}
}

// Topic returns the topic log lines are published on.
func (w *LogWriter) Topic() string { return w.topic }

// Write publishes p without waiting for the token. While the broker is
// unreachable lines are dropped; stdout still has them.
func (w *LogWriter) Write(p []byte) (n int, err error) {
	if !w.client.IsConnected() {
		return len(p), nil
	}
	// slog reuses its buffer after Write returns.
	payload := make([]byte, len(p))
	copy(payload, p)

	w.client.Publish(w.topic, 0, false, payload)
	return len(p), nil
}
