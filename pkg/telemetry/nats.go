package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/picogrid/fleet-dispatch-sim/pkg/models"
)

// Publisher is the part of a JetStream context the broadcaster needs.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// NATSBroadcaster publishes fleet channels as JetStream subjects. A channel
// such as "drones/d1/telemetry" becomes "<prefix>.drones.d1.telemetry".
type NATSBroadcaster struct {
	js     Publisher
	prefix string
	conn   *nats.Conn
}

// NewNATSBroadcaster wraps an existing JetStream publisher.
func NewNATSBroadcaster(js Publisher, subjectPrefix string) *NATSBroadcaster {
	return &NATSBroadcaster{js: js, prefix: strings.Trim(subjectPrefix, ".")}
}

// ConnectNATS dials url, makes sure the stream capturing prefix.> exists and
// returns a broadcaster that owns the connection.
func ConnectNATS(ctx context.Context, url, stream, subjectPrefix string) (*NATSBroadcaster, error) {
	nc, err := nats.Connect(url, nats.Name("fleet-sim"))
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	prefix := strings.Trim(subjectPrefix, ".")
	if _, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     stream,
		Subjects: []string{prefix + ".>"},
	}); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream %s: %w", stream, err)
	}

	b := NewNATSBroadcaster(js, prefix)
	b.conn = nc
	return b, nil
}

// Subject maps a channel name to its JetStream subject.
func (b *NATSBroadcaster) Subject(channel string) string {
	subject := strings.ReplaceAll(strings.Trim(channel, "/"), "/", ".")
	if b.prefix == "" {
		return subject
	}
	return b.prefix + "." + subject
}

func (b *NATSBroadcaster) Publish(ctx context.Context, channel string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload for %s: %w", channel, err)
	}

	var opts []jetstream.PublishOpt
	if s, ok := payload.(models.TelemetrySample); ok {
		opts = append(opts, jetstream.WithMsgID(s.ID.String()))
	}

	subject := b.Subject(channel)
	if _, err := b.js.Publish(ctx, subject, data, opts...); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// Close drains the owned connection, if any.
func (b *NATSBroadcaster) Close() error {
	if b.conn == nil {
		return nil
	}
	return b.conn.Drain()
}
