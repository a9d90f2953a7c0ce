package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	streamName    = "NOTIFICATIONS"
	subjectPrefix = "notifications."
)

// NatsDispatcher publishes notification envelopes to a JetStream
// stream, one subject per message kind. Whatever consumes the stream
// (the email worker) owns delivery and retries.
type NatsDispatcher struct {
	conn *nats.Conn
	js   jetstream.JetStream
}

// NewNatsDispatcher connects the dispatcher to JetStream, creating
// the notification stream if it does not exist yet.
func NewNatsDispatcher(ctx context.Context, conn *nats.Conn) (*NatsDispatcher, error) {
	js, err := jetstream.New(conn)
	if err != nil {
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	_, err = js.Stream(ctx, streamName)
	if err != nil {
		_, err = js.CreateStream(ctx, jetstream.StreamConfig{
			Name:     streamName,
			Subjects: []string{subjectPrefix + ">"},
		})
		if err != nil {
			return nil, fmt.Errorf("create stream: %w", err)
		}
	}

	return &NatsDispatcher{conn: conn, js: js}, nil
}

// Dispatch implements Dispatcher.
func (d *NatsDispatcher) Dispatch(ctx context.Context, msg Message) error {
	data, err := json.Marshal(NewEnvelope(msg))
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	if _, err := d.js.Publish(ctx, subjectPrefix+string(msg.Kind()), data); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}
