package events

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/nats-io/nats.go"
)

const (
	StreamName    = "CANVASS_EVENTS"
	SubjectPrefix = "canvass.events."
)

// Bus publishes events to JetStream under SubjectPrefix + Event.Type.
type Bus struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewBus connects to url and makes sure the events stream exists.
func NewBus(url string, opts ...nats.Option) (*Bus, error) {
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, err
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:     StreamName,
		Subjects: []string{SubjectPrefix + ">"},
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		nc.Close()
		return nil, err
	}

	return &Bus{conn: nc, js: js}, nil
}

func Subject(eventType string) string {
	return SubjectPrefix + eventType
}

func (b *Bus) Publish(ctx context.Context, ev Event) error {
	if b == nil {
		return errors.New("nil bus")
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = b.js.Publish(Subject(ev.Type), data, nats.Context(ctx))
	return err
}

func (b *Bus) Close() {
	if b == nil {
		return
	}
	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
	}
}
