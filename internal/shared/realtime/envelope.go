package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrEmptyTopic       = errors.New("topic name must not be empty")
	ErrTransportStopped = errors.New("transport stopped")
	ErrMalformedMessage = errors.New("malformed realtime message")
)

// Envelope is the payload published on every topic. Type selects the
// handling branch, Data carries the record.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Handler receives every envelope delivered on a topic.
type Handler func(Envelope)

// Transport establishes topic subscriptions.
type Transport interface {
	Subscribe(topic string, handler Handler) (*Subscription, error)
}

func DecodeEnvelope(body []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	}
	return env, nil
}

// Decode unmarshals the envelope data into out.
func (e Envelope) Decode(out any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%w: %s has no data", ErrMalformedMessage, e.Type)
	}
	if err := json.Unmarshal(e.Data, out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedMessage, e.Type, err)
	}
	return nil
}

// NewEnvelope marshals data into an envelope of the given type.
func NewEnvelope(eventType string, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: eventType, Data: raw}, nil
}
