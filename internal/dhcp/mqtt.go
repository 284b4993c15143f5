package dhcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/PEEC-Nature-Youth-Group/pumaguard-sub000/internal/infrastructure/mqtt"
)

// Subscriber is the subset of the MQTT client used by Source.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Source feeds lease events published on MQTT into an Ingester.
type Source struct {
	ingester *Ingester
	client   Subscriber
	topic    string
	ctx      context.Context
}

// NewSource creates a source for topic.
func NewSource(ingester *Ingester, client Subscriber, topic string) *Source {
	return &Source{ingester: ingester, client: client, topic: topic, ctx: context.Background()}
}

// Start subscribes to the lease topic. Events are applied with ctx, so
// cancelling it stops further mutations even before Stop is called.
func (s *Source) Start(ctx context.Context) error {
	s.ctx = ctx
	if err := s.client.Subscribe(s.topic, 1, s.handle); err != nil {
		return fmt.Errorf("subscribing to %s: %w", s.topic, err)
	}
	return nil
}

// Stop unsubscribes.
func (s *Source) Stop() error {
	return s.client.Unsubscribe(s.topic)
}

// handle decodes one MQTT payload. Malformed events are logged by the MQTT
// client through the returned error and otherwise dropped.
func (s *Source) handle(_ string, payload []byte) error {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}

	_, err := s.ingester.HandleEvent(s.ctx, ev)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
