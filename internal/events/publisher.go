package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/Camus10737/warket/internal/model"
)

const (
	// StreamName is the name of the commerce events stream.
	StreamName = "COMMERCE"

	// SubjectPrefix is the prefix for all commerce subjects.
	SubjectPrefix = "shop"
)

// Publisher emits workflow events after the owning transaction commits.
// Publication is best effort: a failure must never roll back the workflow.
type Publisher interface {
	Publish(ctx context.Context, e *model.Event) error
}

// JetStreamPublisher publishes events to the commerce stream.
type JetStreamPublisher struct {
	client *Client
}

func NewJetStreamPublisher(client *Client) *JetStreamPublisher {
	return &JetStreamPublisher{client: client}
}

// EnsureStream ensures the commerce stream exists with proper configuration.
func (p *JetStreamPublisher) EnsureStream(ctx context.Context) error {
	js := p.client.JetStream()

	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      365 * 24 * time.Hour,
		MaxBytes:    10 * 1024 * 1024 * 1024,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Description: "Order, payment and escalation events",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// EventSubject returns the subject for an event.
func EventSubject(merchantID string, eventType model.EventType) string {
	return fmt.Sprintf("%s.%s.%s", SubjectPrefix, merchantID, eventType)
}

// MerchantFilter returns the filter subject for all events of a merchant.
func MerchantFilter(merchantID string) string {
	return fmt.Sprintf("%s.%s.>", SubjectPrefix, merchantID)
}

// Publish marshals the event and publishes it to JetStream.
func (p *JetStreamPublisher) Publish(ctx context.Context, e *model.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := p.client.JetStream().Publish(ctx, EventSubject(e.MerchantID, e.Type), data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}
