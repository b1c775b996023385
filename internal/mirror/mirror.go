// Package mirror republishes forwarded telemetry events onto the message bus
// so other consumers can observe deliveries without querying Application
// Insights.
package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/telhawk-systems/telhawk-relay/common/messaging"
	"github.com/telhawk-systems/telhawk-relay/internal/models"
)

// Mirror publishes forwarded events.
type Mirror interface {
	Publish(ctx context.Context, event *models.ForwardedEvent) error
	Health() messaging.HealthStatus
}

// EventMirror publishes events as JSON through a messaging.Publisher.
type EventMirror struct {
	publisher messaging.Publisher
	subject   string
}

var _ Mirror = (*EventMirror)(nil)

// New creates an EventMirror. An empty subject derives one from the event
// name (LogicAppEvent -> relay.events.logicapp).
func New(publisher messaging.Publisher, subject string) *EventMirror {
	return &EventMirror{publisher: publisher, subject: subject}
}

// Publish marshals event and sends it with request ID and event name headers.
func (m *EventMirror) Publish(ctx context.Context, event *models.ForwardedEvent) error {
	if event == nil {
		return errors.New("mirror: nil event")
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("mirror: marshal event: %w", err)
	}

	subject := m.subject
	if subject == "" {
		subject = messaging.EventSubject(event.Name)
	}

	opts := []messaging.PublishOption{messaging.WithHeader(messaging.HeaderEventName, event.Name)}
	if event.RequestID != "" {
		opts = append(opts, messaging.WithHeader(messaging.HeaderRequestID, event.RequestID))
	}

	if err := m.publisher.PublishMsg(ctx, messaging.NewMessage(subject, data, opts...)); err != nil {
		return fmt.Errorf("mirror: publish to %s: %w", subject, err)
	}
	return nil
}

// Health reports the publisher connection state.
func (m *EventMirror) Health() messaging.HealthStatus {
	return messaging.CheckPublisherHealth(m.publisher)
}

// Close closes the underlying publisher.
func (m *EventMirror) Close() error {
	return m.publisher.Close()
}
