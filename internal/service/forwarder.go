package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/telhawk-systems/telhawk-relay/common/logging"
	"github.com/telhawk-systems/telhawk-relay/common/middleware"
	"github.com/telhawk-systems/telhawk-relay/internal/metrics"
	"github.com/telhawk-systems/telhawk-relay/internal/mirror"
	"github.com/telhawk-systems/telhawk-relay/internal/models"
	"github.com/telhawk-systems/telhawk-relay/internal/telemetry"
)

// Forwarder turns delivery payloads into LogicAppEvent telemetry events.
// It is safe for concurrent use.
type Forwarder struct {
	sender telemetry.Sender
	mirror mirror.Mirror
	logger *logging.Logger

	stats      models.ForwardingStats
	statsMutex sync.RWMutex
}

// NewForwarder creates a Forwarder. mirror may be nil.
func NewForwarder(sender telemetry.Sender, m mirror.Mirror, logger *logging.Logger) *Forwarder {
	if logger == nil {
		logger = logging.Default()
	}
	return &Forwarder{
		sender: sender,
		mirror: m,
		logger: logger,
	}
}

// Forward decodes body, validates it and submits one telemetry event.
// It returns the submitted property set. On ErrMissingFields or a
// *DecodeError nothing is sent.
func (f *Forwarder) Forward(ctx context.Context, body []byte) (map[string]string, error) {
	f.recordReceived()

	payload, err := Decode(body)
	if err != nil {
		f.recordFailed()
		return nil, err
	}

	if err := Validate(payload); err != nil {
		f.recordRejected()
		return nil, err
	}

	props := Properties(payload)

	start := time.Now()
	err = f.sender.TrackEvent(ctx, models.EventName, props)
	metrics.TelemetrySendDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		f.recordFailed()
		return nil, &DeliveryError{Event: models.EventName, Err: err}
	}

	metrics.EventsForwarded.WithLabelValues(models.EventName).Inc()
	f.recordForwarded()

	f.mirrorEvent(ctx, props)

	return props, nil
}

// mirrorEvent republishes a forwarded event. Failures are logged and counted.
func (f *Forwarder) mirrorEvent(ctx context.Context, props map[string]string) {
	if f.mirror == nil {
		return
	}

	event := &models.ForwardedEvent{
		Name:        models.EventName,
		Properties:  props,
		RequestID:   middleware.GetRequestID(ctx),
		ForwardedAt: time.Now().UTC(),
	}
	if err := f.mirror.Publish(ctx, event); err != nil {
		metrics.MirrorErrors.Inc()
		f.recordMirrorError()
		f.logger.WarnContext(ctx, "failed to mirror event",
			logging.MessageID(props[models.PropMessageID]),
			logging.Error(err),
		)
	}
}

// Decode reads body as an event payload. Keys are matched exactly. An empty
// body or a JSON null yields a payload with every field absent.
func Decode(body []byte) (*models.EventPayload, error) {
	payload := &models.EventPayload{}

	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return payload, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, &DecodeError{Err: err}
	}

	targets := map[string]*models.OptionalString{
		models.PropMessageID: &payload.MessageID,
		models.PropStatus:    &payload.Status,
		models.PropSender:    &payload.Sender,
		models.PropReceiver:  &payload.Receiver,
		models.PropComments:  &payload.Comments,
	}
	for key, raw := range fields {
		target, ok := targets[key]
		if !ok {
			continue
		}
		if err := target.UnmarshalJSON(raw); err != nil {
			return nil, &DecodeError{Err: fmt.Errorf("field %s: %w", key, err)}
		}
	}

	return payload, nil
}

// Validate checks that MessageId, Status, Sender and Receiver are present and
// non-empty. Comments is optional.
func Validate(p *models.EventPayload) error {
	if p == nil {
		return ErrMissingFields
	}
	if !p.MessageID.Present() || !p.Status.Present() || !p.Sender.Present() || !p.Receiver.Present() {
		return ErrMissingFields
	}
	return nil
}

// Properties builds the five-key property set. Absent Comments maps to "".
func Properties(p *models.EventPayload) map[string]string {
	return map[string]string{
		models.PropMessageID: p.MessageID.String(),
		models.PropStatus:    p.Status.String(),
		models.PropSender:    p.Sender.String(),
		models.PropReceiver:  p.Receiver.String(),
		models.PropComments:  p.Comments.String(),
	}
}

// GetStats returns a snapshot of the forwarding counters.
func (f *Forwarder) GetStats() models.ForwardingStats {
	f.statsMutex.RLock()
	defer f.statsMutex.RUnlock()
	return f.stats
}

// MirrorHealthy reports whether the mirror, if configured, is connected.
func (f *Forwarder) MirrorHealthy() bool {
	if f.mirror == nil {
		return true
	}
	return f.mirror.Health().Healthy()
}

func (f *Forwarder) recordReceived() {
	f.statsMutex.Lock()
	defer f.statsMutex.Unlock()
	f.stats.Received++
	f.stats.LastEvent = time.Now()
}

func (f *Forwarder) recordForwarded() {
	f.statsMutex.Lock()
	defer f.statsMutex.Unlock()
	f.stats.Forwarded++
}

func (f *Forwarder) recordRejected() {
	f.statsMutex.Lock()
	defer f.statsMutex.Unlock()
	f.stats.Rejected++
}

func (f *Forwarder) recordFailed() {
	f.statsMutex.Lock()
	defer f.statsMutex.Unlock()
	f.stats.Failed++
}

func (f *Forwarder) recordMirrorError() {
	f.statsMutex.Lock()
	defer f.statsMutex.Unlock()
	f.stats.MirrorErrors++
}
