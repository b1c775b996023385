// Package telemetry wraps the Application Insights SDK behind a small
// Sender interface so the forwarding service can be tested without a
// network endpoint.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/microsoft/ApplicationInsights-Go/appinsights"

	"github.com/telhawk-systems/telhawk-relay/common/logging"
)

// ErrClientClosed is returned when an event is tracked after Close.
var ErrClientClosed = errors.New("telemetry client is closed")

// Sender submits a named custom event with string properties.
type Sender interface {
	TrackEvent(ctx context.Context, name string, properties map[string]string) error
}

// Config holds telemetry client settings.
type Config struct {
	InstrumentationKey string
	EndpointURL        string
	RoleName           string
	MaxBatchSize       int
	MaxBatchInterval   time.Duration
	FlushTimeout       time.Duration
}

// Client submits events to Application Insights. Events are queued and sent
// in batches by the SDK channel; TrackEvent returns once the event is queued.
type Client struct {
	client       appinsights.TelemetryClient
	diagnostics  appinsights.DiagnosticsMessageListener
	flushTimeout time.Duration
	logger       *logging.Logger

	mu     sync.RWMutex
	closed bool
}

var _ Sender = (*Client)(nil)

// New creates a Client. The instrumentation key is required.
func New(cfg Config, logger *logging.Logger) (*Client, error) {
	if cfg.InstrumentationKey == "" {
		return nil, errors.New("instrumentation key is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	tc := appinsights.NewTelemetryConfiguration(cfg.InstrumentationKey)
	if cfg.EndpointURL != "" {
		tc.EndpointUrl = cfg.EndpointURL
	}
	if cfg.MaxBatchSize > 0 {
		tc.MaxBatchSize = cfg.MaxBatchSize
	}
	if cfg.MaxBatchInterval > 0 {
		tc.MaxBatchInterval = cfg.MaxBatchInterval
	}

	client := appinsights.NewTelemetryClientFromConfig(tc)
	if cfg.RoleName != "" {
		client.Context().Tags.Cloud().SetRole(cfg.RoleName)
	}

	c := &Client{
		client:       client,
		flushTimeout: cfg.FlushTimeout,
		logger:       logger,
	}

	// SDK diagnostics (transmission failures, throttling) go to the debug log.
	c.diagnostics = appinsights.NewDiagnosticsMessageListener(func(msg string) error {
		logger.Debug("appinsights diagnostics", slog.String("detail", msg))
		return nil
	})

	return c, nil
}

// TrackEvent queues a custom event. The properties map is copied.
func (c *Client) TrackEvent(ctx context.Context, name string, properties map[string]string) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClientClosed
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("track event %s: %v", name, r)
		}
	}()

	event := appinsights.NewEventTelemetry(name)
	for k, v := range properties {
		event.Properties[k] = v
	}
	c.client.Track(event)
	return nil
}

// Flush asks the channel to send queued events without waiting.
func (c *Client) Flush() {
	c.client.Channel().Flush()
}

// Close flushes queued events and waits until they are sent, the flush
// timeout elapses, or ctx is done. Further TrackEvent calls fail.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	if c.diagnostics != nil {
		defer c.diagnostics.Remove()
	}

	var done <-chan struct{}
	if c.flushTimeout > 0 {
		done = c.client.Channel().Close(c.flushTimeout)
	} else {
		done = c.client.Channel().Close()
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("telemetry flush interrupted: %w", ctx.Err())
	}
}
