package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/telhawk-relay/common/messaging"
	"github.com/telhawk-systems/telhawk-relay/internal/models"
)

type fakePublisher struct {
	mu        sync.Mutex
	msgs      []*messaging.Message
	err       error
	connected bool
	closed    bool
}

func (f *fakePublisher) Publish(ctx context.Context, subject string, data []byte) error {
	return f.PublishMsg(ctx, messaging.NewMessage(subject, data))
}

func (f *fakePublisher) PublishMsg(_ context.Context, msg *messaging.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakePublisher) IsConnected() bool { return f.connected }

func (f *fakePublisher) Close() error {
	f.closed = true
	return nil
}

func testEvent() *models.ForwardedEvent {
	return &models.ForwardedEvent{
		Name: models.EventName,
		Properties: map[string]string{
			models.PropMessageID: "m-1",
			models.PropStatus:    "Delivered",
			models.PropSender:    "A",
			models.PropReceiver:  "B",
			models.PropComments:  "",
		},
		RequestID:   "req-1",
		ForwardedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestEventMirror_Publish(t *testing.T) {
	tests := []struct {
		name        string
		subject     string
		wantSubject string
	}{
		{name: "configured subject", subject: "custom.subject", wantSubject: "custom.subject"},
		{name: "derived subject", subject: "", wantSubject: messaging.SubjectRelayEventsLogicApp},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &fakePublisher{connected: true}
			m := New(pub, tt.subject)

			require.NoError(t, m.Publish(context.Background(), testEvent()))
			require.Len(t, pub.msgs, 1)

			msg := pub.msgs[0]
			assert.Equal(t, tt.wantSubject, msg.Subject)
			assert.Equal(t, "req-1", msg.Metadata[messaging.HeaderRequestID])
			assert.Equal(t, models.EventName, msg.Metadata[messaging.HeaderEventName])

			var got models.ForwardedEvent
			require.NoError(t, json.Unmarshal(msg.Data, &got))
			assert.Equal(t, *testEvent(), got)
		})
	}
}

func TestEventMirror_PublishWithoutRequestID(t *testing.T) {
	pub := &fakePublisher{connected: true}
	m := New(pub, "")

	evt := testEvent()
	evt.RequestID = ""
	require.NoError(t, m.Publish(context.Background(), evt))

	_, ok := pub.msgs[0].Metadata[messaging.HeaderRequestID]
	assert.False(t, ok)
}

func TestEventMirror_PublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("nats: connection closed")}
	m := New(pub, "relay.events.logicapp")

	err := m.Publish(context.Background(), testEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "relay.events.logicapp")
	assert.ErrorIs(t, err, pub.err)
}

func TestEventMirror_NilEvent(t *testing.T) {
	m := New(&fakePublisher{}, "")
	assert.Error(t, m.Publish(context.Background(), nil))
}

func TestEventMirror_HealthAndClose(t *testing.T) {
	pub := &fakePublisher{connected: false}
	m := New(pub, "")

	status := m.Health()
	assert.True(t, status.Enabled)
	assert.False(t, status.Healthy())

	pub.connected = true
	assert.True(t, m.Health().Healthy())

	require.NoError(t, m.Close())
	assert.True(t, pub.closed)
}
