package service

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/telhawk-relay/common/logging"
	"github.com/telhawk-systems/telhawk-relay/common/messaging"
	"github.com/telhawk-systems/telhawk-relay/common/middleware"
	"github.com/telhawk-systems/telhawk-relay/internal/models"
	"github.com/telhawk-systems/telhawk-relay/internal/telemetry"
)

// Mock implementations

type trackedEvent struct {
	name  string
	props map[string]string
}

type mockSender struct {
	mu     sync.Mutex
	events []trackedEvent
	err    error
}

func (m *mockSender) TrackEvent(_ context.Context, name string, props map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, trackedEvent{name: name, props: props})
	return nil
}

func (m *mockSender) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

type mockMirror struct {
	mu     sync.Mutex
	events []*models.ForwardedEvent
	err    error
}

func (m *mockMirror) Publish(_ context.Context, event *models.ForwardedEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, event)
	return nil
}

func (m *mockMirror) Health() messaging.HealthStatus {
	return messaging.HealthStatus{Enabled: true, Connected: m.err == nil}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func expectedKeys() []string {
	keys := append([]string(nil), models.PropertyKeys...)
	sort.Strings(keys)
	return keys
}

func TestForward_ScenarioA(t *testing.T) {
	sender := &mockSender{}
	f := NewForwarder(sender, nil, logging.Discard())

	body := `{"MessageId":"m1","Status":"Delivered","Sender":"A","Receiver":"B","Comments":"ok"}`
	props, err := f.Forward(context.Background(), []byte(body))
	require.NoError(t, err)

	want := map[string]string{
		"MessageId": "m1",
		"Status":    "Delivered",
		"Sender":    "A",
		"Receiver":  "B",
		"Comments":  "ok",
	}
	assert.Equal(t, want, props)
	require.Len(t, sender.events, 1)
	assert.Equal(t, "LogicAppEvent", sender.events[0].name)
	assert.Equal(t, want, sender.events[0].props)
}

func TestForward_ScenarioB(t *testing.T) {
	sender := &mockSender{}
	f := NewForwarder(sender, nil, logging.Discard())

	_, err := f.Forward(context.Background(), []byte(`{"Status":"Delivered","Sender":"A","Receiver":"B"}`))
	assert.ErrorIs(t, err, ErrMissingFields)
	assert.Equal(t, 0, sender.count())
}

func TestForward_MissingOrEmptyRequiredFields(t *testing.T) {
	base := map[string]any{
		"MessageId": "m1",
		"Status":    "Delivered",
		"Sender":    "A",
		"Receiver":  "B",
	}

	for _, field := range []string{"MessageId", "Status", "Sender", "Receiver"} {
		for _, variant := range []string{"absent", "empty", "null"} {
			for _, comments := range []any{nil, "", "note"} {
				payload := map[string]any{}
				for k, v := range base {
					payload[k] = v
				}
				switch variant {
				case "absent":
					delete(payload, field)
				case "empty":
					payload[field] = ""
				case "null":
					payload[field] = nil
				}
				if comments != nil {
					payload["Comments"] = comments
				}

				t.Run(field+"/"+variant, func(t *testing.T) {
					body, err := json.Marshal(payload)
					require.NoError(t, err)

					sender := &mockSender{}
					f := NewForwarder(sender, nil, logging.Discard())
					_, err = f.Forward(context.Background(), body)
					assert.ErrorIs(t, err, ErrMissingFields)
					assert.Equal(t, 0, sender.count())
				})
			}
		}
	}
}

func TestForward_CommentsOptional(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "absent", body: `{"MessageId":"m1","Status":"s","Sender":"A","Receiver":"B"}`},
		{name: "null", body: `{"MessageId":"m1","Status":"s","Sender":"A","Receiver":"B","Comments":null}`},
		{name: "empty", body: `{"MessageId":"m1","Status":"s","Sender":"A","Receiver":"B","Comments":""}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &mockSender{}
			f := NewForwarder(sender, nil, logging.Discard())

			props, err := f.Forward(context.Background(), []byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, expectedKeys(), sortedKeys(props))
			assert.Equal(t, "", props["Comments"])
			assert.Equal(t, 1, sender.count())
		})
	}
}

func TestForward_MalformedBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: `MessageId=m1&Status=ok`},
		{name: "truncated", body: `{"MessageId":"m1",`},
		{name: "array", body: `[{"MessageId":"m1"}]`},
		{name: "string", body: `"hello"`},
		{name: "number", body: `42`},
		{name: "object field", body: `{"MessageId":{"id":"m1"},"Status":"s","Sender":"A","Receiver":"B"}`},
		{name: "array field", body: `{"MessageId":"m1","Status":"s","Sender":"A","Receiver":"B","Comments":["x"]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &mockSender{}
			f := NewForwarder(sender, nil, logging.Discard())

			_, err := f.Forward(context.Background(), []byte(tt.body))
			var decodeErr *DecodeError
			assert.True(t, errors.As(err, &decodeErr), "expected DecodeError, got %v", err)
			assert.Equal(t, 0, sender.count())
		})
	}
}

func TestForward_EmptyOrNullBodyIsValidationError(t *testing.T) {
	for _, body := range []string{"", "   ", "null"} {
		sender := &mockSender{}
		f := NewForwarder(sender, nil, logging.Discard())

		_, err := f.Forward(context.Background(), []byte(body))
		assert.ErrorIs(t, err, ErrMissingFields, "body %q", body)
		assert.Equal(t, 0, sender.count())
	}
}

func TestForward_DeliveryFailure(t *testing.T) {
	sender := &mockSender{err: telemetry.ErrClientClosed}
	m := &mockMirror{}
	f := NewForwarder(sender, m, logging.Discard())

	body := `{"MessageId":"m1","Status":"Delivered","Sender":"A","Receiver":"B"}`
	_, err := f.Forward(context.Background(), []byte(body))

	var deliveryErr *DeliveryError
	require.True(t, errors.As(err, &deliveryErr))
	assert.Equal(t, models.EventName, deliveryErr.Event)
	assert.ErrorIs(t, err, telemetry.ErrClientClosed)
	assert.Empty(t, m.events, "failed deliveries must not be mirrored")

	stats := f.GetStats()
	assert.Equal(t, int64(1), stats.Received)
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, int64(0), stats.Forwarded)
}

func TestForward_Mirror(t *testing.T) {
	sender := &mockSender{}
	m := &mockMirror{}
	f := NewForwarder(sender, m, logging.Discard())

	ctx := middleware.WithRequestID(context.Background(), "req-42")
	body := `{"MessageId":"m1","Status":"Delivered","Sender":"A","Receiver":"B"}`
	props, err := f.Forward(ctx, []byte(body))
	require.NoError(t, err)

	require.Len(t, m.events, 1)
	assert.Equal(t, models.EventName, m.events[0].Name)
	assert.Equal(t, "req-42", m.events[0].RequestID)
	assert.Equal(t, props, m.events[0].Properties)
	assert.False(t, m.events[0].ForwardedAt.IsZero())
	assert.True(t, f.MirrorHealthy())
}

func TestForward_MirrorFailureDoesNotFail(t *testing.T) {
	sender := &mockSender{}
	m := &mockMirror{err: errors.New("nats: no servers available")}
	f := NewForwarder(sender, m, logging.Discard())

	body := `{"MessageId":"m1","Status":"Delivered","Sender":"A","Receiver":"B"}`
	_, err := f.Forward(context.Background(), []byte(body))
	require.NoError(t, err)
	assert.Equal(t, 1, sender.count())

	stats := f.GetStats()
	assert.Equal(t, int64(1), stats.Forwarded)
	assert.Equal(t, int64(1), stats.MirrorErrors)
	assert.False(t, f.MirrorHealthy())
}

func TestForward_RandomValidPayloads(t *testing.T) {
	faker := gofakeit.New(20260101)
	sender := &mockSender{}
	f := NewForwarder(sender, nil, logging.Discard())

	for i := 0; i < 200; i++ {
		payload := map[string]any{
			"MessageId": faker.UUID(),
			"Status":    faker.RandomString([]string{"Delivered", "Failed", "Pending", "Rejected"}),
			"Sender":    faker.Company(),
			"Receiver":  faker.Company(),
		}
		switch i % 3 {
		case 0:
			payload["Comments"] = faker.Sentence(6)
		case 1:
			payload["Comments"] = nil
		}
		// Unknown keys are ignored.
		payload[faker.Word()+"_extra"] = faker.Number(0, 1000)

		body, err := json.Marshal(payload)
		require.NoError(t, err)

		props, err := f.Forward(context.Background(), body)
		require.NoError(t, err, "payload %s", body)
		assert.Equal(t, expectedKeys(), sortedKeys(props))
		assert.Equal(t, payload["MessageId"], props["MessageId"])
	}

	assert.Equal(t, 200, sender.count())
	for _, evt := range sender.events {
		assert.Equal(t, models.EventName, evt.name)
	}
	assert.Equal(t, int64(200), f.GetStats().Forwarded)
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    models.EventPayload
		wantErr bool
	}{
		{
			name: "all fields",
			body: `{"MessageId":"m1","Status":"s","Sender":"A","Receiver":"B","Comments":"c"}`,
			want: models.EventPayload{
				MessageID: models.OptionalString{Value: "m1", Set: true},
				Status:    models.OptionalString{Value: "s", Set: true},
				Sender:    models.OptionalString{Value: "A", Set: true},
				Receiver:  models.OptionalString{Value: "B", Set: true},
				Comments:  models.OptionalString{Value: "c", Set: true},
			},
		},
		{
			name: "keys are case sensitive",
			body: `{"messageid":"m1","STATUS":"s"}`,
			want: models.EventPayload{},
		},
		{
			name: "scalars keep literal text",
			body: `{"MessageId":12345,"Status":true}`,
			want: models.EventPayload{
				MessageID: models.OptionalString{Value: "12345", Set: true},
				Status:    models.OptionalString{Value: "true", Set: true},
			},
		},
		{
			name: "null top level",
			body: `null`,
			want: models.EventPayload{},
		},
		{
			name:    "nested object",
			body:    `{"Sender":{"name":"A"}}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.body))
			if tt.wantErr {
				var decodeErr *DecodeError
				assert.True(t, errors.As(err, &decodeErr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestValidate_Nil(t *testing.T) {
	assert.ErrorIs(t, Validate(nil), ErrMissingFields)
}

func TestForward_Concurrent(t *testing.T) {
	sender := &mockSender{}
	f := NewForwarder(sender, nil, logging.Discard())
	body := []byte(`{"MessageId":"m1","Status":"Delivered","Sender":"A","Receiver":"B"}`)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.Forward(context.Background(), body)
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, sender.count())
	assert.Equal(t, int64(50), f.GetStats().Received)
}
