package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// EventName is the telemetry event name used for every forwarded delivery.
const EventName = "LogicAppEvent"

// Property keys of the forwarded telemetry event. The set is fixed.
const (
	PropMessageID = "MessageId"
	PropStatus    = "Status"
	PropSender    = "Sender"
	PropReceiver  = "Receiver"
	PropComments  = "Comments"
)

// PropertyKeys lists the property keys in emission order.
var PropertyKeys = []string{PropMessageID, PropStatus, PropSender, PropReceiver, PropComments}

// OptionalString is a JSON scalar read as text.
// Set is false when the key was missing or null.
type OptionalString struct {
	Value string
	Set   bool
}

// Present reports whether the field carries a non-empty value.
func (o OptionalString) Present() bool {
	return o.Set && o.Value != ""
}

func (o OptionalString) String() string {
	return o.Value
}

// UnmarshalJSON accepts strings, numbers and booleans. Numbers and booleans
// keep their literal JSON text. Objects and arrays are rejected.
func (o *OptionalString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*o = OptionalString{}
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*o = OptionalString{Value: s, Set: true}
	case '{', '[':
		return fmt.Errorf("cannot read %s value as string", jsonKind(data[0]))
	default:
		// number, true or false
		if !json.Valid(data) {
			return fmt.Errorf("invalid JSON scalar %q", data)
		}
		*o = OptionalString{Value: string(data), Set: true}
	}
	return nil
}

// MarshalJSON writes null for unset values.
func (o OptionalString) MarshalJSON() ([]byte, error) {
	if !o.Set {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

func jsonKind(b byte) string {
	if b == '{' {
		return "object"
	}
	return "array"
}

// EventPayload is the inbound delivery event posted by the Logic App.
// Keys are matched exactly; unknown keys are ignored.
type EventPayload struct {
	MessageID OptionalString `json:"MessageId"`
	Status    OptionalString `json:"Status"`
	Sender    OptionalString `json:"Sender"`
	Receiver  OptionalString `json:"Receiver"`
	Comments  OptionalString `json:"Comments"`
}

// ForwardedEvent is the record mirrored to the message bus after a delivery
// has been handed to the telemetry client.
type ForwardedEvent struct {
	Name        string            `json:"name"`
	Properties  map[string]string `json:"properties"`
	RequestID   string            `json:"request_id,omitempty"`
	ForwardedAt time.Time         `json:"forwarded_at"`
}

// ForwardingStats are process-lifetime counters exposed on /readyz.
type ForwardingStats struct {
	Received     int64     `json:"received"`
	Forwarded    int64     `json:"forwarded"`
	Rejected     int64     `json:"rejected"`
	Failed       int64     `json:"failed"`
	MirrorErrors int64     `json:"mirror_errors"`
	LastEvent    time.Time `json:"last_event"`
}
