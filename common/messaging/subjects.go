package messaging

import "strings"

// Subject constants for the relay message bus.
// Follow the pattern: {domain}.{resource}.{name}
const (
	// SubjectRelayEvents is the prefix under which forwarded telemetry events are mirrored.
	SubjectRelayEvents = "relay.events"

	// SubjectRelayEventsLogicApp carries mirrored LogicAppEvent deliveries.
	SubjectRelayEventsLogicApp = SubjectRelayEvents + ".logicapp"
)

// Header names set on mirrored messages.
const (
	HeaderRequestID = "Relay-Request-Id"
	HeaderEventName = "Relay-Event-Name"
)

// EventSubject returns the mirror subject for a telemetry event name.
// Example: LogicAppEvent -> relay.events.logicapp
func EventSubject(eventName string) string {
	name := strings.TrimSuffix(strings.ToLower(eventName), "event")
	if name == "" {
		name = "unknown"
	}
	return SubjectRelayEvents + "." + name
}
