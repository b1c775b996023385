package service

import "errors"

// ErrMissingFields is returned when a required payload field is absent or empty.
var ErrMissingFields = errors.New("missing required fields")

// DecodeError reports a request body that could not be read as an event payload.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return "decode request body: " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// DeliveryError reports a telemetry client failure.
type DeliveryError struct {
	Event string
	Err   error
}

func (e *DeliveryError) Error() string {
	return "deliver telemetry event " + e.Event + ": " + e.Err.Error()
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}
