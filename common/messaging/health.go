package messaging

// HealthStatus represents the health state of a messaging connection.
type HealthStatus struct {
	Enabled   bool   `json:"enabled"`
	Connected bool   `json:"connected"`
	Error     string `json:"error,omitempty"`
}

// CheckPublisherHealth reports the connection state of p.
// A nil publisher is reported as disabled, which is healthy.
func CheckPublisherHealth(p Publisher) HealthStatus {
	if p == nil {
		return HealthStatus{}
	}

	status := HealthStatus{Enabled: true, Connected: p.IsConnected()}
	if !status.Connected {
		status.Error = "not connected to message broker"
	}
	return status
}

// Healthy reports whether the status should count toward readiness.
func (s HealthStatus) Healthy() bool {
	return !s.Enabled || s.Connected
}
