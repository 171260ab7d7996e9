package models

import "time"

type SessionState uint8

const (
	StateIdle SessionState = iota
	StateRecording
	StateStopPending
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateStopPending:
		return "stop_pending"
	default:
		return "unknown"
	}
}

func (s SessionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type SessionStats struct {
	SessionID         string    `json:"session_id"`
	StartTime         time.Time `json:"start_time"`
	Cycles            int64     `json:"cycles"`
	Succeeded         int64     `json:"succeeded"`
	CaptureFailures   int64     `json:"capture_failures"`
	TransportFailures int64     `json:"transport_failures"`
	AverageLatency    float64   `json:"average_latency_ms"`
}

type SessionSnapshot struct {
	State      SessionState      `json:"state"`
	Status     string            `json:"status"`
	Assessment *HazardAssessment `json:"assessment,omitempty"`
	Stats      SessionStats      `json:"stats"`
}
