package models

import (
	"fmt"
	"time"
)

// Frame is one compressed snapshot of the live source. It lives for a single
// cycle and is dropped once its request resolves.
type Frame struct {
	Data       []byte    `json:"-"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	CapturedAt time.Time `json:"captured_at"`
}

type GeoPosition struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (p GeoPosition) Validate() error {
	if p.Latitude < -90 || p.Latitude > 90 {
		return fmt.Errorf("latitude %f out of range", p.Latitude)
	}
	if p.Longitude < -180 || p.Longitude > 180 {
		return fmt.Errorf("longitude %f out of range", p.Longitude)
	}
	return nil
}

type Priority int32

const (
	PriorityNone Priority = iota
	PriorityInfo
	PriorityWarning
	PriorityCritical
)

func (p Priority) Valid() bool {
	return p >= PriorityNone && p <= PriorityCritical
}

func (p Priority) String() string {
	switch p {
	case PriorityNone:
		return "none"
	case PriorityInfo:
		return "info"
	case PriorityWarning:
		return "warning"
	case PriorityCritical:
		return "critical"
	default:
		return fmt.Sprintf("priority(%d)", int32(p))
	}
}

// HazardAssessment is the detection service's verdict for one frame.
type HazardAssessment struct {
	HazardType string    `json:"hazard_type"`
	Priority   Priority  `json:"priority"`
	Confidence float32   `json:"confidence"`
	ReceivedAt time.Time `json:"received_at"`
}

type HazardRecord struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	HazardType string    `json:"hazard_type"`
	Priority   Priority  `json:"priority"`
	Confidence float32   `json:"confidence"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	CreatedAt  time.Time `json:"created_at"`
}
