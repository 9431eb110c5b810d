package entity

import (
	"fmt"
	"net"
	"time"
)

// Outcome is the result of one SSH authentication attempt
type Outcome string

const (
	OutcomeAccepted    Outcome = "accepted"
	OutcomeFailed      Outcome = "failed"
	OutcomeInvalidUser Outcome = "invalid_user"
)

// IsFailure returns true for failed and invalid-user outcomes
func (o Outcome) IsFailure() bool {
	return o == OutcomeFailed || o == OutcomeInvalidUser
}

// GeoInfo holds geographic enrichment for a source IP
type GeoInfo struct {
	CountryCode string  `json:"country_code"`
	CountryName string  `json:"country_name,omitempty"`
	City        string  `json:"city,omitempty"`
	Latitude    float64 `json:"latitude,omitempty"`
	Longitude   float64 `json:"longitude,omitempty"`
}

// Event represents one normalized SSH authentication attempt.
// Produced by the log parser, consumed read-only by every pipeline stage.
// Geo and ReputationHint are enrichment fields appended after parsing,
// never mutated destructively.
type Event struct {
	Timestamp         time.Time `json:"timestamp"`
	SourceIP          string    `json:"source_ip"`
	Username          string    `json:"username"`
	DestinationServer string    `json:"destination_server"`
	Port              uint16    `json:"port"`
	Outcome           Outcome   `json:"outcome"`

	// Enrichment (optional)
	Geo            *GeoInfo `json:"geo,omitempty"`
	ReputationHint *int     `json:"reputation_hint,omitempty"` // pre-computed score 0-100
}

// Validate rejects malformed events before they enter the pipeline
func (e *Event) Validate() error {
	if e.Timestamp.IsZero() {
		return fmt.Errorf("event missing timestamp")
	}
	if net.ParseIP(e.SourceIP) == nil {
		return fmt.Errorf("event has invalid source IP %q", e.SourceIP)
	}
	if e.DestinationServer == "" {
		return fmt.Errorf("event missing destination server")
	}
	switch e.Outcome {
	case OutcomeAccepted, OutcomeFailed, OutcomeInvalidUser:
	default:
		return fmt.Errorf("event has unknown outcome %q", e.Outcome)
	}
	return nil
}
