package entity

import "time"

// ReputationRecord is the normalized result of querying one intelligence
// source for one IP
type ReputationRecord struct {
	Source      string    `json:"source"`
	IP          string    `json:"ip"`
	RiskScore   int       `json:"risk_score"` // 0-100
	IsMalicious bool      `json:"is_malicious"`
	Detail      []string  `json:"detail,omitempty"`    // free-form indicators
	LastSeen    time.Time `json:"last_seen,omitempty"` // when the source last observed abuse
	FetchedAt   time.Time `json:"fetched_at"`
}

// AggregatedReputation combines reputation records from every configured source
type AggregatedReputation struct {
	IP              string             `json:"ip"`
	AggregatedScore int                `json:"aggregated_score"` // 0-100
	IsMalicious     bool               `json:"is_malicious"`
	ThreatLevel     string             `json:"threat_level"` // none, low, medium, high, critical
	Sources         []ReputationRecord `json:"sources"`
	SourcesQueried  int                `json:"sources_queried"`
	SourcesFailed   int                `json:"sources_failed"`
	CacheHit        bool               `json:"cache_hit"`
	CheckedAt       time.Time          `json:"checked_at"`
}

// ReputationLevel converts an aggregated score to a threat level string
// (critical>=80, high>=60, medium>=40, low>=20)
func ReputationLevel(score int) string {
	switch {
	case score >= 80:
		return "critical"
	case score >= 60:
		return "high"
	case score >= 40:
		return "medium"
	case score >= 20:
		return "low"
	default:
		return "none"
	}
}
