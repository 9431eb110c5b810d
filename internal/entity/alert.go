package entity

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Alert priorities
const (
	AlertPriorityLow      = "low"
	AlertPriorityMedium   = "medium"
	AlertPriorityHigh     = "high"
	AlertPriorityCritical = "critical"
)

// AlertRecord is a pending or dispatched notification.
// Entries sharing a dedup key are merged (counted) rather than duplicated
// while the dedup window is open.
type AlertRecord struct {
	ID           uuid.UUID  `json:"id"`
	SourceIP     string     `json:"source_ip"`
	Server       string     `json:"server"`
	ThreatType   string     `json:"threat_type"`
	RiskScore    int        `json:"risk_score"`
	Severity     string     `json:"severity"`
	Message      string     `json:"message"`
	Count        int        `json:"count"` // occurrences merged into this record
	CreatedAt    time.Time  `json:"created_at"`
	LastSeenAt   time.Time  `json:"last_seen_at"`
	Dispatched   bool       `json:"dispatched"`
	DispatchedAt *time.Time `json:"dispatched_at,omitempty"`
}

// DedupKey collapses repeated alerts for the same attack
func (a *AlertRecord) DedupKey() string {
	return AlertDedupKey(a.SourceIP, a.Server, a.ThreatType)
}

// AlertDedupKey builds the (ip, server, threatType) dedup key
func AlertDedupKey(ip, server, threatType string) string {
	return fmt.Sprintf("%s|%s|%s", ip, server, threatType)
}

// AlertCounters track alert volume for the compression-ratio metric
type AlertCounters struct {
	Generated    uint64 `json:"generated"`
	Sent         uint64 `json:"sent"`
	Deduplicated uint64 `json:"deduplicated"`
	Batched      uint64 `json:"batched"`
}

// CompressionRatio is generated/sent; 1.0 means no compression happened
func (c AlertCounters) CompressionRatio() float64 {
	if c.Sent == 0 {
		if c.Generated == 0 {
			return 1.0
		}
		return float64(c.Generated)
	}
	return float64(c.Generated) / float64(c.Sent)
}
