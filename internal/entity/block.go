package entity

import (
	"time"

	"github.com/google/uuid"
)

// BlockRecord represents an active or historical IP block.
// Owned by the block lifecycle manager, the single authority that may
// create, extend, or delete it.
type BlockRecord struct {
	IP            string      `json:"ip"`
	Reason        string      `json:"reason"`
	ThreatLevel   ThreatLevel `json:"threat_level"`
	BlockedAt     time.Time   `json:"blocked_at"`
	UnblockAt     time.Time   `json:"unblock_at"`
	DurationHours int         `json:"duration_hours"`
	Manual        bool        `json:"manual"`
	CreatedBy     string      `json:"created_by"`
}

// Expired returns true once the block has passed its unblock time
func (b *BlockRecord) Expired(now time.Time) bool {
	return !b.UnblockAt.After(now)
}

// BlockHistory is one entry in the block audit trail
type BlockHistory struct {
	ID            uuid.UUID `json:"id"`
	IP            string    `json:"ip"`
	Action        string    `json:"action"` // block, unblock, expire
	Reason        string    `json:"reason"`
	DurationHours int       `json:"duration_hours"`
	PerformedBy   string    `json:"performed_by"`
	CreatedAt     time.Time `json:"created_at"`
}

// Block history actions
const (
	BlockActionBlock   = "block"
	BlockActionUnblock = "unblock"
	BlockActionExpire  = "expire"
)

// WhitelistEntry is one IP or CIDR exempt from blocking
type WhitelistEntry struct {
	CIDR      string    `json:"cidr"` // single IP stored as /32 (or /128)
	Reason    string    `json:"reason"`
	AddedBy   string    `json:"added_by"`
	CreatedAt time.Time `json:"created_at"`
}

// BlockRequest is a manual or pipeline-originated request to block an IP
type BlockRequest struct {
	IP            string      `json:"ip"`
	Reason        string      `json:"reason"`
	ThreatLevel   ThreatLevel `json:"threat_level"`
	DurationHours *int        `json:"duration_hours"` // nil = derive from threat level
	Manual        bool        `json:"manual"`
	PerformedBy   string      `json:"performed_by"`
}

// severityDurations maps threat level to default block duration
var severityDurations = map[ThreatLevel]time.Duration{
	LevelLow:      1 * time.Hour,
	LevelMedium:   24 * time.Hour,
	LevelHigh:     168 * time.Hour,
	LevelCritical: 720 * time.Hour,
}

// BlockDurationFor returns the default block duration for a threat level.
// Unknown levels fall back to the low-severity duration.
func BlockDurationFor(level ThreatLevel) time.Duration {
	if d, ok := severityDurations[level]; ok {
		return d
	}
	return severityDurations[LevelLow]
}
