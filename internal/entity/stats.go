package entity

import "time"

// EngineStatistics is the best-effort statistics snapshot exported by the
// processing engine
type EngineStatistics struct {
	StartedAt         time.Time `json:"started_at"`
	EventsSubmitted   uint64    `json:"events_submitted"`
	EventsProcessed   uint64    `json:"events_processed"`
	EventsRejected    uint64    `json:"events_rejected"` // queue full or invalid
	ThreatsDetected   uint64    `json:"threats_detected"`
	IPsBlocked        uint64    `json:"ips_blocked"`
	AlertsSent        uint64    `json:"alerts_sent"`
	QueueDepth        int       `json:"queue_depth"`
	QueueCapacity     int       `json:"queue_capacity"`

	Detection    DetectionStats  `json:"detection"`
	Reputation   ReputationStats `json:"reputation"`
	Alerts       AlertCounters   `json:"alerts"`
	ActiveBlocks int             `json:"active_blocks"`
}

// DetectionStats counts per-detector hits
type DetectionStats struct {
	BruteForceHits  uint64 `json:"brute_force_hits"`
	PatternHits     uint64 `json:"pattern_hits"`
	DistributedHits uint64 `json:"distributed_hits"`
	TrackedIPs      int    `json:"tracked_ips"`
	TrackedServers  int    `json:"tracked_servers"`
}

// ReputationStats summarizes external lookup behavior
type ReputationStats struct {
	Lookups     uint64  `json:"lookups"`
	CacheHits   uint64  `json:"cache_hits"`
	CacheMisses uint64  `json:"cache_misses"`
	RateLimited uint64  `json:"rate_limited"`
	Errors      uint64  `json:"errors"`
	HitRate     float64 `json:"hit_rate"`
}
