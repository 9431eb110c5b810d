// Package scoring adjusts reputation scores for staleness. Intelligence
// feeds keep reporting an IP long after the abuse stopped; a score tied
// to activity from months ago should not carry the same weight as one
// reported yesterday.
package scoring

import (
	"math"
	"time"
)

// FreshnessConfig defines parameters for freshness-based score decay
type FreshnessConfig struct {
	// DecayFactor controls how quickly stale scores decay, in days.
	// Lower values = faster decay.
	DecayFactor float64

	// MinMultiplier is the floor: scores never drop below this fraction
	// of the original
	MinMultiplier float64

	// MaxMultiplier is the ceiling for the recent-activity boost
	MaxMultiplier float64

	// RecentActivityBoostDays defines the window for the recent boost
	RecentActivityBoostDays int

	// RecentActivityBoost is the multiplier for IPs active within the
	// boost window
	RecentActivityBoost float64

	// StaleThresholdDays marks where decay starts
	StaleThresholdDays int
}

// DefaultFreshnessConfig returns the defaults: scores halve roughly every
// 7 days past the 30-day stale threshold, IPs active in the last 3 days
// get a 25% boost.
func DefaultFreshnessConfig() FreshnessConfig {
	return FreshnessConfig{
		DecayFactor:             7.0,
		MinMultiplier:           0.1,
		MaxMultiplier:           1.5,
		RecentActivityBoostDays: 3,
		RecentActivityBoost:     1.25,
		StaleThresholdDays:      30,
	}
}

// FreshnessScorer calculates freshness-based score modifiers
type FreshnessScorer struct {
	config FreshnessConfig
}

// NewFreshnessScorer creates a scorer with the given config
func NewFreshnessScorer(config FreshnessConfig) *FreshnessScorer {
	return &FreshnessScorer{config: config}
}

// NewDefaultFreshnessScorer creates a scorer with default config
func NewDefaultFreshnessScorer() *FreshnessScorer {
	return &FreshnessScorer{config: DefaultFreshnessConfig()}
}

// FreshnessResult contains the outcome of a freshness adjustment
type FreshnessResult struct {
	OriginalScore     int     `json:"original_score"`
	AdjustedScore     int     `json:"adjusted_score"`
	Multiplier        float64 `json:"multiplier"`
	DaysSinceLastSeen int     `json:"days_since_last_seen"`
	IsRecent          bool    `json:"is_recent"`
	IsStale           bool    `json:"is_stale"`
	Reason            string  `json:"reason"`
}

// Adjust applies freshness decay or boost to a reputation score based on
// when the source last observed abuse from the IP. A zero lastSeen means
// the source reported no timestamp and the score passes through unchanged.
func (f *FreshnessScorer) Adjust(score int, lastSeen, now time.Time) *FreshnessResult {
	result := &FreshnessResult{
		OriginalScore: score,
		AdjustedScore: score,
		Multiplier:    1.0,
	}

	if lastSeen.IsZero() {
		result.Reason = "unknown_last_seen"
		return result
	}

	daysSince := int(now.Sub(lastSeen).Hours() / 24)
	result.DaysSinceLastSeen = daysSince

	switch {
	case daysSince <= f.config.RecentActivityBoostDays:
		result.IsRecent = true
		result.Multiplier = f.config.RecentActivityBoost
		result.Reason = "recent_activity_boost"
	case daysSince > f.config.StaleThresholdDays:
		result.IsStale = true
		daysOverThreshold := float64(daysSince - f.config.StaleThresholdDays)
		result.Multiplier = math.Exp(-daysOverThreshold / f.config.DecayFactor)
		result.Reason = "stale_decay"
	default:
		result.Reason = "normal_window"
	}

	if result.Multiplier < f.config.MinMultiplier {
		result.Multiplier = f.config.MinMultiplier
	}
	if result.Multiplier > f.config.MaxMultiplier {
		result.Multiplier = f.config.MaxMultiplier
	}

	result.AdjustedScore = int(float64(score) * result.Multiplier)
	if result.AdjustedScore > 100 {
		result.AdjustedScore = 100
	}
	if result.AdjustedScore < 0 {
		result.AdjustedScore = 0
	}

	return result
}
