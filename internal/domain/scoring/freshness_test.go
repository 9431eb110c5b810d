package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAdjust_UnknownLastSeenPassesThrough(t *testing.T) {
	s := NewDefaultFreshnessScorer()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	res := s.Adjust(80, time.Time{}, now)

	assert.Equal(t, 80, res.AdjustedScore)
	assert.Equal(t, 1.0, res.Multiplier)
	assert.Equal(t, "unknown_last_seen", res.Reason)
}

func TestAdjust_RecentActivityBoost(t *testing.T) {
	s := NewDefaultFreshnessScorer()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	res := s.Adjust(60, now.Add(-24*time.Hour), now)

	assert.True(t, res.IsRecent)
	assert.Equal(t, 1.25, res.Multiplier)
	assert.Equal(t, 75, res.AdjustedScore)
}

func TestAdjust_BoostedScoreClampedTo100(t *testing.T) {
	s := NewDefaultFreshnessScorer()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	res := s.Adjust(95, now.Add(-2*time.Hour), now)

	assert.Equal(t, 100, res.AdjustedScore)
}

func TestAdjust_NormalWindowUnchanged(t *testing.T) {
	s := NewDefaultFreshnessScorer()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	res := s.Adjust(70, now.Add(-10*24*time.Hour), now)

	assert.False(t, res.IsRecent)
	assert.False(t, res.IsStale)
	assert.Equal(t, 70, res.AdjustedScore)
	assert.Equal(t, "normal_window", res.Reason)
}

func TestAdjust_StaleScoreDecays(t *testing.T) {
	s := NewDefaultFreshnessScorer()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	// 37 days ago: 7 days past the stale threshold, one full half-life
	res := s.Adjust(80, now.Add(-37*24*time.Hour), now)

	assert.True(t, res.IsStale)
	assert.Equal(t, "stale_decay", res.Reason)
	// e^-1 ~= 0.368
	assert.InDelta(t, 0.368, res.Multiplier, 0.001)
	assert.Equal(t, 29, res.AdjustedScore)
}

func TestAdjust_DecayFloorsAtMinMultiplier(t *testing.T) {
	s := NewDefaultFreshnessScorer()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	res := s.Adjust(100, now.Add(-365*24*time.Hour), now)

	assert.Equal(t, 0.1, res.Multiplier)
	assert.Equal(t, 10, res.AdjustedScore)
}
