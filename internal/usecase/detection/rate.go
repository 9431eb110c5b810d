package detection

import (
	"time"

	"github.com/kr1s57/sshsentinel/internal/entity"
)

// RateResult is the output of the rate-based brute-force detector
type RateResult struct {
	IsBruteForce    bool               `json:"is_brute_force"`
	Severity        entity.ThreatLevel `json:"severity"`
	CountsPerWindow map[string]int     `json:"counts_per_window"` // "1m", "10m", "60m"
	FailureRate     float64            `json:"failure_rate"`
	RiskScore       int                `json:"risk_score"`
}

// rateDetector flags brute-force attempts from failure counts over fixed
// sub-windows of a source IP's rolling window
type rateDetector struct {
	tuning Tuning
}

func (d *rateDetector) evaluate(win *RollingWindow, now time.Time) RateResult {
	counts := map[string]int{
		"1m":  win.CountSince(now, time.Minute, true),
		"10m": win.CountSince(now, 10*time.Minute, true),
		"60m": win.CountSince(now, time.Hour, true),
	}

	result := RateResult{
		CountsPerWindow: counts,
		FailureRate:     win.FailureRate(now),
	}

	switch {
	case counts["1m"] >= d.tuning.Rate.PerMinute:
		result.IsBruteForce = true
		result.Severity = entity.LevelCritical
		result.RiskScore = d.tuning.Rate.CriticalScore
	case counts["10m"] >= d.tuning.Rate.PerTenMinutes:
		result.IsBruteForce = true
		result.Severity = entity.LevelHigh
		result.RiskScore = d.tuning.Rate.HighScore
	case counts["60m"] >= d.tuning.Rate.PerHour:
		result.IsBruteForce = true
		result.Severity = entity.LevelMedium
		result.RiskScore = d.tuning.Rate.MediumScore
	default:
		// Below every threshold the score scales with recent failures so
		// slow-and-low attempts still contribute signal
		score := counts["10m"] * 4
		if score > 50 {
			score = 50
		}
		result.RiskScore = score
		if score >= 30 {
			result.Severity = entity.LevelLow
		} else {
			result.Severity = entity.LevelClean
		}
	}

	return result
}
