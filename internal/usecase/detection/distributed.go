package detection

import (
	"time"
)

// DistributedResult is the output of the per-server distributed-attack
// detector
type DistributedResult struct {
	IsDistributedAttack bool    `json:"is_distributed_attack"`
	UniqueIPs           int     `json:"unique_ips"`
	UniqueUsernames     int     `json:"unique_usernames"`
	Attempts            int     `json:"attempts"`
	AttemptsPerMinute   float64 `json:"attempts_per_minute"`
	RiskScore           int     `json:"risk_score"`
}

// distributedDetector looks for coordinated attacks against one
// destination server: many source IPs spraying many usernames
type distributedDetector struct {
	tuning Tuning
}

func (d *distributedDetector) evaluate(win *RollingWindow, now time.Time) DistributedResult {
	entries := win.EntriesSince(now, d.tuning.Distributed.Window, true)

	ips := make(map[string]bool)
	users := make(map[string]bool)
	for _, e := range entries {
		ips[e.SourceIP] = true
		users[e.Username] = true
	}

	result := DistributedResult{
		UniqueIPs:       len(ips),
		UniqueUsernames: len(users),
		Attempts:        len(entries),
	}

	minutes := d.tuning.Distributed.Window.Minutes()
	if len(entries) > 0 {
		// Rate over the actual spread of attempts, not the full window,
		// so a short burst is not diluted
		spread := now.Sub(entries[0].Timestamp).Minutes()
		if spread < 1 {
			spread = 1
		}
		if spread < minutes {
			minutes = spread
		}
		result.AttemptsPerMinute = float64(len(entries)) / minutes
	}

	t := d.tuning.Distributed
	if result.UniqueIPs >= t.MinUniqueIPs &&
		(result.UniqueUsernames > result.UniqueIPs || result.UniqueUsernames > t.ManyUsernames) &&
		result.AttemptsPerMinute > t.AttemptsPerMinute {
		result.IsDistributedAttack = true
		score := 50 + 3*result.UniqueIPs + 2*result.UniqueUsernames
		if score > 100 {
			score = 100
		}
		result.RiskScore = score
	}

	return result
}
