package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kr1s57/sshsentinel/internal/adapter/external/notify"
	"github.com/kr1s57/sshsentinel/internal/entity"
	"github.com/kr1s57/sshsentinel/internal/metrics"
)

// Config holds alert aggregation tunables
type Config struct {
	// DedupWindow is how long repeats of one (ip, server, threatType)
	// increment a counter instead of re-dispatching
	DedupWindow time.Duration
	// TopAttackers caps how many source IPs a batch summarizes
	TopAttackers int
}

// DefaultConfig returns the aggregation defaults
func DefaultConfig() Config {
	return Config{
		DedupWindow:  10 * time.Minute,
		TopAttackers: 10,
	}
}

// Service converts classifications into notifications without spamming:
// critical findings dispatch immediately, the rest deduplicate, batch,
// and digest.
type Service struct {
	notifier notify.Notifier
	config   Config
	logger   *slog.Logger

	mu      sync.Mutex
	dedup   map[string]*entity.AlertRecord
	pending []*entity.AlertRecord

	generated    atomic.Uint64
	sent         atomic.Uint64
	deduplicated atomic.Uint64
	batched      atomic.Uint64
}

// NewService creates the alert aggregator
func NewService(notifier notify.Notifier, cfg Config, logger *slog.Logger) *Service {
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = 10 * time.Minute
	}
	if cfg.TopAttackers <= 0 {
		cfg.TopAttackers = 10
	}
	return &Service{
		notifier: notifier,
		config:   cfg,
		logger:   logger,
		dedup:    make(map[string]*entity.AlertRecord),
	}
}

// ProcessClassification turns one classification into an alert. Clean
// and Low results produce nothing.
func (s *Service) ProcessClassification(ctx context.Context, tc *entity.ThreatClassification) {
	if tc.ThreatLevel == entity.LevelClean || tc.ThreatLevel == entity.LevelLow {
		return
	}

	s.generated.Add(1)
	now := time.Now()

	s.mu.Lock()

	key := entity.AlertDedupKey(tc.SourceIP, tc.DestinationServer, tc.ThreatType)
	if existing, ok := s.dedup[key]; ok && now.Sub(existing.LastSeenAt) < s.config.DedupWindow {
		existing.Count++
		existing.LastSeenAt = now
		if tc.RiskScore > existing.RiskScore {
			existing.RiskScore = tc.RiskScore
		}
		s.mu.Unlock()
		s.deduplicated.Add(1)
		metrics.AlertsTotal.WithLabelValues("deduplicated").Inc()
		return
	}

	alert := &entity.AlertRecord{
		ID:         uuid.New(),
		SourceIP:   tc.SourceIP,
		Server:     tc.DestinationServer,
		ThreatType: tc.ThreatType,
		RiskScore:  tc.RiskScore,
		Severity:   string(tc.ThreatLevel),
		Message:    renderAlertMessage(tc),
		Count:      1,
		CreatedAt:  now,
		LastSeenAt: now,
	}
	s.dedup[key] = alert

	if s.isImmediate(tc) {
		s.mu.Unlock()
		s.dispatch(ctx, alert)
		return
	}

	s.pending = append(s.pending, alert)
	s.mu.Unlock()
}

// isImmediate decides whether an alert bypasses batching
func (s *Service) isImmediate(tc *entity.ThreatClassification) bool {
	switch {
	case tc.ThreatLevel == entity.LevelCritical:
		return true
	case tc.ThreatLevel == entity.LevelHigh && tc.RiskScore >= 85:
		return true
	case tc.ThreatType == entity.ThreatTypeIntrusion && tc.RiskScore >= 80:
		return true
	}
	return false
}

func (s *Service) dispatch(ctx context.Context, alert *entity.AlertRecord) {
	if err := s.notifier.SendAlert(ctx, alert); err != nil {
		s.logger.Warn("alert delivery failed", "ip", alert.SourceIP, "channel", s.notifier.Name(), "error", err)
		return
	}
	now := time.Now()
	s.mu.Lock()
	alert.Dispatched = true
	alert.DispatchedAt = &now
	s.mu.Unlock()
	s.sent.Add(1)
	metrics.AlertsTotal.WithLabelValues("sent").Inc()
}

// FlushBatch sends the pending High and Medium alerts grouped by source
// IP, summarizing the top attackers. Runs on the 15 minute ticker.
func (s *Service) FlushBatch(ctx context.Context) int {
	s.mu.Lock()
	var batch, rest []*entity.AlertRecord
	for _, a := range s.pending {
		if a.Severity == string(entity.LevelHigh) || a.Severity == string(entity.LevelMedium) {
			batch = append(batch, a)
		} else {
			rest = append(rest, a)
		}
	}
	s.pending = rest
	s.mu.Unlock()

	if len(batch) == 0 {
		return 0
	}

	subject := fmt.Sprintf("SSH threat batch: %d alert(s)", len(batch))
	body := renderBatch(batch, s.config.TopAttackers)
	if err := s.notifier.SendDigest(ctx, subject, body); err != nil {
		s.logger.Warn("batch delivery failed", "alerts", len(batch), "error", err)
		// Requeue so the hourly digest picks them up
		s.mu.Lock()
		s.pending = append(s.pending, batch...)
		s.mu.Unlock()
		return 0
	}

	s.sent.Add(1)
	s.batched.Add(uint64(len(batch)))
	metrics.AlertsTotal.WithLabelValues("batched").Add(float64(len(batch)))
	return len(batch)
}

// FlushDigest sends everything still pending and clears the queue.
// Runs on the hourly ticker.
func (s *Service) FlushDigest(ctx context.Context) int {
	s.mu.Lock()
	remaining := s.pending
	s.pending = nil
	s.mu.Unlock()

	if len(remaining) == 0 {
		return 0
	}

	subject := fmt.Sprintf("SSH threat digest: %d alert(s)", len(remaining))
	body := renderBatch(remaining, s.config.TopAttackers)
	if err := s.notifier.SendDigest(ctx, subject, body); err != nil {
		s.logger.Warn("digest delivery failed", "alerts", len(remaining), "error", err)
		s.mu.Lock()
		s.pending = append(s.pending, remaining...)
		s.mu.Unlock()
		return 0
	}

	s.sent.Add(1)
	s.batched.Add(uint64(len(remaining)))
	metrics.AlertsTotal.WithLabelValues("batched").Add(float64(len(remaining)))
	return len(remaining)
}

// SendDailySummary reports engine-wide statistics, independent of the
// per-event queue
func (s *Service) SendDailySummary(ctx context.Context, stats *entity.EngineStatistics) error {
	counters := s.Counters()
	var b strings.Builder
	fmt.Fprintf(&b, "Events processed: %d (submitted %d, rejected %d)\n",
		stats.EventsProcessed, stats.EventsSubmitted, stats.EventsRejected)
	fmt.Fprintf(&b, "Threats detected: %d\n", stats.ThreatsDetected)
	fmt.Fprintf(&b, "IPs blocked: %d (active %d)\n", stats.IPsBlocked, stats.ActiveBlocks)
	fmt.Fprintf(&b, "Alerts: %d generated, %d sent, %d deduplicated, %d batched (compression %.1fx)\n",
		counters.Generated, counters.Sent, counters.Deduplicated, counters.Batched,
		counters.CompressionRatio())
	fmt.Fprintf(&b, "Reputation lookups: %d (cache hit rate %.0f%%)\n",
		stats.Reputation.Lookups, stats.Reputation.HitRate*100)

	if err := s.notifier.SendDigest(ctx, "SSH sentinel daily summary", b.String()); err != nil {
		return fmt.Errorf("send daily summary: %w", err)
	}
	s.sent.Add(1)
	return nil
}

// ExpireDedupKeys drops dedup entries whose window has closed, so the
// map does not grow with the attacker population
func (s *Service) ExpireDedupKeys(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, alert := range s.dedup {
		if now.Sub(alert.LastSeenAt) >= s.config.DedupWindow {
			delete(s.dedup, key)
			removed++
		}
	}
	return removed
}

// PendingCount returns the current queue length
func (s *Service) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Counters returns the alert volume counters
func (s *Service) Counters() entity.AlertCounters {
	return entity.AlertCounters{
		Generated:    s.generated.Load(),
		Sent:         s.sent.Load(),
		Deduplicated: s.deduplicated.Load(),
		Batched:      s.batched.Load(),
	}
}

func renderAlertMessage(tc *entity.ThreatClassification) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s from %s against %s (score %d)",
		strings.ToUpper(string(tc.ThreatLevel)), tc.ThreatType, tc.SourceIP,
		tc.DestinationServer, tc.RiskScore)
	if len(tc.Reasons) > 0 {
		fmt.Fprintf(&b, ": %s", strings.Join(tc.Reasons, "; "))
	}
	return b.String()
}

// renderBatch summarizes alerts grouped by source IP, worst first
func renderBatch(alerts []*entity.AlertRecord, topN int) string {
	type attacker struct {
		ip       string
		maxScore int
		count    int
		types    map[string]bool
	}

	byIP := make(map[string]*attacker)
	for _, a := range alerts {
		att, ok := byIP[a.SourceIP]
		if !ok {
			att = &attacker{ip: a.SourceIP, types: make(map[string]bool)}
			byIP[a.SourceIP] = att
		}
		att.count += a.Count
		att.types[a.ThreatType] = true
		if a.RiskScore > att.maxScore {
			att.maxScore = a.RiskScore
		}
	}

	attackers := make([]*attacker, 0, len(byIP))
	for _, att := range byIP {
		attackers = append(attackers, att)
	}
	sort.Slice(attackers, func(i, j int) bool {
		if attackers[i].maxScore != attackers[j].maxScore {
			return attackers[i].maxScore > attackers[j].maxScore
		}
		return attackers[i].ip < attackers[j].ip
	})
	if len(attackers) > topN {
		attackers = attackers[:topN]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Top attackers (%d of %d source IPs):\n", len(attackers), len(byIP))
	for _, att := range attackers {
		types := make([]string, 0, len(att.types))
		for t := range att.types {
			types = append(types, t)
		}
		sort.Strings(types)
		fmt.Fprintf(&b, "- %s: %d occurrence(s), max score %d, %s\n",
			att.ip, att.count, att.maxScore, strings.Join(types, ", "))
	}
	return b.String()
}
