package threatintel

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kr1s57/sshsentinel/internal/domain/scoring"
	"github.com/kr1s57/sshsentinel/internal/entity"
	"github.com/kr1s57/sshsentinel/internal/metrics"
)

// privateIPScore is the fixed score assigned to private/loopback IPs,
// which never leave the building and never hit the network
const privateIPScore = 5

// Aggregator combines reputation answers from every configured provider.
// A single failing source is absorbed here and never fails the overall
// check: the pipeline always proceeds with whatever data is available.
type Aggregator struct {
	providers []Provider
	cache     *Cache
	freshness *scoring.FreshnessScorer
	logger    *slog.Logger

	lookups     atomic.Uint64
	rateLimited atomic.Uint64
	errors      atomic.Uint64
}

// NewAggregator creates an aggregator over the given providers. Providers
// that are not configured are skipped at query time.
func NewAggregator(providers []Provider, cache *Cache, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		providers: providers,
		cache:     cache,
		freshness: scoring.NewDefaultFreshnessScorer(),
		logger:    logger,
	}
}

// CheckIP queries all configured providers for an IP and merges the
// results. Private and loopback IPs short-circuit to a fixed low score
// without any network call.
func (a *Aggregator) CheckIP(ctx context.Context, ip string) *entity.AggregatedReputation {
	a.lookups.Add(1)

	result := &entity.AggregatedReputation{
		IP:        ip,
		CheckedAt: time.Now(),
	}

	parsed := net.ParseIP(ip)
	if parsed != nil && (parsed.IsPrivate() || parsed.IsLoopback() || parsed.IsLinkLocalUnicast()) {
		result.AggregatedScore = privateIPScore
		result.ThreatLevel = entity.ReputationLevel(privateIPScore)
		return result
	}

	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, p := range a.providers {
		if !p.IsConfigured() {
			continue
		}
		result.SourcesQueried++

		wg.Add(1)
		go func(p Provider) {
			defer wg.Done()
			rec, err := p.Lookup(ctx, ip)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				result.SourcesFailed++
				switch {
				case errors.Is(err, ErrRateLimited):
					a.rateLimited.Add(1)
					metrics.ReputationLookupsTotal.WithLabelValues("rate_limited").Inc()
					a.logger.Debug("provider rate limited", "provider", p.Name(), "ip", ip)
				case errors.Is(err, ErrNotConfigured):
					// skipped silently
				default:
					a.errors.Add(1)
					metrics.ReputationLookupsTotal.WithLabelValues("error").Inc()
					a.logger.Warn("provider lookup failed", "provider", p.Name(), "ip", ip, "error", err)
				}
				return
			}

			result.Sources = append(result.Sources, *rec)
		}(p)
	}

	wg.Wait()

	a.aggregate(result)
	return result
}

// aggregate computes the merged score over successfully-returned sources:
// round(0.6 x max + 0.4 x mean). Each source score is first adjusted for
// freshness, so an IP last reported months ago weighs less than one seen
// yesterday. Maliciousness needs either a majority (two sources) or one
// source plus a high aggregate.
func (a *Aggregator) aggregate(result *entity.AggregatedReputation) {
	if len(result.Sources) == 0 {
		result.ThreatLevel = entity.ReputationLevel(0)
		return
	}

	maxScore := 0
	sum := 0
	maliciousVotes := 0
	for _, s := range result.Sources {
		score := a.freshness.Adjust(s.RiskScore, s.LastSeen, result.CheckedAt).AdjustedScore
		if score > maxScore {
			maxScore = score
		}
		sum += score
		if s.IsMalicious {
			maliciousVotes++
		}
	}
	mean := float64(sum) / float64(len(result.Sources))

	result.AggregatedScore = int(math.Round(0.6*float64(maxScore) + 0.4*mean))
	result.IsMalicious = maliciousVotes >= 2 ||
		(maliciousVotes >= 1 && result.AggregatedScore > 70)
	result.ThreatLevel = entity.ReputationLevel(result.AggregatedScore)
}

// ConfiguredProviders returns the names of providers that will be queried
func (a *Aggregator) ConfiguredProviders() []string {
	var names []string
	for _, p := range a.providers {
		if p.IsConfigured() {
			names = append(names, p.Name())
		}
	}
	return names
}

// Stats returns lookup and cache statistics
func (a *Aggregator) Stats() entity.ReputationStats {
	cs := a.cache.Stats()
	return entity.ReputationStats{
		Lookups:     a.lookups.Load(),
		CacheHits:   cs.Hits,
		CacheMisses: cs.Misses,
		RateLimited: a.rateLimited.Load(),
		Errors:      a.errors.Load(),
		HitRate:     cs.HitRate,
	}
}
