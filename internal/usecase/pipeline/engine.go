package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/kr1s57/sshsentinel/internal/adapter/external/geoip"
	"github.com/kr1s57/sshsentinel/internal/adapter/external/mlscorer"
	"github.com/kr1s57/sshsentinel/internal/adapter/external/threatintel"
	"github.com/kr1s57/sshsentinel/internal/entity"
	"github.com/kr1s57/sshsentinel/internal/metrics"
	"github.com/kr1s57/sshsentinel/internal/usecase/alerts"
	"github.com/kr1s57/sshsentinel/internal/usecase/blocks"
	"github.com/kr1s57/sshsentinel/internal/usecase/classifier"
	"github.com/kr1s57/sshsentinel/internal/usecase/detection"
)

// Submit rejection reasons
const (
	RejectQueueFull    = "queue_full"
	RejectInvalidEvent = "invalid_event"
	RejectDraining     = "draining"
)

// SubmitResult reports the outcome of offering one event to the queue
type SubmitResult struct {
	Accepted   bool   `json:"accepted"`
	QueueDepth int    `json:"queue_depth"`
	Reason     string `json:"reason,omitempty"`
}

// Config holds pipeline sizing and timer intervals
type Config struct {
	Workers      int
	QueueSize    int
	DrainTimeout time.Duration

	SweepInterval   time.Duration
	BatchInterval   time.Duration
	DigestInterval  time.Duration
	SummaryInterval time.Duration
}

// DefaultConfig returns the pipeline defaults
func DefaultConfig() Config {
	return Config{
		Workers:         4,
		QueueSize:       1024,
		DrainTimeout:    30 * time.Second,
		SweepInterval:   time.Minute,
		BatchInterval:   15 * time.Minute,
		DigestInterval:  time.Hour,
		SummaryInterval: 24 * time.Hour,
	}
}

// sighting remembers where an IP was last seen, for impossible-travel
// detection
type sighting struct {
	geo *entity.GeoInfo
	at  time.Time
}

// Engine is the concurrent event pipeline: a bounded queue feeding a
// worker pool, where each worker runs one event through detection,
// reputation, classification, blocking, and alerting to completion.
type Engine struct {
	cfg        Config
	queue      chan *entity.Event
	detector   *detection.Engine
	reputation *threatintel.Aggregator
	classifier *classifier.Service
	blocks     *blocks.Service
	alerts     *alerts.Service
	geo        *geoip.Client // nil when geo enrichment is disabled
	scorer     mlscorer.Scorer
	logger     *slog.Logger

	lastSeen *expirable.LRU[string, sighting]

	startedAt time.Time
	submitted atomic.Uint64
	processed atomic.Uint64
	rejected  atomic.Uint64
	threats   atomic.Uint64
	blocked   atomic.Uint64

	draining atomic.Bool
	quit     chan struct{}
	wg       sync.WaitGroup
}

// New creates the pipeline. The geo client may be nil.
func New(
	cfg Config,
	detector *detection.Engine,
	reputation *threatintel.Aggregator,
	cls *classifier.Service,
	blockSvc *blocks.Service,
	alertSvc *alerts.Service,
	geo *geoip.Client,
	scorer mlscorer.Scorer,
	logger *slog.Logger,
) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if scorer == nil {
		scorer = mlscorer.Disabled{}
	}
	return &Engine{
		cfg:        cfg,
		queue:      make(chan *entity.Event, cfg.QueueSize),
		detector:   detector,
		reputation: reputation,
		classifier: cls,
		blocks:     blockSvc,
		alerts:     alertSvc,
		geo:        geo,
		scorer:     scorer,
		logger:     logger,
		lastSeen:   expirable.NewLRU[string, sighting](10000, nil, 24*time.Hour),
		quit:       make(chan struct{}),
	}
}

// Start launches the worker pool and the periodic maintenance tasks
func (e *Engine) Start(ctx context.Context) {
	e.startedAt = time.Now()

	for i := 0; i < e.cfg.Workers; i++ {
		e.wg.Add(1)
		go e.worker(ctx)
	}
	go e.maintenance(ctx)

	e.logger.Info("pipeline started",
		"workers", e.cfg.Workers,
		"queue_size", e.cfg.QueueSize)
}

// Submit offers an event to the queue. It never blocks: a full queue
// rejects with a distinct status instead of growing unboundedly.
func (e *Engine) Submit(event *entity.Event) SubmitResult {
	if e.draining.Load() {
		e.rejected.Add(1)
		metrics.EventsSubmittedTotal.WithLabelValues(RejectDraining).Inc()
		return SubmitResult{QueueDepth: len(e.queue), Reason: RejectDraining}
	}

	if err := event.Validate(); err != nil {
		e.rejected.Add(1)
		metrics.EventsSubmittedTotal.WithLabelValues(RejectInvalidEvent).Inc()
		e.logger.Debug("rejected invalid event", "error", err)
		return SubmitResult{QueueDepth: len(e.queue), Reason: RejectInvalidEvent}
	}

	e.submitted.Add(1)
	select {
	case e.queue <- event:
		depth := len(e.queue)
		metrics.EventsSubmittedTotal.WithLabelValues("accepted").Inc()
		metrics.QueueDepth.Set(float64(depth))
		return SubmitResult{Accepted: true, QueueDepth: depth}
	default:
		e.rejected.Add(1)
		metrics.EventsSubmittedTotal.WithLabelValues(RejectQueueFull).Inc()
		return SubmitResult{QueueDepth: len(e.queue), Reason: RejectQueueFull}
	}
}

func (e *Engine) worker(ctx context.Context) {
	defer e.wg.Done()
	for {
		select {
		case event := <-e.queue:
			e.process(ctx, event)
		case <-e.quit:
			// Drain what is already queued, then stop
			for {
				select {
				case event := <-e.queue:
					e.process(ctx, event)
				default:
					return
				}
			}
		}
	}
}

// process runs the full pipeline for one event
func (e *Engine) process(ctx context.Context, event *entity.Event) {
	defer func() {
		e.processed.Add(1)
		metrics.EventsProcessedTotal.Inc()
		metrics.QueueDepth.Set(float64(len(e.queue)))
	}()

	// Geo enrichment is appended, never overwrites parser-provided data
	if e.geo != nil && event.Geo == nil {
		if geo, err := e.geo.Lookup(ctx, event.SourceIP); err == nil {
			event.Geo = geo
		} else {
			e.logger.Debug("geo lookup failed", "ip", event.SourceIP, "error", err)
		}
	}

	behavioral := e.detector.Analyze(event)

	var reputation *entity.AggregatedReputation
	if e.reputation != nil {
		reputation = e.reputation.CheckIP(ctx, event.SourceIP)
	}

	prior, priorOK := e.lastSeen.Get(event.SourceIP)

	in := classifier.Inputs{
		Event:      event,
		Behavioral: behavioral,
		Reputation: reputation,
		ML:         e.scorer.Score(ctx, event),
	}
	if priorOK {
		in.PriorGeo = prior.geo
		in.PriorGeoAt = prior.at
	}
	tc := e.classifier.Classify(in)

	if event.Geo != nil {
		e.lastSeen.Add(event.SourceIP, sighting{geo: event.Geo, at: event.Timestamp})
	}

	if tc.ThreatLevel != entity.LevelClean {
		e.threats.Add(1)
		metrics.ThreatsDetectedTotal.WithLabelValues(string(tc.ThreatLevel), tc.ThreatType).Inc()
	}

	if tc.Action.RequiresBlock() {
		req := &entity.BlockRequest{
			IP:          event.SourceIP,
			Reason:      fmt.Sprintf("%s (score %d)", tc.ThreatType, tc.RiskScore),
			ThreatLevel: tc.ThreatLevel,
			PerformedBy: "pipeline",
		}
		if tc.BlockDurationHours > 0 {
			hours := tc.BlockDurationHours
			req.DurationHours = &hours
		}
		_, created, err := e.blocks.Block(ctx, req)
		if err != nil {
			e.logger.Error("pipeline block failed", "ip", event.SourceIP, "error", err)
		} else if created {
			e.blocked.Add(1)
			metrics.BlocksAppliedTotal.WithLabelValues(string(tc.ThreatLevel)).Inc()
			metrics.BlocksActive.Set(float64(e.blocks.ActiveCount()))
		}
	}

	e.alerts.ProcessClassification(ctx, tc)
}

// maintenance runs the periodic tasks on independent tickers. None of
// them block the workers; a slow run just delays the next.
func (e *Engine) maintenance(ctx context.Context) {
	sweep := time.NewTicker(orDefault(e.cfg.SweepInterval, time.Minute))
	batch := time.NewTicker(orDefault(e.cfg.BatchInterval, 15*time.Minute))
	digest := time.NewTicker(orDefault(e.cfg.DigestInterval, time.Hour))
	summary := time.NewTicker(orDefault(e.cfg.SummaryInterval, 24*time.Hour))
	prune := time.NewTicker(time.Hour)
	defer sweep.Stop()
	defer batch.Stop()
	defer digest.Stop()
	defer summary.Stop()
	defer prune.Stop()

	for {
		select {
		case now := <-sweep.C:
			if n, err := e.blocks.SweepExpired(ctx, now); err != nil {
				e.logger.Error("block sweep failed", "error", err)
			} else if n > 0 {
				e.logger.Info("expired blocks removed", "count", n)
				metrics.BlocksActive.Set(float64(e.blocks.ActiveCount()))
			}
			e.alerts.ExpireDedupKeys(now)
		case <-batch.C:
			if n := e.alerts.FlushBatch(ctx); n > 0 {
				e.logger.Info("alert batch flushed", "alerts", n)
			}
		case <-digest.C:
			if n := e.alerts.FlushDigest(ctx); n > 0 {
				e.logger.Info("alert digest flushed", "alerts", n)
			}
		case <-summary.C:
			stats := e.GetStatistics()
			if err := e.alerts.SendDailySummary(ctx, stats); err != nil {
				e.logger.Warn("daily summary failed", "error", err)
			}
		case now := <-prune.C:
			if n := e.detector.PruneIdle(now); n > 0 {
				e.logger.Debug("idle detection state pruned", "count", n)
			}
		case <-e.quit:
			return
		}
	}
}

// Shutdown stops intake, drains queued events, and flushes pending
// alerts. Waits at most DrainTimeout for workers to finish.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.draining.Store(true)
	close(e.quit)

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	timeout := e.cfg.DrainTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	select {
	case <-done:
	case <-time.After(timeout):
		e.logger.Warn("drain timeout exceeded, abandoning queued events", "remaining", len(e.queue))
	case <-ctx.Done():
		return ctx.Err()
	}

	// Flush whatever alerting still holds
	flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	e.alerts.FlushBatch(flushCtx)
	e.alerts.FlushDigest(flushCtx)

	e.logger.Info("pipeline stopped",
		"processed", e.processed.Load(),
		"rejected", e.rejected.Load())
	return nil
}

// GetStatistics returns a best-effort snapshot of engine counters
func (e *Engine) GetStatistics() *entity.EngineStatistics {
	stats := &entity.EngineStatistics{
		StartedAt:       e.startedAt,
		EventsSubmitted: e.submitted.Load(),
		EventsProcessed: e.processed.Load(),
		EventsRejected:  e.rejected.Load(),
		ThreatsDetected: e.threats.Load(),
		IPsBlocked:      e.blocked.Load(),
		AlertsSent:      e.alerts.Counters().Sent,
		QueueDepth:      len(e.queue),
		QueueCapacity:   cap(e.queue),
		Detection:       e.detector.Stats(),
		Alerts:          e.alerts.Counters(),
		ActiveBlocks:    e.blocks.ActiveCount(),
	}
	if e.reputation != nil {
		stats.Reputation = e.reputation.Stats()
	}
	return stats
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
