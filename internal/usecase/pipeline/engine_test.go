package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kr1s57/sshsentinel/internal/adapter/external/firewall"
	"github.com/kr1s57/sshsentinel/internal/adapter/external/notify"
	"github.com/kr1s57/sshsentinel/internal/adapter/external/threatintel"
	"github.com/kr1s57/sshsentinel/internal/adapter/repository/badgerdb"
	"github.com/kr1s57/sshsentinel/internal/entity"
	"github.com/kr1s57/sshsentinel/internal/usecase/alerts"
	"github.com/kr1s57/sshsentinel/internal/usecase/blocks"
	"github.com/kr1s57/sshsentinel/internal/usecase/classifier"
	"github.com/kr1s57/sshsentinel/internal/usecase/detection"
)

type recordingNotifier struct {
	mu      sync.Mutex
	alerts  []*entity.AlertRecord
	digests []string
}

func (r *recordingNotifier) SendAlert(_ context.Context, alert *entity.AlertRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, alert)
	return nil
}

func (r *recordingNotifier) SendDigest(_ context.Context, subject, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.digests = append(r.digests, subject)
	return nil
}

func (r *recordingNotifier) Name() string { return "recording" }

func (r *recordingNotifier) alertCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.alerts)
}

var _ notify.Notifier = (*recordingNotifier)(nil)

type pipelineFixture struct {
	engine   *Engine
	firewall *firewall.Noop
	notifier *recordingNotifier
	blocks   *blocks.Service
}

func newFixture(t *testing.T, cfg Config) *pipelineFixture {
	t.Helper()

	store, err := badgerdb.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	fw := firewall.NewNoop()
	blockSvc, err := blocks.NewService(store, fw, slog.Default())
	require.NoError(t, err)

	notifier := &recordingNotifier{}
	alertSvc := alerts.NewService(notifier, alerts.DefaultConfig(), slog.Default())

	detector := detection.NewEngine(detection.Config{Tuning: detection.DefaultTuning()})
	cls := classifier.NewService(blockSvc, classifier.DefaultConfig(), slog.Default())

	// No providers configured: reputation is queried but contributes nothing
	agg := threatintel.NewAggregator(nil, threatintel.NewCache(100, time.Hour), slog.Default())

	engine := New(cfg, detector, agg, cls, blockSvc, alertSvc, nil, nil, slog.Default())
	return &pipelineFixture{
		engine:   engine,
		firewall: fw,
		notifier: notifier,
		blocks:   blockSvc,
	}
}

func failedAttempt(ip, username string, at time.Time) *entity.Event {
	return &entity.Event{
		Timestamp:         at,
		SourceIP:          ip,
		Username:          username,
		DestinationServer: "web-01",
		Port:              22,
		Outcome:           entity.OutcomeFailed,
	}
}

func TestSubmitRejectsInvalidEvent(t *testing.T) {
	f := newFixture(t, DefaultConfig())

	result := f.engine.Submit(&entity.Event{SourceIP: "not-an-ip"})
	assert.False(t, result.Accepted)
	assert.Equal(t, RejectInvalidEvent, result.Reason)
}

func TestSubmitRejectsWhenQueueFull(t *testing.T) {
	cfg := DefaultConfig()
	cfg.QueueSize = 2
	f := newFixture(t, cfg)
	// Engine not started: nothing consumes the queue

	now := time.Now()
	first := f.engine.Submit(failedAttempt("203.0.113.1", "root", now))
	second := f.engine.Submit(failedAttempt("203.0.113.1", "root", now))
	third := f.engine.Submit(failedAttempt("203.0.113.1", "root", now))

	assert.True(t, first.Accepted)
	assert.True(t, second.Accepted)
	assert.False(t, third.Accepted)
	assert.Equal(t, RejectQueueFull, third.Reason)
	assert.Equal(t, 2, third.QueueDepth)
}

func TestSubmitRejectsWhileDraining(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.engine.Start(context.Background())
	require.NoError(t, f.engine.Shutdown(context.Background()))

	result := f.engine.Submit(failedAttempt("203.0.113.1", "root", time.Now()))
	assert.False(t, result.Accepted)
	assert.Equal(t, RejectDraining, result.Reason)
}

func TestPipelineBlocksBruteForceAttack(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()
	f.engine.Start(ctx)

	// One attacker spraying many usernames within a minute
	attacker := "203.0.113.7"
	now := time.Now()
	usernames := []string{"root", "admin", "test"}
	for i := 0; i < 17; i++ {
		usernames = append(usernames, fmt.Sprintf("user%d", i+1))
	}
	for i, username := range usernames {
		result := f.engine.Submit(failedAttempt(attacker, username, now.Add(time.Duration(i)*time.Second)))
		require.True(t, result.Accepted)
	}

	require.NoError(t, f.engine.Shutdown(ctx))

	// The attack crosses the pattern and rate thresholds, so the
	// attacker ends up blocked and an immediate alert is dispatched.
	// The block keeps the severity of the first classification that
	// triggered it.
	assert.True(t, f.firewall.IsDropped(attacker))
	block, err := f.blocks.GetBlock(attacker)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, block.ThreatLevel.Rank(), entity.LevelHigh.Rank())
	assert.GreaterOrEqual(t, f.notifier.alertCount(), 1)

	stats := f.engine.GetStatistics()
	assert.Equal(t, uint64(20), stats.EventsSubmitted)
	assert.Equal(t, uint64(20), stats.EventsProcessed)
	assert.GreaterOrEqual(t, stats.ThreatsDetected, uint64(1))
	assert.Equal(t, uint64(1), stats.IPsBlocked)
	assert.Equal(t, 1, stats.ActiveBlocks)
}

func TestPipelineIgnoresBenignTraffic(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()
	f.engine.Start(ctx)

	now := time.Now()
	for i := 0; i < 5; i++ {
		event := &entity.Event{
			Timestamp:         now.Add(time.Duration(i) * time.Minute),
			SourceIP:          "198.51.100.30",
			Username:          "deploy",
			DestinationServer: "web-01",
			Port:              22,
			Outcome:           entity.OutcomeAccepted,
		}
		require.True(t, f.engine.Submit(event).Accepted)
	}

	require.NoError(t, f.engine.Shutdown(ctx))

	assert.False(t, f.firewall.IsDropped("198.51.100.30"))
	assert.Equal(t, 0, f.notifier.alertCount())
	assert.Equal(t, uint64(0), f.engine.GetStatistics().IPsBlocked)
}

func TestPipelineWhitelistedAttackerNeverBlocked(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	ctx := context.Background()
	require.NoError(t, f.blocks.AddWhitelist(ctx, "203.0.113.0/24", "lab range", "admin"))
	f.engine.Start(ctx)

	now := time.Now()
	for i := 0; i < 15; i++ {
		require.True(t, f.engine.Submit(failedAttempt("203.0.113.9", "root", now.Add(time.Duration(i)*time.Second))).Accepted)
	}

	require.NoError(t, f.engine.Shutdown(ctx))
	assert.False(t, f.firewall.IsDropped("203.0.113.9"))
}

func TestShutdownDrainsQueuedEvents(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Workers = 1
	f := newFixture(t, cfg)
	ctx := context.Background()
	f.engine.Start(ctx)

	now := time.Now()
	for i := 0; i < 50; i++ {
		f.engine.Submit(failedAttempt("203.0.113.40", "root", now.Add(time.Duration(i)*time.Second)))
	}

	require.NoError(t, f.engine.Shutdown(ctx))
	stats := f.engine.GetStatistics()
	assert.Equal(t, stats.EventsSubmitted, stats.EventsProcessed)
}
