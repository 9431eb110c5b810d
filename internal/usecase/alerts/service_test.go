package alerts

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kr1s57/sshsentinel/internal/entity"
)

type fakeNotifier struct {
	mu      sync.Mutex
	alerts  []*entity.AlertRecord
	digests []string
	fail    bool
}

func (f *fakeNotifier) SendAlert(_ context.Context, alert *entity.AlertRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("delivery failed")
	}
	f.alerts = append(f.alerts, alert)
	return nil
}

func (f *fakeNotifier) SendDigest(_ context.Context, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("delivery failed")
	}
	f.digests = append(f.digests, subject+"\n"+body)
	return nil
}

func (f *fakeNotifier) Name() string { return "fake" }

func (f *fakeNotifier) alertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.alerts)
}

func classification(level entity.ThreatLevel, score int, threatType string) *entity.ThreatClassification {
	return &entity.ThreatClassification{
		SourceIP:          "203.0.113.10",
		DestinationServer: "web-01",
		RiskScore:         score,
		ThreatLevel:       level,
		ThreatType:        threatType,
	}
}

func TestCriticalDispatchesImmediately(t *testing.T) {
	notifier := &fakeNotifier{}
	svc := NewService(notifier, DefaultConfig(), slog.Default())

	svc.ProcessClassification(context.Background(), classification(entity.LevelCritical, 95, entity.ThreatTypeBruteForce))

	require.Equal(t, 1, notifier.alertCount())
	assert.True(t, notifier.alerts[0].Dispatched)
	assert.Equal(t, 0, svc.PendingCount())
	assert.Equal(t, uint64(1), svc.Counters().Sent)
}

func TestHighScoreDispatchesImmediately(t *testing.T) {
	notifier := &fakeNotifier{}
	svc := NewService(notifier, DefaultConfig(), slog.Default())

	svc.ProcessClassification(context.Background(), classification(entity.LevelHigh, 87, entity.ThreatTypeBruteForce))
	assert.Equal(t, 1, notifier.alertCount())
}

func TestIntrusionDispatchesImmediately(t *testing.T) {
	notifier := &fakeNotifier{}
	svc := NewService(notifier, DefaultConfig(), slog.Default())

	tc := classification(entity.LevelHigh, 82, entity.ThreatTypeIntrusion)
	svc.ProcessClassification(context.Background(), tc)
	assert.Equal(t, 1, notifier.alertCount())
}

func TestNonImmediateAlertsQueue(t *testing.T) {
	notifier := &fakeNotifier{}
	svc := NewService(notifier, DefaultConfig(), slog.Default())

	svc.ProcessClassification(context.Background(), classification(entity.LevelHigh, 78, entity.ThreatTypeBruteForce))
	svc.ProcessClassification(context.Background(), classification(entity.LevelMedium, 65, entity.ThreatTypeSuspicious))

	assert.Equal(t, 0, notifier.alertCount())
	assert.Equal(t, 2, svc.PendingCount())
}

func TestCleanAndLowProduceNothing(t *testing.T) {
	notifier := &fakeNotifier{}
	svc := NewService(notifier, DefaultConfig(), slog.Default())

	svc.ProcessClassification(context.Background(), classification(entity.LevelClean, 5, ""))
	svc.ProcessClassification(context.Background(), classification(entity.LevelLow, 45, entity.ThreatTypeSuspicious))

	assert.Equal(t, 0, notifier.alertCount())
	assert.Equal(t, 0, svc.PendingCount())
	assert.Equal(t, uint64(0), svc.Counters().Generated)
}

func TestDeduplicationWithinWindow(t *testing.T) {
	notifier := &fakeNotifier{}
	svc := NewService(notifier, DefaultConfig(), slog.Default())

	tc := classification(entity.LevelCritical, 92, entity.ThreatTypeBruteForce)
	svc.ProcessClassification(context.Background(), tc)
	svc.ProcessClassification(context.Background(), tc)
	svc.ProcessClassification(context.Background(), tc)

	assert.Equal(t, 1, notifier.alertCount())
	counters := svc.Counters()
	assert.Equal(t, uint64(3), counters.Generated)
	assert.Equal(t, uint64(2), counters.Deduplicated)
	assert.Equal(t, 3, notifier.alerts[0].Count)
	assert.InDelta(t, 3.0, counters.CompressionRatio(), 0.01)
}

func TestFlushBatchGroupsByIP(t *testing.T) {
	notifier := &fakeNotifier{}
	svc := NewService(notifier, DefaultConfig(), slog.Default())
	ctx := context.Background()

	for _, ip := range []string{"203.0.113.1", "203.0.113.2", "203.0.113.3"} {
		tc := classification(entity.LevelHigh, 78, entity.ThreatTypeBruteForce)
		tc.SourceIP = ip
		svc.ProcessClassification(ctx, tc)
	}

	flushed := svc.FlushBatch(ctx)
	assert.Equal(t, 3, flushed)
	assert.Equal(t, 0, svc.PendingCount())
	require.Len(t, notifier.digests, 1)
	assert.Contains(t, notifier.digests[0], "203.0.113.1")
	assert.Contains(t, notifier.digests[0], "3 of 3 source IPs")
	assert.Equal(t, uint64(3), svc.Counters().Batched)
}

func TestFlushBatchLeavesNonBatchableAlerts(t *testing.T) {
	notifier := &fakeNotifier{}
	svc := NewService(notifier, DefaultConfig(), slog.Default())
	ctx := context.Background()

	svc.ProcessClassification(ctx, classification(entity.LevelHigh, 78, entity.ThreatTypeBruteForce))

	flushed := svc.FlushBatch(ctx)
	assert.Equal(t, 1, flushed)
	assert.Equal(t, 0, svc.FlushBatch(ctx))
}

func TestFlushBatchRequeuesOnDeliveryFailure(t *testing.T) {
	notifier := &fakeNotifier{fail: true}
	svc := NewService(notifier, DefaultConfig(), slog.Default())
	ctx := context.Background()

	svc.ProcessClassification(ctx, classification(entity.LevelMedium, 65, entity.ThreatTypeSuspicious))

	assert.Equal(t, 0, svc.FlushBatch(ctx))
	assert.Equal(t, 1, svc.PendingCount())
}

func TestFlushDigestDrainsEverything(t *testing.T) {
	notifier := &fakeNotifier{}
	svc := NewService(notifier, DefaultConfig(), slog.Default())
	ctx := context.Background()

	svc.ProcessClassification(ctx, classification(entity.LevelMedium, 62, entity.ThreatTypeSuspicious))
	tc := classification(entity.LevelMedium, 68, entity.ThreatTypeDictionaryAttack)
	tc.SourceIP = "203.0.113.40"
	svc.ProcessClassification(ctx, tc)

	flushed := svc.FlushDigest(ctx)
	assert.Equal(t, 2, flushed)
	assert.Equal(t, 0, svc.PendingCount())
}

func TestExpireDedupKeys(t *testing.T) {
	notifier := &fakeNotifier{}
	svc := NewService(notifier, Config{DedupWindow: 10 * time.Minute}, slog.Default())

	svc.ProcessClassification(context.Background(), classification(entity.LevelCritical, 95, entity.ThreatTypeBruteForce))
	assert.Equal(t, 0, svc.ExpireDedupKeys(time.Now()))
	assert.Equal(t, 1, svc.ExpireDedupKeys(time.Now().Add(11*time.Minute)))

	// After expiry the same attack dispatches again
	svc.ProcessClassification(context.Background(), classification(entity.LevelCritical, 95, entity.ThreatTypeBruteForce))
	assert.Equal(t, 2, notifier.alertCount())
}

func TestDailySummary(t *testing.T) {
	notifier := &fakeNotifier{}
	svc := NewService(notifier, DefaultConfig(), slog.Default())

	stats := &entity.EngineStatistics{
		EventsProcessed: 1000,
		EventsSubmitted: 1010,
		ThreatsDetected: 42,
		IPsBlocked:      7,
		ActiveBlocks:    5,
	}
	require.NoError(t, svc.SendDailySummary(context.Background(), stats))
	require.Len(t, notifier.digests, 1)
	assert.Contains(t, notifier.digests[0], "Threats detected: 42")
}
