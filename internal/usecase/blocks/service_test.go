package blocks

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kr1s57/sshsentinel/internal/adapter/external/firewall"
	"github.com/kr1s57/sshsentinel/internal/adapter/repository/badgerdb"
	"github.com/kr1s57/sshsentinel/internal/entity"
)

func newTestService(t *testing.T) (*Service, *firewall.Noop) {
	t.Helper()
	store, err := badgerdb.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	fw := firewall.NewNoop()
	svc, err := NewService(store, fw, slog.Default())
	require.NoError(t, err)
	return svc, fw
}

func TestBlockAppliesFirewallAndPersists(t *testing.T) {
	svc, fw := newTestService(t)

	block, created, err := svc.Block(context.Background(), &entity.BlockRequest{
		IP:          "203.0.113.10",
		Reason:      "brute force",
		ThreatLevel: entity.LevelHigh,
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 168, block.DurationHours)
	assert.True(t, fw.IsDropped("203.0.113.10"))

	stored, err := svc.GetBlock("203.0.113.10")
	require.NoError(t, err)
	assert.Equal(t, entity.LevelHigh, stored.ThreatLevel)
}

func TestBlockSeverityDurations(t *testing.T) {
	tests := []struct {
		level entity.ThreatLevel
		hours int
	}{
		{entity.LevelLow, 1},
		{entity.LevelMedium, 24},
		{entity.LevelHigh, 168},
		{entity.LevelCritical, 720},
	}

	for _, tt := range tests {
		svc, _ := newTestService(t)
		block, _, err := svc.Block(context.Background(), &entity.BlockRequest{
			IP:          "203.0.113.10",
			ThreatLevel: tt.level,
		})
		require.NoError(t, err)
		assert.Equal(t, tt.hours, block.DurationHours, "level %s", tt.level)
	}
}

func TestBlockDurationOverride(t *testing.T) {
	svc, _ := newTestService(t)

	override := 48
	block, _, err := svc.Block(context.Background(), &entity.BlockRequest{
		IP:            "203.0.113.10",
		ThreatLevel:   entity.LevelLow,
		DurationHours: &override,
	})
	require.NoError(t, err)
	assert.Equal(t, 48, block.DurationHours)
}

func TestBlockIdempotentOnActiveBlock(t *testing.T) {
	svc, _ := newTestService(t)

	first, created, err := svc.Block(context.Background(), &entity.BlockRequest{
		IP:          "203.0.113.10",
		ThreatLevel: entity.LevelMedium,
	})
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := svc.Block(context.Background(), &entity.BlockRequest{
		IP:          "203.0.113.10",
		ThreatLevel: entity.LevelCritical,
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.UnblockAt.Unix(), second.UnblockAt.Unix())
}

func TestBlockWhitelistedRejected(t *testing.T) {
	svc, fw := newTestService(t)

	require.NoError(t, svc.AddWhitelist(context.Background(), "203.0.113.0/24", "partner range", "admin"))

	_, _, err := svc.Block(context.Background(), &entity.BlockRequest{
		IP:          "203.0.113.77",
		ThreatLevel: entity.LevelCritical,
	})
	assert.ErrorIs(t, err, ErrWhitelisted)
	assert.False(t, fw.IsDropped("203.0.113.77"))
}

func TestBlockPrivateNetworksAlwaysProtected(t *testing.T) {
	svc, _ := newTestService(t)

	for _, ip := range []string{"10.1.2.3", "192.168.0.44", "127.0.0.1", "172.16.9.1"} {
		_, _, err := svc.Block(context.Background(), &entity.BlockRequest{
			IP:          ip,
			ThreatLevel: entity.LevelCritical,
		})
		assert.ErrorIs(t, err, ErrWhitelisted, "ip %s", ip)
	}
}

func TestUnblockRemovesRecordAndRule(t *testing.T) {
	svc, fw := newTestService(t)

	_, _, err := svc.Block(context.Background(), &entity.BlockRequest{
		IP:          "203.0.113.10",
		ThreatLevel: entity.LevelMedium,
	})
	require.NoError(t, err)

	require.NoError(t, svc.Unblock(context.Background(), "203.0.113.10", "false positive", "admin"))
	assert.False(t, fw.IsDropped("203.0.113.10"))

	_, err = svc.GetBlock("203.0.113.10")
	assert.ErrorIs(t, err, ErrNotBlocked)
}

func TestUnblockMissingBlockFails(t *testing.T) {
	svc, _ := newTestService(t)
	err := svc.Unblock(context.Background(), "203.0.113.99", "oops", "admin")
	assert.ErrorIs(t, err, ErrNotBlocked)
}

func TestSweepExpired(t *testing.T) {
	svc, fw := newTestService(t)
	ctx := context.Background()

	one := 1
	_, _, err := svc.Block(ctx, &entity.BlockRequest{
		IP:            "203.0.113.10",
		ThreatLevel:   entity.LevelLow,
		DurationHours: &one,
	})
	require.NoError(t, err)
	_, _, err = svc.Block(ctx, &entity.BlockRequest{
		IP:          "203.0.113.11",
		ThreatLevel: entity.LevelCritical,
	})
	require.NoError(t, err)

	// Two hours from now the 1h block has expired, the 720h one has not
	count, err := svc.SweepExpired(ctx, time.Now().Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.False(t, fw.IsDropped("203.0.113.10"))
	assert.True(t, fw.IsDropped("203.0.113.11"))
}

func TestAddWhitelistUnblocksCoveredIPs(t *testing.T) {
	svc, fw := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.Block(ctx, &entity.BlockRequest{
		IP:          "203.0.113.10",
		ThreatLevel: entity.LevelHigh,
	})
	require.NoError(t, err)

	require.NoError(t, svc.AddWhitelist(ctx, "203.0.113.10", "ops box", "admin"))
	assert.False(t, fw.IsDropped("203.0.113.10"))
	assert.True(t, svc.IsWhitelisted("203.0.113.10"))

	entries, err := svc.ListWhitelist()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "203.0.113.10/32", entries[0].CIDR)
}

func TestRemoveWhitelist(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.AddWhitelist(ctx, "203.0.113.10", "temp", "admin"))
	require.True(t, svc.IsWhitelisted("203.0.113.10"))

	require.NoError(t, svc.RemoveWhitelist("203.0.113.10"))
	assert.False(t, svc.IsWhitelisted("203.0.113.10"))
}

func TestBlockHistoryTrail(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.Block(ctx, &entity.BlockRequest{
		IP:          "203.0.113.10",
		ThreatLevel: entity.LevelMedium,
		Reason:      "brute force",
	})
	require.NoError(t, err)
	require.NoError(t, svc.Unblock(ctx, "203.0.113.10", "false positive", "admin"))

	history, err := svc.History("203.0.113.10", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, entity.BlockActionBlock, history[0].Action)
	assert.Equal(t, entity.BlockActionUnblock, history[1].Action)
	assert.Equal(t, 24, history[0].DurationHours)
}

func TestRestoreReappliesUnexpiredBlocks(t *testing.T) {
	store, err := badgerdb.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	now := time.Now()
	require.NoError(t, store.PutBlock(&entity.BlockRecord{
		IP:        "203.0.113.20",
		BlockedAt: now.Add(-time.Hour),
		UnblockAt: now.Add(time.Hour),
	}))
	require.NoError(t, store.PutBlock(&entity.BlockRecord{
		IP:        "203.0.113.21",
		BlockedAt: now.Add(-48 * time.Hour),
		UnblockAt: now.Add(-24 * time.Hour),
	}))

	fw := firewall.NewNoop()
	svc, err := NewService(store, fw, slog.Default())
	require.NoError(t, err)

	restored, err := svc.Restore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, restored)
	assert.True(t, fw.IsDropped("203.0.113.20"))
	assert.False(t, fw.IsDropped("203.0.113.21"))
}
