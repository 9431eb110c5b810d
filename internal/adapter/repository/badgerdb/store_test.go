package badgerdb

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kr1s57/sshsentinel/internal/entity"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestBlockRoundTrip(t *testing.T) {
	store := openTestStore(t)

	now := time.Now().Truncate(time.Second)
	block := &entity.BlockRecord{
		IP:            "203.0.113.10",
		Reason:        "brute force",
		ThreatLevel:   entity.LevelHigh,
		BlockedAt:     now,
		UnblockAt:     now.Add(24 * time.Hour),
		DurationHours: 24,
	}

	require.NoError(t, store.PutBlock(block))

	got, err := store.GetBlock("203.0.113.10")
	require.NoError(t, err)
	assert.Equal(t, block.IP, got.IP)
	assert.Equal(t, block.ThreatLevel, got.ThreatLevel)
	assert.Equal(t, 24, got.DurationHours)

	require.NoError(t, store.DeleteBlock("203.0.113.10"))
	_, err = store.GetBlock("203.0.113.10")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetBlockNotFound(t *testing.T) {
	store := openTestStore(t)
	_, err := store.GetBlock("198.51.100.1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteBlockMissingIsNoError(t *testing.T) {
	store := openTestStore(t)
	assert.NoError(t, store.DeleteBlock("198.51.100.1"))
}

func TestListBlocks(t *testing.T) {
	store := openTestStore(t)

	now := time.Now()
	for _, ip := range []string{"203.0.113.1", "203.0.113.2", "203.0.113.3"} {
		require.NoError(t, store.PutBlock(&entity.BlockRecord{
			IP:        ip,
			BlockedAt: now,
			UnblockAt: now.Add(time.Hour),
		}))
	}

	blocks, err := store.ListBlocks()
	require.NoError(t, err)
	assert.Len(t, blocks, 3)
}

func TestHistoryOrderedPerIP(t *testing.T) {
	store := openTestStore(t)

	base := time.Now().Add(-time.Hour)
	for i, action := range []string{entity.BlockActionBlock, entity.BlockActionExpire, entity.BlockActionBlock} {
		require.NoError(t, store.AppendHistory(&entity.BlockHistory{
			ID:        uuid.New(),
			IP:        "203.0.113.5",
			Action:    action,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	// History for another IP must not leak in
	require.NoError(t, store.AppendHistory(&entity.BlockHistory{
		ID:        uuid.New(),
		IP:        "203.0.113.6",
		Action:    entity.BlockActionBlock,
		CreatedAt: base,
	}))

	entries, err := store.HistoryForIP("203.0.113.5", 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, entity.BlockActionBlock, entries[0].Action)
	assert.Equal(t, entity.BlockActionExpire, entries[1].Action)
	assert.True(t, entries[0].CreatedAt.Before(entries[1].CreatedAt))

	limited, err := store.HistoryForIP("203.0.113.5", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestPruneHistory(t *testing.T) {
	store := openTestStore(t)

	old := time.Now().Add(-48 * time.Hour)
	recent := time.Now()
	require.NoError(t, store.AppendHistory(&entity.BlockHistory{
		ID: uuid.New(), IP: "203.0.113.7", Action: entity.BlockActionBlock, CreatedAt: old,
	}))
	require.NoError(t, store.AppendHistory(&entity.BlockHistory{
		ID: uuid.New(), IP: "203.0.113.7", Action: entity.BlockActionExpire, CreatedAt: recent,
	}))

	pruned, err := store.PruneHistory(time.Now().Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)

	entries, err := store.HistoryForIP("203.0.113.7", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, entity.BlockActionExpire, entries[0].Action)
}

func TestReputationRoundTrip(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.PutReputation(&entity.ReputationRecord{
		Source:      "abuseipdb",
		IP:          "203.0.113.20",
		RiskScore:   85,
		IsMalicious: true,
		FetchedAt:   time.Now(),
	}, time.Hour))
	require.NoError(t, store.PutReputation(&entity.ReputationRecord{
		Source:    "virustotal",
		IP:        "203.0.113.20",
		RiskScore: 40,
		FetchedAt: time.Now(),
	}, time.Hour))

	records, err := store.ListReputation()
	require.NoError(t, err)
	require.Len(t, records, 2)

	bySource := make(map[string]entity.ReputationRecord)
	for _, rec := range records {
		bySource[rec.Source] = rec
	}
	assert.Equal(t, 85, bySource["abuseipdb"].RiskScore)
	assert.True(t, bySource["abuseipdb"].IsMalicious)
	assert.Equal(t, 40, bySource["virustotal"].RiskScore)
}

func TestWhitelistRoundTrip(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.PutWhitelist(&entity.WhitelistEntry{
		CIDR:      "10.0.0.0/8",
		Reason:    "internal network",
		AddedBy:   "admin",
		CreatedAt: time.Now(),
	}))
	require.NoError(t, store.PutWhitelist(&entity.WhitelistEntry{
		CIDR:      "203.0.113.100/32",
		Reason:    "monitoring probe",
		CreatedAt: time.Now(),
	}))

	entries, err := store.ListWhitelist()
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	require.NoError(t, store.DeleteWhitelist("10.0.0.0/8"))
	entries, err = store.ListWhitelist()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "203.0.113.100/32", entries[0].CIDR)
}
