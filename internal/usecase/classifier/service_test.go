package classifier

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kr1s57/sshsentinel/internal/adapter/external/mlscorer"
	"github.com/kr1s57/sshsentinel/internal/entity"
	"github.com/kr1s57/sshsentinel/internal/usecase/detection"
)

type fakeWhitelist struct {
	ips map[string]bool
}

func (f *fakeWhitelist) IsWhitelisted(ip string) bool { return f.ips[ip] }

func newTestService() *Service {
	return NewService(&fakeWhitelist{ips: map[string]bool{"10.0.0.1": true}}, DefaultConfig(), slog.Default())
}

// daytime timestamp, outside the off-hours window
var noon = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func baseEvent() *entity.Event {
	return &entity.Event{
		Timestamp:         noon,
		SourceIP:          "203.0.113.10",
		Username:          "deploy",
		DestinationServer: "web-01",
		Port:              22,
		Outcome:           entity.OutcomeFailed,
		Geo:               &entity.GeoInfo{CountryCode: "DE"},
	}
}

func TestClassifyWhitelistShortCircuit(t *testing.T) {
	svc := newTestService()

	event := baseEvent()
	event.SourceIP = "10.0.0.1"
	tc := svc.Classify(Inputs{
		Event: event,
		Behavioral: &detection.Result{
			RiskScore: 95,
			Severity:  entity.LevelCritical,
		},
	})

	assert.Equal(t, entity.LevelClean, tc.ThreatLevel)
	assert.Equal(t, entity.ActionAllow, tc.Action)
	assert.Equal(t, 0, tc.RiskScore)
	require.Len(t, tc.Reasons, 1)
	assert.Contains(t, tc.Reasons[0], "whitelisted")
}

func TestClassifyCriticalBruteForce(t *testing.T) {
	svc := newTestService()

	tc := svc.Classify(Inputs{
		Event: baseEvent(),
		Behavioral: &detection.Result{
			RiskScore:   95,
			Severity:    entity.LevelCritical,
			AttackTypes: []string{entity.ThreatTypeBruteForce},
			Rate:        detection.RateResult{IsBruteForce: true, RiskScore: 95},
		},
	})

	assert.Equal(t, entity.ThreatTypeBruteForce, tc.ThreatType)
	assert.Equal(t, entity.LevelCritical, tc.ThreatLevel)
	assert.Equal(t, entity.ActionImmediateBlock, tc.Action)
	assert.Equal(t, 168, tc.BlockDurationHours)
}

func TestClassifyIntrusionGetsLongestBlock(t *testing.T) {
	svc := newTestService()

	event := baseEvent()
	event.Outcome = entity.OutcomeAccepted
	tc := svc.Classify(Inputs{
		Event: event,
		Behavioral: &detection.Result{
			RiskScore: 80,
			Rate: detection.RateResult{
				IsBruteForce:    true,
				RiskScore:       80,
				CountsPerWindow: map[string]int{"10m": 12},
			},
			AttackTypes: []string{entity.ThreatTypeBruteForce},
		},
		Reputation: &entity.AggregatedReputation{
			AggregatedScore: 85,
			IsMalicious:     true,
			Sources:         []entity.ReputationRecord{{Source: "abuseipdb", RiskScore: 85, IsMalicious: true}},
		},
	})

	assert.Equal(t, entity.ThreatTypeIntrusion, tc.ThreatType)
	assert.Equal(t, entity.LevelCritical, tc.ThreatLevel)
	assert.Equal(t, entity.ActionImmediateBlock, tc.Action)
	assert.Equal(t, 720, tc.BlockDurationHours)
}

func TestClassifyModifiersAccumulate(t *testing.T) {
	svc := newTestService()

	event := baseEvent()
	event.Username = "root"
	event.Geo = &entity.GeoInfo{CountryCode: "RU"}
	tc := svc.Classify(Inputs{
		Event: event,
		Behavioral: &detection.Result{
			RiskScore: 50,
			Pattern:   detection.PatternResult{IsSequential: true, RiskScore: 30},
			AttackTypes: []string{
				entity.ThreatTypeSequentialUsernames,
			},
		},
	})

	// base 55 (type floor) + 10 country + 10 root + 15 sequential = 90
	assert.Equal(t, 90, tc.RiskScore)
	assert.Equal(t, entity.LevelCritical, tc.ThreatLevel)
	assert.Len(t, tc.Reasons, 3)
}

func TestClassifyUnknownGeoModifier(t *testing.T) {
	svc := newTestService()

	event := baseEvent()
	event.Geo = nil
	tc := svc.Classify(Inputs{
		Event:      event,
		Behavioral: &detection.Result{RiskScore: 20},
	})

	found := false
	for _, r := range tc.Reasons {
		if r == "geography unknown for 203.0.113.10" {
			found = true
		}
	}
	assert.True(t, found, "expected unknown-geography reason, got %v", tc.Reasons)
}

func TestClassifyOffHoursModifier(t *testing.T) {
	svc := newTestService()

	event := baseEvent()
	event.Timestamp = time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC)
	tc := svc.Classify(Inputs{
		Event:      event,
		Behavioral: &detection.Result{RiskScore: 20},
	})

	assert.Equal(t, 25, tc.RiskScore)
}

func TestClassifyImpossibleTravel(t *testing.T) {
	svc := newTestService()

	event := baseEvent()
	event.Geo = &entity.GeoInfo{CountryCode: "DE", Latitude: 52.52, Longitude: 13.40}
	tc := svc.Classify(Inputs{
		Event:      event,
		Behavioral: &detection.Result{RiskScore: 30},
		PriorGeo:   &entity.GeoInfo{CountryCode: "AU", Latitude: -33.87, Longitude: 151.21},
		PriorGeoAt: event.Timestamp.Add(-30 * time.Minute),
	})

	// 30 base + 20 impossible travel = 50
	assert.Equal(t, 50, tc.RiskScore)
	assert.Equal(t, entity.LevelLow, tc.ThreatLevel)
}

func TestClassifyMLScoreRaisesBase(t *testing.T) {
	svc := newTestService()

	tc := svc.Classify(Inputs{
		Event:      baseEvent(),
		Behavioral: &detection.Result{RiskScore: 20},
		ML: mlscorer.Result{
			Available: true,
			RiskScore: 78,
			Label:     entity.ThreatTypeSuspicious,
		},
	})

	assert.GreaterOrEqual(t, tc.RiskScore, 78)
}

func TestClassifyActionTable(t *testing.T) {
	tests := []struct {
		level      entity.ThreatLevel
		score      int
		threatType string
		action     entity.Action
		hours      int
	}{
		{entity.LevelCritical, 95, entity.ThreatTypeIntrusion, entity.ActionImmediateBlock, 720},
		{entity.LevelCritical, 92, entity.ThreatTypeBruteForce, entity.ActionImmediateBlock, 168},
		{entity.LevelHigh, 86, entity.ThreatTypeBruteForce, entity.ActionImmediateBlock, 168},
		{entity.LevelHigh, 78, entity.ThreatTypeBruteForce, entity.ActionTemporaryBlock, 24},
		{entity.LevelMedium, 65, entity.ThreatTypeSuspicious, entity.ActionRateLimit, 0},
		{entity.LevelLow, 45, entity.ThreatTypeSuspicious, entity.ActionLog, 0},
		{entity.LevelClean, 10, "", entity.ActionAllow, 0},
	}

	for _, tt := range tests {
		action, hours := decideAction(tt.level, tt.score, tt.threatType)
		assert.Equal(t, tt.action, action, "level %s score %d", tt.level, tt.score)
		assert.Equal(t, tt.hours, hours, "level %s score %d", tt.level, tt.score)
	}
}

func TestClassifyDeterministic(t *testing.T) {
	svc := newTestService()

	in := Inputs{
		Event: baseEvent(),
		Behavioral: &detection.Result{
			RiskScore:   70,
			AttackTypes: []string{entity.ThreatTypeBruteForce},
			Rate:        detection.RateResult{IsBruteForce: true, RiskScore: 70, CountsPerWindow: map[string]int{"10m": 8}},
		},
		Reputation: &entity.AggregatedReputation{
			AggregatedScore: 55,
			Sources:         []entity.ReputationRecord{{Source: "abuseipdb", RiskScore: 55}},
		},
	}

	first := svc.Classify(in)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, svc.Classify(in))
	}
}
