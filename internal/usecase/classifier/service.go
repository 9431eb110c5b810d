package classifier

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/kr1s57/sshsentinel/internal/adapter/external/mlscorer"
	"github.com/kr1s57/sshsentinel/internal/entity"
	"github.com/kr1s57/sshsentinel/internal/usecase/detection"
)

// WhitelistChecker answers whether an IP is exempt from scoring
type WhitelistChecker interface {
	IsWhitelisted(ip string) bool
}

// threatTypeBaseScores gives each attack label a floor the combined
// score can never fall under
var threatTypeBaseScores = map[string]int{
	entity.ThreatTypeIntrusion:           85,
	entity.ThreatTypeDistributedAttack:   75,
	entity.ThreatTypeCredentialStuffing:  70,
	entity.ThreatTypeDictionaryAttack:    65,
	entity.ThreatTypeBruteForce:          60,
	entity.ThreatTypeSequentialUsernames: 55,
	entity.ThreatTypeSuspicious:          40,
}

// rootLikeUsernames are accounts attackers probe first. root and admin
// weigh more than the rest.
var rootLikeUsernames = map[string]int{
	"root":          10,
	"admin":         10,
	"administrator": 10,
	"oracle":        5,
	"postgres":      5,
	"mysql":         5,
	"ubuntu":        5,
	"centos":        5,
	"test":          5,
	"guest":         5,
}

// Inputs carries everything the classifier consults for one event
type Inputs struct {
	Event      *entity.Event
	Behavioral *detection.Result
	Reputation *entity.AggregatedReputation
	ML         mlscorer.Result

	// Last known location of the source IP, for impossible-travel
	// detection. Nil when no prior sighting exists.
	PriorGeo   *entity.GeoInfo
	PriorGeoAt time.Time
}

// Config holds classifier tunables
type Config struct {
	// HighRiskCountries are ISO country codes that raise the score
	HighRiskCountries []string
	// OffHoursStart/End bound the suspicious window (hours, 0-23).
	// The window wraps midnight when start > end.
	OffHoursStart int
	OffHoursEnd   int
}

// DefaultConfig returns the classifier defaults
func DefaultConfig() Config {
	return Config{
		HighRiskCountries: []string{"CN", "RU", "KP", "IR"},
		OffHoursStart:     22,
		OffHoursEnd:       6,
	}
}

// Service is the risk classifier: a deterministic decision function
// from (event, behavioral score, reputation, ml score) to a
// ThreatClassification with its recommended action.
type Service struct {
	whitelist     WhitelistChecker
	highRisk      map[string]bool
	offHoursStart int
	offHoursEnd   int
	logger        *slog.Logger
}

// NewService creates a classifier
func NewService(whitelist WhitelistChecker, cfg Config, logger *slog.Logger) *Service {
	highRisk := make(map[string]bool, len(cfg.HighRiskCountries))
	for _, cc := range cfg.HighRiskCountries {
		highRisk[cc] = true
	}
	return &Service{
		whitelist:     whitelist,
		highRisk:      highRisk,
		offHoursStart: cfg.OffHoursStart,
		offHoursEnd:   cfg.OffHoursEnd,
		logger:        logger,
	}
}

// Classify produces the decision for one event. Deterministic given
// identical inputs.
func (s *Service) Classify(in Inputs) *entity.ThreatClassification {
	event := in.Event

	tc := &entity.ThreatClassification{
		SourceIP:          event.SourceIP,
		DestinationServer: event.DestinationServer,
	}

	// Whitelisted sources bypass all scoring
	if s.whitelist != nil && s.whitelist.IsWhitelisted(event.SourceIP) {
		tc.ThreatLevel = entity.LevelClean
		tc.Action = entity.ActionAllow
		tc.Reasons = []string{"source IP is whitelisted"}
		tc.Confidence = 1.0
		s.logger.Debug("whitelisted source, skipping classification", "ip", event.SourceIP)
		return tc
	}

	tc.ThreatType = s.threatType(in)

	// Base score: the strongest of ml, behavioral, and the type floor
	base := 0
	if in.ML.Available && in.ML.RiskScore > base {
		base = in.ML.RiskScore
	}
	if in.Behavioral != nil && in.Behavioral.RiskScore > base {
		base = in.Behavioral.RiskScore
	}
	if floor, ok := threatTypeBaseScores[tc.ThreatType]; ok && floor > base {
		base = floor
	}
	score := base

	addReason := func(points int, format string, args ...any) {
		score += points
		tc.Reasons = append(tc.Reasons, fmt.Sprintf(format, args...))
	}

	// Reputation
	if rep := in.Reputation; rep != nil && len(rep.Sources) > 0 {
		if rep.IsMalicious {
			addReason(15, "reputation: flagged malicious by %d source(s), score %d", len(rep.Sources), rep.AggregatedScore)
		} else if rep.AggregatedScore >= 40 {
			addReason(10, "reputation: suspicious score %d", rep.AggregatedScore)
		}
	}

	// Geography
	switch {
	case event.Geo == nil:
		addReason(5, "geography unknown for %s", event.SourceIP)
	case s.highRisk[event.Geo.CountryCode]:
		addReason(10, "source country %s is high risk", event.Geo.CountryCode)
	}

	// Username
	if points, ok := rootLikeUsernames[event.Username]; ok {
		addReason(points, "privileged or commonly-probed username %q", event.Username)
	}

	// Behavioral extras beyond the combined score
	if in.Behavioral != nil && in.Behavioral.Pattern.IsSequential {
		addReason(15, "sequential username enumeration detected")
	}

	// Time of day
	if s.isOffHours(event.Timestamp) {
		addReason(5, "attempt at off-hours (%02d:00)", event.Timestamp.Hour())
	}

	// Impossible travel
	if event.Geo != nil && in.PriorGeo != nil && !in.PriorGeoAt.IsZero() {
		if speed := travelSpeedKmh(in.PriorGeo, event.Geo, in.PriorGeoAt, event.Timestamp); speed > 1000 {
			addReason(20, "impossible travel: %s to %s at %.0f km/h", in.PriorGeo.CountryCode, event.Geo.CountryCode, speed)
		}
	}

	// Successful login right after a failure burst from a bad IP
	if s.isSuccessAfterBurst(in) {
		addReason(25, "successful login after failure burst from reputationally-bad IP")
		tc.ThreatType = entity.ThreatTypeIntrusion
	}

	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}

	tc.RiskScore = score
	tc.ThreatLevel = entity.LevelForScore(score)
	tc.Action, tc.BlockDurationHours = decideAction(tc.ThreatLevel, score, tc.ThreatType)
	tc.AlertPriority = string(tc.ThreatLevel)
	tc.Confidence = s.confidence(in)

	return tc
}

// threatType picks the dominant attack label from the behavioral result
func (s *Service) threatType(in Inputs) string {
	b := in.Behavioral
	if b == nil {
		if in.ML.Available && in.ML.Label != "" {
			return in.ML.Label
		}
		return ""
	}

	switch {
	case b.Distributed.IsDistributedAttack:
		return entity.ThreatTypeDistributedAttack
	case b.Pattern.IsCredentialStuffing:
		return entity.ThreatTypeCredentialStuffing
	case b.Pattern.IsDictionaryAttack:
		return entity.ThreatTypeDictionaryAttack
	case b.Pattern.IsSequential:
		return entity.ThreatTypeSequentialUsernames
	case b.Rate.IsBruteForce:
		return entity.ThreatTypeBruteForce
	}

	if in.ML.Available && in.ML.Label != "" {
		return in.ML.Label
	}
	// Nothing fired: label suspicious only when the behavioral score
	// alone is worth noting, so clean traffic gets no type floor
	if b.RiskScore >= 40 {
		return entity.ThreatTypeSuspicious
	}
	return ""
}

// isSuccessAfterBurst detects an accepted login that directly follows a
// run of failures from a source with bad reputation
func (s *Service) isSuccessAfterBurst(in Inputs) bool {
	if in.Event.Outcome != entity.OutcomeAccepted || in.Behavioral == nil {
		return false
	}
	if in.Behavioral.Rate.CountsPerWindow["10m"] < 5 {
		return false
	}
	rep := in.Reputation
	return rep != nil && (rep.IsMalicious || rep.AggregatedScore >= 60)
}

func (s *Service) isOffHours(t time.Time) bool {
	hour := t.Hour()
	if s.offHoursStart > s.offHoursEnd {
		return hour >= s.offHoursStart || hour < s.offHoursEnd
	}
	return hour >= s.offHoursStart && hour < s.offHoursEnd
}

// confidence reflects how many independent signals agreed
func (s *Service) confidence(in Inputs) float64 {
	signals := 1.0 // behavioral always present
	agreeing := 0.0
	if in.Behavioral != nil && in.Behavioral.Fired() {
		agreeing++
	}
	if in.Reputation != nil && len(in.Reputation.Sources) > 0 {
		signals++
		if in.Reputation.AggregatedScore >= 40 {
			agreeing++
		}
	}
	if in.ML.Available {
		signals++
		if in.ML.RiskScore >= 40 {
			agreeing++
		}
	}
	c := 0.5 + 0.5*(agreeing/signals)
	return math.Round(c*100) / 100
}

// decideAction maps (level, score, type) to the response and its block
// duration in hours
func decideAction(level entity.ThreatLevel, score int, threatType string) (entity.Action, int) {
	switch level {
	case entity.LevelCritical:
		if threatType == entity.ThreatTypeIntrusion {
			return entity.ActionImmediateBlock, 720
		}
		return entity.ActionImmediateBlock, 168
	case entity.LevelHigh:
		if score >= 85 {
			return entity.ActionImmediateBlock, 168
		}
		return entity.ActionTemporaryBlock, 24
	case entity.LevelMedium:
		return entity.ActionRateLimit, 0
	case entity.LevelLow:
		return entity.ActionLog, 0
	default:
		return entity.ActionAllow, 0
	}
}

// travelSpeedKmh computes the apparent speed between two sightings
func travelSpeedKmh(from, to *entity.GeoInfo, fromAt, toAt time.Time) float64 {
	hours := toAt.Sub(fromAt).Hours()
	if hours <= 0 {
		hours = 1.0 / 60
	}
	return haversineKm(from.Latitude, from.Longitude, to.Latitude, to.Longitude) / hours
}

// haversineKm is the great-circle distance between two coordinates
func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusKm = 6371.0
	rad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := rad(lat2 - lat1)
	dLon := rad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
