package entity

// ThreatLevel is the five-valued severity derived from a 0-100 risk score
type ThreatLevel string

const (
	LevelClean    ThreatLevel = "clean"
	LevelLow      ThreatLevel = "low"
	LevelMedium   ThreatLevel = "medium"
	LevelHigh     ThreatLevel = "high"
	LevelCritical ThreatLevel = "critical"
)

// Rank orders threat levels for comparison (clean=0 .. critical=4)
func (l ThreatLevel) Rank() int {
	switch l {
	case LevelLow:
		return 1
	case LevelMedium:
		return 2
	case LevelHigh:
		return 3
	case LevelCritical:
		return 4
	default:
		return 0
	}
}

// Action is the recommended response for a classified event
type Action string

const (
	ActionAllow          Action = "allow"
	ActionLog            Action = "log"
	ActionRateLimit      Action = "rate_limit"
	ActionTemporaryBlock Action = "temporary_block"
	ActionImmediateBlock Action = "immediate_block"
)

// RequiresBlock returns true when the action calls for a firewall block
func (a Action) RequiresBlock() bool {
	return a == ActionTemporaryBlock || a == ActionImmediateBlock
}

// Threat type labels attached by the detectors and classifier
const (
	ThreatTypeBruteForce          = "brute_force"
	ThreatTypeCredentialStuffing  = "credential_stuffing"
	ThreatTypeDictionaryAttack    = "dictionary_attack"
	ThreatTypeSequentialUsernames = "sequential_usernames"
	ThreatTypeDistributedAttack   = "distributed_attack"
	ThreatTypeIntrusion           = "intrusion"
	ThreatTypeSuspicious          = "suspicious_activity"
)

// ThreatClassification is the decision output for one event.
// Produced once per event, immutable, consumed by the blocker and alerter.
type ThreatClassification struct {
	SourceIP           string      `json:"source_ip"`
	DestinationServer  string      `json:"destination_server"`
	RiskScore          int         `json:"risk_score"` // 0-100
	ThreatLevel        ThreatLevel `json:"threat_level"`
	ThreatType         string      `json:"threat_type"`
	Action             Action      `json:"action"`
	BlockDurationHours int         `json:"block_duration_hours"`
	AlertPriority      string      `json:"alert_priority"`
	Reasons            []string    `json:"reasons"`
	Confidence         float64     `json:"confidence"` // 0-1
}

// LevelForScore maps a 0-100 risk score to a threat level using the
// classifier thresholds (critical>=90, high>=75, medium>=60, low>=40)
func LevelForScore(score int) ThreatLevel {
	switch {
	case score >= 90:
		return LevelCritical
	case score >= 75:
		return LevelHigh
	case score >= 60:
		return LevelMedium
	case score >= 40:
		return LevelLow
	default:
		return LevelClean
	}
}
