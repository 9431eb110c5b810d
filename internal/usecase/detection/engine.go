package detection

import (
	"hash/fnv"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kr1s57/sshsentinel/internal/entity"
)

const shardCount = 16

// Result is the combined behavioral analysis for one event
type Result struct {
	RiskScore   int                `json:"risk_score"` // 0-100 combined
	Severity    entity.ThreatLevel `json:"severity"`
	AttackTypes []string           `json:"attack_types"` // labels of detectors that fired
	Rate        RateResult         `json:"rate"`
	Pattern     PatternResult      `json:"pattern"`
	Distributed DistributedResult  `json:"distributed"`
}

// Fired returns true when any detector flagged the event
func (r *Result) Fired() bool {
	return len(r.AttackTypes) > 0
}

// ipState is the per-source-IP tracking state: the attempt window plus the
// ordered distinct usernames seen
type ipState struct {
	window      *RollingWindow
	usernames   []string
	usernameSet map[string]bool
}

type ipShard struct {
	mu  sync.Mutex
	ips map[string]*ipState
}

type serverShard struct {
	mu      sync.Mutex
	servers map[string]*RollingWindow
}

// Config sizes the engine's rolling windows
type Config struct {
	WindowMaxEntries int
	WindowHorizon    time.Duration
	Tuning           Tuning
}

// Engine runs the three behavioral detectors over shared per-IP and
// per-server rolling state. All state is owned by the engine instance;
// tests construct isolated engines.
type Engine struct {
	cfg         Config
	rate        rateDetector
	pattern     patternDetector
	distributed distributedDetector

	ipShards     [shardCount]*ipShard
	serverShards [shardCount]*serverShard

	bruteForceHits  atomic.Uint64
	patternHits     atomic.Uint64
	distributedHits atomic.Uint64
}

// NewEngine creates a detection engine with the given window sizing and
// tuning
func NewEngine(cfg Config) *Engine {
	if cfg.WindowMaxEntries <= 0 {
		cfg.WindowMaxEntries = 100
	}
	if cfg.WindowHorizon <= 0 {
		cfg.WindowHorizon = 24 * time.Hour
	}

	e := &Engine{cfg: cfg}
	e.rate = rateDetector{tuning: cfg.Tuning}
	e.pattern = patternDetector{tuning: cfg.Tuning}
	e.distributed = distributedDetector{tuning: cfg.Tuning}

	for i := range e.ipShards {
		e.ipShards[i] = &ipShard{ips: make(map[string]*ipState)}
		e.serverShards[i] = &serverShard{servers: make(map[string]*RollingWindow)}
	}
	return e
}

func shardFor(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % shardCount)
}

// Analyze updates the rolling state for the event's source IP and
// destination server exactly once, then runs all three detectors and
// combines their scores. All outcomes feed the rate window; only failures
// feed the pattern and distributed detectors.
func (e *Engine) Analyze(event *entity.Event) *Result {
	now := event.Timestamp
	entry := WindowEntry{
		Timestamp: event.Timestamp,
		SourceIP:  event.SourceIP,
		Username:  event.Username,
		Server:    event.DestinationServer,
		Outcome:   event.Outcome,
	}

	result := &Result{}

	// Per-IP state: append then evaluate under the same lock so the
	// threshold check always sees the appended attempt
	is := e.ipShards[shardFor(event.SourceIP)]
	is.mu.Lock()
	state, ok := is.ips[event.SourceIP]
	if !ok {
		state = &ipState{
			window:      NewRollingWindow(e.cfg.WindowMaxEntries, e.cfg.WindowHorizon),
			usernameSet: make(map[string]bool),
		}
		is.ips[event.SourceIP] = state
	}
	state.window.Append(entry, now)
	if event.Outcome.IsFailure() && event.Username != "" && !state.usernameSet[event.Username] {
		state.usernameSet[event.Username] = true
		state.usernames = append(state.usernames, event.Username)
	}
	result.Rate = e.rate.evaluate(state.window, now)
	result.Pattern = e.pattern.evaluate(state.usernames, now)
	is.mu.Unlock()

	// Per-server state: only failed attempts feed distributed detection
	ss := e.serverShards[shardFor(event.DestinationServer)]
	ss.mu.Lock()
	win, ok := ss.servers[event.DestinationServer]
	if !ok {
		win = NewRollingWindow(e.cfg.WindowMaxEntries, e.cfg.WindowHorizon)
		ss.servers[event.DestinationServer] = win
	}
	if event.Outcome.IsFailure() {
		win.Append(entry, now)
	}
	result.Distributed = e.distributed.evaluate(win, now)
	ss.mu.Unlock()

	e.combine(result)
	return result
}

// combine blends the detector scores: 0.7 x max + 0.3 x mean
func (e *Engine) combine(r *Result) {
	scores := []int{r.Rate.RiskScore, r.Pattern.RiskScore, r.Distributed.RiskScore}

	maxScore := 0
	sum := 0
	for _, s := range scores {
		if s > maxScore {
			maxScore = s
		}
		sum += s
	}
	mean := float64(sum) / float64(len(scores))

	r.RiskScore = int(math.Round(0.7*float64(maxScore) + 0.3*mean))
	if r.RiskScore > 100 {
		r.RiskScore = 100
	}

	switch {
	case r.RiskScore >= 90:
		r.Severity = entity.LevelCritical
	case r.RiskScore >= 70:
		r.Severity = entity.LevelHigh
	case r.RiskScore >= 50:
		r.Severity = entity.LevelMedium
	case r.RiskScore >= 30:
		r.Severity = entity.LevelLow
	default:
		r.Severity = entity.LevelClean
	}

	if r.Rate.IsBruteForce {
		r.AttackTypes = append(r.AttackTypes, entity.ThreatTypeBruteForce)
		e.bruteForceHits.Add(1)
	}
	if r.Pattern.Fired() {
		r.AttackTypes = append(r.AttackTypes, r.Pattern.Patterns...)
		e.patternHits.Add(1)
	}
	if r.Distributed.IsDistributedAttack {
		r.AttackTypes = append(r.AttackTypes, entity.ThreatTypeDistributedAttack)
		e.distributedHits.Add(1)
	}
}

// Stats returns detector hit counters and tracked key counts
func (e *Engine) Stats() entity.DetectionStats {
	stats := entity.DetectionStats{
		BruteForceHits:  e.bruteForceHits.Load(),
		PatternHits:     e.patternHits.Load(),
		DistributedHits: e.distributedHits.Load(),
	}
	for _, s := range e.ipShards {
		s.mu.Lock()
		stats.TrackedIPs += len(s.ips)
		s.mu.Unlock()
	}
	for _, s := range e.serverShards {
		s.mu.Lock()
		stats.TrackedServers += len(s.servers)
		s.mu.Unlock()
	}
	return stats
}

// PruneIdle drops per-key state with no entries inside the horizon.
// Called from the periodic maintenance task to bound memory.
func (e *Engine) PruneIdle(now time.Time) int {
	removed := 0
	for _, s := range e.ipShards {
		s.mu.Lock()
		for ip, state := range s.ips {
			if state.window.Len(now) == 0 {
				delete(s.ips, ip)
				removed++
			}
		}
		s.mu.Unlock()
	}
	for _, s := range e.serverShards {
		s.mu.Lock()
		for server, win := range s.servers {
			if win.Len(now) == 0 {
				delete(s.servers, server)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}
