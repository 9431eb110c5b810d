package detection

import (
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/kr1s57/sshsentinel/internal/entity"
)

// commonUsernames are the targets of routine SSH dictionary attacks
var commonUsernames = map[string]bool{
	"root": true, "admin": true, "administrator": true, "user": true,
	"test": true, "guest": true, "oracle": true, "postgres": true,
	"mysql": true, "ftp": true, "www": true, "web": true, "mail": true,
	"ubuntu": true, "centos": true, "debian": true, "pi": true,
	"git": true, "deploy": true, "support": true, "dev": true,
	"backup": true, "nagios": true, "jenkins": true,
}

var sequentialUsernameRe = regexp.MustCompile(`^([a-zA-Z]+)(\d+)$`)

// PatternResult is the output of the username-pattern detector
type PatternResult struct {
	IsCredentialStuffing bool     `json:"is_credential_stuffing"`
	IsDictionaryAttack   bool     `json:"is_dictionary_attack"`
	IsSequential         bool     `json:"is_sequential"`
	DistinctUsernames    int      `json:"distinct_usernames"`
	CommonUsernames      int      `json:"common_usernames"`
	Patterns             []string `json:"patterns"`
	RiskScore            int      `json:"risk_score"`
}

// Fired returns true when any username pattern matched
func (r PatternResult) Fired() bool {
	return r.IsCredentialStuffing || r.IsDictionaryAttack || r.IsSequential
}

// patternDetector inspects the ordered distinct usernames attempted by one
// source IP
type patternDetector struct {
	tuning Tuning
}

func (d *patternDetector) evaluate(usernames []string, _ time.Time) PatternResult {
	result := PatternResult{DistinctUsernames: len(usernames)}

	common := 0
	for _, u := range usernames {
		if commonUsernames[u] {
			common++
		}
	}
	result.CommonUsernames = common

	if len(usernames) > d.tuning.Pattern.DistinctUsernames {
		result.IsCredentialStuffing = true
		result.Patterns = append(result.Patterns, entity.ThreatTypeCredentialStuffing)
		result.RiskScore += d.tuning.Pattern.StuffingScore
	}

	if common > d.tuning.Pattern.CommonUsernames {
		result.IsDictionaryAttack = true
		result.Patterns = append(result.Patterns, entity.ThreatTypeDictionaryAttack)
		result.RiskScore += d.tuning.Pattern.DictionaryScore
	}

	if d.hasSequentialRun(usernames) {
		result.IsSequential = true
		result.Patterns = append(result.Patterns, entity.ThreatTypeSequentialUsernames)
		result.RiskScore += d.tuning.Pattern.SequentialScore
	}

	if result.RiskScore > 100 {
		result.RiskScore = 100
	}

	return result
}

// hasSequentialRun detects 3+ consecutive integers sharing a base name,
// e.g. user1, user2, user3
func (d *patternDetector) hasSequentialRun(usernames []string) bool {
	byBase := make(map[string][]int)
	for _, u := range usernames {
		m := sequentialUsernameRe.FindStringSubmatch(u)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		byBase[m[1]] = append(byBase[m[1]], n)
	}

	need := d.tuning.Pattern.SequentialRun
	for _, nums := range byBase {
		if len(nums) < need {
			continue
		}
		sort.Ints(nums)
		run := 1
		for i := 1; i < len(nums); i++ {
			if nums[i] == nums[i-1] {
				continue
			}
			if nums[i] == nums[i-1]+1 {
				run++
				if run >= need {
					return true
				}
			} else {
				run = 1
			}
		}
	}
	return false
}
