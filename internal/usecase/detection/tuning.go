package detection

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Tuning holds the detector thresholds and score contributions.
// The defaults are empirically chosen constants carried over from field
// use; they are deliberately exposed as configuration rather than derived.
type Tuning struct {
	Rate struct {
		PerMinute     int `yaml:"per_minute"`      // failures/1m for critical
		PerTenMinutes int `yaml:"per_ten_minutes"` // failures/10m for high
		PerHour       int `yaml:"per_hour"`        // failures/60m for medium
		CriticalScore int `yaml:"critical_score"`
		HighScore     int `yaml:"high_score"`
		MediumScore   int `yaml:"medium_score"`
	} `yaml:"rate"`

	Pattern struct {
		DistinctUsernames int `yaml:"distinct_usernames"` // credential stuffing gate
		CommonUsernames   int `yaml:"common_usernames"`   // dictionary attack gate
		SequentialRun     int `yaml:"sequential_run"`     // consecutive ints needed
		StuffingScore     int `yaml:"stuffing_score"`
		DictionaryScore   int `yaml:"dictionary_score"`
		SequentialScore   int `yaml:"sequential_score"`
	} `yaml:"pattern"`

	Distributed struct {
		Window            time.Duration `yaml:"window"`
		MinUniqueIPs      int           `yaml:"min_unique_ips"`
		ManyUsernames     int           `yaml:"many_usernames"`
		AttemptsPerMinute float64       `yaml:"attempts_per_minute"`
	} `yaml:"distributed"`
}

// DefaultTuning returns the built-in thresholds
func DefaultTuning() Tuning {
	var t Tuning

	t.Rate.PerMinute = 10
	t.Rate.PerTenMinutes = 20
	t.Rate.PerHour = 30
	t.Rate.CriticalScore = 95
	t.Rate.HighScore = 80
	t.Rate.MediumScore = 60

	t.Pattern.DistinctUsernames = 10
	t.Pattern.CommonUsernames = 6
	t.Pattern.SequentialRun = 3
	t.Pattern.StuffingScore = 40
	t.Pattern.DictionaryScore = 35
	t.Pattern.SequentialScore = 30

	t.Distributed.Window = 30 * time.Minute
	t.Distributed.MinUniqueIPs = 5
	t.Distributed.ManyUsernames = 10
	t.Distributed.AttemptsPerMinute = 2

	return t
}

// LoadTuning reads threshold overrides from a YAML file. Fields left unset
// keep their defaults.
func LoadTuning(path string) (Tuning, error) {
	t := DefaultTuning()

	data, err := os.ReadFile(path)
	if err != nil {
		return t, fmt.Errorf("read tuning file: %w", err)
	}

	if err := yaml.Unmarshal(data, &t); err != nil {
		return t, fmt.Errorf("parse tuning yaml: %w", err)
	}

	return t, nil
}
