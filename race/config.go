package race

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the tuning of one race season. It is built once, validated and then
// shared read-only by the scoring engine, classifier, pool and boost verifier.
type Config struct {
	Season        string               `yaml:"season"`
	Scoring       ScoringConfig        `yaml:"scoring"`
	Classes       ClassConfig          `yaml:"classes"`
	Pool          PoolConfig           `yaml:"pool"`
	Boosts        map[string]BoostRule `yaml:"boosts"`
	SleepDuration time.Duration        `yaml:"sleepDuration"`
}

// ScoringConfig feeds the daily distance formula.
type ScoringConfig struct {
	// DelegationCap is the largest delegation (principal units) that still earns distance.
	DelegationCap       float64       `yaml:"delegationCap"`
	MetersPerUnit       float64       `yaml:"metersPerUnit"`
	RestakeMultiplier   float64       `yaml:"restakeMultiplier"`
	SiteVisitMultiplier float64       `yaml:"siteVisitMultiplier"`
	StreakBonusPerDay   float64       `yaml:"streakBonusPerDay"`
	MaxStreakBonus      float64       `yaml:"maxStreakBonus"`
	RestakeThreshold    float64       `yaml:"restakeThreshold"`
	SiteVisitWindow     time.Duration `yaml:"siteVisitWindow"`
	MicroPerUnit        int64         `yaml:"microPerUnit"`
	// ScoreScale converts meters into the persisted integer unit.
	ScoreScale int64 `yaml:"scoreScale"`
}

// ClassConfig holds the incremental percentile cut-offs.
type ClassConfig struct {
	AdultPercentile float64 `yaml:"adultPercentile"`
	TeenPercentile  float64 `yaml:"teenPercentile"`
}

// PoolConfig splits the prize pool per class, in percent.
type PoolConfig struct {
	AdultPercent int64 `yaml:"adultPercent"`
	TeenPercent  int64 `yaml:"teenPercent"`
	BabyPercent  int64 `yaml:"babyPercent"`
}

// BoostRule describes how one social platform proves a boost.
type BoostRule struct {
	// Multiplier is the bonus in percent, 10 meaning x1.10.
	Multiplier      int64         `yaml:"multiplier"`
	Duration        time.Duration `yaml:"duration"`
	MinEngagement   int64         `yaml:"minEngagement"`
	RequiredMarkers []string      `yaml:"requiredMarkers"`
	// URLPattern must hold one capture group: the post id.
	URLPattern string `yaml:"urlPattern"`
}

// DefaultConfig returns the season-one tuning.
func DefaultConfig() *Config {
	return &Config{
		Season: "season-1",
		Scoring: ScoringConfig{
			DelegationCap:       50000,
			MetersPerUnit:       0.1,
			RestakeMultiplier:   1.5,
			SiteVisitMultiplier: 1.05,
			StreakBonusPerDay:   0.02,
			MaxStreakBonus:      0.20,
			RestakeThreshold:    0.5,
			SiteVisitWindow:     24 * time.Hour,
			MicroPerUnit:        1000000,
			ScoreScale:          1000,
		},
		Classes: ClassConfig{
			AdultPercentile: 33.33,
			TeenPercentile:  66.66,
		},
		Pool: PoolConfig{
			AdultPercent: 60,
			TeenPercent:  30,
			BabyPercent:  10,
		},
		Boosts: map[string]BoostRule{
			"x": {
				Multiplier:      10,
				Duration:        7 * 24 * time.Hour,
				MinEngagement:   25,
				RequiredMarkers: []string{"@coreezy", "#slothrace"},
				URLPattern:      `^https?://(?:www\.|mobile\.)?(?:x|twitter)\.com/[A-Za-z0-9_]{1,15}/status/(\d+)`,
			},
		},
		SleepDuration: 3 * 24 * time.Hour,
	}
}

// LoadConfig returns the default config overlaid with the YAML file at path, if any.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, cfg.Validate()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read season config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse season config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("season config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects tunings the engine cannot score with.
func (c *Config) Validate() error {
	s := c.Scoring
	switch {
	case s.DelegationCap <= 0:
		return errors.New("delegationCap must be positive")
	case s.MetersPerUnit <= 0:
		return errors.New("metersPerUnit must be positive")
	case s.RestakeMultiplier < 1 || s.SiteVisitMultiplier < 1:
		return errors.New("restake and site visit multipliers must be >= 1")
	case s.StreakBonusPerDay < 0 || s.MaxStreakBonus < 0:
		return errors.New("streak bonuses must not be negative")
	case s.RestakeThreshold <= 0:
		return errors.New("restakeThreshold must be positive")
	case s.SiteVisitWindow <= 0:
		return errors.New("siteVisitWindow must be positive")
	case s.MicroPerUnit <= 0 || s.ScoreScale <= 0:
		return errors.New("microPerUnit and scoreScale must be positive")
	}
	if c.Classes.AdultPercentile <= 0 || c.Classes.TeenPercentile <= c.Classes.AdultPercentile ||
		c.Classes.TeenPercentile >= 100 {
		return fmt.Errorf("class percentiles must satisfy 0 < adult < teen < 100, got %v/%v",
			c.Classes.AdultPercentile, c.Classes.TeenPercentile)
	}
	p := c.Pool
	if p.AdultPercent < 0 || p.TeenPercent < 0 || p.BabyPercent < 0 {
		return errors.New("pool percentages must not be negative")
	}
	if sum := p.AdultPercent + p.TeenPercent + p.BabyPercent; sum != 100 {
		return fmt.Errorf("pool percentages must sum to 100, got %d", sum)
	}
	for platform, rule := range c.Boosts {
		if rule.Multiplier <= 0 || rule.Duration <= 0 || rule.URLPattern == "" {
			return fmt.Errorf("boost platform %s needs multiplier, duration and urlPattern", platform)
		}
	}
	if c.SleepDuration <= 0 {
		return errors.New("sleepDuration must be positive")
	}
	return nil
}
