// Package score reduces a validation issue multiset to a single
// 0–100 compliance score and a submission-readiness verdict.
package score

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/clinforge/sdtmap/internal/sdtm"
)

// Config is the scoring weight and aggregation table.
//
// Observed scoring schemes in the field disagree on weights for the
// same severity classes, so nothing here is hard-coded: defaults are a
// starting point and every knob is loadable from YAML.
type Config struct {
	// Weights maps severity to the per-unit penalty.
	Weights map[sdtm.Severity]float64 `yaml:"weights"`

	// Threshold is the minimum score for submission readiness.
	Threshold float64 `yaml:"threshold"`

	// AllowedMajor is the maximum count of distinct major issues a
	// submission-ready output may carry.
	AllowedMajor int `yaml:"allowed_major"`

	// MaxPerIssuePenalty caps the contribution of a single per-record
	// issue, so one pervasive defect across thousands of records cannot
	// drive the score unboundedly toward zero on its own.
	MaxPerIssuePenalty float64 `yaml:"max_per_issue_penalty"`
}

// DefaultConfig returns the standard weight table.
func DefaultConfig() Config {
	return Config{
		Weights: map[sdtm.Severity]float64{
			sdtm.SeverityCritical: 5,
			sdtm.SeverityMajor:    2,
			sdtm.SeverityMinor:    1,
			sdtm.SeverityWarning:  0.25,
		},
		Threshold:          90,
		AllowedMajor:       5,
		MaxPerIssuePenalty: 20,
	}
}

// LoadConfig parses a YAML weight table, filling omitted fields from
// the defaults.
func LoadConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse score config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations that would make scores meaningless.
func (c Config) Validate() error {
	for sev, w := range c.Weights {
		if w < 0 {
			return fmt.Errorf("score config: negative weight for %s", sev)
		}
	}
	if c.Threshold < 0 || c.Threshold > 100 {
		return fmt.Errorf("score config: threshold %v outside 0..100", c.Threshold)
	}
	if c.AllowedMajor < 0 {
		return fmt.Errorf("score config: negative allowed_major")
	}
	if c.MaxPerIssuePenalty <= 0 {
		return fmt.Errorf("score config: max_per_issue_penalty must be positive")
	}
	return nil
}

// weight returns the penalty for a severity; unknown severities weigh
// nothing rather than guessing.
func (c Config) weight(s sdtm.Severity) float64 {
	return c.Weights[s]
}
