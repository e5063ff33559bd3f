package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"papertrader/internal/risk"
	"papertrader/internal/signal"
)

// Strategy bundles the tunable trading parameters loaded from YAML.
type Strategy struct {
	Signal      signal.Config `yaml:"signal"`
	Risk        risk.Limits   `yaml:"risk"`
	SlippageBps float64       `yaml:"slippage_bps"`
}

// DefaultStrategy returns the built-in parameter set used when no strategy
// file is configured.
func DefaultStrategy() Strategy {
	return Strategy{
		Signal:      signal.DefaultConfig(),
		Risk:        risk.DefaultLimits(),
		SlippageBps: 5,
	}
}

// LoadStrategy reads the strategy file at path, overlaying it on the
// defaults. Unknown YAML keys are an error so typos fail loudly instead of
// silently running with defaults. An empty path returns the defaults.
func LoadStrategy(path string) (Strategy, error) {
	strat := DefaultStrategy()
	if path == "" {
		return strat, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return strat, fmt.Errorf("open strategy file: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&strat); err != nil {
		return strat, fmt.Errorf("parse strategy file %s: %w", path, err)
	}

	if err := strat.Validate(); err != nil {
		return strat, fmt.Errorf("strategy file %s: %w", path, err)
	}
	return strat, nil
}

// Validate checks every section of the strategy.
func (s Strategy) Validate() error {
	if err := s.Signal.Validate(); err != nil {
		return err
	}
	if err := s.Risk.Validate(); err != nil {
		return err
	}
	if s.SlippageBps < 0 {
		return fmt.Errorf("slippage_bps must not be negative")
	}
	return nil
}
