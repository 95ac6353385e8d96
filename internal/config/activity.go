package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Range bounds the randomized swap amount for one token side.
type Range struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// ActivityConfig is the user-editable activity blob. It round-trips through
// LoadActivity/SaveActivity without loss.
type ActivityConfig struct {
	SwapRepetitions int              `yaml:"swap_repetitions"`
	LoopHours       float64          `yaml:"loop_hours"`
	Amounts         map[string]Range `yaml:"amounts"`
}

func DefaultActivity() ActivityConfig {
	return ActivityConfig{
		SwapRepetitions: 2,
		LoopHours:       24,
		Amounts: map[string]Range{
			"wpol": {Min: 0.01, Max: 0.05},
			"tpol": {Min: 0.01, Max: 0.05},
		},
	}
}

func (a ActivityConfig) Validate() error {
	if a.SwapRepetitions <= 0 {
		return fmt.Errorf("swap_repetitions must be a positive integer")
	}
	if a.LoopHours < 1 {
		return fmt.Errorf("loop_hours must be >= 1")
	}
	for token, r := range a.Amounts {
		if r.Min <= 0 {
			return fmt.Errorf("amounts.%s.min must be > 0", token)
		}
		if r.Max < r.Min {
			return fmt.Errorf("amounts.%s.max must be >= min", token)
		}
	}
	return nil
}

// RangeFor returns the amount range configured for a token symbol.
func (a ActivityConfig) RangeFor(symbol string) (Range, bool) {
	r, ok := a.Amounts[strings.ToLower(strings.TrimSpace(symbol))]
	return r, ok
}

func LoadActivity(path string) (ActivityConfig, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultActivity(), nil
		}
		return ActivityConfig{}, fmt.Errorf("read activity config: %w", err)
	}
	var cfg ActivityConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return ActivityConfig{}, fmt.Errorf("parse activity yaml: %w", err)
	}
	if cfg.Amounts == nil {
		cfg.Amounts = map[string]Range{}
	}
	if err := cfg.Validate(); err != nil {
		return ActivityConfig{}, err
	}
	return cfg, nil
}

func SaveActivity(path string, cfg ActivityConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	buf, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal activity config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create activity directory: %w", err)
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("write activity config: %w", err)
	}
	return nil
}

// ActivityField is the closed set of editable activity fields. String keys
// from the CLI are parsed into this enum so each field gets a typed,
// validated setter.
type ActivityField int

const (
	FieldRepetitions ActivityField = iota
	FieldLoopHours
	FieldAmountMin
	FieldAmountMax
)

// ParseActivityField maps a CLI key like "repetitions", "loop-hours",
// "wpol.min" or "tpol.max" to a field and, for amount fields, a token symbol.
func ParseActivityField(key string) (ActivityField, string, error) {
	norm := strings.ToLower(strings.TrimSpace(key))
	switch norm {
	case "repetitions", "swap-repetitions":
		return FieldRepetitions, "", nil
	case "loop-hours":
		return FieldLoopHours, "", nil
	}
	if token, side, ok := strings.Cut(norm, "."); ok && token != "" {
		switch side {
		case "min":
			return FieldAmountMin, token, nil
		case "max":
			return FieldAmountMax, token, nil
		}
	}
	return 0, "", fmt.Errorf("unknown activity field %q (expected repetitions, loop-hours, <token>.min or <token>.max)", key)
}

// SetActivityField applies one validated edit to cfg.
func SetActivityField(cfg *ActivityConfig, field ActivityField, token, value string) error {
	switch field {
	case FieldRepetitions:
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n <= 0 {
			return fmt.Errorf("repetitions must be a positive integer")
		}
		cfg.SwapRepetitions = n
	case FieldLoopHours:
		f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil || f < 1 {
			return fmt.Errorf("loop-hours must be a number >= 1")
		}
		cfg.LoopHours = f
	case FieldAmountMin, FieldAmountMax:
		f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil || f <= 0 {
			return fmt.Errorf("amount bound must be a positive number")
		}
		if cfg.Amounts == nil {
			cfg.Amounts = map[string]Range{}
		}
		r := cfg.Amounts[token]
		if field == FieldAmountMin {
			r.Min = f
		} else {
			r.Max = f
		}
		if r.Max > 0 && r.Max < r.Min {
			return fmt.Errorf("amounts.%s: max must be >= min", token)
		}
		cfg.Amounts[token] = r
	default:
		return fmt.Errorf("unsupported activity field")
	}
	return nil
}
