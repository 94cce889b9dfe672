// Package config loads and persists the tracker configuration.
//
// Config lives in a YAML file in the state directory. Every field is
// user-editable, so loading never rejects a config: bad values are
// clamped back into range by Normalize and the corrected config keeps
// working.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const configFilename = "config.yaml"

// AnalyticsRules controls how check-ins are converted to time blocks.
type AnalyticsRules struct {
	// Each check-in represents this many hours unless a gap rule changes it.
	EntrySpanHours float64 `yaml:"entry_span_hours"`
	// If the gap between entries exceeds this, blocks break at the gap.
	GapBreakHours float64 `yaml:"gap_break_hours"`
}

// Config holds all tracker settings.
type Config struct {
	IntervalMinutes      int `yaml:"interval_minutes"`
	SnoozeMinutes        int `yaml:"snooze_minutes"`
	DismissSnoozeMinutes int `yaml:"dismiss_snooze_minutes"`
	PauseMinutes         int `yaml:"pause_minutes"`
	CatchUpMaxHours      int `yaml:"catch_up_max_hours"`

	LLMEnabled        bool   `yaml:"llm_enabled"`
	LLMModel          string `yaml:"llm_model"`
	LLMTimeoutSeconds int    `yaml:"llm_timeout_seconds"`

	NoNetworkMode bool `yaml:"no_network_mode"`

	ReflectionEnabled   bool   `yaml:"reflection_enabled"`
	ReflectionTimeLocal string `yaml:"reflection_time_local"` // "HH:MM"

	// Directories. StateDir holds internal state (scheduler state, learned
	// rules, logs); DataDir holds user-facing files (workbook, report,
	// reflections).
	StateDir string `yaml:"state_dir"`
	DataDir  string `yaml:"data_dir"`

	Rules AnalyticsRules `yaml:"analytics_rules"`
}

// Default returns a config with the stock settings and no directories
// resolved yet.
func Default() Config {
	return Config{
		IntervalMinutes:      60,
		SnoozeMinutes:        10,
		DismissSnoozeMinutes: 10,
		PauseMinutes:         60,
		CatchUpMaxHours:      8,
		LLMEnabled:           false,
		LLMModel:             "llama3.1:8b",
		LLMTimeoutSeconds:    20,
		NoNetworkMode:        true,
		ReflectionEnabled:    true,
		ReflectionTimeLocal:  "23:30",
		Rules: AnalyticsRules{
			EntrySpanHours: 1.0,
			GapBreakHours:  2.0,
		},
	}
}

// Normalize clamps user-editable values back into sane ranges. Called on
// every load so a hand-edited config can never wedge the scheduler or make
// the block reconstructor break blocks mid-interval.
func (c *Config) Normalize() {
	if c.IntervalMinutes < 1 {
		c.IntervalMinutes = 1
	}
	if c.SnoozeMinutes < 1 {
		c.SnoozeMinutes = 1
	}
	if c.DismissSnoozeMinutes < 1 {
		c.DismissSnoozeMinutes = 1
	}
	if c.PauseMinutes < 1 {
		c.PauseMinutes = 1
	}
	if c.CatchUpMaxHours < 1 {
		c.CatchUpMaxHours = 1
	}
	if c.LLMTimeoutSeconds < 1 {
		c.LLMTimeoutSeconds = 1
	}
	if c.Rules.EntrySpanHours < 0.25 {
		c.Rules.EntrySpanHours = 0.25
	}
	// Invariant: gap break must not fire between normal consecutive
	// check-ins, so it can never be shorter than the entry span.
	if c.Rules.GapBreakHours < c.Rules.EntrySpanHours {
		c.Rules.GapBreakHours = c.Rules.EntrySpanHours
	}
}

// IntervalHours returns the prompt cadence in hours, floored at one minute.
func (c *Config) IntervalHours() float64 {
	m := c.IntervalMinutes
	if m < 1 {
		m = 1
	}
	return float64(m) / 60.0
}

// Path accessors. All derived from StateDir/DataDir so a relocated
// profile only needs the two directories changed.

func (c *Config) ConfigPath() string       { return filepath.Join(c.StateDir, configFilename) }
func (c *Config) StatePath() string        { return filepath.Join(c.StateDir, "state.json") }
func (c *Config) LearnedRulesPath() string { return filepath.Join(c.StateDir, "learned_rules.json") }
func (c *Config) LockPath() string         { return filepath.Join(c.StateDir, "time_log.lock") }
func (c *Config) WorkbookPath() string     { return filepath.Join(c.DataDir, "time_log.xlsx") }
func (c *Config) ReportPath() string       { return filepath.Join(c.DataDir, "report.html") }
func (c *Config) ReflectionsDir() string   { return filepath.Join(c.DataDir, "reflections") }

// EnsureDirs creates the state and data directories if missing.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.StateDir, c.DataDir} {
		if dir == "" {
			return fmt.Errorf("config: empty directory path")
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("config: create %s: %w", dir, err)
		}
	}
	return nil
}

// Load reads the config from <stateDir>/config.yaml, layering it over the
// defaults. A missing or corrupt file falls back to defaults; the result is
// always normalized.
func Load(stateDir, dataDir string) Config {
	cfg := Default()
	cfg.StateDir = stateDir
	cfg.DataDir = dataDir

	data, err := os.ReadFile(cfg.ConfigPath())
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			// Corrupt config: keep defaults rather than refusing to start.
			cfg = Default()
		}
	}
	// Directories always come from the caller, not the file.
	cfg.StateDir = stateDir
	cfg.DataDir = dataDir
	cfg.Normalize()
	return cfg
}

// Save writes the config back to its YAML file.
func Save(cfg Config) error {
	if err := cfg.EnsureDirs(); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(cfg.ConfigPath(), data, 0644); err != nil {
		return fmt.Errorf("config: write: %w", err)
	}
	return nil
}
