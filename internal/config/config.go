// Package config provides configuration loading and path management for the
// dayplan engine.
//
// Sources, lowest to highest priority:
//  1. built-in defaults
//  2. dayplan.yaml in the XDG config directory
//  3. dayplan.yaml in the working directory
//  4. a .env file in the working directory
//  5. environment variables (DAYPLAN_*, OPENAI_API_KEY)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// LLM configures the completion service client.
type LLM struct {
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"-"`
	BaseURL     string  `yaml:"base_url"`
	Temperature float64 `yaml:"temperature"`
	// TimeoutSeconds bounds each completion attempt.
	TimeoutSeconds float64 `yaml:"timeout_seconds"`
}

// Retry configures the backoff policy around completion calls.
type Retry struct {
	MaxAttempts         int     `yaml:"max_attempts"`
	BaseDelaySeconds    float64 `yaml:"base_delay_seconds"`
	MaxDelaySeconds     float64 `yaml:"max_delay_seconds"`
	ExponentialBase     float64 `yaml:"exponential_base"`
	RateLimitMultiplier float64 `yaml:"rate_limit_multiplier"`
	TimeoutWaitSeconds  float64 `yaml:"timeout_wait_seconds"`
}

// Storage configures the durable store.
type Storage struct {
	SessionsDir       string  `yaml:"sessions_dir"`
	ProfilesDir       string  `yaml:"profiles_dir"`
	MinFreeBytes      uint64  `yaml:"min_free_bytes"`
	TempMaxAgeMinutes float64 `yaml:"temp_max_age_minutes"`
}

// Config is the full engine configuration.
type Config struct {
	LLM     LLM     `yaml:"llm"`
	Retry   Retry   `yaml:"retry"`
	Storage Storage `yaml:"storage"`
	// ContextWindow bounds the conversation window sent per turn; zero
	// sends the full history.
	ContextWindow int `yaml:"context_window"`
	// Directive overrides the instruction seeded into new sessions.
	Directive string `yaml:"directive"`
	UserID    string `yaml:"user_id"`
}

// Default returns the built-in configuration.
func Default() *Config {
	paths := GetPaths()
	return &Config{
		LLM: LLM{
			Model:          "gpt-4o-mini",
			Temperature:    0.7,
			TimeoutSeconds: 60,
		},
		Retry: Retry{
			MaxAttempts:         3,
			BaseDelaySeconds:    1,
			MaxDelaySeconds:     60,
			ExponentialBase:     2,
			RateLimitMultiplier: 2,
			TimeoutWaitSeconds:  2,
		},
		Storage: Storage{
			SessionsDir:       paths.SessionsDir(),
			ProfilesDir:       paths.ProfilesDir(),
			MinFreeBytes:      1 << 20,
			TempMaxAgeMinutes: 60,
		},
		UserID: "default",
	}
}

// Load builds the configuration from all sources. directory is the working
// directory searched for local overrides; empty means the current
// directory.
func Load(directory string) (*Config, error) {
	cfg := Default()

	if directory == "" {
		directory = "."
	}

	globalPath := filepath.Join(GetPaths().Config, "dayplan.yaml")
	if err := loadFile(globalPath, cfg); err != nil {
		return nil, err
	}
	if err := loadFile(filepath.Join(directory, "dayplan.yaml"), cfg); err != nil {
		return nil, err
	}

	// .env is optional; missing files are fine.
	_ = godotenv.Load(filepath.Join(directory, ".env"))

	applyEnvOverrides(cfg)
	return cfg, nil
}

// loadFile merges a YAML config file into cfg. A missing file is not an
// error; an unreadable one is.
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("DAYPLAN_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("DAYPLAN_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("DAYPLAN_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("DAYPLAN_SESSIONS_DIR"); v != "" {
		cfg.Storage.SessionsDir = v
	}
	if v := os.Getenv("DAYPLAN_PROFILES_DIR"); v != "" {
		cfg.Storage.ProfilesDir = v
	}
	if v := os.Getenv("DAYPLAN_USER"); v != "" {
		cfg.UserID = v
	}
	if v := os.Getenv("DAYPLAN_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Retry.MaxAttempts = n
		}
	}
	if v := os.Getenv("DAYPLAN_CONTEXT_WINDOW"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.ContextWindow = n
		}
	}
}

// Timeout returns the per-attempt completion timeout.
func (l LLM) Timeout() time.Duration {
	return time.Duration(l.TimeoutSeconds * float64(time.Second))
}

// BaseDelay returns the initial backoff delay.
func (r Retry) BaseDelay() time.Duration {
	return time.Duration(r.BaseDelaySeconds * float64(time.Second))
}

// MaxDelay returns the backoff cap.
func (r Retry) MaxDelay() time.Duration {
	return time.Duration(r.MaxDelaySeconds * float64(time.Second))
}

// TimeoutWait returns the fixed wait applied after timeout-classified
// errors.
func (r Retry) TimeoutWait() time.Duration {
	return time.Duration(r.TimeoutWaitSeconds * float64(time.Second))
}

// TempMaxAge returns the stale temp-file age for the startup sweep.
func (s Storage) TempMaxAge() time.Duration {
	return time.Duration(s.TempMaxAgeMinutes * float64(time.Minute))
}
