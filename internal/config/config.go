package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
)

// Config holds the tuning knobs of the resource resolution engine and the CLI.
type Config struct {
	CacheTTL        Duration `json:"cacheTTL" yaml:"cacheTTL"`
	CacheMaxEntries int      `json:"cacheMaxEntries" yaml:"cacheMaxEntries"`
	SweepInterval   Duration `json:"sweepInterval" yaml:"sweepInterval"`
	BatchSize       int      `json:"batchSize" yaml:"batchSize"`
	RetryLimit      int      `json:"retryLimit" yaml:"retryLimit"`
	RetryBackoff    Duration `json:"retryBackoff" yaml:"retryBackoff"`
	MaxResults      int      `json:"maxResults" yaml:"maxResults"`
	ResolveTimeout  Duration `json:"resolveTimeout" yaml:"resolveTimeout"`
	LogLevel        string   `json:"logLevel,omitempty" yaml:"logLevel,omitempty"`
	LogFile         string   `json:"logFile,omitempty" yaml:"logFile,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		CacheTTL:        Duration(5 * time.Minute),
		CacheMaxEntries: 50,
		SweepInterval:   Duration(time.Minute),
		BatchSize:       10,
		RetryLimit:      2,
		RetryBackoff:    Duration(time.Second),
		MaxResults:      1000,
		ResolveTimeout:  Duration(10 * time.Second),
		LogLevel:        "WARN",
	}
}

// Load loads configuration from multiple sources (priority order):
// 1. Built-in defaults
// 2. Global config (~/.config/agentctx/)
// 3. Project config (.agentctx/)
// 4. AGENTCTX_CONFIG file
// 5. Environment variables
func Load(directory string) (*Config, error) {
	cfg := Default()
	loaded := make(map[string]bool)

	loadOnce := func(path string) error {
		absPath, err := filepath.Abs(path)
		if err != nil || loaded[absPath] {
			return nil
		}
		if err := loadConfigFile(path, cfg); err != nil {
			return err
		}
		loaded[absPath] = true
		return nil
	}

	globalDir := GetPaths().Config
	candidates := []string{
		filepath.Join(globalDir, "agentctx.json"),
		filepath.Join(globalDir, "agentctx.jsonc"),
	}
	if directory != "" {
		projectDir := filepath.Join(directory, ".agentctx")
		candidates = append(candidates,
			filepath.Join(projectDir, "agentctx.json"),
			filepath.Join(projectDir, "agentctx.jsonc"),
		)
	}
	for _, path := range candidates {
		if err := loadOnce(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	// An explicitly named file must exist.
	if configPath := os.Getenv("AGENTCTX_CONFIG"); configPath != "" {
		if err := loadOnce(configPath); err != nil {
			return nil, fmt.Errorf("load %s: %w", configPath, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadConfigFile merges a single JSON/JSONC file into cfg.
// Fields absent from the file keep their current value.
func loadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	data = jsonc.ToJSON(data)
	data = interpolateEnv(data)

	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

var envPlaceholder = regexp.MustCompile(`\{env:([^}]+)\}`)

// interpolateEnv expands {env:VAR} placeholders.
func interpolateEnv(data []byte) []byte {
	return envPlaceholder.ReplaceAllFunc(data, func(match []byte) []byte {
		name := envPlaceholder.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(name)))
	})
}

// applyEnvOverrides applies AGENTCTX_* environment variable overrides.
func applyEnvOverrides(cfg *Config) error {
	durations := map[string]*Duration{
		"AGENTCTX_CACHE_TTL":       &cfg.CacheTTL,
		"AGENTCTX_SWEEP_INTERVAL":  &cfg.SweepInterval,
		"AGENTCTX_RETRY_BACKOFF":   &cfg.RetryBackoff,
		"AGENTCTX_RESOLVE_TIMEOUT": &cfg.ResolveTimeout,
	}
	for env, target := range durations {
		if v := os.Getenv(env); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", env, err)
			}
			*target = Duration(d)
		}
	}

	ints := map[string]*int{
		"AGENTCTX_CACHE_MAX_ENTRIES": &cfg.CacheMaxEntries,
		"AGENTCTX_BATCH_SIZE":        &cfg.BatchSize,
		"AGENTCTX_RETRY_LIMIT":       &cfg.RetryLimit,
		"AGENTCTX_MAX_RESULTS":       &cfg.MaxResults,
	}
	for env, target := range ints {
		if v := os.Getenv(env); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", env, err)
			}
			*target = n
		}
	}

	if level := os.Getenv("AGENTCTX_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}
	if file := os.Getenv("AGENTCTX_LOG_FILE"); file != "" {
		cfg.LogFile = file
	}
	return nil
}

// Validate reports the first out-of-range setting.
func (c *Config) Validate() error {
	switch {
	case c.CacheTTL <= 0:
		return errors.New("cacheTTL must be positive")
	case c.CacheMaxEntries <= 0:
		return errors.New("cacheMaxEntries must be positive")
	case c.SweepInterval <= 0:
		return errors.New("sweepInterval must be positive")
	case c.BatchSize <= 0:
		return errors.New("batchSize must be positive")
	case c.RetryLimit < 0:
		return errors.New("retryLimit must not be negative")
	case c.RetryBackoff < 0:
		return errors.New("retryBackoff must not be negative")
	case c.MaxResults <= 0:
		return errors.New("maxResults must be positive")
	case c.ResolveTimeout <= 0:
		return errors.New("resolveTimeout must be positive")
	}
	return nil
}

// Duration is a time.Duration that reads "5m"-style strings or integer
// milliseconds from JSON and writes the string form.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		parsed, err := time.ParseDuration(str)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
		return nil
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid duration %s", s)
	}
	*d = Duration(time.Duration(ms) * time.Millisecond)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}
