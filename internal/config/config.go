package config

import (
	"bufio"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

// DSNEnv overrides database.dsn when set.
const DSNEnv = "JOURNALFEED_DATABASE_DSN"

type Config struct {
	Database    Database    `yaml:"database"`
	Feeds       []Feed      `yaml:"feeds"`
	FeedsFile   string      `yaml:"feeds_file"`
	Ingest      Ingest      `yaml:"ingest"`
	Translation Translation `yaml:"translation"`
	Scheduler   Scheduler   `yaml:"scheduler"`
	Metrics     Metrics     `yaml:"metrics"`
	Output      Output      `yaml:"output"`
	Logging     Logging     `yaml:"logging"`
}

type Database struct {
	DSN string `yaml:"dsn"`
}

type Feed struct {
	URL         string `yaml:"url"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

type Ingest struct {
	Limit          int  `yaml:"limit"`
	FetchAbstracts bool `yaml:"fetch_abstracts"`
}

type Translation struct {
	Provider          string        `yaml:"provider"`
	Model             string        `yaml:"model"`
	BaseURL           string        `yaml:"base_url"`
	OllamaURL         string        `yaml:"ollama_url"`
	APIKeyEnv         string        `yaml:"api_key_env"`
	TargetLanguage    string        `yaml:"target_language"`
	MaxTokens         int           `yaml:"max_tokens"`
	MaxAttempts       int           `yaml:"max_attempts"`
	RetryDelay        time.Duration `yaml:"retry_delay"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
}

type Scheduler struct {
	BatchSize  int           `yaml:"batch_size"`
	BatchDelay time.Duration `yaml:"batch_delay"`
	TaskDelay  time.Duration `yaml:"task_delay"`
	RetryDelay time.Duration `yaml:"retry_delay"`
	MaxCycles  int           `yaml:"max_cycles"`
}

type Metrics struct {
	PushgatewayURL string `yaml:"pushgateway_url"`
	Job            string `yaml:"job"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for journalfeed.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "journalfeed")
}

// DataDir returns the XDG data directory for journalfeed.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "journalfeed")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/journalfeed/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'journalfeed init' to create a default config",
		xdgConfig,
	)
}

// LoadEnv loads KEY=VALUE pairs from .env files into the process environment.
// Variables that are already set win. A missing file is not an error.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("loading env file: %w", err)
	}
	return nil
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := parse(data)
	if err != nil {
		return nil, err
	}

	if cfg.FeedsFile != "" && !filepath.IsAbs(cfg.FeedsFile) {
		cfg.FeedsFile = filepath.Join(filepath.Dir(path), cfg.FeedsFile)
	}
	if dsn := os.Getenv(DSNEnv); dsn != "" {
		cfg.Database.DSN = dsn
	}
	return cfg, nil
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Ingest: Ingest{
			Limit:          500,
			FetchAbstracts: true,
		},
		Translation: Translation{
			Provider:       "openai",
			Model:          "gpt-4o-mini",
			BaseURL:        "https://api.openai.com/v1",
			OllamaURL:      "http://localhost:11434",
			APIKeyEnv:      "OPENAI_API_KEY",
			TargetLanguage: "Simplified Chinese",
			MaxTokens:      2000,
			MaxAttempts:    3,
			RetryDelay:     2 * time.Second,
		},
		Scheduler: Scheduler{
			BatchSize:  10,
			BatchDelay: 30 * time.Second,
			TaskDelay:  10 * time.Second,
			RetryDelay: 5 * time.Second,
		},
		Metrics: Metrics{Job: "journalfeed"},
		Logging: Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would make the scheduler or the translator misbehave.
func (c *Config) Validate() error {
	var errs []error
	if c.Ingest.Limit <= 0 {
		errs = append(errs, fmt.Errorf("ingest.limit must be positive, got %d", c.Ingest.Limit))
	}
	if c.Translation.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("translation.max_attempts must be positive, got %d", c.Translation.MaxAttempts))
	}
	if c.Translation.RetryDelay < 0 {
		errs = append(errs, errors.New("translation.retry_delay must not be negative"))
	}
	if c.Translation.RequestsPerMinute < 0 {
		errs = append(errs, errors.New("translation.requests_per_minute must not be negative"))
	}
	if c.Scheduler.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("scheduler.batch_size must be positive, got %d", c.Scheduler.BatchSize))
	}
	if c.Scheduler.BatchDelay < 0 || c.Scheduler.TaskDelay < 0 || c.Scheduler.RetryDelay < 0 {
		errs = append(errs, errors.New("scheduler delays must not be negative"))
	}
	if c.Scheduler.MaxCycles < 0 {
		errs = append(errs, errors.New("scheduler.max_cycles must not be negative"))
	}
	return errors.Join(errs...)
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// GetDSN returns the configured database DSN, defaulting to a SQLite file in the data dir.
func (c *Config) GetDSN() string {
	if c.Database.DSN != "" {
		return c.Database.DSN
	}
	return filepath.Join(c.GetDataDir(), "journalfeed.db")
}

// AllFeeds merges feeds declared inline with the URLs listed in feeds_file.
// Inline entries win when a URL appears in both.
func (c *Config) AllFeeds() ([]Feed, error) {
	feeds := make([]Feed, 0, len(c.Feeds))
	seen := make(map[string]bool)
	for _, f := range c.Feeds {
		u := strings.TrimSpace(f.URL)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		f.URL = u
		feeds = append(feeds, f)
	}

	if c.FeedsFile == "" {
		return feeds, nil
	}
	urls, err := LoadFeedURLs(c.FeedsFile)
	if err != nil {
		return nil, err
	}
	for _, u := range urls {
		if seen[u] {
			continue
		}
		seen[u] = true
		feeds = append(feeds, Feed{URL: u})
	}
	return feeds, nil
}

// LoadFeedURLs reads one feed URL per line. Blank lines and lines starting
// with '#' are skipped; trailing ';' separators are stripped.
func LoadFeedURLs(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening feeds file: %w", err)
	}
	defer f.Close()

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimRight(line, ";"))
		if line != "" {
			urls = append(urls, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading feeds file: %w", err)
	}
	return urls, nil
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
