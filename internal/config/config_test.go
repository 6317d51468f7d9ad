package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseDefaultConfig(t *testing.T) {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		t.Fatalf("failed to parse default config: %v", err)
	}

	if len(cfg.Feeds) == 0 {
		t.Error("expected feeds to be populated")
	}
	if cfg.Translation.Provider != "openai" {
		t.Errorf("expected provider 'openai', got %q", cfg.Translation.Provider)
	}
	if cfg.Scheduler.BatchSize != 10 {
		t.Errorf("expected batch size 10, got %d", cfg.Scheduler.BatchSize)
	}
	if cfg.Scheduler.BatchDelay != 30*time.Second {
		t.Errorf("expected batch delay 30s, got %v", cfg.Scheduler.BatchDelay)
	}
	if cfg.Scheduler.TaskDelay != 10*time.Second {
		t.Errorf("expected task delay 10s, got %v", cfg.Scheduler.TaskDelay)
	}
	if cfg.Translation.RetryDelay != 2*time.Second {
		t.Errorf("expected retry delay 2s, got %v", cfg.Translation.RetryDelay)
	}
}

func TestParseMinimalConfig(t *testing.T) {
	data := []byte(`
translation:
  provider: ollama
  model: qwen2.5:7b
scheduler:
  batch_size: 4
  task_delay: 1500ms
`)
	cfg, err := parse(data)
	if err != nil {
		t.Fatalf("failed to parse minimal config: %v", err)
	}

	if cfg.Translation.Provider != "ollama" {
		t.Errorf("expected provider 'ollama', got %q", cfg.Translation.Provider)
	}
	if cfg.Scheduler.BatchSize != 4 {
		t.Errorf("expected batch size 4, got %d", cfg.Scheduler.BatchSize)
	}
	if cfg.Scheduler.TaskDelay != 1500*time.Millisecond {
		t.Errorf("expected task delay 1.5s, got %v", cfg.Scheduler.TaskDelay)
	}
	// Defaults should still be set for unspecified fields
	if cfg.Scheduler.BatchDelay != 30*time.Second {
		t.Errorf("expected default batch delay, got %v", cfg.Scheduler.BatchDelay)
	}
	if cfg.Translation.MaxAttempts != 3 {
		t.Errorf("expected default max attempts 3, got %d", cfg.Translation.MaxAttempts)
	}
}

func TestParseRejectsInvalidValues(t *testing.T) {
	data := []byte(`
scheduler:
  batch_size: 0
translation:
  max_attempts: -1
`)
	_, err := parse(data)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "batch_size") || !strings.Contains(err.Error(), "max_attempts") {
		t.Errorf("expected both problems reported, got %v", err)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, DefaultConfigYAML, 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if len(cfg.Feeds) == 0 {
		t.Error("expected feeds to be populated from file")
	}
}

func TestLoadDSNFromEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("database:\n  dsn: /tmp/a.db\n"), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	t.Setenv(DSNEnv, "postgres://u:p@localhost/journals")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.GetDSN() != "postgres://u:p@localhost/journals" {
		t.Errorf("expected env DSN, got %q", cfg.GetDSN())
	}
}

func TestLoadFeedURLs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rss.txt")
	content := "https://www.mdpi.com/rss/journal/remotesensing;\n\n# comment\n  https://www.mdpi.com/rss/journal/sensors ;;\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write feeds file: %v", err)
	}

	urls, err := LoadFeedURLs(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{
		"https://www.mdpi.com/rss/journal/remotesensing",
		"https://www.mdpi.com/rss/journal/sensors",
	}
	if len(urls) != len(want) {
		t.Fatalf("expected %d urls, got %d: %v", len(want), len(urls), urls)
	}
	for i := range want {
		if urls[i] != want[i] {
			t.Errorf("url %d: expected %q, got %q", i, want[i], urls[i])
		}
	}
}

func TestAllFeedsMergesFileAndInline(t *testing.T) {
	dir := t.TempDir()
	feedsPath := filepath.Join(dir, "rss.txt")
	content := "https://a.example/rss\nhttps://b.example/rss;\n"
	if err := os.WriteFile(feedsPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write feeds file: %v", err)
	}

	cfg := &Config{
		Feeds:     []Feed{{URL: "https://a.example/rss", Name: "A Journal"}},
		FeedsFile: feedsPath,
	}
	feeds, err := cfg.AllFeeds()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(feeds) != 2 {
		t.Fatalf("expected 2 feeds, got %d", len(feeds))
	}
	if feeds[0].Name != "A Journal" {
		t.Errorf("expected inline name to win, got %q", feeds[0].Name)
	}
	if feeds[1].URL != "https://b.example/rss" {
		t.Errorf("unexpected second feed %q", feeds[1].URL)
	}
}

func TestLoadEnvMissingFile(t *testing.T) {
	if err := LoadEnv(filepath.Join(t.TempDir(), "nope.env")); err != nil {
		t.Errorf("expected missing env file to be ignored, got %v", err)
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("JOURNALFEED_TEST_KEY=secret\n"), 0o644); err != nil {
		t.Fatalf("failed to write env file: %v", err)
	}
	t.Setenv("JOURNALFEED_TEST_KEY", "")
	os.Unsetenv("JOURNALFEED_TEST_KEY")

	if err := LoadEnv(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := os.Getenv("JOURNALFEED_TEST_KEY"); got != "secret" {
		t.Errorf("expected env var loaded, got %q", got)
	}
}

func TestGetDataDir(t *testing.T) {
	cfg := &Config{}
	defaultDir := cfg.GetDataDir()
	if defaultDir == "" {
		t.Error("expected non-empty default data dir")
	}

	cfg.Output.DataDir = "/custom/path"
	if cfg.GetDataDir() != "/custom/path" {
		t.Errorf("expected '/custom/path', got %q", cfg.GetDataDir())
	}
	if cfg.GetDSN() != filepath.Join("/custom/path", "journalfeed.db") {
		t.Errorf("unexpected default DSN %q", cfg.GetDSN())
	}
}
