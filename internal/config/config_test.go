package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"nexus/internal/config"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"DATABASE_URL", "MINIO_ENDPOINT", "MINIO_ACCESS_KEY", "MINIO_SECRET_KEY", "MINIO_BUCKET",
		"LLM_API_KEY", "GEMINI_API_KEY", "OPENAI_API_KEY", "WHISPER_MODE", "WHISPER_MODEL",
		"HF_TOKEN", "HUGGING_FACE_HUB_TOKEN", "REDIS_ADDR",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	clearEnv(t)
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "nexus")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.Database.Driver != config.DatabaseSQLite {
		t.Fatalf("expected sqlite driver, got %q", cfg.Database.Driver)
	}
	if cfg.Database.DSN != filepath.Join(wantData, "nexus.db") {
		t.Fatalf("unexpected sqlite dsn: %q", cfg.Database.DSN)
	}
	if cfg.Storage.Backend != config.StorageLocal {
		t.Fatalf("expected local storage, got %q", cfg.Storage.Backend)
	}
	if cfg.Paths.APIBind != "127.0.0.1:8088" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.Embedding.Dimensions != 768 {
		t.Fatalf("expected 768 embedding dimensions, got %d", cfg.Embedding.Dimensions)
	}
	if cfg.LLM.RetryAttempts != 3 || cfg.LLM.RetryBaseSeconds != 2 || cfg.LLM.RetryMaxSeconds != 10 {
		t.Fatalf("unexpected retry defaults: %+v", cfg.LLM)
	}
	if cfg.Workflow.TaskTimeLimitSeconds != 3600 || cfg.Workflow.TaskSoftTimeLimitSeconds != 3300 {
		t.Fatalf("unexpected task limits: %+v", cfg.Workflow)
	}
	if cfg.Media.MaxFileSizeMB != 500 || cfg.Media.MaxDurationMinutes != 180 {
		t.Fatalf("unexpected media limits: %+v", cfg.Media)
	}
	if cfg.Transcription.Model != "whisper-1" {
		t.Fatalf("expected api whisper model default, got %q", cfg.Transcription.Model)
	}
	if cfg.MaxFileSizeBytes() != 500*1024*1024 {
		t.Fatalf("unexpected max file size bytes: %d", cfg.MaxFileSizeBytes())
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.LogDir, cfg.Storage.LocalDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	clearEnv(t)
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "nexus.toml")

	type payload struct {
		Paths struct {
			DataDir string `toml:"data_dir"`
		} `toml:"paths"`
		Workflow struct {
			Workers           int `toml:"workers"`
			HeartbeatInterval int `toml:"heartbeat_interval_seconds"`
			HeartbeatTimeout  int `toml:"heartbeat_timeout_seconds"`
		} `toml:"workflow"`
		Fingerprint struct {
			Method string `toml:"method"`
		} `toml:"fingerprint"`
	}
	custom := payload{}
	custom.Paths.DataDir = filepath.Join(tempDir, "data")
	custom.Workflow.Workers = 2
	custom.Workflow.HeartbeatInterval = 20
	custom.Workflow.HeartbeatTimeout = 200
	custom.Fingerprint.Method = "PCM"
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Workflow.Workers != 2 {
		t.Fatalf("expected 2 workers, got %d", cfg.Workflow.Workers)
	}
	if cfg.Workflow.HeartbeatTimeout != 200 {
		t.Fatalf("expected heartbeat timeout 200, got %d", cfg.Workflow.HeartbeatTimeout)
	}
	if cfg.Fingerprint.Method != config.FingerprintPCM {
		t.Fatalf("expected normalized pcm method, got %q", cfg.Fingerprint.Method)
	}
	if cfg.Database.DSN != filepath.Join(tempDir, "data", "nexus.db") {
		t.Fatalf("expected dsn under custom data dir, got %q", cfg.Database.DSN)
	}
}

func TestEnvFallbacks(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOME", t.TempDir())
	t.Setenv("DATABASE_URL", "postgres://nexus:secret@db:5432/nexus")
	t.Setenv("MINIO_ENDPOINT", "minio:9000")
	t.Setenv("MINIO_BUCKET", "archive")
	t.Setenv("GEMINI_API_KEY", "gemini-key")
	t.Setenv("WHISPER_MODE", "local")

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Database.Driver != config.DatabasePostgres {
		t.Fatalf("expected postgres driver from DATABASE_URL, got %q", cfg.Database.Driver)
	}
	if cfg.Storage.Endpoint != "http://minio:9000" {
		t.Fatalf("expected endpoint with scheme, got %q", cfg.Storage.Endpoint)
	}
	if cfg.Storage.Bucket != "archive" {
		t.Fatalf("expected bucket from env, got %q", cfg.Storage.Bucket)
	}
	if cfg.LLM.APIKey != "gemini-key" {
		t.Fatalf("expected llm key from env, got %q", cfg.LLM.APIKey)
	}
	if cfg.Transcription.Mode != config.TranscriptionLocal || cfg.Transcription.Model != "large-v3-turbo" {
		t.Fatalf("expected local whisperx defaults, got %+v", cfg.Transcription)
	}
	if got := cfg.EmbeddingLLM().APIKey; got != "gemini-key" {
		t.Fatalf("expected embedding key to fall back to llm key, got %q", got)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "[subscriptions]") {
		t.Fatalf("sample config missing subscriptions section: %s", contents)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if !strings.Contains(cfg.Paths.DataDir, "nexus") {
		t.Fatalf("expected data dir to contain nexus, got %q", cfg.Paths.DataDir)
	}
	if cfg.Workflow.TaskSoftTimeLimitSeconds != 3300 {
		t.Fatalf("expected soft limit in sample, got %d", cfg.Workflow.TaskSoftTimeLimitSeconds)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	cases := map[string]func(*config.Config){
		"heartbeat interval": func(c *config.Config) { c.Workflow.HeartbeatInterval = 0 },
		"timeout <= interval": func(c *config.Config) {
			c.Workflow.HeartbeatTimeout = c.Workflow.HeartbeatInterval
		},
		"soft limit above hard": func(c *config.Config) { c.Workflow.TaskSoftTimeLimitSeconds = 4000 },
		"unknown driver":        func(c *config.Config) { c.Database.Driver = "mysql" },
		"postgres without dsn":  func(c *config.Config) { c.Database.Driver = config.DatabasePostgres },
		"unknown backend":       func(c *config.Config) { c.Storage.Backend = "gcs" },
		"half credentials": func(c *config.Config) {
			c.Storage.Backend = config.StorageS3
			c.Storage.AccessKey = "only-access"
		},
		"unknown transcription": func(c *config.Config) { c.Transcription.Mode = "cloud" },
		"unknown fingerprint":   func(c *config.Config) { c.Fingerprint.Method = "md5" },
		"bad schedule":          func(c *config.Config) { c.Subscriptions.SweepSchedule = "every day" },
		"item bounds":           func(c *config.Config) { c.Subscriptions.MaxItems = 2 },
	}
	for name, mutate := range cases {
		cfg := config.Default()
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}

	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
}
