package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	TempDir  string `toml:"temp_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	// APIToken, when set, is required as a bearer token on /api routes.
	APIToken string `toml:"api_token"`
}

// Database selects the durable store backend.
type Database struct {
	Driver string `toml:"driver"`
	DSN    string `toml:"dsn"`
}

// Storage configures the blob store holding normalized audio.
type Storage struct {
	Backend      string `toml:"backend"`
	LocalDir     string `toml:"local_dir"`
	Bucket       string `toml:"bucket"`
	Region       string `toml:"region"`
	Endpoint     string `toml:"endpoint"`
	AccessKey    string `toml:"access_key"`
	SecretKey    string `toml:"secret_key"`
	UsePathStyle bool   `toml:"use_path_style"`
}

// LLM contains chat-completion connection settings used for enrichment.
type LLM struct {
	APIKey           string `toml:"api_key"`
	BaseURL          string `toml:"base_url"`
	Model            string `toml:"model"`
	Referer          string `toml:"referer"`
	Title            string `toml:"title"`
	TimeoutSeconds   int    `toml:"timeout_seconds"`
	RetryAttempts    int    `toml:"retry_attempts"`
	RetryBaseSeconds int    `toml:"retry_base_seconds"`
	RetryMaxSeconds  int    `toml:"retry_max_seconds"`
}

// Embedding contains the embeddings endpoint settings. Empty fields fall back to [llm].
type Embedding struct {
	APIKey     string `toml:"api_key"`
	BaseURL    string `toml:"base_url"`
	Model      string `toml:"model"`
	Dimensions int    `toml:"dimensions"`
}

// Transcription selects and configures the speech-to-text backend.
type Transcription struct {
	Mode        string `toml:"mode"`
	Model       string `toml:"model"`
	APIKey      string `toml:"api_key"`
	BaseURL     string `toml:"base_url"`
	Language    string `toml:"language"`
	CUDAEnabled bool   `toml:"cuda_enabled"`
	VADMethod   string `toml:"vad_method"`
	HFToken     string `toml:"hf_token"`
}

// Media contains limits and tool locations for audio extraction.
type Media struct {
	MaxFileSizeMB          int    `toml:"max_file_size_mb"`
	MaxDurationMinutes     int    `toml:"max_duration_minutes"`
	YTDLPBinary            string `toml:"ytdlp_binary"`
	FFmpegBinary           string `toml:"ffmpeg_binary"`
	FFprobeBinary          string `toml:"ffprobe_binary"`
	DownloadTimeoutSeconds int    `toml:"download_timeout_seconds"`
}

// Fingerprint configures audio fingerprinting for duplicate detection.
type Fingerprint struct {
	Method       string `toml:"method"`
	FpcalcBinary string `toml:"fpcalc_binary"`
	Length       int    `toml:"length"`
}

// Workflow contains task queue sizing, timing and limits.
type Workflow struct {
	Workers                  int `toml:"workers"`
	PollIntervalSeconds      int `toml:"poll_interval_seconds"`
	ErrorRetryInterval       int `toml:"error_retry_interval_seconds"`
	TaskTimeLimitSeconds     int `toml:"task_time_limit_seconds"`
	TaskSoftTimeLimitSeconds int `toml:"task_soft_time_limit_seconds"`
	HeartbeatInterval        int `toml:"heartbeat_interval_seconds"`
	HeartbeatTimeout         int `toml:"heartbeat_timeout_seconds"`
	MaxTaskRetries           int `toml:"max_task_retries"`
}

// Subscriptions contains sync and sweep tuning.
type Subscriptions struct {
	SweepSchedule    string `toml:"sweep_schedule"`
	StaleAfterHours  int    `toml:"stale_after_hours"`
	DigestEntryLimit int    `toml:"digest_entry_limit"`
	FeedEntryLimit   int    `toml:"feed_entry_limit"`
	MinItems         int    `toml:"min_items"`
	MaxItems         int    `toml:"max_items"`
	UserAgent        string `toml:"user_agent"`
}

// Notifications contains configuration for ntfy alerts and redis job events.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	RedisAddr      string `toml:"redis_addr"`
	RedisPassword  string `toml:"redis_password"`
	RedisDB        int    `toml:"redis_db"`
	RedisChannel   string `toml:"redis_channel"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for nexus.
type Config struct {
	Paths         Paths         `toml:"paths"`
	Database      Database      `toml:"database"`
	Storage       Storage       `toml:"storage"`
	LLM           LLM           `toml:"llm"`
	Embedding     Embedding     `toml:"embedding"`
	Transcription Transcription `toml:"transcription"`
	Media         Media         `toml:"media"`
	Fingerprint   Fingerprint   `toml:"fingerprint"`
	Workflow      Workflow      `toml:"workflow"`
	Subscriptions Subscriptions `toml:"subscriptions"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and environment fallbacks applied.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("nexus.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.DataDir, c.Paths.TempDir, c.Paths.LogDir}
	if c.Storage.Backend == StorageLocal {
		dirs = append(dirs, c.Storage.LocalDir)
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// MaxFileSizeBytes returns the upload ceiling in bytes.
func (c *Config) MaxFileSizeBytes() int64 {
	return int64(c.Media.MaxFileSizeMB) * 1024 * 1024
}

// MaxDuration returns the longest accepted media duration.
func (c *Config) MaxDuration() time.Duration {
	return time.Duration(c.Media.MaxDurationMinutes) * time.Minute
}

// SoftTimeLimit returns the per-task graceful abort deadline.
func (c *Config) SoftTimeLimit() time.Duration {
	return time.Duration(c.Workflow.TaskSoftTimeLimitSeconds) * time.Second
}

// HardTimeLimit returns the per-task wall-clock ceiling.
func (c *Config) HardTimeLimit() time.Duration {
	return time.Duration(c.Workflow.TaskTimeLimitSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// LLMConfig contains resolved connection settings for one HTTP model endpoint.
type LLMConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	Referer        string
	Title          string
	TimeoutSeconds int
}

// GetLLM returns the chat-completion connection settings.
func (c *Config) GetLLM() LLMConfig {
	return LLMConfig{
		APIKey:         strings.TrimSpace(c.LLM.APIKey),
		BaseURL:        strings.TrimSpace(c.LLM.BaseURL),
		Model:          strings.TrimSpace(c.LLM.Model),
		Referer:        strings.TrimSpace(c.LLM.Referer),
		Title:          strings.TrimSpace(c.LLM.Title),
		TimeoutSeconds: c.LLM.TimeoutSeconds,
	}
}

// EmbeddingLLM returns the embeddings endpoint settings.
// Falls back to [llm] connection details when not explicitly configured.
func (c *Config) EmbeddingLLM() LLMConfig {
	cfg := LLMConfig{
		APIKey:         strings.TrimSpace(c.Embedding.APIKey),
		BaseURL:        strings.TrimSpace(c.Embedding.BaseURL),
		Model:          strings.TrimSpace(c.Embedding.Model),
		Referer:        strings.TrimSpace(c.LLM.Referer),
		Title:          strings.TrimSpace(c.LLM.Title),
		TimeoutSeconds: c.LLM.TimeoutSeconds,
	}
	if cfg.APIKey == "" {
		cfg.APIKey = strings.TrimSpace(c.LLM.APIKey)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultEmbeddingBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultEmbeddingModel
	}
	return cfg
}

// RetryBackoff returns the enrichment retry bounds.
func (c *Config) RetryBackoff() (time.Duration, time.Duration) {
	return time.Duration(c.LLM.RetryBaseSeconds) * time.Second, time.Duration(c.LLM.RetryMaxSeconds) * time.Second
}
