package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeDatabase(); err != nil {
		return err
	}
	if err := c.normalizeStorage(); err != nil {
		return err
	}
	c.normalizeLLM()
	c.normalizeEmbedding()
	c.normalizeTranscription()
	c.normalizeMedia()
	c.normalizeFingerprint()
	c.normalizeWorkflow()
	c.normalizeSubscriptions()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.TempDir) == "" {
		c.Paths.TempDir = defaultTempDir
	}
	if c.Paths.TempDir, err = expandPath(c.Paths.TempDir); err != nil {
		return fmt.Errorf("paths.temp_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		c.Paths.APIToken = strings.TrimSpace(os.Getenv("NEXUS_API_TOKEN"))
	}
	return nil
}

func (c *Config) normalizeDatabase() error {
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	c.Database.DSN = strings.TrimSpace(c.Database.DSN)
	if c.Database.DSN == "" {
		if value, ok := os.LookupEnv("DATABASE_URL"); ok && strings.TrimSpace(value) != "" {
			c.Database.DSN = strings.TrimSpace(value)
			if looksLikePostgres(c.Database.DSN) {
				c.Database.Driver = DatabasePostgres
			}
		}
	}
	switch c.Database.Driver {
	case "", "sqlite3":
		c.Database.Driver = DatabaseSQLite
	case "postgresql", "pgx":
		c.Database.Driver = DatabasePostgres
	}
	if c.Database.Driver == DatabaseSQLite {
		if c.Database.DSN == "" {
			c.Database.DSN = filepath.Join(c.Paths.DataDir, "nexus.db")
		} else if c.Database.DSN != ":memory:" {
			expanded, err := expandPath(c.Database.DSN)
			if err != nil {
				return fmt.Errorf("database.dsn: %w", err)
			}
			c.Database.DSN = expanded
		}
	}
	return nil
}

func looksLikePostgres(dsn string) bool {
	lower := strings.ToLower(dsn)
	return strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://")
}

func (c *Config) normalizeStorage() error {
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend == "" || c.Storage.Backend == "minio" {
		if c.Storage.Backend == "minio" {
			c.Storage.Backend = StorageS3
		} else {
			c.Storage.Backend = StorageLocal
		}
	}
	lookup := func(field *string, envKey string) {
		*field = strings.TrimSpace(*field)
		if *field != "" {
			return
		}
		if value, ok := os.LookupEnv(envKey); ok {
			*field = strings.TrimSpace(value)
		}
	}
	lookup(&c.Storage.Endpoint, "MINIO_ENDPOINT")
	lookup(&c.Storage.AccessKey, "MINIO_ACCESS_KEY")
	lookup(&c.Storage.SecretKey, "MINIO_SECRET_KEY")
	lookup(&c.Storage.Bucket, "MINIO_BUCKET")
	if c.Storage.Bucket == "" {
		c.Storage.Bucket = defaultBucket
	}
	c.Storage.Region = strings.TrimSpace(c.Storage.Region)
	if c.Storage.Region == "" {
		c.Storage.Region = defaultRegion
	}
	if c.Storage.Endpoint != "" && !strings.Contains(c.Storage.Endpoint, "://") {
		c.Storage.Endpoint = "http://" + c.Storage.Endpoint
	}
	if strings.TrimSpace(c.Storage.LocalDir) == "" {
		c.Storage.LocalDir = filepath.Join(c.Paths.DataDir, "blobs")
	}
	var err error
	if c.Storage.LocalDir, err = expandPath(c.Storage.LocalDir); err != nil {
		return fmt.Errorf("storage.local_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeLLM() {
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
	c.LLM.Referer = strings.TrimSpace(c.LLM.Referer)
	if c.LLM.Referer == "" {
		c.LLM.Referer = defaultLLMReferer
	}
	c.LLM.Title = strings.TrimSpace(c.LLM.Title)
	if c.LLM.Title == "" {
		c.LLM.Title = defaultLLMTitle
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
	if c.LLM.RetryAttempts <= 0 {
		c.LLM.RetryAttempts = defaultRetryAttempts
	}
	if c.LLM.RetryBaseSeconds <= 0 {
		c.LLM.RetryBaseSeconds = defaultRetryBaseSeconds
	}
	if c.LLM.RetryMaxSeconds <= 0 {
		c.LLM.RetryMaxSeconds = defaultRetryMaxSeconds
	}
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		for _, key := range []string{"LLM_API_KEY", "GEMINI_API_KEY", "OPENAI_API_KEY"} {
			if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
				c.LLM.APIKey = strings.TrimSpace(value)
				break
			}
		}
	}
}

func (c *Config) normalizeEmbedding() {
	c.Embedding.APIKey = strings.TrimSpace(c.Embedding.APIKey)
	c.Embedding.BaseURL = strings.TrimSpace(c.Embedding.BaseURL)
	c.Embedding.Model = strings.TrimSpace(c.Embedding.Model)
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = defaultEmbeddingDimensions
	}
}

func (c *Config) normalizeTranscription() {
	c.Transcription.Mode = strings.ToLower(strings.TrimSpace(c.Transcription.Mode))
	if value, ok := os.LookupEnv("WHISPER_MODE"); ok && strings.TrimSpace(value) != "" {
		c.Transcription.Mode = strings.ToLower(strings.TrimSpace(value))
	}
	if c.Transcription.Mode == "" {
		c.Transcription.Mode = TranscriptionAPI
	}
	c.Transcription.Model = strings.TrimSpace(c.Transcription.Model)
	if value, ok := os.LookupEnv("WHISPER_MODEL"); ok && strings.TrimSpace(value) != "" {
		c.Transcription.Model = strings.TrimSpace(value)
	}
	if c.Transcription.Model == "" {
		if c.Transcription.Mode == TranscriptionLocal {
			c.Transcription.Model = defaultLocalWhisperModel
		} else {
			c.Transcription.Model = defaultTranscriptionModel
		}
	}
	c.Transcription.BaseURL = strings.TrimRight(strings.TrimSpace(c.Transcription.BaseURL), "/")
	if c.Transcription.BaseURL == "" {
		c.Transcription.BaseURL = defaultTranscriptionBaseURL
	}
	c.Transcription.APIKey = strings.TrimSpace(c.Transcription.APIKey)
	if c.Transcription.APIKey == "" {
		if value, ok := os.LookupEnv("OPENAI_API_KEY"); ok {
			c.Transcription.APIKey = strings.TrimSpace(value)
		}
	}
	c.Transcription.Language = strings.ToLower(strings.TrimSpace(c.Transcription.Language))
	c.Transcription.VADMethod = strings.ToLower(strings.TrimSpace(c.Transcription.VADMethod))
	if c.Transcription.VADMethod == "" {
		c.Transcription.VADMethod = defaultVADMethod
	}
	c.Transcription.HFToken = strings.TrimSpace(c.Transcription.HFToken)
	if c.Transcription.HFToken == "" {
		if value, ok := os.LookupEnv("HUGGING_FACE_HUB_TOKEN"); ok {
			c.Transcription.HFToken = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv("HF_TOKEN"); ok {
			c.Transcription.HFToken = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeMedia() {
	if c.Media.MaxFileSizeMB <= 0 {
		c.Media.MaxFileSizeMB = defaultMaxFileSizeMB
	}
	if c.Media.MaxDurationMinutes <= 0 {
		c.Media.MaxDurationMinutes = defaultMaxDurationMinutes
	}
	if c.Media.DownloadTimeoutSeconds <= 0 {
		c.Media.DownloadTimeoutSeconds = defaultDownloadTimeoutSeconds
	}
	c.Media.YTDLPBinary = defaultString(c.Media.YTDLPBinary, "yt-dlp")
	c.Media.FFmpegBinary = defaultString(c.Media.FFmpegBinary, "ffmpeg")
	c.Media.FFprobeBinary = defaultString(c.Media.FFprobeBinary, "ffprobe")
}

func (c *Config) normalizeFingerprint() {
	c.Fingerprint.Method = strings.ToLower(strings.TrimSpace(c.Fingerprint.Method))
	if c.Fingerprint.Method == "" {
		c.Fingerprint.Method = FingerprintChromaprint
	}
	c.Fingerprint.FpcalcBinary = defaultString(c.Fingerprint.FpcalcBinary, "fpcalc")
	if c.Fingerprint.Length <= 0 {
		c.Fingerprint.Length = defaultFingerprintLength
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.Workers <= 0 {
		c.Workflow.Workers = defaultWorkers
	}
	if c.Workflow.MaxTaskRetries < 0 {
		c.Workflow.MaxTaskRetries = 0
	}
}

func (c *Config) normalizeSubscriptions() {
	c.Subscriptions.SweepSchedule = defaultString(c.Subscriptions.SweepSchedule, defaultSweepSchedule)
	c.Subscriptions.UserAgent = defaultString(c.Subscriptions.UserAgent, defaultUserAgent)
	if c.Subscriptions.StaleAfterHours <= 0 {
		c.Subscriptions.StaleAfterHours = defaultStaleAfterHours
	}
	if c.Subscriptions.DigestEntryLimit <= 0 {
		c.Subscriptions.DigestEntryLimit = defaultDigestEntryLimit
	}
	if c.Subscriptions.FeedEntryLimit <= 0 {
		c.Subscriptions.FeedEntryLimit = defaultFeedEntryLimit
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	c.Notifications.RedisAddr = strings.TrimSpace(c.Notifications.RedisAddr)
	if c.Notifications.RedisAddr == "" {
		if value, ok := os.LookupEnv("REDIS_ADDR"); ok {
			c.Notifications.RedisAddr = strings.TrimSpace(value)
		}
	}
	c.Notifications.RedisChannel = defaultString(c.Notifications.RedisChannel, defaultRedisChannel)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "console", "json", "auto":
	default:
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func defaultString(value, fallback string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	return value
}
