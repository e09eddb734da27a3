package config

const (
	defaultConfigPath = "~/.config/nexus/config.toml"

	defaultDataDir = "~/.local/share/nexus"
	defaultTempDir = "/tmp/nexus"
	defaultLogDir  = "~/.local/share/nexus/logs"
	defaultAPIBind = "127.0.0.1:8088"

	DatabaseSQLite   = "sqlite"
	DatabasePostgres = "postgres"

	StorageLocal = "local"
	StorageS3    = "s3"

	TranscriptionAPI   = "api"
	TranscriptionLocal = "local"

	FingerprintChromaprint = "chromaprint"
	FingerprintPCM         = "pcm"

	defaultLocalBlobDir = "~/.local/share/nexus/blobs"
	defaultBucket       = "nexus-media"
	defaultRegion       = "us-east-1"

	defaultLLMBaseURL        = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel          = "google/gemini-2.5-flash"
	defaultLLMReferer        = "https://github.com/nexus-archive/nexus"
	defaultLLMTitle          = "Nexus Enrichment"
	defaultLLMTimeoutSeconds = 60
	defaultRetryAttempts     = 3
	defaultRetryBaseSeconds  = 2
	defaultRetryMaxSeconds   = 10

	defaultEmbeddingBaseURL    = "https://api.openai.com/v1/embeddings"
	defaultEmbeddingModel      = "text-embedding-3-small"
	defaultEmbeddingDimensions = 768

	defaultTranscriptionBaseURL = "https://api.openai.com/v1"
	defaultTranscriptionModel   = "whisper-1"
	defaultLocalWhisperModel    = "large-v3-turbo"
	defaultVADMethod            = "silero"

	defaultMaxFileSizeMB          = 500
	defaultMaxDurationMinutes     = 180
	defaultDownloadTimeoutSeconds = 1800

	defaultFingerprintLength = 64

	defaultWorkers                  = 4
	defaultPollIntervalSeconds      = 2
	defaultErrorRetryInterval       = 10
	defaultTaskTimeLimitSeconds     = 3600
	defaultTaskSoftTimeLimitSeconds = 3300
	defaultHeartbeatInterval        = 15
	defaultHeartbeatTimeout         = 120

	defaultSweepSchedule    = "@daily"
	defaultStaleAfterHours  = 24
	defaultDigestEntryLimit = 50
	defaultFeedEntryLimit   = 20
	defaultMinItems         = 3
	defaultMaxItems         = 10
	defaultUserAgent        = "Mozilla/5.0 (compatible; NexusBot/1.0)"

	defaultNotifyRequestTimeout = 10
	defaultRedisChannel         = "nexus:jobs"

	defaultLogFormat = "auto"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			TempDir: defaultTempDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Database: Database{
			Driver: DatabaseSQLite,
		},
		Storage: Storage{
			Backend:  StorageLocal,
			LocalDir: defaultLocalBlobDir,
			Bucket:   defaultBucket,
			Region:   defaultRegion,
		},
		LLM: LLM{
			BaseURL:          defaultLLMBaseURL,
			Model:            defaultLLMModel,
			Referer:          defaultLLMReferer,
			Title:            defaultLLMTitle,
			TimeoutSeconds:   defaultLLMTimeoutSeconds,
			RetryAttempts:    defaultRetryAttempts,
			RetryBaseSeconds: defaultRetryBaseSeconds,
			RetryMaxSeconds:  defaultRetryMaxSeconds,
		},
		Embedding: Embedding{
			Dimensions: defaultEmbeddingDimensions,
		},
		Transcription: Transcription{
			Mode:      TranscriptionAPI,
			BaseURL:   defaultTranscriptionBaseURL,
			VADMethod: defaultVADMethod,
		},
		Media: Media{
			MaxFileSizeMB:          defaultMaxFileSizeMB,
			MaxDurationMinutes:     defaultMaxDurationMinutes,
			YTDLPBinary:            "yt-dlp",
			FFmpegBinary:           "ffmpeg",
			FFprobeBinary:          "ffprobe",
			DownloadTimeoutSeconds: defaultDownloadTimeoutSeconds,
		},
		Fingerprint: Fingerprint{
			Method:       FingerprintChromaprint,
			FpcalcBinary: "fpcalc",
			Length:       defaultFingerprintLength,
		},
		Workflow: Workflow{
			Workers:                  defaultWorkers,
			PollIntervalSeconds:      defaultPollIntervalSeconds,
			ErrorRetryInterval:       defaultErrorRetryInterval,
			TaskTimeLimitSeconds:     defaultTaskTimeLimitSeconds,
			TaskSoftTimeLimitSeconds: defaultTaskSoftTimeLimitSeconds,
			HeartbeatInterval:        defaultHeartbeatInterval,
			HeartbeatTimeout:         defaultHeartbeatTimeout,
		},
		Subscriptions: Subscriptions{
			SweepSchedule:    defaultSweepSchedule,
			StaleAfterHours:  defaultStaleAfterHours,
			DigestEntryLimit: defaultDigestEntryLimit,
			FeedEntryLimit:   defaultFeedEntryLimit,
			MinItems:         defaultMinItems,
			MaxItems:         defaultMaxItems,
			UserAgent:        defaultUserAgent,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			RedisChannel:   defaultRedisChannel,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
