package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateTranscription(); err != nil {
		return err
	}
	if err := c.validateFingerprint(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateSubscriptions(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case DatabaseSQLite:
	case DatabasePostgres:
		if c.Database.DSN == "" {
			return errors.New("database.dsn must be set when database.driver is postgres (or set DATABASE_URL)")
		}
	default:
		return fmt.Errorf("database.driver: unsupported value %q (want sqlite or postgres)", c.Database.Driver)
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Backend {
	case StorageLocal:
		if strings.TrimSpace(c.Storage.LocalDir) == "" {
			return errors.New("storage.local_dir must be set when storage.backend is local")
		}
	case StorageS3:
		if c.Storage.Bucket == "" {
			return errors.New("storage.bucket must be set when storage.backend is s3")
		}
		if (c.Storage.AccessKey == "") != (c.Storage.SecretKey == "") {
			return errors.New("storage.access_key and storage.secret_key must be set together")
		}
	default:
		return fmt.Errorf("storage.backend: unsupported value %q (want local or s3)", c.Storage.Backend)
	}
	return nil
}

func (c *Config) validateTranscription() error {
	switch c.Transcription.Mode {
	case TranscriptionAPI, TranscriptionLocal:
	default:
		return fmt.Errorf("transcription.mode: unsupported value %q (want api or local)", c.Transcription.Mode)
	}
	switch c.Transcription.VADMethod {
	case "silero", "pyannote":
	default:
		return fmt.Errorf("transcription.vad_method: unsupported value %q", c.Transcription.VADMethod)
	}
	return nil
}

func (c *Config) validateFingerprint() error {
	switch c.Fingerprint.Method {
	case FingerprintChromaprint, FingerprintPCM:
	default:
		return fmt.Errorf("fingerprint.method: unsupported value %q (want chromaprint or pcm)", c.Fingerprint.Method)
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"notifications.request_timeout":         c.Notifications.RequestTimeout,
		"workflow.poll_interval_seconds":        c.Workflow.PollIntervalSeconds,
		"workflow.error_retry_interval_seconds": c.Workflow.ErrorRetryInterval,
		"workflow.task_time_limit_seconds":      c.Workflow.TaskTimeLimitSeconds,
		"workflow.task_soft_time_limit_seconds": c.Workflow.TaskSoftTimeLimitSeconds,
		"media.max_file_size_mb":                c.Media.MaxFileSizeMB,
		"media.max_duration_minutes":            c.Media.MaxDurationMinutes,
	}); err != nil {
		return err
	}
	if c.Workflow.TaskSoftTimeLimitSeconds >= c.Workflow.TaskTimeLimitSeconds {
		return errors.New("workflow.task_soft_time_limit_seconds must be less than workflow.task_time_limit_seconds")
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		return errors.New("workflow.heartbeat_interval_seconds must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= 0 {
		return errors.New("workflow.heartbeat_timeout_seconds must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout_seconds must be greater than workflow.heartbeat_interval_seconds")
	}
	return nil
}

func (c *Config) validateSubscriptions() error {
	if _, err := cron.ParseStandard(c.Subscriptions.SweepSchedule); err != nil {
		return fmt.Errorf("subscriptions.sweep_schedule: %w", err)
	}
	if c.Subscriptions.MinItems < 1 {
		return errors.New("subscriptions.min_items must be >= 1")
	}
	if c.Subscriptions.MaxItems < c.Subscriptions.MinItems {
		return errors.New("subscriptions.max_items must be >= subscriptions.min_items")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RedisDB < 0 {
		return errors.New("notifications.redis_db must be >= 0")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
