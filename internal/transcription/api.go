package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"nexus/internal/config"
	"nexus/internal/language"
	"nexus/internal/services"
)

const defaultAPITimeout = 10 * time.Minute

// APIClient calls an OpenAI-compatible transcription endpoint.
type APIClient struct {
	baseURL    string
	apiKey     string
	model      string
	language   string
	httpClient *http.Client
	retry      services.RetryPolicy
}

// NewAPIClient builds the remote backend.
func NewAPIClient(cfg *config.Config) *APIClient {
	baseDelay, maxDelay := cfg.RetryBackoff()
	return &APIClient{
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.Transcription.BaseURL), "/"),
		apiKey:     strings.TrimSpace(cfg.Transcription.APIKey),
		model:      strings.TrimSpace(cfg.Transcription.Model),
		language:   language.Normalize(cfg.Transcription.Language),
		httpClient: &http.Client{Timeout: defaultAPITimeout},
		retry:      services.RetryPolicy{Attempts: cfg.LLM.RetryAttempts, BaseDelay: baseDelay, MaxDelay: maxDelay},
	}
}

// WithHTTPClient overrides the HTTP client.
func (c *APIClient) WithHTTPClient(client *http.Client) *APIClient {
	if client != nil {
		c.httpClient = client
	}
	return c
}

// WithRetryPolicy overrides retry behaviour.
func (c *APIClient) WithRetryPolicy(policy services.RetryPolicy) *APIClient {
	c.retry = policy
	return c
}

type verboseTranscription struct {
	Text     string    `json:"text"`
	Duration float64   `json:"duration"`
	Segments []segment `json:"segments"`
}

func (c *APIClient) Transcribe(ctx context.Context, audioPath string) (Result, error) {
	if c.apiKey == "" {
		return Result{}, services.Wrap(services.ErrConfiguration, "transcription", "api", "api key required", nil)
	}
	endpoint, err := url.JoinPath(c.baseURL, "audio", "transcriptions")
	if err != nil {
		return Result{}, services.Wrap(services.ErrConfiguration, "transcription", "api", "invalid base url", err)
	}

	var payload verboseTranscription
	err = c.retry.Do(ctx, func(ctx context.Context) error {
		var callErr error
		payload, callErr = c.post(ctx, endpoint, audioPath)
		return callErr
	})
	if err != nil {
		return Result{}, err
	}

	duration := payload.Duration
	if duration <= 0 {
		duration = fileDuration(audioPath)
	}
	result := buildResult(payload.Text, payload.Segments, duration)
	if result.Text == "" {
		return Result{}, services.Wrap(services.ErrExternalTool, "transcription", "api", "empty transcript", nil)
	}
	return result, nil
}

func (c *APIClient) post(ctx context.Context, endpoint, audioPath string) (verboseTranscription, error) {
	var out verboseTranscription
	body, contentType, err := c.multipartBody(audioPath)
	if err != nil {
		return out, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return out, services.Wrap(services.ErrConfiguration, "transcription", "api", "build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return out, services.Wrap(services.ErrTransient, "transcription", "api", "request failed", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return out, services.Wrap(services.ErrTransient, "transcription", "api", "read response", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		marker := services.ErrExternalTool
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			marker = services.ErrTransient
		}
		return out, services.Wrap(marker, "transcription", "api",
			fmt.Sprintf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))), nil)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, services.Wrap(services.ErrExternalTool, "transcription", "api", "decode response", err)
	}
	return out, nil
}

func (c *APIClient) multipartBody(audioPath string) (io.Reader, string, error) {
	file, err := os.Open(audioPath)
	if err != nil {
		return nil, "", services.Wrap(services.ErrNotFound, "transcription", "api", "open audio", err)
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, "", fmt.Errorf("copy audio: %w", err)
	}
	fields := map[string]string{
		"model":           c.model,
		"response_format": "verbose_json",
	}
	if c.language != "" {
		fields["language"] = c.language
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, "", err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return &buf, writer.FormDataContentType(), nil
}
