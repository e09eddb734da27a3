package transcription

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"nexus/internal/config"
	"nexus/internal/language"
	"nexus/internal/services"
)

// WhisperX command-line settings.
const (
	UVXCommand        = "uvx"
	DefaultLocalModel = "large-v3-turbo"
	CUDAIndexURL      = "https://download.pytorch.org/whl/cu128"
	PypiIndexURL      = "https://pypi.org/simple"
	BatchSize         = "4"
	ChunkSize         = "15"
	BeamSize          = "5"
	SegmentResolution = "sentence"
	OutputFormat      = "json"
	CPUDevice         = "cpu"
	CUDADevice        = "cuda"
	CPUComputeType    = "float32"
	VADMethodPyannote = "pyannote"
	VADMethodSilero   = "silero"
)

// WhisperX runs transcription locally.
type WhisperX struct {
	model       string
	language    string
	cudaEnabled bool
	vadMethod   string
	hfToken     string
	workRoot    string
	run         func(ctx context.Context, name string, args ...string) error
}

// NewWhisperX builds the local backend.
func NewWhisperX(cfg *config.Config) *WhisperX {
	model := strings.TrimSpace(cfg.Transcription.Model)
	if model == "" || model == "whisper-1" {
		model = DefaultLocalModel
	}
	return &WhisperX{
		model:       model,
		language:    language.Normalize(cfg.Transcription.Language),
		cudaEnabled: cfg.Transcription.CUDAEnabled,
		vadMethod:   strings.TrimSpace(cfg.Transcription.VADMethod),
		hfToken:     strings.TrimSpace(cfg.Transcription.HFToken),
		workRoot:    cfg.Paths.TempDir,
	}
}

// WithCommandRunner sets a custom command runner (for testing).
func (w *WhisperX) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) *WhisperX {
	w.run = runner
	return w
}

// Model returns the configured model name for logging.
func (w *WhisperX) Model() string {
	return w.model
}

func (w *WhisperX) Transcribe(ctx context.Context, audioPath string) (Result, error) {
	if strings.TrimSpace(audioPath) == "" {
		return Result{}, services.Wrap(services.ErrValidation, "transcription", "whisperx", "source path required", nil)
	}
	if err := os.MkdirAll(w.workRoot, 0o755); err != nil {
		return Result{}, fmt.Errorf("whisperx: ensure temp dir: %w", err)
	}
	outputDir, err := os.MkdirTemp(w.workRoot, "whisperx-")
	if err != nil {
		return Result{}, fmt.Errorf("whisperx: create output dir: %w", err)
	}
	defer os.RemoveAll(outputDir)

	if err := w.exec(ctx, UVXCommand, w.buildArgs(audioPath, outputDir)...); err != nil {
		return Result{}, services.Wrap(services.ErrExternalTool, "transcription", "whisperx", "", err)
	}

	baseName := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	segments, err := loadSegments(filepath.Join(outputDir, baseName+".json"))
	if err != nil {
		return Result{}, services.Wrap(services.ErrExternalTool, "transcription", "whisperx", "read output", err)
	}
	result := buildResult("", segments, fileDuration(audioPath))
	if result.Text == "" {
		return Result{}, services.Wrap(services.ErrExternalTool, "transcription", "whisperx", "empty transcript", nil)
	}
	return result, nil
}

func (w *WhisperX) exec(ctx context.Context, name string, args ...string) error {
	if w.run != nil {
		return w.run(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec

	// Torch 2.6 changed torch.load to weights_only=true, which breaks pyannote checkpoints.
	if os.Getenv("TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD") == "" {
		cmd.Env = append(os.Environ(), "TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD=1")
	}
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, lastLine(string(output)))
	}
	return nil
}

func lastLine(output string) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

func (w *WhisperX) buildArgs(source, outputDir string) []string {
	args := make([]string, 0, 32)
	if w.cudaEnabled {
		args = append(args, "--index-url", CUDAIndexURL, "--extra-index-url", PypiIndexURL)
	} else {
		args = append(args, "--index-url", PypiIndexURL)
	}

	args = append(args,
		"whisperx",
		source,
		"--model", w.model,
		"--batch_size", BatchSize,
		"--output_dir", outputDir,
		"--output_format", OutputFormat,
		"--segment_resolution", SegmentResolution,
		"--chunk_size", ChunkSize,
		"--beam_size", BeamSize,
	)

	vad := w.vadMethod
	if vad == "" {
		vad = VADMethodSilero
	}
	args = append(args, "--vad_method", vad)
	if w.hfToken != "" {
		args = append(args, "--diarize", "--hf_token", w.hfToken)
	}
	if w.language != "" {
		args = append(args, "--language", w.language)
	}
	if w.cudaEnabled {
		args = append(args, "--device", CUDADevice)
	} else {
		args = append(args, "--device", CPUDevice, "--compute_type", CPUComputeType)
	}
	return args
}

type whisperXPayload struct {
	Segments []segment `json:"segments"`
}

func loadSegments(jsonPath string) ([]segment, error) {
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, err
	}
	var payload whisperXPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("parse whisperx json: %w", err)
	}
	return payload.Segments, nil
}
