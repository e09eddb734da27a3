// Package fingerprint derives stable content identifiers from normalized audio.
//
// Two methods are available. Chromaprint shells out to fpcalc and keeps the
// leading characters of the compressed fingerprint, matching what AcoustID
// tooling stores. PCM hashes the WAV data chunk with SHA-256, which needs no
// external binary and only matches byte-identical sample data. Either way the
// same input always yields the same string, which is all exact-match
// deduplication relies on.
package fingerprint

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"nexus/internal/config"
	"nexus/internal/media/wav"
	"nexus/internal/services"
)

const defaultLength = 64

// Fingerprinter computes a fingerprint for an audio file.
type Fingerprinter interface {
	Fingerprint(ctx context.Context, audioPath string) (string, error)
}

// New returns the configured fingerprinter.
func New(cfg *config.Config) (Fingerprinter, error) {
	switch cfg.Fingerprint.Method {
	case config.FingerprintChromaprint:
		return NewChromaprint(cfg.Fingerprint.FpcalcBinary, cfg.Fingerprint.Length), nil
	case config.FingerprintPCM:
		return NewPCM(cfg.Fingerprint.Length), nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "fingerprint", "new",
			fmt.Sprintf("unsupported method %q", cfg.Fingerprint.Method), nil)
	}
}

// Chromaprint runs fpcalc.
type Chromaprint struct {
	binary string
	length int
	run    func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewChromaprint builds an fpcalc-backed fingerprinter.
func NewChromaprint(binary string, length int) *Chromaprint {
	if strings.TrimSpace(binary) == "" {
		binary = "fpcalc"
	}
	return &Chromaprint{binary: binary, length: normalizeLength(length), run: runOutput}
}

// WithCommandRunner replaces process execution (for tests).
func (c *Chromaprint) WithCommandRunner(run func(ctx context.Context, name string, args ...string) ([]byte, error)) *Chromaprint {
	c.run = run
	return c
}

func (c *Chromaprint) Fingerprint(ctx context.Context, audioPath string) (string, error) {
	output, err := c.run(ctx, c.binary, audioPath)
	if err != nil {
		return "", services.Wrap(services.ErrExternalTool, "fingerprint", "fpcalc", "Failed to generate audio fingerprint", err)
	}
	scanner := bufio.NewScanner(bytes.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if value, ok := strings.CutPrefix(line, "FINGERPRINT="); ok && value != "" {
			return truncate(value, c.length), nil
		}
	}
	return "", services.Wrap(services.ErrExternalTool, "fingerprint", "fpcalc", "no fingerprint in fpcalc output", scanner.Err())
}

func runOutput(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return output, nil
}

// PCM hashes decoded sample data.
type PCM struct {
	length int
}

// NewPCM builds a hash-based fingerprinter.
func NewPCM(length int) *PCM {
	return &PCM{length: normalizeLength(length)}
}

func (p *PCM) Fingerprint(ctx context.Context, audioPath string) (string, error) {
	file, err := os.Open(audioPath)
	if err != nil {
		return "", services.Wrap(services.ErrNotFound, "fingerprint", "pcm", "open audio", err)
	}
	defer file.Close()

	samples, _, err := wav.DataReader(file)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "fingerprint", "pcm", "Failed to generate audio fingerprint", err)
	}
	hasher := sha256.New()
	if _, err := io.Copy(hasher, contextReader{ctx: ctx, r: samples}); err != nil {
		return "", services.Wrap(services.ErrExternalTool, "fingerprint", "pcm", "hash samples", err)
	}
	return truncate(hex.EncodeToString(hasher.Sum(nil)), p.length), nil
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func normalizeLength(length int) int {
	if length <= 0 {
		return defaultLength
	}
	return length
}

func truncate(value string, length int) string {
	if len(value) > length {
		return value[:length]
	}
	return value
}
