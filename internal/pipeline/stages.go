package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"nexus/internal/blob"
	"nexus/internal/logging"
	"nexus/internal/services"
	"nexus/internal/store"
)

// Stage names as they appear in logs and the stage context field.
const (
	StageExtractMedia = "extract_media"
	StageExtractWeb   = "extract_web"
	StageDeduplicate  = "deduplicate"
	StageTranscribe   = "transcribe"
	StageEnrich       = "enrich"
	StageFinalize     = "finalize"
)

func (o *Orchestrator) chainFor(category store.SourceCategory) []stage {
	if category.IsWeb() {
		return []stage{o.extractWebStage(), o.enrichStage(), o.finalizeStage()}
	}
	return []stage{
		o.extractMediaStage(),
		o.deduplicateStage(),
		o.transcribeStage(),
		o.enrichStage(),
		o.finalizeStage(),
	}
}

// Stages lists the chain a source category runs, by stage name.
func (o *Orchestrator) Stages(category store.SourceCategory) []string {
	chain := o.chainFor(category)
	names := make([]string, len(chain))
	for i, st := range chain {
		names[i] = st.name
	}
	return names
}

func (o *Orchestrator) extractMediaStage() stage {
	return stage{
		name:    StageExtractMedia,
		status:  store.JobExtracting,
		label:   "Media Extraction",
		start:   10,
		end:     20,
		failure: "Extraction failed",
		exec:    o.extractMedia,
	}
}

func (o *Orchestrator) extractWebStage() stage {
	return stage{
		name:    StageExtractWeb,
		status:  store.JobExtracting,
		label:   "Web Extraction",
		start:   10,
		end:     40,
		failure: "Web extraction failed",
		exec:    o.extractWeb,
	}
}

func (o *Orchestrator) deduplicateStage() stage {
	return stage{
		name:    StageDeduplicate,
		status:  store.JobHashing,
		label:   "Duplicate Check",
		start:   30,
		end:     40,
		failure: "Deduplication failed",
		exec:    o.deduplicate,
	}
}

func (o *Orchestrator) transcribeStage() stage {
	return stage{
		name:    StageTranscribe,
		status:  store.JobTranscribing,
		label:   "Whisper Transcription",
		start:   50,
		end:     70,
		failure: "Transcription failed",
		exec:    o.transcribe,
	}
}

func (o *Orchestrator) enrichStage() stage {
	return stage{
		name:    StageEnrich,
		status:  store.JobEnriching,
		label:   "AI Analysis",
		start:   80,
		end:     90,
		failure: "Enrichment failed",
		exec:    o.enrich,
	}
}

func (o *Orchestrator) finalizeStage() stage {
	return stage{
		name:    StageFinalize,
		status:  store.JobCompleted,
		label:   "Completed",
		start:   100,
		end:     100,
		failure: "Finalization failed",
		always:  true,
		exec:    o.finalize,
	}
}

func (o *Orchestrator) workDir(prefix string) (string, func(), error) {
	base := o.tempDir
	if base == "" {
		base = os.TempDir()
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return "", func() {}, fmt.Errorf("ensure temp dir: %w", err)
	}
	dir, err := os.MkdirTemp(base, prefix+"-*")
	if err != nil {
		return "", func() {}, fmt.Errorf("create work dir: %w", err)
	}
	return dir, func() { _ = os.RemoveAll(dir) }, nil
}

// extractMedia makes sure the canonical audio is in the blob store and the
// duration is known. Three sources are handled in order: an existing blob, an
// uploaded file, and a remote URL.
func (o *Orchestrator) extractMedia(ctx context.Context, sc *stageContext) (Result, error) {
	media := sc.media
	dir, cleanup, err := o.workDir("extract")
	if err != nil {
		return nil, err
	}
	defer cleanup()

	switch {
	case media.BlobPath != "":
		path, release, err := blob.FetchToFile(ctx, o.blobs, media.BlobPath, dir, "audio-*.wav")
		defer release()
		if err != nil {
			return nil, err
		}
		media.DurationSeconds = o.media.Duration(ctx, path)
		sc.logger.Debug("blob already stored; measured duration", logging.Int("duration_seconds", media.DurationSeconds))
		return Continue{}, nil

	case sc.run.upload != "":
		return o.ingestUpload(ctx, sc, dir)

	case media.SourceURL != "":
		download, err := o.media.Download(ctx, media.SourceURL, dir)
		if err != nil {
			return nil, err
		}
		normalized := filepath.Join(dir, media.ID+".norm.wav")
		if err := o.media.Normalize(ctx, download.Path, normalized); err != nil {
			return nil, err
		}
		ref, err := blob.PutFile(ctx, o.blobs, media.ID, normalized)
		if err != nil {
			return nil, err
		}
		media.BlobPath = ref
		media.DurationSeconds = download.DurationSeconds
		if media.DurationSeconds == 0 {
			media.DurationSeconds = o.media.Duration(ctx, normalized)
		}
		if title := strings.TrimSpace(download.Title); title != "" && media.HasPlaceholderTitle() {
			media.Title = title
		}
		return Continue{}, nil

	default:
		return nil, services.Wrap(services.ErrValidation, StageExtractMedia, "select source", "media has no stored audio, upload or source URL", nil)
	}
}

// ingestUpload stores an uploaded file as the media's blob. The upload is
// kept until the blob reference is persisted, or until the job fails for
// good; an interrupted run leaves it for the redelivered task.
func (o *Orchestrator) ingestUpload(ctx context.Context, sc *stageContext, dir string) (_ Result, err error) {
	media := sc.media
	upload := sc.run.upload
	stored := false
	defer func() {
		if !stored && (err == nil || errors.Is(ctx.Err(), context.Canceled)) {
			return
		}
		if rmErr := os.Remove(upload); rmErr != nil && !os.IsNotExist(rmErr) {
			sc.logger.Warn("failed to remove upload", logging.String("path", upload), logging.Error(rmErr))
		}
	}()

	normalized := filepath.Join(dir, media.ID+".wav")
	if err := o.media.Normalize(ctx, upload, normalized); err != nil {
		return nil, err
	}
	duration := o.media.Duration(ctx, normalized)
	if err := o.media.CheckDuration(duration); err != nil {
		return nil, err
	}
	ref, err := blob.PutFile(ctx, o.blobs, media.ID, normalized)
	if err != nil {
		return nil, err
	}
	media.BlobPath = ref
	media.DurationSeconds = duration
	if err := o.store.UpdateMedia(context.WithoutCancel(ctx), media); err != nil {
		return nil, fmt.Errorf("persist blob reference: %w", err)
	}
	stored = true
	return Continue{}, nil
}

func (o *Orchestrator) extractWeb(ctx context.Context, sc *stageContext) (Result, error) {
	media := sc.media
	if strings.TrimSpace(media.SourceURL) == "" {
		return nil, services.Wrap(services.ErrValidation, StageExtractWeb, "select source", "media has no source URL", nil)
	}
	content, err := o.web.Extract(ctx, media.SourceURL)
	if err != nil {
		return nil, err
	}
	if title := strings.TrimSpace(content.Title); title != "" && media.HasPlaceholderTitle() {
		media.Title = title
	}
	media.RawText = content.Text
	sc.logger.Debug("web content extracted",
		logging.Bool("feed", content.IsFeed()),
		logging.Int("entries", len(content.Entries)),
		logging.Int("text_length", len(content.Text)),
	)
	return Continue{}, nil
}

// deduplicate fingerprints the stored audio and links the item to an existing
// completed item with the same fingerprint. Only completed items qualify, so
// two identical uploads processed concurrently can both pass.
func (o *Orchestrator) deduplicate(ctx context.Context, sc *stageContext) (Result, error) {
	media := sc.media
	if media.BlobPath == "" {
		return nil, services.Wrap(services.ErrValidation, StageDeduplicate, "fetch audio", "no stored audio to fingerprint", nil)
	}
	dir, cleanup, err := o.workDir("dedup")
	if err != nil {
		return nil, err
	}
	defer cleanup()

	path, release, err := blob.FetchToFile(ctx, o.blobs, media.BlobPath, dir, "audio-*.wav")
	defer release()
	if err != nil {
		return nil, err
	}
	hash, err := o.fingerprinter.Fingerprint(ctx, path)
	if err != nil {
		return nil, err
	}
	media.AudioHash = hash

	existing, err := o.store.FindCompletedByAudioHash(ctx, hash, media.ID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return Continue{}, nil
	}

	media.RawText = existing.RawText
	media.Transcript = slices.Clone(existing.Transcript)
	media.AISummary = existing.AISummary
	media.Tags = slices.Clone(existing.Tags)
	media.Embedding = slices.Clone(existing.Embedding)
	media.Status = store.MediaDuplicate
	return ShortCircuit{
		Reason:      "Duplicate of media " + existing.ID,
		CanonicalID: existing.ID,
	}, nil
}

func (o *Orchestrator) transcribe(ctx context.Context, sc *stageContext) (Result, error) {
	media := sc.media
	if media.BlobPath == "" {
		return nil, services.Wrap(services.ErrValidation, StageTranscribe, "fetch audio", "no stored audio to transcribe", nil)
	}
	dir, cleanup, err := o.workDir("transcribe")
	if err != nil {
		return nil, err
	}
	defer cleanup()

	path, release, err := blob.FetchToFile(ctx, o.blobs, media.BlobPath, dir, "audio-*.wav")
	defer release()
	if err != nil {
		return nil, err
	}
	result, err := o.transcriber.Transcribe(ctx, path)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(result.Text) == "" {
		return nil, services.Wrap(services.ErrValidation, StageTranscribe, "transcribe", "transcript is empty", nil)
	}
	media.RawText = result.Text
	media.Transcript = result.Turns
	sc.logger.Debug("transcription complete", logging.Int("turns", len(result.Turns)))
	return Continue{}, nil
}

func (o *Orchestrator) enrich(ctx context.Context, sc *stageContext) (Result, error) {
	media := sc.media
	text := strings.TrimSpace(media.RawText)
	if text == "" {
		return nil, services.Wrap(services.ErrValidation, StageEnrich, "load text", "no text available to enrich", nil)
	}
	summary, err := o.enricher.Summarize(ctx, text)
	if err != nil {
		return nil, err
	}
	vector, err := o.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	media.AISummary = summary.Summary
	media.Tags = summary.Tags
	media.Embedding = vector
	return Continue{}, nil
}

// finalize completes the item. A duplicate keeps its status.
func (o *Orchestrator) finalize(_ context.Context, sc *stageContext) (Result, error) {
	if sc.media.Status != store.MediaDuplicate {
		sc.media.Status = store.MediaCompleted
	}
	return sc.prev, nil
}
