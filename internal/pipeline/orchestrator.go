// Package pipeline runs the transcription state machine: upload the recording
// to the speech-to-text vendor, start the conversion, poll until the
// transcript is ready, refine it through the language model and persist the
// result. Each step advances the audio's lifecycle status and publishes
// progress on the job channel.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/soundscribe/backend/internal/models"
	"github.com/soundscribe/backend/internal/refiner"
	"github.com/soundscribe/backend/internal/transcriber"
)

// AudioStore is the subset of the audio repository the pipeline needs.
type AudioStore interface {
	GetByID(ctx context.Context, id int64) (*models.Audio, error)
	UpdateStatus(ctx context.Context, id int64, status models.AudioStatus) error
	SetVendorToken(ctx context.Context, id int64, token string) error
}

// TranscriptStore persists transcription results.
type TranscriptStore interface {
	// Replace drops any existing transcript for the audio and stores a fresh
	// one, so a reprocessed item never keeps stale text.
	Replace(ctx context.Context, audioID int64, rawText, processedText string) (*models.Transcript, error)
}

// Transcriber is the speech-to-text vendor client.
type Transcriber interface {
	Upload(ctx context.Context, name, path string) (string, *transcriber.Failure)
	StartConvert(ctx context.Context, fileToken string) *transcriber.Failure
	PollConvert(ctx context.Context, fileToken string) (*transcriber.Poll, *transcriber.Failure)
}

// Refiner rewrites a raw transcript into a structured document.
type Refiner interface {
	Refine(ctx context.Context, prompt, raw string, meta refiner.Metadata) (string, error)
}

// PromptResolver picks the refinement instruction for an audio item.
type PromptResolver interface {
	Resolve(ctx context.Context, audio *models.Audio) string
}

// Reporter publishes job progress.
type Reporter interface {
	Report(ctx context.Context, jobID string, percentage int, message string) error
	Succeed(ctx context.Context, jobID string, result map[string]any) error
	Fail(ctx context.Context, jobID, kind, message string, retryAfter time.Duration) error
}

// Locker serializes processing per audio item.
type Locker interface {
	Acquire(ctx context.Context, audioID int64) (func(), bool, error)
}

// Config holds the pipeline timing knobs.
type Config struct {
	// WarmupDelay is how long to wait after starting the conversion before
	// the first poll. The vendor reports garbage for the first few seconds.
	WarmupDelay time.Duration
	// PollInterval is the delay between checkconvert calls.
	PollInterval time.Duration
	// PollCeiling caps the total wall-clock time spent polling.
	PollCeiling time.Duration
}

// ErrBackpressure marks a run stopped by vendor credit exhaustion. The item
// went back to the queue-eligible state and the job should not be
// dead-lettered.
var ErrBackpressure = errors.New("pipeline: vendor credit exhausted")

// Orchestrator drives one transcription job end to end.
type Orchestrator struct {
	cfg         Config
	audios      AudioStore
	transcripts TranscriptStore
	vendor      Transcriber
	refiner     Refiner
	prompts     PromptResolver
	reporter    Reporter
	locker      Locker
	logger      *zap.Logger
}

// New creates an orchestrator. Zero timing values get production defaults.
func New(cfg Config, audios AudioStore, transcripts TranscriptStore, vendor Transcriber, ref Refiner, prompts PromptResolver, reporter Reporter, locker Locker, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.WarmupDelay <= 0 {
		cfg.WarmupDelay = 10 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.PollCeiling <= 0 {
		cfg.PollCeiling = 15 * time.Minute
	}
	return &Orchestrator{
		cfg:         cfg,
		audios:      audios,
		transcripts: transcripts,
		vendor:      vendor,
		refiner:     ref,
		prompts:     prompts,
		reporter:    reporter,
		locker:      locker,
		logger:      logger,
	}
}

// Run processes one transcription job. On success the audio ends in the
// content-produced state with a fresh transcript. On failure the audio ends in
// the state the failure dictates and the error is returned so the worker can
// dead-letter the job; ErrBackpressure is the exception and means the item
// simply has to wait for vendor credit.
func (o *Orchestrator) Run(ctx context.Context, jobID string, audioID int64, fileName, filePath string) error {
	log := o.logger.With(zap.String("job_id", jobID), zap.Int64("audio_id", audioID))

	release, ok, err := o.locker.Acquire(ctx, audioID)
	if err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	if !ok {
		log.Warn("audio already being processed, skipping")
		_ = o.reporter.Fail(ctx, jobID, "AlreadyProcessing", "another worker is processing this audio", 0)
		return nil
	}
	defer release()

	audio, err := o.audios.GetByID(ctx, audioID)
	if err != nil {
		_ = o.reporter.Fail(ctx, jobID, "NotFound", "audio record not found", 0)
		return fmt.Errorf("pipeline: load audio %d: %w", audioID, err)
	}

	if err := o.audios.UpdateStatus(ctx, audioID, models.StatusProcessing); err != nil {
		return fmt.Errorf("pipeline: mark processing: %w", err)
	}
	_ = o.reporter.Report(ctx, jobID, 5, "preparing audio for transcription")

	fileToken, failure := o.vendor.Upload(ctx, fileName, filePath)
	if failure != nil {
		return o.fail(ctx, log, jobID, audioID, "upload", failure)
	}
	if err := o.audios.SetVendorToken(ctx, audioID, fileToken); err != nil {
		log.Warn("could not persist vendor file token", zap.Error(err))
	}
	_ = o.reporter.Report(ctx, jobID, 20, "audio uploaded to transcription service")

	if failure := o.vendor.StartConvert(ctx, fileToken); failure != nil {
		return o.fail(ctx, log, jobID, audioID, "start conversion", failure)
	}
	_ = o.reporter.Report(ctx, jobID, 30, "conversion started")

	if err := sleep(ctx, o.cfg.WarmupDelay); err != nil {
		return o.fail(ctx, log, jobID, audioID, "warmup", canceledFailure(err))
	}

	rawText, failure := o.poll(ctx, jobID, fileToken)
	if failure != nil {
		return o.fail(ctx, log, jobID, audioID, "poll conversion", failure)
	}

	_ = o.reporter.Report(ctx, jobID, 90, "refining transcript")
	processed, refined := o.refine(ctx, log, audio, rawText)

	tr, err := o.transcripts.Replace(ctx, audioID, rawText, processed)
	if err != nil {
		_ = o.audios.UpdateStatus(ctx, audioID, models.StatusError)
		_ = o.reporter.Fail(ctx, jobID, "PersistenceError", "failed to store transcript", 0)
		return fmt.Errorf("pipeline: store transcript: %w", err)
	}

	if err := o.audios.UpdateStatus(ctx, audioID, models.StatusProduced); err != nil {
		return fmt.Errorf("pipeline: mark produced: %w", err)
	}
	_ = o.reporter.Succeed(ctx, jobID, map[string]any{
		"audio_id":      audio.PublicID.String(),
		"transcript_id": tr.ID,
		"refined":       refined,
	})
	log.Info("transcription pipeline finished", zap.Bool("refined", refined))
	return nil
}

// poll loops on checkconvert until the transcript is ready, the wall-clock
// ceiling is hit or the vendor fails.
func (o *Orchestrator) poll(ctx context.Context, jobID, fileToken string) (string, *transcriber.Failure) {
	deadline := time.Now().Add(o.cfg.PollCeiling)
	for {
		if time.Now().After(deadline) {
			return "", &transcriber.Failure{
				Message: fmt.Sprintf("conversion timed out after %s", o.cfg.PollCeiling),
				Status:  models.StatusError,
			}
		}

		poll, failure := o.vendor.PollConvert(ctx, fileToken)
		if failure != nil {
			return "", failure
		}
		if poll.Done {
			return poll.Text, nil
		}

		if pct, ok := parsePercent(poll.Progress); ok {
			// Map vendor progress into the 30-85 band reserved for the
			// conversion phase.
			_ = o.reporter.Report(ctx, jobID, 30+(pct*55)/100, "converting speech to text")
		}

		if err := sleep(ctx, o.cfg.PollInterval); err != nil {
			return "", canceledFailure(err)
		}
	}
}

// refine is best effort: any problem substitutes the raw transcript as the
// processed text.
func (o *Orchestrator) refine(ctx context.Context, log *zap.Logger, audio *models.Audio, raw string) (string, bool) {
	prompt := o.prompts.Resolve(ctx, audio)
	processed, err := o.refiner.Refine(ctx, prompt, raw, refiner.Metadata{
		KindLabel: audio.Kind.Label(),
		Title:     audio.Name,
		Subject:   audio.Subject,
	})
	if err != nil {
		log.Warn("refinement failed, keeping raw transcript", zap.Error(err))
		return raw, false
	}
	return processed, true
}

// fail records a vendor failure on the audio row and the progress channel and
// translates it into the worker-facing error.
func (o *Orchestrator) fail(ctx context.Context, log *zap.Logger, jobID string, audioID int64, step string, failure *transcriber.Failure) error {
	log.Error("pipeline step failed",
		zap.String("step", step),
		zap.String("reason", failure.Message),
		zap.String("target_status", string(failure.Status)))

	if err := o.audios.UpdateStatus(ctx, audioID, failure.Status); err != nil {
		log.Error("could not record failure status", zap.Error(err))
	}

	// Credit exhaustion is backpressure, not a failed job: the item waits in
	// the queue-eligible state and the progress record stays informational.
	if failure.Code == transcriber.CodeNoCredit {
		_ = o.reporter.Report(ctx, jobID, 0, failure.Message)
		return ErrBackpressure
	}

	kind := failure.Code
	if kind == "" {
		kind = "Error"
	}
	_ = o.reporter.Fail(ctx, jobID, kind, failure.Message, failure.RetryAfter)
	return fmt.Errorf("pipeline: %s: %s", step, failure.Message)
}

// canceledFailure wraps a context error as a service-unavailable style
// failure so shutdown mid-run leaves the item retryable.
func canceledFailure(err error) *transcriber.Failure {
	return &transcriber.Failure{
		Message:   "processing interrupted: " + err.Error(),
		Status:    models.StatusAwaitingProcessing,
		Code:      transcriber.CodeTransientUpload,
		Transient: true,
	}
}

// parsePercent parses vendor progress strings like "42.17%". Garbage values
// are ignored rather than failing the run.
func parsePercent(s string) (int, bool) {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	if f < 0 {
		f = 0
	}
	if f > 100 {
		f = 100
	}
	return int(f), true
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
