// Package worker runs background transcription jobs dequeued from Redis.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/soundscribe/backend/internal/pipeline"
	"github.com/soundscribe/backend/pkg/queue"
	"github.com/soundscribe/backend/pkg/storage"
)

// Archiver copies a processed recording into long-term storage and returns the
// storage key.
type Archiver interface {
	ArchiveAudio(ctx context.Context, key, contentType string, body io.Reader, contentLength int64) (string, error)
}

// ArchiveKeyStore records where an audio was archived.
type ArchiveKeyStore interface {
	SetArchiveKey(ctx context.Context, audioID int64, key string) error
}

// TranscriptionProcessor consumes transcription jobs and hands them to the
// pipeline. Jobs that fail hard are dead-lettered for inspection instead of
// being retried, because the pipeline already recorded the failure on the
// audio row and a blind re-run would repeat it.
type TranscriptionProcessor struct {
	orch     *pipeline.Orchestrator
	queue    *queue.Queue
	archiver Archiver
	keys     ArchiveKeyStore
	logger   *zap.Logger
}

// NewTranscriptionProcessor creates a transcription job processor. archiver
// and keys may be nil to disable archival.
func NewTranscriptionProcessor(orch *pipeline.Orchestrator, q *queue.Queue, archiver Archiver, keys ArchiveKeyStore, logger *zap.Logger) *TranscriptionProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TranscriptionProcessor{orch: orch, queue: q, archiver: archiver, keys: keys, logger: logger}
}

// Process executes one transcription job.
func (p *TranscriptionProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeTranscription {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.TranscriptionPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	if err := p.orch.Run(ctx, job.ID, payload.AudioID, payload.FileName, payload.FilePath); err != nil {
		return err
	}

	p.archive(ctx, payload)
	return nil
}

// archive is best effort: the transcript is already stored, so storage
// problems only cost us the long-term copy.
func (p *TranscriptionProcessor) archive(ctx context.Context, payload queue.TranscriptionPayload) {
	if p.archiver == nil {
		return
	}
	f, err := os.Open(payload.FilePath)
	if err != nil {
		p.logger.Warn("archive skipped, file unreadable", zap.String("path", payload.FilePath), zap.Error(err))
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		p.logger.Warn("archive skipped, stat failed", zap.Error(err))
		return
	}

	key := storage.AudioKey(payload.AudioID, payload.FileName)
	storedKey, err := p.archiver.ArchiveAudio(ctx, key, "audio/mpeg", f, info.Size())
	if err != nil {
		p.logger.Warn("archive upload failed", zap.Int64("audio_id", payload.AudioID), zap.Error(err))
		return
	}
	if p.keys != nil {
		if err := p.keys.SetArchiveKey(ctx, payload.AudioID, storedKey); err != nil {
			p.logger.Warn("could not record archive key", zap.Error(err))
		}
	}
	p.logger.Info("audio archived", zap.Int64("audio_id", payload.AudioID), zap.String("key", storedKey))
}

// Run starts the worker loop: dequeue, process, dead-letter hard failures.
func (p *TranscriptionProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("transcription worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			if errors.Is(err, pipeline.ErrBackpressure) {
				p.logger.Warn("job paused on vendor backpressure", zap.String("job_id", job.ID))
				continue
			}
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if dlqErr := p.queue.PushDLQ(ctx, job); dlqErr != nil {
				p.logger.Error("dead-letter push failed", zap.Error(dlqErr))
			}
		}
	}
}
