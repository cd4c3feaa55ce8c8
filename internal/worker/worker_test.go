package worker

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/soundscribe/backend/internal/models"
	"github.com/soundscribe/backend/internal/pipeline"
	"github.com/soundscribe/backend/internal/refiner"
	"github.com/soundscribe/backend/internal/transcriber"
	"github.com/soundscribe/backend/pkg/queue"
	"github.com/soundscribe/backend/pkg/storage"
)

type stubAudioStore struct{ audio *models.Audio }

func (s *stubAudioStore) GetByID(ctx context.Context, id int64) (*models.Audio, error) {
	return s.audio, nil
}
func (s *stubAudioStore) UpdateStatus(ctx context.Context, id int64, status models.AudioStatus) error {
	return nil
}
func (s *stubAudioStore) SetVendorToken(ctx context.Context, id int64, token string) error {
	return nil
}

type stubTranscriptStore struct{}

func (stubTranscriptStore) Replace(ctx context.Context, audioID int64, rawText, processedText string) (*models.Transcript, error) {
	return &models.Transcript{ID: 1, AudioID: audioID, RawText: rawText, ProcessedText: processedText}, nil
}

type stubVendor struct{}

func (stubVendor) Upload(ctx context.Context, name, path string) (string, *transcriber.Failure) {
	return "tok-1", nil
}
func (stubVendor) StartConvert(ctx context.Context, fileToken string) *transcriber.Failure {
	return nil
}
func (stubVendor) PollConvert(ctx context.Context, fileToken string) (*transcriber.Poll, *transcriber.Failure) {
	return &transcriber.Poll{Done: true, Text: "raw transcript"}, nil
}

type stubRefiner struct{}

func (stubRefiner) Refine(ctx context.Context, prompt, raw string, meta refiner.Metadata) (string, error) {
	return "refined transcript", nil
}

type stubResolver struct{}

func (stubResolver) Resolve(ctx context.Context, audio *models.Audio) string { return "rewrite this" }

type stubReporter struct{}

func (stubReporter) Report(ctx context.Context, jobID string, percentage int, message string) error {
	return nil
}
func (stubReporter) Succeed(ctx context.Context, jobID string, result map[string]any) error {
	return nil
}
func (stubReporter) Fail(ctx context.Context, jobID, kind, message string, retryAfter time.Duration) error {
	return nil
}

type stubLocker struct{}

func (stubLocker) Acquire(ctx context.Context, audioID int64) (func(), bool, error) {
	return func() {}, true, nil
}

type recordingArchiver struct {
	key         string
	contentType string
	size        int64
	body        []byte
}

func (a *recordingArchiver) ArchiveAudio(ctx context.Context, key, contentType string, body io.Reader, contentLength int64) (string, error) {
	a.key = key
	a.contentType = contentType
	a.size = contentLength
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	a.body = data
	return key, nil
}

type recordingKeyStore struct {
	audioID int64
	key     string
}

func (s *recordingKeyStore) SetArchiveKey(ctx context.Context, audioID int64, key string) error {
	s.audioID = audioID
	s.key = key
	return nil
}

func newStubOrchestrator() *pipeline.Orchestrator {
	cfg := pipeline.Config{WarmupDelay: time.Millisecond, PollInterval: time.Millisecond, PollCeiling: time.Second}
	audios := &stubAudioStore{audio: &models.Audio{
		ID:       7,
		PublicID: uuid.New(),
		Name:     "weekly sync",
		Kind:     models.KindMeeting,
		Status:   models.StatusAwaitingProcessing,
	}}
	return pipeline.New(cfg, audios, stubTranscriptStore{}, stubVendor{}, stubRefiner{}, stubResolver{}, stubReporter{}, stubLocker{}, nil)
}

func transcriptionJob(t *testing.T, payload queue.TranscriptionPayload) *queue.Job {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return &queue.Job{ID: "job-1", Type: queue.JobTypeTranscription, Payload: body, CreatedAt: time.Now()}
}

func TestProcessArchivesUnderCanonicalKey(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "sync.mp3")
	content := []byte("fake mp3 bytes")
	if err := os.WriteFile(filePath, content, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	archiver := &recordingArchiver{}
	keys := &recordingKeyStore{}
	p := NewTranscriptionProcessor(newStubOrchestrator(), nil, archiver, keys, nil)

	job := transcriptionJob(t, queue.TranscriptionPayload{AudioID: 7, FileName: "sync.mp3", FilePath: filePath})
	if err := p.Process(context.Background(), job); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}

	want := storage.AudioKey(7, "sync.mp3")
	if archiver.key != want {
		t.Errorf("archive key = %q, want %q", archiver.key, want)
	}
	if archiver.contentType != "audio/mpeg" {
		t.Errorf("content type = %q, want audio/mpeg", archiver.contentType)
	}
	if archiver.size != int64(len(content)) || string(archiver.body) != string(content) {
		t.Errorf("archived %d bytes %q, want %d bytes %q", archiver.size, archiver.body, len(content), content)
	}
	if keys.audioID != 7 || keys.key != want {
		t.Errorf("recorded archive key = (%d, %q), want (7, %q)", keys.audioID, keys.key, want)
	}
}

func TestProcessSkipsArchivalWithoutArchiver(t *testing.T) {
	p := NewTranscriptionProcessor(newStubOrchestrator(), nil, nil, nil, nil)

	job := transcriptionJob(t, queue.TranscriptionPayload{AudioID: 7, FileName: "sync.mp3", FilePath: "/nonexistent/sync.mp3"})
	if err := p.Process(context.Background(), job); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
}
