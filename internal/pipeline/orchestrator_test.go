package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/soundscribe/backend/internal/models"
	"github.com/soundscribe/backend/internal/refiner"
	"github.com/soundscribe/backend/internal/transcriber"
)

type fakeAudioStore struct {
	audio    *models.Audio
	statuses []models.AudioStatus
	token    string
	getErr   error
}

func (f *fakeAudioStore) GetByID(ctx context.Context, id int64) (*models.Audio, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.audio, nil
}

func (f *fakeAudioStore) UpdateStatus(ctx context.Context, id int64, status models.AudioStatus) error {
	f.statuses = append(f.statuses, status)
	return nil
}

func (f *fakeAudioStore) SetVendorToken(ctx context.Context, id int64, token string) error {
	f.token = token
	return nil
}

func (f *fakeAudioStore) lastStatus() models.AudioStatus {
	if len(f.statuses) == 0 {
		return ""
	}
	return f.statuses[len(f.statuses)-1]
}

type fakeTranscriptStore struct {
	raw       string
	processed string
	err       error
	calls     int
}

func (f *fakeTranscriptStore) Replace(ctx context.Context, audioID int64, rawText, processedText string) (*models.Transcript, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	f.raw = rawText
	f.processed = processedText
	return &models.Transcript{ID: 1, AudioID: audioID, RawText: rawText, ProcessedText: processedText}, nil
}

type fakeVendor struct {
	uploadToken   string
	uploadFailure *transcriber.Failure
	startFailure  *transcriber.Failure
	polls         []pollStep
	pollIdx       int
}

type pollStep struct {
	poll    *transcriber.Poll
	failure *transcriber.Failure
}

func (f *fakeVendor) Upload(ctx context.Context, name, path string) (string, *transcriber.Failure) {
	if f.uploadFailure != nil {
		return "", f.uploadFailure
	}
	return f.uploadToken, nil
}

func (f *fakeVendor) StartConvert(ctx context.Context, fileToken string) *transcriber.Failure {
	return f.startFailure
}

func (f *fakeVendor) PollConvert(ctx context.Context, fileToken string) (*transcriber.Poll, *transcriber.Failure) {
	if f.pollIdx >= len(f.polls) {
		return &transcriber.Poll{Progress: "0.00%"}, nil
	}
	step := f.polls[f.pollIdx]
	f.pollIdx++
	return step.poll, step.failure
}

type fakeRefiner struct {
	out string
	err error
}

func (f *fakeRefiner) Refine(ctx context.Context, prompt, raw string, meta refiner.Metadata) (string, error) {
	return f.out, f.err
}

type fakeResolver struct{}

func (fakeResolver) Resolve(ctx context.Context, audio *models.Audio) string {
	return "rewrite this"
}

type reportEvent struct {
	state   string
	pct     int
	kind    string
	message string
}

type fakeReporter struct {
	events []reportEvent
}

func (f *fakeReporter) Report(ctx context.Context, jobID string, percentage int, message string) error {
	f.events = append(f.events, reportEvent{state: "PROGRESS", pct: percentage, message: message})
	return nil
}

func (f *fakeReporter) Succeed(ctx context.Context, jobID string, result map[string]any) error {
	f.events = append(f.events, reportEvent{state: "SUCCESS", pct: 100})
	return nil
}

func (f *fakeReporter) Fail(ctx context.Context, jobID, kind, message string, retryAfter time.Duration) error {
	f.events = append(f.events, reportEvent{state: "FAILURE", kind: kind, message: message})
	return nil
}

func (f *fakeReporter) last() reportEvent {
	if len(f.events) == 0 {
		return reportEvent{}
	}
	return f.events[len(f.events)-1]
}

type fakeLocker struct {
	held     bool
	released bool
}

func (f *fakeLocker) Acquire(ctx context.Context, audioID int64) (func(), bool, error) {
	if f.held {
		return nil, false, nil
	}
	return func() { f.released = true }, true, nil
}

func testAudio() *models.Audio {
	return &models.Audio{
		ID:       7,
		PublicID: uuid.New(),
		Name:     "weekly sync",
		Subject:  "planning",
		Kind:     models.KindMeeting,
		Status:   models.StatusAwaitingProcessing,
	}
}

func newTestOrchestrator(audios *fakeAudioStore, transcripts *fakeTranscriptStore, vendor *fakeVendor, ref *fakeRefiner, rep *fakeReporter, lock *fakeLocker) *Orchestrator {
	cfg := Config{WarmupDelay: time.Millisecond, PollInterval: time.Millisecond, PollCeiling: time.Second}
	return New(cfg, audios, transcripts, vendor, ref, fakeResolver{}, rep, lock, nil)
}

func TestRunHappyPath(t *testing.T) {
	audios := &fakeAudioStore{audio: testAudio()}
	transcripts := &fakeTranscriptStore{}
	vendor := &fakeVendor{
		uploadToken: "tok-1",
		polls: []pollStep{
			{poll: &transcriber.Poll{Progress: "40.00%"}},
			{poll: &transcriber.Poll{Done: true, Text: "raw transcript"}},
		},
	}
	ref := &fakeRefiner{out: "refined transcript"}
	rep := &fakeReporter{}
	lock := &fakeLocker{}

	err := newTestOrchestrator(audios, transcripts, vendor, ref, rep, lock).Run(context.Background(), "job-1", 7, "sync.mp3", "/tmp/sync.mp3")
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if got := audios.lastStatus(); got != models.StatusProduced {
		t.Errorf("final status = %q, want %q", got, models.StatusProduced)
	}
	if audios.token != "tok-1" {
		t.Errorf("vendor token = %q, want tok-1", audios.token)
	}
	if transcripts.raw != "raw transcript" || transcripts.processed != "refined transcript" {
		t.Errorf("stored transcript = (%q, %q)", transcripts.raw, transcripts.processed)
	}
	if got := rep.last(); got.state != "SUCCESS" {
		t.Errorf("last progress event = %+v, want SUCCESS", got)
	}
	if !lock.released {
		t.Error("lock was not released")
	}
}

func TestRunRefinementFailureKeepsRawTranscript(t *testing.T) {
	audios := &fakeAudioStore{audio: testAudio()}
	transcripts := &fakeTranscriptStore{}
	vendor := &fakeVendor{
		uploadToken: "tok-1",
		polls:       []pollStep{{poll: &transcriber.Poll{Done: true, Text: "raw transcript"}}},
	}
	ref := &fakeRefiner{err: errors.New("model overloaded")}
	rep := &fakeReporter{}

	err := newTestOrchestrator(audios, transcripts, vendor, ref, rep, &fakeLocker{}).Run(context.Background(), "job-1", 7, "sync.mp3", "/tmp/sync.mp3")
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if got := audios.lastStatus(); got != models.StatusProduced {
		t.Errorf("final status = %q, want %q", got, models.StatusProduced)
	}
	if transcripts.raw != "raw transcript" {
		t.Errorf("raw text = %q, want preserved", transcripts.raw)
	}
	if transcripts.processed != "raw transcript" {
		t.Errorf("processed text = %q, want raw substituted", transcripts.processed)
	}
}

func TestRunCreditExhaustionIsBackpressure(t *testing.T) {
	audios := &fakeAudioStore{audio: testAudio()}
	vendor := &fakeVendor{
		uploadFailure: &transcriber.Failure{
			Message: "transcription service credit exhausted",
			Status:  models.StatusAwaitingProcessing,
			Code:    transcriber.CodeNoCredit,
		},
	}
	rep := &fakeReporter{}
	transcripts := &fakeTranscriptStore{}

	err := newTestOrchestrator(audios, transcripts, vendor, &fakeRefiner{}, rep, &fakeLocker{}).Run(context.Background(), "job-1", 7, "sync.mp3", "/tmp/sync.mp3")
	if !errors.Is(err, ErrBackpressure) {
		t.Fatalf("Run error = %v, want ErrBackpressure", err)
	}
	if got := audios.lastStatus(); got != models.StatusAwaitingProcessing {
		t.Errorf("final status = %q, want %q", got, models.StatusAwaitingProcessing)
	}
	if transcripts.calls != 0 {
		t.Error("transcript must not be written on backpressure")
	}
	if got := rep.last(); got.state != "PROGRESS" || got.pct != 0 || got.message == "" {
		t.Errorf("last progress event = %+v, want informational 0%% progress", got)
	}
}

func TestRunVendorOutageMarksServiceUnavailable(t *testing.T) {
	audios := &fakeAudioStore{audio: testAudio()}
	vendor := &fakeVendor{
		uploadFailure: &transcriber.Failure{
			Message:    "vendor returned HTTP 503 during upload",
			Status:     models.StatusServiceUnavailable,
			Code:       transcriber.CodeServiceUnavailable,
			Transient:  true,
			RetryAfter: 5 * time.Second,
		},
	}
	rep := &fakeReporter{}

	err := newTestOrchestrator(audios, &fakeTranscriptStore{}, vendor, &fakeRefiner{}, rep, &fakeLocker{}).Run(context.Background(), "job-1", 7, "sync.mp3", "/tmp/sync.mp3")
	if err == nil || errors.Is(err, ErrBackpressure) {
		t.Fatalf("Run error = %v, want hard error", err)
	}
	if got := audios.lastStatus(); got != models.StatusServiceUnavailable {
		t.Errorf("final status = %q, want %q", got, models.StatusServiceUnavailable)
	}
	if got := rep.last(); got.kind != transcriber.CodeServiceUnavailable {
		t.Errorf("failure kind = %q, want %q", got.kind, transcriber.CodeServiceUnavailable)
	}
}

func TestRunPollFailureMarksError(t *testing.T) {
	audios := &fakeAudioStore{audio: testAudio()}
	vendor := &fakeVendor{
		uploadToken: "tok-1",
		polls: []pollStep{
			{failure: &transcriber.Failure{Message: "invalid response from vendor", Status: models.StatusError}},
		},
	}

	err := newTestOrchestrator(audios, &fakeTranscriptStore{}, vendor, &fakeRefiner{}, &fakeReporter{}, &fakeLocker{}).Run(context.Background(), "job-1", 7, "sync.mp3", "/tmp/sync.mp3")
	if err == nil {
		t.Fatal("Run error = nil, want hard error")
	}
	if got := audios.lastStatus(); got != models.StatusError {
		t.Errorf("final status = %q, want %q", got, models.StatusError)
	}
}

func TestRunPollCeilingTimesOut(t *testing.T) {
	audios := &fakeAudioStore{audio: testAudio()}
	// Never finishes; the ceiling has to cut it off.
	vendor := &fakeVendor{uploadToken: "tok-1"}
	cfg := Config{WarmupDelay: time.Millisecond, PollInterval: time.Millisecond, PollCeiling: 20 * time.Millisecond}
	o := New(cfg, audios, &fakeTranscriptStore{}, vendor, &fakeRefiner{}, fakeResolver{}, &fakeReporter{}, &fakeLocker{}, nil)

	err := o.Run(context.Background(), "job-1", 7, "sync.mp3", "/tmp/sync.mp3")
	if err == nil {
		t.Fatal("Run error = nil, want timeout error")
	}
	if got := audios.lastStatus(); got != models.StatusError {
		t.Errorf("final status = %q, want %q", got, models.StatusError)
	}
}

func TestRunSkipsWhenLockHeld(t *testing.T) {
	audios := &fakeAudioStore{audio: testAudio()}
	transcripts := &fakeTranscriptStore{}

	err := newTestOrchestrator(audios, transcripts, &fakeVendor{}, &fakeRefiner{}, &fakeReporter{}, &fakeLocker{held: true}).Run(context.Background(), "job-1", 7, "sync.mp3", "/tmp/sync.mp3")
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(audios.statuses) != 0 {
		t.Errorf("status changed while lock held: %v", audios.statuses)
	}
	if transcripts.calls != 0 {
		t.Error("transcript written while lock held")
	}
}

func TestRunPersistenceFailureMarksError(t *testing.T) {
	audios := &fakeAudioStore{audio: testAudio()}
	transcripts := &fakeTranscriptStore{err: errors.New("connection refused")}
	vendor := &fakeVendor{
		uploadToken: "tok-1",
		polls:       []pollStep{{poll: &transcriber.Poll{Done: true, Text: "raw transcript"}}},
	}

	err := newTestOrchestrator(audios, transcripts, vendor, &fakeRefiner{out: "refined"}, &fakeReporter{}, &fakeLocker{}).Run(context.Background(), "job-1", 7, "sync.mp3", "/tmp/sync.mp3")
	if err == nil {
		t.Fatal("Run error = nil, want persistence error")
	}
	if got := audios.lastStatus(); got != models.StatusError {
		t.Errorf("final status = %q, want %q", got, models.StatusError)
	}
}

func TestParsePercent(t *testing.T) {
	cases := []struct {
		in   string
		want int
		ok   bool
	}{
		{"42.17%", 42, true},
		{"100.00%", 100, true},
		{" 7.5% ", 7, true},
		{"150%", 100, true},
		{"-3%", 0, true},
		{"", 0, false},
		{"garbage", 0, false},
		{"%", 0, false},
	}
	for _, c := range cases {
		got, ok := parsePercent(c.in)
		if got != c.want || ok != c.ok {
			t.Errorf("parsePercent(%q) = (%d, %v), want (%d, %v)", c.in, got, ok, c.want, c.ok)
		}
	}
}
