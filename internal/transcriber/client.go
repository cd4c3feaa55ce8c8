// Package transcriber wraps the speech-to-text vendor gateway. The gateway is
// a single endpoint driven by a command field: addfile uploads a recording and
// returns an opaque file token, convert starts the conversion, checkconvert
// reports progress and eventually the transcript text.
package transcriber

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

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/soundscribe/backend/internal/models"
)

// Failure codes surfaced to the orchestrator.
const (
	CodeTransientUpload    = "TransientUploadError"
	CodeServiceUnavailable = "ServiceUnavailable"
	CodeNoCredit           = "NoEnoughCredit"
)

// Failure describes a vendor call that did not produce a usable result. Every
// transport, parsing and vendor-level problem is normalized into this shape so
// the caller never branches on error types. Status is the audio lifecycle
// state the failure suggests; Code is set for the recognizable cases.
type Failure struct {
	Message    string
	Status     models.AudioStatus
	Code       string
	Transient  bool
	RetryAfter time.Duration // suggested delay before a manual retry, when transient
}

// Poll is the result of one checkconvert call that did not fail.
type Poll struct {
	Done     bool
	Text     string // set when Done
	Progress string // vendor-formatted percentage, e.g. "42.17%", when not Done
}

// Config holds the gateway endpoint and retry policy.
type Config struct {
	URL           string
	Token         string
	Language      string
	UploadRetries int
	RetryBackoff  time.Duration
	HTTPTimeout   time.Duration
}

// Client is a stateless gateway client. Safe for concurrent use.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

// New creates a vendor client.
func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.UploadRetries <= 0 {
		cfg.UploadRetries = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 5 * time.Second
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// gatewayResponse is the vendor's JSON body for all three commands.
type gatewayResponse struct {
	Status    string `json:"Status"`
	FileToken string `json:"FileToken"`
	Progress  string `json:"Progress"`
	Output    string `json:"Output"`
}

// Upload posts the recording as multipart form data and returns the vendor
// file token. Network errors and vendor 5xx responses are retried with fixed
// backoff before being surfaced as transient failures; credit exhaustion is
// reported as backpressure, not an error.
func (c *Client) Upload(ctx context.Context, name, path string) (string, *Failure) {
	data, err := os.ReadFile(path)
	if err != nil {
		c.logger.Error("audio file unreadable", zap.String("path", path), zap.Error(err))
		return "", &Failure{Message: "audio file not found on disk", Status: models.StatusError}
	}

	mime := "audio/mpeg"
	if mt := mimetype.Detect(data); mt != nil && strings.HasPrefix(mt.String(), "audio/") {
		mime = mt.String()
	}
	fileName := filepath.Base(name)
	if fileName == "" || fileName == "." {
		fileName = filepath.Base(path)
	}

	var lastFailure *Failure
	for attempt := 1; attempt <= c.cfg.UploadRetries; attempt++ {
		token, failure, retryable := c.uploadOnce(ctx, fileName, mime, data)
		if failure == nil {
			return token, nil
		}
		lastFailure = failure
		if !retryable {
			return "", failure
		}
		c.logger.Warn("upload attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.cfg.UploadRetries),
			zap.String("reason", failure.Message))
		if attempt < c.cfg.UploadRetries {
			if err := sleep(ctx, c.cfg.RetryBackoff); err != nil {
				return "", lastFailure
			}
		}
	}
	return "", lastFailure
}

// uploadOnce performs a single addfile request. retryable reports whether the
// failure is worth another local attempt.
func (c *Client) uploadOnce(ctx context.Context, fileName, mime string, data []byte) (token string, failure *Failure, retryable bool) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	_ = w.WriteField("command", "addfile")
	_ = w.WriteField("token", c.cfg.Token)
	part, err := w.CreateFormFile("filehandle", fileName)
	if err == nil {
		_, err = part.Write(data)
	}
	if err == nil {
		err = w.Close()
	}
	if err != nil {
		return "", &Failure{Message: "failed to build upload request", Status: models.StatusError}, false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, &body)
	if err != nil {
		return "", &Failure{Message: "failed to build upload request", Status: models.StatusError}, false
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &Failure{
			Message:    "network error during upload",
			Status:     models.StatusAwaitingProcessing,
			Code:       CodeTransientUpload,
			Transient:  true,
			RetryAfter: c.cfg.RetryBackoff,
		}, true
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return "", &Failure{
			Message:    fmt.Sprintf("vendor returned HTTP %d during upload", resp.StatusCode),
			Status:     models.StatusServiceUnavailable,
			Code:       CodeServiceUnavailable,
			Transient:  true,
			RetryAfter: c.cfg.RetryBackoff,
		}, true
	}
	if resp.StatusCode != http.StatusOK {
		return "", &Failure{
			Message: fmt.Sprintf("vendor returned HTTP %d during upload", resp.StatusCode),
			Status:  models.StatusError,
		}, false
	}

	var gw gatewayResponse
	if err := json.NewDecoder(resp.Body).Decode(&gw); err != nil {
		return "", &Failure{Message: "invalid response from vendor", Status: models.StatusError}, false
	}

	switch gw.Status {
	case "Done":
		if gw.FileToken == "" {
			return "", &Failure{Message: "vendor accepted upload but returned no file token", Status: models.StatusError}, false
		}
		return gw.FileToken, nil, false
	case "NoEnoughCredit":
		return "", &Failure{
			Message: "transcription service credit exhausted",
			Status:  models.StatusAwaitingProcessing,
			Code:    CodeNoCredit,
		}, false
	default:
		return "", &Failure{
			Message: fmt.Sprintf("vendor rejected upload (status %q)", gw.Status),
			Status:  models.StatusError,
		}, false
	}
}

// StartConvert asks the vendor to begin converting the uploaded file. Anything
// other than a ConvertStarted acknowledgement is a hard failure.
func (c *Client) StartConvert(ctx context.Context, fileToken string) *Failure {
	form := url.Values{
		"command":   {"convert"},
		"token":     {c.cfg.Token},
		"lang":      {c.cfg.Language},
		"filetoken": {fileToken},
	}
	gw, failure := c.postForm(ctx, form, "start conversion")
	if failure != nil {
		return failure
	}
	if gw.Status != "ConvertStarted" {
		return &Failure{
			Message: fmt.Sprintf("conversion did not start (status %q)", gw.Status),
			Status:  models.StatusError,
		}
	}
	return nil
}

// PollConvert checks conversion progress. The transcript is returned only when
// the vendor reports the conversion finished at 100% with non-empty output;
// otherwise the caller gets a processing marker to keep polling on.
func (c *Client) PollConvert(ctx context.Context, fileToken string) (*Poll, *Failure) {
	form := url.Values{
		"command":   {"checkconvert"},
		"token":     {c.cfg.Token},
		"filetoken": {fileToken},
	}
	gw, failure := c.postForm(ctx, form, "check conversion")
	if failure != nil {
		return nil, failure
	}
	if gw.Status == "ConvertFinished" && gw.Progress == "100.00%" {
		if gw.Output == "" {
			return nil, &Failure{Message: "conversion finished but no output was returned", Status: models.StatusError}
		}
		return &Poll{Done: true, Text: gw.Output}, nil
	}
	return &Poll{Progress: gw.Progress}, nil
}

func (c *Client) postForm(ctx context.Context, form url.Values, op string) (*gatewayResponse, *Failure) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &Failure{Message: fmt.Sprintf("failed to build %s request", op), Status: models.StatusError}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("vendor request failed", zap.String("op", op), zap.Error(err))
		return nil, &Failure{Message: fmt.Sprintf("network error during %s", op), Status: models.StatusError}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Error("vendor returned error status",
			zap.String("op", op),
			zap.Int("status_code", resp.StatusCode),
			zap.ByteString("body", body))
		return nil, &Failure{
			Message: fmt.Sprintf("vendor returned HTTP %d during %s", resp.StatusCode, op),
			Status:  models.StatusError,
		}
	}

	var gw gatewayResponse
	if err := json.NewDecoder(resp.Body).Decode(&gw); err != nil {
		return nil, &Failure{Message: "invalid response from vendor", Status: models.StatusError}
	}
	return &gw, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
