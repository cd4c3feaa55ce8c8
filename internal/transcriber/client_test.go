package transcriber

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/soundscribe/backend/internal/models"
)

// mp3Header is enough of an MPEG frame for content sniffing to accept it.
var mp3Header = append([]byte("ID3\x03\x00\x00\x00\x00\x00\x00"), make([]byte, 64)...)

func writeTestAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sample.mp3")
	if err := os.WriteFile(path, mp3Header, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func testClient(url string) *Client {
	return New(Config{
		URL:           url,
		Token:         "secret",
		Language:      "fa",
		UploadRetries: 2,
		RetryBackoff:  time.Millisecond,
		HTTPTimeout:   time.Second,
	}, nil)
}

func TestUploadSuccess(t *testing.T) {
	var gotCommand, gotToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		gotCommand = r.FormValue("command")
		gotToken = r.FormValue("token")
		if _, _, err := r.FormFile("filehandle"); err != nil {
			t.Errorf("missing filehandle part: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]string{"Status": "Done", "FileToken": "ft-123"})
	}))
	defer srv.Close()

	token, failure := testClient(srv.URL).Upload(context.Background(), "sample.mp3", writeTestAudio(t))
	if failure != nil {
		t.Fatalf("Upload failed: %+v", failure)
	}
	if token != "ft-123" {
		t.Errorf("token = %q, want ft-123", token)
	}
	if gotCommand != "addfile" || gotToken != "secret" {
		t.Errorf("form = (%q, %q), want (addfile, secret)", gotCommand, gotToken)
	}
}

func TestUploadRetriesServerErrors(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"Status": "Done", "FileToken": "ft-123"})
	}))
	defer srv.Close()

	token, failure := testClient(srv.URL).Upload(context.Background(), "sample.mp3", writeTestAudio(t))
	if failure != nil {
		t.Fatalf("Upload failed after retry: %+v", failure)
	}
	if token != "ft-123" || calls != 2 {
		t.Errorf("token = %q, calls = %d", token, calls)
	}
}

func TestUploadExhaustedRetriesReportServiceUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, failure := testClient(srv.URL).Upload(context.Background(), "sample.mp3", writeTestAudio(t))
	if failure == nil {
		t.Fatal("Upload succeeded, want failure")
	}
	if failure.Status != models.StatusServiceUnavailable || failure.Code != CodeServiceUnavailable {
		t.Errorf("failure = %+v, want service unavailable", failure)
	}
	if !failure.Transient {
		t.Error("outage failure must be transient")
	}
}

func TestUploadNetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	_, failure := testClient(srv.URL).Upload(context.Background(), "sample.mp3", writeTestAudio(t))
	if failure == nil {
		t.Fatal("Upload succeeded, want failure")
	}
	if failure.Status != models.StatusAwaitingProcessing || failure.Code != CodeTransientUpload {
		t.Errorf("failure = %+v, want transient upload error", failure)
	}
}

func TestUploadCreditExhaustion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"Status": "NoEnoughCredit"})
	}))
	defer srv.Close()

	_, failure := testClient(srv.URL).Upload(context.Background(), "sample.mp3", writeTestAudio(t))
	if failure == nil {
		t.Fatal("Upload succeeded, want backpressure failure")
	}
	if failure.Code != CodeNoCredit || failure.Status != models.StatusAwaitingProcessing {
		t.Errorf("failure = %+v, want NoEnoughCredit/AP", failure)
	}
	if failure.Transient {
		t.Error("credit exhaustion is backpressure, not a transient retry case")
	}
}

func TestUploadMissingFile(t *testing.T) {
	_, failure := testClient("http://localhost:0").Upload(context.Background(), "x.mp3", "/nonexistent/x.mp3")
	if failure == nil {
		t.Fatal("Upload succeeded, want failure")
	}
	if failure.Status != models.StatusError {
		t.Errorf("failure status = %q, want %q", failure.Status, models.StatusError)
	}
}

func TestStartConvert(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.FormValue("command") != "convert" || r.FormValue("filetoken") != "ft-123" || r.FormValue("lang") != "fa" {
			t.Errorf("unexpected form: %v", r.Form)
		}
		json.NewEncoder(w).Encode(map[string]string{"Status": "ConvertStarted"})
	}))
	defer srv.Close()

	if failure := testClient(srv.URL).StartConvert(context.Background(), "ft-123"); failure != nil {
		t.Fatalf("StartConvert failed: %+v", failure)
	}
}

func TestStartConvertRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"Status": "SomethingElse"})
	}))
	defer srv.Close()

	failure := testClient(srv.URL).StartConvert(context.Background(), "ft-123")
	if failure == nil {
		t.Fatal("StartConvert succeeded, want failure")
	}
	if failure.Status != models.StatusError {
		t.Errorf("failure status = %q, want %q", failure.Status, models.StatusError)
	}
}

func TestPollConvert(t *testing.T) {
	cases := []struct {
		name     string
		body     map[string]string
		wantDone bool
		wantText string
		wantFail bool
	}{
		{
			name:     "finished",
			body:     map[string]string{"Status": "ConvertFinished", "Progress": "100.00%", "Output": "hello"},
			wantDone: true,
			wantText: "hello",
		},
		{
			name: "still converting",
			body: map[string]string{"Status": "ConvertStarted", "Progress": "42.17%"},
		},
		{
			name: "finished status but partial progress keeps polling",
			body: map[string]string{"Status": "ConvertFinished", "Progress": "99.10%"},
		},
		{
			name:     "finished with empty output is an error",
			body:     map[string]string{"Status": "ConvertFinished", "Progress": "100.00%", "Output": ""},
			wantFail: true,
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(c.body)
			}))
			defer srv.Close()

			poll, failure := testClient(srv.URL).PollConvert(context.Background(), "ft-123")
			if c.wantFail {
				if failure == nil {
					t.Fatal("PollConvert succeeded, want failure")
				}
				return
			}
			if failure != nil {
				t.Fatalf("PollConvert failed: %+v", failure)
			}
			if poll.Done != c.wantDone || poll.Text != c.wantText {
				t.Errorf("poll = %+v, want done=%v text=%q", poll, c.wantDone, c.wantText)
			}
		})
	}
}
