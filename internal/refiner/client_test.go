package refiner

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func testConfig(url string) Config {
	return Config{URL: url, APIKey: "key", Model: "test-model"}
}

func TestRefineSuccess(t *testing.T) {
	var gotAuth string
	var gotReq completionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": "  refined text  "}},
			},
		})
	}))
	defer srv.Close()

	out, err := New(testConfig(srv.URL), nil).Refine(context.Background(), "rewrite this", "raw text", Metadata{
		KindLabel: "Meeting minutes",
		Title:     "weekly sync",
	})
	if err != nil {
		t.Fatalf("Refine failed: %v", err)
	}
	if out != "refined text" {
		t.Errorf("out = %q, want trimmed refined text", out)
	}
	if gotAuth != "Bearer key" {
		t.Errorf("auth header = %q", gotAuth)
	}
	if gotReq.Model != "test-model" || gotReq.MaxTokens != 1024 || gotReq.Temperature != 0.7 {
		t.Errorf("request = %+v, want defaults applied", gotReq)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" || gotReq.Messages[1].Content != "raw text" {
		t.Fatalf("messages = %+v", gotReq.Messages)
	}
	system := gotReq.Messages[0].Content
	if !strings.Contains(system, "rewrite this") || !strings.Contains(system, "Title: weekly sync") {
		t.Errorf("system message = %q", system)
	}
}

func TestRefineNotConfigured(t *testing.T) {
	_, err := New(Config{}, nil).Refine(context.Background(), "p", "raw", Metadata{})
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err = %v, want ErrNotConfigured", err)
	}
}

func TestRefineErrors(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name:    "non-2xx status",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTooManyRequests) },
		},
		{
			name: "no choices",
			handler: func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
			},
		},
		{
			name: "empty content",
			handler: func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]any{
					"choices": []map[string]any{{"message": map[string]string{"content": "   "}}},
				})
			},
		},
		{
			name:    "garbage body",
			handler: func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("not json")) },
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			srv := httptest.NewServer(c.handler)
			defer srv.Close()
			if _, err := New(testConfig(srv.URL), nil).Refine(context.Background(), "p", "raw", Metadata{}); err == nil {
				t.Fatal("Refine succeeded, want error")
			}
		})
	}
}

func TestBuildMessagesSkipsEmptyMetadata(t *testing.T) {
	msgs := buildMessages("prompt", "raw", Metadata{})
	if msgs[0].Content != "prompt" {
		t.Errorf("system = %q, want bare prompt", msgs[0].Content)
	}
}
