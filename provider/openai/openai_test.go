package openai_provider

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mohammad-safakhou/sitebot/config"
)

func testConfig(baseURL string) config.LLMProvider {
	return config.LLMProvider{
		Type:    "openai",
		APIKey:  "test-key",
		BaseURL: baseURL,
		Models: map[string]config.LLMModel{
			"default": {Name: "gpt-5", MaxTokens: 128, Temperature: 0.2},
		},
	}
}

func TestGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("missing auth header, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"choices":[{"message":{"content":"answer text"}}],"usage":{"prompt_tokens":12,"completion_tokens":7}}`)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	out, inTok, outTok, err := c.GenerateWithTokens(context.Background(), "hello", "default", nil)
	if err != nil {
		t.Fatalf("GenerateWithTokens() error = %v", err)
	}
	if out != "answer text" {
		t.Fatalf("unexpected content %q", out)
	}
	if inTok != 12 || outTok != 7 {
		t.Fatalf("unexpected usage %d/%d", inTok, outTok)
	}
}

func TestGenerateUnknownModel(t *testing.T) {
	c := NewClient(testConfig("http://unused"))
	if _, err := c.Generate(context.Background(), "hello", "missing", nil); err == nil {
		t.Fatalf("expected error for unconfigured model")
	}
}

func TestGenerateHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL))
	if _, err := c.Generate(context.Background(), "hello", "default", nil); err == nil {
		t.Fatalf("expected error for non-200 response")
	}
}
