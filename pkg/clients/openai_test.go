package clients

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mikeboe/deep-research/pkg/config"
	"github.com/mikeboe/deep-research/pkg/llm"
)

type learningsResponse struct {
	Learnings []string `json:"learnings"`
}

func TestOpenAIProviderRequestsJSONSchema(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"{\"learnings\":[\"fact\"]}"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider(OpenAIConfig{APIKey: "test", BaseURL: srv.URL, Model: "o3-mini"})
	if err != nil {
		t.Fatalf("NewOpenAIProvider() error: %v", err)
	}

	got, err := llm.GenerateObject[learningsResponse](context.Background(), p, "learnings", "system", "prompt")
	if err != nil {
		t.Fatalf("GenerateObject() error: %v", err)
	}
	if len(got.Learnings) != 1 || got.Learnings[0] != "fact" {
		t.Errorf("learnings = %v, want [fact]", got.Learnings)
	}

	format, _ := body["response_format"].(map[string]any)
	if format["type"] != "json_schema" {
		t.Errorf("response_format.type = %v, want json_schema", format["type"])
	}
	if body["reasoning_effort"] != "medium" {
		t.Errorf("reasoning_effort = %v, want medium", body["reasoning_effort"])
	}
}

func TestOpenAIProviderSurfacesRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"Rate limit reached. Please try again in 2s.","type":"requests"}}`))
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider(OpenAIConfig{APIKey: "test", BaseURL: srv.URL, Model: "gpt-4o-mini"})
	if err != nil {
		t.Fatalf("NewOpenAIProvider() error: %v", err)
	}

	_, err = p.Generate(context.Background(), llm.Request{System: "s", Prompt: "p"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "429") {
		t.Errorf("error %q does not carry the status code", err)
	}
}

func TestNewProviderRejectsUnknown(t *testing.T) {
	_, err := NewProvider(context.Background(), &config.Config{LLMProvider: "mystery"})
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestNewOpenAIProviderRequiresKey(t *testing.T) {
	if _, err := NewOpenAIProvider(OpenAIConfig{}); err == nil {
		t.Fatal("expected error without api key")
	}
}
