package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"itinerary-planner/internal/models"
)

func TestClientGenerateSuccess(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" || r.Method != http.MethodPost {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"itinerary\":[]}"}}]}`))
	}))
	defer server.Close()

	client := New(Config{APIKey: "test-key", BaseURL: server.URL + "/", Model: "grok-3", MaxTokens: 321, Timeout: 2 * time.Second})
	text, err := client.Generate(context.Background(), "Paris", 3)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if text != `{"itinerary":[]}` {
		t.Fatalf("unexpected content %q", text)
	}
	if got.Model != "grok-3" || got.MaxTokens != 321 {
		t.Fatalf("unexpected request body: %+v", got)
	}
	if len(got.Messages) != 1 || got.Messages[0].Role != "user" {
		t.Fatalf("expected one user message, got %+v", got.Messages)
	}
	if !strings.Contains(got.Messages[0].Content, "Paris for 3 days") {
		t.Fatalf("prompt missing destination/duration: %q", got.Messages[0].Content)
	}
}

func TestClientGenerateHTTPErrorDoesNotRetry(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"rate_limited"}`))
	}))
	defer server.Close()

	client := New(Config{APIKey: "k", BaseURL: server.URL, Timeout: 2 * time.Second})
	_, err := client.Generate(context.Background(), "Rome", 2)
	var perr *models.ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if perr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d", perr.StatusCode)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("expected exactly one call, got %d", n)
	}
}

func TestClientGenerateTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := New(Config{APIKey: "k", BaseURL: server.URL, Timeout: 50 * time.Millisecond})
	_, err := client.Generate(context.Background(), "Oslo", 1)
	var perr *models.ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if !perr.Timeout() {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestClientGenerateTransportError(t *testing.T) {
	client := New(Config{
		APIKey:  "k",
		BaseURL: "http://provider.invalid",
		HTTPClient: &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
			return nil, errors.New("connection refused")
		})},
	})
	_, err := client.Generate(context.Background(), "Oslo", 1)
	var perr *models.ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("error should describe the transport failure: %v", err)
	}
}

func TestClientGenerateMalformedEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html>gateway</html>`))
	}))
	defer server.Close()

	client := New(Config{APIKey: "k", BaseURL: server.URL})
	_, err := client.Generate(context.Background(), "Oslo", 1)
	var perr *models.ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProviderError for undecodable envelope, got %v", err)
	}
}

func TestClientGenerateMissingContentIsParseError(t *testing.T) {
	for name, body := range map[string]string{
		"no choices":   `{"choices":[]}`,
		"no content":   `{"choices":[{"message":{"role":"assistant"}}]}`,
		"empty object": `{}`,
	} {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(body))
			}))
			defer server.Close()

			client := New(Config{APIKey: "k", BaseURL: server.URL})
			_, err := client.Generate(context.Background(), "Oslo", 1)
			var perr *models.ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("expected ParseError, got %v", err)
			}
			if perr.Raw != body {
				t.Fatalf("raw envelope not preserved: %q", perr.Raw)
			}
		})
	}
}

func TestClientGenerateTruncatesErrorBodyOnRuneBoundary(t *testing.T) {
	body := strings.Repeat("a", 699) + strings.Repeat("é", 10)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(body))
	}))
	defer server.Close()

	client := New(Config{APIKey: "k", BaseURL: server.URL})
	_, err := client.Generate(context.Background(), "Tromsø", 2)
	var perr *models.ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if !utf8.ValidString(perr.Message) {
		t.Fatalf("truncated message is not valid UTF-8: %q", perr.Message)
	}
	if perr.Message != strings.Repeat("a", 699) {
		t.Fatalf("expected cut before the split rune, got %d bytes", len(perr.Message))
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}
