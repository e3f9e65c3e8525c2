package completion

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jaydahhei/reviewer2/internal/domain"
)

func completionResponse(text string) string {
	return `{"choices":[{"message":{"content":` + mustJSON(text) + `}}]}`
}

func mustJSON(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestCompleteSuccess(t *testing.T) {
	t.Parallel()

	var captured chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization header = %q", got)
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("content type = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write([]byte(completionResponse("Ugh. Fine. The methodology is weak.")))
	}))
	defer srv.Close()

	client := NewTogetherClient("test-key", srv.URL)
	text, err := client.Complete(context.Background(), Request{
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Text: "You are a reviewer."},
			{Role: domain.RoleReviewer, Text: "Show me your abstract."},
			{Role: domain.RoleUser, Text: "We study X."},
		},
		Model:       "test-model",
		Temperature: 0.7,
		MaxTokens:   512,
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if text != "Ugh. Fine. The methodology is weak." {
		t.Errorf("unexpected text %q", text)
	}

	if captured.Model != "test-model" {
		t.Errorf("model = %q", captured.Model)
	}
	if captured.Temperature != 0.7 {
		t.Errorf("temperature = %v", captured.Temperature)
	}
	if captured.MaxTokens != 512 {
		t.Errorf("max_tokens = %d", captured.MaxTokens)
	}
	// Reviewer messages travel as "assistant" on the wire.
	wantRoles := []string{"system", "assistant", "user"}
	if len(captured.Messages) != len(wantRoles) {
		t.Fatalf("got %d wire messages, want %d", len(captured.Messages), len(wantRoles))
	}
	for i, want := range wantRoles {
		if captured.Messages[i].Role != want {
			t.Errorf("message %d role = %q, want %q", i, captured.Messages[i].Role, want)
		}
	}
}

func TestCompleteHTTPError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limit exceeded","type":"rate_limit"}}`))
	}))
	defer srv.Close()

	client := NewTogetherClient("test-key", srv.URL)
	_, err := client.Complete(context.Background(), Request{Model: "m"})
	if !IsProviderError(err) {
		t.Fatalf("expected provider error, got %v", err)
	}
	var pErr *ProviderError
	if !errors.As(err, &pErr) {
		t.Fatal("expected *ProviderError")
	}
	if pErr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", pErr.StatusCode)
	}
	if pErr.Message != "rate limit exceeded" {
		t.Errorf("message = %q", pErr.Message)
	}
}

func TestCompleteEmptyChoices(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	client := NewTogetherClient("test-key", srv.URL)
	_, err := client.Complete(context.Background(), Request{Model: "m"})
	if !IsProviderError(err) {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestCompleteMissingAPIKey(t *testing.T) {
	t.Parallel()

	client := NewTogetherClient("", "http://unused.invalid")
	_, err := client.Complete(context.Background(), Request{Model: "m"})
	if !IsProviderError(err) {
		t.Fatalf("expected provider error for missing key, got %v", err)
	}
}

func TestCompleteContextCancelled(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewTogetherClient("test-key", srv.URL)
	_, err := client.Complete(ctx, Request{Model: "m"})
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
