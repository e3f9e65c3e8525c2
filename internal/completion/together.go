package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/jaydahhei/reviewer2/internal/domain"
)

const defaultBaseURL = "https://api.together.xyz/v1/chat/completions"

// TogetherClient calls an OpenAI-compatible chat-completions endpoint.
type TogetherClient struct {
	APIKey  string
	BaseURL string
	HTTP    *http.Client
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// NewTogetherClient creates a client for the Together AI chat-completions API.
func NewTogetherClient(apiKey, baseURL string) *TogetherClient {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &TogetherClient{
		APIKey:  apiKey,
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: 120 * time.Second},
	}
}

// Complete sends the ordered message history and returns the generated text.
func (c *TogetherClient) Complete(ctx context.Context, req Request) (string, error) {
	if c.APIKey == "" {
		return "", &ProviderError{Message: "api key is not configured"}
	}

	body := chatRequest{
		Model:       req.Model,
		Messages:    wireMessages(req.Messages),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", &ProviderError{Message: "encode request", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(payload))
	if err != nil {
		return "", &ProviderError{Message: "build request", Err: err}
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return "", &ProviderError{Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &ProviderError{StatusCode: resp.StatusCode, Message: "read response", Err: err}
	}

	if resp.StatusCode >= 300 {
		var failure chatResponse
		if json.Unmarshal(raw, &failure) == nil && failure.Error != nil {
			return "", &ProviderError{StatusCode: resp.StatusCode, Message: failure.Error.Message}
		}
		return "", &ProviderError{StatusCode: resp.StatusCode, Message: string(raw)}
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", &ProviderError{StatusCode: resp.StatusCode, Message: "decode response", Err: err}
	}
	if parsed.Error != nil {
		return "", &ProviderError{StatusCode: resp.StatusCode, Message: parsed.Error.Message}
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", &ProviderError{StatusCode: resp.StatusCode, Message: "empty choice list"}
	}

	return parsed.Choices[0].Message.Content, nil
}

// wireMessages maps transcript roles onto the provider's role vocabulary.
// Reviewer messages travel as "assistant".
func wireMessages(messages []domain.Message) []chatMessage {
	out := make([]chatMessage, 0, len(messages))
	for _, m := range messages {
		role := string(m.Role)
		if m.Role == domain.RoleReviewer {
			role = "assistant"
		}
		out = append(out, chatMessage{Role: role, Content: m.Text})
	}
	return out
}

var _ Client = (*TogetherClient)(nil)
