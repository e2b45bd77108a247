package clients

import (
	"context"
	"net/http"
	"strings"

	"github.com/pkg/errors"
)

// LLMClient talks to an OpenAI-compatible chat completions endpoint.
type LLMClient struct {
	client      *jsonClient
	model       string
	temperature float64
	maxTokens   int
}

type LLMOptions struct {
	Options
	Model       string
	Temperature float64
	MaxTokens   int
}

func NewLLMClient(opts LLMOptions) *LLMClient {
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &LLMClient{
		client:      newJSONClient("llm", opts.Options),
		model:       opts.Model,
		temperature: opts.Temperature,
		maxTokens:   maxTokens,
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
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
	} `json:"error"`
}

// Complete sends one system and one user message and returns the first
// choice's content.
func (c *LLMClient) Complete(ctx context.Context, system, user string) (string, error) {
	const op = "LLMClient.Complete"

	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}

	var resp chatResponse
	if err := c.client.do(ctx, op, http.MethodPost, "/chat/completions", req, &resp); err != nil {
		return "", err
	}
	if resp.Error != nil {
		return "", newClientError("llm", op, 0, nil, resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return "", newClientError("llm", op, 0, nil, "no choices returned")
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", newClientError("llm", op, 0, errors.New("empty content"), "model returned nothing")
	}
	return content, nil
}

// stripFences removes a surrounding markdown code fence, with or without a
// language tag.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 && !strings.ContainsAny(s[:i], "{[<(") {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if r := []rune(s); len(r) > n {
		return string(r[:n]) + "..."
	}
	return s
}
