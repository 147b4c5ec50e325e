package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"mareye-api/internal/config"
	"mareye-api/internal/metrics"
)

const (
	chatTemperature = 0.7
	chatMaxTokens   = 1024
)

var ErrChatUnavailable = errors.New("chat completion failed")

const chatSystemPrompt = `You are the assistant of MarEye, a marine security platform.

Platform capabilities:
- AI detection of submarines, mines and divers in underwater imagery
- Underwater image enhancement with a CNN model
- Threat assessment and risk evaluation
- Real-time surveillance and monitoring
- Environmental data analysis for security operations

Help users understand these features, marine security concepts, underwater defense systems,
the detection workflow and the AI/ML techniques behind it.

When answering with several points, start each line with "-" so the chat window renders a list.
Be concise but thorough.`

// Groq talks to Groq's OpenAI-compatible chat completions endpoint.
type Groq struct {
	client *openai.Client
	model  string
}

func NewGroq(cfg config.AIConfig) *Groq {
	return NewGroqWithClient(cfg, &http.Client{Timeout: cfg.Timeout})
}

func NewGroqWithClient(cfg config.AIConfig, hc *http.Client) *Groq {
	oc := openai.DefaultConfig(cfg.GroqAPIKey)
	oc.BaseURL = strings.TrimRight(cfg.GroqBaseURL, "/")
	oc.HTTPClient = hc
	return &Groq{
		client: openai.NewClientWithConfig(oc),
		model:  cfg.GroqModel,
	}
}

// Chat sends one user message with optional page context and returns the reply text.
func (g *Groq) Chat(ctx context.Context, message, pageContext string) (string, error) {
	system := chatSystemPrompt
	if pageContext = strings.TrimSpace(pageContext); pageContext != "" {
		system += "\n\nCurrent page context:\n" + pageContext
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: message},
		},
		Temperature: chatTemperature,
		MaxTokens:   chatMaxTokens,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			metrics.UpstreamRequestsTotal.WithLabelValues("groq", "error").Inc()
			return "", fmt.Errorf("%w: %s", ErrChatUnavailable, apiErr.Message)
		}
		metrics.UpstreamRequestsTotal.WithLabelValues("groq", "network_error").Inc()
		return "", fmt.Errorf("%w: %v", ErrChatUnavailable, err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		metrics.UpstreamRequestsTotal.WithLabelValues("groq", "empty").Inc()
		return "", fmt.Errorf("%w: empty completion", ErrChatUnavailable)
	}

	metrics.UpstreamRequestsTotal.WithLabelValues("groq", "success").Inc()
	return resp.Choices[0].Message.Content, nil
}
