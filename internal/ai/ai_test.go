package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/generative-ai-go/genai"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mareye-api/internal/config"
)

type scriptedModel struct {
	errs  []error
	text  string
	calls int
	parts [][]genai.Part
}

func (m *scriptedModel) GenerateContent(_ context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	m.calls++
	m.parts = append(m.parts, parts)
	if m.calls <= len(m.errs) {
		return nil, m.errs[m.calls-1]
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []genai.Part{genai.Text(m.text)}}}},
	}, nil
}

func newTestGemini(text, vision generator) (*Gemini, *[]time.Duration) {
	g := newGemini(text, vision, zap.NewNop())
	g.retry.MaxJitter = 0
	var delays []time.Duration
	g.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return g, &delays
}

func TestGeminiRetriesOverloadWithBackoff(t *testing.T) {
	vision := &scriptedModel{
		errs: []error{errors.New("googleapi: Error 503: The model is overloaded"), errors.New("429 rate limit exceeded")},
		text: wellFormedSpecies,
	}
	g, delays := newTestGemini(&scriptedModel{}, vision)

	res, err := g.IdentifySpecies(context.Background(), []byte{0xff, 0xd8}, "image/png", "reef at 30m")
	require.NoError(t, err)

	assert.Equal(t, 3, vision.calls)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second}, *delays)
	assert.Equal(t, "Green sea turtle", res.Species)

	require.Len(t, vision.parts[0], 2)
	blob, ok := vision.parts[0][1].(genai.Blob)
	require.True(t, ok)
	assert.Equal(t, "image/png", blob.MIMEType)
	prompt, ok := vision.parts[0][0].(genai.Text)
	require.True(t, ok)
	assert.Contains(t, string(prompt), "reef at 30m")
}

func TestGeminiGivesUpAfterMaxAttempts(t *testing.T) {
	overloaded := errors.New("503 overloaded")
	text := &scriptedModel{errs: []error{overloaded, overloaded, overloaded, overloaded, overloaded}}
	g, delays := newTestGemini(text, &scriptedModel{})

	_, err := g.AssessThreats(context.Background(), ThreatInput{Location: Location{Region: "Arabian Sea"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, overloaded)
	assert.Equal(t, 4, text.calls)
	assert.Len(t, *delays, 3)
}

func TestGeminiDoesNotRetryOtherErrors(t *testing.T) {
	bad := errors.New("400 invalid argument")
	text := &scriptedModel{errs: []error{bad}}
	g, _ := newTestGemini(text, &scriptedModel{})

	_, err := g.AnalyzeGeneSequence(context.Background(), "ACGT", "COI", "")
	require.Error(t, err)
	assert.Equal(t, 1, text.calls)
}

func TestGeminiEmptyResponse(t *testing.T) {
	g, _ := newTestGemini(&scriptedModel{text: "   "}, &scriptedModel{})
	_, err := g.AnalyzeGeneSequence(context.Background(), "ACGT", "16S", "")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestGeneSequencePromptCarriesInputs(t *testing.T) {
	text := &scriptedModel{text: "Species: Lanternfish\nConfidence: 70\nHabitat: Mesopelagic"}
	g, _ := newTestGemini(text, &scriptedModel{})

	res, err := g.AnalyzeGeneSequence(context.Background(), "ACGTTGCA", "18S", "Mariana Trench")
	require.NoError(t, err)
	assert.Equal(t, StatusParsed, res.ParseStatus)

	prompt := string(text.parts[0][0].(genai.Text))
	assert.Contains(t, prompt, "ACGTTGCA")
	assert.Contains(t, prompt, "18S")
	assert.Contains(t, prompt, "Mariana Trench")
}

func TestGroqChat(t *testing.T) {
	var got openai.ChatCompletionRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/openai/v1/chat/completions", r.URL.Path)
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"- Use the detection page"}}]}`))
	}))
	defer srv.Close()

	g := NewGroqWithClient(config.AIConfig{GroqAPIKey: "k", GroqBaseURL: srv.URL + "/openai/v1/", GroqModel: "llama-3.1-70b-versatile"}, srv.Client())
	reply, err := g.Chat(context.Background(), "How do I detect mines?", "detection page")
	require.NoError(t, err)

	assert.Equal(t, "- Use the detection page", reply)
	assert.Equal(t, "Bearer k", auth)
	assert.Equal(t, "llama-3.1-70b-versatile", got.Model)
	assert.InDelta(t, 0.7, got.Temperature, 1e-6)
	assert.Equal(t, 1024, got.MaxTokens)
	require.Len(t, got.Messages, 2)
	assert.Contains(t, got.Messages[0].Content, "detection page")
	assert.Equal(t, "How do I detect mines?", got.Messages[1].Content)
}

func TestGroqChatUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid API Key"}}`))
	}))
	defer srv.Close()

	g := NewGroqWithClient(config.AIConfig{GroqBaseURL: srv.URL}, srv.Client())
	_, err := g.Chat(context.Background(), "hi", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrChatUnavailable)
	assert.Contains(t, err.Error(), "Invalid API Key")
}

func TestGroqChatRejectsMalformedSuccessBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":`))
	}))
	defer srv.Close()

	g := NewGroqWithClient(config.AIConfig{GroqAPIKey: "k", GroqBaseURL: srv.URL}, srv.Client())
	_, err := g.Chat(context.Background(), "hi", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrChatUnavailable)
	assert.NotContains(t, err.Error(), "empty completion")
}

func TestGroqChatEmptyCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	g := NewGroqWithClient(config.AIConfig{GroqAPIKey: "k", GroqBaseURL: srv.URL}, srv.Client())
	_, err := g.Chat(context.Background(), "hi", "")
	assert.ErrorIs(t, err, ErrChatUnavailable)
	assert.Contains(t, err.Error(), "empty completion")
}
