package ai

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"mareye-api/internal/config"
	"mareye-api/internal/metrics"
)

var ErrEmptyResponse = errors.New("gemini returned no text")

// generator is the part of *genai.GenerativeModel used here.
type generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxJitter   time.Duration
}

var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 4, BaseDelay: 500 * time.Millisecond, MaxJitter: 200 * time.Millisecond}

type Gemini struct {
	client *genai.Client
	text   generator
	vision generator
	retry  RetryPolicy
	sleep  func(ctx context.Context, d time.Duration) error
	logger *zap.Logger
}

func NewGemini(ctx context.Context, cfg config.AIConfig, logger *zap.Logger) (*Gemini, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	text := client.GenerativeModel(cfg.GeminiTextModel)
	vision := client.GenerativeModel(cfg.GeminiVisionModel)
	for _, m := range []*genai.GenerativeModel{text, vision} {
		m.SetTemperature(0.2)
	}

	g := newGemini(text, vision, logger)
	g.client = client
	return g, nil
}

func newGemini(text, vision generator, logger *zap.Logger) *Gemini {
	return &Gemini{
		text:   text,
		vision: vision,
		retry:  DefaultRetryPolicy,
		sleep:  sleepCtx,
		logger: logger,
	}
}

func (g *Gemini) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}

// IdentifySpecies asks the vision model to identify the organism in image.
func (g *Gemini) IdentifySpecies(ctx context.Context, image []byte, mimeType, hint string) (*SpeciesResult, error) {
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	text, err := g.generate(ctx, g.vision, genai.Text(speciesImagePrompt(hint)), genai.Blob{MIMEType: mimeType, Data: image})
	if err != nil {
		return nil, fmt.Errorf("failed to identify species from image: %w", err)
	}
	return ParseSpecies(text), nil
}

func (g *Gemini) AnalyzeGeneSequence(ctx context.Context, sequence, sequenceType, location string) (*SpeciesResult, error) {
	text, err := g.generate(ctx, g.text, genai.Text(geneSequencePrompt(sequence, sequenceType, location)))
	if err != nil {
		return nil, fmt.Errorf("failed to analyze gene sequence: %w", err)
	}
	return ParseSpecies(text), nil
}

func (g *Gemini) AssessThreats(ctx context.Context, in ThreatInput) (*ThreatResult, error) {
	text, err := g.generate(ctx, g.text, genai.Text(threatPrompt(in)))
	if err != nil {
		return nil, fmt.Errorf("failed to assess environmental threats: %w", err)
	}
	return ParseThreat(text), nil
}

func (g *Gemini) generate(ctx context.Context, model generator, parts ...genai.Part) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= g.retry.MaxAttempts; attempt++ {
		resp, err := model.GenerateContent(ctx, parts...)
		if err == nil {
			text := responseText(resp)
			if text == "" {
				metrics.UpstreamRequestsTotal.WithLabelValues("gemini", "empty").Inc()
				return "", ErrEmptyResponse
			}
			metrics.UpstreamRequestsTotal.WithLabelValues("gemini", "success").Inc()
			return text, nil
		}

		lastErr = err
		if !retryable(err) || attempt == g.retry.MaxAttempts {
			break
		}

		delay := g.retry.BaseDelay << (attempt - 1)
		if g.retry.MaxJitter > 0 {
			delay += time.Duration(rand.Int63n(int64(g.retry.MaxJitter)))
		}
		g.logger.Warn("Gemini overloaded, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		metrics.UpstreamRequestsTotal.WithLabelValues("gemini", "retry").Inc()
		if err := g.sleep(ctx, delay); err != nil {
			return "", err
		}
	}

	metrics.UpstreamRequestsTotal.WithLabelValues("gemini", "error").Inc()
	return "", lastErr
}

var transientPattern = regexp.MustCompile(`(?i)503|overloaded|temporarily unavailable|429|rate limit`)

func retryable(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusServiceUnavailable || apiErr.Code == http.StatusTooManyRequests {
			return true
		}
	}
	return transientPattern.MatchString(err.Error())
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return strings.TrimSpace(b.String())
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
