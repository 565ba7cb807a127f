// Package reasoning calls a hosted language model to rate how well a care
// provider's specializations fit a described concern.
package reasoning

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
)

var (
	ErrEmptyResponse = errors.New("reasoning: empty response")
	ErrBadScore      = errors.New("reasoning: response is not a score in [0,1]")
)

const DefaultModel = "gemini-1.5-flash"

type generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

type Config struct {
	APIKey string
	Model  string
	// RPS caps outbound calls per second; zero leaves calls unthrottled.
	RPS float64
}

// GeminiClient rates concern/specialization relevance with a Gemini model.
type GeminiClient struct {
	client  *genai.Client
	model   generator
	limiter *rate.Limiter
}

func NewGeminiClient(ctx context.Context, cfg Config) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("reasoning: api key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	name := cfg.Model
	if name == "" {
		name = DefaultModel
	}
	model := client.GenerativeModel(name)
	model.SetTemperature(0)
	model.SetCandidateCount(1)
	model.SetMaxOutputTokens(8)
	model.SystemInstruction = genai.NewUserContent(genai.Text(
		"You rate how relevant a clinician's specializations are to a described concern. " +
			"Reply with a single decimal number between 0 and 1 and nothing else."))

	return &GeminiClient{client: client, model: model, limiter: newLimiter(cfg.RPS)}, nil
}

func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// Relevance returns a score in [0,1]. The caller bounds the call with ctx.
func (g *GeminiClient) Relevance(ctx context.Context, concern string, specializations []string) (float64, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("reasoning rate limit: %w", err)
	}
	resp, err := g.model.GenerateContent(ctx, genai.Text(Prompt(concern, specializations)))
	if err != nil {
		return 0, fmt.Errorf("gemini generate: %w", err)
	}
	return ParseScore(responseText(resp))
}

func (g *GeminiClient) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}

// Prompt renders the relevance question sent to the model.
func Prompt(concern string, specializations []string) string {
	var b strings.Builder
	b.WriteString("Concern: ")
	b.WriteString(strings.TrimSpace(concern))
	b.WriteString("\nSpecializations: ")
	b.WriteString(strings.Join(specializations, ", "))
	b.WriteString("\nRelevance score (0 to 1):")
	return b.String()
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return sb.String()
}

var numberPattern = regexp.MustCompile(`[-+]?\d*\.?\d+`)

// ParseScore extracts the first number in text and requires it to lie in [0,1].
func ParseScore(text string) (float64, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, ErrEmptyResponse
	}
	match := numberPattern.FindString(text)
	if match == "" {
		return 0, fmt.Errorf("%w: %q", ErrBadScore, text)
	}
	v, err := strconv.ParseFloat(match, 64)
	if err != nil || v < 0 || v > 1 {
		return 0, fmt.Errorf("%w: %q", ErrBadScore, text)
	}
	return v, nil
}
