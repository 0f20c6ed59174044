package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"studio_server/core/domain"
	"studio_server/pkg/imageutil"
	"studio_server/pkg/resilience"
)

// contentGenerator is the slice of *genai.Models the adapters use.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiConfig holds Gemini settings.
type GeminiConfig struct {
	APIKey        string
	AnalysisModel string
	ImageModel    string
}

// NewGeminiClient creates the shared genai client.
func NewGeminiClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return client, nil
}

// =============================================================================
// Analyzer
// =============================================================================

// GeminiAnalyzer extracts a brand identity with structured JSON output.
type GeminiAnalyzer struct {
	models  contentGenerator
	model   string
	catalog *domain.AssetCatalog
	schema  *genai.Schema
	breaker *resilience.Breaker
	log     zerolog.Logger
}

func NewGeminiAnalyzer(models contentGenerator, model string, catalog *domain.AssetCatalog, log zerolog.Logger) *GeminiAnalyzer {
	cfg := resilience.DefaultBreakerConfig("gemini-analysis")
	cfg.IgnoreErrors = isCallerError
	return &GeminiAnalyzer{
		models:  models,
		model:   model,
		catalog: catalog,
		schema:  brandSchema(catalog),
		breaker: resilience.NewBreaker(cfg, log),
		log:     log.With().Str("component", "gemini_analyzer").Logger(),
	}
}

func (a *GeminiAnalyzer) Analyze(ctx context.Context, logo imageutil.Payload, category string) (*domain.BrandIdentity, error) {
	if logo.IsEmpty() {
		return nil, domain.NewInvalidInputError("", imageutil.ErrEmptyImage)
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(logo.Data, logo.MIMEType),
			genai.NewPartFromText(analysisPrompt(category, a.catalog)),
		}, genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   a.schema,
	}

	identity, err := resilience.Execute(a.breaker, func() (*domain.BrandIdentity, error) {
		resp, err := a.models.GenerateContent(ctx, a.model, contents, config)
		if err != nil {
			return nil, &domain.AnalysisError{Op: "gemini", Err: err}
		}
		if reason := blockReason(resp); reason != "" {
			return nil, &domain.AnalysisError{Op: "gemini", Err: fmt.Errorf("prompt blocked: %s", reason)}
		}
		return parseIdentity(resp.Text(), a.catalog)
	})
	if err != nil {
		if resilience.IsOpen(err) {
			return nil, &domain.AnalysisError{Op: "gemini", Err: err}
		}
		return nil, err
	}

	a.log.Debug().
		Str("model", a.model).
		Str("primary", identity.BrandColors.Primary).
		Int("assets", len(identity.VisualAssets)).
		Msg("logo analyzed")
	return identity, nil
}

// =============================================================================
// Generator
// =============================================================================

// GeminiGenerator renders assets with the image-capable model, passing the logo inline.
type GeminiGenerator struct {
	models  contentGenerator
	model   string
	breaker *resilience.Breaker
}

func NewGeminiGenerator(models contentGenerator, model string, log zerolog.Logger) *GeminiGenerator {
	cfg := resilience.DefaultBreakerConfig("gemini-image")
	cfg.IgnoreErrors = isCallerError
	return &GeminiGenerator{
		models:  models,
		model:   model,
		breaker: resilience.NewBreaker(cfg, log),
	}
}

func (g *GeminiGenerator) Generate(ctx context.Context, prompt string, identity *domain.BrandIdentity, logo imageutil.Payload) (*domain.GeneratedAsset, error) {
	parts := make([]*genai.Part, 0, 2)
	if !logo.IsEmpty() {
		parts = append(parts, genai.NewPartFromBytes(logo.Data, logo.MIMEType))
	}
	parts = append(parts, genai.NewPartFromText(enrichPrompt(prompt, identity, !logo.IsEmpty())))

	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	}

	asset, err := resilience.Execute(g.breaker, func() (*domain.GeneratedAsset, error) {
		resp, err := g.models.GenerateContent(ctx, g.model, contents, config)
		if err != nil {
			return nil, &domain.GenerationError{Err: err}
		}
		return extractImage(resp)
	})
	if err != nil {
		var gerr *domain.GenerationError
		if !errors.As(err, &gerr) {
			err = &domain.GenerationError{Err: err}
		}
		return nil, err
	}
	return asset, nil
}

var blockedFinishReasons = map[genai.FinishReason]bool{
	genai.FinishReasonSafety:                       true,
	genai.FinishReasonProhibitedContent:            true,
	genai.FinishReasonBlocklist:                    true,
	genai.FinishReasonSPII:                         true,
	genai.FinishReasonRecitation:                   true,
	genai.FinishReason("IMAGE_SAFETY"):             true,
	genai.FinishReason("IMAGE_PROHIBITED_CONTENT"): true,
}

// extractImage returns the first inline image of the first candidate.
func extractImage(resp *genai.GenerateContentResponse) (*domain.GeneratedAsset, error) {
	if reason := blockReason(resp); reason != "" {
		return nil, &domain.GenerationError{Blocked: true, Err: fmt.Errorf("prompt blocked: %s", reason)}
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, &domain.GenerationError{Err: errEmptyResponse}
	}

	candidate := resp.Candidates[0]
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				mime := part.InlineData.MIMEType
				if mime == "" {
					mime = "image/png"
				}
				return &domain.GeneratedAsset{Data: part.InlineData.Data, MIMEType: mime}, nil
			}
		}
	}

	if blockedFinishReasons[candidate.FinishReason] {
		return nil, &domain.GenerationError{Blocked: true, Err: fmt.Errorf("finish reason %s", candidate.FinishReason)}
	}
	return nil, &domain.GenerationError{Err: errors.New("no image data in response")}
}

func blockReason(resp *genai.GenerateContentResponse) string {
	if resp == nil || resp.PromptFeedback == nil {
		return ""
	}
	r := string(resp.PromptFeedback.BlockReason)
	if r == "" || strings.EqualFold(r, string(genai.BlockedReasonUnspecified)) {
		return ""
	}
	return r
}
