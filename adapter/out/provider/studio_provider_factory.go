package provider

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"studio_server/core/domain"
	"studio_server/core/port/out"
)

// =============================================================================
// Provider Factory
// =============================================================================

const (
	Gemini = "gemini"
	OpenAI = "openai"
)

// OpenAIConfig holds OpenAI settings.
type OpenAIConfig struct {
	APIKey        string
	AnalysisModel string
	ImageModel    string
}

// FactoryConfig selects the backend and carries its settings.
type FactoryConfig struct {
	Provider string
	Gemini   *GeminiConfig
	OpenAI   *OpenAIConfig
}

// Providers is the analyzer/generator pair of one backend.
type Providers struct {
	Name      string
	Analyzer  out.IdentityAnalyzer
	Generator out.AssetGenerator
}

// NewProviders builds the analyzer and generator for cfg.Provider.
func NewProviders(ctx context.Context, cfg *FactoryConfig, catalog *domain.AssetCatalog, log zerolog.Logger) (*Providers, error) {
	switch cfg.Provider {
	case Gemini, "":
		return newGeminiProviders(ctx, cfg.Gemini, catalog, log)
	case OpenAI:
		return newOpenAIProviders(cfg.OpenAI, catalog, log)
	default:
		return nil, fmt.Errorf("unsupported AI provider: %s", cfg.Provider)
	}
}

func newGeminiProviders(ctx context.Context, cfg *GeminiConfig, catalog *domain.AssetCatalog, log zerolog.Logger) (*Providers, error) {
	if cfg == nil || cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	client, err := NewGeminiClient(ctx, cfg.APIKey)
	if err != nil {
		return nil, err
	}
	return &Providers{
		Name:      Gemini,
		Analyzer:  NewGeminiAnalyzer(client.Models, cfg.AnalysisModel, catalog, log),
		Generator: NewGeminiGenerator(client.Models, cfg.ImageModel, log),
	}, nil
}

func newOpenAIProviders(cfg *OpenAIConfig, catalog *domain.AssetCatalog, log zerolog.Logger) (*Providers, error) {
	if cfg == nil || cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	client := openai.NewClient(cfg.APIKey)
	return &Providers{
		Name:      OpenAI,
		Analyzer:  NewOpenAIAnalyzer(client, cfg.AnalysisModel, catalog, log),
		Generator: NewOpenAIGenerator(client, cfg.ImageModel, log),
	}, nil
}
