package provider

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"studio_server/core/domain"
	"studio_server/pkg/imageutil"
	"studio_server/pkg/resilience"
)

// chatCompleter and imageCreator are the parts of *openai.Client the adapters use.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type imageCreator interface {
	CreateImage(ctx context.Context, req openai.ImageRequest) (openai.ImageResponse, error)
}

const analysisSystemPrompt = "You are a senior brand designer. You analyze logos and answer with JSON only."

// OpenAIAnalyzer analyzes logos with a vision chat model in JSON mode.
type OpenAIAnalyzer struct {
	client  chatCompleter
	model   string
	catalog *domain.AssetCatalog
	breaker *resilience.Breaker
}

func NewOpenAIAnalyzer(client chatCompleter, model string, catalog *domain.AssetCatalog, log zerolog.Logger) *OpenAIAnalyzer {
	if model == "" {
		model = "gpt-4o"
	}
	cfg := resilience.DefaultBreakerConfig("openai-analysis")
	cfg.IgnoreErrors = isCallerError
	return &OpenAIAnalyzer{
		client:  client,
		model:   model,
		catalog: catalog,
		breaker: resilience.NewBreaker(cfg, log),
	}
}

func (a *OpenAIAnalyzer) Analyze(ctx context.Context, logo imageutil.Payload, category string) (*domain.BrandIdentity, error) {
	if logo.IsEmpty() {
		return nil, domain.NewInvalidInputError("", imageutil.ErrEmptyImage)
	}

	req := openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: analysisSystemPrompt},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: analysisPrompt(category, a.catalog) + "\n\n" + jsonShapeHint(a.catalog),
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    logo.DataURI(),
							Detail: openai.ImageURLDetailHigh,
						},
					},
				},
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.4,
	}

	identity, err := resilience.Execute(a.breaker, func() (*domain.BrandIdentity, error) {
		resp, err := a.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return nil, &domain.AnalysisError{Op: "openai", Err: err}
		}
		if len(resp.Choices) == 0 {
			return nil, &domain.AnalysisError{Op: "openai", Err: errEmptyResponse}
		}
		return parseIdentity(resp.Choices[0].Message.Content, a.catalog)
	})
	if err != nil {
		if resilience.IsOpen(err) {
			return nil, &domain.AnalysisError{Op: "openai", Err: err}
		}
		return nil, err
	}
	return identity, nil
}

// OpenAIGenerator renders assets with the images API. The images API takes text only,
// so the logo is described through the enriched prompt.
type OpenAIGenerator struct {
	client  imageCreator
	model   string
	breaker *resilience.Breaker
}

func NewOpenAIGenerator(client imageCreator, model string, log zerolog.Logger) *OpenAIGenerator {
	if model == "" {
		model = openai.CreateImageModelDallE3
	}
	cfg := resilience.DefaultBreakerConfig("openai-image")
	cfg.IgnoreErrors = isCallerError
	return &OpenAIGenerator{
		client:  client,
		model:   model,
		breaker: resilience.NewBreaker(cfg, log),
	}
}

func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string, identity *domain.BrandIdentity, logo imageutil.Payload) (*domain.GeneratedAsset, error) {
	text := enrichPrompt(prompt, identity, false)
	if identity != nil && identity.CompanyName != "" {
		text = fmt.Sprintf("Brand: %s\n%s", identity.CompanyName, text)
	}

	req := openai.ImageRequest{
		Model:          g.model,
		Prompt:         text,
		Size:           openai.CreateImageSize1024x1024,
		Quality:        openai.CreateImageQualityHD,
		Style:          openai.CreateImageStyleNatural,
		N:              1,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	}

	asset, err := resilience.Execute(g.breaker, func() (*domain.GeneratedAsset, error) {
		resp, err := g.client.CreateImage(ctx, req)
		if err != nil {
			return nil, &domain.GenerationError{Blocked: isContentPolicy(err), Err: err}
		}
		if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
			return nil, &domain.GenerationError{Err: errors.New("no image generated")}
		}
		data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
		if err != nil {
			return nil, &domain.GenerationError{Err: fmt.Errorf("decode image: %w", err)}
		}
		return &domain.GeneratedAsset{Data: data, MIMEType: "image/png"}, nil
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

func isContentPolicy(err error) bool {
	var apiErr *openai.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	code, _ := apiErr.Code.(string)
	return code == "content_policy_violation" || apiErr.Type == "image_generation_user_error"
}
