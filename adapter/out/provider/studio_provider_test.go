package provider

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"

	"studio_server/core/domain"
	"studio_server/pkg/imageutil"
)

func testCatalog(t *testing.T) *domain.AssetCatalog {
	t.Helper()
	c, err := domain.NewAssetCatalog([]domain.AssetSpec{
		{Key: "logoLight", Prompt: "logo on white with [PRIMARY_COLOR] border"},
		{Key: "businessCard", Prompt: "card in [PRIMARY_COLOR]"},
	})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func identityJSON(t *testing.T, mutate func(m map[string]any)) string {
	t.Helper()
	m := map[string]any{
		"companyName": "Lumen",
		"brandColors": map[string]string{
			"primary": "#1A2B3C", "secondary": "#F0E0D0", "accent": "#FF6600",
			"background": "#F8F9FA", "text": "#111111",
		},
		"typography":   map[string]string{"heading": "Montserrat", "body": "Inter"},
		"brandVoice":   []string{"audacieux", "moderne", "fiable"},
		"visualAssets": map[string]string{"logoLight": "logo [PRIMARY_COLOR]", "businessCard": "card [PRIMARY_COLOR]"},
		"validation":   map[string]any{"isValidLogo": true},
	}
	if mutate != nil {
		mutate(m)
	}
	b, err := json.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

var pngLogo = imageutil.Payload{Data: []byte("\x89PNG fake"), MIMEType: "image/png"}

// =============================================================================
// Parsing and prompts
// =============================================================================

func TestParseIdentity(t *testing.T) {
	catalog := testCatalog(t)

	tests := []struct {
		name        string
		raw         string
		wantInvalid string
		wantAnalyze bool
	}{
		{name: "valid", raw: identityJSON(t, nil)},
		{name: "fenced", raw: "```json\n" + identityJSON(t, nil) + "\n```"},
		{
			name: "refused with reason",
			raw: identityJSON(t, func(m map[string]any) {
				m["validation"] = map[string]any{"isValidLogo": false, "refusalReason": "Ceci est une photo de personne"}
			}),
			wantInvalid: "Ceci est une photo de personne",
		},
		{
			name: "refused without reason",
			raw: identityJSON(t, func(m map[string]any) {
				m["validation"] = map[string]any{"isValidLogo": false}
			}),
			wantInvalid: domain.MsgInvalidLogo,
		},
		{name: "empty", raw: "  ", wantAnalyze: true},
		{name: "not json", raw: "the logo is blue", wantAnalyze: true},
		{
			name: "missing asset prompt",
			raw: identityJSON(t, func(m map[string]any) {
				m["visualAssets"] = map[string]string{"logoLight": "x"}
			}),
			wantAnalyze: true,
		},
		{
			name: "bad color",
			raw: identityJSON(t, func(m map[string]any) {
				m["brandColors"] = map[string]string{"primary": "blue"}
			}),
			wantAnalyze: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseIdentity(tt.raw, catalog)

			var invalid *domain.InvalidInputError
			var aerr *domain.AnalysisError
			switch {
			case tt.wantInvalid != "":
				if !errors.As(err, &invalid) {
					t.Fatalf("err = %v, want InvalidInputError", err)
				}
				if invalid.Reason != tt.wantInvalid {
					t.Errorf("Reason = %q, want %q", invalid.Reason, tt.wantInvalid)
				}
			case tt.wantAnalyze:
				if !errors.As(err, &aerr) {
					t.Fatalf("err = %v, want AnalysisError", err)
				}
			default:
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if got.BrandColors.Primary != "#1A2B3C" || got.CompanyName != "Lumen" {
					t.Errorf("identity = %+v", got)
				}
			}
		})
	}
}

func TestBrandSchema_FollowsCatalog(t *testing.T) {
	s := brandSchema(testCatalog(t))

	assets := s.Properties["visualAssets"]
	if assets == nil {
		t.Fatal("visualAssets missing from schema")
	}
	if len(assets.Properties) != 2 {
		t.Errorf("asset properties = %d, want 2", len(assets.Properties))
	}
	if strings.Join(assets.Required, ",") != "logoLight,businessCard" {
		t.Errorf("Required = %v", assets.Required)
	}
	if assets.Properties["businessCard"].Description != "card in [PRIMARY_COLOR]" {
		t.Errorf("description = %q", assets.Properties["businessCard"].Description)
	}
	if s.Properties["validation"].Properties["isValidLogo"].Type != genai.TypeBoolean {
		t.Error("isValidLogo must be boolean")
	}
}

func TestAnalysisPrompt(t *testing.T) {
	p := analysisPrompt("Mode & Luxe", testCatalog(t))
	for _, want := range []string{"Mode & Luxe", "- logoLight: logo on white", "- businessCard: card in"} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if strings.Contains(analysisPrompt("", testCatalog(t)), "Business category") {
		t.Error("empty category should not be mentioned")
	}
}

func TestEnrichPrompt(t *testing.T) {
	identity := &domain.BrandIdentity{BrandColors: domain.BrandColors{
		Primary: "#112233", Secondary: "#aabbcc", Accent: "#ff0000",
	}}

	got := enrichPrompt("business card in #112233", identity, true)
	for _, want := range []string{
		"Task: business card in #112233",
		"- Primary: #112233 RGB(17, 34, 51) - USE AS DOMINANT COLOR (60-80% coverage)",
		"- Secondary: #aabbcc RGB(170, 187, 204)",
		"- Accent: #ff0000 RGB(255, 0, 0) - USE SPARINGLY (5-15% coverage)",
		"attached logo",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("enriched prompt missing %q\n%s", want, got)
		}
	}

	if strings.Contains(enrichPrompt("x", identity, false), "attached logo") {
		t.Error("logo instruction without a logo")
	}
}

// =============================================================================
// Gemini
// =============================================================================

type fakeModels struct {
	resp     *genai.GenerateContentResponse
	err      error
	calls    int
	contents []*genai.Content
	config   *genai.GenerateContentConfig
}

func (f *fakeModels) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.calls++
	f.contents = contents
	f.config = config
	return f.resp, f.err
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Parts: []*genai.Part{{Text: text}}},
	}}}
}

func TestGeminiAnalyzer(t *testing.T) {
	catalog := testCatalog(t)

	t.Run("success", func(t *testing.T) {
		models := &fakeModels{resp: textResponse(identityJSON(t, nil))}
		a := NewGeminiAnalyzer(models, "gemini-2.0-flash-exp", catalog, zerolog.Nop())

		got, err := a.Analyze(context.Background(), pngLogo, "Autre")
		if err != nil {
			t.Fatalf("Analyze() error = %v", err)
		}
		if got.Typography.Heading != "Montserrat" {
			t.Errorf("heading = %q", got.Typography.Heading)
		}
		if models.config.ResponseMIMEType != "application/json" || models.config.ResponseSchema == nil {
			t.Error("structured output not requested")
		}
		parts := models.contents[0].Parts
		if parts[0].InlineData == nil || parts[0].InlineData.MIMEType != "image/png" {
			t.Error("logo must be sent inline")
		}
	})

	t.Run("upstream error", func(t *testing.T) {
		a := NewGeminiAnalyzer(&fakeModels{err: errors.New("503")}, "m", catalog, zerolog.Nop())
		_, err := a.Analyze(context.Background(), pngLogo, "")
		var aerr *domain.AnalysisError
		if !errors.As(err, &aerr) {
			t.Fatalf("err = %v, want AnalysisError", err)
		}
	})

	t.Run("invalid logo does not trip the breaker", func(t *testing.T) {
		refused := identityJSON(t, func(m map[string]any) {
			m["validation"] = map[string]any{"isValidLogo": false, "refusalReason": "Paysage"}
		})
		models := &fakeModels{resp: textResponse(refused)}
		a := NewGeminiAnalyzer(models, "m", catalog, zerolog.Nop())
		for i := 0; i < 10; i++ {
			_, err := a.Analyze(context.Background(), pngLogo, "")
			var invalid *domain.InvalidInputError
			if !errors.As(err, &invalid) {
				t.Fatalf("call %d: err = %v, want InvalidInputError", i, err)
			}
		}
		if models.calls != 10 {
			t.Errorf("calls = %d, want 10", models.calls)
		}
	})

	t.Run("empty logo", func(t *testing.T) {
		models := &fakeModels{}
		a := NewGeminiAnalyzer(models, "m", catalog, zerolog.Nop())
		if _, err := a.Analyze(context.Background(), imageutil.Payload{}, ""); err == nil {
			t.Fatal("expected error")
		}
		if models.calls != 0 {
			t.Error("no call expected for an empty logo")
		}
	})
}

func TestGeminiGenerator(t *testing.T) {
	identity := &domain.BrandIdentity{BrandColors: domain.BrandColors{Primary: "#112233", Secondary: "#445566", Accent: "#778899"}}

	tests := []struct {
		name        string
		resp        *genai.GenerateContentResponse
		err         error
		wantMIME    string
		wantBlocked bool
		wantErr     bool
	}{
		{
			name: "inline image after text",
			resp: &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
				Content: &genai.Content{Parts: []*genai.Part{
					{Text: "here you go"},
					{InlineData: &genai.Blob{MIMEType: "image/webp", Data: []byte("img")}},
				}},
			}}},
			wantMIME: "image/webp",
		},
		{
			name: "safety finish",
			resp: &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
				FinishReason: genai.FinishReasonSafety,
			}}},
			wantErr: true, wantBlocked: true,
		},
		{
			name: "prompt blocked",
			resp: &genai.GenerateContentResponse{PromptFeedback: &genai.GenerateContentResponsePromptFeedback{
				BlockReason: genai.BlockedReasonSafety,
			}},
			wantErr: true, wantBlocked: true,
		},
		{name: "no candidates", resp: &genai.GenerateContentResponse{}, wantErr: true},
		{name: "text only", resp: textResponse("sorry"), wantErr: true},
		{name: "call error", err: errors.New("deadline exceeded"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			models := &fakeModels{resp: tt.resp, err: tt.err}
			g := NewGeminiGenerator(models, "gemini-2.5-flash-image", zerolog.Nop())

			asset, err := g.Generate(context.Background(), "card in #112233", identity, pngLogo)
			if tt.wantErr {
				var gerr *domain.GenerationError
				if !errors.As(err, &gerr) {
					t.Fatalf("err = %v, want GenerationError", err)
				}
				if gerr.Blocked != tt.wantBlocked {
					t.Errorf("Blocked = %v, want %v", gerr.Blocked, tt.wantBlocked)
				}
				return
			}
			if err != nil {
				t.Fatalf("Generate() error = %v", err)
			}
			if asset.MIMEType != tt.wantMIME || string(asset.Data) != "img" {
				t.Errorf("asset = %+v", asset)
			}
			if len(models.contents[0].Parts) != 2 {
				t.Errorf("parts = %d, want logo + prompt", len(models.contents[0].Parts))
			}
		})
	}
}

// =============================================================================
// OpenAI
// =============================================================================

type fakeOpenAI struct {
	chatResp  openai.ChatCompletionResponse
	imageResp openai.ImageResponse
	err       error
	chatReq   openai.ChatCompletionRequest
	imageReq  openai.ImageRequest
}

func (f *fakeOpenAI) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.chatReq = req
	return f.chatResp, f.err
}

func (f *fakeOpenAI) CreateImage(ctx context.Context, req openai.ImageRequest) (openai.ImageResponse, error) {
	f.imageReq = req
	return f.imageResp, f.err
}

func TestOpenAIAnalyzer(t *testing.T) {
	client := &fakeOpenAI{chatResp: openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{{
		Message: openai.ChatCompletionMessage{Content: identityJSON(t, nil)},
	}}}}
	a := NewOpenAIAnalyzer(client, "", testCatalog(t), zerolog.Nop())

	got, err := a.Analyze(context.Background(), pngLogo, "Technologie & Logiciels")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if got.BrandColors.Accent != "#FF6600" {
		t.Errorf("accent = %q", got.BrandColors.Accent)
	}
	if client.chatReq.Model != "gpt-4o" {
		t.Errorf("model = %q", client.chatReq.Model)
	}
	parts := client.chatReq.Messages[1].MultiContent
	if len(parts) != 2 || !strings.HasPrefix(parts[1].ImageURL.URL, "data:image/png;base64,") {
		t.Error("logo must be sent as a data URI image part")
	}

	empty := &fakeOpenAI{}
	_, err = NewOpenAIAnalyzer(empty, "", testCatalog(t), zerolog.Nop()).Analyze(context.Background(), pngLogo, "")
	var aerr *domain.AnalysisError
	if !errors.As(err, &aerr) {
		t.Errorf("err = %v, want AnalysisError", err)
	}
}

func TestOpenAIGenerator(t *testing.T) {
	identity := &domain.BrandIdentity{CompanyName: "Lumen", BrandColors: domain.BrandColors{Primary: "#112233"}}

	t.Run("b64 image", func(t *testing.T) {
		client := &fakeOpenAI{imageResp: openai.ImageResponse{Data: []openai.ImageResponseDataInner{{
			B64JSON: base64.StdEncoding.EncodeToString([]byte("png-bytes")),
		}}}}
		g := NewOpenAIGenerator(client, "", zerolog.Nop())

		asset, err := g.Generate(context.Background(), "mug", identity, pngLogo)
		if err != nil {
			t.Fatalf("Generate() error = %v", err)
		}
		if string(asset.Data) != "png-bytes" || asset.MIMEType != "image/png" {
			t.Errorf("asset = %+v", asset)
		}
		if client.imageReq.ResponseFormat != openai.CreateImageResponseFormatB64JSON {
			t.Errorf("ResponseFormat = %q", client.imageReq.ResponseFormat)
		}
		if !strings.HasPrefix(client.imageReq.Prompt, "Brand: Lumen\nTask: mug") {
			t.Errorf("prompt = %q", client.imageReq.Prompt)
		}
	})

	t.Run("content policy", func(t *testing.T) {
		client := &fakeOpenAI{err: &openai.APIError{Code: "content_policy_violation", Message: "rejected"}}
		_, err := NewOpenAIGenerator(client, "", zerolog.Nop()).Generate(context.Background(), "x", identity, pngLogo)
		var gerr *domain.GenerationError
		if !errors.As(err, &gerr) || !gerr.Blocked {
			t.Errorf("err = %v, want blocked GenerationError", err)
		}
	})

	t.Run("no data", func(t *testing.T) {
		_, err := NewOpenAIGenerator(&fakeOpenAI{}, "", zerolog.Nop()).Generate(context.Background(), "x", identity, pngLogo)
		var gerr *domain.GenerationError
		if !errors.As(err, &gerr) || gerr.Blocked {
			t.Errorf("err = %v, want unblocked GenerationError", err)
		}
	})
}

func TestNewProviders(t *testing.T) {
	catalog := testCatalog(t)

	p, err := NewProviders(context.Background(), &FactoryConfig{
		Provider: OpenAI,
		OpenAI:   &OpenAIConfig{APIKey: "sk-test"},
	}, catalog, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewProviders() error = %v", err)
	}
	if p.Name != OpenAI || p.Analyzer == nil || p.Generator == nil {
		t.Errorf("providers = %+v", p)
	}

	if _, err := NewProviders(context.Background(), &FactoryConfig{Provider: OpenAI}, catalog, zerolog.Nop()); err == nil {
		t.Error("expected error without api key")
	}
	if _, err := NewProviders(context.Background(), &FactoryConfig{Provider: "mistral"}, catalog, zerolog.Nop()); err == nil {
		t.Error("expected error for unknown provider")
	}
}
