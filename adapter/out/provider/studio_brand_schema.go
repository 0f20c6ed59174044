// Package provider implements the AI provider adapters: logo analysis and asset rendering
// against Gemini (default) or OpenAI.
package provider

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"google.golang.org/genai"

	"studio_server/core/domain"
)

// =============================================================================
// Analysis prompt and schema
// =============================================================================

const analysisInstruction = `Analyze this image. First, VALIDATE if this is a company logo.

VALIDATION RULES:
- It MUST be a designed logo, icon, or wordmark.
- It CANNOT be a photograph of a person, a selfie, a landscape, or a random object.
- It CANNOT be a complex screenshot of a website.
- If it is NOT a logo, set validation.isValidLogo to FALSE and give a short French refusalReason.

If valid, generate a comprehensive brand identity system.

CRITICAL COLOR EXTRACTION:
1. Carefully analyze the uploaded logo image.
2. Extract the EXACT primary and secondary colors from the logo itself (precise hex codes).
3. Do not invent colors. Use only colors that appear in the logo.
4. Primary color = the most dominant color in the logo.
5. Secondary color = the second most prominent color in the logo.

For visualAssets prompts, follow the templates given for each key and keep the color
placeholders ([PRIMARY_COLOR], [SECONDARY_COLOR], [ACCENT_COLOR], [COLOR_1]..[COLOR_5]) so they
can be filled with the extracted values. Make the primary color VERY DOMINANT in every asset
prompt (60-80% usage).`

func analysisPrompt(category string, catalog *domain.AssetCatalog) string {
	var b strings.Builder
	b.WriteString(analysisInstruction)
	if c := strings.TrimSpace(category); c != "" {
		fmt.Fprintf(&b, "\n\nBusiness category: %s. Pick typography and brand voice that fit it.", c)
	}
	b.WriteString("\n\nvisualAssets templates:\n")
	for _, spec := range catalog.Specs() {
		fmt.Fprintf(&b, "- %s: %s\n", spec.Key, spec.Prompt)
	}
	return b.String()
}

func str(desc string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeString, Description: desc}
}

// brandSchema builds the structured-output schema with one visualAssets property per catalog key.
func brandSchema(catalog *domain.AssetCatalog) *genai.Schema {
	keys := catalog.Keys()
	assets := make(map[string]*genai.Schema, len(keys))
	for _, spec := range catalog.Specs() {
		assets[spec.Key] = str(spec.Prompt)
	}

	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"companyName": str("Company name if legible in the logo, otherwise empty."),
			"brandColors": {
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"primary":    str("The EXACT hex code of the PRIMARY brand color extracted from the logo."),
					"secondary":  str("The EXACT hex code of the SECONDARY brand color extracted from the logo."),
					"accent":     str("A vibrant contrast color that complements the logo colors."),
					"background": str("Neutral background color (light gray or white)."),
					"text":       str("Neutral dark text color for readability."),
				},
				Required:         []string{"primary", "secondary", "accent", "background", "text"},
				PropertyOrdering: []string{"primary", "secondary", "accent", "background", "text"},
			},
			"typography": {
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"heading": str("Professional heading font that matches brand personality."),
					"body":    str("Clean, readable body font."),
				},
				Required: []string{"heading", "body"},
			},
			"brandVoice": {
				Type:        genai.TypeArray,
				Items:       &genai.Schema{Type: genai.TypeString},
				Description: "3 professional brand adjectives that capture the brand essence.",
			},
			"visualStyle": str("One sentence describing the overall visual style."),
			"visualAssets": {
				Type:             genai.TypeObject,
				Properties:       assets,
				Required:         keys,
				PropertyOrdering: keys,
			},
			"validation": {
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"isValidLogo": {
						Type: genai.TypeBoolean,
						Description: "TRUE if this is a professional logo/icon. FALSE for a photo of a real person, " +
							"a landscape, a non-logo photograph, or a screenshot of text.",
					},
					"refusalReason": str("If isValidLogo is false, a short French explanation why."),
				},
				Required: []string{"isValidLogo"},
			},
		},
		Required: []string{"brandColors", "typography", "brandVoice", "visualAssets", "validation"},
	}
}

// jsonShapeHint describes the expected object for backends without schema support.
func jsonShapeHint(catalog *domain.AssetCatalog) string {
	var b strings.Builder
	b.WriteString(`Respond with a single JSON object of this shape: {"companyName": string, `)
	b.WriteString(`"brandColors": {"primary","secondary","accent","background","text": hex strings}, `)
	b.WriteString(`"typography": {"heading": string, "body": string}, "brandVoice": [3 strings], `)
	b.WriteString(`"visualStyle": string, "visualAssets": {`)
	b.WriteString(strings.Join(quoteAll(catalog.Keys()), ", "))
	b.WriteString(`: prompt strings}, "validation": {"isValidLogo": bool, "refusalReason": string}}.`)
	return b.String()
}

func quoteAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = `"` + s + `"`
	}
	return out
}

// =============================================================================
// Analysis response parsing
// =============================================================================

var errEmptyResponse = errors.New("empty response")

// parseIdentity decodes the analyzer's JSON answer and applies the logo verdict.
func parseIdentity(raw string, catalog *domain.AssetCatalog) (*domain.BrandIdentity, error) {
	raw = stripCodeFence(raw)
	if raw == "" {
		return nil, &domain.AnalysisError{Op: "parse", Err: errEmptyResponse}
	}

	var identity domain.BrandIdentity
	if err := json.Unmarshal([]byte(raw), &identity); err != nil {
		return nil, &domain.AnalysisError{Op: "parse", Err: err}
	}

	if identity.Validation != nil && !identity.Validation.IsValidLogo {
		return nil, domain.NewInvalidInputError(strings.TrimSpace(identity.Validation.RefusalReason), nil)
	}
	if err := identity.Validate(catalog.Keys()); err != nil {
		return nil, &domain.AnalysisError{Op: "validate", Err: err}
	}
	return &identity, nil
}

// stripCodeFence removes a ```json fence some models wrap around JSON output.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// =============================================================================
// Generation prompt
// =============================================================================

const generationGuidelines = `MODERN DESIGN AESTHETICS:
- Style: Contemporary, minimalist, premium, editorial
- Layout: Clean, balanced, generous white space, sophisticated composition
- Typography: Modern sans-serif, crisp, professional hierarchy
- Lighting: Professional studio lighting, soft diffused, natural highlights
- Finish: Ultra-sharp, magazine-quality, commercial-grade

ABSOLUTE REQUIREMENTS:
- Extract and match colors FROM THE ATTACHED LOGO IMAGE
- Use PRIMARY COLOR DOMINANTLY (60-80% of the design)
- Use ONLY the specified brand colors above, neutral backgrounds (#F8F9FA, #FFFFFF) excepted
- Match the RGB values EXACTLY as shown
- NO gibberish text, NO random typography, NO placeholder text`

func colorLine(label, hex, usage string) string {
	if rgb, ok := domain.HexToRGB(hex); ok {
		return fmt.Sprintf("- %s: %s %s - %s", label, hex, rgb, usage)
	}
	return fmt.Sprintf("- %s: %s - %s", label, hex, usage)
}

// enrichPrompt wraps a rendered asset prompt with explicit color requirements.
func enrichPrompt(prompt string, identity *domain.BrandIdentity, withLogo bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n\n", prompt)
	if withLogo {
		b.WriteString("Instruction: Use the attached logo as the central design element and primary color reference.\n\n")
	}
	if identity != nil {
		c := identity.BrandColors
		b.WriteString("CRITICAL COLOR REQUIREMENTS:\n")
		b.WriteString(colorLine("Primary", c.Primary, "USE AS DOMINANT COLOR (60-80% coverage)") + "\n")
		b.WriteString(colorLine("Secondary", c.Secondary, "USE AS ACCENT (15-25% coverage)") + "\n")
		b.WriteString(colorLine("Accent", c.Accent, "USE SPARINGLY (5-15% coverage)") + "\n\n")
	}
	b.WriteString(generationGuidelines)
	return b.String()
}

func isCallerError(err error) bool {
	var invalid *domain.InvalidInputError
	var gen *domain.GenerationError
	return errors.As(err, &invalid) || (errors.As(err, &gen) && gen.Blocked)
}
