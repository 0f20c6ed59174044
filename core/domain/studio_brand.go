package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// BrandIdentity is the structured result of a logo analysis. It is produced once per
// analysis and treated as immutable afterwards; use Clone before handing it out.
type BrandIdentity struct {
	CompanyName  string            `json:"companyName,omitempty" bson:"company_name,omitempty"`
	BrandColors  BrandColors       `json:"brandColors" bson:"brand_colors"`
	Typography   Typography        `json:"typography" bson:"typography"`
	BrandVoice   []string          `json:"brandVoice" bson:"brand_voice"`
	VisualStyle  string            `json:"visualStyle,omitempty" bson:"visual_style,omitempty"`
	VisualAssets map[string]string `json:"visualAssets" bson:"visual_assets"`
	Validation   *Validation       `json:"validation,omitempty" bson:"validation,omitempty"`
}

// BrandColors defines the five-slot palette
type BrandColors struct {
	Primary    string `json:"primary" bson:"primary"`
	Secondary  string `json:"secondary" bson:"secondary"`
	Accent     string `json:"accent" bson:"accent"`
	Background string `json:"background" bson:"background"`
	Text       string `json:"text" bson:"text"`
}

// Typography holds font family names (free text)
type Typography struct {
	Heading string `json:"heading" bson:"heading"`
	Body    string `json:"body" bson:"body"`
}

// Validation is the analyzer's verdict on whether the input was a logo
type Validation struct {
	IsValidLogo   bool   `json:"isValidLogo" bson:"is_valid_logo"`
	RefusalReason string `json:"refusalReason,omitempty" bson:"refusal_reason,omitempty"`
}

// Slots returns the palette in [COLOR_1]..[COLOR_5] order.
func (c BrandColors) Slots() [5]string {
	return [5]string{c.Primary, c.Secondary, c.Accent, c.Background, c.Text}
}

// Validate checks that every slot is a #RGB or #RRGGBB hex color.
func (c BrandColors) Validate() error {
	names := [5]string{"primary", "secondary", "accent", "background", "text"}
	for i, v := range c.Slots() {
		if !IsHexColor(v) {
			return fmt.Errorf("brandColors.%s: invalid hex color %q", names[i], v)
		}
	}
	return nil
}

var hexColorRe = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

func IsHexColor(s string) bool {
	return hexColorRe.MatchString(s)
}

// RGB is a decoded hex color
type RGB struct {
	R, G, B uint8
}

func (c RGB) String() string {
	return fmt.Sprintf("RGB(%d, %d, %d)", c.R, c.G, c.B)
}

// HexToRGB decodes #RGB or #RRGGBB (leading # optional).
func HexToRGB(hex string) (RGB, bool) {
	h := strings.TrimPrefix(strings.TrimSpace(hex), "#")
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	if len(h) != 6 {
		return RGB{}, false
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return RGB{}, false
	}
	return RGB{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, true
}

// Validate checks required fields against the configured asset keys.
func (b *BrandIdentity) Validate(assetKeys []string) error {
	if err := b.BrandColors.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(b.Typography.Heading) == "" || strings.TrimSpace(b.Typography.Body) == "" {
		return fmt.Errorf("typography: heading and body are required")
	}
	if len(b.BrandVoice) == 0 {
		return fmt.Errorf("brandVoice: at least one adjective is required")
	}
	for _, key := range assetKeys {
		if strings.TrimSpace(b.VisualAssets[key]) == "" {
			return fmt.Errorf("visualAssets.%s: missing prompt", key)
		}
	}
	return nil
}

// Clone returns a deep copy.
func (b *BrandIdentity) Clone() *BrandIdentity {
	if b == nil {
		return nil
	}
	c := *b
	c.BrandVoice = append([]string(nil), b.BrandVoice...)
	c.VisualAssets = make(map[string]string, len(b.VisualAssets))
	for k, v := range b.VisualAssets {
		c.VisualAssets[k] = v
	}
	if b.Validation != nil {
		v := *b.Validation
		c.Validation = &v
	}
	return &c
}

// DisplayName is the explicit company name. It never falls back to the voice adjectives.
func (b *BrandIdentity) DisplayName() string {
	if b == nil {
		return ""
	}
	return strings.TrimSpace(b.CompanyName)
}
