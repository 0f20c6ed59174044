// Package prompt fills generation prompt templates with brand values.
package prompt

import (
	"strings"

	"studio_server/core/domain"
)

// Context carries values that do not come from the identity.
type Context struct {
	LogoRef  string
	UserName string
}

// Tokens recognised by Render.
const (
	TokenPrimary     = "[PRIMARY_COLOR]"
	TokenSecondary   = "[SECONDARY_COLOR]"
	TokenAccent      = "[ACCENT_COLOR]"
	TokenBackground  = "[BACKGROUND_COLOR]"
	TokenText        = "[TEXT_COLOR]"
	TokenLogoURL     = "[LOGO_URL]"
	TokenUserName    = "[USER_NAME]"
	TokenCompanyName = "[COMPANY_NAME]"
	TokenHeadingFont = "[HEADING_FONT]"
	TokenBodyFont    = "[BODY_FONT]"
)

// ColorSlotToken returns [COLOR_n] for n in 1..5.
func ColorSlotToken(n int) string {
	return "[COLOR_" + string(rune('0'+n)) + "]"
}

// Render substitutes the fixed token set. Tokens outside the set, and tokens whose value
// is empty, are left verbatim.
func Render(template string, identity *domain.BrandIdentity, ctx Context) string {
	if template == "" || !strings.Contains(template, "[") {
		return template
	}

	pairs := make([]string, 0, 30)
	add := func(token, value string) {
		if value != "" {
			pairs = append(pairs, token, value)
		}
	}

	if identity != nil {
		c := identity.BrandColors
		add(TokenPrimary, c.Primary)
		add(TokenSecondary, c.Secondary)
		add(TokenAccent, c.Accent)
		add(TokenBackground, c.Background)
		add(TokenText, c.Text)
		for i, v := range c.Slots() {
			add(ColorSlotToken(i+1), v)
		}
		add(TokenCompanyName, identity.DisplayName())
		add(TokenHeadingFont, identity.Typography.Heading)
		add(TokenBodyFont, identity.Typography.Body)
	}
	add(TokenLogoURL, ctx.LogoRef)
	add(TokenUserName, ctx.UserName)

	if len(pairs) == 0 {
		return template
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
