package domain

import "time"

const (
	ExportVersion = "1.0"
	ExportEngine  = "BrandSource AI Studio"
)

// BrandKitExport is the downloadable brand-kit document
type BrandKitExport struct {
	Branding BrandKitBranding  `json:"branding"`
	Assets   map[string]string `json:"assets"`
	Metadata BrandKitMetadata  `json:"metadata"`
}

type BrandKitBranding struct {
	CompanyName string      `json:"companyName,omitempty"`
	Colors      BrandColors `json:"colors"`
	Typography  Typography  `json:"typography"`
	Voice       []string    `json:"voice"`
}

type BrandKitMetadata struct {
	ProjectID  string    `json:"projectId"`
	Category   string    `json:"category,omitempty"`
	LogoURL    string    `json:"logoUrl,omitempty"`
	ExportedAt time.Time `json:"exportedAt"`
	Version    string    `json:"version"`
	Engine     string    `json:"engine"`
}

// NewBrandKitExport builds the export document for p at time now.
func NewBrandKitExport(p *Project, now time.Time) *BrandKitExport {
	exp := &BrandKitExport{
		Assets: make(map[string]string, len(p.GeneratedImages)),
		Metadata: BrandKitMetadata{
			ProjectID:  p.ID,
			Category:   p.Category,
			LogoURL:    p.LogoURL,
			ExportedAt: now.UTC(),
			Version:    ExportVersion,
			Engine:     ExportEngine,
		},
	}
	for k, v := range p.GeneratedImages {
		exp.Assets[k] = v
	}
	if id := p.BrandIdentity; id != nil {
		exp.Branding = BrandKitBranding{
			CompanyName: id.DisplayName(),
			Colors:      id.BrandColors,
			Typography:  id.Typography,
			Voice:       append([]string(nil), id.BrandVoice...),
		}
	}
	if exp.Branding.CompanyName == "" {
		exp.Branding.CompanyName = p.CompanyName
	}
	return exp
}
