package domain

import "time"

// Project is the persisted record of one studio run.
type Project struct {
	ID              string            `json:"id"`
	UserID          string            `json:"userId"`
	Category        string            `json:"category,omitempty"`
	CompanyName     string            `json:"companyName,omitempty"`
	LogoURL         string            `json:"logoUrl"`
	BrandIdentity   *BrandIdentity    `json:"brandIdentity"`
	GeneratedImages map[string]string `json:"generatedImages"`
	Progress        int               `json:"progress"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

// EffectiveProgress treats a missing progress value as a finished project.
func (p *Project) EffectiveProgress() int {
	if p.Progress <= 0 {
		return ProgressDone
	}
	return p.Progress
}

func (p *Project) IsComplete() bool {
	return p.EffectiveProgress() >= ProgressDone
}

// ProjectPatch is an additive update: keys are merged in, progress only moves forward.
type ProjectPatch struct {
	GeneratedImages map[string]string
	Progress        int
}

// Progress checkpoints
const (
	ProgressStarted  = 5
	ProgressAnalyzed = 20
	ProgressDone     = 100
)

// AssetProgress returns round(20 + attempted*80/total).
func AssetProgress(attempted, total int) int {
	if total <= 0 {
		return ProgressDone
	}
	span := ProgressDone - ProgressAnalyzed
	// integer round-half-up of attempted*span/total
	return ProgressAnalyzed + (2*attempted*span+total)/(2*total)
}

// Logo categories offered by the upload form. Free text is accepted too.
var LogoCategories = []string{
	"Technologie & Logiciels",
	"Musique & Divertissement",
	"Alimentation & Boisson",
	"Mode & Luxe",
	"Santé & Bien-être",
	"Sport & Lifestyle",
	"Immobilier & Architecture",
	"Éducation & Coaching",
	"Art & Design",
	"Autre",
}
