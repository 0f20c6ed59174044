package domain

// Status of a studio session
type Status string

const (
	StatusIdle       Status = "idle"
	StatusAnalyzing  Status = "analyzing"
	StatusGenerating Status = "generating"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// IsRunning reports whether a run owns the session.
func (s Status) IsRunning() bool {
	return s == StatusAnalyzing || s == StatusGenerating
}

// Theme is the color pair the presentation layer applies.
type Theme struct {
	Primary   string `json:"primary"`
	Secondary string `json:"secondary"`
}

// DefaultTheme is applied before any identity exists and after reset.
var DefaultTheme = Theme{Primary: "#f97316", Secondary: "#fbbf24"}

// ThemeFor derives the theme from an identity, falling back to DefaultTheme.
func ThemeFor(identity *BrandIdentity) Theme {
	if identity == nil {
		return DefaultTheme
	}
	t := DefaultTheme
	if IsHexColor(identity.BrandColors.Primary) {
		t.Primary = identity.BrandColors.Primary
	}
	if IsHexColor(identity.BrandColors.Secondary) {
		t.Secondary = identity.BrandColors.Secondary
	}
	return t
}

// User is the authenticated caller
type User struct {
	ID          string `json:"uid"`
	DisplayName string `json:"displayName,omitempty"`
}

// SessionState is the snapshot of one user's studio session.
type SessionState struct {
	Status          Status            `json:"status"`
	LogoImage       *string           `json:"logoImage"`
	BrandIdentity   *BrandIdentity    `json:"brandIdentity"`
	GeneratedImages map[string]string `json:"generatedImages"`
	Error           *string           `json:"error"`
	Progress        int               `json:"progress"`
	Theme           Theme             `json:"theme"`
	ProjectID       string            `json:"projectId,omitempty"`
	RunID           string            `json:"runId,omitempty"`
}

// InitialSessionState is the idle state used at start and after reset.
func InitialSessionState() SessionState {
	return SessionState{
		Status:          StatusIdle,
		GeneratedImages: map[string]string{},
		Theme:           DefaultTheme,
	}
}

// Clone copies the map and identity so the snapshot can leave the lock.
func (s SessionState) Clone() SessionState {
	c := s
	c.GeneratedImages = make(map[string]string, len(s.GeneratedImages))
	for k, v := range s.GeneratedImages {
		c.GeneratedImages[k] = v
	}
	c.BrandIdentity = s.BrandIdentity.Clone()
	if s.LogoImage != nil {
		v := *s.LogoImage
		c.LogoImage = &v
	}
	if s.Error != nil {
		v := *s.Error
		c.Error = &v
	}
	return c
}

// ErrorMessage returns the error text or "".
func (s SessionState) ErrorMessage() string {
	if s.Error == nil {
		return ""
	}
	return *s.Error
}
