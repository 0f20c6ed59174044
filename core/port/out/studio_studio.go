package out

import (
	"context"

	"studio_server/core/domain"
	"studio_server/pkg/imageutil"
)

// IdentityAnalyzer turns a logo into a brand identity.
//
// Implementations return *domain.InvalidInputError when the image is not a logo and
// *domain.AnalysisError for every other failure.
type IdentityAnalyzer interface {
	Analyze(ctx context.Context, logo imageutil.Payload, category string) (*domain.BrandIdentity, error)
}

// AssetGenerator renders one image for a fully templated prompt.
//
// Implementations return *domain.GenerationError on failure and never retry.
type AssetGenerator interface {
	Generate(ctx context.Context, prompt string, identity *domain.BrandIdentity, logo imageutil.Payload) (*domain.GeneratedAsset, error)
}

// ObjectStore stores bytes and returns a public URL.
type ObjectStore interface {
	PutObject(ctx context.Context, path string, data []byte, contentType string) (string, error)
}

// ProjectRepository persists project documents.
type ProjectRepository interface {
	CreateProject(ctx context.Context, project *domain.Project) (string, error)
	// UpdateProject merges patch; it never removes asset keys or lowers progress.
	UpdateProject(ctx context.Context, id string, patch domain.ProjectPatch) error
	GetProject(ctx context.Context, id string) (*domain.Project, error)
	ListUserProjects(ctx context.Context, userID string, limit int) ([]*domain.Project, error)
	CountUserProjects(ctx context.Context, userID string) (int64, error)
	CountAllProjects(ctx context.Context) (int64, error)
}
