package project

import (
	"context"
	"errors"
	"testing"
	"time"

	"studio_server/core/domain"
	"studio_server/pkg/cache"
)

type stubRepo struct {
	projects  map[string]*domain.Project
	listLimit int
	countErr  error
	total     int64
	counts    int
}

func (r *stubRepo) CreateProject(ctx context.Context, p *domain.Project) (string, error) {
	return "", nil
}

func (r *stubRepo) UpdateProject(ctx context.Context, id string, patch domain.ProjectPatch) error {
	return nil
}

func (r *stubRepo) GetProject(ctx context.Context, id string) (*domain.Project, error) {
	return r.projects[id], nil
}

func (r *stubRepo) ListUserProjects(ctx context.Context, userID string, limit int) ([]*domain.Project, error) {
	r.listLimit = limit
	var out []*domain.Project
	for _, p := range r.projects {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *stubRepo) CountUserProjects(ctx context.Context, userID string) (int64, error) {
	return 0, nil
}

func (r *stubRepo) CountAllProjects(ctx context.Context) (int64, error) {
	r.counts++
	return r.total, r.countErr
}

func newRepo() *stubRepo {
	return &stubRepo{projects: map[string]*domain.Project{
		"p1": {
			ID:      "p1",
			UserID:  "u1",
			LogoURL: "https://cdn/logo.png",
			BrandIdentity: &domain.BrandIdentity{
				CompanyName: "Lumen",
				BrandColors: domain.BrandColors{Primary: "#112233"},
				BrandVoice:  []string{"audacieux"},
			},
			GeneratedImages: map[string]string{"logoLight": "https://cdn/l.png"},
			Progress:        100,
		},
	}}
}

func TestService_List(t *testing.T) {
	repo := newRepo()
	svc := NewService(repo, nil, 0, 0)

	tests := []struct {
		name      string
		limit     int
		wantLimit int
	}{
		{"default", 0, 10},
		{"explicit", 3, 3},
		{"capped", 500, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.List(context.Background(), "u1", tt.limit)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != 1 {
				t.Errorf("len = %d", len(got))
			}
			if repo.listLimit != tt.wantLimit {
				t.Errorf("limit = %d, want %d", repo.listLimit, tt.wantLimit)
			}
		})
	}

	empty, err := svc.List(context.Background(), "nobody", 0)
	if err != nil || empty == nil || len(empty) != 0 {
		t.Errorf("List(nobody) = %v, %v; want empty non-nil slice", empty, err)
	}

	var authErr *domain.AuthenticationError
	if _, err := svc.List(context.Background(), "", 0); !errors.As(err, &authErr) {
		t.Errorf("err = %v, want AuthenticationError", err)
	}
}

func TestService_GetOwnership(t *testing.T) {
	svc := NewService(newRepo(), nil, 10, 0)

	if _, err := svc.Get(context.Background(), "u1", "p1"); err != nil {
		t.Fatalf("owner Get() error = %v", err)
	}
	if _, err := svc.Get(context.Background(), "u2", "p1"); !errors.Is(err, domain.ErrProjectNotFound) {
		t.Errorf("other user err = %v, want ErrProjectNotFound", err)
	}
	if _, err := svc.Get(context.Background(), "u1", "nope"); !errors.Is(err, domain.ErrProjectNotFound) {
		t.Errorf("missing err = %v, want ErrProjectNotFound", err)
	}
}

func TestService_Export(t *testing.T) {
	svc := NewService(newRepo(), nil, 10, 0)
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	exp, err := svc.Export(context.Background(), "u1", "p1")
	if err != nil {
		t.Fatal(err)
	}
	if exp.Metadata.Version != "1.0" || exp.Metadata.Engine != "BrandSource AI Studio" {
		t.Errorf("metadata = %+v", exp.Metadata)
	}
	if !exp.Metadata.ExportedAt.Equal(now) {
		t.Errorf("ExportedAt = %v", exp.Metadata.ExportedAt)
	}
	if exp.Branding.CompanyName != "Lumen" || exp.Branding.Colors.Primary != "#112233" {
		t.Errorf("branding = %+v", exp.Branding)
	}
	if exp.Assets["logoLight"] != "https://cdn/l.png" {
		t.Errorf("assets = %v", exp.Assets)
	}
}

func TestService_Stats(t *testing.T) {
	t.Run("cached", func(t *testing.T) {
		repo := newRepo()
		repo.total = 1234
		svc := NewService(repo, cache.NewMemoryCache(10), 10, time.Minute)

		if got := svc.Stats(context.Background()).TotalProjects; got != 1234 {
			t.Errorf("TotalProjects = %d", got)
		}
		repo.total = 9999
		if got := svc.Stats(context.Background()).TotalProjects; got != 1234 {
			t.Errorf("cached TotalProjects = %d, want 1234", got)
		}
		if repo.counts != 1 {
			t.Errorf("counts = %d, want 1", repo.counts)
		}
	})

	t.Run("failure reports zero", func(t *testing.T) {
		repo := newRepo()
		repo.countErr = errors.New("timeout")
		repo.total = 5
		svc := NewService(repo, cache.NewMemoryCache(10), 10, time.Minute)

		if got := svc.Stats(context.Background()).TotalProjects; got != 0 {
			t.Errorf("TotalProjects = %d, want 0", got)
		}
		repo.countErr = nil
		if got := svc.Stats(context.Background()).TotalProjects; got != 5 {
			t.Errorf("failures must not be cached, got %d", got)
		}
	})
}
