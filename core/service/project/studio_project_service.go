// Package project serves stored studio projects: history, detail, brand-kit export and
// the global generation counter.
package project

import (
	"context"
	"time"

	"studio_server/core/domain"
	"studio_server/core/port/out"
	"studio_server/pkg/logger"
)

const (
	defaultListLimit = 10
	maxListLimit     = 50
	statsCacheKey    = "stats:total_projects"
)

// Stats is the public generation counter.
type Stats struct {
	TotalProjects int64     `json:"totalProjects"`
	ComputedAt    time.Time `json:"computedAt"`
}

type Service struct {
	repo      out.ProjectRepository
	cache     out.Cache
	listLimit int
	statsTTL  time.Duration
	now       func() time.Time
}

// NewService creates the project service. cache may be nil.
func NewService(repo out.ProjectRepository, cache out.Cache, listLimit int, statsTTL time.Duration) *Service {
	if listLimit <= 0 {
		listLimit = defaultListLimit
	}
	return &Service{
		repo:      repo,
		cache:     cache,
		listLimit: listLimit,
		statsTTL:  statsTTL,
		now:       time.Now,
	}
}

// List returns the user's projects, newest first.
func (s *Service) List(ctx context.Context, userID string, limit int) ([]*domain.Project, error) {
	if userID == "" {
		return nil, &domain.AuthenticationError{}
	}
	if limit <= 0 {
		limit = s.listLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	projects, err := s.repo.ListUserProjects(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	if projects == nil {
		projects = []*domain.Project{}
	}
	return projects, nil
}

// Get returns a project owned by userID. Other users' projects are reported as missing.
func (s *Service) Get(ctx context.Context, userID, id string) (*domain.Project, error) {
	if userID == "" {
		return nil, &domain.AuthenticationError{}
	}
	p, err := s.repo.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil || p.UserID != userID {
		return nil, domain.ErrProjectNotFound
	}
	return p, nil
}

// Export builds the downloadable brand kit for a project.
func (s *Service) Export(ctx context.Context, userID, id string) (*domain.BrandKitExport, error) {
	p, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return domain.NewBrandKitExport(p, s.now()), nil
}

// Stats counts every project ever created. Failures degrade to zero.
func (s *Service) Stats(ctx context.Context) Stats {
	if s.cache != nil {
		var cached Stats
		found, err := s.cache.GetJSON(ctx, statsCacheKey, &cached)
		if err != nil {
			logger.WithError(err).Warn("stats cache read failed")
		} else if found {
			return cached
		}
	}

	total, err := s.repo.CountAllProjects(ctx)
	if err != nil {
		logger.WithError(err).Warn("failed to count projects, reporting 0")
		return Stats{TotalProjects: 0, ComputedAt: s.now().UTC()}
	}

	stats := Stats{TotalProjects: total, ComputedAt: s.now().UTC()}
	if s.cache != nil && s.statsTTL > 0 {
		if err := s.cache.SetJSON(ctx, statsCacheKey, stats, s.statsTTL); err != nil {
			logger.WithError(err).Warn("stats cache write failed")
		}
	}
	return stats
}
