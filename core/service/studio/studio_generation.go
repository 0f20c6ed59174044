package studio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"studio_server/core/domain"
	"studio_server/core/service/prompt"
	"studio_server/pkg/imageutil"
	"studio_server/pkg/logger"
	"studio_server/pkg/resilience"
)

// execute drives one run from analysis to completion.
func (s *Service) execute(ctx context.Context, sess *session, run *Run, user domain.User, logo imageutil.Payload, in SubmitInput) {
	defer run.finish()
	log := logger.WithFields(map[string]any{"user_id": user.ID, "run_id": run.ID()})
	start := time.Now()

	identity, err := s.analyze(ctx, logo, in.Category)
	if err == nil {
		if in.CompanyName != "" {
			identity.CompanyName = in.CompanyName
		}
		if err = identity.Validate(s.catalog.Keys()); err != nil {
			err = &domain.AnalysisError{Op: "validate", Err: err}
		}
	}
	if err != nil {
		s.failRun(sess, run, err)
		run.finishAnalysis("", err)
		log.WithError(err).Warn("studio analysis failed")
		return
	}

	logoRef := s.uploadLogo(ctx, user.ID, logo)

	project := &domain.Project{
		UserID:          user.ID,
		Category:        in.Category,
		CompanyName:     identity.CompanyName,
		LogoURL:         logoRef,
		BrandIdentity:   identity.Clone(),
		GeneratedImages: map[string]string{},
		Progress:        domain.ProgressAnalyzed,
		CreatedAt:       s.now().UTC(),
	}
	projectID, err := resilience.RetryValue(ctx, s.cfg.Retry, func(ctx context.Context) (string, error) {
		return s.projects.CreateProject(ctx, project)
	})
	if err != nil {
		err = &domain.AnalysisError{Op: "create project", Err: err}
		s.failRun(sess, run, err)
		run.finishAnalysis("", err)
		log.WithError(err).Error("failed to create project document")
		return
	}

	ok := s.apply(sess, run, nil, func(st *domain.SessionState) {
		st.Status = domain.StatusGenerating
		st.BrandIdentity = identity.Clone()
		st.Progress = domain.ProgressAnalyzed
		st.Theme = domain.ThemeFor(identity)
		st.LogoImage = &logoRef
		st.ProjectID = projectID
	})
	run.finishAnalysis(projectID, nil)
	if !ok {
		return
	}

	log.WithField("project_id", projectID).WithDuration(time.Since(start)).Info("brand identity ready, generating assets")

	images := s.generateAssets(ctx, sess, run, user, identity, logo, logoRef, projectID)

	if ctx.Err() != nil {
		log.WithField("generated", len(images)).Info("studio run cancelled")
		return
	}

	if err := s.projects.UpdateProject(ctx, projectID, domain.ProjectPatch{Progress: domain.ProgressDone}); err != nil {
		log.WithError(err).Warn("failed to persist final progress")
	}
	s.apply(sess, run, domain.NewRealtimeEvent(user.ID, domain.EventRunCompleted, map[string]any{
		"runId":     run.ID(),
		"projectId": projectID,
		"generated": len(images),
		"total":     s.catalog.Len(),
	}), func(st *domain.SessionState) {
		st.Status = domain.StatusCompleted
		st.Progress = domain.ProgressDone
	})
	s.release(sess, run)

	log.WithFields(map[string]any{
		"project_id": projectID,
		"generated":  len(images),
		"total":      s.catalog.Len(),
	}).WithDuration(time.Since(start)).Info("studio run completed")
}

func (s *Service) analyze(ctx context.Context, logo imageutil.Payload, category string) (*domain.BrandIdentity, error) {
	identity, err := resilience.RetryValue(ctx, s.cfg.Retry, func(ctx context.Context) (*domain.BrandIdentity, error) {
		ctx, cancel := s.callContext(ctx)
		defer cancel()
		var identity *domain.BrandIdentity
		err := s.latency.Observe("analyze", func() (err error) {
			identity, err = s.analyzer.Analyze(ctx, logo, category)
			return err
		})
		return identity, err
	})
	if err != nil {
		var invalid *domain.InvalidInputError
		var aerr *domain.AnalysisError
		if !errors.As(err, &invalid) && !errors.As(err, &aerr) {
			err = &domain.AnalysisError{Op: "analyze", Err: err}
		}
		return nil, err
	}
	if identity == nil {
		return nil, &domain.AnalysisError{Op: "analyze", Err: errors.New("empty identity")}
	}
	return identity.Clone(), nil
}

// uploadLogo stores the logo and falls back to the inline data URI on failure.
func (s *Service) uploadLogo(ctx context.Context, userID string, logo imageutil.Payload) string {
	path := fmt.Sprintf("logos/%s_%d.%s", userID, s.now().UnixMilli(), domain.ExtensionForMIME(logo.MIMEType))
	url, err := s.putObject(ctx, path, logo.Data, logo.MIMEType)
	if err != nil {
		logger.WithFields(map[string]any{"user_id": userID, "path": path}).WithError(err).
			Warn("logo upload failed, keeping inline image")
		return logo.DataURI()
	}
	return url
}

func (s *Service) putObject(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	url, err := resilience.RetryValue(ctx, s.cfg.Retry, func(ctx context.Context) (string, error) {
		ctx, cancel := s.callContext(ctx)
		defer cancel()
		var url string
		err := s.latency.Observe("upload", func() (err error) {
			url, err = s.store.PutObject(ctx, path, data, contentType)
			return err
		})
		return url, err
	})
	if err != nil {
		var serr *domain.StorageError
		if !errors.As(err, &serr) {
			err = &domain.StorageError{Path: path, Err: err}
		}
		return "", err
	}
	return url, nil
}

// generateAssets walks the catalog with at most cfg.Concurrency assets in flight.
// Results are committed one at a time so progress and the document only move forward.
func (s *Service) generateAssets(
	ctx context.Context,
	sess *session,
	run *Run,
	user domain.User,
	identity *domain.BrandIdentity,
	logo imageutil.Payload,
	logoRef string,
	projectID string,
) map[string]string {
	keys := s.catalog.Keys()
	total := len(keys)

	var (
		commitMu  sync.Mutex
		attempted int
		images    = make(map[string]string, total)
	)

	commit := func(key, url string, genErr error) {
		commitMu.Lock()
		defer commitMu.Unlock()

		attempted++
		progress := domain.AssetProgress(attempted, total)
		fields := map[string]any{"run_id": run.ID(), "project_id": projectID, "asset": key, "progress": progress}

		patch := domain.ProjectPatch{Progress: progress}
		if genErr == nil {
			patch.GeneratedImages = map[string]string{key: url}
		}
		if err := resilience.Retry(ctx, s.cfg.Retry, func(ctx context.Context) error {
			return s.projects.UpdateProject(ctx, projectID, patch)
		}); err != nil {
			if genErr == nil {
				genErr = &domain.StorageError{Path: "projects/" + projectID, Err: err}
			}
			logger.WithFields(fields).WithError(err).Warn("failed to patch project document")
		}

		if genErr != nil {
			logger.WithFields(fields).WithError(genErr).Warn("asset skipped")
			s.apply(sess, run, domain.NewRealtimeEvent(user.ID, domain.EventAssetFailed, domain.AssetEventData{
				RunID: run.ID(), ProjectID: projectID, Key: key, Progress: progress,
			}), func(st *domain.SessionState) {
				if progress > st.Progress {
					st.Progress = progress
				}
			})
			return
		}

		images[key] = url
		s.apply(sess, run, domain.NewRealtimeEvent(user.ID, domain.EventAssetReady, domain.AssetEventData{
			RunID: run.ID(), ProjectID: projectID, Key: key, URL: url, Progress: progress,
		}), func(st *domain.SessionState) {
			st.GeneratedImages[key] = url
			if progress > st.Progress {
				st.Progress = progress
			}
		})
	}

	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for _, key := range keys {
		if ctx.Err() != nil {
			break
		}
		key := key
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			url, err := s.renderAsset(ctx, user, identity, logo, logoRef, projectID, key)
			if ctx.Err() != nil {
				return nil
			}
			commit(key, url, err)
			return nil
		})
	}
	g.Wait()

	commitMu.Lock()
	defer commitMu.Unlock()
	out := make(map[string]string, len(images))
	for k, v := range images {
		out[k] = v
	}
	return out
}

// renderAsset templates, generates and uploads one asset.
func (s *Service) renderAsset(
	ctx context.Context,
	user domain.User,
	identity *domain.BrandIdentity,
	logo imageutil.Payload,
	logoRef, projectID, key string,
) (string, error) {
	text := prompt.Render(identity.VisualAssets[key], identity, prompt.Context{
		LogoRef:  logoRef,
		UserName: user.DisplayName,
	})

	asset, err := resilience.RetryValue(ctx, s.cfg.Retry, func(ctx context.Context) (*domain.GeneratedAsset, error) {
		ctx, cancel := s.callContext(ctx)
		defer cancel()
		var asset *domain.GeneratedAsset
		err := s.latency.Observe("generate", func() (err error) {
			asset, err = s.generator.Generate(ctx, text, identity, logo)
			return err
		})
		return asset, err
	})
	if err != nil {
		var gerr *domain.GenerationError
		if !errors.As(err, &gerr) {
			err = &domain.GenerationError{AssetKey: key, Err: err}
		} else if gerr.AssetKey == "" {
			gerr.AssetKey = key
		}
		return "", err
	}
	if asset == nil || len(asset.Data) == 0 {
		return "", &domain.GenerationError{AssetKey: key, Err: errors.New("no image data")}
	}

	path := fmt.Sprintf("generated/%s/%s/%s.%s", user.ID, projectID, key, asset.Extension())
	return s.putObject(ctx, path, asset.Data, asset.MIMEType)
}

func (s *Service) failRun(sess *session, run *Run, err error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if !sess.owns(run) {
		return
	}
	s.setErrorLocked(sess, err)
	sess.run = nil
}

// release detaches a finished run so the session can be pruned.
func (s *Service) release(sess *session, run *Run) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.owns(run) {
		sess.run = nil
	}
}

func (s *Service) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.CallTimeout)
}
