// Package studio orchestrates a brand studio run: quota check, logo analysis, project
// creation and per-asset generation with incremental progress.
package studio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"studio_server/core/domain"
	"studio_server/core/port/out"
	"studio_server/pkg/imageutil"
	"studio_server/pkg/logger"
	"studio_server/pkg/metrics"
	"studio_server/pkg/resilience"
)

// Config tunes the orchestrator.
type Config struct {
	QuotaCeiling int
	// Concurrency is the number of assets generated at once. 1 keeps the loop sequential.
	Concurrency int
	Retry       resilience.RetryPolicy
	Image       imageutil.Options
	// CallTimeout bounds each external call attempt. 0 = no deadline.
	CallTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		QuotaCeiling: 15,
		Concurrency:  1,
		Retry:        resilience.DefaultRetryPolicy(),
		Image:        imageutil.DefaultOptions(),
		CallTimeout:  90 * time.Second,
	}
}

// Listener receives every session state change, in order, per user.
// It is called with the session locked and must not call back into the Service.
type Listener func(userID string, state domain.SessionState)

// Service is the studio orchestrator.
type Service struct {
	analyzer  out.IdentityAnalyzer
	generator out.AssetGenerator
	store     out.ObjectStore
	projects  out.ProjectRepository
	realtime  out.RealtimePort
	catalog   *domain.AssetCatalog
	cfg       Config
	now       func() time.Time

	sessions *sessionStore
	latency  *metrics.LatencyRegistry

	listenerMu sync.RWMutex
	listeners  map[int]Listener
	nextID     int
}

// NewService wires the orchestrator. realtime may be nil.
func NewService(
	analyzer out.IdentityAnalyzer,
	generator out.AssetGenerator,
	store out.ObjectStore,
	projects out.ProjectRepository,
	realtime out.RealtimePort,
	catalog *domain.AssetCatalog,
	cfg Config,
) (*Service, error) {
	switch {
	case analyzer == nil:
		return nil, errors.New("studio: analyzer is required")
	case generator == nil:
		return nil, errors.New("studio: generator is required")
	case store == nil:
		return nil, errors.New("studio: object store is required")
	case projects == nil:
		return nil, errors.New("studio: project repository is required")
	case catalog == nil || catalog.Len() == 0:
		return nil, errors.New("studio: asset catalog is required")
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.QuotaCeiling < 1 {
		cfg.QuotaCeiling = DefaultConfig().QuotaCeiling
	}
	if cfg.Retry.MaxAttempts < 1 {
		cfg.Retry.MaxAttempts = 1
	}
	cfg.Retry.Retryable = isRetryable

	return &Service{
		analyzer:  analyzer,
		generator: generator,
		store:     store,
		projects:  projects,
		realtime:  realtime,
		catalog:   catalog,
		cfg:       cfg,
		now:       time.Now,
		sessions:  newSessionStore(),
		latency:   metrics.NewLatencyRegistry(500),
		listeners: make(map[int]Listener),
	}, nil
}

func (s *Service) Catalog() *domain.AssetCatalog { return s.catalog }

// SubmitInput is one logo submission
type SubmitInput struct {
	Image       []byte
	Category    string
	CompanyName string
}

// Submit validates the upload, enforces the quota and starts a run. It returns as soon
// as the run is started; use Run.Analyzed to wait for the analysis outcome.
func (s *Service) Submit(ctx context.Context, user domain.User, in SubmitInput) (*Run, error) {
	if user.ID == "" {
		return nil, &domain.AuthenticationError{}
	}

	payload, err := imageutil.Preprocess(in.Image, s.cfg.Image)
	if err != nil {
		return nil, domain.NewInvalidInputError("", err)
	}

	sess := s.sessions.getOrCreate(user.ID)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.lastUsed = s.now()

	if sess.state.Status != domain.StatusIdle {
		return nil, fmt.Errorf("%w: status is %s", domain.ErrSessionBusy, sess.state.Status)
	}

	count, err := s.projects.CountUserProjects(ctx, user.ID)
	if err != nil {
		aerr := &domain.AnalysisError{Op: "quota", Err: err}
		s.setErrorLocked(sess, aerr)
		return nil, aerr
	}
	if count >= int64(s.cfg.QuotaCeiling) {
		qerr := &domain.QuotaExceededError{Count: count, Ceiling: s.cfg.QuotaCeiling}
		s.setErrorLocked(sess, qerr)
		return nil, qerr
	}

	runCtx, cancel := context.WithCancel(context.Background())
	run := newRun(user.ID, cancel)
	sess.run = run

	logoURI := payload.DataURI()
	st := domain.InitialSessionState()
	st.Status = domain.StatusAnalyzing
	st.LogoImage = &logoURI
	st.Progress = domain.ProgressStarted
	st.RunID = run.ID()
	sess.state = st
	s.publishLocked(sess, nil)

	logger.WithFields(map[string]any{
		"user_id":  user.ID,
		"run_id":   run.ID(),
		"category": in.Category,
		"bytes":    len(payload.Data),
	}).Info("studio run started")

	go s.execute(runCtx, sess, run, user, payload, in)
	return run, nil
}

// Reset cancels any in-flight run and returns the session to idle.
func (s *Service) Reset(userID string) domain.SessionState {
	sess, ok := s.sessions.get(userID)
	if !ok {
		return domain.InitialSessionState()
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.detach()
	sess.state = domain.InitialSessionState()
	sess.lastUsed = s.now()
	s.publishLocked(sess, domain.NewRealtimeEvent(userID, domain.EventSessionReset, nil))
	return sess.state.Clone()
}

// LoadProject populates the session from a stored project without resuming it.
func (s *Service) LoadProject(ctx context.Context, user domain.User, projectID string) (domain.SessionState, error) {
	if user.ID == "" {
		return domain.SessionState{}, &domain.AuthenticationError{}
	}
	p, err := s.projects.GetProject(ctx, projectID)
	if err != nil {
		return domain.SessionState{}, err
	}
	if p == nil || p.UserID != user.ID {
		return domain.SessionState{}, domain.ErrProjectNotFound
	}

	sess := s.sessions.getOrCreate(user.ID)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.detach()
	sess.lastUsed = s.now()

	st := domain.InitialSessionState()
	st.Status = domain.StatusCompleted
	if !p.IsComplete() {
		st.Status = domain.StatusGenerating
	}
	logo := p.LogoURL
	st.LogoImage = &logo
	st.BrandIdentity = p.BrandIdentity.Clone()
	for k, v := range p.GeneratedImages {
		st.GeneratedImages[k] = v
	}
	st.Progress = p.EffectiveProgress()
	st.Theme = domain.ThemeFor(p.BrandIdentity)
	st.ProjectID = p.ID
	sess.state = st
	s.publishLocked(sess, nil)
	return sess.state.Clone(), nil
}

// State returns the current session snapshot for userID.
func (s *Service) State(userID string) domain.SessionState {
	sess, ok := s.sessions.get(userID)
	if !ok {
		return domain.InitialSessionState()
	}
	return sess.snapshot()
}

// ActiveSessions is the number of sessions held in memory.
func (s *Service) ActiveSessions() int { return s.sessions.len() }

// Latency reports provider call timings keyed by operation.
func (s *Service) Latency() map[string]map[string]any { return s.latency.Snapshot() }

// Subscribe registers l for every state change. The returned func unregisters it.
func (s *Service) Subscribe(l Listener) func() {
	s.listenerMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.listenerMu.Unlock()

	return func() {
		s.listenerMu.Lock()
		delete(s.listeners, id)
		s.listenerMu.Unlock()
	}
}

// StartJanitor prunes idle sessions every interval until ctx is done.
func (s *Service) StartJanitor(ctx context.Context, interval, ttl time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := s.sessions.prune(ttl); n > 0 {
					logger.Debug("pruned %d idle studio sessions", n)
				}
			}
		}
	}()
}

// apply mutates the session only while run still owns it, then publishes.
func (s *Service) apply(sess *session, run *Run, event *domain.RealtimeEvent, fn func(st *domain.SessionState)) bool {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if !sess.owns(run) {
		return false
	}
	fn(&sess.state)
	sess.lastUsed = s.now()
	s.publishLocked(sess, event)
	return true
}

func (s *Service) setErrorLocked(sess *session, err error) {
	msg := domain.UserMessage(err)
	st := domain.InitialSessionState()
	st.Status = domain.StatusError
	st.Error = &msg
	st.LogoImage = sess.state.LogoImage
	st.RunID = sess.state.RunID
	sess.state = st
	s.publishLocked(sess, domain.NewRealtimeEvent(sess.userID, domain.EventRunFailed, map[string]string{"error": msg}))
}

// publishLocked fans the state out to listeners and the realtime port. Caller holds sess.mu.
func (s *Service) publishLocked(sess *session, event *domain.RealtimeEvent) {
	snap := sess.state.Clone()

	s.listenerMu.RLock()
	for _, l := range s.listeners {
		l(sess.userID, snap)
	}
	s.listenerMu.RUnlock()

	if s.realtime == nil {
		return
	}
	ctx := context.Background()
	if event != nil {
		s.realtime.Push(ctx, sess.userID, event)
	}
	s.realtime.Push(ctx, sess.userID, domain.NewRealtimeEvent(sess.userID, domain.EventSessionState, snap))
}

func isRetryable(err error) bool {
	var invalid *domain.InvalidInputError
	var gen *domain.GenerationError
	switch {
	case errors.As(err, &invalid):
		return false
	case errors.As(err, &gen) && gen.Blocked:
		return false
	case resilience.IsOpen(err):
		return false
	}
	return true
}
