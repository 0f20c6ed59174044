package studio

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Run is the handle of one submitted studio run. The run keeps going after the
// submitting request returns; Cancel stops it and suppresses its remaining writes.
type Run struct {
	id     string
	userID string
	cancel context.CancelFunc

	analyzed     chan struct{}
	analyzedOnce sync.Once
	done         chan struct{}
	doneOnce     sync.Once

	mu        sync.Mutex
	projectID string
	err       error
}

func newRun(userID string, cancel context.CancelFunc) *Run {
	return &Run{
		id:       uuid.NewString(),
		userID:   userID,
		cancel:   cancel,
		analyzed: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (r *Run) ID() string { return r.id }

func (r *Run) UserID() string { return r.userID }

// ProjectID is empty until the project document exists.
func (r *Run) ProjectID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.projectID
}

// Err is the analysis-phase error, if any. Per-asset failures never surface here.
func (r *Run) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Cancel aborts in-flight external calls. Safe to call more than once.
func (r *Run) Cancel() {
	r.cancel()
}

// Done is closed once the run has stopped, whether completed, failed or cancelled.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Analyzed blocks until the analysis phase ends and returns the created project id,
// or the analysis error.
func (r *Run) Analyzed(ctx context.Context) (string, error) {
	select {
	case <-r.analyzed:
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.projectID, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Wait blocks until the run stops.
func (r *Run) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Run) finishAnalysis(projectID string, err error) {
	r.analyzedOnce.Do(func() {
		r.mu.Lock()
		r.projectID = projectID
		r.err = err
		r.mu.Unlock()
		close(r.analyzed)
	})
}

func (r *Run) finish() {
	r.doneOnce.Do(func() {
		r.finishAnalysis("", context.Canceled) // no-op when analysis already ended
		close(r.done)
		r.cancel()
	})
}
