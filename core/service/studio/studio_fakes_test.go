package studio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"studio_server/core/domain"
	"studio_server/pkg/imageutil"
	"studio_server/pkg/resilience"
)

var defaultKeys = []string{
	"logoLight", "logoDark", "colorPalette", "businessCard", "socialTemplate",
	"brandPattern", "packaging", "apparel", "stationery",
}

func testCatalog(t *testing.T) *domain.AssetCatalog {
	t.Helper()
	specs := make([]domain.AssetSpec, len(defaultKeys))
	for i, k := range defaultKeys {
		specs[i] = domain.AssetSpec{Key: k, Prompt: "prompt for " + k}
	}
	c, err := domain.NewAssetCatalog(specs)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return c
}

func testIdentity() *domain.BrandIdentity {
	assets := make(map[string]string, len(defaultKeys))
	for _, k := range defaultKeys {
		assets[k] = "render " + k + " with [PRIMARY_COLOR] and [COLOR_3] for [USER_NAME]"
	}
	return &domain.BrandIdentity{
		BrandColors: domain.BrandColors{
			Primary: "#112233", Secondary: "#aabbcc", Accent: "#445566",
			Background: "#F8F9FA", Text: "#111111",
		},
		Typography:   domain.Typography{Heading: "Montserrat", Body: "Inter"},
		BrandVoice:   []string{"audacieux", "moderne", "fiable"},
		VisualAssets: assets,
		Validation:   &domain.Validation{IsValidLogo: true},
	}
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 16, 16))
	for x := 0; x < 16; x++ {
		for y := 0; y < 16; y++ {
			img.Set(x, y, color.NRGBA{R: 0x11, G: 0x22, B: 0x33, A: 0xff})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

// =============================================================================
// Fakes
// =============================================================================

type fakeAnalyzer struct {
	calls    atomic.Int32
	identity *domain.BrandIdentity
	err      error
	// failFirst makes the first N calls fail with a transient error.
	failFirst int32
	// block, when set, holds every call until it is closed or ctx ends.
	block chan struct{}
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, logo imageutil.Payload, category string) (*domain.BrandIdentity, error) {
	n := f.calls.Add(1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if n <= f.failFirst {
		return nil, errors.New("transient analysis failure")
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.identity.Clone(), nil
}

type fakeGenerator struct {
	mu      sync.Mutex
	prompts []string
	// failKeys always fail; flakyKeys fail on their first attempt only.
	failKeys  map[string]bool
	flakyKeys map[string]bool
	seen      map[string]int
	// block, when set, holds every call until it is closed or ctx ends.
	block    chan struct{}
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	delay    time.Duration
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string, identity *domain.BrandIdentity, logo imageutil.Payload) (*domain.GeneratedAsset, error) {
	cur := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		old := f.maxSeen.Load()
		if cur <= old || f.maxSeen.CompareAndSwap(old, cur) {
			break
		}
	}

	key := keyOf(prompt)
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	if f.seen == nil {
		f.seen = map[string]int{}
	}
	f.seen[key]++
	attempt := f.seen[key]
	f.mu.Unlock()

	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.failKeys[key] {
		return nil, &domain.GenerationError{AssetKey: key, Err: errors.New("model unavailable")}
	}
	if f.flakyKeys[key] && attempt == 1 {
		return nil, errors.New("temporary upstream error")
	}
	return &domain.GeneratedAsset{Data: []byte("img-" + key), MIMEType: "image/png"}, nil
}

func (f *fakeGenerator) promptsSnapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

func keyOf(prompt string) string {
	for _, k := range defaultKeys {
		if strings.Contains(prompt, "render "+k+" ") {
			return k
		}
	}
	return ""
}

type fakeStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	failPaths string // prefix that always fails
}

func (f *fakeStore) PutObject(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	if f.failPaths != "" && strings.HasPrefix(path, f.failPaths) {
		return "", &domain.StorageError{Path: path, Err: errors.New("bucket unavailable")}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.objects == nil {
		f.objects = map[string][]byte{}
	}
	f.objects[path] = data
	return "https://cdn.test/" + path, nil
}

func (f *fakeStore) paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.objects))
	for p := range f.objects {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

type fakeRepo struct {
	mu        sync.Mutex
	projects  map[string]*domain.Project
	userCount map[string]int64
	countErr  error
	created   int
	nextID    int
	// progress history per project, in write order
	history map[string][]int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		projects:  map[string]*domain.Project{},
		userCount: map[string]int64{},
		history:   map[string][]int{},
	}
}

func (f *fakeRepo) CreateProject(ctx context.Context, p *domain.Project) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.created++
	id := fmt.Sprintf("proj-%d", f.nextID)
	cp := *p
	cp.ID = id
	cp.GeneratedImages = map[string]string{}
	f.projects[id] = &cp
	f.userCount[p.UserID]++
	f.history[id] = append(f.history[id], p.Progress)
	return id, nil
}

func (f *fakeRepo) UpdateProject(ctx context.Context, id string, patch domain.ProjectPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[id]
	if !ok {
		return domain.ErrProjectNotFound
	}
	for k, v := range patch.GeneratedImages {
		p.GeneratedImages[k] = v
	}
	if patch.Progress > p.Progress {
		p.Progress = patch.Progress
	}
	f.history[id] = append(f.history[id], p.Progress)
	return nil
}

func (f *fakeRepo) GetProject(ctx context.Context, id string) (*domain.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	cp.GeneratedImages = map[string]string{}
	for k, v := range p.GeneratedImages {
		cp.GeneratedImages[k] = v
	}
	return &cp, nil
}

func (f *fakeRepo) ListUserProjects(ctx context.Context, userID string, limit int) ([]*domain.Project, error) {
	return nil, nil
}

func (f *fakeRepo) CountUserProjects(ctx context.Context, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.countErr != nil {
		return 0, f.countErr
	}
	return f.userCount[userID], nil
}

func (f *fakeRepo) CountAllProjects(ctx context.Context) (int64, error) {
	return 0, nil
}

func (f *fakeRepo) createdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created
}

// =============================================================================
// Harness
// =============================================================================

type harness struct {
	svc       *Service
	analyzer  *fakeAnalyzer
	generator *fakeGenerator
	store     *fakeStore
	repo      *fakeRepo

	mu     sync.Mutex
	states []domain.SessionState
}

func newHarness(t *testing.T, mutate func(cfg *Config)) *harness {
	t.Helper()
	h := &harness{
		analyzer:  &fakeAnalyzer{identity: testIdentity()},
		generator: &fakeGenerator{},
		store:     &fakeStore{},
		repo:      newFakeRepo(),
	}
	cfg := DefaultConfig()
	cfg.Retry = resilience.RetryPolicy{MaxAttempts: 2, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
	cfg.CallTimeout = 5 * time.Second
	if mutate != nil {
		mutate(&cfg)
	}
	svc, err := NewService(h.analyzer, h.generator, h.store, h.repo, nil, testCatalog(t), cfg)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	h.svc = svc
	unsub := svc.Subscribe(func(userID string, st domain.SessionState) {
		h.mu.Lock()
		h.states = append(h.states, st)
		h.mu.Unlock()
	})
	t.Cleanup(unsub)
	return h
}

func (h *harness) recorded() []domain.SessionState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]domain.SessionState(nil), h.states...)
}

func waitRun(t *testing.T, run *Run) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	select {
	case <-run.Done():
	case <-ctx.Done():
		t.Fatal("run did not finish in time")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}
