// Package storage implements the object store on Google Cloud Storage.
package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	gcs "cloud.google.com/go/storage"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"

	"studio_server/core/domain"
	"studio_server/pkg/resilience"
)

// =============================================================================
// GCS Object Store
// =============================================================================

// Config holds bucket settings.
type Config struct {
	Bucket          string
	CredentialsFile string // service account JSON; empty uses application default credentials
	PublicBaseURL   string // e.g. https://storage.googleapis.com
	Endpoint        string // emulator endpoint, disables auth
	CacheControl    string
}

// objectWriter opens a writer for one object.
type objectWriter interface {
	NewWriter(ctx context.Context, path, contentType, cacheControl string) io.WriteCloser
}

type bucketWriter struct {
	bucket *gcs.BucketHandle
}

func (b bucketWriter) NewWriter(ctx context.Context, path, contentType, cacheControl string) io.WriteCloser {
	w := b.bucket.Object(path).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = cacheControl
	return w
}

// GCSAdapter implements out.ObjectStore.
type GCSAdapter struct {
	client  *gcs.Client
	writer  objectWriter
	bucket  string
	baseURL string
	cache   string
	breaker *resilience.Breaker
	log     zerolog.Logger
}

// NewGCSAdapter creates the storage client from cfg.
func NewGCSAdapter(ctx context.Context, cfg Config, log zerolog.Logger) (*GCSAdapter, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("gcs bucket is required")
	}

	opts, err := clientOptions(ctx, cfg)
	if err != nil {
		return nil, err
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	a := newAdapter(bucketWriter{bucket: client.Bucket(cfg.Bucket)}, cfg, log)
	a.client = client
	return a, nil
}

func newAdapter(w objectWriter, cfg Config, log zerolog.Logger) *GCSAdapter {
	base := strings.TrimRight(cfg.PublicBaseURL, "/")
	if base == "" {
		base = "https://storage.googleapis.com"
	}
	cache := cfg.CacheControl
	if cache == "" {
		cache = "public, max-age=31536000"
	}
	return &GCSAdapter{
		writer:  w,
		bucket:  cfg.Bucket,
		baseURL: base,
		cache:   cache,
		breaker: resilience.NewBreaker(resilience.DefaultBreakerConfig("gcs"), log),
		log:     log.With().Str("component", "gcs").Logger(),
	}
}

func clientOptions(ctx context.Context, cfg Config) ([]option.ClientOption, error) {
	if cfg.Endpoint != "" {
		return []option.ClientOption{option.WithEndpoint(cfg.Endpoint), option.WithoutAuthentication()}, nil
	}
	if cfg.CredentialsFile == "" {
		return nil, nil
	}
	data, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read gcs credentials: %w", err)
	}
	creds, err := google.CredentialsFromJSON(ctx, data, gcs.ScopeReadWrite)
	if err != nil {
		return nil, fmt.Errorf("parse gcs credentials: %w", err)
	}
	return []option.ClientOption{option.WithCredentials(creds)}, nil
}

// PutObject uploads data and returns its public URL.
func (a *GCSAdapter) PutObject(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	path = strings.TrimLeft(path, "/")
	if path == "" || len(data) == 0 {
		return "", &domain.StorageError{Path: path, Err: fmt.Errorf("empty path or payload")}
	}

	_, err := resilience.Execute(a.breaker, func() (struct{}, error) {
		w := a.writer.NewWriter(ctx, path, contentType, a.cache)
		if _, err := w.Write(data); err != nil {
			_ = w.Close()
			return struct{}{}, err
		}
		return struct{}{}, w.Close()
	})
	if err != nil {
		return "", &domain.StorageError{Path: path, Err: err}
	}

	a.log.Debug().Str("path", path).Int("bytes", len(data)).Msg("object stored")
	return a.PublicURL(path), nil
}

// PublicURL is {base}/{bucket}/{path} with each path segment escaped; user ids such as
// "auth0|123" are not URL-safe.
func (a *GCSAdapter) PublicURL(path string) string {
	segments := strings.Split(strings.TrimLeft(path, "/"), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return fmt.Sprintf("%s/%s/%s", a.baseURL, a.bucket, strings.Join(segments, "/"))
}

func (a *GCSAdapter) Close() error {
	if a.client == nil {
		return nil
	}
	return a.client.Close()
}
