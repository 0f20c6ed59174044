package out

import (
	"context"
	"time"
)

// Cache defines the outbound port for best-effort caching.
type Cache interface {
	// GetJSON reports found=false on a miss.
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}
