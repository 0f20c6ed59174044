package out

import (
	"context"

	"studio_server/core/domain"
)

// RealtimePort - 실시간 이벤트 푸시
type RealtimePort interface {
	Subscribe(userID string) <-chan *domain.RealtimeEvent
	Unsubscribe(userID string, ch <-chan *domain.RealtimeEvent)

	// Push delivers to every open stream of userID. It never blocks on slow readers.
	Push(ctx context.Context, userID string, event *domain.RealtimeEvent) error

	ConnectedCount() int
	IsConnected(userID string) bool
}
