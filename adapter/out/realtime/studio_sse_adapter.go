// Package realtime provides real-time communication adapters.
package realtime

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"studio_server/core/domain"
	"studio_server/core/port/out"
)

// =============================================================================
// SSE Adapter - RealtimePort
// =============================================================================

const clientBuffer = 64

// SSEAdapter implements out.RealtimePort using Server-Sent Events.
type SSEAdapter struct {
	clients map[string]map[chan *domain.RealtimeEvent]struct{} // userID -> channels
	mu      sync.RWMutex
	log     zerolog.Logger

	messagesSent    atomic.Int64
	messagesDropped atomic.Int64
	seqCounter      atomic.Int64
}

// NewSSEAdapter creates a new SSE adapter.
func NewSSEAdapter(log zerolog.Logger) *SSEAdapter {
	return &SSEAdapter{
		clients: make(map[string]map[chan *domain.RealtimeEvent]struct{}),
		log:     log.With().Str("component", "sse_adapter").Logger(),
	}
}

// Subscribe creates a new subscription channel for a user.
func (a *SSEAdapter) Subscribe(userID string) <-chan *domain.RealtimeEvent {
	a.mu.Lock()
	defer a.mu.Unlock()

	ch := make(chan *domain.RealtimeEvent, clientBuffer)
	if a.clients[userID] == nil {
		a.clients[userID] = make(map[chan *domain.RealtimeEvent]struct{})
	}
	a.clients[userID][ch] = struct{}{}

	a.log.Debug().
		Str("user_id", userID).
		Int("user_connections", len(a.clients[userID])).
		Msg("client subscribed")

	return ch
}

// Unsubscribe removes and closes a subscription channel.
func (a *SSEAdapter) Unsubscribe(userID string, ch <-chan *domain.RealtimeEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	channels, ok := a.clients[userID]
	if !ok {
		return
	}
	for c := range channels {
		if c == ch {
			delete(channels, c)
			close(c)
			break
		}
	}
	if len(channels) == 0 {
		delete(a.clients, userID)
	}

	a.log.Debug().Str("user_id", userID).Msg("client unsubscribed")
}

// Push sends an event to every stream of userID. Slow streams drop the event.
// The read lock is held while sending so Unsubscribe cannot close a channel mid-send.
func (a *SSEAdapter) Push(ctx context.Context, userID string, event *domain.RealtimeEvent) error {
	ev := *event
	ev.Seq = a.seqCounter.Add(1)

	a.mu.RLock()
	defer a.mu.RUnlock()

	for ch := range a.clients[userID] {
		select {
		case ch <- &ev:
			a.messagesSent.Add(1)
		default:
			a.messagesDropped.Add(1)
			a.log.Warn().
				Str("user_id", userID).
				Str("event_type", string(ev.Type)).
				Int64("seq", ev.Seq).
				Msg("dropped event due to full buffer")
		}
	}
	return nil
}

// ConnectedCount returns the number of connected users.
func (a *SSEAdapter) ConnectedCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.clients)
}

// IsConnected checks if a user has active connections.
func (a *SSEAdapter) IsConnected(userID string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.clients[userID]) > 0
}

// GetMetrics returns adapter metrics.
func (a *SSEAdapter) GetMetrics() SSEMetrics {
	a.mu.RLock()
	total := 0
	for _, channels := range a.clients {
		total += len(channels)
	}
	users := len(a.clients)
	a.mu.RUnlock()

	return SSEMetrics{
		ConnectedUsers:   users,
		TotalConnections: total,
		MessagesSent:     a.messagesSent.Load(),
		MessagesDropped:  a.messagesDropped.Load(),
	}
}

// SSEMetrics holds SSE adapter metrics.
type SSEMetrics struct {
	ConnectedUsers   int   `json:"connected_users"`
	TotalConnections int   `json:"total_connections"`
	MessagesSent     int64 `json:"messages_sent"`
	MessagesDropped  int64 `json:"messages_dropped"`
}

// =============================================================================
// SSE Hub - HTTP Handler
// =============================================================================

// SSEHub hands out per-connection clients to the HTTP layer.
type SSEHub struct {
	adapter           *SSEAdapter
	log               zerolog.Logger
	heartbeatInterval time.Duration
}

// NewSSEHub creates a new SSE hub.
func NewSSEHub(adapter *SSEAdapter, heartbeat time.Duration, log zerolog.Logger) *SSEHub {
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	return &SSEHub{
		adapter:           adapter,
		log:               log.With().Str("component", "sse_hub").Logger(),
		heartbeatInterval: heartbeat,
	}
}

// CreateClient creates a new SSE client for a user.
func (h *SSEHub) CreateClient(userID string) *SSEClient {
	return &SSEClient{
		UserID: userID,
		Events: h.adapter.Subscribe(userID),
		Done:   make(chan struct{}),
		hub:    h,
	}
}

// RemoveClient removes an SSE client.
func (h *SSEHub) RemoveClient(client *SSEClient) {
	h.adapter.Unsubscribe(client.UserID, client.Events)
}

func (h *SSEHub) Metrics() SSEMetrics { return h.adapter.GetMetrics() }

// SSEClient represents an SSE client connection.
type SSEClient struct {
	UserID string
	Events <-chan *domain.RealtimeEvent
	Done   chan struct{}
	hub    *SSEHub
	once   sync.Once
}

// Close closes the client connection. Safe to call more than once.
func (c *SSEClient) Close() {
	c.once.Do(func() {
		close(c.Done)
		c.hub.RemoveClient(c)
	})
}

// HeartbeatInterval returns the heartbeat interval.
func (c *SSEClient) HeartbeatInterval() time.Duration {
	return c.hub.heartbeatInterval
}

// =============================================================================
// Event Serialization
// =============================================================================

// SerializeEvent converts a RealtimeEvent to its JSON data line.
func SerializeEvent(event *domain.RealtimeEvent) ([]byte, error) {
	payload := map[string]any{
		"type":      event.Type,
		"seq":       event.Seq,
		"data":      event.Data,
		"timestamp": event.Timestamp.Format(time.RFC3339),
	}
	return json.Marshal(payload)
}

// FormatSSE renders one SSE frame: id, event name and data line.
func FormatSSE(event *domain.RealtimeEvent) ([]byte, error) {
	data, err := SerializeEvent(event)
	if err != nil {
		return nil, err
	}
	frame := make([]byte, 0, len(data)+64)
	frame = append(frame, "id: "...)
	frame = strconv.AppendInt(frame, event.Seq, 10)
	frame = append(frame, "\nevent: "...)
	frame = append(frame, string(event.Type)...)
	frame = append(frame, "\ndata: "...)
	frame = append(frame, data...)
	frame = append(frame, "\n\n"...)
	return frame, nil
}

// =============================================================================
// Interface Compliance
// =============================================================================

var _ out.RealtimePort = (*SSEAdapter)(nil)
