package domain

import "time"

// RealtimeEvent is pushed to SSE subscribers
type RealtimeEvent struct {
	Type      EventType `json:"type"`
	Seq       int64     `json:"seq"`
	UserID    string    `json:"-"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

type EventType string

const (
	EventSessionState  EventType = "studio.state"
	EventAssetReady    EventType = "studio.asset_ready"
	EventAssetFailed   EventType = "studio.asset_failed"
	EventRunCompleted  EventType = "studio.completed"
	EventRunFailed     EventType = "studio.error"
	EventSessionReset  EventType = "studio.reset"
	EventHeartbeat     EventType = "heartbeat"
	EventStreamStarted EventType = "connected"
)

// AssetEventData is the payload of asset_ready / asset_failed events
type AssetEventData struct {
	RunID     string `json:"runId"`
	ProjectID string `json:"projectId"`
	Key       string `json:"key"`
	URL       string `json:"url,omitempty"`
	Progress  int    `json:"progress"`
}

func NewRealtimeEvent(userID string, typ EventType, data any) *RealtimeEvent {
	return &RealtimeEvent{
		Type:      typ,
		UserID:    userID,
		Data:      data,
		Timestamp: time.Now(),
	}
}
