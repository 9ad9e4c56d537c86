package status

import (
	"sync"
	"time"

	"github.com/piotrostr/ezwhisper/internal/websocket"
	"github.com/piotrostr/ezwhisper/pkg/logger"
)

// AppStatus is the engine's externally visible state
type AppStatus string

const (
	StatusIdle         AppStatus = "idle"
	StatusRecording    AppStatus = "recording"
	StatusTranscribing AppStatus = "transcribing"
)

// Broadcaster tracks the current engine status and pushes changes to
// WebSocket clients
type Broadcaster struct {
	mu      sync.RWMutex
	current AppStatus
	ws      *websocket.Server
	logger  *logger.Logger
}

// NewBroadcaster creates a status broadcaster. ws may be nil in tests.
func NewBroadcaster(ws *websocket.Server, logger *logger.Logger) *Broadcaster {
	return &Broadcaster{
		current: StatusIdle,
		ws:      ws,
		logger:  logger.Named("status"),
	}
}

// Publish records the new status and notifies connected clients
func (b *Broadcaster) Publish(status AppStatus) {
	b.mu.Lock()
	b.current = status
	b.mu.Unlock()

	b.logger.Debug("Status changed", logger.String("status", string(status)))

	if b.ws != nil {
		b.ws.Broadcast(&websocket.Message{
			Type: websocket.MessageTypeStatusChanged,
			Data: map[string]any{
				"status":    string(status),
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			},
		})
	}
}

// Current returns the last published status
func (b *Broadcaster) Current() AppStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.current
}
