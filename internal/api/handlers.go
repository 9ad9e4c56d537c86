package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/piotrostr/ezwhisper/internal/audio"
	"github.com/piotrostr/ezwhisper/internal/config"
	"github.com/piotrostr/ezwhisper/internal/logbuf"
	"github.com/piotrostr/ezwhisper/internal/status"
	"github.com/piotrostr/ezwhisper/internal/storage/sqlite"
	"github.com/piotrostr/ezwhisper/internal/websocket"
	"github.com/piotrostr/ezwhisper/pkg/logger"
)

// DeviceLister enumerates input devices
type DeviceLister interface {
	ListDevices() ([]audio.Device, error)
}

// Handler contains the API handlers
type Handler struct {
	configStore    *config.Store
	statusSource   *status.Broadcaster
	ring           *logbuf.Ring
	devices        DeviceLister
	sessionStorage *sqlite.SessionStorage
	wsServer       *websocket.Server
	logger         *logger.Logger
}

// NewHandler creates a new API handler. sessionStorage may be nil when
// history persistence is disabled.
func NewHandler(configStore *config.Store, statusSource *status.Broadcaster, ring *logbuf.Ring, devices DeviceLister, sessionStorage *sqlite.SessionStorage, wsServer *websocket.Server, logger *logger.Logger) *Handler {
	return &Handler{
		configStore:    configStore,
		statusSource:   statusSource,
		ring:           ring,
		devices:        devices,
		sessionStorage: sessionStorage,
		wsServer:       wsServer,
		logger:         logger.Named("api-handler"),
	}
}

// GetStatus returns the current engine status
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{
		"status": string(h.statusSource.Current()),
	})
}

// GetLogs returns the in-memory log ring, oldest first
func (h *Handler) GetLogs(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{
		"logs": h.ring.Entries(),
	})
}

// GetDevices returns the available audio input devices
func (h *Handler) GetDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.devices.ListDevices()
	if err != nil {
		h.logger.Error("Failed to list audio devices", logger.Error(err))
		http.Error(w, fmt.Sprintf("Failed to list devices: %v", err), http.StatusInternalServerError)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
	})
}

// GetConfig returns the current configuration with secrets redacted
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	cfg := h.configStore.Current()
	cfg.Transcription.ElevenLabsAPIKey = redact(cfg.Transcription.ElevenLabsAPIKey)
	cfg.Cleanup.AnthropicAPIKey = redact(cfg.Cleanup.AnthropicAPIKey)
	cfg.Cleanup.OpenAIAPIKey = redact(cfg.Cleanup.OpenAIAPIKey)
	cfg.Cleanup.GeminiAPIKey = redact(cfg.Cleanup.GeminiAPIKey)
	WriteJSON(w, http.StatusOK, cfg)
}

// UpdateConfig validates and persists a new configuration. Settings
// apply to the next session; an in-flight session keeps the snapshot
// it started with.
func (h *Handler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var cfg config.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, fmt.Sprintf("Invalid config payload: %v", err), http.StatusBadRequest)
		return
	}

	if err := h.configStore.Update(cfg); err != nil {
		h.logger.Error("Failed to update config", logger.Error(err))
		http.Error(w, fmt.Sprintf("Failed to update config: %v", err), http.StatusBadRequest)
		return
	}

	h.logger.Info("Configuration updated")
	WriteJSON(w, http.StatusOK, map[string]any{
		"status": "updated",
	})
}

// GetHistory returns recent dictation sessions with pagination
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	if h.sessionStorage == nil {
		http.Error(w, "Session history is not enabled", http.StatusServiceUnavailable)
		return
	}

	limit := 50
	offset := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if parsed, err := strconv.Atoi(offsetStr); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	records, err := h.sessionStorage.GetRecentSessions(limit, offset)
	if err != nil {
		h.logger.Error("Failed to query session history", logger.Error(err))
		http.Error(w, fmt.Sprintf("Failed to query history: %v", err), http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []*sqlite.SessionRecord{}
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"sessions": records,
		"count":    len(records),
	})
}

// HandleWebSocket upgrades the connection and hands it to the hub
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.wsServer.HandleConnection(w, r)
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}
