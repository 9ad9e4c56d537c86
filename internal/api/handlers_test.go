package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/piotrostr/ezwhisper/internal/audio"
	"github.com/piotrostr/ezwhisper/internal/config"
	"github.com/piotrostr/ezwhisper/internal/logbuf"
	"github.com/piotrostr/ezwhisper/internal/status"
	"github.com/piotrostr/ezwhisper/pkg/logger"
)

type fakeDeviceLister struct {
	devices []audio.Device
	err     error
}

func (f *fakeDeviceLister) ListDevices() ([]audio.Device, error) {
	return f.devices, f.err
}

func newTestRouter(t *testing.T, devices DeviceLister) (http.Handler, *config.Store, *logbuf.Ring, *status.Broadcaster) {
	t.Helper()

	cfg := &config.Config{}
	cfg.Transcription.ElevenLabsAPIKey = "secret-eleven"
	cfg.Cleanup.AnthropicAPIKey = "secret-claude"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("failed to validate test config: %v", err)
	}
	store := config.NewStore(cfg, filepath.Join(t.TempDir(), "config.toml"))

	ring := logbuf.NewRing(logbuf.DefaultCapacity)
	broadcaster := status.NewBroadcaster(nil, logger.NewNop())

	handler := NewHandler(store, broadcaster, ring, devices, nil, nil, logger.NewNop())
	router := NewRouter(handler, logger.NewNop())
	return router.Routes(), store, ring, broadcaster
}

func TestGetStatus(t *testing.T) {
	routes, _, _, broadcaster := newTestRouter(t, &fakeDeviceLister{})
	broadcaster.Publish(status.StatusRecording)

	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["status"] != "recording" {
		t.Errorf("expected status recording, got %q", body["status"])
	}
}

func TestGetLogs(t *testing.T) {
	routes, _, ring, _ := newTestRouter(t, &fakeDeviceLister{})
	ring.Infof("recording...")
	ring.Errorf("transcription failed: %v", errors.New("timeout"))

	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/logs", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Logs []logbuf.Entry `json:"logs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if len(body.Logs) != 2 {
		t.Fatalf("expected 2 log entries, got %d", len(body.Logs))
	}
	if body.Logs[0].Message != "recording..." {
		t.Errorf("expected oldest entry first, got %q", body.Logs[0].Message)
	}
	if body.Logs[1].Level != logbuf.LevelError {
		t.Errorf("expected ERROR level, got %q", body.Logs[1].Level)
	}
}

func TestGetDevices(t *testing.T) {
	routes, _, _, _ := newTestRouter(t, &fakeDeviceLister{
		devices: []audio.Device{
			{Index: 0, Name: "Built-in Microphone"},
			{Index: 2, Name: "USB Audio"},
		},
	})

	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/devices", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Devices []audio.Device `json:"devices"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if len(body.Devices) != 2 || body.Devices[1].Name != "USB Audio" {
		t.Errorf("unexpected device list: %+v", body.Devices)
	}
}

func TestGetDevicesFailure(t *testing.T) {
	routes, _, _, _ := newTestRouter(t, &fakeDeviceLister{err: errors.New("portaudio not initialized")})

	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/devices", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestGetConfigRedactsSecrets(t *testing.T) {
	routes, _, _, _ := newTestRouter(t, &fakeDeviceLister{})

	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/config", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if strings.Contains(body, "secret-eleven") || strings.Contains(body, "secret-claude") {
		t.Error("API keys must not appear in config responses")
	}
}

func TestUpdateConfig(t *testing.T) {
	routes, store, _, _ := newTestRouter(t, &fakeDeviceLister{})

	cfg := store.Current()
	cfg.Output.AutoEnter = true
	payload, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("failed to marshal config: %v", err)
	}

	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/v1/config", strings.NewReader(string(payload))))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !store.Current().Output.AutoEnter {
		t.Error("update should have applied to the live config")
	}
}

func TestUpdateConfigRejectsInvalidJSON(t *testing.T) {
	routes, _, _, _ := newTestRouter(t, &fakeDeviceLister{})

	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/v1/config", strings.NewReader("{not json")))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestGetHistoryWhenDisabled(t *testing.T) {
	routes, _, _, _ := newTestRouter(t, &fakeDeviceLister{})

	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/history", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}
