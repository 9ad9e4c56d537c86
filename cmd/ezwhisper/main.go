package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gen2brain/beeep"

	"github.com/piotrostr/ezwhisper/internal/ai"
	"github.com/piotrostr/ezwhisper/internal/ai/anthropic"
	"github.com/piotrostr/ezwhisper/internal/ai/gemini"
	"github.com/piotrostr/ezwhisper/internal/ai/openai"
	"github.com/piotrostr/ezwhisper/internal/api"
	"github.com/piotrostr/ezwhisper/internal/audio"
	"github.com/piotrostr/ezwhisper/internal/config"
	"github.com/piotrostr/ezwhisper/internal/inject"
	"github.com/piotrostr/ezwhisper/internal/logbuf"
	"github.com/piotrostr/ezwhisper/internal/session"
	"github.com/piotrostr/ezwhisper/internal/status"
	"github.com/piotrostr/ezwhisper/internal/storage/sqlite"
	"github.com/piotrostr/ezwhisper/internal/transcription"
	"github.com/piotrostr/ezwhisper/internal/trigger"
	"github.com/piotrostr/ezwhisper/internal/websocket"
	"github.com/piotrostr/ezwhisper/pkg/logger"
)

var (
	// Version is injected at build time
	Version = "dev"
)

// capturerAdapter narrows *audio.Capturer to the orchestrator's view
type capturerAdapter struct {
	capturer *audio.Capturer
}

func (a capturerAdapter) Start(deviceIndex *int) (session.AudioCapture, error) {
	capture, err := a.capturer.Start(deviceIndex)
	if err != nil {
		return nil, err
	}
	return capture, nil
}

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to configuration file (optional - will search in configs/ and root directory)")
	flag.Parse()

	// Load configuration with fallback logic
	cfg, loadedPath, err := config.LoadWithFallback(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Create logger
	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting ezwhisper",
		logger.String("version", Version),
		logger.String("config_path", loadedPath),
	)

	configStore := config.NewStore(cfg, loadedPath)

	// UI log ring
	ring := logbuf.NewRing(cfg.UI.LogBufferSize)
	ring.Infof("ezwhisper started")

	// Create WebSocket server
	wsServer := websocket.NewServer(log)
	go wsServer.Run()

	// Mirror every UI log entry to connected clients
	ring.OnAppend(func(entry logbuf.Entry) {
		wsServer.Broadcast(&websocket.Message{
			Type: websocket.MessageTypeLogEntry,
			Data: map[string]any{
				"timestamp": entry.Timestamp.UTC().Format(time.RFC3339),
				"level":     string(entry.Level),
				"message":   entry.Message,
			},
		})
	})

	statusBroadcaster := status.NewBroadcaster(wsServer, log)

	// Create audio capturer
	capturer := audio.NewCapturer(cfg.Audio, log)
	if err := capturer.Init(); err != nil {
		log.Error("Failed to initialize audio", logger.Error(err))
		os.Exit(1)
	}
	defer capturer.Terminate()

	// Create session history storage
	var sessionStorage *sqlite.SessionStorage
	if cfg.Storage.Enabled {
		dbDir := filepath.Dir(cfg.Storage.SQLitePath)
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			log.Error("Failed to create database directory", logger.Error(err), logger.String("path", dbDir))
			os.Exit(1)
		}
		sessionStorage, err = sqlite.NewSessionStorage(cfg.Storage.SQLitePath, log)
		if err != nil {
			log.Error("Failed to create SQLite storage", logger.Error(err))
			os.Exit(1)
		}
		defer sessionStorage.Close()
		log.Info("Using SQLite session history", logger.String("path", cfg.Storage.SQLitePath))
	}

	// Create chat provider for cleanup/translation
	chatProvider := newChatProvider(cfg, log)
	var refiner transcription.TextRefiner
	if chatProvider != nil {
		refiner = transcription.NewCleaner(chatProvider, cfg.Cleanup, log)
		if cfg.Cleanup.Translate {
			log.Info("Transcript translation enabled", logger.String("target", cfg.Cleanup.TargetLanguage))
		} else if cfg.Cleanup.Cleanup {
			log.Info("Transcript cleanup enabled", logger.String("model", cfg.Cleanup.Model))
		}
	} else if cfg.Cleanup.Cleanup || cfg.Cleanup.Translate {
		log.Warn("Cleanup/translation requested but no provider API key is configured")
	}

	// Create transcription pipeline
	sttClient := transcription.NewClient(cfg.Transcription, log)
	pipeline := transcription.NewPipeline(sttClient, refiner, log, ring)

	// Create text injector
	injector := inject.NewInjector(cfg.Output, log)

	// Create trigger listener
	listener := trigger.NewListener(cfg.Trigger, log, ring)

	// Create session orchestrator. Leave History unset when storage is
	// disabled so the orchestrator sees a nil interface, not a nil pointer.
	opts := session.Options{Events: wsServer}
	if sessionStorage != nil {
		opts.History = sessionStorage
	}
	orchestrator := session.NewOrchestrator(
		listener.Signals(),
		capturerAdapter{capturer: capturer},
		pipeline,
		injector,
		configStore,
		statusBroadcaster,
		ring,
		log,
		opts,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go orchestrator.Run(ctx)

	// Start listening for trigger input. On macOS this requires
	// accessibility permissions; keep the settings UI running either
	// way so the user can see what went wrong.
	if err := listener.Start(); err != nil {
		log.Error("Failed to start input monitor", logger.Error(err))
		if errors.Is(err, trigger.ErrPermissionDenied) {
			_ = beeep.Notify("ezwhisper", "Input monitoring permission denied - grant accessibility access and restart", "")
		}
	} else {
		defer listener.Stop()
	}

	// Create API router
	handler := api.NewHandler(configStore, statusBroadcaster, ring, capturer, sessionStorage, wsServer, log)
	router := api.NewRouter(handler, log)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router.Routes(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSecs) * time.Second,
	}

	go func() {
		log.Info("Starting HTTP server", logger.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error on startup", logger.String("addr", addr), logger.Error(err))
		}
	}()

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down HTTP server", logger.Error(err))
	}

	log.Info("Shutdown complete")
}

// newChatProvider picks the configured chat backend, or nil when its
// API key is missing.
func newChatProvider(cfg *config.Config, log *logger.Logger) ai.ChatProvider {
	switch cfg.Cleanup.Provider {
	case "anthropic":
		if cfg.Cleanup.AnthropicAPIKey == "" {
			return nil
		}
		return anthropic.NewClient(cfg.Cleanup.AnthropicAPIKey, log, "")
	case "openai":
		if cfg.Cleanup.OpenAIAPIKey == "" {
			return nil
		}
		return openai.NewClient(cfg.Cleanup.OpenAIAPIKey, log, "")
	case "gemini":
		if cfg.Cleanup.GeminiAPIKey == "" {
			return nil
		}
		return gemini.NewClient(cfg.Cleanup.GeminiAPIKey, log)
	}
	return nil
}
