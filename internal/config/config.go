package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main application configuration structure
// containing all configuration sections
type Config struct {
	Server        ServerConfig        `toml:"server"`        // HTTP server settings for the settings UI
	Logging       LoggingConfig       `toml:"logging"`       // Application logging settings
	Audio         AudioConfig         `toml:"audio"`         // Microphone capture settings
	Trigger       TriggerConfig       `toml:"trigger"`       // Push-to-talk trigger settings
	Transcription TranscriptionConfig `toml:"transcription"` // Speech-to-text service settings
	Cleanup       CleanupConfig       `toml:"cleanup"`       // LLM cleanup/translation settings
	Output        OutputConfig        `toml:"output"`        // Text injection settings
	Storage       StorageConfig       `toml:"storage"`       // Dictation history persistence settings
	UI            UIConfig            `toml:"ui"`            // Settings UI surface options
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port             int    `toml:"port"`                  // HTTP port for the local settings UI API
	Host             string `toml:"host"`                  // Host address to bind to (127.0.0.1 keeps the API local-only)
	ReadTimeoutSecs  int    `toml:"read_timeout_seconds"`  // Maximum duration for reading the entire request
	WriteTimeoutSecs int    `toml:"write_timeout_seconds"` // Maximum duration for writing the response
	IdleTimeoutSecs  int    `toml:"idle_timeout_seconds"`  // Maximum duration to wait for the next keep-alive request
}

// LoggingConfig contains application logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`  // Log level: "debug", "info", "warn", or "error"
	Format string `toml:"format"` // Log format: "json" (structured) or "console" (human-readable)
}

// AudioConfig contains microphone capture configuration
type AudioConfig struct {
	DeviceIndex *int `toml:"device_index"` // Input device index; omit to use the system default device
	SampleRate  int  `toml:"sample_rate"`  // Capture sample rate in Hz (default 16000)
	Channels    int  `toml:"channels"`     // Number of capture channels (1 for mono)
}

// TriggerConfig contains push-to-talk trigger configuration
type TriggerConfig struct {
	MouseButtons       []int `toml:"mouse_buttons"`        // Mouse button numbers treated as the gesture trigger
	GestureKeycode     int   `toml:"gesture_keycode"`      // Raw keycode sent by the gesture button in keyboard mode (65535 for Logitech)
	RightOptionRawcode int   `toml:"right_option_rawcode"` // Raw keycode of the Right Option key
	QueueSize          int   `toml:"queue_size"`           // Trigger signal queue depth before drops
}

// TranscriptionConfig contains settings for the speech-to-text service
type TranscriptionConfig struct {
	ElevenLabsAPIKey string `toml:"elevenlabs_api_key"` // ElevenLabs API key (falls back to ELEVENLABS_API_KEY)
	BaseURL          string `toml:"base_url"`           // Service base URL, defaults to https://api.elevenlabs.io
	Model            string `toml:"model"`              // Transcription model id (default "scribe_v1")
	Language         string `toml:"language"`           // Language hint code, or "auto" for detection
	TimeoutSeconds   int    `toml:"timeout_seconds"`    // HTTP timeout for transcription requests
}

// CleanupConfig contains settings for the LLM cleanup/translation service
type CleanupConfig struct {
	Provider        string `toml:"provider"`          // Chat provider: "anthropic", "openai", or "gemini"
	AnthropicAPIKey string `toml:"anthropic_api_key"` // Anthropic API key (falls back to ANTHROPIC_API_KEY)
	OpenAIAPIKey    string `toml:"openai_api_key"`    // OpenAI API key (falls back to OPENAI_API_KEY)
	GeminiAPIKey    string `toml:"gemini_api_key"`    // Gemini API key (falls back to GEMINI_API_KEY)
	Model           string `toml:"model"`             // Chat model used for cleanup/translation
	Cleanup         bool   `toml:"cleanup"`           // Run grammar/punctuation cleanup on transcripts
	Translate       bool   `toml:"translate"`         // Translate transcripts into the target language
	TargetLanguage  string `toml:"target_language"`   // Translation target language (default "English")
	MaxTokens       int    `toml:"max_tokens"`        // Token cap for the chat completion
	TimeoutSeconds  int    `toml:"timeout_seconds"`   // HTTP timeout for cleanup requests
}

// OutputConfig contains text injection configuration
type OutputConfig struct {
	AutoEnter         bool `toml:"auto_enter"`          // Press Enter after pasting the dictated text
	ClipboardSettleMs int  `toml:"clipboard_settle_ms"` // Delay between clipboard write and paste keystroke
	CommitDelayMs     int  `toml:"commit_delay_ms"`     // Delay before the Enter keystroke when auto_enter is set
}

// StorageConfig contains dictation history persistence configuration
type StorageConfig struct {
	Enabled    bool   `toml:"enabled"`     // Record completed dictations to SQLite
	SQLitePath string `toml:"sqlite_path"` // Path to the history database file
}

// UIConfig contains settings UI surface configuration
type UIConfig struct {
	LogBufferSize int `toml:"log_buffer_size"` // Number of log entries retained for the UI
}

// Snapshot is the read-only per-session view of the configuration. It is
// copied when a session starts so concurrent config edits never affect an
// in-flight session.
type Snapshot struct {
	ElevenLabsAPIKey string
	Language         string
	DeviceIndex      *int
	AutoEnter        bool
	Cleanup          bool
	Translate        bool
	TargetLanguage   string
}

// Load reads and decodes the configuration from the given path
func Load(path string) (*Config, error) {
	var config Config

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	if _, err := toml.DecodeFile(path, &config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	config.applyEnvFallbacks()

	return &config, nil
}

// LoadWithFallback loads the configuration by checking multiple locations in
// order of preference. It returns the loaded config and the path it came from.
func LoadWithFallback(preferredPath string) (*Config, string, error) {
	searchPaths := []string{
		preferredPath,         // User-specified path (if provided)
		"configs/config.toml", // Repo-local configs/ folder
		"config.toml",         // Root directory
	}

	uniquePaths := make([]string, 0, len(searchPaths))
	seen := make(map[string]bool)
	for _, path := range searchPaths {
		if path != "" && !seen[path] {
			uniquePaths = append(uniquePaths, path)
			seen[path] = true
		}
	}

	var lastErr error
	for _, path := range uniquePaths {
		if _, err := os.Stat(path); err == nil {
			config, err := Load(path)
			if err != nil {
				lastErr = fmt.Errorf("failed to load config from %s: %w", path, err)
				continue
			}
			return config, path, nil
		}
		lastErr = fmt.Errorf("config file not found: %s", path)
	}

	return nil, "", fmt.Errorf("config file not found in any of the expected locations: %v. Last error: %w", uniquePaths, lastErr)
}

// applyEnvFallbacks fills empty credentials from the environment, matching the
// original loader's behavior.
func (c *Config) applyEnvFallbacks() {
	if c.Transcription.ElevenLabsAPIKey == "" {
		c.Transcription.ElevenLabsAPIKey = os.Getenv("ELEVENLABS_API_KEY")
	}
	if c.Cleanup.AnthropicAPIKey == "" {
		c.Cleanup.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if c.Cleanup.OpenAIAPIKey == "" {
		c.Cleanup.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.Cleanup.GeminiAPIKey == "" {
		c.Cleanup.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	}
}

// Validate validates the configuration and applies defaults for unset fields
func (c *Config) Validate() error {
	if c.Server.Port == 0 {
		c.Server.Port = 8921
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.ReadTimeoutSecs == 0 {
		c.Server.ReadTimeoutSecs = 15
	}
	if c.Server.WriteTimeoutSecs == 0 {
		c.Server.WriteTimeoutSecs = 15
	}
	if c.Server.IdleTimeoutSecs == 0 {
		c.Server.IdleTimeoutSecs = 60
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}

	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = 16000
	}
	if c.Audio.SampleRate < 8000 {
		return fmt.Errorf("invalid sample rate: %d", c.Audio.SampleRate)
	}
	if c.Audio.Channels == 0 {
		c.Audio.Channels = 1
	}
	if c.Audio.Channels < 1 || c.Audio.Channels > 2 {
		return fmt.Errorf("invalid channel count: %d", c.Audio.Channels)
	}
	if c.Audio.DeviceIndex != nil && *c.Audio.DeviceIndex < 0 {
		return fmt.Errorf("invalid device index: %d", *c.Audio.DeviceIndex)
	}

	if len(c.Trigger.MouseButtons) == 0 {
		// Logitech side/gesture buttons as reported by the OS event source
		c.Trigger.MouseButtons = []int{3, 4, 5, 6, 8}
	}
	if c.Trigger.GestureKeycode == 0 {
		c.Trigger.GestureKeycode = 65535
	}
	if c.Trigger.RightOptionRawcode == 0 {
		c.Trigger.RightOptionRawcode = 61
	}
	if c.Trigger.QueueSize == 0 {
		c.Trigger.QueueSize = 16
	}

	if c.Transcription.BaseURL == "" {
		c.Transcription.BaseURL = "https://api.elevenlabs.io"
	}
	if c.Transcription.Model == "" {
		c.Transcription.Model = "scribe_v1"
	}
	if c.Transcription.Language == "" {
		c.Transcription.Language = "auto"
	}
	if c.Transcription.TimeoutSeconds == 0 {
		c.Transcription.TimeoutSeconds = 30
	}

	if c.Cleanup.Provider == "" {
		c.Cleanup.Provider = "anthropic"
	}
	switch c.Cleanup.Provider {
	case "anthropic", "openai", "gemini":
	default:
		return fmt.Errorf("invalid cleanup provider: %s", c.Cleanup.Provider)
	}
	if c.Cleanup.Model == "" {
		c.Cleanup.Model = "claude-3-5-haiku-latest"
	}
	if c.Cleanup.TargetLanguage == "" {
		c.Cleanup.TargetLanguage = "English"
	}
	if c.Cleanup.MaxTokens == 0 {
		c.Cleanup.MaxTokens = 1024
	}
	if c.Cleanup.TimeoutSeconds == 0 {
		c.Cleanup.TimeoutSeconds = 10
	}

	if c.Output.ClipboardSettleMs == 0 {
		c.Output.ClipboardSettleMs = 50
	}
	if c.Output.CommitDelayMs == 0 {
		c.Output.CommitDelayMs = 150
	}

	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = filepath.Join("data", "ezwhisper.db")
	}

	if c.UI.LogBufferSize == 0 {
		c.UI.LogBufferSize = 100
	}
	if c.UI.LogBufferSize < 0 {
		return fmt.Errorf("invalid log buffer size: %d", c.UI.LogBufferSize)
	}

	return nil
}

// Save writes the configuration to the given path in TOML format
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return nil
}
