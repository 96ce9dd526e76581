package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	DefaultAPIKeyPath = "/run/secrets/api_keys/volcanochat"
	APIKeyPathEnvVar  = "VOLCANOCHAT_API_KEY_FILE"
	CaptureSinkEnvVar = "CAPTURE_SINK"

	// SinkClipboard copies confirmed captures to the pasteboard;
	// SinkChat attaches them to the active conversation instead.
	SinkClipboard = "clipboard"
	SinkChat      = "chat"
)

type LoadOptions struct {
	APIKeyPathOverride  string
	CaptureSinkOverride string
}

type Config struct {
	APIKey             string
	APIKeyPath         string
	Model              string
	ChatEndpoint       string
	TranscribeEndpoint string
	EnableFileLogging  bool
	ScreenshotHotkey   string
	RecordHotkey       string
	CaptureSink        string
	RequestDeadlineSec int
}

func Load() (*Config, error) {
	return LoadWithOptions(LoadOptions{})
}

func LoadWithOptions(opts LoadOptions) (*Config, error) {
	// Load configuration from sources in priority order:
	// 1) .env in the application (executable) directory
	// 2) If not found, use VOLCANOCHAT_ENV env var as a path to a config file
	envPath := resolveEnvPath()
	dotenvValues := readDotenvValues(envPath)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	}

	// Resolve network deadline (seconds) with env override and sane default
	deadlineSec := 30
	if v := os.Getenv("REQUEST_DEADLINE_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			deadlineSec = n
		}
	}

	apiKeyPath := resolveAPIKeyPath(opts, dotenvValues)

	cfg := &Config{
		APIKey:             resolveAPIKey(apiKeyPath),
		APIKeyPath:         apiKeyPath,
		Model:              getEnvWithDefault("MODEL", "gpt-4o-mini"),
		ChatEndpoint:       getEnvWithDefault("CHAT_ENDPOINT", "https://api.openai.com/v1/chat/completions"),
		TranscribeEndpoint: getEnvWithDefault("TRANSCRIBE_ENDPOINT", "https://api.openai.com/v1/audio/transcriptions"),
		EnableFileLogging:  strings.ToLower(os.Getenv("ENABLE_FILE_LOGGING")) == "true",
		ScreenshotHotkey:   getEnvWithDefault("SCREENSHOT_HOTKEY", "Cmd+Shift+2"),
		RecordHotkey:       getEnvWithDefault("RECORD_HOTKEY", "Option"),
		CaptureSink:        resolveCaptureSinkValue(opts),
		RequestDeadlineSec: deadlineSec,
	}

	return cfg, nil
}

func resolveEnvPath() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}

	execDir := filepath.Dir(execPath)
	exeEnv := filepath.Join(execDir, ".env")
	if _, err := os.Stat(exeEnv); err == nil {
		return exeEnv
	}

	if alt := os.Getenv("VOLCANOCHAT_ENV"); alt != "" {
		if _, err := os.Stat(alt); err == nil {
			return alt
		}
	}

	return ""
}

func readDotenvValues(envPath string) map[string]string {
	if envPath == "" {
		return map[string]string{}
	}

	values, err := godotenv.Read(envPath)
	if err != nil {
		return map[string]string{}
	}

	return values
}

func resolveAPIKeyPath(opts LoadOptions, dotenvValues map[string]string) string {
	keyPath := DefaultAPIKeyPath

	if envPath := strings.TrimSpace(os.Getenv(APIKeyPathEnvVar)); envPath != "" {
		keyPath = envPath
	}

	if dotenvPath := strings.TrimSpace(dotenvValues[APIKeyPathEnvVar]); dotenvPath != "" {
		keyPath = dotenvPath
	}

	if overridePath := strings.TrimSpace(opts.APIKeyPathOverride); overridePath != "" {
		keyPath = overridePath
	}

	return keyPath
}

func resolveAPIKey(keyPath string) string {
	if data, err := os.ReadFile(keyPath); err == nil {
		if fileKey := strings.TrimSpace(string(data)); fileKey != "" {
			return fileKey
		}
	}

	return os.Getenv("VOLCANOCHAT_API_KEY")
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func resolveCaptureSink(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "chat", "conversation":
		return SinkChat
	default:
		return SinkClipboard
	}
}

func resolveCaptureSinkValue(opts LoadOptions) string {
	if override := strings.TrimSpace(opts.CaptureSinkOverride); override != "" {
		return resolveCaptureSink(override)
	}
	return resolveCaptureSink(os.Getenv(CaptureSinkEnvVar))
}
