package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	DefaultAPIKeyPath  = "/run/secrets/api_keys/openai"
	APIKeyPathEnvVar   = "OPENAI_API_KEY_FILE"
	APIKeyEnvVar       = "OPENAI_API_KEY"
	ConfigPathEnvVar   = "SCREEN_READER_LLM"
	DefaultBaseURL     = "https://api.openai.com/v1"
	DefaultModel       = "gpt-4o"
	DefaultHotkey      = "ctrl+alt+s"
	DefaultMaxTokens   = 300
	DefaultDeadlineSec = 45
	DefaultControlPort = 49600
	minControlPort     = 1024
	maxControlPort     = 65535
)

// Models lists the vision-capable models offered in the model picker.
var Models = []string{"gpt-4o", "gpt-4-turbo"}

type LoadOptions struct {
	APIKeyPathOverride string
	ModelOverride      string
	HotkeyOverride     string
}

type Config struct {
	APIKey             string
	APIKeyPath         string
	BaseURL            string
	Model              string
	Providers          []string
	Hotkey             string
	IncludeContext     bool
	MaxTokens          int
	RequestDeadlineSec int
	SpeechEnabled      bool
	SpeechCommand      string
	CopyToClipboard    bool
	EnableFileLogging  bool
	ControlPort        int
}

func Load() (*Config, error) {
	return LoadWithOptions(LoadOptions{})
}

func LoadWithOptions(opts LoadOptions) (*Config, error) {
	// Load configuration from sources in priority order:
	// 1) .env in the application (executable) directory
	// 2) If not found, SCREEN_READER_LLM names a config file
	envPath := resolveEnvPath()
	dotenvValues := readDotenvValues(envPath)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	}

	var providers []string
	if providersStr := os.Getenv("PROVIDERS"); providersStr != "" {
		for _, provider := range strings.Split(providersStr, ",") {
			if trimmed := strings.TrimSpace(provider); trimmed != "" {
				providers = append(providers, trimmed)
			}
		}
	}

	apiKeyPath := resolveAPIKeyPath(opts, dotenvValues)

	cfg := &Config{
		APIKey:             resolveAPIKey(apiKeyPath),
		APIKeyPath:         apiKeyPath,
		BaseURL:            getEnvWithDefault("API_BASE_URL", DefaultBaseURL),
		Model:              firstNonEmpty(opts.ModelOverride, os.Getenv("MODEL"), DefaultModel),
		Providers:          providers,
		Hotkey:             firstNonEmpty(opts.HotkeyOverride, os.Getenv("HOTKEY"), DefaultHotkey),
		IncludeContext:     getEnvBool("INCLUDE_CONTEXT", true),
		MaxTokens:          getEnvPositiveInt("MAX_TOKENS", DefaultMaxTokens),
		RequestDeadlineSec: getEnvPositiveInt("REQUEST_DEADLINE_SEC", DefaultDeadlineSec),
		SpeechEnabled:      getEnvBool("SPEECH_ENABLED", true),
		SpeechCommand:      strings.TrimSpace(os.Getenv("SPEECH_COMMAND")),
		CopyToClipboard:    getEnvBool("COPY_TO_CLIPBOARD", false),
		EnableFileLogging:  getEnvBool("ENABLE_FILE_LOGGING", false),
		ControlPort:        clampPort(getEnvPositiveInt("CONTROL_PORT", DefaultControlPort)),
	}

	return cfg, nil
}

func resolveEnvPath() string {
	execPath, err := os.Executable()
	if err == nil {
		exeEnv := filepath.Join(filepath.Dir(execPath), ".env")
		if _, err := os.Stat(exeEnv); err == nil {
			return exeEnv
		}
	}

	if alt := os.Getenv(ConfigPathEnvVar); alt != "" {
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

	return strings.TrimSpace(os.Getenv(APIKeyEnvVar))
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultValue
	}
	return b
}

func getEnvPositiveInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

func clampPort(p int) int {
	if p < minControlPort {
		return minControlPort
	}
	if p > maxControlPort {
		return maxControlPort
	}
	return p
}
