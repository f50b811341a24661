package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Load reads the .env file from the current working directory and sets
// environment variables. If .env does not exist, Load returns an error but
// callers can ignore it and use system env or defaults. Pass one or more paths
// to load from specific files (e.g. ".env"); with no paths, ".env" is used.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// GetEnv returns the value of the environment variable named by key, or fallback
// if the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// GetEnvInt returns the integer value of the environment variable named by key,
// or fallback if the variable is unset, empty, or not a valid integer.
func GetEnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

// GetEnvBool returns the boolean value of the environment variable named by key,
// or fallback if the variable is unset or not a valid boolean.
func GetEnvBool(key string, fallback bool) bool {
	if s := strings.TrimSpace(os.Getenv(key)); s != "" {
		if b, err := strconv.ParseBool(s); err == nil {
			return b
		}
	}
	return fallback
}

// Task store backends.
const (
	TaskStoreMemory = "memory"
	TaskStoreSQLite = "sqlite"
)

// Settings is the daemon configuration.
type Settings struct {
	Port      string
	LogLevel  string
	LogFormat string

	OutputDir        string
	TaskStore        string
	TaskDBPath       string
	ReloadHookURL    string
	DescriptorPrefix string
	DecoderVersion   string
	FetchConcurrency int
	FFProbeBinary    string
	UserAgent        string
}

// LoadSettings builds Settings from the environment, applying defaults.
func LoadSettings() Settings {
	s := Settings{
		Port:             GetEnv("PORT", "8080"),
		LogLevel:         GetEnv("LOG_LEVEL", "info"),
		LogFormat:        GetEnv("LOG_FORMAT", "json"),
		OutputDir:        GetEnv("OUTPUT_DIR", "downloads"),
		TaskStore:        strings.ToLower(GetEnv("TASK_STORE", TaskStoreMemory)),
		TaskDBPath:       GetEnv("TASK_DB_PATH", "tasks.db"),
		ReloadHookURL:    GetEnv("RELOAD_HOOK_URL", ""),
		DescriptorPrefix: GetEnv("DESCRIPTOR_HOST_PREFIX", "dewey-"),
		DecoderVersion:   GetEnv("DECODER_VERSION", "touch-icon-v1"),
		FetchConcurrency: GetEnvInt("FETCH_CONCURRENCY", 4),
		FFProbeBinary:    GetEnv("FFPROBE_BIN", ""),
		UserAgent:        GetEnv("USER_AGENT", ""),
	}
	if s.FetchConcurrency <= 0 {
		s.FetchConcurrency = 1
	}
	if s.TaskStore != TaskStoreSQLite {
		s.TaskStore = TaskStoreMemory
	}
	return s
}
