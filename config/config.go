package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerURL       string
	AppMode         string
	LogFile         string
	CredentialsFile string
	StatusAddr      string
	SendBuffer      int
	MaxUploadBytes  int64
	UploadField     string
	Timings         Timings
}

// Timings holds every deferred-task delay used by the engine.
type Timings struct {
	Delivered        time.Duration
	Dwell            time.Duration
	Settle           time.Duration
	FallbackRead     time.Duration
	Reconnect        time.Duration
	PresenceSnapshot time.Duration
}

// DefaultTimings returns the delays the server-side protocol expects.
func DefaultTimings() Timings {
	return Timings{
		Delivered:        500 * time.Millisecond,
		Dwell:            1000 * time.Millisecond,
		Settle:           1500 * time.Millisecond,
		FallbackRead:     2000 * time.Millisecond,
		Reconnect:        3000 * time.Millisecond,
		PresenceSnapshot: 500 * time.Millisecond,
	}
}

func LoadConfig() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	defaults := DefaultTimings()
	return &Config{
		ServerURL:       getEnv("SERVER_URL", "http://localhost:8080"),
		AppMode:         getEnv("APP_MODE", "development"),
		LogFile:         getEnv("LOG_FILE", "chatsync.log"),
		CredentialsFile: getEnv("CREDENTIALS_FILE", defaultCredentialsFile()),
		StatusAddr:      getEnv("STATUS_ADDR", ""),
		SendBuffer:      getEnvAsInt("SEND_BUFFER", 256),
		MaxUploadBytes:  int64(getEnvAsInt("MAX_UPLOAD_MB", 10)) * 1024 * 1024,
		UploadField:     getEnv("UPLOAD_FIELD", "file"),
		Timings: Timings{
			Delivered:        getEnvAsMillis("DELIVERED_DELAY_MS", defaults.Delivered),
			Dwell:            getEnvAsMillis("DWELL_DELAY_MS", defaults.Dwell),
			Settle:           getEnvAsMillis("SETTLE_DELAY_MS", defaults.Settle),
			FallbackRead:     getEnvAsMillis("FALLBACK_READ_DELAY_MS", defaults.FallbackRead),
			Reconnect:        getEnvAsMillis("RECONNECT_DELAY_MS", defaults.Reconnect),
			PresenceSnapshot: getEnvAsMillis("PRESENCE_SNAPSHOT_DELAY_MS", defaults.PresenceSnapshot),
		},
	}
}

func defaultCredentialsFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "credentials.json"
	}
	return filepath.Join(home, ".chatsync", "credentials.json")
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsMillis(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil && value >= 0 {
		return time.Duration(value) * time.Millisecond
	}
	return fallback
}
