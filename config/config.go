package config

import (
	"os"
	"strconv"
)

type Config struct {
	RemoteBaseURL        string
	RemoteWSURL          string
	RemoteToken          string
	DeviceID             string
	SettingsDBPath       string
	HistoryRetentionDays int // 0 = keep forever
	Port                 string
	GinMode              string
}

func Load() (*Config, error) {
	cfg := &Config{
		RemoteBaseURL:  getEnv("REMOTE_BASE_URL", "http://localhost:9000"),
		RemoteWSURL:    getEnv("REMOTE_WS_URL", "ws://localhost:9000/realtime"),
		RemoteToken:    os.Getenv("REMOTE_TOKEN"),
		DeviceID:       getEnv("DEVICE_ID", "terminal-1"),
		SettingsDBPath: getEnv("SETTINGS_DB_PATH", "pos_settings.db"),
		Port:           getEnv("PORT", "8080"),
		GinMode:        os.Getenv("GIN_MODE"),
	}

	// Retention hanya dipakai sebagai filter tampilan; 0 berarti tanpa batas.
	if v := os.Getenv("HISTORY_RETENTION_DAYS"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil {
			return nil, err
		}
		cfg.HistoryRetentionDays = days
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
