package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables that override the config file.
const (
	EnvBaseURL  = "TAPGOOSE_BASE_URL"
	EnvTimeout  = "TAPGOOSE_TIMEOUT"
	EnvTick     = "TAPGOOSE_TICK"
	EnvLogLevel = "TAPGOOSE_LOG_LEVEL"
	EnvLogFile  = "TAPGOOSE_LOG_FILE"
)

// LoadDotEnv loads variables from a .env file without overriding the real
// environment. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides file values with the TAPGOOSE_* environment variables.
func ApplyEnv(cfg *FileConfig) {
	applyEnv(EnvBaseURL, &cfg.Server.BaseURL)
	applyEnv(EnvTimeout, &cfg.Server.Timeout)
	applyEnv(EnvTick, &cfg.UI.Tick)
	applyEnv(EnvLogLevel, &cfg.Log.Level)
	applyEnv(EnvLogFile, &cfg.Log.File)
}

func applyEnv(name string, target **string) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return
	}
	*target = &v
}
