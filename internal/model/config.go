package model

import "time"

// Config is the resolved client configuration.
type Config struct {
	BaseURL  string
	Timeout  time.Duration
	Tick     time.Duration
	LogLevel string
	LogFile  string
	DBPath   string
}
