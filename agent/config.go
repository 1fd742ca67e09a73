package agent

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config carries the process-level configuration of the agent. It is
// resolved once, before the agent starts.
type Config struct {
	// AppName and Environment identify the application in recorded data.
	AppName     string
	Environment string

	// Active gates the whole agent. An inactive agent builds but never
	// activates its hooks.
	Active bool

	// MonitorOn and MonitorPort control the monitoring server.
	MonitorOn   bool
	MonitorPort int

	// OutputFileName is the base name of the recording database. Empty
	// generates a unique name.
	OutputFileName string
}

// DefaultConfig returns the configuration used when the environment sets
// nothing.
func DefaultConfig() Config {
	return Config{
		AppName:     "unknown",
		Environment: "development",
		Active:      true,
		MonitorOn:   true,
	}
}

// ConfigFromEnv resolves the configuration from the process environment,
// loading a .env file first when one exists.
func ConfigFromEnv() Config {
	// Missing .env files are fine; the environment still applies.
	_ = godotenv.Load()

	cfg := DefaultConfig()

	if v := os.Getenv("PULSE_APP_NAME"); v != "" {
		cfg.AppName = v
	}

	if v := os.Getenv("PULSE_ENV"); v != "" {
		cfg.Environment = v
	}

	if v := os.Getenv("PULSE_ACTIVE"); v != "" {
		cfg.Active = parseBool(v, cfg.Active)
	}

	if v := os.Getenv("PULSE_MONITOR"); v != "" {
		cfg.MonitorOn = parseBool(v, cfg.MonitorOn)
	}

	if v := os.Getenv("PULSE_MONITOR_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err == nil {
			cfg.MonitorPort = port
		}
	}

	if v := os.Getenv("PULSE_OUTPUT"); v != "" {
		cfg.OutputFileName = v
	}

	return cfg
}

func parseBool(v string, fallback bool) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}

	return b
}
