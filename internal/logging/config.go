package logging

import "fmt"

// CallerConfig controls caller annotation on log entries.
type CallerConfig struct {
	Enabled bool
	Skip    int
}

// Config configures a Logger.
type Config struct {
	// Level is the minimum level to emit ("trace", "debug", "info", "warn", "error").
	Level string

	// Format is "json" (default, for production) or "console" (for local dev).
	Format string

	// Fields are constant fields attached to every log line (e.g. service name).
	Fields map[string]string

	Caller CallerConfig
}

// Validate checks the config for obviously invalid values.
func (c *Config) Validate() error {
	if _, err := LevelFromString(c.levelOrDefault()); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.Level, err)
	}
	if c.Format != "" && c.Format != "json" && c.Format != "console" {
		return fmt.Errorf("invalid log format %q: must be json or console", c.Format)
	}
	return nil
}

func (c *Config) levelOrDefault() string {
	if c.Level == "" {
		return "info"
	}
	return c.Level
}

func (c *Config) formatOrDefault() string {
	if c.Format == "" {
		return "json"
	}
	return c.Format
}
