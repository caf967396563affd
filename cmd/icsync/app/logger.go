package app

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/eventloom/icsync/pkg/logging"
)

// NewLogger creates a configured logger. Log level precedence:
//  1. --log-level flag
//  2. -v/--verbose (debug) and -q/--quiet (warn)
//  3. LOG_LEVEL environment variable
//  4. info
func NewLogger(config *Config) zerolog.Logger {
	level := determineLogLevel(config)
	return logging.NewFromConfig(&logging.Config{
		Level:     level,
		Format:    config.LogFormat,
		NoColor:   config.NoColor,
		AddCaller: level == "debug" || level == "trace",
	})
}

func determineLogLevel(config *Config) string {
	if config.logLevelFlag != "" {
		validated := validateLogLevel(config.logLevelFlag)
		if validated != config.logLevelFlag {
			fmt.Fprintf(os.Stderr, "Warning: invalid log level %q, using %q\n", config.logLevelFlag, validated)
		}
		return validated
	}
	if config.Verbose && config.Quiet {
		fmt.Fprintln(os.Stderr, "Warning: both --verbose and --quiet specified, using --quiet")
		return "warn"
	}
	if config.Verbose {
		return "debug"
	}
	if config.Quiet {
		return "warn"
	}
	return validateLogLevel(config.LogLevel)
}

// validateLogLevel returns a valid level, falling back to info.
func validateLogLevel(level string) string {
	switch level {
	case "trace", "debug", "info", "warn", "error":
		return level
	}
	return "info"
}
