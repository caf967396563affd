package app

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/eventloom/icsync/pkg/constants"
	"github.com/eventloom/icsync/pkg/errors"
)

// Config holds the application configuration loaded from environment
// variables and .env files. Command-line flags override these after
// cobra has parsed them.
type Config struct {
	// Global flags
	Verbose bool
	Quiet   bool
	NoColor bool

	// Remote site
	BaseURL     string
	APIKey      string
	APIUsername string

	// Sync defaults
	CategoryID  int
	DefaultTags []string
	SiteTZ      string

	// Logging
	LogLevel  string
	LogFormat string

	// logLevelFlag records an explicit --log-level, which outranks the
	// verbose and quiet shortcuts.
	logLevelFlag string
}

// LoadConfig loads configuration in order of precedence: command-line
// flags (applied later by cobra), environment variables, .env files,
// then defaults.
func LoadConfig() (*Config, error) {
	loadEnvFiles()

	viper.SetEnvPrefix("ICSYNC")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	// SITE_TZ predates the prefixed scheme; accept both spellings.
	_ = viper.BindEnv("site_tz", "ICSYNC_SITE_TZ", "SITE_TZ")

	config := &Config{
		BaseURL:     strings.TrimRight(viper.GetString("base_url"), "/"),
		APIKey:      viper.GetString("api_key"),
		APIUsername: viper.GetString("api_username"),
		CategoryID:  viper.GetInt("category_id"),
		DefaultTags: splitTags(viper.GetString("default_tags")),
		SiteTZ:      viper.GetString("site_tz"),

		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "auto"),
	}

	if config.APIUsername == "" {
		config.APIUsername = constants.DefaultAPIUsername
	}
	if config.SiteTZ == "" {
		config.SiteTZ = constants.DefaultSiteTimezone
	}

	return config, nil
}

// Timezone resolves the configured site timezone.
func (c *Config) Timezone() (*time.Location, error) {
	loc, err := time.LoadLocation(c.SiteTZ)
	if err != nil {
		return nil, errors.NewConfigError("config", "unknown timezone "+c.SiteTZ, err)
	}
	return loc, nil
}

// UpdateFromFlags applies parsed persistent flag values, which take
// precedence over environment configuration.
func (c *Config) UpdateFromFlags(verbose, quiet, noColor bool, logLevel string) {
	c.Verbose = verbose
	c.Quiet = quiet
	c.NoColor = noColor
	if logLevel != "" {
		c.logLevelFlag = logLevel
		c.LogLevel = logLevel
	}
}

// loadEnvFiles loads .env files, later files overriding earlier ones.
func loadEnvFiles() {
	for _, envFile := range []string{".env", ".env.local"} {
		_ = godotenv.Load(envFile)
	}
}

// splitTags parses a comma-separated tag list.
func splitTags(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var tags []string
	for _, tag := range strings.Split(s, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
