package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/tidwall/gjson"
)

// EnvPrefix prefixes every environment variable read by the tool.
const EnvPrefix = "ES2CSV"

// Backend constants
const (
	BackendElastic = "elasticsearch"
	BackendBleve   = "bleve"
)

// Auth type constants
const (
	AuthTypeNone   = "none"
	AuthTypeBasic  = "basic"
	AuthTypeAPIKey = "apikey"
)

// QueryFilePrefix marks a raw query value that names a file holding the body.
const QueryFilePrefix = "@"

// AuthSettings configuration for cluster authentication
type AuthSettings struct {
	Type   string            `mapstructure:"type"` // AuthTypeNone, AuthTypeBasic, or AuthTypeAPIKey
	Basic  BasicAuthSettings `mapstructure:"basic"`
	APIKey string            `mapstructure:"api_key"`
}

// BasicAuthSettings configuration for basic auth
type BasicAuthSettings struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// RetrySettings configuration for retrying cluster calls
type RetrySettings struct {
	Attempts int           `mapstructure:"attempts"`
	Delay    time.Duration `mapstructure:"delay"`
}

// Settings application settings
type Settings struct {
	Backend string        `mapstructure:"backend"`
	URLs    []string      `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
	Auth    AuthSettings  `mapstructure:"auth"`
	DataDir string        `mapstructure:"data_dir"`

	Indices  []string `mapstructure:"index_prefixes"`
	Query    string   `mapstructure:"query"`
	RawQuery bool     `mapstructure:"raw_query"`
	Tags     []string `mapstructure:"tags"`
	Fields   []string `mapstructure:"fields"`
	Sort     []string `mapstructure:"sort"`

	OutputFile    string        `mapstructure:"output_file"`
	Delimiter     string        `mapstructure:"delimiter"`
	MaxResults    int           `mapstructure:"max_results"`
	ScrollSize    int           `mapstructure:"scroll_size"`
	ScrollTimeout time.Duration `mapstructure:"scroll_timeout"`
	FlushBuffer   int           `mapstructure:"flush_buffer"`
	MetaFields    bool          `mapstructure:"meta_fields"`

	Retry       RetrySettings `mapstructure:"retry"`
	Debug       bool          `mapstructure:"debug"`
	MetricsFile string        `mapstructure:"metrics_file"`
	ConfigFile  string        `mapstructure:"config"`
}

// keys maps every setting to its CLI flag name. Environment variables are
// derived from the key: ES2CSV_ followed by the upper-cased key with dots
// replaced by underscores.
var keys = map[string]string{
	"backend":             "backend",
	"url":                 "url",
	"timeout":             "timeout",
	"auth.type":           "auth-type",
	"auth.basic.username": "auth-basic-username",
	"auth.basic.password": "auth-basic-password",
	"auth.api_key":        "auth-api-key",
	"data_dir":            "data-dir",
	"index_prefixes":      "index-prefixes",
	"query":               "query",
	"raw_query":           "raw-query",
	"tags":                "tags",
	"fields":              "fields",
	"sort":                "sort",
	"output_file":         "output-file",
	"delimiter":           "delimiter",
	"max_results":         "max-results",
	"scroll_size":         "scroll-size",
	"scroll_timeout":      "scroll-timeout",
	"flush_buffer":        "flush-buffer",
	"meta_fields":         "meta-fields",
	"retry.attempts":      "retry-attempts",
	"retry.delay":         "retry-delay",
	"debug":               "debug",
	"metrics_file":        "metrics-file",
	"config":              "config",
}

// listKeys are the settings accepted as comma-separated lists from the environment.
var listKeys = []string{"url", "index_prefixes", "tags", "fields", "sort"}

// LoadSettings loads settings from environment variables and optional .env file
func LoadSettings() (*Settings, error) {
	return LoadSettingsWithFlags(nil)
}

// LoadSettingsWithFlags loads settings with optional CLI flag overrides.
// Priority: CLI flags > environment variables > config file > .env file > defaults.
// If flags is nil, only env vars, files and defaults are used.
func LoadSettingsWithFlags(flags *pflag.FlagSet) (*Settings, error) {
	v := viper.New()

	// Default values
	v.SetDefault("backend", BackendElastic)
	v.SetDefault("url", []string{"http://localhost:9200"})
	v.SetDefault("timeout", 120*time.Second)
	v.SetDefault("auth.type", AuthTypeNone)
	v.SetDefault("data_dir", defaultDataDir())
	v.SetDefault("index_prefixes", []string{"logstash-*"})
	v.SetDefault("fields", []string{"_all"})
	v.SetDefault("output_file", "export.csv")
	v.SetDefault("delimiter", ",")
	v.SetDefault("max_results", 0)
	v.SetDefault("scroll_size", 100)
	v.SetDefault("scroll_timeout", 30*time.Minute)
	v.SetDefault("flush_buffer", 1000)
	v.SetDefault("retry.attempts", 3)
	v.SetDefault("retry.delay", 60*time.Second)

	// Environment variables
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key := range keys {
		_ = v.BindEnv(key, envName(key))
	}

	// Bind CLI flags if provided (highest priority)
	if flags != nil {
		for key, flag := range keys {
			if f := flags.Lookup(flag); f != nil {
				_ = v.BindPFlag(key, f)
			}
		}
	}

	// Helper to look for .env file
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // Ignore error if .env doesn't exist

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType(strings.TrimPrefix(filepath.Ext(path), "."))
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, err
	}

	// Handle explicit parsing of lists provided via env vars as comma-separated strings
	for _, key := range listKeys {
		target := settings.list(key)
		if env := os.Getenv(envName(key)); env != "" {
			if len(*target) == 0 || (len(*target) == 1 && strings.Contains((*target)[0], ",")) {
				*target = strings.Split(env, ",")
			}
		}
		*target = filterEmptyStrings(trimAll(*target))
	}

	// Expand home directory in paths
	settings.DataDir = expandHomeDir(settings.DataDir)
	settings.OutputFile = expandHomeDir(settings.OutputFile)

	if settings.RawQuery && strings.HasPrefix(settings.Query, QueryFilePrefix) {
		body, err := os.ReadFile(expandHomeDir(strings.TrimPrefix(settings.Query, QueryFilePrefix)))
		if err != nil {
			return nil, fmt.Errorf("failed to read query file: %w", err)
		}
		settings.Query = string(body)
	}

	return &settings, nil
}

func (s *Settings) list(key string) *[]string {
	switch key {
	case "url":
		return &s.URLs
	case "index_prefixes":
		return &s.Indices
	case "tags":
		return &s.Tags
	case "fields":
		return &s.Fields
	case "sort":
		return &s.Sort
	}
	panic("config: unknown list key " + key)
}

func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// defaultDataDir returns the default directory for local indexes
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".es2csv"
	}
	return filepath.Join(home, ".es2csv")
}

// expandHomeDir expands ~ to the user's home directory
func expandHomeDir(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	if path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return home
	}
	return path
}

func trimAll(s []string) []string {
	for i := range s {
		s[i] = strings.TrimSpace(s[i])
	}
	return s
}

// filterEmptyStrings removes empty strings from a slice
func filterEmptyStrings(s []string) []string {
	var result []string
	for _, str := range s {
		if str != "" {
			result = append(result, str)
		}
	}
	return result
}

// ValidateSettings checks for conflicting or incomplete configurations.
func ValidateSettings(s *Settings) error {
	switch s.Backend {
	case BackendElastic:
		if len(s.URLs) == 0 {
			return errors.New("backend 'elasticsearch' requires at least one url")
		}
		if err := validateAuthSettings(&s.Auth); err != nil {
			return err
		}
	case BackendBleve:
		if s.DataDir == "" {
			return errors.New("backend 'bleve' requires a data-dir")
		}
	default:
		return errors.New("backend must be 'elasticsearch' or 'bleve', got: " + s.Backend)
	}

	if err := validateQuerySettings(s); err != nil {
		return err
	}
	return validateOutputSettings(s)
}

// validateAuthSettings validates the credentials against the auth type
func validateAuthSettings(a *AuthSettings) error {
	hasBasicCreds := a.Basic.Username != "" || a.Basic.Password != ""
	hasAPIKey := a.APIKey != ""

	switch a.Type {
	case AuthTypeNone, "":
		if hasBasicCreds || hasAPIKey {
			return errors.New("auth-type 'none' is incompatible with auth credentials")
		}
	case AuthTypeBasic:
		if hasAPIKey {
			return errors.New("auth-type 'basic' is mutually exclusive with auth-api-key")
		}
		if a.Basic.Username == "" || a.Basic.Password == "" {
			return errors.New("auth-type 'basic' requires both username and password")
		}
	case AuthTypeAPIKey:
		if hasBasicCreds {
			return errors.New("auth-type 'apikey' is mutually exclusive with basic auth credentials")
		}
		if !hasAPIKey {
			return errors.New("auth-type 'apikey' requires an API key")
		}
	default:
		return errors.New("unknown auth-type: " + a.Type)
	}
	return nil
}

// validateQuerySettings validates what is searched
func validateQuerySettings(s *Settings) error {
	if strings.TrimSpace(s.Query) == "" {
		return errors.New("query is required")
	}
	if s.RawQuery && !gjson.Valid(s.Query) {
		return errors.New("raw-query requires the query to be valid JSON")
	}
	if len(s.Indices) == 0 {
		return errors.New("index-prefixes cannot be empty")
	}
	if s.ScrollSize <= 0 {
		return errors.New("scroll-size must be positive")
	}
	if s.ScrollTimeout <= 0 {
		return errors.New("scroll-timeout must be positive")
	}
	if s.MaxResults < 0 {
		return errors.New("max-results cannot be negative")
	}
	if s.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	if s.Retry.Attempts < 0 {
		return errors.New("retry-attempts cannot be negative")
	}
	if s.Retry.Delay < 0 {
		return errors.New("retry-delay cannot be negative")
	}
	return nil
}

// validateOutputSettings validates where and how rows are written
func validateOutputSettings(s *Settings) error {
	if s.OutputFile == "" {
		return errors.New("output-file cannot be empty")
	}
	if s.Delimiter == "" {
		return errors.New("delimiter cannot be empty")
	}
	if s.FlushBuffer <= 0 {
		return errors.New("flush-buffer must be positive")
	}
	return nil
}
