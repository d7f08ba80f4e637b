// Package config provides configuration management for nurturenote.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	_ "time/tzdata" // zone lookups must work on minimal images

	"github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Defaults.
const (
	DefaultPort              = 8000
	DefaultBaseURL           = "https://api.openai.com/v1"
	DefaultModel             = "gpt-5"
	DefaultPollIntervalMS    = 500
	DefaultPollTimeoutSec    = 180
	DefaultRequestTimeoutSec = 120
	DefaultTimezone          = "Asia/Seoul"
	DefaultRangeDays         = 14
	DefaultLogLevel          = "info"
	AppName                  = "AI_NurtureNote"
)

// Setting keys, shared by settings.json and the process environment.
const (
	KeyAPIKey          = "OPENAI_API_KEY"
	KeyBaseURL         = "OPENAI_API_BASE"
	KeyModel           = "OPENAI_MODEL"
	KeyVectorStoreID   = "VECTOR_STORE_ID"
	KeyAssistantID     = "OPENAI_ASSISTANT_ID"
	KeyWebSearch       = "NURTURENOTE_WEB_SEARCH"
	KeyAllowedDomains  = "NURTURENOTE_ALLOWED_DOMAINS"
	KeyDomainsFile     = "NURTURENOTE_DOMAINS_FILE"
	KeyDatabaseURL     = "DATABASE_URL"
	KeyPort            = "NURTURENOTE_PORT"
	KeyPollIntervalMS  = "NURTURENOTE_POLL_INTERVAL_MS"
	KeyPollTimeoutSec  = "NURTURENOTE_POLL_TIMEOUT_SEC"
	KeyRequestTimeout  = "NURTURENOTE_REQUEST_TIMEOUT_SEC"
	KeyTimezone        = "NURTURENOTE_TIMEZONE"
	KeyDisclaimer      = "NURTURENOTE_DISCLAIMER"
	KeyRangeDays       = "NURTURENOTE_RANGE_DAYS"
	KeyIgnoreProxyEnv  = "NURTURENOTE_IGNORE_PROXY_ENV"
	KeyLogLevel        = "NURTURENOTE_LOG_LEVEL"
	KeyDataDir         = "NURTURENOTE_DATA_DIR"
	defaultDataDirName = ".nurturenote"
)

// Config holds nurturenote configuration.
type Config struct {
	APIKey         string   `json:"OPENAI_API_KEY"`
	BaseURL        string   `json:"OPENAI_API_BASE"`
	Model          string   `json:"OPENAI_MODEL"`
	VectorStoreID  string   `json:"VECTOR_STORE_ID"`
	AssistantID    string   `json:"OPENAI_ASSISTANT_ID"`
	DomainsFile    string   `json:"NURTURENOTE_DOMAINS_FILE"`
	DatabaseURL    string   `json:"DATABASE_URL"`
	Timezone       string   `json:"NURTURENOTE_TIMEZONE"`
	Disclaimer     string   `json:"NURTURENOTE_DISCLAIMER"`
	LogLevel       string   `json:"NURTURENOTE_LOG_LEVEL"`
	AllowedDomains []string `json:"NURTURENOTE_ALLOWED_DOMAINS"`
	Port           int      `json:"NURTURENOTE_PORT"`
	PollIntervalMS int      `json:"NURTURENOTE_POLL_INTERVAL_MS"`
	PollTimeoutSec int      `json:"NURTURENOTE_POLL_TIMEOUT_SEC"`
	RequestTimeout int      `json:"NURTURENOTE_REQUEST_TIMEOUT_SEC"`
	RangeDays      int      `json:"NURTURENOTE_RANGE_DAYS"`
	WebSearch      bool     `json:"NURTURENOTE_WEB_SEARCH"`
	IgnoreProxyEnv bool     `json:"NURTURENOTE_IGNORE_PROXY_ENV"`

	resolved atomic.Pointer[resolvedZone]
}

// resolvedZone caches the location loaded for a Timezone value.
type resolvedZone struct {
	name string
	loc  *time.Location
}

var (
	global   *Config
	globalMu sync.Mutex
)

// DataDir returns the data directory path.
func DataDir() string {
	if dir := strings.TrimSpace(os.Getenv(KeyDataDir)); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, defaultDataDirName)
}

// DBPath returns the SQLite database path.
func DBPath() string {
	return filepath.Join(DataDir(), "nurturenote.db")
}

// SettingsPath returns the settings file path.
func SettingsPath() string {
	return filepath.Join(DataDir(), "settings.json")
}

// LogDir returns the log directory.
func LogDir() string {
	return filepath.Join(DataDir(), "logs")
}

// ResponsesDir returns the directory holding audit records.
func ResponsesDir() string {
	return filepath.Join(LogDir(), "responses")
}

// AssistantIDFile returns the path caching the created assistant identifier.
func AssistantIDFile() string {
	return filepath.Join(LogDir(), "assistant_id.txt")
}

// EnsureDataDir creates the data directory tree if it doesn't exist.
func EnsureDataDir() error {
	return os.MkdirAll(ResponsesDir(), 0750)
}

// EnsureSettings writes a default settings file if none exists.
func EnsureSettings() error {
	path := SettingsPath()
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	defaults := map[string]any{
		KeyModel:          DefaultModel,
		KeyWebSearch:      false,
		KeyPort:           DefaultPort,
		KeyTimezone:       DefaultTimezone,
		KeyRangeDays:      DefaultRangeDays,
		KeyPollTimeoutSec: DefaultPollTimeoutSec,
	}
	data, err := json.MarshalIndent(defaults, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// EnsureAll creates the data directory and a default settings file.
func EnsureAll() error {
	if err := EnsureDataDir(); err != nil {
		return err
	}
	return EnsureSettings()
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		BaseURL:        DefaultBaseURL,
		Model:          DefaultModel,
		Port:           DefaultPort,
		PollIntervalMS: DefaultPollIntervalMS,
		PollTimeoutSec: DefaultPollTimeoutSec,
		RequestTimeout: DefaultRequestTimeoutSec,
		Timezone:       DefaultTimezone,
		RangeDays:      DefaultRangeDays,
		IgnoreProxyEnv: true,
		LogLevel:       DefaultLogLevel,
		AllowedDomains: []string{},
	}
}

// Load reads configuration from defaults, settings.json, .env and the process
// environment, in increasing priority. An unreadable or invalid settings file
// is ignored.
func Load() (*Config, error) {
	cfg := Default()

	values := map[string]string{}
	if data, err := os.ReadFile(SettingsPath()); err == nil {
		var raw map[string]any
		if err := json.Unmarshal(data, &raw); err != nil {
			log.Warn().Err(err).Str("path", SettingsPath()).Msg("Ignoring invalid settings file")
		} else {
			for k, v := range raw {
				values[k] = settingString(v)
			}
		}
	}

	// .env never overrides variables already present in the environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("Ignoring unreadable .env file")
	}

	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := values[key]
		return v, ok
	}

	setString := func(dst *string, key string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	setInt := func(dst *int, key string) {
		if v, ok := lookup(key); ok {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
				*dst = n
			}
		}
	}
	setBool := func(dst *bool, key string) {
		if v, ok := lookup(key); ok {
			*dst = parseBool(v, *dst)
		}
	}

	setString(&cfg.APIKey, KeyAPIKey)
	setString(&cfg.BaseURL, KeyBaseURL)
	setString(&cfg.Model, KeyModel)
	setString(&cfg.VectorStoreID, KeyVectorStoreID)
	setString(&cfg.AssistantID, KeyAssistantID)
	setString(&cfg.DomainsFile, KeyDomainsFile)
	setString(&cfg.DatabaseURL, KeyDatabaseURL)
	setString(&cfg.Timezone, KeyTimezone)
	setString(&cfg.Disclaimer, KeyDisclaimer)
	setString(&cfg.LogLevel, KeyLogLevel)
	setInt(&cfg.Port, KeyPort)
	setInt(&cfg.PollIntervalMS, KeyPollIntervalMS)
	setInt(&cfg.PollTimeoutSec, KeyPollTimeoutSec)
	setInt(&cfg.RequestTimeout, KeyRequestTimeout)
	setInt(&cfg.RangeDays, KeyRangeDays)
	setBool(&cfg.WebSearch, KeyWebSearch)
	setBool(&cfg.IgnoreProxyEnv, KeyIgnoreProxyEnv)
	if v, ok := lookup(KeyAllowedDomains); ok {
		cfg.AllowedDomains = splitTrim(v)
	}
	cfg.Location()

	return cfg, nil
}

// Get returns the global configuration, loading it on first use.
func Get() *Config {
	globalMu.Lock()
	defer globalMu.Unlock()

	if global == nil {
		cfg, err := Load()
		if err != nil {
			cfg = Default()
		}
		global = cfg
	}
	return global
}

// reset drops the cached configuration so the next Get reloads it.
func reset() {
	globalMu.Lock()
	global = nil
	globalMu.Unlock()
}

// Location returns the configured time zone, or UTC when it cannot be loaded.
// The zone is resolved once per Timezone value.
func (c *Config) Location() *time.Location {
	if z := c.resolved.Load(); z != nil && z.name == c.Timezone {
		return z.loc
	}
	z := &resolvedZone{name: c.Timezone, loc: resolveLocation(c.Timezone)}
	c.resolved.Store(z)
	return z.loc
}

func resolveLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Warn().Err(err).Str("timezone", name).Msg("Unknown timezone, using UTC")
		return time.UTC
	}
	return loc
}

// PollInterval returns the threaded-run poll interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// PollTimeout returns the threaded-run poll deadline.
func (c *Config) PollTimeout() time.Duration {
	return time.Duration(c.PollTimeoutSec) * time.Second
}

// HTTPTimeout returns the per-request upstream timeout.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

func settingString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			parts = append(parts, settingString(item))
		}
		return strings.Join(parts, ",")
	case nil:
		return ""
	default:
		data, _ := json.Marshal(t)
		return string(data)
	}
}

func parseBool(v string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

// splitTrim splits a comma-separated string and trims each value.
func splitTrim(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			result = append(result, p)
		}
	}
	return result
}
