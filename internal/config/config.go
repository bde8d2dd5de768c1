package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	pkgerrors "github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ICSConfig describes a single ICS subscription imported into the index.
type ICSConfig struct {
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for de-dup and logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label.
	Name string `yaml:"name" json:"name"`
	// Calendar is assigned to every event imported from this source.
	Calendar string `yaml:"calendar" json:"calendar"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API and feeds.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone occurrences are materialized in.
	Timezone string `yaml:"timezone" json:"timezone"`

	// WeekStart controls which weekday opens a week view. Supported values:
	//   - "monday" (default)
	//   - "sunday"
	WeekStart string `yaml:"week_start" json:"week_start"`

	// RefreshCron is a cron-style schedule string (e.g. "*/15 * * * *")
	// for re-reading the catalog and subscriptions.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// MaxRepeats caps the occurrences generated for a single rule.
	MaxRepeats int `yaml:"max_repeats" json:"max_repeats"`

	// AgendaDays is the length of the agenda view.
	AgendaDays int `yaml:"agenda_days" json:"agenda_days"`

	// FeedHorizonDays bounds the iCalendar and RSS feeds.
	FeedHorizonDays int `yaml:"feed_horizon_days" json:"feed_horizon_days"`

	// FeedName is the calendar name announced in feeds.
	FeedName string `yaml:"feed_name" json:"feed_name"`

	// FeedDomain is appended to occurrence UIDs ("<key>@<domain>").
	FeedDomain string `yaml:"feed_domain" json:"feed_domain"`

	// EventsFile is the YAML event catalog.
	EventsFile string `yaml:"events_file" json:"events_file"`

	// CacheDir holds the ICS subscription cache.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// ICS is the list of subscribed ICS sources.
	ICS []ICSConfig `yaml:"ics" json:"ics"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

const (
	defaultListen          = "127.0.0.1:8080"
	defaultTimezone        = "UTC"
	defaultRefreshCron     = "*/15 * * * *"
	defaultMaxRepeats      = 1000
	defaultAgendaDays      = 30
	defaultFeedHorizonDays = 90
	defaultFeedName        = "evcal"
	defaultFeedDomain      = "evcal.local"
	defaultEventsFile      = "/etc/evcal/events.yaml"
	defaultCacheDir        = "/var/lib/evcal/ics-cache"
	defaultLogLevel        = "info"
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:          defaultListen,
		Timezone:        defaultTimezone,
		WeekStart:       "monday",
		RefreshCron:     defaultRefreshCron,
		MaxRepeats:      defaultMaxRepeats,
		AgendaDays:      defaultAgendaDays,
		FeedHorizonDays: defaultFeedHorizonDays,
		FeedName:        defaultFeedName,
		FeedDomain:      defaultFeedDomain,
		EventsFile:      defaultEventsFile,
		CacheDir:        defaultCacheDir,
		LogLevel:        defaultLogLevel,
		ICS:             []ICSConfig{},
		BasicAuth:       nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	switch c.WeekStart {
	case "monday", "sunday":
		// ok
	default:
		// Unknown value; fall back to monday to avoid surprising layouts.
		c.WeekStart = "monday"
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefreshCron
	}
	if c.MaxRepeats <= 0 {
		c.MaxRepeats = defaultMaxRepeats
	}
	if c.AgendaDays <= 0 {
		c.AgendaDays = defaultAgendaDays
	}
	if c.FeedHorizonDays <= 0 {
		c.FeedHorizonDays = defaultFeedHorizonDays
	}
	if c.FeedName == "" {
		c.FeedName = defaultFeedName
	}
	if c.FeedDomain == "" {
		c.FeedDomain = defaultFeedDomain
	}
	if c.CacheDir == "" {
		c.CacheDir = defaultCacheDir
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "load timezone %q", c.Timezone)
	}
	return loc, nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, pkgerrors.Wrapf(err, "read config %s", path)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, pkgerrors.Wrapf(err, "decode config %s", path)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return pkgerrors.Wrap(err, "encode config")
	}
	return writeAtomic(path, data, ".evcal-config-*.tmp")
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}

// writeAtomic writes data to a temp file in the target directory, then
// renames it over path with 0600 permissions.
func writeAtomic(path string, data []byte, pattern string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	// Flush and close before chmod/rename.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}
