package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/robfig/cron/v3"
)

// ErrPartialSigningConfig is returned when only one half of the proxy
// signing pair is set. A half configured signer must fail here, at load
// time, not as broken image URLs deep in a render.
var ErrPartialSigningConfig = errors.New("config: proxy key and secret must be set together")

// Duration wraps time.Duration so values can be written as "24h" or
// "30s" in the configuration file.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// TomlServer holds the HTTP server settings
type TomlServer struct {
	Port       int    `toml:"port"`
	ServiceURL string `toml:"service_url"` // Public base URL used in feed links
}

// TomlProxy holds the image proxy signing settings. All empty means
// image URLs pass through unsigned.
type TomlProxy struct {
	URL    string `toml:"url"`
	Key    string `toml:"key"`
	Secret string `toml:"secret"`
}

// TomlCache holds the rendered feed cache settings
type TomlCache struct {
	Backend    string   `toml:"backend"` // memory or lru
	Capacity   int      `toml:"capacity"`
	TTL        Duration `toml:"ttl"`
	RenderWait Duration `toml:"render_wait"`
}

// TomlStore holds the SQLite settings
type TomlStore struct {
	Database      string `toml:"database"`
	RetentionDays int    `toml:"retention_days"`
}

// TomlAdmin guards the admin routes, both empty disables them
type TomlAdmin struct {
	Username string `toml:"username"`
	Password string `toml:"password"`
}

// TomlCrawl holds the upstream crawler settings
type TomlCrawl struct {
	BaseURL   string   `toml:"base_url"`
	Timezone  string   `toml:"timezone"`
	UserAgent string   `toml:"user_agent"`
	Workers   int      `toml:"workers"`
	Titles    []int64  `toml:"titles"`
	Schedule  string   `toml:"schedule"` // Cron expression, empty means no schedule
	Timeout   Duration `toml:"timeout"`
}

// TomlConfig represents the top-level configuration
type TomlConfig struct {
	Server TomlServer `toml:"server"`
	Proxy  TomlProxy  `toml:"proxy"`
	Cache  TomlCache  `toml:"cache"`
	Store  TomlStore  `toml:"store"`
	Admin  TomlAdmin  `toml:"admin"`
	Crawl  TomlCrawl  `toml:"crawl"`
}

func LoadConfig(path string) (*TomlConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config TomlConfig
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *TomlConfig) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 3000
	}
	if c.Server.ServiceURL == "" {
		c.Server.ServiceURL = fmt.Sprintf("http://localhost:%d", c.Server.Port)
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = "memory"
	}
	if c.Cache.Capacity == 0 {
		c.Cache.Capacity = 128
	}
	if c.Cache.TTL.Duration == 0 {
		c.Cache.TTL.Duration = 24 * time.Hour
	}
	if c.Cache.RenderWait.Duration == 0 {
		c.Cache.RenderWait.Duration = 30 * time.Second
	}
	if c.Store.Database == "" {
		c.Store.Database = "comicfeed.db"
	}
	if c.Store.RetentionDays == 0 {
		c.Store.RetentionDays = 365
	}
	if c.Crawl.BaseURL == "" {
		c.Crawl.BaseURL = "https://comic.naver.com"
	}
	if c.Crawl.Timezone == "" {
		c.Crawl.Timezone = "Asia/Seoul"
	}
	if c.Crawl.UserAgent == "" {
		c.Crawl.UserAgent = "comicfeed"
	}
	if c.Crawl.Workers == 0 {
		c.Crawl.Workers = 20
	}
	if c.Crawl.Timeout.Duration == 0 {
		c.Crawl.Timeout.Duration = 30 * time.Second
	}
}

func (c *TomlConfig) Validate() error {
	// The service URL ends up in feed ids and links, a relative one
	// would poison every rendered document.
	if u, err := url.Parse(c.Server.ServiceURL); err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("config: service url %q is not an absolute URL", c.Server.ServiceURL)
	}

	if (c.Proxy.Key == "") != (c.Proxy.Secret == "") {
		return ErrPartialSigningConfig
	}
	if c.Proxy.Key != "" && c.Proxy.URL == "" {
		return errors.New("config: proxy url is required when signing is configured")
	}

	switch c.Cache.Backend {
	case "memory", "lru":
	default:
		return fmt.Errorf("config: unknown cache backend %q", c.Cache.Backend)
	}
	if c.Cache.Backend == "lru" && c.Cache.Capacity < 1 {
		return fmt.Errorf("config: lru cache needs a capacity, got %d", c.Cache.Capacity)
	}
	if c.Cache.TTL.Duration <= 0 || c.Cache.RenderWait.Duration <= 0 {
		return errors.New("config: cache ttl and render_wait must be positive")
	}

	if (c.Admin.Username == "") != (c.Admin.Password == "") {
		return errors.New("config: admin username and password must be set together")
	}

	if c.Crawl.Schedule != "" {
		if _, err := cron.ParseStandard(c.Crawl.Schedule); err != nil {
			return fmt.Errorf("config: invalid crawl schedule %q: %w", c.Crawl.Schedule, err)
		}
	}

	return nil
}
