package crawler

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/pscheid92/hoodpulse/internal/app"
	"github.com/pscheid92/hoodpulse/internal/platform/version"
	"gopkg.in/yaml.v3"
)

const (
	defaultMaxItems  = 25
	defaultRate      = 1.0
	queryPlaceholder = "{query}"
)

// Config describes the upstream sources and optional region overrides.
type Config struct {
	UserAgent     string                  `yaml:"user_agent"`
	RespectRobots bool                    `yaml:"respect_robots"`
	Retry         RetryConfig             `yaml:"retry"`
	Sources       map[string]SourceConfig `yaml:"sources"`
	Regions       []app.Region            `yaml:"regions"`
}

type RetryConfig struct {
	MaxAttempts      int           `yaml:"max_attempts"`
	InitialBackoff   time.Duration `yaml:"initial_backoff"`
	RateLimitBackoff time.Duration `yaml:"rate_limit_backoff"`
	MaxBackoff       time.Duration `yaml:"max_backoff"`
}

// SourceConfig is one search page scraped with CSS selectors.
type SourceConfig struct {
	Name          string    `yaml:"-"`
	SearchURL     string    `yaml:"search_url"`
	Selectors     Selectors `yaml:"selectors"`
	DateLayout    string    `yaml:"date_layout"`
	RatePerSecond float64   `yaml:"rate_per_second"`
	Burst         int       `yaml:"burst"`
	MaxItems      int       `yaml:"max_items"`
}

type Selectors struct {
	Item    string `yaml:"item"`
	Title   string `yaml:"title"`
	Content string `yaml:"content"`
	Link    string `yaml:"link"`
	Date    string `yaml:"date"`
}

// LoadConfig reads a YAML source file. An empty path yields an empty config.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return ParseConfig(nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sources file: %w", err)
	}
	return ParseConfig(data)
}

func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse sources file: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.UserAgent == "" {
		c.UserAgent = version.UserAgent()
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = 3
	}
	if c.Retry.InitialBackoff == 0 {
		c.Retry.InitialBackoff = 500 * time.Millisecond
	}
	if c.Retry.RateLimitBackoff == 0 {
		c.Retry.RateLimitBackoff = 5 * time.Second
	}
	if c.Retry.MaxBackoff == 0 {
		c.Retry.MaxBackoff = 30 * time.Second
	}
	for name, s := range c.Sources {
		s.Name = name
		if s.DateLayout == "" {
			s.DateLayout = time.RFC3339
		}
		if s.RatePerSecond == 0 {
			s.RatePerSecond = defaultRate
		}
		if s.Burst == 0 {
			s.Burst = 1
		}
		if s.MaxItems == 0 {
			s.MaxItems = defaultMaxItems
		}
		c.Sources[name] = s
	}
}

func (c *Config) validate() error {
	var errs []error
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, errors.New("retry.max_attempts must be at least 1"))
	}
	for _, name := range c.SourceNames() {
		s := c.Sources[name]
		if !strings.Contains(s.SearchURL, queryPlaceholder) {
			errs = append(errs, fmt.Errorf("source %s: search_url must contain %s", name, queryPlaceholder))
		}
		if s.Selectors.Item == "" {
			errs = append(errs, fmt.Errorf("source %s: selectors.item is required", name))
		}
		if s.Selectors.Title == "" && s.Selectors.Content == "" {
			errs = append(errs, fmt.Errorf("source %s: selectors.title or selectors.content is required", name))
		}
		if s.RatePerSecond < 0 {
			errs = append(errs, fmt.Errorf("source %s: rate_per_second must not be negative", name))
		}
	}
	for _, r := range c.Regions {
		if strings.TrimSpace(r.Name) == "" {
			errs = append(errs, errors.New("regions: name is required"))
		}
	}
	return errors.Join(errs...)
}

// SourceNames returns the configured source names in sorted order.
func (c *Config) SourceNames() []string {
	names := make([]string, 0, len(c.Sources))
	for name := range c.Sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
