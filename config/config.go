package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/vadiminshakov/skinsync/internal/domain"
	"github.com/vadiminshakov/skinsync/internal/services/currency"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

const (
	defaultAPIURL         = "http://localhost:8000"
	defaultCacheDir       = "./cache"
	defaultInterItemDelay = 2 * time.Second
	defaultMaxDelay       = 30 * time.Second
	defaultRequestTimeout = 30 * time.Second
	defaultListen         = ":8090"
	defaultRetryMax       = 3
	defaultRetryInterval  = time.Second

	DelayPolicyFixed   = "fixed"
	DelayPolicyBackoff = "backoff"
)

// Config is the validated runtime configuration.
type Config struct {
	APIURL   string
	Token    string
	CacheDir string

	InterItemDelay time.Duration
	// DelayPolicy fixed or backoff. Backoff stretches the delay up to MaxDelay while the API throttles.
	DelayPolicy    string
	MaxDelay       time.Duration

	RequestTimeout       time.Duration
	RetryMax             int
	RetryInitialInterval time.Duration

	Horizon  int
	Currency string
	Locale   language.Tag
	Listen   string
	LogLevel string

	Items        []domain.Item
	UseFavorites bool
}

// ConfigTmp is the raw yaml layout.
type ConfigTmp struct {
	APIURL               string        `yaml:"api_url,omitempty"`
	Token                string        `yaml:"token,omitempty"`
	CacheDir             string        `yaml:"cache_dir,omitempty"`
	InterItemDelay       time.Duration `yaml:"inter_item_delay,omitempty"`
	DelayPolicy          string        `yaml:"delay_policy,omitempty"`
	MaxDelay             time.Duration `yaml:"max_delay,omitempty"`
	RequestTimeout       time.Duration `yaml:"request_timeout,omitempty"`
	RetryMaxStr          string        `yaml:"retry_max,omitempty"`
	RetryInitialInterval time.Duration `yaml:"retry_initial_interval,omitempty"`
	HorizonStr           string        `yaml:"horizon,omitempty"`
	Currency             string        `yaml:"currency,omitempty"`
	Locale               string        `yaml:"locale,omitempty"`
	Listen               string        `yaml:"listen,omitempty"`
	LogLevel             string        `yaml:"log_level,omitempty"`
	Items                []domain.Item `yaml:"items,omitempty"`
	UseFavorites         bool          `yaml:"use_favorites,omitempty"`
}

// Load reads the yaml config at path (optional) and overlays SKINSYNC_* environment
// variables, which may also come from a .env file in the working directory.
func Load(path string) (Config, error) {
	// a missing .env is fine
	_ = godotenv.Load()

	var tmp ConfigTmp
	if path != "" {
		f, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(f, &tmp); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	tmp.applyEnv()
	return tmp.Parse()
}

func (c *ConfigTmp) applyEnv() {
	c.APIURL = getEnv("SKINSYNC_API_URL", c.APIURL)
	c.Token = getEnv("SKINSYNC_TOKEN", c.Token)
	c.CacheDir = getEnv("SKINSYNC_CACHE_DIR", c.CacheDir)
	c.Currency = getEnv("SKINSYNC_CURRENCY", c.Currency)
	c.LogLevel = getEnv("SKINSYNC_LOG_LEVEL", c.LogLevel)
	c.Listen = getEnv("SKINSYNC_LISTEN", c.Listen)
}

// Parse validates raw values and fills defaults.
func (c ConfigTmp) Parse() (Config, error) {
	cfg := Config{
		APIURL:               strings.TrimRight(orDefault(c.APIURL, defaultAPIURL), "/"),
		Token:                c.Token,
		CacheDir:             orDefault(c.CacheDir, defaultCacheDir),
		InterItemDelay:       durationOrDefault(c.InterItemDelay, defaultInterItemDelay),
		DelayPolicy:          orDefault(c.DelayPolicy, DelayPolicyFixed),
		MaxDelay:             durationOrDefault(c.MaxDelay, defaultMaxDelay),
		RequestTimeout:       durationOrDefault(c.RequestTimeout, defaultRequestTimeout),
		RetryInitialInterval: durationOrDefault(c.RetryInitialInterval, defaultRetryInterval),
		Currency:             orDefault(c.Currency, domain.DefaultCurrency),
		Listen:               orDefault(c.Listen, defaultListen),
		LogLevel:             strings.ToLower(orDefault(c.LogLevel, "info")),
		Items:                c.Items,
		UseFavorites:         c.UseFavorites,
		Locale:               language.English,
	}

	if c.RetryMaxStr == "" {
		cfg.RetryMax = defaultRetryMax
	} else {
		n, err := strconv.Atoi(c.RetryMaxStr)
		if err != nil || n < 0 {
			return Config{}, fmt.Errorf("incorrect 'retry_max' param in yaml config (must be a non-negative integer): %q", c.RetryMaxStr)
		}
		cfg.RetryMax = n
	}

	if c.HorizonStr == "" {
		cfg.Horizon = domain.DefaultHorizon
	} else {
		h, err := strconv.Atoi(c.HorizonStr)
		if err != nil || !domain.ValidHorizon(h) {
			return Config{}, fmt.Errorf("incorrect 'horizon' param in yaml config (must be %d..%d): %q",
				domain.MinHorizon, domain.MaxHorizon, c.HorizonStr)
		}
		cfg.Horizon = h
	}

	if c.Locale != "" {
		tag, err := language.Parse(c.Locale)
		if err != nil {
			return Config{}, fmt.Errorf("incorrect 'locale' param in yaml config: %w", err)
		}
		cfg.Locale = tag
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	if !currency.IsSupported(c.Currency) {
		return fmt.Errorf("unsupported currency %q, supported: %s", c.Currency, strings.Join(currency.Supported(), " "))
	}
	if c.DelayPolicy != DelayPolicyFixed && c.DelayPolicy != DelayPolicyBackoff {
		return fmt.Errorf("incorrect 'delay_policy' param in yaml config: %q (fixed or backoff)", c.DelayPolicy)
	}
	if c.MaxDelay < c.InterItemDelay {
		return fmt.Errorf("max_delay %s is lower than inter_item_delay %s", c.MaxDelay, c.InterItemDelay)
	}
	for _, item := range c.Items {
		if err := item.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// MaskedToken returns the token with most characters hidden for logging.
func (c Config) MaskedToken() string {
	if len(c.Token) <= 8 {
		if c.Token == "" {
			return "(not set)"
		}
		return "****"
	}
	return c.Token[:4] + "****" + c.Token[len(c.Token)-4:]
}

// Tmp converts the config back to its yaml layout.
func (c Config) Tmp() ConfigTmp {
	return ConfigTmp{
		APIURL:               c.APIURL,
		Token:                c.Token,
		CacheDir:             c.CacheDir,
		InterItemDelay:       c.InterItemDelay,
		DelayPolicy:          c.DelayPolicy,
		MaxDelay:             c.MaxDelay,
		RequestTimeout:       c.RequestTimeout,
		RetryMaxStr:          strconv.Itoa(c.RetryMax),
		RetryInitialInterval: c.RetryInitialInterval,
		HorizonStr:           strconv.Itoa(c.Horizon),
		Currency:             c.Currency,
		Locale:               c.Locale.String(),
		Listen:               c.Listen,
		LogLevel:             c.LogLevel,
		Items:                c.Items,
		UseFavorites:         c.UseFavorites,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func durationOrDefault(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}
