package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/vertextoedge/url-retriever/internal/domain/vo"
)

// EnvPrefix prefixes environment overrides, e.g. URL_RETRIEVER_RETRIEVAL_TRIES
const EnvPrefix = "URL_RETRIEVER"

// Config represents the entire application configuration
type Config struct {
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Proxy     ProxyConfig     `mapstructure:"proxy"`
	Recursion RecursionConfig `mapstructure:"recursion"`
	Input     InputConfig     `mapstructure:"input"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
}

// RetrievalConfig contains per-URL retrieval settings
type RetrievalConfig struct {
	Tries         int    `mapstructure:"tries"`
	Wait          string `mapstructure:"wait"`
	WaitRetry     string `mapstructure:"waitretry"`
	Quota         string `mapstructure:"quota"`
	Continue      bool   `mapstructure:"continue"`
	DeleteAfter   bool   `mapstructure:"delete_after"`
	Verbose       bool   `mapstructure:"verbose"`
	Progress      string `mapstructure:"progress"`
	Referer       string `mapstructure:"referer"`
	MaxRedirects  int    `mapstructure:"max_redirects"`
	LimitRate     string `mapstructure:"limit_rate"`
	OutputDir     string `mapstructure:"output_dir"`
	UserAgent     string `mapstructure:"user_agent"`
	Timeout       string `mapstructure:"timeout"`
	SkipTLSVerify bool   `mapstructure:"skip_tls_verify"`
}

// ProxyConfig contains proxy settings
type ProxyConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	HTTP    string   `mapstructure:"http"`
	HTTPS   string   `mapstructure:"https"`
	FTP     string   `mapstructure:"ftp"`
	NoProxy []string `mapstructure:"no_proxy"`
}

// RecursionConfig contains recursive retrieval settings
type RecursionConfig struct {
	Enabled   bool `mapstructure:"enabled"`
	MaxDepth  int  `mapstructure:"max_depth"`
	SpanHosts bool `mapstructure:"span_hosts"`
	Robots    bool `mapstructure:"robots"`
}

// InputConfig selects a file of URLs to retrieve
type InputConfig struct {
	File string `mapstructure:"file"`
	HTML bool   `mapstructure:"html"`
	Base string `mapstructure:"base"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DatabaseConfig contains registry database settings
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// flagKeys maps command-line flag names to configuration keys
var flagKeys = map[string]string{
	"tries":         "retrieval.tries",
	"wait":          "retrieval.wait",
	"waitretry":     "retrieval.waitretry",
	"quota":         "retrieval.quota",
	"continue":      "retrieval.continue",
	"delete-after":  "retrieval.delete_after",
	"verbose":       "retrieval.verbose",
	"progress":      "retrieval.progress",
	"referer":       "retrieval.referer",
	"max-redirect":  "retrieval.max_redirects",
	"limit-rate":    "retrieval.limit_rate",
	"directory":     "retrieval.output_dir",
	"user-agent":    "retrieval.user_agent",
	"timeout":       "retrieval.timeout",
	"no-check-cert": "retrieval.skip_tls_verify",
	"proxy":         "proxy.enabled",
	"recursive":     "recursion.enabled",
	"level":         "recursion.max_depth",
	"span-hosts":    "recursion.span_hosts",
	"robots":        "recursion.robots",
	"input-file":    "input.file",
	"force-html":    "input.html",
	"base":          "input.base",
	"log-level":     "logging.level",
	"log-format":    "logging.format",
	"registry":      "database.path",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("retrieval.tries", 20)
	v.SetDefault("retrieval.wait", "0s")
	v.SetDefault("retrieval.waitretry", "10s")
	v.SetDefault("retrieval.quota", "0")
	v.SetDefault("retrieval.continue", false)
	v.SetDefault("retrieval.delete_after", false)
	v.SetDefault("retrieval.verbose", true)
	v.SetDefault("retrieval.progress", "auto")
	v.SetDefault("retrieval.referer", "")
	v.SetDefault("retrieval.max_redirects", 20)
	v.SetDefault("retrieval.limit_rate", "0")
	v.SetDefault("retrieval.output_dir", ".")
	v.SetDefault("retrieval.user_agent", "url-retriever/1.0")
	v.SetDefault("retrieval.timeout", "15m")
	v.SetDefault("retrieval.skip_tls_verify", false)
	v.SetDefault("proxy.enabled", true)
	v.SetDefault("proxy.http", "")
	v.SetDefault("proxy.https", "")
	v.SetDefault("proxy.ftp", "")
	v.SetDefault("proxy.no_proxy", []string{})
	v.SetDefault("recursion.enabled", false)
	v.SetDefault("recursion.max_depth", 5)
	v.SetDefault("recursion.span_hosts", false)
	v.SetDefault("recursion.robots", true)
	v.SetDefault("input.file", "")
	v.SetDefault("input.html", false)
	v.SetDefault("input.base", "")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("database.path", ":memory:")
}

// Load builds the configuration from defaults, the optional config file,
// the environment and the flags set on the command line, in increasing
// order of precedence. flags may be nil.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// Conventional proxy variables
	_ = v.BindEnv("proxy.http", "http_proxy", "HTTP_PROXY")
	_ = v.BindEnv("proxy.https", "https_proxy", "HTTPS_PROXY")
	_ = v.BindEnv("proxy.ftp", "ftp_proxy", "FTP_PROXY")
	_ = v.BindEnv("proxy.no_proxy", "no_proxy", "NO_PROXY")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")

		// Read config file
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate retrieval config
	if c.Retrieval.Tries < 0 {
		return fmt.Errorf("retrieval.tries must not be negative")
	}
	if c.Retrieval.MaxRedirects < 0 {
		return fmt.Errorf("retrieval.max_redirects must not be negative")
	}
	if c.Retrieval.OutputDir == "" {
		return fmt.Errorf("retrieval.output_dir is required")
	}
	if _, err := time.ParseDuration(c.Retrieval.Wait); err != nil {
		return fmt.Errorf("invalid retrieval.wait: %w", err)
	}
	if _, err := time.ParseDuration(c.Retrieval.WaitRetry); err != nil {
		return fmt.Errorf("invalid retrieval.waitretry: %w", err)
	}
	if _, err := time.ParseDuration(c.Retrieval.Timeout); err != nil {
		return fmt.Errorf("invalid retrieval.timeout: %w", err)
	}
	if _, err := vo.ParseByteSize(c.Retrieval.Quota); err != nil {
		return fmt.Errorf("invalid retrieval.quota: %w", err)
	}
	if _, err := vo.ParseByteSize(c.Retrieval.LimitRate); err != nil {
		return fmt.Errorf("invalid retrieval.limit_rate: %w", err)
	}
	switch c.Retrieval.Progress {
	case "auto", "bar", "dot":
		// Valid styles
	default:
		return fmt.Errorf("invalid retrieval.progress: %s", c.Retrieval.Progress)
	}

	// Validate recursion config
	if c.Recursion.MaxDepth < 0 {
		return fmt.Errorf("recursion.max_depth must not be negative")
	}

	// Validate input config
	if c.Input.HTML && c.Input.File == "" {
		return fmt.Errorf("input.html requires input.file")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	// Validate logging config
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		// Valid levels
	default:
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "text":
		// Valid formats
	default:
		return fmt.Errorf("invalid logging.format: %s", c.Logging.Format)
	}

	return nil
}

// GetWait returns the pause between retrievals
func (c *RetrievalConfig) GetWait() time.Duration {
	d, _ := time.ParseDuration(c.Wait)
	return d
}

// GetWaitRetry returns the cap of the linear retry backoff
func (c *RetrievalConfig) GetWaitRetry() time.Duration {
	d, _ := time.ParseDuration(c.WaitRetry)
	return d
}

// GetTimeout returns the network timeout as time.Duration
func (c *RetrievalConfig) GetTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	if d == 0 {
		return 15 * time.Minute
	}
	return d
}

// GetQuota returns the download quota in bytes; 0 means no quota
func (c *RetrievalConfig) GetQuota() uint64 {
	size, _ := vo.ParseByteSize(c.Quota)
	return uint64(size)
}

// GetLimitRate returns the bandwidth limit in bytes per second
func (c *RetrievalConfig) GetLimitRate() int64 {
	size, _ := vo.ParseByteSize(c.LimitRate)
	return int64(size)
}
