package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config keys, shared by the config file, BITEY_* environment variables and
// command-line flags.
const (
	KeyStoreDir         = "store_dir"
	KeyRemotesDir       = "remotes_dir"
	KeyInsecure         = "insecure"
	KeyHTTPTimeout      = "http_timeout"
	KeyDownloadTimeout  = "download_timeout"
	KeyFetchRetries     = "fetch_retries"
	KeyFetchConcurrency = "fetch_concurrency"
	KeyShell            = "shell"
	KeyScriptTimeout    = "script_timeout"
	KeyInstallPrefix    = "install_prefix"
	KeyMetricsFile      = "metrics_file"
	KeyLogFormat        = "log_format"

	envPrefix = "BITEY"
)

var ErrConfigExists = errors.New("config file already exists")

type Config struct {
	StoreDir         string        `mapstructure:"store_dir"`
	RemotesDir       string        `mapstructure:"remotes_dir"`
	Insecure         bool          `mapstructure:"insecure"`
	HTTPTimeout      time.Duration `mapstructure:"http_timeout"`
	DownloadTimeout  time.Duration `mapstructure:"download_timeout"`
	FetchRetries     uint64        `mapstructure:"fetch_retries"`
	FetchConcurrency int           `mapstructure:"fetch_concurrency"`
	Shell            string        `mapstructure:"shell"`
	ScriptTimeout    time.Duration `mapstructure:"script_timeout"`
	// InstallPrefix is exported to install scripts as ROOT.
	InstallPrefix string `mapstructure:"install_prefix"`
	MetricsFile   string `mapstructure:"metrics_file"`
	// LogFormat is "text" or "json".
	LogFormat string `mapstructure:"log_format"`
}

// fileConfig is the on-disk form; durations are written as strings like
// "30s" so the file stays readable.
type fileConfig struct {
	StoreDir         string `toml:"store_dir"`
	RemotesDir       string `toml:"remotes_dir"`
	Insecure         bool   `toml:"insecure"`
	HTTPTimeout      string `toml:"http_timeout"`
	DownloadTimeout  string `toml:"download_timeout"`
	FetchRetries     uint64 `toml:"fetch_retries"`
	FetchConcurrency int    `toml:"fetch_concurrency"`
	Shell            string `toml:"shell"`
	ScriptTimeout    string `toml:"script_timeout"`
	InstallPrefix    string `toml:"install_prefix"`
	MetricsFile      string `toml:"metrics_file"`
	LogFormat        string `toml:"log_format"`
}

// Default returns the built-in configuration.
func Default() (*Config, error) {
	dataDir, err := DataDir()
	if err != nil {
		return nil, fmt.Errorf("determining data directory: %w", err)
	}
	configDir, err := ConfigDir()
	if err != nil {
		return nil, fmt.Errorf("determining config directory: %w", err)
	}

	return &Config{
		StoreDir:         filepath.Join(dataDir, "packages"),
		RemotesDir:       filepath.Join(configDir, "remotes"),
		HTTPTimeout:      30 * time.Second,
		DownloadTimeout:  10 * time.Minute,
		FetchRetries:     2,
		FetchConcurrency: 1,
		Shell:            "sh",
		LogFormat:        "text",
	}, nil
}

func (c *Config) Marshal() ([]byte, error) {
	return toml.Marshal(fileConfig{
		StoreDir:         c.StoreDir,
		RemotesDir:       c.RemotesDir,
		Insecure:         c.Insecure,
		HTTPTimeout:      c.HTTPTimeout.String(),
		DownloadTimeout:  c.DownloadTimeout.String(),
		FetchRetries:     c.FetchRetries,
		FetchConcurrency: c.FetchConcurrency,
		Shell:            c.Shell,
		ScriptTimeout:    c.ScriptTimeout.String(),
		InstallPrefix:    c.InstallPrefix,
		MetricsFile:      c.MetricsFile,
		LogFormat:        c.LogFormat,
	})
}

func (c *Config) Validate() error {
	var err error
	if c.StoreDir == "" {
		err = errors.Join(err, fmt.Errorf("%s must be set", KeyStoreDir))
	}
	if c.RemotesDir == "" {
		err = errors.Join(err, fmt.Errorf("%s must be set", KeyRemotesDir))
	}
	if c.HTTPTimeout <= 0 {
		err = errors.Join(err, fmt.Errorf("%s must be positive", KeyHTTPTimeout))
	}
	if c.DownloadTimeout <= 0 {
		err = errors.Join(err, fmt.Errorf("%s must be positive", KeyDownloadTimeout))
	}
	if c.ScriptTimeout < 0 {
		err = errors.Join(err, fmt.Errorf("%s must not be negative", KeyScriptTimeout))
	}
	if c.FetchConcurrency < 1 {
		err = errors.Join(err, fmt.Errorf("%s must be at least 1", KeyFetchConcurrency))
	}
	if c.Shell == "" {
		err = errors.Join(err, fmt.Errorf("%s must be set", KeyShell))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		err = errors.Join(err, fmt.Errorf("%s must be \"text\" or \"json\", got %q", KeyLogFormat, c.LogFormat))
	}
	return err
}

// LoadOptions says where Load looks beyond the built-in defaults.
type LoadOptions struct {
	// File is an explicit config file; it must exist. When empty the file
	// at DefaultPath is read if present.
	File string
	// Flags are bound to config keys via FlagKeys. Only flags the user set
	// override other sources.
	Flags *pflag.FlagSet
}

// FlagKeys maps command-line flag names to the config keys they set.
var FlagKeys = map[string]string{
	"store-dir":    KeyStoreDir,
	"remotes-dir":  KeyRemotesDir,
	"insecure":     KeyInsecure,
	"metrics-file": KeyMetricsFile,
}

// Load resolves configuration with Viper precedence:
// flags > BITEY_* environment > config file > defaults.
func Load(opts LoadOptions) (*Config, error) {
	defaults, err := Default()
	if err != nil {
		return nil, err
	}

	path, explicit := opts.File, opts.File != ""
	if !explicit {
		if path, err = DefaultPath(); err != nil {
			return nil, fmt.Errorf("determining config path: %w", err)
		}
	}
	return load(defaults, path, explicit, opts.Flags)
}

func load(defaults *Config, path string, explicit bool, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")

	setDefaults(v, defaults)

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
	} else if explicit {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	if flags != nil {
		for name, key := range FlagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("binding --%s: %w", name, err)
				}
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	var err error
	if cfg.StoreDir, err = expandHome(cfg.StoreDir); err != nil {
		return nil, err
	}
	if cfg.RemotesDir, err = expandHome(cfg.RemotesDir); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault(KeyStoreDir, d.StoreDir)
	v.SetDefault(KeyRemotesDir, d.RemotesDir)
	v.SetDefault(KeyInsecure, d.Insecure)
	v.SetDefault(KeyHTTPTimeout, d.HTTPTimeout)
	v.SetDefault(KeyDownloadTimeout, d.DownloadTimeout)
	v.SetDefault(KeyFetchRetries, d.FetchRetries)
	v.SetDefault(KeyFetchConcurrency, d.FetchConcurrency)
	v.SetDefault(KeyShell, d.Shell)
	v.SetDefault(KeyScriptTimeout, d.ScriptTimeout)
	v.SetDefault(KeyInstallPrefix, d.InstallPrefix)
	v.SetDefault(KeyMetricsFile, d.MetricsFile)
	v.SetDefault(KeyLogFormat, d.LogFormat)
}

// WriteDefault writes the built-in configuration to path, refusing to
// replace an existing file unless force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s", ErrConfigExists, path)
		}
	}

	cfg, err := Default()
	if err != nil {
		return err
	}
	data, err := cfg.Marshal()
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
