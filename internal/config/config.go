// Package config loads jarshade CLI settings from defaults, an optional YAML
// file, JARSHADE_* environment variables and command-line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/meigma/jarshade"
)

const (
	// AppName is used for the config directory and file name.
	AppName = "jarshade"

	// EnvPrefix prefixes environment overrides, e.g. JARSHADE_TARGET.
	EnvPrefix = "JARSHADE"
)

// Config is the effective CLI configuration.
type Config struct {
	Target             string      `mapstructure:"target" yaml:"target"`
	Roots              []string    `mapstructure:"roots" yaml:"roots"`
	Resources          string      `mapstructure:"resources" yaml:"resources"`
	OutDir             string      `mapstructure:"out_dir" yaml:"out_dir"`
	Workers            int         `mapstructure:"workers" yaml:"workers"`
	ArchiveConcurrency int         `mapstructure:"archive_concurrency" yaml:"archive_concurrency"`
	MaxInFlightBytes   int64       `mapstructure:"max_in_flight_bytes" yaml:"max_in_flight_bytes"`
	CompressionLevel   int         `mapstructure:"compression_level" yaml:"compression_level"`
	Cache              CacheConfig `mapstructure:"cache" yaml:"cache"`
}

// CacheConfig configures the on-disk result cache. An empty Dir disables it.
type CacheConfig struct {
	Dir      string `mapstructure:"dir" yaml:"dir"`
	MaxBytes int64  `mapstructure:"max_bytes" yaml:"max_bytes"`
}

// Default returns the built-in configuration.
func Default() Config {
	shade := jarshade.DefaultConfig()
	return Config{
		Target:             shade.TargetPrefix,
		Roots:              shade.Roots,
		Resources:          shade.Resources.String(),
		OutDir:             ".",
		Workers:            0,
		ArchiveConcurrency: 2,
		MaxInFlightBytes:   jarshade.DefaultMaxInFlightBytes,
		CompressionLevel:   -1,
	}
}

// LoadOptions selects the sources Load reads.
type LoadOptions struct {
	// ConfigFile is an explicit config path. It must exist.
	ConfigFile string

	// SearchPaths are directories probed for jarshade.yaml when ConfigFile
	// is empty. Nil uses the working directory and the user config dir.
	SearchPaths []string

	// Flags are bound on top of every other source. Only flags the user
	// actually set override lower layers.
	Flags *pflag.FlagSet
}

// flagKeys maps CLI flag names to config keys.
var flagKeys = map[string]string{
	"target":      "target",
	"root":        "roots",
	"resources":   "resources",
	"out":         "out_dir",
	"workers":     "workers",
	"jobs":        "archive_concurrency",
	"max-memory":  "max_in_flight_bytes",
	"level":       "compression_level",
	"cache-dir":   "cache.dir",
	"cache-limit": "cache.max_bytes",
}

// Load resolves the configuration. It returns the config file used, or ""
// when none was found.
func Load(opts LoadOptions) (Config, string, error) {
	v := viper.New()

	defaults := Default()
	v.SetDefault("target", defaults.Target)
	v.SetDefault("roots", defaults.Roots)
	v.SetDefault("resources", defaults.Resources)
	v.SetDefault("out_dir", defaults.OutDir)
	v.SetDefault("workers", defaults.Workers)
	v.SetDefault("archive_concurrency", defaults.ArchiveConcurrency)
	v.SetDefault("max_in_flight_bytes", defaults.MaxInFlightBytes)
	v.SetDefault("compression_level", defaults.CompressionLevel)
	v.SetDefault("cache.dir", defaults.Cache.Dir)
	v.SetDefault("cache.max_bytes", defaults.Cache.MaxBytes)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	resolved, err := readConfigFile(v, opts)
	if err != nil {
		return Config{}, "", err
	}

	if opts.Flags != nil {
		for name, key := range flagKeys {
			if f := opts.Flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, "", fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, "", fmt.Errorf("failed to parse config: %w", err)
	}
	if _, err := cfg.Shade(); err != nil {
		return Config{}, "", err
	}
	return cfg, resolved, nil
}

func readConfigFile(v *viper.Viper, opts LoadOptions) (string, error) {
	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return "", fmt.Errorf("failed to read config file %s: %w", opts.ConfigFile, err)
		}
		return v.ConfigFileUsed(), nil
	}

	paths := opts.SearchPaths
	if paths == nil {
		paths = []string{"."}
		if dir, err := os.UserConfigDir(); err == nil {
			paths = append(paths, filepath.Join(dir, AppName))
		}
	}
	v.SetConfigName(AppName)
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read config file: %w", err)
	}
	return v.ConfigFileUsed(), nil
}

// Shade converts the relocation settings into a validated jarshade.Config.
func (c Config) Shade() (jarshade.Config, error) {
	mode, err := jarshade.ParseResourceMode(c.Resources)
	if err != nil {
		return jarshade.Config{}, err
	}
	cfg := jarshade.Config{
		TargetPrefix: withSlash(c.Target),
		Resources:    mode,
	}
	for _, r := range c.Roots {
		if r = strings.TrimSpace(r); r != "" {
			cfg.Roots = append(cfg.Roots, withSlash(r))
		}
	}
	if err := cfg.Validate(); err != nil {
		return jarshade.Config{}, err
	}
	return cfg, nil
}

// withSlash accepts dotted package names and a missing trailing slash, the
// way build scripts usually spell prefixes.
func withSlash(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return p
	}
	p = strings.ReplaceAll(p, ".", "/")
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}
