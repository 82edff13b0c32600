package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every configuration key when read from the
// environment (bin_dir -> FELLOE_BIN_DIR).
const EnvPrefix = "FELLOE"

// FileName is the configuration file name inside the felloe home directory.
const FileName = "config.yaml"

var (
	// ErrInvalidConfig is returned when a loaded configuration fails validation.
	ErrInvalidConfig = errors.New("invalid config")
)

// Config captures every tunable of the version manager. Zero values are
// replaced by Default() when loading.
type Config struct {
	Home                string        `yaml:"home,omitempty" mapstructure:"home"`
	BinDir              string        `yaml:"bin_dir,omitempty" mapstructure:"bin_dir"`
	ReleasesURL         string        `yaml:"releases_url" mapstructure:"releases_url"`
	DownloadURL         string        `yaml:"download_url" mapstructure:"download_url"`
	ToolName            string        `yaml:"tool_name" mapstructure:"tool_name"`
	PrimaryExecutable   string        `yaml:"primary_executable" mapstructure:"primary_executable"`
	AuxiliaryExecutable string        `yaml:"auxiliary_executable" mapstructure:"auxiliary_executable"`
	AuxiliaryFamily     string        `yaml:"auxiliary_family" mapstructure:"auxiliary_family"`
	ReleaseCount        int           `yaml:"release_count" mapstructure:"release_count"`
	Timeout             time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent           string        `yaml:"user_agent" mapstructure:"user_agent"`
	LogLevel            string        `yaml:"log_level" mapstructure:"log_level"`
	LogMaxSizeMB        int           `yaml:"log_max_size_mb" mapstructure:"log_max_size_mb"`
	LogMaxBackups       int           `yaml:"log_max_backups" mapstructure:"log_max_backups"`
	LogCompress         bool          `yaml:"log_compress" mapstructure:"log_compress"`
	MinFreeSpaceFactor  float64       `yaml:"min_free_space_factor" mapstructure:"min_free_space_factor"`
}

// Default returns the configuration used when no file or environment
// overrides are present. Home and BinDir stay empty so paths can pick the
// platform defaults.
func Default() Config {
	return Config{
		ReleasesURL:         "https://api.github.com/repos/helm/helm/releases",
		DownloadURL:         "https://get.helm.sh",
		ToolName:            "helm",
		PrimaryExecutable:   "helm",
		AuxiliaryExecutable: "tiller",
		AuxiliaryFamily:     "v2",
		ReleaseCount:        25,
		Timeout:             30 * time.Second,
		UserAgent:           "felloe",
		LogLevel:            "warn",
		LogMaxSizeMB:        10,
		LogMaxBackups:       3,
		LogCompress:         true,
		MinFreeSpaceFactor:  4,
	}
}

// Load reads the YAML configuration at path (if it exists), layers FELLOE_*
// environment variables on top and falls back to Default() for anything
// left unset. An empty path skips the file.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationHook())); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Save writes cfg as YAML, creating parent directories as needed. The file is
// replaced through a temp file so a crash never leaves half a config behind.
func Save(path string, cfg Config) error {
	data, err := cfg.Marshal()
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".config-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}

// ApplyDefaults fills zero-valued fields from Default().
func (c *Config) ApplyDefaults() {
	defaults := Default()

	if c.ReleasesURL == "" {
		c.ReleasesURL = defaults.ReleasesURL
	}
	if c.DownloadURL == "" {
		c.DownloadURL = defaults.DownloadURL
	}
	if c.ToolName == "" {
		c.ToolName = defaults.ToolName
	}
	if c.PrimaryExecutable == "" {
		c.PrimaryExecutable = defaults.PrimaryExecutable
	}
	if c.AuxiliaryExecutable == "" {
		c.AuxiliaryExecutable = defaults.AuxiliaryExecutable
	}
	if c.ReleaseCount == 0 {
		c.ReleaseCount = defaults.ReleaseCount
	}
	if c.Timeout == 0 {
		c.Timeout = defaults.Timeout
	}
	if c.UserAgent == "" {
		c.UserAgent = defaults.UserAgent
	}
	if c.LogLevel == "" {
		c.LogLevel = defaults.LogLevel
	}
	if c.LogMaxSizeMB == 0 {
		c.LogMaxSizeMB = defaults.LogMaxSizeMB
	}
	if c.MinFreeSpaceFactor == 0 {
		c.MinFreeSpaceFactor = defaults.MinFreeSpaceFactor
	}
	c.ReleasesURL = strings.TrimRight(c.ReleasesURL, "/")
	c.DownloadURL = strings.TrimRight(c.DownloadURL, "/")
}

// Validate reports the first field that cannot be used as-is.
func (c Config) Validate() error {
	switch {
	case c.ReleaseCount < 0:
		return fmt.Errorf("%w: release_count must not be negative", ErrInvalidConfig)
	case c.Timeout < 0:
		return fmt.Errorf("%w: timeout must not be negative", ErrInvalidConfig)
	case c.MinFreeSpaceFactor < 0:
		return fmt.Errorf("%w: min_free_space_factor must not be negative", ErrInvalidConfig)
	case c.LogMaxBackups < 0:
		return fmt.Errorf("%w: log_max_backups must not be negative", ErrInvalidConfig)
	case strings.ContainsAny(c.PrimaryExecutable, `/\`):
		return fmt.Errorf("%w: primary_executable must be a bare file name", ErrInvalidConfig)
	case strings.ContainsAny(c.AuxiliaryExecutable, `/\`):
		return fmt.Errorf("%w: auxiliary_executable must be a bare file name", ErrInvalidConfig)
	}
	return nil
}

// Marshal returns the YAML encoding of the configuration.
func (c Config) Marshal() ([]byte, error) {
	buf, err := yaml.Marshal(&c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return buf, nil
}

func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("home", cfg.Home)
	v.SetDefault("bin_dir", cfg.BinDir)
	v.SetDefault("releases_url", cfg.ReleasesURL)
	v.SetDefault("download_url", cfg.DownloadURL)
	v.SetDefault("tool_name", cfg.ToolName)
	v.SetDefault("primary_executable", cfg.PrimaryExecutable)
	v.SetDefault("auxiliary_executable", cfg.AuxiliaryExecutable)
	v.SetDefault("auxiliary_family", cfg.AuxiliaryFamily)
	v.SetDefault("release_count", cfg.ReleaseCount)
	v.SetDefault("timeout", cfg.Timeout)
	v.SetDefault("user_agent", cfg.UserAgent)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("log_max_size_mb", cfg.LogMaxSizeMB)
	v.SetDefault("log_max_backups", cfg.LogMaxBackups)
	v.SetDefault("log_compress", cfg.LogCompress)
	v.SetDefault("min_free_space_factor", cfg.MinFreeSpaceFactor)
}

// durationHook accepts "30s" style strings as well as bare numbers, which are
// read as seconds.
func durationHook() mapstructure.DecodeHookFuncType {
	return func(from, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch value := data.(type) {
		case string:
			value = strings.TrimSpace(value)
			if value == "" {
				return time.Duration(0), nil
			}
			if secs, err := strconv.Atoi(value); err == nil {
				return time.Duration(secs) * time.Second, nil
			}
			d, err := time.ParseDuration(value)
			if err != nil {
				return nil, fmt.Errorf("invalid duration %q: %w", value, err)
			}
			return d, nil
		case int:
			return time.Duration(value) * time.Second, nil
		case int64:
			return time.Duration(value) * time.Second, nil
		case float64:
			return time.Duration(value * float64(time.Second)), nil
		case time.Duration:
			return value, nil
		}
		return data, nil
	}
}
