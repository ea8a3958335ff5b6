package config

import (
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "GATEWAYBENCH"

// Config represents the configuration of gatewaybench
type Config struct {
	ConfigPath string

	Strict bool

	LogLevel  logrus.Level
	LogFormat LogFormat

	Endpoint      string
	AdminEndpoint string

	WorkloadAPIKey       string
	WorkloadAllowedHosts []string
	WorkloadOutputDir    string
	WorkloadLogLines     uint
	SQLiteDBPath         string

	Users           uint64
	SpawnRate       float64
	RunTime         time.Duration
	WaitMin         time.Duration
	WaitMax         time.Duration
	RequestTimeout  time.Duration
	HistoryInterval time.Duration

	// We memoize these, so they bind to viper flags correctly
	optionsCache *ConfigOptions
	viper        *viper.Viper
}

// Init registers every option as a flag of cmd.
func (cfg *Config) Init(cmd *cobra.Command) error {
	cfg.viper = viper.New()
	for _, option := range cfg.options() {
		if err := option.register(cmd.PersistentFlags(), cfg.viper); err != nil {
			return err
		}
	}
	return nil
}

// SetValues loads the configuration. Defaults are overridden by the toml
// file, which is overridden by environment variables, which are overridden by
// flags.
func (cfg *Config) SetValues() error {
	if err := cfg.loadDefaults(); err != nil {
		return err
	}

	// Then we load from the cli flags and environment variables
	if err := cfg.loadFlags(); err != nil {
		return err
	}

	// If we specified a config file, we load that
	if cfg.ConfigPath != "" {
		// Merge in the config file flags
		if err := cfg.loadConfigPath(); err != nil {
			return err
		}

		// Load from cli flags and environment variables again, to overwrite what we
		// got from the config file
		if err := cfg.loadFlags(); err != nil {
			return err
		}
	}

	return nil
}

// loadDefaults populates the config with default values
func (cfg *Config) loadDefaults() error {
	for _, option := range cfg.options() {
		if option.DefaultValue != nil {
			if err := option.setValue(option.DefaultValue); err != nil {
				return err
			}
		}
	}
	return nil
}

// loadFlags populates the config with values from the cli flags and
// environment variables
func (cfg *Config) loadFlags() error {
	if cfg.viper == nil {
		return nil
	}
	for _, option := range cfg.options() {
		if cfg.viper.IsSet(option.Name) {
			if err := option.setValue(cfg.viper.Get(option.Name)); err != nil {
				return err
			}
		}
	}
	return nil
}

// loadConfigPath loads a new config from a toml file at the given path. Strict
// mode will return an error if there are any unknown toml variables set. Note,
// strict-mode can also be set by putting `STRICT=true` in the config.toml file
// itself.
func (cfg *Config) loadConfigPath() error {
	file, err := os.Open(cfg.ConfigPath)
	if err != nil {
		return err
	}
	defer file.Close()
	return parseToml(file, cfg.Strict, cfg)
}

// Validate all the config options.
func (cfg *Config) Validate() error {
	return cfg.options().Validate()
}

// NewLogger returns a logger honoring the configured level and format.
func (cfg *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(cfg.LogLevel)
	logger.SetFormatter(cfg.LogFormat.Formatter())
	return logger
}

func defaultEnvVar(name string) string {
	return envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}
