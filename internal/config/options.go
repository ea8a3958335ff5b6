package config

import (
	"fmt"
	"go/types"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

func (cfg *Config) options() ConfigOptions {
	if cfg.optionsCache != nil {
		return *cfg.optionsCache
	}
	cfg.optionsCache = &ConfigOptions{
		{
			Name:         "config-path",
			TomlKey:      "-",
			Usage:        "File path to the toml configuration file",
			OptType:      types.String,
			ConfigKey:    &cfg.ConfigPath,
			DefaultValue: "",
		},
		{
			Name:         "config-strict",
			TomlKey:      "STRICT",
			Usage:        "Enable strict toml configuration file parsing",
			OptType:      types.Bool,
			ConfigKey:    &cfg.Strict,
			DefaultValue: false,
		},
		{
			Name:         "log-level",
			Usage:        "minimum log severity (debug, info, warn, error) to log",
			OptType:      types.String,
			ConfigKey:    &cfg.LogLevel,
			DefaultValue: logrus.InfoLevel.String(),
			CustomSetValue: func(i interface{}) error {
				switch v := i.(type) {
				case string:
					ll, err := logrus.ParseLevel(v)
					if err != nil {
						return fmt.Errorf("could not parse log-level: %v", v)
					}
					cfg.LogLevel = ll
					return nil
				default:
					return fmt.Errorf("could not parse log-level: %v", v)
				}
			},
		},
		{
			Name:           "log-format",
			Usage:          "format used for output logs (json or text)",
			OptType:        types.String,
			ConfigKey:      &cfg.LogFormat,
			DefaultValue:   "text",
			CustomSetValue: cfg.LogFormat.UnmarshalTOML,
		},
		{
			Name:         "endpoint",
			Usage:        "Endpoint to listen and serve on",
			OptType:      types.String,
			ConfigKey:    &cfg.Endpoint,
			DefaultValue: "localhost:4000",
		},
		{
			Name:         "admin-endpoint",
			Usage:        "Admin endpoint serving metrics. WARNING: this should not be accessible from the Internet and does not use TLS. \"\" (default) serves metrics on the main endpoint",
			OptType:      types.String,
			ConfigKey:    &cfg.AdminEndpoint,
			DefaultValue: "",
		},
		{
			Name:         "workload-api-key",
			Usage:        "API key required by the workload routes, passed as the x-api-key header or the api_key query parameter. \"\" (default) disables authentication",
			OptType:      types.String,
			ConfigKey:    &cfg.WorkloadAPIKey,
			DefaultValue: "",
		},
		{
			Name:         "workload-allowed-hosts",
			Usage:        "comma-separated list of hosts workloads may target. Empty (default) allows any host",
			OptType:      types.String,
			ConfigKey:    &cfg.WorkloadAllowedHosts,
			DefaultValue: "",
		},
		{
			Name:         "workload-output-dir",
			Usage:        "directory workload reports are written to",
			OptType:      types.String,
			ConfigKey:    &cfg.WorkloadOutputDir,
			DefaultValue: ".",
			Validate:     required,
		},
		{
			Name:         "workload-log-lines",
			Usage:        "number of log lines kept per workload job",
			OptType:      types.Uint,
			ConfigKey:    &cfg.WorkloadLogLines,
			DefaultValue: uint(200),
			Validate:     positive,
		},
		{
			Name:         "db-path",
			Usage:        "SQLite DB path persisting workload jobs. \"\" (default) keeps jobs in memory",
			OptType:      types.String,
			ConfigKey:    &cfg.SQLiteDBPath,
			DefaultValue: "",
		},
		{
			Name:         "users",
			Usage:        "number of simulated users",
			OptType:      types.Uint64,
			ConfigKey:    &cfg.Users,
			DefaultValue: uint64(1),
			Validate:     positive,
		},
		{
			Name:         "spawn-rate",
			Usage:        "users started per second, 0 starts all users at once",
			OptType:      types.Float64,
			ConfigKey:    &cfg.SpawnRate,
			DefaultValue: float64(1),
			Validate:     nonNegative,
		},
		{
			Name:         "run-time",
			Usage:        "duration of a load test, 0 runs until interrupted",
			OptType:      types.String,
			ConfigKey:    &cfg.RunTime,
			DefaultValue: time.Minute.String(),
			Validate:     nonNegative,
		},
		{
			Name:         "wait-min",
			Usage:        "minimum wait between two requests of a simulated user",
			OptType:      types.String,
			ConfigKey:    &cfg.WaitMin,
			DefaultValue: (100 * time.Millisecond).String(),
			Validate:     nonNegative,
		},
		{
			Name:         "wait-max",
			Usage:        "maximum wait between two requests of a simulated user",
			OptType:      types.String,
			ConfigKey:    &cfg.WaitMax,
			DefaultValue: (300 * time.Millisecond).String(),
			Validate: func(option *ConfigOption) error {
				if cfg.WaitMax < cfg.WaitMin {
					return errors.Errorf("wait-max (%s) cannot be lower than wait-min (%s)", cfg.WaitMax, cfg.WaitMin)
				}
				return nil
			},
		},
		{
			Name:         "request-timeout",
			Usage:        "timeout of a single request to the system under test",
			OptType:      types.String,
			ConfigKey:    &cfg.RequestTimeout,
			DefaultValue: (30 * time.Second).String(),
			Validate:     positive,
		},
		{
			Name:         "history-interval",
			Usage:        "how often a statistics history row is sampled",
			OptType:      types.String,
			ConfigKey:    &cfg.HistoryInterval,
			DefaultValue: time.Second.String(),
			Validate:     positive,
		},
	}
	return *cfg.optionsCache
}

func required(option *ConfigOption) error {
	switch v := option.ConfigKey.(type) {
	case *string:
		if *v == "" {
			return errors.Errorf("%s is required", option.Name)
		}
	}
	return nil
}
