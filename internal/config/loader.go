package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config captures configuration values for the planner.
type Config struct {
	SQLiteDSN          string
	MaxRecurrentEvents int
	DefaultTimezone    string
	Location           *time.Location
	LogLevel           string
	LogFormat          string
	OTelEndpoint       string
	ConfigFile         string
}

// fileConfig is the YAML layout of PLANNER_CONFIG_FILE.
type fileConfig struct {
	SQLiteDSN          string `yaml:"sqlite_dsn"`
	MaxRecurrentEvents *int   `yaml:"max_recurrent_events"`
	DefaultTimezone    string `yaml:"default_timezone"`
	LogLevel           string `yaml:"log_level"`
	LogFormat          string `yaml:"log_format"`
	OTelEndpoint       string `yaml:"otel_endpoint"`
}

// envConfig is the environment layout. Its envDefault tags are the defaults.
type envConfig struct {
	ConfigFile         string `env:"PLANNER_CONFIG_FILE"`
	SQLiteDSN          string `env:"PLANNER_SQLITE_DSN"           envDefault:"planner.db"`
	MaxRecurrentEvents int    `env:"PLANNER_MAX_RECURRENT_EVENTS" envDefault:"200"`
	DefaultTimezone    string `env:"PLANNER_DEFAULT_TIMEZONE"     envDefault:"UTC"`
	LogLevel           string `env:"PLANNER_LOG_LEVEL"            envDefault:"info"`
	LogFormat          string `env:"PLANNER_LOG_FORMAT"           envDefault:"text"`
	OTelEndpoint       string `env:"PLANNER_OTEL_ENDPOINT"`
}

// Load parses configuration values from the optional YAML file named by
// PLANNER_CONFIG_FILE and then from the process environment.
//
// Environment values override the file. Unparsable variables are reported by
// env in one error; range and timezone checks are reported together after.
func Load() (Config, error) {
	explicit := make(map[string]bool)
	raw, err := env.ParseAsWithOptions[envConfig](env.Options{
		OnSet: func(key string, value any, isDefault bool) {
			if !isDefault && value != "" {
				explicit[key] = true
			}
		},
	})
	if err != nil {
		return Config{}, fmt.Errorf("環境変数の値が不正です: %w", err)
	}

	cfg := fromEnv(raw)
	invalid := make([]string, 0, 2)

	if path := strings.TrimSpace(raw.ConfigFile); path != "" {
		file, err := readFile(path)
		if err != nil {
			return Config{}, err
		}
		cfg.ConfigFile = path
		applyFile(&cfg, file, explicit)
		if file.MaxRecurrentEvents != nil && *file.MaxRecurrentEvents <= 0 {
			invalid = append(invalid, "max_recurrent_events")
		}
	}

	if cfg.MaxRecurrentEvents <= 0 {
		invalid = append(invalid, "PLANNER_MAX_RECURRENT_EVENTS")
	}

	loc, err := time.LoadLocation(cfg.DefaultTimezone)
	if err != nil {
		invalid = append(invalid, "PLANNER_DEFAULT_TIMEZONE")
	} else {
		cfg.Location = loc
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		invalid = append(invalid, "PLANNER_LOG_LEVEL")
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		invalid = append(invalid, "PLANNER_LOG_FORMAT")
	}

	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("環境変数の値が不正です: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

func fromEnv(raw envConfig) Config {
	cfg := Config{
		SQLiteDSN:          strings.TrimSpace(raw.SQLiteDSN),
		MaxRecurrentEvents: raw.MaxRecurrentEvents,
		DefaultTimezone:    strings.TrimSpace(raw.DefaultTimezone),
		Location:           time.UTC,
		LogLevel:           strings.ToLower(strings.TrimSpace(raw.LogLevel)),
		LogFormat:          strings.ToLower(strings.TrimSpace(raw.LogFormat)),
		OTelEndpoint:       strings.TrimSpace(raw.OTelEndpoint),
	}
	if loc, err := time.LoadLocation(cfg.DefaultTimezone); err == nil {
		cfg.Location = loc
	}
	return cfg
}

func readFile(path string) (fileConfig, error) {
	var file fileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return file, fmt.Errorf("設定ファイルが見つかりません: %s", path)
		}
		return file, fmt.Errorf("設定ファイルを読み込めません: %w", err)
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return file, fmt.Errorf("設定ファイルの形式が不正です: %w", err)
	}
	return file, nil
}

// applyFile copies file values that the environment did not set explicitly.
func applyFile(cfg *Config, file fileConfig, explicit map[string]bool) {
	if file.SQLiteDSN != "" && !explicit["PLANNER_SQLITE_DSN"] {
		cfg.SQLiteDSN = file.SQLiteDSN
	}
	if file.MaxRecurrentEvents != nil && *file.MaxRecurrentEvents > 0 && !explicit["PLANNER_MAX_RECURRENT_EVENTS"] {
		cfg.MaxRecurrentEvents = *file.MaxRecurrentEvents
	}
	if file.DefaultTimezone != "" && !explicit["PLANNER_DEFAULT_TIMEZONE"] {
		cfg.DefaultTimezone = file.DefaultTimezone
	}
	if file.LogLevel != "" && !explicit["PLANNER_LOG_LEVEL"] {
		cfg.LogLevel = strings.ToLower(file.LogLevel)
	}
	if file.LogFormat != "" && !explicit["PLANNER_LOG_FORMAT"] {
		cfg.LogFormat = strings.ToLower(file.LogFormat)
	}
	if file.OTelEndpoint != "" && !explicit["PLANNER_OTEL_ENDPOINT"] {
		cfg.OTelEndpoint = file.OTelEndpoint
	}
}
