package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"sprintboard/internal/dashboard"
	"sprintboard/internal/dataset"
)

// Data sources.
const (
	SourceCSV    = "csv"
	SourceSQLite = "sqlite"
)

const (
	defaultConfigPath = "config/sprintboard.yaml"
	defaultCSVPath    = "data/project_Data_modified.csv"
	defaultDBPath     = "data/sprintboard.db"
	defaultPort       = ":8050"
	defaultLogLevel   = "info"
)

// Config holds service configuration from defaults, an optional YAML file
// and environment overrides, in that order of precedence.
type Config struct {
	ConfigPath    string
	CSVPath       string
	DBPath        string
	Source        string
	Columns       dataset.Columns
	HTTPPort      string
	EnableWatcher bool
	StrictConfig  bool
	LogLevel      string
	Dashboard     DashboardConfig
}

// DashboardConfig controls table post-processing and the named views.
type DashboardConfig struct {
	PlaceholderLabel  string
	PadSingleCategory bool
	Views             map[string]dashboard.ViewSpec
}

type fileConfig struct {
	Data struct {
		CSVPath string `json:"csv_path" yaml:"csv_path"`
		DBPath  string `json:"db_path" yaml:"db_path"`
		Source  string `json:"source" yaml:"source"`
	} `json:"data" yaml:"data"`
	Columns       dataset.Columns     `json:"columns" yaml:"columns"`
	HTTPPort      string              `json:"http_port" yaml:"http_port"`
	EnableWatcher *bool               `json:"enable_watcher" yaml:"enable_watcher"`
	LogLevel      string              `json:"log_level" yaml:"log_level"`
	Dashboard     dashboardFileConfig `json:"dashboard" yaml:"dashboard"`
}

type dashboardFileConfig struct {
	PlaceholderLabel  string           `json:"placeholder_label" yaml:"placeholder_label"`
	PadSingleCategory *bool            `json:"pad_single_category" yaml:"pad_single_category"`
	Views             []viewFileConfig `json:"views" yaml:"views"`
}

// viewFileConfig keeps the padding flag optional so views can inherit it.
type viewFileConfig struct {
	Name              string            `json:"name" yaml:"name"`
	Title             string            `json:"title" yaml:"title"`
	Panels            []dashboard.Panel `json:"panels" yaml:"panels"`
	PadSingleCategory *bool             `json:"pad_single_category" yaml:"pad_single_category"`
	PlaceholderLabel  string            `json:"placeholder_label" yaml:"placeholder_label"`
}

// Load reads configuration from an optional .env file, the YAML config and
// environment variables. Problems are logged and defaults kept unless
// STRICT_CONFIG is set.
func Load(log *zap.Logger) (Config, error) {
	if log == nil {
		log = zap.NewNop()
	}
	_ = godotenv.Load()

	cfg := Config{
		ConfigPath:    getEnv("CONFIG_PATH", defaultConfigPath),
		Source:        SourceCSV,
		Columns:       dataset.DefaultColumns(),
		EnableWatcher: true,
		StrictConfig:  parseBoolEnv("STRICT_CONFIG"),
		Dashboard: DashboardConfig{
			PlaceholderLabel:  dashboard.Overview().PlaceholderLabel,
			PadSingleCategory: true,
		},
	}

	fileCfg, fileErr := loadFileConfig(cfg.ConfigPath)
	if fileErr != nil {
		if cfg.StrictConfig {
			return cfg, fmt.Errorf("config load failed (%s): %w", cfg.ConfigPath, fileErr)
		}
		log.Debug("config file not used, keeping defaults", zap.String("path", cfg.ConfigPath), zap.Error(fileErr))
	}

	cfg.CSVPath = firstNonEmpty(os.Getenv("CSV_PATH"), fileCfg.Data.CSVPath, defaultCSVPath)
	cfg.DBPath = firstNonEmpty(os.Getenv("DB_PATH"), fileCfg.Data.DBPath, defaultDBPath)
	cfg.Source = strings.ToLower(firstNonEmpty(os.Getenv("DATA_SOURCE"), fileCfg.Data.Source, SourceCSV))
	cfg.Columns.Status = firstNonEmpty(os.Getenv("STATUS_COLUMN"), fileCfg.Columns.Status, cfg.Columns.Status)
	cfg.Columns.Parent = firstNonEmpty(os.Getenv("PARENT_COLUMN"), fileCfg.Columns.Parent, cfg.Columns.Parent)
	cfg.LogLevel = strings.ToLower(firstNonEmpty(os.Getenv("LOG_LEVEL"), fileCfg.LogLevel, defaultLogLevel))

	cfg.HTTPPort = firstNonEmpty(os.Getenv("HTTP_PORT"), fileCfg.HTTPPort, defaultPort)
	if legacyPort := os.Getenv("PORT"); legacyPort != "" && cfg.HTTPPort == defaultPort {
		cfg.HTTPPort = legacyPort
	}
	if !strings.HasPrefix(cfg.HTTPPort, ":") && !strings.Contains(cfg.HTTPPort, ":") {
		cfg.HTTPPort = ":" + cfg.HTTPPort
	}

	if fileCfg.EnableWatcher != nil {
		cfg.EnableWatcher = *fileCfg.EnableWatcher
	}
	cfg.EnableWatcher = parseBoolEnvDefault("ENABLE_WATCHER", cfg.EnableWatcher)

	if fileCfg.Dashboard.PadSingleCategory != nil {
		cfg.Dashboard.PadSingleCategory = *fileCfg.Dashboard.PadSingleCategory
	}
	cfg.Dashboard.PadSingleCategory = parseBoolEnvDefault("PAD_SINGLE_CATEGORY", cfg.Dashboard.PadSingleCategory)
	cfg.Dashboard.PlaceholderLabel = firstNonEmpty(
		os.Getenv("PLACEHOLDER_LABEL"),
		fileCfg.Dashboard.PlaceholderLabel,
		cfg.Dashboard.PlaceholderLabel,
	)
	cfg.Dashboard.Views = buildViews(cfg.Dashboard, fileCfg.Dashboard.Views)

	if err := validateConfig(cfg); err != nil {
		if cfg.StrictConfig {
			return cfg, err
		}
		log.Warn("config validation failed, continuing", zap.Error(err))
	}

	log.Debug("config loaded",
		zap.String("source", cfg.Source),
		zap.String("csv", cfg.CSVPath),
		zap.String("db", cfg.DBPath),
		zap.Int("views", len(cfg.Dashboard.Views)),
	)
	return cfg, nil
}

// View returns the named view, falling back to the overview for "".
func (c Config) View(name string) (dashboard.ViewSpec, bool) {
	if name == "" {
		name = dashboard.Overview().Name
	}
	spec, ok := c.Dashboard.Views[name]
	return spec, ok
}

// buildViews layers file-defined views over the built-in overview. Views
// inherit the dashboard padding flag and placeholder label unless they set
// their own.
func buildViews(d DashboardConfig, fromFile []viewFileConfig) map[string]dashboard.ViewSpec {
	overview := dashboard.Overview()
	overview.PadSingleCategory = d.PadSingleCategory
	overview.PlaceholderLabel = d.PlaceholderLabel
	views := map[string]dashboard.ViewSpec{overview.Name: overview}
	for _, fv := range fromFile {
		name := strings.TrimSpace(fv.Name)
		if name == "" {
			continue
		}
		v := dashboard.ViewSpec{
			Name:              name,
			Title:             fv.Title,
			Panels:            fv.Panels,
			PadSingleCategory: d.PadSingleCategory,
			PlaceholderLabel:  firstNonEmpty(fv.PlaceholderLabel, d.PlaceholderLabel),
		}
		if fv.PadSingleCategory != nil {
			v.PadSingleCategory = *fv.PadSingleCategory
		}
		if len(v.Panels) == 0 {
			v.Panels = append([]dashboard.Panel(nil), dashboard.AllPanels...)
		}
		views[name] = v
	}
	return views
}

func loadFileConfig(path string) (fileConfig, error) {
	var cfg fileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if len(data) == 0 {
		return cfg, errors.New("empty config file")
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

func validateConfig(cfg Config) error {
	switch cfg.Source {
	case SourceCSV:
		if strings.TrimSpace(cfg.CSVPath) == "" {
			return errors.New("CSV_PATH is required for the csv source")
		}
	case SourceSQLite:
		if strings.TrimSpace(cfg.DBPath) == "" {
			return errors.New("DB_PATH is required for the sqlite source")
		}
	default:
		return fmt.Errorf("unknown data source %q", cfg.Source)
	}
	for _, v := range cfg.Dashboard.Views {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, val := range values {
		if strings.TrimSpace(val) != "" {
			return strings.TrimSpace(val)
		}
	}
	return ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseBoolEnv(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseBoolEnvDefault(key string, defaultVal bool) bool {
	if strings.TrimSpace(os.Getenv(key)) == "" {
		return defaultVal
	}
	return parseBoolEnv(key)
}
