// Package config loads mstore settings from JSONC files and flags.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/tailscale/hujson"

	"github.com/calvinalkan/modelstore/pkg/modelstore"
)

// Error variables for config loading.
var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrConfigFileRead     = errors.New("cannot read config file")
	ErrConfigInvalid      = errors.New("invalid config file")
	ErrRootEmpty          = errors.New("root cannot be empty")
)

// FileName is the project config file name.
const FileName = ".mstore.json"

// Config holds all configuration options.
type Config struct {
	// From config files (serialized)
	Root         string `json:"root"`
	MediaDir     string `json:"media_dir,omitempty"`
	MediaMounted bool   `json:"media_mounted,omitempty"` // media_dir is a mount point
	ExportDir    string `json:"export_dir,omitempty"`
	Slots        int    `json:"slots,omitempty"`
	SettingsSize int    `json:"settings_size,omitempty"`
	ModelSize    int    `json:"model_size,omitempty"`
	HeaderSize   int    `json:"header_size,omitempty"`
	NameSize     int    `json:"name_size,omitempty"`
	LogLevel     string `json:"log_level,omitempty"`

	// Resolved paths (computed, not serialized)
	EffectiveCwd string `json:"-"`
	RootAbs      string `json:"-"`
	MediaDirAbs  string `json:"-"` // empty when no media is configured

	// Sources tracks which config files were loaded (for diagnostics)
	Sources Sources `json:"-"`
}

// Sources tracks which config files were loaded.
type Sources struct {
	Global  string
	Project string
}

// Default returns the default configuration.
func Default() Config {
	l := modelstore.DefaultLayout()

	return Config{
		Root:         "eeprom",
		ExportDir:    modelstore.DefaultExportDir,
		Slots:        l.Slots,
		SettingsSize: l.SettingsSize,
		ModelSize:    l.ModelSize,
		HeaderSize:   l.HeaderSize,
		NameSize:     l.NameSize,
		LogLevel:     "warning",
	}
}

// Layout returns the record geometry described by c.
func (c Config) Layout() modelstore.Layout {
	return modelstore.Layout{
		Slots:        c.Slots,
		SettingsSize: c.SettingsSize,
		ModelSize:    c.ModelSize,
		HeaderSize:   c.HeaderSize,
		NameSize:     c.NameSize,
	}
}

// Level returns the parsed log level. Load has already validated it.
func (c Config) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.WarnLevel
	}

	return lvl
}

// globalPath returns $XDG_CONFIG_HOME/mstore/config.json, falling back to
// ~/.config/mstore/config.json. Empty if neither variable is set.
func globalPath(env map[string]string) string {
	if xdg := env["XDG_CONFIG_HOME"]; xdg != "" {
		return filepath.Join(xdg, "mstore", "config.json")
	}

	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", "mstore", "config.json")
	}

	return ""
}

// LoadInput holds the inputs for Load.
type LoadInput struct {
	WorkDir    string            // -C flag value; if empty, os.Getwd() is used
	ConfigPath string            // -c flag value
	Overrides  Config            // flag values; zero fields do not override
	Env        map[string]string // environment variables
}

// Load resolves configuration with the following precedence (highest wins):
// 1. Defaults
// 2. Global user config
// 3. Project config (.mstore.json in the working directory, if present)
// 4. Explicit config file via ConfigPath
// 5. Flag overrides.
//
// Root and MediaDir are resolved against the working directory.
func Load(input LoadInput) (Config, error) {
	workDir := input.WorkDir
	if workDir == "" {
		var err error

		workDir, err = os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("cannot get working directory: %w", err)
		}
	}

	cfg := Default()

	if path := globalPath(input.Env); path != "" {
		fileCfg, loaded, err := loadFile(path, false)
		if err != nil {
			return Config{}, err
		}

		if loaded {
			cfg.Sources.Global = path
			cfg = merge(cfg, fileCfg)
		}
	}

	projectPath, mustExist := filepath.Join(workDir, FileName), false
	if input.ConfigPath != "" {
		projectPath, mustExist = input.ConfigPath, true
		if !filepath.IsAbs(projectPath) {
			projectPath = filepath.Join(workDir, projectPath)
		}
	}

	fileCfg, loaded, err := loadFile(projectPath, mustExist)
	if err != nil {
		return Config{}, err
	}

	if loaded {
		cfg.Sources.Project = projectPath
		cfg = merge(cfg, fileCfg)
	}

	cfg = merge(cfg, input.Overrides)

	err = validate(cfg)
	if err != nil {
		return Config{}, err
	}

	cfg.EffectiveCwd = workDir
	cfg.RootAbs = absFrom(workDir, cfg.Root)

	if cfg.MediaDir != "" {
		cfg.MediaDirAbs = absFrom(workDir, cfg.MediaDir)
	}

	return cfg, nil
}

func absFrom(dir, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}

	return filepath.Join(dir, path)
}

// loadFile reads a config file. A missing optional file is not an error.
func loadFile(path string, mustExist bool) (Config, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if mustExist {
				return Config{}, false, fmt.Errorf("%w: %s", ErrConfigFileNotFound, path)
			}

			return Config{}, false, nil
		}

		return Config{}, false, fmt.Errorf("%w %s: %w", ErrConfigFileRead, path, err)
	}

	cfg, err := parse(data)
	if err != nil {
		return Config{}, false, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, err)
	}

	return cfg, true, nil
}

func parse(data []byte) (Config, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var cfg Config

	err = json.Unmarshal(standardized, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSON: %w", err)
	}

	// An explicit "root": "" is an error rather than "keep the default".
	var raw map[string]any

	_ = json.Unmarshal(standardized, &raw)

	if val, ok := raw["root"]; ok {
		if str, isStr := val.(string); isStr && str == "" {
			return Config{}, ErrRootEmpty
		}
	}

	return cfg, nil
}

func merge(base, overlay Config) Config {
	if overlay.Root != "" {
		base.Root = overlay.Root
	}

	if overlay.MediaDir != "" {
		base.MediaDir = overlay.MediaDir
	}

	if overlay.MediaMounted {
		base.MediaMounted = true
	}

	if overlay.ExportDir != "" {
		base.ExportDir = overlay.ExportDir
	}

	if overlay.Slots != 0 {
		base.Slots = overlay.Slots
	}

	if overlay.SettingsSize != 0 {
		base.SettingsSize = overlay.SettingsSize
	}

	if overlay.ModelSize != 0 {
		base.ModelSize = overlay.ModelSize
	}

	if overlay.HeaderSize != 0 {
		base.HeaderSize = overlay.HeaderSize
	}

	if overlay.NameSize != 0 {
		base.NameSize = overlay.NameSize
	}

	if overlay.LogLevel != "" {
		base.LogLevel = overlay.LogLevel
	}

	return base
}

func validate(cfg Config) error {
	if cfg.Root == "" {
		return ErrRootEmpty
	}

	err := cfg.Layout().Validate()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfigInvalid, err)
	}

	_, err = logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("%w: log_level: %w", ErrConfigInvalid, err)
	}

	return nil
}
