// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package config loads the TOML configuration file with environment variable
// overrides and creates a default config on first run.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/robogeeko/OmniReadarr/internal/domain"
)

// EnvPrefix prefixes every environment override, e.g.
// OMNIREADARR__SABNZBD_API_KEY overrides sabnzbdApiKey.
const EnvPrefix = "OMNIREADARR__"

// AppConfig wraps the loaded domain configuration.
type AppConfig struct {
	Config *domain.Config

	viper      *viper.Viper
	configPath string
}

// New loads configuration from configPath (a file or a directory holding
// config.toml). An empty configPath uses the default config directory; a
// missing file is created with defaults.
func New(configPath, version string) (*AppConfig, error) {
	c := &AppConfig{
		Config: &domain.Config{Version: version},
		viper:  viper.New(),
	}

	if err := c.load(configPath); err != nil {
		return nil, err
	}
	if err := c.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return c, nil
}

func defaultConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve user config directory: %w", err)
	}
	return filepath.Join(base, "omnireadarr"), nil
}

func (c *AppConfig) defaults() {
	c.viper.SetDefault("host", "localhost")
	c.viper.SetDefault("port", 7575)
	c.viper.SetDefault("logLevel", "INFO")
	c.viper.SetDefault("logPath", "")
	c.viper.SetDefault("logMaxSize", 50)
	c.viper.SetDefault("logMaxBackups", 3)
	c.viper.SetDefault("dataDir", "")
	c.viper.SetDefault("metricsEnabled", false)

	c.viper.SetDefault("prowlarrHost", "")
	c.viper.SetDefault("prowlarrApiKey", "")
	c.viper.SetDefault("prowlarrTimeoutSeconds", 30)

	c.viper.SetDefault("sabnzbdHost", "")
	c.viper.SetDefault("sabnzbdApiKey", "")
	c.viper.SetDefault("sabnzbdCategory", "books")
	c.viper.SetDefault("sabnzbdTimeoutSeconds", 30)

	c.viper.SetDefault("searchVariantOrder", domain.VariantOrderIdentifierFirst)
	c.viper.SetDefault("searchCategory", 0)
	c.viper.SetDefault("searchMaxResults", 50)

	c.viper.SetDefault("completedDownloadsPath", "")
	c.viper.SetDefault("libraryPath", "")
	c.viper.SetDefault("ebookConvertPath", "")
	c.viper.SetDefault("convertTimeoutSeconds", 300)
	c.viper.SetDefault("coverFetchTimeoutSeconds", 30)
	c.viper.SetDefault("historyLookbackLimit", 50)
}

func (c *AppConfig) load(configPath string) error {
	c.viper.SetConfigType("toml")
	c.defaults()

	if configPath == "" {
		dir, err := defaultConfigDir()
		if err != nil {
			return err
		}
		configPath = dir
	}

	info, err := os.Stat(configPath)
	switch {
	case err == nil && info.IsDir():
		c.configPath = filepath.Join(configPath, "config.toml")
	case err == nil:
		c.configPath = configPath
	case os.IsNotExist(err) && filepath.Ext(configPath) == "":
		c.configPath = filepath.Join(configPath, "config.toml")
	case os.IsNotExist(err):
		c.configPath = configPath
	default:
		return fmt.Errorf("failed to stat config path %s: %w", configPath, err)
	}

	if _, err := os.Stat(c.configPath); os.IsNotExist(err) {
		if err := c.writeDefault(); err != nil {
			return err
		}
	}

	c.viper.SetConfigFile(c.configPath)
	if err := c.viper.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config %s: %w", c.configPath, err)
	}

	c.bindEnv()

	if err := c.viper.Unmarshal(c.Config); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if c.Config.DataDir == "" {
		c.Config.DataDir = filepath.Dir(c.configPath)
	}

	log.Debug().Str("path", c.configPath).Msg("Configuration loaded")

	return nil
}

// configKeys lists every supported key in its canonical camelCase form.
// Viper lowercases AllKeys, so env binding needs the originals.
var configKeys = []string{
	"host", "port", "logLevel", "logPath", "logMaxSize", "logMaxBackups",
	"dataDir", "metricsEnabled",
	"prowlarrHost", "prowlarrApiKey", "prowlarrTimeoutSeconds",
	"sabnzbdHost", "sabnzbdApiKey", "sabnzbdCategory", "sabnzbdTimeoutSeconds",
	"searchVariantOrder", "searchCategory", "searchMaxResults",
	"completedDownloadsPath", "libraryPath", "ebookConvertPath",
	"convertTimeoutSeconds", "coverFetchTimeoutSeconds", "historyLookbackLimit",
}

// bindEnv maps OMNIREADARR__SNAKE_CASE variables onto camelCase config keys.
func (c *AppConfig) bindEnv() {
	for _, key := range configKeys {
		env := EnvPrefix + camelToUpperSnake(key)
		if err := c.viper.BindEnv(key, env); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Failed to bind environment variable")
		}
	}
}

func camelToUpperSnake(key string) string {
	var b strings.Builder
	for i, r := range key {
		if r >= 'A' && r <= 'Z' && i > 0 {
			b.WriteByte('_')
		}
		b.WriteRune(r)
	}
	return strings.ToUpper(b.String())
}

func (c *AppConfig) writeDefault() error {
	if err := os.MkdirAll(filepath.Dir(c.configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := c.viper.WriteConfigAs(c.configPath); err != nil {
		return fmt.Errorf("failed to write default config: %w", err)
	}

	log.Info().Str("path", c.configPath).Msg("Created default configuration file")

	return nil
}

// ConfigPath returns the resolved config file location.
func (c *AppConfig) ConfigPath() string {
	return c.configPath
}

// DatabasePath returns the SQLite file location inside the data directory.
func (c *AppConfig) DatabasePath() string {
	return filepath.Join(c.Config.DataDir, "omnireadarr.db")
}
