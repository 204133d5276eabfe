package adapter

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/viper"

	"github.com/kathaverse/katha/internal/domain"
)

// Config holds all application configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Reader  ReaderConfig  `mapstructure:"reader"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig holds the story service connection settings
type ServerConfig struct {
	URL      string `mapstructure:"url"`      // Katha server URL
	Token    string `mapstructure:"token"`    // Session token, empty for guests
	Username string `mapstructure:"username"` // Display only
}

// ReaderConfig holds startup reading settings; the live preferences are
// owned by the reconciler, these only seed a fresh install.
type ReaderConfig struct {
	Language domain.Language `mapstructure:"language"`
	Mode     domain.Audience `mapstructure:"mode"`
}

// CacheConfig holds the local persistence locations
type CacheConfig struct {
	Dir string `mapstructure:"dir"` // Store + offline cache directory
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	File  string `mapstructure:"file"`
	Level string `mapstructure:"level"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			URL: "https://api.katha.example.com",
		},
		Reader: ReaderConfig{
			Language: domain.LanguageEnglish,
			Mode:     domain.AudienceKids,
		},
		Cache: CacheConfig{
			Dir: defaultCachePath(),
		},
		Logging: LoggingConfig{
			File:  defaultLogPath(),
			Level: "INFO",
		},
	}
}

// defaultLogPath returns the default log file path for the current OS
func defaultLogPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "katha", "katha.log")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "katha", "katha.log")
	}
}

// defaultConfigPath returns the default config directory for the current OS
func defaultConfigPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "katha")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "katha")
	}
}

// defaultCachePath returns the default cache directory for the current OS
func defaultCachePath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("LOCALAPPDATA"), "katha", "cache")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "katha", "cache")
	}
}

// LoadConfig loads configuration from file and environment
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(defaultConfigPath())
	viper.AddConfigPath(".")

	// Environment variable overrides
	viper.SetEnvPrefix("KATHA")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the current configuration to file
func SaveConfig(cfg *Config) error {
	configPath := defaultConfigPath()
	if err := os.MkdirAll(configPath, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	viper.Set("server.url", cfg.Server.URL)
	viper.Set("server.token", cfg.Server.Token)
	viper.Set("server.username", cfg.Server.Username)

	viper.Set("reader.language", string(cfg.Reader.Language))
	viper.Set("reader.mode", string(cfg.Reader.Mode))

	viper.Set("cache.dir", cfg.Cache.Dir)

	viper.Set("logging.file", cfg.Logging.File)
	viper.Set("logging.level", cfg.Logging.Level)

	configFile := filepath.Join(configPath, "config.yaml")
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ClearToken removes the saved session credentials while preserving the
// rest of the configuration.
func ClearToken() error {
	viper.Set("server.token", "")
	viper.Set("server.username", "")

	configPath := defaultConfigPath()
	if err := os.MkdirAll(configPath, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configFile := filepath.Join(configPath, "config.yaml")
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// IsAuthenticated reports whether a session token is saved
func (c *Config) IsAuthenticated() bool {
	return c.Server.Token != ""
}
