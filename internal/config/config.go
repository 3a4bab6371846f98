package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Scan     ScanConfig     `mapstructure:"scan"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig holds remote server configuration
type ServerConfig struct {
	URL       string `mapstructure:"url"`        // Base server URL, e.g. https://cloud.example.com
	Username  string `mapstructure:"username"`   // Basic auth user
	Password  string `mapstructure:"password"`   // Basic auth password or app token
	Secret    string `mapstructure:"secret"`     // Optional shared-secret header value
	App       string `mapstructure:"app"`        // Companion server app id
	VerifyTLS bool   `mapstructure:"verify_tls"` // Verify server certificates
}

// ScanConfig holds tree traversal configuration
type ScanConfig struct {
	Root          string        `mapstructure:"root"`           // Scan root, server-relative
	Cooldown      time.Duration `mapstructure:"cooldown"`       // Minimum age before re-scanning an unchanged folder
	Extensions    []string      `mapstructure:"extensions"`     // Recognized video extensions
	IOConcurrency int           `mapstructure:"io_concurrency"` // I/O lane width
}

// PipelineConfig holds fetch/extraction configuration
type PipelineConfig struct {
	ScratchDir    string `mapstructure:"scratch_dir"`     // Temp video/thumbnail directory
	DataDir       string `mapstructure:"data_dir"`        // Cache and history directory
	MaxDownloadMB int64  `mapstructure:"max_download_mb"` // Largest file eligible for a full download
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	File  string `mapstructure:"file"`
	Level string `mapstructure:"level"`
}

// DefaultExtensions is the recognized video extension set (lowercase, with dot).
var DefaultExtensions = []string{
	".mp4", ".mkv", ".avi", ".mov", ".wmv", ".flv",
	".webm", ".m4v", ".mpg", ".mpeg", ".ts",
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			App:       "videothumbs",
			VerifyTLS: true,
		},
		Scan: ScanConfig{
			Root:          "/",
			Cooldown:      24 * time.Hour,
			Extensions:    DefaultExtensions,
			IOConcurrency: 2,
		},
		Pipeline: PipelineConfig{
			ScratchDir:    filepath.Join(os.TempDir(), "stillgrab"),
			DataDir:       defaultDataPath(),
			MaxDownloadMB: 3000,
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
		return filepath.Join(os.Getenv("APPDATA"), "stillgrab", "stillgrab.log")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "stillgrab", "stillgrab.log")
	}
}

// defaultConfigPath returns the default config directory for the current OS
func defaultConfigPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "stillgrab")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "stillgrab")
	}
}

// defaultDataPath returns the default cache/state directory for the current OS
func defaultDataPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("LOCALAPPDATA"), "stillgrab")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "stillgrab")
	}
}

// LoadConfig loads configuration from file and environment
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.AddConfigPath(defaultConfigPath())
		viper.AddConfigPath(".")
	}

	// Environment variable overrides
	viper.SetEnvPrefix("STILLGRAB")
	viper.AutomaticEnv()

	// Read config file if it exists
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

	// Ensure config directory exists
	if err := os.MkdirAll(configPath, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Set fields individually to ensure correct key names (snake_case)
	viper.Set("server.url", cfg.Server.URL)
	viper.Set("server.username", cfg.Server.Username)
	viper.Set("server.password", cfg.Server.Password)
	viper.Set("server.secret", cfg.Server.Secret)
	viper.Set("server.app", cfg.Server.App)
	viper.Set("server.verify_tls", cfg.Server.VerifyTLS)

	viper.Set("scan.root", cfg.Scan.Root)
	viper.Set("scan.cooldown", cfg.Scan.Cooldown.String())
	viper.Set("scan.extensions", cfg.Scan.Extensions)
	viper.Set("scan.io_concurrency", cfg.Scan.IOConcurrency)

	viper.Set("pipeline.scratch_dir", cfg.Pipeline.ScratchDir)
	viper.Set("pipeline.data_dir", cfg.Pipeline.DataDir)
	viper.Set("pipeline.max_download_mb", cfg.Pipeline.MaxDownloadMB)

	viper.Set("logging.file", cfg.Logging.File)
	viper.Set("logging.level", cfg.Logging.Level)

	configFile := filepath.Join(configPath, "config.yaml")
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// IsConfigured returns true if the server URL and credentials are set
func (c *Config) IsConfigured() bool {
	return c.Server.URL != "" && c.Server.Username != "" && c.Server.Password != ""
}
