package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig
	Log      LogConfig
	Relation RelationConfig
	Cache    CacheConfig
	Database DatabaseConfig
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host        string
	Port        int
	MetricsPort int // Port for Prometheus metrics HTTP server
}

// LogConfig represents logger configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json (production encoder) or console (development encoder)
}

// RelationConfig represents relation resolution settings
type RelationConfig struct {
	DatasetPath string // YAML dataset with collections and declarations
	Inflector   string // simple or english
}

// CacheConfig represents relation cache configuration
type CacheConfig struct {
	Enabled    bool
	MaxEntries int // 0 = unbounded
	Metrics    bool
}

// DatabaseConfig represents the optional PostgreSQL record source
type DatabaseConfig struct {
	Enabled       bool
	Host          string
	Port          int
	User          string
	Password      string
	Database      string
	SSLMode       string
	NotifyChannel string // LISTEN channel carrying changed table names
}

// findProjectRoot finds the project root directory by looking for go.mod
func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	// Walk up the directory tree until we find go.mod
	for {
		goModPath := filepath.Join(dir, "go.mod")
		if _, err := os.Stat(goModPath); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached the root directory
			return "", fmt.Errorf("go.mod not found in any parent directory")
		}
		dir = parent
	}
}

// InitConfig initializes viper configuration
// env: environment name (dev, test, prod)
func InitConfig(env string) error {
	if env == "" {
		env = "dev"
	}

	// Config files are looked up in the project root when there is one,
	// and in the working directory otherwise.
	viper.SetConfigName(fmt.Sprintf(".env.%s", env))
	viper.SetConfigType("env")
	if projectRoot, err := findProjectRoot(); err == nil {
		viper.AddConfigPath(projectRoot)
	}
	viper.AddConfigPath(".")

	// Read config file (optional, ignore error if not found)
	_ = viper.ReadInConfig()

	// Environment variables take precedence over config file
	viper.AutomaticEnv()

	// Set default values
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_PORT", 50061)
	viper.SetDefault("METRICS_PORT", 9091)
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_FORMAT", "json")

	viper.SetDefault("DATASET_PATH", "dataset.yaml")
	viper.SetDefault("INFLECTOR", "simple")

	// Cache defaults
	viper.SetDefault("CACHE_ENABLED", true)
	viper.SetDefault("CACHE_MAX_ENTRIES", 0)
	viper.SetDefault("CACHE_METRICS", true)

	// Database defaults (record source is optional)
	viper.SetDefault("DB_ENABLED", false)
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", 15432)
	viper.SetDefault("DB_USER", "relata")
	viper.SetDefault("DB_NAME", "relata_dev")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("DB_NOTIFY_CHANNEL", "relata_changed")

	return nil
}

// Load loads configuration from viper
func Load() (*Config, error) {
	dbEnabled := viper.GetBool("DB_ENABLED")
	dbPassword := viper.GetString("DB_PASSWORD")
	if dbEnabled && dbPassword == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required when DB_ENABLED is set (set via environment variable or .env file)")
	}

	maxEntries := viper.GetInt("CACHE_MAX_ENTRIES")
	if maxEntries < 0 {
		return nil, fmt.Errorf("CACHE_MAX_ENTRIES must not be negative, got %d", maxEntries)
	}

	config := &Config{
		Server: ServerConfig{
			Host:        viper.GetString("SERVER_HOST"),
			Port:        viper.GetInt("SERVER_PORT"),
			MetricsPort: viper.GetInt("METRICS_PORT"),
		},
		Log: LogConfig{
			Level:  viper.GetString("LOG_LEVEL"),
			Format: viper.GetString("LOG_FORMAT"),
		},
		Relation: RelationConfig{
			DatasetPath: viper.GetString("DATASET_PATH"),
			Inflector:   viper.GetString("INFLECTOR"),
		},
		Cache: CacheConfig{
			Enabled:    viper.GetBool("CACHE_ENABLED"),
			MaxEntries: maxEntries,
			Metrics:    viper.GetBool("CACHE_METRICS"),
		},
		Database: DatabaseConfig{
			Enabled:       dbEnabled,
			Host:          viper.GetString("DB_HOST"),
			Port:          viper.GetInt("DB_PORT"),
			User:          viper.GetString("DB_USER"),
			Password:      dbPassword,
			Database:      viper.GetString("DB_NAME"),
			SSLMode:       viper.GetString("DB_SSLMODE"),
			NotifyChannel: viper.GetString("DB_NOTIFY_CHANNEL"),
		},
	}

	return config, nil
}

// ConnectionString returns PostgreSQL connection string
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Database,
		c.SSLMode,
	)
}
