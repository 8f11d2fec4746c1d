package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config structure represents the application configuration
type Config struct {
	Server struct {
		Port          string        `yaml:"port" env:"SERVER_PORT"`
		Mode          string        `yaml:"mode" env:"SERVER_MODE"`
		UploadsPath   string        `yaml:"uploads_path" env:"UPLOADS_DIR"`
		SessionSecret string        `yaml:"session_secret" env:"SECRET_KEY"`
		SessionTTL    time.Duration `yaml:"session_ttl" env:"SESSION_TTL"`
		CookieSecure  bool          `yaml:"cookie_secure" env:"COOKIE_SECURE"`
	} `yaml:"server"`

	Database struct {
		// URL selects the server backend; leave empty for the local file.
		URL             string        `yaml:"url" env:"DATABASE_URL"`
		Path            string        `yaml:"path" env:"DB_PATH"`
		MaxIdleConns    int           `yaml:"max_idle_conns" env:"DB_MAX_IDLE_CONNS"`
		MaxOpenConns    int           `yaml:"max_open_conns" env:"DB_MAX_OPEN_CONNS"`
		ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"DB_CONN_MAX_LIFETIME"`
	} `yaml:"database"`

	Mirror struct {
		ProblemsCSV string `yaml:"problems_csv" env:"CSV_PATH"`
		StudentsCSV string `yaml:"students_csv" env:"STUDENTS_CSV_PATH"`
	} `yaml:"mirror"`

	SMTP struct {
		Host      string `yaml:"host" env:"SMTP_HOST"`
		Port      int    `yaml:"port" env:"SMTP_PORT"`
		Username  string `yaml:"username" env:"SMTP_USER"`
		Password  string `yaml:"password" env:"SMTP_PASS"`
		FromName  string `yaml:"from_name" env:"SMTP_FROM_NAME"`
		FromEmail string `yaml:"from_email" env:"SMTP_FROM_EMAIL"`
	} `yaml:"smtp"`

	Redis struct {
		// Addr enables the shared OTP store; empty keeps codes in memory.
		Addr     string `yaml:"addr" env:"REDIS_ADDR"`
		Password string `yaml:"password" env:"REDIS_PASSWORD"`
		DB       int    `yaml:"db" env:"REDIS_DB"`
	} `yaml:"redis"`

	OTP struct {
		TTL    time.Duration `yaml:"ttl" env:"OTP_TTL"`
		Length int           `yaml:"length" env:"OTP_LENGTH"`
	} `yaml:"otp"`

	Seed struct {
		AdminID       string `yaml:"admin_id" env:"ADMIN_ID"`
		AdminPassword string `yaml:"admin_password" env:"ADMIN_PASSWORD"`
	} `yaml:"seed"`

	Logging struct {
		Level  string `yaml:"level" env:"LOG_LEVEL"`
		Format string `yaml:"format" env:"LOG_FORMAT"`
	} `yaml:"logging"`
}

// LoadConfig loads configuration from a file and environment variables.
// A .env file next to the working directory is loaded first if present.
func LoadConfig(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	config := &Config{}
	setDefaults(config)

	if _, err := os.Stat(configPath); err == nil {
		file, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(file, config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	// Override with environment variables
	if err := loadFromEnv(config, os.LookupEnv); err != nil {
		return nil, fmt.Errorf("failed to load from environment: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// setDefaults sets default values for the configuration
func setDefaults(config *Config) {
	// Server defaults
	config.Server.Port = "8080"
	config.Server.Mode = "development"
	config.Server.UploadsPath = "uploads"
	config.Server.SessionTTL = 12 * time.Hour

	// Database defaults
	config.Database.Path = "instance/portal.db"
	config.Database.MaxIdleConns = 5
	config.Database.MaxOpenConns = 20
	config.Database.ConnMaxLifetime = time.Hour

	// Mirror defaults
	config.Mirror.ProblemsCSV = "problems.csv"
	config.Mirror.StudentsCSV = "students.csv"

	// SMTP defaults
	config.SMTP.Host = "smtp.gmail.com"
	config.SMTP.Port = 587
	config.SMTP.FromName = "Problem Portal"

	// OTP defaults
	config.OTP.TTL = 5 * time.Minute
	config.OTP.Length = 6

	// Seed defaults
	config.Seed.AdminID = "admin"

	// Logging defaults
	config.Logging.Level = "info"
	config.Logging.Format = "json"
}

// validateConfig ensures that the configuration is valid
func validateConfig(config *Config) error {
	if config.Database.URL == "" && config.Database.Path == "" {
		return fmt.Errorf("either database url or database path is required")
	}

	if config.Server.UploadsPath == "" {
		return fmt.Errorf("uploads path is required")
	}

	if config.Server.SessionSecret == "" {
		return fmt.Errorf("session secret is required")
	}

	if config.OTP.Length < 4 || config.OTP.Length > 10 {
		return fmt.Errorf("otp length must be between 4 and 10, got %d", config.OTP.Length)
	}

	if config.OTP.TTL <= 0 {
		return fmt.Errorf("otp ttl must be positive")
	}

	return nil
}

// SMTPFromEmail returns the sender address, falling back to the SMTP user.
func (c *Config) SMTPFromEmail() string {
	if c.SMTP.FromEmail != "" {
		return c.SMTP.FromEmail
	}
	return c.SMTP.Username
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Server.Mode, "production")
}

// GetEnv gets an environment variable or returns a default value
func GetEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
