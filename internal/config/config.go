package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	// Server configuration
	ServerPort  string `mapstructure:"PORT"`
	CursorPort  string `mapstructure:"CURSOR_PORT"`
	GRPCPort    string `mapstructure:"GRPC_PORT"`
	Environment string `mapstructure:"ENV"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`
	ClientURL   string `mapstructure:"CLIENT_URL"`

	// Database configuration
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBHost      string `mapstructure:"DB_HOST"`
	DBPort      string `mapstructure:"DB_PORT"`
	DBUser      string `mapstructure:"DB_USER"`
	DBPassword  string `mapstructure:"DB_PASSWORD"`
	DBName      string `mapstructure:"DB_NAME"`

	// Redis configuration
	RedisAddress string `mapstructure:"REDIS_ADDRESS"`

	// Auth configuration
	JWTSecret  string        `mapstructure:"JWT_SECRET"`
	SessionTTL time.Duration `mapstructure:"SESSION_TTL"`

	// GitHub integration
	GithubClientID     string `mapstructure:"GITHUB_CLIENT_ID"`
	GithubClientSecret string `mapstructure:"GITHUB_CLIENT_SECRET"`
	GithubAPIURL       string `mapstructure:"GITHUB_API_URL"`
	GithubOAuthURL     string `mapstructure:"GITHUB_OAUTH_URL"`
	MirrorDir          string `mapstructure:"MIRROR_DIR"`

	// Avatar storage
	MinioEndpoint  string `mapstructure:"MINIO_ENDPOINT"`
	MinioAccessKey string `mapstructure:"MINIO_ACCESS_KEY"`
	MinioSecretKey string `mapstructure:"MINIO_SECRET_KEY"`
	MinioBucket    string `mapstructure:"MINIO_BUCKET"`
	MinioUseSSL    bool   `mapstructure:"MINIO_USE_SSL"`
	MinioPublicURL string `mapstructure:"MINIO_PUBLIC_URL"`

	WorkerPoolSize   int           `mapstructure:"WORKER_POOL_SIZE"`
	AutosaveDebounce time.Duration `mapstructure:"AUTOSAVE_DEBOUNCE"`
}

var defaults = map[string]any{
	"PORT":              "8080",
	"ENV":               "development",
	"LOG_LEVEL":         "info",
	"CLIENT_URL":        "http://localhost:3000",
	"DB_HOST":           "localhost",
	"DB_PORT":           "5432",
	"DB_USER":           "postgres",
	"DB_PASSWORD":       "postgres",
	"DB_NAME":           "devunity",
	"REDIS_ADDRESS":     "localhost:6379",
	"SESSION_TTL":       "168h",
	"GITHUB_API_URL":    "https://api.github.com",
	"GITHUB_OAUTH_URL":  "https://github.com",
	"MIRROR_DIR":        "./mirrors",
	"MINIO_BUCKET":      "avatars",
	"WORKER_POOL_SIZE":  4,
	"AUTOSAVE_DEBOUNCE": "1500ms",
}

// keys without a default still need binding so Unmarshal sees them
var optionalKeys = []string{
	"CURSOR_PORT", "GRPC_PORT", "DATABASE_URL", "JWT_SECRET",
	"GITHUB_CLIENT_ID", "GITHUB_CLIENT_SECRET",
	"MINIO_ENDPOINT", "MINIO_ACCESS_KEY", "MINIO_SECRET_KEY", "MINIO_USE_SSL", "MINIO_PUBLIC_URL",
}

// Load loads configuration from the .env file (when present) and environment variables
func Load() (*Config, error) {
	// Find .env file
	envPath := ".env"
	if _, err := os.Stat(envPath); os.IsNotExist(err) {
		// Try to find .env in parent directories
		envPath = filepath.Join("..", ".env")
		if _, err := os.Stat(envPath); os.IsNotExist(err) {
			envPath = filepath.Join("..", "..", ".env")
		}
	}

	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return nil, fmt.Errorf("load %s: %w", envPath, err)
		}
	}

	v := viper.New()
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	for _, key := range optionalKeys {
		_ = v.BindEnv(key)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if cfg.JWTSecret == "" {
		cfg.JWTSecret = generateRandomSecret(32)
		log.Println("JWT_SECRET not set, generated a random secret; sessions will not survive a restart")
	}
	if cfg.WorkerPoolSize < 1 {
		cfg.WorkerPoolSize = 1
	}

	return &cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// DSN returns the postgres connection string
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("host=%v user=%v password=%v dbname=%v port=%v sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

// String masks secrets so the config can be logged at startup
func (c *Config) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "env=%s port=%s cursor_port=%s grpc_port=%s client_url=%s ",
		c.Environment, c.ServerPort, c.CursorPort, c.GRPCPort, c.ClientURL)
	if c.DatabaseURL != "" {
		sb.WriteString("db=DATABASE_URL(********) ")
	} else {
		fmt.Fprintf(&sb, "db=%s@%s:%s/%s ", c.DBUser, c.DBHost, c.DBPort, c.DBName)
	}
	fmt.Fprintf(&sb, "redis=%s mirror_dir=%s github_api=%s github_client=%s minio=%s",
		c.RedisAddress, c.MirrorDir, c.GithubAPIURL, mask(c.GithubClientID), c.MinioEndpoint)
	return sb.String()
}

func mask(s string) string {
	if s == "" {
		return "(empty)"
	}
	return "********"
}

// generateRandomSecret generates a random hex secret of length bytes
func generateRandomSecret(length int) string {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}
	return hex.EncodeToString(b)
}
