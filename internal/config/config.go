package config

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/movieservice/auth-service/internal/oauth"
	"github.com/movieservice/auth-service/internal/storage"
	"github.com/movieservice/auth-service/pkg/logger"
)

// Config holds application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Session  SessionConfig
	Redis    RedisConfig
	JWT      JWTConfig
	OAuth    OAuthConfig
	AMQP     AMQPConfig
	MinIO    storage.MinIOConfig
	LogLevel string
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	APIPrefix    string
	FrontendURL  string
	CookieSecure bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	Driver      string
	URL         string
	Name        string
	AutoMigrate bool
	Timeout     time.Duration
}

type SessionConfig struct {
	Backend string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

func (r RedisConfig) Addr() string { return r.Host + ":" + r.Port }

type JWTConfig struct {
	Secret          string
	Algorithm       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	BcryptCost      int
}

// OAuthConfig is read with caarlos0/env: KAKAO_CLIENT_ID, GOOGLE_REDIRECT_URI, ...
type OAuthConfig struct {
	Kakao  oauth.Config `envPrefix:"KAKAO_"`
	Google oauth.Config `envPrefix:"GOOGLE_"`
}

type AMQPConfig struct {
	URL   string
	Queue string
}

func setDefaults() {
	viper.SetDefault("SERVER_PORT", "8000")
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_ENVIRONMENT", "development")
	viper.SetDefault("API_V1_STR", "/api/v1")
	viper.SetDefault("FRONTEND_URL", "http://localhost:3000")
	viper.SetDefault("COOKIE_SECURE", false)
	viper.SetDefault("DATABASE_DRIVER", "postgres")
	viper.SetDefault("DATABASE_NAME", "auth")
	viper.SetDefault("DATABASE_AUTO_MIGRATE", true)
	viper.SetDefault("DATABASE_TIMEOUT", 10)
	viper.SetDefault("SESSION_BACKEND", "redis")
	viper.SetDefault("REDIS_HOST", "localhost")
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("ALGORITHM", "HS256")
	// 60 minutes * 24 hours * 8 days
	viper.SetDefault("ACCESS_TOKEN_EXPIRE_MINUTES", 60*24*8)
	viper.SetDefault("REFRESH_TOKEN_EXPIRE_DAYS", 30)
	viper.SetDefault("BCRYPT_COST", 10)
	viper.SetDefault("AMQP_QUEUE", "auth.accounts")
	viper.SetDefault("MINIO_BUCKET", "avatars")
	viper.SetDefault("LOG_LEVEL", "info")
}

// LoadConfig loads configuration from environment variables and an optional .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	viper.AutomaticEnv()
	setDefaults()

	cfg := &Config{
		Server: ServerConfig{
			Port:         viper.GetString("SERVER_PORT"),
			Host:         viper.GetString("SERVER_HOST"),
			Environment:  viper.GetString("SERVER_ENVIRONMENT"),
			APIPrefix:    viper.GetString("API_V1_STR"),
			FrontendURL:  strings.TrimRight(viper.GetString("FRONTEND_URL"), "/"),
			CookieSecure: viper.GetBool("COOKIE_SECURE"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:      strings.ToLower(viper.GetString("DATABASE_DRIVER")),
			URL:         viper.GetString("DATABASE_URL"),
			Name:        viper.GetString("DATABASE_NAME"),
			AutoMigrate: viper.GetBool("DATABASE_AUTO_MIGRATE"),
			Timeout:     time.Duration(viper.GetInt("DATABASE_TIMEOUT")) * time.Second,
		},
		Session: SessionConfig{
			Backend: strings.ToLower(viper.GetString("SESSION_BACKEND")),
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: viper.GetString("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
		},
		JWT: JWTConfig{
			Secret:          viper.GetString("SECRET_KEY"),
			Algorithm:       strings.ToUpper(viper.GetString("ALGORITHM")),
			AccessTokenTTL:  time.Duration(viper.GetInt("ACCESS_TOKEN_EXPIRE_MINUTES")) * time.Minute,
			RefreshTokenTTL: time.Duration(viper.GetInt("REFRESH_TOKEN_EXPIRE_DAYS")) * 24 * time.Hour,
			BcryptCost:      viper.GetInt("BCRYPT_COST"),
		},
		AMQP: AMQPConfig{
			URL:   viper.GetString("AMQP_URL"),
			Queue: viper.GetString("AMQP_QUEUE"),
		},
		MinIO: storage.MinIOConfig{
			Endpoint:  viper.GetString("MINIO_ENDPOINT"),
			AccessKey: viper.GetString("MINIO_ACCESS_KEY"),
			SecretKey: viper.GetString("MINIO_SECRET_KEY"),
			UseSSL:    viper.GetBool("MINIO_USE_SSL"),
			Bucket:    viper.GetString("MINIO_BUCKET"),
			PublicURL: viper.GetString("MINIO_PUBLIC_URL"),
		},
		LogLevel: viper.GetString("LOG_LEVEL"),
	}

	if err := env.Parse(&cfg.OAuth); err != nil {
		return nil, fmt.Errorf("parse oauth config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.JWT.Algorithm != "HS256" {
		return fmt.Errorf("unsupported ALGORITHM %q: only HS256 is supported", c.JWT.Algorithm)
	}
	if c.JWT.AccessTokenTTL <= 0 || c.JWT.RefreshTokenTTL <= 0 {
		return fmt.Errorf("token lifetimes must be positive")
	}
	switch c.Database.Driver {
	case "postgres", "mysql", "sqlite", "mongo", "memory":
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q", c.Database.Driver)
	}
	if c.Database.Driver != "memory" && c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required for driver %s", c.Database.Driver)
	}
	switch c.Session.Backend {
	case "redis":
	case "mongo":
		if c.Database.Driver != "mongo" {
			return fmt.Errorf("SESSION_BACKEND=mongo requires DATABASE_DRIVER=mongo")
		}
	default:
		return fmt.Errorf("unsupported SESSION_BACKEND %q", c.Session.Backend)
	}
	if c.JWT.Secret == "" {
		if c.Server.Environment != "development" {
			return fmt.Errorf("SECRET_KEY is required outside development")
		}
		secret, err := randomSecret()
		if err != nil {
			return err
		}
		c.JWT.Secret = secret
		logger.Warnf("SECRET_KEY is not set; using a random key, tokens will not survive a restart")
	}
	return nil
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
