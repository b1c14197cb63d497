// Package config loads the process configuration once at startup. The loaded
// struct is passed by injection; nothing reads the environment after boot.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// Config holds every runtime setting of the server.
type Config struct {
	Environment string
	Port        string
	LogLevel    string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	RedisAddr     string
	RedisPassword string

	KeyPairPath          string
	JWTExpirationDays    int
	ResetTokenExpiration time.Duration
	ResetTokenMaxActive  int
	DisplayNameCooldown  time.Duration

	MailgunAPIKey string
	MailgunDomain string

	ModerationURL         string
	ProfilePictureBaseURL string
}

const envFile = ".env"

// Load reads the .env file if present and builds the configuration from the
// environment. Database settings are mandatory, everything else has defaults.
func Load() (*Config, error) {
	if err := godotenv.Load(envFile); err != nil {
		log.Info("No .env file found, using environment variables from system")
	} else {
		log.Info("Loaded environment variables from .env file")
	}

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Port:        getEnv("PORT", "8080"),
		LogLevel:    getEnv("LOG_LEVEL", "INFO"),

		DBHost:     os.Getenv("DB_HOST"),
		DBPort:     os.Getenv("DB_PORT"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASS"),
		DBName:     os.Getenv("DB_NAME"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASS"),

		KeyPairPath:          getEnv("KEY_PAIR_PATH", "keypair.bin"),
		JWTExpirationDays:    getEnvInt("JWT_EXPIRATION_DAYS", 7),
		ResetTokenExpiration: time.Duration(getEnvInt("RPT_EXPIRATION_MINUTES", 5)) * time.Minute,
		ResetTokenMaxActive:  getEnvInt("RPT_MAX_ACTIVE", 5),
		DisplayNameCooldown:  time.Duration(getEnvInt("DISPLAY_NAME_CHANGE_DAYS", 30)) * 24 * time.Hour,

		MailgunAPIKey: os.Getenv("MAILGUN_API_KEY"),
		MailgunDomain: getEnv("MAILGUN_DOMAIN", "mail.kithnet.app"),

		ModerationURL:         os.Getenv("MODERATION_URL"),
		ProfilePictureBaseURL: getEnv("PROFILE_PICTURE_BASE_URL", "/static/profile-pictures/"),
	}

	if cfg.DBHost == "" || cfg.DBPort == "" || cfg.DBUser == "" || cfg.DBPassword == "" || cfg.DBName == "" {
		return nil, fmt.Errorf("database environment variables not set")
	}

	return cfg, nil
}

// DatabaseDSN returns the connection string for pgx and the migration runner.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName)
}

// IsProduction reports whether the server runs with production behavior
// (outbound mail, secure cookies, remote moderation).
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		log.Warnf("Invalid value for %s, falling back to %d", key, fallback)
		return fallback
	}
	return parsed
}
