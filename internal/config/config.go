// Package config loads service settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jason-s-yu/ohhell/engine"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds every setting the binaries need.
type Config struct {
	ListenAddr string

	DatabaseURL   string // empty disables the remote store
	RedisAddr     string // empty disables the action log and leaderboard
	RedisPassword string
	SQLitePath    string

	JWTSecret           string
	AdminPasswordHash   string
	LimitedPasswordHash string
	TokenTTL            time.Duration

	Rules engine.Rules

	LogLevel  logrus.Level
	LogFormat string
}

// Load reads an optional .env file (or the given files) and then the process
// environment. Variables already set in the environment win over the file.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err == nil {
			if err := godotenv.Load(f); err != nil {
				return nil, fmt.Errorf("load %s: %w", f, err)
			}
		}
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function, usually os.Getenv.
func FromEnv(getenv func(string) string) (*Config, error) {
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	cfg := &Config{
		ListenAddr:          get("LISTEN_ADDR", ":8080"),
		DatabaseURL:         get("DATABASE_URL", ""),
		RedisAddr:           get("REDIS_ADDR", ""),
		RedisPassword:       get("REDIS_PASSWORD", ""),
		SQLitePath:          get("SQLITE_PATH", "ohhell.db"),
		JWTSecret:           get("JWT_SECRET", ""),
		AdminPasswordHash:   get("ADMIN_PASSWORD_HASH", ""),
		LimitedPasswordHash: get("LIMITED_PASSWORD_HASH", ""),
		LogFormat:           get("LOG_FORMAT", "text"),
		Rules:               engine.DefaultRules(),
	}

	var err error
	if cfg.TokenTTL, err = time.ParseDuration(get("TOKEN_TTL", "24h")); err != nil {
		return nil, fmt.Errorf("TOKEN_TTL: %w", err)
	}
	if cfg.LogLevel, err = logrus.ParseLevel(get("LOG_LEVEL", "info")); err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}

	floats := []struct {
		key string
		dst *float64
	}{
		{"RATING_K_FACTOR", &cfg.Rules.KFactor},
		{"RATING_WEIGHT_PLACEMENT", &cfg.Rules.Weights.Placement},
		{"RATING_WEIGHT_ACCURACY", &cfg.Rules.Weights.BidAccuracy},
		{"RATING_WEIGHT_AMBITION", &cfg.Rules.Weights.Ambition},
	}
	for _, f := range floats {
		v := get(f.key, "")
		if v == "" {
			continue
		}
		if *f.dst, err = strconv.ParseFloat(v, 64); err != nil {
			return nil, fmt.Errorf("%s: %w", f.key, err)
		}
	}
	if v := get("DEFAULT_RATING", ""); v != "" {
		if cfg.Rules.DefaultRating, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("DEFAULT_RATING: %w", err)
		}
	}
	if err := cfg.Rules.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewLogger builds the root logger described by the config.
func (c *Config) NewLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(c.LogLevel)
	if c.LogFormat == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}
