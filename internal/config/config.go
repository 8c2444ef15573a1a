package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/Swaggermuffin64/vim-racing-sub000/internal/logger"

	"github.com/joho/godotenv"
)

type Config struct {
	GamePort       string
	MatchmakerPort string

	// Extra CORS origins beyond localhost, comma separated.
	FrontendURLs []string

	// Shared secret for signing/verifying match tickets. Required in production.
	MatchTokenSecret string
	// Shared secret for bearer auth tokens. Falls back to MatchTokenSecret.
	AuthTokenSecret string
	RequireAuth     bool

	// Room-host fabric credentials. Required for fabric-hosted mode.
	HathoraAppID     string
	HathoraAppSecret string
	HathoraToken     string

	PlayersPerMatch int

	// Optional backing services.
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Production bool
}

// Load reads configuration from the environment. Missing required secrets in
// production are fatal.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		GamePort:         envOr("BACKEND_PORT", envOr("PORT", "3001")),
		MatchmakerPort:   envOr("PORT", "3002"),
		MatchTokenSecret: os.Getenv("MATCH_TOKEN_SECRET"),
		AuthTokenSecret:  os.Getenv("AUTH_TOKEN_SECRET"),
		RequireAuth:      os.Getenv("REQUIRE_AUTH") == "true",
		HathoraAppID:     os.Getenv("HATHORA_APP_ID"),
		HathoraAppSecret: os.Getenv("HATHORA_APP_SECRET"),
		HathoraToken:     os.Getenv("HATHORA_TOKEN"),
		PlayersPerMatch:  2,
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		Production:       os.Getenv("APP_ENV") == "production",
	}

	if cfg.AuthTokenSecret == "" {
		cfg.AuthTokenSecret = cfg.MatchTokenSecret
	}

	if v := os.Getenv("FRONTEND_URL"); v != "" {
		for _, origin := range strings.Split(v, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				cfg.FrontendURLs = append(cfg.FrontendURLs, origin)
			}
		}
	}

	if v := os.Getenv("PLAYERS_PER_MATCH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 1 {
			cfg.PlayersPerMatch = n
		}
	}

	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RedisDB = n
		}
	}

	if cfg.Production {
		if cfg.MatchTokenSecret == "" {
			logger.Fatal("MATCH_TOKEN_SECRET is not set")
		}
		if cfg.FabricEnabled() && (cfg.HathoraAppID == "" || cfg.HathoraToken == "") {
			logger.Fatal("incomplete host-fabric credentials")
		}
	}

	return cfg
}

// FabricEnabled reports whether any host-fabric credential is configured.
func (c *Config) FabricEnabled() bool {
	return c.HathoraAppSecret != "" || c.HathoraAppID != "" || c.HathoraToken != ""
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
