// config.go
//
// Process configuration, read from the environment (after .env is loaded).
//
//   PORT             listen port (5175)
//   LOG_LEVEL        zerolog level (info)
//   APP_ENV          "production" switches to JSON logs and secure cookies
//   DB_DRIVER        sqlite3 | postgres
//   DB_PATH          sqlite file (./data/set.db)
//   DATABASE_URL     postgres DSN, required when DB_DRIVER=postgres
//   JWT_SECRET, JWT_EXPIRES_DAYS, COOKIE_NAME, CLIENT_ORIGIN
//   DAILY_SALT       key for the daily deal seed
//   DEAL_SIZE        opening board size (12)
//   BOARD_POLICY     refill | append

package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/robalobadob/setgame/internal/deck"
	"github.com/robalobadob/setgame/internal/game"
)

type config struct {
	Port           string
	LogLevel       string
	Production     bool
	DBDriver       string
	DBPath         string
	DatabaseURL    string
	JWTSecret      string
	JWTExpiresDays int
	CookieName     string
	ClientOrigin   string
	DailySalt      string
	DealSize       int
	Policy         game.Policy
}

func loadConfig() (config, error) {
	c := config{
		Port:           envStr("PORT", "5175"),
		LogLevel:       envStr("LOG_LEVEL", "info"),
		Production:     envStr("APP_ENV", "development") == "production",
		DBDriver:       envStr("DB_DRIVER", "sqlite3"),
		DBPath:         envStr("DB_PATH", "./data/set.db"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		JWTSecret:      envStr("JWT_SECRET", "dev_secret_change_me"),
		JWTExpiresDays: envInt("JWT_EXPIRES_DAYS", 14),
		CookieName:     envStr("COOKIE_NAME", "set_token"),
		ClientOrigin:   envStr("CLIENT_ORIGIN", "http://localhost:5173"),
		DailySalt:      envStr("DAILY_SALT", "set-daily"),
		DealSize:       envInt("DEAL_SIZE", deck.DefaultDealSize),
	}

	policy, err := game.ParsePolicy(os.Getenv("BOARD_POLICY"))
	if err != nil {
		return c, fmt.Errorf("BOARD_POLICY: %w", err)
	}
	c.Policy = policy

	switch c.DBDriver {
	case "sqlite3":
	case "postgres":
		if c.DatabaseURL == "" {
			return c, fmt.Errorf("DATABASE_URL is required for DB_DRIVER=postgres")
		}
	default:
		return c, fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.DealSize < 3 || c.DealSize > 81 {
		return c, fmt.Errorf("DEAL_SIZE must be 3-81, got %d", c.DealSize)
	}
	if c.Production && c.JWTSecret == "dev_secret_change_me" {
		return c, fmt.Errorf("JWT_SECRET must be set in production")
	}
	return c, nil
}

// dsn returns the connection string for the configured driver.
func (c config) dsn() string {
	if c.DBDriver == "postgres" {
		return c.DatabaseURL
	}
	return c.DBPath
}

func envStr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
