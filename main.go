package main

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/setgame/internal/httpserver"
	"github.com/robalobadob/setgame/internal/records"
	"github.com/robalobadob/setgame/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg, err := loadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	if !cfg.Production {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	db, err := openDB(cfg.DBDriver, cfg.dsn())
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DBDriver).Msg("open database")
	}
	defer db.Close()
	if err := migrate(db, cfg.DBDriver); err != nil {
		log.Fatal().Err(err).Msg("migrate")
	}

	srv := httpserver.New(store.NewMemoryStore(), records.NewStore(db, cfg.DBDriver), db, httpserver.Options{
		Driver:         cfg.DBDriver,
		DealSize:       cfg.DealSize,
		Policy:         cfg.Policy,
		DailySalt:      cfg.DailySalt,
		JWTSecret:      cfg.JWTSecret,
		JWTExpiresDays: cfg.JWTExpiresDays,
		CookieName:     cfg.CookieName,
		ClientOrigin:   cfg.ClientOrigin,
		Secure:         cfg.Production,
	})
	log.Info().Str("port", cfg.Port).Str("policy", string(cfg.Policy)).Int("dealSize", cfg.DealSize).
		Msg("starting set server")
	if err := srv.Start(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}
