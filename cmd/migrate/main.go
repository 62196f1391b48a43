package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"cinelike/internal/config"
	"cinelike/internal/logging"
	"cinelike/internal/store"
)

const usage = "usage: migrate [up|down|normalize]"

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	logging.SetGlobal(logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}))

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("ping database")
	}

	if err := run(ctx, db, os.Args[1]); err != nil {
		log.Fatal().Err(err).Str("command", os.Args[1]).Msg("migrate failed")
	}
}

func run(ctx context.Context, db *sql.DB, command string) error {
	switch command {
	case "up":
		if err := store.MigrateUp(db); err != nil {
			return err
		}
		log.Info().Msg("migrations applied")
	case "down":
		if err := store.MigrateDown(db); err != nil {
			return err
		}
		log.Info().Msg("migrations rolled back")
	case "normalize":
		res, err := store.New(db).NormalizeLikeIdentities(ctx)
		if err != nil {
			return err
		}
		log.Info().
			Int64("repointed", res.Repointed).
			Int64("dropped", res.Dropped).
			Msg("like identities normalized")
	default:
		return fmt.Errorf("unknown command %q; %s", command, usage)
	}
	return nil
}
