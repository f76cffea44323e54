package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/rs/zerolog"

	"membership-payments/internal/config"
	pg "membership-payments/internal/infra/db/postgres"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Usage = printUsage
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}
	cfg, err := config.LoadConfig(*cfgPath, false)
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	url := cfg.Database.URL

	switch flag.Arg(0) {
	case "up":
		v, err := pg.MigrateUp(url)
		if err != nil {
			log.Fatal().Err(err).Msg("migrate up failed")
		}
		log.Info().Uint("version", v).Msg("database is up to date")

	case "down":
		steps := 1
		if flag.NArg() > 1 {
			if steps, err = strconv.Atoi(flag.Arg(1)); err != nil || steps <= 0 {
				log.Fatal().Str("steps", flag.Arg(1)).Msg("steps must be a positive number")
			}
		}
		if err := pg.MigrateDown(url, steps); err != nil {
			log.Fatal().Err(err).Msg("migrate down failed")
		}
		log.Info().Int("steps", steps).Msg("rolled back")

	case "status":
		v, dirty, err := pg.MigrationVersion(url)
		if err != nil {
			log.Fatal().Err(err).Msg("read migration version")
		}
		if v == 0 {
			log.Info().Msg("no migrations applied yet")
			return
		}
		log.Info().Uint("version", v).Bool("dirty", dirty).Msg("current migration version")

	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("usage: migrate [-config config.yaml] <command>")
	fmt.Println("commands:")
	fmt.Println("  up          apply all pending migrations")
	fmt.Println("  down [n]    roll back the last n migrations (default 1)")
	fmt.Println("  status      show the applied migration version")
}
