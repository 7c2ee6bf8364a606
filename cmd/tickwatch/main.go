package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/tickwatch/tickwatch/internal/app"
	"github.com/tickwatch/tickwatch/internal/platform/config"
	db "github.com/tickwatch/tickwatch/internal/storage"
)

func main() {
	mode := flag.String("mode", "pipeline", "Service mode (pipeline, ingest, process, rank, holdings)")
	once := flag.Bool("once", false, "Run the selected job once and exit")
	addHolding := flag.String("add", "", "Holdings mode: add a holding as TICKER:Label")
	removeHolding := flag.String("remove", "", "Holdings mode: remove a holding by ticker")

	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := newLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	poolOpts := db.PoolOptions{
		MaxConns: cfg.DBMaxConnections,
		MinConns: cfg.DBMinConnections,
	}

	database, err := db.NewWithOptions(ctx, cfg.PostgresDSN, poolOpts, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close()

	if err := database.Migrate(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	application := app.New(cfg, database, &logger)

	// Start health server in background
	go func() {
		if err := application.StartHealthServer(ctx); err != nil {
			logger.Error().Err(err).Msg("health check server error")
		}
	}()

	if *mode == "holdings" {
		if err := runHoldings(ctx, application, &logger, *addHolding, *removeHolding); err != nil {
			logger.Fatal().Err(err).Msg("holdings command failed")
		}

		return
	}

	if err := runMode(ctx, application, *mode, *once); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info().Msg("application stopped")
			return
		}

		logger.Fatal().Err(err).Msg("application error")
	}
}

func newLogger(appEnv string) zerolog.Logger {
	if appEnv == "local" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	}

	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

func runMode(ctx context.Context, application *app.App, mode string, once bool) error {
	switch mode {
	case "pipeline":
		if once {
			return application.RunAllOnce(ctx)
		}

		return application.RunPipeline(ctx)
	case "ingest", "process", "rank":
		return application.RunOnce(ctx, mode)
	default:
		log.Fatalf("Usage: %s --mode=[pipeline|ingest|process|rank|holdings] [--once] [--add TICKER:Label] [--remove TICKER]", os.Args[0])

		return nil
	}
}

// runHoldings manages the watchlist: --add and --remove mutate it, a
// bare invocation lists it.
func runHoldings(ctx context.Context, application *app.App, logger *zerolog.Logger, add, remove string) error {
	if add != "" {
		ticker, label, _ := strings.Cut(add, ":")

		if err := application.AddHolding(ctx, ticker, label); err != nil {
			return err
		}

		logger.Info().Str("ticker", ticker).Str("label", label).Msg("holding added")
	}

	if remove != "" {
		if err := application.RemoveHolding(ctx, remove); err != nil {
			return err
		}

		logger.Info().Str("ticker", remove).Msg("holding removed")
	}

	if add == "" && remove == "" {
		holdings, err := application.ListHoldings(ctx)
		if err != nil {
			return err
		}

		for _, h := range holdings {
			logger.Info().Str("ticker", h.Ticker).Str("label", h.Label).Msg("holding")
		}
	}

	return nil
}
