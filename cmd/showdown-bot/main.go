// Command showdown-bot runs a configurable bot against a Showdown server.
//
// Configuration comes from the environment, optionally loaded from a .env
// file: SHOWDOWN_* variables configure the connection (see
// showdown.LoadFromEnv) and BOT_* variables the behaviours.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/luciancaetano/showdown/client"
	"github.com/luciancaetano/showdown/internal/archive"
	"github.com/luciancaetano/showdown/internal/logger"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "loading .env: %v\n", err)
		os.Exit(1)
	}

	pretty, _ := strconv.ParseBool(os.Getenv("LOG_PRETTY"))
	log, err := logger.New(os.Getenv("LOG_LEVEL"), pretty)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := run(log); err != nil {
		log.Fatal().Err(err).Msg("bot stopped")
	}
}

func run(log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	settings, err := loadSettings()
	if err != nil {
		return err
	}

	cfg := client.LoadConfigFromEnv()
	cfg.Logger = log

	var (
		arch    archiver
		battles battleLister
	)
	if path := os.Getenv("BOT_ARCHIVE"); path != "" {
		store, err := archive.Open(ctx, path, log)
		if err != nil {
			return err
		}
		defer store.Close()
		arch, battles = store, store
	}

	bot := NewBot(settings, arch, log)
	c, err := client.New(cfg, bot)
	if err != nil {
		return err
	}
	if err := bot.Register(c); err != nil {
		return err
	}

	if addr := os.Getenv("BOT_STATUS_ADDR"); addr != "" {
		srv := &http.Server{
			Addr:              addr,
			Handler:           SetupRoutes(c, battles),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info().Str("addr", addr).Msg("status server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("status server failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	log.Info().Str("user", cfg.Username).Str("server", cfg.ServerID).Msg("starting bot")
	return c.Start(ctx)
}

func loadSettings() (Settings, error) {
	s := DefaultSettings()

	behaviours, err := ParseBehaviours(os.Getenv("BOT_BEHAVIOURS"))
	if err != nil {
		return s, err
	}
	s.Behaviours = behaviours

	if v := os.Getenv("BOT_OWNER"); v != "" {
		s.Owner = v
	}
	if v := os.Getenv("BOT_LADDER_FORMAT"); v != "" {
		s.LadderFormat = v
	}
	if v := os.Getenv("BOT_CHALLENGE_FORMAT"); v != "" {
		s.ChallengeFormat = v
	}
	if v := os.Getenv("BOT_REPLAY_FORMAT"); v != "" {
		s.ReplayFormat = v
	}
	if v := os.Getenv("BOT_TEAM_FILE"); v != "" {
		team, err := os.ReadFile(v)
		if err != nil {
			return s, fmt.Errorf("reading team: %w", err)
		}
		s.Team = string(team)
	}
	if v := os.Getenv("BOT_POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return s, fmt.Errorf("BOT_POLL_INTERVAL: %w", err)
		}
		s.PollInterval = d
	}
	return s, nil
}
