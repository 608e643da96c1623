package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"dutybot/internal/config"
	"dutybot/internal/discord"
	"dutybot/internal/duty"
	"dutybot/internal/store"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	// Initialize database
	db, err := store.New(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer db.Close()

	// Create repository and session manager
	repository := store.NewRepository(db)
	manager := duty.NewManager(repository)

	// Initialize Discord bot
	bot, err := discord.New(cfg.DiscordToken, repository, manager, cfg.RefreshInterval)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create Discord bot")
	}
	manager.SetNotifier(bot)

	// Start bot
	if err := bot.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start bot")
	}
	defer bot.Stop()

	// Wait for interrupt signal
	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-sc

	log.Info().Msg("shutting down bot")
}
