package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/kochabx/wsgate/app"
	"github.com/kochabx/wsgate/config"
	"github.com/kochabx/wsgate/log"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("wsgate", flag.ContinueOnError)
	file := fs.String("config", "config.yaml", "config file name")
	dir := fs.String("config-dir", ".", "directory searched for the config file")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	settings, cfg, err := config.Load(*file, *dir)
	if err != nil {
		log.Error().Err(err).Msg("load config")
		return 1
	}

	logger, err := newLogger(settings.Log)
	if err != nil {
		log.Error().Err(err).Msg("create logger")
		return 1
	}
	log.SetGlobalLogger(logger)

	gw, err := newGateway(settings, logger)
	if err != nil {
		logger.Error().Err(err).Msg("create gateway")
		return 1
	}

	cfg.OnChange(func() { gw.apply(settings) })
	if cfg.Viper().ConfigFileUsed() != "" {
		if err := cfg.Watch(); err != nil {
			logger.Warn().Err(err).Msg("config watch disabled")
		}
	}

	application := app.New(
		app.WithLogger(logger),
		app.WithServer(gw.server),
		app.WithClose("log", func(_ context.Context) error { return logger.Close() }, time.Second),
		app.WithClose("session", gw.closeSessions, time.Second),
		app.WithClose("websocket", gw.dispatcher.Close, 10*time.Second),
	)
	logger.Info().Strs("plugins", gw.registry.Plugins()).Msg("wsgate starting")
	if err := application.Start(); err != nil {
		logger.Error().Err(err).Msg("wsgate stopped")
		return 1
	}
	return 0
}
