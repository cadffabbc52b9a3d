package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"vidcat/internal/config"
	"vidcat/internal/console"
	"vidcat/internal/container"
	"vidcat/internal/logger"

	"github.com/joho/godotenv"
)

func main() {
	logger.Init()
	log := logger.Get()

	err := godotenv.Load(".env.local")
	if err != nil {
		log.Info("No .env file found, using system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Invalid configuration")
	}
	if err := logger.Configure(cfg.Log.Level, cfg.Log.Format); err != nil {
		log.WithError(err).Warn("Unknown log level, keeping default")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := container.New(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize")
	}
	defer c.Close()

	handler := console.NewHandler(c.Store, c.Search, c.Stats, c.Client, c.Logger, os.Stdout)

	// With arguments, run one command; otherwise start a session on stdin.
	if len(os.Args) > 1 {
		cmd := console.Command{Name: strings.ToLower(os.Args[1]), Args: os.Args[2:]}
		if err := handler.Execute(ctx, cmd); err != nil {
			c.Close()
			os.Exit(1)
		}
		return
	}

	log.WithField("base_url", cfg.Catalog.BaseURL).Debug("Starting interactive session")
	if err := handler.Run(ctx, os.Stdin); err != nil && ctx.Err() == nil {
		log.WithError(err).Error("Session ended with error")
	}
}
