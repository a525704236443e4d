// Package main provides the trafficroute command line.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/trafficroute/trafficroute/internal/app"
	"github.com/trafficroute/trafficroute/internal/cli"
	"github.com/trafficroute/trafficroute/internal/config"
	"github.com/trafficroute/trafficroute/internal/credentials"
	"github.com/trafficroute/trafficroute/internal/eta"
	"github.com/trafficroute/trafficroute/internal/trip"
)

// Version is set at compile time via ldflags.
var Version = "dev"

// tokenEnv overrides the token file.
const tokenEnv = "TRAFFICROUTE_TOKEN"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCommand(Version, build)
	if err := root.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func build(locale string) (*trip.Orchestrator, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	// Logs go to stderr so that --json output stays parseable.
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(cfg.ZerologLevel()).
		With().
		Timestamp().
		Logger()

	services, err := app.Build(cfg, log, nil)
	if err != nil {
		return nil, err
	}

	tokenFile := cfg.TokenFile
	if tokenFile == "" {
		if path, err := credentials.DefaultFilePath(); err == nil {
			tokenFile = path
		}
	}
	creds := credentials.Chain{
		credentials.Env(tokenEnv),
		credentials.File{Path: tokenFile},
	}

	formatter := services.Formatter
	if locale != "" {
		formatter = eta.NewFormatter(locale)
	}
	return services.NewOrchestratorWithFormatter(creds, formatter), nil
}
