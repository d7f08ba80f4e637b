package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/thebtf/nurturenote/internal/config"
	"github.com/thebtf/nurturenote/internal/watcher"
	"github.com/thebtf/nurturenote/internal/worker"
)

const shutdownTimeout = 30 * time.Second

var errConfigChanged = errors.New("configuration changed")

// ServeCmd runs the HTTP worker.
func ServeCmd(debug *bool) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP worker",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(*debug)
			if err != nil {
				return err
			}
			defer a.Close()

			if cmd.Flags().Changed("port") {
				a.cfg.Port = port
			}
			return serve(cmd.Context(), a)
		},
	}
	cmd.Flags().IntVar(&port, "port", config.DefaultPort, "Port to listen on")

	return cmd
}

func serve(parent context.Context, a *app) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	// Settings and the domain registry are read once at startup, so a change
	// restarts the process under its supervisor.
	w, err := watcher.New(func(path string) {
		log.Warn().Str("path", path).Msg("Config file changed, exiting for restart...")
		cancel(errConfigChanged)
	}, config.SettingsPath(), a.cfg.DomainsFile)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create config watcher")
	} else if err := w.Start(); err != nil {
		log.Warn().Err(err).Msg("Failed to start config watcher")
	} else {
		defer func() { _ = w.Stop() }()
	}

	svc := worker.NewService(a.cfg, a.entries, a.analyzer, Version)

	errCh := make(chan error, 1)
	go func() { errCh <- svc.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down worker")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := svc.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Worker shutdown failed")
		return err
	}
	if errors.Is(context.Cause(ctx), errConfigChanged) {
		log.Info().Msg("Worker stopped for configuration reload")
	}
	return nil
}
