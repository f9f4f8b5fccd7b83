package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/example/go-supertonic-tts/internal/server"
	"github.com/example/go-supertonic-tts/internal/tts"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Supertonic HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			svc, err := tts.NewService(cfg)
			if err != nil {
				return err
			}
			defer svc.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return server.New(cfg, svc).Start(ctx)
		},
	}
}
