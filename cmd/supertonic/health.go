package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/go-supertonic-tts/internal/server"
)

func newHealthCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check server health endpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			target := addr
			if target == "" {
				target = cfg.Server.ListenAddr
			}

			if err := server.ProbeHTTP(target); err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), "ok")

			return err
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "HTTP server address to probe")

	return cmd
}
