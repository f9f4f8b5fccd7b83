package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/go-supertonic-tts/internal/bench"
)

func newBenchCmd() *cobra.Command {
	var (
		input        string
		voice        string
		runs         int
		format       string
		rtfThreshold float64
		serverURL    string
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark synthesis latency and realtime factor",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if strings.TrimSpace(input) == "" {
				return errors.New("--text is required for bench")
			}

			if runs < 1 {
				return errors.New("--runs must be at least 1")
			}

			if format != "table" && format != "json" {
				return errors.New("--format must be 'table' or 'json'")
			}

			var synth bench.Synthesizer

			if serverURL != "" {
				synth = bench.Remote{BaseURL: serverURL}
			} else {
				svc, err := newService(cfg)
				if err != nil {
					return err
				}
				defer svc.Close()

				synth = svc
			}

			req := defaultRequest(cfg, input)
			if voice != "" {
				req.Voice = voice
			}

			results, err := bench.Run(cmd.Context(), synth, req, runs)
			if err != nil {
				return fmt.Errorf("bench failed: %w", err)
			}

			stats := bench.ComputeStats(results)

			switch format {
			case "json":
				if err := bench.FormatJSON(results, stats, cmd.OutOrStdout()); err != nil {
					return err
				}
			default:
				bench.FormatTable(results, stats, cmd.OutOrStdout())
			}

			return bench.CheckRTFThreshold(stats.MeanRTF, rtfThreshold)
		},
	}

	cmd.Flags().StringVar(&input, "text", "", "Text to synthesize for each run (required)")
	cmd.Flags().StringVar(&voice, "voice", "", "Voice ID (overrides config)")
	cmd.Flags().IntVar(&runs, "runs", 5, "Number of synthesis runs")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table|json")
	cmd.Flags().Float64Var(&rtfThreshold, "rtf-threshold", 0, "Exit non-zero if mean RTF exceeds this value (0 = disabled)")
	cmd.Flags().StringVar(&serverURL, "server", "", "Benchmark a running server at this base URL instead of loading the model")

	return cmd
}
