package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/go-supertonic-tts/internal/config"
	"github.com/example/go-supertonic-tts/internal/server"
	"github.com/example/go-supertonic-tts/internal/tts"
)

var (
	cfgFile   string
	activeCfg config.Config
)

// synthService is the part of tts.Service the CLI drives.
type synthService interface {
	NewRequest(input string) tts.Request
	Synthesize(ctx context.Context, req tts.Request) (tts.Result, error)
	SynthesizeChunk(ctx context.Context, req tts.ChunkRequest) (tts.ChunkResult, error)
	SampleRate() int
	Close()
}

// newService loads the model; tests replace it with a fake-graph service.
var newService = func(cfg config.Config) (synthService, error) {
	return tts.NewService(cfg)
}

func NewRootCmd() *cobra.Command {
	defaults := config.DefaultConfig()

	cmd := &cobra.Command{
		Use:           "supertonic",
		Short:         "Supertonic text-to-speech command line",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.Load(config.LoadOptions{
				Cmd:        cmd,
				ConfigFile: cfgFile,
				Defaults:   defaults,
			})
			if err != nil {
				return err
			}

			activeCfg = loaded
			setupLogger(loaded.LogLevel)

			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Optional config file (yaml|toml|json)")
	config.RegisterFlags(cmd.PersistentFlags(), defaults)

	cmd.AddCommand(newSynthCmd())
	cmd.AddCommand(newSentencesCmd())
	cmd.AddCommand(newVoicesCmd())
	cmd.AddCommand(newLanguagesCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newHealthCmd())
	cmd.AddCommand(newModelCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newBenchCmd())

	return cmd
}

// setupLogger configures the process-wide slog default logger.
func setupLogger(levelStr string) {
	lvl, err := server.ParseLogLevel(levelStr)
	if err != nil {
		lvl = slog.LevelInfo
	}

	h := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(h))
}

func requireConfig() (config.Config, error) {
	if activeCfg.Paths.ModelDir == "" {
		return config.Config{}, errors.New("configuration not loaded")
	}

	return activeCfg, nil
}

// defaultRequest builds a request from the configured synthesis defaults.
func defaultRequest(cfg config.Config, input string) tts.Request {
	return tts.Request{
		Text:     input,
		Language: cfg.TTS.Language,
		Voice:    cfg.TTS.Voice,
		Params: tts.Params{
			TotalSteps:     cfg.TTS.TotalSteps,
			Speed:          cfg.TTS.Speed,
			SilenceSeconds: cfg.TTS.SilenceSeconds,
		},
	}
}
