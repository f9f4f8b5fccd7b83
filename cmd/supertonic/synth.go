package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/go-supertonic-tts/internal/audio"
	"github.com/example/go-supertonic-tts/internal/text"
	"github.com/example/go-supertonic-tts/internal/tts"
)

func newSynthCmd() *cobra.Command {
	var (
		input      string
		out        string
		voice      string
		lang       string
		steps      int
		speed      float64
		silence    float64
		chunkIndex int
	)

	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Synthesize text to WAV",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			inputText, err := readSynthText(input, cmd.InOrStdin())
			if err != nil {
				return err
			}

			svc, err := newService(cfg)
			if err != nil {
				return err
			}
			defer svc.Close()

			req := svc.NewRequest(inputText)
			if voice != "" {
				req.Voice = voice
			}

			if lang != "" {
				req.Language = lang
			}

			flags := cmd.Flags()
			if flags.Changed("steps") {
				req.TotalSteps = steps
			}

			if flags.Changed("speed") {
				req.Speed = speed
			}

			if flags.Changed("silence") {
				req.SilenceSeconds = silence
			}

			var res tts.Result

			if chunkIndex >= 0 {
				sentences := text.SentenceList(inputText)
				if chunkIndex >= len(sentences) {
					return fmt.Errorf("--chunk-index %d out of range (%d sentences)", chunkIndex, len(sentences))
				}

				req.Text = sentences[chunkIndex]

				var cr tts.ChunkResult

				cr, err = svc.SynthesizeChunk(cmd.Context(), tts.ChunkRequest{Request: req, SentenceIndex: chunkIndex})
				res = cr.Result
			} else {
				res, err = svc.Synthesize(cmd.Context(), req)
			}

			if err != nil {
				return fmt.Errorf("synth failed: %w", err)
			}

			wav, err := audio.EncodeWAV(res.Audio, res.SampleRate)
			if err != nil {
				return err
			}

			return writeSynthOutput(out, wav, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&input, "text", "", "Text to synthesize (if empty, read from stdin)")
	cmd.Flags().StringVar(&out, "out", "out.wav", "Output WAV path ('-' for stdout)")
	cmd.Flags().StringVar(&voice, "voice", "", "Voice ID or style .json path (overrides config)")
	cmd.Flags().StringVar(&lang, "lang", "", "Language code (overrides config)")
	cmd.Flags().IntVar(&steps, "steps", 0, "Denoising steps (overrides config)")
	cmd.Flags().Float64Var(&speed, "speed", 0, "Speech speed factor (overrides config)")
	cmd.Flags().Float64Var(&silence, "silence", 0, "Silence between chunks in seconds (overrides config)")
	cmd.Flags().IntVar(&chunkIndex, "chunk-index", -1, "Synthesize only this sentence of the input, without silence")

	return cmd
}

func readSynthText(input string, stdin io.Reader) (string, error) {
	if strings.TrimSpace(input) != "" {
		return input, nil
	}

	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}

	if strings.TrimSpace(string(data)) == "" {
		return "", errors.New("no input text: pass --text or pipe text on stdin")
	}

	return string(data), nil
}

func writeSynthOutput(out string, wav []byte, stdout io.Writer) error {
	if out == "-" {
		_, err := stdout.Write(wav)
		return err
	}

	if err := os.WriteFile(out, wav, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}

	return nil
}
