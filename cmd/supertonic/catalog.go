package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/example/go-supertonic-tts/internal/text"
	"github.com/example/go-supertonic-tts/internal/voice"
)

func newSentencesCmd() *cobra.Command {
	var (
		input  string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "sentences",
		Short: "Split text into the sentences synthesized one chunk at a time",
		RunE: func(cmd *cobra.Command, _ []string) error {
			inputText, err := readSynthText(input, cmd.InOrStdin())
			if err != nil {
				return err
			}

			sentences := text.SentenceList(inputText)
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), sentences)
			}

			for i, s := range sentences {
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", i, s); err != nil {
					return err
				}
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&input, "text", "", "Text to split (if empty, read from stdin)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print a JSON array")

	return cmd
}

func newVoicesCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "voices",
		Short: "List built-in voice styles",
		RunE: func(cmd *cobra.Command, _ []string) error {
			voices := voice.Builtin()
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), voices)
			}

			for _, v := range voices {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), v.Display()); err != nil {
					return err
				}
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print a JSON array")

	return cmd
}

func newLanguagesCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "languages",
		Short: "List supported languages",
		RunE: func(cmd *cobra.Command, _ []string) error {
			langs := text.Languages()
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), langs)
			}

			for _, l := range langs {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), l.Display()); err != nil {
					return err
				}
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print a JSON array")

	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}
