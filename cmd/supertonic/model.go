package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/example/go-supertonic-tts/internal/model"
	"github.com/example/go-supertonic-tts/internal/onnx"
)

func newModelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Model acquisition and verification commands",
	}

	cmd.AddCommand(newModelDownloadCmd())
	cmd.AddCommand(newModelVerifyCmd())
	cmd.AddCommand(newModelStatusCmd())
	cmd.AddCommand(newModelManifestCmd())

	return cmd
}

func newModelDownloadCmd() *cobra.Command {
	var (
		hfRepo   string
		revision string
		outDir   string
		hfToken  string
	)

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download Supertonic model files from Hugging Face",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if outDir == "" {
				outDir = cfg.Paths.ModelDir
			}

			if hfToken == "" {
				hfToken = os.Getenv("HF_TOKEN")
			}

			err = model.Download(model.DownloadOptions{
				Repo:     hfRepo,
				Revision: revision,
				OutDir:   outDir,
				HFToken:  hfToken,
				Stdout:   cmd.OutOrStdout(),
				Stderr:   cmd.ErrOrStderr(),
			})
			if err != nil {
				var denied *model.AccessDeniedError
				if errors.As(err, &denied) && hfToken == "" {
					return fmt.Errorf("model download failed: %w (set --hf-token or HF_TOKEN)", err)
				}

				return fmt.Errorf("model download failed: %w", err)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&hfRepo, "hf-repo", model.DefaultRepo, "Hugging Face model repository")
	cmd.Flags().StringVar(&revision, "revision", model.DefaultRevision, "Repository revision")
	cmd.Flags().StringVar(&outDir, "out-dir", "", "Directory where model files are stored (default: configured model dir)")
	cmd.Flags().StringVar(&hfToken, "hf-token", "", "Hugging Face token (falls back to HF_TOKEN env var)")

	return cmd
}

func newModelVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Load every model file the way synthesis does",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			info, err := onnx.DetectRuntime(cfg.Runtime)
			if err != nil {
				return fmt.Errorf("model verify failed: %w", err)
			}

			err = model.Verify(model.VerifyOptions{
				Bundle:        model.DirBundle(cfg.Paths.ModelDir),
				ORTLibrary:    info.LibraryPath,
				ORTAPIVersion: cfg.Runtime.ORTAPIVersion,
				Stdout:        cmd.OutOrStdout(),
				Stderr:        cmd.ErrOrStderr(),
			})
			if err != nil {
				return fmt.Errorf("model verify failed: %w", err)
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), "model verification passed")

			return err
		},
	}
}

func newModelStatusCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report which model files are present",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			st, err := model.CheckStatus(cfg.Paths.ModelDir)
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), st)
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "models dir: %s\n", st.ModelsDir)
			_, _ = fmt.Fprintf(out, "files: %d/%d (%s)\n", st.DownloadedCount, st.Total, humanize.Bytes(uint64(st.Bytes)))

			for _, m := range st.Missing {
				_, _ = fmt.Fprintf(out, "missing: %s\n", m)
			}

			if !st.Downloaded {
				return fmt.Errorf("%d model file(s) missing; run `supertonic model download`", len(st.Missing))
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print status as JSON")

	return cmd
}

func newModelManifestCmd() *cobra.Command {
	var (
		hfRepo   string
		revision string
	)

	cmd := &cobra.Command{
		Use:   "manifest",
		Short: "Print the model download manifest as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return writeJSON(cmd.OutOrStdout(), model.NewManifest(hfRepo, revision))
		},
	}

	cmd.Flags().StringVar(&hfRepo, "hf-repo", model.DefaultRepo, "Hugging Face model repository")
	cmd.Flags().StringVar(&revision, "revision", model.DefaultRevision, "Repository revision")

	return cmd
}
