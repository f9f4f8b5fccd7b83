package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/go-supertonic-tts/internal/doctor"
	"github.com/example/go-supertonic-tts/internal/onnx"
)

func newDoctorCmd() *cobra.Command {
	var skipRuntime bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run local runtime and model checks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			result := doctor.Run(doctor.Config{
				Runtime: func() (onnx.RuntimeInfo, error) {
					return onnx.DetectRuntime(cfg.Runtime)
				},
				SkipRuntime: skipRuntime,
				APIVersion:  cfg.Runtime.ORTAPIVersion,
				ModelDir:    cfg.Paths.ModelDir,
			}, cmd.OutOrStdout())

			if result.Failed() {
				for _, f := range result.Failures() {
					_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "FAIL: %s\n", f)
				}

				return errors.New("doctor checks failed")
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), "doctor checks passed")

			return err
		},
	}

	cmd.Flags().BoolVar(&skipRuntime, "skip-runtime", false, "Skip the ONNX Runtime library check")

	return cmd
}
