package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show the active analysis bundle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, struct {
					Fingerprint string `json:"fingerprint"`
					Config      any    `json:"config"`
				}{cfg.Fingerprint(), cfg})
			}

			canonical, err := cfg.Canonical()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "# version:     %s\n", cfg.Version)
			fmt.Fprintf(out, "# fingerprint: %s\n", cfg.Fingerprint())
			fmt.Fprintf(out, "# minimum recording: %.0f ms\n\n", cfg.MinimumRecordingMs())
			_, err = out.Write(canonical)
			return err
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the bundle as JSON")
	return cmd
}
