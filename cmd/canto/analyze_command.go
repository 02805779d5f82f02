package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-canto/scoring"
)

type analyzeOutput struct {
	Recording string             `json:"recording"`
	Pitches   []float64          `json:"pitches"`
	Raw       any                `json:"raw"`
	Breakdown *scoring.Breakdown `json:"breakdown,omitempty"`
}

func newAnalyzeCommand(ctx *commandContext) *cobra.Command {
	var plotPath, targetFlag string

	cmd := &cobra.Command{
		Use:   "analyze <recording>",
		Short: "Extract sung pitches from one recording",
		Example: `  canto analyze take1.wav --plot take1.png
  canto analyze take1.m4a --target 60,64,67`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			analyzer, err := ctx.analyzer()
			if err != nil {
				return err
			}

			result, err := analyzer.Extract(cmd.Context(), args[0], plotPath)
			if err != nil {
				return err
			}

			out := analyzeOutput{Recording: args[0], Pitches: result.Pitches, Raw: result.Raw}
			if out.Pitches == nil {
				out.Pitches = []float64{}
			}
			if targetFlag != "" {
				target, err := parsePitches(targetFlag)
				if err != nil {
					return fmt.Errorf("--target: %w", err)
				}
				chord, err := scoring.NewChord(target)
				if err != nil {
					return err
				}
				breakdown, err := scoring.Evaluate(chord, out.Pitches)
				if err != nil {
					return err
				}
				out.Breakdown = &breakdown
			}
			return writeJSON(cmd, out)
		},
	}

	cmd.Flags().StringVar(&plotPath, "plot", "", "Write the diagnostic PNG here")
	cmd.Flags().StringVar(&targetFlag, "target", "", "Also score against this chord (MIDI, comma separated)")
	return cmd
}
