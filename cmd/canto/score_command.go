package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-canto/notation"
	"github.com/RyanBlaney/sonido-canto/scoring"
)

func newScoreCommand() *cobra.Command {
	var targetFlag, responseFlag, midiPath string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score a sung pitch list against a target chord",
		Example: `  canto score --target 60,64 --response 60,65
  canto score --target "60 64 67" --response "60.4 64.1 100" --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := parsePitches(targetFlag)
			if err != nil {
				return fmt.Errorf("--target: %w", err)
			}
			response, err := parsePitches(responseFlag)
			if err != nil {
				return fmt.Errorf("--response: %w", err)
			}
			chord, err := scoring.NewChord(target)
			if err != nil {
				if errors.Is(err, scoring.ErrEmptyChord) {
					return errors.New("--target is required")
				}
				return err
			}
			breakdown, err := scoring.Evaluate(chord, response)
			if err != nil {
				return err
			}

			if midiPath != "" {
				if err := notation.WriteMIDI(midiPath, target, response); err != nil {
					return err
				}
			}

			if asJSON {
				return writeJSON(cmd, breakdown)
			}
			fmt.Fprint(cmd.OutOrStdout(), renderBreakdown(chord, breakdown))
			return nil
		},
	}

	cmd.Flags().StringVar(&targetFlag, "target", "", "Target chord pitches (MIDI, comma separated)")
	cmd.Flags().StringVar(&responseFlag, "response", "", "Sung pitches in order (MIDI, comma separated)")
	cmd.Flags().StringVar(&midiPath, "midi", "", "Also write target and response to this MIDI file")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the breakdown as JSON")
	return cmd
}

func renderBreakdown(chord scoring.Chord, b scoring.Breakdown) string {
	rows := make([][]string, 0, len(b.Matches))
	for i, m := range b.Matches {
		target := "miss"
		if m.Matched() {
			target = fmt.Sprintf("#%d (%s)", m.TargetIndex, strconv.FormatFloat(m.Target, 'f', 2, 64))
		}
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			strconv.FormatFloat(m.Sung, 'f', 2, 64),
			target,
			fmt.Sprintf("%+.1f", m.Delta),
			formatScore(m.Running),
		})
	}
	table := renderTable(
		[]string{"#", "Sung", "Claimed", "Delta", "Running"},
		rows,
		[]columnAlignment{alignRight, alignRight, alignLeft, alignRight, alignRight},
	)
	return fmt.Sprintf("%s\nTarget:  %s (%s)\nScore:   %s / %d (raw %s, %d hit, %d miss)\n",
		table,
		formatPitches(chord.Pitches()),
		notation.ToABC(chord.Pitches(), notation.DefaultDuration),
		formatScore(b.Score), b.MaxScore, formatScore(b.Raw), b.Hits, b.Misses,
	)
}
