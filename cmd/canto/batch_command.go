package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-canto/logging"
	"github.com/RyanBlaney/sonido-canto/notation"
	"github.com/RyanBlaney/sonido-canto/trial"
)

// manifest lists trials to re-run. Relative paths resolve against the
// manifest's directory.
type manifest struct {
	Limit  int           `toml:"limit"`
	Trials []trial.Trial `toml:"trial"`
}

type batchRecord struct {
	Trial   trial.Trial    `json:"trial"`
	Status  string         `json:"status"`
	Error   string         `json:"error,omitempty"`
	Outcome *trial.Outcome `json:"outcome,omitempty"`
}

func newBatchCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var plotDir, midiDir string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "batch <manifest.toml>",
		Short: "Re-analyse and score the trials listed in a manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadManifest(args[0])
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("limit") && m.Limit > 0 {
				limit = m.Limit
			}
			for i := range m.Trials {
				// IDs are fixed here so plot and MIDI names line up with the report
				if strings.TrimSpace(m.Trials[i].ID) == "" {
					m.Trials[i].ID = uuid.NewString()
				}
				if m.Trials[i].PlotPath == "" && plotDir != "" {
					m.Trials[i].PlotPath = filepath.Join(plotDir, m.Trials[i].ID+".png")
				}
			}
			if err := ensureDirs(plotDir, midiDir); err != nil {
				return err
			}

			analyzer, err := ctx.analyzer()
			if err != nil {
				return err
			}

			logging.Info("Running batch", logging.Fields{
				"manifest": args[0],
				"trials":   len(m.Trials),
				"limit":    limit,
			})
			results := trial.NewProcessor(analyzer).ProcessBatch(cmd.Context(), m.Trials, limit)

			if midiDir != "" {
				for _, r := range results {
					if r.Outcome == nil {
						continue
					}
					path := filepath.Join(midiDir, r.Outcome.TrialID+".mid")
					if err := notation.WriteMIDI(path, r.Trial.Target, r.Outcome.Pitches); err != nil {
						logging.Warn("Skipping MIDI export", logging.Fields{"trial_id": r.Outcome.TrialID, "error": err.Error()})
					}
				}
			}

			if asJSON {
				records := make([]batchRecord, len(results))
				for i, r := range results {
					records[i] = batchRecord{Trial: r.Trial, Status: trial.Classify(r.Err), Outcome: r.Outcome}
					if r.Err != nil {
						records[i].Error = r.Err.Error()
					}
				}
				if err := writeJSON(cmd, records); err != nil {
					return err
				}
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), renderBatch(results))
			}

			if failed := trial.Failed(results); len(failed) > 0 {
				return fmt.Errorf("%d of %d trials failed", len(failed), len(results))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 4, "Maximum trials analysed at once (0 = unbounded)")
	cmd.Flags().StringVar(&plotDir, "plot-dir", "", "Write <id>.png for trials without a plot path")
	cmd.Flags().StringVar(&midiDir, "midi-dir", "", "Write <id>.mid with target and response for each scored trial")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON")
	return cmd
}

func loadManifest(path string) (*manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if len(m.Trials) == 0 {
		return nil, fmt.Errorf("manifest %s lists no trials", path)
	}

	base := filepath.Dir(path)
	for i := range m.Trials {
		m.Trials[i].RecordingPath = resolve(base, m.Trials[i].RecordingPath)
		m.Trials[i].PlotPath = resolve(base, m.Trials[i].PlotPath)
	}
	return &m, nil
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

func ensureDirs(dirs ...string) error {
	for _, d := range dirs {
		if d == "" {
			continue
		}
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", d, err)
		}
	}
	return nil
}

func renderBatch(results []trial.BatchResult) string {
	rows := make([][]string, 0, len(results))
	total := 0.0
	for _, r := range results {
		row := []string{r.Trial.ID, formatPitches(r.Trial.Target), trial.Classify(r.Err), "", "", ""}
		if r.Outcome != nil {
			total += r.Outcome.Score
			row[3] = formatPitches(r.Outcome.Pitches)
			row[4] = formatScore(r.Outcome.Score) + " / " + strconv.Itoa(r.Outcome.Breakdown.MaxScore)
			row[5] = r.Outcome.Feedback
		} else if r.Err != nil {
			row[5] = r.Err.Error()
		}
		rows = append(rows, row)
	}
	out := renderTable(
		[]string{"Trial", "Target", "Status", "Sung", "Score", "Feedback"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignLeft, alignRight, alignRight, alignLeft},
	)
	scored := len(results) - len(trial.Failed(results))
	return fmt.Sprintf("%s\n%d scored, %d failed, total %s", out, scored, len(results)-scored, formatScore(total))
}
