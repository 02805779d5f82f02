// Package trial runs one chord-singing trial end to end: validate the
// target, extract sung pitches from the recording, score them and build
// feedback. Failures carry the trial ID and stage.
package trial

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/RyanBlaney/sonido-canto/extraction"
	"github.com/RyanBlaney/sonido-canto/logging"
	"github.com/RyanBlaney/sonido-canto/notation"
	"github.com/RyanBlaney/sonido-canto/scoring"
)

// Trial is one stimulus/response pair supplied by the experiment framework.
type Trial struct {
	ID            string    `toml:"id" json:"id"`
	Target        []float64 `toml:"target" json:"target"`
	RecordingPath string    `toml:"recording" json:"recording_path"`
	PlotPath      string    `toml:"plot,omitempty" json:"plot_path,omitempty"`
}

// Outcome is everything the caller persists for a trial.
type Outcome struct {
	TrialID   string                `json:"trial_id"`
	Score     float64               `json:"score"`
	Pitches   []float64             `json:"pitches"`
	Raw       extraction.Diagnostic `json:"raw"`
	Breakdown scoring.Breakdown     `json:"breakdown"`
	// Feedback is the sung pitches in ABC notation; TargetNotation the chord.
	Feedback       string `json:"feedback"`
	TargetNotation string `json:"target_notation"`
}

// BatchResult pairs a trial with its outcome or error; exactly one is set.
type BatchResult struct {
	Trial   Trial    `json:"trial"`
	Outcome *Outcome `json:"outcome,omitempty"`
	Err     error    `json:"-"`
}

// Processor scores trials. It is safe for concurrent use when its extractor is.
type Processor struct {
	Extractor extraction.PitchExtractor
	// NoteDuration is the ABC note length for feedback; zero selects the default.
	NoteDuration int
}

// NewProcessor creates a processor backed by extractor.
func NewProcessor(extractor extraction.PitchExtractor) *Processor {
	return &Processor{Extractor: extractor, NoteDuration: notation.DefaultDuration}
}

// Process runs one trial. A blank ID is replaced with a random UUID. No
// step is retried.
func (p *Processor) Process(ctx context.Context, t Trial) (*Outcome, error) {
	if strings.TrimSpace(t.ID) == "" {
		t.ID = uuid.NewString()
	}
	logger := logging.WithFields(logging.Fields{
		"component": "trial_processor",
		"trial_id":  t.ID,
	})

	if p.Extractor == nil {
		return nil, Wrap(ErrConfiguration, t.ID, StageValidate, "no pitch extractor configured", nil)
	}

	chord, err := scoring.NewChord(t.Target)
	if err != nil {
		return nil, Wrap(ErrInvalidInput, t.ID, StageValidate, "target chord", err)
	}
	if strings.TrimSpace(t.RecordingPath) == "" {
		return nil, Wrap(ErrInvalidInput, t.ID, StageValidate, "recording path is empty", nil)
	}

	result, err := p.Extractor.Extract(ctx, t.RecordingPath, t.PlotPath)
	if err != nil {
		logger.Error(err, "Pitch extraction failed", logging.Fields{"recording": t.RecordingPath})
		return nil, Wrap(ErrExtraction, t.ID, StageExtract, t.RecordingPath, err)
	}
	if result == nil {
		return nil, Wrap(ErrExtraction, t.ID, StageExtract, "extractor returned no result", nil)
	}

	pitches := result.Pitches
	if pitches == nil {
		pitches = []float64{}
	}

	breakdown, err := scoring.Evaluate(chord, pitches)
	if err != nil {
		return nil, Wrap(ErrInvalidInput, t.ID, StageScore, "sung pitches", err)
	}

	duration := p.NoteDuration
	if duration <= 0 {
		duration = notation.DefaultDuration
	}

	logger.Debug("Trial scored", logging.Fields{
		"score":  breakdown.Score,
		"hits":   breakdown.Hits,
		"misses": breakdown.Misses,
	})

	return &Outcome{
		TrialID:        t.ID,
		Score:          breakdown.Score,
		Pitches:        pitches,
		Raw:            result.Raw,
		Breakdown:      breakdown,
		Feedback:       notation.ToABC(pitches, duration),
		TargetNotation: notation.ToABC(chord.Pitches(), duration),
	}, nil
}

// ProcessBatch runs independent trials with at most limit in flight
// (limit <= 0 means unbounded). A failing trial never stops its siblings;
// once ctx is done, trials not yet started fail with the context error.
// Results are in input order.
func (p *Processor) ProcessBatch(ctx context.Context, trials []Trial, limit int) []BatchResult {
	results := make([]BatchResult, len(trials))

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}

	for i, t := range trials {
		if strings.TrimSpace(t.ID) == "" {
			t.ID = uuid.NewString()
		}
		results[i].Trial = t

		if err := ctx.Err(); err != nil {
			results[i].Err = Wrap(ErrExtraction, t.ID, StageExtract, "not started", err)
			continue
		}

		g.Go(func() error {
			outcome, err := p.Process(ctx, t)
			results[i].Outcome = outcome
			results[i].Err = err
			return nil
		})
	}

	_ = g.Wait()
	return results
}

// Failed returns the results that carry an error.
func Failed(results []BatchResult) []BatchResult {
	var failed []BatchResult
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, r)
		}
	}
	return failed
}

// Join combines all batch errors into one, or nil.
func Join(results []BatchResult) error {
	var errs []error
	for _, r := range Failed(results) {
		errs = append(errs, r.Err)
	}
	return errors.Join(errs...)
}
