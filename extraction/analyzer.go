package extraction

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/RyanBlaney/sonido-canto/algorithms/common"
	"github.com/RyanBlaney/sonido-canto/algorithms/filters"
	"github.com/RyanBlaney/sonido-canto/algorithms/temporal"
	"github.com/RyanBlaney/sonido-canto/algorithms/tonal"
	"github.com/RyanBlaney/sonido-canto/extraction/config"
	"github.com/RyanBlaney/sonido-canto/logging"
	"github.com/RyanBlaney/sonido-canto/transcode"
)

const (
	// envelopeHopMs is the frame rate of the syllable envelope.
	envelopeHopMs = 1.0
	// trackerHeadroom lets the tracker follow notes up to an octave above
	// the allowed range so they are rejected instead of folded down.
	trackerHeadroom = 12.0
)

// Analyzer is the production PitchExtractor. It holds an immutable bundle
// and no per-call state.
type Analyzer struct {
	config  *config.AnalysisConfig
	decoder *transcode.Decoder
	tracker tonal.TrackerParams
}

var _ PitchExtractor = (*Analyzer)(nil)

// NewAnalyzer creates an analyser for cfg. A nil cfg selects the embedded
// default bundle; a nil decoder decodes at the bundle's sample rate.
func NewAnalyzer(cfg *config.AnalysisConfig, decoder *transcode.Decoder) (*Analyzer, error) {
	if cfg == nil {
		cfg = config.Default()
	} else {
		cfg = cfg.Clone()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid analysis bundle: %w", err)
	}

	if decoder == nil {
		decCfg := transcode.DefaultDecoderConfig()
		decCfg.TargetSampleRate = cfg.SampleRate
		decoder = transcode.NewDecoder(decCfg)
	}

	params := tonal.TrackerParams{
		SampleRate:         cfg.SampleRate,
		MinFreq:            common.MIDIToHz(cfg.PitchRangeAllowed[0]),
		MaxFreq:            common.MIDIToHz(cfg.PitchRangeAllowed[1] + trackerHeadroom),
		TimeStep:           cfg.PraatTimeStepMs / 1000,
		PeriodsPerWindow:   cfg.PraatPeriodsPerWindow,
		MaxCandidates:      cfg.PraatMaxCandidates,
		SilenceThreshold:   cfg.PraatSilenceThreshold,
		VoicingThreshold:   cfg.PraatVoicingThreshold,
		OctaveCost:         cfg.PraatOctaveCost,
		OctaveJumpCost:     cfg.PraatOctaveJumpCost,
		VoicedUnvoicedCost: cfg.PraatVoicedUnvoicedCost,
	}
	if _, err := tonal.NewPitchTracker(params); err != nil {
		return nil, fmt.Errorf("invalid pitch tracker settings: %w", err)
	}

	return &Analyzer{config: cfg, decoder: decoder, tracker: params}, nil
}

// Config returns a copy of the bundle in use.
func (a *Analyzer) Config() *config.AnalysisConfig {
	return a.config.Clone()
}

// Extract decodes audioPath and analyses it. Decode failures are returned;
// recordings too short or too quiet to hold a note give an empty result.
// The diagnostic image is written to plotPath unless it is empty.
func (a *Analyzer) Extract(ctx context.Context, audioPath, plotPath string) (*Result, error) {
	logger := logging.WithFields(logging.Fields{
		"component": "pitch_extractor",
		"function":  "Extract",
		"recording": audioPath,
	})

	audio, err := a.decoder.DecodeFile(ctx, audioPath)
	if err != nil {
		logger.Error(err, "Failed to decode recording")
		return nil, fmt.Errorf("decode recording %s: %w", audioPath, err)
	}

	result, err := a.analyze(ctx, audio.PCM, audio.SampleRate, plotPath)
	if err != nil {
		return nil, err
	}
	result.Raw.Decoder = audio.Source
	return result, nil
}

// ExtractReader copies r into scoped temporary storage and extracts from
// it. ext (".wav", ".webm", ...) picks the decoder. The temporary files are
// removed on every exit path.
func (a *Analyzer) ExtractReader(ctx context.Context, r io.Reader, ext, plotPath string) (*Result, error) {
	dir, err := os.MkdirTemp("", "canto-recording-")
	if err != nil {
		return nil, fmt.Errorf("create scratch directory: %w", err)
	}
	defer os.RemoveAll(dir)

	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	path := filepath.Join(dir, uuid.NewString()+ext)

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create scratch recording: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return nil, fmt.Errorf("spool recording: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("spool recording: %w", err)
	}

	return a.Extract(ctx, path, plotPath)
}

// ExtractSamples analyses mono PCM already in memory. Samples at another
// rate are resampled to the bundle's sample rate first.
func (a *Analyzer) ExtractSamples(ctx context.Context, pcm []float64, sampleRate int, plotPath string) (*Result, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive: %d", sampleRate)
	}
	return a.analyze(ctx, pcm, sampleRate, plotPath)
}

func (a *Analyzer) analyze(ctx context.Context, pcm []float64, sampleRate int, plotPath string) (*Result, error) {
	logger := logging.WithFields(logging.Fields{
		"component":      "pitch_extractor",
		"function":       "analyze",
		"config_version": a.config.Version,
	})
	start := time.Now()

	for i, v := range pcm {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			err := fmt.Errorf("%w: non-finite sample at index %d", transcode.ErrCorruptAudio, i)
			logger.Error(err, "Rejecting recording")
			return nil, err
		}
	}

	cfg := a.config
	if sampleRate != cfg.SampleRate {
		pcm = common.NewInterpolator(common.Cubic).ResampleSignal(pcm, sampleRate, cfg.SampleRate)
	}

	result := &Result{
		Pitches: []float64{},
		Raw: Diagnostic{
			ConfigVersion:     cfg.Version,
			ConfigFingerprint: cfg.Fingerprint(),
			Status:            StatusOK,
			SampleRate:        cfg.SampleRate,
			DurationMs:        float64(len(pcm)) * 1000 / float64(cfg.SampleRate),
			Notes:             []Note{},
			Rejected:          []Note{},
		},
	}

	plot := &plotData{cfg: cfg}
	defer func() {
		logger.Debug("Analysis finished", logging.Fields{
			"status":      result.Raw.Status,
			"notes":       len(result.Pitches),
			"duration_ms": result.Raw.DurationMs,
			"elapsed_ms":  time.Since(start).Milliseconds(),
		})
	}()

	if result.Raw.DurationMs < cfg.MinimumRecordingMs() {
		result.Raw.Status = StatusTooShort
		return a.finish(result, plot, plotPath)
	}
	if common.MaxAbs(pcm) == 0 {
		result.Raw.Status = StatusSilent
		return a.finish(result, plot, plotPath)
	}

	syllableBand, err := filters.NewBandpassFilter(cfg.SampleRate, cfg.SyllableBandpassRange[0], cfg.SyllableBandpassRange[1])
	if err != nil {
		return nil, fmt.Errorf("syllable bandpass: %w", err)
	}
	envelope := temporal.NewEnvelopeExtractor(temporal.EnvelopeConfig{
		HopMs:            envelopeHopMs,
		CompressionPower: cfg.CompressionPower,
		SmoothingMs:      cfg.SmoothingEnvWindowMs,
	}).Compute(syllableBand.FiltFilt(pcm), cfg.SampleRate)
	plot.env = envelope

	segments := temporal.NewSegmentDetector(temporal.SegmentationConfig{
		ThresholdDB:     cfg.DBThreshold,
		EndRelativeDB:   cfg.DBEndThresholdRelative,
		MinSilenceMs:    cfg.MsecSilence,
		SkipBeginningMs: cfg.SilenceBeginningMs,
		PeakMinHeight:   cfg.MinimumPeakHeight,
		PeakSpacingMs:   cfg.PeakTimeDifferenceMs,
	}).Detect(envelope)
	result.Raw.Segments = len(segments)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if len(segments) == 0 {
		result.Raw.Status = StatusSilent
		return a.finish(result, plot, plotPath)
	}

	pitchBand, err := filters.NewBandpassFilter(cfg.SampleRate, cfg.SingingBandpassRange[0], cfg.SingingBandpassRange[1])
	if err != nil {
		return nil, fmt.Errorf("pitch bandpass: %w", err)
	}
	tracker, err := tonal.NewPitchTracker(a.tracker)
	if err != nil {
		return nil, fmt.Errorf("pitch tracker: %w", err)
	}
	track := tracker.Track(pitchBand.FiltFilt(pcm))
	plot.track = track

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	nb := &noteBuilder{cfg: cfg, env: envelope, track: track}
	for _, seg := range segments {
		note := nb.build(seg)
		if note.Accepted() {
			result.Raw.Notes = append(result.Raw.Notes, note)
			result.Pitches = append(result.Pitches, note.MedianPitch)
			continue
		}
		logger.Debug("Segment rejected", logging.Fields{
			"onset_ms": note.OnsetMs,
			"reason":   note.Rejection,
		})
		result.Raw.Rejected = append(result.Raw.Rejected, note)
	}
	if len(result.Pitches) == 0 {
		result.Raw.Status = StatusNoNotes
	}

	return a.finish(result, plot, plotPath)
}

func (a *Analyzer) finish(result *Result, plot *plotData, plotPath string) (*Result, error) {
	if plotPath == "" {
		return result, nil
	}

	plot.result = result
	if err := plot.render(plotPath); err != nil {
		logging.Error(err, "Failed to write diagnostic plot", logging.Fields{
			"component": "pitch_extractor",
			"plot_path": plotPath,
		})
		return nil, fmt.Errorf("write diagnostic plot: %w", err)
	}
	result.Raw.PlotPath = plotPath
	return result, nil
}
