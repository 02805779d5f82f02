package extraction

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/sonido-canto/extraction/config"
	"github.com/RyanBlaney/sonido-canto/transcode"
)

const rate = 44100

// sung renders tones at the given MIDI pitches, each toneMs long and
// separated by gapMs of silence, with gapMs of silence before and after.
func sung(pitches []float64, toneMs, gapMs float64) []float64 {
	toneLen := int(toneMs * rate / 1000)
	gapLen := int(gapMs * rate / 1000)
	fade := rate / 200

	out := make([]float64, gapLen)
	for _, p := range pitches {
		freq := 440 * math.Pow(2, (p-69)/12)
		for i := range toneLen {
			amp := 0.4
			if i < fade {
				amp *= float64(i) / float64(fade)
			} else if toneLen-i < fade {
				amp *= float64(toneLen-i) / float64(fade)
			}
			out = append(out, amp*math.Sin(2*math.Pi*freq*float64(i)/rate))
		}
		out = append(out, make([]float64, gapLen)...)
	}
	return out
}

func writeFixture(t *testing.T, samples []float64, sampleRate int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "response.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, transcode.WriteWAV(f, samples, sampleRate))
	require.NoError(t, f.Close())
	return path
}

func newTestAnalyzer(t *testing.T) *Analyzer {
	t.Helper()
	a, err := NewAnalyzer(nil, nil)
	require.NoError(t, err)
	return a
}

func TestExtractSyntheticTones(t *testing.T) {
	truth := []float64{57, 60, 64}
	path := writeFixture(t, sung(truth, 400, 300), rate)
	plotPath := filepath.Join(t.TempDir(), "plot.png")

	result, err := newTestAnalyzer(t).Extract(context.Background(), path, plotPath)
	require.NoError(t, err)

	require.Len(t, result.Pitches, len(truth))
	for i := range truth {
		assert.InDelta(t, truth[i], result.Pitches[i], 0.25, "note %d", i)
	}

	raw := result.Raw
	assert.Equal(t, StatusOK, raw.Status)
	assert.Equal(t, "wav", raw.Decoder)
	assert.Equal(t, "sing4me-2022-autumn", raw.ConfigVersion)
	assert.Equal(t, config.Default().Fingerprint(), raw.ConfigFingerprint)
	assert.Equal(t, plotPath, raw.PlotPath)
	require.Len(t, raw.Notes, len(truth))
	for i, n := range raw.Notes {
		assert.Equal(t, result.Pitches[i], n.MedianPitch)
		assert.Less(t, n.OnsetMs, n.OffsetMs)
		assert.LessOrEqual(t, n.ExtendedOnsetMs, n.OnsetMs+config.Default().CutPreMs)
		assert.Greater(t, n.Confidence, 0.8)
		assert.NotEmpty(t, n.FramePitches)
		if i > 0 {
			assert.Greater(t, n.OnsetMs, raw.Notes[i-1].OffsetMs)
		}
	}

	data, err := json.Marshal(result)
	require.NoError(t, err)
	assert.True(t, json.Valid(data))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Len(t, decoded["pitches"], len(truth))
	assert.Contains(t, decoded["raw"], "notes")

	f, err := os.Open(plotPath)
	require.NoError(t, err)
	defer f.Close()
	_, err = png.Decode(f)
	assert.NoError(t, err)
}

func TestExtractSilenceIsEmpty(t *testing.T) {
	path := writeFixture(t, make([]float64, rate), rate)
	plotPath := filepath.Join(t.TempDir(), "silence.png")

	result, err := newTestAnalyzer(t).Extract(context.Background(), path, plotPath)
	require.NoError(t, err)
	assert.NotNil(t, result.Pitches)
	assert.Empty(t, result.Pitches)
	assert.Equal(t, StatusSilent, result.Raw.Status)
	assert.FileExists(t, plotPath)

	data, err := json.Marshal(result)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"pitches":[]`)
}

func TestExtractTooShortIsEmpty(t *testing.T) {
	path := writeFixture(t, sung([]float64{60}, 60, 20), rate)

	result, err := newTestAnalyzer(t).Extract(context.Background(), path, "")
	require.NoError(t, err)
	assert.Empty(t, result.Pitches)
	assert.Equal(t, StatusTooShort, result.Raw.Status)
	assert.Empty(t, result.Raw.PlotPath)
}

func TestExtractRejectsOutOfRange(t *testing.T) {
	// a 1 kHz whistle is above the allowed singing range
	result, err := newTestAnalyzer(t).ExtractSamples(context.Background(), sung([]float64{83}, 400, 300), rate, "")
	require.NoError(t, err)
	assert.Empty(t, result.Pitches)
	assert.Equal(t, StatusNoNotes, result.Raw.Status)
	require.Len(t, result.Raw.Rejected, 1)
	assert.Equal(t, RejectOutOfRange, result.Raw.Rejected[0].Rejection)
	assert.InDelta(t, 83, result.Raw.Rejected[0].MedianPitch, 0.25)
}

func TestExtractMissingFileIsFatal(t *testing.T) {
	_, err := newTestAnalyzer(t).Extract(context.Background(), filepath.Join(t.TempDir(), "nope.wav"), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestExtractCorruptFileIsFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFF\x10\x00\x00\x00WAVEfmt "), 0o644))

	_, err := newTestAnalyzer(t).Extract(context.Background(), path, "")
	assert.Error(t, err)
}

func TestExtractReaderUsesScratchFile(t *testing.T) {
	f, err := os.Open(writeFixture(t, sung([]float64{62}, 400, 300), rate))
	require.NoError(t, err)
	defer f.Close()

	result, err := newTestAnalyzer(t).ExtractReader(context.Background(), f, "wav", "")
	require.NoError(t, err)
	require.Len(t, result.Pitches, 1)
	assert.InDelta(t, 62, result.Pitches[0], 0.25)
}

func TestExtractRejectsNonFiniteSamples(t *testing.T) {
	samples := sung([]float64{60, 64}, 400, 300)
	samples[len(samples)/3] = math.NaN()
	plotPath := filepath.Join(t.TempDir(), "nan.png")

	result, err := newTestAnalyzer(t).ExtractSamples(context.Background(), samples, rate, plotPath)
	require.Error(t, err)
	assert.ErrorIs(t, err, transcode.ErrCorruptAudio)
	assert.Nil(t, result)
	assert.NoFileExists(t, plotPath)

	samples[len(samples)/3] = math.Inf(-1)
	_, err = newTestAnalyzer(t).ExtractSamples(context.Background(), samples, rate, "")
	assert.ErrorIs(t, err, transcode.ErrCorruptAudio)
}

func TestExtractFloatWAVWithNaNIsFatal(t *testing.T) {
	var data bytes.Buffer
	for i := range 4410 {
		v := float32(0.3 * math.Sin(2*math.Pi*261.63*float64(i)/rate))
		if i == 100 {
			v = float32(math.NaN())
		}
		binary.Write(&data, binary.LittleEndian, math.Float32bits(v))
	}

	var file bytes.Buffer
	file.WriteString("RIFF")
	binary.Write(&file, binary.LittleEndian, uint32(36+data.Len()))
	file.WriteString("WAVEfmt ")
	for _, v := range []any{uint32(16), uint16(3), uint16(1), uint32(rate), uint32(rate * 4), uint16(4), uint16(32)} {
		binary.Write(&file, binary.LittleEndian, v)
	}
	file.WriteString("data")
	binary.Write(&file, binary.LittleEndian, uint32(data.Len()))
	file.Write(data.Bytes())

	path := filepath.Join(t.TempDir(), "float.wav")
	require.NoError(t, os.WriteFile(path, file.Bytes(), 0o644))

	_, err := newTestAnalyzer(t).Extract(context.Background(), path, "")
	assert.ErrorIs(t, err, transcode.ErrCorruptAudio)
}

func TestExtractSamplesResamples(t *testing.T) {
	samples := sung([]float64{55, 67}, 400, 300)
	// decimate by two: 22.05 kHz input
	half := make([]float64, len(samples)/2)
	for i := range half {
		half[i] = samples[2*i]
	}

	result, err := newTestAnalyzer(t).ExtractSamples(context.Background(), half, rate/2, "")
	require.NoError(t, err)
	require.Len(t, result.Pitches, 2)
	assert.InDelta(t, 55, result.Pitches[0], 0.25)
	assert.InDelta(t, 67, result.Pitches[1], 0.25)
	assert.InDelta(t, float64(len(samples))*1000/rate, result.Raw.DurationMs, 1)
}

func TestExtractHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestAnalyzer(t).ExtractSamples(ctx, sung([]float64{60}, 400, 300), rate, "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewAnalyzerRejectsInvalidBundle(t *testing.T) {
	cfg := config.Default()
	cfg.SampleRate = 0
	_, err := NewAnalyzer(cfg, nil)
	assert.Error(t, err)

	cfg = config.Default()
	cfg.Version = "local-test"
	a, err := NewAnalyzer(cfg, nil)
	require.NoError(t, err)
	cfg.Version = "mutated"
	assert.Equal(t, "local-test", a.Config().Version)
}
