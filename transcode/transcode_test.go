package transcode

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wavFixture writes samples through WriteWAV and reopens the file.
func wavFixture(t *testing.T, samples []float64, sampleRate int) *os.File {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, WriteWAV(f, samples, sampleRate))
	require.NoError(t, f.Close())

	f, err = os.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

// riffFile assembles a WAVE file from raw chunks.
func riffFile(chunks ...[]byte) []byte {
	var body bytes.Buffer
	body.WriteString("WAVE")
	for _, c := range chunks {
		body.Write(c)
	}
	var out bytes.Buffer
	out.WriteString("RIFF")
	binary.Write(&out, binary.LittleEndian, uint32(body.Len()))
	out.Write(body.Bytes())
	return out.Bytes()
}

func chunk(id string, size uint32, body []byte) []byte {
	var b bytes.Buffer
	b.WriteString(id)
	binary.Write(&b, binary.LittleEndian, size)
	b.Write(body)
	return b.Bytes()
}

func fmtBody(format, channels uint16, rate uint32, bits uint16) []byte {
	var b bytes.Buffer
	block := channels * bits / 8
	binary.Write(&b, binary.LittleEndian, format)
	binary.Write(&b, binary.LittleEndian, channels)
	binary.Write(&b, binary.LittleEndian, rate)
	binary.Write(&b, binary.LittleEndian, rate*uint32(block))
	binary.Write(&b, binary.LittleEndian, block)
	binary.Write(&b, binary.LittleEndian, bits)
	return b.Bytes()
}

func float32Data(values ...float32) []byte {
	var b bytes.Buffer
	for _, v := range values {
		binary.Write(&b, binary.LittleEndian, math.Float32bits(v))
	}
	return b.Bytes()
}

func TestWAVRoundTrip(t *testing.T) {
	samples := []float64{0, 0.5, -0.5, 1, -1, 0.25}

	wav, err := ReadWAV(wavFixture(t, samples, 22050))
	require.NoError(t, err)
	assert.Equal(t, 22050, wav.SampleRate)
	assert.Equal(t, 1, wav.Channels)
	assert.Equal(t, 16, wav.BitsPerSample)
	require.Len(t, wav.Samples, len(samples))
	for i := range samples {
		assert.InDelta(t, samples[i], wav.Samples[i], 1e-4)
	}
}

func TestReadWAVStereo24BitDownmix(t *testing.T) {
	frames := [][2]int32{{0x400000, 0x400000}, {-0x400000, 0x400000}}
	var data bytes.Buffer
	for _, f := range frames {
		for _, v := range f {
			u := uint32(v)
			data.Write([]byte{byte(u), byte(u >> 8), byte(u >> 16)})
		}
	}

	file := riffFile(
		chunk("fmt ", 16, fmtBody(wavFormatPCM, 2, 8000, 24)),
		// unknown chunks are skipped
		chunk("JUNK", 4, []byte{1, 2, 3, 4}),
		chunk("data", uint32(data.Len()), data.Bytes()),
	)

	wav, err := ReadWAV(bytes.NewReader(file))
	require.NoError(t, err)
	assert.Equal(t, 2, wav.Channels)
	require.Len(t, wav.Samples, 2)
	assert.InDelta(t, 0.5, wav.Samples[0], 1e-9)
	assert.InDelta(t, 0.0, wav.Samples[1], 1e-9)
}

func TestReadWAVFloat32(t *testing.T) {
	file := riffFile(
		chunk("fmt ", 16, fmtBody(wavFormatIEEEFloat, 1, 8000, 32)),
		chunk("data", 12, float32Data(0.25, -0.5, 1)),
	)

	wav, err := ReadWAV(bytes.NewReader(file))
	require.NoError(t, err)
	assert.Equal(t, []float64{0.25, -0.5, 1}, wav.Samples)
}

func TestReadWAVUnsigned8Bit(t *testing.T) {
	file := riffFile(
		chunk("fmt ", 16, fmtBody(wavFormatPCM, 1, 8000, 8)),
		chunk("data", 4, []byte{128, 192, 64, 0}),
	)

	wav, err := ReadWAV(bytes.NewReader(file))
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0.5, -0.5, -1}, wav.Samples)
}

func TestReadWAVIgnoresChunksAfterData(t *testing.T) {
	trailer := chunk("JUNK", 4, []byte{0xff, 0x7f, 0xff, 0x7f})

	intFile := riffFile(
		chunk("fmt ", 16, fmtBody(wavFormatPCM, 1, 8000, 8)),
		chunk("data", 2, []byte{128, 192}),
		trailer,
	)
	wav, err := ReadWAV(bytes.NewReader(intFile))
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0.5}, wav.Samples)

	floatFile := riffFile(
		chunk("fmt ", 16, fmtBody(wavFormatIEEEFloat, 1, 8000, 32)),
		chunk("data", 4, float32Data(0.25)),
		trailer,
	)
	wav, err = ReadWAV(bytes.NewReader(floatFile))
	require.NoError(t, err)
	assert.Equal(t, []float64{0.25}, wav.Samples)
}

func TestReadWAVRejectsNonFiniteFloat(t *testing.T) {
	for name, bad := range map[string]float32{
		"nan": float32(math.NaN()),
		"inf": float32(math.Inf(1)),
	} {
		t.Run(name, func(t *testing.T) {
			file := riffFile(
				chunk("fmt ", 16, fmtBody(wavFormatIEEEFloat, 1, 8000, 32)),
				chunk("data", 8, float32Data(bad, 0.5)),
			)

			_, err := ReadWAV(bytes.NewReader(file))
			assert.ErrorIs(t, err, ErrCorruptAudio)
			assert.NotErrorIs(t, err, ErrUnsupportedFormat)
		})
	}
}

func TestReadWAVRejectsOversizedChunks(t *testing.T) {
	data := chunk("data", 2, []byte{0, 0})

	hugeFmt := riffFile(chunk("fmt ", 0x7FFFFFF0, fmtBody(wavFormatPCM, 1, 8000, 16)), data)
	_, err := ReadWAV(bytes.NewReader(hugeFmt))
	assert.ErrorContains(t, err, "fmt chunk of")

	hugeList := riffFile(
		chunk("fmt ", 16, fmtBody(wavFormatPCM, 1, 8000, 16)),
		chunk("LIST", 0x7FFFFFF0, []byte("INFO")),
		data,
	)
	_, err = ReadWAV(bytes.NewReader(hugeList))
	assert.ErrorContains(t, err, "overruns the file")
}

func TestReadWAVDataBeforeFmt(t *testing.T) {
	file := riffFile(chunk("data", 2, []byte{0, 0}), chunk("fmt ", 16, fmtBody(wavFormatPCM, 1, 8000, 16)))
	_, err := ReadWAV(bytes.NewReader(file))
	assert.ErrorContains(t, err, "data chunk precedes fmt chunk")
}

func TestDecodeFileFloatWAVWithNaNFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nan.wav")
	file := riffFile(
		chunk("fmt ", 16, fmtBody(wavFormatIEEEFloat, 1, 44100, 32)),
		chunk("data", 12, float32Data(0.1, float32(math.NaN()), 0.1)),
	)
	require.NoError(t, os.WriteFile(path, file, 0o644))

	_, err := NewDecoder(nil).DecodeFile(context.Background(), path)
	assert.ErrorIs(t, err, ErrCorruptAudio)
}

func TestReadWAVRejectsNonRIFF(t *testing.T) {
	_, err := ReadWAV(bytes.NewReader([]byte("ID3 this is an mp3 really")))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = ReadWAV(bytes.NewReader([]byte("RIF")))
	assert.Error(t, err)
}

func TestReadWAVHeaderOnlyIsEmpty(t *testing.T) {
	wav, err := ReadWAV(wavFixture(t, nil, 44100))
	require.NoError(t, err)
	assert.Empty(t, wav.Samples)
	assert.Equal(t, 44100, wav.SampleRate)
}

func TestDecodeFileWAVResamples(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tone.wav")

	samples := make([]float64, 22050)
	for i := range samples {
		samples[i] = 0.5 * math.Sin(2*math.Pi*220*float64(i)/22050)
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, WriteWAV(f, samples, 22050))
	require.NoError(t, f.Close())

	dec := NewDecoder(nil)
	audio, err := dec.DecodeFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 44100, audio.SampleRate)
	assert.Equal(t, "wav", audio.Source)
	assert.InDelta(t, 44100, len(audio.PCM), 2)
	assert.InDelta(t, 1000, audio.DurationMs(), 1)
}

func TestDecodeFileMaxDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "long.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, WriteWAV(f, make([]float64, 44100*2), 44100))
	require.NoError(t, f.Close())

	cfg := DefaultDecoderConfig()
	cfg.MaxDuration = 500_000_000 // 0.5s
	audio, err := NewDecoder(cfg).DecodeFile(context.Background(), path)
	require.NoError(t, err)
	assert.Len(t, audio.PCM, 22050)
}

func TestDecodeFileMissing(t *testing.T) {
	_, err := NewDecoder(nil).DecodeFile(context.Background(), filepath.Join(t.TempDir(), "missing.wav"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDecodeFileCorruptWAVFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFF\x00\x00"), 0o644))

	_, err := NewDecoder(nil).DecodeFile(context.Background(), path)
	assert.Error(t, err)
}

func TestParseFFprobeOutput(t *testing.T) {
	meta, err := parseFFprobeOutput([]byte(`{"streams":[{"codec_type":"audio","codec_name":"opus","sample_rate":"48000","channels":2,"duration":"3.5"}]}`))
	require.NoError(t, err)
	assert.Equal(t, 48000, meta.SampleRate)
	assert.Equal(t, 2, meta.Channels)
	assert.Equal(t, "opus", meta.Codec)
	assert.Equal(t, 3.5, meta.Duration)

	_, err = parseFFprobeOutput([]byte(`{"streams":[]}`))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = parseFFprobeOutput([]byte(`{"streams":[{"codec_type":"video","channels":0}]}`))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = parseFFprobeOutput([]byte(`not json`))
	assert.Error(t, err)
}

func TestBytesToFloat64DropsPartialSample(t *testing.T) {
	buf := make([]byte, 20)
	binary.LittleEndian.PutUint64(buf[0:], math.Float64bits(0.25))
	binary.LittleEndian.PutUint64(buf[8:], math.Float64bits(-1))

	assert.Equal(t, []float64{0.25, -1}, bytesToFloat64(buf))
	assert.Empty(t, bytesToFloat64(nil))
}
