package transcode

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/RyanBlaney/sonido-canto/algorithms/common"
	"github.com/RyanBlaney/sonido-canto/logging"
)

var (
	// ErrUnsupportedFormat marks input no decoder could interpret.
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	// ErrDecoderUnavailable marks a missing ffmpeg/ffprobe binary.
	ErrDecoderUnavailable = errors.New("audio decoder unavailable")
	// ErrCorruptAudio marks decodable containers holding unusable samples.
	ErrCorruptAudio = errors.New("corrupt audio")
)

// AudioData is a decoded mono recording.
type AudioData struct {
	PCM        []float64     `json:"-"`
	SampleRate int           `json:"sample_rate"`
	Duration   time.Duration `json:"duration"`
	// Source describes how the file was decoded ("wav" or the ffprobe codec name).
	Source string `json:"source"`
}

// DurationMs returns the recording length in milliseconds.
func (a *AudioData) DurationMs() float64 {
	if a.SampleRate <= 0 {
		return 0
	}
	return float64(len(a.PCM)) * 1000 / float64(a.SampleRate)
}

// DecoderConfig holds decoder configuration
type DecoderConfig struct {
	TargetSampleRate int           `json:"target_sample_rate"`
	FFmpegPath       string        `json:"ffmpeg_path"`
	FFprobePath      string        `json:"ffprobe_path"`
	Timeout          time.Duration `json:"timeout"`
	// MaxDuration truncates long recordings; zero means no limit.
	MaxDuration time.Duration `json:"max_duration"`
}

// DefaultDecoderConfig returns a mono 44.1 kHz configuration using binaries from PATH.
func DefaultDecoderConfig() *DecoderConfig {
	return &DecoderConfig{
		TargetSampleRate: 44100,
		FFmpegPath:       "ffmpeg",
		FFprobePath:      "ffprobe",
		Timeout:          30 * time.Second,
	}
}

// Decoder turns recordings into mono float64 PCM. RIFF/WAVE files are read
// natively; anything else goes through ffmpeg.
type Decoder struct {
	config *DecoderConfig
}

// AudioMetadata holds detected audio properties from FFprobe
type AudioMetadata struct {
	SampleRate int     `json:"sample_rate"`
	Channels   int     `json:"channels"`
	Codec      string  `json:"codec"`
	Duration   float64 `json:"duration"`
}

// NewDecoder creates a new audio decoder
func NewDecoder(config *DecoderConfig) *Decoder {
	if config == nil {
		config = DefaultDecoderConfig()
	}
	return &Decoder{config: config}
}

// DecodeFile decodes filename into mono PCM at the target sample rate. A
// decodable file with no samples yields empty PCM and no error.
func (d *Decoder) DecodeFile(ctx context.Context, filename string) (*AudioData, error) {
	logger := logging.WithFields(logging.Fields{
		"component": "audio_decoder",
		"function":  "DecodeFile",
		"filename":  filename,
	})

	if _, err := os.Stat(filename); err != nil {
		logger.Error(err, "Recording not readable")
		return nil, fmt.Errorf("stat recording: %w", err)
	}

	if strings.EqualFold(filepath.Ext(filename), ".wav") {
		audio, err := d.decodeWAVFile(filename)
		if err == nil {
			logger.Debug("Decoded natively", logging.Fields{
				"samples":     len(audio.PCM),
				"duration_ms": audio.DurationMs(),
			})
			return audio, nil
		}
		if !errors.Is(err, ErrUnsupportedFormat) {
			logger.Error(err, "WAV decode failed")
			return nil, err
		}
		// e.g. ADPCM or mu-law payloads; ffmpeg handles those
		logger.Debug("WAV encoding not handled natively, falling back to ffmpeg", logging.Fields{
			"reason": err.Error(),
		})
	}

	metadata, err := d.probeAudioFile(ctx, filename)
	if err != nil {
		logger.Error(err, "Failed to probe audio file")
		return nil, err
	}

	logger.Debug("Audio metadata detected", logging.Fields{
		"input_sample_rate": metadata.SampleRate,
		"input_channels":    metadata.Channels,
		"input_codec":       metadata.Codec,
		"input_duration":    metadata.Duration,
	})

	return d.decodeFileWithFFmpeg(ctx, filename, metadata)
}

func (d *Decoder) decodeWAVFile(filename string) (*AudioData, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open recording: %w", err)
	}
	defer f.Close()

	wav, err := ReadWAV(f)
	if err != nil {
		return nil, err
	}

	pcm := wav.Samples
	if wav.SampleRate != d.config.TargetSampleRate && len(pcm) > 0 {
		interp := common.NewInterpolator(common.Linear)
		pcm = interp.ResampleSignal(pcm, wav.SampleRate, d.config.TargetSampleRate)
	}
	pcm = d.truncate(pcm)

	return d.newAudioData(pcm, "wav"), nil
}

func (d *Decoder) truncate(pcm []float64) []float64 {
	if d.config.MaxDuration <= 0 {
		return pcm
	}
	limit := int(d.config.MaxDuration.Seconds() * float64(d.config.TargetSampleRate))
	if limit < len(pcm) {
		return pcm[:limit]
	}
	return pcm
}

func (d *Decoder) newAudioData(pcm []float64, source string) *AudioData {
	return &AudioData{
		PCM:        pcm,
		SampleRate: d.config.TargetSampleRate,
		Duration:   time.Duration(len(pcm)) * time.Second / time.Duration(d.config.TargetSampleRate),
		Source:     source,
	}
}

func (d *Decoder) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.config.Timeout > 0 {
		return context.WithTimeout(ctx, d.config.Timeout)
	}
	return context.WithCancel(ctx)
}

// probeAudioFile uses ffprobe to get audio information from a file
func (d *Decoder) probeAudioFile(ctx context.Context, filename string) (*AudioMetadata, error) {
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		"-select_streams", "a:0",
		filename,
	}

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	output, err := exec.CommandContext(ctx, d.config.FFprobePath, args...).Output()
	if err != nil {
		return nil, commandError("ffprobe", err)
	}

	return parseFFprobeOutput(output)
}

// parseFFprobeOutput parses ffprobe JSON to extract audio metadata
func parseFFprobeOutput(jsonData []byte) (*AudioMetadata, error) {
	var probe struct {
		Streams []struct {
			CodecType  string `json:"codec_type"`
			CodecName  string `json:"codec_name"`
			SampleRate string `json:"sample_rate"`
			Channels   int    `json:"channels"`
			Duration   string `json:"duration"`
		} `json:"streams"`
	}

	if err := json.Unmarshal(jsonData, &probe); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	if len(probe.Streams) == 0 {
		return nil, fmt.Errorf("%w: no audio stream found", ErrUnsupportedFormat)
	}

	stream := probe.Streams[0]
	if stream.CodecType != "audio" {
		return nil, fmt.Errorf("%w: stream is %s, not audio", ErrUnsupportedFormat, stream.CodecType)
	}

	sampleRate, err := strconv.Atoi(stream.SampleRate)
	if err != nil {
		sampleRate = 0
	}

	duration, err := strconv.ParseFloat(stream.Duration, 64)
	if err != nil {
		duration = 0
	}

	if stream.Channels <= 0 || stream.Channels > 8 {
		return nil, fmt.Errorf("%w: invalid channel count %d", ErrUnsupportedFormat, stream.Channels)
	}

	return &AudioMetadata{
		SampleRate: sampleRate,
		Channels:   stream.Channels,
		Codec:      stream.CodecName,
		Duration:   duration,
	}, nil
}

// decodeFileWithFFmpeg downmixes and resamples to raw f64le on stdout.
func (d *Decoder) decodeFileWithFFmpeg(ctx context.Context, filename string, metadata *AudioMetadata) (*AudioData, error) {
	logger := logging.WithFields(logging.Fields{
		"component": "audio_decoder",
		"function":  "decodeFileWithFFmpeg",
		"filename":  filename,
	})

	args := []string{
		"-v", "error",
		"-i", filename,
		"-map", "0:a:0",
		"-vn",
		"-f", "f64le",
		"-ac", "1",
		"-ar", strconv.Itoa(d.config.TargetSampleRate),
	}
	if metadata.SampleRate != d.config.TargetSampleRate {
		args = append(args, "-af", "aresample=resampler=soxr:precision=20")
	}
	if d.config.MaxDuration > 0 {
		args = append(args, "-t", fmt.Sprintf("%.3f", d.config.MaxDuration.Seconds()))
	}
	args = append(args, "pipe:1")

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	logger.Debug("Running ffmpeg command", logging.Fields{
		"args": strings.Join(args, " "),
	})

	start := time.Now()
	output, err := exec.CommandContext(ctx, d.config.FFmpegPath, args...).Output()
	if err != nil {
		logger.Error(err, "FFmpeg decode failed")
		return nil, commandError("ffmpeg", err)
	}

	samples := bytesToFloat64(output)
	logger.Debug("FFmpeg decode completed", logging.Fields{
		"output_samples": len(samples),
		"decode_time":    time.Since(start).Seconds(),
	})

	return d.newAudioData(samples, metadata.Codec), nil
}

func commandError(tool string, err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return fmt.Errorf("%w: %s failed: %v, stderr: %s", ErrUnsupportedFormat, tool, err, strings.TrimSpace(string(exitErr.Stderr)))
	}
	if errors.Is(err, exec.ErrNotFound) {
		return fmt.Errorf("%w: %s: %v", ErrDecoderUnavailable, tool, err)
	}
	return fmt.Errorf("%s failed: %w", tool, err)
}

// bytesToFloat64 converts raw float64 little-endian bytes, ignoring a trailing partial sample.
func bytesToFloat64(data []byte) []float64 {
	sampleCount := len(data) / 8
	samples := make([]float64, sampleCount)

	for i := range sampleCount {
		bits := binary.LittleEndian.Uint64(data[i*8 : i*8+8])
		samples[i] = math.Float64frombits(bits)
	}

	return samples
}

// ValidateConfig checks the configuration and that ffmpeg/ffprobe can be executed.
func (d *Decoder) ValidateConfig(ctx context.Context) error {
	if d.config.TargetSampleRate <= 0 {
		return fmt.Errorf("target sample rate must be positive: %d", d.config.TargetSampleRate)
	}

	for _, bin := range []string{d.config.FFmpegPath, d.config.FFprobePath} {
		if err := exec.CommandContext(ctx, bin, "-version").Run(); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrDecoderUnavailable, bin, err)
		}
	}

	return nil
}
