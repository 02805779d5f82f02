package transcode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	wavFormatPCM        = 0x0001
	wavFormatIEEEFloat  = 0x0003
	wavFormatExtensible = 0xFFFE

	// fmt chunks are 16, 18 or 40 bytes long
	maxFmtChunkSize = 64
	wavBitDepth     = 16
)

// WAV is a decoded RIFF/WAVE file downmixed to mono.
type WAV struct {
	Samples       []float64
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// ReadWAV decodes integer PCM (8/16/24/32 bit) and IEEE float (32/64 bit)
// WAVE data, averaging channels to mono. Other encodings return
// ErrUnsupportedFormat; non-finite float samples return ErrCorruptAudio;
// structural damage returns a plain error.
func ReadWAV(rs io.ReadSeeker) (*WAV, error) {
	if err := checkChunks(rs); err != nil {
		return nil, err
	}
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind WAVE file: %w", err)
	}

	d := wav.NewDecoder(rs)
	d.ReadInfo()
	if err := d.Err(); err != nil {
		return nil, fmt.Errorf("read WAVE header: %w", err)
	}
	if d.NumChans == 0 || d.SampleRate == 0 {
		return nil, fmt.Errorf("invalid fmt chunk: %d channels at %d Hz", d.NumChans, d.SampleRate)
	}

	out := &WAV{
		SampleRate:    int(d.SampleRate),
		Channels:      int(d.NumChans),
		BitsPerSample: int(d.BitDepth),
	}

	var interleaved []float64
	var err error
	switch {
	case d.WavAudioFormat == wavFormatIEEEFloat && (d.BitDepth == 32 || d.BitDepth == 64):
		interleaved, err = readFloatPCM(d)
	case isIntegerPCM(d.WavAudioFormat, d.BitDepth):
		interleaved, err = readIntPCM(d)
	default:
		return nil, fmt.Errorf("%w: WAVE format 0x%04x with %d bits", ErrUnsupportedFormat, d.WavAudioFormat, d.BitDepth)
	}
	if err != nil {
		return nil, err
	}

	out.Samples = downmix(interleaved, out.Channels)
	return out, nil
}

func isIntegerPCM(format, bits uint16) bool {
	switch format {
	case wavFormatPCM:
		return bits == 8 || bits == 16 || bits == 24 || bits == 32
	case wavFormatExtensible:
		// 32-bit extensible may be float; ffmpeg reads the sub-format
		return bits == 8 || bits == 16 || bits == 24
	}
	return false
}

func readIntPCM(d *wav.Decoder) ([]float64, error) {
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("read data chunk: %w", err)
	}

	// the decoder reads to EOF; trailing chunks are not samples
	if n := d.PCMChunk.Size / (int(d.BitDepth) / 8); n < len(buf.Data) {
		buf.Data = buf.Data[:n]
	}

	scale := math.Ldexp(1, int(d.BitDepth)-1)
	offset := 0.0
	if d.BitDepth == 8 {
		// 8-bit PCM is unsigned
		offset = 128
	}
	out := make([]float64, len(buf.Data))
	for i, v := range buf.Data {
		out[i] = (float64(v) - offset) / scale
	}
	return out, nil
}

func readFloatPCM(d *wav.Decoder) ([]float64, error) {
	if err := d.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("find data chunk: %w", err)
	}
	if d.PCMChunk == nil {
		return nil, errors.New("data chunk not found")
	}
	data, err := io.ReadAll(io.LimitReader(d.PCMChunk, int64(d.PCMChunk.Size)))
	if err != nil {
		return nil, fmt.Errorf("read data chunk: %w", err)
	}

	width := int(d.BitDepth) / 8
	out := make([]float64, len(data)/width)
	for i := range out {
		b := data[i*width : (i+1)*width]
		var v float64
		if width == 4 {
			v = float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
		} else {
			v = math.Float64frombits(binary.LittleEndian.Uint64(b))
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: non-finite sample at index %d", ErrCorruptAudio, i)
		}
		out[i] = v
	}
	return out, nil
}

// downmix averages interleaved channels; a truncated final frame is dropped.
func downmix(interleaved []float64, channels int) []float64 {
	if channels <= 1 {
		return interleaved
	}
	frames := len(interleaved) / channels
	out := make([]float64, frames)
	for i := range frames {
		sum := 0.0
		for ch := range channels {
			sum += interleaved[i*channels+ch]
		}
		out[i] = sum / float64(channels)
	}
	return out
}

// checkChunks walks the chunk headers before the data chunk. The decoder
// allocates metadata chunks at their declared size, so a fmt chunk larger
// than maxFmtChunkSize or any chunk claiming more bytes than the file holds
// is rejected up front.
func checkChunks(rs io.ReadSeeker) error {
	end, err := rs.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("size WAVE file: %w", err)
	}
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind WAVE file: %w", err)
	}

	var header [12]byte
	if _, err := io.ReadFull(rs, header[:]); err != nil {
		return fmt.Errorf("read RIFF header: %w", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return fmt.Errorf("%w: not a RIFF/WAVE file", ErrUnsupportedFormat)
	}

	pos := int64(len(header))
	sawFmt := false
	for {
		var chunk [8]byte
		if _, err := io.ReadFull(rs, chunk[:]); err != nil {
			return fmt.Errorf("read chunk header: %w", err)
		}
		pos += int64(len(chunk))
		id := string(chunk[0:4])
		size := int64(binary.LittleEndian.Uint32(chunk[4:8]))

		switch {
		case id == "data":
			if !sawFmt {
				return errors.New("data chunk precedes fmt chunk")
			}
			return nil
		case id == "fmt " && (size < 16 || size > maxFmtChunkSize):
			return fmt.Errorf("fmt chunk of %d bytes", size)
		case size > end-pos:
			return fmt.Errorf("%q chunk of %d bytes overruns the file", id, size)
		}
		if id == "fmt " {
			sawFmt = true
		}

		skip := size + size%2
		if _, err := rs.Seek(skip, io.SeekCurrent); err != nil {
			return fmt.Errorf("skip %q chunk: %w", id, err)
		}
		pos += skip
	}
}

// WriteWAV encodes mono samples in [-1, 1] as 16-bit PCM. Values outside the
// range are clipped.
func WriteWAV(w io.WriteSeeker, samples []float64, sampleRate int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive: %d", sampleRate)
	}

	full := math.Ldexp(1, wavBitDepth-1) - 1
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           make([]int, len(samples)),
		SourceBitDepth: wavBitDepth,
	}
	for i, s := range samples {
		buf.Data[i] = int(math.Round(math.Max(-1, math.Min(1, s)) * full))
	}

	enc := wav.NewEncoder(w, sampleRate, wavBitDepth, 1, wavFormatPCM)
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write WAV samples: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finish WAV file: %w", err)
	}
	return nil
}
