package notation

import (
	"fmt"
	"math"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

const (
	midiTempo    = 80.0
	midiVelocity = 90
	// bendRange is the synthesiser's default pitch bend range in semitones.
	bendRange = 2.0
	// drums live on channel 10 (index 9)
	drumChannel = 9
)

// BuildMIDI renders a two-track file: the target chord held as a block for
// two beats, then the sung pitches one beat each in order. Fractional
// pitches keep their cents offset as a pitch bend on a channel per note.
func BuildMIDI(target, sung []float64) (*smf.SMF, error) {
	for _, p := range append(append([]float64{}, target...), sung...) {
		if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 || p > 127 {
			return nil, fmt.Errorf("pitch %v outside the MIDI range", p)
		}
	}

	s := smf.New()
	ticks, ok := s.TimeFormat.(smf.MetricTicks)
	if !ok {
		return nil, fmt.Errorf("unexpected time format %v", s.TimeFormat)
	}
	beat := ticks.Ticks4th()

	var chord smf.Track
	chord.Add(0, smf.MetaTrackSequenceName("target"))
	chord.Add(0, smf.MetaTempo(midiTempo))
	for i, p := range target {
		ch := channelFor(i)
		key, bend := split(p)
		chord.Add(0, midi.Pitchbend(ch, bend))
		chord.Add(0, midi.NoteOn(ch, key, midiVelocity))
	}
	for i, p := range target {
		key, _ := split(p)
		delta := uint32(0)
		if i == 0 {
			delta = 2 * beat
		}
		chord.Add(delta, midi.NoteOff(channelFor(i), key))
	}
	chord.Close(0)

	var response smf.Track
	response.Add(0, smf.MetaTrackSequenceName("response"))
	// start after the chord has finished
	rest := 2 * beat
	for _, p := range sung {
		key, bend := split(p)
		response.Add(rest, midi.Pitchbend(0, bend))
		response.Add(0, midi.NoteOn(0, key, midiVelocity))
		response.Add(beat, midi.NoteOff(0, key))
		rest = 0
	}
	response.Close(0)

	if err := s.Add(chord); err != nil {
		return nil, fmt.Errorf("add target track: %w", err)
	}
	if err := s.Add(response); err != nil {
		return nil, fmt.Errorf("add response track: %w", err)
	}
	return s, nil
}

// WriteMIDI writes BuildMIDI's output to path.
func WriteMIDI(path string, target, sung []float64) error {
	s, err := BuildMIDI(target, sung)
	if err != nil {
		return err
	}
	if err := s.WriteFile(path); err != nil {
		return fmt.Errorf("write MIDI file: %w", err)
	}
	return nil
}

func channelFor(i int) uint8 {
	ch := uint8(i % 15)
	if ch >= drumChannel {
		ch++
	}
	return ch
}

// split rounds pitch to a key and expresses the remainder as a 14-bit bend.
func split(pitch float64) (uint8, int16) {
	key := math.Round(pitch)
	bend := math.Round((pitch - key) / bendRange * 8192)
	return uint8(key), int16(math.Max(-8192, math.Min(8191, bend)))
}
