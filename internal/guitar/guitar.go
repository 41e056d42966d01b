// Package guitar provides conversions between musical notes, frequencies
// and positions on a guitar fretboard.
//
// Semitones are the common unit for every operation: they are plain
// integers, unlike note names, and a linear scale, unlike frequencies.
// They also map directly onto the instrument, since adjacent frets are one
// semitone apart. Semitones are counted from A0 (the lowest piano key), so
// A0 is 0, A4 is 48 and the open low E of a standard-tuned guitar is 19.
package guitar

import (
	"fmt"
	"math"
)

// Semitone identifies a note as its distance in semitones from A0.
// The audible range of interest goes from C0 (-9) to E10 (115).
type Semitone int

// Invalid marks a value that does not identify any note.
const Invalid Semitone = math.MinInt16

// Unplayable marks a string on which a note cannot be fingered.
const Unplayable Semitone = -1

const (
	// Strings on a standard guitar.
	Strings = 6
	// Frets on a standard guitar neck, not counting the open string.
	Frets = 22
)

// StandardTuning holds the open-string notes of a standard-tuned six string
// guitar, from the highest-pitched string to the lowest.
var StandardTuning = []Semitone{
	43, // E4
	38, // B3
	34, // G3
	29, // D3
	24, // A2
	19, // E2
}

// Frequency of A0 in Hz, the reference for every conversion.
const a0 = 27.5

// noteIntervals maps note letters (index 0 is A) to their distance in
// semitones from the A of the same octave.
var noteIntervals = [7]Semitone{0, 2, -9, -7, -5, -4, -2}

// NoteToSemitone converts an English note name and an octave to semitones
// from A0. The name is a letter from A to G (either case), optionally
// followed by a single '#' or 'b'. B#, Cb, E# and Fb are accepted and
// resolve to the neighboring semitone; anything else, including double
// accidentals, yields Invalid.
func NoteToSemitone(name string, octave int) Semitone {
	if len(name) == 0 || len(name) > 2 {
		return Invalid
	}

	letter := name[0]
	switch {
	case letter >= 'A' && letter <= 'G':
		letter -= 'A'
	case letter >= 'a' && letter <= 'g':
		letter -= 'a'
	default:
		return Invalid
	}

	s := Semitone(12*octave) + noteIntervals[letter]

	if len(name) == 2 {
		switch name[1] {
		case '#':
			s++
		case 'b':
			s--
		default:
			return Invalid
		}
	}

	return s
}

// NoteToFrequency returns the frequency in Hz of the named note, or -1 when
// the name is not a valid note.
func NoteToFrequency(name string, octave int) float64 {
	s := NoteToSemitone(name, octave)
	if s == Invalid {
		return -1
	}
	return s.Frequency()
}

// FrequencyToSemitone returns the semitone closest to the given frequency
// together with the rounding error, expressed as the ratio between the
// frequency of the returned semitone and the input (1.0 means exact).
// Non-positive frequencies yield Invalid.
func FrequencyToSemitone(frequency float64) (Semitone, float64) {
	// log2 only misbehaves at exactly zero; even denormal positive values
	// still produce usable results, so no epsilon here.
	if frequency <= 0 {
		return Invalid, 0
	}

	s := Semitone(math.Round(12 * math.Log2(frequency/a0)))
	return s, s.Frequency() / frequency
}

// Frequency returns the frequency of the note in Hz, or -1 for Invalid.
func (s Semitone) Frequency() float64 {
	if s == Invalid {
		return -1
	}
	return a0 * math.Pow(2, float64(s)/12)
}

// noteNames lists the twelve notes of an octave starting from C, sharps for
// the accidentals.
var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// String renders the note in scientific pitch notation, e.g. "E2" or "A#4".
func (s Semitone) String() string {
	if s == Invalid {
		return "--"
	}

	// Octaves change at C, 9 semitones below the A of the same number.
	n := int(s) + 9
	octave := n / 12
	idx := n % 12
	if idx < 0 {
		idx += 12
		octave--
	}
	return fmt.Sprintf("%s%d", noteNames[idx], octave)
}

// NoteToFrets computes, for each string of a guitar with the given tuning,
// the fret at which the note can be played. frets must have the same length
// as tuning; entries for strings where the note is out of reach are set to
// Unplayable. It returns the number of playable positions.
func NoteToFrets(note Semitone, tuning, frets []Semitone, numFrets int) int {
	valid := 0

	for i, open := range tuning {
		f := note - open
		if f < 0 || f > Semitone(numFrets) {
			frets[i] = Unplayable
			continue
		}
		frets[i] = f
		valid++
	}

	return valid
}
