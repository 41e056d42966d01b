// Package pitch turns a stream of audio samples into note events.
//
// The heavy lifting is done by Estimator, which finds the period of a
// signal through normalized autocorrelation. Detector wraps it with the
// filtering needed on a live guitar signal: a periodicity-quality gate, a
// noise floor, amplitude tracking to tell re-attacks of the same note from
// a note that is simply sustained, and suppression of the octave and fifth
// ghosts the estimator can leave behind.
package pitch

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/PieroV/guitarbiro/internal/guitar"
)

// Detection constants.
const (
	// minQuality is the minimum normalized autocorrelation at the detected
	// period for a block to be considered pitched at all.
	minQuality = 0.85

	// noiseThreshold is the per-period peak amplitude a block must reach,
	// at least once, to count as a sounding note rather than noise.
	noiseThreshold = 0.10

	// raiseThreshold is the jump between consecutive per-period peak
	// amplitudes that counts as a fresh attack of the string.
	raiseThreshold = 0.12

	// peaksSize is the length of the per-period amplitude history.
	peaksSize = 100

	// staleSeconds is how long the detector waits without a successful
	// update before declaring the current note dead.
	staleSeconds = 1

	// sampleBytes is the wire size of one sample: little-endian float32.
	sampleBytes = 4
)

// Detection search range: an octave below the open low E of a standard
// tuned guitar, and an octave above the highest note of a 24-fret one.
const (
	lowestName    = "E"
	lowestOctave  = 1
	highestName   = "E"
	highestOctave = 7
)

// SampleRing is the read side of the sample transport between the audio
// producer and the detector. The view returned by ReadView must be
// contiguous for at least FillCount bytes and must stay valid until the
// matching AdvanceRead. Ring in the audio package satisfies it.
type SampleRing interface {
	// FillCount returns the number of readable bytes.
	FillCount() int
	// ReadView returns a contiguous view over the readable bytes.
	ReadView() []byte
	// AdvanceRead releases n bytes back to the producer.
	AdvanceRead(n int)
}

// Consumer receives note transitions. Both methods are invoked
// synchronously from the goroutine that calls Analyze; forwarding to a UI
// thread without blocking is the consumer's responsibility.
type Consumer interface {
	// NoteOn reports a newly detected note together with the fret at which
	// it can be played on each string (guitar.Unplayable where it cannot).
	NoteOn(note guitar.Semitone, frets []guitar.Semitone)
	// NoteOff reports that the previous note died out or gave way to
	// silence or noise.
	NoteOff()
}

// Config carries the per-session parameters of a Detector.
type Config struct {
	// SampleRate of the incoming stream in Hz. Required.
	SampleRate int
	// Tuning of the instrument, highest-pitched string first. Defaults to
	// guitar.StandardTuning.
	Tuning []guitar.Semitone
	// Frets on the neck. Defaults to guitar.Frets.
	Frets int
}

// Detector is the realtime analysis state machine. It owns its Estimator
// and every scratch buffer, so a recording session maps to exactly one
// Detector and concurrent sessions do not interfere.
type Detector struct {
	rate      int
	minPeriod int
	maxPeriod int

	tuning []guitar.Semitone
	frets  int

	lastDetected   guitar.Semitone
	peaks          [peaksSize]float64
	lastPeak       int
	droppedSamples int

	estimator *Estimator
	consumer  Consumer
	samples   []float32
	fretBuf   []guitar.Semitone
}

// NewDetector creates a Detector for a recording session at the given
// sample rate. Events are delivered to consumer from the goroutine that
// calls Analyze.
func NewDetector(cfg Config, consumer Consumer) (*Detector, error) {
	if cfg.SampleRate <= 0 {
		return nil, errors.New("pitch: sample rate must be positive")
	}
	if consumer == nil {
		return nil, errors.New("pitch: consumer must not be nil")
	}

	tuning := cfg.Tuning
	if tuning == nil {
		tuning = guitar.StandardTuning
	}
	frets := cfg.Frets
	if frets == 0 {
		frets = guitar.Frets
	}

	// Highest note means shortest period and vice versa.
	minPeriod := int(math.Floor(float64(cfg.SampleRate) / guitar.NoteToFrequency(highestName, highestOctave)))
	maxPeriod := int(math.Ceil(float64(cfg.SampleRate) / guitar.NoteToFrequency(lowestName, lowestOctave)))
	if minPeriod <= 1 {
		return nil, errors.New("pitch: sample rate too low for the detection range")
	}

	return &Detector{
		rate:         cfg.SampleRate,
		minPeriod:    minPeriod,
		maxPeriod:    maxPeriod,
		tuning:       tuning,
		frets:        frets,
		lastDetected: guitar.Invalid,
		// The first write must land at index 0.
		lastPeak:  peaksSize - 1,
		estimator: NewEstimator(),
		consumer:  consumer,
		fretBuf:   make([]guitar.Semitone, len(tuning)),
	}, nil
}

// SampleRate returns the rate the Detector was created with, in Hz.
func (d *Detector) SampleRate() int {
	return d.rate
}

// Analyze drains every readable sample from the ring and updates the note
// state, invoking the consumer on transitions. When fewer than two maximum
// periods of samples are available it returns without touching the read
// pointer, so the next call sees the same data plus whatever accumulated.
//
// Blocks that fail the periodicity or playability filters are absorbed
// silently; a pitched block that stays below the noise floor retires the
// current note with a NoteOff. None of these are errors. A full second of
// absorbed blocks also retires the current note with a NoteOff.
func (d *Detector) Analyze(ring SampleRing) error {
	available := ring.FillCount() / sampleBytes
	if available < 2*d.maxPeriod {
		return nil
	}

	if d.droppedSamples > d.rate*staleSeconds {
		d.noteOff()
		d.droppedSamples = 0
	}

	samples := d.decode(ring.ReadView()[:available*sampleBytes])

	updated := false
	if est, ok := d.estimator.Estimate(samples, d.minPeriod, d.maxPeriod); ok &&
		est.PeriodInt > 0 && est.Quality >= minQuality {
		freq := float64(d.rate) / est.Period
		note, _ := guitar.FrequencyToSemitone(freq)

		if note != guitar.Invalid && guitar.NoteToFrets(note, d.tuning, d.fretBuf, d.frets) > 0 {
			d.trackNote(samples, est.PeriodInt, note)
			updated = true
		}
	}

	if !updated {
		d.droppedSamples += available
	}

	ring.AdvanceRead(available * sampleBytes)
	return nil
}

// trackNote walks the block one period at a time, maintaining the
// amplitude envelope, and decides whether the reading is a new note, a
// re-attack, or the same note still ringing.
func (d *Detector) trackNote(samples []float32, periodInt int, note guitar.Semitone) {
	quickRaise := false
	minSurpassed := false

	for j := 0; j+periodInt <= len(samples); j += periodInt {
		peak := 0.0
		for _, s := range samples[j : j+periodInt] {
			if a := math.Abs(float64(s)); a > peak {
				peak = a
			}
		}

		// Compared against the previous period's peak, before this one is
		// stored: a re-attack is a jump relative to what came just before.
		if peak-d.peaks[d.lastPeak] > raiseThreshold {
			quickRaise = true
		}

		d.lastPeak = (d.lastPeak + 1) % peaksSize
		d.peaks[d.lastPeak] = peak

		if peak > noiseThreshold {
			minSurpassed = true
		}
	}

	// Reaching the amplitude analysis counts as a successful update even
	// when the block ends up filtered below.
	d.droppedSamples = 0

	if !minSurpassed {
		d.noteOff()
		return
	}

	if d.shouldEmit(note, quickRaise) {
		frets := make([]guitar.Semitone, len(d.fretBuf))
		copy(frets, d.fretBuf)
		d.lastDetected = note
		d.consumer.NoteOn(note, frets)
	}
}

// shouldEmit implements the transition filter: a reading becomes a NoteOn
// when an amplitude transient marks a fresh attack, when nothing was
// sounding, or when the pitch class moved by something other than unison or
// a perfect fifth. Unison absorbs the sustained note repeating itself; the
// fifth absorbs the harmonic confusions that survive octave correction.
func (d *Detector) shouldEmit(note guitar.Semitone, quickRaise bool) bool {
	if quickRaise || d.lastDetected == guitar.Invalid {
		return true
	}

	delta := int(note-d.lastDetected) % 12
	if delta < 0 {
		delta = -delta
	}
	return delta != 0 && delta != 7
}

// noteOff retires the current note. Emitting is conditional on a note
// actually sounding so that a long silence produces exactly one event.
func (d *Detector) noteOff() {
	if d.lastDetected != guitar.Invalid {
		d.consumer.NoteOff()
	}
	d.lastDetected = guitar.Invalid
}

// decode reinterprets the byte view as little-endian float32 samples,
// reusing an owned scratch so the analysis path does not allocate.
func (d *Detector) decode(view []byte) []float32 {
	n := len(view) / sampleBytes
	if cap(d.samples) < n {
		d.samples = make([]float32, n)
	}
	d.samples = d.samples[:n]

	for i := range d.samples {
		bits := binary.LittleEndian.Uint32(view[i*sampleBytes:])
		d.samples[i] = math.Float32frombits(bits)
	}
	return d.samples
}
