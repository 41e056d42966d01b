package pitch

import (
	"math"
	"math/rand"
	"testing"

	"github.com/PieroV/guitarbiro/internal/guitar"
)

const testRate = 44100

// testRange returns the period search bounds a detector would use at the
// test sample rate: E7 down to E1.
func testRange() (minP, maxP int) {
	minP = int(math.Floor(testRate / guitar.NoteToFrequency("E", 7)))
	maxP = int(math.Ceil(testRate / guitar.NoteToFrequency("E", 1)))
	return minP, maxP
}

// sine produces n samples of a sine with the given period (in samples) and
// amplitude 1.
func sine(n int, period float64) []float32 {
	x := make([]float32, n)
	for i := range x {
		x[i] = float32(math.Sin(2 * math.Pi * float64(i) / period))
	}
	return x
}

// sineWithOctaves adds the second and third harmonic, the classic shape
// that trips naive autocorrelation peak picking into octave errors.
func sineWithOctaves(n int, period float64) []float32 {
	x := make([]float32, n)
	for i := range x {
		phase := 2 * math.Pi * float64(i) / period
		x[i] = float32(math.Sin(phase) + 0.6*math.Sin(2*phase) + 0.3*math.Sin(3*phase))
	}
	return x
}

func TestEstimateIntegerPeriods(t *testing.T) {
	minP, maxP := testRange()
	n := 2 * maxP

	for _, p := range []int{20, 100, 441, 1000} {
		est, ok := NewEstimator().Estimate(sine(n, float64(p)), minP, maxP)
		if !ok {
			t.Fatalf("period %d: estimation failed", p)
		}
		if relErr := math.Abs(est.Period/float64(p) - 1); relErr > 1e-3 {
			t.Errorf("period %d: estimated %v (relative error %v)", p, est.Period, relErr)
		}
		if est.Quality <= 0.95 {
			t.Errorf("period %d: quality %v, want > 0.95", p, est.Quality)
		}
	}
}

func TestEstimateA4(t *testing.T) {
	minP, maxP := testRange()
	n := 2 * maxP
	period := testRate / 440.0 // about 100.227 samples

	est, ok := NewEstimator().Estimate(sine(n, period), minP, maxP)
	if !ok {
		t.Fatal("estimation failed")
	}

	freq := testRate / est.Period
	if math.Abs(freq/440-1) > 1e-3 {
		t.Errorf("estimated %v Hz, want 440 within 0.1%%", freq)
	}
	if est.Quality <= 0.95 {
		t.Errorf("quality = %v, want > 0.95", est.Quality)
	}
	if note, _ := guitar.FrequencyToSemitone(freq); note != 48 {
		t.Errorf("resolved to semitone %d, want 48 (A4)", note)
	}
}

// A fundamental with strong octave and twelfth partials must still resolve
// to the fundamental period, not a submultiple of it.
func TestEstimateOctaveRobustness(t *testing.T) {
	minP, maxP := testRange()
	n := 2 * maxP
	period := testRate / 440.0

	est, ok := NewEstimator().Estimate(sineWithOctaves(n, period), minP, maxP)
	if !ok {
		t.Fatal("estimation failed")
	}
	if relErr := math.Abs(est.Period/period - 1); relErr > 1e-3 {
		t.Errorf("estimated period %v, want %v (relative error %v)", est.Period, period, relErr)
	}
	if est.Quality <= 0.95 {
		t.Errorf("quality = %v, want > 0.95", est.Quality)
	}
}

func TestEstimateGuitarNotes(t *testing.T) {
	minP, maxP := testRange()
	n := 2 * maxP

	for _, want := range []guitar.Semitone{19, 34} { // E2, G3
		period := testRate / want.Frequency()
		est, ok := NewEstimator().Estimate(sine(n, period), minP, maxP)
		if !ok {
			t.Fatalf("semitone %d: estimation failed", want)
		}
		if note, _ := guitar.FrequencyToSemitone(testRate / est.Period); note != want {
			t.Errorf("resolved to semitone %d, want %d", note, want)
		}
	}
}

func TestEstimateSilenceFails(t *testing.T) {
	minP, maxP := testRange()
	if _, ok := NewEstimator().Estimate(make([]float32, 2*maxP), minP, maxP); ok {
		t.Error("estimation succeeded on an all-zero signal")
	}
}

// White noise may still produce a formal peak, but its quality must stay
// far below the detection gate.
func TestEstimateNoiseQuality(t *testing.T) {
	minP, maxP := testRange()
	rng := rand.New(rand.NewSource(1))

	x := make([]float32, 2*maxP)
	for i := range x {
		x[i] = float32(2*rng.Float64() - 1)
	}

	if est, ok := NewEstimator().Estimate(x, minP, maxP); ok && est.Quality >= 0.5 {
		t.Errorf("noise quality = %v, want well below the 0.85 gate", est.Quality)
	}
}

// An estimator is reusable: the scratch buffers must not leak state from
// one signal into the next.
func TestEstimateReuse(t *testing.T) {
	minP, maxP := testRange()
	n := 2 * maxP
	e := NewEstimator()

	if _, ok := e.Estimate(make([]float32, n), minP, maxP); ok {
		t.Fatal("estimation succeeded on silence")
	}

	est, ok := e.Estimate(sine(n, 100), minP, maxP)
	if !ok {
		t.Fatal("estimation failed after a silent call")
	}
	if math.Abs(est.Period-100) > 0.1 {
		t.Errorf("estimated period %v, want 100", est.Period)
	}
}

// When the parabolic shift is too large relative to the peak lag, the
// interpolation is ill-conditioned and the integer peak must be returned
// unchanged.
func TestFindPeakShiftGuard(t *testing.T) {
	e := NewEstimator()

	// Peak at lag 2 with a shift of about +0.41, beyond 0.2*2.
	e.nac = []float64{0, 0, 0.5, 0.45, 0.1, 0}
	best, period, ok := e.findPeak(2, 4)
	if !ok {
		t.Fatal("peak not found")
	}
	if best != 2 {
		t.Fatalf("best = %d, want 2", best)
	}
	if period != 2 {
		t.Errorf("period = %v, want exactly the integer peak", period)
	}

	// A well-conditioned peak keeps its fractional shift.
	e.nac = []float64{0, 0, 0.5, 0.9, 0.8, 0.1, 0}
	best, period, ok = e.findPeak(2, 5)
	if !ok {
		t.Fatal("peak not found")
	}
	if best != 3 {
		t.Fatalf("best = %d, want 3", best)
	}
	if period == 3 {
		t.Error("period not interpolated")
	}
	if period <= 3.0 || period >= 3.5 {
		t.Errorf("period = %v, want a bit above 3", period)
	}
}

// When the in-range maximum sits on the lower boundary and is no higher
// than either neighbor (the lag below the range is higher, the lag above
// ties with it), the search must report a failure.
func TestFindPeakBoundaryFailure(t *testing.T) {
	e := NewEstimator()

	e.nac = []float64{0, 0.9, 0.5, 0.5, 0.3, 0.2, 0}
	if _, _, ok := e.findPeak(2, 5); ok {
		t.Error("boundary maximum accepted as a peak")
	}

	// A flat autocorrelation has no peak either.
	e.nac = []float64{0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5}
	if _, _, ok := e.findPeak(2, 5); ok {
		t.Error("flat autocorrelation accepted as a peak")
	}
}

func TestEstimatePreconditions(t *testing.T) {
	x := make([]float32, 100)

	cases := []struct {
		name       string
		minP, maxP int
	}{
		{"min period too small", 1, 40},
		{"inverted range", 30, 20},
		{"buffer too short", 10, 60},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("no panic on contract violation")
				}
			}()
			NewEstimator().Estimate(x, c.minP, c.maxP)
		})
	}
}
