package pitch

import (
	"math"

	"github.com/mjibson/go-dsp/fft"
)

// subMultipleThreshold is the autocorrelation strength, relative to the
// peak, required at every submultiple lag to accept it as the real period.
const subMultipleThreshold = 0.90

// maxShiftRatio bounds the parabolic interpolation shift relative to the
// peak lag. Ill-conditioned parabolas have produced negative periods during
// testing; shifts beyond this ratio are discarded.
const maxShiftRatio = 0.2

// Estimate is the outcome of a successful period search.
type Estimate struct {
	// Period is the fractional period in samples, after interpolation and
	// octave correction.
	Period float64
	// PeriodInt is the lag of the autocorrelation peak. It may be an
	// integer multiple of Period when an octave error was corrected.
	PeriodInt int
	// Quality is the normalized autocorrelation at the peak. It is 1.0 for
	// a perfectly periodic signal and degrades towards 0 with noise.
	Quality float64
}

// Estimator computes the period of a signal through its normalized
// autocorrelation. The normalization is such that a perfectly periodic
// signal, even with an exponential decay or rise in magnitude, scores
// exactly 1.0 at its period.
//
// The scratch buffers are retained between calls to amortize allocations,
// so an Estimator must not be shared between goroutines; independent
// instances are fully isolated.
type Estimator struct {
	nac    []float64
	input  []float64
	prefix []float64
}

// NewEstimator returns an Estimator with empty scratch space; buffers grow
// on first use.
func NewEstimator() *Estimator {
	return &Estimator{}
}

// Estimate searches [minP, maxP] for the period of x, in samples.
// It requires minP > 1, maxP > minP and len(x) >= 2*maxP; violations are
// programming errors and panic.
//
// The second return value is false when the strongest lag in the range is
// no higher than either of its two neighbors (as on silence or a flat
// autocorrelation), or when the interpolated period is not finite.
func (e *Estimator) Estimate(x []float32, minP, maxP int) (Estimate, bool) {
	if minP <= 1 {
		panic("pitch: minimum period must be greater than 1")
	}
	if maxP <= minP {
		panic("pitch: maximum period must be greater than the minimum")
	}
	if len(x) < 2*maxP {
		panic("pitch: at least two maximum periods of samples are needed")
	}

	e.computeNAC(x, minP, maxP)

	best, period, ok := e.findPeak(minP, maxP)
	if !ok {
		return Estimate{}, false
	}
	if math.IsNaN(period) || math.IsInf(period, 0) {
		return Estimate{}, false
	}

	// Quality is judged at the raw peak, which may still be a multiple of
	// the actual period.
	quality := e.nac[best]

	period = e.fixOctaves(minP, period, best)

	return Estimate{Period: period, PeriodInt: best, Quality: quality}, true
}

// computeNAC fills e.nac with the normalized autocorrelation of x for every
// lag in [minP-1, maxP+1]. The two extra lags exist only so that peaks at
// minP and maxP can be tested against their neighbors.
//
// The correlation term is computed through a zero-padded real FFT: the
// inverse transform of the power spectrum holds, at index p, exactly the
// linear autocorrelation sum x[0]*x[p] + ... + x[n-p-1]*x[n-1]. The window
// energies under the normalization square root come from a prefix sum of
// squared samples.
func (e *Estimator) computeNAC(x []float32, minP, maxP int) {
	n := len(x)

	// Padding past n+maxP+1 keeps the circular convolution from wrapping
	// into the lags of interest.
	size := nextPowerOfTwo(n + maxP + 2)
	if cap(e.input) < size {
		e.input = make([]float64, size)
	}
	e.input = e.input[:size]
	for i := range e.input {
		e.input[i] = 0
	}
	for i, v := range x {
		e.input[i] = float64(v)
	}

	spectrum := fft.FFTReal(e.input)
	for i, c := range spectrum {
		re, im := real(c), imag(c)
		spectrum[i] = complex(re*re+im*im, 0)
	}
	corr := fft.IFFT(spectrum)

	if cap(e.prefix) < n+1 {
		e.prefix = make([]float64, n+1)
	}
	e.prefix = e.prefix[:n+1]
	e.prefix[0] = 0
	for i, v := range x {
		e.prefix[i+1] = e.prefix[i] + float64(v)*float64(v)
	}

	if cap(e.nac) < maxP+2 {
		e.nac = make([]float64, maxP+2)
	}
	e.nac = e.nac[:maxP+2]
	for i := 0; i < minP-1; i++ {
		e.nac[i] = 0
	}

	for p := minP - 1; p <= maxP+1; p++ {
		sumSqBeg := e.prefix[n-p]
		sumSqEnd := e.prefix[n] - e.prefix[p]
		if sumSqBeg > 0 && sumSqEnd > 0 {
			e.nac[p] = real(corr[p]) / math.Sqrt(sumSqBeg*sumSqEnd)
		} else {
			e.nac[p] = 0
		}
	}
}

// findPeak locates the strongest lag in [minP, maxP] and refines it to a
// fractional period by fitting a parabola through the peak and its two
// neighbors. It reports failure when the maximum is no higher than either
// of its two neighbors, as with a flat or all-zero autocorrelation. A
// maximum on the range boundary passes as long as it is higher than one of
// its neighbors.
func (e *Estimator) findPeak(minP, maxP int) (best int, period float64, ok bool) {
	best = minP
	for p := minP + 1; p <= maxP; p++ {
		if e.nac[p] > e.nac[best] {
			best = p
		}
	}

	if e.nac[best] <= e.nac[best-1] && e.nac[best] <= e.nac[best+1] {
		return -1, 0, false
	}

	// If the right neighbor is bigger than the left one, the real peak sits
	// a bit to the right of the discretized peak, and vice versa.
	mid := e.nac[best]
	left := e.nac[best-1]
	right := e.nac[best+1]

	period = float64(best)
	if denom := 2*mid - left - right; denom != 0 {
		shift := 0.5 * (right - left) / denom
		if math.Abs(shift) < maxShiftRatio*float64(best) {
			period += shift
		}
	}

	return best, period, true
}

// fixOctaves corrects the "octave errors" the peak search is prone to when
// the range spans more than one octave: a signal periodic with period p is
// also periodic with period 2p, so the strongest lag may be an integer
// multiple of the real period.
//
// The hypothesis that the real period is period/mul is verified by checking
// that the autocorrelation is nearly as strong as the peak at every
// submultiple position: for period/3, both 1/3 and 2/3 of the original
// estimate must be strong. Multipliers are tried from the largest down, and
// 1 (no correction, empty check) always accepts, so the loop terminates.
func (e *Estimator) fixOctaves(minP int, period float64, best int) float64 {
	for mul := best / minP; mul >= 1; mul-- {
		subsAllStrong := true
		for k := 1; k < mul; k++ {
			subP := int(float64(k)*period/float64(mul) + 0.5)
			if e.nac[subP] < subMultipleThreshold*e.nac[best] {
				subsAllStrong = false
				break
			}
		}

		if subsAllStrong {
			return period / float64(mul)
		}
	}

	return period
}

func nextPowerOfTwo(n int) int {
	size := 1
	for size < n {
		size <<= 1
	}
	return size
}
