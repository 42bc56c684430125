// Package alignment locates a short audio excerpt inside a longer master
// recording by valid-mode cross-correlation.
package alignment

import (
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/forPelevin/mvsync/internal/types"
)

const (
	// SampleRate is the common rate both signals are decoded at.
	SampleRate = 11025
	// MaxExcerptSeconds bounds how much of an excerpt takes part in matching.
	MaxExcerptSeconds = 30

	// Below this many multiply-adds the direct sum is cheaper than FFT setup.
	naiveWorkLimit = 1 << 22
	// Relative FFT rounding slack. Lags whose FFT correlation lies within it
	// of the peak are re-scored with the exact sum.
	refineTolerance = 1e-9
	refineFloor     = 1e-12
)

// Reference is a master recording prepared for repeated alignment. It is safe
// for concurrent use once constructed.
type Reference struct {
	samples []float32
	rate    int

	once     sync.Once
	size     int
	norm     float64
	spectrum []complex128
}

// NewReference wraps decoded mono samples at sampleRate. The FFT spectrum is
// computed on first use.
func NewReference(samples []float32, sampleRate int) *Reference {
	return &Reference{samples: samples, rate: sampleRate}
}

// Len is the reference length in samples.
func (r *Reference) Len() int { return len(r.samples) }

// Offset returns the start of excerpt within the reference in seconds,
// rounded to milliseconds. The single global correlation maximum wins, ties
// going to the earliest lag.
func (r *Reference) Offset(excerpt []float32) (float64, error) {
	if r.rate <= 0 {
		return 0, fmt.Errorf("%w: sample rate %d", types.ErrInvalidAlignmentInput, r.rate)
	}
	if max := r.rate * MaxExcerptSeconds; len(excerpt) > max {
		excerpt = excerpt[:max]
	}
	n, m := len(r.samples), len(excerpt)
	if m == 0 {
		return 0, fmt.Errorf("%w: empty excerpt", types.ErrInvalidAlignmentInput)
	}
	if m > n {
		return 0, fmt.Errorf("%w: excerpt has %d samples, song has %d", types.ErrInvalidAlignmentInput, m, n)
	}

	var lag int
	if (n-m+1)*m <= naiveWorkLimit {
		lag = argmax(correlateNaive(r.samples, excerpt))
	} else {
		lag = r.lagFFT(excerpt)
	}
	return types.Round3(float64(lag) / float64(r.rate)), nil
}

// BestOffset is a one-shot Reference.Offset.
func BestOffset(song, excerpt []float32, sampleRate int) (float64, error) {
	return NewReference(song, sampleRate).Offset(excerpt)
}

// correlateNaive returns c[k] = sum_j a[k+j]*v[j] for k in [0, len(a)-len(v)].
func correlateNaive(a, v []float32) []float64 {
	out := make([]float64, len(a)-len(v)+1)
	for k := range out {
		out[k] = dot(a[k:k+len(v)], v)
	}
	return out
}

func dot(a, v []float32) float64 {
	var s float64
	for j := range v {
		s += float64(a[j]) * float64(v[j])
	}
	return s
}

func argmax(xs []float64) int {
	best := 0
	for i := 1; i < len(xs); i++ {
		if xs[i] > xs[best] {
			best = i
		}
	}
	return best
}

func (r *Reference) prepare() {
	r.size = nextPow2(len(r.samples))
	buf := make([]float64, r.size)
	for i, s := range r.samples {
		buf[i] = float64(s)
	}
	r.spectrum = fourier.NewFFT(r.size).Coefficients(nil, buf)
	r.norm = l2(r.samples)
}

func l2(xs []float32) float64 {
	var s float64
	for _, x := range xs {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

// lagFFT computes the circular cross-correlation over a zero-padded length at
// least as long as the song, so the valid lags never wrap. Every lag within
// rounding slack of the FFT peak is re-scored with the direct sum, earliest
// first, so the result matches correlateNaive.
func (r *Reference) lagFFT(excerpt []float32) int {
	r.once.Do(r.prepare)

	fft := fourier.NewFFT(r.size)
	buf := make([]float64, r.size)
	for i, s := range excerpt {
		buf[i] = float64(s)
	}
	coeff := fft.Coefficients(nil, buf)
	for i := range coeff {
		c := coeff[i]
		coeff[i] = r.spectrum[i] * complex(real(c), -imag(c))
	}
	corr := fft.Sequence(buf, coeff)

	valid := len(r.samples) - len(excerpt) + 1
	corr = corr[:valid]
	peak := corr[argmax(corr)]
	// |c[k]| <= norm(song)*norm(excerpt) bounds the rounding error scale.
	slack := refineTolerance*(math.Abs(peak)+r.norm*l2(excerpt)) + refineFloor

	best, bestScore := 0, math.Inf(-1)
	for k, c := range corr {
		if c < peak-slack {
			continue
		}
		if score := dot(r.samples[k:k+len(excerpt)], excerpt); score > bestScore {
			best, bestScore = k, score
		}
	}
	return best
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
