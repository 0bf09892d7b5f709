package dsp

import (
	"fmt"
	"math"
	"math/cmplx"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"

	"github.com/sdrtools/heatwave/internal/sdr"
	"github.com/sdrtools/heatwave/internal/spectrum"
)

// magnitudeFloor keeps the log conversion away from -Inf on empty bins.
const magnitudeFloor = 1e-15

// AveragingMode selects how successive rows are blended.
type AveragingMode string

const (
	AveragingOff         AveragingMode = "off"
	AveragingWindow      AveragingMode = "window"      // mean of the last N rows
	AveragingExponential AveragingMode = "exponential" // weighted blend with the prior row
)

// Averaging configures row blending. Window is the row count for
// AveragingWindow; Weight is the new-row weight for AveragingExponential
// (a higher weight favors recency).
type Averaging struct {
	Mode   AveragingMode
	Window int
	Weight float64
}

// Estimator converts sample blocks into power spectrum rows. The FFT
// plan and window coefficients are computed once per block size and
// reused on every call (recreating them per block dominates the cycle
// cost otherwise).
type Estimator struct {
	mu sync.Mutex

	size   int
	win    window.Values
	winSum float64
	fft    *fourier.CmplxFFT

	avg        Averaging
	avgHistory [][]float64 // sliding-window state
	avgBlend   []float64   // exponential state
}

// NewEstimator creates an estimator for blocks of the given size.
func NewEstimator(size int, kind WindowKind) (*Estimator, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid block size %d", size)
	}
	win, sum, err := windowValues(kind, size)
	if err != nil {
		return nil, err
	}
	return &Estimator{
		size:   size,
		win:    win,
		winSum: sum,
		fft:    fourier.NewCmplxFFT(size),
		avg:    Averaging{Mode: AveragingOff},
	}, nil
}

// Bins returns the number of bins in produced rows.
func (e *Estimator) Bins() int { return e.size }

// SetAveraging reconfigures row blending and clears its state.
func (e *Estimator) SetAveraging(avg Averaging) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if avg.Mode == AveragingWindow && avg.Window <= 0 {
		avg.Window = 5
	}
	if avg.Mode == AveragingExponential && (avg.Weight <= 0 || avg.Weight > 1) {
		avg.Weight = 0.5
	}
	e.avg = avg
	e.avgHistory = nil
	e.avgBlend = nil
}

// Reset clears averaging state, for frequency-range changes.
func (e *Estimator) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.avgHistory = nil
	e.avgBlend = nil
}

// Process computes the power spectrum row for one sample block. A nil
// or short block yields an error wrapping sdr.ErrAcquisitionGap.
func (e *Estimator) Process(block *sdr.SampleBlock) (*spectrum.Row, error) {
	if block == nil || len(block.Samples) < e.size {
		got := 0
		if block != nil {
			got = len(block.Samples)
		}
		return nil, fmt.Errorf("%w: short block: %d of %d samples", sdr.ErrAcquisitionGap, got, e.size)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	buf := make([]complex128, e.size)
	for i := 0; i < e.size; i++ {
		buf[i] = complex128(block.Samples[i])
	}
	e.win.TransformComplex(buf)

	coeff := e.fft.Coefficients(nil, buf)
	norm := complex(e.winSum, 0)
	for i := range coeff {
		coeff[i] /= norm
	}
	shifted := fftShift(coeff)

	power := make([]float64, e.size)
	for i, v := range shifted {
		power[i] = 20 * math.Log10(cmplx.Abs(v)+magnitudeFloor)
	}

	power = e.blend(power)

	return &spectrum.Row{
		Timestamp:  block.Timestamp,
		CenterFreq: block.CenterFreq,
		SampleRate: block.SampleRate,
		Power:      power,
	}, nil
}

// blend applies the configured averaging to a freshly computed row.
func (e *Estimator) blend(power []float64) []float64 {
	switch e.avg.Mode {
	case AveragingWindow:
		e.avgHistory = append(e.avgHistory, power)
		if len(e.avgHistory) > e.avg.Window {
			e.avgHistory = e.avgHistory[1:]
		}
		out := make([]float64, len(power))
		for _, row := range e.avgHistory {
			for i, p := range row {
				out[i] += p
			}
		}
		n := float64(len(e.avgHistory))
		for i := range out {
			out[i] /= n
		}
		return out

	case AveragingExponential:
		if e.avgBlend == nil {
			e.avgBlend = append([]float64(nil), power...)
			return power
		}
		w := e.avg.Weight
		out := make([]float64, len(power))
		for i, p := range power {
			out[i] = e.avgBlend[i]*(1-w) + p*w
		}
		e.avgBlend = out
		return out

	default:
		return power
	}
}

// Mean returns the arithmetic mean of a power row, used as the AGC
// reference level.
func Mean(power []float64) float64 {
	if len(power) == 0 {
		return 0
	}
	var sum float64
	for _, p := range power {
		sum += p
	}
	return sum / float64(len(power))
}
