package dsp

import (
	"fmt"

	"gonum.org/v1/gonum/dsp/window"
)

// WindowKind selects the window function applied before the FFT.
type WindowKind string

const (
	WindowHamming        WindowKind = "hamming"
	WindowHann           WindowKind = "hann"
	WindowBlackmanHarris WindowKind = "blackman-harris"
)

// windowValues returns the pre-computed window coefficients and their sum.
// The sum is used to normalize FFT magnitudes so window choice does not
// shift the displayed power level.
func windowValues(kind WindowKind, n int) (window.Values, float64, error) {
	var fn func([]float64) []float64
	switch kind {
	case WindowHamming:
		fn = window.Hamming
	case WindowHann:
		fn = window.Hann
	case WindowBlackmanHarris, "":
		fn = window.BlackmanHarris
	default:
		return nil, 0, fmt.Errorf("unknown window %q", kind)
	}

	values := window.NewValues(fn, n)
	var sum float64
	for _, v := range values {
		sum += v
	}
	return values, sum, nil
}

// fftShift reorders FFT output so the DC bin sits in the middle, with
// negative frequencies to the left.
func fftShift(data []complex128) []complex128 {
	n := len(data)
	if n == 0 {
		return data
	}
	half := n / 2
	return append(data[half:], data[:half]...)
}
