package dsp

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/sdrtools/heatwave/internal/sdr"
)

// toneBlock synthesizes a complex exponential at the given bin offset
// from the center frequency.
func toneBlock(size int, binOffset int) *sdr.SampleBlock {
	rate := 1e6
	freq := float64(binOffset) * rate / float64(size)
	samples := make([]complex64, size)
	for i := range samples {
		t := float64(i) / rate
		samples[i] = complex(
			float32(math.Cos(2*math.Pi*freq*t)),
			float32(math.Sin(2*math.Pi*freq*t)),
		)
	}
	return &sdr.SampleBlock{
		Timestamp:  time.Now(),
		CenterFreq: 100e6,
		SampleRate: rate,
		Samples:    samples,
	}
}

func TestEstimator_TonePlacement(t *testing.T) {
	const size = 256
	e, err := NewEstimator(size, WindowBlackmanHarris)
	if err != nil {
		t.Fatalf("Failed to create estimator: %v", err)
	}

	// A tone 16 bins above center must land 16 bins right of the middle
	row, err := e.Process(toneBlock(size, 16))
	if err != nil {
		t.Fatalf("Failed to process block: %v", err)
	}
	if row.Bins() != size {
		t.Fatalf("Expected %d bins, got %d", size, row.Bins())
	}

	maxBin := 0
	for i, p := range row.Power {
		if p > row.Power[maxBin] {
			maxBin = i
		}
	}
	if want := size/2 + 16; maxBin != want {
		t.Errorf("Expected peak at bin %d, got %d", want, maxBin)
	}

	// The tone peak must sit well above the empty bins
	if row.Power[maxBin] < row.Power[0]+20 {
		t.Errorf("Peak %.1f dB not distinct from floor %.1f dB", row.Power[maxBin], row.Power[0])
	}
}

func TestEstimator_RowMetadata(t *testing.T) {
	e, err := NewEstimator(64, WindowHann)
	if err != nil {
		t.Fatalf("Failed to create estimator: %v", err)
	}

	block := toneBlock(64, 4)
	row, err := e.Process(block)
	if err != nil {
		t.Fatalf("Failed to process block: %v", err)
	}

	if row.CenterFreq != block.CenterFreq {
		t.Errorf("Expected center %.0f, got %.0f", block.CenterFreq, row.CenterFreq)
	}
	if row.SampleRate != block.SampleRate {
		t.Errorf("Expected rate %.0f, got %.0f", block.SampleRate, row.SampleRate)
	}
	if start := row.FrequencyStart(); start != block.CenterFreq-block.SampleRate/2 {
		t.Errorf("Unexpected frequency start %.0f", start)
	}
}

func TestEstimator_ShortBlock(t *testing.T) {
	e, err := NewEstimator(128, WindowBlackmanHarris)
	if err != nil {
		t.Fatalf("Failed to create estimator: %v", err)
	}

	testCases := []struct {
		name  string
		block *sdr.SampleBlock
	}{
		{"nil block", nil},
		{"empty block", &sdr.SampleBlock{}},
		{"short block", &sdr.SampleBlock{Samples: make([]complex64, 64)}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.Process(tc.block)
			if !errors.Is(err, sdr.ErrAcquisitionGap) {
				t.Errorf("Expected acquisition gap error, got %v", err)
			}
		})
	}
}

func TestEstimator_ExponentialAveraging(t *testing.T) {
	const size = 64
	e, err := NewEstimator(size, WindowBlackmanHarris)
	if err != nil {
		t.Fatalf("Failed to create estimator: %v", err)
	}
	e.SetAveraging(Averaging{Mode: AveragingExponential, Weight: 0.5})

	first, err := e.Process(toneBlock(size, 8))
	if err != nil {
		t.Fatalf("Failed to process first block: %v", err)
	}
	second, err := e.Process(toneBlock(size, 8))
	if err != nil {
		t.Fatalf("Failed to process second block: %v", err)
	}

	// Identical inputs blended with themselves stay put
	for i := range first.Power {
		if math.Abs(first.Power[i]-second.Power[i]) > 1e-9 {
			t.Fatalf("Bin %d drifted under averaging: %.6f vs %.6f", i, first.Power[i], second.Power[i])
		}
	}

	// Switching the tone moves the blended peak partway, not fully
	moved, err := e.Process(toneBlock(size, 16))
	if err != nil {
		t.Fatalf("Failed to process moved block: %v", err)
	}
	oldPeak := size/2 + 8
	newPeak := size/2 + 16
	if moved.Power[oldPeak] <= moved.Power[0]+10 {
		t.Error("Old tone should still be visible in the blended row")
	}
	if moved.Power[newPeak] <= moved.Power[0]+10 {
		t.Error("New tone should be visible in the blended row")
	}
}

func TestEstimator_WindowAveraging(t *testing.T) {
	const size = 64
	e, err := NewEstimator(size, WindowHamming)
	if err != nil {
		t.Fatalf("Failed to create estimator: %v", err)
	}
	e.SetAveraging(Averaging{Mode: AveragingWindow, Window: 2})

	a, _ := e.Process(toneBlock(size, 4))
	b, _ := e.Process(toneBlock(size, 12))

	// The second row is the mean of both, so both peaks shrink equally
	peakA := size/2 + 4
	peakB := size/2 + 12
	if math.Abs(b.Power[peakA]-b.Power[peakB]) > 3 {
		t.Errorf("Window average should weight both tones equally: %.1f vs %.1f", b.Power[peakA], b.Power[peakB])
	}
	_ = a
}

func TestEstimator_UnknownWindow(t *testing.T) {
	if _, err := NewEstimator(64, WindowKind("flattop")); err == nil {
		t.Error("Expected error for unknown window kind")
	}
	if _, err := NewEstimator(0, WindowHann); err == nil {
		t.Error("Expected error for zero block size")
	}
}

func TestMean(t *testing.T) {
	if m := Mean(nil); m != 0 {
		t.Errorf("Mean of empty slice should be 0, got %f", m)
	}
	if m := Mean([]float64{-10, -20, -30}); m != -20 {
		t.Errorf("Expected mean -20, got %f", m)
	}
}
