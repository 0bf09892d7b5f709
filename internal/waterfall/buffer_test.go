package waterfall

import (
	"testing"
	"time"

	"github.com/sdrtools/heatwave/internal/spectrum"
)

func makeRow(power ...float64) *spectrum.Row {
	return &spectrum.Row{
		Timestamp:  time.Now(),
		CenterFreq: 100e6,
		SampleRate: 1e6,
		Power:      power,
	}
}

func TestBuffer_EvictionOrder(t *testing.T) {
	b, err := New(3, 2)
	if err != nil {
		t.Fatalf("Failed to create buffer: %v", err)
	}

	// Push 5 rows into a 3-row buffer; the first two must be evicted
	for i := 0; i < 5; i++ {
		if err := b.Push(makeRow(float64(i), float64(i))); err != nil {
			t.Fatalf("Failed to push row %d: %v", i, err)
		}
	}

	if b.Len() != 3 {
		t.Errorf("Expected 3 stored rows, got %d", b.Len())
	}
	if !b.Full() {
		t.Error("Buffer should be full after 5 pushes")
	}
	if b.Pushes() != 5 {
		t.Errorf("Expected 5 total pushes, got %d", b.Pushes())
	}

	rows := b.Rows()
	if len(rows) != 3 {
		t.Fatalf("Expected 3 rows, got %d", len(rows))
	}
	for i, want := range []float64{2, 3, 4} {
		if rows[i].Power[0] != want {
			t.Errorf("Row %d: expected power %.0f, got %.0f", i, want, rows[i].Power[0])
		}
	}

	if latest := b.Latest(); latest.Power[0] != 4 {
		t.Errorf("Latest: expected power 4, got %.0f", latest.Power[0])
	}
}

func TestBuffer_PeakHold(t *testing.T) {
	b, err := New(4, 2)
	if err != nil {
		t.Fatalf("Failed to create buffer: %v", err)
	}

	if b.Peak() != nil {
		t.Error("Peak should be nil before the first push")
	}

	_ = b.Push(makeRow(-60, -30))
	_ = b.Push(makeRow(-40, -50))

	peak := b.Peak()
	if peak[0] != -40 || peak[1] != -30 {
		t.Errorf("Expected peak [-40 -30], got %v", peak)
	}

	// Peak survives eviction of the row that set it
	for i := 0; i < 4; i++ {
		_ = b.Push(makeRow(-90, -90))
	}
	peak = b.Peak()
	if peak[0] != -40 || peak[1] != -30 {
		t.Errorf("Peak should survive eviction, got %v", peak)
	}
}

func TestBuffer_PeakDecay(t *testing.T) {
	b, err := New(4, 1, WithPeakDecay(0.5))
	if err != nil {
		t.Fatalf("Failed to create buffer: %v", err)
	}

	_ = b.Push(makeRow(100))
	_ = b.Push(makeRow(-100))

	// Prior peak 100 gives up half its 200 excess over -100
	if peak := b.Peak(); peak[0] != 0 {
		t.Errorf("Expected decayed peak 0, got %.1f", peak[0])
	}
}

func TestBuffer_PeakDecayNegativeScale(t *testing.T) {
	b, err := New(4, 1, WithPeakDecay(0.5))
	if err != nil {
		t.Fatalf("Failed to create buffer: %v", err)
	}

	// A loud burst followed by a quiet noise floor, both in negative dB
	_ = b.Push(makeRow(-30))

	prev := b.Peak()[0]
	for i := 0; i < 50; i++ {
		_ = b.Push(makeRow(-60))
		peak := b.Peak()[0]
		if peak > prev {
			t.Fatalf("Peak rose from %.3f to %.3f on a quiet row", prev, peak)
		}
		if peak < -60 {
			t.Fatalf("Peak %.3f fell below the live row", peak)
		}
		prev = peak
	}

	if diff := prev - (-60); diff > 1e-9 {
		t.Errorf("Peak should converge on the live row, still %.3g dB above after 50 rows", diff)
	}
}

func TestBuffer_RunningAverage(t *testing.T) {
	b, err := New(4, 1, WithAverageAlpha(0.5))
	if err != nil {
		t.Fatalf("Failed to create buffer: %v", err)
	}

	if b.Average() != nil {
		t.Error("Average should be nil before the first push")
	}

	_ = b.Push(makeRow(-40))
	_ = b.Push(makeRow(-20))

	// First row seeds the average, second blends: -40*0.5 + -20*0.5
	if avg := b.Average(); avg[0] != -30 {
		t.Errorf("Expected average -30, got %.1f", avg[0])
	}
}

func TestBuffer_Reset(t *testing.T) {
	b, err := New(3, 1)
	if err != nil {
		t.Fatalf("Failed to create buffer: %v", err)
	}

	_ = b.Push(makeRow(-40))
	b.Reset()

	if b.Len() != 0 {
		t.Errorf("Expected empty buffer after reset, got %d rows", b.Len())
	}
	if b.Peak() != nil || b.Average() != nil {
		t.Error("Peak and average should be cleared by reset")
	}
	if b.Latest() != nil {
		t.Error("Latest should be nil after reset")
	}
}

func TestBuffer_InvalidInput(t *testing.T) {
	b, err := New(3, 4)
	if err != nil {
		t.Fatalf("Failed to create buffer: %v", err)
	}

	if err := b.Push(nil); err == nil {
		t.Error("Expected error when pushing nil row")
	}
	if err := b.Push(makeRow(1, 2)); err == nil {
		t.Error("Expected error for row with wrong bin count")
	}
	if b.Len() != 0 {
		t.Error("Rejected rows must not be stored")
	}

	testCases := []struct {
		name   string
		height int
		bins   int
	}{
		{"zero height", 0, 4},
		{"zero bins", 3, 0},
		{"negative height", -1, 4},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.height, tc.bins); err == nil {
				t.Error("Expected error for invalid geometry")
			}
		})
	}
}
