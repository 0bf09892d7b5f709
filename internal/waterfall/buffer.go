// Package waterfall keeps the last H spectrum rows in a fixed-size ring
// together with per-bin peak-hold and running-average side state.
package waterfall

import (
	"fmt"
	"math"
	"sync"

	"github.com/sdrtools/heatwave/internal/spectrum"
)

const defaultAvgAlpha = 0.2

// Buffer is a fixed-height ring of spectrum rows. Insertion order is
// preserved; once full, each push evicts the oldest row atomically so
// readers never observe more than Cap rows or a gap.
type Buffer struct {
	mu sync.Mutex

	rows  []*spectrum.Row // arena of size cap, indexed modulo cap
	next  int             // write cursor
	count int

	bins      int
	peak      []float64
	avg       []float64
	peakDecay float64 // 0 disables decay
	avgAlpha  float64
	pushes    uint64
}

// WithPeakDecay enables exponential peak decay. Each push shrinks a
// prior peak's excess over the incoming value by factor (0 < factor < 1)
// before taking the max, so a stale peak converges on the live row no
// matter where the dB scale puts zero.
func WithPeakDecay(factor float64) func(*Buffer) {
	return func(b *Buffer) {
		if factor > 0 && factor < 1 {
			b.peakDecay = factor
		}
	}
}

// WithAverageAlpha sets the exponential smoothing factor for the
// per-bin running average.
func WithAverageAlpha(alpha float64) func(*Buffer) {
	return func(b *Buffer) {
		if alpha > 0 && alpha <= 1 {
			b.avgAlpha = alpha
		}
	}
}

// New creates a buffer holding up to height rows of bins values each.
func New(height, bins int, options ...func(*Buffer)) (*Buffer, error) {
	if height <= 0 || bins <= 0 {
		return nil, fmt.Errorf("invalid buffer geometry: height=%d bins=%d", height, bins)
	}
	b := &Buffer{
		rows:     make([]*spectrum.Row, height),
		bins:     bins,
		avgAlpha: defaultAvgAlpha,
	}
	for _, option := range options {
		option(b)
	}
	return b, nil
}

// Push inserts a row, evicting the oldest when full. Rows must match
// the configured bin count; a partial row is never stored.
func (b *Buffer) Push(row *spectrum.Row) error {
	if row == nil {
		return fmt.Errorf("cannot push nil row")
	}
	if row.Bins() != b.bins {
		return fmt.Errorf("row has %d bins, buffer expects %d", row.Bins(), b.bins)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.rows[b.next] = row
	b.next = (b.next + 1) % len(b.rows)
	if b.count < len(b.rows) {
		b.count++
	}
	b.pushes++

	b.updatePeak(row.Power)
	b.updateAverage(row.Power)
	return nil
}

func (b *Buffer) updatePeak(power []float64) {
	if b.peak == nil {
		b.peak = append([]float64(nil), power...)
		return
	}
	for i, p := range power {
		prev := b.peak[i]
		if b.peakDecay > 0 {
			prev = p + (prev-p)*b.peakDecay
		}
		b.peak[i] = math.Max(prev, p)
	}
}

func (b *Buffer) updateAverage(power []float64) {
	if b.avg == nil {
		b.avg = append([]float64(nil), power...)
		return
	}
	a := b.avgAlpha
	for i, p := range power {
		b.avg[i] = b.avg[i]*(1-a) + p*a
	}
}

// Rows returns the stored rows in insertion order, oldest first.
func (b *Buffer) Rows() []*spectrum.Row {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]*spectrum.Row, 0, b.count)
	start := b.next - b.count
	if start < 0 {
		start += len(b.rows)
	}
	for i := 0; i < b.count; i++ {
		out = append(out, b.rows[(start+i)%len(b.rows)])
	}
	return out
}

// Latest returns the most recently pushed row, or nil when empty.
func (b *Buffer) Latest() *spectrum.Row {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return nil
	}
	idx := b.next - 1
	if idx < 0 {
		idx += len(b.rows)
	}
	return b.rows[idx]
}

// Peak returns a copy of the per-bin peak values, or nil before the
// first push.
func (b *Buffer) Peak() []float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.peak == nil {
		return nil
	}
	return append([]float64(nil), b.peak...)
}

// Average returns a copy of the per-bin running average, or nil before
// the first push.
func (b *Buffer) Average() []float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.avg == nil {
		return nil
	}
	return append([]float64(nil), b.avg...)
}

// Len returns the number of stored rows.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Cap returns the buffer height H.
func (b *Buffer) Cap() int { return len(b.rows) }

// Bins returns the configured bin count.
func (b *Buffer) Bins() int { return b.bins }

// Full reports whether the buffer holds Cap rows.
func (b *Buffer) Full() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count == len(b.rows)
}

// Pushes returns the total number of rows ever pushed, including
// evicted ones. The pipeline uses it to arm auto-export.
func (b *Buffer) Pushes() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pushes
}

// Reset clears rows, peak, and average. Used on frequency-range change
// or an explicit clear command.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.rows {
		b.rows[i] = nil
	}
	b.next = 0
	b.count = 0
	b.peak = nil
	b.avg = nil
}
