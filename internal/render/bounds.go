package render

import "math"

const (
	defaultMinPower = -120.0 // dB
	defaultMaxPower = -20.0  // dB

	// Percentile bounds need a floor of samples before they mean anything.
	minimumSampleCount = 64

	minimumRangeDB = 30
)

// PowerBounds is the power range mapped onto the color ramp.
type PowerBounds struct {
	Min  float64 // lower mapping bound in dB
	Max  float64 // upper mapping bound in dB
	Mean float64 // mean observed power in dB
}

// DefaultPowerBounds returns the fixed-scale fallback range.
func DefaultPowerBounds() PowerBounds {
	return PowerBounds{
		Min:  defaultMinPower,
		Max:  defaultMaxPower,
		Mean: (defaultMinPower + defaultMaxPower) / 2,
	}
}

// powerHistogram accumulates observed power in 1 dB bins so percentile
// bounds can be computed without keeping raw rows around.
type powerHistogram struct {
	bins   map[int]uint32
	total  uint64
	minBin int
	maxBin int
}

func newPowerHistogram() *powerHistogram {
	return &powerHistogram{
		bins:   make(map[int]uint32),
		minBin: math.MaxInt32,
		maxBin: math.MinInt32,
	}
}

func (h *powerHistogram) add(power float64) {
	if math.IsNaN(power) || math.IsInf(power, 0) {
		return
	}
	bin := int(math.Floor(power))

	if h.bins[bin] == math.MaxUint32 || h.total == math.MaxUint64 {
		h.scaleDown()
	}

	h.bins[bin]++
	h.total++

	if bin < h.minBin {
		h.minBin = bin
	}
	if bin > h.maxBin {
		h.maxBin = bin
	}
}

// scaleDown halves all counts so long sessions keep adapting instead of
// freezing on ancient history.
func (h *powerHistogram) scaleDown() {
	h.minBin = math.MaxInt32
	h.maxBin = math.MinInt32

	for bin := range h.bins {
		h.bins[bin] /= 2
		if h.bins[bin] == 0 {
			delete(h.bins, bin)
			continue
		}
		if bin < h.minBin {
			h.minBin = bin
		}
		if bin > h.maxBin {
			h.maxBin = bin
		}
	}
	h.total /= 2
}

func (h *powerHistogram) clear() {
	h.bins = make(map[int]uint32)
	h.total = 0
	h.minBin = math.MaxInt32
	h.maxBin = math.MinInt32
}

// percentileBounds returns the 5th..95th percentile range, widened to a
// minimum span with a 10% margin.
func (h *powerHistogram) percentileBounds() PowerBounds {
	if h.total < minimumSampleCount {
		return DefaultPowerBounds()
	}

	target := h.total * 5 / 100

	var count uint64
	var lo, hi int
	for bin := h.minBin; bin <= h.maxBin; bin++ {
		count += uint64(h.bins[bin])
		if count >= target {
			lo = bin
			break
		}
	}
	count = 0
	for bin := h.maxBin; bin >= h.minBin; bin-- {
		count += uint64(h.bins[bin])
		if count >= target {
			hi = bin
			break
		}
	}

	var sum float64
	for bin, n := range h.bins {
		sum += float64(bin) * float64(n)
	}
	mean := sum / float64(h.total)

	if hi-lo < minimumRangeDB {
		center := (hi + lo) / 2
		lo = center - minimumRangeDB/2
		hi = center + minimumRangeDB/2
	}

	margin := (hi - lo) / 10
	return PowerBounds{
		Min:  float64(lo - margin),
		Max:  float64(hi + margin),
		Mean: mean,
	}
}

// BoundsTracker produces the auto-scale power range: percentile bounds
// over a 1 dB histogram, exponentially smoothed so the ramp does not
// jump between frames.
type BoundsTracker struct {
	hist    *powerHistogram
	alpha   float64
	current PowerBounds
}

// NewBoundsTracker creates a tracker with smoothing factor alpha (0..1].
func NewBoundsTracker(alpha float64) *BoundsTracker {
	if alpha <= 0 || alpha > 1 {
		alpha = 0.3
	}
	return &BoundsTracker{
		hist:    newPowerHistogram(),
		alpha:   alpha,
		current: DefaultPowerBounds(),
	}
}

// Observe feeds one row of power values and returns the smoothed bounds.
func (t *BoundsTracker) Observe(power []float64) PowerBounds {
	for _, p := range power {
		t.hist.add(p)
	}

	next := t.hist.percentileBounds()
	t.current.Min = t.current.Min*(1-t.alpha) + next.Min*t.alpha
	t.current.Max = t.current.Max*(1-t.alpha) + next.Max*t.alpha
	t.current.Mean = next.Mean
	return t.current
}

// Current returns the latest smoothed bounds.
func (t *BoundsTracker) Current() PowerBounds { return t.current }

// Reset clears history, for frequency-range changes.
func (t *BoundsTracker) Reset() {
	t.hist.clear()
	t.current = DefaultPowerBounds()
}
