package dsp

import (
	"math"
	"time"
)

const (
	defaultAGCTarget   = -30.0 // dB
	defaultAGCSpeed    = 0.3
	defaultAGCMaxStep  = 5.0 // dB per update
	defaultAGCMinGain  = 0.0
	defaultAGCMaxGain  = 49.6
	defaultAGCHistory  = 10
	defaultAGCInterval = 500 * time.Millisecond

	// Gain moves only when the computed step exceeds this, so the tuner
	// is not hammered with sub-dB adjustments.
	agcDeadband = 0.5
)

// AGCConfig tunes the automatic gain control loop.
type AGCConfig struct {
	Target         float64       // Reference level the loop seeks, in dB
	Speed          float64       // Fraction of the error applied per update (0..1]
	MinGain        float64       // dB
	MaxGain        float64       // dB
	MaxStep        float64       // Largest gain change per update, in dB
	HistoryLen     int           // Reference level is the mean over this many rows
	UpdateInterval time.Duration // Minimum time between gain changes
}

func defaultAGCConfig() AGCConfig {
	return AGCConfig{
		Target:         defaultAGCTarget,
		Speed:          defaultAGCSpeed,
		MinGain:        defaultAGCMinGain,
		MaxGain:        defaultAGCMaxGain,
		MaxStep:        defaultAGCMaxStep,
		HistoryLen:     defaultAGCHistory,
		UpdateInterval: defaultAGCInterval,
	}
}

// AGC tracks a smoothed reference level and nudges the gain toward the
// target. Steps are bounded and rate-limited so the display does not
// visibly pump, and the gain never leaves [MinGain, MaxGain].
type AGC struct {
	cfg        AGCConfig
	gain       float64
	history    []float64
	lastUpdate time.Time
}

// NewAGC creates a gain control loop starting at the given gain. Zero
// config fields fall back to defaults.
func NewAGC(cfg AGCConfig, initialGain float64) *AGC {
	def := defaultAGCConfig()
	if cfg.Speed <= 0 {
		cfg.Speed = def.Speed
	}
	if cfg.MaxStep <= 0 {
		cfg.MaxStep = def.MaxStep
	}
	if cfg.MaxGain <= cfg.MinGain {
		cfg.MinGain, cfg.MaxGain = def.MinGain, def.MaxGain
	}
	if cfg.HistoryLen <= 0 {
		cfg.HistoryLen = def.HistoryLen
	}
	if cfg.UpdateInterval <= 0 {
		cfg.UpdateInterval = def.UpdateInterval
	}
	if cfg.Target == 0 {
		cfg.Target = def.Target
	}
	return &AGC{
		cfg:  cfg,
		gain: clamp(initialGain, cfg.MinGain, cfg.MaxGain),
	}
}

// Gain returns the current gain in dB.
func (a *AGC) Gain() float64 { return a.gain }

// Target returns the reference level the loop seeks.
func (a *AGC) Target() float64 { return a.cfg.Target }

// SetTarget changes the reference level the loop seeks.
func (a *AGC) SetTarget(db float64) { a.cfg.Target = db }

// SetGain overrides the loop state, for manual gain commands.
func (a *AGC) SetGain(db float64) {
	a.gain = clamp(db, a.cfg.MinGain, a.cfg.MaxGain)
	a.history = a.history[:0]
}

// Update feeds one row's mean power into the loop. It returns the
// current gain and whether it changed this call.
func (a *AGC) Update(meanPower float64, now time.Time) (gain float64, changed bool) {
	if math.IsNaN(meanPower) || math.IsInf(meanPower, 0) {
		return a.gain, false
	}

	a.history = append(a.history, meanPower)
	if len(a.history) > a.cfg.HistoryLen {
		a.history = a.history[1:]
	}

	if !a.lastUpdate.IsZero() && now.Sub(a.lastUpdate) < a.cfg.UpdateInterval {
		return a.gain, false
	}

	var sum float64
	for _, p := range a.history {
		sum += p
	}
	smoothed := sum / float64(len(a.history))

	step := (a.cfg.Target - smoothed) * a.cfg.Speed
	step = clamp(step, -a.cfg.MaxStep, a.cfg.MaxStep)
	if math.Abs(step) <= agcDeadband {
		return a.gain, false
	}

	next := clamp(a.gain+step, a.cfg.MinGain, a.cfg.MaxGain)
	a.lastUpdate = now
	if next == a.gain {
		return a.gain, false
	}
	a.gain = next
	return a.gain, true
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}
