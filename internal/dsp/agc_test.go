package dsp

import (
	"math"
	"testing"
	"time"
)

func TestAGC_SeeksTarget(t *testing.T) {
	a := NewAGC(AGCConfig{Target: -30}, 20)
	now := time.Now()

	// Signal far below target: gain climbs by the max step
	gain, changed := a.Update(-80, now)
	if !changed {
		t.Fatal("Expected a gain change on a large error")
	}
	if gain != 25 {
		t.Errorf("Expected gain 25 after one max step, got %.1f", gain)
	}

	// Signal far above target: gain backs off
	a = NewAGC(AGCConfig{Target: -30}, 20)
	gain, changed = a.Update(20, now)
	if !changed {
		t.Fatal("Expected a gain change on a large error")
	}
	if gain != 15 {
		t.Errorf("Expected gain 15 after one max step down, got %.1f", gain)
	}
}

func TestAGC_RateLimit(t *testing.T) {
	a := NewAGC(AGCConfig{Target: -30}, 20)
	now := time.Now()

	if _, changed := a.Update(-80, now); !changed {
		t.Fatal("First update should change the gain")
	}

	// Within the update interval nothing moves
	if _, changed := a.Update(-80, now.Add(100*time.Millisecond)); changed {
		t.Error("Gain must not change inside the update interval")
	}

	// After the interval the gain moves again
	if _, changed := a.Update(-80, now.Add(time.Second)); !changed {
		t.Error("Gain should change once the interval passed")
	}
}

func TestAGC_Bounds(t *testing.T) {
	a := NewAGC(AGCConfig{Target: -30, MinGain: 0, MaxGain: 49.6}, 48)
	now := time.Now()

	gain, _ := a.Update(-80, now)
	if gain != 49.6 {
		t.Errorf("Gain should clamp to 49.6, got %.1f", gain)
	}

	// Already pinned at the ceiling: no further change reported
	if _, changed := a.Update(-80, now.Add(time.Second)); changed {
		t.Error("Gain pinned at the ceiling must not report changes")
	}
}

func TestAGC_Deadband(t *testing.T) {
	a := NewAGC(AGCConfig{Target: -30}, 20)

	// Error of 1 dB at speed 0.3 is a 0.3 dB step, inside the deadband
	if _, changed := a.Update(-31, time.Now()); changed {
		t.Error("Sub-deadband step must not change the gain")
	}
}

func TestAGC_IgnoresInvalidPower(t *testing.T) {
	a := NewAGC(AGCConfig{}, 20)
	now := time.Now()

	if _, changed := a.Update(math.NaN(), now); changed {
		t.Error("NaN power must be ignored")
	}
	if _, changed := a.Update(math.Inf(-1), now); changed {
		t.Error("Infinite power must be ignored")
	}
	if a.Gain() != 20 {
		t.Errorf("Gain drifted to %.1f on invalid input", a.Gain())
	}
}

func TestAGC_ManualOverride(t *testing.T) {
	a := NewAGC(AGCConfig{}, 20)

	a.SetGain(35)
	if a.Gain() != 35 {
		t.Errorf("Expected gain 35 after override, got %.1f", a.Gain())
	}

	// Overrides clamp into range
	a.SetGain(100)
	if a.Gain() != 49.6 {
		t.Errorf("Expected override clamped to 49.6, got %.1f", a.Gain())
	}
	a.SetGain(-5)
	if a.Gain() != 0 {
		t.Errorf("Expected override clamped to 0, got %.1f", a.Gain())
	}
}
